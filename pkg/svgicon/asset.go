package svgicon

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Asset is a single source SVG image, identified by its relative path within
// the configured root directory. The intrinsic dimensions come from the SVG
// viewBox (falling back to the width/height attributes), and the fingerprint
// is a content-derived hash used as the cache-invalidation key: any change to
// the source file yields a new fingerprint.
type Asset struct {
	Path        string
	Content     []byte
	Width       float64
	Height      float64
	Fingerprint string
}

// LoadAsset reads the SVG file at rootDir/path and builds an Asset for it.
// The file's size and modification time are folded into the fingerprint
// alongside the content hash.
func LoadAsset(rootDir, path string) (*Asset, error) {
	file := filepath.Join(rootDir, filepath.FromSlash(path))
	content, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrAssetNotFound, path)
		}
		return nil, fmt.Errorf("failed to read asset %q: %w", path, err)
	}
	info, err := os.Stat(file)
	if err != nil {
		return nil, fmt.Errorf("failed to stat asset %q: %w", path, err)
	}

	h := sha256.New()
	h.Write(content)
	var meta [16]byte
	binary.LittleEndian.PutUint64(meta[0:8], uint64(info.Size()))
	binary.LittleEndian.PutUint64(meta[8:16], uint64(info.ModTime().UnixNano()))
	h.Write(meta[:])

	return newAsset(path, content, hex.EncodeToString(h.Sum(nil)))
}

// NewAsset builds an Asset from in-memory SVG content. The fingerprint is
// derived from the content alone.
func NewAsset(path string, content []byte) (*Asset, error) {
	sum := sha256.Sum256(content)
	return newAsset(path, content, hex.EncodeToString(sum[:]))
}

func newAsset(path string, content []byte, fingerprint string) (*Asset, error) {
	w, h, err := parseDimensions(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dimensions of %q: %w", path, err)
	}
	return &Asset{
		Path:        path,
		Content:     content,
		Width:       w,
		Height:      h,
		Fingerprint: fingerprint,
	}, nil
}

// Slug converts an asset path into a CSS class suffix: everything up to the
// first dot, with path separators replaced by dashes. "nav/arrow.svg"
// becomes "nav-arrow".
func Slug(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		path = path[:i]
	}
	return strings.ReplaceAll(path, "/", "-")
}

// ShortFingerprint returns a truncated fingerprint suitable for version
// query parameters in asset URLs.
func (a *Asset) ShortFingerprint() string {
	if len(a.Fingerprint) < 12 {
		return a.Fingerprint
	}
	return a.Fingerprint[:12]
}

// Slug returns the CSS class suffix for this asset's path.
func (a *Asset) Slug() string {
	return Slug(a.Path)
}

// parseDimensions extracts the intrinsic width and height from the root
// element of an SVG document. The viewBox attribute takes precedence; width
// and height attributes (with an optional "px" suffix) are the fallback.
func parseDimensions(content []byte) (float64, float64, error) {
	root, _, err := rootElement(content)
	if err != nil {
		return 0, 0, err
	}

	var widthAttr, heightAttr, viewBox string
	for _, attr := range root.Attr {
		switch attr.Name.Local {
		case "viewBox":
			viewBox = attr.Value
		case "width":
			widthAttr = attr.Value
		case "height":
			heightAttr = attr.Value
		}
	}

	if viewBox != "" {
		fields := strings.FieldsFunc(viewBox, func(r rune) bool {
			return r == ' ' || r == '\t' || r == '\n' || r == ','
		})
		if len(fields) != 4 {
			return 0, 0, fmt.Errorf("malformed viewBox %q", viewBox)
		}
		w, errW := strconv.ParseFloat(fields[2], 64)
		h, errH := strconv.ParseFloat(fields[3], 64)
		if errW != nil || errH != nil || w <= 0 || h <= 0 {
			return 0, 0, fmt.Errorf("malformed viewBox %q", viewBox)
		}
		return w, h, nil
	}

	if widthAttr == "" || heightAttr == "" {
		return 0, 0, fmt.Errorf("svg root carries neither viewBox nor width/height")
	}
	w, errW := strconv.ParseFloat(strings.TrimSuffix(widthAttr, "px"), 64)
	h, errH := strconv.ParseFloat(strings.TrimSuffix(heightAttr, "px"), 64)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("malformed width/height attributes %q, %q", widthAttr, heightAttr)
	}
	return w, h, nil
}

// rootElement returns the first start element of the document along with the
// byte offset just past its closing '>', so callers can splice a rewritten
// opening tag onto the untouched remainder of the document.
func rootElement(content []byte) (xml.StartElement, int64, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return xml.StartElement{}, 0, fmt.Errorf("no root element found")
			}
			return xml.StartElement{}, 0, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			if start.Name.Local != "svg" {
				return xml.StartElement{}, 0, fmt.Errorf("root element is <%s>, not <svg>", start.Name.Local)
			}
			return start.Copy(), dec.InputOffset(), nil
		}
	}
}
