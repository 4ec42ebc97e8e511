package svgicon

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strconv"

	"github.com/disintegration/imaging"
)

// Rect is an icon's rectangle within the sprite canvas, in pixels.
type Rect struct {
	X, Y, W, H int
}

// Sprite is an ordered collection of assets packed onto a single canvas.
// Packing uses a shelf policy: icons are laid out left to right in insertion
// order, a new row starts whenever the running row width would exceed the
// configured maximum, the row height is the tallest icon in the row, and the
// canvas is sized to the widest row and the sum of row heights. The layout is
// fully deterministic for a fixed input order and maximum width, so a rebuild
// with unchanged inputs never shifts any rectangle.
type Sprite struct {
	Width       int
	Height      int
	Fingerprint string

	members []*Asset
	rects   map[string]Rect
}

// BuildSprite packs the given assets, in order, into a new Sprite. Each
// icon occupies its intrinsic size, rounded up to whole pixels. The sprite is
// always rebuilt wholesale; there is no incremental patching.
func BuildSprite(assets []*Asset, maxWidth int) *Sprite {
	if maxWidth <= 0 {
		maxWidth = 1024
	}
	s := &Sprite{
		members: assets,
		rects:   make(map[string]Rect, len(assets)),
	}

	x, y, rowHeight := 0, 0, 0
	for _, asset := range assets {
		w := int(math.Ceil(asset.Width))
		h := int(math.Ceil(asset.Height))
		if x > 0 && x+w > maxWidth {
			y += rowHeight
			x, rowHeight = 0, 0
		}
		s.rects[asset.Path] = Rect{X: x, Y: y, W: w, H: h}
		x += w
		if h > rowHeight {
			rowHeight = h
		}
		if x > s.Width {
			s.Width = x
		}
	}
	s.Height = y + rowHeight
	s.Fingerprint = spriteFingerprint(assets, maxWidth)
	return s
}

// AssetSetFingerprint hashes the ordered identity of an asset set. Any change
// to the set membership, order, or any member's content produces a new value.
func AssetSetFingerprint(assets []*Asset) string {
	h := sha256.New()
	for _, a := range assets {
		h.Write([]byte(a.Path))
		h.Write([]byte{0})
		h.Write([]byte(a.Fingerprint))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func spriteFingerprint(assets []*Asset, maxWidth int) string {
	h := sha256.New()
	h.Write([]byte(AssetSetFingerprint(assets)))
	var width [8]byte
	binary.LittleEndian.PutUint64(width[:], uint64(maxWidth))
	h.Write(width[:])
	return hex.EncodeToString(h.Sum(nil))
}

// ShortFingerprint returns a truncated fingerprint for version query
// parameters in sprite URLs.
func (s *Sprite) ShortFingerprint() string {
	if len(s.Fingerprint) < 12 {
		return s.Fingerprint
	}
	return s.Fingerprint[:12]
}

// Rect looks up the packed rectangle for an asset path.
func (s *Sprite) Rect(path string) (Rect, bool) {
	r, ok := s.rects[path]
	return r, ok
}

// Paths returns the member asset paths in packing order.
func (s *Sprite) Paths() []string {
	paths := make([]string, len(s.members))
	for i, a := range s.members {
		paths[i] = a.Path
	}
	return paths
}

// SVG emits the combined vector document: one root <svg> with every member
// embedded as a nested <svg> element repositioned to its packed rectangle.
func (s *Sprite) SVG() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" version="1.1" width="%d" height="%d">`, s.Width, s.Height)
	buf.WriteByte('\n')
	for _, asset := range s.members {
		rect := s.rects[asset.Path]
		embedded, err := embedAt(asset, rect)
		if err != nil {
			return nil, fmt.Errorf("failed to embed %q into sprite: %w", asset.Path, err)
		}
		buf.Write(embedded)
		buf.WriteByte('\n')
	}
	buf.WriteString("</svg>\n")
	return buf.Bytes(), nil
}

// PNG emits the combined raster image: every member rasterized at its
// natural size and composited at its packed rectangle.
func (s *Sprite) PNG() ([]byte, error) {
	img, err := s.pngImage()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err = png.Encode(&buf, img); err != nil {
		return nil, &RenderError{Err: err}
	}
	return buf.Bytes(), nil
}

// ResizedPNG emits the combined raster image scaled to the given size.
func (s *Sprite) ResizedPNG(width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, &RenderError{Err: ErrInvalidSizeSpec}
	}
	img, err := s.pngImage()
	if err != nil {
		return nil, err
	}
	resized := imaging.Resize(img, width, height, imaging.Lanczos)
	var buf bytes.Buffer
	if err = png.Encode(&buf, resized); err != nil {
		return nil, &RenderError{Err: err}
	}
	return buf.Bytes(), nil
}

func (s *Sprite) pngImage() (image.Image, error) {
	canvas := imaging.New(s.Width, s.Height, color.Transparent)
	for _, asset := range s.members {
		rect := s.rects[asset.Path]
		img, err := renderImage(asset.Content, rect.W, rect.H)
		if err != nil {
			var rerr *RenderError
			if errors.As(err, &rerr) {
				rerr.Path = asset.Path
			}
			return nil, err
		}
		canvas = imaging.Paste(canvas, img, image.Pt(rect.X, rect.Y))
	}
	return canvas, nil
}

// embedAt rewrites an asset's root <svg> tag so the document sits at its
// packed rectangle, leaving the rest of the document untouched. The original
// x/y/width/height/id root attributes are replaced; a viewBox is synthesized
// from the intrinsic size when the source has none, so the nested element
// scales correctly.
func embedAt(asset *Asset, rect Rect) ([]byte, error) {
	root, bodyOffset, err := rootElement(asset.Content)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("<svg")
	writeAttr(&buf, "id", Slug(asset.Path))
	writeAttr(&buf, "x", strconv.Itoa(rect.X))
	writeAttr(&buf, "y", strconv.Itoa(rect.Y))
	writeAttr(&buf, "width", strconv.Itoa(rect.W))
	writeAttr(&buf, "height", strconv.Itoa(rect.H))

	hasViewBox := false
	for _, attr := range root.Attr {
		switch attr.Name.Local {
		case "x", "y", "width", "height", "id":
			continue
		case "viewBox":
			hasViewBox = true
		}
		writeAttr(&buf, attrName(attr.Name), attr.Value)
	}
	if !hasViewBox {
		writeAttr(&buf, "viewBox", fmt.Sprintf("0 0 %s %s", formatPx(asset.Width), formatPx(asset.Height)))
	}
	// A self-closing root has no body to splice; the offset sits just past
	// the "/>", so the rewritten tag must close itself too.
	if bodyOffset >= 2 && bytes.Equal(asset.Content[bodyOffset-2:bodyOffset], []byte("/>")) {
		buf.WriteString("/>")
		return buf.Bytes(), nil
	}
	buf.WriteByte('>')
	buf.Write(asset.Content[bodyOffset:])
	return bytes.TrimRight(buf.Bytes(), "\n\r\t "), nil
}

// attrName reconstructs the serialized attribute name. The decoder expands
// namespace prefixes to URLs; xlink is the only prefixed attribute namespace
// that realistically appears on an icon's root element.
func attrName(name xml.Name) string {
	switch name.Space {
	case "":
		return name.Local
	case "xmlns":
		return "xmlns:" + name.Local
	case "http://www.w3.org/1999/xlink":
		return "xlink:" + name.Local
	default:
		return name.Local
	}
}

func writeAttr(buf *bytes.Buffer, name, value string) {
	buf.WriteByte(' ')
	buf.WriteString(name)
	buf.WriteString(`="`)
	_ = xml.EscapeText(buf, []byte(value))
	buf.WriteByte('"')
}
