package svgicon

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/CTAG07/Iconoclast/pkg/rendercache"
)

// Manager is the central controller for the icon asset set. It loads and
// fingerprints the source SVGs, maintains the packed sprite, renders PNG
// variants through the cache, and provides the icon template functions.
// All methods are concurrent-safe. The sprite and stylesheet are rebuilt
// wholesale on Refresh; readers keep being served the previous version until
// the rebuilt state is swapped in.
type Manager struct {
	logger *slog.Logger
	config *Config
	cache  *rendercache.Cache

	mu             sync.RWMutex
	assets         map[string]*Asset
	order          []*Asset
	sprite         *Sprite
	setFingerprint string
}

// NewManager creates, initializes, and returns a new Manager. It performs an
// initial Refresh to load the asset set and lay out the sprite.
func NewManager(logger *slog.Logger, cache *rendercache.Cache, config *Config) (*Manager, error) {
	if config.RootDir == "" {
		return nil, fmt.Errorf("config.RootDir must not be empty")
	}
	m := &Manager{
		logger: logger,
		config: config,
		cache:  cache,
	}
	if err := m.Refresh(); err != nil {
		return nil, err
	}
	logger.Info("Icon manager initialized", "assets", len(m.order), "sprite_mode", config.SpriteMode)
	return m, nil
}

// Refresh reloads all source SVGs from the filesystem, recomputes their
// fingerprints, and rebuilds the sprite layout. This allows icon updates to
// be picked up without restarting the application. Concurrent lookups during
// a refresh are served from the previous asset set.
func (m *Manager) Refresh() error {
	paths := m.config.Paths
	if len(paths) == 0 {
		var err error
		paths, err = scanRootDir(m.config.RootDir)
		if err != nil {
			return err
		}
	}

	assets := make(map[string]*Asset, len(paths))
	order := make([]*Asset, 0, len(paths))
	for _, path := range paths {
		asset, err := LoadAsset(m.config.RootDir, path)
		if err != nil {
			return err
		}
		assets[path] = asset
		order = append(order, asset)
	}

	sprite := BuildSprite(order, m.config.MaxSpriteWidth)

	m.mu.Lock()
	m.assets = assets
	m.order = order
	m.sprite = sprite
	m.setFingerprint = AssetSetFingerprint(order)
	m.mu.Unlock()

	m.logger.Info("Loaded icon assets",
		"count", len(order),
		"sprite_width", sprite.Width,
		"sprite_height", sprite.Height)
	return nil
}

// scanRootDir walks the root directory for *.svg files and returns their
// slash-separated relative paths in sorted order, so the sprite layout does
// not depend on filesystem iteration order.
func scanRootDir(rootDir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".svg") {
			return nil
		}
		rel, err := filepath.Rel(rootDir, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan root directory: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Asset looks up an asset by path. A path without an extension is treated as
// shorthand for the .svg file of the same name.
func (m *Manager) Asset(path string) (*Asset, error) {
	path = normalizePath(path)
	m.mu.RLock()
	defer m.mu.RUnlock()
	asset, ok := m.assets[path]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAssetNotFound, path)
	}
	return asset, nil
}

// Paths returns the asset paths in sprite packing order.
func (m *Manager) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, len(m.order))
	for i, a := range m.order {
		paths[i] = a.Path
	}
	return paths
}

// Sprite returns the current packed sprite.
func (m *Manager) Sprite() *Sprite {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sprite
}

// RenderSVG returns the raw content of the asset at the given path.
func (m *Manager) RenderSVG(path string) ([]byte, error) {
	asset, err := m.Asset(path)
	if err != nil {
		return nil, err
	}
	return asset.Content, nil
}

// RenderPNG rasterizes the asset at the given path to PNG at the requested
// size ("" and "auto" keep the intrinsic size). Results are cached on disk
// keyed by path, resolved size, and content fingerprint.
func (m *Manager) RenderPNG(ctx context.Context, path, size string) ([]byte, error) {
	asset, err := m.Asset(path)
	if err != nil {
		return nil, err
	}
	spec, err := ParseSizeSpec(size)
	if err != nil {
		return nil, err
	}
	fw, fh := spec.Resolve(asset.Width, asset.Height)
	w, h := int(math.Ceil(fw)), int(math.Ceil(fh))

	key := rendercache.Key{Path: asset.Path, Width: w, Height: h, Fingerprint: asset.Fingerprint}
	return m.cache.GetOrRender(ctx, key, ".png", func() ([]byte, error) {
		data, err := RenderPNG(asset.Content, w, h)
		if err != nil {
			var rerr *RenderError
			if errors.As(err, &rerr) {
				rerr.Path = asset.Path
			}
			return nil, err
		}
		return data, nil
	})
}

// RenderSVGSprite returns the combined vector document for the current asset
// set. The document is cached keyed by the sprite fingerprint.
func (m *Manager) RenderSVGSprite(ctx context.Context) ([]byte, error) {
	sprite := m.Sprite()
	key := rendercache.Key{Path: spritePath, Fingerprint: sprite.Fingerprint}
	return m.cache.GetOrRender(ctx, key, ".svg", sprite.SVG)
}

// RenderPNGSprite returns the combined raster image for the current asset
// set, optionally resized ("" and "auto" keep the packed canvas size).
func (m *Manager) RenderPNGSprite(ctx context.Context, size string) ([]byte, error) {
	sprite := m.Sprite()
	if sprite.Width == 0 || sprite.Height == 0 {
		return nil, &RenderError{Path: spritePath, Err: fmt.Errorf("sprite is empty")}
	}
	spec, err := ParseSizeSpec(size)
	if err != nil {
		return nil, err
	}
	fw, fh := spec.Resolve(float64(sprite.Width), float64(sprite.Height))
	w, h := int(math.Ceil(fw)), int(math.Ceil(fh))

	key := rendercache.Key{Path: spritePath, Width: w, Height: h, Fingerprint: sprite.Fingerprint}
	return m.cache.GetOrRender(ctx, key, ".png", func() ([]byte, error) {
		if spec.IsAuto() {
			return sprite.PNG()
		}
		return sprite.ResizedPNG(w, h)
	})
}

// Stylesheet returns the generated stylesheet covering every asset: the
// shared .icon rule plus one .icon-<slug> rule per icon. The text is
// memoized through the cache, keyed by the current asset-set fingerprint, so
// it is regenerated only when an asset changes. One snapshot feeds both the
// cache key and the emitted text, so the memoized bytes always match their
// key even when a refresh lands mid-call.
func (m *Manager) Stylesheet(ctx context.Context) ([]byte, error) {
	m.mu.RLock()
	order := m.order
	sprite := m.sprite
	setFP := m.setFingerprint
	m.mu.RUnlock()

	key := rendercache.Key{Path: stylesheetPath, Fingerprint: m.stylesheetFingerprint(setFP, sprite.Fingerprint)}
	return m.cache.GetOrRender(ctx, key, ".css", func() ([]byte, error) {
		return m.buildStylesheet(order, sprite)
	})
}

// stylesheetFingerprint folds the delivery configuration into the asset-set
// fingerprint, since the emitted text depends on both.
func (m *Manager) stylesheetFingerprint(setFP, spriteFP string) string {
	h := sha256.New()
	h.Write([]byte(setFP))
	h.Write([]byte(spriteFP))
	h.Write([]byte(m.config.URLPrefix))
	if m.config.SpriteMode {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// snapshot returns an asset together with the sprite it was packed into,
// taken under one read lock so the pair is always from the same refresh
// generation.
func (m *Manager) snapshot(path string) (*Asset, *Sprite, error) {
	path = normalizePath(path)
	m.mu.RLock()
	asset, ok := m.assets[path]
	sprite := m.sprite
	m.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrAssetNotFound, path)
	}
	return asset, sprite, nil
}

// Reserved cache key paths for the whole-set artifacts. Real asset paths
// always carry a .svg suffix, so these cannot collide.
const (
	spritePath     = "__sprite__"
	stylesheetPath = "__stylesheet__"
)

// normalizePath appends the .svg extension to extension-less paths.
func normalizePath(path string) string {
	if !strings.Contains(path, ".") {
		return path + ".svg"
	}
	return path
}

// SVGURL returns the versioned URL of a single asset's SVG file.
func (m *Manager) SVGURL(path string) (string, error) {
	asset, err := m.Asset(path)
	if err != nil {
		return "", err
	}
	return m.svgURL(asset), nil
}

// PNGURL returns the versioned URL of a single asset's PNG rendering at its
// intrinsic size.
func (m *Manager) PNGURL(path string) (string, error) {
	asset, err := m.Asset(path)
	if err != nil {
		return "", err
	}
	return m.pngURL(asset), nil
}

// SpriteSVGURL returns the versioned URL of the combined vector document.
func (m *Manager) SpriteSVGURL() string {
	return m.spriteSVGURLFor(m.Sprite())
}

// SpritePNGURL returns the versioned URL of the combined raster image.
func (m *Manager) SpritePNGURL() string {
	return m.spritePNGURLFor(m.Sprite())
}

func (m *Manager) spriteSVGURLFor(s *Sprite) string {
	return m.config.URLPrefix + "/combined.svg?v=" + s.ShortFingerprint()
}

func (m *Manager) spritePNGURLFor(s *Sprite) string {
	return m.config.URLPrefix + "/combined.png?v=" + s.ShortFingerprint()
}

func (m *Manager) svgURL(a *Asset) string {
	return m.config.URLPrefix + "/" + a.Path + "?v=" + a.ShortFingerprint()
}

func (m *Manager) pngURL(a *Asset) string {
	return m.config.URLPrefix + "/" + pngPath(a.Path) + "?v=" + a.ShortFingerprint()
}

func (m *Manager) resizedPNGURL(a *Asset, spec SizeSpec) string {
	return m.config.URLPrefix + "/" + spec.String() + "/" + pngPath(a.Path) + "?v=" + a.ShortFingerprint()
}

// pngPath swaps an asset path's .svg suffix for .png.
func pngPath(path string) string {
	return strings.TrimSuffix(path, ".svg") + ".png"
}
