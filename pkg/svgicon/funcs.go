package svgicon

import (
	"fmt"
	"html/template"
	"strings"
)

// FuncMap returns the template functions for HTML rendering passes. The
// "icon" function takes an asset path and an optional size string and emits
// the icon's wrapper element.
func (m *Manager) FuncMap() template.FuncMap {
	return template.FuncMap{
		"icon": func(path string, size ...string) (template.HTML, error) {
			return m.IconHTML(path, firstOrEmpty(size))
		},
	}
}

// CSSFuncMap returns the template functions for CSS rendering passes. The
// "icon" function takes an asset path and an optional size string and emits
// the declarations that render the icon inside a dedicated element.
func (m *Manager) CSSFuncMap() template.FuncMap {
	return template.FuncMap{
		"icon": func(path string, size ...string) (template.CSS, error) {
			return m.IconCSS(path, firstOrEmpty(size))
		},
	}
}

func firstOrEmpty(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

// IconHTML emits the HTML element for an icon: a span carrying the "icon"
// and "icon-<slug>" class tokens, styled by the shared stylesheet. An
// explicit size switches to inline style declarations, bypassing the sprite,
// since a shared sprite cannot serve arbitrarily resized variants.
func (m *Manager) IconHTML(path, size string) (template.HTML, error) {
	asset, err := m.Asset(path)
	if err != nil {
		return "", err
	}
	spec, err := ParseSizeSpec(size)
	if err != nil {
		return "", err
	}
	if spec.IsAuto() {
		return template.HTML(fmt.Sprintf(`<span class="icon icon-%s"></span>`, asset.Slug())), nil
	}
	return template.HTML(fmt.Sprintf(`<span class="icon icon-%s" style="%s"></span>`,
		asset.Slug(), m.singleFileCSS(asset, spec))), nil
}

// IconCSS emits the CSS declarations for an icon. In sprite mode the
// declarations point at the shared sprite files with a background-position
// offset from the rectangle table; otherwise (and always for explicitly
// resized icons) they point at the icon's own files, with the PNG as the
// primary background and the SVG layered over it so browsers without SVG
// support keep the PNG.
func (m *Manager) IconCSS(path, size string) (template.CSS, error) {
	asset, sprite, err := m.snapshot(path)
	if err != nil {
		return "", err
	}
	spec, err := ParseSizeSpec(size)
	if err != nil {
		return "", err
	}
	if m.config.SpriteMode && !isResized(asset, spec) {
		css, err := m.spriteCSS(asset, sprite)
		if err != nil {
			return "", err
		}
		return template.CSS(css), nil
	}
	return template.CSS(m.singleFileCSS(asset, spec)), nil
}

// isResized reports whether the spec asks for anything other than the
// asset's natural size.
func isResized(a *Asset, spec SizeSpec) bool {
	if spec.IsAuto() {
		return false
	}
	w, h := spec.Resolve(a.Width, a.Height)
	return w != a.Width || h != a.Height
}

// singleFileCSS builds the declarations referencing the asset's own SVG and
// PNG files. The trailing ", none" on background-image keeps the PNG layer
// as the fallback for browsers that cannot load SVG backgrounds.
func (m *Manager) singleFileCSS(a *Asset, spec SizeSpec) string {
	w, h := spec.Resolve(a.Width, a.Height)
	resized := isResized(a, spec)

	pngURL := m.pngURL(a)
	if resized {
		pngURL = m.resizedPNGURL(a, spec)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "width: %spx; height: %spx; ", formatPx(w), formatPx(h))
	fmt.Fprintf(&b, "background: url(%s) no-repeat; ", pngURL)
	fmt.Fprintf(&b, "background-image: url(%s), none;", m.svgURL(a))
	if resized {
		fmt.Fprintf(&b, " background-size: %spx %spx;", formatPx(w), formatPx(h))
	}
	return b.String()
}

// spriteCSS builds the declarations referencing the shared sprite files,
// with the icon's rectangle negated into a background-position offset. The
// asset and sprite must come from the same snapshot; an asset the sprite
// never packed is an error, never a zero rectangle.
func (m *Manager) spriteCSS(a *Asset, sprite *Sprite) (string, error) {
	rect, ok := sprite.Rect(a.Path)
	if !ok {
		return "", fmt.Errorf("%w: %q has no sprite rectangle", ErrAssetNotFound, a.Path)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "width: %dpx; height: %dpx; ", rect.W, rect.H)
	fmt.Fprintf(&b, "background: url(%s) no-repeat; ", m.spritePNGURLFor(sprite))
	fmt.Fprintf(&b, "background-image: url(%s), none; ", m.spriteSVGURLFor(sprite))
	fmt.Fprintf(&b, "background-position: %dpx %dpx;", -rect.X, -rect.Y)
	return b.String(), nil
}

// buildStylesheet emits the full generated stylesheet: the shared .icon rule
// plus one .icon-<slug> rule per asset. In sprite mode the shared sprite
// background is hoisted into the .icon rule and the per-icon rules carry
// only size and position. The order and sprite come from the caller's
// snapshot so the text always describes one refresh generation.
func (m *Manager) buildStylesheet(order []*Asset, sprite *Sprite) ([]byte, error) {
	var b strings.Builder
	if m.config.SpriteMode {
		fmt.Fprintf(&b, ".icon { display: inline-block; background: url(%s) no-repeat; background-image: url(%s), none; }\n",
			m.spritePNGURLFor(sprite), m.spriteSVGURLFor(sprite))
		for _, asset := range order {
			rect, _ := sprite.Rect(asset.Path)
			fmt.Fprintf(&b, ".icon-%s { width: %dpx; height: %dpx; background-position: %dpx %dpx; }\n",
				asset.Slug(), rect.W, rect.H, -rect.X, -rect.Y)
		}
	} else {
		b.WriteString(".icon { display: inline-block; }\n")
		for _, asset := range order {
			fmt.Fprintf(&b, ".icon-%s { %s }\n", asset.Slug(), m.singleFileCSS(asset, SizeSpec{}))
		}
	}
	return []byte(b.String()), nil
}
