package svgicon

import (
	"bytes"
	"errors"
	"html/template"
	"strings"
	"testing"
)

// TestIconHTML covers the HTML-context function: a bare wrapper element by
// default, inline declarations when an explicit size bypasses the shared
// stylesheet.
func TestIconHTML(t *testing.T) {
	m := setupTestManager(t, false)

	t.Run("Default", func(t *testing.T) {
		html, err := m.IconHTML("arrow", "")
		if err != nil {
			t.Fatalf("IconHTML failed: %v", err)
		}
		if html != `<span class="icon icon-arrow"></span>` {
			t.Errorf("unexpected markup: %s", html)
		}
	})

	t.Run("ExplicitSize", func(t *testing.T) {
		html, err := m.IconHTML("arrow", "20x20")
		if err != nil {
			t.Fatalf("IconHTML failed: %v", err)
		}
		out := string(html)
		if !strings.Contains(out, `class="icon icon-arrow"`) {
			t.Errorf("markup is missing the class tokens: %s", out)
		}
		if !strings.Contains(out, `style="`) || !strings.Contains(out, "width: 20px; height: 20px;") {
			t.Errorf("explicit size did not produce inline declarations: %s", out)
		}
	})

	t.Run("Errors", func(t *testing.T) {
		if _, err := m.IconHTML("missing", ""); err == nil {
			t.Error("IconHTML accepted an unknown asset")
		}
		if _, err := m.IconHTML("arrow", "banana"); err == nil {
			t.Error("IconHTML accepted a malformed size")
		}
	})
}

// TestIconCSS_SingleFile checks the per-icon declarations without sprite
// mode: natural size, PNG as the primary background and the SVG layered
// above it with a ", none" fallback.
func TestIconCSS_SingleFile(t *testing.T) {
	m := setupTestManager(t, false)

	css, err := m.IconCSS("arrow", "")
	if err != nil {
		t.Fatalf("IconCSS failed: %v", err)
	}
	out := string(css)
	for _, fragment := range []string{
		"width: 10px; height: 20px;",
		"background: url(/svg/arrow.png?v=",
		") no-repeat;",
		"background-image: url(/svg/arrow.svg?v=",
		", none;",
	} {
		if !strings.Contains(out, fragment) {
			t.Errorf("declarations missing %q:\n%s", fragment, out)
		}
	}
	if strings.Contains(out, "background-size") {
		t.Errorf("natural size must not emit background-size:\n%s", out)
	}
}

// TestIconCSS_Resized checks the explicit-size declarations: resized
// dimensions, a size-segment PNG URL, and a background-size rule.
func TestIconCSS_Resized(t *testing.T) {
	m := setupTestManager(t, false)

	css, err := m.IconCSS("arrow", "20x20")
	if err != nil {
		t.Fatalf("IconCSS failed: %v", err)
	}
	out := string(css)
	for _, fragment := range []string{
		"width: 20px; height: 20px;",
		"background: url(/svg/20x20/arrow.png?v=",
		"background-size: 20px 20px;",
	} {
		if !strings.Contains(out, fragment) {
			t.Errorf("declarations missing %q:\n%s", fragment, out)
		}
	}
}

// TestIconCSS_Sprite checks sprite-mode declarations: shared sprite URLs
// and a negated background-position from the rectangle table, with resized
// icons excluded from sprite positioning.
func TestIconCSS_Sprite(t *testing.T) {
	m := setupTestManager(t, true)

	t.Run("Positioned", func(t *testing.T) {
		css, err := m.IconCSS("dot", "")
		if err != nil {
			t.Fatalf("IconCSS failed: %v", err)
		}
		out := string(css)
		for _, fragment := range []string{
			"background: url(/svg/combined.png?v=",
			"background-image: url(/svg/combined.svg?v=",
			"background-position: ",
		} {
			if !strings.Contains(out, fragment) {
				t.Errorf("declarations missing %q:\n%s", fragment, out)
			}
		}
	})

	t.Run("ResizedBypassesSprite", func(t *testing.T) {
		css, err := m.IconCSS("arrow", "20x20")
		if err != nil {
			t.Fatalf("IconCSS failed: %v", err)
		}
		out := string(css)
		if strings.Contains(out, "combined.png") || strings.Contains(out, "background-position") {
			t.Errorf("resized icon must not use the sprite:\n%s", out)
		}
		if !strings.Contains(out, "background-size: 20px 20px;") {
			t.Errorf("resized icon is missing background-size:\n%s", out)
		}
	})

	t.Run("NaturalSizeSpecUsesSprite", func(t *testing.T) {
		// An explicit size equal to the natural size is not a resize.
		css, err := m.IconCSS("arrow", "10x20")
		if err != nil {
			t.Fatalf("IconCSS failed: %v", err)
		}
		if !strings.Contains(string(css), "background-position: ") {
			t.Errorf("natural-size spec should still use the sprite:\n%s", css)
		}
	})
}

// TestIconCSS_SpritePosition pins the exact offsets for the known layout.
func TestIconCSS_SpritePosition(t *testing.T) {
	m := setupTestManager(t, true)

	// Sorted packing order with MaxSpriteWidth 20: arrow (0,0,10x20),
	// box (10,0,8x8), dot (0,20,4x4).
	cases := map[string]string{
		"arrow": "background-position: 0px 0px;",
		"box":   "background-position: -10px 0px;",
		"dot":   "background-position: 0px -20px;",
	}
	for path, want := range cases {
		css, err := m.IconCSS(path, "")
		if err != nil {
			t.Fatalf("IconCSS(%q) failed: %v", path, err)
		}
		if !strings.Contains(string(css), want) {
			t.Errorf("IconCSS(%q) missing %q:\n%s", path, want, css)
		}
	}
}

// TestIconCSS_SpriteRectMiss covers an asset the sprite never packed: the
// declarations must fail rather than silently emit a zero rectangle.
func TestIconCSS_SpriteRectMiss(t *testing.T) {
	m := setupTestManager(t, true)

	stray, err := NewAsset("stray.svg", []byte(dotSVG))
	if err != nil {
		t.Fatalf("NewAsset failed: %v", err)
	}
	if _, err = m.spriteCSS(stray, m.Sprite()); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("expected ErrAssetNotFound for an unpacked asset, got %v", err)
	}
}

// TestFuncMaps executes the registered functions through actual templates,
// the way the surrounding framework invokes them.
func TestFuncMaps(t *testing.T) {
	m := setupTestManager(t, false)

	t.Run("HTML", func(t *testing.T) {
		tmpl := template.Must(template.New("page").Funcs(m.FuncMap()).Parse(
			`<nav>{{icon "arrow"}}{{icon "dot" "8x8"}}</nav>`))
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, nil); err != nil {
			t.Fatalf("template execution failed: %v", err)
		}
		out := buf.String()
		if !strings.Contains(out, `<span class="icon icon-arrow"></span>`) {
			t.Errorf("missing default icon element: %s", out)
		}
		if !strings.Contains(out, `icon-dot`) || !strings.Contains(out, "width: 8px; height: 8px;") {
			t.Errorf("missing sized icon element: %s", out)
		}
	})

	t.Run("CSS", func(t *testing.T) {
		tmpl := template.Must(template.New("sheet").Funcs(m.CSSFuncMap()).Parse(
			`.icon-arrow { {{icon "arrow"}} }`))
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, nil); err != nil {
			t.Fatalf("template execution failed: %v", err)
		}
		if !strings.Contains(buf.String(), "width: 10px; height: 20px;") {
			t.Errorf("CSS pass did not emit declarations: %s", buf.String())
		}
	})

	t.Run("UnknownAssetFailsExecution", func(t *testing.T) {
		tmpl := template.Must(template.New("page").Funcs(m.FuncMap()).Parse(`{{icon "missing"}}`))
		if err := tmpl.Execute(&bytes.Buffer{}, nil); err == nil {
			t.Error("expected execution to fail for an unknown asset")
		}
	})
}
