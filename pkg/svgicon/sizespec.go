package svgicon

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	whRegex      = regexp.MustCompile(`^(\d+(?:\.\d+)?)x(\d+(?:\.\d+)?)$`)
	percentRegex = regexp.MustCompile(`^(\d+(?:\.\d+)?)%$`)
)

type sizeKind int

const (
	sizeAuto sizeKind = iota
	sizeAbsolute
	sizePercent
)

// SizeSpec is a parsed target-size specification. The mini-language has three
// forms: "auto" (or the empty string) keeps an image's intrinsic size, "WxH"
// requests literal pixel dimensions regardless of aspect ratio, and "P%"
// scales both axes by P/100, preserving aspect ratio.
type SizeSpec struct {
	kind    sizeKind
	w, h    float64
	percent float64
}

// ParseSizeSpec parses a size string into a SizeSpec. It returns
// ErrInvalidSizeSpec for any string outside the grammar and for
// specifications with non-positive dimensions.
func ParseSizeSpec(s string) (SizeSpec, error) {
	if s == "" || s == "auto" {
		return SizeSpec{kind: sizeAuto}, nil
	}
	if m := whRegex.FindStringSubmatch(s); m != nil {
		w, _ := strconv.ParseFloat(m[1], 64)
		h, _ := strconv.ParseFloat(m[2], 64)
		if w <= 0 || h <= 0 {
			return SizeSpec{}, fmt.Errorf("%w: %q", ErrInvalidSizeSpec, s)
		}
		return SizeSpec{kind: sizeAbsolute, w: w, h: h}, nil
	}
	if m := percentRegex.FindStringSubmatch(s); m != nil {
		p, _ := strconv.ParseFloat(m[1], 64)
		if p <= 0 {
			return SizeSpec{}, fmt.Errorf("%w: %q", ErrInvalidSizeSpec, s)
		}
		return SizeSpec{kind: sizePercent, percent: p}, nil
	}
	return SizeSpec{}, fmt.Errorf("%w: %q", ErrInvalidSizeSpec, s)
}

// Resolve maps the spec to concrete pixel dimensions, given an image's
// intrinsic width and height. Resolution is pure: the same spec and
// intrinsic size always produce the same result.
func (s SizeSpec) Resolve(width, height float64) (float64, float64) {
	switch s.kind {
	case sizeAbsolute:
		return s.w, s.h
	case sizePercent:
		return width * s.percent / 100, height * s.percent / 100
	default:
		return width, height
	}
}

// IsAuto reports whether the spec keeps the intrinsic size unchanged.
func (s SizeSpec) IsAuto() bool {
	return s.kind == sizeAuto
}

// String returns the canonical text form of the spec, suitable for use in
// URLs and cache keys.
func (s SizeSpec) String() string {
	switch s.kind {
	case sizeAbsolute:
		return formatPx(s.w) + "x" + formatPx(s.h)
	case sizePercent:
		return formatPx(s.percent) + "%"
	default:
		return "auto"
	}
}

// formatPx renders a pixel value without a trailing ".0" for whole numbers.
func formatPx(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
