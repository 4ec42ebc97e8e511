package svgicon

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSizeSpec is returned when a size string does not match the
	// "auto", "WxH" or "P%" grammar, or resolves to non-positive dimensions.
	ErrInvalidSizeSpec = errors.New("invalid size spec")

	// ErrAssetNotFound is returned when a requested path is not part of the
	// configured asset set.
	ErrAssetNotFound = errors.New("asset not found")
)

// RenderError wraps a failure of the underlying rasterization engine, such as
// a malformed SVG document or a PNG encoding failure. Renders are
// deterministic, so a RenderError is never retried.
type RenderError struct {
	Path string
	Err  error
}

func (e *RenderError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("render failed: %v", e.Err)
	}
	return fmt.Sprintf("render failed for %q: %v", e.Path, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}
