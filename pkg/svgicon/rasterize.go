package svgicon

import (
	"bytes"
	"image"
	"image/png"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// RenderPNG rasterizes an SVG document into PNG bytes at the given pixel
// size. It performs no disk I/O; callers wanting caching go through the
// Manager. A malformed document or an engine failure surfaces as a
// *RenderError.
func RenderPNG(svg []byte, width, height int) ([]byte, error) {
	img, err := renderImage(svg, width, height)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err = png.Encode(&buf, img); err != nil {
		return nil, &RenderError{Err: err}
	}
	return buf.Bytes(), nil
}

// renderImage rasterizes an SVG document onto a transparent RGBA canvas of
// the given size.
func renderImage(svg []byte, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, &RenderError{Err: ErrInvalidSizeSpec}
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svg))
	if err != nil {
		return nil, &RenderError{Err: err}
	}
	icon.SetTarget(0, 0, float64(width), float64(height))

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	scanner := rasterx.NewScannerGV(width, height, img, img.Bounds())
	dasher := rasterx.NewDasher(width, height, scanner)
	icon.Draw(dasher, 1.0)
	return img, nil
}
