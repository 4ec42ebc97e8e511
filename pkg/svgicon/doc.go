/*
Package svgicon manages a set of SVG icon assets for web delivery.

It parses the "auto" / "WxH" / "P%" size mini-language, rasterizes icons to
PNG through a CPU rasterizer, packs the full asset set into a combined
sprite (one raster image and one vector document plus a per-icon rectangle
table), and emits the HTML snippets and CSS declarations that reference the
results. Rendered artifacts are cached on disk through the rendercache
package and invalidated by content fingerprint, so editing a source SVG is
picked up without any manual cache flush.

The icon template functions are exposed as html/template FuncMaps for the
HTML and CSS rendering passes; see Manager.FuncMap and Manager.CSSFuncMap.
*/
package svgicon
