package svgicon

// Config holds all configuration options for the icon manager. The manager
// treats its config as immutable; changing the asset layout means building a
// new manager.
type Config struct {
	// RootDir is the root folder containing all source SVG files.
	RootDir string `json:"root_dir"`

	// Paths enumerates the asset paths, relative to RootDir, in the order
	// they should be packed into the sprite. When empty, RootDir is walked
	// for *.svg files and the results are used in sorted order.
	Paths []string `json:"paths"`

	// URLPrefix is prepended to every generated asset URL.
	URLPrefix string `json:"url_prefix"`

	// SpriteMode controls whether generated CSS points icons at the shared
	// sprite files instead of one pair of files per icon.
	SpriteMode bool `json:"sprite_mode"`

	// MaxSpriteWidth is the maximum sprite canvas width in pixels. Icons
	// that would exceed it start a new packing row.
	MaxSpriteWidth int `json:"max_sprite_width"`
}

// DefaultConfig returns a Config with sensible default values. SpriteMode is
// off by default, so every icon is served as its own pair of files.
func DefaultConfig() *Config {
	return &Config{
		RootDir:        "./data/svg",
		Paths:          []string{},
		URLPrefix:      "/svg",
		SpriteMode:     false,
		MaxSpriteWidth: 1024,
	}
}
