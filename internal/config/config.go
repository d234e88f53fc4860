package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"skymatch/pkg/skymatch"
)

// Config holds all user-facing configuration for skymatch.
type Config struct {
	Extract    ExtractConfig    `toml:"extract"`
	Match      MatchConfig      `toml:"match"`
	Logging    LoggingConfig    `toml:"logging"`
	Server     ServerConfig     `toml:"server"`
	Watch      WatchConfig      `toml:"watch"`
	Journal    JournalConfig    `toml:"journal"`
	Processing ProcessingConfig `toml:"processing"`
}

type ExtractConfig struct {
	Threshold      int     `toml:"threshold"`
	MinArea        int     `toml:"min_area"`
	MaxArea        int     `toml:"max_area"`
	ClaheClipLimit float64 `toml:"clahe_clip_limit"`
	ClaheTileGrid  int     `toml:"clahe_tile_grid"`
	OpenKernelSize int     `toml:"open_kernel_size"`
}

type MatchConfig struct {
	Database    string  `toml:"database"`
	Descriptor  string  `toml:"descriptor"`
	Tolerance   float64 `toml:"tolerance"`
	Precision   int     `toml:"precision"`
	MinPoints   int     `toml:"min_points"`
	DedupRadius float64 `toml:"dedup_radius"`
}

type LoggingConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	FileOutput bool   `toml:"file_output"`
	LogDir     string `toml:"log_dir"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	// MaxUploadMB caps request bodies on the identify endpoints.
	MaxUploadMB int64 `toml:"max_upload_mb"`
}

type WatchConfig struct {
	Dir        string   `toml:"dir"`
	Extensions []string `toml:"extensions"`
	OverlayDir string   `toml:"overlay_dir"`
}

type JournalConfig struct {
	Path string `toml:"path"`
}

type ProcessingConfig struct {
	Parallel int `toml:"parallel"`
}

// Defaults returns a Config populated with built-in default values.
func Defaults() *Config {
	ep := skymatch.NewExtractorParams()
	mp := skymatch.NewMatcherParams()
	return &Config{
		Extract: ExtractConfig{
			Threshold:      ep.Threshold,
			MinArea:        ep.MinArea,
			MaxArea:        ep.MaxArea,
			ClaheClipLimit: ep.ClaheClipLimit,
			ClaheTileGrid:  ep.ClaheTileGrid,
			OpenKernelSize: ep.OpenKernelSize,
		},
		Match: MatchConfig{
			Database:    "constellation_database.json",
			Descriptor:  mp.Descriptor.String(),
			Tolerance:   mp.Tolerance,
			Precision:   mp.Precision,
			MinPoints:   mp.MinPoints,
			DedupRadius: mp.DedupRadius,
		},
		Logging:    LoggingConfig{Level: "info", Format: "text", LogDir: "logs"},
		Server:     ServerConfig{Addr: "localhost:8080", MaxUploadMB: 32},
		Watch:      WatchConfig{Extensions: []string{".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp", ".gif", ".webp", ".fits", ".fit"}},
		Journal:    JournalConfig{Path: "skymatch.db"},
		Processing: ProcessingConfig{Parallel: 4},
	}
}

// Load reads a TOML config file. If the file does not exist, built-in
// defaults are returned without error. Keys absent from the file keep their
// default values.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	// Angle descriptors are in degrees; the ratio defaults do not carry over.
	if cfg.Match.Descriptor == skymatch.DescriptorAngle.String() {
		ap := skymatch.NewAngleMatcherParams()
		if !md.IsDefined("match", "tolerance") {
			cfg.Match.Tolerance = ap.Tolerance
		}
		if !md.IsDefined("match", "precision") {
			cfg.Match.Precision = ap.Precision
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section that maps onto core parameters.
func (c *Config) Validate() error {
	if err := c.ExtractorParams().Validate(); err != nil {
		return fmt.Errorf("[extract]: %w", err)
	}
	mp, err := c.MatcherParams()
	if err != nil {
		return fmt.Errorf("[match]: %w", err)
	}
	if err := mp.Validate(); err != nil {
		return fmt.Errorf("[match]: %w", err)
	}
	if c.Processing.Parallel < 1 {
		return fmt.Errorf("[processing]: parallel must be positive, got %d", c.Processing.Parallel)
	}
	return nil
}

// ExtractorParams converts the [extract] section.
func (c *Config) ExtractorParams() *skymatch.ExtractorParams {
	return &skymatch.ExtractorParams{
		Threshold:      c.Extract.Threshold,
		MinArea:        c.Extract.MinArea,
		MaxArea:        c.Extract.MaxArea,
		ClaheClipLimit: c.Extract.ClaheClipLimit,
		ClaheTileGrid:  c.Extract.ClaheTileGrid,
		OpenKernelSize: c.Extract.OpenKernelSize,
	}
}

// MatcherParams converts the [match] section.
func (c *Config) MatcherParams() (*skymatch.MatcherParams, error) {
	kind, err := skymatch.ParseDescriptorKind(c.Match.Descriptor)
	if err != nil {
		return nil, err
	}
	return &skymatch.MatcherParams{
		Descriptor:  kind,
		Tolerance:   c.Match.Tolerance,
		Precision:   c.Match.Precision,
		MinPoints:   c.Match.MinPoints,
		DedupRadius: c.Match.DedupRadius,
	}, nil
}
