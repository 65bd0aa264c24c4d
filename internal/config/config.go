package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/sw33tLie/docdiff/pkg/raster"
	"github.com/sw33tLie/docdiff/pkg/tracker"
)

// Location is one tracked triple, keyed the way the plugin config names them.
type Location struct {
	CurrentPath string `mapstructure:"current_path"`
	LastPath    string `mapstructure:"last_path"`
	DiffPath    string `mapstructure:"diff_path"`
}

// Tracker converts the location for the tracker package.
func (l Location) Tracker() tracker.Location {
	return tracker.Location{Current: l.CurrentPath, Baseline: l.LastPath, Output: l.DiffPath}
}

type PDFium struct {
	WASMPath        string        `mapstructure:"wasm_path"`
	Instances       int           `mapstructure:"instances"`
	InstanceTimeout time.Duration `mapstructure:"instance_timeout"`
}

type Render struct {
	TargetWidth int `mapstructure:"target_width"`
	MaxHeight   int `mapstructure:"max_height"`
	Workers     int `mapstructure:"workers"`
}

// Raster returns the rasterizer geometry. Landscape pages are always turned
// upright.
func (r Render) Raster() raster.Config {
	return raster.Config{TargetWidth: r.TargetWidth, MaxHeight: r.MaxHeight, RotateLandscape: true}
}

type Server struct {
	Listen         string `mapstructure:"listen"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type DB struct {
	Path string `mapstructure:"path"`
}

// Config holds the application-level configuration.
type Config struct {
	Locations    []Location    `mapstructure:"locations"`
	PDFium       PDFium        `mapstructure:"pdfium"`
	Render       Render        `mapstructure:"render"`
	Concurrency  int           `mapstructure:"concurrency"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	KeyPath      string        `mapstructure:"key_path"`
	Server       Server        `mapstructure:"server"`
	DB           DB            `mapstructure:"db"`
}

// SetDefaults registers every key so environment variables can override
// them too.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("locations", []map[string]string{})
	v.SetDefault("pdfium.wasm_path", "")
	v.SetDefault("pdfium.instances", 0)
	v.SetDefault("pdfium.instance_timeout", 30*time.Second)
	v.SetDefault("render.target_width", 500)
	v.SetDefault("render.max_height", 10000)
	v.SetDefault("render.workers", 0)
	v.SetDefault("concurrency", 2)
	v.SetDefault("poll_interval", time.Minute)
	v.SetDefault("key_path", "~/.docdiff/key.pem")
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.username", "")
	v.SetDefault("server.password", "")
	v.SetDefault("server.max_connections", 64)
	v.SetDefault("db.path", "")
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	keyPath, err := homedir.Expand(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("invalid key_path: %w", err)
	}
	cfg.KeyPath = keyPath

	if cfg.DB.Path, err = homedir.Expand(cfg.DB.Path); err != nil {
		return nil, fmt.Errorf("invalid db.path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every location is made of three distinct absolute
// paths.
func (c *Config) Validate() error {
	var errs []error
	for i, loc := range c.Locations {
		paths := map[string]string{
			"current_path": loc.CurrentPath,
			"last_path":    loc.LastPath,
			"diff_path":    loc.DiffPath,
		}
		for _, key := range []string{"current_path", "last_path", "diff_path"} {
			p := paths[key]
			if p == "" {
				errs = append(errs, fmt.Errorf("locations[%d].%s is required", i, key))
			} else if !filepath.IsAbs(p) {
				errs = append(errs, fmt.Errorf("locations[%d].%s must be an absolute path, got %q", i, key, p))
			}
		}
		if loc.CurrentPath != "" && (loc.CurrentPath == loc.LastPath || loc.CurrentPath == loc.DiffPath || loc.LastPath == loc.DiffPath) {
			errs = append(errs, fmt.Errorf("locations[%d] uses the same directory twice", i))
		}
	}
	if c.Concurrency < 0 {
		errs = append(errs, errors.New("concurrency must not be negative"))
	}
	return errors.Join(errs...)
}

// DiffDirs returns the output directory of every location.
func (c *Config) DiffDirs() []string {
	dirs := make([]string, 0, len(c.Locations))
	for _, loc := range c.Locations {
		dirs = append(dirs, loc.DiffPath)
	}
	return dirs
}
