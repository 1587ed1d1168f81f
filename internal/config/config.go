package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"xmastree/internal/logx"
)

type Config struct {
	ListenAddress   string       `yaml:"listen_address" toml:"listen_address"`
	HTTPPort        int          `yaml:"http_port" toml:"http_port"`
	LogLevel        string       `yaml:"log_level" toml:"log_level"`
	ShutdownTimeout string       `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	Assets          AssetsConfig `yaml:"assets" toml:"assets"`
	Cache           CacheConfig  `yaml:"cache" toml:"cache"`
	Snow            SnowConfig   `yaml:"snow" toml:"snow"`
	Upload          UploadConfig `yaml:"upload" toml:"upload"`
}

type AssetsConfig struct {
	Root           string `yaml:"root" toml:"root"`
	DefaultTexture string `yaml:"default_texture" toml:"default_texture"`
	Watch          bool   `yaml:"watch" toml:"watch"`
}

type CacheConfig struct {
	Name    string `yaml:"name" toml:"name"`
	Storage string `yaml:"storage" toml:"storage"`
	Dir     string `yaml:"dir,omitempty" toml:"dir,omitempty"`
}

type SnowConfig struct {
	Count int     `yaml:"count" toml:"count"`
	Seed  int64   `yaml:"seed" toml:"seed"`
	Size  float64 `yaml:"size" toml:"size"`
	Color string  `yaml:"color" toml:"color"`
}

type UploadConfig struct {
	MaxBytes  int64 `yaml:"max_bytes" toml:"max_bytes"`
	MaxPixels int64 `yaml:"max_pixels" toml:"max_pixels"`
}

const (
	StorageMemory = "memory"
	StorageDisk   = "disk"

	// DefaultMaxPixels bounds decoded textures to 8192x8192.
	DefaultMaxPixels = 8192 * 8192
)

// reservedPaths are served by the HTTP surface itself.
var reservedPaths = []string{"/", "/healthz", "/scene", "/placements", "/texture", "/ws"}

// Load reads a YAML configuration, or TOML when path ends in .toml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if isTOML(path) {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Validate fills unset fields with defaults and rejects invalid values.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		c.ListenAddress = "0.0.0.0"
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = 28080
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("http_port %d out of range", c.HTTPPort)
	}
	if _, err := logx.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level invalid: %w", err)
	}
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "5s"
	}
	if d, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("shutdown_timeout invalid: %w", err)
	} else if d <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}

	if c.Assets.Root == "" {
		c.Assets.Root = "./assets"
	}
	if c.Assets.DefaultTexture == "" {
		c.Assets.DefaultTexture = "/default_texture.png"
	}
	if !strings.HasPrefix(c.Assets.DefaultTexture, "/") {
		c.Assets.DefaultTexture = "/" + c.Assets.DefaultTexture
	}
	if err := validateAssetPath(c.Assets.DefaultTexture); err != nil {
		return err
	}

	if c.Cache.Name == "" {
		c.Cache.Name = "cache-v1"
	}
	if strings.ContainsAny(c.Cache.Name, `/\`) || c.Cache.Name == "." || c.Cache.Name == ".." {
		return fmt.Errorf("cache.name %q must be a plain name", c.Cache.Name)
	}
	switch c.Cache.Storage {
	case "":
		c.Cache.Storage = StorageMemory
	case StorageMemory:
	case StorageDisk:
		if c.Cache.Dir == "" {
			c.Cache.Dir = "./data/cache"
		}
	default:
		return fmt.Errorf("cache.storage must be either %q or %q", StorageMemory, StorageDisk)
	}

	if c.Snow.Count < 0 {
		return fmt.Errorf("snow.count cannot be negative")
	}
	if c.Snow.Size <= 0 {
		c.Snow.Size = 0.05
	}
	if c.Snow.Color == "" {
		c.Snow.Color = "#ffffff"
	}
	if !isValidHexColor(c.Snow.Color) {
		return fmt.Errorf("snow.color must be a hex RGB value")
	}

	if c.Upload.MaxBytes == 0 {
		c.Upload.MaxBytes = 16 << 20
	}
	if c.Upload.MaxBytes < 0 {
		return fmt.Errorf("upload.max_bytes cannot be negative")
	}
	if c.Upload.MaxPixels == 0 {
		c.Upload.MaxPixels = DefaultMaxPixels
	}
	if c.Upload.MaxPixels < 0 {
		return fmt.Errorf("upload.max_pixels cannot be negative")
	}
	return nil
}

// Shutdown returns the parsed shutdown timeout. Validate must have succeeded.
func (c *Config) Shutdown() time.Duration {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// validateAssetPath requires a clean URL path that stays inside the asset
// root and does not shadow a built-in route.
func validateAssetPath(p string) error {
	if strings.ContainsAny(p, " \t{}\\") {
		return fmt.Errorf("assets.default_texture %q must not contain spaces, braces or backslashes", p)
	}
	if path.Clean(p) != p {
		return fmt.Errorf("assets.default_texture %q must be a clean path inside assets.root", p)
	}
	for _, r := range reservedPaths {
		if p == r {
			return fmt.Errorf("assets.default_texture %q collides with a built-in route", p)
		}
	}
	if strings.HasPrefix(p, "/texture/") {
		return fmt.Errorf("assets.default_texture %q collides with the tile routes", p)
	}
	return nil
}

func isValidHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, ch := range s[1:] {
		switch {
		case ch >= '0' && ch <= '9':
		case ch >= 'a' && ch <= 'f':
		case ch >= 'A' && ch <= 'F':
		default:
			return false
		}
	}
	return true
}
