package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Default returns a configuration populated with sensible defaults so that
// the tree can be served without any prior configuration.
func Default() Config {
	return Config{
		ListenAddress:   "0.0.0.0",
		HTTPPort:        28080,
		LogLevel:        "info",
		ShutdownTimeout: "5s",
		Assets: AssetsConfig{
			Root:           "./assets",
			DefaultTexture: "/default_texture.png",
			Watch:          true,
		},
		Cache: CacheConfig{
			Name:    "cache-v1",
			Storage: StorageDisk,
			Dir:     "./data/cache",
		},
		Snow: SnowConfig{
			Count: 400,
			Seed:  1225,
			Size:  0.05,
			Color: "#ffffff",
		},
		Upload: UploadConfig{
			MaxBytes:  16 << 20,
			MaxPixels: DefaultMaxPixels,
		},
	}
}

// WriteDefault writes the default configuration to the provided path, as
// TOML when the path ends in .toml and YAML otherwise.
func WriteDefault(path string) error {
	cfg := Default()

	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(&cfg)
	} else {
		data, err = yaml.Marshal(&cfg)
	}
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}

	return nil
}
