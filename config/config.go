// Package config loads config.yaml and watches it for changes.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"penguinlab/ml"
	"penguinlab/penguins"
)

// EnvDatasetURL overrides Dataset.URL when set.
const EnvDatasetURL = "PENGUINLAB_DATASET_URL"

// Config is the contents of config.yaml.
type Config struct {
	Dataset struct {
		URL      string        `yaml:"url"`
		Timeout  time.Duration `yaml:"timeout"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"dataset"`
	Model struct {
		// Defaults serves the easy and intermediate levels.
		Defaults ml.Hyperparameters `yaml:"defaults"`
		// Advanced is the starting point of the advanced level before user overrides.
		Advanced  ml.Hyperparameters `yaml:"advanced"`
		CacheSize int                `yaml:"cache_size"`
	} `yaml:"model"`
	Http struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	} `yaml:"http"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Dataset.URL = penguins.DefaultDatasetURL
	cfg.Dataset.Timeout = 15 * time.Second
	cfg.Model.Defaults = ml.DefaultHyperparameters()
	cfg.Model.Advanced = ml.Hyperparameters{TreeCount: 200, MaxFeatures: 5}
	cfg.Http.Port = 8080
	cfg.Http.Timeout = 30 * time.Second
	cfg.Http.AllowedOrigins = []string{"*"}
	cfg.Http.MaxBodyBytes = 1 << 20
	cfg.Log.Level = "info"
	cfg.Log.MaxSizeMB = 50
	cfg.Log.MaxBackups = 3
	cfg.Log.MaxAgeDays = 7
	return cfg
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if url := os.Getenv(EnvDatasetURL); url != "" {
		cfg.Dataset.URL = url
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Dataset.URL == "" {
		return errors.New("dataset.url is required")
	}
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.Http.Port)
	}
	for _, trees := range []int{c.Model.Defaults.TreeCount, c.Model.Advanced.TreeCount} {
		if trees < 0 || trees > ml.MaxTreeCount {
			return fmt.Errorf("model tree_count must be in [0, %d], got %d", ml.MaxTreeCount, trees)
		}
	}
	if c.Model.CacheSize < 0 {
		return errors.New("model.cache_size must not be negative")
	}
	return nil
}
