package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds tabkeeper settings.
type Config struct {
	Live    LiveConfig `yaml:"live"`
	DB      DBConfig   `yaml:"db"`
	Log     LogConfig  `yaml:"log"`
	Locale  string     `yaml:"locale"`
	Profile string     `yaml:"profile"`
}

type LiveConfig struct {
	Port int `yaml:"port"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns the built-in settings.
func Default() Config {
	dataDir := DataDir()
	return Config{
		Live:   LiveConfig{Port: 19191},
		DB:     DBConfig{Path: filepath.Join(dataDir, "tabkeeper.db")},
		Log:    LogConfig{Dir: dataDir},
		Locale: "en",
	}
}

// DataDir is ~/.local/share/tabkeeper.
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "tabkeeper")
}

// Load builds the configuration from defaults, then the YAML file at path
// (or TABKEEPER_CONFIG when path is empty), then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("TABKEEPER_CONFIG")
	}
	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if portStr := os.Getenv("TABKEEPER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TABKEEPER_PORT: %w", err)
		}
		cfg.Live.Port = port
	}
	if dbPath := os.Getenv("TABKEEPER_DB"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if logDir := os.Getenv("TABKEEPER_LOG_DIR"); logDir != "" {
		cfg.Log.Dir = logDir
	}
	if lang := os.Getenv("TABKEEPER_LANG"); lang != "" {
		cfg.Locale = lang
	}
	if profile := os.Getenv("TABKEEPER_PROFILE"); profile != "" {
		cfg.Profile = profile
	}

	if cfg.Live.Port <= 0 || cfg.Live.Port > 65535 {
		return Config{}, fmt.Errorf("invalid live.port %d", cfg.Live.Port)
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
