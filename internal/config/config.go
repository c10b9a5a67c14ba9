// Package config resolves nx settings from ~/.neoxalle/config.toml and NX_*
// environment variables. Command-line flags override both.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "toml"
	configDir  = ".neoxalle"

	PresetsPathKey = "presets.path"
	HistoryPathKey = "history.path"
	LogLevelKey    = "log.level"

	defaultPresetsFile = "presets.toml"
	defaultHistoryFile = "history.db"
	defaultLogLevel    = "warn"
)

// Env holds settings that only come from the environment.
type Env struct {
	HubURL         string        `env:"NX_HUB_URL"`
	HubBase64      bool          `env:"NX_HUB_BASE64" envDefault:"true"`
	LogLevel       string        `env:"NX_LOG_LEVEL"`
	Simulate       bool          `env:"NX_SIMULATE"`
	SimPods        int           `env:"NX_SIM_PODS" envDefault:"2"`
	ConnectTimeout time.Duration `env:"NX_CONNECT_TIMEOUT" envDefault:"10s"`
}

func ParseEnv() (Env, error) {
	var cfg Env
	if err := env.Parse(&cfg); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Load prepares cfg with the nx defaults and merges the config file if one
// exists. A nil cfg gets a fresh viper instance.
func Load(cfg *viper.Viper) (*viper.Viper, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(dir)
	cfg.SetDefault(PresetsPathKey, filepath.Join(dir, defaultPresetsFile))
	cfg.SetDefault(HistoryPathKey, filepath.Join(dir, defaultHistoryFile))
	cfg.SetDefault(LogLevelKey, defaultLogLevel)

	if err := cfg.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return cfg, nil
}

// Dir is the directory holding the config file and the default stores.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(homeDir, configDir), nil
}

// Path reads key from cfg as a clean absolute path.
func Path(cfg *viper.Viper, key string) (string, error) {
	raw := cfg.GetString(key)
	if raw == "" {
		return "", fmt.Errorf("%s is empty", key)
	}

	absPath, err := filepath.Abs(raw)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", key, err)
	}
	return filepath.Clean(absPath), nil
}
