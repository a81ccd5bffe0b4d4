package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	envPrefix  = "MARKETCTL"
	configName = "marketctl"
	appDir     = ".marketctl"
)

// Load reads the configuration file (explicit path, or marketctl.yaml/.yml in
// the working directory or ~/.marketctl), applies MARKETCTL_* environment
// overrides on top of the defaults and validates the result.
func Load(configFile string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// MARKETCTL_API_BASE_URL overrides api.base_url
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg mainConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration without reading files or the
// environment.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg mainConfig
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks the configuration against its struct tags.
func (c *mainConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	return v.Struct(c)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:3000/api")
	v.SetDefault("api.timeout", "15s")
	v.SetDefault("api.token_expires_in", "1y")
	v.SetDefault("session.otp_length", 6)
	v.SetDefault("session.otp_resend_interval", "60s")
	v.SetDefault("cache.stale_time", "5m")
	v.SetDefault("cache.retry_delay", "500ms")
	v.SetDefault("pager.page_size", 10)
	v.SetDefault("pager.search_debounce", "400ms")
	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.path", defaultStoragePath())
	v.SetDefault("storage.secret", "")
	v.SetDefault("log.level", "info")
}

func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(appDir, "tokens.json")
	}
	return filepath.Join(home, appDir, "tokens.json")
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	return findConfigFileInPaths([]string{".", filepath.Join(home, appDir)})
}

func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, configName+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
