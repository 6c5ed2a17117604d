// Package config loads CLI configuration from file, environment and
// defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	configData Config
	v          *viper.Viper
)

// Config holds all configuration settings.
type Config struct {
	// State holds the engine's durable files
	State struct {
		Dir        string
		PluginsDir string
	}
	// Source is the plugin metadata/script provider
	Source struct {
		Kind    string // "local" or "http"
		Locator string // source directory or base URL
	}
	// Run configuration
	Run struct {
		Interpreter string
	}
	// Logging configuration
	Log struct {
		Level  string
		Format string
	}
}

// Initialize sets up the configuration system.
func Initialize(configFile string) error {
	v = viper.New()

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to resolve home directory: %w", err)
	}
	baseDir := filepath.Join(home, ".pf")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(baseDir)
	}

	setDefaults(baseDir)

	v.SetEnvPrefix("PF")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(&configData); err != nil {
		return fmt.Errorf("unable to decode into config struct: %w", err)
	}

	return nil
}

// setDefaults sets default values for all configuration options.
func setDefaults(baseDir string) {
	v.SetDefault("state.dir", baseDir)
	v.SetDefault("state.pluginsdir", filepath.Join(baseDir, "plugins"))

	v.SetDefault("source.kind", "local")
	v.SetDefault("source.locator", filepath.Join(baseDir, "sample-source"))

	v.SetDefault("run.interpreter", "python3")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "human")
}

// Get returns the current configuration.
func Get() *Config {
	return &configData
}
