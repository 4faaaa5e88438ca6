package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DirName is the per-folder data directory holding config.yaml, the
// database and the processed-files manifest.
const DirName = ".projectlog"

// EnvPrefix prefixes every environment override, e.g. PLOG_MODEL_PROVIDER.
const EnvPrefix = "PLOG"

var v *viper.Viper

// Initialize sets up the viper configuration singleton
// Should be called once at application startup
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	// Precedence: .projectlog/config.yaml (walking up from CWD) > ~/.config/plog/config.yaml
	configFileSet := false
	if path := FindProjectConfig(); path != "" {
		v.SetConfigFile(path)
		configFileSet = true
	}
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "plog", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// Environment variables take precedence over the config file.
	// PLOG_MODEL_BASE_URL maps to "model.base-url".
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

var defaults = map[string]any{
	"db": "",

	"model.provider":        "ollama",
	"model.name":            "",
	"model.base-url":        "",
	"model.api-key":         "",
	"model.timeout":         "120s",
	"model.max-tokens":      2048,
	"model.max-attempts":    3,
	"model.initial-backoff": "1s",
	"model.max-backoff":     "30s",

	"scan.window":      4000,
	"scan.overlap":     400,
	"scan.temperature": 0.1,

	"resolve.context-budget": 12000,
	"resolve.snippet-budget": 6000,
	"resolve.shortlist-size": 5,
	"resolve.min-score":      0.3,
	"resolve.temperature":    0.1,

	"comprehensive.window":  8000,
	"comprehensive.overlap": 800,

	"batch.workers": 2,

	"audit.enabled": true,
	"audit.path":    "",
	"audit.buffer":  256,

	"log.file":        "",
	"log.level":       "info",
	"log.max-size":    10,
	"log.max-backups": 3,
	"log.max-age":     28,

	"categorize.schema": "",
	"ingest.extensions": []string{},
	"watch.debounce":    "2s",
}

// Keys returns every known configuration key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FindProjectConfig walks up from the working directory looking for
// .projectlog/config.yaml and returns its path, or "".
func FindProjectConfig() string {
	dir := FindDataDir()
	if dir == "" {
		return ""
	}
	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// FindDataDir walks up from the working directory and returns the first
// .projectlog directory found, or "".
func FindDataDir() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		if dir == filepath.Dir(dir) {
			return ""
		}
	}
}

// DataDir returns the data directory in use: the one found by walking up,
// or .projectlog under the working directory.
func DataDir() string {
	if dir := FindDataDir(); dir != "" {
		return dir
	}
	cwd, err := os.Getwd()
	if err != nil {
		return DirName
	}
	return filepath.Join(cwd, DirName)
}

// DatabasePath returns the configured database path, defaulting to
// plog.db inside the data directory.
func DatabasePath() string {
	if db := GetString("db"); db != "" {
		return db
	}
	return filepath.Join(DataDir(), "plog.db")
}

// ConfigFileUsed returns the config file that was loaded, or "".
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault    ConfigSource = "default"
	SourceConfigFile ConfigSource = "config_file"
	SourceEnvVar     ConfigSource = "env_var"
	SourceFlag       ConfigSource = "flag"
)

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}

// GetValueSource returns the source of a configuration value.
// Priority (highest to lowest): env var > config file > default
// Flag overrides are handled by the CLI since viper doesn't know about cobra flags.
func GetValueSource(key string) ConfigSource {
	if v == nil {
		return SourceDefault
	}
	if os.Getenv(EnvName(key)) != "" {
		return SourceEnvVar
	}
	if v.InConfig(key) {
		return SourceConfigFile
	}
	return SourceDefault
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetFloat64 retrieves a float configuration value
func GetFloat64(key string) float64 {
	if v == nil {
		return 0
	}
	return v.GetFloat64(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// GetStringSlice retrieves a string slice configuration value
func GetStringSlice(key string) []string {
	if v == nil {
		return []string{}
	}
	return v.GetStringSlice(key)
}

// Get returns the raw value for key.
func Get(key string) any {
	if v == nil {
		return nil
	}
	return v.Get(key)
}

// Set sets a configuration value
func Set(key string, value any) {
	if v != nil {
		v.Set(key, value)
	}
}
