package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the velocitest configuration
type Config struct {
	Python       string   `yaml:"python,omitempty"`       // interpreter for worker processes
	Testpaths    []string `yaml:"testpaths,omitempty"`    // default discovery roots
	Markers      string   `yaml:"markers,omitempty"`      // default marker filter expression
	Workers      int      `yaml:"workers,omitempty"`      // explicit worker count, 0 = auto
	WarmPoolSize int      `yaml:"warmPoolSize,omitempty"` // pool size for medium suites
	DispatchRate float64  `yaml:"dispatchRate,omitempty"` // max dispatches/second, 0 = unlimited
	Format       string   `yaml:"format,omitempty"`       // console, json, junit, tap
	OutputFile   string   `yaml:"outputFile,omitempty"`   // report destination, empty = stdout
	EnvFile      string   `yaml:"envFile,omitempty"`      // .env file injected into workers
	CacheDir     string   `yaml:"cacheDir,omitempty"`     // discovery cache location
	HistoryDB    string   `yaml:"historyDb,omitempty"`    // run history sqlite path
	NoCache      *bool    `yaml:"noCache,omitempty"`
	StrictXFail  *bool    `yaml:"strictXfail,omitempty"` // treat every xpass as a failure
	Verbose      *bool    `yaml:"verbose,omitempty"`
	NoColor      *bool    `yaml:"noColor,omitempty"`
}

// BoolPtr returns a pointer to a bool value
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetNoCache returns the cache bypass setting, defaulting to false
func (c *Config) GetNoCache() bool {
	return getBool(c.NoCache, false)
}

// GetStrictXFail returns the strict xfail setting, defaulting to false
func (c *Config) GetStrictXFail() bool {
	return getBool(c.StrictXFail, false)
}

// GetVerbose returns the verbose setting, defaulting to false
func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	"velocitest.yaml",
	"velocitest.yml",
	".velocitest.yaml",
	".velocitest.yml",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	// Search for config file in current directory
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	return config, nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.Python != "" {
		result.Python = other.Python
	}
	if len(other.Testpaths) > 0 {
		result.Testpaths = other.Testpaths
	}
	if other.Markers != "" {
		result.Markers = other.Markers
	}
	if other.Workers > 0 {
		result.Workers = other.Workers
	}
	if other.WarmPoolSize > 0 {
		result.WarmPoolSize = other.WarmPoolSize
	}
	if other.DispatchRate > 0 {
		result.DispatchRate = other.DispatchRate
	}
	if other.Format != "" {
		result.Format = other.Format
	}
	if other.OutputFile != "" {
		result.OutputFile = other.OutputFile
	}
	if other.EnvFile != "" {
		result.EnvFile = other.EnvFile
	}
	if other.CacheDir != "" {
		result.CacheDir = other.CacheDir
	}
	if other.HistoryDB != "" {
		result.HistoryDB = other.HistoryDB
	}

	// Boolean flags - only override if explicitly set in other config
	if other.NoCache != nil {
		result.NoCache = other.NoCache
	}
	if other.StrictXFail != nil {
		result.StrictXFail = other.StrictXFail
	}
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	return &result
}

// SaveConfig saves the configuration to a file
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
