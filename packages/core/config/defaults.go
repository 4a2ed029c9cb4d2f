package config

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Python:       "python3",
		Testpaths:    []string{"."},
		WarmPoolSize: 4,
		Format:       "console",
		CacheDir:     ".velocitest_cache",
		HistoryDB:    ".velocitest_history.db",
	}
}
