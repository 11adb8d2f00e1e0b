package config

// Config is the full kbsync configuration, assembled with precedence:
// defaults → .kbsync.yaml → dotenv/env → CLI flag overrides.
type Config struct {
	Version int    `yaml:"version"`
	API     API    `yaml:"api"`
	Upload  Upload `yaml:"upload"`
	Poll    Poll   `yaml:"poll"`
	// StateDir holds the journal database. Empty means <cwd>/.kbsync.
	StateDir string `yaml:"state_dir"`
}

// API configures the document-management backend connection.
type API struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// Upload holds the validator constants. They are enforced, never computed.
type Upload struct {
	// AllowedTypes is the extension allow-list, lowercased with leading dot.
	AllowedTypes []string `yaml:"allowed_types"`
	MaxFileMB    int      `yaml:"max_file_mb"`
}

// Poll bounds the per-document status polling loop.
type Poll struct {
	IntervalSecs int `yaml:"interval_secs"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Version: 1,
		API: API{
			BaseURL:     "http://127.0.0.1:8080",
			TimeoutSecs: 30,
		},
		Upload: Upload{
			AllowedTypes: []string{".pdf", ".docx", ".txt", ".md", ".csv"},
			MaxFileMB:    10,
		},
		Poll: Poll{
			IntervalSecs: 2,
			MaxAttempts:  30,
		},
	}
}
