package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Options controls config loading. ConfigPath is resolved against RootDir
// when relative.
type Options struct {
	ConfigPath string
	RootDir    string
	// SkipValidate skips validation (e.g. for `config print`).
	SkipValidate bool
	// Overrides apply last (flags > env > file > defaults). Nil means no
	// CLI overrides.
	Overrides *Overrides
}

// Overrides holds CLI flag values that take precedence over env, file, and
// defaults. Only non-nil fields are applied.
type Overrides struct {
	BaseURL  *string
	APIKey   *string
	StateDir *string
}

// Load builds the config with precedence defaults → .kbsync.yaml → env →
// Overrides. The returned error is suitable for an invalid-config exit.
func Load(opts Options) (*Config, error) {
	cfg := Default()

	// Local dotenv files for developer ergonomics. Real env always wins;
	// godotenv.Load never overrides existing variables.
	for _, name := range []string{".env.local", ".env"} {
		if _, err := os.Stat(name); err == nil {
			if err := godotenv.Load(name); err != nil {
				return nil, fmt.Errorf("CONFIG_INVALID: failed loading %s: %w", name, err)
			}
		}
	}

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = ".kbsync.yaml"
	}
	if !filepath.IsAbs(configPath) && opts.RootDir != "" {
		configPath = filepath.Join(opts.RootDir, configPath)
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("CONFIG_INVALID: cannot read config file %s: %w", configPath, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("CONFIG_INVALID: malformed YAML in %s: %w", configPath, err)
		}
	}

	applyEnv(&cfg)

	if opts.Overrides != nil {
		applyOverrides(&cfg, opts.Overrides)
	}

	if !opts.SkipValidate {
		if err := Validate(&cfg); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("KBSYNC_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("KBSYNC_API_KEY"); v != "" {
		cfg.API.APIKey = v
	}
	if v := os.Getenv("KBSYNC_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v := os.Getenv("KBSYNC_MAX_FILE_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Upload.MaxFileMB = n
		}
	}
}

func applyOverrides(cfg *Config, o *Overrides) {
	if o.BaseURL != nil {
		cfg.API.BaseURL = *o.BaseURL
	}
	if o.APIKey != nil {
		cfg.API.APIKey = *o.APIKey
	}
	if o.StateDir != nil {
		cfg.StateDir = *o.StateDir
	}
}
