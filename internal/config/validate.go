package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the assembled config for values the rest of the program
// cannot work around.
func Validate(cfg *Config) error {
	base := strings.TrimSpace(cfg.API.BaseURL)
	if base == "" {
		return fmt.Errorf("CONFIG_INVALID: api.base_url is required")
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("CONFIG_INVALID: api.base_url %q is not an absolute URL", base)
	}
	if cfg.API.TimeoutSecs <= 0 {
		return fmt.Errorf("CONFIG_INVALID: api.timeout_secs must be positive")
	}
	if cfg.Upload.MaxFileMB <= 0 {
		return fmt.Errorf("CONFIG_INVALID: upload.max_file_mb must be positive")
	}
	if len(cfg.Upload.AllowedTypes) == 0 {
		return fmt.Errorf("CONFIG_INVALID: upload.allowed_types must not be empty")
	}
	for _, ext := range cfg.Upload.AllowedTypes {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("CONFIG_INVALID: upload.allowed_types entry %q must start with a dot", ext)
		}
	}
	if cfg.Poll.IntervalSecs <= 0 {
		return fmt.Errorf("CONFIG_INVALID: poll.interval_secs must be positive")
	}
	if cfg.Poll.MaxAttempts <= 0 {
		return fmt.Errorf("CONFIG_INVALID: poll.max_attempts must be positive")
	}
	return nil
}
