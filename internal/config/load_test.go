package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ".kbsync.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load(Options{RootDir: t.TempDir()})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.BaseURL != "http://127.0.0.1:8080" {
		t.Fatalf("unexpected default base url %q", cfg.API.BaseURL)
	}
	if cfg.Upload.MaxFileMB != 10 {
		t.Fatalf("unexpected default size limit %d", cfg.Upload.MaxFileMB)
	}
	if cfg.Poll.IntervalSecs != 2 || cfg.Poll.MaxAttempts != 30 {
		t.Fatalf("unexpected poll defaults %d/%d", cfg.Poll.IntervalSecs, cfg.Poll.MaxAttempts)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, strings.Join([]string{
		"api:",
		"  base_url: https://kb.example.com",
		"upload:",
		"  max_file_mb: 25",
		"  allowed_types: [\".pdf\", \".md\"]",
	}, "\n"))

	cfg, err := Load(Options{RootDir: dir})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.BaseURL != "https://kb.example.com" {
		t.Fatalf("file value not applied, got %q", cfg.API.BaseURL)
	}
	if cfg.Upload.MaxFileMB != 25 || len(cfg.Upload.AllowedTypes) != 2 {
		t.Fatalf("upload section not applied: %+v", cfg.Upload)
	}
	if cfg.API.TimeoutSecs != 30 {
		t.Fatalf("untouched fields must keep defaults, got %d", cfg.API.TimeoutSecs)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "api:\n  base_url: https://file.example.com\n")
	t.Setenv("KBSYNC_BASE_URL", "https://env.example.com")
	t.Setenv("KBSYNC_MAX_FILE_MB", "42")

	cfg, err := Load(Options{RootDir: dir})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.BaseURL != "https://env.example.com" {
		t.Fatalf("env must beat the file, got %q", cfg.API.BaseURL)
	}
	if cfg.Upload.MaxFileMB != 42 {
		t.Fatalf("env size limit not applied, got %d", cfg.Upload.MaxFileMB)
	}
}

func TestLoad_FlagOverridesEverything(t *testing.T) {
	t.Setenv("KBSYNC_BASE_URL", "https://env.example.com")
	flag := "https://flag.example.com"

	cfg, err := Load(Options{RootDir: t.TempDir(), Overrides: &Overrides{BaseURL: &flag}})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.BaseURL != "https://flag.example.com" {
		t.Fatalf("flag must beat env, got %q", cfg.API.BaseURL)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "api: [not a map")

	_, err := Load(Options{RootDir: dir})
	if err == nil || !strings.Contains(err.Error(), "CONFIG_INVALID") {
		t.Fatalf("expected CONFIG_INVALID, got %v", err)
	}
}

func TestLoad_SkipValidate(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "api:\n  base_url: \"\"\n")

	if _, err := Load(Options{RootDir: dir}); err == nil {
		t.Fatal("empty base_url must fail validation")
	}
	if _, err := Load(Options{RootDir: dir, SkipValidate: true}); err != nil {
		t.Fatalf("skip-validate load must succeed, got %v", err)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative url", func(c *Config) { c.API.BaseURL = "localhost:8080" }, "not an absolute URL"},
		{"zero timeout", func(c *Config) { c.API.TimeoutSecs = 0 }, "timeout_secs"},
		{"zero size limit", func(c *Config) { c.Upload.MaxFileMB = 0 }, "max_file_mb"},
		{"no types", func(c *Config) { c.Upload.AllowedTypes = nil }, "allowed_types"},
		{"dotless type", func(c *Config) { c.Upload.AllowedTypes = []string{"pdf"} }, "start with a dot"},
		{"zero interval", func(c *Config) { c.Poll.IntervalSecs = 0 }, "interval_secs"},
		{"zero attempts", func(c *Config) { c.Poll.MaxAttempts = 0 }, "max_attempts"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := Validate(&cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}
