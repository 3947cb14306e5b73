package config

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config with string durations so the TOML stays readable.
type FileConfig struct {
	LogLevel        string `toml:"log_level"`
	Language        string `toml:"language"`
	Backend         string `toml:"backend"`
	CSRFCookie      string `toml:"csrf_cookie"`
	HTTPTimeout     string `toml:"http_timeout"`
	Device          string `toml:"device"`
	Preset          string `toml:"preset"`
	Quality         int    `toml:"quality"`
	PagePath        string `toml:"page_path"`
	LoginPath       string `toml:"login_path"`
	ListingPath     string `toml:"listing_path"`
	RedirectDelay   string `toml:"redirect_delay"`
	MetadataTimeout string `toml:"metadata_timeout"`
	DismissAfter    string `toml:"dismiss_after"`
	Addr            string `toml:"addr"`
	StaticDir       string `toml:"static_dir"`
	QualityGate     *bool  `toml:"quality_gate"`
	Detection       *bool  `toml:"detection"`
	ModelPath       string `toml:"model_path"`
}

// LoadFileConfig reads and parses a TOML config file.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.facegate/config.toml, or "" without a home
// directory.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".facegate", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies file values to cfg, skipping flags in changed.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("language", fc.Language, &cfg.Language)
	s.setString("backend", fc.Backend, &cfg.Backend)
	s.setString("csrf-cookie", fc.CSRFCookie, &cfg.CSRFCookie)
	s.setString("device", fc.Device, &cfg.Device)
	s.setString("preset", fc.Preset, &cfg.Preset)
	s.setString("page-path", fc.PagePath, &cfg.PagePath)
	s.setString("login-path", fc.LoginPath, &cfg.LoginPath)
	s.setString("listing-path", fc.ListingPath, &cfg.ListingPath)
	s.setString("addr", fc.Addr, &cfg.Addr)
	s.setString("static", fc.StaticDir, &cfg.StaticDir)
	s.setString("model", fc.ModelPath, &cfg.ModelPath)

	s.setInt("quality", fc.Quality, &cfg.Quality)

	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("redirect-delay", fc.RedirectDelay, &cfg.RedirectDelay); err != nil {
		return err
	}
	if err := s.setDuration("metadata-timeout", fc.MetadataTimeout, &cfg.MetadataTimeout); err != nil {
		return err
	}
	if err := s.setDuration("dismiss-after", fc.DismissAfter, &cfg.DismissAfter); err != nil {
		return err
	}

	s.setBool("quality-gate", fc.QualityGate, &cfg.QualityGate)
	s.setBool("detect", fc.Detection, &cfg.Detection)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Load layers the config file at path and the environment over cfg, then
// validates it. A missing file is an error only when required is set.
func Load(cfg *Config, path string, required bool, changed map[string]bool) error {
	if path != "" {
		switch {
		case FileExists(path):
			fc, err := LoadFileConfig(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := ApplyFileConfig(cfg, fc, changed); err != nil {
				return err
			}
		case required:
			return fmt.Errorf("config file %s not found", path)
		}
	}
	if err := ApplyEnvConfig(cfg, changed); err != nil {
		return err
	}
	return cfg.Validate()
}
