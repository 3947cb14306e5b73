package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by ApplyEnvConfig.
const EnvPrefix = "FACEGATE_"

// LoadDotEnv loads variables from the given .env files (".env" when none
// are named) without overriding the real environment. Missing files are
// not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ApplyEnvConfig applies FACEGATE_* variables. They override the config
// file but not flags set explicitly.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	env := func(name string) string { return os.Getenv(EnvPrefix + name) }

	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)
	s.setString("language", env("LANGUAGE"), &cfg.Language)
	s.setString("backend", env("BACKEND"), &cfg.Backend)
	s.setString("csrf-cookie", env("CSRF_COOKIE"), &cfg.CSRFCookie)
	s.setString("device", env("DEVICE"), &cfg.Device)
	s.setString("preset", env("PRESET"), &cfg.Preset)
	s.setString("page-path", env("PAGE_PATH"), &cfg.PagePath)
	s.setString("login-path", env("LOGIN_PATH"), &cfg.LoginPath)
	s.setString("listing-path", env("LISTING_PATH"), &cfg.ListingPath)
	s.setString("addr", env("ADDR"), &cfg.Addr)
	s.setString("static", env("STATIC_DIR"), &cfg.StaticDir)
	s.setString("model", env("MODEL_PATH"), &cfg.ModelPath)

	if err := s.setIntFromString("quality", env("QUALITY"), &cfg.Quality); err != nil {
		return err
	}

	if err := s.setDuration("timeout", env("HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("redirect-delay", env("REDIRECT_DELAY"), &cfg.RedirectDelay); err != nil {
		return err
	}
	if err := s.setDuration("metadata-timeout", env("METADATA_TIMEOUT"), &cfg.MetadataTimeout); err != nil {
		return err
	}
	if err := s.setDuration("dismiss-after", env("DISMISS_AFTER"), &cfg.DismissAfter); err != nil {
		return err
	}

	s.setBoolFromString("quality-gate", env("QUALITY_GATE"), &cfg.QualityGate)
	s.setBoolFromString("detect", env("DETECTION"), &cfg.Detection)

	return nil
}
