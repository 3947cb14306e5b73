package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/teslashibe/go-facegate/internal/config"
	"github.com/teslashibe/go-facegate/internal/log"
)

var (
	cfg     = config.DefaultConfig()
	cfgPath string
)

var rootCmd = &cobra.Command{
	Use:   "facegate",
	Short: "Facial recognition capture kiosk",
	Long: `facegate drives a local camera, captures a frame on demand and submits it
to a facial recognition backend for enrollment or verification.

Run "facegate serve" for the browser kiosk, or "facegate enroll" and
"facegate verify" for a single capture from the terminal.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "Config file (default $HOME/.facegate/config.toml)")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	pf.StringVar(&cfg.Language, "language", cfg.Language, "Language for status messages (pt-BR, en)")

	pf.StringVar(&cfg.Backend, "backend", cfg.Backend, "Recognition backend base URL")
	pf.StringVar(&cfg.CSRFCookie, "csrf-cookie", cfg.CSRFCookie, "Anti-forgery cookie name")
	pf.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "Backend request timeout")
	pf.StringVar(&cfg.PagePath, "page-path", cfg.PagePath, "Enrollment endpoint")
	pf.StringVar(&cfg.LoginPath, "login-path", cfg.LoginPath, "Verification endpoint")
	pf.StringVar(&cfg.ListingPath, "listing-path", cfg.ListingPath, "Page to open after enrollment")

	pf.StringVar(&cfg.Device, "device", cfg.Device, `Camera index, or "pattern" for the synthetic camera`)
	pf.StringVar(&cfg.Preset, "preset", cfg.Preset, "Camera preset")
	pf.IntVar(&cfg.Quality, "quality", cfg.Quality, "JPEG quality override (0 keeps the preset)")
	pf.DurationVar(&cfg.MetadataTimeout, "metadata-timeout", cfg.MetadataTimeout, "How long to wait for the first frame")

	pf.DurationVar(&cfg.RedirectDelay, "redirect-delay", cfg.RedirectDelay, "Delay before following a successful result")
	pf.DurationVar(&cfg.DismissAfter, "dismiss-after", cfg.DismissAfter, "How long success messages stay visible")

	pf.BoolVar(&cfg.QualityGate, "quality-gate", cfg.QualityGate, "Reject blurred or flat frames before sending")
	pf.BoolVar(&cfg.Detection, "detect", cfg.Detection, "Run the face presence detector while the camera is on")
	pf.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "YuNet face detection model")
}

// loadConfig layers .env, the config file and FACEGATE_* variables under
// the flags the user set, then initializes logging.
func loadConfig(cmd *cobra.Command, _ []string) error {
	// .env is optional
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	path, required := cfgPath, cfgPath != ""
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if err := config.Load(&cfg, path, required, changed); err != nil {
		return err
	}

	log.Init(cfg.LogLevel)
	log.Debug("configuration loaded", "config", cfg)
	return nil
}
