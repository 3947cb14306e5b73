package camera

// Preset names for common configurations
const (
	PresetDefault = "default"
	PresetLegacy  = "legacy"
	Preset720p    = "720p"
	Preset1080p   = "1080p"
	PresetKiosk   = "kiosk"
	PresetRear    = "rear"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetLegacy:  LegacyConfig(),
		Preset720p:    HD720Config(),
		Preset1080p:   HD1080Config(),
		PresetKiosk:   KioskConfig(),
		PresetRear:    RearConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		PresetLegacy,
		Preset720p,
		Preset1080p,
		PresetKiosk,
		PresetRear,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// LegacyConfig returns a 320x240 configuration for slow USB cameras.
func LegacyConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 320
	cfg.Height = 240
	return cfg
}

// HD720Config returns 720p HD configuration.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	return cfg
}

// HD1080Config returns 1080p Full HD configuration.
// Larger payloads; the backend has to accept multi-megabyte bodies.
func HD1080Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1920
	cfg.Height = 1080
	cfg.Quality = 85
	return cfg
}

// KioskConfig returns the wall-mounted kiosk configuration.
// PNG avoids JPEG artifacts that lower the backend's blur score.
func KioskConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	cfg.Format = FormatPNG
	cfg.Framerate = 10
	return cfg
}

// RearConfig selects the environment-facing camera.
func RearConfig() Config {
	cfg := DefaultConfig()
	cfg.FacingMode = FacingEnvironment
	return cfg
}
