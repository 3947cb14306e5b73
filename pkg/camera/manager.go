package camera

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Manager holds the current camera configuration and handles updates.
// Sessions snapshot the config on start, so updates never disturb a live
// stream.
type Manager struct {
	config   Config
	mu       sync.RWMutex
	onChange func(cfg Config)
}

// NewManager creates a new camera manager with the given config.
func NewManager(cfg Config) *Manager {
	return &Manager{
		config: cfg,
	}
}

// OnConfigChange registers fn to run after every accepted change,
// replacing any earlier registration.
func (m *Manager) OnConfigChange(fn func(cfg Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Config returns the current camera configuration.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig validates and replaces the camera configuration.
func (m *Manager) SetConfig(cfg Config) error {
	if err := cfg.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.config = cfg
	callback := m.onChange
	m.mu.Unlock()

	if callback != nil {
		callback(cfg)
	}

	return nil
}

// UpdateConfig updates specific fields of the configuration.
// Accepts a map of field names to values, as decoded from a JSON body.
// A "preset" key is applied first so other keys can override it.
func (m *Manager) UpdateConfig(params map[string]interface{}) error {
	cfg := m.Config()

	if presetName, ok := params["preset"].(string); ok {
		preset := GetPreset(presetName)
		if preset == nil {
			return fmt.Errorf("unknown preset: %s", presetName)
		}
		cfg = *preset
	}

	for key, value := range params {
		switch key {
		case "preset":
		case "width":
			if v, ok := toInt(value); ok {
				cfg.Width = v
			}
		case "height":
			if v, ok := toInt(value); ok {
				cfg.Height = v
			}
		case "framerate":
			if v, ok := toInt(value); ok {
				cfg.Framerate = v
			}
		case "quality":
			if v, ok := toInt(value); ok {
				cfg.Quality = v
			}
		case "device_index":
			if v, ok := toInt(value); ok {
				cfg.DeviceIndex = v
			}
		case "min_payload_bytes":
			if v, ok := toInt(value); ok {
				cfg.MinPayloadBytes = v
			}
		case "format":
			if v, ok := value.(string); ok {
				cfg.Format = v
			}
		case "facing_mode":
			if v, ok := value.(string); ok {
				cfg.FacingMode = v
			}
		default:
			return fmt.Errorf("unknown camera setting: %s", key)
		}
	}

	return m.SetConfig(cfg)
}

func toInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		if err == nil {
			return int(i), true
		}
	}
	return 0, false
}
