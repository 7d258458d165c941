// Package integration provides configuration presets and assembly helpers for
// building the scorer runtime. Presets bundle the settings that decide how
// results are stored (cache backend, metrics exposure) into named profiles so
// operators can switch a deployment between them with a single flag.
//
// Usage:
//   preset, err := integration.GetPresetByName("persistent")
//   rt, err := integration.Assemble(settings, log, m)
//
// Each preset returns a PresetConfig struct whose values fill the launcher
// settings that were not chosen explicitly.
package integration

import "fmt"

// Cache backends understood by Assemble.
const (
	BackendMemory = "memory"
	BackendPebble = "pebble"
	BackendNone   = "none"
)

// PresetConfig captures the tunable parameters that vary across preset profiles.
type PresetConfig struct {
	Name          string // identifier shown in logs and config dumps
	CacheBackend  string // memory, pebble or none
	EnableMetrics bool   // expose GET /metrics on the HTTP server
}

// DefaultPreset keeps finalized results in process memory. Nothing survives a
// restart, which suits single-instance deployments and local development.
func DefaultPreset() PresetConfig {
	return PresetConfig{
		Name:          "default",
		CacheBackend:  BackendMemory,
		EnableMetrics: false,
	}
}

// PersistentPreset stores finalized results in a pebble database under the
// data directory so a restarted instance answers historical queries without
// touching the chains again.
//
// Trade-offs:
//   - the store grows without bound; every distinct finalized request adds a key
//   - only one process may open the database at a time
func PersistentPreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "persistent"
	cfg.CacheBackend = BackendPebble
	cfg.EnableMetrics = true
	return cfg
}

// NoCachePreset recomputes every request. Useful when debugging strategies or
// when an external layer already caches responses.
func NoCachePreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "nocache"
	cfg.CacheBackend = BackendNone
	return cfg
}

// GetPresetByName looks up a preset by its string identifier. It backs the
// --preset flag.
func GetPresetByName(name string) (PresetConfig, error) {
	switch name {
	case "", "default":
		return DefaultPreset(), nil
	case "persistent":
		return PersistentPreset(), nil
	case "nocache":
		return NoCachePreset(), nil
	default:
		return PresetConfig{}, fmt.Errorf("unknown preset: %q (valid: default, persistent, nocache)", name)
	}
}
