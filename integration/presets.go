package integration

import (
	"fmt"
	"time"
)

// Package integration provides resource presets for the node runtime.
// Presets bundle pool capacity, blob cache and payload store sizing and the
// rebuild cadence into named profiles (lite, default, full) so operators can
// size a node for its workload without tweaking a dozen flags.
//
// Usage:
//   cfg := integration.LitePreset()    // for development and CI
//   cfg := integration.FullPreset()    // for load-test sequencers
//
// Each preset returns a PresetConfig the launcher merges into its config
// before explicit CLI overrides are applied.

// PresetConfig captures the tunable parameters that vary across preset profiles.
// It intentionally excludes fields that are always the same (like chain or
// RPC ports) so presets focus on resource trade-offs.
type PresetConfig struct {
	Name             string        // identifier (e.g. "lite", "full")
	PoolGlobalSlots  int           // total pooled transactions
	PoolAccountSlots int           // pooled transactions per sender
	BlobCacheSize    int           // blobs kept for getBlobs; 0 derives it from the blob target
	PayloadStoreSize int           // resolved payloads kept for repeated getPayload calls
	BuildInterval    time.Duration // pause between two rebuilds of the same payload
	EnableMetrics    bool          // expose the Prometheus endpoint
}

func DefaultPreset() PresetConfig {
	return PresetConfig{
		Name:             "default",
		PoolGlobalSlots:  16384,
		PoolAccountSlots: 256,
		BlobCacheSize:    0,
		PayloadStoreSize: 64,
		BuildInterval:    time.Second,
		EnableMetrics:    false,
	}
}

// LitePreset fits a node into laptops and CI runners. Smaller pool and
// caches, slower rebuilds, metrics on for diagnosis.
func LitePreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "lite"
	cfg.PoolGlobalSlots = 4096
	cfg.PoolAccountSlots = 64
	cfg.BlobCacheSize = 512
	cfg.PayloadStoreSize = 8
	cfg.BuildInterval = 2 * time.Second
	cfg.EnableMetrics = true
	return cfg
}

// FullPreset is sized for sequencers under sustained load tests: deep pool,
// two epochs of blobs at the hard cap and fast rebuilds.
//
// Trade-offs:
//   - Blob cache alone may hold several GB (8192 blobs of 128KB)
//   - Faster rebuilds cost CPU while a payload job is open
func FullPreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "full"
	cfg.PoolGlobalSlots = 65536
	cfg.PoolAccountSlots = 1024
	cfg.BlobCacheSize = 8192
	cfg.PayloadStoreSize = 128
	cfg.BuildInterval = 250 * time.Millisecond
	cfg.EnableMetrics = true
	return cfg
}

// GetPresetByName looks up a preset by its string identifier. This helper
// backs the --preset flag.
func GetPresetByName(name string) (PresetConfig, error) {
	switch name {
	case "lite":
		return LitePreset(), nil
	case "full":
		return FullPreset(), nil
	case "default":
		return DefaultPreset(), nil
	default:
		return PresetConfig{}, fmt.Errorf("unknown preset: %q (valid: lite, full, default)", name)
	}
}

// ApplyPreset merges a preset configuration into an existing one. Zero
// sizes in the preset leave the target untouched.
func ApplyPreset(target *PresetConfig, preset PresetConfig) {
	if preset.PoolGlobalSlots > 0 {
		target.PoolGlobalSlots = preset.PoolGlobalSlots
	}
	if preset.PoolAccountSlots > 0 {
		target.PoolAccountSlots = preset.PoolAccountSlots
	}
	if preset.BlobCacheSize > 0 {
		target.BlobCacheSize = preset.BlobCacheSize
	}
	if preset.PayloadStoreSize > 0 {
		target.PayloadStoreSize = preset.PayloadStoreSize
	}
	if preset.BuildInterval > 0 {
		target.BuildInterval = preset.BuildInterval
	}
	// boolean flags are always applied
	target.EnableMetrics = preset.EnableMetrics
	if preset.Name != "" {
		target.Name = preset.Name
	}
}
