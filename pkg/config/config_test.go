package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestTierFor exercises the size-tier lookup including the catch-all.
func TestTierFor(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 64*kib, cfg.TierFor(512*kib).BufferSize)
	assert.Equal(t, 1*mib, cfg.TierFor(50*mib).BufferSize)
	assert.Equal(t, 4*mib, cfg.TierFor(500*mib).BufferSize)
	assert.Equal(t, 16*mib, cfg.TierFor(8*1024*mib).BufferSize)

	// Boundary sizes belong to the lower tier.
	assert.Equal(t, 64*kib, cfg.TierFor(1*mib).BufferSize)

	// An empty tier list falls back to defaults.
	bare := &Config{}
	assert.Equal(t, 16*mib, bare.TierFor(8*1024*mib).BufferSize)
}

// TestAllowsExtension exercises the case-insensitive allowlist.
func TestAllowsExtension(t *testing.T) {
	cfg := Default()

	assert.True(t, cfg.AllowsExtension(".jpg"))
	assert.True(t, cfg.AllowsExtension(".JPG"))
	assert.True(t, cfg.AllowsExtension(".Mp4"))
	assert.False(t, cfg.AllowsExtension(".txt"))
	assert.False(t, cfg.AllowsExtension(""))

	cfg.FilterEnabled = false
	assert.True(t, cfg.AllowsExtension(".txt"))
}
