// Package config holds the resolved runtime configuration consumed by the
// core. Where the configuration comes from (flags, files, a settings UI) is
// the caller's concern; the core only reads this struct.
package config

import (
	"strings"
	"time"

	"offload/pkg/models"
)

// BufferTier selects copy parameters by file size. Larger files get bigger
// I/O buffers and a longer progress emission interval so event volume stays
// bounded.
type BufferTier struct {
	// MaxSize is the upper bound (inclusive) for this tier; the last tier
	// should use MaxSize <= 0 to act as catch-all.
	MaxSize      int64
	BufferSize   int
	Workers      int
	EmitInterval time.Duration
}

// Config is the resolved configuration for a scan/validate/transfer cycle.
type Config struct {
	// MediaExtensions is the case-insensitive extension allowlist, applied
	// only when FilterEnabled is set. Entries include the leading dot.
	MediaExtensions []string
	FilterEnabled   bool

	// FlattenFolders drops the source directory hierarchy; otherwise the
	// hierarchy below the source root is preserved at the destination.
	FlattenFolders bool

	// DateFolders inserts a date directory (DateFolderFormat is a Go time
	// layout) between the destination root and the file.
	DateFolders      bool
	DateFolderFormat string

	// DeviceFolders inserts a directory named after the device, with
	// filesystem-illegal characters stripped.
	DeviceFolders bool

	// RenameFiles replaces the original file name with the timestamp
	// pattern (a Go time layout with second resolution) plus the original
	// extension. TimestampNames keeps the original name and prefixes the
	// timestamp instead.
	RenameFiles      bool
	TimestampNames   bool
	TimestampPattern string

	ConflictPolicy models.ConflictPolicy

	// VerifyChecksums re-reads each destination file after the copy and
	// compares SHA-256 digests.
	VerifyChecksums bool

	// WriteManifest writes a plain-text checksum manifest alongside the
	// destination tree for each completed session.
	WriteManifest bool

	// BufferTiers orders copy parameter tiers by ascending MaxSize.
	// Empty means DefaultBufferTiers.
	BufferTiers []BufferTier
}

const (
	kib = 1024
	mib = 1024 * kib
)

// DefaultBufferTiers covers small/medium/large/extra-large files.
func DefaultBufferTiers() []BufferTier {
	return []BufferTier{
		{MaxSize: 1 * mib, BufferSize: 64 * kib, Workers: 4, EmitInterval: 100 * time.Millisecond},
		{MaxSize: 100 * mib, BufferSize: 1 * mib, Workers: 3, EmitInterval: 250 * time.Millisecond},
		{MaxSize: 1024 * mib, BufferSize: 4 * mib, Workers: 2, EmitInterval: 500 * time.Millisecond},
		{MaxSize: 0, BufferSize: 16 * mib, Workers: 1, EmitInterval: time.Second},
	}
}

// Default returns a configuration with sensible defaults for media ingest.
func Default() *Config {
	return &Config{
		MediaExtensions: []string{
			".jpg", ".jpeg", ".png", ".gif", ".heic", ".raw", ".cr2", ".cr3",
			".nef", ".arw", ".dng", ".tif", ".tiff",
			".mp4", ".mov", ".avi", ".mts", ".m4v", ".mkv",
			".mp3", ".wav", ".flac", ".aac",
		},
		FilterEnabled:    true,
		FlattenFolders:   false,
		DateFolders:      false,
		DateFolderFormat: "2006-01-02",
		DeviceFolders:    false,
		RenameFiles:      false,
		TimestampNames:   false,
		TimestampPattern: "20060102_150405",
		ConflictPolicy:   models.PolicyAsk,
		VerifyChecksums:  true,
		WriteManifest:    false,
		BufferTiers:      DefaultBufferTiers(),
	}
}

// Tiers returns the configured buffer tiers, falling back to defaults.
func (c *Config) Tiers() []BufferTier {
	if len(c.BufferTiers) == 0 {
		return DefaultBufferTiers()
	}
	return c.BufferTiers
}

// TierFor picks the tier matching a file size.
func (c *Config) TierFor(size int64) BufferTier {
	tiers := c.Tiers()
	for _, tier := range tiers {
		if tier.MaxSize > 0 && size <= tier.MaxSize {
			return tier
		}
	}
	return tiers[len(tiers)-1]
}

// AllowsExtension reports whether a file extension passes the allowlist.
// Filtering disabled means everything passes.
func (c *Config) AllowsExtension(ext string) bool {
	if !c.FilterEnabled {
		return true
	}
	for _, allowed := range c.MediaExtensions {
		if strings.EqualFold(allowed, ext) {
			return true
		}
	}
	return false
}
