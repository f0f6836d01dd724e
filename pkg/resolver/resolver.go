// Package resolver computes safe destination paths for transferred files.
// Resolution is a pure function of its inputs (plus the clock when timestamp
// templating is enabled) and never touches the filesystem.
package resolver

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"offload/pkg/config"
)

// illegalNamePattern matches characters that are not portable in file or
// directory names across the filesystems removable media tend to carry.
var illegalNamePattern = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

const defaultDateFormat = "2006-01-02"

// Resolved is the outcome of a path resolution.
type Resolved struct {
	Directory string `json:"directory"`
	FileName  string `json:"file_name"`
	Path      string `json:"path"`
}

// Resolver computes destination paths. The zero value is not usable; use New.
type Resolver struct {
	now func() time.Time
}

// New creates a resolver using the wall clock.
func New() *Resolver {
	return &Resolver{now: time.Now}
}

// NewWithClock creates a resolver with an injected clock, for deterministic
// timestamp templating in tests.
func NewWithClock(clock func() time.Time) *Resolver {
	return &Resolver{now: clock}
}

// Resolve maps a source file to its destination. Template steps apply in
// order: relative-path computation, date folder, device folder, filename
// templating. The returned path is guaranteed to be a descendant of the
// destination root.
func (r *Resolver) Resolve(sourcePath, sourceRoot, destRoot string, cfg *config.Config, deviceName string) (*Resolved, error) {
	if sourcePath == "" {
		return nil, ErrEmptySource
	}
	if destRoot == "" {
		return nil, ErrEmptyRoot
	}

	rootAbs, err := filepath.Abs(filepath.Clean(destRoot))
	if err != nil {
		return nil, err
	}

	segments := make([]string, 0, 3)

	if cfg.DateFolders {
		format := cfg.DateFolderFormat
		if format == "" {
			format = defaultDateFormat
		}
		segments = append(segments, r.now().Format(format))
	}

	if cfg.DeviceFolders && deviceName != "" {
		segments = append(segments, SanitizeName(deviceName))
	}

	if !cfg.FlattenFolders {
		if rel := relativeDir(sourcePath, sourceRoot); rel != "" {
			segments = append(segments, rel)
		}
	}

	fileName := r.templateFileName(filepath.Base(sourcePath), cfg)

	directory := filepath.Join(append([]string{rootAbs}, segments...)...)
	candidate := filepath.Clean(filepath.Join(directory, fileName))

	if !Within(rootAbs, candidate) {
		return nil, ErrOutsideRoot
	}

	return &Resolved{
		Directory: filepath.Dir(candidate),
		FileName:  filepath.Base(candidate),
		Path:      candidate,
	}, nil
}

// relativeDir computes the source directory relative to the source root.
// Anything that would climb out of the root (crafted paths, ".." segments)
// falls back to a flat placement.
func relativeDir(sourcePath, sourceRoot string) string {
	if sourceRoot == "" {
		return ""
	}

	rootAbs, err := filepath.Abs(filepath.Clean(sourceRoot))
	if err != nil {
		return ""
	}
	srcAbs, err := filepath.Abs(filepath.Clean(sourcePath))
	if err != nil {
		return ""
	}

	rel, err := filepath.Rel(rootAbs, filepath.Dir(srcAbs))
	if err != nil {
		return ""
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return rel
}

// templateFileName applies the filename template. Rename replaces the name
// with the timestamp pattern; timestamp naming keeps the original name and
// prefixes it.
func (r *Resolver) templateFileName(base string, cfg *config.Config) string {
	if !cfg.RenameFiles && !cfg.TimestampNames {
		return base
	}

	pattern := cfg.TimestampPattern
	if pattern == "" {
		pattern = "20060102_150405"
	}
	stamp := r.now().Format(pattern)

	if cfg.RenameFiles {
		return stamp + filepath.Ext(base)
	}
	return stamp + "_" + base
}

// SanitizeName strips filesystem-illegal characters from a device name so it
// can be used as a directory name.
func SanitizeName(name string) string {
	clean := illegalNamePattern.ReplaceAllString(name, "")
	clean = strings.Trim(clean, " .")
	if clean == "" {
		return "device"
	}
	return clean
}

// Within reports whether path is root itself or a strict descendant of it.
// Both arguments must already be absolute and cleaned.
func Within(root, path string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
