// Package preflight checks a transfer request before any byte is written:
// directory relationships, destination conflicts, and free space.
package preflight

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"

	"offload/pkg/config"
	"offload/pkg/log"
	"offload/pkg/models"
	"offload/pkg/resolver"
)

// ErrEmptyRequest is returned when the request lacks a source or
// destination root.
var ErrEmptyRequest = errors.New("transfer request missing source or destination root")

// Validator runs preflight checks. Side-effect free apart from read-only
// stat and free-space queries, so it is safe for any number of concurrent
// callers.
type Validator struct {
	resolver *resolver.Resolver
	cfg      *config.Config

	// freeSpace is injectable for tests; defaults to statfs on the
	// destination root.
	freeSpace func(path string) (int64, error)
}

// New creates a validator bound to a resolver and configuration.
func New(res *resolver.Resolver, cfg *config.Config) *Validator {
	return &Validator{
		resolver:  res,
		cfg:       cfg,
		freeSpace: freeSpaceAt,
	}
}

// Validate checks a request. Structural problems (same or nested
// directories) and insufficient space reject the request; conflicts alone
// keep it valid but may require caller confirmation under the ask policy.
func (v *Validator) Validate(req *models.TransferRequest) (*models.ValidationResult, error) {
	if req.SourceRoot == "" || req.DestinationRoot == "" {
		return nil, ErrEmptyRequest
	}

	result := &models.ValidationResult{
		IsValid:    true,
		CanProceed: true,
	}

	srcRoot, err := canonical(req.SourceRoot)
	if err != nil {
		return nil, err
	}
	dstRoot, err := canonical(req.DestinationRoot)
	if err != nil {
		return nil, err
	}

	// Structural checks short-circuit in order.
	switch {
	case srcRoot == dstRoot:
		return reject(result, models.WarnSameDirectory, "source and destination are the same directory"), nil
	case resolver.Within(srcRoot, dstRoot):
		return reject(result, models.WarnNestedDestInSource, "destination is inside the source directory"), nil
	case resolver.Within(dstRoot, srcRoot):
		return reject(result, models.WarnNestedSourceInDest, "source is inside the destination directory"), nil
	}

	v.collectConflicts(req, result)
	if len(result.Conflicts) > 0 {
		result.Warnings = append(result.Warnings, models.WarnFileConflicts)
		result.RequiresConfirmation = req.Policy == models.PolicyAsk
	}

	result.SpaceRequiredBytes = v.spaceRequired(req)

	free, err := v.freeSpace(req.DestinationRoot)
	if err != nil {
		log.Error().Err(err).Str("dest", req.DestinationRoot).Msg("Failed to query free space")
		return nil, err
	}
	if free < result.SpaceRequiredBytes {
		log.Warn().
			Int64("required", result.SpaceRequiredBytes).
			Int64("available", free).
			Msg("Insufficient space at destination")
		result.CanProceed = false
		result.Warnings = append(result.Warnings, models.WarnInsufficientSpace)
		result.Error = "not enough free space at destination"
	}

	return result, nil
}

// collectConflicts resolves every file's destination and records existing
// targets as conflicts.
func (v *Validator) collectConflicts(req *models.TransferRequest, result *models.ValidationResult) {
	for _, file := range req.Files {
		resolved, err := v.resolver.Resolve(file.Path, req.SourceRoot, req.DestinationRoot, v.cfg, req.DeviceName)
		if err != nil {
			log.Warn().Err(err).Str("source", file.Path).Msg("Skipping unresolvable source path")
			continue
		}

		info, err := os.Stat(resolved.Path)
		if err != nil {
			continue
		}

		result.Conflicts = append(result.Conflicts, models.ConflictInfo{
			FileName:        resolved.FileName,
			SourcePath:      file.Path,
			DestinationPath: resolved.Path,
			SourceSize:      file.Size,
			DestinationSize: info.Size(),
			SourceModTime:   file.ModifiedAt,
			DestModTime:     info.ModTime(),
			Suggested:       suggestResolution(file, info),
		})
	}
}

// suggestResolution proposes skip for byte-identical-looking targets and
// rename otherwise.
func suggestResolution(src models.ScannedFile, dst os.FileInfo) models.ConflictPolicy {
	if src.Size == dst.Size() && src.ModifiedAt.Equal(dst.ModTime()) {
		return models.PolicySkip
	}
	return models.PolicyRename
}

// spaceRequired sums the provided size hints, falling back to a stat per
// file when a hint is absent.
func (v *Validator) spaceRequired(req *models.TransferRequest) int64 {
	var total int64
	for _, file := range req.Files {
		if file.Size > 0 {
			total += file.Size
			continue
		}
		if info, err := os.Stat(file.Path); err == nil {
			total += info.Size()
		}
	}
	return total
}

func reject(result *models.ValidationResult, warning models.Warning, reason string) *models.ValidationResult {
	result.IsValid = false
	result.CanProceed = false
	result.Warnings = append(result.Warnings, warning)
	result.Error = reason
	return result
}

// canonical resolves a root to absolute, symlink-free form when it exists,
// lexical form otherwise.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	return abs, nil
}

// freeSpaceAt returns the free bytes available to unprivileged writes at
// the given path.
func freeSpaceAt(path string) (int64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}

	bsize := stat.Bsize
	if bsize < 0 {
		bsize = 0
	}
	return int64(stat.Bavail) * bsize, nil //nolint:gosec // disk sizes fit int64 in practice
}
