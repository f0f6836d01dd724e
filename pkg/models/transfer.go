package models

import "time"

// ConflictPolicy decides what happens when a computed destination path
// already exists.
type ConflictPolicy string

const (
	PolicyAsk       ConflictPolicy = "ask"
	PolicyOverwrite ConflictPolicy = "overwrite"
	PolicyRename    ConflictPolicy = "rename"
	PolicySkip      ConflictPolicy = "skip"
)

// TransferRequest describes one batch of files to copy from a source root
// to a destination root. File sizes act as hints; a zero size makes the
// validator fall back to a filesystem stat.
type TransferRequest struct {
	DeviceID        string         `json:"device_id"`
	DeviceName      string         `json:"device_name"`
	SourceRoot      string         `json:"source_root"`
	DestinationRoot string         `json:"destination_root"`
	Files           []ScannedFile  `json:"files"`
	Policy          ConflictPolicy `json:"policy"`
}

// ConflictInfo describes a single destination collision.
type ConflictInfo struct {
	FileName        string         `json:"file_name"`
	SourcePath      string         `json:"source_path"`
	DestinationPath string         `json:"destination_path"`
	SourceSize      int64          `json:"source_size"`
	DestinationSize int64          `json:"destination_size"`
	SourceModTime   time.Time      `json:"source_mtime"`
	DestModTime     time.Time      `json:"destination_mtime"`
	Suggested       ConflictPolicy `json:"suggested"`
}

// Warning is a typed preflight finding.
type Warning string

const (
	WarnSameDirectory      Warning = "same_directory"
	WarnNestedDestInSource Warning = "nested_dest_in_source"
	WarnNestedSourceInDest Warning = "nested_source_in_dest"
	WarnFileConflicts      Warning = "file_conflicts"
	WarnInsufficientSpace  Warning = "insufficient_space"
)

// ValidationResult is the outcome of a preflight check. IsValid is false
// only for the structural rejections; conflicts alone leave the request
// valid but may require confirmation.
type ValidationResult struct {
	IsValid              bool           `json:"is_valid"`
	CanProceed           bool           `json:"can_proceed"`
	RequiresConfirmation bool           `json:"requires_confirmation"`
	Warnings             []Warning      `json:"warnings"`
	Conflicts            []ConflictInfo `json:"conflicts"`
	SpaceRequiredBytes   int64          `json:"space_required_bytes"`
	Error                string         `json:"error,omitempty"`
}

// HasWarning reports whether the result carries the given warning.
func (v *ValidationResult) HasWarning(w Warning) bool {
	for _, got := range v.Warnings {
		if got == w {
			return true
		}
	}
	return false
}
