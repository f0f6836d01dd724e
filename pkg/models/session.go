package models

import "time"

// FileStatus is the per-file transfer lifecycle.
type FileStatus string

const (
	FilePending      FileStatus = "pending"
	FileTransferring FileStatus = "transferring"
	FileVerifying    FileStatus = "verifying"
	FileComplete     FileStatus = "complete"
	FileError        FileStatus = "error"
	FileSkipped      FileStatus = "skipped"
)

// ErrorKind classifies a per-file failure. Only network and
// drive_disconnected are considered transient and eligible for retry.
type ErrorKind string

const (
	ErrKindNone              ErrorKind = ""
	ErrKindNetwork           ErrorKind = "network"
	ErrKindDriveDisconnected ErrorKind = "drive_disconnected"
	ErrKindChecksumMismatch  ErrorKind = "checksum_mismatch"
	ErrKindPermission        ErrorKind = "permission"
	ErrKindOther             ErrorKind = "other"
)

// Retryable reports whether a failure with this kind may be retried.
func (k ErrorKind) Retryable() bool {
	return k == ErrKindNetwork || k == ErrKindDriveDisconnected
}

// FileTransferRecord tracks one file within a session.
type FileTransferRecord struct {
	SourcePath       string     `json:"source_path"`
	DestinationPath  string     `json:"destination_path"`
	FileName         string     `json:"file_name"`
	Size             int64      `json:"size"`
	BytesTransferred int64      `json:"bytes_transferred"`
	Percentage       float64    `json:"percentage"`
	Status           FileStatus `json:"status"`
	Checksum         string     `json:"checksum,omitempty"`
	ErrorKind        ErrorKind  `json:"error_kind,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
}

// SessionStatus is the session lifecycle. Transitions are monotonic:
// transferring and paused may alternate, the terminal states are final.
type SessionStatus string

const (
	SessionTransferring SessionStatus = "transferring"
	SessionPaused       SessionStatus = "paused"
	SessionComplete     SessionStatus = "complete"
	SessionError        SessionStatus = "error"
	SessionCancelled    SessionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionComplete, SessionError, SessionCancelled:
		return true
	default:
		return false
	}
}

// TransferSession is one end-to-end execution of a transfer request.
type TransferSession struct {
	ID              string               `json:"id"`
	DeviceID        string               `json:"device_id"`
	DeviceName      string               `json:"device_name"`
	SourceRoot      string               `json:"source_root"`
	DestinationRoot string               `json:"destination_root"`
	StartTime       time.Time            `json:"start_time"`
	EndTime         *time.Time           `json:"end_time,omitempty"`
	Status          SessionStatus        `json:"status"`
	FileCount       int                  `json:"file_count"`
	TotalBytes      int64                `json:"total_bytes"`
	Files           []FileTransferRecord `json:"files,omitempty"`
}
