package models

// FileProgress is the in-flight state of one file as carried by a
// progress event.
type FileProgress struct {
	SourcePath       string  `json:"source_path"`
	FileName         string  `json:"file_name"`
	BytesTransferred int64   `json:"bytes_transferred"`
	Size             int64   `json:"size"`
	Percentage       float64 `json:"percentage"`
}

// Progress is a coalesced snapshot of a running session. Events are
// emitted at a bounded interval, not per chunk; consumers must tolerate
// skipped intermediate states.
type Progress struct {
	SessionID        string         `json:"session_id"`
	ActiveFiles      []FileProgress `json:"active_files"`
	BytesTransferred int64          `json:"bytes_transferred"`
	TotalBytes       int64          `json:"total_bytes"`
	Percentage       float64        `json:"percentage"`
	CompletedFiles   []string       `json:"completed_files"`
	FailedFiles      []string       `json:"failed_files"`
	Status           SessionStatus  `json:"status"`
}
