package models

import "time"

// ScannedFile is a transferable file discovered during a device scan.
// Instances live only for the duration of the scan call; they are never
// cached or persisted.
type ScannedFile struct {
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ScanResult summarizes one recursive scan of a mount point.
type ScanResult struct {
	Files      []ScannedFile `json:"files"`
	TotalSize  int64         `json:"total_size"`
	FileCount  int           `json:"file_count"`
	ScanTimeMs int64         `json:"scan_time_ms"`
}
