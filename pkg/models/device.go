package models

// BusClass identifies the storage controller family a device hangs off.
type BusClass string

const (
	BusUSB     BusClass = "usb"
	BusSATA    BusClass = "sata"
	BusATA     BusClass = "ata"
	BusSCSI    BusClass = "scsi"
	BusMMC     BusClass = "mmc"
	BusNVMe    BusClass = "nvme"
	BusVirtual BusClass = "virtual"
	BusUnknown BusClass = "unknown"
)

// Device represents a storage unit with zero or more mount points.
// Instances are snapshots: immutable once emitted for a given poll cycle.
type Device struct {
	ID            string   `json:"id"`
	DisplayName   string   `json:"display_name"`
	MountPoints   []string `json:"mount_points"`
	CapacityBytes int64    `json:"capacity_bytes"`
	Removable     bool     `json:"removable"`
	System        bool     `json:"system"`
	Bus           BusClass `json:"bus"`
}

// PrimaryMountPoint returns the first mount point, or empty if unmounted.
func (d Device) PrimaryMountPoint() string {
	if len(d.MountPoints) == 0 {
		return ""
	}
	return d.MountPoints[0]
}
