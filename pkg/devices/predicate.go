package devices

import "offload/pkg/models"

// RemovablePredicate decides whether a device counts as truly removable.
// The default rule set is a heuristic over bus classes and is known to be
// platform-fragile; hosts with unusual storage controllers can substitute
// their own predicate.
type RemovablePredicate func(models.Device) bool

// DefaultRemovable excludes system disks and internal buses. SATA/ATA are
// never treated as removable; bare SCSI only counts when the kernel also
// flags the disk removable and it is reached over USB.
func DefaultRemovable(d models.Device) bool {
	if d.System || !d.Removable {
		return false
	}

	switch d.Bus {
	case models.BusSATA, models.BusATA, models.BusVirtual:
		return false
	case models.BusSCSI:
		// Removable flag alone is not trustworthy for bare SCSI
		// controllers; without a USB path we leave them out.
		return false
	case models.BusUSB, models.BusMMC:
		return true
	default:
		return true
	}
}
