package devices

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"offload/pkg/models"
)

// TestDefaultRemovable exercises the bus-class heuristic.
func TestDefaultRemovable(t *testing.T) {
	testCases := []struct {
		name   string
		device models.Device
		want   bool
	}{
		{"usb stick", models.Device{Removable: true, Bus: models.BusUSB}, true},
		{"sd card", models.Device{Removable: true, Bus: models.BusMMC}, true},
		{"unknown bus removable", models.Device{Removable: true, Bus: models.BusUnknown}, true},
		{"sata disk", models.Device{Removable: true, Bus: models.BusSATA}, false},
		{"ata disk", models.Device{Removable: true, Bus: models.BusATA}, false},
		{"bare scsi", models.Device{Removable: true, Bus: models.BusSCSI}, false},
		{"virtual", models.Device{Removable: true, Bus: models.BusVirtual}, false},
		{"non removable usb", models.Device{Removable: false, Bus: models.BusUSB}, false},
		{"system disk", models.Device{Removable: true, System: true, Bus: models.BusUSB}, false},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, DefaultRemovable(tc.device), tc.name)
	}
}
