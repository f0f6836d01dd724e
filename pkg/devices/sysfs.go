package devices

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"offload/pkg/log"
	"offload/pkg/models"
)

const sectorSize = 512

// Lister enumerates the storage devices currently visible to the host.
type Lister interface {
	List() ([]models.Device, error)
}

// SysfsLister builds device snapshots from /sys/block and the mount table.
type SysfsLister struct {
	sysBlock   string
	mountsFile string
}

// NewSysfsLister creates a lister over the standard kernel paths.
func NewSysfsLister() *SysfsLister {
	return &SysfsLister{
		sysBlock:   "/sys/block",
		mountsFile: "/proc/self/mounts",
	}
}

// List returns a snapshot of all block devices. Per-device read failures
// are logged and the device skipped; only an unreadable /sys/block is fatal.
func (l *SysfsLister) List() ([]models.Device, error) {
	entries, err := os.ReadDir(l.sysBlock)
	if err != nil {
		log.Error().Err(err).Str("sys_block", l.sysBlock).Msg("Failed to read block device directory")
		return nil, err
	}

	mounts, err := l.readMounts()
	if err != nil {
		log.Error().Err(err).Str("mounts", l.mountsFile).Msg("Failed to read mount table")
		return nil, err
	}

	devices := make([]models.Device, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "loop") || strings.HasPrefix(name, "ram") ||
			strings.HasPrefix(name, "zram") || strings.HasPrefix(name, "dm-") {
			continue
		}
		devices = append(devices, l.readDevice(name, mounts))
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}

// readDevice assembles one device snapshot from its sysfs attributes.
func (l *SysfsLister) readDevice(name string, mounts map[string][]string) models.Device {
	base := filepath.Join(l.sysBlock, name)

	capacity := int64(0)
	if sectors, err := readInt(filepath.Join(base, "size")); err == nil {
		capacity = sectors * sectorSize
	}

	removable := readFlag(filepath.Join(base, "removable"))
	bus := busClassOf(base)

	mountPoints, system := collectMounts(name, mounts)
	if bus == models.BusVirtual {
		system = true
	}

	return models.Device{
		ID:            deviceID(base, name),
		DisplayName:   displayName(base, name),
		MountPoints:   mountPoints,
		CapacityBytes: capacity,
		Removable:     removable,
		System:        system,
		Bus:           bus,
	}
}

// deviceID derives a stable handle for the device: serial or WWID when the
// kernel exposes one, device name otherwise.
func deviceID(base, name string) string {
	for _, attr := range []string{"device/serial", "device/wwid", "wwid"} {
		if v, err := readString(filepath.Join(base, attr)); err == nil && v != "" {
			return name + ":" + v
		}
	}
	return name
}

// displayName prefers the hardware vendor/model strings over the kernel name.
func displayName(base, name string) string {
	vendor, _ := readString(filepath.Join(base, "device/vendor"))
	model, _ := readString(filepath.Join(base, "device/model"))
	label := strings.TrimSpace(vendor + " " + model)
	if label == "" {
		return name
	}
	return label
}

// busClassOf classifies the controller from the sysfs device path. The
// /sys/block entries are symlinks into the physical device tree, so the
// transport shows up as a path component.
func busClassOf(base string) models.BusClass {
	target, err := os.Readlink(base)
	if err != nil {
		// Fall back to the resolved device symlink.
		target, err = os.Readlink(filepath.Join(base, "device"))
		if err != nil {
			return models.BusUnknown
		}
	}

	path := strings.ToLower(target)
	switch {
	case strings.Contains(path, "/usb"):
		return models.BusUSB
	case strings.Contains(path, "/mmc"):
		return models.BusMMC
	case strings.Contains(path, "/nvme"):
		return models.BusNVMe
	case strings.Contains(path, "/ata"):
		return models.BusATA
	case strings.Contains(path, "/virtual/"):
		return models.BusVirtual
	case strings.Contains(path, "/scsi"):
		return models.BusSCSI
	default:
		return models.BusUnknown
	}
}

// collectMounts gathers the mount points for a disk and its partitions and
// flags disks that carry system mounts.
func collectMounts(name string, mounts map[string][]string) ([]string, bool) {
	var points []string
	system := false
	for dev, paths := range mounts {
		if !strings.HasPrefix(dev, "/dev/"+name) {
			continue
		}
		for _, p := range paths {
			points = append(points, p)
			if p == "/" || p == "/boot" || p == "/boot/efi" || strings.HasPrefix(p, "/usr") {
				system = true
			}
		}
	}
	sort.Strings(points)
	return points, system
}

// readMounts parses the mount table into device -> mount points.
func (l *SysfsLister) readMounts() (map[string][]string, error) {
	f, err := os.Open(l.mountsFile)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close mount table")
		}
	}()

	mounts := make(map[string][]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || !strings.HasPrefix(fields[0], "/dev/") {
			continue
		}
		mounts[fields[0]] = append(mounts[fields[0]], unescapeMountPath(fields[1]))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return mounts, nil
}

// unescapeMountPath decodes the octal escapes the kernel uses for spaces
// and other special characters in mount paths.
func unescapeMountPath(path string) string {
	if !strings.Contains(path, `\`) {
		return path
	}

	var b strings.Builder
	for i := 0; i < len(path); i++ {
		if path[i] == '\\' && i+3 < len(path) {
			if code, err := strconv.ParseUint(path[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(code))
				i += 3
				continue
			}
		}
		b.WriteByte(path[i])
	}
	return b.String()
}

func readString(path string) (string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // sysfs attribute paths are fixed
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readInt(path string) (int64, error) {
	v, err := readString(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

func readFlag(path string) bool {
	v, err := readString(path)
	return err == nil && v == "1"
}
