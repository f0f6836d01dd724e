package devices

import (
	"sync"
	"time"

	"offload/pkg/log"
	"offload/pkg/models"
)

const defaultPollInterval = 2 * time.Second

// DeviceEventFunc receives device add/remove notifications.
type DeviceEventFunc func(models.Device)

// Monitor detects device arrival and removal by polling a Lister and
// diffing snapshots. Polling is a deliberate cross-platform tradeoff over
// OS change notifications; detection latency is bounded by the poll
// interval. The snapshot is owned exclusively by the polling loop.
type Monitor struct {
	lister   Lister
	interval time.Duration

	mu         sync.Mutex
	monitoring bool
	snapshot   map[string]models.Device
	stopCh     chan struct{}
	wg         sync.WaitGroup

	onAdded   DeviceEventFunc
	onRemoved DeviceEventFunc
}

// NewMonitor creates a monitor polling the given lister.
func NewMonitor(lister Lister, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Monitor{
		lister:   lister,
		interval: interval,
		snapshot: make(map[string]models.Device),
	}
}

// Start begins polling. The first poll runs synchronously, so every device
// present at start is reported as added before Start returns. Fails if the
// monitor is already running.
func (m *Monitor) Start(onAdded, onRemoved DeviceEventFunc) error {
	m.mu.Lock()
	if m.monitoring {
		m.mu.Unlock()
		return ErrAlreadyMonitoring
	}
	m.monitoring = true
	m.onAdded = onAdded
	m.onRemoved = onRemoved
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	m.poll()

	m.wg.Add(1)
	go m.pollLoop()

	log.Info().Dur("interval", m.interval).Msg("Device monitor started")
	return nil
}

// Stop halts polling and clears the snapshot. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.monitoring {
		m.mu.Unlock()
		return
	}
	m.monitoring = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	m.snapshot = make(map[string]models.Device)
	m.mu.Unlock()

	log.Info().Msg("Device monitor stopped")
}

// IsMonitoring reports whether the polling loop is active.
func (m *Monitor) IsMonitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.monitoring
}

func (m *Monitor) pollLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.poll()
		}
	}
}

// poll lists devices and diffs against the previous snapshot. The
// monitoring flag is checked both before and after the list call so a
// stale result cannot fire callbacks after Stop.
func (m *Monitor) poll() {
	if !m.IsMonitoring() {
		return
	}

	devices, err := m.lister.List()
	if err != nil {
		log.Warn().Err(err).Msg("Device poll failed")
		return
	}

	m.mu.Lock()
	if !m.monitoring {
		// Stop raced the list call; drop the stale result.
		m.mu.Unlock()
		return
	}

	current := make(map[string]models.Device, len(devices))
	for _, d := range devices {
		current[d.ID] = d
	}
	previous := m.snapshot
	m.snapshot = current
	onAdded, onRemoved := m.onAdded, m.onRemoved
	m.mu.Unlock()

	var added, removed []models.Device

	for id, d := range current {
		prev, existed := previous[id]
		if !existed {
			added = append(added, d)
			continue
		}
		// A remount surfaces as removal followed by add so dependent
		// state resets.
		if !sameMounts(prev.MountPoints, d.MountPoints) {
			removed = append(removed, prev)
			added = append(added, d)
		}
	}
	for id, d := range previous {
		if _, still := current[id]; !still {
			removed = append(removed, d)
		}
	}

	for _, d := range removed {
		log.Info().Str("device", d.ID).Msg("Device removed")
		if onRemoved != nil {
			onRemoved(d)
		}
	}
	for _, d := range added {
		log.Info().Str("device", d.ID).Strs("mounts", d.MountPoints).Msg("Device added")
		if onAdded != nil {
			onAdded(d)
		}
	}
}

// sameMounts compares mount point lists; listers emit them sorted.
func sameMounts(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
