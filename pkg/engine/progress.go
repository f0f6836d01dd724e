package engine

import (
	"sort"
	"time"

	"offload/pkg/models"
)

// emitLoop pushes coalesced snapshots until the current run drains. One
// final snapshot per run comes from finalize, not from this loop.
func (e *Engine) emitLoop(interval time.Duration, runDone <-chan struct{}) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-runDone:
			return
		case <-ticker.C:
			e.emitSnapshot()
		}
	}
}

// emitSnapshot sends the current state without blocking; when the consumer
// lags, the snapshot is dropped in favour of a fresher one later.
func (e *Engine) emitSnapshot() {
	snapshot := e.snapshot()
	select {
	case e.events <- snapshot:
	default:
	}
}

// Snapshot returns the current progress of the session.
func (e *Engine) Snapshot() models.Progress {
	return e.snapshot()
}

func (e *Engine) snapshot() models.Progress {
	e.mu.Lock()
	defer e.mu.Unlock()

	active := make([]models.FileProgress, 0, len(e.active))
	var inFlight int64
	for _, af := range e.active {
		transferred := af.bytes.Load()
		inFlight += transferred
		fp := models.FileProgress{
			SourcePath:       af.source,
			FileName:         af.name,
			BytesTransferred: transferred,
			Size:             af.size,
		}
		if af.size > 0 {
			fp.Percentage = float64(transferred) / float64(af.size) * 100
		}
		active = append(active, fp)
	}
	sort.Slice(active, func(i, j int) bool { return active[i].SourcePath < active[j].SourcePath })

	progress := models.Progress{
		SessionID:        e.sessionID,
		ActiveFiles:      active,
		BytesTransferred: e.doneBytes + inFlight,
		TotalBytes:       e.totalBytes,
		CompletedFiles:   append([]string(nil), e.completed...),
		FailedFiles:      append([]string(nil), e.failed...),
		Status:           e.status,
	}
	if e.totalBytes > 0 {
		progress.Percentage = float64(progress.BytesTransferred) / float64(e.totalBytes) * 100
	}
	return progress
}
