// Package engine executes validated transfer requests: a bounded worker
// pool copies files with rolling checksums, reports coalesced progress, and
// records every state transition durably in the session store.
package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"offload/pkg/config"
	"offload/pkg/log"
	"offload/pkg/models"
	"offload/pkg/resolver"
	"offload/pkg/sessions"
)

const eventBuffer = 32

// queuedFile is one scheduled copy.
type queuedFile struct {
	source models.ScannedFile
	dest   string
	name   string
}

// activeFile tracks the byte counter of an in-flight copy. The counter is
// atomic so the progress emitter can read it without stalling the worker.
type activeFile struct {
	source string
	name   string
	size   int64
	bytes  atomic.Int64
}

// Engine runs at most one session at a time. Hosts construct one engine
// per destination and pass it explicitly to callers; there is no process
// singleton.
type Engine struct {
	store *sessions.Store
	res   *resolver.Resolver
	cfg   *config.Config

	cancelled atomic.Bool

	// startMu serializes Start end to end so two callers can never both
	// pass the in-flight guard and commit over each other's session.
	startMu sync.Mutex

	mu          sync.Mutex
	status      models.SessionStatus // "" means idle
	sessionID   string
	request     *models.TransferRequest
	pending     []queuedFile
	active      map[string]*activeFile
	completed   []string
	failed      []string
	skipped     int
	totalBytes  int64
	doneBytes   int64
	poolTier    config.BufferTier
	poolRunning bool
	done        chan struct{}

	workerWg sync.WaitGroup
	events   chan models.Progress
}

// New creates an engine bound to a session store, resolver and config.
func New(store *sessions.Store, res *resolver.Resolver, cfg *config.Config) *Engine {
	return &Engine{
		store:  store,
		res:    res,
		cfg:    cfg,
		active: make(map[string]*activeFile),
		events: make(chan models.Progress, eventBuffer),
	}
}

// Events returns the progress channel. Snapshots are coalesced at the
// pool tier's emission interval; a slow consumer loses intermediate
// snapshots, it never blocks the transfer.
func (e *Engine) Events() <-chan models.Progress {
	return e.events
}

// IsTransferring reports whether a session is actively copying.
func (e *Engine) IsTransferring() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status == models.SessionTransferring
}

// SessionID returns the current (or most recent) session id.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// Start begins a new session for a validated request and returns its id.
// The copy runs asynchronously; observe it via Events, the session store,
// or Wait. At most one session per engine and per device may be in flight.
func (e *Engine) Start(req *models.TransferRequest) (string, error) {
	if len(req.Files) == 0 {
		return "", ErrNoFiles
	}

	e.startMu.Lock()
	defer e.startMu.Unlock()

	e.mu.Lock()
	if e.status == models.SessionTransferring || e.status == models.SessionPaused {
		e.mu.Unlock()
		return "", ErrTransferInProgress
	}
	e.mu.Unlock()

	queue, records, skipped, totalBytes, err := e.plan(req)
	if err != nil {
		return "", err
	}

	session := &models.TransferSession{
		DeviceID:        req.DeviceID,
		DeviceName:      req.DeviceName,
		SourceRoot:      req.SourceRoot,
		DestinationRoot: req.DestinationRoot,
		StartTime:       time.Now(),
		Status:          models.SessionTransferring,
		TotalBytes:      totalBytes,
		Files:           records,
	}
	sessionID, err := e.store.CreateSession(session)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	e.status = models.SessionTransferring
	e.sessionID = sessionID
	e.request = req
	e.pending = queue
	e.active = make(map[string]*activeFile)
	e.completed = nil
	e.failed = nil
	e.skipped = skipped
	e.totalBytes = totalBytes
	e.doneBytes = 0
	e.poolTier = e.batchTier(queue)
	e.done = make(chan struct{})
	e.cancelled.Store(false)
	e.mu.Unlock()

	log.Info().
		Str("session", sessionID).
		Str("device", req.DeviceID).
		Int("files", len(queue)).
		Int("skipped", skipped).
		Int64("total_bytes", totalBytes).
		Int("workers", e.poolTier.Workers).
		Msg("Transfer started")

	e.launch()
	return sessionID, nil
}

// plan resolves destinations and applies the conflict policy before any
// byte is copied. Skip removes a conflicting file from the batch entirely;
// rename pre-resolves a free destination name. Two sources in one batch
// resolving to the same destination (flattening, timestamp renames) are a
// conflict too: the later one is skipped or renamed, never allowed to race
// the first for the same path.
func (e *Engine) plan(req *models.TransferRequest) ([]queuedFile, []models.FileTransferRecord, int, int64, error) {
	queue := make([]queuedFile, 0, len(req.Files))
	records := make([]models.FileTransferRecord, 0, len(req.Files))
	planned := make(map[string]struct{}, len(req.Files))
	skipped := 0
	var totalBytes int64

	for _, file := range req.Files {
		// Absent size hints fall back to a stat so totals and tier
		// selection stay honest.
		if file.Size == 0 {
			if info, statErr := os.Stat(file.Path); statErr == nil {
				file.Size = info.Size()
			}
		}

		resolved, err := e.res.Resolve(file.Path, req.SourceRoot, req.DestinationRoot, e.cfg, req.DeviceName)
		if err != nil {
			return nil, nil, 0, 0, err
		}

		dest := resolved.Path
		onDisk := fileExists(dest)
		_, inBatch := planned[dest]
		if onDisk || inBatch {
			switch {
			case req.Policy == models.PolicySkip:
				skipped++
				records = append(records, models.FileTransferRecord{
					SourcePath:      file.Path,
					DestinationPath: dest,
					FileName:        resolved.FileName,
					Size:            file.Size,
					Status:          models.FileSkipped,
				})
				continue
			case req.Policy == models.PolicyRename || inBatch:
				// Overwrite cannot apply between two files of the same
				// batch; the later one gets a renamed target.
				dest = renameTarget(dest, planned)
			default:
				// Overwrite, or ask already confirmed by the caller.
			}
		}
		planned[dest] = struct{}{}

		queue = append(queue, queuedFile{source: file, dest: dest, name: filepath.Base(dest)})
		records = append(records, models.FileTransferRecord{
			SourcePath:      file.Path,
			DestinationPath: dest,
			FileName:        filepath.Base(dest),
			Size:            file.Size,
			Status:          models.FilePending,
		})
		totalBytes += file.Size
	}

	return queue, records, skipped, totalBytes, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// renameTarget finds the first "name (n).ext" variant free both on disk
// and among the batch's already-planned destinations. The copy still
// truncates on create in case the target appears between planning and
// copying.
func renameTarget(dest string, planned map[string]struct{}) string {
	ext := filepath.Ext(dest)
	stem := strings.TrimSuffix(dest, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if _, taken := planned[candidate]; taken {
			continue
		}
		if !fileExists(candidate) {
			return candidate
		}
	}
}

// batchTier picks the pool parameters from the largest file in the batch,
// so batches dominated by very large files run fewer, bigger copies.
func (e *Engine) batchTier(queue []queuedFile) config.BufferTier {
	var largest int64
	for _, qf := range queue {
		if qf.source.Size > largest {
			largest = qf.source.Size
		}
	}
	return e.cfg.TierFor(largest)
}

// launch spawns the worker pool, the progress emitter, and the controller
// that settles the session once the pool drains. At most one pool (and
// hence one controller) exists at a time; poolRunning tracks it.
func (e *Engine) launch() {
	e.mu.Lock()
	e.poolRunning = true
	workers := e.poolTier.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(e.pending) {
		workers = len(e.pending)
	}
	interval := e.poolTier.EmitInterval
	e.mu.Unlock()

	runDone := make(chan struct{})
	for i := 0; i < workers; i++ {
		e.workerWg.Add(1)
		go e.worker()
	}

	go e.emitLoop(interval, runDone)

	go func() {
		e.workerWg.Wait()
		close(runDone)
		e.settle()
	}()
}

// settle runs when the pool drains. A session resumed while the old pool
// was still draining relaunches here instead of spawning a second pool;
// everything else falls through to finalize.
func (e *Engine) settle() {
	e.mu.Lock()
	e.poolRunning = false
	resumed := e.status == models.SessionTransferring && !e.cancelled.Load() && len(e.pending) > 0
	e.mu.Unlock()

	if resumed {
		e.launch()
		return
	}
	e.finalize()
}

// worker pulls files until the queue drains, the session pauses, or the
// session is cancelled.
func (e *Engine) worker() {
	defer e.workerWg.Done()

	for {
		qf, tracker, ok := e.dequeue()
		if !ok {
			return
		}
		e.processFile(qf, tracker)
	}
}

// dequeue hands out the next pending file. Pausing stops the hand-out
// while in-flight copies run to completion.
func (e *Engine) dequeue() (queuedFile, *activeFile, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != models.SessionTransferring || e.cancelled.Load() || len(e.pending) == 0 {
		return queuedFile{}, nil, false
	}

	qf := e.pending[0]
	e.pending = e.pending[1:]
	tracker := &activeFile{source: qf.source.Path, name: qf.name, size: qf.source.Size}
	e.active[qf.source.Path] = tracker
	return qf, tracker, true
}

// processFile copies one file and records the outcome.
func (e *Engine) processFile(qf queuedFile, tracker *activeFile) {
	e.mu.Lock()
	sessionID := e.sessionID
	e.mu.Unlock()

	transferring := models.FileTransferring
	e.updateFile(sessionID, qf.source.Path, sessions.FilePatch{Status: &transferring})

	tier := e.cfg.TierFor(qf.source.Size)
	checksum, err := e.copyFile(sessionID, qf.source.Path, qf.dest, tier, tracker)

	e.mu.Lock()
	delete(e.active, qf.source.Path)
	e.mu.Unlock()

	switch {
	case err == nil:
		complete := models.FileComplete
		// The tracker carries the measured byte count; the request's
		// size field is only a hint.
		transferred := tracker.bytes.Load()
		patch := sessions.FilePatch{Status: &complete, BytesTransferred: &transferred}
		if checksum != "" {
			patch.Checksum = &checksum
		}
		e.updateFile(sessionID, qf.source.Path, patch)

		e.mu.Lock()
		e.completed = append(e.completed, qf.source.Path)
		e.doneBytes += transferred
		e.mu.Unlock()

	case errors.Is(err, errCancelled):
		// Put the record back to pending; finalize marks the session.
		pending := models.FilePending
		zero := int64(0)
		e.updateFile(sessionID, qf.source.Path, sessions.FilePatch{Status: &pending, BytesTransferred: &zero})
		log.Debug().Str("source", qf.source.Path).Msg("Copy aborted by cancellation")

	default:
		kind := classify(err)
		message := err.Error()
		failed := models.FileError
		e.updateFile(sessionID, qf.source.Path, sessions.FilePatch{
			Status:       &failed,
			ErrorKind:    &kind,
			ErrorMessage: &message,
		})

		e.mu.Lock()
		e.failed = append(e.failed, qf.source.Path)
		e.mu.Unlock()

		log.Error().Err(err).
			Str("source", qf.source.Path).
			Str("kind", string(kind)).
			Msg("File transfer failed")
	}
}

// finalize decides the session outcome once the pool drains. The terminal
// transition happens exactly once; late callers see the terminal status
// and back off.
func (e *Engine) finalize() {
	e.mu.Lock()
	if e.status.Terminal() {
		e.mu.Unlock()
		return
	}
	sessionID := e.sessionID
	destRoot := ""
	if e.request != nil {
		destRoot = e.request.DestinationRoot
	}

	var final models.SessionStatus
	switch {
	case e.cancelled.Load():
		final = models.SessionCancelled
	case e.status == models.SessionPaused:
		final = models.SessionPaused
	case len(e.failed) > 0:
		final = models.SessionError
	default:
		final = models.SessionComplete
	}
	e.status = final
	done := e.done
	failed, completed := len(e.failed), len(e.completed)
	e.mu.Unlock()

	e.persistStatus(sessionID, final, final.Terminal())

	switch final {
	case models.SessionPaused:
		log.Info().Str("session", sessionID).Msg("Transfer paused")
	case models.SessionCancelled:
		log.Info().Str("session", sessionID).Msg("Transfer cancelled")
	case models.SessionError:
		log.Warn().Str("session", sessionID).
			Int("failed", failed).
			Int("completed", completed).
			Msg("Transfer finished with errors")
	default:
		if e.cfg.WriteManifest {
			if err := e.writeManifest(sessionID, destRoot); err != nil {
				log.Error().Err(err).Str("session", sessionID).Msg("Failed to write manifest")
			}
		}
		log.Info().Str("session", sessionID).Int("files", completed).Msg("Transfer complete")
	}

	e.emitSnapshot()
	if final.Terminal() {
		close(done)
	}
}

// persistStatus writes the session status (and end time for terminal
// states) to the store.
func (e *Engine) persistStatus(sessionID string, status models.SessionStatus, terminal bool) {
	patch := sessions.SessionPatch{Status: &status}
	if terminal {
		now := time.Now()
		patch.EndTime = &now
	}
	if err := e.store.UpdateSession(sessionID, patch); err != nil {
		log.Error().Err(err).
			Str("session", sessionID).
			Str("status", string(status)).
			Msg("Failed to persist session status")
	}
}

// updateFile patches one file record, logging rather than failing the
// transfer when the store write goes wrong.
func (e *Engine) updateFile(sessionID, sourcePath string, patch sessions.FilePatch) {
	if err := e.store.UpdateFileStatus(sessionID, sourcePath, patch); err != nil {
		log.Error().Err(err).Str("source", sourcePath).Msg("Failed to persist file status")
	}
}

// Pause stops dequeuing new files; in-flight copies run to completion
// before the session settles as paused.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != models.SessionTransferring {
		return ErrNotTransferring
	}
	e.status = models.SessionPaused
	log.Info().Str("session", e.sessionID).Msg("Pause requested")
	return nil
}

// Resume re-launches the pool over the remaining pending files of a
// paused session. When the previous pool is still draining its in-flight
// copies, flipping the status back is enough: live workers keep dequeuing
// and the draining controller relaunches if they have all exited.
func (e *Engine) Resume() error {
	e.mu.Lock()
	if e.status != models.SessionPaused {
		e.mu.Unlock()
		return ErrNotPaused
	}
	e.status = models.SessionTransferring
	sessionID := e.sessionID
	remaining := len(e.pending)
	launchNeeded := !e.poolRunning
	e.mu.Unlock()

	e.persistStatus(sessionID, models.SessionTransferring, false)
	log.Info().Str("session", sessionID).Int("remaining", remaining).Msg("Transfer resumed")

	if launchNeeded {
		e.launch()
	}
	return nil
}

// Cancel aborts the session. The flag is checked at chunk granularity; a
// file mid-copy aborts and its partial destination is removed. Completed
// files are retained.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	status := e.status
	if status != models.SessionTransferring && status != models.SessionPaused {
		e.mu.Unlock()
		return ErrNotTransferring
	}
	e.cancelled.Store(true)
	poolRunning := e.poolRunning
	e.mu.Unlock()

	// A draining pool's controller finalizes when the last copy aborts;
	// only finalize directly when no pool is left to do it.
	if !poolRunning {
		e.finalize()
	}
	return nil
}

// Wait blocks until the current session reaches a terminal state.
func (e *Engine) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

// WaitIdle blocks until the worker pool drains, terminal or paused.
func (e *Engine) WaitIdle() {
	e.workerWg.Wait()
}

// Retry re-copies a single failed file of a finished session. Only
// transient failures (network, drive disconnect) are eligible; the file
// record is updated in place and the session status is left unchanged.
func (e *Engine) Retry(sessionID, sourcePath string) error {
	e.mu.Lock()
	if e.status == models.SessionTransferring || e.status == models.SessionPaused {
		e.mu.Unlock()
		return ErrTransferInProgress
	}
	e.mu.Unlock()
	// A leftover flag from a cancelled session must not abort the retry.
	e.cancelled.Store(false)

	session, err := e.store.GetSession(sessionID)
	if err != nil {
		return err
	}

	var rec *models.FileTransferRecord
	for i := range session.Files {
		if session.Files[i].SourcePath == sourcePath {
			rec = &session.Files[i]
			break
		}
	}
	if rec == nil {
		return sessions.ErrFileNotFound
	}
	if rec.Status != models.FileError || !rec.ErrorKind.Retryable() {
		return ErrNotRetryable
	}

	transferring := models.FileTransferring
	e.updateFile(sessionID, sourcePath, sessions.FilePatch{Status: &transferring})

	tier := e.cfg.TierFor(rec.Size)
	tracker := &activeFile{source: sourcePath, name: rec.FileName, size: rec.Size}
	checksum, copyErr := e.copyFile(sessionID, sourcePath, rec.DestinationPath, tier, tracker)
	if copyErr != nil {
		kind := classify(copyErr)
		message := copyErr.Error()
		failed := models.FileError
		e.updateFile(sessionID, sourcePath, sessions.FilePatch{
			Status:       &failed,
			ErrorKind:    &kind,
			ErrorMessage: &message,
		})
		return copyErr
	}

	complete := models.FileComplete
	transferred := tracker.bytes.Load()
	none := models.ErrKindNone
	empty := ""
	patch := sessions.FilePatch{
		Status:           &complete,
		BytesTransferred: &transferred,
		ErrorKind:        &none,
		ErrorMessage:     &empty,
	}
	if checksum != "" {
		patch.Checksum = &checksum
	}
	e.updateFile(sessionID, sourcePath, patch)

	log.Info().Str("session", sessionID).Str("source", sourcePath).Msg("Retry succeeded")
	return nil
}
