// Package sessions provides the durable, transactional record of transfer
// sessions and their per-file status. Every mutating call runs inside a
// single transaction, and writers are serialized so interleaved updates from
// parallel workers can never produce a torn write.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"offload/pkg/models"
)

// Store persists sessions and file records in SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// FilePatch carries the optional fields of a file-status update; nil fields
// are left untouched.
type FilePatch struct {
	Status           *models.FileStatus
	BytesTransferred *int64
	Checksum         *string
	ErrorKind        *models.ErrorKind
	ErrorMessage     *string
}

// SessionPatch carries the optional fields of a session update.
type SessionPatch struct {
	Status  *models.SessionStatus
	EndTime *time.Time
}

// NewStore opens (creating if necessary) the session database.
//
// Pragmas ride in the DSN so every pooled connection gets them:
// foreign_keys is per-connection state, and a fresh connection without it
// would silently skip the ON DELETE CASCADE cleanup of session_files. WAL
// keeps the log consistent with the last committed update after a crash
// mid-transfer.
func NewStore(dbPath string) (*Store, error) {
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	database, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrDatabaseError, err)
	}

	store := &Store{db: database}
	if err := store.initialize(); err != nil {
		_ = database.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(context.Background(), Schema); err != nil {
		return fmt.Errorf("%w: failed to initialize schema: %w", ErrDatabaseError, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// inTx runs fn inside one transaction under the writer lock.
func (s *Store) inTx(fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return nil
}

// CreateSession persists a new session and its initial file records,
// enforcing at most one in-flight session per device. Returns the session
// id, generating one when absent.
func (s *Store) CreateSession(session *models.TransferSession) (string, error) {
	id := session.ID
	if id == "" {
		id = uuid.NewString()
	}

	status := session.Status
	if status == "" {
		status = models.SessionTransferring
	}

	err := s.inTx(func(tx *sql.Tx) error {
		ctx := context.Background()

		var busy bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM sessions WHERE device_id = ? AND status IN (?, ?))`,
			session.DeviceID, models.SessionTransferring, models.SessionPaused,
		).Scan(&busy)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDatabaseError, err)
		}
		if busy {
			return ErrDeviceBusy
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO sessions (id, device_id, device_name, source_root, destination_root,
			                       start_time, end_time, status, file_count, total_bytes)
			 VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?, ?)`,
			id, session.DeviceID, session.DeviceName, session.SourceRoot, session.DestinationRoot,
			session.StartTime, status, len(session.Files), session.TotalBytes,
		)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDatabaseError, err)
		}

		for i := range session.Files {
			if err := insertFile(tx, id, &session.Files[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return id, nil
}

// AddFile appends a file record to a session. Records are append-only by
// source path; a duplicate path is rejected.
func (s *Store) AddFile(sessionID string, record *models.FileTransferRecord) error {
	return s.inTx(func(tx *sql.Tx) error {
		ctx := context.Background()

		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM sessions WHERE id = ?)`, sessionID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDatabaseError, err)
		}
		if !exists {
			return ErrSessionNotFound
		}

		if err := insertFile(tx, sessionID, record); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE sessions SET file_count = file_count + 1, total_bytes = total_bytes + ? WHERE id = ?`,
			record.Size, sessionID,
		)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDatabaseError, err)
		}
		return nil
	})
}

func insertFile(tx *sql.Tx, sessionID string, record *models.FileTransferRecord) error {
	status := record.Status
	if status == "" {
		status = models.FilePending
	}

	_, err := tx.ExecContext(context.Background(),
		`INSERT INTO session_files (session_id, source_path, destination_path, file_name,
		                            size, bytes_transferred, status, checksum, error_kind, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, record.SourcePath, record.DestinationPath, record.FileName,
		record.Size, record.BytesTransferred, status,
		record.Checksum, string(record.ErrorKind), record.ErrorMessage,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrFileExists
		}
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return nil
}

// UpdateFileStatus applies a patch to one file record, all-or-nothing.
func (s *Store) UpdateFileStatus(sessionID, sourcePath string, patch FilePatch) error {
	return s.inTx(func(tx *sql.Tx) error {
		setClauses := make([]string, 0, 5)
		args := make([]any, 0, 7)

		if patch.Status != nil {
			setClauses = append(setClauses, "status = ?")
			args = append(args, *patch.Status)
		}
		if patch.BytesTransferred != nil {
			setClauses = append(setClauses, "bytes_transferred = ?")
			args = append(args, *patch.BytesTransferred)
		}
		if patch.Checksum != nil {
			setClauses = append(setClauses, "checksum = ?")
			args = append(args, *patch.Checksum)
		}
		if patch.ErrorKind != nil {
			setClauses = append(setClauses, "error_kind = ?")
			args = append(args, string(*patch.ErrorKind))
		}
		if patch.ErrorMessage != nil {
			setClauses = append(setClauses, "error_message = ?")
			args = append(args, *patch.ErrorMessage)
		}
		if len(setClauses) == 0 {
			return nil
		}

		args = append(args, sessionID, sourcePath)
		query := `UPDATE session_files SET ` + strings.Join(setClauses, ", ") +
			` WHERE session_id = ? AND source_path = ?`

		result, err := tx.ExecContext(context.Background(), query, args...)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDatabaseError, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDatabaseError, err)
		}
		if affected == 0 {
			return ErrFileNotFound
		}
		return nil
	})
}

// UpdateSession applies a patch to a session, enforcing the monotonic
// status lifecycle: paused and transferring may alternate, terminal states
// are final.
func (s *Store) UpdateSession(sessionID string, patch SessionPatch) error {
	return s.inTx(func(tx *sql.Tx) error {
		ctx := context.Background()

		var current models.SessionStatus
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM sessions WHERE id = ?`, sessionID,
		).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDatabaseError, err)
		}

		if patch.Status != nil && !validTransition(current, *patch.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, *patch.Status)
		}

		setClauses := make([]string, 0, 2)
		args := make([]any, 0, 3)
		if patch.Status != nil {
			setClauses = append(setClauses, "status = ?")
			args = append(args, *patch.Status)
		}
		if patch.EndTime != nil {
			setClauses = append(setClauses, "end_time = ?")
			args = append(args, *patch.EndTime)
		}
		if len(setClauses) == 0 {
			return nil
		}

		args = append(args, sessionID)
		query := `UPDATE sessions SET ` + strings.Join(setClauses, ", ") + ` WHERE id = ?`
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("%w: %w", ErrDatabaseError, err)
		}
		return nil
	})
}

// validTransition encodes the session lifecycle.
func validTransition(from, to models.SessionStatus) bool {
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	switch from {
	case models.SessionTransferring:
		return true // pause or any terminal state
	case models.SessionPaused:
		return true // resume or any terminal state
	default:
		return false
	}
}

// GetSession returns one session with its ordered file records.
func (s *Store) GetSession(sessionID string) (*models.TransferSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()

	session, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT id, device_id, device_name, source_root, destination_root,
		        start_time, end_time, status, file_count, total_bytes
		 FROM sessions WHERE id = ?`, sessionID))
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT source_path, destination_path, file_name, size, bytes_transferred,
		        status, checksum, error_kind, error_message
		 FROM session_files WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			record   models.FileTransferRecord
			checksum sql.NullString
			kind     sql.NullString
			message  sql.NullString
		)
		err := rows.Scan(&record.SourcePath, &record.DestinationPath, &record.FileName,
			&record.Size, &record.BytesTransferred, &record.Status, &checksum, &kind, &message)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
		}
		record.Checksum = checksum.String
		record.ErrorKind = models.ErrorKind(kind.String)
		record.ErrorMessage = message.String
		if record.Size > 0 {
			record.Percentage = float64(record.BytesTransferred) / float64(record.Size) * 100
		}
		session.Files = append(session.Files, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	return session, nil
}

// GetAllSessions returns every session, newest first, without file records.
func (s *Store) GetAllSessions() ([]models.TransferSession, error) {
	return s.querySessions(
		`SELECT id, device_id, device_name, source_root, destination_root,
		        start_time, end_time, status, file_count, total_bytes
		 FROM sessions ORDER BY start_time DESC`)
}

// GetSessionsByStatus returns sessions with the given status, newest first.
func (s *Store) GetSessionsByStatus(status models.SessionStatus) ([]models.TransferSession, error) {
	return s.querySessions(
		`SELECT id, device_id, device_name, source_root, destination_root,
		        start_time, end_time, status, file_count, total_bytes
		 FROM sessions WHERE status = ? ORDER BY start_time DESC`, status)
}

// GetSessionsInRange returns sessions started within [from, to), newest
// first.
func (s *Store) GetSessionsInRange(from, to time.Time) ([]models.TransferSession, error) {
	return s.querySessions(
		`SELECT id, device_id, device_name, source_root, destination_root,
		        start_time, end_time, status, file_count, total_bytes
		 FROM sessions WHERE start_time >= ? AND start_time < ? ORDER BY start_time DESC`,
		from, to)
}

// HasActiveSession reports whether the device has an in-flight
// (transferring or paused) session.
func (s *Store) HasActiveSession(deviceID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active bool
	err := s.db.QueryRowContext(context.Background(),
		`SELECT EXISTS(SELECT 1 FROM sessions WHERE device_id = ? AND status IN (?, ?))`,
		deviceID, models.SessionTransferring, models.SessionPaused,
	).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return active, nil
}

// Clear removes all sessions and file records.
func (s *Store) Clear() error {
	return s.inTx(func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(context.Background(), `DELETE FROM sessions`); err != nil {
			return fmt.Errorf("%w: %w", ErrDatabaseError, err)
		}
		return nil
	})
}

func (s *Store) querySessions(query string, args ...any) ([]models.TransferSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []models.TransferSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.TransferSession, error) {
	session := &models.TransferSession{}
	var endTime sql.NullTime

	err := row.Scan(&session.ID, &session.DeviceID, &session.DeviceName,
		&session.SourceRoot, &session.DestinationRoot,
		&session.StartTime, &endTime, &session.Status,
		&session.FileCount, &session.TotalBytes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	if endTime.Valid {
		t := endTime.Time
		session.EndTime = &t
	}
	return session, nil
}
