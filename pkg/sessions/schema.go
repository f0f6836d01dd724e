package sessions

// Schema contains the SQL statements to create the session database schema.
const Schema = `
-- Sessions table: one row per transfer session
CREATE TABLE IF NOT EXISTS sessions (
    id               TEXT PRIMARY KEY,
    device_id        TEXT NOT NULL,
    device_name      TEXT NOT NULL,
    source_root      TEXT NOT NULL,
    destination_root TEXT NOT NULL,
    start_time       DATETIME NOT NULL,
    end_time         DATETIME,
    status           TEXT NOT NULL,
    file_count       INTEGER NOT NULL DEFAULT 0,
    total_bytes      INTEGER NOT NULL DEFAULT 0
);

-- Per-file records: append-only by (session, source path)
CREATE TABLE IF NOT EXISTS session_files (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id        TEXT NOT NULL,
    source_path       TEXT NOT NULL,
    destination_path  TEXT NOT NULL,
    file_name         TEXT NOT NULL,
    size              INTEGER NOT NULL DEFAULT 0,
    bytes_transferred INTEGER NOT NULL DEFAULT 0,
    status            TEXT NOT NULL,
    checksum          TEXT,
    error_kind        TEXT,
    error_message     TEXT,
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE,
    UNIQUE (session_id, source_path)
);

-- Indexes for history queries
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_device ON sessions(device_id);
CREATE INDEX IF NOT EXISTS idx_sessions_start ON sessions(start_time);
CREATE INDEX IF NOT EXISTS idx_session_files_session ON session_files(session_id);
`
