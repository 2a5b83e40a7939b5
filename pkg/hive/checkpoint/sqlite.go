package checkpoint

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// SQLiteStore persists checkpoints to SQLite as an alternative backing
// store to FileStore, for deployments that prefer a single database file
// over a directory tree. It implements the same content-addressed,
// checksum-verified contract.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a new SQLite checkpoint store. path may be a file
// path or ":memory:" for testing. The database file is created with
// restrictive permissions (0600).
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			f, createErr := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
			if createErr == nil {
				if closeErr := f.Close(); closeErr != nil {
					slog.Warn("failed to close checkpoint file after creation",
						slog.String("path", path), slog.String("error", closeErr.Error()))
				}
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			checkpoint_id TEXT PRIMARY KEY,
			execution_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			resume_node TEXT NOT NULL,
			state_snapshot BLOB NOT NULL,
			pending_client_request BLOB,
			parent_checkpoint TEXT,
			visit_counts BLOB,
			last_seq INTEGER NOT NULL DEFAULT 0,
			checksum TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_checkpoints_execution_id
		ON checkpoints(execution_id, created_at)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	if path != ":memory:" {
		if err := os.Chmod(path, 0600); err != nil {
			slog.Warn("failed to set restrictive permissions on checkpoint file",
				slog.String("path", path), slog.String("error", err.Error()))
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(cp *Checkpoint) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrStoreClosed
	}

	visitCounts, err := json.Marshal(cp.VisitCounts)
	if err != nil {
		return "", fmt.Errorf("marshal visit counts: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO checkpoints
			(checkpoint_id, execution_id, created_at, resume_node, state_snapshot,
			 pending_client_request, parent_checkpoint, visit_counts, last_seq, checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(checkpoint_id) DO UPDATE SET
			created_at = excluded.created_at,
			resume_node = excluded.resume_node,
			state_snapshot = excluded.state_snapshot,
			pending_client_request = excluded.pending_client_request,
			parent_checkpoint = excluded.parent_checkpoint,
			visit_counts = excluded.visit_counts,
			last_seq = excluded.last_seq,
			checksum = excluded.checksum
	`, cp.CheckpointID, cp.ExecutionID, cp.CreatedAt.Format(rfc3339Nano), cp.ResumeNode,
		[]byte(cp.StateSnapshot), nullableBytes(cp.PendingClientRequest), nullableString(cp.ParentCheckpoint),
		visitCounts, cp.LastSeq, cp.Checksum)
	if err != nil {
		return "", fmt.Errorf("save checkpoint: %w", err)
	}
	return cp.CheckpointID, nil
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *SQLiteStore) scanRow(row *sql.Row) (*Checkpoint, error) {
	var cp Checkpoint
	var createdAt string
	var stateSnapshot, pendingReq, visitCounts []byte
	var parent sql.NullString

	if err := row.Scan(&cp.CheckpointID, &cp.ExecutionID, &createdAt, &cp.ResumeNode,
		&stateSnapshot, &pendingReq, &parent, &visitCounts, &cp.LastSeq, &cp.Checksum); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan checkpoint: %w", err)
	}

	ts, err := time.Parse(rfc3339Nano, createdAt)
	if err != nil {
		ts, err = time.Parse(time.RFC3339Nano, createdAt)
	}
	if err == nil {
		cp.CreatedAt = ts
	}
	cp.StateSnapshot = stateSnapshot
	if len(pendingReq) > 0 {
		cp.PendingClientRequest = pendingReq
	}
	cp.ParentCheckpoint = parent.String
	if len(visitCounts) > 0 {
		_ = json.Unmarshal(visitCounts, &cp.VisitCounts)
	}
	cp.Version = Version

	if err := cp.Verify(); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(checkpointID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRow(`
		SELECT checkpoint_id, execution_id, created_at, resume_node, state_snapshot,
		       pending_client_request, parent_checkpoint, visit_counts, last_seq, checksum
		FROM checkpoints WHERE checkpoint_id = ?
	`, checkpointID)
	return s.scanRow(row)
}

// LatestFor implements Store.
func (s *SQLiteStore) LatestFor(executionID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRow(`
		SELECT checkpoint_id, execution_id, created_at, resume_node, state_snapshot,
		       pending_client_request, parent_checkpoint, visit_counts, last_seq, checksum
		FROM checkpoints WHERE execution_id = ? ORDER BY created_at DESC LIMIT 1
	`, executionID)
	cp, err := s.scanRow(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return cp, err
}

// ListFor implements Store.
func (s *SQLiteStore) ListFor(executionID string) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT checkpoint_id, execution_id, created_at, resume_node, state_snapshot,
		       pending_client_request, parent_checkpoint, visit_counts, last_seq, checksum
		FROM checkpoints WHERE execution_id = ? ORDER BY created_at ASC
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*Checkpoint
	for rows.Next() {
		var cp Checkpoint
		var createdAt string
		var stateSnapshot, pendingReq, visitCounts []byte
		var parent sql.NullString
		if err := rows.Scan(&cp.CheckpointID, &cp.ExecutionID, &createdAt, &cp.ResumeNode,
			&stateSnapshot, &pendingReq, &parent, &visitCounts, &cp.LastSeq, &cp.Checksum); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		if ts, err := time.Parse(rfc3339Nano, createdAt); err == nil {
			cp.CreatedAt = ts
		}
		cp.StateSnapshot = stateSnapshot
		if len(pendingReq) > 0 {
			cp.PendingClientRequest = pendingReq
		}
		cp.ParentCheckpoint = parent.String
		if len(visitCounts) > 0 {
			_ = json.Unmarshal(visitCounts, &cp.VisitCounts)
		}
		cp.Version = Version
		out = append(out, &cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return out, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec(`DELETE FROM checkpoints WHERE execution_id = ?`, executionID)
	if err != nil {
		return fmt.Errorf("delete execution checkpoints: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
