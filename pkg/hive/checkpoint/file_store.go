package checkpoint

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileStore persists checkpoints to a filesystem tree per execution:
//
//	<root>/<execution_id>/index.json
//	<root>/<execution_id>/snapshots/<checkpoint_id>.json
//
// Both files are written via write-to-temp-then-rename so a reader never
// observes a partial write. If the index update fails after the snapshot
// write succeeds, LatestFor/ListFor fall back to scanning the snapshots
// directory directly.
type FileStore struct {
	root   string
	mu     sync.Mutex
	closed bool
	logger *slog.Logger
}

// indexFile is the on-disk shape of index.json.
type indexFile struct {
	Checkpoints []indexEntry `json:"checkpoints"`
}

type indexEntry struct {
	ID         string `json:"id"`
	CreatedAt  string `json:"created_at"`
	ResumeNode string `json:"resume_node"`
}

// NewFileStore creates a checkpoint store rooted at dir, creating it if
// necessary.
func NewFileStore(dir string, opts ...FileStoreOption) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create root: %w", err)
	}
	s := &FileStore{root: dir, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithLogger sets the logger used for reconciliation warnings.
func WithLogger(logger *slog.Logger) FileStoreOption {
	return func(s *FileStore) { s.logger = logger }
}

func (s *FileStore) execDir(executionID string) string {
	return filepath.Join(s.root, executionID)
}

func (s *FileStore) snapshotPath(executionID, checkpointID string) string {
	return filepath.Join(s.execDir(executionID), "snapshots", checkpointID+".json")
}

func (s *FileStore) indexPath(executionID string) string {
	return filepath.Join(s.execDir(executionID), "index.json")
}

// writeAtomic writes data to path by writing a sibling temp file, fsyncing
// it, then renaming it into place (rename is atomic on POSIX filesystems).
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save implements Store.
func (s *FileStore) Save(cp *Checkpoint) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrStoreClosed
	}

	data, err := cp.Marshal()
	if err != nil {
		return "", fmt.Errorf("checkpoint: marshal: %w", err)
	}
	if err := writeAtomic(s.snapshotPath(cp.ExecutionID, cp.CheckpointID), data); err != nil {
		return "", fmt.Errorf("checkpoint: write snapshot: %w", err)
	}

	if err := s.appendIndexLocked(cp); err != nil {
		// Drop the now-stale index so the next read rescans the snapshots.
		_ = os.Remove(s.indexPath(cp.ExecutionID))
		s.logger.Warn("checkpoint index update failed, will reconcile from snapshots on next read",
			slog.String("execution_id", cp.ExecutionID),
			slog.String("checkpoint_id", cp.CheckpointID),
			slog.String("error", err.Error()))
	}

	return cp.CheckpointID, nil
}

func (s *FileStore) appendIndexLocked(cp *Checkpoint) error {
	idx, _ := s.readIndexLocked(cp.ExecutionID)
	idx.Checkpoints = append(idx.Checkpoints, indexEntry{
		ID:         cp.CheckpointID,
		CreatedAt:  cp.CreatedAt.Format(rfc3339Nano),
		ResumeNode: cp.ResumeNode,
	})
	data, err := json.Marshal(idx)
	if err != nil {
		return err
	}
	return writeAtomic(s.indexPath(cp.ExecutionID), data)
}

func (s *FileStore) readIndexLocked(executionID string) (indexFile, error) {
	var idx indexFile
	data, err := os.ReadFile(s.indexPath(executionID))
	if err != nil {
		return idx, err
	}
	if err := json.Unmarshal(data, &idx); err != nil {
		return idx, err
	}
	return idx, nil
}

// Load implements Store.
func (s *FileStore) Load(checkpointID string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	// checkpoint_id alone doesn't name its execution directory, so scan.
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: scan root: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := s.snapshotPath(e.Name(), checkpointID)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		cp, err := Unmarshal(data)
		if err != nil {
			return nil, err
		}
		return cp, nil
	}
	return nil, ErrNotFound
}

// LatestFor implements Store.
func (s *FileStore) LatestFor(executionID string) (*Checkpoint, error) {
	all, err := s.ListFor(executionID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all[len(all)-1], nil
}

// ListFor implements Store. It reads the index when available; if the
// index is missing or corrupt it reconciles by scanning the snapshots
// directory and sorting by CreatedAt.
func (s *FileStore) ListFor(executionID string) ([]*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	idx, err := s.readIndexLocked(executionID)
	if err == nil {
		out := make([]*Checkpoint, 0, len(idx.Checkpoints))
		ok := true
		for _, e := range idx.Checkpoints {
			data, rerr := os.ReadFile(s.snapshotPath(executionID, e.ID))
			if rerr != nil {
				ok = false
				break
			}
			cp, uerr := Unmarshal(data)
			if uerr != nil {
				ok = false
				break
			}
			out = append(out, cp)
		}
		if ok {
			return out, nil
		}
	}
	return s.scanSnapshotsLocked(executionID)
}

func (s *FileStore) scanSnapshotsLocked(executionID string) ([]*Checkpoint, error) {
	dir := filepath.Join(s.execDir(executionID), "snapshots")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: scan snapshots: %w", err)
	}
	var out []*Checkpoint
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		cp, err := Unmarshal(data)
		if err != nil {
			s.logger.Warn("skipping corrupt checkpoint snapshot",
				slog.String("execution_id", executionID),
				slog.String("file", e.Name()))
			continue
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Delete implements Store.
func (s *FileStore) Delete(executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if err := os.RemoveAll(s.execDir(executionID)); err != nil {
		return fmt.Errorf("checkpoint: delete execution: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

const rfc3339Nano = "2006-01-02T15:04:05.999999999Z07:00"
