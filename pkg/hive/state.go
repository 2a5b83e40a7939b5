package hive

import (
	"fmt"
	"sync"
)

// Scope partitions SharedState into three visibility tiers.
type Scope string

const (
	// ScopeExecution partitions state by execution id; never visible
	// outside the owning execution regardless of isolation policy.
	ScopeExecution Scope = "execution"

	// ScopeStream partitions state by stream id; visible to every
	// execution running under that stream.
	ScopeStream Scope = "stream"

	// ScopeGlobal is a single map per runtime, visible to every execution.
	ScopeGlobal Scope = "global"
)

// Isolation selects the concurrency policy applied to a single write.
type Isolation string

const (
	// Isolated forces the write to execution scope; the caller is assumed
	// to be the execution's sole owning goroutine, so no per-key lock is
	// taken.
	Isolated Isolation = "isolated"

	// Synchronized acquires an exclusive lock on the (scope, id, key)
	// triple for the duration of the write, serializing concurrent
	// Synchronized writers on the same key. It never blocks on, and is
	// never blocked by, Isolated or Shared writes.
	Synchronized Isolation = "synchronized"

	// Shared writes without a per-key lock. The underlying map write is
	// still a single atomic operation (no torn values), but concurrent
	// Shared writers to the same key race: last writer wins.
	Shared Isolation = "shared"
)

// StateKey identifies a single value in SharedState.
type StateKey struct {
	Scope Scope
	// ID is the execution id (ScopeExecution), stream id (ScopeStream), or
	// ignored (ScopeGlobal).
	ID  string
	Key string
}

func (k StateKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Scope, k.ID, k.Key)
}

// SharedState is a concurrency-safe key-value store partitioned by scope,
// with per-write isolation policy. Execution-scoped data is strictly
// private: no key written under one execution id is ever visible under
// another, under any isolation level.
type SharedState struct {
	mu   sync.RWMutex
	data map[Scope]map[string]map[string]any // scope -> partition id -> key -> value

	keyLocksMu sync.Mutex
	keyLocks   map[StateKey]*sync.Mutex
}

// NewSharedState creates an empty SharedState.
func NewSharedState() *SharedState {
	return &SharedState{
		data: map[Scope]map[string]map[string]any{
			ScopeExecution: make(map[string]map[string]any),
			ScopeStream:    make(map[string]map[string]any),
			ScopeGlobal:    {"": make(map[string]any)},
		},
		keyLocks: make(map[StateKey]*sync.Mutex),
	}
}

func partitionID(scope Scope, id string) string {
	if scope == ScopeGlobal {
		return ""
	}
	return id
}

// Get reads a value. The second return is false if the key is unset.
func (s *SharedState) Get(scope Scope, id, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	part := s.data[scope][partitionID(scope, id)]
	if part == nil {
		return nil, false
	}
	v, ok := part[key]
	return v, ok
}

// Put writes a value under the given isolation policy. For Isolated
// writes, scope and id are forced to (ScopeExecution, id) regardless of
// the scope argument — id must be the caller's own execution id.
func (s *SharedState) Put(scope Scope, id, key string, value any, isolation Isolation) error {
	switch isolation {
	case Isolated:
		s.putDirect(ScopeExecution, id, key, value)
		return nil
	case Synchronized:
		lock := s.keyLock(StateKey{Scope: scope, ID: partitionID(scope, id), Key: key})
		lock.Lock()
		defer lock.Unlock()
		s.putDirect(scope, id, key, value)
		return nil
	case Shared:
		s.putDirect(scope, id, key, value)
		return nil
	default:
		return fmt.Errorf("hive: unknown isolation policy %q", isolation)
	}
}

func (s *SharedState) putDirect(scope Scope, id, key string, value any) {
	pid := partitionID(scope, id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[scope] == nil {
		s.data[scope] = make(map[string]map[string]any)
	}
	if s.data[scope][pid] == nil {
		s.data[scope][pid] = make(map[string]any)
	}
	s.data[scope][pid][key] = value
}

// Delete removes a key under the given isolation policy.
func (s *SharedState) Delete(scope Scope, id, key string, isolation Isolation) error {
	switch isolation {
	case Isolated:
		s.deleteDirect(ScopeExecution, id, key)
		return nil
	case Synchronized:
		lock := s.keyLock(StateKey{Scope: scope, ID: partitionID(scope, id), Key: key})
		lock.Lock()
		defer lock.Unlock()
		s.deleteDirect(scope, id, key)
		return nil
	case Shared:
		s.deleteDirect(scope, id, key)
		return nil
	default:
		return fmt.Errorf("hive: unknown isolation policy %q", isolation)
	}
}

func (s *SharedState) deleteDirect(scope Scope, id, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if part := s.data[scope][partitionID(scope, id)]; part != nil {
		delete(part, key)
	}
}

// Snapshot returns a copy of all execution-scoped keys for executionID,
// used by CheckpointStore to persist resumable state.
func (s *SharedState) Snapshot(executionID string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	part := s.data[ScopeExecution][executionID]
	out := make(map[string]any, len(part))
	for k, v := range part {
		out[k] = v
	}
	return out
}

// Restore overwrites execution-scoped state for executionID from a
// checkpoint snapshot. Used on resume.
func (s *SharedState) Restore(executionID string, snapshot map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	part := make(map[string]any, len(snapshot))
	for k, v := range snapshot {
		part[k] = v
	}
	s.data[ScopeExecution][executionID] = part
}

// DropExecution releases all state for a completed execution.
func (s *SharedState) DropExecution(executionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[ScopeExecution], executionID)
}

// DropStream releases all state for a stopped stream.
func (s *SharedState) DropStream(streamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[ScopeStream], streamID)
}

func (s *SharedState) keyLock(k StateKey) *sync.Mutex {
	s.keyLocksMu.Lock()
	defer s.keyLocksMu.Unlock()
	l, ok := s.keyLocks[k]
	if !ok {
		l = &sync.Mutex{}
		s.keyLocks[k] = l
	}
	return l
}
