// Package signal delivers fire-and-forget messages into running
// executions. A signal names an action ("cancel", "client_reply", or a
// custom name), targets one execution, and carries an optional payload;
// the runtime dispatches it through a handler registry and records
// every delivery attempt in a Store so operators can audit what was
// sent, what landed, and what failed.
package signal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status tracks a signal through its delivery lifecycle.
type Status string

// Delivery states.
const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// Signal is one fire-and-forget message to an execution.
type Signal struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	TargetID string         `json:"target_id"`
	Payload  map[string]any `json:"payload,omitempty"`
	SenderID string         `json:"sender_id,omitempty"`
	Status   Status         `json:"status"`

	SentAt      time.Time  `json:"sent_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	// Error holds the failure cause once Status is failed.
	Error string `json:"error,omitempty"`
}

// NewSignal creates a pending signal named name for the execution
// targetID.
func NewSignal(name, targetID string, payload map[string]any) *Signal {
	return &Signal{
		ID:       "sig-" + uuid.New().String()[:8],
		Name:     name,
		TargetID: targetID,
		Payload:  payload,
		Status:   StatusPending,
		SentAt:   time.Now().UTC(),
	}
}

// Clone returns an independent copy, so store reads never alias live
// entries.
func (s *Signal) Clone() *Signal {
	out := *s
	if s.Payload != nil {
		out.Payload = make(map[string]any, len(s.Payload))
		for k, v := range s.Payload {
			out.Payload[k] = v
		}
	}
	if s.ProcessedAt != nil {
		t := *s.ProcessedAt
		out.ProcessedAt = &t
	}
	return &out
}

// Handler acts on one delivered signal.
type Handler func(ctx context.Context, targetID string, sig *Signal) error

// Errors surfaced by the registry and stores.
var (
	ErrNotFound  = errors.New("signal: not found")
	ErrNoHandler = errors.New("signal: no handler")
)

// Registry maps signal names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler under name; a second registration of the same
// name is an error.
func (r *Registry) Register(name string, handler Handler) error {
	if name == "" {
		return errors.New("signal: name is required")
	}
	if handler == nil {
		return errors.New("signal: handler is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("signal: %q already registered", name)
	}
	r.handlers[name] = handler
	return nil
}

// MustRegister is Register that panics on error, for startup wiring.
func (r *Registry) MustRegister(name string, handler Handler) {
	if err := r.Register(name, handler); err != nil {
		panic(err)
	}
}

// Get looks up the handler for name.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// List names every registered signal, in no particular order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Store records signal delivery attempts.
type Store interface {
	// Enqueue records a signal, filling in id/status/timestamp when the
	// caller left them zero.
	Enqueue(ctx context.Context, sig *Signal) error

	// Get retrieves one signal by id.
	Get(ctx context.Context, signalID string) (*Signal, error)

	// Pending lists a target's signals still awaiting processing.
	Pending(ctx context.Context, targetID string) ([]*Signal, error)

	// History lists every signal recorded for a target, in arrival order.
	History(ctx context.Context, targetID string) ([]*Signal, error)

	// MarkProcessed records a successful delivery.
	MarkProcessed(ctx context.Context, signalID string) error

	// MarkFailed records a failed delivery with its cause.
	MarkFailed(ctx context.Context, signalID string, cause error) error
}

// MemoryStore is the in-process Store.
type MemoryStore struct {
	mu       sync.RWMutex
	signals  map[string]*Signal
	byTarget map[string][]string
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		signals:  make(map[string]*Signal),
		byTarget: make(map[string][]string),
	}
}

// Enqueue implements Store.
func (s *MemoryStore) Enqueue(_ context.Context, sig *Signal) error {
	if sig.ID == "" {
		sig.ID = "sig-" + uuid.New().String()[:8]
	}
	if sig.SentAt.IsZero() {
		sig.SentAt = time.Now().UTC()
	}
	if sig.Status == "" {
		sig.Status = StatusPending
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[sig.ID] = sig.Clone()
	s.byTarget[sig.TargetID] = append(s.byTarget[sig.TargetID], sig.ID)
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, signalID string) (*Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.signals[signalID]
	if !ok {
		return nil, ErrNotFound
	}
	return sig.Clone(), nil
}

// Pending implements Store.
func (s *MemoryStore) Pending(_ context.Context, targetID string) ([]*Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Signal
	for _, id := range s.byTarget[targetID] {
		if sig := s.signals[id]; sig != nil && sig.Status == StatusPending {
			out = append(out, sig.Clone())
		}
	}
	return out, nil
}

// History implements Store.
func (s *MemoryStore) History(_ context.Context, targetID string) ([]*Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byTarget[targetID]
	out := make([]*Signal, 0, len(ids))
	for _, id := range ids {
		if sig := s.signals[id]; sig != nil {
			out = append(out, sig.Clone())
		}
	}
	return out, nil
}

// MarkProcessed implements Store.
func (s *MemoryStore) MarkProcessed(_ context.Context, signalID string) error {
	return s.mark(signalID, StatusProcessed, nil)
}

// MarkFailed implements Store.
func (s *MemoryStore) MarkFailed(_ context.Context, signalID string, cause error) error {
	return s.mark(signalID, StatusFailed, cause)
}

func (s *MemoryStore) mark(signalID string, status Status, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.signals[signalID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	sig.Status = status
	sig.ProcessedAt = &now
	if cause != nil {
		sig.Error = cause.Error()
	}
	return nil
}
