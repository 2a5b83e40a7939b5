package hive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultStreamConcurrency is the per-stream execution cap applied when a
// StreamConfig leaves MaxConcurrency unset. Cron streams default to 1 so a
// slow run never overlaps its next tick.
const DefaultStreamConcurrency = 4

// DefaultShutdownTimeout bounds how long Stop waits for in-flight
// executions to settle after cancelling them.
const DefaultShutdownTimeout = 10 * time.Second

// StreamConfig configures one ExecutionStream.
type StreamConfig struct {
	// ID identifies the stream; generated when empty.
	ID string

	// Trigger is the activation kind (event_loop, cron, webhook, chat,
	// manual).
	Trigger Trigger

	// MaxConcurrency caps simultaneously running executions. Zero picks
	// the trigger default: 1 for cron, DefaultStreamConcurrency otherwise.
	MaxConcurrency int

	// RingSize is how many completed RunLogs are retained for inspection
	// after their executions are dropped from the live map. Default 32.
	RingSize int

	// ShutdownTimeout bounds Stop; default DefaultShutdownTimeout.
	ShutdownTimeout time.Duration
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Trigger == "" {
		c.Trigger = TriggerManual
	}
	if c.MaxConcurrency <= 0 {
		if c.Trigger == TriggerCron {
			c.MaxConcurrency = 1
		} else {
			c.MaxConcurrency = DefaultStreamConcurrency
		}
	}
	if c.RingSize <= 0 {
		c.RingSize = 32
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return c
}

// streamExecution tracks one live execution owned by a stream.
type streamExecution struct {
	exec   *Execution
	cancel context.CancelFunc
	done   chan struct{}

	run *RunLog
	err error
}

// Stream owns a set of concurrently running executions sharing one
// trigger kind and one concurrency budget. Executions start in trigger
// order and may complete out of order; completed executions leave the
// live map immediately, with their RunLogs retained in a bounded ring.
type Stream struct {
	cfg     StreamConfig
	runtime *Runtime

	mu      sync.Mutex
	started bool
	base    context.Context
	stop    context.CancelFunc
	live    map[string]*streamExecution
	wg      sync.WaitGroup

	sem  chan struct{}
	ring *runLogRing
}

func newStream(rt *Runtime, cfg StreamConfig) *Stream {
	cfg = cfg.withDefaults()
	return &Stream{
		cfg:     cfg,
		runtime: rt,
		live:    make(map[string]*streamExecution),
		sem:     make(chan struct{}, cfg.MaxConcurrency),
		ring:    newRunLogRing(cfg.RingSize),
	}
}

// ID returns the stream id.
func (s *Stream) ID() string { return s.cfg.ID }

// TriggerKind returns the stream's activation kind.
func (s *Stream) TriggerKind() Trigger { return s.cfg.Trigger }

// Start makes the stream admit triggers. Idempotent.
func (s *Stream) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.base, s.stop = context.WithCancel(context.Background())
	s.started = true
}

// Stop cancels all live executions and waits for them to settle, bounded
// by the stream's shutdown timeout. Idempotent.
func (s *Stream) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	stop := s.stop
	s.mu.Unlock()

	stop()

	settled := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(settled)
	}()
	select {
	case <-settled:
	case <-time.After(s.cfg.ShutdownTimeout):
		// Stragglers were already signalled; they terminate on their next
		// cancellation check.
	}
}

// Trigger admits a new execution with the given input, blocking while the
// stream is at its concurrency cap. It returns the execution id as soon
// as the execution is admitted and running.
func (s *Stream) Trigger(ctx context.Context, input map[string]any) (string, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return "", fmt.Errorf("stream %s: not started", s.cfg.ID)
	}
	base := s.base
	s.mu.Unlock()

	select {
	case s.sem <- struct{}{}:
	case <-base.Done():
		return "", fmt.Errorf("stream %s: stopped", s.cfg.ID)
	case <-ctx.Done():
		return "", ctx.Err()
	}

	execCtx, cancel := context.WithCancel(base)
	executionID := uuid.New().String()
	exec := NewExecution(executionID, s.cfg.ID, s.cfg.Trigger, s.runtime.graph.spec.EntryNode, cancel)
	se := &streamExecution{exec: exec, cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.live[executionID] = se
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.sem }()

		run, err := s.runtime.execute(execCtx, exec, input)
		se.run, se.err = run, err

		s.mu.Lock()
		delete(s.live, executionID)
		if run != nil {
			s.ring.add(run)
		}
		s.mu.Unlock()
		s.runtime.state.DropExecution(executionID)
		close(se.done)
	}()

	return executionID, nil
}

// Cancel requests cooperative cancellation of one execution. Unknown ids
// are a no-op: the execution may have already completed and been dropped.
func (s *Stream) Cancel(executionID string) {
	s.mu.Lock()
	se, ok := s.live[executionID]
	s.mu.Unlock()
	if ok {
		se.cancel()
	}
}

// WaitFor blocks until the execution completes and returns its RunLog.
// For executions that already left the live map it falls back to the
// retained ring.
func (s *Stream) WaitFor(ctx context.Context, executionID string) (*RunLog, error) {
	s.mu.Lock()
	se, ok := s.live[executionID]
	s.mu.Unlock()

	if !ok {
		if run := s.findRecent(executionID); run != nil {
			return run, nil
		}
		return nil, fmt.Errorf("stream %s: unknown execution %s", s.cfg.ID, executionID)
	}

	select {
	case <-se.done:
		return se.run, se.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Running returns the ids of currently live executions.
func (s *Stream) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.live))
	for id := range s.live {
		ids = append(ids, id)
	}
	return ids
}

// Recent returns the retained RunLogs, most recent last.
func (s *Stream) Recent() []*RunLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.all()
}

// findRecent looks a completed execution's RunLog up in the ring.
func (s *Stream) findRecent(id string) *RunLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.find(id)
}

// execution returns the live Execution record for id, if any.
func (s *Stream) execution(id string) (*Execution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	se, ok := s.live[id]
	if !ok {
		return nil, false
	}
	return se.exec, true
}

// runLogRing is a bounded buffer of the most recent RunLogs.
type runLogRing struct {
	logs []*RunLog
	next int
	full bool
}

func newRunLogRing(size int) *runLogRing {
	return &runLogRing{logs: make([]*RunLog, size)}
}

func (r *runLogRing) add(run *RunLog) {
	r.logs[r.next] = run
	r.next = (r.next + 1) % len(r.logs)
	if r.next == 0 {
		r.full = true
	}
}

func (r *runLogRing) find(runID string) *RunLog {
	for _, l := range r.logs {
		if l != nil && l.RunID == runID {
			return l
		}
	}
	return nil
}

func (r *runLogRing) all() []*RunLog {
	var out []*RunLog
	start := 0
	if r.full {
		start = r.next
	}
	for i := 0; i < len(r.logs); i++ {
		if l := r.logs[(start+i)%len(r.logs)]; l != nil {
			out = append(out, l)
		}
	}
	return out
}
