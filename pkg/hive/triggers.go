package hive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
)

// CronTrigger fires a stream on a time schedule, feeding each execution a
// synthetic tick payload. The wrapped stream should use TriggerCron so it
// defaults to single-flight admission.
type CronTrigger struct {
	stream   *Stream
	schedule string
	runner   *cron.Cron
	entry    cron.EntryID
}

// NewCronTrigger binds a cron schedule (standard 5-field spec) to a
// stream. The trigger is inert until Start.
func NewCronTrigger(stream *Stream, schedule string) (*CronTrigger, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("cron trigger: bad schedule %q: %w", schedule, err)
	}
	return &CronTrigger{stream: stream, schedule: schedule, runner: cron.New()}, nil
}

// Start begins scheduling ticks. Each tick triggers one execution whose
// input carries the tick time; a tick arriving while the stream is at its
// concurrency cap waits for admission like any other trigger.
func (t *CronTrigger) Start() error {
	id, err := t.runner.AddFunc(t.schedule, func() {
		tick := map[string]any{
			"tick":     time.Now().UTC().Format(time.RFC3339),
			"schedule": t.schedule,
		}
		if _, err := t.stream.Trigger(context.Background(), tick); err != nil {
			return
		}
	})
	if err != nil {
		return err
	}
	t.entry = id
	t.runner.Start()
	return nil
}

// Stop halts scheduling; in-flight executions are untouched.
func (t *CronTrigger) Stop() {
	ctx := t.runner.Stop()
	<-ctx.Done()
}

// WebhookHandler adapts a stream to an HTTP endpoint: each POST triggers
// one execution with the JSON request body as input and answers with the
// admitted execution id. Non-POST methods are rejected.
func WebhookHandler(stream *Stream) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var input map[string]any
		if err := json.NewDecoder(req.Body).Decode(&input); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(Envelope{Error: "request body must be a JSON object", Category: "input"})
			return
		}

		executionID, err := stream.Trigger(req.Context(), input)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(Envelope{Error: err.Error(), Category: "transient"})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"execution_id": executionID})
	})
}

// ChatSession adapts a stream to a persistent conversational session:
// each turn triggers one execution carrying the session id and the turn
// message, with turn ordering provided by the stream's admission order.
type ChatSession struct {
	stream    *Stream
	SessionID string
	turn      int
}

// NewChatSession opens a session over a chat-triggered stream.
func NewChatSession(stream *Stream, sessionID string) *ChatSession {
	return &ChatSession{stream: stream, SessionID: sessionID}
}

// Send triggers one execution for a user turn and returns its id.
func (c *ChatSession) Send(ctx context.Context, message string) (string, error) {
	c.turn++
	return c.stream.Trigger(ctx, map[string]any{
		"session_id": c.SessionID,
		"turn":       c.turn,
		"message":    message,
	})
}
