package llm

import (
	"context"
	"sync"
)

// MockClient is a deterministic, in-process Client for tests and for
// running example/demo graphs without a live provider. It never makes
// network calls.
type MockClient struct {
	mu sync.Mutex

	fixed     string
	responses []string
	next      int
	err       error
	fn        func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	streamFn  func(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// Calls records every request passed to Complete, in order.
	Calls []CompletionRequest
}

// NewMockClient returns a mock whose Complete calls always answer with
// fixed until WithResponses overrides it with a cycling response list.
func NewMockClient(fixed string) *MockClient {
	return &MockClient{fixed: fixed}
}

// WithResponses makes successive Complete calls cycle through responses,
// wrapping back to the first after the last.
func (m *MockClient) WithResponses(responses ...string) *MockClient {
	m.responses = responses
	m.next = 0
	return m
}

// WithError makes every Complete/Stream call fail with err.
func (m *MockClient) WithError(err error) *MockClient {
	m.err = err
	return m
}

// WithCompleteFunc overrides Complete with a caller-supplied function,
// for tests that need to react to the request content.
func (m *MockClient) WithCompleteFunc(fn func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)) *MockClient {
	m.fn = fn
	return m
}

// WithStreamFunc overrides Stream with a caller-supplied function, for
// tests that need multi-chunk delta sequences.
func (m *MockClient) WithStreamFunc(fn func(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)) *MockClient {
	m.streamFn = fn
	return m
}

// CallCount returns the number of times Complete has been called.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent request, or nil if none were made.
func (m *MockClient) LastCall() *CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	last := m.Calls[len(m.Calls)-1]
	return &last
}

// Reset clears call history and rewinds the response cycle.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.next = 0
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	fn := m.fn
	err := m.err
	content := m.nextContentLocked()
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	return &CompletionResponse{
		Content:      content,
		FinishReason: "stop",
		Usage:        approximateUsage(req, content),
	}, nil
}

// Stream implements Client by emitting the whole Complete response as a
// single terminal chunk.
func (m *MockClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	err := m.err
	streamFn := m.streamFn
	m.mu.Unlock()
	if streamFn != nil {
		return streamFn(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	resp, respErr := m.Complete(ctx, req)
	ch := make(chan StreamChunk, 1)
	if respErr != nil {
		ch <- StreamChunk{Done: true, Error: respErr}
		close(ch)
		return ch, nil
	}
	usage := resp.Usage
	ch <- StreamChunk{Content: resp.Content, Done: true, Usage: &usage}
	close(ch)
	return ch, nil
}

// nextContentLocked returns the next response content; caller holds m.mu.
func (m *MockClient) nextContentLocked() string {
	if len(m.responses) == 0 {
		return m.fixed
	}
	c := m.responses[m.next%len(m.responses)]
	m.next++
	return c
}

// approximateUsage fabricates a plausible token count from character
// length (~4 chars/token), since the mock has no real tokenizer.
func approximateUsage(req CompletionRequest, content string) TokenUsage {
	var inChars int
	inChars += len(req.SystemPrompt)
	for _, msg := range req.Messages {
		inChars += len(msg.Content)
	}
	in := inChars/4 + 1
	out := len(content)/4 + 1
	return TokenUsage{InputTokens: in, OutputTokens: out, TotalTokens: in + out}
}
