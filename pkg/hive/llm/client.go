package llm

import "context"

// Client is the provider-neutral contract every LLM backend implements.
// The executor's llm_generate and llm_tool_use nodes depend only on this
// interface, never on a specific vendor SDK.
type Client interface {
	// Complete runs one request/response completion call.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Stream runs a completion call and returns incremental chunks on the
	// returned channel. The channel is closed after the final chunk (which
	// has Done set) or after a chunk carrying a non-nil Error.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)
}
