package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func argsContain(t *testing.T, args []string, wanted ...string) {
	t.Helper()
	for _, w := range wanted {
		assert.Contains(t, args, w)
	}
}

func TestBuildArgs(t *testing.T) {
	t.Run("basic request", func(t *testing.T) {
		args := NewClaudeCLI().buildArgs(CompletionRequest{
			Messages: []Message{{Role: RoleUser, Content: "Hello"}},
		})
		argsContain(t, args, "--print", "-p", "Hello")
	})

	t.Run("system prompt", func(t *testing.T) {
		args := NewClaudeCLI().buildArgs(CompletionRequest{
			SystemPrompt: "You are helpful",
			Messages:     []Message{{Role: RoleUser, Content: "Hi"}},
		})
		argsContain(t, args, "--system-prompt", "You are helpful")
	})

	t.Run("client default model", func(t *testing.T) {
		args := NewClaudeCLI(WithModel("claude-3-opus")).buildArgs(CompletionRequest{
			Messages: []Message{{Role: RoleUser, Content: "x"}},
		})
		argsContain(t, args, "--model", "claude-3-opus")
	})

	t.Run("request model wins over client default", func(t *testing.T) {
		args := NewClaudeCLI(WithModel("client-default")).buildArgs(CompletionRequest{
			Model:    "request-model",
			Messages: []Message{{Role: RoleUser, Content: "x"}},
		})
		argsContain(t, args, "--model", "request-model")
		assert.NotContains(t, args, "client-default")
	})

	t.Run("max tokens", func(t *testing.T) {
		args := NewClaudeCLI().buildArgs(CompletionRequest{
			MaxTokens: 1000,
			Messages:  []Message{{Role: RoleUser, Content: "x"}},
		})
		argsContain(t, args, "--max-tokens", "1000")
	})

	t.Run("allowed tools repeat the flag", func(t *testing.T) {
		args := NewClaudeCLI(WithAllowedTools([]string{"read", "write"})).buildArgs(CompletionRequest{
			Messages: []Message{{Role: RoleUser, Content: "x"}},
		})
		argsContain(t, args, "--allowedTools", "read", "write")
	})

	t.Run("no messages yields no prompt flag", func(t *testing.T) {
		args := NewClaudeCLI().buildArgs(CompletionRequest{})
		assert.NotContains(t, args, "-p")
	})
}

func TestRenderPrompt(t *testing.T) {
	t.Run("single user turn", func(t *testing.T) {
		assert.Equal(t, "Hello", renderPrompt([]Message{{Role: RoleUser, Content: "Hello"}}))
	})

	t.Run("history interleaves assistant turns", func(t *testing.T) {
		prompt := renderPrompt([]Message{
			{Role: RoleUser, Content: "First question"},
			{Role: RoleAssistant, Content: "First answer"},
			{Role: RoleUser, Content: "Follow-up"},
		})
		assert.Contains(t, prompt, "First question")
		assert.Contains(t, prompt, "Assistant: First answer")
		assert.Contains(t, prompt, "Follow-up")
	})

	t.Run("leading assistant turn is dropped", func(t *testing.T) {
		assert.Equal(t, "", renderPrompt([]Message{{Role: RoleAssistant, Content: "orphan"}}))
	})
}

func TestParseResponse(t *testing.T) {
	c := NewClaudeCLI(WithModel("claude-3-haiku"))

	resp := c.parseResponse([]byte("  the answer\n"))
	require.NotNil(t, resp)
	assert.Equal(t, "the answer", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, "claude-3-haiku", resp.Model)
	assert.Zero(t, resp.Usage.TotalTokens, "plain --print output has no token accounting")
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		detail    string
		retryable bool
	}{
		{"rate limit exceeded", true},
		{"Rate Limit", true},
		{"request timeout", true},
		{"server overloaded", true},
		{"503 service unavailable", true},
		{"error 529", true},
		{"invalid request", false},
		{"authentication failed", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.detail, func(t *testing.T) {
			assert.Equal(t, tt.retryable, isRetryableError(tt.detail))
		})
	}
}
