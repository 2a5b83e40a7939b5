package registry

import (
	"context"
	"fmt"
)

// ToolHandler invokes one tool call and returns its result payload.
type ToolHandler func(ctx context.Context, args map[string]any) (map[string]any, error)

// ToolDescriptor advertises a callable tool's name, purpose, and input
// shape to an LLM provider.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type registeredTool struct {
	Descriptor ToolDescriptor
	Handler    ToolHandler
}

// ToolRegistry is the name→callable mapping merging local function tools
// and MCP-proxied tools, filtered per node by NodeSpec.tools.
type ToolRegistry struct {
	tools *Registry[string, registeredTool]
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: New[string, registeredTool]()}
}

// RegisterLocal adds an in-process function tool.
func (r *ToolRegistry) RegisterLocal(desc ToolDescriptor, handler ToolHandler) {
	r.tools.Register(desc.Name, registeredTool{Descriptor: desc, Handler: handler})
}

// RegisterRemote adds a tool backed by an arbitrary handler — typically a
// closure dispatching through an MCPClient.CallTool. The registry itself
// stays transport-agnostic.
func (r *ToolRegistry) RegisterRemote(desc ToolDescriptor, handler ToolHandler) {
	r.tools.Register(desc.Name, registeredTool{Descriptor: desc, Handler: handler})
}

// Call dispatches to the named tool.
func (r *ToolRegistry) Call(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	t, ok := r.tools.Get(name)
	if !ok {
		return nil, fmt.Errorf("registry: tool %q not registered", name)
	}
	return t.Handler(ctx, args)
}

// Has reports whether name is registered.
func (r *ToolRegistry) Has(name string) bool {
	return r.tools.Has(name)
}

// Descriptors returns the descriptors for the given tool names, in order,
// skipping any name that isn't registered. Passing nil returns every
// registered descriptor.
func (r *ToolRegistry) Descriptors(names []string) []ToolDescriptor {
	if names == nil {
		var out []ToolDescriptor
		r.tools.Range(func(_ string, t registeredTool) bool {
			out = append(out, t.Descriptor)
			return true
		})
		return out
	}
	out := make([]ToolDescriptor, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools.Get(name); ok {
			out = append(out, t.Descriptor)
		}
	}
	return out
}
