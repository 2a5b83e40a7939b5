package hive

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hive-run/graphrt/pkg/hive/event"
	"github.com/hive-run/graphrt/pkg/hive/llm"
	"github.com/hive-run/graphrt/pkg/hive/registry"
	"github.com/hive-run/graphrt/pkg/hive/template"
)

// NodeStatus is the outcome of one node Run call, distinct from the
// execution-level Status: a node either produced output or it paused
// waiting on a client_input reply.
type NodeStatus string

// Node run outcomes.
const (
	NodeSuccess NodeStatus = "success"
	NodeFailure NodeStatus = "failure"
	NodePaused  NodeStatus = "paused"
)

// NodeOutputs is the set of values a node produced, keyed by name.
type NodeOutputs map[string]any

// NodeRunner is the polymorphic node implementation contract: every node
// variant (llm_generate, llm_tool_use, function, router, client_input,
// sub_graph) exposes Run(ctx, inputs) -> (outputs, status).
type NodeRunner interface {
	Run(ctx Context, inputs map[string]any) (NodeOutputs, NodeStatus, error)
}

// FunctionHandler is a registered callable backing a function node or the
// deterministic branch of a router node. It may be synchronous or
// cooperative-async; the executor awaits it without blocking other
// executions (see functionRunner.Run).
type FunctionHandler func(ctx Context, inputs map[string]any) (map[string]any, error)

// FunctionRegistry is the name->callable mapping function nodes resolve
// against; a function node whose name is missing here makes
// BuildNodeRunner, and so NewExecutor, fail with ErrNodeNotRegistered.
type FunctionRegistry struct {
	fns *registry.Registry[string, FunctionHandler]
}

// NewFunctionRegistry creates an empty FunctionRegistry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{fns: registry.New[string, FunctionHandler]()}
}

// Register adds or replaces the callable bound to name.
func (r *FunctionRegistry) Register(name string, fn FunctionHandler) {
	r.fns.Register(name, fn)
}

// Has reports whether name is registered.
func (r *FunctionRegistry) Has(name string) bool {
	return r.fns.Has(name)
}

// Get returns the handler bound to name, if any.
func (r *FunctionRegistry) Get(name string) (FunctionHandler, bool) {
	return r.fns.Get(name)
}

// NodeDeps bundles the shared services a NodeRunner may need. The executor
// builds one NodeDeps per GraphExecutor and passes it to every node it
// constructs; sub_graph nodes additionally close over the executor itself
// to recurse.
type NodeDeps struct {
	Functions   *FunctionRegistry
	Tools       *registry.ToolRegistry
	LLM         llm.Client
	ToolCallCap int // per-node cap on tool-call rounds, default 16

	// LLMTimeout is the per-call deadline applied to every provider
	// call. Zero means DefaultLLMTimeout.
	LLMTimeout time.Duration

	// RunSubGraph executes an embedded GraphSpec to completion and returns
	// its final output map. Set by GraphExecutor so sub_graph nodes can
	// recurse without importing the executor type directly (avoids an
	// import cycle between node construction and the executor).
	RunSubGraph func(ctx Context, spec *GraphSpec, input map[string]any) (map[string]any, error)
}

// DefaultLLMTimeout is the per-call deadline on LLM provider calls.
const DefaultLLMTimeout = 120 * time.Second

// BuildNodeRunner constructs the NodeRunner for spec's declared type.
func BuildNodeRunner(spec *NodeSpec, deps NodeDeps) (NodeRunner, error) {
	timeout := deps.LLMTimeout
	if timeout <= 0 {
		timeout = DefaultLLMTimeout
	}
	switch spec.Type {
	case NodeLLMGenerate:
		return &llmGenerateRunner{spec: spec, client: deps.LLM, timeout: timeout}, nil
	case NodeLLMToolUse:
		cap := deps.ToolCallCap
		if cap <= 0 {
			cap = 16
		}
		return &llmToolUseRunner{spec: spec, client: deps.LLM, tools: deps.Tools, toolCallCap: cap, timeout: timeout}, nil
	case NodeFunction:
		fn, ok := deps.Functions.Get(spec.Function)
		if !ok {
			return nil, fmt.Errorf("%w: function %q for node %q", ErrNodeNotRegistered, spec.Function, spec.ID)
		}
		return &functionRunner{spec: spec, fn: fn}, nil
	case NodeRouter:
		var fn FunctionHandler
		if spec.Function != "" {
			var ok bool
			fn, ok = deps.Functions.Get(spec.Function)
			if !ok {
				return nil, fmt.Errorf("%w: function %q for router node %q", ErrNodeNotRegistered, spec.Function, spec.ID)
			}
		}
		return &routerRunner{spec: spec, fn: fn, client: deps.LLM, timeout: timeout}, nil
	case NodeClientInput:
		return &clientInputRunner{spec: spec}, nil
	case NodeSubGraph:
		if deps.RunSubGraph == nil {
			return nil, fmt.Errorf("%w: sub_graph node %q has no executor wired", ErrInvalidGraph, spec.ID)
		}
		return &subGraphRunner{spec: spec, run: deps.RunSubGraph}, nil
	default:
		return nil, fmt.Errorf("%w: unknown node type %q", ErrInvalidGraph, spec.Type)
	}
}

// resolveInputs extracts spec.InputKeys from the namespace, failing with
// MissingInput if any is absent.
func resolveInputs(spec *NodeSpec, inputs map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(spec.InputKeys))
	for _, k := range spec.InputKeys {
		v, ok := inputs[k]
		if !ok {
			return nil, fmt.Errorf("%w: node %q missing input %q", ErrMissingInput, spec.ID, k)
		}
		out[k] = v
	}
	return out, nil
}

// filterOutputs discards any produced key not named in spec.OutputKeys;
// the caller is told about each dropped key via warn. An empty OutputKeys list means all outputs pass through.
func filterOutputs(spec *NodeSpec, outputs map[string]any, warn func(key string)) NodeOutputs {
	if len(spec.OutputKeys) == 0 {
		return NodeOutputs(outputs)
	}
	allowed := make(map[string]bool, len(spec.OutputKeys))
	for _, k := range spec.OutputKeys {
		allowed[k] = true
	}
	out := make(NodeOutputs, len(spec.OutputKeys))
	for k, v := range outputs {
		if allowed[k] {
			out[k] = v
		} else if warn != nil {
			warn(k)
		}
	}
	return out
}

// expandPrompt substitutes ${key} placeholders in a node's system prompt
// with the node's resolved input values; unresolved placeholders are left
// in place.
func expandPrompt(prompt string, inputs map[string]any) string {
	if prompt == "" {
		return prompt
	}
	return template.Expand(prompt, inputs)
}

// llmCallContext bounds one provider call with the node's per-call
// deadline. Deadline expiry surfaces as a transient error subject to the
// executor's retry policy.
func llmCallContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// serializeInputs renders a node's resolved inputs as a deterministic JSON
// object for inclusion in an LLM prompt.
func serializeInputs(inputs map[string]any) string {
	b, err := json.Marshal(inputs)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// --- llm_generate -----------------------------------------------------

type llmGenerateRunner struct {
	spec    *NodeSpec
	client  llm.Client
	timeout time.Duration
}

func (n *llmGenerateRunner) Run(ctx Context, inputs map[string]any) (NodeOutputs, NodeStatus, error) {
	resolved, err := resolveInputs(n.spec, inputs)
	if err != nil {
		return nil, NodeFailure, err
	}
	if n.client == nil {
		return nil, NodeFailure, fmt.Errorf("node %q: no llm client configured", n.spec.ID)
	}

	req := llm.CompletionRequest{
		SystemPrompt: expandPrompt(n.spec.SystemPrompt, resolved),
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: serializeInputs(resolved)},
		},
	}

	content, err := n.streamCompletion(ctx, req)
	if err != nil {
		return nil, NodeFailure, err
	}

	outputs, parseErr := n.parseOutputs(content)
	if parseErr != nil {
		// Schema violation: one corrective re-prompt with an explicit
		// "fix the schema" directive before failing.
		fixReq := req
		fixReq.Messages = append(fixReq.Messages, llm.Message{Role: llm.RoleAssistant, Content: content},
			llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("That response did not match the expected output keys %v. Reply again with a single JSON object containing exactly those keys.", n.spec.OutputKeys)})
		fixCtx, cancel := llmCallContext(ctx, n.timeout)
		resp2, err2 := n.client.Complete(fixCtx, fixReq)
		cancel()
		if err2 != nil {
			return nil, NodeFailure, err2
		}
		outputs, parseErr = n.parseOutputs(resp2.Content)
		if parseErr != nil {
			return nil, NodeFailure, fmt.Errorf("node %q: output schema violation after corrective re-prompt: %w", n.spec.ID, parseErr)
		}
	}

	return filterOutputs(n.spec, outputs, nil), NodeSuccess, nil
}

// streamCompletion runs one streaming completion, forwarding each text
// frame to the event bus as it arrives and assembling the final message
// when the stream closes. Client-facing nodes additionally mirror frames
// as ClientOutputDelta.
func (n *llmGenerateRunner) streamCompletion(ctx Context, req llm.CompletionRequest) (string, error) {
	callCtx, cancel := llmCallContext(ctx, n.timeout)
	defer cancel()

	stream, err := n.client.Stream(callCtx, req)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for chunk := range stream {
		if chunk.Error != nil {
			return "", chunk.Error
		}
		if chunk.Content != "" {
			sb.WriteString(chunk.Content)
			emit(ctx, eventsOf(ctx), execOf(ctx), EventLLMTextDelta, TextDeltaData{NodeID: n.spec.ID, Text: chunk.Content})
			if n.spec.ClientFacing {
				emit(ctx, eventsOf(ctx), execOf(ctx), EventClientOutputDelta, TextDeltaData{NodeID: n.spec.ID, Text: chunk.Content})
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return "", &CancellationError{NodeID: n.spec.ID, Err: err}
	}
	return sb.String(), nil
}

// parseOutputs maps a completion's text content onto the node's declared
// output keys: a single output key takes the raw text, multiple keys
// require the response to be a JSON object naming each.
func (n *llmGenerateRunner) parseOutputs(content string) (map[string]any, error) {
	if len(n.spec.OutputKeys) <= 1 {
		key := "output"
		if len(n.spec.OutputKeys) == 1 {
			key = n.spec.OutputKeys[0]
		}
		return map[string]any{key: content}, nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &obj); err != nil {
		return nil, err
	}
	for _, k := range n.spec.OutputKeys {
		if _, ok := obj[k]; !ok {
			return nil, fmt.Errorf("missing output key %q", k)
		}
	}
	return obj, nil
}

// --- llm_tool_use -------------------------------------------------------

type llmToolUseRunner struct {
	spec        *NodeSpec
	client      llm.Client
	tools       *registry.ToolRegistry
	toolCallCap int
	timeout     time.Duration
}

func (n *llmToolUseRunner) Run(ctx Context, inputs map[string]any) (NodeOutputs, NodeStatus, error) {
	resolved, err := resolveInputs(n.spec, inputs)
	if err != nil {
		return nil, NodeFailure, err
	}
	if n.client == nil {
		return nil, NodeFailure, fmt.Errorf("node %q: no llm client configured", n.spec.ID)
	}

	var toolDefs []llm.Tool
	if n.tools != nil {
		for _, d := range n.tools.Descriptors(n.spec.Tools) {
			params, _ := json.Marshal(d.Parameters)
			toolDefs = append(toolDefs, llm.Tool{Name: d.Name, Description: d.Description, Parameters: params})
		}
	}

	messages := []llm.Message{{Role: llm.RoleUser, Content: serializeInputs(resolved)}}

	systemPrompt := expandPrompt(n.spec.SystemPrompt, resolved)
	for round := 0; round < n.toolCallCap; round++ {
		callCtx, cancel := llmCallContext(ctx, n.timeout)
		resp, err := n.client.Complete(callCtx, llm.CompletionRequest{
			SystemPrompt: systemPrompt,
			Messages:     messages,
			Tools:        toolDefs,
		})
		cancel()
		if err != nil {
			return nil, NodeFailure, err
		}

		if len(resp.ToolCalls) == 0 {
			return filterOutputs(n.spec, map[string]any{firstOutputKey(n.spec): resp.Content}, nil), NodeSuccess, nil
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
		for _, call := range resp.ToolCalls {
			emit(ctx, eventsOf(ctx), execOf(ctx), EventToolCallStarted, ToolCallData{NodeID: n.spec.ID, ToolName: call.Name})

			var args map[string]any
			_ = json.Unmarshal(call.Arguments, &args)

			result, callErr := n.tools.Call(ctx, call.Name, args)
			errMsg := ""
			if callErr != nil {
				errMsg = callErr.Error()
				result = map[string]any{"error": errMsg}
			}
			emit(ctx, eventsOf(ctx), execOf(ctx), EventToolCallCompleted, ToolCallData{NodeID: n.spec.ID, ToolName: call.Name, Error: errMsg})

			payload, _ := json.Marshal(result)
			messages = append(messages, llm.Message{Role: llm.RoleTool, Name: call.Name, Content: string(payload)})
		}
	}

	return nil, NodeFailure, fmt.Errorf("%w: node %q exceeded %d tool-call rounds", ErrToolLoopExceeded, n.spec.ID, n.toolCallCap)
}

func firstOutputKey(spec *NodeSpec) string {
	if len(spec.OutputKeys) > 0 {
		return spec.OutputKeys[0]
	}
	return "output"
}

// eventsOf/execOf let a NodeRunner reach the executor's EventBus and
// Execution without widening the NodeRunner interface; the executor stashes
// both on the Context it derives per node.
func eventsOf(ctx Context) event.Bus { return ctx.Events() }

func execOf(ctx Context) *Execution { return ctx.Execution() }

// --- function ------------------------------------------------------------

type functionRunner struct {
	spec *NodeSpec
	fn   FunctionHandler
}

func (n *functionRunner) Run(ctx Context, inputs map[string]any) (NodeOutputs, NodeStatus, error) {
	resolved, err := resolveInputs(n.spec, inputs)
	if err != nil {
		return nil, NodeFailure, err
	}

	// The callable may be synchronous or cooperative-async; run it on its
	// own goroutine so the executor never blocks the scheduler on it,
	// honoring ctx cancellation.
	type outcome struct {
		out map[string]any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &PanicError{NodeID: n.spec.ID, Value: r}}
			}
		}()
		out, err := n.fn(ctx, resolved)
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, NodeFailure, o.err
		}
		return filterOutputs(n.spec, o.out, nil), NodeSuccess, nil
	case <-ctx.Done():
		return nil, NodeFailure, &CancellationError{NodeID: n.spec.ID, Err: ctx.Err()}
	}
}

// --- router ---------------------------------------------------------------

type routerRunner struct {
	spec    *NodeSpec
	fn      FunctionHandler
	client  llm.Client
	timeout time.Duration
}

func (n *routerRunner) Run(ctx Context, inputs map[string]any) (NodeOutputs, NodeStatus, error) {
	resolved, err := resolveInputs(n.spec, inputs)
	if err != nil {
		return nil, NodeFailure, err
	}

	var label string
	if n.fn != nil {
		out, err := n.fn(ctx, resolved)
		if err != nil {
			return nil, NodeFailure, &RouterError{NodeID: n.spec.ID, Err: err}
		}
		if v, ok := out["label"]; ok {
			label = fmt.Sprint(v)
		} else if len(n.spec.OutputKeys) > 0 {
			label = fmt.Sprint(out[n.spec.OutputKeys[0]])
		}
	} else {
		if n.client == nil {
			return nil, NodeFailure, &RouterError{NodeID: n.spec.ID, Err: fmt.Errorf("router has neither a function nor an llm client")}
		}
		callCtx, cancel := llmCallContext(ctx, n.timeout)
		resp, err := n.client.Complete(callCtx, llm.CompletionRequest{
			SystemPrompt: expandPrompt(n.spec.SystemPrompt, resolved),
			Messages:     []llm.Message{{Role: llm.RoleUser, Content: serializeInputs(resolved)}},
		})
		cancel()
		if err != nil {
			return nil, NodeFailure, &RouterError{NodeID: n.spec.ID, Err: err}
		}
		label = strings.TrimSpace(resp.Content)
	}

	key := "routed"
	if len(n.spec.OutputKeys) > 0 {
		key = n.spec.OutputKeys[0]
	}
	return NodeOutputs{key: label}, NodeSuccess, nil
}

// --- client_input -----------------------------------------------------

type clientInputRunner struct {
	spec *NodeSpec
}

func (n *clientInputRunner) Run(ctx Context, inputs map[string]any) (NodeOutputs, NodeStatus, error) {
	emit(ctx, eventsOf(ctx), execOf(ctx), EventClientInputRequested, ClientInputData{NodeID: n.spec.ID, Prompt: inputs})
	return nil, NodePaused, nil
}

// --- sub_graph --------------------------------------------------------

type subGraphRunner struct {
	spec *NodeSpec
	run  func(ctx Context, spec *GraphSpec, input map[string]any) (map[string]any, error)
}

func (n *subGraphRunner) Run(ctx Context, inputs map[string]any) (NodeOutputs, NodeStatus, error) {
	resolved, err := resolveInputs(n.spec, inputs)
	if err != nil {
		return nil, NodeFailure, err
	}
	out, err := n.run(ctx, n.spec.SubGraph, resolved)
	if err != nil {
		return nil, NodeFailure, err
	}
	return filterOutputs(n.spec, out, nil), NodeSuccess, nil
}
