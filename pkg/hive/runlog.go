package hive

import "time"

// Status is the lifecycle state of an execution or a RunLog.
type Status string

// Execution/RunLog statuses.
const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusPaused    Status = "paused"
)

// Decision records one conditional choice made while walking the graph:
// an edge selection or a router's label. Decisions are append-only within
// a RunLog.
type Decision struct {
	ID        string    `json:"id"`
	NodeID    string    `json:"node_id"`
	Intent    string    `json:"intent"`
	Options   []string  `json:"options,omitempty"`
	ChosenID  string    `json:"chosen_id"`
	Reasoning string    `json:"reasoning,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	At        time.Time `json:"at"`
}

// NodeVisit records one execution of a node within a run.
type NodeVisit struct {
	NodeID   string        `json:"node_id"`
	Attempt  int           `json:"attempt"`
	Status   string        `json:"status"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// CostSummary totals the resource consumption of a run. Token/cost
// accounting is provider-specific and out of scope here; the fields are
// the provider-neutral shape the executor itself can populate.
type CostSummary struct {
	NodeExecutions int `json:"node_executions"`
	ToolCalls      int `json:"tool_calls"`
	LLMCalls       int `json:"llm_calls"`
}

// RunLog is the append-only record of one execution, produced when the
// executor reaches a terminal state.
type RunLog struct {
	RunID       string         `json:"run_id"`
	GoalID      string         `json:"goal_id"`
	GraphID     string         `json:"graph_id"`
	Start       time.Time      `json:"start"`
	End         *time.Time     `json:"end,omitempty"`
	Status      Status         `json:"status"`
	Decisions   []Decision     `json:"decisions,omitempty"`
	NodeVisits  []NodeVisit    `json:"node_visits,omitempty"`
	FinalOutput map[string]any `json:"final_output,omitempty"`
	Error       string         `json:"error,omitempty"`
	CostSummary CostSummary    `json:"cost_summary"`
}
