package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix every runtime environment variable carries.
const EnvPrefix = "hive"

// Env is the set of environment variables influencing the core, bound
// from HIVE_*-prefixed variables.
type Env struct {
	// CredentialKey is the symmetric key for the credential store
	// (HIVE_CREDENTIAL_KEY). Required in production; validated by the
	// composition root, not here.
	CredentialKey string `envconfig:"CREDENTIAL_KEY"`

	// CheckpointRoot is the filesystem root for checkpoints
	// (HIVE_CHECKPOINT_ROOT). Empty means the platform config dir.
	CheckpointRoot string `envconfig:"CHECKPOINT_ROOT"`

	// MaxStreamConcurrency is the upper bound on executions per stream
	// (HIVE_MAX_STREAM_CONCURRENCY).
	MaxStreamConcurrency int `envconfig:"MAX_STREAM_CONCURRENCY" default:"16"`

	// LLMTimeoutMS is the default LLM call deadline in milliseconds
	// (HIVE_LLM_TIMEOUT_MS).
	LLMTimeoutMS int `envconfig:"LLM_TIMEOUT_MS" default:"120000"`

	// ToolTimeoutMS is the default tool call deadline in milliseconds
	// (HIVE_TOOL_TIMEOUT_MS).
	ToolTimeoutMS int `envconfig:"TOOL_TIMEOUT_MS" default:"30000"`
}

// FromEnv reads HIVE_* environment variables into an Env.
func FromEnv() (Env, error) {
	var e Env
	if err := envconfig.Process(EnvPrefix, &e); err != nil {
		return Env{}, fmt.Errorf("parse environment: %w", err)
	}
	return e, nil
}

// Overlay merges the environment bindings over a file-based Config,
// giving environment variables precedence. Unset string variables leave
// the file value in place; the integer variables always carry a value
// (their documented default), so a file key only survives when the
// environment variable is at its default.
func (e Env) Overlay(c Config) Config {
	merged := make(map[string]any, len(c.Raw())+5)
	for k, v := range c.Raw() {
		merged[k] = v
	}
	if e.CredentialKey != "" {
		merged["credential_key"] = e.CredentialKey
	}
	if e.CheckpointRoot != "" {
		merged["checkpoint_root"] = e.CheckpointRoot
	}
	if _, ok := merged["max_stream_concurrency"]; !ok || e.MaxStreamConcurrency != 16 {
		merged["max_stream_concurrency"] = e.MaxStreamConcurrency
	}
	if _, ok := merged["llm_timeout_ms"]; !ok || e.LLMTimeoutMS != 120000 {
		merged["llm_timeout_ms"] = e.LLMTimeoutMS
	}
	if _, ok := merged["tool_timeout_ms"]; !ok || e.ToolTimeoutMS != 30000 {
		merged["tool_timeout_ms"] = e.ToolTimeoutMS
	}
	return New(merged)
}
