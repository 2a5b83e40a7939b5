// Package config supplies the runtime's configuration surface: typed
// accessors over loosely-shaped YAML/JSON data, plus the HIVE_*
// environment binding that overrides file values.
//
// Precedence is environment > file > built-in default. The composition
// root loads an optional hive.yaml/hive.json with FromFile, reads the
// environment with FromEnv, and overlays the two:
//
//	cfg, _ := config.FromFile("hive.yaml")
//	env, _ := config.FromEnv()
//	cfg = env.Overlay(cfg)
//
//	timeoutMS := cfg.Int("llm_timeout_ms", 120000)
//	limit := cfg.Int("max_stream_concurrency", 16)
//
// Accessors never fail: an absent key or a value of the wrong shape
// yields the caller's default.
package config
