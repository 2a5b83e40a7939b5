// Command hive-runtime is the composition-root binary: it loads a graph
// spec and runtime configuration, wires an AgentRuntime, starts a single
// manual-trigger stream, and blocks until signalled.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hive-run/graphrt/pkg/hive"
	"github.com/hive-run/graphrt/pkg/hive/checkpoint"
	"github.com/hive-run/graphrt/pkg/hive/config"
	"github.com/hive-run/graphrt/pkg/hive/event"
	"github.com/hive-run/graphrt/pkg/hive/llm"
	"gopkg.in/yaml.v3"
)

const (
	exitOK          = 0
	exitInitFailure = 1
	exitBadConfig   = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		graphPath  = flag.String("graph", "", "path to the graph spec (json or yaml)")
		configPath = flag.String("config", "", "optional path to hive.yaml/hive.json")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if *graphPath == "" {
		logger.Error("missing required -graph flag")
		return exitBadConfig
	}

	cfg := config.New(nil)
	if *configPath != "" {
		var err error
		cfg, err = config.FromFile(*configPath)
		if err != nil {
			logger.Error("config load failed", "path", *configPath, "error", err)
			return exitBadConfig
		}
	}
	env, err := config.FromEnv()
	if err != nil {
		logger.Error("environment parse failed", "error", err)
		return exitBadConfig
	}
	cfg = env.Overlay(cfg)

	spec, err := loadGraphSpec(*graphPath)
	if err != nil {
		logger.Error("graph spec load failed", "path", *graphPath, "error", err)
		return exitBadConfig
	}

	store, err := openCheckpointStore(cfg)
	if err != nil {
		logger.Error("checkpoint store init failed", "error", err)
		return exitInitFailure
	}
	defer store.Close()

	bus := event.NewBus(event.BusConfig{})

	rt, err := hive.NewRuntime(spec,
		hive.WithRuntimeCheckpoints(store),
		hive.WithRuntimeEvents(bus),
		hive.WithRuntimeLLM(llm.NewClaudeCLI()),
		hive.WithRuntimeLLMTimeout(time.Duration(cfg.Int("llm_timeout_ms", 120000))*time.Millisecond),
		hive.WithRuntimeLogger(logger),
	)
	if err != nil {
		logger.Error("runtime init failed", "error", err)
		return exitInitFailure
	}

	maxConcurrency := cfg.Int("max_stream_concurrency", 16)
	stream := rt.AddStream(hive.StreamConfig{
		ID:             "manual",
		Trigger:        hive.TriggerManual,
		MaxConcurrency: maxConcurrency,
	})
	rt.Start()
	logger.Info("runtime started",
		"graph_id", spec.ID,
		"stream_id", stream.ID(),
		"max_concurrency", maxConcurrency)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	rt.Stop(ctx)
	logger.Info("runtime stopped")
	return exitOK
}

func loadGraphSpec(path string) (*hive.GraphSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var spec hive.GraphSpec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return nil, fmt.Errorf("parse yaml graph: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &spec); err != nil {
			return nil, fmt.Errorf("parse json graph: %w", err)
		}
	}
	return &spec, nil
}

func openCheckpointStore(cfg config.Config) (checkpoint.Store, error) {
	root := cfg.String("checkpoint_root", "")
	if root == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		root = filepath.Join(base, "hive", "checkpoints")
	}
	if strings.HasSuffix(root, ".db") || strings.HasSuffix(root, ".sqlite") {
		return checkpoint.NewSQLiteStore(root)
	}
	return checkpoint.NewFileStore(root)
}
