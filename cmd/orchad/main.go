// Command orchad runs the agent-orchestrator daemon: it wires the model,
// the tool registry, the persistent memory store, MCP servers and the
// session gateway together, then serves the HTTP and streaming surfaces.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/orcha/internal/agent"
	"github.com/haasonsaas/orcha/internal/compaction"
	"github.com/haasonsaas/orcha/internal/config"
	"github.com/haasonsaas/orcha/internal/gateway"
	"github.com/haasonsaas/orcha/internal/llm"
	"github.com/haasonsaas/orcha/internal/mcp"
	"github.com/haasonsaas/orcha/internal/memstore"
	"github.com/haasonsaas/orcha/internal/registry"
	"github.com/haasonsaas/orcha/internal/subagent"
	"github.com/haasonsaas/orcha/internal/tool"
	"github.com/haasonsaas/orcha/internal/toolsearch"
)

const systemPrompt = "You are a tool-using assistant. Use the available tools to " +
	"complete the user's request, then call terminate."

// subagentSweepSchedule archives completed sub-agent run records every ten
// minutes.
const subagentSweepSchedule = "*/10 * * * *"

func main() {
	root := &cobra.Command{
		Use:           "orchad",
		Short:         "Tool-using agent orchestrator daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildServeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		logDir     string
		modelName  string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestrator HTTP and streaming server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if logDir != "" {
				cfg.Server.LogDir = logDir
			}
			return runServe(cmd.Context(), cfg, modelName, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().StringVar(&logDir, "log-dir", "", "Run-log directory (overrides server.log_dir)")
	cmd.Flags().StringVar(&modelName, "model", "", "Model name passed to the provider")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func runServe(ctx context.Context, cfg *config.Config, modelName string, debug bool) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracker := llm.NewCostTracker()
	model, resolvedModel, err := buildModel(modelName, tracker)
	if err != nil {
		return err
	}

	store, err := memstore.Open(cfg.Memory.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := registry.New()
	reg.Add(tool.Terminate{}, "local")
	reg.Add(memstore.NewTool(store), "local")
	reg.Add(toolsearch.New(reg), "local")

	subReg := subagent.NewRegistry(model, reg, subagentFactory(cfg), 30*time.Minute)
	reg.Add(subagent.NewTaskTool(subReg), "local")

	mcpManager := mcp.NewManager(cfg.MCP, logger)
	if err := mcpManager.Start(ctx); err != nil {
		logger.Warn("mcp startup incomplete", "error", err)
	}
	defer mcpManager.Stop()
	for _, name := range mcp.RegisterTools(reg, mcpManager) {
		logger.Debug("registered remote tool", "tool", name)
	}

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(subagentSweepSchedule, func() {
		if removed := subReg.Sweep(time.Now()); removed > 0 {
			logger.Debug("archived sub-agent runs", "count", removed)
		}
	}); err != nil {
		return fmt.Errorf("schedule sub-agent sweep: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	gw, err := gateway.New(gateway.Options{
		Model:     model,
		ModelName: resolvedModel,
		LogDir:    cfg.Server.LogDir,
		NewAgent:  gatewayAgentFactory(cfg, model, reg),
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer gw.Close()

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr, "model", resolvedModel)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildModel(modelName string, tracker *llm.CostTracker) (llm.Model, string, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, "", fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	model, err := llm.NewAnthropic(llm.AnthropicConfig{
		APIKey:       apiKey,
		DefaultModel: modelName,
		Tracker:      tracker,
	})
	if err != nil {
		return nil, "", err
	}
	resolved := modelName
	if resolved == "" {
		resolved = "claude-sonnet-4-20250514"
	}
	return model, resolved, nil
}

// gatewayAgentFactory builds one tool-calling agent per session, sharing
// the process-wide registry and model.
func gatewayAgentFactory(cfg *config.Config, model llm.Model, reg *registry.Registry) gateway.AgentFactory {
	return func(sessionID string) (*agent.Agent, error) {
		a := agent.New("session", agent.NewToolCallingAgent(model, reg))
		a.SystemPrompt = systemPrompt
		a.Effort = cfg.Agent.Effort()
		a.HighEffortMode = cfg.Agent.HighEffortMode
		a.EnableReflection = cfg.Agent.EnableReflection
		if cfg.Memory.Enabled {
			a.Compaction = compaction.NewManager(model, cfg.Memory.CompactionThresholdTokens, strategyFor(cfg, model))
		}
		return a, nil
	}
}

// subagentFactory builds the tool-calling agent behind each Task tool
// spawn, applying any sub_agent.<type>.max_steps override from config.
func subagentFactory(cfg *config.Config) subagent.AgentFactory {
	return func(t subagent.Type, def subagent.Definition, model llm.Model, reg *registry.Registry) *agent.Agent {
		a := agent.New(string(t), agent.NewToolCallingAgent(model, reg))
		a.MaxSteps = def.MaxSteps
		if override, ok := cfg.SubAgent[string(t)]; ok && override.MaxSteps > 0 {
			a.MaxSteps = override.MaxSteps
		}
		a.Effort = agent.EffortNone
		return a
	}
}

func strategyFor(cfg *config.Config, model llm.Model) compaction.Strategy {
	switch cfg.Memory.Strategy {
	case "summarize":
		return compaction.LLMSummarize{Model: model, Fallback: compaction.SelectiveRetention{Turns: 5}}
	case "composite":
		return compaction.Composite{Strategies: []compaction.Strategy{
			compaction.StripReasoning{Keep: 2},
			compaction.DropOldToolResults{Keep: 10},
			compaction.SelectiveRetention{Turns: 10},
		}}
	default:
		return compaction.SelectiveRetention{Turns: 5}
	}
}
