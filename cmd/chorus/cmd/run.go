package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/George-Strauch/chorus/internal/auditbus"
	"github.com/George-Strauch/chorus/internal/branch"
	"github.com/George-Strauch/chorus/internal/config"
	"github.com/George-Strauch/chorus/internal/contextstore"
	"github.com/George-Strauch/chorus/internal/execshell"
	"github.com/George-Strauch/chorus/internal/gateway"
	"github.com/George-Strauch/chorus/internal/llmprovider"
	"github.com/George-Strauch/chorus/internal/orchestrator"
	"github.com/George-Strauch/chorus/internal/process"
	"github.com/George-Strauch/chorus/internal/store"
	"github.com/George-Strauch/chorus/internal/tools"
	"github.com/George-Strauch/chorus/internal/workspace"
)

// defaultWindowSeconds is the rolling context window applied to a newly
// registered agent; matches the window used across the orchestrator's own
// tests.
const defaultWindowSeconds = 3600

// gatewaySignalNotify/gatewaySignalStop are package vars, matching the
// teacher's cli.gateway so tests can substitute them.
var (
	gatewaySignalNotify = signal.Notify
	gatewaySignalStop   = signal.Stop
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Chorus orchestrator and bind its configured agents",
	Run:   runOrchestrator,
}

func runOrchestrator(cmd *cobra.Command, args []string) {
	printHeader("Chorus Orchestrator")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("config: %v\n", err)
		os.Exit(1)
	}
	if len(cfg.Agents) == 0 {
		fmt.Println(`no agents configured; add entries under "agents" in config.json`)
		os.Exit(1)
	}
	if err := config.EnsureHome(cfg); err != nil {
		fmt.Printf("failed to prepare %s: %v\n", cfg.Paths.Home, err)
		os.Exit(1)
	}

	st, err := store.New(cfg.DBPath())
	if err != nil {
		fmt.Printf("failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	bus := auditbus.New(cfg.Audit)
	gw := gateway.NewSlackGateway(cfg.Slack)
	orch := orchestrator.New(st, gw, bus)
	hookOps := orchestrator.NewHookOps(orch)

	ctx := context.Background()
	registry := tools.DefaultRegistry()
	provider := buildProvider(cfg)

	for _, a := range cfg.Agents {
		if !config.ValidAgentName(a.Name) {
			fmt.Printf("skipping agent %q: invalid name\n", a.Name)
			continue
		}

		if err := ensureAgentRow(ctx, st, cfg, a); err != nil {
			fmt.Printf("failed to register agent %s: %v\n", a.Name, err)
			os.Exit(1)
		}

		ws, err := workspace.New(cfg.WorkspacePath(a.Name))
		if err != nil {
			fmt.Printf("failed to open workspace for %s: %v\n", a.Name, err)
			os.Exit(1)
		}

		processLogDir := filepath.Join(cfg.Paths.Home, "process-logs", a.Name)
		if err := os.MkdirAll(processLogDir, 0700); err != nil {
			fmt.Printf("failed to prepare process log dir for %s: %v\n", a.Name, err)
			os.Exit(1)
		}
		procManager := process.NewManager(processLogDir, st)
		dispatcher := process.NewHookDispatcher(procManager, hookOps, hookOps, hookOps, hookOps)
		dispatcher.WireToManager()

		rt := &orchestrator.AgentRuntime{
			Name:          a.Name,
			ChannelID:     a.ChannelID,
			Provider:      provider,
			Registry:      registry,
			Model:         firstNonEmpty(a.Model, cfg.Model.Name),
			Docs:          a.Docs,
			Workspace:     ws,
			Branches:      branch.NewManager(a.Name),
			Processes:     procManager,
			Shell:         execshell.New(ws.Root()),
			MaxIterations: cfg.Model.MaxToolIterations,
		}
		rt.Context = contextstore.NewBuilder(st, rt.Branches, nil, nil)

		orch.RegisterAgent(rt)
		fmt.Printf("registered agent %-20s -> channel %s\n", a.Name, a.ChannelID)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	gatewaySignalNotify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer gatewaySignalStop(sigChan)

	go func() {
		<-sigChan
		fmt.Println("\nshutting down...")
		cancel()
	}()

	fmt.Println("chorus is listening, press Ctrl+C to stop")
	if err := orch.Start(runCtx); err != nil && runCtx.Err() == nil {
		fmt.Printf("gateway stopped: %v\n", err)
		os.Exit(1)
	}
}

// ensureAgentRow creates the agent's store row on first run, or folds in
// config changes (channel, model, permissions) on subsequent ones.
func ensureAgentRow(ctx context.Context, st *store.Store, cfg *config.Config, a config.AgentConfig) error {
	_, err := st.GetAgent(ctx, a.Name)
	if err == nil {
		st.SetModel(ctx, a.Name, firstNonEmpty(a.Model, cfg.Model.Name))
		st.SetPermissionProfile(ctx, a.Name, a.Permissions, "")
		return nil
	}

	return st.CreateAgent(ctx, store.Agent{
		Name:          a.Name,
		ChannelID:     a.ChannelID,
		Model:         firstNonEmpty(a.Model, cfg.Model.Name),
		Permissions:   a.Permissions,
		WorkspaceRoot: cfg.WorkspacePath(a.Name),
		WindowSeconds: defaultWindowSeconds,
	})
}

// buildProvider picks the configured LLM backend: Anthropic when an API
// key is set, OpenAI otherwise, Anthropic's zero-value defaults last.
func buildProvider(cfg *config.Config) llmprovider.Provider {
	if cfg.Model.OpenAIAPIKey != "" && cfg.Model.AnthropicAPIKey == "" {
		return llmprovider.NewOpenAIAdapter(cfg.Model.OpenAIAPIKey, cfg.Model.OpenAIAPIBase, cfg.Model.Name)
	}
	return llmprovider.NewAnthropicAdapter(cfg.Model.AnthropicAPIKey, cfg.Model.AnthropicAPIBase, cfg.Model.Name)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
