package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/azimuth-ai/azimuth/pkg/config"
	"github.com/azimuth-ai/azimuth/pkg/engine"
	"github.com/azimuth-ai/azimuth/pkg/reasoner/claude"
	"github.com/azimuth-ai/azimuth/pkg/stores"
	"github.com/azimuth-ai/azimuth/pkg/telemetry"
	"github.com/azimuth-ai/azimuth/pkg/tools/cli"
	"github.com/azimuth-ai/azimuth/pkg/tools/ssh"
)

func newRunCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run <request>",
		Short: "Execute a natural-language infrastructure request",
		Long: `Parses the request into a goal graph and drives it to completion.
The run always finishes with a final report: what was achieved with what
confidence, what failed and what to do about it, and what was blocked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), args[0], dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and plan only, execute nothing")
	return cmd
}

func runRun(ctx context.Context, request string, dryRun bool) error {
	env, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer env.close(ctx)
	ctx = telemetry.WithContext(ctx, env.logger)

	graph, err := env.parser.Parse(ctx, request)
	if err != nil {
		return fmt.Errorf("could not plan request: %w", err)
	}

	if dryRun {
		return printPlan(graph)
	}

	orch := engine.NewExecutionOrchestrator(env.cfg.EngineConfig(), env.reasoner, env.tool)
	report := orch.Run(ctx, request, graph)

	if env.store != nil {
		if err := env.store.SaveRun(context.WithoutCancel(ctx), report, orch.History().Entries()); err != nil {
			env.logger.WithError(err).Warn("failed to persist run history")
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Print(report.Render())

	if report.Summary.Failed > 0 || report.Summary.Aborted > 0 {
		return fmt.Errorf("%d goal(s) need attention", report.Summary.Failed+report.Summary.Aborted)
	}
	return nil
}

// runtime bundles everything a command needs after setup.
type runtime struct {
	cfg      *config.Config
	logger   *telemetry.Logger
	tracer   *telemetry.Tracer
	metrics  *telemetry.MetricsServer
	reasoner engine.Reasoner
	parser   *engine.GoalParser
	tool     engine.Tool
	store    *stores.SQLiteStore
}

// setup builds the shared runtime. The reasoner and tool are only needed by
// commands that plan or execute; history works without an API key.
func setup(ctx context.Context, withEngine bool) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Telemetry.LogLevel = "debug"
	}

	tcfg := cfg.TelemetryConfig(buildVersion)
	logger, err := telemetry.NewLogger(tcfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}

	tracer, err := telemetry.NewTracer(tcfg.Tracing, tcfg.ServiceName, tcfg.ServiceVersion, tcfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}

	metrics := telemetry.NewMetricsServer(tcfg.Metrics)
	if metrics != nil {
		go func() {
			if err := metrics.Start(); err != nil {
				logger.WithError(err).Warn("metrics endpoint failed")
			}
		}()
	}

	var reasoner engine.Reasoner
	var tool engine.Tool
	if withEngine {
		apiKey := cfg.Reasoner.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		reasoner, err = claude.New(claude.Config{
			APIKey:         apiKey,
			Model:          cfg.Reasoner.Model,
			MaxTokens:      cfg.Reasoner.MaxTokens,
			RequestTimeout: cfg.Reasoner.RequestTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("setting up reasoner: %w", err)
		}

		if cfg.Tools.SSH.Enabled {
			tool, err = ssh.New(ssh.Config{
				Host:           cfg.Tools.SSH.Host,
				Port:           cfg.Tools.SSH.Port,
				User:           cfg.Tools.SSH.User,
				PrivateKeyPath: cfg.Tools.SSH.PrivateKeyPath,
				KnownHostsPath: cfg.Tools.SSH.KnownHostsPath,
				ConnectTimeout: cfg.Tools.SSH.ConnectTimeout,
			})
			if err != nil {
				return nil, fmt.Errorf("setting up ssh tool: %w", err)
			}
		} else {
			tool = cli.New(cfg.Tools.AllowedBinaries)
		}
	}

	var store *stores.SQLiteStore
	if cfg.History.Path != "" {
		store, err = stores.NewSQLiteStore(ctx, cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("opening history store: %w", err)
		}
	}

	env := &runtime{
		cfg:      cfg,
		logger:   logger,
		tracer:   tracer,
		metrics:  metrics,
		reasoner: reasoner,
		tool:     tool,
		store:    store,
	}
	if withEngine {
		env.parser = engine.NewGoalParser(reasoner)
	}
	return env, nil
}

func (r *runtime) close(ctx context.Context) {
	shutdownCtx := context.WithoutCancel(ctx)
	if r.store != nil {
		_ = r.store.Close()
	}
	_ = r.metrics.Shutdown(shutdownCtx)
	_ = r.tracer.Shutdown(shutdownCtx)
}
