package main

import (
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nexuscli/nexus/internal/archive"
	"github.com/nexuscli/nexus/internal/config"
	"github.com/nexuscli/nexus/internal/notify"
	"github.com/nexuscli/nexus/internal/orchestrator"
)

var orchestrateCmd = &cobra.Command{
	Use:   "orchestrate",
	Short: "Run the task pipeline",
	Long: `Start the orchestrator: watch the inbox for new task files and advance
every task through the configured role pipeline.

The orchestrator first sweeps tasks already sitting in the inbox or
backlog, then reacts to new files as they arrive. Stop it with Ctrl+C;
in-flight stages finish before shutdown.`,
	RunE: runOrchestrate,
}

func runOrchestrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	q, err := openQueue(cfg)
	if err != nil {
		return err
	}

	rtr, err := buildRouter(cfg)
	if err != nil {
		return err
	}

	opts := []orchestrator.Option{
		orchestrator.WithLogger(orchestrator.NewDebugLoggerForBase(cfg.Project.BasePath)),
	}

	db, err := archive.Open(archive.ProjectPath(cfg.Project.BasePath))
	if err != nil {
		log.Printf("[nexus] archive disabled: %v", err)
	} else {
		defer db.Close()
		opts = append(opts, orchestrator.WithArchive(db))
	}

	if cfg.Notify.WebhookURL != "" || len(cfg.Notify.Webhooks) > 0 {
		sink := notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Webhooks, cfg.Notify.Timeout)
		opts = append(opts, orchestrator.WithNotifier(sink))
	}

	o := orchestrator.New(orchestrator.Config{
		Stages:             cfg.Pipeline.Stages,
		MaxConcurrentTasks: cfg.Pipeline.MaxConcurrentTasks,
		EventBuffer:        cfg.Pipeline.EventBuffer,
	}, q, rtr, opts...)

	if err := o.Watch(q.InboxDir()); err != nil {
		return fmt.Errorf("watch inbox: %w", err)
	}
	defer o.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Watching %s (stages: %v)\n", q.InboxDir(), cfg.Pipeline.Stages)

	if err := o.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	fmt.Println("\nOrchestrator stopped.")
	return nil
}
