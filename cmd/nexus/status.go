package main

import (
	"fmt"
	"log"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nexuscli/nexus/internal/archive"
	"github.com/nexuscli/nexus/internal/config"
	"github.com/nexuscli/nexus/internal/queue"
	"github.com/nexuscli/nexus/internal/router"
	"github.com/nexuscli/nexus/internal/tui"
	"github.com/nexuscli/nexus/pkg/models"
)

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline state",
	Long: `Display queue depths per status, provider availability, and the most
recent archived stage completions.

With --watch, opens a live dashboard that refreshes continuously.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "Open a live dashboard")
}

// statusSource adapts the queue, router and archive to the dashboard.
type statusSource struct {
	queue   *queue.Queue
	router  *router.Router
	archive *archive.DB
}

func (s *statusSource) Counts() map[models.TaskStatus]int {
	return s.queue.Counts()
}

func (s *statusSource) Providers() []tui.ProviderStatus {
	available := make(map[string]bool)
	for _, name := range s.router.AvailableProviders() {
		available[name] = true
	}

	var out []tui.ProviderStatus
	for _, name := range s.router.ProviderNames() {
		out = append(out, tui.ProviderStatus{Name: name, Available: available[name]})
	}
	return out
}

func (s *statusSource) Recent(n int) ([]archive.Completion, error) {
	if s.archive == nil {
		return nil, nil
	}
	return s.archive.RecentCompletions(n)
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	source := &statusSource{queue: q, router: rtr}
	if db, err := archive.Open(archive.ProjectPath(cfg.Project.BasePath)); err == nil {
		defer db.Close()
		source.archive = db
	} else {
		log.Printf("[nexus] archive unavailable: %v", err)
	}

	if statusWatch {
		return tui.RunStatus(source)
	}

	printStatus(source)
	return nil
}

// printStatus writes a one-shot status report to stdout.
func printStatus(source *statusSource) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	dim := color.New(color.Faint)

	bold.Println("Queues")
	counts := source.Counts()
	for _, status := range models.AllStatuses() {
		fmt.Printf("  %-10s %d\n", status, counts[status])
	}

	bold.Println("\nProviders")
	providers := source.Providers()
	if len(providers) == 0 {
		dim.Println("  none configured")
	}
	for _, p := range providers {
		mark := red.Sprint("✗")
		if p.Available {
			mark = green.Sprint("✓")
		}
		fmt.Printf("  %s %s\n", mark, p.Name)
	}

	bold.Println("\nRecent completions")
	recent, err := source.Recent(8)
	if err != nil || len(recent) == 0 {
		dim.Println("  nothing archived yet")
		return
	}
	for _, c := range recent {
		fmt.Printf("  %s  %s  %-16s %s/%s  ~%d tokens\n",
			c.CreatedAt.Format("2006-01-02 15:04"), c.TaskID, c.Role, c.Provider, c.Model, c.Tokens)
	}
}
