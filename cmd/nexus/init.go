package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	initForce       bool
	initWithConfigs bool
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a Nexus project",
	Long: `Initialize a directory for use with Nexus.

This command sets up everything needed to run the pipeline:
  - Creates the tasks/ status directories (inbox, backlog, active, done)
  - Creates the .nexus directory for logs and the archive database
  - Optionally creates example route-table configuration files

The directory argument is optional and defaults to the current directory.

Examples:
  nexus init                  # Initialize current directory
  nexus init ./myproject      # Initialize specific directory
  nexus init --with-configs   # Also create example route tables`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Reinitialize even if already set up")
	initCmd.Flags().BoolVar(&initWithConfigs, "with-configs", false, "Create example route table files")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve directory: %w", err)
	}

	marker := filepath.Join(dir, ".nexus")
	if _, err := os.Stat(marker); err == nil && !initForce {
		return fmt.Errorf("%s is already initialized (use --force to redo)", dir)
	}

	for _, sub := range []string{"inbox", "backlog", "active", "done"} {
		if err := os.MkdirAll(filepath.Join(dir, "tasks", sub), 0755); err != nil {
			return fmt.Errorf("create task directories: %w", err)
		}
	}
	printCheck("✓", "Created tasks/ status directories", color.FgGreen)

	if err := os.MkdirAll(filepath.Join(marker, "logs"), 0755); err != nil {
		return fmt.Errorf("create .nexus directory: %w", err)
	}
	printCheck("✓", "Created .nexus directory", color.FgGreen)

	if initWithConfigs {
		if err := writeExampleConfigs(dir); err != nil {
			return err
		}
		printCheck("✓", "Created example route tables in config/", color.FgGreen)
	}

	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		printCheck("⚠", "ANTHROPIC_API_KEY not set (you can set it later)", color.FgYellow)
	} else {
		printCheck("✓", "ANTHROPIC_API_KEY is set", color.FgGreen)
	}

	fmt.Printf("\nNext: drop a task with 'nexus add \"<title>\"' and run 'nexus orchestrate'.\n")
	return nil
}

// writeExampleConfigs creates starter roles.yaml, routes.yaml and
// limits.yaml files that the route loader reads.
func writeExampleConfigs(dir string) error {
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	files := map[string]string{
		"roles.yaml": `# Role -> model assignments. Each role lists a model and the ordered
# provider chain for fallback.
roles:
  communications:
    model: llama-3.1-8b-instant
    providers: [groq, openrouter]
  project_manager:
    model: llama-3.1-8b-instant
    providers: [groq, openrouter]
  senior_dev:
    model: claude-sonnet-4-20250514
    providers: [claude, claude_code]
  junior_dev:
    model: llama-3.1-8b-instant
    providers: [groq, together]
  release_qa:
    model: llama-3.1-8b-instant
    providers: [groq, openrouter]
`,
		"routes.yaml": `# Model catalog for direct routing. Paid models are skipped unless
# providers.use_paid_models is enabled.
provider_routes:
  - id: llama-3.1-8b-instant
    provider: groq
    is_paid: false
  - id: claude-sonnet-4-20250514
    provider: claude
    is_paid: true
`,
		"limits.yaml": `# Per-provider, per-model request and token quotas over a sliding
# 60-second window.
providers:
  groq:
    models:
      llama-3.1-8b-instant:
        rpm: 30
        tpm: 6000
default_limits:
  rpm: 60
  tpm: 10000
`,
	}

	for name, content := range files {
		path := filepath.Join(configDir, name)
		if _, err := os.Stat(path); err == nil && !initForce {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

// printCheck prints a status line with color.
func printCheck(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
