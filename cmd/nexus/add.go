package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nexuscli/nexus/internal/config"
	"github.com/nexuscli/nexus/pkg/models"
)

var (
	addPriority string
	addTags     []string
	addRole     string
	addCriteria []string
)

var addCmd = &cobra.Command{
	Use:   "add <title> [description]",
	Short: "Add a task to the inbox",
	Long: `Create a task file in the inbox. A running orchestrator picks it up
immediately; otherwise it is processed on the next sweep.

Examples:
  nexus add "Fix login redirect"
  nexus add "Ship dark mode" "Follow the design doc" --priority high
  nexus add "Refactor billing" --tags backend,debt --criteria "tests pass"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addPriority, "priority", "medium", "Task priority (low, medium, high)")
	addCmd.Flags().StringSliceVar(&addTags, "tags", nil, "Comma-separated tags")
	addCmd.Flags().StringVar(&addRole, "role", "", "Pin the task to a specific role")
	addCmd.Flags().StringArrayVar(&addCriteria, "criteria", nil, "Acceptance criteria (repeatable)")
}

func runAdd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	q, err := openQueue(cfg)
	if err != nil {
		return err
	}

	description := ""
	if len(args) > 1 {
		description = args[1]
	}

	task := models.NewTask(args[0], description)
	task.Priority = addPriority
	task.Tags = addTags
	task.AssignedRole = addRole
	task.AcceptanceCriteria = addCriteria

	path, err := q.Add(task)
	if err != nil {
		return fmt.Errorf("add task: %w", err)
	}

	green := color.New(color.FgGreen)
	fmt.Printf("%s Task %s created\n", green.Sprint("✓"), task.ID)
	fmt.Printf("  %s\n", path)
	if len(addTags) > 0 {
		fmt.Printf("  tags: %s\n", strings.Join(addTags, ", "))
	}
	return nil
}
