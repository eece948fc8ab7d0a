package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexuscli/nexus/internal/config"
	"github.com/nexuscli/nexus/internal/router"
)

var askRole string
var askModel string

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Send a one-off prompt through the router",
	Long: `Send a prompt to a role's provider chain, or directly to a single model
with --model. Useful for checking routing and credentials without
creating a task.

Examples:
  nexus ask "Summarize the release notes" --role communications
  nexus ask "2+2?" --model llama-3.1-8b-instant`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askRole, "role", "", "Role whose provider chain to use")
	askCmd.Flags().StringVar(&askModel, "model", "", "Route to this model only, no fallback")
}

func runAsk(cmd *cobra.Command, args []string) error {
	if (askRole == "") == (askModel == "") {
		return fmt.Errorf("exactly one of --role or --model is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rtr, err := buildRouter(cfg)
	if err != nil {
		return err
	}

	var result router.Result
	if askModel != "" {
		result, err = rtr.CompleteDirect(cmd.Context(), askModel, args[0])
	} else {
		result, err = rtr.Complete(cmd.Context(), askRole, args[0])
	}

	switch {
	case errors.Is(err, router.ErrNoRoute):
		return fmt.Errorf("no route: %w", err)
	case router.IsExhausted(err):
		return fmt.Errorf("%w; check credentials with 'nexus status'", err)
	case err != nil:
		return err
	}

	fmt.Println(result.Text)
	return nil
}
