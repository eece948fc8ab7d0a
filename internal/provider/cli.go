package provider

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CLI adapts a local command-line completion tool. The prompt is written to
// stdin and the completed text read from stdout.
type CLI struct {
	name string
	bin  string
	args []string
}

// NewCLI creates a CLI provider invoking bin with the given arguments.
func NewCLI(name, bin string, args []string) *CLI {
	return &CLI{name: name, bin: bin, args: args}
}

// Name implements Provider.
func (p *CLI) Name() string { return p.name }

// Available reports whether the binary is on PATH.
func (p *CLI) Available() bool {
	_, err := exec.LookPath(p.bin)
	return err == nil
}

// Complete implements Provider.
func (p *CLI) Complete(ctx context.Context, prompt string) (string, error) {
	cmd := exec.CommandContext(ctx, p.bin, p.args...)
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%s: %s", p.bin, msg)
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return "", fmt.Errorf("%s: produced no output", p.bin)
	}
	return text, nil
}
