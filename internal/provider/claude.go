package provider

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// Claude adapts the Anthropic Messages API, optionally via AWS Bedrock.
type Claude struct {
	inner anthropic.Client
	model anthropic.Model
	// configured records whether credentials were present at construction.
	configured bool
}

// NewClaude creates a Claude provider for the given model.
func NewClaude(model string, settings ClaudeSettings) (*Claude, error) {
	var opts []option.RequestOption
	configured := false

	if settings.UseAWSBedrock {
		ctx := context.Background()

		var loadOpts []func(*awsconfig.LoadOptions) error
		if settings.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(settings.AWSRegion))
		}
		if settings.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(settings.AWSProfile))
		}

		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
		configured = true
	} else {
		apiKey := settings.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey != "" {
			opts = append(opts, option.WithAPIKey(apiKey))
			configured = true
		}
	}

	m := anthropic.Model(model)
	if settings.UseAWSBedrock {
		m = translateModelForBedrock(m)
	}

	return &Claude{
		inner:      anthropic.NewClient(opts...),
		model:      m,
		configured: configured,
	}, nil
}

// Name implements Provider.
func (c *Claude) Name() string { return "claude" }

// Available implements Provider.
func (c *Claude) Available() bool { return c.configured }

// Complete implements Provider.
func (c *Claude) Complete(ctx context.Context, prompt string) (string, error) {
	if !c.configured {
		return "", fmt.Errorf("anthropic credentials not configured")
	}

	resp, err := c.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(variant.Text)
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("anthropic API: response contained no text")
	}
	return text, nil
}

// translateModelForBedrock converts standard Anthropic model names to Bedrock
// inference profile format (us.anthropic.{model}-v1:0).
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}

	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}
	return model
}
