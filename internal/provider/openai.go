package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// openAIBackendConfig describes one OpenAI-compatible chat-completions backend.
type openAIBackendConfig struct {
	baseURL string
	keyEnv  string
	// extraHeaders are sent with every request (e.g. OpenRouter attribution).
	extraHeaders map[string]string
}

// openAIBackends lists the built-in OpenAI-compatible backends.
var openAIBackends = map[string]openAIBackendConfig{
	"groq": {
		baseURL: "https://api.groq.com/openai/v1",
		keyEnv:  "GROQ_API_KEY",
	},
	"openrouter": {
		baseURL: "https://openrouter.ai/api/v1",
		keyEnv:  "OPENROUTER_API_KEY",
		extraHeaders: map[string]string{
			"HTTP-Referer": "https://nexus-cli.local",
			"X-Title":      "Nexus",
		},
	},
	"together": {
		baseURL: "https://api.together.xyz/v1",
		keyEnv:  "TOGETHER_API_KEY",
	},
	"deepseek": {
		baseURL: "https://api.deepseek.com/v1",
		keyEnv:  "DEEPSEEK_API_KEY",
	},
	"qwen": {
		baseURL: "https://dashscope-intl.aliyuncs.com/compatible-mode/v1",
		keyEnv:  "QWEN_API_KEY",
	},
}

// OpenAICompatible adapts any backend that speaks the OpenAI
// chat-completions wire format. One implementation serves groq, openrouter,
// together, deepseek and qwen; they differ only in base URL and key.
type OpenAICompatible struct {
	name         string
	model        string
	baseURL      string
	apiKey       string
	extraHeaders map[string]string
	client       *http.Client
}

// NewOpenAICompatible creates an adapter for the named backend.
func NewOpenAICompatible(name, model string, cfg openAIBackendConfig) *OpenAICompatible {
	return &OpenAICompatible{
		name:         name,
		model:        model,
		baseURL:      cfg.baseURL,
		apiKey:       os.Getenv(cfg.keyEnv),
		extraHeaders: cfg.extraHeaders,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

// Name implements Provider.
func (p *OpenAICompatible) Name() string { return p.name }

// Available implements Provider.
func (p *OpenAICompatible) Available() bool { return p.apiKey != "" }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete implements Provider.
func (p *OpenAICompatible) Complete(ctx context.Context, prompt string) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("%s API key not configured", p.name)
	}

	payload, err := json.Marshal(chatRequest{
		Model:       p.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.1,
		MaxTokens:   4000,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s API: %w", p.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%s API: read response: %w", p.name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%s API: status %d: %s", p.name, resp.StatusCode, truncateBody(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%s API: decode response: %w", p.name, err)
	}
	// Some backends return an error payload with a 2xx status.
	if parsed.Error != nil && parsed.Error.Message != "" {
		return "", fmt.Errorf("%s API: %s", p.name, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%s API: response contained no choices", p.name)
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%s API: choice missing message content", p.name)
	}
	return text, nil
}

func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
