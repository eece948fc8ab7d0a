package main

import (
	"fmt"
	"path/filepath"

	"github.com/nexuscli/nexus/internal/config"
	"github.com/nexuscli/nexus/internal/provider"
	"github.com/nexuscli/nexus/internal/queue"
	"github.com/nexuscli/nexus/internal/ratelimit"
	"github.com/nexuscli/nexus/internal/router"
)

// openQueue creates the task store rooted at the configured base path.
func openQueue(cfg *config.Config) (*queue.Queue, error) {
	q, err := queue.New(cfg.Project.BasePath)
	if err != nil {
		return nil, fmt.Errorf("open task queue: %w", err)
	}
	return q, nil
}

// buildRouter assembles the route table, provider registry, rate limiter
// and fallback router from configuration.
func buildRouter(cfg *config.Config) (*router.Router, error) {
	configDir := cfg.Project.ConfigDir
	if !filepath.IsAbs(configDir) {
		configDir = filepath.Join(cfg.Project.BasePath, configDir)
	}

	routes, err := config.LoadRoutes(configDir)
	if err != nil {
		return nil, fmt.Errorf("load route tables: %w", err)
	}

	registry := provider.DefaultRegistry(provider.ClaudeSettings{
		APIKey:        cfg.Providers.Claude.APIKey,
		UseAWSBedrock: cfg.Providers.Claude.UseAWSBedrock,
		AWSRegion:     cfg.Providers.Claude.AWSRegion,
		AWSProfile:    cfg.Providers.Claude.AWSProfile,
	})

	limiter := ratelimit.New(ratelimit.QuotaFunc(func(p, m string) (int, int) {
		q := routes.QuotaFor(p, m)
		return q.Requests, q.Tokens
	}))

	return router.New(routes, registry, limiter, router.Config{
		UsePaidModels: cfg.Providers.UsePaidModels,
		CallTimeout:   cfg.Providers.CallTimeout,
		MaxLimitWait:  cfg.Providers.MaxLimitWait,
	}), nil
}
