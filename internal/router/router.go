// Package router walks ordered provider chains with availability, paid-route
// and rate-limit checks, returning the first successful completion.
package router

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nexuscli/nexus/internal/config"
	"github.com/nexuscli/nexus/internal/provider"
	"github.com/nexuscli/nexus/internal/ratelimit"
)

// defaultEstimate is the token estimate used for admission checks before
// the real response size is known.
const defaultEstimate = 1000

// Config contains router behavior settings.
type Config struct {
	// UsePaidModels enables routes flagged as paid.
	UsePaidModels bool
	// CallTimeout bounds a single provider call. Zero means no extra bound
	// beyond the caller's context.
	CallTimeout time.Duration
	// MaxLimitWait caps the single bounded wait on a rate-limited route.
	// A retryAfter longer than this skips the provider instead of waiting.
	MaxLimitWait time.Duration
}

// Result is one successful completion and the route that served it.
type Result struct {
	// Text is the completion text.
	Text string
	// Provider is the provider that served the call.
	Provider string
	// Model is the model the call was routed to.
	Model string
	// Tokens is the estimated token cost recorded against the quota.
	Tokens int
}

// Router resolves roles and model ids to provider chains and executes
// fallback across them.
type Router struct {
	routes   *config.Routes
	registry *provider.Registry
	limiter  *ratelimit.Limiter
	cfg      Config
}

// New creates a router over the given route table, provider registry and
// rate limiter.
func New(routes *config.Routes, registry *provider.Registry, limiter *ratelimit.Limiter, cfg Config) *Router {
	return &Router{routes: routes, registry: registry, limiter: limiter, cfg: cfg}
}

// Limiter returns the router's rate limiter, for usage snapshots.
func (r *Router) Limiter() *ratelimit.Limiter { return r.limiter }

// Complete resolves the role's provider chain and walks it in order,
// returning the first successful completion. Expected conditions
// (unavailability, rate limiting, provider call failures) are skipped, not
// raised; an exhausted chain returns an ExhaustedError.
func (r *Router) Complete(ctx context.Context, role, prompt string) (Result, error) {
	route, ok := r.routes.Role(role)
	if !ok {
		return Result{}, fmt.Errorf("role %q: %w", role, ErrNoRoute)
	}

	for _, name := range route.Providers {
		res, err := r.tryProvider(ctx, name, route.Model, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			log.Printf("[router] provider %s failed for role %s: %v, trying next", name, role, err)
			continue
		}
		return res, nil
	}

	return Result{}, &ExhaustedError{Role: role, Model: route.Model, Attempted: len(route.Providers)}
}

// CompleteDirect routes to the single provider registered for a model id.
// There is no fallback chain: any failure is terminal for the call.
func (r *Router) CompleteDirect(ctx context.Context, modelID, prompt string) (Result, error) {
	route, ok := r.routes.Model(modelID)
	if !ok {
		return Result{}, fmt.Errorf("model %q: %w", modelID, ErrNoRoute)
	}

	res, err := r.tryProvider(ctx, route.Provider, modelID, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("model %s via %s: %w", modelID, route.Provider, err)
	}
	return res, nil
}

// tryProvider runs the full admission sequence for one candidate: paid
// check, availability, rate limit with one bounded wait and re-check, then
// the provider call under the call timeout. Usage is recorded on success.
func (r *Router) tryProvider(ctx context.Context, name, model, prompt string) (Result, error) {
	if !r.cfg.UsePaidModels && r.routes.IsPaid(name, model) {
		return Result{}, fmt.Errorf("paid route disabled")
	}

	p, err := r.registry.Get(name, model)
	if err != nil {
		return Result{}, err
	}

	if !p.Available() {
		return Result{}, fmt.Errorf("provider unavailable")
	}

	allowed, retryAfter := r.limiter.Check(name, model, defaultEstimate)
	if !allowed {
		if retryAfter <= 0 || retryAfter > r.cfg.MaxLimitWait {
			return Result{}, fmt.Errorf("rate limited (retry after %s)", retryAfter.Round(time.Millisecond))
		}

		log.Printf("[router] rate limit hit for %s/%s, waiting %s", name, model, retryAfter.Round(time.Millisecond))
		timer := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{}, ctx.Err()
		case <-timer.C:
		}

		// Re-check once after the bounded wait; this is not a retry loop.
		if allowed, _ = r.limiter.Check(name, model, defaultEstimate); !allowed {
			return Result{}, fmt.Errorf("rate limit still exceeded after wait")
		}
	}

	callCtx := ctx
	if r.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.cfg.CallTimeout)
		defer cancel()
	}

	start := time.Now()
	text, err := p.Complete(callCtx, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("provider call: %w", err)
	}

	tokens := estimateTokens(prompt, text)
	r.limiter.Record(name, model, tokens)
	log.Printf("[router] %s -> %s -> %s (~%d tokens)", name, model, time.Since(start).Round(time.Millisecond), tokens)

	return Result{Text: text, Provider: name, Model: model, Tokens: tokens}, nil
}

// ProviderNames returns the names of all registered providers.
func (r *Router) ProviderNames() []string {
	return r.registry.Names()
}

// AvailableProviders returns the names of registered providers whose
// availability check passes for the given probe model.
func (r *Router) AvailableProviders() []string {
	var available []string
	for _, name := range r.registry.Names() {
		p, err := r.registry.Get(name, "probe")
		if err != nil {
			continue
		}
		if p.Available() {
			available = append(available, name)
		}
	}
	return available
}

// estimateTokens roughly estimates token cost from prompt and response
// word counts. It only feeds the unit-quota heuristic, not billing.
func estimateTokens(prompt, result string) int {
	return len(strings.Fields(prompt)) + int(float64(len(strings.Fields(result)))*1.3)
}
