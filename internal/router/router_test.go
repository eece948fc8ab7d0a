package router

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nexuscli/nexus/internal/config"
	"github.com/nexuscli/nexus/internal/provider"
	"github.com/nexuscli/nexus/internal/ratelimit"
)

// fakeProvider is a scriptable provider for router tests.
type fakeProvider struct {
	name      string
	available bool
	reply     string
	err       error
	calls     int
}

func (f *fakeProvider) Name() string    { return f.name }
func (f *fakeProvider) Available() bool { return f.available }
func (f *fakeProvider) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

// testRouter wires a router over fake providers with unmetered quotas.
func testRouter(t *testing.T, routes *config.Routes, cfg Config, providers ...*fakeProvider) *Router {
	t.Helper()
	registry := provider.NewRegistry()
	for _, p := range providers {
		p := p
		registry.Register(p.name, func(model string) (provider.Provider, error) {
			return p, nil
		})
	}
	limiter := ratelimit.New(ratelimit.QuotaFunc(func(providerName, model string) (int, int) {
		q := routes.QuotaFor(providerName, model)
		return q.Requests, q.Tokens
	}))
	return New(routes, registry, limiter, cfg)
}

func chainRoutes(role, model string, providers []string) *config.Routes {
	return config.NewRoutes(
		map[string]config.RoleRoute{role: {Model: model, Providers: providers}},
		nil, nil, config.Quota{},
	)
}

func TestCompleteFallsBackPastUnavailable(t *testing.T) {
	p1 := &fakeProvider{name: "p1", available: false, reply: "from p1"}
	p2 := &fakeProvider{name: "p2", available: true, reply: "ok"}
	r := testRouter(t, chainRoutes("r", "m", []string{"p1", "p2"}), Config{UsePaidModels: true}, p1, p2)

	res, err := r.Complete(context.Background(), "r", "x")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Text != "ok" {
		t.Errorf("Complete = %q, want %q", res.Text, "ok")
	}
	if p1.calls != 0 {
		t.Error("unavailable provider must never be invoked")
	}
	if p2.calls != 1 {
		t.Errorf("p2.calls = %d, want 1", p2.calls)
	}
}

func TestCompleteFirstSuccessWins(t *testing.T) {
	p1 := &fakeProvider{name: "p1", available: true, reply: "first"}
	p2 := &fakeProvider{name: "p2", available: true, reply: "second"}
	r := testRouter(t, chainRoutes("r", "m", []string{"p1", "p2"}), Config{UsePaidModels: true}, p1, p2)

	res, err := r.Complete(context.Background(), "r", "x")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Text != "first" {
		t.Errorf("Complete = %q, want %q", res.Text, "first")
	}
	if p2.calls != 0 {
		t.Error("later providers must not be consulted after a success")
	}
}

func TestCompleteSkipsFailingProvider(t *testing.T) {
	p1 := &fakeProvider{name: "p1", available: true, err: errors.New("boom")}
	p2 := &fakeProvider{name: "p2", available: true, reply: "ok"}
	r := testRouter(t, chainRoutes("r", "m", []string{"p1", "p2"}), Config{UsePaidModels: true}, p1, p2)

	res, err := r.Complete(context.Background(), "r", "x")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Text != "ok" {
		t.Errorf("Complete = %q", res.Text)
	}
	if p1.calls != 1 {
		t.Errorf("p1.calls = %d, want 1", p1.calls)
	}
}

func TestCompleteExhaustion(t *testing.T) {
	p1 := &fakeProvider{name: "p1", available: false}
	p2 := &fakeProvider{name: "p2", available: false}
	r := testRouter(t, chainRoutes("r", "m", []string{"p1", "p2"}), Config{UsePaidModels: true}, p1, p2)

	_, err := r.Complete(context.Background(), "r", "x")
	if err == nil {
		t.Fatal("exhausted chain should return an error")
	}
	if !IsExhausted(err) {
		t.Errorf("error should be ExhaustedError, got %T: %v", err, err)
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) && exhausted.Attempted != 2 {
		t.Errorf("Attempted = %d, want 2", exhausted.Attempted)
	}
}

func TestCompleteUnknownRole(t *testing.T) {
	r := testRouter(t, chainRoutes("r", "m", nil), Config{})

	_, err := r.Complete(context.Background(), "ghost", "x")
	if !errors.Is(err, ErrNoRoute) {
		t.Errorf("error = %v, want ErrNoRoute", err)
	}
}

func TestCompleteSkipsPaidRouteWhenDisabled(t *testing.T) {
	paid := &fakeProvider{name: "claude", available: true, reply: "paid"}
	free := &fakeProvider{name: "groq", available: true, reply: "free"}
	routes := config.NewRoutes(
		map[string]config.RoleRoute{"r": {Model: "sonnet", Providers: []string{"claude", "groq"}}},
		map[string]config.ModelRoute{"sonnet": {ID: "sonnet", Provider: "claude", Paid: true}},
		nil, config.Quota{},
	)
	r := testRouter(t, routes, Config{UsePaidModels: false}, paid, free)

	res, err := r.Complete(context.Background(), "r", "x")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Text != "free" {
		t.Errorf("Complete = %q, want the free provider's reply", res.Text)
	}
	if paid.calls != 0 {
		t.Error("paid provider must be skipped when paid routing is disabled")
	}
}

func TestCompleteRecordsUsage(t *testing.T) {
	p := &fakeProvider{name: "p", available: true, reply: "four words of reply"}
	r := testRouter(t, chainRoutes("r", "m", []string{"p"}), Config{UsePaidModels: true}, p)

	res, err := r.Complete(context.Background(), "r", "two words")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Provider != "p" || res.Model != "m" {
		t.Errorf("served route = %s/%s, want p/m", res.Provider, res.Model)
	}
	if res.Tokens != 7 {
		t.Errorf("res.Tokens = %d, want 7", res.Tokens)
	}

	u := r.Limiter().Snapshot("p", "m")
	if u.Requests != 1 {
		t.Errorf("Requests = %d, want 1", u.Requests)
	}
	// 2 prompt words + 4 reply words * 1.3 = 7
	if u.Tokens != 7 {
		t.Errorf("Tokens = %d, want 7", u.Tokens)
	}
}

func TestCompleteSkipsRateLimitedProvider(t *testing.T) {
	p1 := &fakeProvider{name: "p1", available: true, reply: "slow lane"}
	p2 := &fakeProvider{name: "p2", available: true, reply: "ok"}
	routes := config.NewRoutes(
		map[string]config.RoleRoute{"r": {Model: "m", Providers: []string{"p1", "p2"}}},
		nil,
		map[string]map[string]config.Quota{"p1": {"m": {Requests: 1}}},
		config.Quota{},
	)
	// MaxLimitWait of zero means any retryAfter skips instead of waiting.
	r := testRouter(t, routes, Config{UsePaidModels: true}, p1, p2)

	// Saturate p1's request window.
	r.Limiter().Record("p1", "m", 10)

	res, err := r.Complete(context.Background(), "r", "x")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Text != "ok" {
		t.Errorf("Complete = %q, want fallback reply", res.Text)
	}
	if p1.calls != 0 {
		t.Error("rate-limited provider must be skipped")
	}
}

func TestCompleteWaitsOutShortRetryAfter(t *testing.T) {
	p := &fakeProvider{name: "p", available: true, reply: "ok"}
	routes := config.NewRoutes(
		map[string]config.RoleRoute{"r": {Model: "m", Providers: []string{"p"}}},
		nil,
		map[string]map[string]config.Quota{"p": {"m": {Requests: 1}}},
		config.Quota{},
	)

	registry := provider.NewRegistry()
	registry.Register("p", func(model string) (provider.Provider, error) { return p, nil })
	limiter := ratelimit.NewWithWindow(ratelimit.QuotaFunc(func(pn, m string) (int, int) {
		q := routes.QuotaFor(pn, m)
		return q.Requests, q.Tokens
	}), 50*time.Millisecond)
	r := New(routes, registry, limiter, Config{UsePaidModels: true, MaxLimitWait: time.Second})

	limiter.Record("p", "m", 10)

	start := time.Now()
	res, err := r.Complete(context.Background(), "r", "x")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Text != "ok" {
		t.Errorf("Complete = %q", res.Text)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("router should have waited out the short retryAfter window")
	}
}

func TestCompleteDirect(t *testing.T) {
	p := &fakeProvider{name: "claude", available: true, reply: "direct"}
	routes := config.NewRoutes(
		nil,
		map[string]config.ModelRoute{"sonnet": {ID: "sonnet", Provider: "claude"}},
		nil, config.Quota{},
	)
	r := testRouter(t, routes, Config{UsePaidModels: true}, p)

	res, err := r.CompleteDirect(context.Background(), "sonnet", "x")
	if err != nil {
		t.Fatalf("CompleteDirect: %v", err)
	}
	if res.Text != "direct" {
		t.Errorf("CompleteDirect = %q", res.Text)
	}

	if _, err := r.CompleteDirect(context.Background(), "unregistered", "x"); !errors.Is(err, ErrNoRoute) {
		t.Errorf("unregistered model: error = %v, want ErrNoRoute", err)
	}
}

func TestCompleteDirectFailureIsTerminal(t *testing.T) {
	p := &fakeProvider{name: "claude", available: true, err: fmt.Errorf("backend down")}
	routes := config.NewRoutes(
		nil,
		map[string]config.ModelRoute{"sonnet": {ID: "sonnet", Provider: "claude"}},
		nil, config.Quota{},
	)
	r := testRouter(t, routes, Config{UsePaidModels: true}, p)

	if _, err := r.CompleteDirect(context.Background(), "sonnet", "x"); err == nil {
		t.Fatal("direct route failure must propagate")
	}
	if p.calls != 1 {
		t.Errorf("calls = %d, want exactly 1 (no retries)", p.calls)
	}
}

func TestEstimateTokens(t *testing.T) {
	// 3 prompt words + 10 reply words * 1.3 = 16
	got := estimateTokens("one two three", "a b c d e f g h i j")
	if got != 16 {
		t.Errorf("estimateTokens = %d, want 16", got)
	}
}
