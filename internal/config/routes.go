package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RoleRoute maps a role to its model and ordered provider fallback chain.
type RoleRoute struct {
	// Name is the role name.
	Name string `yaml:"name"`
	// Model is the model identifier submitted to each provider.
	Model string `yaml:"model"`
	// Providers is the ordered fallback chain of provider names.
	Providers []string `yaml:"providers"`
}

// ModelRoute maps a model id to a single provider for direct routing.
type ModelRoute struct {
	// ID is the model identifier.
	ID string `yaml:"id"`
	// Provider is the provider name serving this model.
	Provider string `yaml:"provider"`
	// Paid flags routes that are skipped when paid models are disabled.
	Paid bool `yaml:"is_paid"`
}

// Quota holds per-window admission limits for one (provider, model) pair.
// A zero value on both axes means the route is unmetered.
type Quota struct {
	// Requests is the request-count limit per window.
	Requests int `yaml:"rpm"`
	// Tokens is the token-volume limit per window.
	Tokens int `yaml:"tpm"`
}

// Unmetered reports whether both limits are zero.
func (q Quota) Unmetered() bool {
	return q.Requests <= 0 && q.Tokens <= 0
}

// Routes is the read-only route table: role chains, direct model routes,
// and per-(provider,model) quotas.
type Routes struct {
	roles        map[string]RoleRoute
	models       map[string]ModelRoute
	limits       map[string]map[string]Quota
	defaultQuota Quota
}

// Role returns the route for a role.
func (r *Routes) Role(name string) (RoleRoute, bool) {
	route, ok := r.roles[name]
	return route, ok
}

// Model returns the direct route for a model id.
func (r *Routes) Model(id string) (ModelRoute, bool) {
	route, ok := r.models[id]
	return route, ok
}

// RoleNames returns every configured role name.
func (r *Routes) RoleNames() []string {
	names := make([]string, 0, len(r.roles))
	for name := range r.roles {
		names = append(names, name)
	}
	return names
}

// QuotaFor returns the quota for a (provider, model) pair, falling back to
// the default quota when no explicit entry exists.
func (r *Routes) QuotaFor(provider, model string) Quota {
	if byModel, ok := r.limits[provider]; ok {
		if q, ok := byModel[model]; ok {
			return q
		}
	}
	return r.defaultQuota
}

// IsPaid reports whether the (provider, model) pair is flagged as a paid route.
func (r *Routes) IsPaid(provider, model string) bool {
	route, ok := r.models[model]
	return ok && route.Provider == provider && route.Paid
}

// routesFile mirrors the shape of routes.yaml.
type routesFile struct {
	ProviderRoutes []ModelRoute `yaml:"provider_routes"`
}

// rolesFile mirrors the shape of roles.yaml.
type rolesFile struct {
	Roles map[string]RoleRoute `yaml:"roles"`
}

// limitsFile mirrors the shape of limits.yaml.
type limitsFile struct {
	Providers map[string]struct {
		Models map[string]Quota `yaml:"models"`
	} `yaml:"providers"`
	DefaultLimits Quota `yaml:"default_limits"`
}

// LoadRoutes loads the route table from roles.yaml, routes.yaml and
// limits.yaml in the given directory. Missing files produce empty sections;
// a missing limits file yields the built-in default quota.
func LoadRoutes(configDir string) (*Routes, error) {
	routes := &Routes{
		roles:        map[string]RoleRoute{},
		models:       map[string]ModelRoute{},
		limits:       map[string]map[string]Quota{},
		defaultQuota: DefaultQuota(),
	}

	rolesPath := filepath.Join(configDir, "roles.yaml")
	if fileExists(rolesPath) {
		var rf rolesFile
		if err := readYAMLInto(rolesPath, &rf); err != nil {
			return nil, fmt.Errorf("load roles: %w", err)
		}
		for name, route := range rf.Roles {
			route.Name = name
			routes.roles[name] = route
		}
	}

	routesPath := filepath.Join(configDir, "routes.yaml")
	if fileExists(routesPath) {
		var rf routesFile
		if err := readYAMLInto(routesPath, &rf); err != nil {
			return nil, fmt.Errorf("load routes: %w", err)
		}
		for _, route := range rf.ProviderRoutes {
			routes.models[route.ID] = route
		}
	}

	limitsPath := filepath.Join(configDir, "limits.yaml")
	if fileExists(limitsPath) {
		var lf limitsFile
		if err := readYAMLInto(limitsPath, &lf); err != nil {
			return nil, fmt.Errorf("load limits: %w", err)
		}
		for provider, section := range lf.Providers {
			routes.limits[provider] = section.Models
		}
		if lf.DefaultLimits.Requests != 0 || lf.DefaultLimits.Tokens != 0 {
			routes.defaultQuota = lf.DefaultLimits
		}
	}

	return routes, nil
}

// NewRoutes builds a route table from in-memory maps (for composition and tests).
func NewRoutes(roles map[string]RoleRoute, models map[string]ModelRoute, limits map[string]map[string]Quota, defaultQuota Quota) *Routes {
	if roles == nil {
		roles = map[string]RoleRoute{}
	}
	if models == nil {
		models = map[string]ModelRoute{}
	}
	if limits == nil {
		limits = map[string]map[string]Quota{}
	}
	for name, route := range roles {
		route.Name = name
		roles[name] = route
	}
	return &Routes{roles: roles, models: models, limits: limits, defaultQuota: defaultQuota}
}

// DefaultQuota is the quota applied to (provider, model) pairs with no
// explicit limits entry.
func DefaultQuota() Quota {
	return Quota{Requests: 60, Tokens: 10000}
}

// readYAMLInto reads a single YAML file into out. The route table is parsed
// with yaml.v3 rather than viper because model ids contain dots, which viper
// treats as key separators.
func readYAMLInto(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshaling %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
