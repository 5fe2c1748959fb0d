// Package catalog holds the provider and model configuration that drives
// request routing: which vendors are enabled, in what order, with which
// credentials, and what each model costs.
//
// A catalog can live purely in memory or be bound to a JSON file, in which
// case every mutation is persisted back immediately. The file looks like:
//
//	{
//	  "providers": {
//	    "anthropic": {"type": "anthropic", "api_key_env": "ANTHROPIC_API_KEY", "enabled": true, "priority": 1},
//	    "ollama":    {"type": "ollama", "base_url": "http://localhost:11434", "enabled": true, "priority": 9}
//	  },
//	  "models": {
//	    "claude-3-5-sonnet-20241022": {
//	      "name": "claude-3-5-sonnet-20241022", "provider": "anthropic",
//	      "context_window": 200000, "input_cost_per_1m": 3.0, "output_cost_per_1m": 15.0,
//	      "supports_chat": true
//	    }
//	  }
//	}
//
// Unknown fields are ignored so configs written by newer builds still load.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/oldnordic/ai-coder-assistant-sub001/llm/provider"
)

// ProviderConfig describes one configured vendor.
type ProviderConfig struct {
	// Type names the adapter this entry configures.
	Type provider.Type `json:"type"`
	// APIKey is the literal credential. Prefer APIKeyEnv in files that get
	// committed or synced.
	APIKey string `json:"api_key,omitempty"`
	// APIKeyEnv names an environment variable to read the credential from.
	APIKeyEnv string `json:"api_key_env,omitempty"`
	// BaseURL overrides the vendor's default endpoint.
	BaseURL string `json:"base_url,omitempty"`
	// Enabled gates whether the router may select this provider.
	Enabled bool `json:"enabled"`
	// Priority orders failover candidates. Lower values are tried first.
	Priority int `json:"priority"`
	// TimeoutSeconds bounds a single request to this provider. Zero means
	// no per-provider deadline.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
	// MaxRetries overrides the router's retry budget for this provider.
	// Zero or negative means use the router's default.
	MaxRetries int `json:"max_retries,omitempty"`
}

// ModelConfig describes one model: where it lives, its limits, and its
// pricing in USD per million tokens.
type ModelConfig struct {
	Name              string        `json:"name"`
	Provider          provider.Type `json:"provider"`
	MaxTokens         int           `json:"max_tokens,omitempty"`
	ContextWindow     int           `json:"context_window,omitempty"`
	Temperature       *float64      `json:"temperature,omitempty"`
	InputCostPer1M    float64       `json:"input_cost_per_1m,omitempty"`
	OutputCostPer1M   float64       `json:"output_cost_per_1m,omitempty"`
	SupportsChat      bool          `json:"supports_chat"`
	SupportsEmbedding bool          `json:"supports_embedding"`
}

// Catalog is a concurrency-safe registry of provider and model configs,
// optionally backed by a JSON file.
type Catalog struct {
	mu        sync.RWMutex
	path      string
	providers map[provider.Type]ProviderConfig
	models    map[string]ModelConfig
}

type fileFormat struct {
	Providers map[provider.Type]ProviderConfig `json:"providers"`
	Models    map[string]ModelConfig           `json:"models"`
}

// New creates an empty in-memory catalog.
func New() *Catalog {
	return &Catalog{
		providers: make(map[provider.Type]ProviderConfig),
		models:    make(map[string]ModelConfig),
	}
}

// Load reads a catalog from path and binds it there, so later mutations
// persist back. A missing file is not an error; it yields an empty catalog
// that will create the file on first mutation.
func Load(path string) (*Catalog, error) {
	c := New()
	c.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	c.replace(f)
	return c, nil
}

// Reload re-reads the backing file, replacing the in-memory state. It is a
// no-op for in-memory catalogs.
func (c *Catalog) Reload() error {
	c.mu.RLock()
	path := c.path
	c.mu.RUnlock()
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read catalog: %w", err)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse catalog: %w", err)
	}
	c.replace(f)
	return nil
}

func (c *Catalog) replace(f fileFormat) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.providers = make(map[provider.Type]ProviderConfig, len(f.Providers))
	for k, v := range f.Providers {
		if v.Type == "" {
			v.Type = k
		}
		c.providers[k] = v
	}
	c.models = make(map[string]ModelConfig, len(f.Models))
	for k, v := range f.Models {
		if v.Name == "" {
			v.Name = k
		}
		c.models[k] = v
	}
}

// Path returns the backing file path, or empty for in-memory catalogs.
func (c *Catalog) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

// Save writes the catalog to its backing file via a temp file and rename,
// so a crash mid-write never leaves a torn config behind.
func (c *Catalog) Save() error {
	c.mu.RLock()
	path := c.path
	f := fileFormat{
		Providers: make(map[provider.Type]ProviderConfig, len(c.providers)),
		Models:    make(map[string]ModelConfig, len(c.models)),
	}
	for k, v := range c.providers {
		f.Providers[k] = v
	}
	for k, v := range c.models {
		f.Models[k] = v
	}
	c.mu.RUnlock()

	if path == "" {
		return nil
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create catalog directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".catalog-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	ok := false
	defer func() {
		if !ok {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close catalog: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace catalog: %w", err)
	}
	ok = true
	return nil
}

// SetProvider registers or replaces a provider config and persists the
// catalog when file-backed.
func (c *Catalog) SetProvider(cfg ProviderConfig) error {
	if cfg.Type == "" {
		return fmt.Errorf("provider config missing type")
	}
	c.mu.Lock()
	c.providers[cfg.Type] = cfg
	c.mu.Unlock()
	return c.Save()
}

// Provider looks up a provider config by type.
func (c *Catalog) Provider(t provider.Type) (ProviderConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.providers[t]
	return cfg, ok
}

// RemoveProvider deletes a provider config and persists the catalog.
func (c *Catalog) RemoveProvider(t provider.Type) error {
	c.mu.Lock()
	delete(c.providers, t)
	c.mu.Unlock()
	return c.Save()
}

// Providers returns all provider configs sorted by priority, then type.
func (c *Catalog) Providers() []ProviderConfig {
	c.mu.RLock()
	out := make([]ProviderConfig, 0, len(c.providers))
	for _, cfg := range c.providers {
		out = append(out, cfg)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// EnabledProviders returns enabled provider configs in failover order:
// ascending priority, ties broken by type name.
func (c *Catalog) EnabledProviders() []ProviderConfig {
	all := c.Providers()
	out := all[:0]
	for _, cfg := range all {
		if cfg.Enabled {
			out = append(out, cfg)
		}
	}
	return out
}

// SetModel registers or replaces a model config and persists the catalog.
func (c *Catalog) SetModel(cfg ModelConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("model config missing name")
	}
	if cfg.Provider == "" {
		inferred, ok := InferType(cfg.Name)
		if !ok {
			return fmt.Errorf("model %q has no provider and none could be inferred", cfg.Name)
		}
		cfg.Provider = inferred
	}
	c.mu.Lock()
	c.models[cfg.Name] = cfg
	c.mu.Unlock()
	return c.Save()
}

// Model looks up a model config by name.
func (c *Catalog) Model(name string) (ModelConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.models[name]
	return cfg, ok
}

// RemoveModel deletes a model config and persists the catalog.
func (c *Catalog) RemoveModel(name string) error {
	c.mu.Lock()
	delete(c.models, name)
	c.mu.Unlock()
	return c.Save()
}

// Models returns all model configs sorted by name.
func (c *Catalog) Models() []ModelConfig {
	c.mu.RLock()
	out := make([]ModelConfig, 0, len(c.models))
	for _, cfg := range c.models {
		out = append(out, cfg)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ModelsFor returns the configs of all models served by one provider,
// sorted by name.
func (c *Catalog) ModelsFor(t provider.Type) []ModelConfig {
	all := c.Models()
	out := all[:0]
	for _, cfg := range all {
		if cfg.Provider == t {
			out = append(out, cfg)
		}
	}
	return out
}

// ResolveProvider maps a model name to its provider config: an explicit
// model registration wins, otherwise the provider is inferred from the
// model's naming convention.
func (c *Catalog) ResolveProvider(model string) (ProviderConfig, bool) {
	if m, ok := c.Model(model); ok {
		return c.Provider(m.Provider)
	}
	t, ok := InferType(model)
	if !ok {
		return ProviderConfig{}, false
	}
	return c.Provider(t)
}

// defaultKeyEnv maps each hosted vendor to its conventional credential
// variable. Ollama is local and needs none.
var defaultKeyEnv = map[provider.Type][]string{
	provider.TypeAnthropic: {"ANTHROPIC_API_KEY"},
	provider.TypeOpenAI:    {"OPENAI_API_KEY"},
	provider.TypeGoogle:    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// ResolveAPIKey returns the credential for a provider config: the literal
// APIKey if set, then APIKeyEnv, then the vendor's conventional variables.
func ResolveAPIKey(cfg ProviderConfig) string {
	if cfg.APIKey != "" {
		return cfg.APIKey
	}
	if cfg.APIKeyEnv != "" {
		if key := os.Getenv(cfg.APIKeyEnv); key != "" {
			return key
		}
	}
	for _, env := range defaultKeyEnv[cfg.Type] {
		if key := os.Getenv(env); key != "" {
			return key
		}
	}
	return ""
}

// DetectProvider scans the environment for credentials in priority order
// and reports the first vendor that has one.
func DetectProvider() (provider.Type, string, bool) {
	chain := []struct {
		env string
		t   provider.Type
	}{
		{"ANTHROPIC_API_KEY", provider.TypeAnthropic},
		{"OPENAI_API_KEY", provider.TypeOpenAI},
		{"GEMINI_API_KEY", provider.TypeGoogle},
		{"GOOGLE_API_KEY", provider.TypeGoogle},
	}
	for _, entry := range chain {
		if key := os.Getenv(entry.env); key != "" {
			return entry.t, key, true
		}
	}
	return "", "", false
}

// InferType guesses the provider from a model's naming convention:
// "claude-*" is Anthropic, "gpt-*"/"o*"/embedding models are OpenAI,
// "gemini-*" is Google, and tagged names like "llama3.2:latest" are local
// Ollama models.
func InferType(model string) (provider.Type, bool) {
	name := strings.ToLower(model)
	switch {
	case strings.Contains(name, "claude"):
		return provider.TypeAnthropic, true
	case strings.HasPrefix(name, "gpt-"), strings.HasPrefix(name, "chatgpt"),
		strings.HasPrefix(name, "o1"), strings.HasPrefix(name, "o3"), strings.HasPrefix(name, "o4"),
		strings.HasPrefix(name, "text-embedding"), strings.HasPrefix(name, "davinci"):
		return provider.TypeOpenAI, true
	case strings.Contains(name, "gemini"), strings.HasPrefix(name, "models/"):
		return provider.TypeGoogle, true
	case strings.Contains(name, ":"):
		return provider.TypeOllama, true
	default:
		return "", false
	}
}
