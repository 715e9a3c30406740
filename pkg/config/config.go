// Package config loads the runtime's own operating parameters: node cache
// sizing, per-session channel bounds, and executor registry rules. It is
// deliberately small — manifest/graph structure has its own schema in the
// manifest package.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/matbeedotcom/remotemedia-sdk-sub006/registry"
)

// NodeCache configures the process-global node cache.
type NodeCache struct {
	TTL           time.Duration `yaml:"ttl"`
	JanitorPeriod time.Duration `yaml:"janitor_period"`
}

// Router configures per-session SessionRouter behavior.
type Router struct {
	InputChannelBound int           `yaml:"input_channel_bound"`
	TeardownTimeout   time.Duration `yaml:"teardown_timeout"`
}

// ExecutorRule is one pattern-matched executor resolution rule.
type ExecutorRule struct {
	Pattern  string `yaml:"pattern"`
	Executor string `yaml:"executor"`
	Priority int    `yaml:"priority"`
}

// Executors configures the Executor Registry's static resolution rules.
type Executors struct {
	Explicit map[string]string `yaml:"explicit"`
	Rules    []ExecutorRule    `yaml:"rules"`
	Default  string            `yaml:"default"`
}

// Config is the runtime's top-level operating configuration.
type Config struct {
	NodeCache NodeCache `yaml:"node_cache"`
	Router    Router    `yaml:"router"`
	Executors Executors `yaml:"executors"`
}

// Default returns a Config carrying every documented default: 10 minute
// cache TTL, 60 second janitor cadence, 64-deep per-node channels, a 5
// second teardown timeout, and an all-native executor fallback.
func Default() Config {
	return Config{
		NodeCache: NodeCache{TTL: 10 * time.Minute, JanitorPeriod: 60 * time.Second},
		Router:    Router{InputChannelBound: 64, TeardownTimeout: 5 * time.Second},
		Executors: Executors{Default: "native"},
	}
}

// Load reads a YAML config file at path and overlays it on Default().
// Fields absent from the file keep their default value.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func parseExecutor(s string) (registry.Executor, error) {
	switch s {
	case "", "native":
		return registry.ExecutorNative, nil
	case "multiprocess":
		return registry.ExecutorMultiprocess, nil
	default:
		return 0, fmt.Errorf("config: unknown executor %q", s)
	}
}

// BuildRegistry constructs a registry.Registry from the Executors section.
func (c Config) BuildRegistry() (*registry.Registry, error) {
	var opts []registry.Option

	for nodeType, executorName := range c.Executors.Explicit {
		executor, err := parseExecutor(executorName)
		if err != nil {
			return nil, err
		}
		opts = append(opts, registry.WithExplicit(nodeType, executor))
	}

	for _, rule := range c.Executors.Rules {
		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("config: compile executor pattern %q: %w", rule.Pattern, err)
		}
		executor, err := parseExecutor(rule.Executor)
		if err != nil {
			return nil, err
		}
		opts = append(opts, registry.WithPattern(pattern, executor, rule.Priority))
	}

	fallback, err := parseExecutor(c.Executors.Default)
	if err != nil {
		return nil, err
	}
	opts = append(opts, registry.WithDefault(fallback))

	return registry.New(opts...), nil
}
