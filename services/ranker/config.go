// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ranker

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/Kodiak/services/ranker/engine"
	"github.com/AleutianAI/Kodiak/services/ranker/vector"
)

// Config is the top-level service configuration. Loaded in layers:
// defaults, then an optional YAML-or-JSON file, then environment
// variables, then Validate().
//
// Thread Safety: Safe to read concurrently. Not safe to modify after
// creation.
type Config struct {
	// Engine contains ranking, propagation, reward, and resilience
	// parameters.
	Engine engine.Config `json:"engine" yaml:"engine"`

	// Backends contains external service connection settings.
	Backends BackendsConfig `json:"backends" yaml:"backends"`

	// Observability contains tracing settings.
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`

	// Server contains HTTP server settings.
	Server ServerConfig `json:"server" yaml:"server"`
}

// BackendsConfig contains external service connection settings.
type BackendsConfig struct {
	// WeaviateURL is the Weaviate vector database URL.
	// If empty, the vector branch is disabled and the engine serves in
	// graph-only mode.
	WeaviateURL string `json:"weaviate_url" yaml:"weaviate_url"`

	// WeaviateAPIKey authenticates against Weaviate. Optional.
	WeaviateAPIKey string `json:"weaviate_api_key" yaml:"weaviate_api_key"`

	// WeaviateClass is the Weaviate class holding element vectors.
	// Default: "UIComponent"
	WeaviateClass string `json:"weaviate_class" yaml:"weaviate_class"`

	// OpenAIAPIKey authenticates embedding requests. If empty, the
	// deterministic hash embedder is used instead.
	OpenAIAPIKey string `json:"openai_api_key" yaml:"openai_api_key"`

	// BadgerPath is the directory for the feedback journal.
	// Default: "./data/feedback"
	BadgerPath string `json:"badger_path" yaml:"badger_path"`

	// BadgerInMemory keeps the journal memory-only (tests, degraded
	// installs without a writable disk).
	BadgerInMemory bool `json:"badger_in_memory" yaml:"badger_in_memory"`

	// GraphSeedPath is an optional JSON file of elements and relations
	// loaded into the in-memory graph store at startup.
	GraphSeedPath string `json:"graph_seed_path" yaml:"graph_seed_path"`
}

// ObservabilityConfig contains tracing settings.
type ObservabilityConfig struct {
	// TracingEnabled turns on OTLP span export. Default: false
	// (spans are still created; they are just not exported).
	TracingEnabled bool `json:"tracing_enabled" yaml:"tracing_enabled"`

	// OTelEndpoint is the OTLP gRPC collector endpoint.
	// Default: "localhost:4317"
	OTelEndpoint string `json:"otel_endpoint" yaml:"otel_endpoint"`

	// ServiceName identifies this service in traces.
	// Default: "kodiak-ranker"
	ServiceName string `json:"service_name" yaml:"service_name"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Port is the HTTP server port. Default: 12310
	Port int `json:"port" yaml:"port"`

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	// Empty uses the GIN_MODE environment variable or Gin's default.
	GinMode string `json:"gin_mode" yaml:"gin_mode"`

	// FeedbackRatePerSecond caps feedback submissions. Propagation
	// amplifies each event across the graph, so feedback is limited
	// harder than retrieval. Default: 10
	FeedbackRatePerSecond float64 `json:"feedback_rate_per_second" yaml:"feedback_rate_per_second"`

	// FeedbackBurst is the rate limiter burst size. Default: 20
	FeedbackBurst int `json:"feedback_burst" yaml:"feedback_burst"`
}

// DefaultConfig returns the default service configuration.
func DefaultConfig() Config {
	return Config{
		Engine: engine.DefaultConfig(),
		Backends: BackendsConfig{
			WeaviateClass: vector.DefaultClass,
			BadgerPath:    "./data/feedback",
		},
		Observability: ObservabilityConfig{
			OTelEndpoint: "localhost:4317",
			ServiceName:  "kodiak-ranker",
		},
		Server: ServerConfig{
			Port:                  12310,
			FeedbackRatePerSecond: 10,
			FeedbackBurst:         20,
		},
	}
}

// LoadConfig builds the service configuration from defaults, the
// optional config file, and environment overrides.
//
// Inputs:
//   - configPath: Path to a YAML or JSON config file. Empty skips the
//     file layer. A missing file is not an error.
//
// Outputs:
//   - Config: Validated configuration.
//   - error: Non-nil on unreadable/unparseable file or invalid values.
func LoadConfig(configPath string) (Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		if err := loadConfigFile(configPath, &config); err != nil {
			return config, fmt.Errorf("load config file: %w", err)
		}
	}

	loadConfigFromEnv(&config)

	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

func loadConfigFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, use defaults
		}
		return err
	}

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if jsonErr := json.Unmarshal(data, config); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadConfigFromEnv(config *Config) {
	// Backends
	if v := os.Getenv("KODIAK_WEAVIATE_URL"); v != "" {
		config.Backends.WeaviateURL = v
	}
	if v := os.Getenv("KODIAK_WEAVIATE_API_KEY"); v != "" {
		config.Backends.WeaviateAPIKey = v
	}
	if v := os.Getenv("KODIAK_WEAVIATE_CLASS"); v != "" {
		config.Backends.WeaviateClass = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		config.Backends.OpenAIAPIKey = v
	}
	if v := os.Getenv("KODIAK_BADGER_PATH"); v != "" {
		config.Backends.BadgerPath = v
	}
	if v := os.Getenv("KODIAK_BADGER_IN_MEMORY"); v != "" {
		config.Backends.BadgerInMemory = v == "true" || v == "1"
	}
	if v := os.Getenv("KODIAK_GRAPH_SEED_PATH"); v != "" {
		config.Backends.GraphSeedPath = v
	}

	// Engine
	if v := os.Getenv("KODIAK_MAX_HOPS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Engine.Propagation.MaxHops = i
		}
	}
	if v := os.Getenv("KODIAK_DECAY_FACTOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Engine.Propagation.DecayFactor = f
		}
	}
	if v := os.Getenv("KODIAK_BACKEND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Engine.BackendTimeout = d
		}
	}
	if v := os.Getenv("KODIAK_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Engine.Cache.TTL = d
		}
	}

	// Observability
	if v := os.Getenv("KODIAK_TRACING_ENABLED"); v != "" {
		config.Observability.TracingEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("KODIAK_OTEL_ENDPOINT"); v != "" {
		config.Observability.OTelEndpoint = v
	}
	if v := os.Getenv("KODIAK_SERVICE_NAME"); v != "" {
		config.Observability.ServiceName = v
	}

	// Server
	if v := os.Getenv("KODIAK_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Server.Port = i
		}
	}
	if v := os.Getenv("KODIAK_FEEDBACK_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Server.FeedbackRatePerSecond = f
		}
	}
	if v := os.Getenv("GIN_MODE"); v != "" {
		config.Server.GinMode = v
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Server.FeedbackRatePerSecond <= 0 {
		return fmt.Errorf("feedback rate %f must be positive", c.Server.FeedbackRatePerSecond)
	}
	if c.Server.FeedbackBurst <= 0 {
		return fmt.Errorf("feedback burst %d must be positive", c.Server.FeedbackBurst)
	}
	if !c.Backends.BadgerInMemory && c.Backends.BadgerPath == "" {
		return fmt.Errorf("badger path is required unless in-memory mode is set")
	}
	return nil
}
