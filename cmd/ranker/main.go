// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command ranker starts the Kodiak hybrid ranking HTTP server.
//
// Configuration is layered: built-in defaults, then the optional config
// file named by KODIAK_CONFIG, then environment variables.
//
// # Environment Variables
//
//   - KODIAK_CONFIG: Path to a YAML or JSON config file (optional)
//   - KODIAK_PORT: HTTP server port (default: 12310)
//   - KODIAK_WEAVIATE_URL: Weaviate vector DB URL (optional; graph-only without it)
//   - OPENAI_API_KEY: Embedding API key (optional; hash embedder without it)
//   - KODIAK_BADGER_PATH: Feedback journal directory (default: ./data/feedback)
//   - KODIAK_GRAPH_SEED_PATH: JSON graph seed file (optional)
//   - KODIAK_OTEL_ENDPOINT: OpenTelemetry collector (default: localhost:4317)
//
// # Usage
//
//	# Build
//	go build -o ranker ./cmd/ranker
//
//	# Run
//	./ranker
package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/AleutianAI/Kodiak/services/ranker"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := ranker.LoadConfig(os.Getenv("KODIAK_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	slog.Info("Starting ranker",
		"port", cfg.Server.Port,
		"weaviate_url", cfg.Backends.WeaviateURL,
		"badger_path", cfg.Backends.BadgerPath,
	)

	svc, err := ranker.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create ranker: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Ranker error: %v", err)
	}
}
