// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/Kodiak/pkg/logging"
)

var (
	serverURL    string
	limit        int
	designSystem string
	negative     bool
	queryContext string
	resetWindow  bool

	logger = logging.Default()

	rootCmd = &cobra.Command{
		Use:   "rankctl",
		Short: "Operator CLI for the Kodiak hybrid ranking engine",
		Long: `rankctl talks to a running Kodiak ranker over its HTTP API:
query the ranked element index, submit feedback, and inspect
operating mode and metrics.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if serverURL == "" {
				serverURL = os.Getenv("KODIAK_SERVER_URL")
			}
			if serverURL == "" {
				serverURL = "http://localhost:12310"
			}
		},
	}

	retrieveCmd = &cobra.Command{
		Use:   "retrieve [query]",
		Short: "Retrieve ranked elements for a natural-language query",
		Args:  cobra.ExactArgs(1),
		Run:   runRetrieve,
	}

	feedbackCmd = &cobra.Command{
		Use:   "feedback [element-id]",
		Short: "Submit thumbs-up/down feedback for an element",
		Long: `Submits a feedback event for the given element UUID. Positive by
default; pass --negative for a thumbs-down. The server propagates the
confidence change through related elements and reports what it touched.`,
		Args: cobra.ExactArgs(1),
		Run:  runFeedback,
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show operating mode, service health, and the metrics snapshot",
		Run:   runStatus,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"Ranker base URL (default $KODIAK_SERVER_URL or http://localhost:12310)")

	retrieveCmd.Flags().IntVar(&limit, "limit", 10, "Maximum results")
	retrieveCmd.Flags().StringVar(&designSystem, "design-system", "", "Restrict to one design system")

	feedbackCmd.Flags().BoolVar(&negative, "negative", false, "Submit negative feedback")
	feedbackCmd.Flags().StringVar(&queryContext, "query-context", "", "Query that produced the element")

	statusCmd.Flags().BoolVar(&resetWindow, "reset", false, "Reset the metrics window after reading")

	rootCmd.AddCommand(retrieveCmd, feedbackCmd, statusCmd)
}
