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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/Kodiak/pkg/ux"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Local response structs: the CLI depends only on the wire format, not
// on server packages, so it can be built and shipped independently.

type retrieveResponse struct {
	Mode      string `json:"operating_mode"`
	Cached    bool   `json:"cached"`
	LatencyMs int64  `json:"latency_ms"`
	Results   []struct {
		ElementID          string  `json:"element_id"`
		SemanticSimilarity float64 `json:"semantic_similarity"`
		NarseseConfidence  float64 `json:"narsese_confidence"`
		GraphDegree        int     `json:"graph_degree"`
		FinalScore         float64 `json:"final_score"`
		Source             string  `json:"source"`
	} `json:"results"`
}

type feedbackResponse struct {
	EventID     string `json:"event_id"`
	Propagation struct {
		Partial bool `json:"partial"`
		Touched []struct {
			ElementID   string `json:"element_id"`
			HopDistance int    `json:"hop_distance"`
			NewTruth    struct {
				Frequency  float64 `json:"frequency"`
				Confidence float64 `json:"confidence"`
			} `json:"new_truth"`
		} `json:"touched"`
	} `json:"propagation"`
	Reward struct {
		Reward float64 `json:"reward"`
	} `json:"reward"`
}

type modeResponse struct {
	Mode     string            `json:"operating_mode"`
	Services map[string]string `json:"services"`
}

func runRetrieve(cmd *cobra.Command, args []string) {
	payload := map[string]any{
		"query": args[0],
		"limit": limit,
	}
	if designSystem != "" {
		payload["design_system"] = designSystem
	}

	spinner := ux.NewSpinner("querying ranker")
	spinner.Start()
	var resp retrieveResponse
	err := postJSON("/v1/retrieve", payload, &resp)
	spinner.Stop()
	if err != nil {
		logger.Error("retrieve failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("mode=%s cached=%v latency=%dms results=%d\n",
		resp.Mode, resp.Cached, resp.LatencyMs, len(resp.Results))
	for i, r := range resp.Results {
		fmt.Printf("%2d. %s score=%.4f sim=%.3f narsese=%.3f degree=%d source=%s\n",
			i+1, r.ElementID, r.FinalScore, r.SemanticSimilarity,
			r.NarseseConfidence, r.GraphDegree, r.Source)
	}
}

func runFeedback(cmd *cobra.Command, args []string) {
	polarity := "positive"
	if negative {
		polarity = "negative"
	}
	payload := map[string]any{
		"target_element": args[0],
		"polarity":       polarity,
	}
	if queryContext != "" {
		payload["query_context"] = queryContext
	}

	spinner := ux.NewSpinner("submitting feedback")
	spinner.Start()
	var resp feedbackResponse
	err := postJSON("/v1/feedback", payload, &resp)
	spinner.Stop()
	if err != nil {
		logger.Error("feedback failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("event=%s reward=%.4f partial=%v touched=%d\n",
		resp.EventID, resp.Reward.Reward,
		resp.Propagation.Partial, len(resp.Propagation.Touched))
	for _, t := range resp.Propagation.Touched {
		fmt.Printf("  hop=%d %s -> f=%.3f c=%.3f\n",
			t.HopDistance, t.ElementID, t.NewTruth.Frequency, t.NewTruth.Confidence)
	}
}

func runStatus(cmd *cobra.Command, args []string) {
	var mode modeResponse
	if err := getJSON("/v1/mode", &mode); err != nil {
		logger.Error("mode query failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("mode=%s\n", mode.Mode)
	for service, health := range mode.Services {
		fmt.Printf("  %-10s %s\n", service, health)
	}

	path := "/v1/metrics/snapshot"
	if resetWindow {
		path += "?reset=true"
	}
	var snapshot map[string]any
	if err := getJSON(path, &snapshot); err != nil {
		logger.Error("snapshot query failed", "error", err)
		os.Exit(1)
	}
	pretty, _ := json.MarshalIndent(snapshot, "", "  ")
	fmt.Println(string(pretty))
}

func postJSON(path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := httpClient.Post(serverURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func getJSON(path string, out any) error {
	resp, err := httpClient.Get(serverURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return json.Unmarshal(data, out)
}
