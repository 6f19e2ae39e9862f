//go:build e2e

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// End-to-end smoke test for a running ranker. Requires a live server:
//
//	KODIAK_SERVER_URL=http://localhost:12310 go test -tags e2e ./test/e2e/
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"
)

var (
	serverURL  string
	httpClient = &http.Client{Timeout: 30 * time.Second}
)

func TestMain(m *testing.M) {
	serverURL = os.Getenv("KODIAK_SERVER_URL")
	if serverURL == "" {
		fmt.Println("KODIAK_SERVER_URL not set; skipping e2e suite")
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func postJSON(t *testing.T, path string, payload any) (*http.Response, map[string]any) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	resp, err := httpClient.Post(serverURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode %s response: %v", path, err)
	}
	return resp, decoded
}

func TestHealthEndpoint(t *testing.T) {
	resp, err := httpClient.Get(serverURL + "/v1/health")
	if err != nil {
		t.Fatalf("GET /v1/health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health returned %d", resp.StatusCode)
	}
}

func TestRetrieveThenFeedback(t *testing.T) {
	resp, retrieved := postJSON(t, "/v1/retrieve", map[string]any{
		"query": "primary action button",
		"limit": 5,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("retrieve returned %d: %v", resp.StatusCode, retrieved)
	}
	if _, ok := retrieved["operating_mode"]; !ok {
		t.Fatal("retrieve response missing operating_mode")
	}

	results, _ := retrieved["results"].([]any)
	if len(results) == 0 {
		t.Skip("no elements indexed on this server; skipping feedback leg")
	}
	first, _ := results[0].(map[string]any)
	elementID, _ := first["element_id"].(string)
	if elementID == "" {
		t.Fatal("first result missing element_id")
	}

	resp, feedback := postJSON(t, "/v1/feedback", map[string]any{
		"target_element": elementID,
		"polarity":       "positive",
		"query_context":  "primary action button",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("feedback returned %d: %v", resp.StatusCode, feedback)
	}
	if _, ok := feedback["event_id"]; !ok {
		t.Fatal("feedback response missing event_id")
	}
}

func TestRetrieveRejectsEmptyQuery(t *testing.T) {
	resp, _ := postJSON(t, "/v1/retrieve", map[string]any{"query": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty query returned %d, want 400", resp.StatusCode)
	}
}

func TestModeEndpoint(t *testing.T) {
	resp, err := httpClient.Get(serverURL + "/v1/mode")
	if err != nil {
		t.Fatalf("GET /v1/mode: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mode returned %d", resp.StatusCode)
	}

	var mode struct {
		Mode     string            `json:"operating_mode"`
		Services map[string]string `json:"services"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&mode); err != nil {
		t.Fatalf("decode mode: %v", err)
	}
	if mode.Mode == "" {
		t.Fatal("mode response missing operating_mode")
	}
}
