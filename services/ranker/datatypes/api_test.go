// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRetrieveRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		request RetrieveRequest
		wantErr bool
	}{
		{
			"minimal valid request",
			RetrieveRequest{Query: "primary button"},
			false,
		},
		{
			"full valid request",
			RetrieveRequest{
				RequestID:    uuid.New().String(),
				Query:        "primary button",
				Limit:        25,
				DesignSystem: "material",
			},
			false,
		},
		{
			"missing query",
			RetrieveRequest{Limit: 10},
			true,
		},
		{
			"query over size cap",
			RetrieveRequest{Query: strings.Repeat("x", MaxQueryBytes+1)},
			true,
		},
		{
			"query exactly at size cap",
			RetrieveRequest{Query: strings.Repeat("x", MaxQueryBytes)},
			false,
		},
		{
			"negative limit",
			RetrieveRequest{Query: "button", Limit: -1},
			true,
		},
		{
			"limit over cap",
			RetrieveRequest{Query: "button", Limit: MaxRetrieveLimit + 1},
			true,
		},
		{
			"malformed request id",
			RetrieveRequest{RequestID: "not-a-uuid", Query: "button"},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.request.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetrieveRequest_EnsureDefaults(t *testing.T) {
	r := RetrieveRequest{Query: "button"}
	r.EnsureDefaults()

	if r.Limit != DefaultRetrieveLimit {
		t.Errorf("Limit = %d, want default %d", r.Limit, DefaultRetrieveLimit)
	}
	if _, err := uuid.Parse(r.RequestID); err != nil {
		t.Errorf("RequestID %q is not a UUID", r.RequestID)
	}

	// Explicit values survive.
	r = RetrieveRequest{Query: "button", Limit: 3, RequestID: "keep-me"}
	r.EnsureDefaults()
	if r.Limit != 3 || r.RequestID != "keep-me" {
		t.Errorf("EnsureDefaults overwrote explicit values: %+v", r)
	}
}

func TestFeedbackRequest_Validate(t *testing.T) {
	target := uuid.New().String()
	tests := []struct {
		name    string
		request FeedbackRequest
		wantErr bool
	}{
		{
			"valid positive",
			FeedbackRequest{TargetElement: target, Polarity: "positive"},
			false,
		},
		{
			"valid negative with context",
			FeedbackRequest{TargetElement: target, Polarity: "negative", QueryContext: "primary button"},
			false,
		},
		{
			"missing target",
			FeedbackRequest{Polarity: "positive"},
			true,
		},
		{
			"malformed target",
			FeedbackRequest{TargetElement: "nope", Polarity: "positive"},
			true,
		},
		{
			"unknown polarity",
			FeedbackRequest{TargetElement: target, Polarity: "meh"},
			true,
		},
		{
			"missing polarity",
			FeedbackRequest{TargetElement: target},
			true,
		},
		{
			"oversized query context",
			FeedbackRequest{TargetElement: target, Polarity: "positive", QueryContext: strings.Repeat("x", MaxQueryBytes+1)},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.request.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFeedbackRequest_Event(t *testing.T) {
	target := uuid.New()
	r := FeedbackRequest{
		TargetElement: target.String(),
		Polarity:      "negative",
		QueryContext:  "primary button",
	}

	event := r.Event()
	if event.TargetElement != target {
		t.Errorf("TargetElement = %v, want %v", event.TargetElement, target)
	}
	if event.Polarity != PolarityNegative {
		t.Errorf("Polarity = %v, want negative", event.Polarity)
	}
	if event.QueryContext != r.QueryContext {
		t.Errorf("QueryContext = %q", event.QueryContext)
	}
	if event.ID == uuid.Nil {
		t.Error("event ID not assigned")
	}
	if event.CreatedAt.IsZero() {
		t.Error("CreatedAt not stamped")
	}
}
