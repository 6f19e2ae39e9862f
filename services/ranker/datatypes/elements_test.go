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
	"testing"

	"github.com/AleutianAI/Kodiak/services/ranker/truth"
)

func TestPolarity_Valid(t *testing.T) {
	tests := []struct {
		polarity Polarity
		want     bool
	}{
		{PolarityPositive, true},
		{PolarityNegative, true},
		{Polarity(""), false},
		{Polarity("Positive"), false},
		{Polarity("neutral"), false},
	}
	for _, tt := range tests {
		if got := tt.polarity.Valid(); got != tt.want {
			t.Errorf("Polarity(%q).Valid() = %v, want %v", tt.polarity, got, tt.want)
		}
	}
}

func TestPolarity_Evidence(t *testing.T) {
	positive := PolarityPositive.Evidence()
	if positive.Frequency != 1.0 || positive.Confidence != 0.8 {
		t.Errorf("positive evidence = %+v, want f=1.0 c=0.8", positive)
	}

	negative := PolarityNegative.Evidence()
	if negative.Frequency != 0.0 || negative.Confidence != 0.8 {
		t.Errorf("negative evidence = %+v, want f=0.0 c=0.8", negative)
	}
}

func TestPolarity_ConfidenceDelta(t *testing.T) {
	if got := PolarityPositive.ConfidenceDelta(); got != truth.PositiveDelta {
		t.Errorf("positive delta = %v, want %v", got, truth.PositiveDelta)
	}
	if got := PolarityNegative.ConfidenceDelta(); got != truth.NegativeDelta {
		t.Errorf("negative delta = %v, want %v", got, truth.NegativeDelta)
	}
	if truth.PositiveDelta <= 0 || truth.NegativeDelta >= 0 {
		t.Error("deltas must push confidence in the polarity's direction")
	}
}
