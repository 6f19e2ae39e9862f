// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRankerMetrics_RegistersAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRankerMetrics(reg)

	m.QueriesTotal.WithLabelValues("ok", "full").Inc()
	m.QueriesTotal.WithLabelValues("ok", "full").Inc()
	m.FeedbackTotal.WithLabelValues("positive", "success").Inc()
	m.CircuitState.WithLabelValues("vector").Set(1)
	m.CacheEventsTotal.WithLabelValues("hit").Inc()
	m.QueryDurationSeconds.WithLabelValues("full").Observe(0.02)
	m.PropagationTouched.Observe(3)

	if got := testutil.ToFloat64(m.QueriesTotal.WithLabelValues("ok", "full")); got != 2 {
		t.Errorf("queries_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CircuitState.WithLabelValues("vector")); got != 1 {
		t.Errorf("circuit_state = %v, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("no metric families registered")
	}
	for _, mf := range families {
		name := mf.GetName()
		if len(name) < len("kodiak_") || name[:len("kodiak_")] != "kodiak_" {
			t.Errorf("metric %q missing kodiak namespace", name)
		}
	}
}
