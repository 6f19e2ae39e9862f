// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package faults

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

// timeoutErr satisfies net.Error the way client libraries surface
// timeouts without wrapping our sentinels.
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"wrapped transient", fmt.Errorf("dial: %w", ErrTransient), KindTransient},
		{"wrapped not found", fmt.Errorf("element: %w", ErrNotFound), KindNotFound},
		{"wrapped invalid", fmt.Errorf("polarity: %w", ErrInvalid), KindInvalid},
		{"circuit open", ErrCircuitOpen, KindCircuitOpen},
		{"exhausted budget", fmt.Errorf("%w after 3 attempts", ErrExhausted), KindExhausted},
		{"unavailable", ErrUnavailable, KindUnavailable},
		{"deadline exceeded", context.DeadlineExceeded, KindTransient},
		{"raw net.Error", timeoutErr{}, KindTransient},
		{"wrapped net.Error", fmt.Errorf("weaviate: %w", timeoutErr{}), KindTransient},
		{"plain error", errors.New("something else"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassify_SentinelTakesPrecedenceOverNetError(t *testing.T) {
	// A client error that is both a net.Error and tagged invalid must
	// classify by the tag, not the transport.
	err := fmt.Errorf("%w: %w", ErrInvalid, timeoutErr{})
	if got := Classify(err); got != KindInvalid {
		t.Errorf("Classify() = %v, want invalid", got)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", fmt.Errorf("dial: %w", ErrTransient), true},
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled caller", context.Canceled, false},
		{"deadline wrapping cancellation", fmt.Errorf("%w: %w", ErrTransient, context.Canceled), false},
		{"invalid", ErrInvalid, false},
		{"not found", ErrNotFound, false},
		{"circuit open", ErrCircuitOpen, false},
		{"unknown", errors.New("mystery"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKind_String(t *testing.T) {
	if got := KindTransient.String(); got != "transient" {
		t.Errorf("KindTransient.String() = %q", got)
	}
	if got := Kind(99).String(); got != "unknown" {
		t.Errorf("out-of-range kind String() = %q, want unknown", got)
	}
}
