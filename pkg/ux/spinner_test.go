// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer guards a bytes.Buffer against the spinner goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinner_AnimatesAndClears(t *testing.T) {
	out := &syncBuffer{}
	spinner := NewSpinner("querying ranker").WithOutput(out)

	spinner.Start()
	time.Sleep(3 * frameInterval)
	spinner.Stop()

	output := out.String()
	if !strings.Contains(output, "querying ranker") {
		t.Errorf("output missing message: %q", output)
	}
	if !strings.HasSuffix(output, "\r") {
		t.Errorf("expected Stop to clear the line, got %q", output)
	}
}

func TestSpinner_StartAndStopAreIdempotent(t *testing.T) {
	out := &syncBuffer{}
	spinner := NewSpinner("working").WithOutput(out)

	spinner.Start()
	spinner.Start()
	spinner.Stop()
	spinner.Stop() // must not close a closed channel or block
}

func TestSpinner_StaticLineWhenNotAnimating(t *testing.T) {
	out := &syncBuffer{}
	spinner := &Spinner{message: "submitting feedback", out: out, animate: false}

	spinner.Start()
	spinner.Stop()

	if got := out.String(); got != "submitting feedback...\n" {
		t.Errorf("static output = %q", got)
	}
}

func TestSpinner_StopWithoutStart(t *testing.T) {
	out := &syncBuffer{}
	spinner := NewSpinner("idle").WithOutput(out)
	spinner.Stop()
	if out.String() != "" {
		t.Errorf("expected no output, got %q", out.String())
	}
}
