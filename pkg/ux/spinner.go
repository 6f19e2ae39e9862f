// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal affordances for the rankctl CLI.
//
// Output goes to stderr so stdout stays clean for command results that
// callers may pipe or parse.
package ux

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const frameInterval = 100 * time.Millisecond

// Spinner is an animated progress indicator for operations that wait on
// the ranker server. When the output is not a terminal it degrades to a
// single static line so logs stay readable.
//
// Thread Safety: Safe for concurrent use; Start and Stop are idempotent.
type Spinner struct {
	message string
	out     io.Writer
	animate bool

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewSpinner creates a spinner that writes to stderr, animating only
// when stderr is a terminal.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		out:     os.Stderr,
		animate: isTerminal(os.Stderr),
	}
}

// WithOutput redirects spinner output. Animation is enabled
// unconditionally; intended for tests.
func (s *Spinner) WithOutput(w io.Writer) *Spinner {
	s.out = w
	s.animate = true
	return s
}

// Start begins the animation. A second Start while running is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	if !s.animate {
		fmt.Fprintf(s.out, "%s...\n", s.message)
		return
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stop, s.done)
}

// Stop halts the animation and clears the spinner line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	if s.stop != nil {
		close(s.stop)
		<-s.done
		s.stop = nil
	}
}

func (s *Spinner) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case <-stop:
			// Clear the line before handing the terminal back.
			fmt.Fprintf(s.out, "\r%*s\r", len(s.message)+4, "")
			return
		case <-ticker.C:
			fmt.Fprintf(s.out, "\r%s %s", spinnerFrames[frame%len(spinnerFrames)], s.message)
			frame++
		}
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
