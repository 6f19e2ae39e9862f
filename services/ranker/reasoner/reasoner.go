// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reasoner defines the symbolic reasoning contract consumed by
// the engine, plus the local rule-based implementation that ships as the
// default. An OpenNARS-class reasoner would sit behind the same
// interface; only the input/output contract matters to the engine.
package reasoner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/Kodiak/services/ranker/datatypes"
	"github.com/AleutianAI/Kodiak/services/ranker/truth"
)

// Reasoner is the symbolic reasoning contract.
type Reasoner interface {
	// Translate turns free-text query input into Narsese statements.
	Translate(ctx context.Context, query string) ([]datatypes.NarseseStatement, error)

	// Infer derives further statements from the given ones, each with
	// its own truth value. Input statements are not echoed back.
	Infer(ctx context.Context, statements []datatypes.NarseseStatement) ([]datatypes.NarseseStatement, error)
}

// directConfidence is the confidence attached to statements translated
// straight from query terms.
const directConfidence = 0.9

// ruleConfidence is the confidence of the built-in implication rules.
// A derived statement's confidence is the product of its premise's and
// the rule's, so chained derivations weaken monotonically.
const ruleConfidence = 0.8

// stopwords excluded from query translation.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "for": true, "in": true,
	"of": true, "on": true, "or": true, "the": true, "to": true,
	"with": true, "show": true, "me": true, "that": true, "is": true,
}

// implications is the built-in UI-domain rule table: subject term →
// implied terms. Kept deliberately small; richer rule sets belong in an
// external reasoner behind the same interface.
var implications = map[string][]string{
	"button":   {"interactive", "clickable"},
	"link":     {"interactive", "navigation"},
	"input":    {"interactive", "form"},
	"textarea": {"input"},
	"select":   {"input"},
	"checkbox": {"input"},
	"form":     {"container"},
	"modal":    {"overlay", "container"},
	"dropdown": {"overlay", "interactive"},
	"tooltip":  {"overlay"},
	"card":     {"container"},
	"navbar":   {"navigation", "container"},
	"menu":     {"navigation"},
	"table":    {"container"},
	"icon":     {"decorative"},
	"badge":    {"decorative"},
}

// LocalReasoner is the built-in rule-based Reasoner. Stateless and
// deterministic: safe for concurrent use.
type LocalReasoner struct{}

// NewLocalReasoner creates the built-in reasoner.
func NewLocalReasoner() *LocalReasoner {
	return &LocalReasoner{}
}

// Translate turns each useful query term into an inheritance statement
// <term --> ui-component> with fixed direct confidence.
func (r *LocalReasoner) Translate(ctx context.Context, query string) ([]datatypes.NarseseStatement, error) {
	terms := Terms(query)
	statements := make([]datatypes.NarseseStatement, 0, len(terms))
	for _, term := range terms {
		statements = append(statements, datatypes.NarseseStatement{
			Statement: fmt.Sprintf("<%s --> ui-component>", term),
			Truth:     truth.New(1.0, directConfidence),
		})
	}
	return statements, nil
}

// Infer applies the implication table transitively. Each derivation
// multiplies confidences, so <button --> ui-component> (c=0.9) derives
// <interactive --> ui-component> at c=0.72. Two rounds of derivation are
// enough to close the small rule table.
func (r *LocalReasoner) Infer(ctx context.Context, statements []datatypes.NarseseStatement) ([]datatypes.NarseseStatement, error) {
	// best confidence known per subject, to keep the strongest path.
	known := make(map[string]float64, len(statements))
	for _, stmt := range statements {
		subject := Subject(stmt.Statement)
		if stmt.Truth.Confidence > known[subject] {
			known[subject] = stmt.Truth.Confidence
		}
	}
	premises := make(map[string]float64, len(known))
	for subject, confidence := range known {
		premises[subject] = confidence
	}

	frontier := premises
	for round := 0; round < 2 && len(frontier) > 0; round++ {
		next := make(map[string]float64)
		for subject, confidence := range frontier {
			for _, implied := range implications[subject] {
				c := confidence * ruleConfidence
				if existing, ok := known[implied]; ok && existing >= c {
					continue
				}
				known[implied] = c
				next[implied] = c
			}
		}
		frontier = next
	}

	// One statement per derived subject at its strongest confidence, in
	// sorted order so the output never depends on map iteration.
	subjects := make([]string, 0, len(known))
	for subject, confidence := range known {
		if premise, ok := premises[subject]; ok && premise >= confidence {
			continue
		}
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)

	derived := make([]datatypes.NarseseStatement, 0, len(subjects))
	for _, subject := range subjects {
		derived = append(derived, datatypes.NarseseStatement{
			Statement: fmt.Sprintf("<%s --> ui-component>", subject),
			Truth:     truth.New(1.0, known[subject]),
			Derived:   true,
		})
	}
	return derived, nil
}

// Terms extracts lowercase query terms, dropping stopwords and
// punctuation. Exported because the graph pattern match uses the same
// tokenization.
func Terms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '-' && r != '_'
	})

	terms := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

// Subject extracts the subject term from an inheritance statement of the
// form <subject --> predicate>. Returns the raw statement when the shape
// is unrecognized.
func Subject(statement string) string {
	trimmed := strings.TrimPrefix(statement, "<")
	if idx := strings.Index(trimmed, " --> "); idx > 0 {
		return trimmed[:idx]
	}
	return statement
}

// BestMatch returns the highest statement confidence whose subject
// appears in the element's category, tags, or CSS classes. The engine
// multiplies this by the element's stored truth confidence to produce
// the per-element Narsese signal.
func BestMatch(statements []datatypes.NarseseStatement, element datatypes.Element) (float64, bool) {
	best, found := 0.0, false
	for _, stmt := range statements {
		subject := Subject(stmt.Statement)
		if !elementMentions(element, subject) {
			continue
		}
		if stmt.Truth.Confidence > best {
			best = stmt.Truth.Confidence
			found = true
		}
	}
	return best, found
}

func elementMentions(element datatypes.Element, term string) bool {
	if strings.Contains(strings.ToLower(element.Category), term) {
		return true
	}
	for _, tag := range element.Tags {
		if strings.Contains(strings.ToLower(tag), term) {
			return true
		}
	}
	for _, class := range element.CSSClasses {
		if strings.Contains(strings.ToLower(class), term) {
			return true
		}
	}
	return false
}

var _ Reasoner = (*LocalReasoner)(nil)
