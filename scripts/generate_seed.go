//go:build ignore

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// generate_seed writes a sample graph seed file for local, graph-only
// operation of the ranker (KODIAK_GRAPH_SEED_PATH).
//
// Usage:
//
//	go run scripts/generate_seed.go -out seed.json
//	KODIAK_GRAPH_SEED_PATH=seed.json go run ./cmd/ranker
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/AleutianAI/Kodiak/services/ranker/datatypes"
	"github.com/AleutianAI/Kodiak/services/ranker/truth"
)

type seedFile struct {
	Elements  []datatypes.Element             `json:"elements"`
	Relations []datatypes.PropagationRelation `json:"relations"`
}

// componentSpec describes one seeded element plus the categories of the
// elements it contains.
type componentSpec struct {
	category   string
	tags       []string
	cssClasses []string
	frequency  float64
	confidence float64
	contains   []string
}

var catalog = []componentSpec{
	{"button", []string{"primary", "interactive"}, []string{"btn", "btn-primary"}, 0.9, 0.7, nil},
	{"button", []string{"secondary", "interactive"}, []string{"btn", "btn-outline"}, 0.8, 0.6, nil},
	{"input", []string{"form", "interactive"}, []string{"form-control"}, 0.85, 0.65, nil},
	{"dropdown", []string{"form", "interactive"}, []string{"select"}, 0.7, 0.5, nil},
	{"card", []string{"container"}, []string{"card"}, 0.75, 0.55, []string{"button", "input"}},
	{"modal", []string{"container", "overlay"}, []string{"modal", "modal-dialog"}, 0.8, 0.6, []string{"button"}},
	{"form", []string{"container", "form"}, []string{"form"}, 0.85, 0.6, []string{"input", "dropdown", "button"}},
	{"navbar", []string{"navigation"}, []string{"navbar"}, 0.9, 0.7, []string{"button", "dropdown"}},
	{"table", []string{"data"}, []string{"table", "table-striped"}, 0.8, 0.6, nil},
	{"tooltip", []string{"overlay"}, []string{"tooltip"}, 0.6, 0.4, nil},
}

func main() {
	out := flag.String("out", "seed.json", "Output path for the seed file")
	designSystem := flag.String("design-system", "material", "Design system label for every element")
	flag.Parse()

	var seed seedFile
	byCategory := map[string][]uuid.UUID{}

	for _, spec := range catalog {
		element := datatypes.Element{
			ID:           uuid.New(),
			Category:     spec.category,
			DesignSystem: *designSystem,
			Truth:        truth.New(spec.frequency, spec.confidence),
			Tags:         spec.tags,
			CSSClasses:   spec.cssClasses,
		}
		seed.Elements = append(seed.Elements, element)
		byCategory[spec.category] = append(byCategory[spec.category], element.ID)
	}

	for i, spec := range catalog {
		from := seed.Elements[i].ID
		for _, contained := range spec.contains {
			for _, to := range byCategory[contained] {
				seed.Relations = append(seed.Relations, datatypes.PropagationRelation{
					From:       from,
					To:         to,
					Kind:       "contains",
					BaseWeight: 0.8,
				})
			}
		}
	}

	data, err := json.MarshalIndent(seed, "", "  ")
	if err != nil {
		log.Fatalf("marshal seed: %v", err)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		log.Fatalf("write %s: %v", *out, err)
	}
	log.Printf("wrote %s: %d elements, %d relations", *out, len(seed.Elements), len(seed.Relations))
}
