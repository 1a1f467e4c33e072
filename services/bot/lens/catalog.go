// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package lens implements the alternative-lens and explain flows: the static
// lens catalog and the multi-step interaction state machine that collects a
// chosen perspective and regenerates a prior reply through it.
package lens

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianProvenance/services/bot/platform"
)

// KeyCustom is the catalog key whose selection requires a user-supplied
// description, collected through a modal form.
const KeyCustom = "custom"

// Custom description length bounds, enforced by the modal field.
const (
	CustomDescriptionMin = 10
	CustomDescriptionMax = 500
)

// Definition is one static catalog entry.
type Definition struct {
	Key         string `yaml:"key"`
	Label       string `yaml:"label"`
	Description string `yaml:"description"`

	// RequiresCustomDescription marks lenses that are only usable once the
	// user has supplied their own perspective text.
	RequiresCustomDescription bool `yaml:"requiresCustomDescription"`
}

// Catalog is an ordered, immutable set of lens definitions.
type Catalog struct {
	defs  []Definition
	byKey map[string]Definition
}

// DefaultCatalog returns the built-in six-entry catalog.
func DefaultCatalog() *Catalog {
	c, err := newCatalog([]Definition{
		{
			Key:         "utilitarian",
			Label:       "Utilitarian",
			Description: "Weigh outcomes by aggregate benefit and harm.",
		},
		{
			Key:         "deontological",
			Label:       "Rules & Duties",
			Description: "Judge by obligations and principles, not outcomes.",
		},
		{
			Key:         "precautionary",
			Label:       "Precautionary",
			Description: "Prioritize avoiding irreversible downside risk.",
		},
		{
			Key:         "optimist",
			Label:       "Optimist",
			Description: "Emphasize opportunity and the best plausible case.",
		},
		{
			Key:         "skeptic",
			Label:       "Skeptic",
			Description: "Stress-test claims, assumptions, and evidence.",
		},
		{
			Key:                       KeyCustom,
			Label:                     "Custom…",
			Description:               "Describe your own perspective.",
			RequiresCustomDescription: true,
		},
	})
	if err != nil {
		// The built-in catalog is validated by tests; reaching this means
		// a broken build, not a runtime condition.
		panic(err)
	}
	return c
}

// LoadCatalog reads a catalog override from a YAML file.
//
// # Description
//
//	The file holds a list of Definition entries:
//
//	  - key: utilitarian
//	    label: Utilitarian
//	    description: Weigh outcomes by aggregate benefit and harm.
//	  - key: custom
//	    label: Custom…
//	    description: Describe your own perspective.
//	    requiresCustomDescription: true
//
//	Keys must be non-empty and unique, and exactly one entry must require a
//	custom description (the modal flow is bound to it).
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lens catalog %s: %w", path, err)
	}

	var defs []Definition
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse lens catalog %s: %w", path, err)
	}
	return newCatalog(defs)
}

func newCatalog(defs []Definition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("lens catalog is empty")
	}

	byKey := make(map[string]Definition, len(defs))
	customEntries := 0
	for _, d := range defs {
		if d.Key == "" || d.Label == "" {
			return nil, fmt.Errorf("lens catalog entry missing key or label")
		}
		if _, dup := byKey[d.Key]; dup {
			return nil, fmt.Errorf("duplicate lens key %q", d.Key)
		}
		if d.RequiresCustomDescription {
			customEntries++
		}
		byKey[d.Key] = d
	}
	if customEntries != 1 {
		return nil, fmt.Errorf("lens catalog must have exactly one custom-description entry, found %d", customEntries)
	}

	return &Catalog{defs: defs, byKey: byKey}, nil
}

// Get returns the definition for a key.
func (c *Catalog) Get(key string) (Definition, bool) {
	d, ok := c.byKey[key]
	return d, ok
}

// Options renders the catalog as selection-menu options, in catalog order.
func (c *Catalog) Options() []platform.SelectOption {
	opts := make([]platform.SelectOption, 0, len(c.defs))
	for _, d := range c.defs {
		opts = append(opts, platform.SelectOption{
			Label:       d.Label,
			Value:       d.Key,
			Description: d.Description,
		})
	}
	return opts
}

// Len reports the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.defs)
}
