// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package prompts builds LLM prompts from a declarative graph schema
// configuration. It classifies schema entries into entities and
// relationships and runs two sequential LLM-backed selection passes
// (entities/relationships, then properties) to focus query generation
// on the parts of the graph relevant to a question.
package prompts

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// EntryDef is one schema entry: a node or edge type with its properties.
type EntryDef struct {
	// RepresentedAs is the representation kind: "node" or "edge".
	RepresentedAs string `yaml:"represented_as"`

	// LabelAsEdge overrides the relationship label used in queries when
	// it differs from the entry name.
	LabelAsEdge string `yaml:"label_as_edge"`

	// Properties maps property names to their declared types.
	Properties map[string]any `yaml:"properties"`
}

// Schema is the classified schema index: two read-only mappings built once
// from the configuration file.
//
// Thread Safety: Immutable after construction; safe for concurrent reads.
type Schema struct {
	// Entities maps PascalCase entity names to their definitions.
	Entities map[string]EntryDef

	// Relationships maps PascalCase relationship names to their definitions.
	Relationships map[string]EntryDef
}

// relationshipIndicators are name fragments that mark a node-represented
// entry as a relationship regardless of its representation kind.
var relationshipIndicators = []string{"interaction", "association"}

// nameIndicatesRelationship reports whether the entry name contains a
// relationship-indicating fragment.
func nameIndicatesRelationship(name string) bool {
	lower := strings.ToLower(name)
	for _, fragment := range relationshipIndicators {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// pascalCase converts a sentence-case schema name to PascalCase:
// "protein interaction" becomes "ProteinInteraction".
func pascalCase(name string) string {
	words := strings.Fields(name)
	var b strings.Builder
	for _, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	return b.String()
}

// ParseSchemaConfig classifies a schema configuration document.
//
// Description:
//
//	The document is a mapping from entry name to entry definition. Entries
//	without a represented_as key (titles, version stanzas, free-form notes)
//	are skipped. A node-represented entry whose name indicates a
//	relationship is classified as a relationship, as is every
//	edge-represented entry; remaining node entries are entities. Names are
//	converted to PascalCase for use in generated queries.
//
// Inputs:
//   - data: Raw YAML document.
//
// Outputs:
//   - *Schema: The classified index.
//   - error: Non-nil if the document is not a YAML mapping.
func ParseSchemaConfig(data []byte) (*Schema, error) {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("prompts: parsing schema config: %w", err)
	}

	schema := &Schema{
		Entities:      make(map[string]EntryDef),
		Relationships: make(map[string]EntryDef),
	}

	for name, node := range raw {
		if node.Kind != yaml.MappingNode {
			continue
		}
		var def EntryDef
		if err := node.Decode(&def); err != nil {
			slog.Warn("Skipping unparsable schema entry",
				slog.String("entry", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		if def.RepresentedAs == "" {
			continue
		}

		key := pascalCase(name)
		switch {
		case def.RepresentedAs == "node" && !nameIndicatesRelationship(name):
			schema.Entities[key] = def
		case def.RepresentedAs == "node" || def.RepresentedAs == "edge":
			schema.Relationships[key] = def
		default:
			slog.Warn("Unknown representation kind in schema entry",
				slog.String("entry", name),
				slog.String("represented_as", def.RepresentedAs),
			)
		}
	}

	slog.Debug("Parsed schema config",
		slog.Int("entities", len(schema.Entities)),
		slog.Int("relationships", len(schema.Relationships)),
	)
	return schema, nil
}

// LoadSchemaConfig reads and classifies a schema configuration file.
func LoadSchemaConfig(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prompts: reading schema config %s: %w", path, err)
	}
	return ParseSchemaConfig(data)
}

// EntityNames returns the sorted-stable list of entity names for prompts.
func (s *Schema) EntityNames() []string {
	return sortedKeys(s.Entities)
}

// RelationshipNames returns the sorted-stable list of relationship names.
func (s *Schema) RelationshipNames() []string {
	return sortedKeys(s.Relationships)
}

func sortedKeys(m map[string]EntryDef) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Deterministic prompt text matters for caching and for tests.
	sort.Strings(keys)
	return keys
}

// propertyNames returns the declared property names of an entry.
func propertyNames(def EntryDef) []string {
	if len(def.Properties) == 0 {
		return nil
	}
	names := make([]string, 0, len(def.Properties))
	for name := range def.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
