// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package prompts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kvitoslava-yarish/biochatter/services/llm"
)

// Configuration errors returned to the caller rather than swallowed; the
// caller must either provide the missing input or run the selection steps
// in order.
var (
	// ErrMissingQuestion means property selection was attempted with no
	// question supplied and no prior SelectEntities call to reuse one from.
	ErrMissingQuestion = errors.New(
		"prompts: no question provided and no question from entity selection step available")

	// ErrNothingSelected means neither entities nor relationships were
	// supplied or selected before property selection.
	ErrNothingSelected = errors.New(
		"prompts: no entities or relationships provided and none available from entity selection step")
)

const entitySelectionPrompt = "You have access to a knowledge graph that contains " +
	"these entities: %s and these relationships: %s. Your task is to select the ones " +
	"that are relevant to the user's question for subsequent use in a query. Only return " +
	"the entities and relationships, comma-separated, without any additional text. If you " +
	"select relationships, make sure to also return entities that are connected by those " +
	"relationships."

const propertySelectionPrompt = "You have access to a knowledge graph that contains entities " +
	"and relationships. They have the following properties: %s and %s. Your task is to select " +
	"the properties that are relevant to the user's question for subsequent use in a query. " +
	"Only return the entities and relationships and relevant properties in JSON format, " +
	"without any additional text. Do not return properties that are not relevant to the question."

// Builder runs the two sequential selection operations over a schema.
//
// Description:
//
//	Holds the classified schema (read-only) and the selection state
//	accumulated across the two steps. Each step opens a fresh conversation
//	through the factory so the selector prompts do not leak into each
//	other. Not safe for concurrent use; one Builder serves one question
//	at a time.
type Builder struct {
	schema  *Schema
	factory llm.ConversationFactory

	question                   string
	selectedEntities           []string
	selectedRelationships      []string
	selectedRelationshipLabels []string
	selectedProperties         map[string][]string
}

// NewBuilder creates a Builder over a classified schema.
func NewBuilder(schema *Schema, factory llm.ConversationFactory) *Builder {
	return &Builder{schema: schema, factory: factory}
}

// SelectEntities asks the model which schema constituents matter for the
// question and stores the intersection with the known schema.
//
// Description:
//
//	The model replies with a comma-separated list. Names that match a known
//	entity are stored as selected entities; names matching a relationship
//	are stored as selected relationships together with their query label
//	(label_as_edge override when declared). Unknown names are dropped.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - question: The user's question; retained for the property step.
//
// Outputs:
//   - bool: True if at least one entity or relationship was selected.
//   - error: Non-nil if the LLM call fails.
func (b *Builder) SelectEntities(ctx context.Context, question string) (bool, error) {
	b.question = question

	conv := b.factory()
	conv.AppendSystemMessage(fmt.Sprintf(entitySelectionPrompt,
		strings.Join(b.schema.EntityNames(), ", "),
		strings.Join(b.schema.RelationshipNames(), ", "),
	))

	reply, err := conv.Query(ctx, question)
	if err != nil {
		return false, fmt.Errorf("prompts: entity selection: %w", err)
	}

	for _, name := range strings.Split(reply, ",") {
		name = strings.TrimSpace(name)
		if _, ok := b.schema.Entities[name]; ok {
			b.selectedEntities = append(b.selectedEntities, name)
			continue
		}
		if def, ok := b.schema.Relationships[name]; ok {
			b.selectedRelationships = append(b.selectedRelationships, name)
			label := def.LabelAsEdge
			if label == "" {
				label = name
			}
			b.selectedRelationshipLabels = append(b.selectedRelationshipLabels, label)
			continue
		}
		if name != "" {
			slog.Debug("Dropping selection outside schema", slog.String("name", name))
		}
	}

	selected := len(b.selectedEntities) > 0 || len(b.selectedRelationships) > 0
	slog.Debug("Entity selection complete",
		slog.Int("entities", len(b.selectedEntities)),
		slog.Int("relationships", len(b.selectedRelationships)),
	)
	return selected, nil
}

// PropertySelection carries optional explicit inputs for SelectProperties.
// Empty fields default to the state stored by SelectEntities.
type PropertySelection struct {
	Question      string
	Entities      []string
	Relationships []string
}

// SelectProperties asks the model which properties of the chosen entities
// and relationships matter for the question.
//
// Description:
//
//	The property schemas of the chosen names are rendered into the prompt;
//	the model replies with JSON mapping each name to its relevant property
//	names, which is stored and returned as-is.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - sel: Optional explicit question/entities/relationships.
//
// Outputs:
//   - map[string][]string: Selected properties per entity/relationship name.
//   - error: ErrMissingQuestion or ErrNothingSelected when the required
//     inputs are absent; otherwise LLM or decode failures.
func (b *Builder) SelectProperties(ctx context.Context, sel PropertySelection) (map[string][]string, error) {
	question := sel.Question
	if question == "" {
		question = b.question
	}
	if question == "" {
		return nil, ErrMissingQuestion
	}

	entities := sel.Entities
	if len(entities) == 0 {
		entities = b.selectedEntities
	}
	relationships := sel.Relationships
	if len(relationships) == 0 {
		relationships = b.selectedRelationships
	}
	if len(entities) == 0 && len(relationships) == 0 {
		return nil, ErrNothingSelected
	}

	eProps := renderProperties(b.schema.Entities, entities)
	rProps := renderProperties(b.schema.Relationships, relationships)

	conv := b.factory()
	conv.AppendSystemMessage(fmt.Sprintf(propertySelectionPrompt, eProps, rProps))

	reply, err := conv.Query(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("prompts: property selection: %w", err)
	}

	selected := make(map[string][]string)
	if err := json.Unmarshal([]byte(reply), &selected); err != nil {
		return nil, fmt.Errorf("prompts: decoding property selection %q: %w", reply, err)
	}

	b.selectedProperties = selected
	return selected, nil
}

// renderProperties renders the property-name lists of the chosen entries
// for embedding in the property selection prompt.
func renderProperties(index map[string]EntryDef, names []string) string {
	props := make(map[string][]string, len(names))
	for _, name := range names {
		def, ok := index[name]
		if !ok {
			continue
		}
		if keys := propertyNames(def); len(keys) > 0 {
			props[name] = keys
		}
	}
	rendered, err := json.Marshal(props)
	if err != nil {
		return "{}"
	}
	return string(rendered)
}

// Question returns the question stored by SelectEntities.
func (b *Builder) Question() string { return b.question }

// SelectedEntities returns the entity names chosen by SelectEntities.
func (b *Builder) SelectedEntities() []string { return b.selectedEntities }

// SelectedRelationships returns the relationship names chosen by SelectEntities.
func (b *Builder) SelectedRelationships() []string { return b.selectedRelationships }

// SelectedRelationshipLabels returns the query labels of the chosen
// relationships, with label_as_edge overrides applied.
func (b *Builder) SelectedRelationshipLabels() []string { return b.selectedRelationshipLabels }

// SelectedProperties returns the mapping stored by SelectProperties.
func (b *Builder) SelectedProperties() map[string][]string { return b.selectedProperties }
