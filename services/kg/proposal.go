// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package kg

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/kvitoslava-yarish/biochatter/services/llm"
)

// Tool names form the closed discriminator set for query proposals. Any
// other tool name in a model response is rejected before decoding.
const (
	generateQueryToolName = "GenerateQuery"
	reviseQueryToolName   = "ReviseQuery"
)

const (
	searchQueriesDescription = "Queries for the knowledge graph database"
	revisedQueryDescription  = "Revised query"
)

// GenerateQuery is the structured payload of the model's first proposal:
// a candidate query, a self-critique, and alternative search queries.
//
// Immutable once decoded; consumed by the tool executor.
type GenerateQuery struct {
	// Answer is the graph query answering the user's question.
	Answer string `json:"answer" validate:"required"`

	// Reflection is the model's critique of what to improve.
	Reflection string `json:"reflection"`

	// SearchQueries are alternative candidate queries to try.
	SearchQueries []string `json:"search_queries"`
}

// ReviseQuery extends GenerateQuery with the revised query produced on
// second and later turns.
type ReviseQuery struct {
	GenerateQuery

	// RevisedQuery is the improved query after reviewing prior results.
	RevisedQuery string `json:"revised_query" validate:"required"`
}

// Proposal is the normalized view of either variant, used by the loop.
type Proposal struct {
	Answer        string
	Reflection    string
	SearchQueries []string

	// RevisedQuery is empty for the generate variant.
	RevisedQuery string

	// Revised reports which variant was decoded.
	Revised bool
}

// generateQueryTool returns the tool definition for the first proposal.
func generateQueryTool(queryLang string) llm.ToolDef {
	return llm.ToolDef{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        generateQueryToolName,
			Description: "Generate the query.",
			Parameters: llm.ToolParameters{
				Type: "object",
				Properties: map[string]llm.ToolParamDef{
					"answer": {
						Type:        "string",
						Description: fmt.Sprintf("%s query according to user's question.", queryLang),
					},
					"reflection": {
						Type:        "string",
						Description: "Your reflection on the initial answer, critique of what to improve",
					},
					"search_queries": {
						Type:        "array",
						Description: searchQueriesDescription,
						Items:       &llm.ToolParamDef{Type: "string"},
					},
				},
				Required: []string{"answer", "reflection", "search_queries"},
			},
		},
	}
}

// reviseQueryTool returns the tool definition for revision turns.
func reviseQueryTool(queryLang string) llm.ToolDef {
	td := generateQueryTool(queryLang)
	td.Function.Name = reviseQueryToolName
	td.Function.Description = "Revise your previous query according to your question."
	td.Function.Parameters.Properties["revised_query"] = llm.ToolParamDef{
		Type:        "string",
		Description: revisedQueryDescription,
	}
	td.Function.Parameters.Required = append(td.Function.Parameters.Required, "revised_query")
	return td
}

// decodeProposal decodes and validates a tool call into a Proposal.
//
// Description:
//
//	The tool call name selects the variant; an unknown name is an error.
//	The payload is validated (answer required, revised_query required for
//	the revise variant) before the loop acts on it, so a malformed model
//	response never reaches the graph store.
//
// Inputs:
//   - v: Shared validator instance.
//   - call: The tool call from the model.
//
// Outputs:
//   - *Proposal: The normalized proposal.
//   - error: Non-nil for unknown names, malformed JSON, or failed validation.
func decodeProposal(v *validator.Validate, call llm.ToolCallResponse) (*Proposal, error) {
	args := []byte(call.ArgumentsString())

	switch call.Name {
	case generateQueryToolName:
		var gq GenerateQuery
		if err := json.Unmarshal(args, &gq); err != nil {
			return nil, fmt.Errorf("kg: decoding %s payload: %w", call.Name, err)
		}
		if err := v.Struct(gq); err != nil {
			return nil, fmt.Errorf("kg: invalid %s payload: %w", call.Name, err)
		}
		return &Proposal{
			Answer:        gq.Answer,
			Reflection:    gq.Reflection,
			SearchQueries: gq.SearchQueries,
		}, nil

	case reviseQueryToolName:
		var rq ReviseQuery
		if err := json.Unmarshal(args, &rq); err != nil {
			return nil, fmt.Errorf("kg: decoding %s payload: %w", call.Name, err)
		}
		if err := v.Struct(rq); err != nil {
			return nil, fmt.Errorf("kg: invalid %s payload: %w", call.Name, err)
		}
		return &Proposal{
			Answer:        rq.Answer,
			Reflection:    rq.Reflection,
			SearchQueries: rq.SearchQueries,
			RevisedQuery:  rq.RevisedQuery,
			Revised:       true,
		}, nil

	default:
		return nil, fmt.Errorf("kg: unexpected tool call %q (want %s or %s)",
			call.Name, generateQueryToolName, reviseQueryToolName)
	}
}

// queries returns the candidate queries to execute for this proposal:
// the revised query when present, else the search queries, else the
// primary answer itself.
func (p *Proposal) queries() []string {
	if p.Revised && p.RevisedQuery != "" {
		return []string{p.RevisedQuery}
	}
	if len(p.SearchQueries) > 0 {
		return p.SearchQueries
	}
	return []string{p.Answer}
}
