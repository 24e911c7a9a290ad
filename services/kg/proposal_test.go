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
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvitoslava-yarish/biochatter/services/llm"
)

func TestDecodeProposal_Generate(t *testing.T) {
	v := validator.New()
	call := llm.ToolCallResponse{
		ID:   "call-1",
		Name: "GenerateQuery",
		Arguments: json.RawMessage(`{
			"answer": "MATCH (g:Gene) RETURN g.name",
			"reflection": "could constrain by species",
			"search_queries": ["MATCH (g:Gene {name: 'TP53'}) RETURN g"]
		}`),
	}

	prop, err := decodeProposal(v, call)
	require.NoError(t, err)
	assert.False(t, prop.Revised)
	assert.Equal(t, "MATCH (g:Gene) RETURN g.name", prop.Answer)
	assert.Len(t, prop.SearchQueries, 1)
	assert.Empty(t, prop.RevisedQuery)
}

func TestDecodeProposal_Revise(t *testing.T) {
	v := validator.New()
	call := llm.ToolCallResponse{
		ID:   "call-2",
		Name: "ReviseQuery",
		Arguments: json.RawMessage(`{
			"answer": "MATCH (g:Gene) RETURN g.name",
			"reflection": "removed relationship constraint",
			"search_queries": [],
			"revised_query": "MATCH (g) RETURN g.name LIMIT 10"
		}`),
	}

	prop, err := decodeProposal(v, call)
	require.NoError(t, err)
	assert.True(t, prop.Revised)
	assert.Equal(t, "MATCH (g) RETURN g.name LIMIT 10", prop.RevisedQuery)
}

func TestDecodeProposal_UnknownToolName(t *testing.T) {
	v := validator.New()
	call := llm.ToolCallResponse{
		Name:      "DropDatabase",
		Arguments: json.RawMessage(`{"answer":"x"}`),
	}

	_, err := decodeProposal(v, call)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected tool call")
}

func TestDecodeProposal_MissingRequiredField(t *testing.T) {
	v := validator.New()

	// generate without answer
	_, err := decodeProposal(v, llm.ToolCallResponse{
		Name:      "GenerateQuery",
		Arguments: json.RawMessage(`{"reflection":"no answer given"}`),
	})
	require.Error(t, err)

	// revise without revised_query
	_, err = decodeProposal(v, llm.ToolCallResponse{
		Name:      "ReviseQuery",
		Arguments: json.RawMessage(`{"answer":"MATCH (n) RETURN n"}`),
	})
	require.Error(t, err)
}

func TestDecodeProposal_MalformedJSON(t *testing.T) {
	v := validator.New()
	_, err := decodeProposal(v, llm.ToolCallResponse{
		Name:      "GenerateQuery",
		Arguments: json.RawMessage(`{"answer": `),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func TestProposal_Queries(t *testing.T) {
	tests := []struct {
		name string
		prop Proposal
		want []string
	}{
		{
			name: "revised query wins",
			prop: Proposal{
				Answer:        "a",
				SearchQueries: []string{"s1", "s2"},
				RevisedQuery:  "r",
				Revised:       true,
			},
			want: []string{"r"},
		},
		{
			name: "search queries when not revised",
			prop: Proposal{Answer: "a", SearchQueries: []string{"s1", "s2"}},
			want: []string{"s1", "s2"},
		},
		{
			name: "answer as fallback",
			prop: Proposal{Answer: "a"},
			want: []string{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.prop.queries())
		})
	}
}

func TestReviseQueryTool_ExtendsGenerate(t *testing.T) {
	td := reviseQueryTool("Cypher")
	assert.Equal(t, "ReviseQuery", td.Function.Name)
	assert.Contains(t, td.Function.Parameters.Properties, "revised_query")
	assert.Contains(t, td.Function.Parameters.Required, "revised_query")
	assert.Contains(t, td.Function.Parameters.Properties, "answer")
}
