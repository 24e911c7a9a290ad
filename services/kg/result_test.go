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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultCount(t *testing.T) {
	tests := []struct {
		name string
		rows []Row
		want int
	}{
		{
			name: "no rows",
			rows: nil,
			want: 0,
		},
		{
			name: "all nil fields",
			rows: []Row{{"c.name": nil}, {"c.name": nil, "c.id": nil}},
			want: 0,
		},
		{
			name: "None sentinel string",
			rows: []Row{{"c.name": "None"}},
			want: 0,
		},
		{
			name: "null sentinel string",
			rows: []Row{{"c.name": "null"}, {"c.name": nil}},
			want: 0,
		},
		{
			name: "one real value among sentinels",
			rows: []Row{{"c.name": nil}, {"c.name": "TP53", "c.id": nil}},
			want: 2,
		},
		{
			name: "numeric value is not null-like",
			rows: []Row{{"count": int64(0)}},
			want: 1,
		},
		{
			name: "empty string is a value",
			rows: []Row{{"c.name": ""}},
			want: 1,
		},
		{
			name: "case matters for sentinels",
			rows: []Row{{"c.name": "none"}},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResultCount(tt.rows))
		})
	}
}

func TestQueryResult_MarshalContent(t *testing.T) {
	qr := QueryResult{
		Query:  "MATCH (g:Gene {name: $name}) RETURN g.name",
		Result: []Row{{"g.name": "TP53"}},
	}

	content, err := qr.MarshalContent()
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"MATCH (g:Gene {name: $name}) RETURN g.name","result":[{"g.name":"TP53"}]}`, content)
}

func TestQueryResult_MarshalContent_Empty(t *testing.T) {
	content, err := QueryResult{}.MarshalContent()
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"","result":null}`, content)
}
