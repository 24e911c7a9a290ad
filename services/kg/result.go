// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package kg implements the knowledge-graph reflexion agent: a small control
// loop that asks an LLM to generate a graph query, executes it against the
// graph store, and asks the model to revise the query until a non-empty
// result is obtained or the step budget runs out.
package kg

import "encoding/json"

// Row is one result row returned by the graph store: a mapping from field
// name to value (nil, string, number, or driver-native graph value).
type Row map[string]any

// QueryResult pairs an executed query with its raw result rows.
//
// Description:
//
//	Ephemeral: created per tool execution, serialized into the conversation
//	as the tool turn, never mutated afterwards.
type QueryResult struct {
	Query  string `json:"query"`
	Result []Row  `json:"result"`
}

// MarshalContent serializes the result for embedding in a tool message.
func (q QueryResult) MarshalContent() (string, error) {
	data, err := json.Marshal(q)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// emptySentinels are string values the graph returns for absent data.
// Drivers and upstream serializers disagree on how to spell "nothing",
// so all three spellings count as empty.
var emptySentinels = map[string]struct{}{
	"None": {},
	"null": {},
}

// rowEmpty reports whether every field of the row is null-like.
//
// A field is null-like when it is nil or one of the enumerated string
// sentinels. A row such as {"c.name": nil} carries no information even
// though the result set is technically non-empty.
func rowEmpty(row Row) bool {
	for _, v := range row {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			if _, ok := emptySentinels[val]; ok {
				continue
			}
			return false
		default:
			return false
		}
	}
	return true
}

// ResultCount returns the effective row count of a result set.
//
// Description:
//
//	Returns 0 when the set is empty under the null-like rule: no rows, or
//	every row has only nil/"None"/"null" fields. Otherwise returns the raw
//	row count. The reflexion loop's termination check treats a non-zero
//	count as success.
//
// Thread Safety: Safe for concurrent use (read-only).
func ResultCount(rows []Row) int {
	if len(rows) == 0 {
		return 0
	}
	for _, row := range rows {
		if !rowEmpty(row) {
			return len(rows)
		}
	}
	return 0
}
