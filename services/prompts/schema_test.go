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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchemaYAML = `
title: genomics knowledge graph
gene:
  represented_as: node
  properties:
    name: str
    ensembl_id: str
protein:
  represented_as: node
  properties:
    name: str
protein protein interaction:
  represented_as: node
  properties:
    score: float
gene to disease association:
  represented_as: edge
  label_as_edge: PERTURBED_IN
  properties:
    evidence: str
pathway:
  represented_as: node
`

func TestParseSchemaConfig_Classification(t *testing.T) {
	schema, err := ParseSchemaConfig([]byte(testSchemaYAML))
	require.NoError(t, err)

	// node entries without a relationship-indicating name are entities
	assert.Contains(t, schema.Entities, "Gene")
	assert.Contains(t, schema.Entities, "Protein")
	assert.Contains(t, schema.Entities, "Pathway")

	// node entries named like interactions are relationships
	assert.Contains(t, schema.Relationships, "ProteinProteinInteraction")
	assert.NotContains(t, schema.Entities, "ProteinProteinInteraction")

	// edge entries are always relationships
	assert.Contains(t, schema.Relationships, "GeneToDiseaseAssociation")

	// scalar top-level entries are skipped
	assert.NotContains(t, schema.Entities, "Title")
}

func TestParseSchemaConfig_Properties(t *testing.T) {
	schema, err := ParseSchemaConfig([]byte(testSchemaYAML))
	require.NoError(t, err)

	gene := schema.Entities["Gene"]
	assert.ElementsMatch(t, []string{"ensembl_id", "name"}, propertyNames(gene))

	assoc := schema.Relationships["GeneToDiseaseAssociation"]
	assert.Equal(t, "PERTURBED_IN", assoc.LabelAsEdge)

	// entries without properties yield nil
	assert.Nil(t, propertyNames(schema.Entities["Pathway"]))
}

func TestParseSchemaConfig_NotAMapping(t *testing.T) {
	_, err := ParseSchemaConfig([]byte(`- just
- a
- list`))
	require.Error(t, err)
}

func TestPascalCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"gene", "Gene"},
		{"protein protein interaction", "ProteinProteinInteraction"},
		{"gene to disease association", "GeneToDiseaseAssociation"},
		{"RNA sequence", "RnaSequence"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pascalCase(tt.in))
	}
}

func TestNameIndicatesRelationship(t *testing.T) {
	assert.True(t, nameIndicatesRelationship("protein protein interaction"))
	assert.True(t, nameIndicatesRelationship("Gene To Disease ASSOCIATION"))
	assert.False(t, nameIndicatesRelationship("gene"))
}

func TestSchema_NamesAreSorted(t *testing.T) {
	schema, err := ParseSchemaConfig([]byte(testSchemaYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"Gene", "Pathway", "Protein"}, schema.EntityNames())
	assert.Equal(t, []string{"GeneToDiseaseAssociation", "ProteinProteinInteraction"}, schema.RelationshipNames())
}
