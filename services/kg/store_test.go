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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionArgs_URI(t *testing.T) {
	args := ConnectionArgs{Host: "localhost", Port: "7687"}
	assert.Equal(t, "bolt://localhost:7687", args.uri())
}

func TestNewNeo4jStore_DefaultDatabase(t *testing.T) {
	store := NewNeo4jStore(ConnectionArgs{Host: "localhost", Port: "7687"})
	assert.Equal(t, "neo4j", store.args.Database)

	store = NewNeo4jStore(ConnectionArgs{Host: "localhost", Port: "7687", Database: "genomics"})
	assert.Equal(t, "genomics", store.args.Database)
}

func TestNeo4jStore_CloseWithoutConnect(t *testing.T) {
	store := NewNeo4jStore(ConnectionArgs{Host: "localhost", Port: "7687"})
	assert.NoError(t, store.Close(context.Background()))
}
