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
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kvitoslava-yarish/biochatter/services/llm"
)

// ConnectionArgs identifies the graph database the agent queries.
type ConnectionArgs struct {
	// Host and Port form the bolt address.
	Host string
	Port string

	// User and Password are the driver credentials. Empty user means
	// unauthenticated access.
	User     string
	Password string

	// Database is the target database name. Defaults to "neo4j".
	Database string
}

// uri renders the bolt URI for the driver.
func (c ConnectionArgs) uri() string {
	return "bolt://" + c.Host + ":" + c.Port
}

// Store executes graph queries and returns raw rows.
//
// Thread Safety: Implementations are used by one agent at a time; they do
// not need to support concurrent access (the loop is fully sequential).
type Store interface {
	// Query runs one query and returns its rows.
	Query(ctx context.Context, query string) ([]Row, error)

	// Close releases the underlying connection, if any.
	Close(ctx context.Context) error
}

// Neo4jStore is a Store over the Neo4j bolt driver.
//
// Description:
//
//	The connection is established lazily on the first query and cached for
//	the lifetime of the store; a failed connection attempt is retried on
//	the next query. Driver errors are returned to the caller (the agent
//	logs them and treats the turn as an empty result).
type Neo4jStore struct {
	args   ConnectionArgs
	driver neo4j.DriverWithContext
}

// NewNeo4jStore creates a store without connecting; the first Query dials.
func NewNeo4jStore(args ConnectionArgs) *Neo4jStore {
	if args.Database == "" {
		args.Database = "neo4j"
	}
	return &Neo4jStore{args: args}
}

// connect establishes and caches the bolt connection.
func (s *Neo4jStore) connect(ctx context.Context) error {
	if s.driver != nil {
		return nil
	}

	auth := neo4j.NoAuth()
	if s.args.User != "" {
		auth = neo4j.BasicAuth(s.args.User, s.args.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(s.args.uri(), auth)
	if err != nil {
		return fmt.Errorf("kg: creating driver for %s: %w", llm.SafeLogString(s.args.uri()), err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return fmt.Errorf("kg: verifying connectivity to %s: %w", llm.SafeLogString(s.args.uri()), err)
	}

	slog.Info("Connected to graph database",
		slog.String("host", s.args.Host),
		slog.String("database", s.args.Database),
	)
	s.driver = driver
	return nil
}

// Query implements Store.Query against the cached bolt connection.
//
// Inputs:
//   - ctx: Context for cancellation and timeout.
//   - query: The Cypher query to run.
//
// Outputs:
//   - []Row: Result rows keyed by the query's return fields.
//   - error: Non-nil on connection or execution failure.
func (s *Neo4jStore) Query(ctx context.Context, query string) ([]Row, error) {
	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	result, err := neo4j.ExecuteQuery(ctx, s.driver, query, nil,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.args.Database),
	)
	if err != nil {
		return nil, fmt.Errorf("kg: executing query: %w", err)
	}

	rows := make([]Row, 0, len(result.Records))
	for _, rec := range result.Records {
		row := make(Row, len(rec.Keys))
		for i, key := range rec.Keys {
			row[key] = rec.Values[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Close implements Store.Close.
func (s *Neo4jStore) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	err := s.driver.Close(ctx)
	s.driver = nil
	return err
}
