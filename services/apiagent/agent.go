// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package apiagent answers questions by delegating to external
// bioinformatics web services. Each service plugs three stages into a
// shared orchestrator: an LLM-backed query builder that turns the question
// into typed request parameters, a fetcher that submits the request and
// retrieves raw results, and an interpreter that summarizes those results
// with the LLM.
package apiagent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// QueryBuilder turns a natural-language question into typed request
// parameters for one external service.
type QueryBuilder[Q any] interface {
	// ParameteriseQuery asks the model to fill the parameter struct.
	ParameteriseQuery(ctx context.Context, question string) (*Q, error)
}

// Fetcher talks to the external service in two steps: submission yields a
// job or resource identifier, fetching retrieves the raw results for it.
// Services without an asynchronous job model return the request identity
// (e.g. the rendered URL) from SubmitQuery.
type Fetcher[Q any] interface {
	SubmitQuery(ctx context.Context, params *Q) (string, error)
	FetchResults(ctx context.Context, id string, params *Q) (string, error)
}

// Interpreter summarizes raw service output into a natural-language answer.
type Interpreter interface {
	SummariseResults(ctx context.Context, question, results string) (string, error)
}

// Agent orchestrates one external service end to end.
//
// Description:
//
//	Execute runs parameterize, submit, fetch, and summarize in order.
//	A failure at any stage aborts the run with a wrapped error naming the
//	stage; there is no cross-stage retry, polling happens inside the
//	fetcher.
//
// Thread Safety: Safe for concurrent use when its stages are; the provided
// builders and interpreters in this package are.
type Agent[Q any] struct {
	name        string
	builder     QueryBuilder[Q]
	fetcher     Fetcher[Q]
	interpreter Interpreter

	tracer trace.Tracer
}

// NewAgent assembles an orchestrator from its three stages. The name labels
// logs, traces, and metrics (e.g. "blast", "oncokb").
func NewAgent[Q any](name string, builder QueryBuilder[Q], fetcher Fetcher[Q], interpreter Interpreter) *Agent[Q] {
	return &Agent[Q]{
		name:        name,
		builder:     builder,
		fetcher:     fetcher,
		interpreter: interpreter,
		tracer:      apiAgentTracer(),
	}
}

// Execute answers the question through the external service.
//
// Inputs:
//   - ctx: Context for cancellation; bounds the fetcher's polling.
//   - question: The user's natural-language question.
//
// Outputs:
//   - string: The summarized answer.
//   - error: Non-nil if any stage fails.
func (a *Agent[Q]) Execute(ctx context.Context, question string) (string, error) {
	ctx, span := a.tracer.Start(ctx, "apiagent.Execute",
		trace.WithAttributes(attribute.String("apiagent.service", a.name)),
	)
	defer span.End()

	started := time.Now()

	params, err := a.builder.ParameteriseQuery(ctx, question)
	if err != nil {
		return "", a.fail(span, "parameterise", err)
	}

	id, err := a.fetcher.SubmitQuery(ctx, params)
	if err != nil {
		return "", a.fail(span, "submit", err)
	}
	span.SetAttributes(attribute.String("apiagent.job_id", id))

	results, err := a.fetcher.FetchResults(ctx, id, params)
	if err != nil {
		return "", a.fail(span, "fetch", err)
	}

	answer, err := a.interpreter.SummariseResults(ctx, question, results)
	if err != nil {
		return "", a.fail(span, "summarise", err)
	}

	executionsTotal.WithLabelValues(a.name, "success").Inc()
	executionDuration.WithLabelValues(a.name).Observe(time.Since(started).Seconds())
	slog.Info("API agent run complete",
		slog.String("service", a.name),
		slog.String("job_id", id),
		slog.Duration("elapsed", time.Since(started)),
	)
	return answer, nil
}

func (a *Agent[Q]) fail(span trace.Span, stage string, err error) error {
	executionsTotal.WithLabelValues(a.name, stage+"_error").Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, stage)
	slog.Error("API agent stage failed",
		slog.String("service", a.name),
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("apiagent: %s %s: %w", a.name, stage, err)
}

// FirstNLines returns the first n lines of s, without a trailing newline.
// Raw service output can run to megabytes; interpreters feed only a prefix
// to the model.
func FirstNLines(s string, n int) string {
	if n <= 0 {
		return ""
	}
	lines := strings.SplitN(s, "\n", n+1)
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
