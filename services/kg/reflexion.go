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
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kvitoslava-yarish/biochatter/services/llm"
)

// =============================================================================
// Reflexion Loop Controller
// =============================================================================

const (
	// defaultMaxSteps is the generate/revise cycle budget per question.
	defaultMaxSteps = 20

	// defaultQueryLanguage is the graph query language requested from the model.
	defaultQueryLanguage = "Cypher"

	// maxProposalRetries bounds re-prompts after a malformed tool payload
	// within one cycle. After that the turn is skipped.
	maxProposalRetries = 3
)

const actorSystemPrompt = "As a senior biomedical researcher and graph database expert, " +
	"your task is to generate '%s' queries to extract data from our knowledge graph database " +
	"based on the user's question. Current time %s. %s"

const closingSystemPrompt = "Only generate query according to the user's question above."

const revisionInstruction = `Revise your previous query using the query result and follow the guidelines:
1. If you consistently obtain empty results, consider removing constraints, like relationship constraints, to try to obtain some results.
2. Use your previous critique to improve your query.`

// Config customizes an Agent. Zero values select the defaults.
type Config struct {
	// MaxSteps is the generate/revise cycle budget (default 20).
	MaxSteps int

	// QueryLanguage names the query language in the actor prompt
	// (default "Cypher").
	QueryLanguage string

	// Params are the generation parameters for every LLM call.
	Params llm.GenerationParams
}

// Session is the explicit per-question state threaded through the loop.
//
// Description:
//
//	Holds the user question and the append-only conversation history
//	(user, assistant tool-call, and tool result turns). Owned exclusively
//	by one Agent.Execute call; discarded when the session ends.
type Session struct {
	// Question is the user's natural-language question.
	Question string

	history []llm.ChatMessage
}

// NewSession starts a session with the question as the first user turn.
func NewSession(question string) *Session {
	return &Session{
		Question: question,
		history:  []llm.ChatMessage{{Role: "user", Content: question}},
	}
}

// History returns a copy of the session's conversation turns.
func (s *Session) History() []llm.ChatMessage {
	out := make([]llm.ChatMessage, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) appendAssistantCall(call llm.ToolCallResponse) {
	s.history = append(s.history, llm.ChatMessage{
		Role:      "assistant",
		ToolCalls: []llm.ToolCallResponse{call},
	})
}

func (s *Session) appendToolResult(callID, content string) {
	s.history = append(s.history, llm.ChatMessage{
		Role:       "tool",
		Content:    content,
		ToolCallID: callID,
	})
}

// Outcome is the terminal state of one reflexion session.
type Outcome struct {
	// Answer is the best graph query obtained.
	Answer string

	// Steps is the number of generate/revise cycles performed.
	Steps int

	// Resolved is true when a non-empty result stopped the loop, false
	// when the step budget ran out (a normal terminal state, not an error).
	Resolved bool
}

// Agent drives the reflexion loop: generate a query proposal, execute it
// against the graph store, and revise until a non-empty result or budget
// exhaustion.
//
// Description:
//
//	Fully sequential and synchronous. Failures during LLM invocation or
//	query execution are logged and treated as an empty result for that
//	turn; only a session that never produced a single valid proposal
//	returns an error.
//
// Thread Safety: An Agent may be shared, but each Execute call owns its
// Session; the underlying Store is accessed sequentially within a call.
type Agent struct {
	client    llm.Client
	store     Store
	maxSteps  int
	queryLang string
	params    llm.GenerationParams
	validate  *validator.Validate
	tracer    trace.Tracer
	now       func() time.Time
}

// New creates a reflexion Agent over the given client and store.
func New(client llm.Client, store Store, cfg Config) *Agent {
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	queryLang := cfg.QueryLanguage
	if queryLang == "" {
		queryLang = defaultQueryLanguage
	}
	return &Agent{
		client:    client,
		store:     store,
		maxSteps:  maxSteps,
		queryLang: queryLang,
		params:    cfg.Params,
		validate:  validator.New(),
		tracer:    otel.Tracer(kgTracerName),
		now:       time.Now,
	}
}

// Execute answers one question through the generate → execute → revise loop.
//
// Description:
//
//	Cycle 1 forces a GenerateQuery tool call; later cycles force
//	ReviseQuery with the revision instruction. After each proposal the
//	candidate queries run against the store; the first non-empty result
//	is kept (else the first result) and serialized into the session as
//	the tool turn. A non-empty kept result terminates the loop with that
//	proposal's answer. Budget exhaustion returns the best answer so far.
//
// Inputs:
//   - ctx: Context for cancellation; checked between cycles.
//   - question: The user's natural-language question.
//   - instruction: Optional extra instruction for the first prompt (the
//     schema prompt builder's output goes here). May be empty.
//
// Outputs:
//   - *Outcome: Terminal state with the answer query.
//   - error: Non-nil only if no valid proposal was ever produced or the
//     context was cancelled.
func (a *Agent) Execute(ctx context.Context, question, instruction string) (*Outcome, error) {
	ctx, span := a.tracer.Start(ctx, "kg.reflexion.execute",
		trace.WithAttributes(
			attribute.String("kg.query_language", a.queryLang),
			attribute.Int("kg.max_steps", a.maxSteps),
		),
	)
	defer span.End()

	sess := NewSession(question)
	var best *Proposal
	steps := 0

	for steps < a.maxSteps {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return nil, fmt.Errorf("kg: session cancelled after %d steps: %w", steps, err)
		}

		tool := generateQueryTool(a.queryLang)
		inst := instruction
		if steps > 0 {
			tool = reviseQueryTool(a.queryLang)
			inst = revisionInstruction
		}
		steps++

		prop, call, err := a.respond(ctx, sess, tool, inst)
		if err != nil {
			// Treated as an empty result for this turn; the loop continues.
			slog.Error("Reflexion turn produced no usable proposal",
				slog.Int("step", steps),
				slog.String("error", err.Error()),
			)
			continue
		}
		best = prop
		sess.appendAssistantCall(call)

		kept := a.executeQueries(ctx, prop.queries())
		content, merr := kept.MarshalContent()
		if merr != nil {
			slog.Error("Failed to serialize tool result", slog.String("error", merr.Error()))
			content = `{"query":"","result":[]}`
		}
		sess.appendToolResult(call.ID, content)

		a.logStep(steps, prop, kept)

		if ResultCount(kept.Result) > 0 {
			span.SetAttributes(
				attribute.Int("kg.steps", steps),
				attribute.String("kg.outcome", "resolved"),
			)
			loopSteps.Observe(float64(steps))
			loopOutcomesTotal.WithLabelValues("resolved").Inc()
			slog.Info("Reflexion loop resolved",
				slog.Int("steps", steps),
				slog.Int("result_rows", ResultCount(kept.Result)),
			)
			return &Outcome{Answer: prop.Answer, Steps: steps, Resolved: true}, nil
		}
	}

	loopSteps.Observe(float64(steps))

	if best == nil {
		span.SetStatus(codes.Error, "no valid proposal")
		loopOutcomesTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("kg: no valid proposal produced within %d steps", a.maxSteps)
	}

	// Budget exhaustion is a normal terminal condition, not an error.
	span.SetAttributes(
		attribute.Int("kg.steps", steps),
		attribute.String("kg.outcome", "budget_exhausted"),
	)
	loopOutcomesTotal.WithLabelValues("budget_exhausted").Inc()
	slog.Info("Reflexion step budget exhausted, returning best answer",
		slog.Int("steps", steps),
	)
	return &Outcome{Answer: best.Answer, Steps: steps, Resolved: false}, nil
}

// respond obtains one validated proposal from the model, re-prompting on
// malformed payloads up to maxProposalRetries times.
func (a *Agent) respond(ctx context.Context, sess *Session, tool llm.ToolDef, instruction string) (*Proposal, llm.ToolCallResponse, error) {
	msgs := a.promptMessages(sess, instruction)

	var lastErr error
	for attempt := 0; attempt < maxProposalRetries; attempt++ {
		result, err := a.client.ChatWithTools(ctx, msgs, a.params, []llm.ToolDef{tool}, tool.Function.Name)
		if err != nil {
			return nil, llm.ToolCallResponse{}, fmt.Errorf("kg: LLM call failed: %w", err)
		}

		if len(result.ToolCalls) == 0 {
			lastErr = fmt.Errorf("kg: model replied without a tool call")
			proposalRejectionsTotal.Inc()
			msgs = append(msgs, llm.ChatMessage{
				Role:    "user",
				Content: fmt.Sprintf("Respond with a %s tool call, not plain text.", tool.Function.Name),
			})
			continue
		}

		call := result.ToolCalls[0]
		prop, err := decodeProposal(a.validate, call)
		if err != nil {
			lastErr = err
			proposalRejectionsTotal.Inc()
			slog.Warn("Rejected model proposal",
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			msgs = append(msgs, llm.ChatMessage{
				Role: "user",
				Content: fmt.Sprintf("Your previous %s call was invalid: %v. Reply again with valid arguments.",
					tool.Function.Name, err),
			})
			continue
		}

		return prop, call, nil
	}

	return nil, llm.ToolCallResponse{}, fmt.Errorf("kg: no valid tool call after %d attempts: %w",
		maxProposalRetries, lastErr)
}

// promptMessages assembles the per-call prompt: the actor system prompt with
// the cycle's instruction, the session history, and the closing system nudge.
func (a *Agent) promptMessages(sess *Session, instruction string) []llm.ChatMessage {
	msgs := make([]llm.ChatMessage, 0, len(sess.history)+2)
	msgs = append(msgs, llm.ChatMessage{
		Role:    "system",
		Content: fmt.Sprintf(actorSystemPrompt, a.queryLang, a.now().Format(time.RFC3339), instruction),
	})
	msgs = append(msgs, sess.history...)
	msgs = append(msgs, llm.ChatMessage{Role: "system", Content: closingSystemPrompt})
	return msgs
}

// executeQueries runs every candidate query and keeps the first result
// judged non-empty, else the first result.
//
// Description:
//
//	Store errors are logged and produce an empty result for that query
//	rather than propagating; the loop's revise semantics are the only
//	retry mechanism.
func (a *Agent) executeQueries(ctx context.Context, queries []string) QueryResult {
	results := make([]QueryResult, 0, len(queries))
	for _, q := range queries {
		if strings.TrimSpace(q) == "" {
			continue
		}
		rows, err := a.store.Query(ctx, q)
		if err != nil {
			slog.Error("Graph query failed",
				slog.String("error", llm.SafeLogString(err.Error())),
			)
			queriesTotal.WithLabelValues("error").Inc()
			rows = nil
		} else {
			queriesTotal.WithLabelValues("success").Inc()
		}
		results = append(results, QueryResult{Query: q, Result: rows})
	}

	if len(results) == 0 {
		return QueryResult{}
	}
	for _, r := range results {
		if ResultCount(r.Result) > 0 {
			return r
		}
	}
	return results[0]
}

// logStep records one node's output the way the loop's operators read it.
func (a *Agent) logStep(step int, prop *Proposal, kept QueryResult) {
	attrs := []any{
		slog.Int("step", step),
		slog.String("answer", prop.Answer),
		slog.String("reflection", prop.Reflection),
		slog.Int("search_queries", len(prop.SearchQueries)),
		slog.Int("result_rows", len(kept.Result)),
	}
	if prop.Revised {
		attrs = append(attrs, slog.String("revised_query", prop.RevisedQuery))
	}
	slog.Debug("Reflexion step", attrs...)
}
