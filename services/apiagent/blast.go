// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package apiagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/kvitoslava-yarish/biochatter/services/llm"
)

const (
	blastToolName = "BlastQueryParameters"

	defaultBlastURL          = "https://blast.ncbi.nlm.nih.gov/Blast.cgi"
	defaultBlastPollInterval = 10 * time.Second
	defaultBlastMaxAttempts  = 10
	defaultBlastSummaryLines = 100
)

const blastQuerySystemPrompt = "You are a world class algorithm for creating " +
	"queries in structured formats. Your task is to use the NCBI BLAST web API " +
	"to answer the user's question. You fill out the BLAST query parameters " +
	"based on the question: choose blastn for nucleotide sequences and blastp " +
	"for protein sequences, pick the matching database (nt for nucleotides, " +
	"nr for proteins), and place the raw sequence from the question in the " +
	"query field without any extra characters."

const blastSummarySystemPrompt = "You have to answer the user's question " +
	"based on the raw output of a BLAST search. Extract the relevant hits, " +
	"identifiers, and scores from the output and answer concisely. If the " +
	"output does not contain the answer, say so."

// ErrRIDNotFound means the BLAST submission response carried no request
// identifier, so there is nothing to poll for.
var ErrRIDNotFound = errors.New("apiagent: RID not found in BLAST submission response")

// blastRIDPattern matches the request identifier echoed in the submission
// response body ("RID = ABC123...").
var blastRIDPattern = regexp.MustCompile(`RID = (\w+)`)

// BlastQueryParameters are the wire parameters of one NCBI BLAST request,
// filled in by the model through a forced tool call.
type BlastQueryParameters struct {
	// Cmd is the BLAST URL API command. Always "Put" for submissions.
	Cmd string `json:"cmd"`

	// Program selects the search flavor: blastn, blastp, blastx, ...
	Program string `json:"program" validate:"required"`

	// Database is the target database, e.g. "nt" or "nr".
	Database string `json:"database" validate:"required"`

	// Query is the raw nucleotide or protein sequence to search with.
	Query string `json:"query" validate:"required"`

	// FormatType is the requested result format; defaults to "Text".
	FormatType string `json:"format_type"`

	// Megablast toggles the megablast optimization for blastn searches.
	Megablast string `json:"megablast"`

	// MaxHits caps the hit list size.
	MaxHits int `json:"max_hits"`

	// URL is the service endpoint; overridable for tests.
	URL string `json:"url"`

	// QuestionUUID ties this request back to the originating question in
	// logs. Assigned by the builder, never by the model.
	QuestionUUID string `json:"-"`
}

func (p *BlastQueryParameters) applyDefaults() {
	if p.Cmd == "" {
		p.Cmd = "Put"
	}
	if p.FormatType == "" {
		p.FormatType = "Text"
	}
	if p.MaxHits == 0 {
		p.MaxHits = 15
	}
	if p.URL == "" {
		p.URL = defaultBlastURL
	}
}

func blastQueryTool() llm.ToolDef {
	return llm.ToolDef{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        blastToolName,
			Description: "Parameters for one NCBI BLAST URL API search.",
			Parameters: llm.ToolParameters{
				Type: "object",
				Properties: map[string]llm.ToolParamDef{
					"cmd": {
						Type:        "string",
						Description: "BLAST URL API command.",
						Default:     "Put",
					},
					"program": {
						Type:        "string",
						Description: "Search program matching the sequence type.",
						Enum:        []any{"blastn", "blastp", "blastx", "tblastn", "tblastx"},
					},
					"database": {
						Type:        "string",
						Description: "Target database, e.g. nt for nucleotides or nr for proteins.",
					},
					"query": {
						Type:        "string",
						Description: "The raw sequence to search with, no extra characters.",
					},
					"format_type": {
						Type:        "string",
						Description: "Result format.",
						Default:     "Text",
					},
					"megablast": {
						Type:        "string",
						Description: "Set to \"on\" to use megablast for blastn searches.",
					},
					"max_hits": {
						Type:        "integer",
						Description: "Maximum number of hits to return.",
						Default:     15,
					},
				},
				Required: []string{"program", "database", "query"},
			},
		},
	}
}

// BlastQueryBuilder fills BlastQueryParameters from a question through a
// forced tool call.
//
// Thread Safety: Safe for concurrent use.
type BlastQueryBuilder struct {
	client   llm.Client
	params   llm.GenerationParams
	validate *validator.Validate
}

// NewBlastQueryBuilder creates a builder backed by the given model client.
func NewBlastQueryBuilder(client llm.Client) *BlastQueryBuilder {
	return &BlastQueryBuilder{
		client:   client,
		validate: validator.New(),
	}
}

// ParameteriseQuery asks the model to fill the BLAST parameters for the
// question, validates the payload, applies service defaults, and stamps a
// question UUID.
func (b *BlastQueryBuilder) ParameteriseQuery(ctx context.Context, question string) (*BlastQueryParameters, error) {
	messages := []llm.ChatMessage{
		{Role: "system", Content: blastQuerySystemPrompt},
		{Role: "user", Content: question},
	}

	result, err := b.client.ChatWithTools(ctx, messages, b.params,
		[]llm.ToolDef{blastQueryTool()}, blastToolName)
	if err != nil {
		return nil, fmt.Errorf("apiagent: blast parameterization call: %w", err)
	}
	if len(result.ToolCalls) == 0 {
		return nil, errors.New("apiagent: model returned no tool call for blast parameters")
	}

	call := result.ToolCalls[0]
	var params BlastQueryParameters
	if err := json.Unmarshal([]byte(call.ArgumentsString()), &params); err != nil {
		return nil, fmt.Errorf("apiagent: decoding blast parameters: %w", err)
	}
	if err := b.validate.Struct(&params); err != nil {
		return nil, fmt.Errorf("apiagent: validating blast parameters: %w", err)
	}

	params.applyDefaults()
	params.QuestionUUID = uuid.New().String()

	slog.Debug("BLAST query parameterized",
		slog.String("question_uuid", params.QuestionUUID),
		slog.String("program", params.Program),
		slog.String("database", params.Database),
	)
	return &params, nil
}

// BlastFetcher submits searches to the BLAST URL API and polls for results.
//
// Description:
//
//	BLAST is asynchronous: a submission returns a request identifier (RID)
//	and results become available once the search status reads READY. The
//	fetcher polls the status endpoint at a fixed interval up to a bounded
//	number of attempts.
//
// Thread Safety: Safe for concurrent use.
type BlastFetcher struct {
	httpClient   *http.Client
	pollInterval time.Duration
	maxAttempts  int
}

// NewBlastFetcher creates a fetcher with default polling behavior.
func NewBlastFetcher() *BlastFetcher {
	return &BlastFetcher{
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		pollInterval: defaultBlastPollInterval,
		maxAttempts:  defaultBlastMaxAttempts,
	}
}

// NewBlastFetcherWithPolling creates a fetcher with explicit polling
// behavior; used by tests and latency-sensitive callers.
func NewBlastFetcherWithPolling(client *http.Client, interval time.Duration, maxAttempts int) *BlastFetcher {
	return &BlastFetcher{
		httpClient:   client,
		pollInterval: interval,
		maxAttempts:  maxAttempts,
	}
}

// SubmitQuery posts the search to the BLAST endpoint and extracts the RID
// from the response body. Returns ErrRIDNotFound when the body carries no
// identifier.
func (f *BlastFetcher) SubmitQuery(ctx context.Context, params *BlastQueryParameters) (string, error) {
	form := url.Values{}
	form.Set("CMD", params.Cmd)
	form.Set("PROGRAM", params.Program)
	form.Set("DATABASE", params.Database)
	form.Set("QUERY", params.Query)
	form.Set("FORMAT_TYPE", params.FormatType)
	form.Set("HITLIST_SIZE", strconv.Itoa(params.MaxHits))
	if params.Megablast != "" {
		form.Set("MEGABLAST", params.Megablast)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, params.URL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("apiagent: building blast submission: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("apiagent: blast submission: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("apiagent: reading blast submission response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("apiagent: blast submission status %d", resp.StatusCode)
	}

	match := blastRIDPattern.FindSubmatch(body)
	if match == nil {
		return "", ErrRIDNotFound
	}
	rid := string(match[1])

	slog.Info("BLAST search submitted",
		slog.String("question_uuid", params.QuestionUUID),
		slog.String("rid", rid),
	)
	return rid, nil
}

// FetchResults polls the search status until READY, then retrieves the
// result body.
//
// Outputs:
//   - string: The raw BLAST result text.
//   - error: Non-nil when the context is cancelled, an HTTP call fails, or
//     the attempt budget runs out before the search is ready.
func (f *BlastFetcher) FetchResults(ctx context.Context, rid string, params *BlastQueryParameters) (string, error) {
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		status, err := f.get(ctx, params.URL, url.Values{
			"CMD":           []string{"Get"},
			"FORMAT_OBJECT": []string{"SearchInfo"},
			"RID":           []string{rid},
		})
		if err != nil {
			return "", err
		}

		if strings.Contains(status, "Status=READY") {
			return f.get(ctx, params.URL, url.Values{
				"CMD":         []string{"Get"},
				"FORMAT_TYPE": []string{params.FormatType},
				"RID":         []string{rid},
			})
		}
		if strings.Contains(status, "Status=FAILED") {
			return "", fmt.Errorf("apiagent: blast search %s failed on the server", rid)
		}

		slog.Debug("BLAST search not ready",
			slog.String("rid", rid),
			slog.Int("attempt", attempt),
		)

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("apiagent: waiting for blast results: %w", ctx.Err())
		case <-time.After(f.pollInterval):
		}
	}
	return "", fmt.Errorf("apiagent: blast search %s not ready after %d attempts", rid, f.maxAttempts)
}

func (f *BlastFetcher) get(ctx context.Context, base string, query url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		base+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("apiagent: building blast request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("apiagent: blast request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("apiagent: reading blast response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("apiagent: blast request status %d", resp.StatusCode)
	}
	return string(body), nil
}

// BlastInterpreter summarizes raw BLAST output with the LLM.
type BlastInterpreter struct {
	factory llm.ConversationFactory
	lines   int
}

// NewBlastInterpreter creates an interpreter that feeds the first 100 lines
// of output to the model.
func NewBlastInterpreter(factory llm.ConversationFactory) *BlastInterpreter {
	return &BlastInterpreter{factory: factory, lines: defaultBlastSummaryLines}
}

// SummariseResults answers the question from a prefix of the raw output.
func (i *BlastInterpreter) SummariseResults(ctx context.Context, question, results string) (string, error) {
	conv := i.factory()
	conv.AppendSystemMessage(blastSummarySystemPrompt)

	prompt := fmt.Sprintf("Question: %s\n\nBLAST output:\n%s",
		question, FirstNLines(results, i.lines))
	answer, err := conv.Query(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("apiagent: blast summary: %w", err)
	}
	return answer, nil
}

// NewBlastAgent wires the three BLAST stages into an orchestrator.
func NewBlastAgent(client llm.Client, factory llm.ConversationFactory) *Agent[BlastQueryParameters] {
	return NewAgent[BlastQueryParameters]("blast",
		NewBlastQueryBuilder(client),
		NewBlastFetcher(),
		NewBlastInterpreter(factory),
	)
}
