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
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/kvitoslava-yarish/biochatter/services/llm"
)

const (
	oncoKBToolName = "OncoKBQueryParameters"

	defaultOncoKBBaseURL      = "https://demo.oncokb.org/api/v1"
	defaultOncoKBSummaryLines = 100

	// oncoKBTokenEnv holds the bearer token for the OncoKB API.
	oncoKBTokenEnv = "ONCOKB_API_KEY"
)

const oncoKBQuerySystemPrompt = "You are a world class algorithm for creating " +
	"queries in structured formats. Your task is to use the OncoKB web API to " +
	"answer the user's question about the oncogenic effects of genes, " +
	"alterations, and cancer types. Choose the endpoint that matches the " +
	"question, for example annotate/mutations/byProteinChange for protein " +
	"changes or utils/allCuratedGenes for curated gene lists, and fill in the " +
	"gene symbol, alteration, and tumor type fields when the question provides " +
	"them."

const oncoKBSummarySystemPrompt = "You have to answer the user's question " +
	"based on the raw JSON response of the OncoKB API. Extract the relevant " +
	"annotations and answer concisely. If the response does not contain the " +
	"answer, say so."

// OncoKBQueryParameters identify one OncoKB REST call.
//
// OncoKB is synchronous: the rendered URL is both the submission and the
// resource to fetch.
type OncoKBQueryParameters struct {
	// BaseURL is the API root; defaults to the public demo instance.
	BaseURL string `json:"base_url"`

	// Endpoint is the path under the API root, e.g.
	// "annotate/mutations/byProteinChange".
	Endpoint string `json:"endpoint" validate:"required"`

	// HugoSymbol is the gene symbol, e.g. "BRAF".
	HugoSymbol string `json:"hugo_symbol,omitempty"`

	// Alteration is the protein change, e.g. "V600E".
	Alteration string `json:"alteration,omitempty"`

	// TumorType is the OncoTree tumor type, e.g. "Melanoma".
	TumorType string `json:"tumor_type,omitempty"`

	// GenomicLocation is a comma-separated genomic change descriptor for
	// the byGenomicChange endpoints.
	GenomicLocation string `json:"genomic_location,omitempty"`

	// QuestionUUID ties this request back to the originating question in
	// logs. Assigned by the builder, never by the model.
	QuestionUUID string `json:"-"`
}

func (p *OncoKBQueryParameters) applyDefaults() {
	if p.BaseURL == "" {
		p.BaseURL = defaultOncoKBBaseURL
	}
}

// renderURL builds the full request URL from the endpoint and the non-empty
// typed parameters.
func (p *OncoKBQueryParameters) renderURL() string {
	query := url.Values{}
	if p.HugoSymbol != "" {
		query.Set("hugoSymbol", p.HugoSymbol)
	}
	if p.Alteration != "" {
		query.Set("alteration", p.Alteration)
	}
	if p.TumorType != "" {
		query.Set("tumorType", p.TumorType)
	}
	if p.GenomicLocation != "" {
		query.Set("genomicLocation", p.GenomicLocation)
	}

	full := strings.TrimSuffix(p.BaseURL, "/") + "/" + strings.TrimPrefix(p.Endpoint, "/")
	if len(query) == 0 {
		return full
	}
	return full + "?" + query.Encode()
}

func oncoKBQueryTool() llm.ToolDef {
	return llm.ToolDef{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        oncoKBToolName,
			Description: "Parameters for one OncoKB REST API call.",
			Parameters: llm.ToolParameters{
				Type: "object",
				Properties: map[string]llm.ToolParamDef{
					"endpoint": {
						Type:        "string",
						Description: "API path under the OncoKB root matching the question.",
					},
					"hugo_symbol": {
						Type:        "string",
						Description: "Gene symbol, e.g. BRAF.",
					},
					"alteration": {
						Type:        "string",
						Description: "Protein change, e.g. V600E.",
					},
					"tumor_type": {
						Type:        "string",
						Description: "OncoTree tumor type, e.g. Melanoma.",
					},
					"genomic_location": {
						Type:        "string",
						Description: "Comma-separated genomic change for byGenomicChange endpoints.",
					},
				},
				Required: []string{"endpoint"},
			},
		},
	}
}

// OncoKBQueryBuilder fills OncoKBQueryParameters from a question through a
// forced tool call.
//
// Thread Safety: Safe for concurrent use.
type OncoKBQueryBuilder struct {
	client   llm.Client
	params   llm.GenerationParams
	validate *validator.Validate
}

// NewOncoKBQueryBuilder creates a builder backed by the given model client.
func NewOncoKBQueryBuilder(client llm.Client) *OncoKBQueryBuilder {
	return &OncoKBQueryBuilder{
		client:   client,
		validate: validator.New(),
	}
}

// ParameteriseQuery asks the model to fill the OncoKB parameters for the
// question, validates the payload, applies defaults, and stamps a question
// UUID.
func (b *OncoKBQueryBuilder) ParameteriseQuery(ctx context.Context, question string) (*OncoKBQueryParameters, error) {
	messages := []llm.ChatMessage{
		{Role: "system", Content: oncoKBQuerySystemPrompt},
		{Role: "user", Content: question},
	}

	result, err := b.client.ChatWithTools(ctx, messages, b.params,
		[]llm.ToolDef{oncoKBQueryTool()}, oncoKBToolName)
	if err != nil {
		return nil, fmt.Errorf("apiagent: oncokb parameterization call: %w", err)
	}
	if len(result.ToolCalls) == 0 {
		return nil, errors.New("apiagent: model returned no tool call for oncokb parameters")
	}

	call := result.ToolCalls[0]
	var params OncoKBQueryParameters
	if err := json.Unmarshal([]byte(call.ArgumentsString()), &params); err != nil {
		return nil, fmt.Errorf("apiagent: decoding oncokb parameters: %w", err)
	}
	if err := b.validate.Struct(&params); err != nil {
		return nil, fmt.Errorf("apiagent: validating oncokb parameters: %w", err)
	}

	params.applyDefaults()
	params.QuestionUUID = uuid.New().String()

	slog.Debug("OncoKB query parameterized",
		slog.String("question_uuid", params.QuestionUUID),
		slog.String("endpoint", params.Endpoint),
	)
	return &params, nil
}

// OncoKBFetcher performs authenticated GETs against the OncoKB API.
//
// Thread Safety: Safe for concurrent use.
type OncoKBFetcher struct {
	httpClient *http.Client
	token      string
}

// NewOncoKBFetcher creates a fetcher reading the bearer token from the
// ONCOKB_API_KEY environment variable.
func NewOncoKBFetcher() *OncoKBFetcher {
	return NewOncoKBFetcherWithToken(os.Getenv(oncoKBTokenEnv))
}

// NewOncoKBFetcherWithToken creates a fetcher with an explicit token.
func NewOncoKBFetcherWithToken(token string) *OncoKBFetcher {
	return &OncoKBFetcher{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		token:      token,
	}
}

// SubmitQuery renders the request URL. OncoKB has no job model, so the URL
// itself is the identifier FetchResults retrieves.
func (f *OncoKBFetcher) SubmitQuery(_ context.Context, params *OncoKBQueryParameters) (string, error) {
	rendered := params.renderURL()
	slog.Debug("OncoKB request rendered",
		slog.String("question_uuid", params.QuestionUUID),
		slog.String("url", rendered),
	)
	return rendered, nil
}

// FetchResults performs the bearer-token GET and returns the response body.
func (f *OncoKBFetcher) FetchResults(ctx context.Context, requestURL string, _ *OncoKBQueryParameters) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return "", fmt.Errorf("apiagent: building oncokb request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("apiagent: oncokb request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("apiagent: reading oncokb response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("apiagent: oncokb request status %d", resp.StatusCode)
	}
	return string(body), nil
}

// OncoKBInterpreter summarizes raw OncoKB responses with the LLM.
type OncoKBInterpreter struct {
	factory llm.ConversationFactory
	lines   int
}

// NewOncoKBInterpreter creates an interpreter that feeds the first 100
// lines of the response to the model.
func NewOncoKBInterpreter(factory llm.ConversationFactory) *OncoKBInterpreter {
	return &OncoKBInterpreter{factory: factory, lines: defaultOncoKBSummaryLines}
}

// SummariseResults answers the question from a prefix of the raw response.
func (i *OncoKBInterpreter) SummariseResults(ctx context.Context, question, results string) (string, error) {
	conv := i.factory()
	conv.AppendSystemMessage(oncoKBSummarySystemPrompt)

	prompt := fmt.Sprintf("Question: %s\n\nOncoKB response:\n%s",
		question, FirstNLines(results, i.lines))
	answer, err := conv.Query(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("apiagent: oncokb summary: %w", err)
	}
	return answer, nil
}

// NewOncoKBAgent wires the three OncoKB stages into an orchestrator.
func NewOncoKBAgent(client llm.Client, factory llm.ConversationFactory) *Agent[OncoKBQueryParameters] {
	return NewAgent[OncoKBQueryParameters]("oncokb",
		NewOncoKBQueryBuilder(client),
		NewOncoKBFetcher(),
		NewOncoKBInterpreter(factory),
	)
}
