// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIClient_Chat_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer test-key")
		}

		var req openaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Model != "gpt-test" {
			t.Errorf("model = %q, want %q", req.Model, "gpt-test")
		}
		if len(req.Messages) != 2 {
			t.Errorf("messages = %d, want 2", len(req.Messages))
		}
		if req.ToolChoice != nil {
			t.Error("plain Chat must not carry tool_choice")
		}

		resp := openaiResponse{
			ID: "chatcmpl-1",
			Choices: []openaiChoice{{
				Message:      openaiMessage{Role: "assistant", Content: "Gene, Protein"},
				FinishReason: "stop",
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewOpenAIClientWithConfig("test-key", "gpt-test", server.URL)

	messages := []ChatMessage{
		{Role: "system", Content: "You have access to a knowledge graph."},
		{Role: "user", Content: "Which genes interact with TP53?"},
	}

	reply, err := client.Chat(context.Background(), messages, GenerationParams{})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if reply != "Gene, Protein" {
		t.Errorf("Chat() = %q, want %q", reply, "Gene, Protein")
	}
}

func TestOpenAIClient_ChatWithTools_ForcedTool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if len(req.Tools) != 1 || req.Tools[0].Function.Name != "GenerateQuery" {
			t.Errorf("tools = %+v, want one GenerateQuery tool", req.Tools)
		}
		if req.ToolChoice == nil || req.ToolChoice.Function.Name != "GenerateQuery" {
			t.Errorf("tool_choice = %+v, want forced GenerateQuery", req.ToolChoice)
		}

		resp := openaiResponse{
			Choices: []openaiChoice{{
				Message: openaiMessage{
					Role: "assistant",
					ToolCalls: []openaiToolCall{{
						ID:   "call-1",
						Type: "function",
						Function: openaiCallFunction{
							Name:      "GenerateQuery",
							Arguments: `{"answer":"MATCH (g:Gene) RETURN g.name","reflection":"","search_queries":[]}`,
						},
					}},
				},
				FinishReason: "tool_calls",
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewOpenAIClientWithConfig("test-key", "gpt-test", server.URL)

	tool := ToolDef{
		Type: "function",
		Function: ToolFunction{
			Name:        "GenerateQuery",
			Description: "Generate the query.",
			Parameters:  ToolParameters{Type: "object"},
		},
	}

	result, err := client.ChatWithTools(context.Background(),
		[]ChatMessage{{Role: "user", Content: "q"}}, GenerationParams{}, []ToolDef{tool}, "GenerateQuery")
	if err != nil {
		t.Fatalf("ChatWithTools() error = %v", err)
	}

	if result.StopReason != "tool_use" {
		t.Errorf("StopReason = %q, want %q", result.StopReason, "tool_use")
	}
	if len(result.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %d, want 1", len(result.ToolCalls))
	}
	if result.ToolCalls[0].Name != "GenerateQuery" {
		t.Errorf("tool call name = %q, want GenerateQuery", result.ToolCalls[0].Name)
	}
	if !strings.Contains(string(result.ToolCalls[0].Arguments), "MATCH (g:Gene)") {
		t.Errorf("arguments = %q, want Cypher payload", result.ToolCalls[0].Arguments)
	}
}

func TestOpenAIClient_ChatWithTools_NoToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := openaiResponse{
			Choices: []openaiChoice{{
				Message:      openaiMessage{Role: "assistant", Content: "plain text"},
				FinishReason: "stop",
			}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewOpenAIClientWithConfig("test-key", "gpt-test", server.URL)

	result, err := client.ChatWithTools(context.Background(),
		[]ChatMessage{{Role: "user", Content: "q"}}, GenerationParams{}, nil, "")
	if err != nil {
		t.Fatalf("ChatWithTools() error = %v", err)
	}
	if result.StopReason != "end" {
		t.Errorf("StopReason = %q, want %q", result.StopReason, "end")
	}
	if result.Content != "plain text" {
		t.Errorf("Content = %q, want %q", result.Content, "plain text")
	}
}

func TestOpenAIClient_Chat_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	client := NewOpenAIClientWithConfig("test-key", "gpt-test", server.URL)

	_, err := client.Chat(context.Background(), []ChatMessage{{Role: "user", Content: "q"}}, GenerationParams{})
	if err == nil {
		t.Fatal("Chat() error = nil, want non-nil")
	}
	if !strings.Contains(err.Error(), "openai:") {
		t.Errorf("error = %q, want openai: prefix", err.Error())
	}
	if !strings.Contains(err.Error(), "status 429") {
		t.Errorf("error = %q, want status 429", err.Error())
	}
}

func TestOpenAIClient_Chat_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openaiResponse{
			Error: &openaiError{Type: "invalid_request_error", Message: "bad request"},
		})
	}))
	defer server.Close()

	client := NewOpenAIClientWithConfig("test-key", "gpt-test", server.URL)

	_, err := client.Chat(context.Background(), []ChatMessage{{Role: "user", Content: "q"}}, GenerationParams{})
	if err == nil {
		t.Fatal("Chat() error = nil, want non-nil")
	}
	if !strings.Contains(err.Error(), "invalid_request_error") {
		t.Errorf("error = %q, want API error type", err.Error())
	}
}

func TestOpenAIClient_Chat_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openaiResponse{ID: "chatcmpl-2"})
	}))
	defer server.Close()

	client := NewOpenAIClientWithConfig("test-key", "gpt-test", server.URL)

	_, err := client.Chat(context.Background(), []ChatMessage{{Role: "user", Content: "q"}}, GenerationParams{})
	if err == nil || !strings.Contains(err.Error(), "no choices") {
		t.Errorf("error = %v, want no choices error", err)
	}
}

func TestToOpenAIMessages_ToolTurns(t *testing.T) {
	messages := []ChatMessage{
		{Role: "assistant", ToolCalls: []ToolCallResponse{{
			ID: "call-1", Name: "GenerateQuery", Arguments: json.RawMessage(`{"answer":"x"}`),
		}}},
		{Role: "tool", Content: `{"query":"x","result":[]}`, ToolCallID: "call-1"},
		{Role: "developer", Content: "unknown role"},
	}

	out := toOpenAIMessages(messages)
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	if len(out[0].ToolCalls) != 1 || out[0].ToolCalls[0].Function.Name != "GenerateQuery" {
		t.Errorf("assistant tool calls not converted: %+v", out[0])
	}
	if out[1].ToolCallID != "call-1" {
		t.Errorf("tool_call_id = %q, want call-1", out[1].ToolCallID)
	}
	if out[2].Role != "user" {
		t.Errorf("unknown role mapped to %q, want user", out[2].Role)
	}
}
