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
	"errors"
	"testing"
)

// scriptedClient replays canned replies in order.
type scriptedClient struct {
	replies []string
	err     error
	calls   int
	seen    [][]ChatMessage
}

func (s *scriptedClient) Chat(ctx context.Context, messages []ChatMessage, params GenerationParams) (string, error) {
	s.seen = append(s.seen, messages)
	if s.err != nil {
		return "", s.err
	}
	reply := s.replies[s.calls%len(s.replies)]
	s.calls++
	return reply, nil
}

func (s *scriptedClient) ChatWithTools(ctx context.Context, messages []ChatMessage,
	params GenerationParams, tools []ToolDef, forceTool string) (*ChatWithToolsResult, error) {
	return nil, errors.New("not implemented")
}

func TestConversation_Query_AppendsTurns(t *testing.T) {
	client := &scriptedClient{replies: []string{"Gene, Protein"}}
	conv := NewConversation(client)
	conv.AppendSystemMessage("You have access to a knowledge graph.")

	reply, err := conv.Query(context.Background(), "Which genes interact with TP53?")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if reply != "Gene, Protein" {
		t.Errorf("Query() = %q, want %q", reply, "Gene, Protein")
	}

	msgs := conv.Messages()
	if len(msgs) != 3 {
		t.Fatalf("history = %d turns, want 3", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[1].Role != "user" || msgs[2].Role != "assistant" {
		t.Errorf("roles = %q %q %q, want system user assistant", msgs[0].Role, msgs[1].Role, msgs[2].Role)
	}
	if msgs[2].Content != "Gene, Protein" {
		t.Errorf("assistant turn = %q, want reply recorded", msgs[2].Content)
	}
}

func TestConversation_Query_ErrorKeepsUserTurn(t *testing.T) {
	client := &scriptedClient{err: errors.New("boom")}
	conv := NewConversation(client)

	if _, err := conv.Query(context.Background(), "question"); err == nil {
		t.Fatal("Query() error = nil, want non-nil")
	}

	msgs := conv.Messages()
	if len(msgs) != 1 || msgs[0].Role != "user" {
		t.Errorf("history = %+v, want single user turn", msgs)
	}
}

func TestConversation_MessagesReturnsCopy(t *testing.T) {
	conv := NewConversation(&scriptedClient{replies: []string{"x"}})
	conv.AppendSystemMessage("s")

	msgs := conv.Messages()
	msgs[0].Content = "mutated"

	if conv.Messages()[0].Content != "s" {
		t.Error("Messages() must return a copy, not the backing slice")
	}
}
