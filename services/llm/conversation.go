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
	"fmt"
	"log/slog"
)

// Conversation is the ordered, append-only message history for one
// question-answering session.
//
// Description:
//
//	A Conversation is owned by exactly one caller (a prompt builder or an
//	agent) for the duration of one question and is discarded afterwards.
//	It is deliberately NOT safe for concurrent use; the control flow that
//	feeds it is fully sequential.
type Conversation struct {
	client   Client
	params   GenerationParams
	messages []ChatMessage
}

// ConversationFactory creates a fresh Conversation per selection step or
// agent session. Components that need several independent LLM sessions
// (entity selection, property selection) take a factory rather than a
// shared conversation.
type ConversationFactory func() *Conversation

// NewConversation creates an empty conversation backed by the given client.
func NewConversation(client Client) *Conversation {
	return &Conversation{client: client}
}

// NewConversationWithParams creates an empty conversation with fixed
// generation parameters applied to every query.
func NewConversationWithParams(client Client, params GenerationParams) *Conversation {
	return &Conversation{client: client, params: params}
}

// AppendSystemMessage appends a system turn.
func (c *Conversation) AppendSystemMessage(content string) {
	c.messages = append(c.messages, ChatMessage{Role: "system", Content: content})
}

// AppendUserMessage appends a user turn.
func (c *Conversation) AppendUserMessage(content string) {
	c.messages = append(c.messages, ChatMessage{Role: "user", Content: content})
}

// AppendAssistantMessage appends an assistant turn.
func (c *Conversation) AppendAssistantMessage(content string) {
	c.messages = append(c.messages, ChatMessage{Role: "assistant", Content: content})
}

// Messages returns a copy of the conversation history.
func (c *Conversation) Messages() []ChatMessage {
	out := make([]ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Query appends the text as a user turn, asks the model, appends the reply
// as an assistant turn, and returns the reply.
//
// Inputs:
//   - ctx: Context for cancellation and timeout.
//   - text: The user's message.
//
// Outputs:
//   - string: The assistant's reply.
//   - error: Non-nil if the backend call fails; the user turn is still
//     recorded so a caller may retry.
func (c *Conversation) Query(ctx context.Context, text string) (string, error) {
	c.AppendUserMessage(text)

	reply, err := c.client.Chat(ctx, c.messages, c.params)
	if err != nil {
		slog.Error("Conversation query failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("llm: conversation query: %w", err)
	}

	c.AppendAssistantMessage(reply)
	return reply, nil
}
