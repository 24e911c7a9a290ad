// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the conversation client used by the knowledge-graph
// reflexion agent, the schema prompt builder, and the bioinformatics API
// agents. It talks to a hosted chat-completions endpoint over raw net/http
// and supports both free-text replies and forced structured tool calls.
package llm

import "context"

// Client is the provider-agnostic interface for chat-completion backends.
//
// Description:
//
//	Chat returns the assistant's free-text reply. ChatWithTools sends tool
//	definitions and returns structured tool calls; forceTool, when non-empty,
//	instructs the model that it must call the named tool (the reflexion loop
//	always forces GenerateQuery or ReviseQuery).
//
// Thread Safety: Implementations must be safe for concurrent use.
type Client interface {
	// Chat sends messages and returns the assistant's response text.
	Chat(ctx context.Context, messages []ChatMessage, params GenerationParams) (string, error)

	// ChatWithTools sends messages plus tool definitions and returns the
	// content and/or tool calls from the model. forceTool may be empty.
	ChatWithTools(ctx context.Context, messages []ChatMessage, params GenerationParams,
		tools []ToolDef, forceTool string) (*ChatWithToolsResult, error)
}

// GenerationParams holds provider-agnostic generation options.
//
// Pointer fields are omitted from the wire request when nil so the
// provider's defaults apply.
type GenerationParams struct {
	// Temperature controls randomness (0.0-1.0).
	Temperature *float32

	// MaxTokens limits the response length.
	MaxTokens *int

	// TopP is the nucleus sampling parameter.
	TopP *float32

	// Stop lists stop sequences.
	Stop []string

	// ModelOverride selects a model for this request only.
	ModelOverride string
}
