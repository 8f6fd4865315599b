package shim

import (
	"fmt"
	"strings"
	"time"

	"github.com/pysugar/aoai-nexus/internal/dialect"
)

// ResponsesToChatCompletion maps a non-stream Responses body to a Chat completion for modelID.
func ResponsesToChatCompletion(payload *dialect.ResponsesResponse, modelID string, now time.Time) *dialect.ChatCompletion {
	created := now.Unix()

	content := ""
	switch {
	case payload.OutputText != nil:
		content = *payload.OutputText
	case len(payload.Output) > 0:
		var b strings.Builder
		for _, part := range payload.Output[0].Content {
			b.WriteString(part.Text)
		}
		content = b.String()
	}

	var toolCalls []dialect.ToolCall
	for _, item := range payload.Output {
		if item.Type != dialect.ItemFunctionCall {
			continue
		}
		id := item.CallID
		if id == "" {
			id = item.ID
		}
		if id == "" {
			id = fmt.Sprintf("call_%d", len(toolCalls))
		}
		toolCalls = append(toolCalls, dialect.ToolCall{
			ID:   id,
			Type: "function",
			Function: &dialect.FunctionCall{
				Name:      item.Name,
				Arguments: item.Arguments,
			},
		})
	}

	finish := dialect.FinishStop
	if len(toolCalls) > 0 {
		finish = dialect.FinishToolCalls
	}

	id := payload.ID
	if id == "" {
		id = fmt.Sprintf("chatcmpl_%d", created)
	}

	return &dialect.ChatCompletion{
		ID:      id,
		Object:  dialect.ObjectChatCompletion,
		Created: created,
		Model:   modelID,
		Choices: []dialect.ChatChoice{{
			Index: 0,
			Message: &dialect.ChatResponseMessage{
				Role:      "assistant",
				Content:   &content,
				ToolCalls: toolCalls,
			},
			FinishReason: &finish,
		}},
		Usage: payload.Usage,
	}
}

// ChatCompletionToResponses maps a non-stream Chat completion to a Responses body for modelID.
func ChatCompletionToResponses(payload *dialect.ChatCompletion, modelID string) *dialect.ResponsesResponse {
	text := ""
	if len(payload.Choices) > 0 {
		choice := payload.Choices[0]
		switch {
		case choice.Message != nil && choice.Message.Content != nil:
			text = *choice.Message.Content
		case choice.Text != nil:
			text = *choice.Text
		}
	}
	return &dialect.ResponsesResponse{
		ID:         payload.ID,
		Object:     dialect.ObjectResponse,
		Model:      modelID,
		OutputText: &text,
		Usage:      payload.Usage,
	}
}

// ChunkFrame is the fixed envelope shared by every chunk of one translated stream.
type ChunkFrame struct {
	ID      string
	Created int64
	Model   string
}

// TextDelta is a Chat chunk carrying assistant content.
func (f ChunkFrame) TextDelta(text string) dialect.ChatChunk {
	return f.chunk(dialect.ChunkDelta{Content: &text}, nil)
}

// ToolCallDelta is a Chat chunk carrying an argument fragment for the tool call at index.
func (f ChunkFrame) ToolCallDelta(index int, callID, name, arguments string) dialect.ChatChunk {
	return f.chunk(dialect.ChunkDelta{
		ToolCalls: []dialect.ToolCall{{
			Index: &index,
			ID:    callID,
			Type:  "function",
			Function: &dialect.FunctionCall{
				Name:      name,
				Arguments: arguments,
			},
		}},
	}, nil)
}

// Finish is the terminal Chat chunk with an empty delta.
func (f ChunkFrame) Finish(sawToolCall bool) dialect.ChatChunk {
	reason := dialect.FinishStop
	if sawToolCall {
		reason = dialect.FinishToolCalls
	}
	return f.chunk(dialect.ChunkDelta{}, &reason)
}

func (f ChunkFrame) chunk(delta dialect.ChunkDelta, finish *string) dialect.ChatChunk {
	return dialect.ChatChunk{
		ID:      f.ID,
		Object:  dialect.ObjectChatCompletionChunk,
		Created: f.Created,
		Model:   f.Model,
		Choices: []dialect.ChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	}
}

// ResponsesTextDelta is the Responses event emitted for one Chat content delta.
func ResponsesTextDelta(text string) dialect.ResponsesEvent {
	return dialect.ResponsesEvent{Type: dialect.EventOutputTextDelta, Delta: text}
}
