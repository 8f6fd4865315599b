// Package shim holds the pure conversions between the Chat and Responses dialects.
package shim

import (
	"encoding/json"
	"strings"

	"github.com/pysugar/aoai-nexus/internal/dialect"
)

// Chat members with no Responses counterpart.
var droppedChatFields = []string{
	"stop",
	"n",
	"best_of",
	"stream_options",
	"serviceTier",
	"service_tier",
	"verbosity",
	"seed",
	"top_p",
	"top_k",
	"logprobs",
	"top_logprobs",
	"frequency_penalty",
	"presence_penalty",
	"logit_bias",
	"prediction",
	"modalities",
	"max_tokens",
	"max_completion_tokens",
}

// Responses members with no Chat counterpart.
var droppedResponsesFields = []string{
	"stream_options",
	"previous_response_id",
	"include",
	"store",
	"truncation",
}

var reasoningEfforts = map[string]struct{}{
	"low":    {},
	"medium": {},
	"high":   {},
	"xhigh":  {},
}

// ChatToResponses converts a Chat request for a Responses backend serving deployment.
// Responses-native members already present on the Chat body (input, instructions,
// max_output_tokens, reasoning, text) win over anything derived from Chat members.
func ChatToResponses(req *dialect.ChatRequest, deployment string) (*dialect.ResponsesRequest, error) {
	extra := req.Extra.Clone()
	extra.Delete(droppedChatFields...)
	extra.Delete("messages")

	out, err := dialect.ResponsesRequestFromFields(extra)
	if err != nil {
		return nil, err
	}
	out.Model = deployment
	out.Stream = req.Stream

	if out.Input == nil {
		if items := inputItems(req.Messages); len(items) > 0 {
			out.Input = &dialect.ResponsesInput{Items: items}
		} else {
			text := lastUserText(req.Messages)
			out.Input = &dialect.ResponsesInput{Text: &text}
		}
	}
	if out.Instructions == "" {
		out.Instructions = instructionText(req.Messages)
	}

	out.Tools = responsesTools(req.Tools)
	if len(out.Tools) == 0 {
		out.Tools = legacyFunctionTools(req.Functions)
	}

	choice := req.ToolChoice
	if req.FunctionCall != nil {
		choice = legacyToolChoice(*req.FunctionCall)
	}
	out.ToolChoice = responsesToolChoice(choice)

	if out.MaxOutputTokens == nil && !out.Extra.Has("max_output_tokens") {
		switch {
		case req.MaxCompletionTokens != nil:
			out.MaxOutputTokens = numberPtr(*req.MaxCompletionTokens)
		case req.MaxTokens != nil:
			out.MaxOutputTokens = numberPtr(*req.MaxTokens)
		}
	}

	if req.ReasoningEffort != nil {
		effort := strings.ToLower(strings.TrimSpace(*req.ReasoningEffort))
		if _, ok := reasoningEfforts[effort]; ok {
			if out.Reasoning == nil {
				out.Reasoning = dialect.Fields{}
			}
			if err := out.Reasoning.Set("effort", effort); err != nil {
				return nil, err
			}
		}
	}

	if format, ok := textFormat(req.ResponseFormat); ok {
		if out.Text == nil {
			out.Text = dialect.Fields{}
		}
		out.Text["format"] = format
	}

	return out, nil
}

// ResponsesToChat converts a Responses request for a Chat backend. The input collapses to a
// single user message; tool structure and instructions are not reconstructed.
func ResponsesToChat(req *dialect.ResponsesRequest, deployment string) (*dialect.ChatRequest, error) {
	extra := req.Extra.Clone()
	extra.Delete(droppedResponsesFields...)

	out := &dialect.ChatRequest{
		Model:  deployment,
		Stream: req.Stream,
	}
	if raw, ok := extra["messages"]; ok && firstNonSpace(raw) == '[' {
		delete(extra, "messages")
		if err := json.Unmarshal(raw, &out.Messages); err != nil {
			return nil, err
		}
	}
	if out.Messages == nil {
		text := ""
		if req.Input != nil {
			text = req.Input.PlainText()
		}
		out.Messages = []dialect.ChatMessage{{Role: "user", Content: dialect.TextContent(text)}}
	}
	out.Extra = extra
	return out, nil
}

func inputItems(messages []dialect.ChatMessage) []dialect.InputItem {
	items := make([]dialect.InputItem, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "", "system", "developer":
			continue
		}
		if m.Role == "assistant" {
			for _, call := range m.ToolCalls {
				if call.Type != "function" {
					continue
				}
				name := call.FunctionName()
				if name == "" {
					continue
				}
				callID := call.ID
				if callID == "" {
					callID = call.CallID
				}
				args := call.FunctionArguments()
				items = append(items, dialect.InputItem{
					Type:      dialect.ItemFunctionCall,
					CallID:    callID,
					Name:      name,
					Arguments: &args,
				})
			}
		}
		if m.Role == "tool" && m.ToolCallID != "" && m.Content.IsString() {
			output := *m.Content.Text
			items = append(items, dialect.InputItem{
				Type:   dialect.ItemFunctionCallOutput,
				CallID: m.ToolCallID,
				Output: &output,
			})
			continue
		}
		if m.Role == "user" || m.Role == "assistant" {
			content := dialect.TextContent(m.Content.PlainText())
			items = append(items, dialect.InputItem{
				Type:    dialect.ItemMessage,
				Role:    m.Role,
				Content: &content,
			})
		}
	}
	return items
}

func lastUserText(messages []dialect.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content.PlainText()
		}
	}
	return ""
}

func instructionText(messages []dialect.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if role := messages[i].Role; role == "system" || role == "developer" {
			return messages[i].Content.PlainText()
		}
	}
	return ""
}

func responsesTools(tools []dialect.ChatTool) []dialect.ResponsesTool {
	out := make([]dialect.ResponsesTool, 0, len(tools))
	for _, tool := range tools {
		switch {
		case tool.Type == "function" && tool.Function != nil:
			if tool.Function.Name == "" {
				continue
			}
			out = append(out, flatTool(*tool.Function))
		case tool.Type == "function" && tool.Flat.Name != "":
			out = append(out, flatTool(tool.Flat))
		case tool.Raw != nil:
			out = append(out, dialect.ResponsesTool{Type: tool.Type, Raw: tool.Raw})
		}
	}
	return out
}

func legacyFunctionTools(functions []dialect.FunctionDef) []dialect.ResponsesTool {
	out := make([]dialect.ResponsesTool, 0, len(functions))
	for _, fn := range functions {
		if fn.Name == "" {
			continue
		}
		out = append(out, dialect.ResponsesTool{
			Type:        "function",
			Name:        fn.Name,
			Description: fn.Description,
			Parameters:  fn.Parameters,
		})
	}
	return out
}

func flatTool(fn dialect.FunctionDef) dialect.ResponsesTool {
	return dialect.ResponsesTool{
		Type:        "function",
		Name:        fn.Name,
		Description: fn.Description,
		Parameters:  fn.Parameters,
		Strict:      fn.Strict,
	}
}

// legacyToolChoice maps function_call: "auto"/"none" keep their mode, {name} selects a function.
func legacyToolChoice(fc dialect.ToolChoice) *dialect.ToolChoice {
	if fc.Mode != "" {
		return &dialect.ToolChoice{Mode: fc.Mode}
	}
	return &dialect.ToolChoice{Type: "function", Name: fc.Name}
}

// responsesToolChoice keeps strings and reduces structured choices to {type:"function", name}.
// Anything else is dropped.
func responsesToolChoice(choice *dialect.ToolChoice) *dialect.ToolChoice {
	switch {
	case choice == nil:
		return nil
	case choice.Mode != "":
		return &dialect.ToolChoice{Mode: choice.Mode}
	case choice.Type == "function" && choice.Name != "":
		return &dialect.ToolChoice{Type: "function", Name: choice.Name}
	default:
		return nil
	}
}

// textFormat turns response_format ("json_object" or {type:...}) into a text.format value.
func textFormat(raw json.RawMessage) (json.RawMessage, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	switch firstNonSpace(raw) {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return nil, false
		}
		encoded, err := json.Marshal(map[string]string{"type": s})
		if err != nil {
			return nil, false
		}
		return encoded, true
	case '{':
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil || probe.Type == "" {
			return nil, false
		}
		return raw, true
	}
	return nil, false
}

func firstNonSpace(raw []byte) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}

func numberPtr(v json.Number) *json.Number {
	return &v
}
