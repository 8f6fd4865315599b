package dialect

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ChatRequest is a Chat Completions request body.
type ChatRequest struct {
	Model               string
	Messages            []ChatMessage
	Tools               []ChatTool
	Functions           []FunctionDef
	ToolChoice          *ToolChoice
	FunctionCall        *ToolChoice
	MaxTokens           *json.Number
	MaxCompletionTokens *json.Number
	ResponseFormat      json.RawMessage
	ReasoningEffort     *string
	Stream              *bool
	Extra               Fields
}

func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	f, err := decodeObject(data)
	if err != nil {
		return err
	}
	*r = ChatRequest{}
	for _, step := range []struct {
		key string
		dst any
	}{
		{"model", &r.Model},
		{"messages", &r.Messages},
		{"tools", &r.Tools},
		{"functions", &r.Functions},
		{"tool_choice", &r.ToolChoice},
		{"function_call", &r.FunctionCall},
		{"reasoning_effort", &r.ReasoningEffort},
		{"stream", &r.Stream},
	} {
		if err := f.take(step.key, step.dst); err != nil {
			return err
		}
	}
	f.takeNumber("max_tokens", &r.MaxTokens)
	f.takeNumber("max_completion_tokens", &r.MaxCompletionTokens)
	if raw, ok := f["response_format"]; ok {
		delete(f, "response_format")
		if !isNull(raw) {
			r.ResponseFormat = raw
		}
	}
	r.Extra = f
	return nil
}

func (r ChatRequest) MarshalJSON() ([]byte, error) {
	return encodeObject(r.Extra,
		member{"model", r.Model, r.Model != ""},
		member{"messages", r.Messages, r.Messages != nil},
		member{"tools", r.Tools, len(r.Tools) > 0},
		member{"functions", r.Functions, len(r.Functions) > 0},
		member{"tool_choice", r.ToolChoice, r.ToolChoice != nil},
		member{"function_call", r.FunctionCall, r.FunctionCall != nil},
		member{"max_tokens", r.MaxTokens, r.MaxTokens != nil},
		member{"max_completion_tokens", r.MaxCompletionTokens, r.MaxCompletionTokens != nil},
		member{"response_format", r.ResponseFormat, len(r.ResponseFormat) > 0},
		member{"reasoning_effort", r.ReasoningEffort, r.ReasoningEffort != nil},
		member{"stream", r.Stream, r.Stream != nil},
	)
}

// ChatMessage is one entry of messages.
// Name is kept as raw JSON since callers send non-string names.
type ChatMessage struct {
	Role       string          `json:"role"`
	Content    Content         `json:"content"`
	Name       json.RawMessage `json:"name,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// Content is either a plain string or an ordered list of typed parts.
type Content struct {
	Text  *string
	Parts []ContentPart
}

// TextContent wraps s as string content.
func TextContent(s string) Content {
	return Content{Text: &s}
}

func (c *Content) UnmarshalJSON(data []byte) error {
	*c = Content{}
	if isNull(data) {
		return nil
	}
	switch firstByte(data) {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		c.Text = &s
	case '[':
		return json.Unmarshal(data, &c.Parts)
	case '{':
		var obj struct {
			Text *string `json:"text"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		c.Text = obj.Text
	}
	return nil
}

func (c Content) MarshalJSON() ([]byte, error) {
	switch {
	case c.Text != nil:
		return json.Marshal(*c.Text)
	case c.Parts != nil:
		return json.Marshal(c.Parts)
	default:
		return []byte("null"), nil
	}
}

// IsString reports whether the content was given as a plain string.
func (c Content) IsString() bool {
	return c.Text != nil
}

// PlainText flattens the content, keeping only text-bearing parts.
func (c Content) PlainText() string {
	if c.Text != nil {
		return *c.Text
	}
	var b strings.Builder
	for _, p := range c.Parts {
		if text, ok := p.TextValue(); ok {
			b.WriteString(text)
		}
	}
	return b.String()
}

// ContentPart is one element of array content. Bare string parts are allowed.
type ContentPart struct {
	Type string
	Text *string
	Bare bool
	Raw  json.RawMessage
}

func (p *ContentPart) UnmarshalJSON(data []byte) error {
	*p = ContentPart{}
	if isNull(data) {
		return nil
	}
	if firstByte(data) == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		p.Bare, p.Text = true, &s
		return nil
	}
	var obj struct {
		Type string          `json:"type"`
		Text json.RawMessage `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	p.Type = obj.Type
	p.Raw = append(json.RawMessage(nil), data...)
	if firstByte(obj.Text) == '"' {
		var s string
		if err := json.Unmarshal(obj.Text, &s); err == nil {
			p.Text = &s
		}
	}
	return nil
}

func (p ContentPart) MarshalJSON() ([]byte, error) {
	switch {
	case p.Raw != nil:
		return p.Raw, nil
	case p.Bare && p.Text != nil:
		return json.Marshal(*p.Text)
	default:
		return json.Marshal(struct {
			Type string  `json:"type"`
			Text *string `json:"text,omitempty"`
		}{p.Type, p.Text})
	}
}

// TextValue returns the text of bare, "text" and "input_text" parts.
func (p ContentPart) TextValue() (string, bool) {
	if p.Text == nil {
		return "", false
	}
	if p.Bare || p.Type == "text" || p.Type == "input_text" {
		return *p.Text, true
	}
	return "", false
}

// ToolCall covers both the nested {function:{name,arguments}} form and the flat legacy form.
// Index is only set on streaming deltas.
type ToolCall struct {
	Index     *int          `json:"index,omitempty"`
	ID        string        `json:"id,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	Type      string        `json:"type,omitempty"`
	Function  *FunctionCall `json:"function,omitempty"`
	Name      string        `json:"name,omitempty"`
	Arguments string        `json:"arguments,omitempty"`
}

type toolCallAlias ToolCall

func (c *ToolCall) UnmarshalJSON(data []byte) error {
	var obj struct {
		toolCallAlias
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	args, err := argumentsText(obj.Arguments)
	if err != nil {
		return err
	}
	*c = ToolCall(obj.toolCallAlias)
	c.Arguments = args
	return nil
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func (c *FunctionCall) UnmarshalJSON(data []byte) error {
	var obj struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	args, err := argumentsText(obj.Arguments)
	if err != nil {
		return err
	}
	c.Name, c.Arguments = obj.Name, args
	return nil
}

// argumentsText returns string arguments unquoted and any other JSON value as its compact text.
func argumentsText(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	if firstByte(raw) == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FunctionName prefers the nested function name.
func (c ToolCall) FunctionName() string {
	if c.Function != nil && c.Function.Name != "" {
		return c.Function.Name
	}
	return c.Name
}

// FunctionArguments prefers the nested arguments.
func (c ToolCall) FunctionArguments() string {
	if c.Function != nil && c.Function.Arguments != "" {
		return c.Function.Arguments
	}
	return c.Arguments
}

// FunctionDef describes a callable function.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      *bool           `json:"strict,omitempty"`
}

// ChatTool is a tools entry: {type:"function", function:{...}}, a flat function, or any other tool kind.
type ChatTool struct {
	Type     string
	Function *FunctionDef
	Flat     FunctionDef
	Raw      json.RawMessage
}

func (t *ChatTool) UnmarshalJSON(data []byte) error {
	*t = ChatTool{}
	if isNull(data) {
		return nil
	}
	var obj struct {
		Type     string       `json:"type"`
		Function *FunctionDef `json:"function"`
		FunctionDef
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	t.Type, t.Function, t.Flat = obj.Type, obj.Function, obj.FunctionDef
	t.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (t ChatTool) MarshalJSON() ([]byte, error) {
	if t.Raw != nil {
		return t.Raw, nil
	}
	return json.Marshal(struct {
		Type     string       `json:"type"`
		Function *FunctionDef `json:"function,omitempty"`
	}{t.Type, t.Function})
}

// ToolChoice is a mode string ("auto", "none", "required") or a named function.
// It accepts {type,function:{name}}, {type,name} and the legacy {name} selector.
type ToolChoice struct {
	Mode string
	Type string
	Name string
}

func (c *ToolChoice) UnmarshalJSON(data []byte) error {
	*c = ToolChoice{}
	if isNull(data) {
		return nil
	}
	if firstByte(data) == '"' {
		return json.Unmarshal(data, &c.Mode)
	}
	var obj struct {
		Type     string `json:"type"`
		Name     string `json:"name"`
		Function *struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	c.Type, c.Name = obj.Type, obj.Name
	if obj.Function != nil && obj.Function.Name != "" {
		c.Name = obj.Function.Name
	}
	return nil
}

// MarshalJSON writes the Responses form: a string, or {type, name}.
func (c ToolChoice) MarshalJSON() ([]byte, error) {
	if c.Mode != "" {
		return json.Marshal(c.Mode)
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		Name string `json:"name,omitempty"`
	}{c.Type, c.Name})
}

// ChatCompletion is a non-stream Chat Completions response.
type ChatCompletion struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"`
	Created int64           `json:"created"`
	Model   string          `json:"model"`
	Choices []ChatChoice    `json:"choices"`
	Usage   json.RawMessage `json:"usage,omitempty"`
}

type ChatChoice struct {
	Index        int                  `json:"index"`
	Message      *ChatResponseMessage `json:"message,omitempty"`
	Text         *string              `json:"text,omitempty"`
	FinishReason *string              `json:"finish_reason"`
}

type ChatResponseMessage struct {
	Role      string     `json:"role"`
	Content   *string    `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ChatChunk is one chat.completion.chunk streaming frame.
type ChatChunk struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"`
	Created int64           `json:"created"`
	Model   string          `json:"model"`
	Choices []ChunkChoice   `json:"choices"`
	Usage   json.RawMessage `json:"usage,omitempty"`
}

type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type ChunkDelta struct {
	Role      string     `json:"role,omitempty"`
	Content   *string    `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

const (
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"

	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
)

func firstByte(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}
