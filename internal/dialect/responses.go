package dialect

import (
	"encoding/json"
	"strings"
)

// ResponsesRequest is a Responses API request body.
type ResponsesRequest struct {
	Model           string
	Input           *ResponsesInput
	Instructions    string
	Tools           []ResponsesTool
	ToolChoice      *ToolChoice
	MaxOutputTokens *json.Number
	Reasoning       Fields
	Text            Fields
	Stream          *bool
	Extra           Fields
}

func (r *ResponsesRequest) UnmarshalJSON(data []byte) error {
	f, err := decodeObject(data)
	if err != nil {
		return err
	}
	parsed, err := ResponsesRequestFromFields(f)
	if err != nil {
		return err
	}
	*r = *parsed
	return nil
}

// ResponsesRequestFromFields lifts the Responses members out of f; the rest become Extra.
// f is consumed.
func ResponsesRequestFromFields(f Fields) (*ResponsesRequest, error) {
	r := &ResponsesRequest{}
	for _, step := range []struct {
		key string
		dst any
	}{
		{"model", &r.Model},
		{"input", &r.Input},
		{"instructions", &r.Instructions},
		{"tools", &r.Tools},
		{"tool_choice", &r.ToolChoice},
		{"stream", &r.Stream},
	} {
		if err := f.take(step.key, step.dst); err != nil {
			return nil, err
		}
	}
	f.takeNumber("max_output_tokens", &r.MaxOutputTokens)
	// reasoning/text that are not objects are left in Extra untouched.
	for _, obj := range []struct {
		key string
		dst *Fields
	}{
		{"reasoning", &r.Reasoning},
		{"text", &r.Text},
	} {
		raw, ok := f[obj.key]
		if !ok || firstByte(raw) != '{' {
			continue
		}
		var nested Fields
		if err := json.Unmarshal(raw, &nested); err == nil {
			delete(f, obj.key)
			*obj.dst = nested
		}
	}
	if f == nil {
		f = Fields{}
	}
	r.Extra = f
	return r, nil
}

func (r ResponsesRequest) MarshalJSON() ([]byte, error) {
	return encodeObject(r.Extra,
		member{"model", r.Model, r.Model != ""},
		member{"input", r.Input, r.Input != nil},
		member{"instructions", r.Instructions, r.Instructions != ""},
		member{"tools", r.Tools, len(r.Tools) > 0},
		member{"tool_choice", r.ToolChoice, r.ToolChoice != nil},
		member{"max_output_tokens", r.MaxOutputTokens, r.MaxOutputTokens != nil},
		member{"reasoning", r.Reasoning, r.Reasoning != nil},
		member{"text", r.Text, r.Text != nil},
		member{"stream", r.Stream, r.Stream != nil},
	)
}

// ResponsesInput is a plain string or an ordered list of input items.
type ResponsesInput struct {
	Text  *string
	Items []InputItem
}

func (in *ResponsesInput) UnmarshalJSON(data []byte) error {
	*in = ResponsesInput{}
	switch firstByte(data) {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		in.Text = &s
	case '[':
		return json.Unmarshal(data, &in.Items)
	case '{':
		var item InputItem
		if err := json.Unmarshal(data, &item); err != nil {
			return err
		}
		in.Items = []InputItem{item}
	}
	return nil
}

func (in ResponsesInput) MarshalJSON() ([]byte, error) {
	if in.Text != nil {
		return json.Marshal(*in.Text)
	}
	if in.Items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(in.Items)
}

// PlainText joins the text of every item with newlines. Items without text are skipped.
func (in ResponsesInput) PlainText() string {
	if in.Text != nil {
		return *in.Text
	}
	texts := make([]string, 0, len(in.Items))
	for _, item := range in.Items {
		if text, ok := item.PlainText(); ok {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, "\n")
}

// Input item types.
const (
	ItemMessage            = "message"
	ItemFunctionCall       = "function_call"
	ItemFunctionCallOutput = "function_call_output"
)

// InputItem is one element of input: a message, a function call, a function call output,
// or a bare string. Items decoded from a caller are re-encoded verbatim.
type InputItem struct {
	Type      string   `json:"type,omitempty"`
	Role      string   `json:"role,omitempty"`
	Content   *Content `json:"content,omitempty"`
	CallID    string   `json:"call_id,omitempty"`
	Name      string   `json:"name,omitempty"`
	Arguments *string  `json:"arguments,omitempty"`
	Output    *string  `json:"output,omitempty"`
	Text      *string  `json:"text,omitempty"`

	bare *string
	raw  json.RawMessage
}

type inputItemAlias InputItem

func (it *InputItem) UnmarshalJSON(data []byte) error {
	*it = InputItem{}
	if isNull(data) {
		return nil
	}
	if firstByte(data) == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		it.bare = &s
		return nil
	}
	var obj struct {
		inputItemAlias
		Arguments json.RawMessage `json:"arguments"`
		Output    json.RawMessage `json:"output"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*it = InputItem(obj.inputItemAlias)
	for _, m := range []struct {
		raw json.RawMessage
		dst **string
	}{
		{obj.Arguments, &it.Arguments},
		{obj.Output, &it.Output},
	} {
		if isNull(m.raw) {
			continue
		}
		text, err := argumentsText(m.raw)
		if err != nil {
			return err
		}
		*m.dst = &text
	}
	it.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (it InputItem) MarshalJSON() ([]byte, error) {
	switch {
	case it.raw != nil:
		return it.raw, nil
	case it.bare != nil:
		return json.Marshal(*it.bare)
	default:
		return json.Marshal(inputItemAlias(it))
	}
}

// PlainText returns a bare string, the text member, or the content flattened to text.
func (it InputItem) PlainText() (string, bool) {
	switch {
	case it.bare != nil:
		return *it.bare, true
	case it.Text != nil:
		return *it.Text, true
	case it.Content != nil && it.Content.IsString():
		return *it.Content.Text, true
	case it.Content != nil && len(it.Content.Parts) > 0:
		var b strings.Builder
		for _, p := range it.Content.Parts {
			if p.Text != nil {
				b.WriteString(*p.Text)
			}
		}
		return b.String(), true
	}
	return "", false
}

// ResponsesTool is a flat tools entry. Non-function tools are carried verbatim in Raw.
type ResponsesTool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      *bool           `json:"strict,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type responsesToolAlias ResponsesTool

func (t *ResponsesTool) UnmarshalJSON(data []byte) error {
	var alias responsesToolAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*t = ResponsesTool(alias)
	t.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (t ResponsesTool) MarshalJSON() ([]byte, error) {
	if t.Raw != nil {
		return t.Raw, nil
	}
	return json.Marshal(responsesToolAlias(t))
}

// ResponsesResponse is a non-stream Responses API response.
type ResponsesResponse struct {
	ID         string          `json:"id,omitempty"`
	Object     string          `json:"object,omitempty"`
	Created    int64           `json:"created_at,omitempty"`
	Model      string          `json:"model,omitempty"`
	OutputText *string         `json:"output_text,omitempty"`
	Output     []OutputItem    `json:"output,omitempty"`
	Usage      json.RawMessage `json:"usage,omitempty"`
}

// OutputItem is one element of a response's output list.
type OutputItem struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments string          `json:"arguments,omitempty"`
	Role      string          `json:"role,omitempty"`
	Content   []OutputContent `json:"content,omitempty"`
}

type OutputContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ResponsesEvent is one streaming event. Only the members the translators read are modelled.
type ResponsesEvent struct {
	Type     string          `json:"type"`
	Delta    string          `json:"delta,omitempty"`
	ItemID   string          `json:"item_id,omitempty"`
	Item     *OutputItem     `json:"item,omitempty"`
	Response *EventResponse  `json:"response,omitempty"`
	Usage    json.RawMessage `json:"usage,omitempty"`
}

type EventResponse struct {
	ID    string          `json:"id,omitempty"`
	Usage json.RawMessage `json:"usage,omitempty"`
}

// Responses streaming event types.
const (
	EventOutputTextDelta        = "response.output_text.delta"
	EventOutputTextDone         = "response.output_text.done"
	EventOutputItemAdded        = "response.output_item.added"
	EventOutputItemDone         = "response.output_item.done"
	EventFunctionArgumentsDelta = "response.function_call_arguments.delta"
	EventCompleted              = "response.completed"

	ObjectResponse = "response"
)
