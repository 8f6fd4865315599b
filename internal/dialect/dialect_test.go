package dialect

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRequestKeepsUnknownFields(t *testing.T) {
	raw := `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}],"temperature":0.2,"user":"u-1","metadata":{"a":1}}`

	var req ChatRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	assert.Equal(t, "gpt-4o", req.Model)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "hi", req.Messages[0].Content.PlainText())
	assert.Contains(t, req.Extra, "temperature")
	assert.NotContains(t, req.Extra, "model")

	out, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestChatRequestRejectsNonObject(t *testing.T) {
	var req ChatRequest
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &req))
	assert.Error(t, json.Unmarshal([]byte(`null`), &req))
}

func TestChatRequestTokenLimits(t *testing.T) {
	cases := []struct {
		raw      string
		want     string
		leftover bool
	}{
		{`{"max_tokens":50}`, "50", false},
		{`{"max_tokens":50.0}`, "50", false},
		{`{"max_tokens":5e1}`, "50", false},
		{`{"max_tokens":50.5}`, "50.5", false},
		{`{"max_tokens":"50"}`, "", true},
		{`{"max_tokens":null}`, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			var req ChatRequest
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &req))
			if tc.want == "" {
				assert.Nil(t, req.MaxTokens)
			} else {
				require.NotNil(t, req.MaxTokens)
				assert.Equal(t, tc.want, req.MaxTokens.String())
			}
			assert.Equal(t, tc.leftover, req.Extra.Has("max_tokens"))
		})
	}
}

func TestToolCallArgumentShapes(t *testing.T) {
	var msg ChatMessage
	require.NoError(t, json.Unmarshal([]byte(`{"role":"assistant","name":{"n":1},"tool_calls":[
		{"id":"a","type":"function","function":{"name":"f","arguments":"{\"x\":1}"}},
		{"id":"b","type":"function","function":{"name":"f","arguments":{"x": [1, 2]}}},
		{"id":"c","type":"function","name":"g","arguments":42},
		{"id":"d","type":"function","function":{"name":"f","arguments":null}}
	]}`), &msg))
	require.Len(t, msg.ToolCalls, 4)
	assert.Equal(t, `{"x":1}`, msg.ToolCalls[0].FunctionArguments())
	assert.Equal(t, `{"x":[1,2]}`, msg.ToolCalls[1].FunctionArguments())
	assert.Equal(t, "g", msg.ToolCalls[2].FunctionName())
	assert.Equal(t, "42", msg.ToolCalls[2].FunctionArguments())
	assert.Equal(t, "", msg.ToolCalls[3].FunctionArguments())
	assert.JSONEq(t, `{"n":1}`, string(msg.Name))
}

func TestContentShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"string", `"hello"`, "hello"},
		{"parts", `[{"type":"text","text":"a"},{"type":"image_url","image_url":{"url":"x"}},"b",{"type":"input_text","text":"c"}]`, "abc"},
		{"object", `{"text":"obj"}`, "obj"},
		{"null", `null`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var c Content
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &c))
			assert.Equal(t, tc.want, c.PlainText())
		})
	}
}

func TestContentPartsReencodeVerbatim(t *testing.T) {
	raw := `[{"type":"image_url","image_url":{"url":"data:x","detail":"low"}},"bare"]`
	var c Content
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestToolChoiceForms(t *testing.T) {
	cases := []struct {
		raw  string
		want ToolChoice
		out  string
	}{
		{`"auto"`, ToolChoice{Mode: "auto"}, `"auto"`},
		{`{"type":"function","function":{"name":"lookup"}}`, ToolChoice{Type: "function", Name: "lookup"}, `{"type":"function","name":"lookup"}`},
		{`{"type":"function","name":"flat"}`, ToolChoice{Type: "function", Name: "flat"}, `{"type":"function","name":"flat"}`},
		{`{"name":"legacy"}`, ToolChoice{Name: "legacy"}, `{"type":"","name":"legacy"}`},
	}
	for _, tc := range cases {
		var c ToolChoice
		require.NoError(t, json.Unmarshal([]byte(tc.raw), &c))
		assert.Equal(t, tc.want, c)
		out, err := json.Marshal(c)
		require.NoError(t, err)
		assert.JSONEq(t, tc.out, string(out))
	}
}

func TestChatToolForms(t *testing.T) {
	var tools []ChatTool
	require.NoError(t, json.Unmarshal([]byte(`[
		{"type":"function","function":{"name":"a","parameters":{"type":"object"}}},
		{"type":"function","name":"b","description":"flat"},
		{"type":"code_interpreter"}
	]`), &tools))
	require.Len(t, tools, 3)
	require.NotNil(t, tools[0].Function)
	assert.Equal(t, "a", tools[0].Function.Name)
	assert.Nil(t, tools[1].Function)
	assert.Equal(t, "b", tools[1].Flat.Name)
	assert.Equal(t, "flat", tools[1].Flat.Description)
	assert.Equal(t, "code_interpreter", tools[2].Type)
}

func TestResponsesRequestRoundTrip(t *testing.T) {
	raw := `{"model":"o3","input":[{"role":"user","content":[{"type":"input_text","text":"hi"}]},"plain"],"reasoning":{"effort":"low","summary":"auto"},"store":false}`
	var req ResponsesRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))

	require.NotNil(t, req.Input)
	require.Len(t, req.Input.Items, 2)
	assert.Equal(t, "hi\nplain", req.Input.PlainText())
	assert.JSONEq(t, `"low"`, string(req.Reasoning["effort"]))
	assert.Contains(t, req.Extra, "store")

	out, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestResponsesInputString(t *testing.T) {
	var req ResponsesRequest
	require.NoError(t, json.Unmarshal([]byte(`{"input":"just text"}`), &req))
	assert.Equal(t, "just text", req.Input.PlainText())
}

func TestResponsesInputItemTextPrecedence(t *testing.T) {
	var in ResponsesInput
	require.NoError(t, json.Unmarshal([]byte(`[{"text":"t","content":"c"},{"content":"only"},{"type":"function_call","name":"x"}]`), &in))
	assert.Equal(t, "t\nonly", in.PlainText())
}

func TestInputItemNonStringArgumentsAndOutput(t *testing.T) {
	raw := `[{"type":"function_call","call_id":"c","name":"f","arguments":{"a": 1}},{"type":"function_call_output","call_id":"c","output":[{"type":"output_text","text":"ok"}]}]`
	var in ResponsesInput
	require.NoError(t, json.Unmarshal([]byte(raw), &in))
	require.Len(t, in.Items, 2)
	require.NotNil(t, in.Items[0].Arguments)
	assert.Equal(t, `{"a":1}`, *in.Items[0].Arguments)
	require.NotNil(t, in.Items[1].Output)
	assert.Equal(t, `[{"type":"output_text","text":"ok"}]`, *in.Items[1].Output)

	out, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestResponsesEventDecoding(t *testing.T) {
	var evt ResponsesEvent
	require.NoError(t, json.Unmarshal([]byte(`{"type":"response.completed","response":{"id":"resp_1","usage":{"input_tokens":3,"output_tokens":4},"output":[{"type":"message","content":[{"type":"output_text","text":"x","annotations":[]}]}]}}`), &evt))
	assert.Equal(t, EventCompleted, evt.Type)
	require.NotNil(t, evt.Response)
	assert.JSONEq(t, `{"input_tokens":3,"output_tokens":4}`, string(evt.Response.Usage))
}
