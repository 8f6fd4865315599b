// Package stats records per-model request, error and token counts.
package stats

import (
	"github.com/tidwall/gjson"
)

// Sink receives statistics from every call. Implementations must be safe for concurrent use
// and must never feed anything back into request handling.
type Sink interface {
	RecordRequest(model string)
	RecordError(model string)
	RecordUsage(model string, usage Usage)
}

// Usage is a normalised token count.
type Usage struct {
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
	TotalTokens      int64 `json:"totalTokens"`
}

// ParseUsage reads a usage object in either dialect: prompt_tokens|input_tokens,
// completion_tokens|output_tokens, total_tokens|total, falling back to the sum.
func ParseUsage(raw []byte) (Usage, bool) {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return Usage{}, false
	}
	obj := gjson.ParseBytes(raw)
	if !obj.IsObject() {
		return Usage{}, false
	}
	u := Usage{
		PromptTokens:     firstNonZero(obj, "prompt_tokens", "input_tokens"),
		CompletionTokens: firstNonZero(obj, "completion_tokens", "output_tokens"),
		TotalTokens:      firstNonZero(obj, "total_tokens", "total"),
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u, true
}

// UsageFromPayload finds a usage object at "usage" or "response.usage" of a JSON document.
func UsageFromPayload(payload []byte) ([]byte, bool) {
	for _, path := range []string{"usage", "response.usage"} {
		if r := gjson.GetBytes(payload, path); r.IsObject() {
			return []byte(r.Raw), true
		}
	}
	return nil, false
}

// RecordUsageJSON parses raw and records it against model. It reports whether anything was recorded.
func RecordUsageJSON(sink Sink, model string, raw []byte) bool {
	u, ok := ParseUsage(raw)
	if !ok {
		return false
	}
	sink.RecordUsage(model, u)
	return true
}

func firstNonZero(obj gjson.Result, paths ...string) int64 {
	for _, p := range paths {
		if v := obj.Get(p).Int(); v != 0 {
			return v
		}
	}
	return 0
}

// Multi fans every record out to several sinks.
type Multi []Sink

func (m Multi) RecordRequest(model string) {
	for _, s := range m {
		s.RecordRequest(model)
	}
}

func (m Multi) RecordError(model string) {
	for _, s := range m {
		s.RecordError(model)
	}
}

func (m Multi) RecordUsage(model string, usage Usage) {
	for _, s := range m {
		s.RecordUsage(model, usage)
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordRequest(string) {}
func (Nop) RecordError(string) {}
func (Nop) RecordUsage(string, Usage) {}
