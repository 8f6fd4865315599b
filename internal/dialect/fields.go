// Package dialect models the two OpenAI-style wire shapes, Chat Completions and Responses,
// as explicit Go types. Members a type does not model are kept in Extra and written back
// verbatim, so translation never loses caller fields it does not understand.
package dialect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Fields is a JSON object keyed by member name.
type Fields map[string]json.RawMessage

// Clone returns a shallow copy; raw values are immutable so sharing them is safe.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Delete removes the given members.
func (f Fields) Delete(keys ...string) {
	for _, k := range keys {
		delete(f, k)
	}
}

// Has reports whether key is present with a non-null value.
func (f Fields) Has(key string) bool {
	raw, ok := f[key]
	return ok && !isNull(raw)
}

// Set marshals v into key.
func (f Fields) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	f[key] = raw
	return nil
}

// take decodes key into dst and removes it from f. Null or missing values leave dst untouched.
func (f Fields) take(key string, dst any) error {
	raw, ok := f[key]
	if !ok {
		return nil
	}
	delete(f, key)
	if isNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %q: %w", key, err)
	}
	return nil
}

// maxExactInt is the largest integer a float64 holds exactly.
const maxExactInt = 1 << 53

// takeNumber lifts a numeric member into dst. Integral values such as 50.0 are rewritten
// as 50; other numbers keep their spelling. Non-numeric values stay in f.
func (f Fields) takeNumber(key string, dst **json.Number) {
	raw, ok := f[key]
	if !ok {
		return
	}
	if isNull(raw) {
		delete(f, key)
		return
	}
	if c := firstByte(raw); c != '-' && (c < '0' || c > '9') {
		return
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return
	}
	if v, err := n.Float64(); err == nil && v == math.Trunc(v) && math.Abs(v) <= maxExactInt {
		n = json.Number(strconv.FormatInt(int64(v), 10))
	}
	delete(f, key)
	*dst = &n
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func decodeObject(data []byte) (Fields, error) {
	var f Fields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("expected a JSON object")
	}
	return f, nil
}

// member is one typed value destined for an encoded object.
type member struct {
	key   string
	value any
	set   bool
}

func encodeObject(extra Fields, members ...member) ([]byte, error) {
	out := extra.Clone()
	for _, m := range members {
		if !m.set {
			continue
		}
		if err := out.Set(m.key, m.value); err != nil {
			return nil, err
		}
	}
	return json.Marshal(map[string]json.RawMessage(out))
}
