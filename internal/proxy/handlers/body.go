package handlers

import (
	"bytes"
	"errors"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var errNotObject = errors.New("request body must be a JSON object")

// SanitizeBody drops null, "undefined" and "[undefined]" values at any depth, then
// removes stream_options. Key order and number text are preserved.
func SanitizeBody(raw []byte) ([]byte, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("request body is not valid JSON")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, errNotObject
	}
	var buf bytes.Buffer
	buf.Grow(len(raw))
	prune(root, &buf)
	out, err := sjson.DeleteBytes(buf.Bytes(), "stream_options")
	if err != nil {
		return nil, err
	}
	return out, nil
}

func meaningless(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null:
		return true
	case gjson.String:
		return v.Str == "undefined" || v.Str == "[undefined]"
	}
	return false
}

func prune(v gjson.Result, buf *bytes.Buffer) {
	switch {
	case v.IsObject():
		buf.WriteByte('{')
		first := true
		v.ForEach(func(key, val gjson.Result) bool {
			if meaningless(val) {
				return true
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			buf.WriteString(key.Raw)
			buf.WriteByte(':')
			prune(val, buf)
			return true
		})
		buf.WriteByte('}')
	case v.IsArray():
		buf.WriteByte('[')
		first := true
		v.ForEach(func(_, val gjson.Result) bool {
			if meaningless(val) {
				return true
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			prune(val, buf)
			return true
		})
		buf.WriteByte(']')
	default:
		buf.WriteString(v.Raw)
	}
}
