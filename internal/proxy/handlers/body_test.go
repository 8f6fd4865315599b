package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeBody(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "drops meaningless values at any depth",
			in:   `{"a":null,"b":"undefined","c":{"d":"[undefined]","e":1},"f":[1,null,"undefined",{"g":null}]}`,
			want: `{"c":{"e":1},"f":[1,{}]}`,
		},
		{
			name: "removes stream_options",
			in:   `{"model":"m","stream":true,"stream_options":{"include_usage":true}}`,
			want: `{"model":"m","stream":true}`,
		},
		{
			name: "keeps key order and number text",
			in:   `{"z":1.50,"a":12345678901234567890,"s":"undefinedX"}`,
			want: `{"z":1.50,"a":12345678901234567890,"s":"undefinedX"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeBody([]byte(tt.in))
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestSanitizeBodyRejects(t *testing.T) {
	for _, in := range []string{``, `{`, `[]`, `"text"`, `42`} {
		_, err := SanitizeBody([]byte(in))
		assert.Error(t, err, in)
	}
}
