package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalCompactKeepsHTMLCharacters(t *testing.T) {
	out, err := MarshalCompact(map[string]string{"Text": "a < b & c"})
	require.NoError(t, err)
	require.Equal(t, `{"Text":"a < b & c"}`, string(out))
}

func TestExtractObject(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{name: "bare", in: `{"a":1}`, want: `{"a":1}`, ok: true},
		{name: "prose", in: "Sure! Here it is:\n```json\n{\"a\":{\"b\":2}}\n```\nEnjoy.", want: `{"a":{"b":2}}`, ok: true},
		{name: "braces in strings", in: `x {"s":"} {","n":1} y {"z":0}`, want: `{"s":"} {","n":1}`, ok: true},
		{name: "escaped quote", in: `{"s":"a\"}b"}`, want: `{"s":"a\"}b"}`, ok: true},
		{name: "none", in: "no json here", ok: false},
		{name: "unbalanced", in: `{"a":1`, ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractObject([]byte(tc.in))
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				require.Equal(t, tc.want, string(got))
			}
		})
	}
}

func TestUnmarshalFlexDoubleEscaped(t *testing.T) {
	var out struct {
		Text string `json:"text"`
	}
	require.NoError(t, UnmarshalFlex([]byte(`{"text":"a \\u003e b"}`), &out))
	require.Equal(t, "a > b", out.Text)
}

func TestUnmarshalFlexQuotedPayload(t *testing.T) {
	var out struct {
		N int `json:"n"`
	}
	require.NoError(t, UnmarshalFlex([]byte(`"{\"n\":3}"`), &out))
	require.Equal(t, 3, out.N)
}

func TestUnmarshalFlexKeepsLiteralEscapes(t *testing.T) {
	var out struct {
		Path string `json:"path"`
		Text string `json:"text"`
	}
	require.NoError(t, UnmarshalFlex([]byte(`{"path":"C:\\u0041"}`), &out))
	require.Equal(t, `C:\u0041`, out.Path)

	out.Path = ""
	require.NoError(t, UnmarshalFlex([]byte(`{"path":"C:\\u0041","text":"a \\u0026 b"}`), &out))
	require.Equal(t, `C:\u0041`, out.Path)
	require.Equal(t, "a & b", out.Text)
}

func TestUnmarshalFlexReportsBadJSON(t *testing.T) {
	var out map[string]any
	require.Error(t, UnmarshalFlex([]byte(`{"a":`), &out))
}
