package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// MarshalCompact encodes v as compact JSON without escaping <, >, & into \u003c, etc.
// The importer reads .scm payloads literally, so HTML escaping would leak into
// component text.
func MarshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// json.Encoder.Encode always appends a newline.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ExtractObject returns the first balanced top-level JSON object in raw.
// Model output often wraps the payload in prose or code fences.
func ExtractObject(raw []byte) ([]byte, bool) {
	start := bytes.IndexByte(raw, '{')
	if start < 0 {
		return nil, false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return nil, false
}

// UnmarshalFlex tries to unmarshal JSON bytes into v with best effort:
// 1) Direct unmarshal
// 2) On failure, normalize and unmarshal (covers a payload that is itself a quoted JSON string)
// 3) On success, repair double-escaped HTML characters ("\\u003e") that an
//    upstream encoder left in string values; other literal "\\u" text is kept.
func UnmarshalFlex(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		norm, nerr := NormalizeJSONUnicode(raw)
		if nerr != nil {
			return err
		}
		return json.Unmarshal(norm, v)
	}
	if !doubleEscapedHTML.Match(raw) {
		return nil
	}
	var anyVal any
	if err := json.Unmarshal(raw, &anyVal); err != nil {
		return nil
	}
	fixed, err := MarshalCompact(mapStrings(anyVal, htmlEscapes.Replace))
	if err != nil {
		return nil
	}
	return json.Unmarshal(fixed, v)
}

// doubleEscapedHTML matches "\\u003c", "\\u003e" and "\\u0026" as they appear in
// raw JSON after a second round of escaping.
var doubleEscapedHTML = regexp.MustCompile(`\\\\u00(3[cCeE]|26)`)

var htmlEscapes = strings.NewReplacer(
	`\u003c`, "<", `\u003C`, "<",
	`\u003e`, ">", `\u003E`, ">",
	`\u0026`, "&",
)

// NormalizeJSONUnicode parses JSON bytes and recursively unescapes any remaining
// double-escaped unicode sequences (e.g. "\\u003e") inside string values.
func NormalizeJSONUnicode(raw []byte) ([]byte, error) {
	var anyVal any
	if err := json.Unmarshal(raw, &anyVal); err != nil {
		return nil, err
	}
	if s, ok := anyVal.(string); ok {
		var inner any
		if err := json.Unmarshal([]byte(s), &inner); err != nil {
			return nil, errors.New("jsonutil: cannot parse JSON payload")
		}
		anyVal = inner
	}
	return MarshalCompact(deepUnescape(anyVal))
}

// UnescapeUnicodeString converts literal escapes like `\u003e` into the characters they name.
func UnescapeUnicodeString(s string) (string, error) {
	esc := strings.ReplaceAll(s, `"`, `\"`)
	var out string
	if err := json.Unmarshal([]byte(`"`+esc+`"`), &out); err != nil {
		return "", err
	}
	return out, nil
}

func deepUnescape(v any) any {
	return mapStrings(v, func(x string) string {
		if !strings.Contains(x, `\u`) {
			return x
		}
		if s, err := UnescapeUnicodeString(x); err == nil {
			return s
		}
		return x
	})
}

// mapStrings applies fn to every string value (not keys) inside v.
func mapStrings(v any, fn func(string) string) any {
	switch x := v.(type) {
	case string:
		return fn(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = mapStrings(x[i], fn)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = mapStrings(vv, fn)
		}
		return out
	default:
		return v
	}
}
