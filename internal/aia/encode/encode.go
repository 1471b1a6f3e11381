// Package encode maps typed property values to App Inventor's textual form.
package encode

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Encoder turns raw property values into the strings stored in .scm records.
// It never fails: malformed values pass through and are logged.
type Encoder struct {
	log logrus.FieldLogger
}

// New returns an Encoder logging warnings to log. A nil logger discards them.
func New(log logrus.FieldLogger) *Encoder {
	if log == nil {
		l := logrus.New()
		l.Out = io.Discard
		log = l
	}
	return &Encoder{log: log}
}

// Encode returns the encoded form of raw for property name.
func (e *Encoder) Encode(name string, raw any) string {
	s := e.scalar(name, raw)
	if strings.Contains(name, "Color") && strings.HasPrefix(s, "#") {
		if c, ok := Color(s); ok {
			return c
		}
		e.log.WithFields(logrus.Fields{"property": name, "value": s}).Warn("malformed color literal, passing through")
	}
	return s
}

// Color converts "#RRGGBB" into the opaque ARGB form "&HFFRRGGBB".
func Color(v string) (string, bool) {
	if len(v) != 7 || v[0] != '#' {
		return "", false
	}
	hex := v[1:]
	for i := 0; i < len(hex); i++ {
		if !isHex(hex[i]) {
			return "", false
		}
	}
	return "&HFF" + strings.ToUpper(hex), true
}

// Bool is the archive-wide boolean token.
func Bool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// Number formats f in its shortest decimal form.
func Number(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (e *Encoder) scalar(name string, raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return Bool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return Number(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return Number(f)
		}
		return v.String()
	case json.RawMessage:
		return e.rawJSON(name, v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func (e *Encoder) rawJSON(name string, raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		e.log.WithFields(logrus.Fields{"property": name, "value": string(raw)}).Warn("undecodable property value, using raw text")
		return string(raw)
	}
	switch v.(type) {
	case map[string]any, []any:
		e.log.WithFields(logrus.Fields{"property": name}).Warn("structured property value, using compact JSON")
		return string(raw)
	}
	return e.scalar(name, v)
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
