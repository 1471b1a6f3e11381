package types

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// ActionKind tags the variant held by an Action.
type ActionKind string

const (
	ActionSetProperty ActionKind = "set_property"
	ActionRawText     ActionKind = "raw_text"
)

// Action is the effect of an event binding.
//
//	SetProperty: Component, Property, Value (Value is a typed literal)
//	RawText:     Content
type Action struct {
	Kind      ActionKind `json:"kind"`
	Component string     `json:"component,omitempty"`
	Property  string     `json:"property,omitempty"`
	Value     Literal    `json:"value"`
	Content   string     `json:"content,omitempty"`
}

// SetProperty builds a SetProperty action.
func SetProperty(component, property string, value Literal) Action {
	return Action{Kind: ActionSetProperty, Component: component, Property: property, Value: value}
}

// RawText builds a RawText action.
func RawText(content string) Action {
	return Action{Kind: ActionRawText, Content: content}
}

// LiteralKind distinguishes literal values carried by SetProperty.
type LiteralKind string

const (
	LiteralText   LiteralKind = "text"
	LiteralNumber LiteralKind = "number"
	LiteralBool   LiteralKind = "bool"
)

// Literal is a constant right-hand side of a SetProperty action.
type Literal struct {
	Kind LiteralKind `json:"kind"`
	Text string      `json:"text"`
}

// UnmarshalJSON makes Action accept either:
// 1) object: {"kind":"set_property","component":"L","property":"Text","value":"hi"}
// 2) string: "set L.Text to 'hi'" | any other free text
func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = ParseAction(s)
		return nil
	}

	var obj struct {
		Kind      string          `json:"kind"`
		Component string          `json:"component"`
		Property  string          `json:"property"`
		Value     json.RawMessage `json:"value"`
		Content   string          `json:"content"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		// Unknown shape: keep the raw text so nothing is lost.
		*a = RawText(strings.TrimSpace(string(data)))
		return nil
	}
	switch ActionKind(strings.ToLower(strings.TrimSpace(obj.Kind))) {
	case ActionSetProperty:
		var lit Literal
		ok := len(obj.Value) > 0 && json.Unmarshal(obj.Value, &lit) == nil
		if obj.Component == "" || obj.Property == "" || !ok {
			*a = RawText(strings.TrimSpace(string(data)))
			return nil
		}
		*a = SetProperty(obj.Component, obj.Property, lit)
	default:
		content := obj.Content
		if content == "" {
			content = strings.TrimSpace(string(data))
		}
		*a = RawText(content)
	}
	return nil
}

// UnmarshalJSON accepts a bare JSON scalar or a {"kind","text"} object.
func (l *Literal) UnmarshalJSON(data []byte) error {
	if lit, ok := literalFromJSON(data); ok {
		*l = lit
		return nil
	}
	var obj struct {
		Kind string `json:"kind"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	l.Kind = LiteralKind(obj.Kind)
	l.Text = obj.Text
	if l.Kind == "" {
		l.Kind = LiteralText
	}
	return nil
}

var reSetAction = regexp.MustCompile(`^(?i:set)\s+([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\s+(?i:to)\s+(.+)$`)

// ParseAction converts the legacy free-text action form into an Action.
// Only "set <Component>.<Property> to <literal>" becomes SetProperty;
// everything else is kept verbatim as RawText.
func ParseAction(s string) Action {
	s = strings.TrimSpace(s)
	m := reSetAction.FindStringSubmatch(s)
	if m == nil {
		return RawText(s)
	}
	lit, ok := parseLiteral(strings.TrimSpace(m[3]))
	if !ok {
		return RawText(s)
	}
	return SetProperty(m[1], m[2], lit)
}

func parseLiteral(s string) (Literal, bool) {
	if len(s) >= 2 {
		q := s[0]
		if (q == '\'' || q == '"') && s[len(s)-1] == q {
			inner := s[1 : len(s)-1]
			if strings.ContainsRune(inner, rune(q)) {
				return Literal{}, false
			}
			return Literal{Kind: LiteralText, Text: inner}, true
		}
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return Literal{Kind: LiteralNumber, Text: s}, true
	}
	switch strings.ToLower(s) {
	case "true":
		return Literal{Kind: LiteralBool, Text: "True"}, true
	case "false":
		return Literal{Kind: LiteralBool, Text: "False"}, true
	}
	return Literal{}, false
}

func literalFromJSON(data json.RawMessage) (Literal, bool) {
	if len(data) == 0 {
		return Literal{}, false
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return Literal{}, false
	}
	switch x := v.(type) {
	case string:
		return Literal{Kind: LiteralText, Text: x}, true
	case float64:
		return Literal{Kind: LiteralNumber, Text: strconv.FormatFloat(x, 'f', -1, 64)}, true
	case bool:
		if x {
			return Literal{Kind: LiteralBool, Text: "True"}, true
		}
		return Literal{Kind: LiteralBool, Text: "False"}, true
	}
	return Literal{}, false
}
