package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"aiaforge/internal/util/jsonutil"
)

const (
	DefaultAppName    = "GeneratedApp"
	DefaultScreenName = "Screen1"

	maxAppNameLen       = 50
	maxComponentNameLen = 30
)

var ErrNoJSON = errors.New("types: no JSON object in input")

// reservedNames cannot be used as identifiers by the target environment.
var reservedNames = map[string]struct{}{
	"and": {}, "or": {}, "not": {}, "if": {}, "then": {}, "else": {}, "define": {},
	"lambda": {}, "let": {}, "begin": {}, "do": {}, "while": {}, "for": {}, "foreach": {},
}

// Decode parses producer output into a normalized ApplicationSpec.
// Leading or trailing prose around the JSON object is ignored.
func Decode(raw []byte) (*ApplicationSpec, error) {
	obj, ok := jsonutil.ExtractObject(raw)
	if !ok {
		return nil, ErrNoJSON
	}
	var spec ApplicationSpec
	if err := jsonutil.UnmarshalFlex(obj, &spec); err != nil {
		return nil, fmt.Errorf("decode application spec: %w", err)
	}
	return Normalize(spec), nil
}

// Normalize returns a copy of in with every default applied and every
// identifier sanitized and de-duplicated. The input is not modified.
func Normalize(in ApplicationSpec) *ApplicationSpec {
	out := &ApplicationSpec{
		AppName:     SanitizeAppName(in.AppName),
		Description: strings.TrimSpace(in.Description),
		Assets:      nonNilStrings(in.Assets),
		Permissions: nonNilStrings(in.Permissions),
	}
	if out.Description == "" {
		out.Description = "Generated app: " + out.AppName
	}

	screens := in.Screens
	if len(screens) == 0 {
		screens = []Screen{{Name: DefaultScreenName}}
	}
	// Screen names are claimed first so no component can shadow a screen:
	// bindings resolve screen names before component names.
	claimed := NewNameSet()
	names := make([]string, len(screens))
	for i, s := range screens {
		names[i] = screenName(s, i+1, claimed)
	}
	out.Screens = make([]Screen, 0, len(screens))
	for i, s := range screens {
		out.Screens = append(out.Screens, normalizeScreen(s, names[i], names))
	}

	main := out.Screens[0].Name
	out.Blocks = make([]EventBinding, 0, len(in.Blocks))
	for _, b := range in.Blocks {
		ev := strings.TrimSpace(b.Event)
		if ev == "" {
			ev = main + "." + DefaultEvent
		}
		act := b.Action
		if act.Kind == "" {
			act = RawText(act.Content)
		}
		out.Blocks = append(out.Blocks, EventBinding{Event: ev, Action: act})
	}
	return out
}

func screenName(s Screen, ordinal int, used *NameSet) string {
	name := SanitizeIdentifier(s.Name, "Screen")
	if strings.TrimSpace(s.Name) == "" {
		name = "Screen" + strconv.Itoa(ordinal)
	}
	return used.Claim(name)
}

func normalizeScreen(s Screen, name string, screenNames []string) Screen {
	title := strings.TrimSpace(s.Title)
	if title == "" {
		title = name
	}

	out := Screen{Name: name, Title: title, Components: make([]Component, 0, len(s.Components))}
	names := NewNameSet(screenNames...)
	for i, c := range s.Components {
		out.Components = append(out.Components, normalizeComponent(c, i+1, names))
	}
	return out
}

func normalizeComponent(c Component, ordinal int, used *NameSet) Component {
	typ := strings.TrimSpace(c.Type)
	if typ == "" {
		typ = TypeButton
	}
	var name string
	if strings.TrimSpace(c.Name) == "" {
		name = SanitizeIdentifier(typ, "Component") + strconv.Itoa(ordinal)
	} else {
		name = SanitizeIdentifier(c.Name, "Component")
	}
	out := Component{Type: typ, Name: used.ClaimWithin(name, maxComponentNameLen), Text: c.Text}
	if len(c.Properties) > 0 {
		out.Properties = make(map[string]json.RawMessage, len(c.Properties))
		for k, v := range c.Properties {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			out.Properties[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// SanitizeAppName restricts name to the identifier charset accepted as a
// package segment and file name.
func SanitizeAppName(name string) string {
	out := SanitizeIdentifier(name, "App")
	if strings.TrimSpace(name) == "" {
		return DefaultAppName
	}
	if len(out) > maxAppNameLen {
		out = out[:maxAppNameLen]
	}
	return out
}

// SanitizeIdentifier drops every rune outside [A-Za-z0-9_] and ensures the
// result starts with a letter, prefixing it with prefix otherwise.
func SanitizeIdentifier(s, prefix string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" || !unicode.IsLetter(rune(out[0])) {
		out = prefix + out
	}
	if _, reserved := reservedNames[strings.ToLower(out)]; reserved {
		out = prefix + out
	}
	return out
}

// NameSet hands out unique names, resolving collisions with a deterministic
// numeric suffix: "B", "B2", "B3", ...
type NameSet struct {
	used map[string]struct{}
}

func NewNameSet(existing ...string) *NameSet {
	s := &NameSet{used: make(map[string]struct{}, len(existing)+8)}
	for _, n := range existing {
		s.used[n] = struct{}{}
	}
	return s
}

// Claim reserves name, or the first free suffixed variant of it.
func (s *NameSet) Claim(name string) string { return s.ClaimWithin(name, 0) }

// ClaimWithin is Claim with every returned name at most limit bytes long;
// the stem is cut so that stem plus suffix fits. limit <= 0 means no limit.
func (s *NameSet) ClaimWithin(name string, limit int) string {
	if limit > 0 && len(name) > limit {
		name = name[:limit]
	}
	if _, taken := s.used[name]; !taken {
		s.used[name] = struct{}{}
		return name
	}
	for n := 2; ; n++ {
		suffix := strconv.Itoa(n)
		stem := name
		if limit > 0 && len(stem)+len(suffix) > limit {
			stem = stem[:limit-len(suffix)]
		}
		candidate := stem + suffix
		if _, taken := s.used[candidate]; taken {
			continue
		}
		s.used[candidate] = struct{}{}
		return candidate
	}
}

func nonNilStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func canonicalPermission(p string) string {
	p = strings.ToUpper(strings.TrimSpace(p))
	return strings.TrimPrefix(p, "ANDROID.PERMISSION.")
}
