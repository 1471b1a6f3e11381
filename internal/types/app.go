package types

import "encoding/json"

// Application model ---------------------------------------------------------------

// ApplicationSpec is the abstract description of one app to generate.
// Values produced by Decode or Normalize have every optional field filled in;
// builders treat a spec as read-only.
type ApplicationSpec struct {
	AppName     string         `json:"app_name"`
	Description string         `json:"description"`
	Screens     []Screen       `json:"screens"`
	Blocks      []EventBinding `json:"blocks"`
	Assets      []string       `json:"assets"`
	Permissions []string       `json:"permissions"`
}

// MainScreen returns the entry screen (the first one).
func (a *ApplicationSpec) MainScreen() *Screen {
	if a == nil || len(a.Screens) == 0 {
		return nil
	}
	return &a.Screens[0]
}

// HasPermission reports whether perm was declared, ignoring the
// "android.permission." prefix and case.
func (a *ApplicationSpec) HasPermission(perm string) bool {
	want := canonicalPermission(perm)
	for _, p := range a.Permissions {
		if canonicalPermission(p) == want {
			return true
		}
	}
	return false
}

type Screen struct {
	Name       string      `json:"name"`
	Title      string      `json:"title"`
	Components []Component `json:"components"`
}

// Component returns the component with the given name.
func (s *Screen) Component(name string) (*Component, bool) {
	for i := range s.Components {
		if s.Components[i].Name == name {
			return &s.Components[i], true
		}
	}
	return nil, false
}

type Component struct {
	Type       string                     `json:"type"`
	Name       string                     `json:"name"`
	Text       *string                    `json:"text,omitempty"`
	Properties map[string]json.RawMessage `json:"properties,omitempty"`
}

// Component kinds --------------------------------------------------------------------

const (
	TypeButton                = "Button"
	TypeLabel                 = "Label"
	TypeTextBox               = "TextBox"
	TypeImage                 = "Image"
	TypeHorizontalArrangement = "HorizontalArrangement"
	TypeVerticalArrangement   = "VerticalArrangement"
)

// KnownTypes lists the component kinds the generator models.
var KnownTypes = []string{
	TypeButton,
	TypeLabel,
	TypeTextBox,
	TypeImage,
	TypeHorizontalArrangement,
	TypeVerticalArrangement,
}

// IsKnownType reports whether t is one of KnownTypes.
func IsKnownType(t string) bool {
	for _, k := range KnownTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Event bindings ---------------------------------------------------------------------

type EventBinding struct {
	Event  string `json:"event"`
	Action Action `json:"action"`
}

// Target splits Event on the first "." into component and event name.
// Without a "." the binding targets mainScreen's Initialize event.
func (b EventBinding) Target(mainScreen string) (component, event string) {
	for i := 0; i < len(b.Event); i++ {
		if b.Event[i] == '.' {
			component, event = b.Event[:i], b.Event[i+1:]
			if component == "" {
				component = mainScreen
			}
			if event == "" {
				event = DefaultEvent
			}
			return component, event
		}
	}
	return mainScreen, DefaultEvent
}

// DefaultEvent is the event used when a binding names none.
const DefaultEvent = "Initialize"
