package document

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"aiaforge/internal/aia/encode"
	"aiaforge/internal/aia/format"
	"aiaforge/internal/aia/ids"
	"aiaforge/internal/types"
)

// versions is the structural version table the importer upgrades from.
// A wrong value makes the importer drop the component silently.
var versions = map[string]string{
	types.TypeButton:                "7",
	types.TypeLabel:                 "6",
	types.TypeTextBox:               "6",
	types.TypeImage:                 "5",
	types.TypeHorizontalArrangement: "5",
	types.TypeVerticalArrangement:   "5",
}

// UnknownVersion is used for component types outside the table.
const UnknownVersion = "1"

// Version returns the structural version tag for a component type.
func Version(componentType string) string {
	if v, ok := versions[componentType]; ok {
		return v
	}
	return UnknownVersion
}

var richDefaults = map[string][]Field{
	types.TypeButton: {
		{Key: "Width", Value: "-2"},
		{Key: "Height", Value: "-1"},
		{Key: "BackgroundColor", Value: "&HFF3F51B5"},
		{Key: "TextColor", Value: "&HFFFFFFFF"},
	},
	types.TypeLabel: {
		{Key: "Width", Value: "-2"},
		{Key: "Height", Value: "-1"},
		{Key: "TextAlignment", Value: "1"},
		{Key: "FontSize", Value: "14"},
	},
}

// ErrNoAllocator is returned when Build is called without an id scope.
var ErrNoAllocator = errors.New("document: component build needs an id allocator")

// ComponentBuilder turns one model component into a $Components record.
type ComponentBuilder struct {
	enc      *encode.Encoder
	defaults format.Defaults
}

func NewComponentBuilder(enc *encode.Encoder, defaults format.Defaults) *ComponentBuilder {
	if enc == nil {
		enc = encode.New(nil)
	}
	return &ComponentBuilder{enc: enc, defaults: defaults}
}

// Build returns the record for c. ordinal (1-based) names the component
// when the model left Name empty. The Uuid comes from alloc.
func (b *ComponentBuilder) Build(c types.Component, ordinal int, alloc *ids.Allocator) (*Record, error) {
	if alloc == nil {
		return nil, ErrNoAllocator
	}
	typ := strings.TrimSpace(c.Type)
	if typ == "" {
		typ = types.TypeButton
	}
	name := c.Name
	if name == "" {
		name = typ + strconv.Itoa(ordinal)
	}

	props := make(map[string]string, len(c.Properties)+4)
	if b.defaults == format.DefaultsRich {
		for _, f := range richDefaults[typ] {
			props[f.Key] = f.Value.(string)
		}
	}
	switch typ {
	case types.TypeButton, types.TypeLabel:
		props["Text"] = "Text for " + name
		if c.Text != nil {
			props["Text"] = *c.Text
		}
	case types.TypeTextBox:
		if c.Text != nil {
			props["Text"] = *c.Text
		}
	}
	for k, raw := range c.Properties {
		if reservedKey(k) {
			continue
		}
		props[k] = b.enc.Encode(k, raw)
	}

	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rec := &Record{}
	rec.Set("$Name", name)
	rec.Set("$Type", typ)
	rec.Set("$Version", Version(typ))
	for _, k := range keys {
		rec.Set(k, props[k])
	}
	rec.Set("Uuid", alloc.Next())
	return rec, nil
}

func reservedKey(k string) bool {
	return k == "" || strings.HasPrefix(k, "$") || k == "Uuid"
}
