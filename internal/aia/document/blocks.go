package document

import (
	"encoding/xml"
	"strconv"
	"strings"

	"aiaforge/internal/aia/format"
	"aiaforge/internal/aia/ids"
	"aiaforge/internal/types"
)

// BlocklyNamespace is the default namespace of every .bky document.
const BlocklyNamespace = "https://developers.google.com/blockly/xml"

type bkyDocument struct {
	XMLName      xml.Name     `xml:"xml"`
	Xmlns        string       `xml:"xmlns,attr"`
	Blocks       []bkyBlock   `xml:"block"`
	YaCodeBlocks yaCodeBlocks `xml:"yacodeblocks"`
}

type yaCodeBlocks struct {
	YaVersion       string `xml:"ya-version,attr"`
	LanguageVersion string `xml:"language-version,attr"`
}

// bkyBlock children follow Blockly's serialization order.
type bkyBlock struct {
	Type       string         `xml:"type,attr"`
	ID         string         `xml:"id,attr,omitempty"`
	X          string         `xml:"x,attr,omitempty"`
	Y          string         `xml:"y,attr,omitempty"`
	Mutation   *bkyMutation   `xml:"mutation"`
	Fields     []bkyField     `xml:"field"`
	Comment    *bkyComment    `xml:"comment"`
	Values     []bkyValue     `xml:"value"`
	Statements []bkyStatement `xml:"statement"`
	Next       *bkyNext       `xml:"next"`
}

type bkyMutation struct {
	ComponentType string `xml:"component_type,attr"`
	SetOrGet      string `xml:"set_or_get,attr,omitempty"`
	PropertyName  string `xml:"property_name,attr,omitempty"`
	IsGeneric     string `xml:"is_generic,attr"`
	InstanceName  string `xml:"instance_name,attr"`
	EventName     string `xml:"event_name,attr,omitempty"`
}

type bkyField struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type bkyComment struct {
	Pinned string `xml:"pinned,attr"`
	H      string `xml:"h,attr"`
	W      string `xml:"w,attr"`
	Text   string `xml:",chardata"`
}

type bkyValue struct {
	Name  string   `xml:"name,attr"`
	Block bkyBlock `xml:"block"`
}

type bkyStatement struct {
	Name  string   `xml:"name,attr"`
	Block bkyBlock `xml:"block"`
}

type bkyNext struct {
	Block bkyBlock `xml:"block"`
}

// Event blocks are stacked in one column.
const (
	blockX       = 40
	blockY       = 40
	blockSpacing = 160
)

// BlocksBuilder renders event bindings as a Blockly workspace.
type BlocksBuilder struct {
	opts format.Options
}

func NewBlocksBuilder(opts format.Options) *BlocksBuilder {
	return &BlocksBuilder{opts: opts}
}

// eventGroup collects the bindings of one component event.
type eventGroup struct {
	component string
	event     string
	bindings  []types.EventBinding
}

// Build renders bindings for screen. Bindings on the same component event
// share one event block so the importer sees no duplicate handlers. A screen
// without bindings gets an empty <Screen>.Initialize block.
func (b *BlocksBuilder) Build(spec *types.ApplicationSpec, screen types.Screen, bindings []types.EventBinding, alloc *ids.Allocator) ([]byte, error) {
	main := screen.Name
	if ms := spec.MainScreen(); ms != nil {
		main = ms.Name
	}

	var groups []*eventGroup
	index := map[string]*eventGroup{}
	for _, bnd := range bindings {
		comp, ev := bnd.Target(main)
		key := comp + "." + ev
		g, ok := index[key]
		if !ok {
			g = &eventGroup{component: comp, event: ev}
			index[key] = g
			groups = append(groups, g)
		}
		g.bindings = append(g.bindings, bnd)
	}
	if len(groups) == 0 {
		groups = append(groups, &eventGroup{component: screen.Name, event: types.DefaultEvent})
	}

	doc := bkyDocument{
		Xmlns: BlocklyNamespace,
		YaCodeBlocks: yaCodeBlocks{
			YaVersion:       b.opts.YaVersion,
			LanguageVersion: b.opts.BlocksLanguage,
		},
	}
	for i, g := range groups {
		doc.Blocks = append(doc.Blocks, b.eventBlock(spec, g, i, alloc))
	}
	return xml.Marshal(doc)
}

func (b *BlocksBuilder) eventBlock(spec *types.ApplicationSpec, g *eventGroup, pos int, alloc *ids.Allocator) bkyBlock {
	blk := bkyBlock{
		Type: "component_event",
		ID:   alloc.Next(),
		X:    strconv.Itoa(blockX),
		Y:    strconv.Itoa(blockY + pos*blockSpacing),
		Mutation: &bkyMutation{
			ComponentType: ComponentType(spec, g.component),
			IsGeneric:     "false",
			InstanceName:  g.component,
			EventName:     g.event,
		},
		Fields: []bkyField{{Name: "COMPONENT_SELECTOR", Value: g.component}},
	}

	var notes []string
	var stmts []bkyBlock
	for _, bnd := range g.bindings {
		switch bnd.Action.Kind {
		case types.ActionSetProperty:
			stmts = append(stmts, b.setBlock(spec, bnd.Action, alloc))
		default:
			if bnd.Action.Content != "" {
				notes = append(notes, bnd.Action.Content)
			}
		}
	}
	if len(notes) > 0 {
		blk.Comment = &bkyComment{Pinned: "false", H: "80", W: "240", Text: strings.Join(notes, "\n")}
	}
	if len(stmts) > 0 {
		blk.Statements = []bkyStatement{{Name: "DO", Block: chain(stmts)}}
	}
	return blk
}

func (b *BlocksBuilder) setBlock(spec *types.ApplicationSpec, a types.Action, alloc *ids.Allocator) bkyBlock {
	blk := bkyBlock{
		Type: "component_set_get",
		ID:   alloc.Next(),
		Mutation: &bkyMutation{
			ComponentType: ComponentType(spec, a.Component),
			SetOrGet:      "set",
			PropertyName:  a.Property,
			IsGeneric:     "false",
			InstanceName:  a.Component,
		},
		Fields: []bkyField{
			{Name: "COMPONENT_SELECTOR", Value: a.Component},
			{Name: "PROP", Value: a.Property},
		},
	}
	blk.Values = []bkyValue{{Name: "VALUE", Block: literalBlock(a.Value, alloc)}}
	return blk
}

func literalBlock(l types.Literal, alloc *ids.Allocator) bkyBlock {
	switch l.Kind {
	case types.LiteralNumber:
		return bkyBlock{Type: "math_number", ID: alloc.Next(), Fields: []bkyField{{Name: "NUM", Value: l.Text}}}
	case types.LiteralBool:
		v := "FALSE"
		if l.Text == "True" {
			v = "TRUE"
		}
		return bkyBlock{Type: "logic_boolean", ID: alloc.Next(), Fields: []bkyField{{Name: "BOOL", Value: v}}}
	default:
		return bkyBlock{Type: "text", ID: alloc.Next(), Fields: []bkyField{{Name: "TEXT", Value: l.Text}}}
	}
}

// chain links statement blocks through <next>.
func chain(stmts []bkyBlock) bkyBlock {
	head := stmts[len(stmts)-1]
	for i := len(stmts) - 2; i >= 0; i-- {
		prev := stmts[i]
		next := head
		prev.Next = &bkyNext{Block: next}
		head = prev
	}
	return head
}

// ComponentType resolves the component type behind an instance name. Screen
// names resolve to "Form"; names found nowhere resolve to "Component".
func ComponentType(spec *types.ApplicationSpec, name string) string {
	for _, s := range spec.Screens {
		if s.Name == name {
			return "Form"
		}
	}
	for i := range spec.Screens {
		if c, ok := spec.Screens[i].Component(name); ok {
			return c.Type
		}
	}
	return "Component"
}

// BindingsFor returns the bindings owned by screen, in declaration order.
// A binding belongs to the screen it names, else to the first screen holding
// its component, else to the main screen.
func BindingsFor(spec *types.ApplicationSpec, screen string) []types.EventBinding {
	var out []types.EventBinding
	for _, b := range spec.Blocks {
		if OwnerScreen(spec, b) == screen {
			out = append(out, b)
		}
	}
	return out
}

// OwnerScreen returns the screen a binding is rendered on.
func OwnerScreen(spec *types.ApplicationSpec, b types.EventBinding) string {
	ms := spec.MainScreen()
	if ms == nil {
		return ""
	}
	comp, _ := b.Target(ms.Name)
	for _, s := range spec.Screens {
		if s.Name == comp {
			return s.Name
		}
	}
	for i := range spec.Screens {
		if _, ok := spec.Screens[i].Component(comp); ok {
			return spec.Screens[i].Name
		}
	}
	return ms.Name
}
