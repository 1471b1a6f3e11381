// Package format describes the archive format variants the generator can
// target. A variant bundles every policy that differs between importer
// versions so the pipeline itself stays single.
package format

import (
	"fmt"
	"sort"
	"strings"
)

// Compression selects how archive members are stored.
type Compression string

const (
	Store   Compression = "store"
	Deflate Compression = "deflate"
)

// BlocksMode selects the .bky representation.
type BlocksMode string

const (
	// BlocksXML writes a Blockly XML document and requires it in the archive.
	BlocksXML BlocksMode = "xml"
	// BlocksEmpty writes zero-byte .bky files.
	BlocksEmpty BlocksMode = "empty"
)

// Defaults selects how many type defaults a component descriptor receives.
type Defaults string

const (
	DefaultsRich    Defaults = "rich"
	DefaultsMinimal Defaults = "minimal"
)

// Id policy names understood by ids.NewPolicy.
const (
	IDSequential  = "sequential"
	IDNegativeInt = "negative-int"
	IDAlnum       = "alnum"
	IDUUIDHex     = "uuid-hex"
)

const (
	RootDescriptor   = "project.properties"
	NestedDescriptor = "youngandroidproject/project.properties"
)

// Options is the full set of format knobs for one generation.
type Options struct {
	Variant          string
	DescriptorPath   string
	Compression      Compression
	CompressionLevel int
	Blocks           BlocksMode
	IDPolicy         string
	Defaults         Defaults

	// Seed feeds every id allocator; equal seeds give byte-identical documents.
	Seed int64
	// User is the account segment of the namespace ("ai_<User>").
	User string

	YaVersion      string
	FormVersion    string
	BlocksLanguage string
	AuthURL        string
}

var variants = map[string]Options{
	"ai2": {
		DescriptorPath:   NestedDescriptor,
		Compression:      Deflate,
		CompressionLevel: 6,
		Blocks:           BlocksXML,
		IDPolicy:         IDNegativeInt,
		Defaults:         DefaultsRich,
	},
	"ai2-stored": {
		DescriptorPath: NestedDescriptor,
		Compression:    Store,
		Blocks:         BlocksXML,
		IDPolicy:       IDNegativeInt,
		Defaults:       DefaultsRich,
	},
	"classic": {
		DescriptorPath:   RootDescriptor,
		Compression:      Deflate,
		CompressionLevel: 6,
		Blocks:           BlocksEmpty,
		IDPolicy:         IDAlnum,
		Defaults:         DefaultsRich,
	},
	"minimal": {
		DescriptorPath: RootDescriptor,
		Compression:    Store,
		Blocks:         BlocksEmpty,
		IDPolicy:       IDSequential,
		Defaults:       DefaultsMinimal,
	},
}

// DefaultVariant is used when no variant is named.
const DefaultVariant = "ai2"

// Variants lists the registered variant names in sorted order.
func Variants() []string {
	names := make([]string, 0, len(variants))
	for n := range variants {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the preset for a variant name, with defaults applied.
func Lookup(name string) (Options, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultVariant
	}
	o, ok := variants[name]
	if !ok {
		return Options{}, fmt.Errorf("format: unknown variant %q (known: %s)", name, strings.Join(Variants(), ", "))
	}
	o.Variant = name
	return o.WithDefaults(), nil
}

// WithDefaults fills every empty field.
func (o Options) WithDefaults() Options {
	if o.Variant == "" {
		o.Variant = DefaultVariant
	}
	if o.DescriptorPath == "" {
		o.DescriptorPath = NestedDescriptor
	}
	if o.Compression == "" {
		o.Compression = Deflate
	}
	if o.Compression == Deflate && o.CompressionLevel == 0 {
		o.CompressionLevel = 6
	}
	if o.Blocks == "" {
		o.Blocks = BlocksXML
	}
	if o.IDPolicy == "" {
		o.IDPolicy = IDNegativeInt
	}
	if o.Defaults == "" {
		o.Defaults = DefaultsRich
	}
	if strings.TrimSpace(o.User) == "" {
		o.User = "developer"
	}
	if o.YaVersion == "" {
		o.YaVersion = "232"
	}
	if o.FormVersion == "" {
		o.FormVersion = "31"
	}
	if o.BlocksLanguage == "" {
		o.BlocksLanguage = "33"
	}
	if o.AuthURL == "" {
		o.AuthURL = "ai2.appinventor.mit.edu"
	}
	return o
}

// Validate reports option combinations no importer accepts.
func (o Options) Validate() error {
	switch o.Compression {
	case Store, Deflate:
	default:
		return fmt.Errorf("format: unknown compression %q", o.Compression)
	}
	if o.Compression == Deflate && (o.CompressionLevel < 1 || o.CompressionLevel > 9) {
		return fmt.Errorf("format: deflate level %d out of range 1..9", o.CompressionLevel)
	}
	switch o.Blocks {
	case BlocksXML, BlocksEmpty:
	default:
		return fmt.Errorf("format: unknown blocks mode %q", o.Blocks)
	}
	switch o.Defaults {
	case DefaultsRich, DefaultsMinimal:
	default:
		return fmt.Errorf("format: unknown defaults %q", o.Defaults)
	}
	switch o.DescriptorPath {
	case RootDescriptor, NestedDescriptor:
	default:
		return fmt.Errorf("format: unsupported descriptor path %q", o.DescriptorPath)
	}
	return nil
}

// RequiresBlocks reports whether a valid archive must contain .bky members
// with content.
func (o Options) RequiresBlocks() bool { return o.Blocks == BlocksXML }

// Namespace is the dotted package prefix of the app: "appinventor.ai_<user>".
func (o Options) Namespace() string {
	return "appinventor.ai_" + sanitizeUser(o.User)
}

// SourceDir is the archive directory holding the app's screen documents:
// "src/appinventor/ai_<user>/<App>".
func (o Options) SourceDir(appName string) string {
	return "src/" + strings.ReplaceAll(o.Namespace(), ".", "/") + "/" + appName
}

// MainPointer is the fully-qualified main screen reference.
func (o Options) MainPointer(appName, screen string) string {
	return o.Namespace() + "." + appName + "." + screen
}

func sanitizeUser(u string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(u) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "developer"
	}
	return b.String()
}
