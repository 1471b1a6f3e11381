// Package document builds the per-screen documents of an archive: the .scm
// properties file and the .bky blocks file.
package document

import (
	"bytes"
	"fmt"

	"github.com/sirupsen/logrus"

	"aiaforge/internal/aia/encode"
	"aiaforge/internal/aia/format"
	"aiaforge/internal/aia/ids"
	"aiaforge/internal/types"
	"aiaforge/internal/util/jsonutil"
)

// FormUuid is the fixed id of the Form record itself.
const FormUuid = "0"

// AppContext is what a screen build needs to know about the whole app.
type AppContext struct {
	Spec    *types.ApplicationSpec
	Options format.Options
}

// ScreenDocuments holds the two files generated for one screen.
type ScreenDocuments struct {
	Screen     string
	Properties []byte
	Blocks     []byte
}

// ScreenBuilder assembles the documents of one screen. It holds no per-run
// state; id scopes are opened inside Build.
type ScreenBuilder struct {
	components *ComponentBuilder
	blocks     *BlocksBuilder
	policy     *ids.Policy
	opts       format.Options
	log        logrus.FieldLogger
}

func NewScreenBuilder(opts format.Options, enc *encode.Encoder, log logrus.FieldLogger) (*ScreenBuilder, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	policy, err := ids.NewPolicy(opts.IDPolicy, opts.Seed)
	if err != nil {
		return nil, err
	}
	return &ScreenBuilder{
		components: NewComponentBuilder(enc, opts.Defaults),
		blocks:     NewBlocksBuilder(opts),
		policy:     policy,
		opts:       opts,
		log:        log,
	}, nil
}

// Build returns the .scm and .bky contents for screen.
func (b *ScreenBuilder) Build(screen types.Screen, app AppContext) (ScreenDocuments, error) {
	if app.Spec == nil {
		return ScreenDocuments{}, fmt.Errorf("document: screen %q built without an app spec", screen.Name)
	}
	scm, err := b.properties(screen, app.Spec)
	if err != nil {
		return ScreenDocuments{}, fmt.Errorf("document: screen %q properties: %w", screen.Name, err)
	}
	docs := ScreenDocuments{Screen: screen.Name, Properties: scm}
	if b.opts.Blocks == format.BlocksEmpty {
		docs.Blocks = []byte{}
		return docs, nil
	}
	bindings := BindingsFor(app.Spec, screen.Name)
	bky, err := b.blocks.Build(app.Spec, screen, bindings, b.policy.Scope("bky:"+screen.Name))
	if err != nil {
		return ScreenDocuments{}, fmt.Errorf("document: screen %q blocks: %w", screen.Name, err)
	}
	docs.Blocks = bky
	b.log.WithFields(logrus.Fields{
		"screen":     screen.Name,
		"components": len(screen.Components),
		"bindings":   len(bindings),
	}).Debug("screen documents built")
	return docs, nil
}

func (b *ScreenBuilder) properties(screen types.Screen, spec *types.ApplicationSpec) ([]byte, error) {
	alloc := b.policy.Scope("scm:"+screen.Name, FormUuid)

	form := &Record{}
	form.Set("$Name", screen.Name)
	form.Set("$Type", "Form")
	form.Set("$Version", b.opts.FormVersion)
	form.Set("ActionBar", encode.Bool(true))
	form.Set("AppName", spec.AppName)
	form.Set("Title", screen.Title)
	form.Set("Uuid", FormUuid)
	if len(screen.Components) > 0 {
		comps := make([]*Record, 0, len(screen.Components))
		for i, c := range screen.Components {
			rec, err := b.components.Build(c, i+1, alloc)
			if err != nil {
				return nil, err
			}
			comps = append(comps, rec)
		}
		form.Set("$Components", comps)
	}

	doc := &Record{}
	doc.Set("authURL", []string{b.opts.AuthURL})
	doc.Set("YaVersion", b.opts.YaVersion)
	doc.Set("Source", "Form")
	doc.Set("Properties", form)

	body, err := jsonutil.MarshalCompact(doc)
	if err != nil {
		return nil, err
	}
	return WrapProperties(body), nil
}

// Properties file delimiters.
const (
	scmOpen  = "#|\n$JSON\n"
	scmClose = "\n|#"
)

// WrapProperties frames a compact JSON body as a .scm document.
func WrapProperties(body []byte) []byte {
	out := make([]byte, 0, len(scmOpen)+len(body)+len(scmClose))
	out = append(out, scmOpen...)
	out = append(out, body...)
	return append(out, scmClose...)
}

// UnwrapProperties returns the JSON body of a .scm document.
func UnwrapProperties(doc []byte) ([]byte, bool) {
	doc = bytes.TrimSpace(doc)
	if len(doc) < len(scmOpen)+len(scmClose) {
		return nil, false
	}
	if !bytes.HasPrefix(doc, []byte(scmOpen)) || !bytes.HasSuffix(doc, []byte(scmClose)) {
		return nil, false
	}
	return doc[len(scmOpen) : len(doc)-len(scmClose)], true
}
