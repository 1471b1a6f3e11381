// Package validate re-opens a packed archive and checks it is importable.
package validate

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/jacoelho/xsd"
	xsderrors "github.com/jacoelho/xsd/errors"
	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"

	"aiaforge/internal/aia/document"
	"aiaforge/internal/aia/format"
	"aiaforge/internal/aia/project"
)

// Kind classifies a validation failure.
type Kind string

const (
	KindUnreadable        Kind = "unreadable archive"
	KindMissingDescriptor Kind = "missing descriptor"
	KindMissingSource     Kind = "missing source tree"
	KindMissingSCM        Kind = "missing .scm"
	KindMissingBKY        Kind = "missing .bky"
	KindBadDescriptor     Kind = "malformed descriptor"
	KindBadSCM            Kind = "malformed .scm"
	KindBadBKY            Kind = "malformed .bky"
)

// Error reports the first failed check.
type Error struct {
	Kind   Kind
	Member string
	Err    error
}

func (e *Error) Error() string {
	msg := "validate: " + string(e.Kind)
	if e.Member != "" {
		msg += " (" + e.Member + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// descriptorKeys must be present in every project descriptor.
var descriptorKeys = []string{"main", "name", "assets", "source", "build"}

//go:embed blocks.xsd
var schemaFS embed.FS

var loadBlocksSchema = sync.OnceValues(func() (*xsd.Schema, error) {
	return xsd.Load(schemaFS, "blocks.xsd")
})

// Validator checks archives produced for one app under one format.
type Validator struct {
	opts    format.Options
	appName string
	strict  bool
	log     logrus.FieldLogger
}

// New returns a Validator. With strict set, member contents are parsed too:
// descriptor keys, .scm JSON and .bky XML against the embedded schema.
func New(opts format.Options, appName string, strict bool, log logrus.FieldLogger) *Validator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Validator{opts: opts, appName: appName, strict: strict, log: log}
}

// Validate opens the archive at archivePath and runs every check.
func (v *Validator) Validate(archivePath string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return &Error{Kind: KindUnreadable, Member: archivePath, Err: err}
	}
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	if err := v.CheckNames(names); err != nil {
		return err
	}
	if !v.strict {
		return nil
	}
	for _, f := range zr.File {
		if err := v.checkContent(f); err != nil {
			return err
		}
	}
	return nil
}

// CheckNames runs the name-only checks over a member list.
func (v *Validator) CheckNames(names []string) error {
	src := v.opts.SourceDir(v.appName) + "/"
	var hasDescriptor, hasSource, hasSCM, hasBKY bool
	for _, n := range names {
		switch {
		case n == v.opts.DescriptorPath:
			hasDescriptor = true
		case strings.HasPrefix(n, src) && !strings.HasSuffix(n, "/"):
			hasSource = true
			switch path.Ext(n) {
			case ".scm":
				hasSCM = true
			case ".bky":
				hasBKY = true
			}
		}
	}
	switch {
	case !hasDescriptor:
		return &Error{Kind: KindMissingDescriptor, Member: v.opts.DescriptorPath}
	case !hasSource:
		return &Error{Kind: KindMissingSource, Member: src}
	case !hasSCM:
		return &Error{Kind: KindMissingSCM, Member: src + "*.scm"}
	case v.opts.RequiresBlocks() && !hasBKY:
		return &Error{Kind: KindMissingBKY, Member: src + "*.bky"}
	}
	return nil
}

func (v *Validator) checkContent(f *zip.File) error {
	if strings.HasSuffix(f.Name, "/") {
		return nil
	}
	isDescriptor := f.Name == v.opts.DescriptorPath
	ext := path.Ext(f.Name)
	if !isDescriptor && ext != ".scm" && ext != ".bky" {
		return nil
	}
	data, err := readMember(f)
	if err != nil {
		return &Error{Kind: KindUnreadable, Member: f.Name, Err: err}
	}
	switch {
	case isDescriptor:
		return checkDescriptor(f.Name, data)
	case ext == ".scm":
		return checkProperties(f.Name, data)
	default:
		return v.checkBlocks(f.Name, data)
	}
}

func checkDescriptor(name string, data []byte) error {
	kv := project.Parse(data)
	for _, k := range descriptorKeys {
		if kv[k] == "" {
			return &Error{Kind: KindBadDescriptor, Member: name, Err: fmt.Errorf("key %q missing", k)}
		}
	}
	return nil
}

func checkProperties(name string, data []byte) error {
	body, ok := document.UnwrapProperties(data)
	if !ok {
		return &Error{Kind: KindBadSCM, Member: name, Err: errors.New("missing #|$JSON frame")}
	}
	var doc struct {
		Properties map[string]json.RawMessage `json:"Properties"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return &Error{Kind: KindBadSCM, Member: name, Err: err}
	}
	var formName string
	if raw, ok := doc.Properties["$Name"]; ok {
		_ = json.Unmarshal(raw, &formName)
	}
	if formName == "" {
		return &Error{Kind: KindBadSCM, Member: name, Err: errors.New("form has no $Name")}
	}
	if want := strings.TrimSuffix(path.Base(name), ".scm"); formName != want {
		return &Error{Kind: KindBadSCM, Member: name, Err: fmt.Errorf("form name %q does not match file %q", formName, want)}
	}
	return nil
}

func (v *Validator) checkBlocks(name string, data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		if v.opts.RequiresBlocks() {
			return &Error{Kind: KindBadBKY, Member: name, Err: errors.New("empty blocks document")}
		}
		return nil
	}
	schema, err := loadBlocksSchema()
	if err != nil {
		return &Error{Kind: KindBadBKY, Member: name, Err: err}
	}
	if err := schema.Validate(bytes.NewReader(data)); err != nil {
		if list, ok := xsderrors.AsValidations(err); ok {
			v.log.WithFields(logrus.Fields{"member": name, "violations": len(list)}).Warn("blocks document failed schema validation")
		}
		return &Error{Kind: KindBadBKY, Member: name, Err: err}
	}
	return nil
}

func readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
