// Package generator runs the whole archive pipeline: screen documents,
// project descriptor, staging and packing, validation and publication.
package generator

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"aiaforge/internal/aia/archive"
	"aiaforge/internal/aia/document"
	"aiaforge/internal/aia/encode"
	"aiaforge/internal/aia/format"
	"aiaforge/internal/aia/ids"
	"aiaforge/internal/aia/project"
	"aiaforge/internal/aia/validate"
	"aiaforge/internal/types"
)

// Generator holds configuration only. Each Generate call owns its staging
// dir and id scopes, so one Generator may serve concurrent calls.
type Generator struct {
	opts     format.Options
	log      logrus.FieldLogger
	now      func() time.Time
	strict   bool
	stageDir string

	// check validates a packed archive; replaced in tests.
	check func(archivePath, appName string) error
}

type Option func(*Generator)

func WithLogger(log logrus.FieldLogger) Option {
	return func(g *Generator) {
		if log != nil {
			g.log = log
		}
	}
}

// WithClock sets the clock behind the descriptor timestamp, member mtimes and
// the published file name.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithStrict enables content validation of every member.
func WithStrict(strict bool) Option {
	return func(g *Generator) { g.strict = strict }
}

// WithStageDir sets the parent of per-run staging dirs.
func WithStageDir(dir string) Option {
	return func(g *Generator) { g.stageDir = dir }
}

// New checks opts and returns a Generator.
func New(opts format.Options, options ...Option) (*Generator, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if _, err := ids.NewPolicy(opts.IDPolicy, opts.Seed); err != nil {
		return nil, err
	}
	g := &Generator{
		opts: opts,
		log:  logrus.StandardLogger(),
		now:  time.Now,
	}
	for _, o := range options {
		o(g)
	}
	g.check = func(archivePath, appName string) error {
		return validate.New(g.opts, appName, g.strict, g.log).Validate(archivePath)
	}
	return g, nil
}

// Options returns the effective format options.
func (g *Generator) Options() format.Options { return g.opts }

// Documents builds every archive member's content without touching disk.
// The descriptor timestamp is the only field that depends on at.
func (g *Generator) Documents(spec *types.ApplicationSpec, at time.Time) (archive.Input, error) {
	if spec == nil {
		return archive.Input{}, buildErr("documents", errors.New("nil app spec"))
	}
	spec = types.Normalize(*spec)
	log := g.log.WithFields(logrus.Fields{"app": spec.AppName, "format": g.opts.Variant})

	sb, err := document.NewScreenBuilder(g.opts, encode.New(log), log)
	if err != nil {
		return archive.Input{}, buildErr("documents", err)
	}
	in := archive.Input{
		Spec:       spec,
		Screens:    make([]document.ScreenDocuments, 0, len(spec.Screens)),
		Descriptor: project.Build(spec, g.opts, at),
		Modified:   at,
	}
	for _, s := range spec.Screens {
		docs, err := sb.Build(s, document.AppContext{Spec: spec, Options: g.opts})
		if err != nil {
			return archive.Input{}, buildErr("screen "+s.Name, err)
		}
		in.Screens = append(in.Screens, docs)
	}
	return in, nil
}

// Generate writes the archive for spec into outDir and returns its path.
// Nothing is left in outDir unless the archive validated.
func (g *Generator) Generate(ctx context.Context, spec *types.ApplicationSpec, outDir string) (string, error) {
	if outDir == "" {
		return "", buildErr("output", errors.New("output directory is required"))
	}
	at := g.now()
	in, err := g.Documents(spec, at)
	if err != nil {
		return "", err
	}
	log := g.log.WithFields(logrus.Fields{"app": in.Spec.AppName, "format": g.opts.Variant})
	log.WithField("screens", len(in.Screens)).Info("documents built")

	asm := archive.NewAssembler(g.opts, log)
	asm.StageDir = g.stageDir
	tmp, err := asm.Assemble(ctx, in, outDir)
	if err != nil {
		return "", buildErr("assemble", err)
	}
	if err := ctx.Err(); err != nil {
		_ = os.Remove(tmp)
		return "", buildErr("assemble", err)
	}

	if err := g.check(tmp, in.Spec.AppName); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil {
			log.WithError(rmErr).Warn("failed to remove rejected archive")
		}
		log.WithError(err).Error("archive rejected")
		return "", &Error{Kind: KindValidation, Op: "validate", Err: err}
	}

	out, err := archive.Publish(tmp, outDir, in.Spec.AppName, at)
	if err != nil {
		_ = os.Remove(tmp)
		return "", buildErr("publish", err)
	}
	log.WithField("path", out).Info("archive published")
	return out, nil
}

// Result is the outcome of a background generation.
type Result struct {
	Path string
	Err  error
}

// Start runs Generate on its own goroutine. The returned channel receives
// exactly one Result and is then closed.
func (g *Generator) Start(ctx context.Context, spec *types.ApplicationSpec, outDir string) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		p, err := g.Generate(ctx, spec, outDir)
		ch <- Result{Path: p, Err: err}
	}()
	return ch
}
