package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"aiaforge/internal/aia/document"
	"aiaforge/internal/aia/format"
	"aiaforge/internal/aia/project"
	"aiaforge/internal/aia/validate"
	"aiaforge/internal/types"
)

var fixed = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newGenerator(t *testing.T, variant string, opts ...Option) *Generator {
	t.Helper()
	o, err := format.Lookup(variant)
	require.NoError(t, err)
	o.Seed = 5
	opts = append([]Option{WithClock(func() time.Time { return fixed }), WithStrict(true), WithStageDir(t.TempDir())}, opts...)
	g, err := New(o, opts...)
	require.NoError(t, err)
	return g
}

func readArchive(t *testing.T, p string) map[string][]byte {
	t.Helper()
	zr, err := zip.OpenReader(p)
	require.NoError(t, err)
	defer zr.Close()
	out := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[f.Name] = b
	}
	return out
}

func calc() *types.ApplicationSpec {
	spec, err := types.Decode([]byte(`{"app_name":"Calc","screens":[{"name":"Screen1","components":[{"type":"Button","name":"B1","text":"1"}]}]}`))
	if err != nil {
		panic(err)
	}
	return spec
}

func TestGenerateCalcScenario(t *testing.T) {
	for _, variant := range format.Variants() {
		t.Run(variant, func(t *testing.T) {
			g := newGenerator(t, variant)
			out := t.TempDir()
			p, err := g.Generate(context.Background(), calc(), out)
			require.NoError(t, err)
			require.Equal(t, filepath.Join(out, "Calc_20240601_120000.aia"), p)

			members := readArchive(t, p)
			opts := g.Options()
			kv := project.Parse(members[opts.DescriptorPath])
			require.Equal(t, "Calc", kv["name"])

			src := opts.SourceDir("Calc")
			body, ok := document.UnwrapProperties(members[src+"/Screen1.scm"])
			require.True(t, ok)
			var scm struct {
				Properties struct {
					Components []struct {
						Type string `json:"$Type"`
						Text string `json:"Text"`
					} `json:"$Components"`
				}
			}
			require.NoError(t, json.Unmarshal(body, &scm))
			require.Equal(t, "Button", scm.Properties.Components[0].Type)
			require.Equal(t, "1", scm.Properties.Components[0].Text)

			bky, ok := members[src+"/Screen1.bky"]
			require.True(t, ok)
			if opts.RequiresBlocks() {
				require.NoError(t, xml.Unmarshal(bky, new(struct{})))
			} else {
				require.Empty(t, bky)
			}
			require.Contains(t, members, "assets/")
			require.Contains(t, members, "build/")

			entries, err := os.ReadDir(out)
			require.NoError(t, err)
			require.Len(t, entries, 1, "only the published archive may remain")
		})
	}
}

func TestDefaultCompleteness(t *testing.T) {
	spec, err := types.Decode([]byte(`{"app_name":"Bare","screens":[{}]}`))
	require.NoError(t, err)
	for _, variant := range format.Variants() {
		g := newGenerator(t, variant)
		p, err := g.Generate(context.Background(), spec, t.TempDir())
		require.NoError(t, err, variant)
		require.NoError(t, validate.New(g.Options(), "Bare", true, nil).Validate(p))
	}
}

func TestDocumentsDeterministic(t *testing.T) {
	g := newGenerator(t, "ai2")
	spec := calc()
	spec.Blocks = []types.EventBinding{{Event: "B1.Click", Action: types.ParseAction("set B1.Text to 'pressed'")}}

	a, err := g.Documents(spec, time.Unix(0, 0))
	require.NoError(t, err)
	b, err := g.Documents(spec, time.Unix(1_000_000, 0))
	require.NoError(t, err)
	require.Equal(t, a.Screens, b.Screens)

	da := bytes.SplitN(a.Descriptor, []byte("\n"), 3)
	db := bytes.SplitN(b.Descriptor, []byte("\n"), 3)
	require.Equal(t, da[2], db[2])
}

func TestGenerateIsByteIdentical(t *testing.T) {
	g := newGenerator(t, "ai2")
	p1, err := g.Generate(context.Background(), calc(), t.TempDir())
	require.NoError(t, err)
	p2, err := g.Generate(context.Background(), calc(), t.TempDir())
	require.NoError(t, err)
	b1, err := os.ReadFile(p1)
	require.NoError(t, err)
	b2, err := os.ReadFile(p2)
	require.NoError(t, err)
	require.Equal(t, b1, b2)
}

func TestGenerateConcurrentSameSecond(t *testing.T) {
	g := newGenerator(t, "ai2")
	out := t.TempDir()
	const n = 12

	paths := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			paths[i], errs[i] = g.Generate(context.Background(), calc(), out)
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := range n {
		require.NoError(t, errs[i])
		require.False(t, seen[paths[i]], paths[i])
		seen[paths[i]] = true
	}
	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, n)
	for _, e := range entries {
		require.True(t, strings.HasPrefix(e.Name(), "Calc_20240601_120000"), e.Name())
	}
}

func TestValidationFailureLeavesNothing(t *testing.T) {
	g := newGenerator(t, "ai2")
	g.check = func(string, string) error {
		return &validate.Error{Kind: validate.KindMissingBKY}
	}
	out := t.TempDir()
	_, err := g.Generate(context.Background(), calc(), out)
	require.ErrorIs(t, err, ErrValidation)
	require.False(t, errors.Is(err, ErrBuild))

	var verr *validate.Error
	require.True(t, errors.As(err, &verr))
	require.Equal(t, validate.KindMissingBKY, verr.Kind)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestBuildFailure(t *testing.T) {
	g := newGenerator(t, "ai2")
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := g.Generate(context.Background(), calc(), file)
	require.ErrorIs(t, err, ErrBuild)

	_, err = g.Generate(context.Background(), calc(), "")
	require.ErrorIs(t, err, ErrBuild)

	_, err = g.Generate(context.Background(), nil, t.TempDir())
	require.ErrorIs(t, err, ErrBuild)
}

func TestStartReportsOnce(t *testing.T) {
	g := newGenerator(t, "ai2")
	out := t.TempDir()
	ch := g.Start(context.Background(), calc(), out)

	res, ok := <-ch
	require.True(t, ok)
	require.NoError(t, res.Err)
	require.True(t, strings.HasPrefix(res.Path, out))
	_, ok = <-ch
	require.False(t, ok)
}

func TestStartCancelled(t *testing.T) {
	stage := t.TempDir()
	g := newGenerator(t, "ai2", WithStageDir(stage))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := t.TempDir()
	res := <-g.Start(ctx, calc(), out)
	require.ErrorIs(t, res.Err, context.Canceled)
	require.ErrorIs(t, res.Err, ErrBuild)

	for _, dir := range []string{stage, out} {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Empty(t, entries, dir)
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(format.Options{IDPolicy: "snowflake"})
	require.ErrorContains(t, err, "unknown policy")

	_, err = New(format.Options{Compression: format.Deflate, CompressionLevel: 11})
	require.Error(t, err)
}
