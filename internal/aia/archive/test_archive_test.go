package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"aiaforge/internal/aia/document"
	"aiaforge/internal/aia/format"
	"aiaforge/internal/types"
)

func input() Input {
	return Input{
		Spec: types.Normalize(types.ApplicationSpec{AppName: "Calc"}),
		Screens: []document.ScreenDocuments{
			{Screen: "Screen1", Properties: []byte("#|\n$JSON\n{}\n|#"), Blocks: []byte("<xml></xml>")},
		},
		Descriptor: []byte("name=Calc\n"),
		Modified:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func assemble(t *testing.T, variant string) (string, string, string) {
	t.Helper()
	opts, err := format.Lookup(variant)
	require.NoError(t, err)
	a := NewAssembler(opts, nil)
	a.StageDir = t.TempDir()
	out := t.TempDir()
	tmp, err := a.Assemble(context.Background(), input(), out)
	require.NoError(t, err)
	return tmp, out, a.StageDir
}

func TestAssembleLayout(t *testing.T) {
	tmp, out, stageDir := assemble(t, "ai2")
	require.Equal(t, out, filepath.Dir(tmp))

	zr, err := zip.OpenReader(tmp)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	methods := map[string]uint16{}
	for _, f := range zr.File {
		names = append(names, f.Name)
		methods[f.Name] = f.Method
	}
	require.Equal(t, []string{
		"assets/",
		"build/",
		"src/",
		"src/appinventor/",
		"src/appinventor/ai_developer/",
		"src/appinventor/ai_developer/Calc/",
		"src/appinventor/ai_developer/Calc/Screen1.bky",
		"src/appinventor/ai_developer/Calc/Screen1.scm",
		"youngandroidproject/",
		"youngandroidproject/project.properties",
	}, names)
	require.Equal(t, zip.Deflate, methods["youngandroidproject/project.properties"])
	require.Equal(t, zip.Store, methods["assets/"])

	left, err := os.ReadDir(stageDir)
	require.NoError(t, err)
	require.Empty(t, left, "staging dir must be removed")
}

func TestAssembleStoredVariant(t *testing.T) {
	tmp, _, _ := assemble(t, "minimal")
	zr, err := zip.OpenReader(tmp)
	require.NoError(t, err)
	defer zr.Close()

	found := false
	for _, f := range zr.File {
		require.Equal(t, zip.Store, f.Method, f.Name)
		if f.Name == "project.properties" {
			found = true
		}
	}
	require.True(t, found)
}

func TestAssembleIsReproducible(t *testing.T) {
	a, _, _ := assemble(t, "ai2")
	b, _, _ := assemble(t, "ai2")
	ba, err := os.ReadFile(a)
	require.NoError(t, err)
	bb, err := os.ReadFile(b)
	require.NoError(t, err)
	require.Equal(t, ba, bb)
}

func TestAssembleCancelled(t *testing.T) {
	opts, err := format.Lookup("ai2")
	require.NoError(t, err)
	a := NewAssembler(opts, nil)
	a.StageDir = t.TempDir()
	out := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Assemble(ctx, input(), out)
	require.ErrorIs(t, err, context.Canceled)

	left, err := os.ReadDir(a.StageDir)
	require.NoError(t, err)
	require.Empty(t, left)
	left, err = os.ReadDir(out)
	require.NoError(t, err)
	require.Empty(t, left)
}

func TestPublishAvoidsCollisions(t *testing.T) {
	out := t.TempDir()
	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	var got []string
	for range 3 {
		tmp := filepath.Join(out, ".tmp")
		require.NoError(t, os.WriteFile(tmp, []byte("x"), 0o644))
		p, err := Publish(tmp, out, "Calc", at)
		require.NoError(t, err)
		got = append(got, filepath.Base(p))
	}
	require.Equal(t, []string{"Calc_20240506_070809.aia", "Calc_20240506_070809_2.aia", "Calc_20240506_070809_3.aia"}, got)
}

func TestPublishNeverReplacesExisting(t *testing.T) {
	out := t.TempDir()
	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	taken := filepath.Join(out, "Calc_20240506_070809.aia")
	require.NoError(t, os.WriteFile(taken, []byte("first"), 0o644))

	tmp := filepath.Join(out, ".tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("second"), 0o644))
	p, err := Publish(tmp, out, "Calc", at)
	require.NoError(t, err)
	require.Equal(t, "Calc_20240506_070809_2.aia", filepath.Base(p))

	data, err := os.ReadFile(taken)
	require.NoError(t, err)
	require.Equal(t, "first", string(data))
	_, err = os.Stat(tmp)
	require.True(t, os.IsNotExist(err))
}

func TestPublishConcurrent(t *testing.T) {
	out := t.TempDir()
	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	const n = 16

	paths := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		tmp := filepath.Join(out, fmt.Sprintf(".tmp-%d", i))
		require.NoError(t, os.WriteFile(tmp, []byte(fmt.Sprint(i)), 0o644))
		wg.Add(1)
		go func() {
			defer wg.Done()
			paths[i], errs[i] = Publish(tmp, out, "Calc", at)
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := range n {
		require.NoError(t, errs[i])
		require.False(t, seen[paths[i]], paths[i])
		seen[paths[i]] = true
		data, err := os.ReadFile(paths[i])
		require.NoError(t, err)
		require.Equal(t, fmt.Sprint(i), string(data))
	}
	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, n)
}
