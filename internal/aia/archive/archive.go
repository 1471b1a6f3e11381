// Package archive stages the generated documents and packs them into an .aia
// container.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"

	"aiaforge/internal/aia/document"
	"aiaforge/internal/aia/format"
	"aiaforge/internal/safeio"
	"aiaforge/internal/types"
)

// Input is everything one archive is made of.
type Input struct {
	Spec       *types.ApplicationSpec
	Screens    []document.ScreenDocuments
	Descriptor []byte
	// Modified stamps every member; fixed values give reproducible bytes.
	Modified time.Time
}

// Assembler lays out the staging tree and packs it.
type Assembler struct {
	opts format.Options
	log  logrus.FieldLogger
	// StageDir is where private staging dirs are created ("" = os.TempDir).
	StageDir string
}

func NewAssembler(opts format.Options, log logrus.FieldLogger) *Assembler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Assembler{opts: opts, log: log}
}

// Layout returns the archive member name of every staged file, keyed by
// member name.
func (a *Assembler) Layout(in Input) map[string][]byte {
	files := map[string][]byte{a.opts.DescriptorPath: in.Descriptor}
	src := a.opts.SourceDir(in.Spec.AppName)
	for _, s := range in.Screens {
		files[path.Join(src, s.Screen+".scm")] = s.Properties
		files[path.Join(src, s.Screen+".bky")] = s.Blocks
	}
	return files
}

// Assemble stages in and packs it into a hidden temp file inside outDir.
// The returned path is not yet published; the caller validates and renames
// it. The staging dir is removed before Assemble returns.
func (a *Assembler) Assemble(ctx context.Context, in Input, outDir string) (string, error) {
	if in.Spec == nil {
		return "", errors.New("archive: nil app spec")
	}
	stage, err := safeio.NewStage(a.StageDir, "aia-stage-*")
	if err != nil {
		return "", err
	}
	defer func() {
		if rmErr := stage.RemoveAll(); rmErr != nil {
			a.log.WithError(rmErr).WithField("stage", stage.Root()).Warn("failed to remove staging dir")
		}
	}()

	for _, dir := range []string{"assets", "build"} {
		if err := stage.MkdirAll(dir); err != nil {
			return "", fmt.Errorf("archive: stage %s: %w", dir, err)
		}
	}
	files := a.Layout(in)
	for _, name := range sortedKeys(files) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := stage.WriteFile(name, files[name]); err != nil {
			return "", fmt.Errorf("archive: stage %s: %w", name, err)
		}
	}
	a.log.WithFields(logrus.Fields{"stage": stage.Root(), "files": len(files)}).Debug("staging tree written")

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("archive: output dir: %w", err)
	}
	f, err := os.CreateTemp(outDir, ".aiagen-*.aia.tmp")
	if err != nil {
		return "", fmt.Errorf("archive: temp archive: %w", err)
	}
	tmp := f.Name()
	if err := Pack(f, stage, a.opts, in.Modified); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("archive: sync: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("archive: close: %w", err)
	}
	return tmp, nil
}

// Pack writes every entry of stage into a zip stream. Members are sorted,
// directories are explicit "name/" entries and names always use "/".
func Pack(w io.Writer, stage *safeio.SafeFS, opts format.Options, modified time.Time) error {
	entries, err := stage.Entries()
	if err != nil {
		return fmt.Errorf("archive: list stage: %w", err)
	}
	zw := zip.NewWriter(w)
	method := zip.Store
	if opts.Compression == format.Deflate {
		method = zip.Deflate
		level := opts.CompressionLevel
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, level)
		})
	}
	if modified.IsZero() {
		modified = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	for _, e := range entries {
		fh := &zip.FileHeader{Name: e.Name, Method: method, Modified: modified.UTC()}
		if e.Dir {
			fh.Method = zip.Store
			fh.SetMode(os.ModeDir | 0o755)
			if _, err := zw.CreateHeader(fh); err != nil {
				return fmt.Errorf("archive: add %s: %w", e.Name, err)
			}
			continue
		}
		fh.SetMode(0o644)
		data, err := stage.ReadFile(e.Name)
		if err != nil {
			return fmt.Errorf("archive: read staged %s: %w", e.Name, err)
		}
		fw, err := zw.CreateHeader(fh)
		if err != nil {
			return fmt.Errorf("archive: add %s: %w", e.Name, err)
		}
		if _, err := fw.Write(data); err != nil {
			return fmt.Errorf("archive: write %s: %w", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("archive: finish: %w", err)
	}
	return nil
}

// Publish moves tmp to "<app>_<YYYYMMDD_HHMMSS>.aia" inside outDir,
// appending "_2", "_3"... when the name is taken. The name is claimed with a
// hard link, which fails instead of replacing, so concurrent publishers never
// overwrite each other.
func Publish(tmp, outDir, appName string, at time.Time) (string, error) {
	base := fmt.Sprintf("%s_%s", appName, at.Format("20060102_150405"))
	for n := 1; ; n++ {
		name := base + ".aia"
		if n > 1 {
			name = fmt.Sprintf("%s_%d.aia", base, n)
		}
		dst := filepath.Join(outDir, name)
		err := os.Link(tmp, dst)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("archive: publish: %w", err)
		}
		if err := os.Remove(tmp); err != nil {
			return "", fmt.Errorf("archive: publish: drop temp: %w", err)
		}
		return dst, nil
	}
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
