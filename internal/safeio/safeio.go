// Package safeio confines file access to one root directory. The archive
// assembler stages every generation inside its own SafeFS so no member path
// can land outside the stage.
package safeio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

var ErrTraversal = errors.New("safeio: path traversal not allowed")

// SafeFS resolves slash-separated paths relative to a fixed root.
type SafeFS struct {
	absRoot string // absolute root with symlinks resolved
}

// NewSafeFS locks all future operations to the given root directory.
// The root path is resolved to an absolute, symlink-free directory.
func NewSafeFS(root string) (*SafeFS, error) {
	if root == "" {
		return nil, errors.New("safeio: empty root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("safeio: root is not a directory")
	}
	return &SafeFS{absRoot: abs}, nil
}

// NewStage creates a private temp directory under dir ("" means the system
// temp dir) and returns a SafeFS rooted there. Callers must RemoveAll it.
func NewStage(dir, pattern string) (*SafeFS, error) {
	root, err := os.MkdirTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("safeio: create stage: %w", err)
	}
	s, err := NewSafeFS(root)
	if err != nil {
		_ = os.RemoveAll(root)
		return nil, err
	}
	return s, nil
}

// Root returns the absolute root directory bound to this SafeFS.
func (s *SafeFS) Root() string {
	if s == nil {
		return ""
	}
	return s.absRoot
}

// RemoveAll deletes the root and everything below it.
func (s *SafeFS) RemoveAll() error {
	if s == nil || s.absRoot == "" {
		return nil
	}
	return os.RemoveAll(s.absRoot)
}

// MkdirAll creates a directory (and parents) relative to the root.
func (s *SafeFS) MkdirAll(name string) error {
	rel, err := clean(name)
	if err != nil {
		return err
	}
	if rel == "." {
		return nil
	}
	p := filepath.Join(s.absRoot, filepath.FromSlash(rel))
	if err := os.MkdirAll(p, 0o755); err != nil {
		return err
	}
	return s.checkInside(p)
}

// WriteFile writes data to name relative to the root, creating parents.
func (s *SafeFS) WriteFile(name string, data []byte) error {
	rel, err := clean(name)
	if err != nil {
		return err
	}
	if rel == "." {
		return errors.New("safeio: cannot write to root")
	}
	dir := path.Dir(rel)
	if err := s.MkdirAll(dir); err != nil {
		return err
	}
	parent, err := filepath.EvalSymlinks(filepath.Join(s.absRoot, filepath.FromSlash(dir)))
	if err != nil {
		return err
	}
	if !hasPathPrefix(parent, s.absRoot) {
		return fmt.Errorf("safeio: resolved outside root (root=%s, path=%s)", s.absRoot, parent)
	}
	return os.WriteFile(filepath.Join(parent, path.Base(rel)), data, 0o644)
}

// ReadFile reads a file relative to the root.
func (s *SafeFS) ReadFile(name string) ([]byte, error) {
	p, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, errors.New("safeio: path is a directory")
	}
	return os.ReadFile(p)
}

// Entry is one staged path. Dir entries carry a trailing "/" in Name.
type Entry struct {
	Name string
	Dir  bool
}

// Entries lists every file and directory under the root as slash-separated
// relative names, sorted.
func (s *SafeFS) Entries() ([]Entry, error) {
	var out []Entry
	err := filepath.WalkDir(s.absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == s.absRoot {
			return nil
		}
		rel, err := filepath.Rel(s.absRoot, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if d.IsDir() {
			out = append(out, Entry{Name: name + "/", Dir: true})
			return nil
		}
		if !d.Type().IsRegular() {
			return fmt.Errorf("safeio: unexpected non-regular file %s", name)
		}
		out = append(out, Entry{Name: name})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Open implements fs.FS (names use "/" separators).
func (s *SafeFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, fs.ErrInvalid
	}
	p, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

func (s *SafeFS) resolve(name string) (string, error) {
	if s == nil {
		return "", errors.New("safeio: filesystem not configured")
	}
	rel, err := clean(name)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(filepath.Join(s.absRoot, filepath.FromSlash(rel)))
	if err != nil {
		return "", err
	}
	if !hasPathPrefix(resolved, s.absRoot) {
		return "", fmt.Errorf("safeio: resolved outside root (root=%s, path=%s)", s.absRoot, resolved)
	}
	return resolved, nil
}

func (s *SafeFS) checkInside(p string) error {
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return err
	}
	if !hasPathPrefix(resolved, s.absRoot) {
		return fmt.Errorf("safeio: resolved outside root (root=%s, path=%s)", s.absRoot, resolved)
	}
	return nil
}

// clean normalizes a relative slash path and rejects absolute or escaping ones.
func clean(name string) (string, error) {
	if name == "" {
		return "", errors.New("safeio: empty path")
	}
	name = strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(name, "/") || (runtime.GOOS == "windows" && filepath.VolumeName(name) != "") {
		return "", fmt.Errorf("%w: %q is absolute", ErrTraversal, name)
	}
	c := path.Clean(name)
	if c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("%w: %q", ErrTraversal, name)
	}
	return c, nil
}

func hasPathPrefix(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if runtime.GOOS == "windows" {
		path = strings.ToLower(path)
		root = strings.ToLower(root)
	}
	if len(root) == 0 {
		return true
	}
	if path == root {
		return true
	}
	sep := string(os.PathSeparator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	if !strings.HasSuffix(path, sep) {
		path += sep
	}
	return strings.HasPrefix(path, root)
}
