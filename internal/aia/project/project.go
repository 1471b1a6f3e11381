// Package project renders the project descriptor (project.properties).
package project

import (
	"bufio"
	"bytes"
	"path"
	"strings"
	"time"

	"aiaforge/internal/aia/encode"
	"aiaforge/internal/aia/format"
	"aiaforge/internal/types"
)

// Entry is one key=value line of the descriptor.
type Entry struct {
	Key   string
	Value string
}

var locationPermissions = []string{"ACCESS_FINE_LOCATION", "ACCESS_COARSE_LOCATION"}

// Entries returns the descriptor keys in output order. Paths are relative to
// the descriptor's own directory.
func Entries(spec *types.ApplicationSpec, opts format.Options) []Entry {
	rel := relPrefix(opts.DescriptorPath)
	main := ""
	if ms := spec.MainScreen(); ms != nil {
		main = ms.Name
	}
	usesLocation := false
	for _, p := range locationPermissions {
		if spec.HasPermission(p) {
			usesLocation = true
			break
		}
	}
	return []Entry{
		{"sizing", "Responsive"},
		{"color.primary.dark", "&HFF303F9F"},
		{"color.primary", "&HFF3F51B5"},
		{"color.accent", "&HFFFF4081"},
		{"aname", spec.AppName},
		{"defaultfilescope", "App"},
		{"main", opts.MainPointer(spec.AppName, main)},
		{"source", rel + "src"},
		{"actionbar", encode.Bool(true)},
		{"useslocation", encode.Bool(usesLocation)},
		{"assets", rel + "assets"},
		{"build", rel + "build"},
		{"name", spec.AppName},
		{"showlistsasjson", encode.Bool(true)},
		{"theme", "AppTheme.Light.DarkActionBar"},
		{"versioncode", "1"},
		{"versionname", "1.0"},
	}
}

// Build renders the descriptor. at only feeds the timestamp comment line.
func Build(spec *types.ApplicationSpec, opts format.Options, at time.Time) []byte {
	var buf bytes.Buffer
	buf.WriteString("#\n")
	buf.WriteString("#" + at.UTC().Format(time.UnixDate) + "\n")
	for _, e := range Entries(spec, opts) {
		buf.WriteString(e.Key)
		buf.WriteByte('=')
		buf.WriteString(e.Value)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Parse reads key=value lines, skipping comments.
func Parse(data []byte) map[string]string {
	out := map[string]string{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

// relPrefix climbs from the descriptor's directory back to the archive root.
func relPrefix(descriptor string) string {
	dir := path.Dir(descriptor)
	if dir == "." || dir == "/" {
		return ""
	}
	return strings.Repeat("../", strings.Count(strings.Trim(dir, "/"), "/")+1)
}
