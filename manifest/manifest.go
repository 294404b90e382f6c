package manifest

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/wippyai/witdeps/errors"
	"github.com/wippyai/witdeps/internal/fsutil"
	"go.uber.org/zap"
)

// DefaultFile is the manifest file name looked up by Find.
const DefaultFile = "spin.toml"

// Manifest is a loaded application manifest. The raw text is kept so that
// edits only rewrite the dependency tables.
type Manifest struct {
	Path string
	text string
	doc  document
}

type document struct {
	Component map[string]componentTable `toml:"component"`
	Version   int                       `toml:"spin_manifest_version"`
}

type componentTable struct {
	Build        *buildTable    `toml:"build"`
	Dependencies map[string]any `toml:"dependencies"`
}

type buildTable struct {
	Command any    `toml:"command"`
	Workdir string `toml:"workdir"`
}

// Dependency is one entry of a component dependency table.
type Dependency struct {
	Source Source
	Name   string
}

// Find walks up from dir to the first directory containing DefaultFile.
func Find(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.IO("resolve", dir, err)
	}
	for d := abs; ; d = filepath.Dir(d) {
		p := filepath.Join(d, DefaultFile)
		if fsutil.IsFile(p) {
			return p, nil
		}
		if filepath.Dir(d) == d {
			break
		}
	}
	return "", errors.NotFound(errors.PhaseManifest, "manifest", filepath.Join(abs, DefaultFile))
}

// Load reads and decodes the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IO("read manifest", path, err)
	}
	m, err := Parse(string(data))
	if err != nil {
		var e *errors.Error
		if errors.As(err, &e) && e.Name == "" {
			e.Name = path
		}
		return nil, err
	}
	m.Path = path
	Logger().Debug("loaded manifest",
		zap.String("path", path),
		zap.Int("components", len(m.doc.Component)))
	return m, nil
}

// Parse decodes manifest text.
func Parse(text string) (*Manifest, error) {
	m := &Manifest{text: text}
	if err := m.decode(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manifest) decode() error {
	var doc document
	if err := toml.Unmarshal([]byte(m.text), &doc); err != nil {
		return errors.New(errors.PhaseManifest, errors.KindSyntax).
			Name(m.Path).
			Detail("decode manifest").
			Cause(err).
			Build()
	}
	m.doc = doc
	return nil
}

// ComponentIDs lists the components in document order.
func (m *Manifest) ComponentIDs() []string {
	var ids []string
	seen := make(map[string]bool)
	if l, err := scan(m.text); err == nil {
		for _, h := range l.headers {
			if len(h.keys) < 2 || h.keys[0] != "component" || seen[h.keys[1]] {
				continue
			}
			if _, ok := m.doc.Component[h.keys[1]]; ok {
				seen[h.keys[1]] = true
				ids = append(ids, h.keys[1])
			}
		}
	}
	var rest []string
	for id := range m.doc.Component {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}

// HasComponent reports whether the manifest declares the component.
func (m *Manifest) HasComponent(id string) bool {
	_, ok := m.doc.Component[id]
	return ok
}

// Dependencies decodes the dependency table of a component, sorted by name.
func (m *Manifest) Dependencies(id string) ([]Dependency, error) {
	c, ok := m.doc.Component[id]
	if !ok {
		return nil, errors.ManifestComponentNotFound(id)
	}
	names := make([]string, 0, len(c.Dependencies))
	for name := range c.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Dependency, 0, len(names))
	for _, name := range names {
		src, err := sourceFromValue(name, c.Dependencies[name])
		if err != nil {
			return nil, err
		}
		out = append(out, Dependency{Name: name, Source: src})
	}
	return out, nil
}

// BuildDir returns the directory the component is built in: the manifest
// directory joined with build.workdir when set.
func (m *Manifest) BuildDir(id string) (string, error) {
	c, ok := m.doc.Component[id]
	if !ok {
		return "", errors.ManifestComponentNotFound(id)
	}
	base := filepath.Dir(m.Path)
	if m.Path == "" {
		base = "."
	}
	if c.Build != nil && c.Build.Workdir != "" {
		return filepath.Join(base, filepath.FromSlash(c.Build.Workdir)), nil
	}
	return base, nil
}

// SetDependencies records src under every name in the component's
// dependency table. Existing entries with other names, comments and the
// rest of the document are kept as they are.
func (m *Manifest) SetDependencies(id string, names []string, src Source) error {
	c, ok := m.doc.Component[id]
	if !ok {
		return errors.ManifestComponentNotFound(id)
	}
	if len(names) == 0 {
		return errors.InvalidInput(errors.PhaseManifest, "no dependency names")
	}

	l, err := scan(m.text)
	if err != nil {
		return errors.New(errors.PhaseManifest, errors.KindSyntax).Name(m.Path).Cause(err).Build()
	}

	var out []string
	if i := l.findHeader("component", id, "dependencies"); i >= 0 {
		out = replaceEntries(l, i, names, src)
	} else {
		if c.Dependencies != nil {
			return errors.New(errors.PhaseManifest, errors.KindUnsupported).
				Name(id).
				Detail("dependencies are not declared as a [component.%s.dependencies] table", id).
				Build()
		}
		out, err = insertTable(l, id, names, src)
		if err != nil {
			return err
		}
	}

	prev := m.text
	m.text = strings.Join(out, "\n")
	if err := m.decode(); err != nil {
		m.text = prev
		return err
	}
	Logger().Debug("updated component dependencies",
		zap.String("component", id),
		zap.Strings("names", names),
		zap.String("source", Describe(src)))
	return nil
}

// Render returns the current manifest text.
func (m *Manifest) Render() string {
	return m.text
}

// Save writes the manifest back to its path.
func (m *Manifest) Save() error {
	if m.Path == "" {
		return errors.InvalidInput(errors.PhaseManifest, "manifest has no path")
	}
	if err := fsutil.WriteFile(m.Path, []byte(m.text)); err != nil {
		return err
	}
	Logger().Info("wrote manifest", zap.String("path", m.Path))
	return nil
}

func entry(name string, src Source) string {
	return key(name) + " = " + src.Inline()
}

// replaceEntries rewrites the entries of header hi named in names, each
// to a single line, and appends the names it did not find after the last
// entry of the table.
func replaceEntries(l *layout, hi int, names []string, src Source) []string {
	start := l.headers[hi].line + 1
	end := l.regionEnd(hi)

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	// Entries are replaced from the bottom so earlier line numbers stay valid.
	lines := append([]string(nil), l.lines...)
	for i := len(l.entries) - 1; i >= 0; i-- {
		kv := l.entries[i]
		name, ok := kv.name()
		if kv.table != hi || !ok || !want[name] {
			continue
		}
		tail := lines[kv.last+1:]
		lines = append(append(lines[:kv.first:kv.first], entry(name, src)), tail...)
		end -= kv.last - kv.first
		delete(want, name)
	}

	last := end
	for last > start && isBlank(lines[last-1]) {
		last--
	}
	var added []string
	for _, n := range names {
		if want[n] {
			added = append(added, entry(n, src))
			delete(want, n)
		}
	}
	out := make([]string, 0, len(lines)+len(added))
	out = append(out, lines[:last]...)
	out = append(out, added...)
	return append(out, lines[last:]...)
}

func insertTable(l *layout, id string, names []string, src Source) ([]string, error) {
	last := -1
	for i, h := range l.headers {
		if h.under("component", id) {
			last = i
		}
	}
	if last < 0 {
		return nil, errors.New(errors.PhaseManifest, errors.KindUnsupported).
			Name(id).
			Detail("component is not declared with a [component.%s] table", id).
			Build()
	}
	at := l.regionEnd(last)
	for at > l.headers[last].line+1 && isBlank(l.lines[at-1]) {
		at--
	}

	block := []string{"", "[component." + key(id) + ".dependencies]"}
	for _, n := range dedupe(names) {
		block = append(block, entry(n, src))
	}

	out := make([]string, 0, len(l.lines)+len(block))
	out = append(out, l.lines[:at]...)
	out = append(out, block...)
	return append(out, l.lines[at:]...), nil
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0:0]
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
