package bindings

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/wippyai/witdeps/errors"
	"github.com/wippyai/witdeps/idl"
	"github.com/wippyai/witdeps/internal/fsutil"
	"go.uber.org/zap"
)

// generateFresh is the with-directive target that asks wit-bindgen for new
// bindings.
const generateFresh = "generate"

var rustTemplate = template.Must(template.New("rust").Parse(`// Bindings for {{.Package}}, generated by witdeps. Do not edit.

wit_bindgen::generate!({
    inline: r#"
        package {{.World}};

        world imports {
{{- range .Imports}}
            import {{.}};
{{- end}}
        }
    "#,
    path: {{printf "%q" .WitPath}},
    with: {
{{- range .With}}
        {{printf "%q" .Interface}}: {{.Target}},
{{- end}}
    },
});
`))

type rustModule struct {
	Package string
	Ident   string
	World   string
	WitPath string
	Imports []string
	With    []rustWith
}

type rustWith struct {
	Interface string
	Target    string
}

func (p *Projector) rustModule(g *idl.Graph, dep dependency, witPath string) rustModule {
	m := rustModule{
		Package: dep.Name.String(),
		Ident:   rustIdent(dep.slug("_")),
		World:   "witdeps:" + dep.Name.Namespace + "-" + dep.Name.Name,
		WitPath: witPath,
	}
	if v := dep.Name.VersionString(); v != "" {
		m.World += "@" + v
	}
	for _, q := range dep.names(g) {
		if !p.Known.IsStd(q) {
			m.Imports = append(m.Imports, q)
		}
	}
	for _, id := range g.Closure(dep.Interfaces) {
		q := g.InterfaceName(id)
		if q == "" {
			continue
		}
		target := generateFresh
		if path, ok := p.Known.SDKPath(q); ok {
			target = path
		}
		m.With = append(m.With, rustWith{Interface: q, Target: target})
	}
	return m
}

func (p *Projector) rust(req Request, deps []dependency, res *Result) error {
	src := filepath.Join(req.Dir, "src")
	root, err := crateRoot(src)
	if err != nil {
		return err
	}
	if req.Descriptor.Path == "" {
		return errors.InvalidInput(errors.PhaseBindings, "descriptor has no path")
	}
	witPath, err := filepath.Rel(req.Dir, filepath.Dir(req.Descriptor.Path))
	if err != nil {
		return errors.IO("resolve descriptor path", req.Descriptor.Path, err)
	}
	witPath = filepath.ToSlash(witPath)

	dir := filepath.Join(src, "bindings")
	index := filepath.Join(dir, "mod.rs")
	g := req.Descriptor.Graph
	generated := 0
	for _, dep := range deps {
		m := p.rustModule(g, dep, witPath)
		if len(m.Imports) == 0 {
			Logger().Debug("dependency covered by the standard library", zap.String("package", m.Package))
			continue
		}
		var buf bytes.Buffer
		if err := rustTemplate.Execute(&buf, m); err != nil {
			return errors.Wrap(errors.PhaseBindings, errors.KindInvalidInput, err, "render rust module")
		}
		path := filepath.Join(dir, m.Ident+".rs")
		if err := fsutil.WriteFile(path, buf.Bytes()); err != nil {
			return err
		}
		res.wrote(path)
		generated++

		changed, err := register(index, "pub mod "+m.Ident+";", m.Ident, false)
		if err != nil {
			return err
		}
		if changed {
			res.wrote(index)
		}
	}
	if generated == 0 {
		return nil
	}
	changed, err := register(root, "mod bindings;", "bindings", true)
	if err != nil {
		return err
	}
	if changed {
		res.wrote(root)
	}
	return nil
}

// crateRoot returns src/lib.rs, falling back to src/main.rs.
func crateRoot(src string) (string, error) {
	for _, name := range []string{"lib.rs", "main.rs"} {
		p := filepath.Join(src, name)
		if fsutil.IsFile(p) {
			return p, nil
		}
	}
	return "", errors.New(errors.PhaseBindings, errors.KindNotFound).
		Name(src).
		Detail("no lib.rs or main.rs crate root").
		Build()
}

// register adds decl to the Rust file at path unless a module called name
// is already declared there. With top set the declaration goes after the
// leading use and mod items, otherwise at the end.
func register(path, decl, name string, top bool) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, errors.IO("read", path, err)
	}
	text := string(data)
	if declared(text, decl, name) {
		return false, nil
	}

	var out string
	if top {
		at := headerEnd(data)
		out = text[:at] + decl + "\n" + text[at:]
		if at > 0 && !strings.HasSuffix(text[:at], "\n") {
			out = text[:at] + "\n" + decl + "\n" + text[at:]
		}
	} else {
		out = text
		if out != "" && !strings.HasSuffix(out, "\n") {
			out += "\n"
		}
		out += decl + "\n"
	}
	if err := fsutil.WriteFile(path, []byte(out)); err != nil {
		return false, err
	}
	Logger().Debug("registered rust module", zap.String("path", path), zap.String("decl", decl))
	return true, nil
}

// declared reports whether the exact declaration appears as a line, or the
// parsed file declares a module called name.
func declared(text, decl, name string) bool {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == decl {
			return true
		}
	}
	return declaresModule([]byte(text), name)
}

// rustIdent turns a WIT name into a snake_case Rust identifier.
func rustIdent(s string) string {
	var b strings.Builder
	for i, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
