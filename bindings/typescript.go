package bindings

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wippyai/witdeps/compose"
	"github.com/wippyai/witdeps/errors"
	"github.com/wippyai/witdeps/idl"
	"github.com/wippyai/witdeps/internal/fsutil"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Transpiler produces TypeScript declarations for a world of a WIT
// directory.
type Transpiler interface {
	Types(ctx context.Context, witDir, world, outDir string) error
}

// Jco runs `jco types`. Command defaults to "jco".
type Jco struct {
	Command string
}

func (j Jco) Types(ctx context.Context, witDir, world, outDir string) error {
	name := j.Command
	if name == "" {
		name = "jco"
	}
	cmd := exec.CommandContext(ctx, name, "types", witDir, "--world-name", world, "-o", outDir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.New(errors.PhaseBindings, errors.KindIOFailure).
			Name(name).
			Detail("%s types failed: %s", name, strings.TrimSpace(string(out))).
			Cause(err).
			Build()
	}
	return nil
}

const (
	tsDepsDir  = "deps"
	tsTypesDir = "types"
)

type tsPackageJSON struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Private bool   `json:"private"`
	Type    string `json:"type"`
	Types   string `json:"types"`
}

type tsConfig struct {
	CompilerOptions map[string]any `json:"compilerOptions"`
	Include         []string       `json:"include"`
}

// tsExport is one line pair of the re-export index.
type tsExport struct {
	Ident  string
	Module string
}

func (p *Projector) typescript(ctx context.Context, req Request, deps []dependency, res *Result) error {
	if p.Transpiler == nil {
		return errors.InvalidInput(errors.PhaseBindings, "no transpiler configured")
	}
	g := req.Descriptor.Graph
	root := filepath.Join(req.Dir, tsDepsDir)
	names := newIdentifiers()
	var exports []tsExport

	for _, dep := range deps {
		slug := dep.slug("-")
		dir := filepath.Join(root, slug)
		if err := writePackage(dir, dep, req.Descriptor, g, res); err != nil {
			return err
		}
		if err := p.Transpiler.Types(ctx, filepath.Join(dir, "wit"), compose.DescriptorWorld, filepath.Join(dir, tsTypesDir)); err != nil {
			return err
		}
		for _, id := range dep.Interfaces {
			iface := g.Interfaces[id].Name
			exports = append(exports, tsExport{
				Ident:  names.assign(iface, dep.Name.Name),
				Module: "./" + slug + "/" + tsTypesDir + "/interfaces/" + dep.Name.Namespace + "-" + dep.Name.Name + "-" + iface + ".js",
			})
		}
	}

	index := filepath.Join(root, "index.ts")
	if err := fsutil.WriteFile(index, []byte(renderIndex(exports))); err != nil {
		return err
	}
	res.wrote(index)
	Logger().Debug("wrote typescript index", zap.String("path", index), zap.Int("exports", len(exports)))
	return nil
}

func writePackage(dir string, dep dependency, d *compose.Descriptor, g *idl.Graph, res *Result) error {
	version := dep.Name.VersionString()
	if version == "" {
		version = "0.0.0"
	}
	slug := dep.slug("-")
	pkg, err := json.MarshalIndent(tsPackageJSON{
		Name:    "@witdeps/" + slug,
		Version: version,
		Private: true,
		Type:    "module",
		Types:   tsTypesDir + "/" + compose.DescriptorWorld + ".d.ts",
	}, "", "  ")
	if err != nil {
		return errors.Wrap(errors.PhaseBindings, errors.KindInvalidInput, err, "encode package.json")
	}
	cfg, err := json.MarshalIndent(tsConfig{
		CompilerOptions: map[string]any{
			"declaration":      true,
			"module":           "nodenext",
			"moduleResolution": "nodenext",
			"skipLibCheck":     true,
			"strict":           true,
			"target":           "es2022",
		},
		Include: []string{tsTypesDir + "/**/*.d.ts"},
	}, "", "  ")
	if err != nil {
		return errors.Wrap(errors.PhaseBindings, errors.KindInvalidInput, err, "encode tsconfig.json")
	}

	keep := make(map[string]bool, len(dep.Interfaces))
	for _, q := range dep.names(g) {
		keep[q] = true
	}
	wit, err := d.RenderImports(func(q string) bool { return keep[q] })
	if err != nil {
		return errors.Wrap(errors.PhaseBindings, errors.KindInvalidInput, err, "render package wit")
	}

	files := []struct {
		path string
		data []byte
	}{
		{filepath.Join(dir, "package.json"), append(pkg, '\n')},
		{filepath.Join(dir, "tsconfig.json"), append(cfg, '\n')},
		{filepath.Join(dir, "wit", compose.DescriptorFile), []byte(wit)},
	}
	for _, f := range files {
		if err := fsutil.WriteFile(f.path, f.data); err != nil {
			return err
		}
		res.wrote(f.path)
	}
	return os.MkdirAll(filepath.Join(dir, tsTypesDir), 0o755)
}

func renderIndex(exports []tsExport) string {
	var b strings.Builder
	b.WriteString("// Generated by witdeps. Do not edit.\n\n")
	for _, e := range exports {
		b.WriteString("import * as " + e.Ident + " from " + strconv.Quote(e.Module) + ";\n")
	}
	b.WriteString("\nexport {\n")
	for _, e := range exports {
		b.WriteString("  " + e.Ident + ",\n")
	}
	b.WriteString("};\n")
	return b.String()
}

// identifiers hands out unique camelCase identifiers. A repeated candidate
// is prefixed with its package name, then numbered.
type identifiers struct {
	used  map[string]bool
	count map[string]int
}

func newIdentifiers() *identifiers {
	return &identifiers{used: map[string]bool{}, count: map[string]int{}}
}

func (ids *identifiers) assign(name, pkg string) string {
	candidate := camel(name)
	ids.count[candidate]++
	id := candidate
	if ids.used[id] {
		id = camel(pkg + "-" + name)
		for n := ids.count[candidate]; ids.used[id]; n++ {
			id = camel(pkg+"-"+name) + strconv.Itoa(n)
		}
	}
	ids.used[id] = true
	return id
}

// camel converts a kebab-case WIT name to lowerCamelCase.
func camel(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '_' || r == '.' })
	if len(parts) == 0 {
		return "_"
	}
	title := cases.Title(language.Und, cases.NoLower)
	var b strings.Builder
	b.WriteString(strings.ToLower(parts[0]))
	for _, p := range parts[1:] {
		b.WriteString(title.String(strings.ToLower(p)))
	}
	out := b.String()
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}
