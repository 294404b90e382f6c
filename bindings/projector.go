package bindings

import (
	"context"
	"strings"

	"github.com/wippyai/witdeps/compose"
	"github.com/wippyai/witdeps/errors"
	"github.com/wippyai/witdeps/idl"
	"go.uber.org/zap"
)

// Projector writes binding sources for the dependencies of a component.
type Projector struct {
	Transpiler  Transpiler
	GoGenerator GoGenerator
	Known       KnownInterfaces
}

// NewProjector returns a projector with the default tables and the jco and
// wit-bindgen-go generators.
func NewProjector() *Projector {
	return &Projector{
		Known:       DefaultKnownInterfaces(),
		Transpiler:  Jco{},
		GoGenerator: WitBindgenGo{},
	}
}

// Request describes one projection.
type Request struct {
	Descriptor *compose.Descriptor
	// Component is the manifest component id.
	Component string
	// Dir is the component build directory.
	Dir string
	// Imports restricts projection to these qualified interfaces. Empty
	// means every import of the descriptor.
	Imports []string
	// Ecosystem overrides detection.
	Ecosystem Ecosystem
}

// Result lists what a projection wrote.
type Result struct {
	Ecosystem Ecosystem
	Files     []string
}

func (r *Result) wrote(path string) {
	r.Files = append(r.Files, path)
}

// Project detects the ecosystem of the build directory and writes its
// bindings. Nothing is written when the ecosystem cannot be determined.
func (p *Projector) Project(ctx context.Context, req Request) (*Result, error) {
	eco, err := ResolveEcosystem(req.Dir, req.Ecosystem)
	if err != nil {
		return nil, err
	}

	deps := dependencies(req.Descriptor, req.Imports)
	res := &Result{Ecosystem: eco}
	Logger().Info("projecting bindings",
		zap.String("component", req.Component),
		zap.String("ecosystem", string(eco)),
		zap.String("dir", req.Dir),
		zap.Int("packages", len(deps)))

	switch eco {
	case Rust:
		err = p.rust(req, deps, res)
	case TypeScript:
		err = p.typescript(ctx, req, deps, res)
	case Go:
		err = p.golang(ctx, req, res)
	default:
		err = errors.UnknownBuildEcosystem(req.Dir)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// dependency is one imported package with its imported interfaces.
type dependency struct {
	Name       idl.PackageName
	Interfaces []idl.InterfaceID
	Package    idl.PackageID
}

// dependencies groups the interface imports of the deps world by package,
// in import order.
func dependencies(d *compose.Descriptor, only []string) []dependency {
	want := make(map[string]bool, len(only))
	for _, q := range only {
		want[q] = true
	}
	g := d.Graph
	var out []dependency
	index := make(map[idl.PackageID]int)
	for _, e := range g.Worlds[d.World].Imports {
		if !e.Key.IsInterface() {
			continue
		}
		if len(want) > 0 && !want[g.KeyName(e.Key)] {
			continue
		}
		pkg := g.Interfaces[e.Key.Interface].Package
		i, ok := index[pkg]
		if !ok {
			i = len(out)
			index[pkg] = i
			out = append(out, dependency{Name: g.Packages[pkg].Name, Package: pkg})
		}
		out[i].Interfaces = append(out[i].Interfaces, e.Key.Interface)
	}
	return out
}

// slug names the dependency in generated paths: namespace, name and the
// version when there is one, joined by sep. Dots and build separators in
// the version become sep too.
func (dep dependency) slug(sep string) string {
	parts := []string{dep.Name.Namespace, dep.Name.Name}
	if v := dep.Name.VersionString(); v != "" {
		parts = append(parts, strings.NewReplacer(".", sep, "+", sep).Replace(v))
	}
	return strings.Join(parts, sep)
}

// names returns the qualified names of the dependency's interfaces.
func (dep dependency) names(g *idl.Graph) []string {
	out := make([]string, len(dep.Interfaces))
	for i, id := range dep.Interfaces {
		out[i] = g.InterfaceName(id)
	}
	return out
}
