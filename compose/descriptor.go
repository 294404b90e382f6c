package compose

import (
	"os"
	"path/filepath"

	"github.com/wippyai/witdeps/errors"
	"github.com/wippyai/witdeps/idl"
	"github.com/wippyai/witdeps/internal/fsutil"
	"go.uber.org/zap"
)

const (
	// DescriptorPackage is the root package of every aggregate descriptor.
	DescriptorPackage = "root:deps"
	// DescriptorWorld is the single world of the descriptor.
	DescriptorWorld = "deps"
	// DescriptorFile is the descriptor file name inside the component directory.
	DescriptorFile = "deps.wit"
)

const skeleton = "package " + DescriptorPackage + ";\n\nworld " + DescriptorWorld + " {\n}\n"

// DescriptorPath returns .wit/components/<id>/deps.wit under the application
// directory.
func DescriptorPath(appDir, componentID string) string {
	return filepath.Join(appDir, ".wit", "components", componentID, DescriptorFile)
}

// Descriptor is the aggregate dependency descriptor of one component.
type Descriptor struct {
	Graph   *idl.Graph
	Path    string
	Package idl.PackageID
	World   idl.WorldID
}

// LoadDescriptor parses the descriptor at path. A missing file yields an
// empty descriptor.
func LoadDescriptor(path string) (*Descriptor, error) {
	src, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		src = []byte(skeleton)
	case err != nil:
		return nil, errors.IO("read descriptor", path, err)
	}
	d, err := ParseDescriptor(string(src))
	if err != nil {
		var e *errors.Error
		if errors.As(err, &e) && e.Name == "" {
			e.Name = path
		}
		return nil, err
	}
	d.Path = path
	return d, nil
}

// ParseDescriptor parses descriptor text.
func ParseDescriptor(src string) (*Descriptor, error) {
	g, pkg, err := idl.Parse(src)
	if err != nil {
		return nil, err
	}
	w, ok := g.FindWorld(pkg, DescriptorWorld)
	if !ok {
		return nil, errors.NotFound(errors.PhaseMerge, "world", DescriptorWorld)
	}
	return &Descriptor{Graph: g, Package: pkg, World: w}, nil
}

// Imports returns the qualified keys imported by the deps world, in order.
func (d *Descriptor) Imports() []string {
	entries := d.Graph.Worlds[d.World].Imports
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, d.Graph.KeyName(e.Key))
	}
	return out
}

// Add importizes the selected exports of world, one dependency world per
// selected package, and merges them into the deps world. On error the
// descriptor is unchanged.
func (d *Descriptor) Add(g *idl.Graph, world idl.WorldID, sel Selection) error {
	work := d.Graph.Clone()
	pkg := g.Worlds[world].Package
	for _, ps := range sel.Packages {
		cand := g.Clone()
		dw, err := Importize(cand, pkg, world, DependencyWorldName(ps.Package), SelectionFilter(ps))
		if err != nil {
			return err
		}
		isolate(cand, dw)
		if err := mergeInto(work, d.World, cand, dw); err != nil {
			return err
		}
	}
	d.Graph = work
	return nil
}

// Merge folds an import-only world of cand into the deps world. On error
// the descriptor is unchanged.
func (d *Descriptor) Merge(cand *idl.Graph, world idl.WorldID) error {
	work := d.Graph.Clone()
	if err := mergeInto(work, d.World, cand, world); err != nil {
		return err
	}
	d.Graph = work
	return nil
}

func mergeInto(target *idl.Graph, deps idl.WorldID, cand *idl.Graph, world idl.WorldID) error {
	remap, err := MergeGraphs(target, cand)
	if err != nil {
		return err
	}
	merged, err := remap.World(world)
	if err != nil {
		return errors.Wrap(errors.PhaseMerge, errors.KindNotFound, err, "dependency world")
	}
	return MergeWorldImports(target, merged, deps)
}

// isolate empties every world of g but keep, so that the source world of
// the component takes no part in the merge.
func isolate(g *idl.Graph, keep idl.WorldID) {
	for i := range g.Worlds {
		if idl.WorldID(i) != keep {
			g.Worlds[i].Imports = nil
			g.Worlds[i].Exports = nil
		}
	}
}

// Render prints the descriptor without doc comments.
func (d *Descriptor) Render() (string, error) {
	return idl.Print(d.Graph, d.Package, idl.PrintOptions{})
}

// RenderImports prints the descriptor with the deps world reduced to the
// interface imports keep accepts. Packages only the dropped imports reach
// are left out.
func (d *Descriptor) RenderImports(keep func(name string) bool) (string, error) {
	g := d.Graph.Clone()
	w := &g.Worlds[d.World]
	var entries []idl.WorldEntry
	for _, e := range w.Imports {
		if e.Key.IsInterface() && keep(g.KeyName(e.Key)) {
			entries = append(entries, e)
		}
	}
	w.Imports = entries
	return idl.Print(g, d.Package, idl.PrintOptions{})
}

// Persist writes the rendered descriptor to its path, creating the
// component directory. The file is replaced through a rename.
func (d *Descriptor) Persist() error {
	text, err := d.Render()
	if err != nil {
		return errors.Wrap(errors.PhaseMerge, errors.KindInvalidInput, err, "render descriptor")
	}
	if err := fsutil.WriteFile(d.Path, []byte(text)); err != nil {
		return err
	}
	Logger().Info("wrote dependency descriptor",
		zap.String("path", d.Path),
		zap.Int("imports", len(d.Graph.Worlds[d.World].Imports)))
	return nil
}
