// Package pipeline runs the witdeps commands end to end: fetching and
// decoding a dependency, selecting from its exports, composing the
// component's dependency descriptor, updating the manifest and projecting
// bindings.
package pipeline

import (
	"context"
	"path/filepath"

	"github.com/wippyai/witdeps/bindings"
	"github.com/wippyai/witdeps/component"
	"github.com/wippyai/witdeps/compose"
	"github.com/wippyai/witdeps/errors"
	"github.com/wippyai/witdeps/fetch"
	"github.com/wippyai/witdeps/idl"
	"github.com/wippyai/witdeps/internal/fsutil"
	"github.com/wippyai/witdeps/manifest"
	"go.uber.org/zap"
)

// DecodeFunc turns component bytes into a graph and its root package.
type DecodeFunc func(ctx context.Context, data []byte) (*idl.Graph, idl.PackageID, error)

// Decoder returns the component decoder with the given options.
func Decoder(opts component.Options) DecodeFunc {
	return func(ctx context.Context, data []byte) (*idl.Graph, idl.PackageID, error) {
		return component.DecodeWithOptions(ctx, data, opts)
	}
}

// AddOptions configures Add.
type AddOptions struct {
	Source   fetch.Source
	Selector Selector
	// Decode defaults to the component decoder with core validation.
	Decode DecodeFunc
	// Projector is nil to skip bindings.
	Projector *bindings.Projector
	// Ecosystem overrides binding ecosystem detection.
	Ecosystem    bindings.Ecosystem
	ManifestPath string
}

// AddResult reports what Add changed.
type AddResult struct {
	Bindings   *bindings.Result
	Component  string
	Descriptor string
	Selection  compose.Selection
	Imports    []string
}

// Add imports the selected interfaces of a dependency component into one
// local component. Every check runs before the first write; the descriptor
// is written before the manifest.
func Add(ctx context.Context, opts AddOptions) (*AddResult, error) {
	if opts.Source == nil || opts.Selector == nil {
		return nil, errors.InvalidInput(errors.PhaseSelect, "add needs a source and a selector")
	}
	decode := opts.Decode
	if decode == nil {
		decode = Decoder(component.DefaultOptions())
	}

	m, err := manifest.Load(opts.ManifestPath)
	if err != nil {
		return nil, err
	}
	dep, err := opts.Source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	Logger().Info("fetched dependency",
		zap.String("source", fetch.Describe(opts.Source)),
		zap.String("name", dep.Name),
		zap.String("digest", dep.Digest))

	g, pkg, err := decode(ctx, dep.Bytes)
	if err != nil {
		return nil, err
	}
	world, err := compose.PrincipalWorld(g, pkg)
	if err != nil {
		return nil, err
	}
	candidates, err := compose.ExportedInterfaces(g, world)
	if err != nil {
		return nil, err
	}

	id, err := opts.Selector.Component(m.ComponentIDs())
	if err != nil {
		return nil, err
	}
	if !m.HasComponent(id) {
		return nil, errors.ManifestComponentNotFound(id)
	}
	sel, err := opts.Selector.Interfaces(candidates)
	if err != nil {
		return nil, err
	}
	if err := sel.Validate(candidates); err != nil {
		return nil, err
	}

	appDir := filepath.Dir(m.Path)
	d, err := compose.LoadDescriptor(compose.DescriptorPath(appDir, id))
	if err != nil {
		return nil, err
	}
	if err := d.Add(g, world, sel); err != nil {
		return nil, err
	}
	if err := m.SetDependencies(id, sel.Keys(), relativeSource(dep.Source, appDir)); err != nil {
		return nil, err
	}

	var buildDir string
	if opts.Projector != nil {
		if buildDir, err = m.BuildDir(id); err != nil {
			return nil, err
		}
		if _, err := bindings.ResolveEcosystem(buildDir, opts.Ecosystem); err != nil {
			return nil, err
		}
	}

	if err := d.Persist(); err != nil {
		return nil, err
	}
	if err := m.Save(); err != nil {
		return nil, err
	}

	res := &AddResult{
		Component:  id,
		Descriptor: d.Path,
		Selection:  sel,
		Imports:    d.Imports(),
	}
	Logger().Info("added dependency",
		zap.String("component", id),
		zap.Strings("selection", sel.Keys()),
		zap.Int("imports", len(res.Imports)))

	if opts.Projector != nil {
		res.Bindings, err = opts.Projector.Project(ctx, bindings.Request{
			Descriptor: d,
			Component:  id,
			Dir:        buildDir,
			Imports:    res.Imports,
			Ecosystem:  opts.Ecosystem,
		})
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// relativeSource rewrites a local path relative to the application
// directory, which is where the manifest resolves it from.
func relativeSource(src manifest.Source, appDir string) manifest.Source {
	l, ok := src.(manifest.Local)
	if !ok {
		return src
	}
	abs, err := filepath.Abs(filepath.FromSlash(l.Path))
	if err != nil {
		return src
	}
	base, err := filepath.Abs(appDir)
	if err != nil {
		return src
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return src
	}
	return manifest.Local{Path: filepath.ToSlash(rel)}
}

// BindingsOptions configures Bindings.
type BindingsOptions struct {
	Projector *bindings.Projector
	// Component limits projection to one component. Empty means every
	// component with a dependency descriptor.
	Component    string
	Ecosystem    bindings.Ecosystem
	ManifestPath string
}

// Bindings regenerates bindings from the persisted descriptors.
func Bindings(ctx context.Context, opts BindingsOptions) ([]*bindings.Result, error) {
	if opts.Projector == nil {
		return nil, errors.InvalidInput(errors.PhaseBindings, "no projector configured")
	}
	m, err := manifest.Load(opts.ManifestPath)
	if err != nil {
		return nil, err
	}
	appDir := filepath.Dir(m.Path)

	ids := []string{opts.Component}
	if opts.Component == "" {
		ids = nil
		for _, id := range m.ComponentIDs() {
			if fsutil.IsFile(compose.DescriptorPath(appDir, id)) {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return nil, errors.NotFound(errors.PhaseBindings, "dependency descriptor under", filepath.Join(appDir, ".wit", "components"))
		}
	} else if !m.HasComponent(opts.Component) {
		return nil, errors.ManifestComponentNotFound(opts.Component)
	}

	var out []*bindings.Result
	for _, id := range ids {
		path := compose.DescriptorPath(appDir, id)
		if !fsutil.IsFile(path) {
			return out, errors.NotFound(errors.PhaseBindings, "dependency descriptor", path)
		}
		d, err := compose.LoadDescriptor(path)
		if err != nil {
			return out, err
		}
		dir, err := m.BuildDir(id)
		if err != nil {
			return out, err
		}
		res, err := opts.Projector.Project(ctx, bindings.Request{
			Descriptor: d,
			Component:  id,
			Dir:        dir,
			Imports:    d.Imports(),
			Ecosystem:  opts.Ecosystem,
		})
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}
