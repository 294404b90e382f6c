package bindings

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wippyai/witdeps/errors"
	"github.com/wippyai/witdeps/internal/fsutil"
	"go.bytecodealliance.org/wit"
	"go.bytecodealliance.org/wit/bindgen"
	"go.uber.org/zap"
	"golang.org/x/mod/modfile"
)

const (
	goOutDir    = "internal/witdeps"
	cmModule    = "go.bytecodealliance.org/cm"
	generatedBy = "witdeps"
)

// GoGenerator generates Go sources for a world of a WIT file. The returned
// paths are slash separated and relative to the package root.
type GoGenerator interface {
	Generate(ctx context.Context, witPath, world, packageRoot string) (map[string][]byte, error)
}

// WitBindgenGo generates bindings with go.bytecodealliance.org/wit/bindgen.
type WitBindgenGo struct{}

func (WitBindgenGo) Generate(ctx context.Context, witPath, world, packageRoot string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := wit.LoadWIT(witPath)
	if err != nil {
		return nil, errors.New(errors.PhaseBindings, errors.KindSyntax).
			Name(witPath).
			Detail("load wit").
			Cause(err).
			Build()
	}
	pkgs, err := bindgen.Go(res,
		bindgen.GeneratedBy(generatedBy),
		bindgen.World(world),
		bindgen.PackageRoot(packageRoot),
	)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseBindings, errors.KindInvalidInput, err, "generate go bindings")
	}
	files := make(map[string][]byte)
	for _, pkg := range pkgs {
		if !pkg.HasContent() {
			continue
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(pkg.Path, packageRoot), "/")
		for name, file := range pkg.Files {
			content, err := file.Bytes()
			if err != nil {
				return nil, errors.Wrap(errors.PhaseBindings, errors.KindInvalidInput, err, "format "+name)
			}
			files[path.Join(rel, name)] = content
		}
	}
	return files, nil
}

func (p *Projector) golang(ctx context.Context, req Request, res *Result) error {
	if p.GoGenerator == nil {
		return errors.InvalidInput(errors.PhaseBindings, "no go generator configured")
	}
	gomod := filepath.Join(req.Dir, "go.mod")
	data, err := os.ReadFile(gomod)
	if err != nil {
		return errors.IO("read", gomod, err)
	}
	mf, err := modfile.Parse(gomod, data, nil)
	if err != nil {
		return errors.New(errors.PhaseBindings, errors.KindSyntax).Name(gomod).Cause(err).Build()
	}
	if mf.Module == nil {
		return errors.New(errors.PhaseBindings, errors.KindInvalidInput).
			Name(gomod).
			Detail("no module directive").
			Build()
	}
	if !requires(mf, cmModule) {
		Logger().Warn("generated bindings import "+cmModule+", which go.mod does not require",
			zap.String("go.mod", gomod))
	}

	d := req.Descriptor
	if d.Path == "" {
		return errors.InvalidInput(errors.PhaseBindings, "descriptor has no path")
	}
	g := d.Graph
	world := g.Packages[d.Package].Name.String() + "/" + g.Worlds[d.World].Name
	root := mf.Module.Mod.Path + "/" + goOutDir

	files, err := p.GoGenerator.Generate(ctx, d.Path, world, root)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	out := filepath.Join(req.Dir, filepath.FromSlash(goOutDir))
	for _, name := range names {
		target := filepath.Join(out, filepath.FromSlash(name))
		if err := fsutil.WriteFile(target, files[name]); err != nil {
			return err
		}
		res.wrote(target)
	}
	return nil
}

func requires(mf *modfile.File, mod string) bool {
	for _, r := range mf.Require {
		if r.Mod.Path == mod {
			return true
		}
	}
	return false
}
