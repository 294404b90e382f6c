package compose

import (
	"strings"

	"github.com/wippyai/witdeps/errors"
	"github.com/wippyai/witdeps/idl"
	"go.uber.org/zap"
)

// DependencyWorldName is the import-only world created for one package of a
// component being added.
func DependencyWorldName(pkg idl.PackageName) string {
	return "dependency-world-" + worldSafe(pkg.String())
}

// worldSafe maps a qualified name onto a WIT identifier: lowercase words
// joined by single dashes.
func worldSafe(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	return b.String()
}

// Filter decides which exports become imports. A nil Filter keeps all.
type Filter func(g *idl.Graph, e idl.WorldEntry) bool

// SelectionFilter keeps the interface exports included by ps.
func SelectionFilter(ps PackageSelection) Filter {
	return func(g *idl.Graph, e idl.WorldEntry) bool {
		item, ok := e.Item.(idl.InterfaceItem)
		if !ok {
			return false
		}
		name := g.InterfaceName(item.ID)
		return name != "" && ps.Includes(name)
	}
}

// Importize adds a world named name to pkg whose imports are the exports of
// src kept by filter, and whose exports are empty. Entries keep their item
// identities. World-level types used by kept functions are imported ahead of
// them.
func Importize(g *idl.Graph, pkg idl.PackageID, src idl.WorldID, name string, filter Filter) (idl.WorldID, error) {
	if _, exists := g.FindWorld(pkg, name); exists {
		return 0, errors.New(errors.PhaseImportize, errors.KindInvalidInput).
			Name(name).
			Detail("world already exists in package %s", g.Packages[pkg].Name).
			Build()
	}

	var imports []idl.WorldEntry
	for _, e := range g.Worlds[src].Exports {
		if filter != nil && !filter(g, e) {
			continue
		}
		if _, ok := e.Item.(idl.TypeItem); ok {
			return 0, errors.New(errors.PhaseImportize, errors.KindInvalidInput).
				Name(g.KeyName(e.Key)).
				Detail("world exports a type").
				Build()
		}
		imports = append(imports, e)
	}
	if len(imports) == 0 {
		return 0, errors.NoExportedInterfaces(g.Worlds[src].Name)
	}

	id := g.AddWorld(pkg, name)
	w := &g.Worlds[id]
	w.Imports = append(worldTypes(g, src, imports), imports...)

	Logger().Debug("importized world",
		zap.String("source", g.Worlds[src].Name),
		zap.String("world", name),
		zap.Int("imports", len(w.Imports)))
	return id, nil
}

// worldTypes collects the source world's own types referenced by function
// entries, dependencies first.
func worldTypes(g *idl.Graph, src idl.WorldID, entries []idl.WorldEntry) []idl.WorldEntry {
	var out []idl.WorldEntry
	seen := make(map[idl.TypeID]bool)
	var visit func(idl.TypeID)
	visit = func(t idl.TypeID) {
		if seen[t] {
			return
		}
		seen[t] = true
		def := &g.Types[t]
		if _, ok := def.Owner.(idl.OwnerInterface); ok && def.Name != "" {
			return
		}
		idl.TypeRefs(def.Kind, visit)
		if o, ok := def.Owner.(idl.OwnerWorld); ok && o.ID == src && def.Name != "" {
			out = append(out, idl.WorldEntry{
				Key:  idl.WorldKey{Name: def.Name},
				Item: idl.TypeItem{ID: t},
			})
		}
	}
	for _, e := range entries {
		if fn, ok := e.Item.(idl.FunctionItem); ok {
			idl.FunctionRefs(&fn.Func, visit)
		}
	}
	return out
}
