package compose

import (
	"github.com/wippyai/witdeps/errors"
	"github.com/wippyai/witdeps/idl"
	"go.uber.org/zap"
)

// Candidate is one package offered for selection together with the names of
// its exported interfaces, in export order.
type Candidate struct {
	Package    idl.PackageName
	Interfaces []string
	PackageID  idl.PackageID
}

// Qualified returns the qualified names of the candidate's interfaces.
func (c Candidate) Qualified() []string {
	out := make([]string, len(c.Interfaces))
	for i, name := range c.Interfaces {
		out[i] = c.Package.Interface(name)
	}
	return out
}

// Offers reports whether the candidate exports the qualified interface.
func (c Candidate) Offers(qualified string) bool {
	for _, name := range c.Interfaces {
		if c.Package.Interface(name) == qualified {
			return true
		}
	}
	return false
}

// PrincipalWorld picks the world of a decoded component: the package's
// default world, or the world named "root".
func PrincipalWorld(g *idl.Graph, pkg idl.PackageID) (idl.WorldID, error) {
	if id, err := g.SelectWorld(pkg, ""); err == nil {
		return id, nil
	}
	if id, ok := g.FindWorld(pkg, "root"); ok {
		return id, nil
	}
	return 0, errors.NotFound(errors.PhaseEnumerate, "world", g.Packages[pkg].Name.String())
}

// ExportedInterfaces groups the named interfaces exported by world by their
// owning package. Packages and interfaces keep first-seen order.
func ExportedInterfaces(g *idl.Graph, world idl.WorldID) ([]Candidate, error) {
	w := &g.Worlds[world]
	var out []Candidate
	index := make(map[string]int)
	seen := make(map[idl.InterfaceID]bool)

	for _, e := range w.Exports {
		item, ok := e.Item.(idl.InterfaceItem)
		if !ok || seen[item.ID] {
			continue
		}
		iface := &g.Interfaces[item.ID]
		if iface.Name == "" {
			continue
		}
		seen[item.ID] = true
		pkg := g.Packages[iface.Package].Name
		key := pkg.String()
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, Candidate{Package: pkg, PackageID: iface.Package})
		}
		out[i].Interfaces = append(out[i].Interfaces, iface.Name)
	}

	if len(out) == 0 {
		return nil, errors.NoExportedInterfaces(w.Name)
	}
	Logger().Debug("enumerated exported interfaces",
		zap.String("world", w.Name),
		zap.Int("packages", len(out)))
	return out, nil
}
