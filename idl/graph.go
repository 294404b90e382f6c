package idl

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// PackageID, InterfaceID, WorldID and TypeID index the arenas of one Graph.
// IDs from different graphs are never comparable.
type (
	PackageID   int
	InterfaceID int
	WorldID     int
	TypeID      int
)

// PackageName is the qualified name of a package: ns:name@version.
type PackageName struct {
	Version   *semver.Version
	Namespace string
	Name      string
}

// ParsePackageName parses "ns:name" or "ns:name@version".
func ParsePackageName(s string) (PackageName, error) {
	base, ver, hasVer := strings.Cut(s, "@")
	ns, name, ok := strings.Cut(base, ":")
	if !ok || ns == "" || name == "" || strings.Contains(name, "/") {
		return PackageName{}, fmt.Errorf("invalid package name %q", s)
	}
	pn := PackageName{Namespace: ns, Name: name}
	if hasVer {
		v, err := semver.StrictNewVersion(ver)
		if err != nil {
			return PackageName{}, fmt.Errorf("invalid package version %q: %w", ver, err)
		}
		pn.Version = v
	}
	return pn, nil
}

// Base returns ns:name without the version.
func (n PackageName) Base() string {
	return n.Namespace + ":" + n.Name
}

// VersionString returns the version text or "".
func (n PackageName) VersionString() string {
	if n.Version == nil {
		return ""
	}
	return n.Version.Original()
}

func (n PackageName) String() string {
	if n.Version == nil {
		return n.Base()
	}
	return n.Base() + "@" + n.Version.Original()
}

// Equal compares namespace, name and version.
func (n PackageName) Equal(o PackageName) bool {
	return n.String() == o.String()
}

// Interface qualifies an interface name: ns:name/iface@version.
func (n PackageName) Interface(iface string) string {
	s := n.Base() + "/" + iface
	if n.Version != nil {
		s += "@" + n.Version.Original()
	}
	return s
}

// ParseInterfaceName splits "ns:pkg/iface@ver" into package and interface name.
func ParseInterfaceName(s string) (PackageName, string, error) {
	base, ver, hasVer := strings.Cut(s, "@")
	pkg, iface, ok := strings.Cut(base, "/")
	if !ok || iface == "" {
		return PackageName{}, "", fmt.Errorf("invalid interface name %q", s)
	}
	if hasVer {
		pkg += "@" + ver
	}
	pn, err := ParsePackageName(pkg)
	if err != nil {
		return PackageName{}, "", err
	}
	return pn, iface, nil
}

// Graph is an arena of packages, interfaces, worlds and types.
type Graph struct {
	Packages   []Package
	Interfaces []Interface
	Worlds     []World
	Types      []TypeDef
}

type Package struct {
	Name       PackageName
	Docs       string
	Interfaces []InterfaceID
	Worlds     []WorldID
}

// Interface is a named group of types and functions. Anonymous interfaces
// (inline world imports) have an empty name.
type Interface struct {
	Name      string
	Docs      string
	Types     []TypeID
	Functions []Function
	Package   PackageID
}

type World struct {
	Name    string
	Docs    string
	Imports []WorldEntry
	Exports []WorldEntry
	Package PackageID
}

// WorldKey names a world entry: by interface for `import ns:pkg/iface;`,
// by plain name otherwise.
type WorldKey struct {
	Name      string
	Interface InterfaceID
}

// IsInterface reports whether the key is an interface key.
func (k WorldKey) IsInterface() bool {
	return k.Name == ""
}

type WorldEntry struct {
	Item WorldItem
	Key  WorldKey
}

// WorldItem is one of InterfaceItem, FunctionItem or TypeItem.
type WorldItem interface {
	isWorldItem()
}

type InterfaceItem struct {
	ID InterfaceID
}

type FunctionItem struct {
	Func Function
}

type TypeItem struct {
	ID TypeID
}

func (InterfaceItem) isWorldItem() {}
func (FunctionItem) isWorldItem()  {}
func (TypeItem) isWorldItem()      {}

// New returns an empty graph.
func New() *Graph {
	return &Graph{}
}

// AddPackage appends a package and returns its ID.
func (g *Graph) AddPackage(name PackageName) PackageID {
	g.Packages = append(g.Packages, Package{Name: name})
	return PackageID(len(g.Packages) - 1)
}

// FindPackage looks a package up by qualified name.
func (g *Graph) FindPackage(name PackageName) (PackageID, bool) {
	for i := range g.Packages {
		if g.Packages[i].Name.Equal(name) {
			return PackageID(i), true
		}
	}
	return 0, false
}

// EnsurePackage returns the package with the given name, adding it if absent.
func (g *Graph) EnsurePackage(name PackageName) PackageID {
	if id, ok := g.FindPackage(name); ok {
		return id
	}
	return g.AddPackage(name)
}

// AddInterface appends an interface owned by pkg. Named interfaces are
// registered with the package.
func (g *Graph) AddInterface(pkg PackageID, name string) InterfaceID {
	g.Interfaces = append(g.Interfaces, Interface{Name: name, Package: pkg})
	id := InterfaceID(len(g.Interfaces) - 1)
	if name != "" {
		g.Packages[pkg].Interfaces = append(g.Packages[pkg].Interfaces, id)
	}
	return id
}

// FindInterface looks up a named interface in pkg.
func (g *Graph) FindInterface(pkg PackageID, name string) (InterfaceID, bool) {
	for _, id := range g.Packages[pkg].Interfaces {
		if g.Interfaces[id].Name == name {
			return id, true
		}
	}
	return 0, false
}

// LookupInterface resolves "ns:pkg/iface@ver".
func (g *Graph) LookupInterface(qualified string) (InterfaceID, bool) {
	pn, name, err := ParseInterfaceName(qualified)
	if err != nil {
		return 0, false
	}
	pkg, ok := g.FindPackage(pn)
	if !ok {
		return 0, false
	}
	return g.FindInterface(pkg, name)
}

// AddWorld appends a world owned by pkg.
func (g *Graph) AddWorld(pkg PackageID, name string) WorldID {
	g.Worlds = append(g.Worlds, World{Name: name, Package: pkg})
	id := WorldID(len(g.Worlds) - 1)
	g.Packages[pkg].Worlds = append(g.Packages[pkg].Worlds, id)
	return id
}

// FindWorld looks up a world in pkg.
func (g *Graph) FindWorld(pkg PackageID, name string) (WorldID, bool) {
	for _, id := range g.Packages[pkg].Worlds {
		if g.Worlds[id].Name == name {
			return id, true
		}
	}
	return 0, false
}

// SelectWorld returns the named world of pkg, or its default world when
// name is empty: the only world, else the world named after the package.
func (g *Graph) SelectWorld(pkg PackageID, name string) (WorldID, error) {
	p := &g.Packages[pkg]
	if name != "" {
		if id, ok := g.FindWorld(pkg, name); ok {
			return id, nil
		}
		return 0, fmt.Errorf("world %q not found in package %s", name, p.Name)
	}
	switch len(p.Worlds) {
	case 0:
		return 0, fmt.Errorf("package %s has no worlds", p.Name)
	case 1:
		return p.Worlds[0], nil
	}
	if id, ok := g.FindWorld(pkg, p.Name.Name); ok {
		return id, nil
	}
	return 0, fmt.Errorf("package %s has %d worlds; select one by name", p.Name, len(p.Worlds))
}

// AddType appends a type definition.
func (g *Graph) AddType(def TypeDef) TypeID {
	g.Types = append(g.Types, def)
	return TypeID(len(g.Types) - 1)
}

// AddInterfaceType appends a named type owned by iface.
func (g *Graph) AddInterfaceType(iface InterfaceID, name string, kind TypeKind) TypeID {
	id := g.AddType(TypeDef{Name: name, Kind: kind, Owner: OwnerInterface{ID: iface}})
	g.Interfaces[iface].Types = append(g.Interfaces[iface].Types, id)
	return id
}

// FindType looks up a named type of iface.
func (g *Graph) FindType(iface InterfaceID, name string) (TypeID, bool) {
	for _, id := range g.Interfaces[iface].Types {
		if g.Types[id].Name == name {
			return id, true
		}
	}
	return 0, false
}

// FindFunction looks up a function of iface by its full name.
func (g *Graph) FindFunction(iface InterfaceID, name string) (*Function, bool) {
	fns := g.Interfaces[iface].Functions
	for i := range fns {
		if fns[i].Name == name {
			return &fns[i], true
		}
	}
	return nil, false
}

// InterfaceName returns the qualified name of an interface, or "" for an
// anonymous one.
func (g *Graph) InterfaceName(id InterfaceID) string {
	iface := &g.Interfaces[id]
	if iface.Name == "" {
		return ""
	}
	return g.Packages[iface.Package].Name.Interface(iface.Name)
}

// KeyName returns the qualified text of a world key.
func (g *Graph) KeyName(k WorldKey) string {
	if k.IsInterface() {
		return g.InterfaceName(k.Interface)
	}
	return k.Name
}

// Resolve follows aliases to the underlying definition.
func (g *Graph) Resolve(id TypeID) TypeID {
	for i := 0; i < len(g.Types); i++ {
		a, ok := g.Types[id].Kind.(Alias)
		if !ok {
			return id
		}
		ref, ok := a.Target.(Ref)
		if !ok {
			return id
		}
		id = ref.ID
	}
	return id
}
