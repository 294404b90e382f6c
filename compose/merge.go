package compose

import (
	"fmt"

	"github.com/wippyai/witdeps/errors"
	"github.com/wippyai/witdeps/idl"
	"go.uber.org/zap"
)

// Remap translates candidate IDs into the target graph after a merge.
type Remap struct {
	Types      map[idl.TypeID]idl.TypeID
	Packages   []idl.PackageID
	Interfaces []idl.InterfaceID
	Worlds     []idl.WorldID
}

// World returns the target world of a candidate world.
func (r *Remap) World(id idl.WorldID) (idl.WorldID, error) {
	if int(id) < 0 || int(id) >= len(r.Worlds) {
		return 0, fmt.Errorf("world %d not in merged graph", id)
	}
	return r.Worlds[id], nil
}

// Interface returns the target interface of a candidate interface.
func (r *Remap) Interface(id idl.InterfaceID) (idl.InterfaceID, error) {
	if int(id) < 0 || int(id) >= len(r.Interfaces) {
		return 0, fmt.Errorf("interface %d not in merged graph", id)
	}
	return r.Interfaces[id], nil
}

// MergeGraphs folds cand into target. Packages, interfaces and worlds with
// the same qualified name are matched; everything else is copied. Items
// present on both sides of a matched interface or world must be structurally
// equal, otherwise a CompositionConflict is returned and target is left
// untouched.
func MergeGraphs(target, cand *idl.Graph) (*Remap, error) {
	m := newMerger(target, cand)
	m.plan()
	if err := m.validate(); err != nil {
		return nil, err
	}
	m.commit()

	Logger().Debug("merged graphs",
		zap.Int("packages", len(cand.Packages)),
		zap.Int("new_packages", count(m.pkgNew)),
		zap.Int("new_interfaces", count(m.ifaceNew)),
		zap.Int("new_worlds", count(m.worldNew)))
	return &Remap{
		Packages:   m.pkgs,
		Interfaces: m.ifaces,
		Worlds:     m.worlds,
		Types:      m.types,
	}, nil
}

func count(flags []bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

type merger struct {
	target *idl.Graph
	cand   *idl.Graph

	// types holds candidate types matched by name in plan and every type
	// copied during commit.
	types   map[idl.TypeID]idl.TypeID
	matched map[idl.TypeID]bool

	pkgs     []idl.PackageID
	ifaces   []idl.InterfaceID
	worlds   []idl.WorldID
	pkgNew   []bool
	ifaceNew []bool
	worldNew []bool
}

func newMerger(target, cand *idl.Graph) *merger {
	return &merger{
		target:   target,
		cand:     cand,
		types:    make(map[idl.TypeID]idl.TypeID),
		matched:  make(map[idl.TypeID]bool),
		pkgs:     make([]idl.PackageID, len(cand.Packages)),
		ifaces:   make([]idl.InterfaceID, len(cand.Interfaces)),
		worlds:   make([]idl.WorldID, len(cand.Worlds)),
		pkgNew:   make([]bool, len(cand.Packages)),
		ifaceNew: make([]bool, len(cand.Interfaces)),
		worldNew: make([]bool, len(cand.Worlds)),
	}
}

// plan predicts the target ID of every candidate package, interface and
// world, and matches named types of matched owners.
func (m *merger) plan() {
	t, c := m.target, m.cand

	next := len(t.Packages)
	for i, p := range c.Packages {
		if id, ok := t.FindPackage(p.Name); ok {
			m.pkgs[i] = id
			continue
		}
		m.pkgs[i] = idl.PackageID(next)
		m.pkgNew[i] = true
		next++
	}

	next = len(t.Interfaces)
	for i, iface := range c.Interfaces {
		if iface.Name != "" && !m.pkgNew[iface.Package] {
			if id, ok := t.FindInterface(m.pkgs[iface.Package], iface.Name); ok {
				m.ifaces[i] = id
				continue
			}
		}
		m.ifaces[i] = idl.InterfaceID(next)
		m.ifaceNew[i] = true
		next++
	}

	next = len(t.Worlds)
	for i, w := range c.Worlds {
		if !m.pkgNew[w.Package] {
			if id, ok := t.FindWorld(m.pkgs[w.Package], w.Name); ok {
				m.worlds[i] = id
				continue
			}
		}
		m.worlds[i] = idl.WorldID(next)
		m.worldNew[i] = true
		next++
	}

	for i := range c.Types {
		def := &c.Types[i]
		if def.Name == "" {
			continue
		}
		switch o := def.Owner.(type) {
		case idl.OwnerInterface:
			if m.ifaceNew[o.ID] {
				continue
			}
			if id, ok := t.FindType(m.ifaces[o.ID], def.Name); ok {
				m.types[idl.TypeID(i)] = id
				m.matched[idl.TypeID(i)] = true
			}
		case idl.OwnerWorld:
			if m.worldNew[o.ID] {
				continue
			}
			if id, ok := worldType(t, m.worlds[o.ID], def.Name); ok {
				m.types[idl.TypeID(i)] = id
				m.matched[idl.TypeID(i)] = true
			}
		}
	}
}

func worldType(g *idl.Graph, w idl.WorldID, name string) (idl.TypeID, bool) {
	for _, e := range g.Worlds[w].Imports {
		if ti, ok := e.Item.(idl.TypeItem); ok && g.Types[ti.ID].Name == name {
			return ti.ID, true
		}
	}
	return 0, false
}

// validate checks every item present on both sides of a match.
func (m *merger) validate() error {
	t, c := m.target, m.cand
	cmp := m.comparer()

	for i := range c.Types {
		cid := idl.TypeID(i)
		if !m.matched[cid] {
			continue
		}
		tid := m.types[cid]
		if !cmp.sameKind(t.Types[tid].Kind, c.Types[cid].Kind) {
			return errors.CompositionConflict(typeName(c, cid),
				"type definition differs from the one already present")
		}
	}

	for i := range c.Interfaces {
		if m.ifaceNew[i] {
			continue
		}
		ti := m.ifaces[i]
		for j := range c.Interfaces[i].Functions {
			fn := &c.Interfaces[i].Functions[j]
			existing, ok := t.FindFunction(ti, fn.Name)
			if !ok {
				continue
			}
			if !cmp.sameFunction(existing, fn) {
				return errors.CompositionConflict(c.InterfaceName(idl.InterfaceID(i))+"#"+fn.Name,
					"function signature differs from the one already present")
			}
		}
	}

	for i := range c.Worlds {
		if m.worldNew[i] {
			continue
		}
		w := &c.Worlds[i]
		tw := &t.Worlds[m.worlds[i]]
		for _, pair := range [][2][]idl.WorldEntry{{tw.Imports, w.Imports}, {tw.Exports, w.Exports}} {
			for _, ce := range pair[1] {
				key := c.KeyName(ce.Key)
				te, ok := findEntry(t, pair[0], key)
				if !ok {
					continue
				}
				if !cmp.sameItem(te.Item, ce.Item) {
					return errors.CompositionConflict(c.Packages[w.Package].Name.String()+"/"+w.Name+"#"+key,
						"world item differs from the one already present")
				}
			}
		}
	}
	return nil
}

func typeName(g *idl.Graph, id idl.TypeID) string {
	def := &g.Types[id]
	switch o := def.Owner.(type) {
	case idl.OwnerInterface:
		return g.InterfaceName(o.ID) + "#" + def.Name
	case idl.OwnerWorld:
		w := &g.Worlds[o.ID]
		return g.Packages[w.Package].Name.String() + "/" + w.Name + "#" + def.Name
	}
	return def.Name
}

func findEntry(g *idl.Graph, entries []idl.WorldEntry, key string) (idl.WorldEntry, bool) {
	for _, e := range entries {
		if g.KeyName(e.Key) == key {
			return e, true
		}
	}
	return idl.WorldEntry{}, false
}

func (m *merger) comparer() *comparer {
	return &comparer{
		target: m.target,
		cand:   m.cand,
		named: func(cid idl.TypeID) (idl.TypeID, bool) {
			id, ok := m.types[cid]
			return id, ok
		},
		iface: func(cid idl.InterfaceID) idl.InterfaceID {
			return m.ifaces[cid]
		},
	}
}

// commit appends the candidate to the target. IDs are allocated in the
// order plan predicted them.
func (m *merger) commit() {
	t, c := m.target, m.cand

	for i, p := range c.Packages {
		if m.pkgNew[i] {
			t.Packages = append(t.Packages, idl.Package{Name: p.Name, Docs: p.Docs})
		}
	}
	for i, iface := range c.Interfaces {
		if m.ifaceNew[i] {
			t.Interfaces = append(t.Interfaces, idl.Interface{
				Name:    iface.Name,
				Docs:    iface.Docs,
				Package: m.pkgs[iface.Package],
			})
		}
	}
	for i, w := range c.Worlds {
		if m.worldNew[i] {
			t.Worlds = append(t.Worlds, idl.World{
				Name:    w.Name,
				Docs:    w.Docs,
				Package: m.pkgs[w.Package],
			})
		}
	}

	for i, p := range c.Packages {
		tp := &t.Packages[m.pkgs[i]]
		for _, id := range p.Interfaces {
			if m.ifaceNew[id] {
				tp.Interfaces = append(tp.Interfaces, m.ifaces[id])
			}
		}
		for _, id := range p.Worlds {
			if m.worldNew[id] {
				tp.Worlds = append(tp.Worlds, m.worlds[id])
			}
		}
	}

	for i := range c.Interfaces {
		ci := &c.Interfaces[i]
		ti := m.ifaces[i]
		for _, cid := range ci.Types {
			if m.matched[cid] {
				continue
			}
			id := m.typeID(cid)
			t.Interfaces[ti].Types = append(t.Interfaces[ti].Types, id)
		}
		for j := range ci.Functions {
			fn := &ci.Functions[j]
			if !m.ifaceNew[i] {
				if _, ok := t.FindFunction(ti, fn.Name); ok {
					continue
				}
			}
			f := m.function(fn)
			t.Interfaces[ti].Functions = append(t.Interfaces[ti].Functions, f)
		}
	}

	for i := range c.Worlds {
		cw := &c.Worlds[i]
		tw := m.worlds[i]
		imports := m.entries(tw, t.Worlds[tw].Imports, cw.Imports)
		exports := m.entries(tw, t.Worlds[tw].Exports, cw.Exports)
		t.Worlds[tw].Imports = append(t.Worlds[tw].Imports, imports...)
		t.Worlds[tw].Exports = append(t.Worlds[tw].Exports, exports...)
	}
}

// entries translates the candidate entries whose keys are not in existing.
func (m *merger) entries(tw idl.WorldID, existing, cand []idl.WorldEntry) []idl.WorldEntry {
	var out []idl.WorldEntry
	for _, e := range cand {
		if _, ok := findEntry(m.target, existing, m.cand.KeyName(e.Key)); ok {
			continue
		}
		out = append(out, m.entry(e))
	}
	return out
}

func (m *merger) entry(e idl.WorldEntry) idl.WorldEntry {
	key := e.Key
	if key.IsInterface() {
		key.Interface = m.ifaces[key.Interface]
	}
	var item idl.WorldItem
	switch it := e.Item.(type) {
	case idl.InterfaceItem:
		item = idl.InterfaceItem{ID: m.ifaces[it.ID]}
	case idl.FunctionItem:
		item = idl.FunctionItem{Func: m.function(&it.Func)}
	case idl.TypeItem:
		item = idl.TypeItem{ID: m.typeID(it.ID)}
	default:
		panic(fmt.Sprintf("compose: unknown world item %T", e.Item))
	}
	return idl.WorldEntry{Key: key, Item: item}
}

// typeID returns the target ID of a candidate type, copying it on first use.
func (m *merger) typeID(cid idl.TypeID) idl.TypeID {
	if id, ok := m.types[cid]; ok {
		return id
	}
	id := m.target.AddType(idl.TypeDef{})
	m.types[cid] = id

	def := &m.cand.Types[cid]
	td := idl.TypeDef{
		Name:  def.Name,
		Docs:  def.Docs,
		Owner: m.owner(def.Owner),
		Kind:  m.kind(def.Kind),
	}
	m.target.Types[id] = td
	return id
}

func (m *merger) owner(o idl.Owner) idl.Owner {
	switch o := o.(type) {
	case idl.OwnerInterface:
		return idl.OwnerInterface{ID: m.ifaces[o.ID]}
	case idl.OwnerWorld:
		return idl.OwnerWorld{ID: m.worlds[o.ID]}
	}
	return nil
}

func (m *merger) valType(t idl.Type) idl.Type {
	if r, ok := t.(idl.Ref); ok {
		return idl.Ref{ID: m.typeID(r.ID)}
	}
	return t
}

func (m *merger) kind(k idl.TypeKind) idl.TypeKind {
	switch k := k.(type) {
	case idl.Record:
		fields := make([]idl.Field, len(k.Fields))
		for i, f := range k.Fields {
			f.Type = m.valType(f.Type)
			fields[i] = f
		}
		return idl.Record{Fields: fields}
	case idl.Variant:
		cases := make([]idl.Case, len(k.Cases))
		for i, cs := range k.Cases {
			if cs.Type != nil {
				cs.Type = m.valType(cs.Type)
			}
			cases[i] = cs
		}
		return idl.Variant{Cases: cases}
	case idl.Tuple:
		types := make([]idl.Type, len(k.Types))
		for i, t := range k.Types {
			types[i] = m.valType(t)
		}
		return idl.Tuple{Types: types}
	case idl.List:
		return idl.List{Elem: m.valType(k.Elem)}
	case idl.Option:
		return idl.Option{Elem: m.valType(k.Elem)}
	case idl.Result:
		var r idl.Result
		if k.OK != nil {
			r.OK = m.valType(k.OK)
		}
		if k.Err != nil {
			r.Err = m.valType(k.Err)
		}
		return r
	case idl.Borrow:
		return idl.Borrow{Resource: m.typeID(k.Resource)}
	case idl.Alias:
		return idl.Alias{Target: m.valType(k.Target)}
	}
	// Enum, Flags and Resource hold no references.
	return k
}

func (m *merger) function(fn *idl.Function) idl.Function {
	out := *fn
	out.Params = make([]idl.Param, len(fn.Params))
	for i, p := range fn.Params {
		p.Type = m.valType(p.Type)
		out.Params[i] = p
	}
	if fn.Result != nil {
		out.Result = m.valType(fn.Result)
	}
	if fn.Kind != idl.Freestanding {
		out.Resource = m.typeID(fn.Resource)
	}
	return out
}

// MergeWorldImports unions the imports of from into into, keyed by
// qualified name. Entries already present are kept in place and must refer
// to the same item.
func MergeWorldImports(g *idl.Graph, from, into idl.WorldID) error {
	cmp := sameGraph(g)
	var added []idl.WorldEntry
	for _, e := range g.Worlds[from].Imports {
		key := g.KeyName(e.Key)
		existing, ok := findEntry(g, g.Worlds[into].Imports, key)
		if !ok {
			existing, ok = findEntry(g, added, key)
		}
		if ok {
			if !cmp.sameItem(existing.Item, e.Item) {
				return errors.CompositionConflict(key, "import differs from the one already present in world %s", g.Worlds[into].Name)
			}
			continue
		}
		added = append(added, e)
	}
	g.Worlds[into].Imports = append(g.Worlds[into].Imports, added...)
	Logger().Debug("merged world imports",
		zap.String("from", g.Worlds[from].Name),
		zap.String("into", g.Worlds[into].Name),
		zap.Int("added", len(added)))
	return nil
}
