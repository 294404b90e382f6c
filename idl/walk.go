package idl

// Clone returns a deep copy of the graph arenas. Type kinds are treated as
// immutable values and share their inner slices.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		Packages:   make([]Package, len(g.Packages)),
		Interfaces: make([]Interface, len(g.Interfaces)),
		Worlds:     make([]World, len(g.Worlds)),
		Types:      append([]TypeDef(nil), g.Types...),
	}
	for i, p := range g.Packages {
		p.Interfaces = append([]InterfaceID(nil), p.Interfaces...)
		p.Worlds = append([]WorldID(nil), p.Worlds...)
		c.Packages[i] = p
	}
	for i, iface := range g.Interfaces {
		iface.Types = append([]TypeID(nil), iface.Types...)
		iface.Functions = append([]Function(nil), iface.Functions...)
		c.Interfaces[i] = iface
	}
	for i, w := range g.Worlds {
		w.Imports = append([]WorldEntry(nil), w.Imports...)
		w.Exports = append([]WorldEntry(nil), w.Exports...)
		c.Worlds[i] = w
	}
	return c
}

// TypeRefs calls fn for every type definition directly referenced by kind.
func TypeRefs(kind TypeKind, fn func(TypeID)) {
	visit := func(t Type) {
		if r, ok := t.(Ref); ok {
			fn(r.ID)
		}
	}
	switch k := kind.(type) {
	case Record:
		for _, f := range k.Fields {
			visit(f.Type)
		}
	case Variant:
		for _, c := range k.Cases {
			visit(c.Type)
		}
	case Tuple:
		for _, t := range k.Types {
			visit(t)
		}
	case List:
		visit(k.Elem)
	case Option:
		visit(k.Elem)
	case Result:
		visit(k.OK)
		visit(k.Err)
	case Borrow:
		fn(k.Resource)
	case Alias:
		visit(k.Target)
	}
}

// FunctionRefs calls fn for every type definition referenced by a signature.
func FunctionRefs(f *Function, fn func(TypeID)) {
	for _, p := range f.Params {
		if r, ok := p.Type.(Ref); ok {
			fn(r.ID)
		}
	}
	if r, ok := f.Result.(Ref); ok {
		fn(r.ID)
	}
}

// InterfaceDeps returns the other interfaces whose types iface refers to,
// in first-seen order.
func (g *Graph) InterfaceDeps(id InterfaceID) []InterfaceID {
	var deps []InterfaceID
	seenIface := map[InterfaceID]bool{id: true}
	seenType := map[TypeID]bool{}

	var walk func(TypeID)
	walk = func(t TypeID) {
		if seenType[t] {
			return
		}
		seenType[t] = true
		def := &g.Types[t]
		if o, ok := def.Owner.(OwnerInterface); ok && o.ID != id {
			if !seenIface[o.ID] {
				seenIface[o.ID] = true
				deps = append(deps, o.ID)
			}
			return
		}
		TypeRefs(def.Kind, walk)
	}

	iface := &g.Interfaces[id]
	for _, t := range iface.Types {
		walk(t)
	}
	for i := range iface.Functions {
		FunctionRefs(&iface.Functions[i], walk)
	}
	return deps
}

// Closure returns roots followed by every interface they transitively
// depend on, each once.
func (g *Graph) Closure(roots []InterfaceID) []InterfaceID {
	seen := make(map[InterfaceID]bool, len(roots))
	out := make([]InterfaceID, 0, len(roots))
	for _, r := range roots {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	for i := 0; i < len(out); i++ {
		for _, d := range g.InterfaceDeps(out[i]) {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
	}
	return out
}

// WorldInterfaces returns the interfaces a world refers to through its
// entries, including those reached through world-level types and functions.
func (g *Graph) WorldInterfaces(id WorldID) []InterfaceID {
	w := &g.Worlds[id]
	var roots []InterfaceID
	seen := map[InterfaceID]bool{}
	add := func(i InterfaceID) {
		if !seen[i] {
			seen[i] = true
			roots = append(roots, i)
		}
	}
	var typeOwner func(TypeID)
	typeOwner = func(t TypeID) {
		def := &g.Types[t]
		if o, ok := def.Owner.(OwnerInterface); ok {
			add(o.ID)
			return
		}
		TypeRefs(def.Kind, typeOwner)
	}
	for _, entries := range [][]WorldEntry{w.Imports, w.Exports} {
		for _, e := range entries {
			switch item := e.Item.(type) {
			case InterfaceItem:
				add(item.ID)
			case FunctionItem:
				FunctionRefs(&item.Func, typeOwner)
			case TypeItem:
				TypeRefs(g.Types[item.ID].Kind, typeOwner)
			}
		}
	}
	return g.Closure(roots)
}
