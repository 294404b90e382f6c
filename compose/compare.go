package compose

import "github.com/wippyai/witdeps/idl"

// comparer checks structural equality of items across two graphs. Named
// interface types are compared by translated identity, anonymous types and
// world-owned types by shape.
type comparer struct {
	target *idl.Graph
	cand   *idl.Graph
	named  func(idl.TypeID) (idl.TypeID, bool)
	iface  func(idl.InterfaceID) idl.InterfaceID
}

func sameGraph(g *idl.Graph) *comparer {
	return &comparer{
		target: g,
		cand:   g,
		named: func(id idl.TypeID) (idl.TypeID, bool) {
			_, ok := g.Types[id].Owner.(idl.OwnerInterface)
			return id, ok && g.Types[id].Name != ""
		},
		iface: func(id idl.InterfaceID) idl.InterfaceID { return id },
	}
}

func (c *comparer) sameItem(t, x idl.WorldItem) bool {
	switch x := x.(type) {
	case idl.InterfaceItem:
		ti, ok := t.(idl.InterfaceItem)
		return ok && ti.ID == c.iface(x.ID)
	case idl.FunctionItem:
		tf, ok := t.(idl.FunctionItem)
		return ok && c.sameFunction(&tf.Func, &x.Func)
	case idl.TypeItem:
		tt, ok := t.(idl.TypeItem)
		return ok && c.sameRef(tt.ID, x.ID)
	}
	return false
}

func (c *comparer) sameFunction(t, x *idl.Function) bool {
	if t.Name != x.Name || t.Kind != x.Kind || len(t.Params) != len(x.Params) {
		return false
	}
	for i := range t.Params {
		if t.Params[i].Name != x.Params[i].Name || !c.sameType(t.Params[i].Type, x.Params[i].Type) {
			return false
		}
	}
	if !c.sameType(t.Result, x.Result) {
		return false
	}
	if t.Kind != idl.Freestanding {
		return c.sameRef(t.Resource, x.Resource)
	}
	return true
}

func (c *comparer) sameType(t, x idl.Type) bool {
	switch x := x.(type) {
	case nil:
		return t == nil
	case idl.Prim:
		tp, ok := t.(idl.Prim)
		return ok && tp == x
	case idl.Ref:
		tr, ok := t.(idl.Ref)
		return ok && c.sameRef(tr.ID, x.ID)
	}
	return false
}

func (c *comparer) sameRef(tid, xid idl.TypeID) bool {
	if mapped, ok := c.named(xid); ok {
		return mapped == tid
	}
	tdef, xdef := &c.target.Types[tid], &c.cand.Types[xid]
	if tdef.Name != xdef.Name {
		return false
	}
	if tdef.Name != "" {
		_, tIface := tdef.Owner.(idl.OwnerInterface)
		_, xIface := xdef.Owner.(idl.OwnerInterface)
		if tIface || xIface {
			return false
		}
	}
	return c.sameKind(tdef.Kind, xdef.Kind)
}

func (c *comparer) sameKind(t, x idl.TypeKind) bool {
	switch x := x.(type) {
	case idl.Record:
		tk, ok := t.(idl.Record)
		if !ok || len(tk.Fields) != len(x.Fields) {
			return false
		}
		for i := range x.Fields {
			if tk.Fields[i].Name != x.Fields[i].Name || !c.sameType(tk.Fields[i].Type, x.Fields[i].Type) {
				return false
			}
		}
		return true
	case idl.Variant:
		tk, ok := t.(idl.Variant)
		if !ok || len(tk.Cases) != len(x.Cases) {
			return false
		}
		for i := range x.Cases {
			if tk.Cases[i].Name != x.Cases[i].Name || !c.sameType(tk.Cases[i].Type, x.Cases[i].Type) {
				return false
			}
		}
		return true
	case idl.Enum:
		tk, ok := t.(idl.Enum)
		return ok && sameStrings(tk.Cases, x.Cases)
	case idl.Flags:
		tk, ok := t.(idl.Flags)
		return ok && sameStrings(tk.Names, x.Names)
	case idl.Tuple:
		tk, ok := t.(idl.Tuple)
		if !ok || len(tk.Types) != len(x.Types) {
			return false
		}
		for i := range x.Types {
			if !c.sameType(tk.Types[i], x.Types[i]) {
				return false
			}
		}
		return true
	case idl.List:
		tk, ok := t.(idl.List)
		return ok && c.sameType(tk.Elem, x.Elem)
	case idl.Option:
		tk, ok := t.(idl.Option)
		return ok && c.sameType(tk.Elem, x.Elem)
	case idl.Result:
		tk, ok := t.(idl.Result)
		return ok && c.sameType(tk.OK, x.OK) && c.sameType(tk.Err, x.Err)
	case idl.Resource:
		_, ok := t.(idl.Resource)
		return ok
	case idl.Borrow:
		tk, ok := t.(idl.Borrow)
		return ok && c.sameRef(tk.Resource, x.Resource)
	case idl.Alias:
		tk, ok := t.(idl.Alias)
		return ok && c.sameType(tk.Target, x.Target)
	}
	return false
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
