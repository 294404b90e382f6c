package idl

import (
	"fmt"
	"sort"
	"strings"
)

// PrintOptions controls rendering.
type PrintOptions struct {
	Docs bool
}

// Print renders the graph as WIT text rooted at the given package. Other
// packages are emitted as nested package blocks, sorted by qualified name and
// limited to interfaces reachable from the root package.
func Print(g *Graph, root PackageID, opts PrintOptions) (string, error) {
	pr := &printer{g: g, root: root, opts: opts}
	pr.print()
	if pr.err != nil {
		return "", pr.err
	}
	return pr.b.String(), nil
}

type printer struct {
	g    *Graph
	err  error
	b    strings.Builder
	opts PrintOptions
	root PackageID
	pkg  PackageID // package whose block is being printed
}

func (p *printer) fail(format string, args ...any) {
	if p.err == nil {
		p.err = fmt.Errorf(format, args...)
	}
}

func (p *printer) line(indent int, s string) {
	p.b.WriteString(strings.Repeat("  ", indent))
	p.b.WriteString(s)
	p.b.WriteByte('\n')
}

func (p *printer) docs(indent int, docs string) {
	if !p.opts.Docs || docs == "" {
		return
	}
	for _, l := range strings.Split(docs, "\n") {
		p.line(indent, "/// "+l)
	}
}

// Reachable returns the named interfaces a package refers to: its own and
// everything its worlds and interfaces transitively use.
func (g *Graph) Reachable(root PackageID) map[InterfaceID]bool {
	pkg := &g.Packages[root]
	roots := append([]InterfaceID(nil), pkg.Interfaces...)
	for _, w := range pkg.Worlds {
		roots = append(roots, g.WorldInterfaces(w)...)
	}
	out := make(map[InterfaceID]bool)
	for _, id := range g.Closure(roots) {
		if g.Interfaces[id].Name != "" {
			out[id] = true
		}
	}
	return out
}

func (p *printer) print() {
	g := p.g
	reach := g.Reachable(p.root)

	rootPkg := &g.Packages[p.root]
	p.pkg = p.root
	p.docs(0, rootPkg.Docs)
	p.line(0, "package "+rootPkg.Name.String()+";")
	for _, id := range rootPkg.Interfaces {
		p.b.WriteByte('\n')
		p.printInterface(0, id)
	}
	for _, id := range rootPkg.Worlds {
		p.b.WriteByte('\n')
		p.printWorld(0, id)
	}

	var nested []PackageID
	for i := range g.Packages {
		pid := PackageID(i)
		if pid == p.root {
			continue
		}
		for _, id := range g.Packages[pid].Interfaces {
			if reach[id] {
				nested = append(nested, pid)
				break
			}
		}
	}
	sort.SliceStable(nested, func(i, j int) bool {
		return g.Packages[nested[i]].Name.String() < g.Packages[nested[j]].Name.String()
	})
	seen := make(map[string]bool)
	for _, pid := range nested {
		name := g.Packages[pid].Name.String()
		if seen[name] {
			p.fail("package %s appears twice in graph", name)
			return
		}
		seen[name] = true
		p.pkg = pid
		p.b.WriteByte('\n')
		p.line(0, "package "+name+" {")
		first := true
		for _, id := range g.Packages[pid].Interfaces {
			if !reach[id] {
				continue
			}
			if !first {
				p.b.WriteByte('\n')
			}
			first = false
			p.printInterface(1, id)
		}
		p.line(0, "}")
	}
}

func (p *printer) printInterface(indent int, id InterfaceID) {
	iface := &p.g.Interfaces[id]
	p.docs(indent, iface.Docs)
	p.line(indent, "interface "+escape(iface.Name)+" {")
	p.printInterfaceBody(indent+1, id)
	p.line(indent, "}")
}

func (p *printer) printInterfaceBody(indent int, id InterfaceID) {
	g := p.g
	iface := &g.Interfaces[id]
	p.printUses(indent, iface.Types, OwnerInterface{ID: id})
	for _, tid := range iface.Types {
		if p.isUse(tid, OwnerInterface{ID: id}) {
			continue
		}
		p.printTypeDef(indent, tid, iface)
	}
	for i := range iface.Functions {
		fn := &iface.Functions[i]
		if fn.Kind != Freestanding {
			continue
		}
		p.docs(indent, fn.Docs)
		p.line(indent, escape(fn.Name)+": "+p.signature(fn, false)+";")
	}
}

// isUse reports whether a type is an alias for a named type owned elsewhere.
func (p *printer) isUse(tid TypeID, self Owner) bool {
	def := &p.g.Types[tid]
	a, ok := def.Kind.(Alias)
	if !ok {
		return false
	}
	ref, ok := a.Target.(Ref)
	if !ok {
		return false
	}
	target := &p.g.Types[ref.ID]
	o, ok := target.Owner.(OwnerInterface)
	return ok && target.Name != "" && Owner(o) != self
}

func (p *printer) printUses(indent int, types []TypeID, self Owner) {
	g := p.g
	var order []InterfaceID
	groups := make(map[InterfaceID][]string)
	for _, tid := range types {
		if !p.isUse(tid, self) {
			continue
		}
		def := &g.Types[tid]
		target := &g.Types[def.Kind.(Alias).Target.(Ref).ID]
		src := target.Owner.(OwnerInterface).ID
		name := escape(target.Name)
		if def.Name != target.Name {
			name += " as " + escape(def.Name)
		}
		if _, ok := groups[src]; !ok {
			order = append(order, src)
		}
		groups[src] = append(groups[src], name)
	}
	for _, src := range order {
		p.line(indent, "use "+p.interfacePath(src)+".{"+strings.Join(groups[src], ", ")+"};")
	}
}

// interfacePath renders a reference relative to the package being printed.
func (p *printer) interfacePath(id InterfaceID) string {
	iface := &p.g.Interfaces[id]
	if iface.Name == "" {
		p.fail("reference to anonymous interface")
		return ""
	}
	if iface.Package == p.pkg {
		return escape(iface.Name)
	}
	pn := p.g.Packages[iface.Package].Name
	s := escape(pn.Namespace) + ":" + escape(pn.Name) + "/" + escape(iface.Name)
	if pn.Version != nil {
		s += "@" + pn.Version.Original()
	}
	return s
}

func (p *printer) printTypeDef(indent int, tid TypeID, iface *Interface) {
	def := &p.g.Types[tid]
	p.docs(indent, def.Docs)
	name := escape(def.Name)
	switch k := def.Kind.(type) {
	case Record:
		p.line(indent, "record "+name+" {")
		for _, f := range k.Fields {
			p.docs(indent+1, f.Docs)
			p.line(indent+1, escape(f.Name)+": "+p.typeName(f.Type)+",")
		}
		p.line(indent, "}")
	case Variant:
		p.line(indent, "variant "+name+" {")
		for _, c := range k.Cases {
			p.docs(indent+1, c.Docs)
			if c.Type == nil {
				p.line(indent+1, escape(c.Name)+",")
			} else {
				p.line(indent+1, escape(c.Name)+"("+p.typeName(c.Type)+"),")
			}
		}
		p.line(indent, "}")
	case Enum:
		p.line(indent, "enum "+name+" {")
		for _, c := range k.Cases {
			p.line(indent+1, escape(c)+",")
		}
		p.line(indent, "}")
	case Flags:
		p.line(indent, "flags "+name+" {")
		for _, f := range k.Names {
			p.line(indent+1, escape(f)+",")
		}
		p.line(indent, "}")
	case Resource:
		var members []*Function
		if iface != nil {
			for i := range iface.Functions {
				fn := &iface.Functions[i]
				if fn.Kind != Freestanding && fn.Resource == tid {
					members = append(members, fn)
				}
			}
		}
		if len(members) == 0 {
			p.line(indent, "resource "+name+";")
			return
		}
		p.line(indent, "resource "+name+" {")
		for _, fn := range members {
			p.docs(indent+1, fn.Docs)
			switch fn.Kind {
			case Constructor:
				p.line(indent+1, "constructor("+p.params(fn.Params)+");")
			case Static:
				p.line(indent+1, escape(fn.ItemName())+": static "+p.signature(fn, false)+";")
			default:
				p.line(indent+1, escape(fn.ItemName())+": "+p.signature(fn, true)+";")
			}
		}
		p.line(indent, "}")
	case Alias:
		p.line(indent, "type "+name+" = "+p.typeName(k.Target)+";")
	default:
		p.fail("type %q cannot be declared by name", def.Name)
	}
}

func (p *printer) params(params []Param) string {
	parts := make([]string, len(params))
	for i, prm := range params {
		parts[i] = escape(prm.Name) + ": " + p.typeName(prm.Type)
	}
	return strings.Join(parts, ", ")
}

// signature renders func(...) -> T; methods drop the implicit self.
func (p *printer) signature(fn *Function, method bool) string {
	params := fn.Params
	if method && len(params) > 0 && params[0].Name == "self" {
		params = params[1:]
	}
	s := "func(" + p.params(params) + ")"
	if fn.Result != nil {
		s += " -> " + p.typeName(fn.Result)
	}
	return s
}

func (p *printer) typeName(t Type) string {
	switch v := t.(type) {
	case Prim:
		return v.String()
	case Ref:
		def := &p.g.Types[v.ID]
		if def.Name != "" {
			return escape(def.Name)
		}
		return p.anonymous(def)
	case nil:
		p.fail("missing type")
		return ""
	}
	p.fail("unknown type %T", t)
	return ""
}

func (p *printer) anonymous(def *TypeDef) string {
	switch k := def.Kind.(type) {
	case List:
		return "list<" + p.typeName(k.Elem) + ">"
	case Option:
		return "option<" + p.typeName(k.Elem) + ">"
	case Tuple:
		parts := make([]string, len(k.Types))
		for i, t := range k.Types {
			parts[i] = p.typeName(t)
		}
		return "tuple<" + strings.Join(parts, ", ") + ">"
	case Result:
		switch {
		case k.OK == nil && k.Err == nil:
			return "result"
		case k.Err == nil:
			return "result<" + p.typeName(k.OK) + ">"
		case k.OK == nil:
			return "result<_, " + p.typeName(k.Err) + ">"
		}
		return "result<" + p.typeName(k.OK) + ", " + p.typeName(k.Err) + ">"
	case Borrow:
		return "borrow<" + p.typeName(Ref{ID: k.Resource}) + ">"
	case Alias:
		return p.typeName(k.Target)
	}
	p.fail("anonymous %T has no inline form", def.Kind)
	return ""
}

func (p *printer) printWorld(indent int, id WorldID) {
	g := p.g
	w := &g.Worlds[id]
	p.docs(indent, w.Docs)
	p.line(indent, "world "+escape(w.Name)+" {")

	var worldTypes []TypeID
	for _, e := range w.Imports {
		if ti, ok := e.Item.(TypeItem); ok {
			worldTypes = append(worldTypes, ti.ID)
		}
	}
	self := OwnerWorld{ID: id}
	p.printUses(indent+1, worldTypes, self)
	for _, tid := range worldTypes {
		if !p.isUse(tid, self) {
			p.printTypeDef(indent+1, tid, nil)
		}
	}

	for _, dir := range []struct {
		kw      string
		entries []WorldEntry
	}{{"import", w.Imports}, {"export", w.Exports}} {
		for _, e := range dir.entries {
			switch item := e.Item.(type) {
			case InterfaceItem:
				if e.Key.IsInterface() || g.Interfaces[item.ID].Name != "" {
					p.line(indent+1, dir.kw+" "+p.interfacePath(item.ID)+";")
					continue
				}
				p.line(indent+1, dir.kw+" "+escape(e.Key.Name)+": interface {")
				p.printInterfaceBody(indent+2, item.ID)
				p.line(indent+1, "}")
			case FunctionItem:
				p.docs(indent+1, item.Func.Docs)
				p.line(indent+1, dir.kw+" "+escape(e.Key.Name)+": "+p.signature(&item.Func, false)+";")
			case TypeItem:
				if dir.kw == "export" {
					p.fail("world %q exports a type", w.Name)
				}
			default:
				p.fail("unknown world item %T", e.Item)
			}
		}
	}
	p.line(indent, "}")
}

func escape(name string) string {
	if isKeyword(name) {
		return "%" + name
	}
	return name
}
