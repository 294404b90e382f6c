package idl

import (
	"github.com/wippyai/witdeps/errors"
)

type pendingUse struct {
	owner Owner
	pkg   PackageID
	use   *astUse
	name  astUseName
	scope map[string]TypeID
}

type resolver struct {
	g       *Graph
	ifaceNS map[InterfaceID]map[string]TypeID
	worldNS map[WorldID]map[string]TypeID
}

func newResolver(g *Graph) *resolver {
	return &resolver{
		g:       g,
		ifaceNS: make(map[InterfaceID]map[string]TypeID),
		worldNS: make(map[WorldID]map[string]TypeID),
	}
}

type declared struct {
	pkg    PackageID
	ast    *astPackage
	ifaces []InterfaceID
	worlds []WorldID
}

func (r *resolver) resolve(pkgs []*astPackage) (PackageID, error) {
	g := r.g
	decls := make([]declared, 0, len(pkgs))

	// packages, interfaces and worlds first so that references may point forward
	for _, ap := range pkgs {
		pid := g.EnsurePackage(ap.name)
		if ap.docs != "" {
			g.Packages[pid].Docs = ap.docs
		}
		d := declared{pkg: pid, ast: ap}
		for _, ai := range ap.ifaces {
			if _, dup := g.FindInterface(pid, ai.name); dup {
				return 0, errors.Syntax(ai.line, "interface %q defined twice in %s", ai.name, ap.name)
			}
			id := g.AddInterface(pid, ai.name)
			g.Interfaces[id].Docs = ai.docs
			d.ifaces = append(d.ifaces, id)
		}
		for _, aw := range ap.worlds {
			if _, dup := g.FindWorld(pid, aw.name); dup {
				return 0, errors.Syntax(aw.line, "world %q defined twice in %s", aw.name, ap.name)
			}
			id := g.AddWorld(pid, aw.name)
			g.Worlds[id].Docs = aw.docs
			d.worlds = append(d.worlds, id)
		}
		decls = append(decls, d)
	}

	// named type declarations, kinds filled in later
	var pending []pendingUse
	for _, d := range decls {
		for i, ai := range d.ast.ifaces {
			id := d.ifaces[i]
			ns := make(map[string]TypeID)
			r.ifaceNS[id] = ns
			for _, td := range ai.types {
				if _, dup := ns[td.name]; dup {
					return 0, errors.Syntax(td.line, "type %q defined twice", td.name)
				}
				tid := g.AddInterfaceType(id, td.name, nil)
				g.Types[tid].Docs = td.docs
				ns[td.name] = tid
			}
			for _, u := range ai.uses {
				for _, n := range u.names {
					pending = append(pending, pendingUse{owner: OwnerInterface{ID: id}, pkg: d.pkg, use: u, name: n, scope: ns})
				}
			}
		}
		for i, aw := range d.ast.worlds {
			id := d.worlds[i]
			ns := make(map[string]TypeID)
			r.worldNS[id] = ns
			for _, u := range aw.uses {
				for _, n := range u.names {
					pending = append(pending, pendingUse{owner: OwnerWorld{ID: id}, pkg: d.pkg, use: u, name: n, scope: ns})
				}
			}
		}
	}

	if err := r.resolveUses(pending); err != nil {
		return 0, err
	}

	for _, d := range decls {
		for i, ai := range d.ast.ifaces {
			if err := r.fillInterface(d.pkg, d.ifaces[i], ai); err != nil {
				return 0, err
			}
		}
		for i, aw := range d.ast.worlds {
			if err := r.fillWorld(d.pkg, d.worlds[i], aw); err != nil {
				return 0, err
			}
		}
	}
	return decls[0].pkg, nil
}

// resolveUses binds use statements, repeating until chains of uses settle.
func (r *resolver) resolveUses(pending []pendingUse) error {
	g := r.g
	for len(pending) > 0 {
		var rest []pendingUse
		for _, pu := range pending {
			src, err := r.lookupPath(pu.pkg, pu.use.path, pu.use.line)
			if err != nil {
				return err
			}
			target, ok := r.ifaceNS[src][pu.name.name]
			if !ok {
				target, ok = g.FindType(src, pu.name.name)
			}
			if !ok {
				rest = append(rest, pu)
				continue
			}
			local := pu.name.name
			if pu.name.as != "" {
				local = pu.name.as
			}
			if _, dup := pu.scope[local]; dup {
				return errors.Syntax(pu.use.line, "type %q defined twice", local)
			}
			var tid TypeID
			switch o := pu.owner.(type) {
			case OwnerInterface:
				tid = g.AddInterfaceType(o.ID, local, Alias{Target: Ref{ID: target}})
			case OwnerWorld:
				tid = g.AddType(TypeDef{Name: local, Kind: Alias{Target: Ref{ID: target}}, Owner: o})
				w := &g.Worlds[o.ID]
				w.Imports = append(w.Imports, WorldEntry{Key: WorldKey{Name: local}, Item: TypeItem{ID: tid}})
			}
			pu.scope[local] = tid
		}
		if len(rest) == len(pending) {
			pu := rest[0]
			return errors.Syntax(pu.use.line, "type %q not found in used interface %q", pu.name.name, pu.use.path.iface)
		}
		pending = rest
	}
	return nil
}

func (r *resolver) lookupPath(pkg PackageID, path astPath, line int) (InterfaceID, error) {
	g := r.g
	if path.pkg != nil {
		pid, ok := g.FindPackage(*path.pkg)
		if !ok {
			return 0, errors.Syntax(line, "package %s not found", path.pkg)
		}
		pkg = pid
	}
	id, ok := g.FindInterface(pkg, path.iface)
	if !ok {
		return 0, errors.Syntax(line, "interface %q not found in %s", path.iface, g.Packages[pkg].Name)
	}
	return id, nil
}

func (r *resolver) fillInterface(pkg PackageID, id InterfaceID, ai *astInterface) error {
	g := r.g
	ns := r.ifaceNS[id]
	for _, td := range ai.types {
		tid := ns[td.name]
		kind, err := r.typeKind(td, ns)
		if err != nil {
			return err
		}
		g.Types[tid].Kind = kind
		if td.kind == "resource" {
			for _, m := range td.methods {
				fn, err := r.function(m, ns, td.name, tid)
				if err != nil {
					return err
				}
				g.Interfaces[id].Functions = append(g.Interfaces[id].Functions, fn)
			}
		}
	}
	for _, af := range ai.funcs {
		fn, err := r.function(af, ns, "", 0)
		if err != nil {
			return err
		}
		if _, dup := g.FindFunction(id, fn.Name); dup {
			return errors.Syntax(af.line, "function %q defined twice", fn.Name)
		}
		g.Interfaces[id].Functions = append(g.Interfaces[id].Functions, fn)
	}
	return nil
}

func (r *resolver) fillWorld(pkg PackageID, id WorldID, aw *astWorld) error {
	g := r.g
	ns := r.worldNS[id]
	for _, td := range aw.types {
		if _, dup := ns[td.name]; dup {
			return errors.Syntax(td.line, "type %q defined twice", td.name)
		}
		tid := g.AddType(TypeDef{Name: td.name, Docs: td.docs, Owner: OwnerWorld{ID: id}})
		ns[td.name] = tid
		g.Worlds[id].Imports = append(g.Worlds[id].Imports, WorldEntry{Key: WorldKey{Name: td.name}, Item: TypeItem{ID: tid}})
	}
	for _, td := range aw.types {
		kind, err := r.typeKind(td, ns)
		if err != nil {
			return err
		}
		g.Types[ns[td.name]].Kind = kind
	}

	for _, e := range aw.entries {
		var entry WorldEntry
		switch {
		case e.path != nil:
			iid, err := r.lookupPath(pkg, *e.path, e.line)
			if err != nil {
				return err
			}
			entry = WorldEntry{Key: WorldKey{Interface: iid}, Item: InterfaceItem{ID: iid}}
		case e.fn != nil:
			fn, err := r.function(e.fn, ns, "", 0)
			if err != nil {
				return err
			}
			entry = WorldEntry{Key: WorldKey{Name: e.name}, Item: FunctionItem{Func: fn}}
		case e.inline != nil:
			iid := g.AddInterface(pkg, "")
			ins := make(map[string]TypeID)
			r.ifaceNS[iid] = ins
			for _, td := range e.inline.types {
				ins[td.name] = g.AddInterfaceType(iid, td.name, nil)
			}
			var pending []pendingUse
			for _, u := range e.inline.uses {
				for _, n := range u.names {
					pending = append(pending, pendingUse{owner: OwnerInterface{ID: iid}, pkg: pkg, use: u, name: n, scope: ins})
				}
			}
			if err := r.resolveUses(pending); err != nil {
				return err
			}
			if err := r.fillInterface(pkg, iid, e.inline); err != nil {
				return err
			}
			entry = WorldEntry{Key: WorldKey{Name: e.name}, Item: InterfaceItem{ID: iid}}
		}
		w := &g.Worlds[id]
		if e.export {
			w.Exports = append(w.Exports, entry)
		} else {
			w.Imports = append(w.Imports, entry)
		}
	}
	return nil
}

func (r *resolver) typeKind(td *astTypeDef, ns map[string]TypeID) (TypeKind, error) {
	switch td.kind {
	case "resource":
		return Resource{}, nil
	case "type":
		t, err := r.valType(td.target, ns)
		if err != nil {
			return nil, err
		}
		return Alias{Target: t}, nil
	case "record":
		rec := Record{Fields: make([]Field, 0, len(td.fields))}
		for _, f := range td.fields {
			t, err := r.valType(f.typ, ns)
			if err != nil {
				return nil, err
			}
			rec.Fields = append(rec.Fields, Field{Name: f.name, Type: t, Docs: f.docs})
		}
		return rec, nil
	case "variant":
		v := Variant{Cases: make([]Case, 0, len(td.fields))}
		for _, f := range td.fields {
			var t Type
			if f.typ != nil {
				var err error
				if t, err = r.valType(f.typ, ns); err != nil {
					return nil, err
				}
			}
			v.Cases = append(v.Cases, Case{Name: f.name, Type: t, Docs: f.docs})
		}
		return v, nil
	case "enum":
		return Enum{Cases: td.names}, nil
	case "flags":
		return Flags{Names: td.names}, nil
	}
	return nil, errors.Syntax(td.line, "unknown type kind %q", td.kind)
}

func (r *resolver) valType(t astType, ns map[string]TypeID) (Type, error) {
	g := r.g
	switch at := t.(type) {
	case nil:
		return nil, nil
	case astPrim:
		return at.prim, nil
	case astNamed:
		id, ok := ns[at.name]
		if !ok {
			return nil, errors.Syntax(at.line, "type %q not defined", at.name)
		}
		return Ref{ID: id}, nil
	case astGeneric:
		args := make([]Type, len(at.args))
		for i, a := range at.args {
			v, err := r.valType(a, ns)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		var kind TypeKind
		switch at.name {
		case "list":
			kind = List{Elem: args[0]}
		case "option":
			kind = Option{Elem: args[0]}
		case "result":
			kind = Result{OK: args[0], Err: args[1]}
		case "tuple":
			kind = Tuple{Types: args}
		case "own":
			return args[0], nil
		case "borrow":
			ref, ok := args[0].(Ref)
			if !ok {
				return nil, errors.Syntax(at.line, "borrow of a non-resource type")
			}
			kind = Borrow{Resource: ref.ID}
		}
		return Ref{ID: g.AddType(TypeDef{Kind: kind})}, nil
	}
	return nil, errors.Syntax(t.astLine(), "unsupported type")
}

// function converts an ast function. Resource members get component model
// names, an implicit self parameter for methods, and an owned result for
// constructors.
func (r *resolver) function(af *astFunc, ns map[string]TypeID, resName string, res TypeID) (Function, error) {
	fn := Function{Docs: af.docs, Kind: af.kind, Resource: res}
	switch af.kind {
	case Freestanding:
		fn.Name = af.name
	case Method:
		fn.Name = "[method]" + resName + "." + af.name
		self := r.g.AddType(TypeDef{Kind: Borrow{Resource: res}})
		fn.Params = append(fn.Params, Param{Name: "self", Type: Ref{ID: self}})
	case Static:
		fn.Name = "[static]" + resName + "." + af.name
	case Constructor:
		fn.Name = "[constructor]" + resName
		fn.Result = Ref{ID: res}
	}
	for _, p := range af.params {
		t, err := r.valType(p.typ, ns)
		if err != nil {
			return Function{}, err
		}
		fn.Params = append(fn.Params, Param{Name: p.name, Type: t})
	}
	if af.result != nil {
		t, err := r.valType(af.result, ns)
		if err != nil {
			return Function{}, err
		}
		fn.Result = t
	}
	return fn, nil
}
