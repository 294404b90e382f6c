package component

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/witdeps/errors"
	"github.com/wippyai/witdeps/idl"
)

// RootPackage and RootWorld name the principal package of a decoded
// component and the world describing its imports and exports.
const (
	RootPackage = "root:component"
	RootWorld   = "root"
)

// Section IDs
const (
	secCustom       byte = 0
	secCoreModule   byte = 1
	secCoreInstance byte = 2
	secCoreType     byte = 3
	secComponent    byte = 4
	secInstance     byte = 5
	secAlias        byte = 6
	secType         byte = 7
	secCanon        byte = 8
	secStart        byte = 9
	secImport       byte = 10
	secExport       byte = 11
	secValue        byte = 12
)

var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}

// Options controls decoding behavior
type Options struct {
	// ValidateCoreModules compiles every embedded core module with wazero
	// before the component structure is decoded.
	ValidateCoreModules bool
}

// DefaultOptions validates core modules.
func DefaultOptions() Options {
	return Options{ValidateCoreModules: true}
}

// IsComponent reports whether data starts with a component preamble.
func IsComponent(data []byte) bool {
	return checkPreamble(data) == nil
}

func checkPreamble(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("binary too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:4], wasmMagic) {
		return fmt.Errorf("missing wasm magic")
	}
	if data[6] != 0x01 || data[7] != 0x00 {
		return fmt.Errorf("not a component: layer %d", uint16(data[6])|uint16(data[7])<<8)
	}
	return nil
}

// Decode validates a component binary and reconstructs its interface graph.
// The returned package is RootPackage; its single world RootWorld lists the
// component's imports and exports.
func Decode(ctx context.Context, data []byte) (*idl.Graph, idl.PackageID, error) {
	return DecodeWithOptions(ctx, data, DefaultOptions())
}

// DecodeWithOptions decodes a component with the given options
func DecodeWithOptions(ctx context.Context, data []byte, opts Options) (*idl.Graph, idl.PackageID, error) {
	if err := checkPreamble(data); err != nil {
		return nil, 0, errors.InvalidComponent("malformed component", err)
	}
	if opts.ValidateCoreModules {
		n, err := validateModules(ctx, data)
		if err != nil {
			return nil, 0, errors.InvalidComponent("core module validation failed", err)
		}
		Logger().Debug("validated core modules", zap.Int("modules", n))
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	g := idl.New()
	name, _ := idl.ParsePackageName(RootPackage)
	pkg := g.AddPackage(name)
	d := &decoder{g: g, pkg: pkg, world: g.AddWorld(pkg, RootWorld)}
	if _, err := d.walk(data, nil, nil, 0); err != nil {
		return nil, 0, errors.InvalidComponent("malformed component", err)
	}

	w := &g.Worlds[d.world]
	Logger().Debug("decoded component",
		zap.Int("bytes", len(data)),
		zap.Int("packages", len(g.Packages)),
		zap.Int("imports", len(w.Imports)),
		zap.Int("exports", len(w.Exports)))
	return g, pkg, nil
}

// eachSection calls fn for every section of a component or core module.
func eachSection(data []byte, fn func(id byte, payload []byte) error) error {
	body := data[8:]
	r := getReader(body)
	defer putReader(r)

	for count := 0; r.Len() > 0; count++ {
		if count >= maxSections {
			return fmt.Errorf("exceeded maximum section count %d", maxSections)
		}
		id, _ := r.ReadByte()
		size, err := readLEB128(r)
		if err != nil {
			return fmt.Errorf("section %d: read size: %w", count, err)
		}
		payload, err := readBytes(body, r, size)
		if err != nil {
			return fmt.Errorf("section %d (id %d): %w", count, id, err)
		}
		if err := fn(id, payload); err != nil {
			return fmt.Errorf("section %d (id %d): %w", count, id, err)
		}
	}
	return nil
}

// typeEntry is one slot of a type index space. Slots are shared by pointer
// between scopes, so naming a type through an export names every alias.
type typeEntry struct {
	def   defType
	scope *scope // scope the definition's indices refer to
	id    idl.TypeID
	done  bool // id is valid
	named bool
}

type funcEntry struct {
	def   *funcDef
	scope *scope
	sig   *idl.Function
}

type instExport struct {
	typ  *typeEntry
	fn   *funcEntry
	inst *instanceEntry
	comp *componentEntry
	name string
	sort byte
}

type instanceEntry struct {
	exports  []instExport
	iface    idl.InterfaceID
	hasIface bool
}

func (ie *instanceEntry) export(name string) (instExport, bool) {
	for _, x := range ie.exports {
		if x.name == name {
			return x, true
		}
	}
	return instExport{}, false
}

// componentEntry is a nested component. Imported components have no data.
type componentEntry struct {
	scope *scope
	data  []byte
}

// scope holds the component-level index spaces of one component or type.
type scope struct {
	parent     *scope
	types      []*typeEntry
	funcs      []*funcEntry
	instances  []*instanceEntry
	components []*componentEntry
}

func at[T any](list []T, idx uint32, what string) (T, error) {
	if int(idx) >= len(list) {
		var zero T
		return zero, fmt.Errorf("%s index %d out of range (%d defined)", what, idx, len(list))
	}
	return list[idx], nil
}

func (s *scope) ancestor(count uint32) (*scope, error) {
	cur := s
	for i := uint32(0); i < count; i++ {
		if cur.parent == nil {
			return nil, fmt.Errorf("outer alias count %d exceeds nesting", count)
		}
		cur = cur.parent
	}
	return cur, nil
}

func (s *scope) resolve(si sortIdx) (instExport, error) {
	x := instExport{sort: si.sort}
	var err error
	switch si.sort {
	case sortFunc:
		x.fn, err = at(s.funcs, si.idx, "func")
	case sortType:
		x.typ, err = at(s.types, si.idx, "type")
	case sortInstance:
		x.inst, err = at(s.instances, si.idx, "instance")
	case sortComponent:
		x.comp, err = at(s.components, si.idx, "component")
	}
	return x, err
}

// push appends an item to the index space of its sort.
func (s *scope) push(x instExport) {
	switch x.sort {
	case sortFunc:
		s.funcs = append(s.funcs, x.fn)
	case sortType:
		s.types = append(s.types, x.typ)
	case sortInstance:
		s.instances = append(s.instances, x.inst)
	case sortComponent:
		s.components = append(s.components, x.comp)
	}
}

func (s *scope) funcType(idx uint32) (*funcEntry, error) {
	te, err := at(s.types, idx, "type")
	if err != nil {
		return nil, err
	}
	fd, ok := te.def.(*funcDef)
	if !ok {
		return nil, fmt.Errorf("type %d is not a function type", idx)
	}
	return &funcEntry{def: fd, scope: te.scope}, nil
}

type decoder struct {
	g     *idl.Graph
	pkg   idl.PackageID
	world idl.WorldID
}

// walk decodes one component. The outermost component maps onto the root
// world; nested components bind their imports to instantiation args and
// return their exports.
func (d *decoder) walk(data []byte, parent *scope, args map[string]instExport, depth int) ([]instExport, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("component nesting exceeds %d", maxDepth)
	}
	if err := checkPreamble(data); err != nil {
		return nil, err
	}
	s := &scope{parent: parent}
	root := depth == 0
	var exports []instExport

	err := eachSection(data, func(id byte, payload []byte) error {
		switch id {
		case secComponent:
			s.components = append(s.components, &componentEntry{data: payload, scope: s})
		case secInstance:
			return d.instanceSection(s, payload, depth)
		case secAlias:
			return d.aliasSection(s, payload)
		case secType:
			types, err := parseTypeSection(payload)
			if err != nil {
				return err
			}
			for _, t := range types {
				s.types = append(s.types, &typeEntry{def: t, scope: s})
			}
		case secCanon:
			return d.canonSection(s, payload)
		case secImport:
			return d.importSection(s, payload, args, root)
		case secExport:
			ex, err := d.exportSection(s, payload, root)
			if err != nil {
				return err
			}
			exports = append(exports, ex...)
		case secCustom, secCoreModule, secCoreInstance, secCoreType, secStart, secValue:
		default:
			return fmt.Errorf("unknown section id %d", id)
		}
		return nil
	})
	return exports, err
}

func (d *decoder) instanceSection(s *scope, payload []byte, depth int) error {
	r := getReader(payload)
	defer putReader(r)

	n, err := readCount(r, "instance")
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		kind, err := readByte(r)
		if err != nil {
			return fmt.Errorf("instance %d: read kind: %w", i, err)
		}
		switch kind {
		case 0x00:
			cidx, err := readLEB128(r)
			if err != nil {
				return fmt.Errorf("instance %d: read component index: %w", i, err)
			}
			argc, err := readCount(r, "argument")
			if err != nil {
				return fmt.Errorf("instance %d: %w", i, err)
			}
			args := make(map[string]instExport, argc)
			for j := uint32(0); j < argc; j++ {
				name, err := readString(r)
				if err != nil {
					return fmt.Errorf("instance %d arg %d: %w", i, j, err)
				}
				si, err := parseSortIdx(r)
				if err != nil {
					return fmt.Errorf("instance %d arg %q: %w", i, name, err)
				}
				x, err := s.resolve(si)
				if err != nil {
					return fmt.Errorf("instance %d arg %q: %w", i, name, err)
				}
				args[name] = x
			}
			ce, err := at(s.components, cidx, "component")
			if err != nil {
				return fmt.Errorf("instance %d: %w", i, err)
			}
			if ce.data == nil {
				return errors.Unsupported(errors.PhaseDecode, "instantiating an imported component")
			}
			ex, err := d.walk(ce.data, ce.scope, args, depth+1)
			if err != nil {
				return fmt.Errorf("instance %d: instantiate component %d: %w", i, cidx, err)
			}
			s.instances = append(s.instances, &instanceEntry{exports: ex})
		case 0x01:
			m, err := readCount(r, "inline export")
			if err != nil {
				return fmt.Errorf("instance %d: %w", i, err)
			}
			ie := &instanceEntry{}
			for j := uint32(0); j < m; j++ {
				name, err := readExternName(r)
				if err != nil {
					return fmt.Errorf("instance %d export %d: %w", i, j, err)
				}
				si, err := parseSortIdx(r)
				if err != nil {
					return fmt.Errorf("instance %d export %q: %w", i, name, err)
				}
				x, err := s.resolve(si)
				if err != nil {
					return fmt.Errorf("instance %d export %q: %w", i, name, err)
				}
				x.name = name
				ie.exports = append(ie.exports, x)
			}
			s.instances = append(s.instances, ie)
		default:
			return fmt.Errorf("instance %d: unknown kind 0x%02x", i, kind)
		}
	}
	return nil
}

func (d *decoder) aliasSection(s *scope, payload []byte) error {
	r := getReader(payload)
	defer putReader(r)

	n, err := readCount(r, "alias")
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		a, err := parseAlias(r)
		if err != nil {
			return fmt.Errorf("alias %d: %w", i, err)
		}
		if err := d.alias(s, a); err != nil {
			return fmt.Errorf("alias %d: %w", i, err)
		}
	}
	return nil
}

func (d *decoder) alias(s *scope, a aliasDef) error {
	if a.sort == sortCore || a.sort == sortValue {
		return nil
	}
	switch a.target {
	case 0x00:
		ie, err := at(s.instances, a.inst, "instance")
		if err != nil {
			return err
		}
		x, ok := ie.export(a.name)
		if !ok {
			return fmt.Errorf("instance %d has no export %q", a.inst, a.name)
		}
		if x.sort != a.sort {
			return fmt.Errorf("export %q of instance %d has sort 0x%02x, want 0x%02x", a.name, a.inst, x.sort, a.sort)
		}
		s.push(x)
	case 0x02:
		anc, err := s.ancestor(a.count)
		if err != nil {
			return err
		}
		switch a.sort {
		case sortType:
			t, err := at(anc.types, a.idx, "outer type")
			if err != nil {
				return err
			}
			s.types = append(s.types, t)
		case sortComponent:
			c, err := at(anc.components, a.idx, "outer component")
			if err != nil {
				return err
			}
			s.components = append(s.components, c)
		default:
			return fmt.Errorf("outer alias of sort 0x%02x", a.sort)
		}
	default:
		return fmt.Errorf("alias target 0x%02x for sort 0x%02x", a.target, a.sort)
	}
	return nil
}

func (d *decoder) canonSection(s *scope, payload []byte) error {
	r := getReader(payload)
	defer putReader(r)

	n, err := readCount(r, "canon")
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		op, err := readByte(r)
		if err != nil {
			return fmt.Errorf("canon %d: read opcode: %w", i, err)
		}
		switch op {
		case 0x00: // lift
			if err := expectByte(r, 0x00, "lift marker"); err != nil {
				return fmt.Errorf("canon %d: %w", i, err)
			}
			if _, err := readLEB128(r); err != nil {
				return fmt.Errorf("canon %d: read core func: %w", i, err)
			}
			if err := skipCanonOpts(r); err != nil {
				return fmt.Errorf("canon %d: %w", i, err)
			}
			idx, err := readLEB128(r)
			if err != nil {
				return fmt.Errorf("canon %d: read type index: %w", i, err)
			}
			fe, err := s.funcType(idx)
			if err != nil {
				return fmt.Errorf("canon %d: lift: %w", i, err)
			}
			s.funcs = append(s.funcs, fe)
		case 0x01: // lower
			if err := expectByte(r, 0x00, "lower marker"); err != nil {
				return fmt.Errorf("canon %d: %w", i, err)
			}
			if _, err := readLEB128(r); err != nil {
				return fmt.Errorf("canon %d: read func: %w", i, err)
			}
			if err := skipCanonOpts(r); err != nil {
				return fmt.Errorf("canon %d: %w", i, err)
			}
		case 0x02, 0x03, 0x04, 0x07: // resource.new, drop, rep, drop async
			if _, err := readLEB128(r); err != nil {
				return fmt.Errorf("canon %d: read resource type: %w", i, err)
			}
		default:
			return errors.Unsupported(errors.PhaseDecode, fmt.Sprintf("canon operation 0x%02x", op))
		}
	}
	return nil
}

func skipCanonOpts(r *bytes.Reader) error {
	n, err := readCount(r, "canon option")
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		b, err := readByte(r)
		if err != nil {
			return fmt.Errorf("read canon option: %w", err)
		}
		switch b {
		case 0x00, 0x01, 0x02, 0x06:
		case 0x03, 0x04, 0x05, 0x07:
			if _, err := readLEB128(r); err != nil {
				return fmt.Errorf("read canon option index: %w", err)
			}
		default:
			return fmt.Errorf("unknown canon option 0x%02x", b)
		}
	}
	return nil
}

func (d *decoder) importSection(s *scope, payload []byte, args map[string]instExport, root bool) error {
	r := getReader(payload)
	defer putReader(r)

	n, err := readCount(r, "import")
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		name, err := readExternName(r)
		if err != nil {
			return fmt.Errorf("import %d: %w", i, err)
		}
		desc, err := parseExternDesc(r)
		if err != nil {
			return fmt.Errorf("import %q: %w", name, err)
		}
		if err := d.importItem(s, name, desc, args, root); err != nil {
			return fmt.Errorf("import %q: %w", name, err)
		}
	}
	return nil
}

func (d *decoder) importItem(s *scope, name string, desc externDesc, args map[string]instExport, root bool) error {
	if a, ok := args[name]; ok {
		// Extern kinds and sorts share byte values for component items.
		if a.sort != desc.kind {
			return fmt.Errorf("argument has sort 0x%02x, import expects 0x%02x", a.sort, desc.kind)
		}
		s.push(a)
		return nil
	}

	switch desc.kind {
	case externFunc:
		fe, err := s.funcType(desc.idx)
		if err != nil {
			return err
		}
		if root {
			fn, err := d.signature(fe, name, nil)
			if err != nil {
				return err
			}
			w := &d.g.Worlds[d.world]
			w.Imports = append(w.Imports, idl.WorldEntry{Key: idl.WorldKey{Name: name}, Item: idl.FunctionItem{Func: fn}})
		}
		s.funcs = append(s.funcs, fe)
	case externInstance:
		te, err := at(s.types, desc.idx, "type")
		if err != nil {
			return err
		}
		def, ok := te.def.(*instanceDef)
		if !ok {
			return fmt.Errorf("type %d is not an instance type", desc.idx)
		}
		ie, err := d.typedInstance(name, def, te.scope)
		if err != nil {
			return err
		}
		if root {
			w := &d.g.Worlds[d.world]
			w.Imports = append(w.Imports, d.interfaceEntry(name, ie.iface))
		}
		s.instances = append(s.instances, ie)
	case externType:
		te, err := importedType(s, desc)
		if err != nil {
			return err
		}
		if root {
			if te, err = d.nameType(te, idl.OwnerWorld{ID: d.world}, name); err != nil {
				return err
			}
		}
		s.types = append(s.types, te)
	case externComponent:
		s.components = append(s.components, &componentEntry{scope: s})
	}
	return nil
}

func importedType(s *scope, desc externDesc) (*typeEntry, error) {
	if desc.bound == boundSubResource {
		return &typeEntry{def: resourceDef{}, scope: s}, nil
	}
	return at(s.types, desc.idx, "type")
}

func (d *decoder) exportSection(s *scope, payload []byte, root bool) ([]instExport, error) {
	r := getReader(payload)
	defer putReader(r)

	n, err := readCount(r, "export")
	if err != nil {
		return nil, err
	}
	out := make([]instExport, 0, n)
	for i := uint32(0); i < n; i++ {
		name, err := readExternName(r)
		if err != nil {
			return nil, fmt.Errorf("export %d: %w", i, err)
		}
		si, err := parseSortIdx(r)
		if err != nil {
			return nil, fmt.Errorf("export %q: %w", name, err)
		}
		flag, err := readByte(r)
		if err != nil {
			return nil, fmt.Errorf("export %q: read ascription flag: %w", name, err)
		}
		var desc *externDesc
		switch flag {
		case 0x00:
		case 0x01:
			ed, err := parseExternDesc(r)
			if err != nil {
				return nil, fmt.Errorf("export %q: %w", name, err)
			}
			desc = &ed
		default:
			return nil, fmt.Errorf("export %q: invalid ascription flag 0x%02x", name, flag)
		}

		x, err := s.resolve(si)
		if err != nil {
			return nil, fmt.Errorf("export %q: %w", name, err)
		}
		if x, err = d.exportItem(s, name, x, desc, root); err != nil {
			return nil, fmt.Errorf("export %q: %w", name, err)
		}
		x.name = name
		s.push(x)
		out = append(out, x)
	}
	return out, nil
}

func (d *decoder) exportItem(s *scope, name string, x instExport, desc *externDesc, root bool) (instExport, error) {
	switch x.sort {
	case sortFunc:
		if desc != nil && desc.kind == externFunc {
			fe, err := s.funcType(desc.idx)
			if err != nil {
				return x, err
			}
			x.fn = fe
		}
		if root {
			fn, err := d.signature(x.fn, name, nil)
			if err != nil {
				return x, err
			}
			w := &d.g.Worlds[d.world]
			w.Exports = append(w.Exports, idl.WorldEntry{Key: idl.WorldKey{Name: name}, Item: idl.FunctionItem{Func: fn}})
		}
	case sortInstance:
		if !root {
			return x, nil
		}
		ie, err := d.exportInstance(s, name, x.inst, desc)
		if err != nil {
			return x, err
		}
		x.inst = ie
		w := &d.g.Worlds[d.world]
		w.Exports = append(w.Exports, d.interfaceEntry(name, ie.iface))
	}
	return x, nil
}

// exportInstance types an exported instance by its ascribed instance type,
// else by the items it exports.
func (d *decoder) exportInstance(s *scope, name string, ie *instanceEntry, desc *externDesc) (*instanceEntry, error) {
	iface, existing, err := d.interfaceFor(name)
	if err != nil {
		return nil, err
	}
	if existing {
		return d.existingInterface(iface), nil
	}
	if desc != nil && desc.kind == externInstance {
		te, err := at(s.types, desc.idx, "type")
		if err != nil {
			return nil, err
		}
		def, ok := te.def.(*instanceDef)
		if !ok {
			return nil, fmt.Errorf("type %d is not an instance type", desc.idx)
		}
		return d.instanceType(def, te.scope, iface)
	}
	return d.buildInterface(iface, ie.exports)
}

func isQualified(name string) bool {
	return strings.Contains(name, ":")
}

// interfaceFor returns the interface an extern name refers to: a package
// interface for ns:pkg/iface@ver names, a fresh anonymous one otherwise.
func (d *decoder) interfaceFor(name string) (idl.InterfaceID, bool, error) {
	if !isQualified(name) {
		return d.g.AddInterface(d.pkg, ""), false, nil
	}
	pn, iname, err := idl.ParseInterfaceName(name)
	if err != nil {
		return 0, false, err
	}
	pkg := d.g.EnsurePackage(pn)
	if id, ok := d.g.FindInterface(pkg, iname); ok {
		return id, true, nil
	}
	return d.g.AddInterface(pkg, iname), false, nil
}

func (d *decoder) interfaceEntry(name string, iface idl.InterfaceID) idl.WorldEntry {
	key := idl.WorldKey{Interface: iface}
	if !isQualified(name) {
		key = idl.WorldKey{Name: name}
	}
	return idl.WorldEntry{Key: key, Item: idl.InterfaceItem{ID: iface}}
}

func (d *decoder) typedInstance(name string, def *instanceDef, defScope *scope) (*instanceEntry, error) {
	iface, existing, err := d.interfaceFor(name)
	if err != nil {
		return nil, err
	}
	if existing {
		return d.existingInterface(iface), nil
	}
	return d.instanceType(def, defScope, iface)
}

// existingInterface exposes an already decoded interface as an instance.
func (d *decoder) existingInterface(iface idl.InterfaceID) *instanceEntry {
	ie := &instanceEntry{iface: iface, hasIface: true}
	in := &d.g.Interfaces[iface]
	for _, tid := range in.Types {
		ie.exports = append(ie.exports, instExport{
			name: d.g.Types[tid].Name,
			sort: sortType,
			typ:  &typeEntry{id: tid, done: true, named: true},
		})
	}
	for i := range in.Functions {
		fn := in.Functions[i]
		ie.exports = append(ie.exports, instExport{name: fn.Name, sort: sortFunc, fn: &funcEntry{sig: &fn}})
	}
	return ie
}

// instanceType converts an instance type into the interface iface.
func (d *decoder) instanceType(def *instanceDef, defScope *scope, iface idl.InterfaceID) (*instanceEntry, error) {
	child := &scope{parent: defScope}
	ie := &instanceEntry{iface: iface, hasIface: true}
	owner := idl.OwnerInterface{ID: iface}

	for i, dcl := range def.decls {
		switch dcl.kind {
		case declType:
			child.types = append(child.types, &typeEntry{def: dcl.typ, scope: child})
		case declAlias:
			a := dcl.alias
			if a.target != 0x02 {
				return nil, fmt.Errorf("decl %d: instance type alias must be outer", i)
			}
			if a.sort != sortType {
				continue
			}
			anc, err := child.ancestor(a.count)
			if err != nil {
				return nil, fmt.Errorf("decl %d: %w", i, err)
			}
			t, err := at(anc.types, a.idx, "outer type")
			if err != nil {
				return nil, fmt.Errorf("decl %d: %w", i, err)
			}
			child.types = append(child.types, t)
		case declExport:
			switch dcl.desc.kind {
			case externType:
				te, err := importedType(child, dcl.desc)
				if err != nil {
					return nil, fmt.Errorf("export %q: %w", dcl.name, err)
				}
				if te, err = d.nameType(te, owner, dcl.name); err != nil {
					return nil, fmt.Errorf("export %q: %w", dcl.name, err)
				}
				child.types = append(child.types, te)
				ie.exports = append(ie.exports, instExport{name: dcl.name, sort: sortType, typ: te})
			case externFunc:
				fe, err := child.funcType(dcl.desc.idx)
				if err != nil {
					return nil, fmt.Errorf("export %q: %w", dcl.name, err)
				}
				fn, err := d.signature(fe, dcl.name, &iface)
				if err != nil {
					return nil, fmt.Errorf("export %q: %w", dcl.name, err)
				}
				fe.sig = &fn
				d.g.Interfaces[iface].Functions = append(d.g.Interfaces[iface].Functions, fn)
				ie.exports = append(ie.exports, instExport{name: dcl.name, sort: sortFunc, fn: fe})
			case externInstance:
				return nil, errors.Unsupported(errors.PhaseDecode, "instance exported from an instance type")
			}
		}
	}
	return ie, nil
}

// buildInterface fills iface from the items of an untyped instance. Types
// are named first so resource functions can find their resource.
func (d *decoder) buildInterface(iface idl.InterfaceID, exports []instExport) (*instanceEntry, error) {
	ie := &instanceEntry{iface: iface, hasIface: true}
	owner := idl.OwnerInterface{ID: iface}
	for _, x := range exports {
		if x.sort != sortType {
			continue
		}
		te, err := d.nameType(x.typ, owner, x.name)
		if err != nil {
			return nil, fmt.Errorf("type %q: %w", x.name, err)
		}
		ie.exports = append(ie.exports, instExport{name: x.name, sort: sortType, typ: te})
	}
	for _, x := range exports {
		switch x.sort {
		case sortFunc:
			fn, err := d.signature(x.fn, x.name, &iface)
			if err != nil {
				return nil, fmt.Errorf("func %q: %w", x.name, err)
			}
			d.g.Interfaces[iface].Functions = append(d.g.Interfaces[iface].Functions, fn)
			ie.exports = append(ie.exports, instExport{name: x.name, sort: sortFunc, fn: &funcEntry{sig: &fn}})
		case sortInstance:
			return nil, errors.Unsupported(errors.PhaseDecode, "nested instance export "+x.name)
		}
	}
	return ie, nil
}

// nameType gives a type slot a name in owner. A slot already named elsewhere
// gets a local alias, which renders as a use.
func (d *decoder) nameType(te *typeEntry, owner idl.Owner, name string) (*typeEntry, error) {
	if te.named {
		def := &d.g.Types[te.id]
		if def.Owner == owner && def.Name == name {
			return te, nil
		}
		id := d.addNamed(owner, name, idl.Alias{Target: idl.Ref{ID: te.id}})
		return &typeEntry{id: id, done: true, named: true}, nil
	}
	if te.done {
		def := &d.g.Types[te.id]
		def.Name = name
		def.Owner = owner
		d.register(owner, te.id, name)
		te.named = true
		return te, nil
	}
	kind, err := d.kindOf(te)
	if err != nil {
		return nil, err
	}
	te.id = d.addNamed(owner, name, kind)
	te.done, te.named = true, true
	return te, nil
}

func (d *decoder) addNamed(owner idl.Owner, name string, kind idl.TypeKind) idl.TypeID {
	id := d.g.AddType(idl.TypeDef{Kind: kind, Owner: owner, Name: name})
	d.register(owner, id, name)
	return id
}

func (d *decoder) register(owner idl.Owner, id idl.TypeID, name string) {
	switch o := owner.(type) {
	case idl.OwnerInterface:
		d.g.Interfaces[o.ID].Types = append(d.g.Interfaces[o.ID].Types, id)
	case idl.OwnerWorld:
		w := &d.g.Worlds[o.ID]
		w.Imports = append(w.Imports, idl.WorldEntry{Key: idl.WorldKey{Name: name}, Item: idl.TypeItem{ID: id}})
	}
}

// materialize returns the value type a slot denotes, creating an anonymous
// definition on first use.
func (d *decoder) materialize(te *typeEntry) (idl.Type, error) {
	if te.done {
		return idl.Ref{ID: te.id}, nil
	}
	switch def := te.def.(type) {
	case primDef:
		return def.prim, nil
	case ownDef:
		return d.valueOf(te.scope, valType{idx: def.idx})
	}
	kind, err := d.kindOf(te)
	if err != nil {
		return nil, err
	}
	te.id = d.g.AddType(idl.TypeDef{Kind: kind})
	te.done = true
	return idl.Ref{ID: te.id}, nil
}

func (d *decoder) valueOf(s *scope, vt valType) (idl.Type, error) {
	if vt.isPrim {
		return vt.prim, nil
	}
	te, err := at(s.types, vt.idx, "type")
	if err != nil {
		return nil, err
	}
	return d.materialize(te)
}

func (d *decoder) optValueOf(s *scope, vt *valType) (idl.Type, error) {
	if vt == nil {
		return nil, nil
	}
	return d.valueOf(s, *vt)
}

func (d *decoder) kindOf(te *typeEntry) (idl.TypeKind, error) {
	s := te.scope
	switch def := te.def.(type) {
	case primDef:
		return idl.Alias{Target: def.prim}, nil
	case recordDef:
		fields := make([]idl.Field, 0, len(def.fields))
		for _, f := range def.fields {
			t, err := d.valueOf(s, f.typ)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.name, err)
			}
			fields = append(fields, idl.Field{Name: f.name, Type: t})
		}
		return idl.Record{Fields: fields}, nil
	case variantDef:
		cases := make([]idl.Case, 0, len(def.cases))
		for _, c := range def.cases {
			t, err := d.optValueOf(s, c.typ)
			if err != nil {
				return nil, fmt.Errorf("case %q: %w", c.name, err)
			}
			cases = append(cases, idl.Case{Name: c.name, Type: t})
		}
		return idl.Variant{Cases: cases}, nil
	case listDef:
		t, err := d.valueOf(s, def.elem)
		if err != nil {
			return nil, err
		}
		return idl.List{Elem: t}, nil
	case tupleDef:
		types := make([]idl.Type, 0, len(def.types))
		for _, vt := range def.types {
			t, err := d.valueOf(s, vt)
			if err != nil {
				return nil, err
			}
			types = append(types, t)
		}
		return idl.Tuple{Types: types}, nil
	case flagsDef:
		return idl.Flags{Names: def.names}, nil
	case enumDef:
		return idl.Enum{Cases: def.names}, nil
	case optionDef:
		t, err := d.valueOf(s, def.elem)
		if err != nil {
			return nil, err
		}
		return idl.Option{Elem: t}, nil
	case resultDef:
		ok, err := d.optValueOf(s, def.ok)
		if err != nil {
			return nil, err
		}
		e, err := d.optValueOf(s, def.err)
		if err != nil {
			return nil, err
		}
		return idl.Result{OK: ok, Err: e}, nil
	case ownDef:
		t, err := d.valueOf(s, valType{idx: def.idx})
		if err != nil {
			return nil, err
		}
		return idl.Alias{Target: t}, nil
	case borrowDef:
		t, err := d.valueOf(s, valType{idx: def.idx})
		if err != nil {
			return nil, err
		}
		ref, ok := t.(idl.Ref)
		if !ok {
			return nil, fmt.Errorf("borrow of a non-resource type")
		}
		return idl.Borrow{Resource: ref.ID}, nil
	case resourceDef:
		return idl.Resource{}, nil
	case nil:
		return nil, fmt.Errorf("type has no definition")
	}
	return nil, fmt.Errorf("%T is not a value type", te.def)
}

// signature converts a function slot. Resource members are attached to the
// resource their name refers to, which must live in iface.
func (d *decoder) signature(fe *funcEntry, name string, iface *idl.InterfaceID) (idl.Function, error) {
	if fe.sig != nil {
		fn := *fe.sig
		fn.Name = name
		return fn, nil
	}
	if fe.def == nil {
		return idl.Function{}, fmt.Errorf("function has no type")
	}
	fn := idl.Function{Name: name}
	for _, p := range fe.def.params {
		t, err := d.valueOf(fe.scope, p.typ)
		if err != nil {
			return idl.Function{}, fmt.Errorf("param %q: %w", p.name, err)
		}
		fn.Params = append(fn.Params, idl.Param{Name: p.name, Type: t})
	}
	res, err := d.optValueOf(fe.scope, fe.def.result)
	if err != nil {
		return idl.Function{}, fmt.Errorf("result: %w", err)
	}
	fn.Result = res

	kind, resName := idl.FunctionKindOf(name)
	if kind != idl.Freestanding {
		if iface == nil {
			return idl.Function{}, errors.Unsupported(errors.PhaseDecode, "resource function outside an interface: "+name)
		}
		rid, ok := d.g.FindType(*iface, resName)
		if !ok {
			return idl.Function{}, fmt.Errorf("resource %q of %q not found", resName, name)
		}
		fn.Kind, fn.Resource = kind, rid
	}
	return fn, nil
}
