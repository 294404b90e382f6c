package component

import (
	"bytes"
	"fmt"

	"github.com/wippyai/witdeps/idl"
)

// Sort kinds
const (
	sortCore      byte = 0x00
	sortFunc      byte = 0x01
	sortValue     byte = 0x02
	sortType      byte = 0x03
	sortComponent byte = 0x04
	sortInstance  byte = 0x05
)

// externdesc kinds
const (
	externCoreModule byte = 0x00
	externFunc       byte = 0x01
	externValue      byte = 0x02
	externType       byte = 0x03
	externComponent  byte = 0x04
	externInstance   byte = 0x05
)

// Type bounds
const (
	boundEq          byte = 0x00
	boundSubResource byte = 0x01
)

// Instance and component type declarations
const (
	declCoreType byte = 0x00
	declType     byte = 0x01
	declAlias    byte = 0x02
	declImport   byte = 0x03
	declExport   byte = 0x04
)

// valType is a primitive or an index into the enclosing type index space.
type valType struct {
	idx    uint32
	prim   idl.Prim
	isPrim bool
}

type namedVal struct {
	name string
	typ  valType
}

type caseDef struct {
	typ  *valType
	name string
}

// defType is a parsed entry of a type section or a type declaration.
type defType interface {
	isDefType()
}

type primDef struct{ prim idl.Prim }
type recordDef struct{ fields []namedVal }
type variantDef struct{ cases []caseDef }
type listDef struct{ elem valType }
type tupleDef struct{ types []valType }
type flagsDef struct{ names []string }
type enumDef struct{ names []string }
type optionDef struct{ elem valType }
type resultDef struct{ ok, err *valType }
type ownDef struct{ idx uint32 }
type borrowDef struct{ idx uint32 }
type resourceDef struct{}

type funcDef struct {
	result *valType
	params []namedVal
}

type instanceDef struct {
	decls []decl
}

type componentDef struct {
	decls []decl
}

func (primDef) isDefType()      {}
func (recordDef) isDefType()    {}
func (variantDef) isDefType()   {}
func (listDef) isDefType()      {}
func (tupleDef) isDefType()     {}
func (flagsDef) isDefType()     {}
func (enumDef) isDefType()      {}
func (optionDef) isDefType()    {}
func (resultDef) isDefType()    {}
func (ownDef) isDefType()       {}
func (borrowDef) isDefType()    {}
func (resourceDef) isDefType()  {}
func (*funcDef) isDefType()     {}
func (*instanceDef) isDefType() {}
func (componentDef) isDefType() {}

// externDesc describes an import, export or declared item.
type externDesc struct {
	kind  byte
	bound byte // type bound, for externType
	idx   uint32
}

// aliasDef is a parsed alias. Targets: 0x00 instance export, 0x01 core
// instance export, 0x02 outer.
type aliasDef struct {
	name     string
	inst     uint32
	count    uint32
	idx      uint32
	sort     byte
	coreSort byte
	target   byte
}

// decl is one declaration of an instance or component type.
type decl struct {
	typ   defType
	name  string
	alias aliasDef
	desc  externDesc
	kind  byte
}

var primBytes = map[byte]idl.Prim{
	0x7f: idl.Bool,
	0x7e: idl.S8,
	0x7d: idl.U8,
	0x7c: idl.S16,
	0x7b: idl.U16,
	0x7a: idl.S32,
	0x79: idl.U32,
	0x78: idl.S64,
	0x77: idl.U64,
	0x76: idl.F32,
	0x75: idl.F64,
	0x74: idl.Char,
	0x73: idl.String,
}

// readValType reads a valtype: a primitive code or a non-negative s33 index.
func readValType(r *bytes.Reader) (valType, error) {
	b, err := readByte(r)
	if err != nil {
		return valType{}, fmt.Errorf("read valtype: %w", err)
	}
	return valTypeFrom(r, b)
}

func valTypeFrom(r *bytes.Reader, b byte) (valType, error) {
	if p, ok := primBytes[b]; ok {
		return valType{prim: p, isPrim: true}, nil
	}
	if b&0x80 == 0 {
		if b&0x40 != 0 {
			return valType{}, fmt.Errorf("unsupported value type 0x%02x", b)
		}
		return valType{idx: uint32(b)}, nil
	}
	result := uint32(b & 0x7f)
	shift := uint(7)
	for i := 0; i < 4; i++ {
		c, err := readByte(r)
		if err != nil {
			return valType{}, fmt.Errorf("read type index: %w", err)
		}
		result |= uint32(c&0x7f) << shift
		shift += 7
		if c&0x80 == 0 {
			if c&0x40 != 0 {
				return valType{}, fmt.Errorf("negative type index")
			}
			return valType{idx: result}, nil
		}
	}
	return valType{}, fmt.Errorf("type index encoding exceeded maximum length")
}

func readOptValType(r *bytes.Reader) (*valType, error) {
	b, err := readByte(r)
	if err != nil {
		return nil, fmt.Errorf("read option flag: %w", err)
	}
	switch b {
	case 0x00:
		return nil, nil
	case 0x01:
		t, err := readValType(r)
		if err != nil {
			return nil, err
		}
		return &t, nil
	}
	return nil, fmt.Errorf("invalid option flag 0x%02x", b)
}

func readNames(r *bytes.Reader, what string) ([]string, error) {
	n, err := readCount(r, what)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("%s %d: %w", what, i, err)
		}
		names = append(names, s)
	}
	return names, nil
}

// parseTypeSection parses a component type section (section 7).
func parseTypeSection(data []byte) ([]defType, error) {
	r := getReader(data)
	defer putReader(r)

	count, err := readCount(r, "type")
	if err != nil {
		return nil, err
	}
	types := make([]defType, 0, count)
	for i := uint32(0); i < count; i++ {
		t, err := parseDefType(r)
		if err != nil {
			return nil, fmt.Errorf("type %d: %w", i, err)
		}
		types = append(types, t)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes in type section", r.Len())
	}
	return types, nil
}

func parseDefType(r *bytes.Reader) (defType, error) {
	b, err := readByte(r)
	if err != nil {
		return nil, fmt.Errorf("read type byte: %w", err)
	}

	switch b {
	case 0x40:
		return parseFuncType(r)
	case 0x41:
		decls, err := parseDecls(r, true)
		if err != nil {
			return nil, fmt.Errorf("component type: %w", err)
		}
		return componentDef{decls: decls}, nil
	case 0x42:
		decls, err := parseDecls(r, false)
		if err != nil {
			return nil, fmt.Errorf("instance type: %w", err)
		}
		return &instanceDef{decls: decls}, nil
	case 0x3f:
		if err := expectByte(r, 0x7f, "resource rep"); err != nil {
			return nil, err
		}
		dtor, err := readByte(r)
		if err != nil {
			return nil, fmt.Errorf("read resource dtor flag: %w", err)
		}
		switch dtor {
		case 0x00:
		case 0x01:
			if _, err := readLEB128(r); err != nil {
				return nil, fmt.Errorf("read resource dtor: %w", err)
			}
		default:
			return nil, fmt.Errorf("invalid resource dtor flag 0x%02x", dtor)
		}
		return resourceDef{}, nil
	case 0x72:
		n, err := readCount(r, "field")
		if err != nil {
			return nil, err
		}
		rec := recordDef{fields: make([]namedVal, 0, n)}
		for i := uint32(0); i < n; i++ {
			name, err := readString(r)
			if err != nil {
				return nil, fmt.Errorf("field %d name: %w", i, err)
			}
			t, err := readValType(r)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			rec.fields = append(rec.fields, namedVal{name: name, typ: t})
		}
		return rec, nil
	case 0x71:
		n, err := readCount(r, "case")
		if err != nil {
			return nil, err
		}
		v := variantDef{cases: make([]caseDef, 0, n)}
		for i := uint32(0); i < n; i++ {
			name, err := readString(r)
			if err != nil {
				return nil, fmt.Errorf("case %d name: %w", i, err)
			}
			t, err := readOptValType(r)
			if err != nil {
				return nil, fmt.Errorf("case %q: %w", name, err)
			}
			if err := expectByte(r, 0x00, "case refinement"); err != nil {
				return nil, err
			}
			v.cases = append(v.cases, caseDef{name: name, typ: t})
		}
		return v, nil
	case 0x70:
		t, err := readValType(r)
		if err != nil {
			return nil, fmt.Errorf("list: %w", err)
		}
		return listDef{elem: t}, nil
	case 0x6f:
		n, err := readCount(r, "tuple")
		if err != nil {
			return nil, err
		}
		tup := tupleDef{types: make([]valType, 0, n)}
		for i := uint32(0); i < n; i++ {
			t, err := readValType(r)
			if err != nil {
				return nil, fmt.Errorf("tuple %d: %w", i, err)
			}
			tup.types = append(tup.types, t)
		}
		return tup, nil
	case 0x6e:
		names, err := readNames(r, "flag")
		if err != nil {
			return nil, err
		}
		return flagsDef{names: names}, nil
	case 0x6d:
		names, err := readNames(r, "enum case")
		if err != nil {
			return nil, err
		}
		return enumDef{names: names}, nil
	case 0x6b:
		t, err := readValType(r)
		if err != nil {
			return nil, fmt.Errorf("option: %w", err)
		}
		return optionDef{elem: t}, nil
	case 0x6a:
		ok, err := readOptValType(r)
		if err != nil {
			return nil, fmt.Errorf("result ok: %w", err)
		}
		e, err := readOptValType(r)
		if err != nil {
			return nil, fmt.Errorf("result err: %w", err)
		}
		return resultDef{ok: ok, err: e}, nil
	case 0x69:
		idx, err := readLEB128(r)
		if err != nil {
			return nil, fmt.Errorf("own: %w", err)
		}
		return ownDef{idx: idx}, nil
	case 0x68:
		idx, err := readLEB128(r)
		if err != nil {
			return nil, fmt.Errorf("borrow: %w", err)
		}
		return borrowDef{idx: idx}, nil
	}
	if p, ok := primBytes[b]; ok {
		return primDef{prim: p}, nil
	}
	return nil, fmt.Errorf("unsupported type constructor 0x%02x", b)
}

// parseFuncType reads paramlist and resultlist. The resultlist is
// 0x00 valtype for one result or 0x01 0x00 for none.
func parseFuncType(r *bytes.Reader) (*funcDef, error) {
	n, err := readCount(r, "param")
	if err != nil {
		return nil, err
	}
	fn := &funcDef{params: make([]namedVal, 0, n)}
	for i := uint32(0); i < n; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("param %d name: %w", i, err)
		}
		t, err := readValType(r)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", name, err)
		}
		fn.params = append(fn.params, namedVal{name: name, typ: t})
	}

	b, err := readByte(r)
	if err != nil {
		return nil, fmt.Errorf("read result discriminant: %w", err)
	}
	switch b {
	case 0x00:
		t, err := readValType(r)
		if err != nil {
			return nil, fmt.Errorf("result: %w", err)
		}
		fn.result = &t
	case 0x01:
		if err := expectByte(r, 0x00, "empty result list"); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown resultlist discriminant 0x%02x", b)
	}
	return fn, nil
}

func parseDecls(r *bytes.Reader, allowImports bool) ([]decl, error) {
	n, err := readCount(r, "decl")
	if err != nil {
		return nil, err
	}
	decls := make([]decl, 0, n)
	for i := uint32(0); i < n; i++ {
		d, err := parseDecl(r, allowImports)
		if err != nil {
			return nil, fmt.Errorf("decl %d: %w", i, err)
		}
		decls = append(decls, d)
	}
	return decls, nil
}

func parseDecl(r *bytes.Reader, allowImports bool) (decl, error) {
	kind, err := readByte(r)
	if err != nil {
		return decl{}, fmt.Errorf("read decl kind: %w", err)
	}
	d := decl{kind: kind}
	switch kind {
	case declCoreType:
		if err := skipCoreType(r); err != nil {
			return decl{}, fmt.Errorf("core type: %w", err)
		}
	case declType:
		if d.typ, err = parseDefType(r); err != nil {
			return decl{}, err
		}
	case declAlias:
		if d.alias, err = parseAlias(r); err != nil {
			return decl{}, err
		}
	case declImport, declExport:
		if kind == declImport && !allowImports {
			return decl{}, fmt.Errorf("import declaration in instance type")
		}
		if d.name, err = readExternName(r); err != nil {
			return decl{}, err
		}
		if d.desc, err = parseExternDesc(r); err != nil {
			return decl{}, fmt.Errorf("%q: %w", d.name, err)
		}
	default:
		return decl{}, fmt.Errorf("unknown decl kind 0x%02x", kind)
	}
	return d, nil
}

func parseExternDesc(r *bytes.Reader) (externDesc, error) {
	kind, err := readByte(r)
	if err != nil {
		return externDesc{}, fmt.Errorf("read extern kind: %w", err)
	}
	d := externDesc{kind: kind}
	switch kind {
	case externCoreModule:
		if err := expectByte(r, 0x11, "core module sort"); err != nil {
			return externDesc{}, err
		}
		d.idx, err = readLEB128(r)
	case externFunc, externComponent, externInstance:
		d.idx, err = readLEB128(r)
	case externValue:
		var b byte
		if b, err = readByte(r); err != nil {
			return externDesc{}, fmt.Errorf("read value bound: %w", err)
		}
		switch b {
		case 0x00:
			d.idx, err = readLEB128(r)
		case 0x01:
			_, err = readValType(r)
		default:
			return externDesc{}, fmt.Errorf("unknown value bound 0x%02x", b)
		}
	case externType:
		if d.bound, err = readByte(r); err != nil {
			return externDesc{}, fmt.Errorf("read type bound: %w", err)
		}
		switch d.bound {
		case boundEq:
			d.idx, err = readLEB128(r)
		case boundSubResource:
		default:
			return externDesc{}, fmt.Errorf("unknown type bound 0x%02x", d.bound)
		}
	default:
		return externDesc{}, fmt.Errorf("unknown extern kind 0x%02x", kind)
	}
	if err != nil {
		return externDesc{}, fmt.Errorf("read extern index: %w", err)
	}
	return d, nil
}

func parseAlias(r *bytes.Reader) (aliasDef, error) {
	var a aliasDef
	var err error
	if a.sort, err = readByte(r); err != nil {
		return a, fmt.Errorf("read alias sort: %w", err)
	}
	if a.sort == sortCore {
		if a.coreSort, err = readByte(r); err != nil {
			return a, fmt.Errorf("read alias core sort: %w", err)
		}
	}
	if a.target, err = readByte(r); err != nil {
		return a, fmt.Errorf("read alias target: %w", err)
	}
	switch a.target {
	case 0x00, 0x01:
		if a.inst, err = readLEB128(r); err != nil {
			return a, fmt.Errorf("read alias instance: %w", err)
		}
		if a.name, err = readString(r); err != nil {
			return a, fmt.Errorf("read alias name: %w", err)
		}
	case 0x02:
		if a.count, err = readLEB128(r); err != nil {
			return a, fmt.Errorf("read outer count: %w", err)
		}
		if a.idx, err = readLEB128(r); err != nil {
			return a, fmt.Errorf("read outer index: %w", err)
		}
	default:
		return a, fmt.Errorf("unknown alias target 0x%02x", a.target)
	}
	return a, nil
}

// sortIdx is a sort and an index into that sort's index space.
type sortIdx struct {
	sort     byte
	coreSort byte
	idx      uint32
}

func parseSortIdx(r *bytes.Reader) (sortIdx, error) {
	var s sortIdx
	var err error
	if s.sort, err = readByte(r); err != nil {
		return s, fmt.Errorf("read sort: %w", err)
	}
	if s.sort == sortCore {
		if s.coreSort, err = readByte(r); err != nil {
			return s, fmt.Errorf("read core sort: %w", err)
		}
	}
	if s.idx, err = readLEB128(r); err != nil {
		return s, fmt.Errorf("read sort index: %w", err)
	}
	return s, nil
}

// skipCoreType consumes a core functype (0x60) or moduletype (0x50).
func skipCoreType(r *bytes.Reader) error {
	b, err := readByte(r)
	if err != nil {
		return err
	}
	switch b {
	case 0x60:
		for _, what := range []string{"core param", "core result"} {
			n, err := readCount(r, what)
			if err != nil {
				return err
			}
			for i := uint32(0); i < n; i++ {
				if err := skipCoreValType(r); err != nil {
					return err
				}
			}
		}
		return nil
	case 0x50:
		n, err := readCount(r, "module decl")
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			if err := skipModuleDecl(r); err != nil {
				return fmt.Errorf("module decl %d: %w", i, err)
			}
		}
		return nil
	}
	return fmt.Errorf("unsupported core type 0x%02x", b)
}

func skipModuleDecl(r *bytes.Reader) error {
	kind, err := readByte(r)
	if err != nil {
		return err
	}
	switch kind {
	case 0x00:
		if _, err := readString(r); err != nil {
			return err
		}
		if _, err := readString(r); err != nil {
			return err
		}
		return skipCoreImportDesc(r)
	case 0x01:
		return skipCoreType(r)
	case 0x02:
		if _, err := readByte(r); err != nil {
			return err
		}
		if err := expectByte(r, 0x01, "core outer alias"); err != nil {
			return err
		}
		if _, err := readLEB128(r); err != nil {
			return err
		}
		_, err := readLEB128(r)
		return err
	case 0x03:
		if _, err := readString(r); err != nil {
			return err
		}
		return skipCoreImportDesc(r)
	}
	return fmt.Errorf("unknown module decl 0x%02x", kind)
}

func skipCoreImportDesc(r *bytes.Reader) error {
	kind, err := readByte(r)
	if err != nil {
		return err
	}
	switch kind {
	case 0x00:
		_, err = readLEB128(r)
		return err
	case 0x01:
		if err := skipCoreValType(r); err != nil {
			return err
		}
		return skipLimits(r)
	case 0x02:
		return skipLimits(r)
	case 0x03:
		if err := skipCoreValType(r); err != nil {
			return err
		}
		_, err = readByte(r)
		return err
	case 0x04:
		if err := expectByte(r, 0x00, "tag attribute"); err != nil {
			return err
		}
		_, err = readLEB128(r)
		return err
	}
	return fmt.Errorf("unknown core import kind 0x%02x", kind)
}

func skipCoreValType(r *bytes.Reader) error {
	b, err := readByte(r)
	if err != nil {
		return err
	}
	switch b {
	case 0x7f, 0x7e, 0x7d, 0x7c, 0x7b, 0x70, 0x6f:
		return nil
	}
	return fmt.Errorf("unsupported core value type 0x%02x", b)
}

func skipLimits(r *bytes.Reader) error {
	flag, err := readByte(r)
	if err != nil {
		return err
	}
	if flag > 0x07 {
		return fmt.Errorf("invalid limits flag 0x%02x", flag)
	}
	if _, err := readLEB128(r); err != nil {
		return err
	}
	if flag&0x01 != 0 {
		_, err = readLEB128(r)
	}
	return err
}
