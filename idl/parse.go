package idl

import (
	"os"
	"strings"

	"github.com/wippyai/witdeps/errors"
	"github.com/wippyai/witdeps/idl/internal/token"
)

// syntax tree produced by parser and consumed by resolver

type astPackage struct {
	name   PackageName
	docs   string
	ifaces []*astInterface
	worlds []*astWorld
	line   int
}

type astInterface struct {
	name  string
	docs  string
	uses  []*astUse
	types []*astTypeDef
	funcs []*astFunc
	line  int
}

type astWorld struct {
	name    string
	docs    string
	uses    []*astUse
	types   []*astTypeDef
	entries []*astWorldEntry
	line    int
}

type astWorldEntry struct {
	path   *astPath
	fn     *astFunc
	inline *astInterface
	name   string
	export bool
	line   int
}

type astPath struct {
	pkg   *PackageName // nil for the enclosing package
	iface string
}

type astUse struct {
	path  astPath
	names []astUseName
	line  int
}

type astUseName struct {
	name string
	as   string
}

type astTypeDef struct {
	kind    string // record, variant, enum, flags, resource, type
	name    string
	docs    string
	fields  []astField // record fields, variant cases
	names   []string   // enum cases, flags
	target  astType    // type alias
	methods []*astFunc
	line    int
}

type astField struct {
	typ  astType // nil for payload-less variant cases
	name string
	docs string
}

type astFunc struct {
	result astType
	name   string
	docs   string
	params []astField
	kind   FunctionKind
	line   int
}

type astType interface {
	astLine() int
}

type (
	astPrim struct {
		prim Prim
		line int
	}
	astNamed struct {
		name string
		line int
	}
	astGeneric struct {
		name string // list, option, result, tuple, borrow, own
		args []astType
		line int
	}
)

func (t astPrim) astLine() int    { return t.line }
func (t astNamed) astLine() int   { return t.line }
func (t astGeneric) astLine() int { return t.line }

type parser struct {
	tokens []token.Token
	pos    int
	docs   []string
}

func (p *parser) peek() *token.Token {
	for p.pos < len(p.tokens) && p.tokens[p.pos].Type == token.Doc {
		p.docs = append(p.docs, p.tokens[p.pos].Value)
		p.pos++
	}
	if p.pos >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos]
}

func (p *parser) next() *token.Token {
	t := p.peek()
	if t != nil {
		p.pos++
	}
	return t
}

func (p *parser) line() int {
	if t := p.peek(); t != nil {
		return t.Line
	}
	if len(p.tokens) > 0 {
		return p.tokens[len(p.tokens)-1].Line
	}
	return 1
}

// takeDocs returns the doc comments collected since the last call.
func (p *parser) takeDocs() string {
	p.peek()
	d := strings.Join(p.docs, "\n")
	p.docs = p.docs[:0]
	return d
}

func (p *parser) at(v string) bool {
	t := p.peek()
	return t != nil && t.Is(v)
}

func (p *parser) accept(v string) bool {
	if p.at(v) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(v string) error {
	t := p.next()
	if t == nil {
		return errors.Syntax(p.line(), "expected %q, got end of input", v)
	}
	if !t.Is(v) {
		return errors.Syntax(t.Line, "expected %q, got %q", v, t.Value)
	}
	return nil
}

func (p *parser) name() (string, error) {
	t := p.next()
	if t == nil {
		return "", errors.Syntax(p.line(), "expected identifier, got end of input")
	}
	if !t.IsName() || (t.Type == token.Ident && isKeyword(t.Value)) {
		return "", errors.Syntax(t.Line, "expected identifier, got %q", t.Value)
	}
	return t.Value, nil
}

// skipGates drops @since, @unstable and @deprecated annotations.
func (p *parser) skipGates() error {
	for p.at("@") {
		p.pos++
		if _, err := p.name(); err != nil {
			return err
		}
		if err := p.expect("("); err != nil {
			return err
		}
		for {
			t := p.next()
			if t == nil {
				return errors.Syntax(p.line(), "unterminated feature gate")
			}
			if t.Is(")") {
				break
			}
		}
	}
	return nil
}

func (p *parser) packageName() (PackageName, error) {
	line := p.line()
	ns, err := p.name()
	if err != nil {
		return PackageName{}, err
	}
	if err := p.expect(":"); err != nil {
		return PackageName{}, err
	}
	name, err := p.name()
	if err != nil {
		return PackageName{}, err
	}
	text := ns + ":" + name
	if p.accept("@") {
		v, err := p.version()
		if err != nil {
			return PackageName{}, err
		}
		text += "@" + v
	}
	pn, err := ParsePackageName(text)
	if err != nil {
		return PackageName{}, errors.Syntax(line, "%v", err)
	}
	return pn, nil
}

func (p *parser) version() (string, error) {
	t := p.next()
	if t == nil || t.Type != token.Version {
		return "", errors.Syntax(p.line(), "expected version")
	}
	return t.Value, nil
}

func (p *parser) parseFile() ([]*astPackage, error) {
	docs := p.takeDocs()
	if err := p.skipGates(); err != nil {
		return nil, err
	}
	line := p.line()
	if err := p.expect("package"); err != nil {
		return nil, err
	}
	name, err := p.packageName()
	if err != nil {
		return nil, err
	}
	root := &astPackage{name: name, docs: docs, line: line}
	pkgs := []*astPackage{root}

	if p.accept("{") {
		if err := p.parsePackageBody(root, true); err != nil {
			return nil, err
		}
	} else {
		if err := p.expect(";"); err != nil {
			return nil, err
		}
		if err := p.parsePackageBody(root, false); err != nil {
			return nil, err
		}
	}

	for p.peek() != nil {
		docs := p.takeDocs()
		if err := p.skipGates(); err != nil {
			return nil, err
		}
		line := p.line()
		if err := p.expect("package"); err != nil {
			return nil, err
		}
		name, err := p.packageName()
		if err != nil {
			return nil, err
		}
		if err := p.expect("{"); err != nil {
			return nil, err
		}
		nested := &astPackage{name: name, docs: docs, line: line}
		if err := p.parsePackageBody(nested, true); err != nil {
			return nil, err
		}
		pkgs = append(pkgs, nested)
	}
	return pkgs, nil
}

// parsePackageBody reads interfaces and worlds until '}' (braced) or until
// the next nested package declaration.
func (p *parser) parsePackageBody(pkg *astPackage, braced bool) error {
	for {
		t := p.peek()
		if t == nil {
			if braced {
				return errors.Syntax(p.line(), "expected '}', got end of input")
			}
			return nil
		}
		if braced && t.Is("}") {
			p.pos++
			return nil
		}
		if !braced && t.Is("package") {
			return nil
		}
		docs := p.takeDocs()
		if err := p.skipGates(); err != nil {
			return err
		}
		t = p.next()
		if t == nil {
			return errors.Syntax(p.line(), "unexpected end of input")
		}
		switch {
		case t.Is("interface"):
			iface, err := p.parseInterface(t.Line)
			if err != nil {
				return err
			}
			iface.docs = docs
			pkg.ifaces = append(pkg.ifaces, iface)
		case t.Is("world"):
			w, err := p.parseWorld(t.Line)
			if err != nil {
				return err
			}
			w.docs = docs
			pkg.worlds = append(pkg.worlds, w)
		default:
			return errors.Syntax(t.Line, "expected 'interface' or 'world', got %q", t.Value)
		}
	}
}

func (p *parser) parseInterface(line int) (*astInterface, error) {
	name, err := p.name()
	if err != nil {
		return nil, err
	}
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	iface := &astInterface{name: name, line: line}
	return iface, p.parseInterfaceBody(iface)
}

func (p *parser) parseInterfaceBody(iface *astInterface) error {
	for {
		if p.accept("}") {
			return nil
		}
		docs := p.takeDocs()
		if err := p.skipGates(); err != nil {
			return err
		}
		t := p.peek()
		if t == nil {
			return errors.Syntax(p.line(), "expected '}', got end of input")
		}
		switch {
		case t.Is("use"):
			p.pos++
			u, err := p.parseUse(t.Line)
			if err != nil {
				return err
			}
			iface.uses = append(iface.uses, u)
		case isTypeKeyword(t):
			td, err := p.parseTypeDef()
			if err != nil {
				return err
			}
			td.docs = docs
			iface.types = append(iface.types, td)
		default:
			fn, err := p.parseNamedFunc(Freestanding)
			if err != nil {
				return err
			}
			fn.docs = docs
			iface.funcs = append(iface.funcs, fn)
		}
	}
}

func isTypeKeyword(t *token.Token) bool {
	if t.Type != token.Ident {
		return false
	}
	switch t.Value {
	case "record", "variant", "enum", "flags", "resource", "type":
		return true
	}
	return false
}

func (p *parser) parseUse(line int) (*astUse, error) {
	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	if err := p.expect("."); err != nil {
		return nil, err
	}
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	u := &astUse{path: path, line: line}
	for {
		name, err := p.name()
		if err != nil {
			return nil, err
		}
		un := astUseName{name: name}
		if p.accept("as") {
			if un.as, err = p.name(); err != nil {
				return nil, err
			}
		}
		u.names = append(u.names, un)
		if p.accept("}") {
			break
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
		if p.accept("}") {
			break
		}
	}
	return u, p.expect(";")
}

// parsePath reads `iface` or `ns:pkg/iface@ver`.
func (p *parser) parsePath() (astPath, error) {
	line := p.line()
	first, err := p.name()
	if err != nil {
		return astPath{}, err
	}
	if !p.accept(":") {
		return astPath{iface: first}, nil
	}
	pkg, err := p.name()
	if err != nil {
		return astPath{}, err
	}
	if err := p.expect("/"); err != nil {
		return astPath{}, err
	}
	iface, err := p.name()
	if err != nil {
		return astPath{}, err
	}
	text := first + ":" + pkg
	if p.accept("@") {
		v, err := p.version()
		if err != nil {
			return astPath{}, err
		}
		text += "@" + v
	}
	pn, err := ParsePackageName(text)
	if err != nil {
		return astPath{}, errors.Syntax(line, "%v", err)
	}
	return astPath{pkg: &pn, iface: iface}, nil
}

func (p *parser) parseTypeDef() (*astTypeDef, error) {
	kw := p.next()
	name, err := p.name()
	if err != nil {
		return nil, err
	}
	td := &astTypeDef{kind: kw.Value, name: name, line: kw.Line}

	switch kw.Value {
	case "type":
		if err := p.expect("="); err != nil {
			return nil, err
		}
		if td.target, err = p.parseType(); err != nil {
			return nil, err
		}
		return td, p.expect(";")

	case "resource":
		if p.accept(";") {
			return td, nil
		}
		if err := p.expect("{"); err != nil {
			return nil, err
		}
		for !p.accept("}") {
			docs := p.takeDocs()
			if err := p.skipGates(); err != nil {
				return nil, err
			}
			var fn *astFunc
			if p.at("constructor") {
				line := p.line()
				p.pos++
				params, err := p.parseParams()
				if err != nil {
					return nil, err
				}
				fn = &astFunc{kind: Constructor, params: params, line: line}
				if err := p.expect(";"); err != nil {
					return nil, err
				}
			} else if fn, err = p.parseNamedFunc(Method); err != nil {
				return nil, err
			}
			fn.docs = docs
			td.methods = append(td.methods, fn)
		}
		return td, nil

	case "record", "variant":
		if err := p.expect("{"); err != nil {
			return nil, err
		}
		for !p.accept("}") {
			docs := p.takeDocs()
			fname, err := p.name()
			if err != nil {
				return nil, err
			}
			f := astField{name: fname, docs: docs}
			if kw.Value == "record" {
				if err := p.expect(":"); err != nil {
					return nil, err
				}
				if f.typ, err = p.parseType(); err != nil {
					return nil, err
				}
			} else if p.accept("(") {
				if f.typ, err = p.parseType(); err != nil {
					return nil, err
				}
				if err := p.expect(")"); err != nil {
					return nil, err
				}
			}
			td.fields = append(td.fields, f)
			if !p.accept(",") {
				if err := p.expect("}"); err != nil {
					return nil, err
				}
				break
			}
		}
		return td, nil

	default: // enum, flags
		if err := p.expect("{"); err != nil {
			return nil, err
		}
		for !p.accept("}") {
			p.takeDocs()
			n, err := p.name()
			if err != nil {
				return nil, err
			}
			td.names = append(td.names, n)
			if !p.accept(",") {
				if err := p.expect("}"); err != nil {
					return nil, err
				}
				break
			}
		}
		return td, nil
	}
}

// parseNamedFunc reads `name: [static] func(...) [-> T];`. Inside resource
// blocks defaultKind is Method.
func (p *parser) parseNamedFunc(defaultKind FunctionKind) (*astFunc, error) {
	line := p.line()
	name, err := p.name()
	if err != nil {
		return nil, err
	}
	if err := p.expect(":"); err != nil {
		return nil, err
	}
	fn := &astFunc{name: name, kind: defaultKind, line: line}
	if defaultKind == Method && p.accept("static") {
		fn.kind = Static
	}
	if p.at("async") {
		return nil, errors.Syntax(p.line(), "async functions are not supported")
	}
	if err := p.expect("func"); err != nil {
		return nil, err
	}
	if err := p.parseSignature(fn); err != nil {
		return nil, err
	}
	return fn, p.expect(";")
}

func (p *parser) parseSignature(fn *astFunc) error {
	var err error
	if fn.params, err = p.parseParams(); err != nil {
		return err
	}
	if p.accept("->") {
		if fn.result, err = p.parseType(); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) parseParams() ([]astField, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	var params []astField
	for !p.accept(")") {
		name, err := p.name()
		if err != nil {
			return nil, err
		}
		if err := p.expect(":"); err != nil {
			return nil, err
		}
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		params = append(params, astField{name: name, typ: typ})
		if !p.accept(",") {
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			break
		}
	}
	return params, nil
}

func (p *parser) parseType() (astType, error) {
	t := p.next()
	if t == nil {
		return nil, errors.Syntax(p.line(), "expected type, got end of input")
	}
	if t.Type == token.Ident {
		if prim, ok := PrimByName(t.Value); ok {
			return astPrim{prim: prim, line: t.Line}, nil
		}
		switch t.Value {
		case "list", "option", "tuple", "borrow", "own":
			args, err := p.parseTypeArgs()
			if err != nil {
				return nil, err
			}
			if t.Value != "tuple" && len(args) != 1 {
				return nil, errors.Syntax(t.Line, "%s takes one type argument", t.Value)
			}
			return astGeneric{name: t.Value, args: args, line: t.Line}, nil
		case "result":
			g := astGeneric{name: "result", args: []astType{nil, nil}, line: t.Line}
			if !p.accept("<") {
				return g, nil
			}
			if p.accept("_") {
				if err := p.expect(","); err != nil {
					return nil, err
				}
			} else {
				ok, err := p.parseType()
				if err != nil {
					return nil, err
				}
				g.args[0] = ok
				if !p.accept(",") {
					return g, p.expect(">")
				}
			}
			errType, err := p.parseType()
			if err != nil {
				return nil, err
			}
			g.args[1] = errType
			return g, p.expect(">")
		case "future", "stream", "error-context":
			return nil, errors.Syntax(t.Line, "%s types are not supported", t.Value)
		}
	}
	p.pos--
	name, err := p.name()
	if err != nil {
		return nil, err
	}
	return astNamed{name: name, line: t.Line}, nil
}

func (p *parser) parseTypeArgs() ([]astType, error) {
	if err := p.expect("<"); err != nil {
		return nil, err
	}
	var args []astType
	for {
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		args = append(args, typ)
		if p.accept(">") {
			return args, nil
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseWorld(line int) (*astWorld, error) {
	name, err := p.name()
	if err != nil {
		return nil, err
	}
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	w := &astWorld{name: name, line: line}
	for {
		if p.accept("}") {
			return w, nil
		}
		docs := p.takeDocs()
		if err := p.skipGates(); err != nil {
			return nil, err
		}
		t := p.next()
		if t == nil {
			return nil, errors.Syntax(p.line(), "expected '}', got end of input")
		}
		switch {
		case t.Is("use"):
			u, err := p.parseUse(t.Line)
			if err != nil {
				return nil, err
			}
			w.uses = append(w.uses, u)
		case t.Is("import"), t.Is("export"):
			e, err := p.parseWorldEntry(t.Line, t.Value == "export")
			if err != nil {
				return nil, err
			}
			if e.fn != nil {
				e.fn.docs = docs
			}
			w.entries = append(w.entries, e)
		case t.Is("include"):
			return nil, errors.Syntax(t.Line, "world include is not supported")
		case isTypeKeyword(t):
			p.pos--
			td, err := p.parseTypeDef()
			if err != nil {
				return nil, err
			}
			td.docs = docs
			w.types = append(w.types, td)
		default:
			return nil, errors.Syntax(t.Line, "unexpected %q in world", t.Value)
		}
	}
}

func (p *parser) parseWorldEntry(line int, export bool) (*astWorldEntry, error) {
	e := &astWorldEntry{export: export, line: line}
	// `name: func`, `name: interface { }` or a path
	if t := p.peek(); t != nil && t.IsName() && p.pos+1 < len(p.tokens) && p.tokens[p.pos+1].Is(":") &&
		p.pos+2 < len(p.tokens) && (p.tokens[p.pos+2].Is("func") || p.tokens[p.pos+2].Is("interface")) {
		name, err := p.name()
		if err != nil {
			return nil, err
		}
		p.pos++ // ':'
		e.name = name
		if p.accept("interface") {
			if err := p.expect("{"); err != nil {
				return nil, err
			}
			e.inline = &astInterface{line: line}
			return e, p.parseInterfaceBody(e.inline)
		}
		p.pos++ // 'func'
		e.fn = &astFunc{name: name, kind: Freestanding, line: line}
		if err := p.parseSignature(e.fn); err != nil {
			return nil, err
		}
		return e, p.expect(";")
	}
	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	e.path = &path
	return e, p.expect(";")
}

// Parse parses WIT text into a new graph and returns the root package.
func Parse(src string) (*Graph, PackageID, error) {
	g := New()
	id, err := ParseInto(g, src)
	if err != nil {
		return nil, 0, err
	}
	return g, id, nil
}

// ParseInto parses WIT text into an existing graph. Packages already present
// by name receive the new items.
func ParseInto(g *Graph, src string) (PackageID, error) {
	p := &parser{tokens: token.Tokenize(src)}
	for _, t := range p.tokens {
		if t.Type == token.Invalid {
			return 0, errors.Syntax(t.Line, "unexpected character %q", t.Value)
		}
	}
	pkgs, err := p.parseFile()
	if err != nil {
		return 0, err
	}
	r := newResolver(g)
	return r.resolve(pkgs)
}

// ParseFile reads and parses a WIT file.
func ParseFile(path string) (*Graph, PackageID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, errors.IO("read wit", path, err)
	}
	return Parse(string(data))
}

var keywords = map[string]bool{
	"use": true, "type": true, "func": true, "u8": true, "u16": true, "u32": true, "u64": true,
	"s8": true, "s16": true, "s32": true, "s64": true, "f32": true, "f64": true,
	"float32": true, "float64": true, "char": true, "resource": true, "own": true, "borrow": true,
	"record": true, "flags": true, "variant": true, "enum": true, "bool": true, "string": true,
	"option": true, "result": true, "future": true, "stream": true, "error-context": true,
	"list": true, "as": true, "from": true, "static": true, "interface": true, "tuple": true,
	"import": true, "export": true, "world": true, "package": true, "constructor": true,
	"include": true, "with": true, "async": true,
}

func isKeyword(s string) bool {
	return keywords[s]
}
