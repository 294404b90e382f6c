package idl

import "strings"

// Type is a value type: a Prim or a Ref to a type definition.
type Type interface {
	isType()
}

type Prim uint8

const (
	Bool Prim = iota
	S8
	S16
	S32
	S64
	U8
	U16
	U32
	U64
	F32
	F64
	Char
	String
)

var primNames = [...]string{
	Bool: "bool", S8: "s8", S16: "s16", S32: "s32", S64: "s64",
	U8: "u8", U16: "u16", U32: "u32", U64: "u64",
	F32: "f32", F64: "f64", Char: "char", String: "string",
}

func (p Prim) String() string {
	if int(p) < len(primNames) {
		return primNames[p]
	}
	return "unknown"
}

// PrimByName maps a WIT primitive keyword to its Prim.
func PrimByName(name string) (Prim, bool) {
	switch name {
	case "float32":
		return F32, true
	case "float64":
		return F64, true
	}
	for i, n := range primNames {
		if n == name {
			return Prim(i), true
		}
	}
	return 0, false
}

type Ref struct {
	ID TypeID
}

func (Prim) isType() {}
func (Ref) isType()  {}

// TypeDef is a named or anonymous type definition.
type TypeDef struct {
	Kind  TypeKind
	Owner Owner // nil for anonymous types
	Name  string
	Docs  string
}

// Owner is OwnerInterface or OwnerWorld.
type Owner interface {
	isOwner()
}

type OwnerInterface struct {
	ID InterfaceID
}

type OwnerWorld struct {
	ID WorldID
}

func (OwnerInterface) isOwner() {}
func (OwnerWorld) isOwner()     {}

// TypeKind is the shape of a TypeDef.
type TypeKind interface {
	isTypeKind()
}

type Record struct {
	Fields []Field
}

type Field struct {
	Type Type
	Name string
	Docs string
}

type Variant struct {
	Cases []Case
}

// Case payload may be nil.
type Case struct {
	Type Type
	Name string
	Docs string
}

type Enum struct {
	Cases []string
}

type Flags struct {
	Names []string
}

type Tuple struct {
	Types []Type
}

type List struct {
	Elem Type
}

type Option struct {
	Elem Type
}

// Result OK and Err may be nil.
type Result struct {
	OK  Type
	Err Type
}

type Resource struct{}

// Borrow is a borrowed handle. Owned handles are plain refs to the resource.
type Borrow struct {
	Resource TypeID
}

// Alias is `type a = b` or a `use` import when the target is owned elsewhere.
type Alias struct {
	Target Type
}

func (Record) isTypeKind()   {}
func (Variant) isTypeKind()  {}
func (Enum) isTypeKind()     {}
func (Flags) isTypeKind()    {}
func (Tuple) isTypeKind()    {}
func (List) isTypeKind()     {}
func (Option) isTypeKind()   {}
func (Result) isTypeKind()   {}
func (Resource) isTypeKind() {}
func (Borrow) isTypeKind()   {}
func (Alias) isTypeKind()    {}

type FunctionKind int

const (
	Freestanding FunctionKind = iota
	Method
	Static
	Constructor
)

// Function is an interface or world function. Name carries the component
// model form: "[method]res.name", "[static]res.name", "[constructor]res".
type Function struct {
	Result   Type // nil when the function returns nothing
	Name     string
	Docs     string
	Params   []Param
	Kind     FunctionKind
	Resource TypeID // owning resource for non-freestanding kinds
}

type Param struct {
	Type Type
	Name string
}

// FunctionKindOf decodes the kind and resource name from a component model
// function name.
func FunctionKindOf(name string) (FunctionKind, string) {
	switch {
	case strings.HasPrefix(name, "[constructor]"):
		return Constructor, strings.TrimPrefix(name, "[constructor]")
	case strings.HasPrefix(name, "[method]"):
		res, _, _ := strings.Cut(strings.TrimPrefix(name, "[method]"), ".")
		return Method, res
	case strings.HasPrefix(name, "[static]"):
		res, _, _ := strings.Cut(strings.TrimPrefix(name, "[static]"), ".")
		return Static, res
	}
	return Freestanding, ""
}

// ItemName returns the name used inside a resource block, or the plain name
// for freestanding functions.
func (f *Function) ItemName() string {
	switch f.Kind {
	case Method, Static:
		_, after, _ := strings.Cut(f.Name, ".")
		return after
	case Constructor:
		return "constructor"
	}
	return f.Name
}
