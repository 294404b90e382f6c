package component

import (
	"context"
	"testing"

	"github.com/wippyai/witdeps/errors"
	"github.com/wippyai/witdeps/idl"
)

func leb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func str(s string) []byte { return cat(leb(uint32(len(s))), []byte(s)) }

// name encodes importname'/exportname' without a version suffix.
func name(s string) []byte { return cat([]byte{0x00}, str(s)) }

func vec(items ...[]byte) []byte { return cat(leb(uint32(len(items))), cat(items...)) }

func section(id byte, payload []byte) []byte {
	return cat([]byte{id}, leb(uint32(len(payload))), payload)
}

func componentBinary(sections ...[]byte) []byte {
	return cat([]byte{0x00, 0x61, 0x73, 0x6d, 0x0d, 0x00, 0x01, 0x00}, cat(sections...))
}

var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func b(v ...byte) []byte { return v }

// typedInterfaces imports ns:a/types and exports ns:a/x through an ascribed
// instance type that uses the imported record.
func typedInterfaces() []byte {
	typesIface := cat(b(0x42), vec(
		cat(b(0x01, 0x72), vec(cat(str("x"), b(0x7a)), cat(str("y"), b(0x7a)))),
		cat(b(0x04), name("point"), b(0x03, 0x00, 0x00)),
	))
	xIface := cat(b(0x42), vec(
		b(0x02, 0x03, 0x02, 0x01, 0x01), // 0: outer point
		cat(b(0x04), name("point"), b(0x03, 0x00, 0x00)), // 1: use
		cat(b(0x04), name("canvas"), b(0x03, 0x01)), // 2: resource
		b(0x01, 0x69, 0x02), // 3: own<canvas>
		cat(b(0x01, 0x40), vec(cat(str("w"), b(0x79))), b(0x00, 0x03)), // 4
		cat(b(0x04), name("[constructor]canvas"), b(0x01, 0x04)),
		b(0x01, 0x68, 0x02), // 5: borrow<canvas>
		cat(b(0x01, 0x40), vec(cat(str("self"), b(0x05)), cat(str("at"), b(0x01))), b(0x01, 0x00)), // 6
		cat(b(0x04), name("[method]canvas.draw"), b(0x01, 0x06)),
		b(0x01, 0x70, 0x01), // 7: list<point>
		cat(b(0x01, 0x40), vec(cat(str("pts"), b(0x07))), b(0x00, 0x79)), // 8
		cat(b(0x04), name("count"), b(0x01, 0x08)),
	))
	return componentBinary(
		section(secType, vec(typesIface)),
		section(secImport, vec(cat(name("ns:a/types@1.0.0"), b(0x05, 0x00)))),
		section(secAlias, vec(cat(b(0x03, 0x00, 0x00), str("point")))),
		section(secType, vec(xIface)),
		section(secInstance, vec(b(0x01, 0x00))),
		section(secExport, vec(cat(name("ns:a/x@1.0.0"), b(0x05, 0x01), b(0x01, 0x05, 0x02)))),
	)
}

// nestedExport lifts a core function and exports it through the shim
// component pattern: a nested component re-exporting its imports with
// ascribed types.
func nestedExport(module []byte) []byte {
	nested := componentBinary(
		section(secType, vec(cat(b(0x72), vec(cat(str("msg"), b(0x73)))))),
		section(secImport, vec(cat(name("import-type-greeting"), b(0x03, 0x00, 0x00)))),
		section(secType, vec(cat(b(0x40), vec(cat(str("g"), b(0x01))), b(0x00, 0x73)))),
		section(secImport, vec(cat(name("import-func-greet"), b(0x01, 0x02)))),
		section(secExport, vec(cat(name("greeting"), b(0x03, 0x01), b(0x00)))),
		section(secType, vec(cat(b(0x40), vec(cat(str("g"), b(0x03))), b(0x00, 0x73)))),
		section(secExport, vec(cat(name("greet"), b(0x01, 0x00), b(0x01, 0x01, 0x04)))),
	)
	return componentBinary(
		section(secCoreModule, module),
		section(secType, vec(
			cat(b(0x72), vec(cat(str("msg"), b(0x73)))),
			cat(b(0x40), vec(cat(str("g"), b(0x00))), b(0x00, 0x73)),
		)),
		section(secCanon, vec(b(0x00, 0x00, 0x00, 0x00, 0x01))),
		section(secComponent, nested),
		section(secInstance, vec(cat(b(0x00, 0x00), vec(
			cat(str("import-type-greeting"), b(0x03, 0x00)),
			cat(str("import-func-greet"), b(0x01, 0x00)),
		)))),
		section(secExport, vec(cat(name("wasi:demo/greeter@0.1.0"), b(0x05, 0x00), b(0x00)))),
	)
}

func worldFunctions() []byte {
	return componentBinary(
		section(secType, vec(
			cat(b(0x40), vec(cat(str("msg"), b(0x73))), b(0x01, 0x00)),
			cat(b(0x40), vec(), b(0x00, 0x79)),
		)),
		section(secImport, vec(cat(name("log"), b(0x01, 0x00)))),
		section(secCanon, vec(b(0x00, 0x00, 0x00, 0x00, 0x01))),
		section(secExport, vec(cat(name("run"), b(0x01, 0x01), b(0x00)))),
	)
}

func decodeAndPrint(t *testing.T, data []byte) (*idl.Graph, idl.PackageID, string) {
	t.Helper()
	g, pkg, err := Decode(context.Background(), data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	out, err := idl.Print(g, pkg, idl.PrintOptions{})
	if err != nil {
		t.Fatalf("Print: %v", err)
	}
	return g, pkg, out
}

func TestDecodeTypedInstances(t *testing.T) {
	g, pkg, out := decodeAndPrint(t, typedInterfaces())
	want := `package root:component;

world root {
  import ns:a/types@1.0.0;
  export ns:a/x@1.0.0;
}

package ns:a@1.0.0 {
  interface types {
    record point {
      x: s32,
      y: s32,
    }
  }

  interface x {
    use types.{point};
    resource canvas {
      constructor(w: u32);
      draw: func(at: point);
    }
    count: func(pts: list<point>) -> u32;
  }
}
`
	if out != want {
		t.Fatalf("decoded graph\n--- got ---\n%s\n--- want ---\n%s", out, want)
	}
	if g.Packages[pkg].Name.String() != RootPackage {
		t.Errorf("root package = %s", g.Packages[pkg].Name)
	}

	x, ok := g.LookupInterface("ns:a/x@1.0.0")
	if !ok {
		t.Fatal("ns:a/x@1.0.0 missing")
	}
	draw, ok := g.FindFunction(x, "[method]canvas.draw")
	if !ok {
		t.Fatal("draw missing")
	}
	canvas, _ := g.FindType(x, "canvas")
	if draw.Kind != idl.Method || draw.Resource != canvas {
		t.Errorf("draw kind=%v resource=%v, want method on %v", draw.Kind, draw.Resource, canvas)
	}

	if _, _, err := idl.Parse(out); err != nil {
		t.Errorf("printed graph does not reparse: %v", err)
	}
}

func TestDecodeNestedInstantiation(t *testing.T) {
	_, _, out := decodeAndPrint(t, nestedExport(emptyModule))
	want := `package root:component;

world root {
  export wasi:demo/greeter@0.1.0;
}

package wasi:demo@0.1.0 {
  interface greeter {
    record greeting {
      msg: string,
    }
    greet: func(g: greeting) -> string;
  }
}
`
	if out != want {
		t.Fatalf("decoded graph\n--- got ---\n%s\n--- want ---\n%s", out, want)
	}
}

func TestDecodeWorldFunctions(t *testing.T) {
	g, pkg, out := decodeAndPrint(t, worldFunctions())
	want := `package root:component;

world root {
  import log: func(msg: string);
  export run: func() -> u32;
}
`
	if out != want {
		t.Fatalf("decoded graph\n--- got ---\n%s\n--- want ---\n%s", out, want)
	}
	w, err := g.SelectWorld(pkg, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := g.Worlds[w].Exports[0].Item.(idl.FunctionItem); !ok {
		t.Errorf("export item = %T", g.Worlds[w].Exports[0].Item)
	}
}

func TestDecodeErrors(t *testing.T) {
	badModule := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, 0x01, 0x05, 0x01}
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"core module", emptyModule},
		{"bad magic", []byte{0x01, 0x61, 0x73, 0x6d, 0x0d, 0x00, 0x01, 0x00}},
		{"truncated section", cat(componentBinary(), b(secType, 0x10, 0x01))},
		{"unknown section", componentBinary(section(0x20, nil))},
		{"type index out of range", componentBinary(section(secImport, vec(cat(name("f"), b(0x01, 0x07)))))},
		{"invalid core module", nestedExport(badModule)},
		{"missing alias export", componentBinary(
			section(secType, vec(cat(b(0x42), vec()))),
			section(secImport, vec(cat(name("ns:a/b"), b(0x05, 0x00)))),
			section(secAlias, vec(cat(b(0x01, 0x00, 0x00), str("nope")))),
		)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(context.Background(), tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, errors.ErrInvalidComponent) {
				t.Errorf("error %v is not InvalidComponent", err)
			}
		})
	}
}

func TestDecodeSkipCoreValidation(t *testing.T) {
	badModule := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, 0x01, 0x05, 0x01}
	_, _, err := DecodeWithOptions(context.Background(), nestedExport(badModule), Options{})
	if err != nil {
		t.Fatalf("decode without core validation: %v", err)
	}
}

func TestIsComponent(t *testing.T) {
	if !IsComponent(componentBinary()) {
		t.Error("empty component not recognized")
	}
	if IsComponent(emptyModule) {
		t.Error("core module recognized as component")
	}
}

func TestReadValTypeIndices(t *testing.T) {
	tests := []struct {
		in     []byte
		idx    uint32
		isPrim bool
	}{
		{[]byte{0x73}, 0, true},
		{[]byte{0x05}, 5, false},
		{[]byte{0xc0, 0x00}, 64, false},
		{[]byte{0x80, 0x01}, 128, false},
	}
	for _, tt := range tests {
		r := getReader(tt.in)
		vt, err := readValType(r)
		putReader(r)
		if err != nil {
			t.Errorf("readValType(% x): %v", tt.in, err)
			continue
		}
		if vt.isPrim != tt.isPrim || (!vt.isPrim && vt.idx != tt.idx) {
			t.Errorf("readValType(% x) = %+v", tt.in, vt)
		}
	}
}
