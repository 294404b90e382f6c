package idl

import (
	"strings"
	"testing"

	"github.com/wippyai/witdeps/errors"
)

const sampleWIT = `package root:deps;

world deps {
  import ns:a/x@1.0.0;
  import ns:b/y@2.0.0;
}

package ns:a@1.0.0 {
  interface types {
    record point {
      x: s32,
      y: s32,
    }
    enum color {
      red,
      green,
    }
  }

  interface x {
    use types.{point, color as colour};
    resource canvas {
      constructor(width: u32, height: u32);
      draw: func(at: point, c: colour) -> result<_, string>;
      open: static func(path: string) -> option<canvas>;
    }
    flags mode {
      read,
      write,
    }
    variant shape {
      dot(point),
      empty,
    }
    type points = list<point>;
    render: func(c: borrow<canvas>, pts: points) -> tuple<u32, list<u8>>;
    %type: func() -> result<u32>;
  }
}

package ns:b@2.0.0 {
  interface y {
    use ns:a/x@1.0.0.{shape};
    area: func(s: shape) -> f64;
  }
}
`

func TestParsePrintRoundTrip(t *testing.T) {
	g, root, err := Parse(sampleWIT)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out, err := Print(g, root, PrintOptions{})
	if err != nil {
		t.Fatalf("Print: %v", err)
	}
	if out != sampleWIT {
		t.Errorf("round trip mismatch\n--- got ---\n%s\n--- want ---\n%s", out, sampleWIT)
	}

	g2, root2, err := Parse(out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	out2, err := Print(g2, root2, PrintOptions{})
	if err != nil {
		t.Fatalf("reprint: %v", err)
	}
	if out2 != out {
		t.Error("print of reparse is not stable")
	}
}

func TestParseResolvesModel(t *testing.T) {
	g, root, err := Parse(sampleWIT)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := g.Packages[root].Name.String(); got != "root:deps" {
		t.Fatalf("root package = %q", got)
	}
	wid, err := g.SelectWorld(root, "")
	if err != nil {
		t.Fatalf("SelectWorld: %v", err)
	}
	var keys []string
	for _, e := range g.Worlds[wid].Imports {
		keys = append(keys, g.KeyName(e.Key))
	}
	if strings.Join(keys, ",") != "ns:a/x@1.0.0,ns:b/y@2.0.0" {
		t.Errorf("imports = %v", keys)
	}

	x, ok := g.LookupInterface("ns:a/x@1.0.0")
	if !ok {
		t.Fatal("ns:a/x@1.0.0 not found")
	}
	canvas, ok := g.FindType(x, "canvas")
	if !ok {
		t.Fatal("canvas not found")
	}
	if _, ok := g.Types[canvas].Kind.(Resource); !ok {
		t.Errorf("canvas kind = %T", g.Types[canvas].Kind)
	}

	draw, ok := g.FindFunction(x, "[method]canvas.draw")
	if !ok {
		t.Fatal("method not found")
	}
	if draw.Kind != Method || draw.Resource != canvas {
		t.Errorf("draw kind=%v resource=%v", draw.Kind, draw.Resource)
	}
	if len(draw.Params) != 3 || draw.Params[0].Name != "self" {
		t.Errorf("draw params = %+v", draw.Params)
	}

	ctor, ok := g.FindFunction(x, "[constructor]canvas")
	if !ok {
		t.Fatal("constructor not found")
	}
	if ref, ok := ctor.Result.(Ref); !ok || ref.ID != canvas {
		t.Errorf("constructor result = %+v", ctor.Result)
	}

	colour, ok := g.FindType(x, "colour")
	if !ok {
		t.Fatal("renamed use not found")
	}
	target := g.Resolve(colour)
	if g.Types[target].Name != "color" {
		t.Errorf("colour resolves to %q", g.Types[target].Name)
	}
}

func TestOwnedHandleIsResourceRef(t *testing.T) {
	g, _, err := Parse(`package ns:h@1.0.0;

interface h {
  resource file;
  take: func(a: own<file>, b: file, c: borrow<file>);
}
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	h, ok := g.LookupInterface("ns:h/h@1.0.0")
	if !ok {
		t.Fatal("ns:h/h@1.0.0 not found")
	}
	file, ok := g.FindType(h, "file")
	if !ok {
		t.Fatal("file not found")
	}
	take, ok := g.FindFunction(h, "take")
	if !ok || len(take.Params) != 3 {
		t.Fatalf("take = %+v", take)
	}
	for _, p := range take.Params[:2] {
		if ref, ok := p.Type.(Ref); !ok || ref.ID != file {
			t.Errorf("param %s = %+v, want a ref to the resource", p.Name, p.Type)
		}
	}
	ref, ok := take.Params[2].Type.(Ref)
	if !ok {
		t.Fatalf("borrow param = %+v", take.Params[2].Type)
	}
	if b, ok := g.Types[ref.ID].Kind.(Borrow); !ok || b.Resource != file {
		t.Errorf("borrow param kind = %+v", g.Types[ref.ID].Kind)
	}
}

func TestInterfaceDepsAndClosure(t *testing.T) {
	g, _, err := Parse(sampleWIT)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	y, _ := g.LookupInterface("ns:b/y@2.0.0")
	var names []string
	for _, id := range g.Closure([]InterfaceID{y}) {
		names = append(names, g.InterfaceName(id))
	}
	want := "ns:b/y@2.0.0,ns:a/x@1.0.0,ns:a/types@1.0.0"
	if strings.Join(names, ",") != want {
		t.Errorf("closure = %v, want %s", names, want)
	}
}

func TestPrintPrunesUnreachable(t *testing.T) {
	src := `package root:deps;

world deps {
  import ns:a/x;
}

package ns:a {
  interface x {
    f: func();
  }

  interface unused {
    g: func();
  }
}

package ns:zzz {
  interface other {
  }
}
`
	g, root, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out, err := Print(g, root, PrintOptions{})
	if err != nil {
		t.Fatalf("Print: %v", err)
	}
	if strings.Contains(out, "unused") || strings.Contains(out, "ns:zzz") {
		t.Errorf("unreachable items printed:\n%s", out)
	}
	if !strings.Contains(out, "interface x") {
		t.Errorf("reachable interface missing:\n%s", out)
	}
}

func TestPrintDocs(t *testing.T) {
	src := "/// the root\npackage root:deps;\n\n/// an interface\ninterface api {\n  /// a function\n  f: func();\n}\n"
	g, root, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	withDocs, _ := Print(g, root, PrintOptions{Docs: true})
	if withDocs != src {
		t.Errorf("docs not preserved:\n%s", withDocs)
	}
	bare, _ := Print(g, root, PrintOptions{})
	if strings.Contains(bare, "///") {
		t.Errorf("docs emitted without Docs option:\n%s", bare)
	}
}

func TestWorldItems(t *testing.T) {
	src := `package root:component;

world root {
  use ns:a/x.{thing};
  record local {
    v: thing,
  }
  import log: func(msg: string);
  import inline: interface {
    ping: func() -> bool;
  }
  export ns:a/x;
  export run: func(l: local);
}

package ns:a {
  interface x {
    type thing = u32;
  }
}
`
	g, root, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out, err := Print(g, root, PrintOptions{})
	if err != nil {
		t.Fatalf("Print: %v", err)
	}
	if out != src {
		t.Errorf("world round trip\n--- got ---\n%s\n--- want ---\n%s", out, src)
	}
	w, _ := g.SelectWorld(root, "root")
	if n := len(g.Worlds[w].Exports); n != 2 {
		t.Errorf("exports = %d, want 2", n)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"missing package", "interface x {}", "expected \"package\""},
		{"unknown type", "package a:b;\ninterface x {\n  f: func(p: nope);\n}\n", "type \"nope\" not defined"},
		{"unknown use", "package a:b;\ninterface x {\n  use y.{t};\n}\n", "interface \"y\" not found"},
		{"duplicate interface", "package a:b;\ninterface x {}\ninterface x {}\n", "defined twice"},
		{"bad char", "package a:b;\n#", "unexpected character"},
		{"bad version", "package a:b@nope;", "expected version"},
		{"unterminated", "package a:b;\ninterface x {", "end of input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse(tt.src)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
			var e *errors.Error
			if !errors.As(err, &e) || e.Phase != errors.PhaseParse {
				t.Errorf("error is not a parse-phase *errors.Error: %v", err)
			}
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	g, root, err := Parse(sampleWIT)
	if err != nil {
		t.Fatal(err)
	}
	c := g.Clone()
	w, _ := c.SelectWorld(root, "deps")
	c.Worlds[w].Imports = c.Worlds[w].Imports[:1]
	c.AddWorld(root, "extra")

	ow, _ := g.SelectWorld(root, "deps")
	if len(g.Worlds[ow].Imports) != 2 {
		t.Error("clone shares world imports with original")
	}
	if len(g.Packages[root].Worlds) != 1 {
		t.Error("clone shares package world list with original")
	}
}

func TestPackageNames(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"ns:pkg", "ns:pkg", false},
		{"ns:pkg@0.2.0-rc.1", "ns:pkg@0.2.0-rc.1", false},
		{"nspkg", "", true},
		{"ns:pkg@1", "", true},
	}
	for _, tt := range tests {
		pn, err := ParsePackageName(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePackageName(%q) err = %v", tt.in, err)
			continue
		}
		if err == nil && pn.String() != tt.want {
			t.Errorf("ParsePackageName(%q) = %q", tt.in, pn)
		}
	}

	pn, iface, err := ParseInterfaceName("wasi:http/types@0.2.0")
	if err != nil || iface != "types" || pn.String() != "wasi:http@0.2.0" {
		t.Errorf("ParseInterfaceName = %v %q %v", pn, iface, err)
	}
	if q := pn.Interface("handler"); q != "wasi:http/handler@0.2.0" {
		t.Errorf("Interface = %q", q)
	}
}
