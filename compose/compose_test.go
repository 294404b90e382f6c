package compose

import (
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/wippyai/witdeps/errors"
	"github.com/wippyai/witdeps/idl"
)

const httpComponent = `package root:component;

world root {
  export ns:http/types@0.1.0;
  export ns:http/handler@0.1.0;
  export run: func();
}

package ns:http@0.1.0 {
  interface types {
    record request {
      path: string,
    }
  }

  interface handler {
    use types.{request};
    handle: func(req: request) -> u16;
  }
}
`

// exporter builds a component graph exporting the given qualified
// interfaces, each with a single function f.
func exporter(t *testing.T, ifaces ...string) (*idl.Graph, idl.WorldID) {
	t.Helper()
	var b strings.Builder
	b.WriteString("package root:component;\n\nworld root {\n")
	byPkg := map[string][]string{}
	var order []string
	for _, q := range ifaces {
		b.WriteString("  export " + q + ";\n")
		pn, name, err := idl.ParseInterfaceName(q)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := byPkg[pn.String()]; !ok {
			order = append(order, pn.String())
		}
		byPkg[pn.String()] = append(byPkg[pn.String()], name)
	}
	b.WriteString("}\n")
	for _, pkg := range order {
		b.WriteString("\npackage " + pkg + " {\n")
		for _, name := range byPkg[pkg] {
			b.WriteString("  interface " + name + " {\n    f: func() -> u32;\n  }\n")
		}
		b.WriteString("}\n")
	}
	return parseComponent(t, b.String())
}

func parseComponent(t *testing.T, src string) (*idl.Graph, idl.WorldID) {
	t.Helper()
	g, pkg, err := idl.Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	w, err := PrincipalWorld(g, pkg)
	if err != nil {
		t.Fatal(err)
	}
	return g, w
}

func emptyDescriptor(t *testing.T) *Descriptor {
	t.Helper()
	d, err := ParseDescriptor(skeleton)
	if err != nil {
		t.Fatalf("ParseDescriptor: %v", err)
	}
	return d
}

func addAll(t *testing.T, d *Descriptor, g *idl.Graph, w idl.WorldID) {
	t.Helper()
	cands, err := ExportedInterfaces(g, w)
	if err != nil {
		t.Fatalf("ExportedInterfaces: %v", err)
	}
	if err := d.Add(g, w, SelectAll(cands...)); err != nil {
		t.Fatalf("Add: %v", err)
	}
}

func render(t *testing.T, d *Descriptor) string {
	t.Helper()
	out, err := d.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	return out
}

func TestExportedInterfaces(t *testing.T) {
	g, w := exporter(t, "ns:b/y@1.0.0", "ns:a/x@1.0.0", "ns:b/z@1.0.0")
	cands, err := ExportedInterfaces(g, w)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 2 {
		t.Fatalf("got %d candidates, want 2", len(cands))
	}
	if cands[0].Package.String() != "ns:b@1.0.0" || !reflect.DeepEqual(cands[0].Interfaces, []string{"y", "z"}) {
		t.Errorf("first candidate = %s %v", cands[0].Package, cands[0].Interfaces)
	}
	if cands[1].Package.String() != "ns:a@1.0.0" || !reflect.DeepEqual(cands[1].Interfaces, []string{"x"}) {
		t.Errorf("second candidate = %s %v", cands[1].Package, cands[1].Interfaces)
	}
	if got := cands[0].Qualified(); !reflect.DeepEqual(got, []string{"ns:b/y@1.0.0", "ns:b/z@1.0.0"}) {
		t.Errorf("Qualified = %v", got)
	}
}

func TestExportedInterfacesNone(t *testing.T) {
	g, w := parseComponent(t, "package root:component;\n\nworld root {\n  export run: func();\n}\n")
	_, err := ExportedInterfaces(g, w)
	if !errors.Is(err, errors.ErrNoExportedInterfaces) {
		t.Fatalf("err = %v, want NoExportedInterfaces", err)
	}
}

func TestSelection(t *testing.T) {
	g, w := parseComponent(t, httpComponent)
	cands, err := ExportedInterfaces(g, w)
	if err != nil {
		t.Fatal(err)
	}
	pkg := cands[0].Package

	tests := []struct {
		name    string
		sel     Selection
		wantErr bool
		keys    []string
	}{
		{"empty", Selection{}, true, nil},
		{"all", SelectAll(cands...), false, []string{"ns:http@0.1.0"}},
		{"one", Selection{Packages: []PackageSelection{{Package: pkg, Capabilities: []string{"ns:http/handler@0.1.0"}}}}, false, []string{"ns:http/handler@0.1.0"}},
		{"not offered", Selection{Packages: []PackageSelection{{Package: pkg, Capabilities: []string{"ns:http/other@0.1.0"}}}}, true, nil},
		{"no capabilities", Selection{Packages: []PackageSelection{{Package: pkg}}}, true, nil},
		{"unknown package", Selection{Packages: []PackageSelection{{
			Package:      idl.PackageName{Namespace: "ns", Name: "nope"},
			Capabilities: []string{AllInterfaces},
		}}}, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sel.Validate(cands)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got := tt.sel.Keys(); !reflect.DeepEqual(got, tt.keys) {
				t.Errorf("Keys = %v, want %v", got, tt.keys)
			}
		})
	}
}

func TestSelectInterfaces(t *testing.T) {
	g, w := exporter(t, "ns:a/x@1.0.0", "ns:a/y@1.0.0", "ns:b/z@1.0.0")
	cands, err := ExportedInterfaces(g, w)
	if err != nil {
		t.Fatal(err)
	}
	sel, err := SelectInterfaces(cands, "ns:b/z@1.0.0", "ns:a/y@1.0.0", "ns:a/y@1.0.0", "ns:a/x@1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"ns:b/z@1.0.0", "ns:a/y@1.0.0", "ns:a/x@1.0.0"}
	if got := sel.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys = %v, want %v", got, want)
	}

	sel, err = SelectInterfaces(cands, "ns:a/x@1.0.0", "ns:a@1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if !sel.Packages[0].All() {
		t.Errorf("package name did not select all: %v", sel)
	}

	if _, err := SelectInterfaces(cands, "ns:c/q@1.0.0"); err == nil {
		t.Error("expected error for interface not exported")
	}
}

func TestDependencyWorldName(t *testing.T) {
	pn, err := idl.ParsePackageName("ns:http@0.1.0")
	if err != nil {
		t.Fatal(err)
	}
	if got := DependencyWorldName(pn); got != "dependency-world-ns-http-0-1-0" {
		t.Errorf("DependencyWorldName = %q", got)
	}
}

func TestImportize(t *testing.T) {
	g, w := parseComponent(t, httpComponent)
	pkg := g.Worlds[w].Package

	all, err := Importize(g, pkg, w, "all", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(g.Worlds[all].Imports), len(g.Worlds[w].Exports); got != want {
		t.Errorf("imports = %d, want %d", got, want)
	}
	if len(g.Worlds[all].Exports) != 0 {
		t.Errorf("importized world has exports")
	}
	for i, e := range g.Worlds[all].Imports {
		if !reflect.DeepEqual(e, g.Worlds[w].Exports[i]) {
			t.Errorf("entry %d changed identity: %+v", i, e)
		}
	}

	pn, err := idl.ParsePackageName("ns:http@0.1.0")
	if err != nil {
		t.Fatal(err)
	}
	ps := PackageSelection{Package: pn, Capabilities: []string{"ns:http/types@0.1.0"}}
	one, err := Importize(g, pkg, w, "one", SelectionFilter(ps))
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Worlds[one].Imports) != 1 || g.KeyName(g.Worlds[one].Imports[0].Key) != "ns:http/types@0.1.0" {
		t.Errorf("filtered imports = %+v", g.Worlds[one].Imports)
	}

	if _, err := Importize(g, pkg, w, "one", nil); err == nil {
		t.Error("expected error for duplicate world name")
	}
}

func TestScenarioSingleInterface(t *testing.T) {
	g, w := parseComponent(t, httpComponent)
	cands, err := ExportedInterfaces(g, w)
	if err != nil {
		t.Fatal(err)
	}
	sel, err := SelectInterfaces(cands, "ns:http/handler@0.1.0")
	if err != nil {
		t.Fatal(err)
	}
	d := emptyDescriptor(t)
	if err := d.Add(g, w, sel); err != nil {
		t.Fatal(err)
	}
	if got := d.Imports(); !reflect.DeepEqual(got, []string{"ns:http/handler@0.1.0"}) {
		t.Errorf("imports = %v", got)
	}

	want := `package root:deps;

world deps {
  import ns:http/handler@0.1.0;
}

package ns:http@0.1.0 {
  interface types {
    record request {
      path: string,
    }
  }

  interface handler {
    use types.{request};
    handle: func(req: request) -> u16;
  }
}
`
	if got := render(t, d); got != want {
		t.Errorf("rendered\n--- got ---\n%s\n--- want ---\n%s", got, want)
	}
}

func TestScenarioExistingImport(t *testing.T) {
	existing, err := ParseDescriptor(`package root:deps;

world deps {
  import ns:a/x@1.0.0;
}

package ns:a@1.0.0 {
  interface x {
    f: func() -> u32;
  }
}
`)
	if err != nil {
		t.Fatal(err)
	}
	g, w := exporter(t, "ns:a/x@1.0.0", "ns:b/y@1.0.0")
	addAll(t, existing, g, w)

	want := []string{"ns:a/x@1.0.0", "ns:b/y@1.0.0"}
	if got := existing.Imports(); !reflect.DeepEqual(got, want) {
		t.Errorf("imports = %v, want %v", got, want)
	}
}

func TestAddIdempotent(t *testing.T) {
	g, w := parseComponent(t, httpComponent)

	d := emptyDescriptor(t)
	addAll(t, d, g, w)
	once := render(t, d)

	addAll(t, d, g, w)
	if twice := render(t, d); twice != once {
		t.Errorf("second add in memory changed descriptor\n--- once ---\n%s\n--- twice ---\n%s", once, twice)
	}

	reloaded, err := ParseDescriptor(once)
	if err != nil {
		t.Fatal(err)
	}
	addAll(t, reloaded, g, w)
	if again := render(t, reloaded); again != once {
		t.Errorf("add after reload changed descriptor\n--- once ---\n%s\n--- again ---\n%s", once, again)
	}
}

func TestAddOrderIndependent(t *testing.T) {
	ab, abw := exporter(t, "ns:a/x@1.0.0", "ns:b/y@1.0.0")
	bc, bcw := exporter(t, "ns:b/y@1.0.0", "ns:c/z@1.0.0")
	abc, abcw := exporter(t, "ns:a/x@1.0.0", "ns:b/y@1.0.0", "ns:c/z@1.0.0")

	stepwise := emptyDescriptor(t)
	addAll(t, stepwise, ab, abw)
	addAll(t, stepwise, bc, bcw)

	single := emptyDescriptor(t)
	addAll(t, single, abc, abcw)

	got, want := stepwise.Imports(), single.Imports()
	if !reflect.DeepEqual(got, []string{"ns:a/x@1.0.0", "ns:b/y@1.0.0", "ns:c/z@1.0.0"}) {
		t.Errorf("stepwise imports = %v", got)
	}
	sort.Strings(got)
	sort.Strings(want)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("import sets differ: %v vs %v", got, want)
	}
	if render(t, stepwise) != render(t, single) {
		t.Error("rendered descriptors differ")
	}
}

func TestAddConflict(t *testing.T) {
	before := `package root:deps;

world deps {
  import ns:pkg/iface@1.0.0;
}

package ns:pkg@1.0.0 {
  interface iface {
    f: func(x: u32);
  }
}
`
	d, err := ParseDescriptor(before)
	if err != nil {
		t.Fatal(err)
	}
	g, w := parseComponent(t, `package root:component;

world root {
  export ns:pkg/iface@1.0.0;
  export ns:other/fresh@1.0.0;
}

package ns:other@1.0.0 {
  interface fresh {
    g: func();
  }
}

package ns:pkg@1.0.0 {
  interface iface {
    f: func(x: string);
  }
}
`)
	cands, err := ExportedInterfaces(g, w)
	if err != nil {
		t.Fatal(err)
	}
	err = d.Add(g, w, SelectAll(cands...))
	if !errors.Is(err, errors.ErrCompositionConflict) {
		t.Fatalf("err = %v, want CompositionConflict", err)
	}
	var e *errors.Error
	if !errors.As(err, &e) {
		t.Fatalf("err %T is not *errors.Error", err)
	}
	if e.Name != "ns:pkg/iface@1.0.0#f" {
		t.Errorf("conflict names %q", e.Name)
	}
	if after := render(t, d); after != before {
		t.Errorf("descriptor changed after conflict\n%s", after)
	}
}

func TestMergeTypeConflict(t *testing.T) {
	target, _, err := idl.Parse("package ns:a@1.0.0;\n\ninterface x {\n  record p {\n    a: u32,\n  }\n}\n")
	if err != nil {
		t.Fatal(err)
	}
	cand, _, err := idl.Parse("package ns:a@1.0.0;\n\ninterface x {\n  record p {\n    a: u64,\n  }\n}\n")
	if err != nil {
		t.Fatal(err)
	}
	types := len(target.Types)
	_, err = MergeGraphs(target, cand)
	if !errors.Is(err, errors.ErrCompositionConflict) {
		t.Fatalf("err = %v, want CompositionConflict", err)
	}
	if len(target.Types) != types {
		t.Error("target modified on conflict")
	}
}

func TestMergeExtendsInterface(t *testing.T) {
	target, root, err := idl.Parse("package ns:a@1.0.0;\n\ninterface x {\n  f: func() -> u32;\n}\n")
	if err != nil {
		t.Fatal(err)
	}
	cand, _, err := idl.Parse("package ns:a@1.0.0;\n\ninterface x {\n  record p {\n    a: u32,\n  }\n  f: func() -> u32;\n  g: func(v: list<p>);\n}\n\ninterface y {\n  use x.{p};\n}\n")
	if err != nil {
		t.Fatal(err)
	}
	remap, err := MergeGraphs(target, cand)
	if err != nil {
		t.Fatal(err)
	}
	if remap.Packages[0] != root {
		t.Errorf("package not matched")
	}
	out, err := idl.Print(target, root, idl.PrintOptions{})
	if err != nil {
		t.Fatal(err)
	}
	want := "package ns:a@1.0.0;\n\ninterface x {\n  record p {\n    a: u32,\n  }\n  f: func() -> u32;\n  g: func(v: list<p>);\n}\n\ninterface y {\n  use x.{p};\n}\n"
	if out != want {
		t.Errorf("merged\n--- got ---\n%s\n--- want ---\n%s", out, want)
	}
}

func TestDescriptorRoundTrip(t *testing.T) {
	g, w := exporter(t, "ns:a/x@1.0.0", "ns:b/y@2.0.0")
	d := emptyDescriptor(t)
	addAll(t, d, g, w)

	text := render(t, d)
	back, err := ParseDescriptor(text)
	if err != nil {
		t.Fatalf("reparse: %v\n%s", err, text)
	}
	if !reflect.DeepEqual(back.Imports(), d.Imports()) {
		t.Errorf("imports %v, want %v", back.Imports(), d.Imports())
	}
	if again := render(t, back); again != text {
		t.Errorf("print after parse differs\n%s", again)
	}
}

func TestDescriptorPersist(t *testing.T) {
	dir := t.TempDir()
	path := DescriptorPath(dir, "api")
	if want := filepath.Join(dir, ".wit", "components", "api", "deps.wit"); path != want {
		t.Fatalf("path = %s", path)
	}

	d, err := LoadDescriptor(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Imports()) != 0 {
		t.Errorf("new descriptor imports %v", d.Imports())
	}
	g, w := exporter(t, "ns:a/x@1.0.0")
	addAll(t, d, g, w)
	if err := d.Persist(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != render(t, d) {
		t.Errorf("file content differs from render")
	}
	loaded, err := LoadDescriptor(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(loaded.Imports(), []string{"ns:a/x@1.0.0"}) {
		t.Errorf("loaded imports = %v", loaded.Imports())
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("component dir holds %d entries, want only deps.wit", len(entries))
	}
}

func TestLoadDescriptorSyntaxError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deps.wit")
	if err := os.WriteFile(path, []byte("package root:deps;\nworld deps {"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadDescriptor(path)
	var e *errors.Error
	if !errors.As(err, &e) {
		t.Fatalf("err = %v", err)
	}
	if e.Name != path {
		t.Errorf("error names %q, want the file path", e.Name)
	}
}

func TestRenderImports(t *testing.T) {
	d := emptyDescriptor(t)
	g, w := exporter(t, "ns:a/x@1.0.0", "ns:b/y@1.0.0")
	addAll(t, d, g, w)

	out, err := d.RenderImports(func(name string) bool { return name == "ns:b/y@1.0.0" })
	if err != nil {
		t.Fatal(err)
	}
	sub, err := ParseDescriptor(out)
	if err != nil {
		t.Fatalf("ParseDescriptor: %v\n%s", err, out)
	}
	if got := sub.Imports(); !reflect.DeepEqual(got, []string{"ns:b/y@1.0.0"}) {
		t.Errorf("imports = %v", got)
	}
	if strings.Contains(out, "ns:a@1.0.0") {
		t.Errorf("unreferenced package rendered\n%s", out)
	}
	if got := d.Imports(); len(got) != 2 {
		t.Errorf("descriptor modified: %v", got)
	}
}
