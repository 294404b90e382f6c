package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/wippyai/witdeps/bindings"
	"github.com/wippyai/witdeps/compose"
	"github.com/wippyai/witdeps/errors"
	"github.com/wippyai/witdeps/fetch"
	"github.com/wippyai/witdeps/idl"
	"github.com/wippyai/witdeps/manifest"
)

const spinTOML = `spin_manifest_version = 2

[application]
name = "demo"

[component.api]
source = "api/target/api.wasm"

[component.api.build]
command = "cargo build"
workdir = "api"

[component.worker]
source = "worker.wasm"
`

const httpWIT = `package root:component;

world root {
  export ns:http/types@0.1.0;
  export ns:http/handler@0.1.0;
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

// parseWIT stands in for the binary decoder so fixtures stay readable.
func parseWIT(_ context.Context, data []byte) (*idl.Graph, idl.PackageID, error) {
	return idl.Parse(string(data))
}

type app struct {
	dir      string
	manifest string
	dep      string
}

func newApp(t *testing.T) app {
	t.Helper()
	dir := t.TempDir()
	a := app{
		dir:      dir,
		manifest: filepath.Join(dir, manifest.DefaultFile),
		dep:      filepath.Join(dir, "deps", "http.wasm"),
	}
	write(t, a.manifest, spinTOML)
	write(t, a.dep, httpWIT)
	write(t, filepath.Join(dir, "api", "Cargo.toml"), "[package]\nname = \"api\"\n")
	write(t, filepath.Join(dir, "api", "src", "lib.rs"), "use spin_sdk::http;\n\nfn handle() {}\n")
	return a
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func (a app) add(t *testing.T, id string, projector *bindings.Projector) (*AddResult, error) {
	t.Helper()
	return Add(context.Background(), AddOptions{
		Source:       fetch.Local{Path: a.dep},
		Selector:     Scripted{ComponentID: id, All: true},
		Decode:       parseWIT,
		Projector:    projector,
		ManifestPath: a.manifest,
	})
}

func TestAdd(t *testing.T) {
	a := newApp(t)
	res, err := a.add(t, "api", nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if res.Component != "api" || res.Bindings != nil {
		t.Errorf("result = %+v", res)
	}
	want := filepath.Join(a.dir, ".wit", "components", "api", compose.DescriptorFile)
	if res.Descriptor != want {
		t.Errorf("Descriptor = %s, want %s", res.Descriptor, want)
	}
	desc := read(t, want)
	for _, line := range []string{"import ns:http/types@0.1.0;", "import ns:http/handler@0.1.0;"} {
		if !strings.Contains(desc, line) {
			t.Errorf("descriptor misses %q:\n%s", line, desc)
		}
	}

	m, err := manifest.Load(a.manifest)
	if err != nil {
		t.Fatal(err)
	}
	deps, err := m.Dependencies("api")
	if err != nil {
		t.Fatal(err)
	}
	wantDeps := []manifest.Dependency{{Name: "ns:http@0.1.0", Source: manifest.Local{Path: "deps/http.wasm"}}}
	if !reflect.DeepEqual(deps, wantDeps) {
		t.Errorf("Dependencies = %+v, want %+v", deps, wantDeps)
	}
}

func TestAddTwiceIsStable(t *testing.T) {
	a := newApp(t)
	if _, err := a.add(t, "api", nil); err != nil {
		t.Fatal(err)
	}
	path := compose.DescriptorPath(a.dir, "api")
	desc, toml := read(t, path), read(t, a.manifest)

	if _, err := a.add(t, "api", nil); err != nil {
		t.Fatalf("second Add: %v", err)
	}
	if got := read(t, path); got != desc {
		t.Errorf("descriptor changed:\n%s\nwant:\n%s", got, desc)
	}
	if got := read(t, a.manifest); got != toml {
		t.Errorf("manifest changed:\n%s\nwant:\n%s", got, toml)
	}
}

func TestAddConflictWritesNothing(t *testing.T) {
	a := newApp(t)
	if _, err := a.add(t, "api", bindings.NewProjector()); err != nil {
		t.Fatal(err)
	}
	path := compose.DescriptorPath(a.dir, "api")
	modRS := filepath.Join(a.dir, "api", "src", "bindings", "mod.rs")
	desc, toml, mod := read(t, path), read(t, a.manifest), read(t, modRS)

	other := filepath.Join(a.dir, "deps", "http2.wasm")
	write(t, other, strings.Replace(httpWIT, "-> u16", "-> u32", 1))
	_, err := Add(context.Background(), AddOptions{
		Source:       fetch.Local{Path: other},
		Selector:     Scripted{ComponentID: "api", All: true},
		Decode:       parseWIT,
		Projector:    bindings.NewProjector(),
		ManifestPath: a.manifest,
	})
	if !errors.Is(err, errors.ErrCompositionConflict) {
		t.Fatalf("err = %v, want CompositionConflict", err)
	}
	if got := read(t, path); got != desc {
		t.Errorf("descriptor changed:\n%s\nwant:\n%s", got, desc)
	}
	if got := read(t, a.manifest); got != toml {
		t.Errorf("manifest changed:\n%s\nwant:\n%s", got, toml)
	}
	if got := read(t, modRS); got != mod {
		t.Errorf("mod.rs changed: %q", got)
	}
}

func TestAddUnknownComponent(t *testing.T) {
	a := newApp(t)
	_, err := a.add(t, "nope", nil)
	if !errors.Is(err, errors.ErrManifestComponentNotFound) {
		t.Fatalf("err = %v, want component not found", err)
	}
	if read(t, a.manifest) != spinTOML {
		t.Error("manifest was modified")
	}
	if _, err := os.Stat(filepath.Join(a.dir, ".wit")); !os.IsNotExist(err) {
		t.Errorf(".wit exists after failed add: %v", err)
	}
}

func TestAddUnknownEcosystemWritesNothing(t *testing.T) {
	a := newApp(t)
	_, err := a.add(t, "worker", bindings.NewProjector())
	if !errors.Is(err, errors.ErrUnknownBuildEcosystem) {
		t.Fatalf("err = %v, want unknown build ecosystem", err)
	}
	if read(t, a.manifest) != spinTOML {
		t.Error("manifest was modified")
	}
	if _, err := os.Stat(compose.DescriptorPath(a.dir, "worker")); !os.IsNotExist(err) {
		t.Errorf("descriptor exists after failed add: %v", err)
	}
}

func TestAddInvalidComponent(t *testing.T) {
	a := newApp(t)
	_, err := Add(context.Background(), AddOptions{
		Source:       fetch.Local{Path: a.dep},
		Selector:     Scripted{ComponentID: "api", All: true},
		ManifestPath: a.manifest,
	})
	if !errors.Is(err, errors.ErrInvalidComponent) {
		t.Fatalf("err = %v, want invalid component", err)
	}
	if read(t, a.manifest) != spinTOML {
		t.Error("manifest was modified")
	}
}

func TestAddUnknownInterface(t *testing.T) {
	a := newApp(t)
	_, err := Add(context.Background(), AddOptions{
		Source:       fetch.Local{Path: a.dep},
		Selector:     Scripted{ComponentID: "api", Names: []string{"ns:http/missing@0.1.0"}},
		Decode:       parseWIT,
		ManifestPath: a.manifest,
	})
	if err == nil {
		t.Fatal("expected an error for an interface the dependency does not export")
	}
	if read(t, a.manifest) != spinTOML {
		t.Error("manifest was modified")
	}
}

func TestAddWithRustBindings(t *testing.T) {
	a := newApp(t)
	res, err := a.add(t, "api", bindings.NewProjector())
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if res.Bindings == nil || res.Bindings.Ecosystem != bindings.Rust {
		t.Fatalf("Bindings = %+v", res.Bindings)
	}
	src := filepath.Join(a.dir, "api", "src")
	if got := read(t, filepath.Join(src, "bindings", "mod.rs")); got != "pub mod ns_http_0_1_0;\n" {
		t.Errorf("mod.rs = %q", got)
	}
	if !strings.Contains(read(t, filepath.Join(src, "bindings", "ns_http_0_1_0.rs")), "wit_bindgen::generate!") {
		t.Error("ns_http_0_1_0.rs has no generate! invocation")
	}
	if lib := read(t, filepath.Join(src, "lib.rs")); strings.Count(lib, "mod bindings;") != 1 {
		t.Errorf("lib.rs = %q", lib)
	}
}

func TestBindings(t *testing.T) {
	a := newApp(t)
	_, err := Bindings(context.Background(), BindingsOptions{
		Projector:    bindings.NewProjector(),
		ManifestPath: a.manifest,
	})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("err = %v, want not found without descriptors", err)
	}

	if _, err := a.add(t, "api", nil); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		out, err := Bindings(context.Background(), BindingsOptions{
			Projector:    bindings.NewProjector(),
			ManifestPath: a.manifest,
		})
		if err != nil {
			t.Fatalf("Bindings: %v", err)
		}
		if len(out) != 1 || out[0].Ecosystem != bindings.Rust {
			t.Fatalf("results = %+v", out)
		}
	}
	lib := read(t, filepath.Join(a.dir, "api", "src", "lib.rs"))
	if strings.Count(lib, "mod bindings;") != 1 {
		t.Errorf("lib.rs = %q", lib)
	}

	_, err = Bindings(context.Background(), BindingsOptions{
		Projector:    bindings.NewProjector(),
		Component:    "nope",
		ManifestPath: a.manifest,
	})
	if !errors.Is(err, errors.ErrManifestComponentNotFound) {
		t.Errorf("err = %v, want component not found", err)
	}
}

func TestRelativeSource(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		src  manifest.Source
		want manifest.Source
	}{
		{"inside", manifest.Local{Path: filepath.ToSlash(filepath.Join(dir, "deps", "a.wasm"))}, manifest.Local{Path: "deps/a.wasm"}},
		{"outside", manifest.Local{Path: filepath.ToSlash(filepath.Join(filepath.Dir(dir), "a.wasm"))}, manifest.Local{Path: "../a.wasm"}},
		{"http", manifest.HTTP{URL: "https://example.com/a.wasm"}, manifest.HTTP{URL: "https://example.com/a.wasm"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := relativeSource(tt.src, dir); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("relativeSource = %#v, want %#v", got, tt.want)
			}
		})
	}
}
