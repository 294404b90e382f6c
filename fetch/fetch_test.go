package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/wippyai/witdeps/errors"
	"github.com/wippyai/witdeps/manifest"
)

var payload = []byte("\x00asm\x0d\x00\x01\x00component")

func TestNormalizeDigest(t *testing.T) {
	hex := strings.TrimPrefix(Digest(payload), "sha256:")
	tests := []struct {
		name string
		in   string
		want string
		kind errors.Kind
	}{
		{"bare", hex, "sha256:" + hex, ""},
		{"prefixed", "sha256:" + hex, "sha256:" + hex, ""},
		{"upper", strings.ToUpper(hex), "sha256:" + hex, ""},
		{"spaces", "  sha256:" + hex + "\n", "sha256:" + hex, ""},
		{"short", "abc", "", errors.KindInvalidInput},
		{"not hex", strings.Repeat("z", 64), "", errors.KindInvalidInput},
		{"empty encoding", "sha256:", "", errors.KindInvalidInput},
		{"other algorithm", "sha512:" + hex, "", errors.KindUnsupported},
		{"unknown algorithm", "md5:" + hex, "", errors.KindUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDigest(tt.in)
			if tt.kind != "" {
				var e *errors.Error
				if !errors.As(err, &e) || e.Kind != tt.kind {
					t.Fatalf("got %q, %v; want kind %s", got, err, tt.kind)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestVerify(t *testing.T) {
	want := Digest(payload)
	if err := Verify("local", want, payload); err != nil {
		t.Fatalf("matching digest: %v", err)
	}
	if err := Verify("local", strings.ToUpper(strings.TrimPrefix(want, "sha256:")), payload); err != nil {
		t.Fatalf("bare uppercase digest: %v", err)
	}
	err := Verify("local", want, append([]byte(nil), payload[:len(payload)-1]...))
	if !errors.Is(err, errors.ErrDigestMismatch) {
		t.Fatalf("err = %v, want DigestMismatch", err)
	}
	if err := Verify("local", "sha256:nope", payload); errors.Is(err, errors.ErrDigestMismatch) || err == nil {
		t.Fatalf("malformed digest: err = %v", err)
	}
}

func TestLocalFetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "my-comp.wasm")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Local{Path: path}.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c.Name != "my-comp" {
		t.Errorf("Name = %s", c.Name)
	}
	if c.Digest != Digest(payload) || string(c.Bytes) != string(payload) {
		t.Error("unexpected content")
	}
	if c.Source != (manifest.Local{Path: filepath.ToSlash(path)}) {
		t.Errorf("Source = %#v", c.Source)
	}

	_, err = Local{Path: filepath.Join(t.TempDir(), "missing.wasm")}.Fetch(context.Background())
	if !errors.Is(err, errors.ErrIOFailure) {
		t.Errorf("err = %v, want IOFailure", err)
	}
}

func serve(t *testing.T, body []byte) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestHTTPFetchCaches(t *testing.T) {
	srv, hits := serve(t, payload)
	dir := t.TempDir()
	cache, err := NewCache(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	src := HTTP{Client: srv.Client(), Cache: cache, URL: srv.URL + "/files/comp.wasm", Digest: strings.TrimPrefix(Digest(payload), "sha256:")}

	c, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c.Name != "comp" {
		t.Errorf("Name = %s", c.Name)
	}
	want := manifest.HTTP{URL: src.URL, Digest: Digest(payload)}
	if c.Source != want {
		t.Errorf("Source = %#v, want %#v", c.Source, want)
	}
	if _, err := os.Stat(filepath.Join(dir, "wasm", cacheKey(Digest(payload)))); err != nil {
		t.Errorf("cache file missing: %v", err)
	}

	// A fresh cache over the same directory serves from disk.
	again, err := NewCache(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	src.Cache = again
	if _, err := src.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(hits); n != 1 {
		t.Errorf("server hit %d times, want 1", n)
	}
}

func TestHTTPFetchDigestMismatch(t *testing.T) {
	srv, _ := serve(t, []byte("tampered"))
	cache, err := NewCache(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = HTTP{Client: srv.Client(), Cache: cache, URL: srv.URL + "/c.wasm", Digest: Digest(payload)}.Fetch(context.Background())
	if !errors.Is(err, errors.ErrDigestMismatch) {
		t.Fatalf("err = %v, want DigestMismatch", err)
	}
	var e *errors.Error
	if !errors.As(err, &e) {
		t.Fatal("not a structured error")
	}
	if e.Expected != Digest(payload) || e.Actual != Digest([]byte("tampered")) {
		t.Errorf("expected/actual = %s/%s", e.Expected, e.Actual)
	}
	if _, ok := cache.Get(context.Background(), Digest([]byte("tampered"))); ok {
		t.Error("unverified content was cached")
	}
}

func TestHTTPFetchStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err := HTTP{Client: srv.Client(), URL: srv.URL + "/c.wasm", Digest: Digest(payload)}.Fetch(context.Background())
	var e *errors.Error
	if !errors.As(err, &e) || e.Kind != errors.KindNotFound {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestCacheDiscardsCorruptEntry(t *testing.T) {
	dir := t.TempDir()
	digest := Digest(payload)
	p := filepath.Join(dir, "wasm", cacheKey(digest))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	cache, err := NewCache(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := cache.Get(context.Background(), digest); ok {
		t.Fatal("corrupt entry served")
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Error("corrupt entry not removed")
	}
}

type memStore struct {
	mu   sync.Mutex
	objs map[string][]byte
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objs[key]
	if !ok {
		return nil, ErrNotCached
	}
	return data, nil
}

func (s *memStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objs[key] = data
	return nil
}

func TestCacheRemote(t *testing.T) {
	remote := &memStore{objs: map[string][]byte{}}
	ctx := context.Background()
	digest := Digest(payload)

	writer, err := NewCache("", remote)
	if err != nil {
		t.Fatal(err)
	}
	if err := writer.Put(ctx, digest, payload); err != nil {
		t.Fatal(err)
	}
	if _, ok := remote.objs[cacheKey(digest)]; !ok {
		t.Fatal("remote store not written")
	}

	dir := t.TempDir()
	reader, err := NewCache(dir, remote)
	if err != nil {
		t.Fatal(err)
	}
	data, ok := reader.Get(ctx, digest)
	if !ok || string(data) != string(payload) {
		t.Fatal("remote entry not served")
	}
	if _, err := os.Stat(filepath.Join(dir, "wasm", cacheKey(digest))); err != nil {
		t.Errorf("remote hit not written to disk: %v", err)
	}

	remote.objs[cacheKey(Digest([]byte("x")))] = []byte("y")
	if _, ok := reader.Get(ctx, Digest([]byte("x"))); ok {
		t.Error("corrupt remote entry served")
	}
}

func TestNilCache(t *testing.T) {
	var c *Cache
	if _, ok := c.Get(context.Background(), Digest(payload)); ok {
		t.Error("nil cache hit")
	}
	if err := c.Put(context.Background(), Digest(payload), payload); err != nil {
		t.Error(err)
	}
}

func registryServer(t *testing.T, releases []Release) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/packages/ns/pkg", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(packageIndex{Releases: releases})
	})
	mux.HandleFunc("/blobs/", func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRegistryResolve(t *testing.T) {
	digest := Digest(payload)
	srv := registryServer(t, []Release{
		{Version: "1.0.0", Digest: digest, URL: "/blobs/1.0.0"},
		{Version: "1.2.0", Digest: digest, URL: "../../../blobs/1.2.0"},
		{Version: "1.3.0", Digest: digest, URL: "/blobs/1.3.0", Yanked: true},
		{Version: "2.0.0", Digest: digest, URL: "/blobs/2.0.0"},
		{Version: "latest", Digest: digest, URL: "/blobs/latest"},
	})

	tests := []struct {
		constraint string
		want       string
	}{
		{"^1.0", "1.2.0"},
		{"1.0.0", "1.0.0"},
		{"", "2.0.0"},
		{">=1.3, <2", ""},
	}
	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			src := Registry{Client: srv.Client(), Package: "ns:pkg", Constraint: tt.constraint, Registry: srv.URL}
			c, err := src.Fetch(context.Background())
			if tt.want == "" {
				var e *errors.Error
				if !errors.As(err, &e) || e.Kind != errors.KindNotFound {
					t.Fatalf("err = %v, want not found", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if c.Version != tt.want {
				t.Errorf("Version = %s, want %s", c.Version, tt.want)
			}
			if c.Name != "pkg" || string(c.Bytes) != string(payload) {
				t.Errorf("unexpected component %s", c.Name)
			}
			ms, ok := c.Source.(manifest.Registry)
			if !ok || ms.Package != "ns:pkg" || ms.Registry != srv.URL {
				t.Errorf("Source = %#v", c.Source)
			}
		})
	}
}

func TestRegistryDigestMismatch(t *testing.T) {
	srv := registryServer(t, []Release{
		{Version: "1.0.0", Digest: Digest([]byte("other")), URL: "/blobs/1.0.0"},
	})
	_, err := Registry{Client: srv.Client(), Package: "ns:pkg", Constraint: "1.0.0", Registry: srv.URL}.Fetch(context.Background())
	if !errors.Is(err, errors.ErrDigestMismatch) {
		t.Fatalf("err = %v, want DigestMismatch", err)
	}
}

func TestRegistryInvalidPackage(t *testing.T) {
	for _, pkg := range []string{"pkg", "ns:pkg@1.0.0", "ns:pkg/iface"} {
		_, err := Registry{Package: pkg}.Fetch(context.Background())
		if err == nil {
			t.Errorf("%s: expected error", pkg)
		}
	}
}

func TestRegistryURL(t *testing.T) {
	if got := (Registry{Registry: "example.com/"}).base(); got != "https://example.com" {
		t.Errorf("base = %s", got)
	}
	if got := (Registry{Default: "http://localhost:8080"}).base(); got != "http://localhost:8080" {
		t.Errorf("base = %s", got)
	}
	if got := (Registry{}).base(); got != DefaultRegistry {
		t.Errorf("base = %s", got)
	}
}
