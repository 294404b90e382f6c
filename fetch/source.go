package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/wippyai/witdeps/errors"
	"github.com/wippyai/witdeps/manifest"
	"go.uber.org/zap"
)

// Component is a fetched component binary and the manifest entry that
// reproduces it.
type Component struct {
	Source  manifest.Source
	Name    string
	Digest  string
	Version string
	Bytes   []byte
}

// Source acquires a component.
type Source interface {
	Fetch(ctx context.Context) (*Component, error)
}

// Local reads a component file. Name defaults to the file stem.
type Local struct {
	Path string
	Name string
}

func (s Local) Fetch(ctx context.Context) (*Component, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, errors.IO("read component", s.Path, err)
	}
	name := s.Name
	if name == "" {
		name = stem(s.Path)
	}
	Logger().Debug("read local component", zap.String("path", s.Path), zap.Int("size", len(data)))
	return &Component{
		Source: manifest.Local{Path: filepath.ToSlash(s.Path)},
		Name:   name,
		Digest: Digest(data),
		Bytes:  data,
	}, nil
}

// HTTP downloads a component and verifies it against Digest, which may be
// bare hex or "sha256:<hex>".
type HTTP struct {
	Client *http.Client
	Cache  *Cache
	URL    string
	Digest string
	Name   string
}

func (s HTTP) Fetch(ctx context.Context) (*Component, error) {
	digest, err := NormalizeDigest(s.Digest)
	if err != nil {
		return nil, err
	}
	name := s.Name
	if name == "" {
		name = urlStem(s.URL)
	}
	data, err := download(ctx, s.Client, s.Cache, s.URL, digest)
	if err != nil {
		return nil, err
	}
	return &Component{
		Source: manifest.NewHTTP(s.URL, digest),
		Name:   name,
		Digest: digest,
		Bytes:  data,
	}, nil
}

// download returns cached bytes for digest or fetches rawURL, verifies it and
// caches the result.
func download(ctx context.Context, client *http.Client, cache *Cache, rawURL, digest string) ([]byte, error) {
	if data, ok := cache.Get(ctx, digest); ok {
		Logger().Debug("component cache hit", zap.String("digest", digest))
		return data, nil
	}
	body, err := get(ctx, client, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseFetch, errors.KindIOFailure, err, "read response body")
	}
	if err := Verify(rawURL, digest, data); err != nil {
		return nil, err
	}
	if err := cache.Put(ctx, digest, data); err != nil {
		return nil, err
	}
	Logger().Info("downloaded component",
		zap.String("url", rawURL),
		zap.String("digest", digest),
		zap.Int("size", len(data)))
	return data, nil
}

func get(ctx context.Context, client *http.Client, rawURL string) (io.ReadCloser, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.New(errors.PhaseFetch, errors.KindInvalidInput).Name(rawURL).Cause(err).Build()
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.New(errors.PhaseFetch, errors.KindIOFailure).Name(rawURL).Detail("request failed").Cause(err).Build()
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		kind := errors.KindIOFailure
		if resp.StatusCode == http.StatusNotFound {
			kind = errors.KindNotFound
		}
		return nil, errors.New(errors.PhaseFetch, kind).
			Name(rawURL).
			Detail("unexpected status %s", resp.Status).
			Build()
	}
	return resp.Body, nil
}

func stem(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func urlStem(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" || u.Path == "/" {
		return "component"
	}
	base := path.Base(u.Path)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Describe returns a short label for log lines and prompts.
func Describe(s Source) string {
	switch s := s.(type) {
	case Local:
		return "local " + s.Path
	case HTTP:
		return "http " + s.URL
	case Registry:
		return "registry " + s.Package + "@" + s.Constraint
	}
	return fmt.Sprintf("%T", s)
}
