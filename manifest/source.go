package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wippyai/witdeps/errors"
)

// Source is where a dependency component comes from: Local, HTTP, Registry
// or Version.
type Source interface {
	// Inline renders the source as a TOML inline table.
	Inline() string
	isSource()
}

// Local is a component file on disk.
type Local struct {
	Path string
}

// HTTP is a component downloaded from URL and verified against Digest
// ("sha256:<hex>").
type HTTP struct {
	URL    string
	Digest string
}

// Registry is a package fetched from a registry. Registry and Package may be
// empty.
type Registry struct {
	Version  string
	Registry string
	Package  string
}

// Version is a bare version requirement resolved against the default
// registry.
type Version struct {
	Requirement string
}

func (Local) isSource()    {}
func (HTTP) isSource()     {}
func (Registry) isSource() {}
func (Version) isSource()  {}

func (s Local) Inline() string {
	return inlineTable("path", s.Path)
}

func (s HTTP) Inline() string {
	return inlineTable("url", s.URL, "digest", s.Digest)
}

func (s Registry) Inline() string {
	kv := []string{"version", s.Version}
	if s.Registry != "" {
		kv = append(kv, "registry", s.Registry)
	}
	if s.Package != "" {
		kv = append(kv, "package", s.Package)
	}
	return inlineTable(kv...)
}

func (s Version) Inline() string {
	return inlineTable("version", s.Requirement)
}

// NewHTTP normalizes a hex digest to the "sha256:" form.
func NewHTTP(url, digest string) HTTP {
	if !strings.HasPrefix(digest, "sha256:") {
		digest = "sha256:" + digest
	}
	return HTTP{URL: url, Digest: digest}
}

// Describe returns a short human-readable form of a source.
func Describe(s Source) string {
	switch s := s.(type) {
	case Local:
		return "local " + s.Path
	case HTTP:
		return "http " + s.URL
	case Registry:
		if s.Package != "" {
			return "registry " + s.Package + "@" + s.Version
		}
		return "registry @" + s.Version
	case Version:
		return "version " + s.Requirement
	}
	panic(fmt.Sprintf("manifest: unknown source %T", s))
}

func inlineTable(kv ...string) string {
	var b strings.Builder
	b.WriteString("{ ")
	for i := 0; i < len(kv); i += 2 {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(kv[i])
		b.WriteString(" = ")
		b.WriteString(quote(kv[i+1]))
	}
	b.WriteString(" }")
	return b.String()
}

// sourceFromValue decodes a dependency value as produced by go-toml.
func sourceFromValue(key string, v any) (Source, error) {
	switch v := v.(type) {
	case string:
		return Version{Requirement: v}, nil
	case map[string]any:
		str := func(field string) (string, error) {
			raw, ok := v[field]
			if !ok {
				return "", nil
			}
			s, ok := raw.(string)
			if !ok {
				return "", invalidDependency(key, "field %q is not a string", field)
			}
			return s, nil
		}
		fields := make(map[string]string, len(v))
		for _, f := range []string{"path", "url", "digest", "version", "registry", "package"} {
			s, err := str(f)
			if err != nil {
				return nil, err
			}
			fields[f] = s
		}
		switch {
		case fields["path"] != "":
			return Local{Path: fields["path"]}, nil
		case fields["url"] != "":
			if fields["digest"] == "" {
				return nil, invalidDependency(key, "http dependency has no digest")
			}
			return HTTP{URL: fields["url"], Digest: fields["digest"]}, nil
		case fields["version"] != "":
			if fields["registry"] == "" && fields["package"] == "" {
				return Version{Requirement: fields["version"]}, nil
			}
			return Registry{
				Version:  fields["version"],
				Registry: fields["registry"],
				Package:  fields["package"],
			}, nil
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, invalidDependency(key, "unrecognized dependency fields %v", keys)
	}
	return nil, invalidDependency(key, "unsupported value type %T", v)
}

func invalidDependency(key, detail string, args ...any) error {
	return errors.New(errors.PhaseManifest, errors.KindInvalidInput).
		Name(key).
		Detail(detail, args...).
		Build()
}
