package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/wippyai/witdeps/errors"
	"github.com/wippyai/witdeps/idl"
	"github.com/wippyai/witdeps/manifest"
	"go.uber.org/zap"
)

// DefaultRegistry is used when neither the source nor the configuration
// names a registry.
const DefaultRegistry = "https://wa.dev"

// Release is one published version in a registry package index.
type Release struct {
	Version string `json:"version"`
	Digest  string `json:"digest"`
	URL     string `json:"url"`
	Yanked  bool   `json:"yanked"`
}

type packageIndex struct {
	Releases []Release `json:"releases"`
}

// Registry fetches the highest non-yanked release of Package satisfying
// Constraint. Registry overrides the default registry and is recorded in the
// manifest; Default is used otherwise.
type Registry struct {
	Client     *http.Client
	Cache      *Cache
	Package    string
	Constraint string
	Registry   string
	Default    string
}

func (s Registry) base() string {
	switch {
	case s.Registry != "":
		return registryURL(s.Registry)
	case s.Default != "":
		return registryURL(s.Default)
	}
	return DefaultRegistry
}

// registryURL adds https:// to a bare host.
func registryURL(r string) string {
	if strings.Contains(r, "://") {
		return strings.TrimRight(r, "/")
	}
	return "https://" + strings.TrimRight(r, "/")
}

func (s Registry) Fetch(ctx context.Context) (*Component, error) {
	pkg, err := idl.ParsePackageName(s.Package)
	if err != nil || pkg.Version != nil {
		return nil, errors.New(errors.PhaseFetch, errors.KindInvalidInput).
			Name(s.Package).
			Detail("registry package must be ns:name").
			Cause(err).
			Build()
	}
	rel, err := s.Resolve(ctx, pkg)
	if err != nil {
		return nil, err
	}
	digest, err := NormalizeDigest(rel.Digest)
	if err != nil {
		return nil, err
	}
	data, err := download(ctx, s.Client, s.Cache, rel.URL, digest)
	if err != nil {
		return nil, err
	}
	constraint := s.Constraint
	if constraint == "" {
		constraint = rel.Version
	}
	return &Component{
		Source: manifest.Registry{
			Version:  constraint,
			Registry: s.Registry,
			Package:  pkg.Base(),
		},
		Name:    pkg.Name,
		Digest:  digest,
		Version: rel.Version,
		Bytes:   data,
	}, nil
}

// Resolve reads the package index and picks the release to fetch. The
// release URL is resolved against the index URL.
func (s Registry) Resolve(ctx context.Context, pkg idl.PackageName) (Release, error) {
	raw := s.Constraint
	if raw == "" {
		raw = "*"
	}
	constraint, err := semver.NewConstraint(raw)
	if err != nil {
		return Release{}, errors.New(errors.PhaseFetch, errors.KindInvalidInput).
			Name(raw).
			Detail("invalid version requirement").
			Cause(err).
			Build()
	}

	index := s.base() + "/v1/packages/" + url.PathEscape(pkg.Namespace) + "/" + url.PathEscape(pkg.Name)
	body, err := get(ctx, s.Client, index)
	if err != nil {
		return Release{}, err
	}
	defer body.Close()
	var idx packageIndex
	if err := json.NewDecoder(body).Decode(&idx); err != nil {
		return Release{}, errors.New(errors.PhaseFetch, errors.KindSyntax).
			Name(index).
			Detail("decode package index").
			Cause(err).
			Build()
	}

	var (
		best    Release
		bestVer *semver.Version
	)
	for _, r := range idx.Releases {
		if r.Yanked {
			continue
		}
		v, err := semver.NewVersion(r.Version)
		if err != nil {
			Logger().Debug("skipping unparsable release", zap.String("version", r.Version))
			continue
		}
		if !constraint.Check(v) {
			continue
		}
		if bestVer == nil || v.GreaterThan(bestVer) {
			best, bestVer = r, v
		}
	}
	if bestVer == nil {
		return Release{}, errors.NotFound(errors.PhaseFetch, "release matching "+raw+" of", pkg.Base())
	}

	base, err := url.Parse(index)
	if err != nil {
		return Release{}, errors.New(errors.PhaseFetch, errors.KindInvalidInput).Name(index).Cause(err).Build()
	}
	ref, err := url.Parse(best.URL)
	if err != nil || best.URL == "" {
		return Release{}, errors.New(errors.PhaseFetch, errors.KindInvalidInput).
			Name(best.URL).
			Detail("release %s has no valid url", best.Version).
			Build()
	}
	best.URL = base.ResolveReference(ref).String()
	Logger().Debug("resolved release",
		zap.String("package", pkg.Base()),
		zap.String("version", best.Version),
		zap.String("url", best.URL))
	return best, nil
}
