package bindings

import (
	"strings"

	"github.com/wippyai/witdeps/idl"
)

// KnownInterfaces are the interface tables the Rust projection consults.
//
// A pattern is "ns:pkg", "ns:pkg/iface", either optionally followed by
// "@version". Patterns without a version match every version.
type KnownInterfaces struct {
	// Std lists interfaces the toolchain standard library already imports.
	// They get no import line.
	Std []string `yaml:"std"`
	// SDK maps interfaces to existing SDK bindings reused instead of
	// generating new ones.
	SDK []SDKBinding `yaml:"sdk"`
}

// SDKBinding maps a pattern to a Rust module path. A package pattern maps
// each interface to a submodule named after it.
type SDKBinding struct {
	Pattern string `yaml:"pattern"`
	Path    string `yaml:"path"`
}

// DefaultKnownInterfaces returns the built-in tables.
func DefaultKnownInterfaces() KnownInterfaces {
	return KnownInterfaces{
		Std: []string{
			"wasi:cli",
			"wasi:clocks",
			"wasi:filesystem",
			"wasi:io",
			"wasi:random",
			"wasi:sockets",
		},
		SDK: []SDKBinding{
			{Pattern: "wasi:http", Path: "spin_sdk::wit_bindgen::wasi::http"},
			{Pattern: "fermyon:spin", Path: "spin_sdk::wit::fermyon::spin"},
			{Pattern: "spin:postgres", Path: "spin_sdk::wit::spin::postgres"},
		},
	}
}

// Merge returns k extended by o. SDK bindings of o replace those of k with
// the same pattern.
func (k KnownInterfaces) Merge(o KnownInterfaces) KnownInterfaces {
	out := KnownInterfaces{}
	seen := make(map[string]bool)
	for _, p := range append(append([]string(nil), k.Std...), o.Std...) {
		if !seen[p] {
			seen[p] = true
			out.Std = append(out.Std, p)
		}
	}
	idx := make(map[string]int)
	for _, b := range append(append([]SDKBinding(nil), k.SDK...), o.SDK...) {
		if i, ok := idx[b.Pattern]; ok {
			out.SDK[i] = b
			continue
		}
		idx[b.Pattern] = len(out.SDK)
		out.SDK = append(out.SDK, b)
	}
	return out
}

// IsStd reports whether the qualified interface is provided by the
// standard library.
func (k KnownInterfaces) IsStd(qualified string) bool {
	for _, p := range k.Std {
		if matchPattern(p, qualified) {
			return true
		}
	}
	return false
}

// SDKPath returns the SDK module that already binds the qualified
// interface.
func (k KnownInterfaces) SDKPath(qualified string) (string, bool) {
	_, iface, err := idl.ParseInterfaceName(qualified)
	if err != nil {
		return "", false
	}
	for _, b := range k.SDK {
		if !matchPattern(b.Pattern, qualified) {
			continue
		}
		base, _, _ := strings.Cut(b.Pattern, "@")
		if strings.Contains(base, "/") {
			return b.Path, true
		}
		return b.Path + "::" + rustIdent(iface), true
	}
	return "", false
}

func matchPattern(pattern, qualified string) bool {
	pn, iface, err := idl.ParseInterfaceName(qualified)
	if err != nil {
		return false
	}
	base, ver, hasVer := strings.Cut(pattern, "@")
	if hasVer && ver != pn.VersionString() {
		return false
	}
	if strings.Contains(base, "/") {
		return base == pn.Base()+"/"+iface
	}
	return base == pn.Base()
}
