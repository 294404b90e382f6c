package bindings

import (
	"path/filepath"
	"strings"

	"github.com/wippyai/witdeps/errors"
	"github.com/wippyai/witdeps/internal/fsutil"
)

// Ecosystem is the source toolchain of a local component.
type Ecosystem string

const (
	Rust       Ecosystem = "rust"
	TypeScript Ecosystem = "ts"
	Go         Ecosystem = "go"
)

// Ecosystems lists the supported ecosystems in detection order.
var Ecosystems = []Ecosystem{Rust, TypeScript, Go}

// Marker returns the build descriptor file that identifies the ecosystem.
func (e Ecosystem) Marker() string {
	switch e {
	case Rust:
		return "Cargo.toml"
	case TypeScript:
		return "package.json"
	case Go:
		return "go.mod"
	}
	return ""
}

// ParseEcosystem accepts an ecosystem name as given on the command line.
func ParseEcosystem(s string) (Ecosystem, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rust", "rs":
		return Rust, nil
	case "ts", "typescript", "js":
		return TypeScript, nil
	case "go", "golang":
		return Go, nil
	}
	return "", errors.New(errors.PhaseBindings, errors.KindInvalidInput).
		Name(s).
		Detail("unknown binding language").
		Build()
}

// DetectEcosystem inspects dir for a build descriptor file.
func DetectEcosystem(dir string) (Ecosystem, error) {
	for _, e := range Ecosystems {
		if fsutil.IsFile(filepath.Join(dir, e.Marker())) {
			return e, nil
		}
	}
	return "", errors.UnknownBuildEcosystem(dir)
}

// ResolveEcosystem returns requested when dir carries its marker file, or
// the detected ecosystem when requested is empty.
func ResolveEcosystem(dir string, requested Ecosystem) (Ecosystem, error) {
	if requested == "" {
		return DetectEcosystem(dir)
	}
	if requested.Marker() == "" {
		return "", errors.New(errors.PhaseBindings, errors.KindInvalidInput).
			Name(string(requested)).
			Detail("unknown binding language").
			Build()
	}
	if !fsutil.IsFile(filepath.Join(dir, requested.Marker())) {
		return "", errors.New(errors.PhaseBindings, errors.KindUnknownBuildEcosystem).
			Name(dir).
			Detail("no %s found for %s bindings", requested.Marker(), requested).
			Build()
	}
	return requested, nil
}
