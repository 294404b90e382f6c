package compose

import (
	"fmt"
	"strings"

	"github.com/wippyai/witdeps/errors"
	"github.com/wippyai/witdeps/idl"
)

// AllInterfaces selects every interface a package exports. The manifest key
// for such a selection is the package name itself.
const AllInterfaces = "*"

// PackageSelection lists the capabilities chosen from one package: qualified
// interface names, or the single entry AllInterfaces.
type PackageSelection struct {
	Package      idl.PackageName
	Capabilities []string
}

// All reports whether the whole package is selected.
func (p PackageSelection) All() bool {
	return len(p.Capabilities) == 1 && p.Capabilities[0] == AllInterfaces
}

// Includes reports whether the qualified interface is part of the selection.
func (p PackageSelection) Includes(qualified string) bool {
	if p.All() {
		pn, _, err := idl.ParseInterfaceName(qualified)
		return err == nil && pn.Equal(p.Package)
	}
	for _, c := range p.Capabilities {
		if c == qualified {
			return true
		}
	}
	return false
}

// Keys returns the manifest keys of the selection.
func (p PackageSelection) Keys() []string {
	if p.All() {
		return []string{p.Package.String()}
	}
	return append([]string(nil), p.Capabilities...)
}

// Selection is the ordered set of packages chosen for one add.
type Selection struct {
	Packages []PackageSelection
}

// SelectAll selects every interface of every given candidate.
func SelectAll(candidates ...Candidate) Selection {
	var s Selection
	for _, c := range candidates {
		s.Packages = append(s.Packages, PackageSelection{
			Package:      c.Package,
			Capabilities: []string{AllInterfaces},
		})
	}
	return s
}

// SelectInterfaces builds a selection from qualified interface names, grouped
// by the candidate that offers them. A bare package name selects the whole
// package.
func SelectInterfaces(candidates []Candidate, names ...string) (Selection, error) {
	var s Selection
	index := make(map[string]int)
	add := func(c Candidate, capability string) {
		key := c.Package.String()
		i, ok := index[key]
		if !ok {
			i = len(s.Packages)
			index[key] = i
			s.Packages = append(s.Packages, PackageSelection{Package: c.Package})
		}
		ps := &s.Packages[i]
		if ps.All() {
			return
		}
		if capability == AllInterfaces {
			ps.Capabilities = []string{AllInterfaces}
			return
		}
		for _, existing := range ps.Capabilities {
			if existing == capability {
				return
			}
		}
		ps.Capabilities = append(ps.Capabilities, capability)
	}

outer:
	for _, name := range names {
		for _, c := range candidates {
			if c.Package.String() == name {
				add(c, AllInterfaces)
				continue outer
			}
			if c.Offers(name) {
				add(c, name)
				continue outer
			}
		}
		return Selection{}, errors.New(errors.PhaseSelect, errors.KindInvalidInput).
			Name(name).
			Detail("interface is not exported by the component").
			Build()
	}
	return s, nil
}

// Validate rejects an empty selection and capabilities that were not offered.
func (s Selection) Validate(candidates []Candidate) error {
	if len(s.Packages) == 0 {
		return errors.InvalidInput(errors.PhaseSelect, "no interfaces selected")
	}
	for _, ps := range s.Packages {
		var cand *Candidate
		for i := range candidates {
			if candidates[i].Package.Equal(ps.Package) {
				cand = &candidates[i]
				break
			}
		}
		if cand == nil {
			return errors.New(errors.PhaseSelect, errors.KindInvalidInput).
				Name(ps.Package.String()).
				Detail("package is not exported by the component").
				Build()
		}
		if len(ps.Capabilities) == 0 {
			return errors.New(errors.PhaseSelect, errors.KindInvalidInput).
				Name(ps.Package.String()).
				Detail("no interfaces selected from package").
				Build()
		}
		if ps.All() {
			continue
		}
		for _, c := range ps.Capabilities {
			if !cand.Offers(c) {
				return errors.New(errors.PhaseSelect, errors.KindInvalidInput).
					Name(c).
					Detail("interface is not exported by package %s", ps.Package).
					Build()
			}
		}
	}
	return nil
}

// Keys flattens the manifest keys of every package selection.
func (s Selection) Keys() []string {
	var out []string
	for _, ps := range s.Packages {
		out = append(out, ps.Keys()...)
	}
	return out
}

func (s Selection) String() string {
	parts := make([]string, 0, len(s.Packages))
	for _, ps := range s.Packages {
		parts = append(parts, fmt.Sprintf("%s[%s]", ps.Package, strings.Join(ps.Capabilities, ",")))
	}
	return strings.Join(parts, " ")
}
