package pipeline

import (
	"strings"

	"github.com/wippyai/witdeps/compose"
	"github.com/wippyai/witdeps/errors"
)

// Selector chooses the target component and the interfaces to import.
type Selector interface {
	Component(ids []string) (string, error)
	Interfaces(candidates []compose.Candidate) (compose.Selection, error)
}

// Scripted selects from fixed answers, as given by command line flags.
type Scripted struct {
	ComponentID string
	// Names are qualified interfaces or package names meaning every
	// interface of the package.
	Names []string
	All   bool
}

func (s Scripted) Component(ids []string) (string, error) {
	if s.ComponentID != "" {
		return s.ComponentID, nil
	}
	switch len(ids) {
	case 0:
		return "", errors.InvalidInput(errors.PhaseManifest, "manifest declares no components")
	case 1:
		return ids[0], nil
	}
	return "", errors.New(errors.PhaseSelect, errors.KindInvalidInput).
		Detail("several components (%s); choose one", strings.Join(ids, ", ")).
		Build()
}

func (s Scripted) Interfaces(candidates []compose.Candidate) (compose.Selection, error) {
	switch {
	case s.All:
		return compose.SelectAll(candidates...), nil
	case len(s.Names) > 0:
		return compose.SelectInterfaces(candidates, s.Names...)
	}
	return compose.Selection{}, errors.InvalidInput(errors.PhaseSelect, "nothing selected; name interfaces or select all")
}
