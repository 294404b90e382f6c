package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates which pipeline stage produced the error
type Phase string

const (
	PhaseDecode    Phase = "decode"    // component binary to graph
	PhaseEnumerate Phase = "enumerate" // exported interface discovery
	PhaseSelect    Phase = "select"    // capability selection
	PhaseImportize Phase = "importize" // export to import world transform
	PhaseMerge     Phase = "merge"     // dependency world composition
	PhaseManifest  Phase = "manifest"  // build manifest editing
	PhaseBindings  Phase = "bindings"  // binding projection
	PhaseFetch     Phase = "fetch"     // component acquisition
	PhaseParse     Phase = "parse"     // WIT parsing
	PhaseIO        Phase = "io"        // filesystem access
	PhaseConfig    Phase = "config"    // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidComponent          Kind = "invalid_component"
	KindNoExportedInterfaces      Kind = "no_exported_interfaces"
	KindCompositionConflict       Kind = "composition_conflict"
	KindUnknownBuildEcosystem     Kind = "unknown_build_ecosystem"
	KindManifestComponentNotFound Kind = "manifest_component_not_found"
	KindDigestMismatch            Kind = "digest_mismatch"
	KindIOFailure                 Kind = "io_failure"
	KindNotFound                  Kind = "not_found"
	KindInvalidInput              Kind = "invalid_input"
	KindSyntax                    Kind = "syntax"
	KindUnsupported               Kind = "unsupported"
)

// Sentinels for errors.Is checks that only care about the kind.
var (
	ErrInvalidComponent          = &Error{Kind: KindInvalidComponent}
	ErrNoExportedInterfaces      = &Error{Kind: KindNoExportedInterfaces}
	ErrCompositionConflict       = &Error{Kind: KindCompositionConflict}
	ErrUnknownBuildEcosystem     = &Error{Kind: KindUnknownBuildEcosystem}
	ErrManifestComponentNotFound = &Error{Kind: KindManifestComponentNotFound}
	ErrDigestMismatch            = &Error{Kind: KindDigestMismatch}
	ErrIOFailure                 = &Error{Kind: KindIOFailure}
	ErrNotFound                  = &Error{Kind: KindNotFound}
	ErrInvalidInput              = &Error{Kind: KindInvalidInput}
)

// Error is the structured error type used throughout witdeps
type Error struct {
	Cause    error
	Phase    Phase
	Kind     Kind
	Name     string // offending qualified name, component id or directory
	Expected string
	Actual   string
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Name != "" {
		b.WriteString(" ")
		b.WriteString(fmt.Sprintf("%q", e.Name))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Expected != "" || e.Actual != "" {
		b.WriteString(" (expected ")
		b.WriteString(e.Expected)
		b.WriteString(", got ")
		b.WriteString(e.Actual)
		b.WriteByte(')')
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the item path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Name sets the offending name
func (b *Builder) Name(name string) *Builder {
	b.err.Name = name
	return b
}

// Mismatch records expected and actual values
func (b *Builder) Mismatch(expected, actual string) *Builder {
	b.err.Expected = expected
	b.err.Actual = actual
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidComponent creates a decode failure carrying the validator diagnostic
func InvalidComponent(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindInvalidComponent,
		Detail: detail,
		Cause:  cause,
	}
}

// NoExportedInterfaces reports a component with nothing importable
func NoExportedInterfaces(world string) *Error {
	return &Error{
		Phase:  PhaseEnumerate,
		Kind:   KindNoExportedInterfaces,
		Name:   world,
		Detail: "world exports no interfaces",
	}
}

// CompositionConflict reports two same-named entities with different shapes
func CompositionConflict(qualified string, detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseMerge,
		Kind:   KindCompositionConflict,
		Name:   qualified,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// UnknownBuildEcosystem reports a build directory with no recognized descriptor
func UnknownBuildEcosystem(dir string) *Error {
	return &Error{
		Phase:  PhaseBindings,
		Kind:   KindUnknownBuildEcosystem,
		Name:   dir,
		Detail: "no Cargo.toml, package.json or go.mod found",
	}
}

// ManifestComponentNotFound reports an unknown component id
func ManifestComponentNotFound(id string) *Error {
	return &Error{
		Phase:  PhaseManifest,
		Kind:   KindManifestComponentNotFound,
		Name:   id,
		Detail: "component not declared in manifest",
	}
}

// DigestMismatch reports fetched content failing its integrity check
func DigestMismatch(source, expected, actual string) *Error {
	return &Error{
		Phase:    PhaseFetch,
		Kind:     KindDigestMismatch,
		Name:     source,
		Detail:   "invalid content digest",
		Expected: expected,
		Actual:   actual,
	}
}

// IO wraps a filesystem failure
func IO(op, path string, cause error) *Error {
	return &Error{
		Phase:  PhaseIO,
		Kind:   KindIOFailure,
		Name:   path,
		Detail: op,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Syntax creates a WIT syntax error at the given line
func Syntax(line int, detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindSyntax,
		Detail: fmt.Sprintf("line %d: %s", line, fmt.Sprintf(detail, args...)),
	}
}

// Unsupported creates an unsupported construct error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Is forwards to the standard library errors.Is.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As forwards to the standard library errors.As.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
