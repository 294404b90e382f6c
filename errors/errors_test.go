package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "conflict with name",
			err: &Error{
				Phase:  PhaseMerge,
				Kind:   KindCompositionConflict,
				Name:   "ns:pkg/iface@1.0.0",
				Path:   []string{"iface", "get"},
				Detail: "function signature differs",
			},
			contains: []string{"[merge]", "composition_conflict", "iface.get", `"ns:pkg/iface@1.0.0"`, "signature differs"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseDecode,
				Kind:  KindInvalidComponent,
			},
			contains: []string{"[decode]", "invalid_component"},
		},
		{
			name: "digest mismatch",
			err:  DigestMismatch("https://example.com/c.wasm", "sha256:aa", "sha256:bb"),
			contains: []string{
				"[fetch]", "digest_mismatch", "expected sha256:aa", "got sha256:bb",
			},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseIO,
				Kind:   KindIOFailure,
				Detail: "write descriptor",
				Cause:  errors.New("disk full"),
			},
			contains: []string{"[io]", "io_failure", "write descriptor", "caused by", "disk full"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := IO("read manifest", "spin.toml", cause)

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should walk to cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseMerge,
		Kind:  KindCompositionConflict,
		Name:  "ns:a/x@1.0.0",
	}

	if !err.Is(&Error{Phase: PhaseMerge, Kind: KindCompositionConflict}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseDecode, Kind: KindCompositionConflict}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseMerge, Kind: KindIOFailure}) {
		t.Error("Is should not match different kind")
	}
	if !errors.Is(err, ErrCompositionConflict) {
		t.Error("kind sentinel should match any phase")
	}
	if errors.Is(err, ErrDigestMismatch) {
		t.Error("kind sentinel should not match other kinds")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseFetch, KindDigestMismatch).
		Path("http").
		Name("https://example.com/a.wasm").
		Mismatch("sha256:00", "sha256:ff").
		Cause(cause).
		Detail("downloaded %d bytes", 42).
		Build()

	if err.Phase != PhaseFetch {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseFetch)
	}
	if err.Kind != KindDigestMismatch {
		t.Errorf("Kind = %v, want %v", err.Kind, KindDigestMismatch)
	}
	if len(err.Path) != 1 || err.Path[0] != "http" {
		t.Errorf("Path = %v, want [http]", err.Path)
	}
	if err.Expected != "sha256:00" || err.Actual != "sha256:ff" {
		t.Errorf("Mismatch = %q/%q", err.Expected, err.Actual)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "downloaded 42 bytes" {
		t.Errorf("Detail = %v, want 'downloaded 42 bytes'", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   *Error
		kind  Kind
		phase Phase
	}{
		{"InvalidComponent", InvalidComponent("bad magic", nil), KindInvalidComponent, PhaseDecode},
		{"NoExportedInterfaces", NoExportedInterfaces("root"), KindNoExportedInterfaces, PhaseEnumerate},
		{"CompositionConflict", CompositionConflict("ns:a/x", "type %q differs", "t"), KindCompositionConflict, PhaseMerge},
		{"UnknownBuildEcosystem", UnknownBuildEcosystem("/src"), KindUnknownBuildEcosystem, PhaseBindings},
		{"ManifestComponentNotFound", ManifestComponentNotFound("api"), KindManifestComponentNotFound, PhaseManifest},
		{"NotFound", NotFound(PhaseParse, "interface", "x"), KindNotFound, PhaseParse},
		{"InvalidInput", InvalidInput(PhaseSelect, "nothing selected"), KindInvalidInput, PhaseSelect},
		{"Syntax", Syntax(3, "expected %s", "'{'"), KindSyntax, PhaseParse},
		{"Unsupported", Unsupported(PhaseDecode, "core type"), KindUnsupported, PhaseDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
			if tt.err.Phase != tt.phase {
				t.Errorf("Phase = %v, want %v", tt.err.Phase, tt.phase)
			}
		})
	}

	if d := CompositionConflict("ns:a/x", "type %q differs", "t").Detail; d != `type "t" differs` {
		t.Errorf("CompositionConflict detail = %q", d)
	}
	if d := Syntax(3, "expected %s", "'{'").Detail; d != "line 3: expected '{'" {
		t.Errorf("Syntax detail = %q", d)
	}
	if n := UnknownBuildEcosystem("/src").Name; n != "/src" {
		t.Errorf("UnknownBuildEcosystem name = %q", n)
	}
}
