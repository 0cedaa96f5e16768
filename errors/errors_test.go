package errors

import (
	"errors"
	"fmt"
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
			name: "full error",
			err: &Error{
				Phase:    PhaseUpdate,
				Kind:     KindTypeMismatch,
				Property: "headline",
				Detail:   "cannot convert",
			},
			contains: []string{"[update]", "type_mismatch", "at headline", "cannot convert"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseLoad,
				Kind:  KindNotLoaded,
			},
			contains: []string{"[load]", "not_loaded"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhasePackage,
				Kind:   KindInvalidData,
				Detail: "write archive",
				Cause:  errors.New("disk full"),
			},
			contains: []string{"[package]", "invalid_data", "write archive", "caused by", "disk full"},
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

func TestError_Message(t *testing.T) {
	err := UnknownProperty(PhaseUpdate, "title")
	if got := err.Message(); got != `property "title" not found in view model` {
		t.Errorf("Message() = %q", got)
	}

	wrapped := Wrap(PhaseLoad, KindInternal, errors.New("boom"), "instantiate")
	if got := wrapped.Message(); got != "instantiate: boom" {
		t.Errorf("Message() = %q, want %q", got, "instantiate: boom")
	}

	bare := &Error{Phase: PhaseAction, Kind: KindInternal}
	if got := bare.Message(); got != bare.Error() {
		t.Errorf("Message() = %q, want full error %q", got, bare.Error())
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLoad,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase:    PhaseUpdate,
		Kind:     KindNotFound,
		Property: "foo",
	}

	if !err.Is(&Error{Phase: PhaseUpdate, Kind: KindNotFound}) {
		t.Error("Is should match same phase and kind")
	}

	if err.Is(&Error{Phase: PhaseLoad, Kind: KindNotFound}) {
		t.Error("Is should not match different phase")
	}

	if err.Is(&Error{Phase: PhaseUpdate, Kind: KindUnsupported}) {
		t.Error("Is should not match different kind")
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if !errors.Is(wrapped, &Error{Phase: PhaseUpdate, Kind: KindNotFound}) {
		t.Error("errors.Is should match through wrapping")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseUpdate, KindTypeMismatch).
		Property("score").
		Value("abc").
		Cause(cause).
		Detail("expected %s, got %s", "number", "string").
		Build()

	if err.Phase != PhaseUpdate {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseUpdate)
	}
	if err.Kind != KindTypeMismatch {
		t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
	}
	if err.Property != "score" {
		t.Errorf("Property = %v, want score", err.Property)
	}
	if err.Value != "abc" {
		t.Errorf("Value = %v, want abc", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected number, got string" {
		t.Errorf("Detail = %v, want 'expected number, got string'", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   *Error
		phase Phase
		kind  Kind
		text  string
	}{
		{"unsupported", Unsupported(PhaseLoad, "non-realtime"), PhaseLoad, KindUnsupported, "non-realtime"},
		{"not loaded", NotLoaded(PhaseAction, "graphic"), PhaseAction, KindNotLoaded, "graphic not loaded"},
		{"not found", NotFound(PhaseIntrospect, "trigger", "go"), PhaseIntrospect, KindNotFound, `trigger "go" not found`},
		{"unknown property", UnknownProperty(PhaseUpdate, "x"), PhaseUpdate, KindNotFound, `"x"`},
		{"unsupported kind", UnsupportedKind(PhaseUpdate, "items", "list"), PhaseUpdate, KindUnsupported, "list"},
		{"type mismatch", TypeMismatch(PhaseUpdate, "n", true, "number"), PhaseUpdate, KindTypeMismatch, "bool as number"},
		{"contract", ContractMismatch(PhaseCodegen, 2, 1), PhaseCodegen, KindContractMismatch, "v1"},
		{"instantiation", Instantiation(errors.New("x")), PhaseLoad, KindInstantiation, "instantiate scene"},
		{"internal", Internal(PhaseManifest, errors.New("bad")), PhaseManifest, KindInternal, "bad"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Phase != tt.phase {
				t.Errorf("Phase = %v, want %v", tt.err.Phase, tt.phase)
			}
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
			if !strings.Contains(tt.err.Error(), tt.text) {
				t.Errorf("Error() = %q, want substring %q", tt.err.Error(), tt.text)
			}
		})
	}
}

func TestMissingExportsError(t *testing.T) {
	err := NewMissingExportsError([]ExportProblem{
		{Function: "rive_file_load", Reason: "missing"},
		{Function: "rive_vm_set_number", Reason: "params [i32 i32 f32], want [i32 i32 f64]"},
	})

	msg := err.Error()
	for _, want := range []string{"2 problem(s)", "rive_file_load: missing", "rive_vm_set_number"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}

	if !errors.Is(err, &MissingExportsError{}) {
		t.Error("errors.Is should match MissingExportsError")
	}
	if !errors.Is(err, &Error{Phase: PhaseEngine, Kind: KindMissingExport}) {
		t.Error("errors.Is should match engine missing_export")
	}

	empty := NewMissingExportsError(nil)
	if !strings.Contains(empty.Error(), "no exports") {
		t.Errorf("empty Error() = %q", empty.Error())
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, StatusOK},
		{Unsupported(PhaseLoad, "x"), StatusUnsupported},
		{NotLoaded(PhaseAction, "graphic"), StatusNotLoaded},
		{fmt.Errorf("wrap: %w", NotLoaded(PhaseUpdate, "graphic")), StatusNotLoaded},
		{UnknownProperty(PhaseUpdate, "x"), StatusInternal},
		{errors.New("plain"), StatusInternal},
	}

	for _, tt := range tests {
		if got := Status(tt.err); got != tt.want {
			t.Errorf("Status(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}

	if got := Message(errors.New("plain")); got != "plain" {
		t.Errorf("Message(plain) = %q", got)
	}
	if got := Message(nil); got != "" {
		t.Errorf("Message(nil) = %q", got)
	}
}
