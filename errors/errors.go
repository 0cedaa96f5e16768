package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseConfig     Phase = "config"     // project configuration
	PhaseEngine     Phase = "engine"     // engine creation and guest ABI
	PhaseLoad       Phase = "load"       // asset and instance loading
	PhaseIntrospect Phase = "introspect" // view-model property discovery
	PhaseUpdate     Phase = "update"     // property writes
	PhaseAction     Phase = "action"     // play/stop/custom triggers
	PhaseManifest   Phase = "manifest"   // manifest synthesis
	PhaseCodegen    Phase = "codegen"    // adapter source generation
	PhasePackage    Phase = "package"    // archive assembly
	PhaseControl    Phase = "control"    // remote control bridge
	PhaseWatch      Phase = "watch"      // file change notification
)

// Kind categorizes the error
type Kind string

const (
	KindUnsupported      Kind = "unsupported"
	KindNotLoaded        Kind = "not_loaded"
	KindNotFound         Kind = "not_found"
	KindTypeMismatch     Kind = "type_mismatch"
	KindInvalidInput     Kind = "invalid_input"
	KindInvalidData      Kind = "invalid_data"
	KindMissingExport    Kind = "missing_export"
	KindContractMismatch Kind = "contract_mismatch"
	KindInstantiation    Kind = "instantiation"
	KindInternal         Kind = "internal"
)

// Control protocol status codes.
const (
	StatusOK          = 200
	StatusUnsupported = 400
	StatusInternal    = 500
	StatusNotLoaded   = 501
)

// Error is the structured error type used throughout the module
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Property string
	Detail   string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Property != "" {
		b.WriteString(" at ")
		b.WriteString(e.Property)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Message returns the detail without the phase/kind prefix, falling back to
// the full error text. Used for host-facing result messages.
func (e *Error) Message() string {
	if e.Detail == "" {
		return e.Error()
	}
	if e.Cause != nil {
		return e.Detail + ": " + e.Cause.Error()
	}
	return e.Detail
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
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

// Property sets the view-model property the error refers to
func (b *Builder) Property(name string) *Builder {
	b.err.Property = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
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

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotLoaded creates an error for operations attempted before load completed
func NotLoaded(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotLoaded,
		Detail: fmt.Sprintf("%s not loaded", what),
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

// UnknownProperty creates an error for a property missing from the view model
func UnknownProperty(phase Phase, name string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindNotFound,
		Property: name,
		Detail:   fmt.Sprintf("property %q not found in view model", name),
	}
}

// UnsupportedKind creates an error for a property whose kind cannot be written
func UnsupportedKind(phase Phase, name, kind string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindUnsupported,
		Property: name,
		Detail:   fmt.Sprintf("unsupported property type %s for %q", kind, name),
	}
}

// TypeMismatch creates a coercion failure error
func TypeMismatch(phase Phase, name string, value any, want string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		Property: name,
		Value:    value,
		Detail:   fmt.Sprintf("cannot use %T as %s", value, want),
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

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// ContractMismatch creates a template/parameter contract error
func ContractMismatch(phase Phase, want, got int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindContractMismatch,
		Detail: fmt.Sprintf("template written for contract v%d, generator provides v%d", got, want),
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: "instantiate scene",
		Cause:  cause,
	}
}

// Load creates an asset loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Internal wraps an unexpected failure
func Internal(phase Phase, cause error) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindInternal,
		Cause: cause,
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

// ExportProblem describes one way a guest module fails the engine ABI
type ExportProblem struct {
	Function string // e.g., "rive_vm_set_number"
	Reason   string // e.g., "missing" or "params [i32 f32], want [i32 u32 f64]"
}

// MissingExportsError is returned when a guest engine module does not satisfy
// the host ABI contract.
type MissingExportsError struct {
	Problems []ExportProblem
}

// NewMissingExportsError creates an error from a list of problems
func NewMissingExportsError(problems []ExportProblem) *MissingExportsError {
	return &MissingExportsError{Problems: problems}
}

func (e *MissingExportsError) Error() string {
	if len(e.Problems) == 0 {
		return "[engine] missing_export: no exports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("guest module does not satisfy engine ABI (%d problem(s)):", len(e.Problems)))
	for _, p := range e.Problems {
		b.WriteString("\n  - ")
		b.WriteString(p.Function)
		b.WriteString(": ")
		b.WriteString(p.Reason)
	}
	return b.String()
}

// Is reports whether target matches this error type
func (e *MissingExportsError) Is(target error) bool {
	switch t := target.(type) {
	case *MissingExportsError:
		return true
	case *Error:
		return t.Phase == PhaseEngine && t.Kind == KindMissingExport
	}
	return false
}

// Status maps an error onto a control protocol status code.
func Status(err error) int {
	if err == nil {
		return StatusOK
	}
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindUnsupported:
			return StatusUnsupported
		case KindNotLoaded:
			return StatusNotLoaded
		}
	}
	return StatusInternal
}

// Message returns the host-facing message for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message()
	}
	return err.Error()
}
