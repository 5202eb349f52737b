package errors

import (
	"fmt"
	"strings"
)

// Phase names the stage of binding that failed.
type Phase string

const (
	PhaseRegister Phase = "register" // builder accumulation
	PhaseFinalize Phase = "finalize" // per-kind construction strategy
	PhaseGet      Phase = "get"      // bytes to Go value
	PhaseSet      Phase = "set"      // Go value to bytes
	PhaseCall     Phase = "call"     // call-thunk protocol
	PhaseLoad     Phase = "load"     // loader / description stream
	PhaseRuntime  Phase = "runtime"  // lifetime and misc runtime operations
)

// Kind is the failure category, stable across phases.
type Kind string

const (
	KindIllegalState        Kind = "illegal_state"
	KindRange               Kind = "range"
	KindTypeMismatch        Kind = "type_mismatch"
	KindNoNewEnum           Kind = "no_new_enum"
	KindInactiveUnionMember Kind = "inactive_union_member"
	KindErrorToken          Kind = "error_token"
	KindUnresolvedThunk     Kind = "unresolved_thunk"
	KindOutOfBounds         Kind = "out_of_bounds"
	KindNotFound            Kind = "not_found"
	KindUnsupported         Kind = "unsupported"
	KindAllocation          Kind = "allocation"
	KindInvalidData         Kind = "invalid_data"
	KindForeignCall         Kind = "foreign_call"
)

// Sentinels for errors.Is checks on the kind alone.
var (
	ErrIllegalState        = &Error{Kind: KindIllegalState}
	ErrRange               = &Error{Kind: KindRange}
	ErrTypeMismatch        = &Error{Kind: KindTypeMismatch}
	ErrNoNewEnum           = &Error{Kind: KindNoNewEnum}
	ErrInactiveUnionMember = &Error{Kind: KindInactiveUnionMember}
	ErrErrorToken          = &Error{Kind: KindErrorToken}
	ErrUnresolvedThunk     = &Error{Kind: KindUnresolvedThunk}
	ErrOutOfBounds         = &Error{Kind: KindOutOfBounds}
	ErrNotFound            = &Error{Kind: KindNotFound}
)

// Error is the structured error type used throughout the module
type Error struct {
	Value     any
	Cause     error
	Phase     Phase
	Kind      Kind
	Structure string
	Detail    string
	Path      []string
}

// Error renders "[phase] kind at path in structure: detail (caused by: ...)".
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Structure != "" {
		b.WriteString(" in ")
		b.WriteString(e.Structure)
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

// Unwrap exposes Cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. The kind must match; the
// phase must match only when the target carries one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return t.Phase == "" || e.Phase == t.Phase
}

// Builder assembles an *Error field by field.
type Builder struct {
	err Error
}

// New starts a builder for phase and kind.
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the member path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Structure sets the structure name
func (b *Builder) Structure(name string) *Builder {
	b.err.Structure = name
	return b
}

// Value records the rejected value.
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause records the wrapped error.
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the message, formatting it when args are given.
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the error. The builder must not be reused.
func (b *Builder) Build() *Error {
	return &b.err
}

// IllegalState reports registry or accessor misuse.
func IllegalState(phase Phase, structure, detail string) *Error {
	return &Error{
		Phase:     phase,
		Kind:      KindIllegalState,
		Structure: structure,
		Detail:    detail,
	}
}

// Range reports a value outside the representable domain of a member.
func Range(phase Phase, path []string, value any, bits int, signed bool) *Error {
	sign := "u"
	if signed {
		sign = "i"
	}
	return &Error{
		Phase:  phase,
		Kind:   KindRange,
		Path:   path,
		Detail: fmt.Sprintf("value %v does not fit in %s%d", value, sign, bits),
		Value:  value,
	}
}

// TypeMismatch reports a value whose shape does not match the member kind.
func TypeMismatch(phase Phase, path []string, value any, expected string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		Detail: fmt.Sprintf("cannot use %s as %s", typeName(value), expected),
		Value:  value,
	}
}

// NoNewEnum reports direct construction of an enumeration item.
func NoNewEnum(structure string) *Error {
	return &Error{
		Phase:     PhaseSet,
		Kind:      KindNoNewEnum,
		Structure: structure,
		Detail:    "enumeration items cannot be created with New, use Convert",
	}
}

// InactiveUnionMember reports a read of a union arm that is not selected.
func InactiveUnionMember(structure, arm, active string) *Error {
	return &Error{
		Phase:     PhaseGet,
		Kind:      KindInactiveUnionMember,
		Structure: structure,
		Path:      []string{arm},
		Detail:    fmt.Sprintf("accessing %q while %q is active", arm, active),
	}
}

// UnresolvedThunk reports a method whose foreign entry point cannot be found.
func UnresolvedThunk(method string, handle uint32, cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindUnresolvedThunk,
		Path:   []string{method},
		Detail: fmt.Sprintf("thunk %d cannot be resolved", handle),
		Value:  handle,
		Cause:  cause,
	}
}

// OutOfBounds reports an index or byte range past the end.
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// NotFound reports a missing member, method or structure.
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Unsupported reports an operation the kind does not offer.
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// AllocationFailed reports that the loader could not reserve foreign memory.
func AllocationFailed(phase Phase, size, align uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
		Cause:  cause,
	}
}

// InvalidData reports a malformed description or record.
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Wrap attaches phase, kind and detail to cause.
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// ForeignCall wraps a failure raised while the foreign side was running.
func ForeignCall(method string, cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindForeignCall,
		Path:   []string{method},
		Detail: "foreign call failed",
		Cause:  cause,
	}
}

// Load reports a failure while loading or describing a module.
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// WithPath returns a copy of err with prefix prepended to its path. Errors
// that are not *Error are returned unchanged.
func WithPath(err error, prefix ...string) error {
	e, ok := err.(*Error)
	if !ok || len(prefix) == 0 {
		return err
	}
	cp := *e
	cp.Path = append(append([]string{}, prefix...), e.Path...)
	return &cp
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
