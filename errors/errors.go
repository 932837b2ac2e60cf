package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseSettle   Phase = "settle"   // resolve/reject transitions
	PhaseChain    Phase = "chain"    // then/pipe derivation
	PhaseConvert  Phase = "convert"  // variant casts
	PhaseDispatch Phase = "dispatch" // method/property lookup
	PhaseBridge   Phase = "bridge"   // guest wire boundary
	PhaseManifest Phase = "manifest" // manifest parsing/validation
	PhaseLoad     Phase = "load"     // plugin loading
	PhaseCall     Phase = "call"     // guest invocation
)

// Kind categorizes the error
type Kind string

const (
	KindAlreadySettled Kind = "already_settled"
	KindDiscarded      Kind = "discarded"
	KindInvalidated    Kind = "invalidated"
	KindInvalidHandle  Kind = "invalid_handle"
	KindHandlerPanic   Kind = "handler_panic"
	KindConversion     Kind = "conversion"
	KindTypeMismatch   Kind = "type_mismatch"
	KindOverflow       Kind = "overflow"
	KindNotFound       Kind = "not_found"
	KindInvalidInput   Kind = "invalid_input"
	KindZoneDenied     Kind = "zone_denied"
	KindProtocol       Kind = "protocol"
	KindMemory         Kind = "memory"
	KindRegistration   Kind = "registration"
	KindInstantiation  Kind = "instantiation"
	KindUnsupported    Kind = "unsupported"
	KindExhausted      Kind = "exhausted"
)

// Error is the structured error type used throughout the library.
// It doubles as the opaque rejection payload carried through deferred
// values: a tagged kind plus message plus optional structured detail,
// inspectable with errors.Is/As and re-raisable by a later handler.
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	SrcType string
	DstType string
	Detail  string
	Path    []string
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

	if e.SrcType != "" || e.DstType != "" {
		b.WriteString(": ")
		if e.SrcType != "" && e.DstType != "" {
			b.WriteString(e.SrcType)
			b.WriteString(" -> ")
			b.WriteString(e.DstType)
		} else if e.SrcType != "" {
			b.WriteString("from ")
			b.WriteString(e.SrcType)
		} else {
			b.WriteString("to ")
			b.WriteString(e.DstType)
		}
	}

	if e.Detail != "" {
		if e.SrcType != "" || e.DstType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
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

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// IsKind reports whether err is an *Error of the given kind, regardless
// of phase. Rejection handlers use this to match on failure categories.
func IsKind(err error, kind Kind) bool {
	if e, ok := err.(*Error); ok {
		return e.Kind == kind
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

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// SrcType sets the source type name
func (b *Builder) SrcType(t string) *Builder {
	b.err.SrcType = t
	return b
}

// DstType sets the destination type name
func (b *Builder) DstType(t string) *Builder {
	b.err.DstType = t
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

// AlreadySettled reports a resolve/reject on a terminal deferred state.
func AlreadySettled(op, current string) *Error {
	return &Error{
		Phase:  PhaseSettle,
		Kind:   KindAlreadySettled,
		Detail: fmt.Sprintf("%s on %s state", op, current),
	}
}

// Discarded reports a pending controller discarded with failure
// subscribers still registered.
func Discarded() *Error {
	return &Error{
		Phase:  PhaseSettle,
		Kind:   KindDiscarded,
		Detail: "controller discarded while pending",
	}
}

// Invalidated reports an explicit invalidation of a pending state.
func Invalidated() *Error {
	return &Error{
		Phase:  PhaseSettle,
		Kind:   KindInvalidated,
		Detail: "deferred value invalidated while pending",
	}
}

// InvalidHandle reports an operation on a handle with no backing state.
func InvalidHandle(op string) *Error {
	return &Error{
		Phase:  PhaseChain,
		Kind:   KindInvalidHandle,
		Detail: fmt.Sprintf("%s on invalid handle", op),
	}
}

// HandlerPanic captures a panic value recovered at a chaining boundary.
func HandlerPanic(v any) *Error {
	err := &Error{
		Phase:  PhaseChain,
		Kind:   KindHandlerPanic,
		Detail: fmt.Sprintf("handler panicked: %v", v),
		Value:  v,
	}
	if cause, ok := v.(error); ok {
		err.Cause = cause
	}
	return err
}

// Conversion creates a conversion failure error
func Conversion(path []string, srcType, dstType, detail string) *Error {
	return &Error{
		Phase:   PhaseConvert,
		Kind:    KindConversion,
		Path:    path,
		SrcType: srcType,
		DstType: dstType,
		Detail:  detail,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, srcType, dstType string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindTypeMismatch,
		Path:    path,
		SrcType: srcType,
		DstType: dstType,
	}
}

// Overflow creates an overflow error
func Overflow(path []string, value any, dstType string) *Error {
	return &Error{
		Phase:   PhaseConvert,
		Kind:    KindOverflow,
		Path:    path,
		DstType: dstType,
		Detail:  fmt.Sprintf("value %v overflows %s", value, dstType),
		Value:   value,
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

// ZoneDenied reports a member hidden by the active security zone.
func ZoneDenied(member string, zone int) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindZoneDenied,
		Detail: fmt.Sprintf("member %q requires zone %d", member, zone),
		Value:  zone,
	}
}

// Protocol reports a malformed envelope at the guest wire boundary.
func Protocol(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseBridge,
		Kind:   KindProtocol,
		Detail: detail,
		Cause:  cause,
	}
}

// Memory reports an out-of-range guest memory access.
func Memory(op string, offset, length uint32) *Error {
	return &Error{
		Phase:  PhaseBridge,
		Kind:   KindMemory,
		Detail: fmt.Sprintf("%s [%d..%d) out of range", op, offset, uint64(offset)+uint64(length)),
	}
}

// Registration creates a registration error
func Registration(namespace, name string, cause error) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s.%s", namespace, name),
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: "instantiate plugin",
		Cause:  cause,
	}
}

// Load creates a plugin loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Exhausted creates a resource limit error
func Exhausted(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindExhausted,
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

// UnsettledCallsError is returned when an instance closes with guest
// calls still pending. Each abandoned call was rejected before close.
type UnsettledCallsError struct {
	Calls []UnsettledCall
}

// UnsettledCall identifies a single abandoned guest call.
type UnsettledCall struct {
	ID     string // correlation id minted at invoke time
	Member string // method or property name
}

// NewUnsettledCallsError builds an error from "id#member" entries.
func NewUnsettledCallsError(calls []string) *UnsettledCallsError {
	result := &UnsettledCallsError{
		Calls: make([]UnsettledCall, 0, len(calls)),
	}
	for _, c := range calls {
		id, member := parseCallKey(c)
		result.Calls = append(result.Calls, UnsettledCall{
			ID:     id,
			Member: member,
		})
	}
	return result
}

func parseCallKey(key string) (id, member string) {
	i, m, found := strings.Cut(key, "#")
	if found {
		return i, m
	}
	return key, ""
}

func (e *UnsettledCallsError) Error() string {
	if len(e.Calls) == 0 {
		return "[call] unsettled: no calls specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%d guest call(s) unsettled at close:\n", len(e.Calls)))

	// Group by member for cleaner output
	byMember := make(map[string][]string)
	var memberOrder []string
	for _, c := range e.Calls {
		if _, exists := byMember[c.Member]; !exists {
			memberOrder = append(memberOrder, c.Member)
		}
		byMember[c.Member] = append(byMember[c.Member], c.ID)
	}

	for _, member := range memberOrder {
		b.WriteString("\n  ")
		if member == "" {
			b.WriteString("(unknown)")
		} else {
			b.WriteString(member)
		}
		b.WriteString(":\n")
		for _, id := range byMember[member] {
			b.WriteString("    - ")
			b.WriteString(id)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *UnsettledCallsError) Is(target error) bool {
	_, ok := target.(*UnsettledCallsError)
	return ok
}
