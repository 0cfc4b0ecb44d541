package errors

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
)

// Phase indicates where in the host lifecycle the error occurred
type Phase string

const (
	PhaseLoad    Phase = "load"    // artifact copy, compile, entry point resolution
	PhaseInit    Phase = "init"    // InitAll reported failure
	PhaseFrame   Phase = "frame"   // per-frame entry point calls
	PhaseQueue   Phase = "queue"   // work queue submission
	PhaseUnload  Phase = "unload"  // module close, versioned copy deletion
	PhaseConfig  Phase = "config"  // configuration loading and validation
	PhaseBuild   Phase = "build"   // artifact rebuilds
	PhaseRuntime Phase = "runtime" // engine and host operations
)

// Kind categorizes the error
type Kind string

const (
	KindLocked            Kind = "locked"
	KindNotFound          Kind = "not_found"
	KindIO                Kind = "io"
	KindMissingEntryPoint Kind = "missing_entry_point"
	KindSignatureMismatch Kind = "signature_mismatch"
	KindInstantiation     Kind = "instantiation"
	KindInvalidData       Kind = "invalid_data"
	KindInvalidInput      Kind = "invalid_input"
	KindInitFailed        Kind = "init_failed"
	KindTrap              Kind = "trap"
	KindOverflow          Kind = "overflow"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindAllocation        Kind = "allocation"
	KindNotInitialized    Kind = "not_initialized"
	KindAlreadyRunning    Kind = "already_running"
)

// Error is the structured error type used throughout the host
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	Path       string
	EntryPoint string
	Detail     string
	Version    int
	HasVersion bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}

	if e.HasVersion {
		b.WriteString(" (v")
		b.WriteString(strconv.Itoa(e.Version))
		b.WriteByte(')')
	}

	if e.EntryPoint != "" {
		b.WriteString(" in ")
		b.WriteString(e.EntryPoint)
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

// Path sets the file the error refers to
func (b *Builder) Path(path string) *Builder {
	b.err.Path = path
	return b
}

// EntryPoint sets the module entry point name
func (b *Builder) EntryPoint(name string) *Builder {
	b.err.EntryPoint = name
	return b
}

// Version sets the module version
func (b *Builder) Version(v int) *Builder {
	b.err.Version = v
	b.err.HasVersion = true
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

// Convenience constructors for the host's error kinds

// LoadFailure creates a module loading error
func LoadFailure(kind Kind, path, detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   kind,
		Path:   path,
		Detail: detail,
		Cause:  cause,
	}
}

// Locked reports that the build-lock marker suppressed loading
func Locked(lockPath string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindLocked,
		Path:   lockPath,
		Detail: "build in progress",
	}
}

// InitFailure creates an InitAll failure error
func InitFailure(version int, cause error) *Error {
	return &Error{
		Phase:      PhaseInit,
		Kind:       KindInitFailed,
		Detail:     "InitAll reported failure",
		Version:    version,
		HasVersion: true,
		Cause:      cause,
	}
}

// QueueOverflow creates a queue-full error
func QueueOverflow(capacity int) *Error {
	return &Error{
		Phase:  PhaseQueue,
		Kind:   KindOverflow,
		Detail: fmt.Sprintf("work queue full (capacity %d)", capacity),
		Value:  capacity,
	}
}

// UnloadFailure creates an unload error for a versioned module copy
func UnloadFailure(path string, version int, cause error) *Error {
	return &Error{
		Phase:      PhaseUnload,
		Kind:       KindIO,
		Path:       path,
		Version:    version,
		HasVersion: true,
		Detail:     "release module",
		Cause:      cause,
	}
}

// Trap creates an entry point execution error
func Trap(phase Phase, entryPoint string, cause error) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindTrap,
		EntryPoint: entryPoint,
		Cause:      cause,
	}
}

// OutOfBounds creates a state access error
func OutOfBounds(phase Phase, offset, length, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("access [%d, %d) out of bounds (size %d)", offset, uint64(offset)+uint64(length), size),
		Value:  offset,
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
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

// AlreadyRunning reports that another host holds the instance lock
func AlreadyRunning(lockPath string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindAlreadyRunning,
		Path:   lockPath,
		Detail: "another host instance is running",
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

// MissingEntryPoint is a single export that failed resolution
type MissingEntryPoint struct {
	Name   string // e.g., "InitPartial"
	Reason string // e.g., "not exported", "want (i32) -> i32, got () -> i32"

	// Kind is KindSignatureMismatch when the export exists with the wrong
	// type. Empty means KindMissingEntryPoint.
	Kind Kind
}

// MissingEntryPointsError is returned when a module does not provide the full function table
type MissingEntryPointsError struct {
	Path        string
	EntryPoints []MissingEntryPoint
}

func (e *MissingEntryPointsError) Error() string {
	if len(e.EntryPoints) == 0 {
		return "[load] missing_entry_point: no entry points specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[load] missing_entry_point: %d entry point(s) unresolved", len(e.EntryPoints))
	if e.Path != "" {
		b.WriteString(" in ")
		b.WriteString(e.Path)
	}
	b.WriteByte(':')

	for _, ep := range e.EntryPoints {
		b.WriteString("\n  - ")
		b.WriteString(ep.Name)
		if ep.Reason != "" {
			b.WriteString(": ")
			b.WriteString(ep.Reason)
		}
	}

	return b.String()
}

// Is reports whether target matches this error type.
// A MissingEntryPointsError is also a load failure of kind
// missing_entry_point, and of kind signature_mismatch when any entry point
// has the wrong type.
func (e *MissingEntryPointsError) Is(target error) bool {
	switch t := target.(type) {
	case *MissingEntryPointsError:
		return true
	case *Error:
		if t.Phase != PhaseLoad {
			return false
		}
		switch t.Kind {
		case KindMissingEntryPoint:
			return true
		case KindSignatureMismatch:
			for _, ep := range e.EntryPoints {
				if ep.Kind == KindSignatureMismatch {
					return true
				}
			}
		}
	}
	return false
}

// Names returns the unresolved entry point names in order.
func (e *MissingEntryPointsError) Names() []string {
	names := make([]string, len(e.EntryPoints))
	for i, ep := range e.EntryPoints {
		names[i] = ep.Name
	}
	return names
}

func phaseOf(err error) (Phase, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Phase, true
	}
	var m *MissingEntryPointsError
	if stderrors.As(err, &m) {
		return PhaseLoad, true
	}
	return "", false
}

// IsLoadFailure reports whether err is a LoadFailure.
func IsLoadFailure(err error) bool {
	p, ok := phaseOf(err)
	return ok && p == PhaseLoad
}

// IsInitFailure reports whether err is an InitFailure.
func IsInitFailure(err error) bool {
	p, ok := phaseOf(err)
	return ok && p == PhaseInit
}

// IsQueueOverflow reports whether err is a QueueOverflow.
func IsQueueOverflow(err error) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Phase == PhaseQueue && e.Kind == KindOverflow
}

// IsUnloadFailure reports whether err is an UnloadFailure.
func IsUnloadFailure(err error) bool {
	p, ok := phaseOf(err)
	return ok && p == PhaseUnload
}

// IsLocked reports whether err is a load suppressed by the build lock.
func IsLocked(err error) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Phase == PhaseLoad && e.Kind == KindLocked
}

// IsAlreadyRunning reports whether err means another host holds the
// instance lock.
func IsAlreadyRunning(err error) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Kind == KindAlreadyRunning
}
