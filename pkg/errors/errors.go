package errors

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/butter-bot-machines/childproc/pkg/logging"
)

// Global registry for error types
var (
	globalRegistry = NewRegistry()

	// Standard error types
	ConfigError   = globalRegistry.Register("ConfigError", 1)
	SpawnError    = globalRegistry.Register("SpawnError", 2)
	PlatformError = globalRegistry.Register("PlatformError", 3)
	SignalError   = globalRegistry.Register("SignalError", 4)
	StateError    = globalRegistry.Register("StateError", 5)
	CallbackError = globalRegistry.Register("CallbackError", 6)
	UnknownError  = globalRegistry.Register("UnknownError", 7)
)

// DefaultRegistry returns the registry holding the standard error types
func DefaultRegistry() Registry {
	return globalRegistry
}

// New creates a new error with type and message
func New(errType ErrorType, msg string, args ...interface{}) Error {
	t, ok := errType.(*errorType)
	if !ok {
		t = UnknownError.(*errorType)
	}
	return &concreteError{
		errType: t,
		message: fmt.Sprintf(msg, args...),
		stack:   captureStackTrace(2),
		context: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, msg string, args ...interface{}) Error {
	if err == nil {
		return nil
	}

	// If already wrapped, add context
	if e, ok := err.(*concreteError); ok {
		e.message = fmt.Sprintf(msg, args...) + ": " + e.message
		return e
	}

	return &concreteError{
		errType: typeOf(err),
		message: fmt.Sprintf(msg, args...) + ": " + err.Error(),
		cause:   err,
		stack:   captureStackTrace(2),
		context: make(map[string]interface{}),
	}
}

// NewRegistry creates a new error type registry
func NewRegistry() Registry {
	return &registry{
		types: make(map[string]*errorType),
	}
}

// NewPanicHandler creates a new panic handler
func NewPanicHandler(reg Registry, logger logging.Logger) PanicHandler {
	return &panicHandler{
		registry: reg,
		logger:   logger,
	}
}

// NewAggregate creates a new error aggregate
func NewAggregate() Aggregate {
	return &errorAggregate{
		errs: make([]error, 0),
	}
}

type errorType struct {
	name string
	code int
}

func (t *errorType) Name() string {
	return t.name
}

func (t *errorType) Code() int {
	return t.code
}

func (t *errorType) String() string {
	return t.name
}

func (t *errorType) New(msg string, args ...interface{}) Error {
	return &concreteError{
		errType: t,
		message: fmt.Sprintf(msg, args...),
		stack:   captureStackTrace(2),
		context: make(map[string]interface{}),
	}
}

func (t *errorType) Wrap(err error, msg string, args ...interface{}) Error {
	if err == nil {
		return nil
	}

	if e, ok := err.(*concreteError); ok {
		e.message = fmt.Sprintf(msg, args...) + ": " + e.message
		e.errType = t
		return e
	}

	return &concreteError{
		errType: t,
		message: fmt.Sprintf(msg, args...) + ": " + err.Error(),
		cause:   err,
		stack:   captureStackTrace(2),
		context: make(map[string]interface{}),
	}
}

type concreteError struct {
	errType *errorType
	message string
	cause   error
	stack   StackTrace
	context map[string]interface{}
}

func (e *concreteError) Error() string {
	if e == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(e.message)

	if len(e.context) > 0 {
		keys := make([]string, 0, len(e.context))
		for k := range e.context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.context[k])
		}
		b.WriteString("]")
	}

	return b.String()
}

func (e *concreteError) Format(f fmt.State, c rune) {
	if e == nil {
		return
	}

	switch c {
	case 'v':
		if f.Flag('+') {
			fmt.Fprintf(f, "%s\n", e.Error())
			if e.cause != nil {
				fmt.Fprintf(f, "Caused by: %+v\n", e.cause)
			}
			fmt.Fprintf(f, "Stack trace:\n%s", e.stack.String())
		} else {
			fmt.Fprintf(f, "%s", e.Error())
		}
	default:
		fmt.Fprintf(f, "%s", e.Error())
	}
}

func (e *concreteError) WithContext(key string, value interface{}) Error {
	if e == nil {
		return nil
	}
	e.context[key] = value
	return e
}

func (e *concreteError) WithType(errType ErrorType) Error {
	if e == nil {
		return nil
	}
	if t, ok := errType.(*errorType); ok {
		e.errType = t
	}
	return e
}

func (e *concreteError) Stack() StackTrace {
	return e.stack
}

func (e *concreteError) Context() map[string]interface{} {
	return e.context
}

func (e *concreteError) Cause() error {
	return e.cause
}

func (e *concreteError) Unwrap() error {
	return e.cause
}

func (e *concreteError) ErrorType() ErrorType {
	return e.errType
}

type stackFrame struct {
	file     string
	line     int
	function string
}

func (f *stackFrame) File() string {
	return f.file
}

func (f *stackFrame) Line() int {
	return f.line
}

func (f *stackFrame) Function() string {
	return f.function
}

func (f *stackFrame) String() string {
	return fmt.Sprintf("%s:%d %s", f.file, f.line, f.function)
}

type stackTrace struct {
	frames []Frame
}

func (st *stackTrace) Frames() []Frame {
	return st.frames
}

func (st *stackTrace) String() string {
	var b strings.Builder
	for _, frame := range st.frames {
		fmt.Fprintf(&b, "  %s\n", frame.String())
	}
	return b.String()
}

// captureStackTrace records the stack starting skip frames above itself
func captureStackTrace(skip int) StackTrace {
	var frames []Frame
	for i := skip; ; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}

		shortFile := file
		if idx := strings.LastIndex(file, "/"); idx >= 0 {
			shortFile = file[idx+1:]
		}

		frames = append(frames, &stackFrame{
			file:     shortFile,
			line:     line,
			function: fn.Name(),
		})

		// Limit stack depth
		if len(frames) >= 32 {
			break
		}
	}
	return &stackTrace{frames: frames}
}

type errorAggregate struct {
	mu   sync.Mutex
	errs []error
}

func (a *errorAggregate) Write(p []byte) (n int, err error) {
	a.Add(fmt.Errorf("%s", p))
	return len(p), nil
}

func (a *errorAggregate) Add(err error) {
	if err == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs = append(a.errs, err)
}

func (a *errorAggregate) HasErrors() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.errs) > 0
}

func (a *errorAggregate) Error() string {
	errs := a.Errors()
	if len(errs) == 0 {
		return ""
	}

	if len(errs) == 1 {
		return errs[0].Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d errors occurred:\n", len(errs))
	for i, err := range errs {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%d] %v", i+1, err)
	}
	return b.String()
}

func (a *errorAggregate) Errors() []error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]error(nil), a.errs...)
}

// Unwrap exposes the collected errors to errors.Is and errors.As
func (a *errorAggregate) Unwrap() []error {
	return a.Errors()
}

func (a *errorAggregate) ErrorOrNil() error {
	if !a.HasErrors() {
		return nil
	}
	return a
}

type registry struct {
	types map[string]*errorType
	mu    sync.RWMutex
}

func (r *registry) Register(name string, code int) ErrorType {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := &errorType{
		name: name,
		code: code,
	}
	r.types[name] = t
	return t
}

func (r *registry) Get(name string) (ErrorType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.types[name]
	return t, ok
}

func (r *registry) List() []ErrorType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]ErrorType, 0, len(r.types))
	for _, t := range r.types {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].Code() < types[j].Code() })
	return types
}

type panicHandler struct {
	registry Registry
	logger   logging.Logger
}

func (h *panicHandler) Handle(v interface{}) error {
	errType, ok := h.registry.Get("PanicError")
	if !ok {
		errType = h.registry.Register("PanicError", 500)
	}

	var msg string
	var cause error
	switch v := v.(type) {
	case string:
		msg = v
	case error:
		msg = v.Error()
		cause = v
	default:
		msg = fmt.Sprintf("%v", v)
	}

	if h.logger != nil {
		h.logger.Error("panic recovered", "error", msg)
	}

	t, ok := errType.(*errorType)
	if !ok {
		t = UnknownError.(*errorType)
	}
	return &concreteError{
		errType: t,
		message: fmt.Sprintf("panic recovered: %s", msg),
		cause:   cause,
		stack:   captureStackTrace(1),
		context: map[string]interface{}{
			"recovered": true,
		},
	}
}

func (h *panicHandler) Recover() func() error {
	return func() error {
		r := recover()
		if r == nil {
			return nil
		}
		return h.Handle(r)
	}
}

func typeOf(err error) *errorType {
	if t, ok := GetType(err).(*errorType); ok {
		return t
	}
	return UnknownError.(*errorType)
}
