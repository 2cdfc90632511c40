package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/butter-bot-machines/childproc/pkg/logging"
	"github.com/butter-bot-machines/childproc/pkg/logging/memory"
)

func TestErrorCreation(t *testing.T) {
	err := New(ConfigError, "configuration error")
	if GetType(err) != ConfigError {
		t.Errorf("Error type = %v, want %v", GetType(err), ConfigError)
	}
	if GetMessage(err) != "configuration error" {
		t.Errorf("Error message = %v, want %v", GetMessage(err), "configuration error")
	}
	if len(err.Stack().Frames()) == 0 {
		t.Error("Stack trace not captured")
	}

	cause := fmt.Errorf("original error")
	wrapped := Wrap(cause, "wrapped error")
	if !strings.Contains(wrapped.Error(), "wrapped error") {
		t.Error("Wrapped error missing wrapper message")
	}
	if !strings.Contains(wrapped.Error(), "original error") {
		t.Error("Wrapped error missing original message")
	}
	if !stderrors.Is(wrapped, cause) {
		t.Error("Wrapped error should unwrap to its cause")
	}

	if Wrap(nil, "wrapper") != nil {
		t.Error("Wrapping nil error should return nil")
	}
}

func TestErrorContext(t *testing.T) {
	err := New(SpawnError, "spawn failed").
		WithContext("program", "echo").
		WithContext("status", 127)

	if err.Context()["program"] != "echo" {
		t.Error("Context value not set correctly")
	}

	errStr := err.Error()
	if errStr != "spawn failed [program=echo, status=127]" {
		t.Errorf("Error() = %q", errStr)
	}

	err = err.WithType(PlatformError)
	if !IsType(err, PlatformError) {
		t.Error("Error type not updated")
	}
}

func TestStackTrace(t *testing.T) {
	err := New(StateError, "state error")

	frames := err.Stack().Frames()
	if len(frames) == 0 {
		t.Fatal("No stack frames captured")
	}

	frame := frames[0]
	if frame.File() != "errors_test.go" {
		t.Errorf("File = %v, want errors_test.go", frame.File())
	}
	if !strings.Contains(frame.Function(), "TestStackTrace") {
		t.Errorf("Function = %v, want TestStackTrace", frame.Function())
	}
	if !strings.Contains(fmt.Sprintf("%+v", err), "Stack trace:") {
		t.Error("Detailed format should include stack trace")
	}
}

type typedErr struct{}

func (typedErr) Error() string { return "typed" }

func (typedErr) ErrorType() ErrorType { return SignalError }

func TestGetType_Typed(t *testing.T) {
	err := fmt.Errorf("outer: %w", typedErr{})
	if !IsType(err, SignalError) {
		t.Errorf("GetType() = %v, want SignalError", GetType(err))
	}

	wrapped := Wrap(typedErr{}, "context")
	if !IsType(wrapped, SignalError) {
		t.Errorf("Wrap should keep the category, got %v", GetType(wrapped))
	}

	if GetType(fmt.Errorf("plain")) != nil {
		t.Error("Plain errors have no type")
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	a := reg.Register("A", 2)
	b := reg.Register("B", 1)

	got, ok := reg.Get("A")
	if !ok || got != a {
		t.Errorf("Get(A) = %v, %v", got, ok)
	}

	list := reg.List()
	if len(list) != 2 || list[0] != b || list[1] != a {
		t.Errorf("List() not ordered by code: %v", list)
	}
}

func TestPanicHandler(t *testing.T) {
	logger := memory.NewLogger(logging.LevelDebug, nil)
	handler := NewPanicHandler(NewRegistry(), logger)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = handler.Handle(r)
			}
		}()
		panic("boom")
	}()

	if err == nil || !strings.Contains(err.Error(), "panic recovered: boom") {
		t.Fatalf("Handle() = %v", err)
	}
	if GetContext(err)["recovered"] != true {
		t.Error("recovered context missing")
	}

	entries := logger.GetEntries()
	if len(entries) != 1 || entries[0].Level != logging.LevelError {
		t.Errorf("expected one error entry, got %+v", entries)
	}
}

func TestAggregate(t *testing.T) {
	agg := NewAggregate()
	if agg.ErrorOrNil() != nil {
		t.Error("empty aggregate should be nil")
	}

	agg.Add(nil)
	agg.Add(fmt.Errorf("first"))
	if agg.Error() != "first" {
		t.Errorf("Error() = %q", agg.Error())
	}

	fmt.Fprint(agg, "second")
	if len(agg.Errors()) != 2 {
		t.Fatalf("Errors() len = %d, want 2", len(agg.Errors()))
	}
	if !strings.HasPrefix(agg.Error(), "2 errors occurred:") {
		t.Errorf("Error() = %q", agg.Error())
	}
}

func TestAggregate_Unwrap(t *testing.T) {
	sentinel := stderrors.New("sentinel")
	agg := NewAggregate()
	agg.Add(fmt.Errorf("first"))
	agg.Add(fmt.Errorf("wrapped: %w", sentinel))

	if !stderrors.Is(agg.ErrorOrNil(), sentinel) {
		t.Error("errors.Is should find an error inside the aggregate")
	}
}
