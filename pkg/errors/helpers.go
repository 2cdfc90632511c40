package errors

import stderrors "errors"

// AsError attempts to convert an error to our Error interface
func AsError(err error) Error {
	if err == nil {
		return nil
	}
	var e Error
	if stderrors.As(err, &e) {
		return e
	}
	return nil
}

// GetType returns the error type if available. Errors that implement Typed
// anywhere in their chain report that type.
func GetType(err error) ErrorType {
	if err == nil {
		return nil
	}
	var typed Typed
	if stderrors.As(err, &typed) {
		return typed.ErrorType()
	}
	return nil
}

// IsType reports whether err belongs to the given category
func IsType(err error, errType ErrorType) bool {
	t := GetType(err)
	return t != nil && errType != nil && t.Name() == errType.Name()
}

// GetMessage returns the error message without context
func GetMessage(err error) string {
	if ce, ok := err.(*concreteError); ok {
		return ce.message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// GetStack returns the stack trace if available
func GetStack(err error) StackTrace {
	if e := AsError(err); e != nil {
		return e.Stack()
	}
	return nil
}

// GetContext returns the error context if available
func GetContext(err error) map[string]interface{} {
	if e := AsError(err); e != nil {
		return e.Context()
	}
	return nil
}

// WithContext adds context to an error
func WithContext(err error, key string, value interface{}) error {
	if e := AsError(err); e != nil {
		return e.WithContext(key, value)
	}
	return err
}
