package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with the stack trace.
// It must be called directly in a defer statement:
//
//	defer observability.RecoverPanic(logger, "audit hook")
//
// The panic is not re-raised.
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		logPanic(logger, where, r)
	}
}

// RecoverPanicWithCallback recovers from a panic, logs it, and then calls
// callback with the recovered value converted to an error.
func RecoverPanicWithCallback(logger *Logger, where string, callback func(error)) {
	if r := recover(); r != nil {
		logPanic(logger, where, r)
		if callback != nil {
			callback(PanicError(r))
		}
	}
}

// PanicError converts a recovered value to an error, or nil when r is nil
func PanicError(r interface{}) error {
	if r == nil {
		return nil
	}
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}

func logPanic(logger *Logger, where string, r interface{}) {
	if logger == nil {
		return
	}
	logger.WithFields(map[string]interface{}{
		"panic":   fmt.Sprint(r),
		"stack":   string(debug.Stack()),
		"context": where,
	}).Error("PANIC recovered")
}
