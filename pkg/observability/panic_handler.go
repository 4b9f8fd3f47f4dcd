package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with its stack trace. It must
// be called directly in a defer statement:
//
//	defer observability.RecoverPanic(logger, "pending sweep")
//
// The panic is not re-raised.
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		logger.WithField("panic", fmt.Sprint(r)).
			WithField("stack", string(debug.Stack())).
			WithField("context", where).
			Error("PANIC recovered")
	}
}

// PanicError converts a recovered value into an error, or nil when nothing was recovered.
//
//	defer func() { err = observability.PanicError(recover(), err) }()
func PanicError(r interface{}, err error) error {
	if r != nil {
		return fmt.Errorf("panic: %v", r)
	}
	return err
}
