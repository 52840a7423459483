package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers a panic in a deferred call and logs it with its stack.
// The panic is not re-raised.
//
//	go func() {
//	    defer observability.RecoverPanic(logger, "report usage for user")
//	    ...
//	}()
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		logger.WithField("panic", fmt.Sprint(r)).
			WithField("stack", string(debug.Stack())).
			WithField("context", where).
			Error("PANIC recovered")
	}
}

// RecoverToError converts a recovered panic value into an error. nil stays nil.
//
//	defer func() {
//	    if perr := observability.RecoverToError(recover()); perr != nil {
//	        err = perr
//	    }
//	}()
func RecoverToError(r any) error {
	if r != nil {
		return fmt.Errorf("panic: %v", r)
	}
	return nil
}
