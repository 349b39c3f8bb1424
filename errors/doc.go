// Package errors provides standardized error handling patterns for logstream components.
//
// # Overview
//
// The errors package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input, non-retryable), and
// Fatal (unrecoverable, stop processing). Classification enables components to
// make retry and shutdown decisions without error string matching.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Publisher", "Start", "source open")  // retryable
//	errors.WrapInvalid(err, "EventSubscriber", "New", "pattern")    // validation
//	errors.WrapFatal(err, "Registry", "Register", "prometheus")     // unrecoverable
//
// The generic Wrap() preserves the original error's classification.
//
// # Standard Error Variables
//
// Pre-defined error variables cover the common conditions of the pub/sub
// pipeline, such as ErrStreamEnded, ErrWaitTimeout, ErrInvalidPattern and the
// lifecycle errors ErrAlreadyStarted/ErrNotStarted. Callers distinguish
// outcomes with errors.Is:
//
//	if err := event.Wait(ctx); err != nil {
//	    switch {
//	    case errors.Is(err, errors.ErrWaitTimeout):
//	        // no match within the deadline
//	    case errors.Is(err, errors.ErrStreamEnded):
//	        // source went away before a match
//	    }
//	}
//
// All error types support the standard library errors.Is/As/Unwrap chain, and
// context errors (context.DeadlineExceeded, context.Canceled) classify as
// Transient.
package errors
