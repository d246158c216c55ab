package gateway

import (
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyDeleted means the message targeted by a delete no longer exists.
// Callers treat it as success.
var ErrAlreadyDeleted = errors.New("message already deleted")

// TransientError is a provider failure worth retrying: flood-wait, network
// trouble, server-side errors. RetryAfter is the provider-requested pause,
// zero when the provider did not name one.
type TransientError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *TransientError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("transient platform error (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("transient platform error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is a provider failure that retrying cannot fix, e.g. the bot
// lost admin rights on the target. The job must stop and surface it.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent platform error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is unrecoverable for the operation.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// RetryAfter returns the provider-requested pause, or zero.
func RetryAfter(err error) time.Duration {
	var te *TransientError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}
