package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound means the job id does not exist in the store.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobBusy means the operation requires the job to be stopped or paused.
	ErrJobBusy = errors.New("job is running; stop or pause it first")
)

// InvalidConfigError rejects a job configuration at create or edit time.
// Invalid configurations are never persisted.
type InvalidConfigError struct {
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid job config: %s", e.Reason)
}

// IsInvalidConfig reports whether err is a configuration rejection.
func IsInvalidConfig(err error) bool {
	var ice *InvalidConfigError
	return errors.As(err, &ice)
}
