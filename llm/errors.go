package llm

import "errors"

// classified wraps an error with a retry decision. Callers only need to know
// one thing about an LLM failure: whether trying again could help.
type classified struct {
	err       error
	retryable bool
}

func (e *classified) Error() string { return e.err.Error() }
func (e *classified) Unwrap() error { return e.err }

// NewTransientError wraps err as retryable, such as a 5xx response or a
// dropped connection.
func NewTransientError(err error) error {
	return &classified{err: err, retryable: true}
}

// NewFatalError wraps err as permanent. Fatal errors short-circuit the retry
// loop: bad credentials or a malformed request will not get better.
func NewFatalError(err error) error {
	return &classified{err: err, retryable: false}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var c *classified
	return errors.As(err, &c) && c.retryable
}

// IsFatal reports whether err is permanent.
func IsFatal(err error) bool {
	var c *classified
	return errors.As(err, &c) && !c.retryable
}
