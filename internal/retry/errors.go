package retry

import "errors"

// ErrExhausted is returned when a bounded policy runs out of attempts.
// The last operation error is wrapped alongside it.
var ErrExhausted = errors.New("retry: attempts exhausted")
