package iss

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// TransientError wraps network failures, timeouts, throttling and 5xx
// responses. Callers may retry in a later cycle.
type TransientError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("iss %s: transient (%d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("iss %s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Temporary marks the error as retryable.
func (e *TransientError) Temporary() bool { return true }

// MalformedError reports a payload that does not have the expected shape.
// It is permanent for the identifier within the current cycle.
type MalformedError struct {
	Op    string
	Field string
	Err   error
}

func (e *MalformedError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("iss %s: malformed field %s: %v", e.Op, e.Field, e.Err)
	}
	return fmt.Sprintf("iss %s: malformed response: %v", e.Op, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

var (
	errMissing     = errors.New("missing")
	errNonPositive = errors.New("must be positive")
)

func malformed(op, field string, err error) error {
	return &MalformedError{Op: op, Field: field, Err: err}
}

// IsTransient reports whether err is a retryable fetch failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsMalformed reports whether err is a payload shape failure.
func IsMalformed(err error) bool {
	var me *MalformedError
	return errors.As(err, &me)
}

func parseHTTPError(op string, status int, payload []byte) error {
	body := strings.TrimSpace(string(payload))
	if len(body) > 256 {
		body = body[:256]
	}
	var err error
	if body != "" {
		err = fmt.Errorf("iss api error (%d): %s", status, body)
	} else {
		err = fmt.Errorf("iss api error (%d)", status)
	}
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		return &TransientError{Op: op, Status: status, Err: err}
	}
	return &MalformedError{Op: op, Err: err}
}
