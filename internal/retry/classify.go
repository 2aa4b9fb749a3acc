// Package retry implements the transport retry policy shared by model and
// embedding calls. Only transport failures are retried; content problems are
// the caller's concern.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
)

type Class int

const (
	ClassUnknown Class = iota
	ClassTimeout
	ClassRateLimit
	ClassServer
	ClassClient
	ClassCanceled
)

func (c Class) String() string {
	switch c {
	case ClassTimeout:
		return "timeout"
	case ClassRateLimit:
		return "rate_limit"
	case ClassServer:
		return "server"
	case ClassClient:
		return "client"
	case ClassCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failure of this class may succeed on a later
// attempt.
func (c Class) Retryable() bool {
	switch c {
	case ClassTimeout, ClassRateLimit, ClassServer, ClassUnknown:
		return true
	}
	return false
}

// StatusError carries an HTTP status code extracted from an SDK error.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// WithStatus wraps err with code unless code is zero.
func WithStatus(code int, err error) error {
	if err == nil || code == 0 {
		return err
	}
	return &StatusError{Code: code, Err: err}
}

var statusCodeRe = regexp.MustCompile(`status(?:\s+code)?[:=\s]+(\d{3})`)

// Classify maps a transport error to a failure class.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	if errors.Is(err, context.Canceled) {
		return ClassCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ClassTimeout
	}
	var se *StatusError
	if errors.As(err, &se) {
		return classifyStatus(se.Code)
	}
	msg := strings.ToLower(err.Error())
	if m := statusCodeRe.FindStringSubmatch(msg); len(m) == 2 {
		var code int
		fmt.Sscanf(m[1], "%d", &code)
		return classifyStatus(code)
	}
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return ClassRateLimit
	case strings.Contains(msg, "server error"), strings.Contains(msg, "overloaded"):
		return ClassServer
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "connection reset"), strings.Contains(msg, "eof"):
		return ClassServer
	}
	return ClassUnknown
}

func classifyStatus(code int) Class {
	switch {
	case code == 429:
		return ClassRateLimit
	case code == 408:
		return ClassTimeout
	case code >= 500:
		return ClassServer
	case code >= 400:
		return ClassClient
	}
	return ClassUnknown
}
