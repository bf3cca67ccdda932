package http

import (
	"errors"
	"fmt"
)

type Handler func(req *Request) (*Response, error)

type Middleware func(next Handler) Handler

// StatusError is a failure the client should see with a specific status,
// rendered through the router's error page.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("http: %d %s", e.Status, StatusText(e.Status))
	}
	return fmt.Sprintf("http: %d %s: %v", e.Status, StatusText(e.Status), e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

func Error(status int, err error) error {
	return &StatusError{Status: status, Err: err}
}

func Errorf(status int, format string, args ...any) error {
	return &StatusError{Status: status, Err: fmt.Errorf(format, args...)}
}

// StatusOf reports the status carried by err, or 500.
func StatusOf(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status
	}
	return StatusInternalServerError
}

// ErrorPage renders the response for a synthesized error status.
type ErrorPage func(req *Request, status int) *Response

func PlainErrorPage(req *Request, status int) *Response {
	return Text(status, StatusText(status))
}
