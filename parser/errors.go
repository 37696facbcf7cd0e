package parser

import (
	"errors"
	"fmt"
)

// ParseError reports that an expected pattern or key was absent from a
// fetched document.
type ParseError struct {
	Action string
	URL    string
	Reason string
	Err    error
}

func (e ParseError) Error() string {
	msg := fmt.Sprintf("parse: %s %s: %s", e.Action, e.URL, e.Reason)
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e ParseError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err wraps a ParseError.
func IsParseError(err error) bool {
	var pe ParseError
	return errors.As(err, &pe)
}

func newParseError(action, url, reason string, err error) ParseError {
	return ParseError{Action: action, URL: url, Reason: reason, Err: err}
}
