package extract

import (
	"errors"
	"fmt"

	"keywatch/internal/model"
)

// Error wraps an extraction failure with its taxonomy kind so the refresh
// coordinator can decide between transient and durable handling.
type Error struct {
	Kind model.ErrorKind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", e.URL, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf classifies any error produced by this package. Unrecognized errors
// count as network failures, the transient default.
func KindOf(err error) model.ErrorKind {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return model.ErrorKindNetwork
}

func networkErr(url string, err error) error {
	return &Error{Kind: model.ErrorKindNetwork, URL: url, Err: err}
}

func notFoundErr(url string) error {
	return &Error{Kind: model.ErrorKindNotFound, URL: url, Err: errors.New("product page not found")}
}

func parseErr(url string, err error) error {
	return &Error{Kind: model.ErrorKindParse, URL: url, Err: err}
}
