package adapter

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"fashion-script-studio/internal/gemini"
)

type Kind int

const (
	KindGeneric Kind = iota
	KindCredential
)

func (k Kind) String() string {
	if k == KindCredential {
		return "credential"
	}
	return "generic"
}

// Error tags every failure that leaves the adapter so the workflow can tell a
// rejected credential apart from anything else.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func IsCredential(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == KindCredential
}

func wrap(op string, err error) *Error {
	return &Error{Kind: classify(err), Op: op, Err: err}
}

func classify(err error) Kind {
	if err == nil {
		return KindGeneric
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindGeneric
	}
	if errors.Is(err, gemini.ErrMissingAPIKey) {
		return KindCredential
	}
	if code, ok := gemini.StatusCode(err); ok {
		if code == http.StatusUnauthorized || code == http.StatusForbidden {
			return KindCredential
		}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"api key", "api_key", "permission_denied"} {
		if strings.Contains(msg, marker) {
			return KindCredential
		}
	}
	return KindGeneric
}
