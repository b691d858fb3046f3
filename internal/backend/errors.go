package backend

import (
	"fmt"
	"net/http"

	"github.com/fieldscan/fieldscan/internal/errors"
)

// Sentinel errors for status codes the client reacts to
var (
	ErrNotImplemented = errors.NewStd("backend: not implemented")
	ErrRouteNotFound  = errors.NewStd("backend: route not found")
	ErrUnauthorized   = errors.NewStd("backend: unauthorized")
	ErrRejected       = errors.NewStd("backend: submission rejected")
)

func statusError(method, path string, status int, body []byte) error {
	var base error
	category := errors.CategoryHTTP
	switch status {
	case http.StatusNotImplemented:
		base = ErrNotImplemented
	case http.StatusNotFound:
		base = ErrRouteNotFound
	case http.StatusUnauthorized:
		base = ErrUnauthorized
		category = errors.CategoryAuth
	default:
		base = fmt.Errorf("backend: unexpected status %d", status)
	}
	return errors.New(base).
		Component("backend").
		Category(category).
		Context("method", method).
		Context("path", path).
		Context("status", status).
		Context("body", truncate(string(body), 256)).
		Build()
}

func transportError(err error, method, path string) error {
	return errors.New(err).
		Component("backend").
		Category(errors.CategoryNetwork).
		Context("method", method).
		Context("path", path).
		Build()
}

func decodeError(err error, path string) error {
	return errors.New(fmt.Errorf("backend: malformed response: %w", err)).
		Component("backend").
		Category(errors.CategoryFileParsing).
		Context("path", path).
		Build()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
