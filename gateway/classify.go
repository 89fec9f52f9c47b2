package gateway

import (
	"errors"
	"net/http"
	"strings"
)

// errInstanceMissing marks a "not found" mid-flow so the connect pipeline
// can absorb it with one re-creation cycle. Never surfaced to callers.
var errInstanceMissing = errors.New("gateway instance missing")

// isNotFound reports whether a gateway response means the instance does
// not exist. Different gateway versions phrase this differently, some
// with a 404 and some with an error message in a 400.
func isNotFound(status int, body []byte) bool {
	if status == http.StatusNotFound {
		return true
	}
	l := strings.ToLower(string(body))
	return strings.Contains(l, "does not exist") ||
		strings.Contains(l, "not found") ||
		strings.Contains(l, "instance not")
}

// isAlreadyExists reports whether a create was refused because the
// instance name is taken. That is success for an idempotent ensure.
func isAlreadyExists(status int, body []byte) bool {
	if status == http.StatusConflict {
		return true
	}
	l := strings.ToLower(string(body))
	return strings.Contains(l, "already in use") ||
		strings.Contains(l, "already exists") ||
		strings.Contains(l, "is already")
}
