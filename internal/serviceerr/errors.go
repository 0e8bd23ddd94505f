package serviceerr

import "errors"

var ErrNotFound = errors.New("not found")
var ErrInvalidRequest = errors.New("invalid request")
var ErrInvalidState = errors.New("invalid state")

// Errors of the membership action flow. Every action failure wraps exactly one of them.
var (
	ErrConnection    = errors.New("identity provider connection failed")
	ErrNoIdentity    = errors.New("no active identity")
	ErrSubmission    = errors.New("action submission failed")
	ErrResolution    = errors.New("action result resolution failed")
	ErrDecode        = errors.New("unexpected result payload")
	ErrAuthorization = errors.New("not authorized")
	ErrTimeout       = errors.New("timed out waiting for result")
)
