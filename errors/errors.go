// Package errors defines the sentinel errors surfaced by the access-control
// core. All of them represent caller or data errors and are returned to the
// immediate caller unmodified; transient storage failures are wrapped by the
// repositories instead.
package errors

import "errors"

var (
	// Entity lookups.
	ErrDomainNotFound  = errors.New("domain not found")
	ErrProjectNotFound = errors.New("project not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrGroupNotFound   = errors.New("group not found")
	ErrRoleNotFound    = errors.New("role not found")
	ErrTokenNotFound   = errors.New("token not found")
	ErrTrustNotFound   = errors.New("trust not found")

	// ErrGrantNotFound covers the relationship case: the role exists but is
	// not assigned on the given (actor, target) pair.
	ErrGrantNotFound = errors.New("grant not found")

	// ErrConflict is returned for duplicate names within a naming scope and
	// for duplicate grant keys.
	ErrConflict = errors.New("conflict")

	// ErrValidation is returned for malformed input, e.g. an empty name or a
	// non-positive remaining-uses count on a trust.
	ErrValidation = errors.New("validation error")

	// ErrForbidden is returned when the operation is well-formed but not
	// permitted: deleting an enabled domain, delegating a role the trustor
	// does not hold, requesting a scoped token without any role on the scope.
	ErrForbidden = errors.New("forbidden action")

	// ErrUnauthorized is returned on credential mismatch at authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTrustConsumed is the storage-level signal that a conditional
	// use-count decrement found no uses left. Services translate it to
	// ErrTrustNotFound before it reaches callers; exhausted trusts are
	// observationally equivalent to absent ones.
	ErrTrustConsumed = errors.New("trust has no remaining uses")
)
