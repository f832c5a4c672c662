package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or rejected input.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate indicates a uniqueness violation, e.g. a role key already taken.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrConflict indicates the operation cannot proceed while references exist.
	ErrConflict = errors.New("conflict")
	// ErrScope indicates an administration request outside the actor's tenant
	// or against a reserved role. Distinct from a missing grant.
	ErrScope = errors.New("scope violation")
	// ErrUnauthorized indicates no authenticated actor on the request.
	ErrUnauthorized = errors.New("unauthorized")
)
