package common

import "errors"

var (

	// repository specific errors
	ErrNotFound = errors.New("not found")

	// request-level errors: these abort the whole request
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")

	// per-change rejection reasons: these never escape a push batch,
	// they are reported back in aggregate as rejected ids
	ErrPermissionDenied    = errors.New("permission denied")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrMalformedChange     = errors.New("malformed change")
)
