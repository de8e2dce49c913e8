package passport

import "errors"

// VerifyError kinds, per spec §4.1 / §7 (all map to HTTP 401 at the pipeline).
var (
	ErrExpired       = errors.New("passport: expired")
	ErrBadSignature  = errors.New("passport: bad signature")
	ErrMalformed     = errors.New("passport: malformed")
	ErrRevoked       = errors.New("passport: revoked")
	ErrInvalidConfig = errors.New("passport: invalid configuration")
)
