package identity

import "errors"

// Verification failure kinds. Match them with errors.Is on a *TokenError.
var (
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token expired")
	ErrWrongPurpose     = errors.New("token has wrong purpose")
)

// TokenError reports why a verification token was rejected.
type TokenError struct {
	Kind error
	Err  error
}

func (e *TokenError) Error() string {
	if e.Err != nil {
		return e.Kind.Error() + ": " + e.Err.Error()
	}
	return e.Kind.Error()
}

// Is reports whether target is the failure kind of e.
func (e *TokenError) Is(target error) bool { return target == e.Kind }

func (e *TokenError) Unwrap() error { return e.Err }
