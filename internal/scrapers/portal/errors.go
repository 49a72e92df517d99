package portal

import "fmt"

type Reason int

const (
	// ReasonRejected means the portal refused the credentials.
	ReasonRejected Reason = iota + 1
	// ReasonUnavailable means the portal could not be reached (dns, refused
	// connection, timeout) or answered with a server error.
	ReasonUnavailable
	// ReasonExpired means a page that requires a session came back as the
	// login page. It matches ErrRejected as well.
	ReasonExpired
)

func (r Reason) String() string {
	switch r {
	case ReasonRejected:
		return "rejected"
	case ReasonUnavailable:
		return "unavailable"
	case ReasonExpired:
		return "session expired"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// AuthError classifies why a session with the portal could not be
// established or used.
type AuthError struct {
	Reason Reason
	Err    error
}

var (
	ErrRejected       = &AuthError{Reason: ReasonRejected}
	ErrUnavailable    = &AuthError{Reason: ReasonUnavailable}
	ErrSessionExpired = &AuthError{Reason: ReasonExpired}
)

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("portal: %s", e.Reason)
	}
	return fmt.Sprintf("portal: %s: %s", e.Reason, e.Err.Error())
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches the sentinels by reason, an expired session is also a rejection.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok || t.Err != nil {
		return false
	}
	if t.Reason == e.Reason {
		return true
	}
	return t.Reason == ReasonRejected && e.Reason == ReasonExpired
}

func rejected(err error) error {
	return &AuthError{Reason: ReasonRejected, Err: err}
}

func unavailable(err error) error {
	return &AuthError{Reason: ReasonUnavailable, Err: err}
}

func expired(err error) error {
	return &AuthError{Reason: ReasonExpired, Err: err}
}
