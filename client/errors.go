package client

import "errors"

var (
	// ErrSessionExpired is returned to every request that was waiting on a
	// refresh that failed. The caller must re-authenticate.
	ErrSessionExpired = errors.New("session expired")
	// ErrInvalidCredentials is returned by Login/Register when the server
	// rejects the submitted credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotAuthenticated is returned by operations that require a session.
	ErrNotAuthenticated = errors.New("not authenticated")
)
