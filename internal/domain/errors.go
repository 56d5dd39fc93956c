package domain

import (
	"errors"
	"fmt"
)

// ErrNoActiveSession marks the normal "user has no session" branch
var ErrNoActiveSession = errors.New("no active session")

// RemoteAPIError is a non-2xx answer from the remote agent API
type RemoteAPIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("%s: remote api returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

// StoreUnavailableError wraps a session store connection or operation failure
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("session store %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

// IsStoreUnavailable reports whether err came from the session store backend
func IsStoreUnavailable(err error) bool {
	var storeErr *StoreUnavailableError
	return errors.As(err, &storeErr)
}

// IsRemoteAPIError reports whether err is a non-2xx remote API answer
func IsRemoteAPIError(err error) bool {
	var apiErr *RemoteAPIError
	return errors.As(err, &apiErr)
}
