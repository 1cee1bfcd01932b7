package uploader

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData means the store held nothing to upload
	ErrNoData = errors.New("no data to upload")
	// ErrNoValidData means every stored record failed the wire transform
	ErrNoValidData = errors.New("no valid data to upload")
	// ErrTransport covers connection failures, timeouts and an open breaker
	ErrTransport = errors.New("upload transport failure")
	// ErrServerRejected matches every ServerRejectedError
	ErrServerRejected = errors.New("upload rejected by server")
	// ErrMalformedResponse means a 200 reply without a usable session id
	ErrMalformedResponse = errors.New("malformed upload response")
	// ErrCycleInProgress is returned when a drain is already running
	ErrCycleInProgress = errors.New("upload cycle already in progress")
	// ErrMissingCredential is returned by New when no token is configured
	ErrMissingCredential = errors.New("upload token not configured")
)

// ServerRejectedError carries the non-success status of an upload
type ServerRejectedError struct {
	StatusCode int
	Body       string
}

func (e *ServerRejectedError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upload rejected by server: status %d", e.StatusCode)
	}
	return fmt.Sprintf("upload rejected by server: status %d: %s", e.StatusCode, e.Body)
}

// Is makes errors.Is(err, ErrServerRejected) hold
func (e *ServerRejectedError) Is(target error) bool { return target == ErrServerRejected }
