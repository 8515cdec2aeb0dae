package netbox

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthorized is wrapped by BackendError on 401 and 403 responses
	ErrNotAuthorized = errors.New("not authorized")

	// ErrMultipleResults is returned when a natural-key lookup matches more than one record
	ErrMultipleResults = errors.New("lookup matched more than one record")

	// ErrUnexpectedStatus is wrapped by BackendError on any other non-2xx response
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// BackendError describes a failed NetBox API call.
// StatusCode is zero when the request never got a response.
type BackendError struct {
	Op         string // get, create, status, provision
	Resource   string // e.g. "dcim/devices"
	StatusCode int
	Body       string
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		if e.Body != "" {
			return fmt.Sprintf("netbox %s %s: status %d: %s", e.Op, e.Resource, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("netbox %s %s: status %d", e.Op, e.Resource, e.StatusCode)
	}
	return fmt.Sprintf("netbox %s %s: %v", e.Op, e.Resource, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
