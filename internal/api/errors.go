package api

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuery is returned before any request is made when the caller's
	// arguments are malformed.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrNetwork covers transport failures: dial, DNS, timeouts and cancellation.
	ErrNetwork = errors.New("network error")
	// ErrRemote is matched by every *RemoteError.
	ErrRemote = errors.New("remote error")
	// ErrParse is returned when a response body is not valid JSON or does not
	// match the expected schema.
	ErrParse = errors.New("parse error")
)

// maxErrorBody caps how much of a failed response is kept for diagnostics.
const maxErrorBody = 4 << 10

// RemoteError is returned when the service answers with a non-2xx status.
type RemoteError struct {
	StatusCode int
	URL        string
	Body       []byte
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: status %d from %s: %s", ErrRemote, e.StatusCode, e.URL, e.Body)
}

// Is makes errors.Is(err, ErrRemote) hold for any RemoteError.
func (e *RemoteError) Is(target error) bool {
	return target == ErrRemote
}
