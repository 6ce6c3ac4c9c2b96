package gcal

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	"google.golang.org/api/googleapi"
)

// ErrNotFound is returned when the remote event does not exist or was deleted.
var ErrNotFound = errors.New("remote event not found")

// ErrConflict is returned when an insert reuses an existing event id.
var ErrConflict = errors.New("remote event id already exists")

// TransientError marks a failure worth retrying: rate limits, 5xx, network.
type TransientError struct {
	Code int
	Err  error
}

func (e *TransientError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("transient remote error (%d): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("transient remote error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsConflict reports whether an insert collided with an existing id.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound reports whether err means the remote event is gone.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
}

// classify maps Google API failures onto ErrNotFound and TransientError.
// Other errors pass through unchanged and are not retried.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone:
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case gerr.Code == http.StatusConflict:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
			return &TransientError{Code: gerr.Code, Err: err}
		case gerr.Code == http.StatusForbidden:
			for _, item := range gerr.Errors {
				if rateLimitReasons[item.Reason] {
					return &TransientError{Code: gerr.Code, Err: err}
				}
			}
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransientError{Err: err}
	}
	return err
}
