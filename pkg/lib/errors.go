package lib

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/slok/meshforge/internal/api"
)

var (
	// ErrNotFound is returned when the job does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotValid is returned when the server rejects the request input.
	ErrNotValid = errors.New("not valid")
	// ErrConflict is returned when the operation can't be applied on the job state
	// (e.g. cancelling a finished job) or the server is at its job capacity.
	ErrConflict = errors.New("conflict")
)

// APIError is returned when the server answers a request with an error status.
//
// It matches [ErrNotValid], [ErrNotFound] and [ErrConflict] with [errors.Is]
// depending on the status code.
type APIError struct {
	// StatusCode is the HTTP status code of the response.
	StatusCode int
	// Message is the error message returned by the server.
	Message string
	// Details are the individual problems found, mostly on validation errors.
	Details []string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("meshforge API error (%d): %s", e.StatusCode, e.Message)
	if len(e.Details) > 0 {
		msg += ": " + strings.Join(e.Details, "; ")
	}
	return msg
}

func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return target == ErrNotValid
	case http.StatusNotFound:
		return target == ErrNotFound
	case http.StatusConflict:
		return target == ErrConflict
	}
	return false
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	var rerr *api.ResponseError
	if errors.As(err, &rerr) {
		return &APIError{
			StatusCode: rerr.StatusCode,
			Message:    rerr.Message,
			Details:    rerr.Details,
		}
	}

	return err
}
