package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures coming back from the remote API.
type ErrorKind string

const (
	KindAuth       ErrorKind = "auth"
	KindValidation ErrorKind = "validation"
	KindNetwork    ErrorKind = "network"
	KindServer     ErrorKind = "server"
)

// Sentinels matched by APIError through errors.Is.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("request rejected")
	ErrNetwork      = errors.New("network error")
	ErrServer       = errors.New("server error")
)

var (
	ErrCommitInFlight        = errors.New("a step commit is already in progress")
	ErrStepMismatch          = errors.New("payload does not belong to the current step")
	ErrIncompletePayload     = errors.New("step payload is incomplete")
	ErrOnboardingUnavailable = errors.New("onboarding is not available for this session")
	ErrNotAuthenticated      = errors.New("not authenticated")
)

const (
	msgNetwork = "could not reach the server, please try again"
	msgServer  = "something went wrong on our side, please try again later"
	msgAuth    = "your session has expired, please log in again"
)

// APIError is returned by the transport for every non-2xx outcome.
type APIError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s error (status %d)", e.Kind, e.Status)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// Is matches the kind sentinel so callers can write errors.Is(err, ErrNetwork).
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Kind == KindAuth
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrServer:
		return e.Kind == KindServer
	}
	return false
}

// UserMessage is the text suitable for showing to the person who triggered
// the request.
func (e *APIError) UserMessage() string {
	switch e.Kind {
	case KindValidation:
		if e.Message != "" {
			return e.Message
		}
		return "the request was rejected"
	case KindNetwork:
		return msgNetwork
	case KindAuth:
		return msgAuth
	default:
		return msgServer
	}
}

// StatusKind maps an HTTP status (>= 400) to an ErrorKind.
func StatusKind(status int) ErrorKind {
	switch {
	case status == 401:
		return KindAuth
	case status >= 500:
		return KindServer
	default:
		return KindValidation
	}
}
