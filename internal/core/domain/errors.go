package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ERROR_CANNOT_CONNECT ErrorCode = "cannot_connect"
	ERROR_INVALID_AUTH   ErrorCode = "invalid_auth"
	ERROR_FORBIDDEN_CALL ErrorCode = "forbidden_call"
	ERROR_TIMEOUT        ErrorCode = "timeout"
	ERROR_UNKNOWN        ErrorCode = "unknown"
)

type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConnectivity
	KindTimeout
	KindAuthentication
	KindAuthorization
	KindRemoteFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindTimeout:
		return "timeout"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindRemoteFailure:
		return "remote_failure"
	default:
		return "unknown"
	}
}

// Code is the error shown to the user in the form.
func (k ErrorKind) Code() ErrorCode {
	switch k {
	case KindConnectivity:
		return ERROR_CANNOT_CONNECT
	case KindTimeout:
		return ERROR_TIMEOUT
	case KindAuthentication:
		return ERROR_INVALID_AUTH
	case KindAuthorization:
		return ERROR_FORBIDDEN_CALL
	default:
		return ERROR_UNKNOWN
	}
}

// RemoteError tags a failed meters call with its kind.
type RemoteError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("elvia %s: %v", e.Kind, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("elvia %s: status %d", e.Kind, e.StatusCode)
	default:
		return fmt.Sprintf("elvia %s", e.Kind)
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a RemoteError anywhere in err's chain.
func KindOf(err error) ErrorKind {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Kind
	}
	return KindUnknown
}
