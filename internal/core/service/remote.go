package service

import (
	"net/http"

	"github.com/berfenger/elvia2mqtt/internal/core/domain"
	"github.com/berfenger/elvia2mqtt/pkg/elvia"
)

func statusError(statusCode int) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return &domain.RemoteError{Kind: domain.KindAuthentication, StatusCode: statusCode}
	case http.StatusForbidden:
		return &domain.RemoteError{Kind: domain.KindAuthorization, StatusCode: statusCode}
	default:
		return &domain.RemoteError{Kind: domain.KindRemoteFailure, StatusCode: statusCode}
	}
}

func transportError(err error) error {
	switch {
	case elvia.IsTimeout(err):
		return &domain.RemoteError{Kind: domain.KindTimeout, Err: err}
	case elvia.IsConnectionError(err):
		return &domain.RemoteError{Kind: domain.KindConnectivity, Err: err}
	default:
		return &domain.RemoteError{Kind: domain.KindUnknown, Err: err}
	}
}
