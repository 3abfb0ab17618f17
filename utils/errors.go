package utils

import (
	"errors"
	"net/http"

	"github.com/appgeocercas/api/services"
)

// ErrorStatus maps err to the status code and short message written to the client.
// Anything that is not a domain error is a 500.
func ErrorStatus(err error) (int, string) {
	var domainErr *services.DomainError
	if !errors.As(err, &domainErr) {
		return http.StatusInternalServerError, MsgInternalError
	}

	switch domainErr.Type {
	case services.ErrorTypeUnauthenticated:
		return http.StatusUnauthorized, MsgUnauthorized
	case services.ErrorTypeNoOrganization:
		return http.StatusForbidden, MsgNoOrganization
	case services.ErrorTypeForbidden:
		return http.StatusForbidden, MsgForbidden
	case services.ErrorTypeValidation:
		return http.StatusBadRequest, MsgBadRequest
	default:
		return http.StatusInternalServerError, MsgInternalError
	}
}

// WriteServiceError writes the {ok:false} envelope for err and returns the status used
func WriteServiceError(w http.ResponseWriter, err error) (int, error) {
	status, message := ErrorStatus(err)
	return status, WriteError(w, status, message)
}
