package httpadapter

import (
	"net/http"

	"github.com/kirillkom/policy-radar/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrInvalidFilter),
		domain.IsKind(err, domain.ErrMalformedInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound),
		domain.IsKind(err, domain.ErrTemporary):
		// An index that is not loaded yet is a service state, not a missing resource.
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrProviderTimeout):
		return http.StatusGatewayTimeout
	case domain.IsKind(err, domain.ErrProviderUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
