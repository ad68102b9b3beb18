package httpadapter

import (
	"net/http"

	"github.com/hyeonsoft/billscan/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrJobNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrAlreadyTerminal):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
