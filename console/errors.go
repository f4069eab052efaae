package console

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/jmcleod/cardledger/client"
	"github.com/jmcleod/cardledger/history"
	"github.com/jmcleod/cardledger/portal"
	"github.com/jmcleod/cardledger/session"
	"github.com/jmcleod/cardledger/upload"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func mapError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	var (
		validation *upload.ValidationError
		decodeErr  *session.DecodeError
		apiErr     *client.APIError
		urlErr     *url.Error
	)
	switch {
	case errors.As(err, &validation), errors.Is(err, client.ErrInvalidValue):
		return http.StatusBadRequest
	case errors.Is(err, client.ErrUnauthorized),
		errors.As(err, &decodeErr),
		errors.Is(err, portal.ErrSignedOut),
		errors.Is(err, upload.ErrSignedOut),
		errors.Is(err, history.ErrSignedOut):
		return http.StatusUnauthorized
	case errors.Is(err, client.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, upload.ErrBusy),
		errors.Is(err, upload.ErrDetached),
		errors.Is(err, history.ErrSuperseded),
		errors.Is(err, history.ErrDetached):
		return http.StatusConflict
	case errors.Is(err, upload.ErrInconsistentResult), errors.As(err, &urlErr):
		return http.StatusBadGateway
	case errors.As(err, &apiErr):
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return apiErr.StatusCode
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
