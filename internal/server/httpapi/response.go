package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/sessionkeeper/internal/api"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/transport"
)

// Error codes in the JSON envelope.
const (
	codeInvalidRefreshToken = "invalid_refresh_token"
	codeInvalidToken        = "invalid_token"
	codeTokenExpired        = "token_expired"
	codeUnauthorized        = "unauthorized"
	codeValidation          = "validation_error"
	codeConflict            = "already_exists"
	codeRateLimited         = "rate_limited"
	codeUnavailable         = "temporarily_unavailable"
	codeBadRequest          = "bad_request"
	codeInternal            = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, api.ErrorResponse{Error: code, Message: message})
}

// writeDomainError maps a service error to status and envelope. Internal
// details never reach the response.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case transport.IsInvalidRefresh(err):
		writeError(w, http.StatusUnauthorized, codeInvalidRefreshToken, "")
	case errors.Is(err, common.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, codeTokenExpired, "")
	case errors.Is(err, common.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, codeInvalidToken, "")
	case errors.Is(err, common.ErrorUnauthorized):
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid username or password")
	case errors.Is(err, common.ErrorValidation):
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
	case errors.Is(err, common.ErrorAlreadyExists):
		writeError(w, http.StatusConflict, codeConflict, "user already exists")
	case errors.Is(err, common.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, codeRateLimited, "")
	case errors.Is(err, common.ErrTransientStorage):
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, "")
	default:
		writeError(w, http.StatusInternalServerError, codeInternal, "")
	}
}

// maxBodyBytes bounds request bodies; every request here is a few hundred bytes.
const maxBodyBytes = 64 << 10

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid JSON body")
		return false
	}
	return true
}
