package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"pagechat/internal/chat"
	"pagechat/internal/gateway"
	"pagechat/internal/interpreter"
	"pagechat/internal/obsidian"
	"pagechat/internal/providers"
	"pagechat/internal/settings"
)

const maxBodyBytes = 8 << 20

func respondWithJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondWithError(w http.ResponseWriter, status int, msg string) {
	respondWithJSON(w, status, map[string]string{"error": msg})
}

// decode reads a JSON body into dst and runs its Validate method when it has one.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if v, ok := dst.(validation.Validatable); ok {
		if err := v.Validate(); err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return false
		}
	}
	return true
}

func statusFor(err error) int {
	var httpErr *providers.HTTPError
	switch {
	case errors.Is(err, settings.ErrModelNotFound),
		errors.Is(err, settings.ErrProviderNotFound),
		errors.Is(err, chat.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, gateway.ErrMissingAPIKey),
		errors.Is(err, interpreter.ErrNoPromptVariables),
		errors.Is(err, obsidian.ErrMissingNoteName):
		return http.StatusUnprocessableEntity
	case errors.Is(err, settings.ErrNoEnabledModels),
		errors.Is(err, interpreter.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.As(err, &httpErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondWithErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	respondWithError(w, status, err.Error())
}
