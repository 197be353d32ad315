package server

import (
	"encoding/json"
	"net/http"

	"anonamoose/internal/logger"
)

// errorResponse is the JSON body for every non-2xx management/proxy
// response, per §7's taxonomy. Internal errors never leak details.
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: message}) //nolint:errcheck
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeInternalError(w http.ResponseWriter, log *logger.Logger, err error) {
	log.Errorf("SERVER", "internal error: %v", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
