package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/cartwise/internal/extract"
	"github.com/dukerupert/cartwise/internal/shopping"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps service errors onto HTTP statuses. Anything unrecognised is
// logged and reported as a 500 with the given message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, msg string) {
	var verr *shopping.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Message, "field": verr.Field})
	case errors.Is(err, shopping.ErrWorkspaceNotFound):
		writeMessage(w, http.StatusNotFound, "workspace not found")
	case errors.Is(err, extract.ErrExtraction):
		logger.WarnContext(r.Context(), "receipt extraction failed", "error", err)
		writeMessage(w, http.StatusBadGateway, "receipt analysis failed")
	default:
		logger.ErrorContext(r.Context(), msg, "error", err)
		writeMessage(w, http.StatusInternalServerError, msg)
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
