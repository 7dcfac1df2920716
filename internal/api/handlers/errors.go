package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dignitybank/dignity-be/internal/services"
)

// writeServiceError maps the account service's contract errors onto
// transport statuses. Unrecognized errors are persistence failures and stay
// opaque to the client.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInsufficientBalance),
		errors.Is(err, services.ErrSelfTransfer):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrInvalidCredentials):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, services.ErrAccountNotFound),
		errors.Is(err, services.ErrSenderAccountNotFound),
		errors.Is(err, services.ErrRecipientAccountNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrDuplicateUsername):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
