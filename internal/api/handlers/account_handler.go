package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/dignitybank/dignity-be/internal/auth"
	"github.com/dignitybank/dignity-be/internal/services"
)

// AccountHandler handles the money-moving endpoints.
type AccountHandler struct {
	service services.AccountServiceProvider
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(service services.AccountServiceProvider) *AccountHandler {
	return &AccountHandler{service: service}
}

// AmountPayload carries a single amount, for deposits and withdrawals.
type AmountPayload struct {
	Amount decimal.Decimal `json:"amount"`
}

// TransferPayload carries a transfer request. Recipient is the recipient's
// account number, not a user id.
type TransferPayload struct {
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
}

// Deposit handles adding money to the authenticated user's account.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "Could not retrieve user from token", http.StatusInternalServerError)
		return
	}

	var payload AmountPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	balance, err := h.service.Deposit(r.Context(), userID, payload.Amount)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Deposit failed")
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Deposit successful",
		"balance": balance,
	})
}

// Withdraw handles removing money from the authenticated user's account.
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "Could not retrieve user from token", http.StatusInternalServerError)
		return
	}

	var payload AmountPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	balance, err := h.service.Withdraw(r.Context(), userID, payload.Amount)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Withdrawal failed")
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Withdrawal successful",
		"balance": balance,
	})
}

// Transfer handles moving money to another user's account.
func (h *AccountHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "Could not retrieve user from token", http.StatusInternalServerError)
		return
	}

	var payload TransferPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.Transfer(r.Context(), userID, payload.Recipient, payload.Amount); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Transfer failed")
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Transfer successful"})
}

// Transactions returns the authenticated user's transfer history.
func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "Could not retrieve user from token", http.StatusInternalServerError)
		return
	}

	records, err := h.service.TransfersForUser(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to list transactions")
		http.Error(w, "Failed to list transactions", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, records)
}
