package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// conflictErrors: нарушения порядка действий мастера, отвечаем 409.
var conflictErrors = []struct {
	err  error
	code string
}{
	{domain.ErrStepMismatch, "step_mismatch"},
	{domain.ErrCheckoutCompleted, "checkout_completed"},
	{domain.ErrSubmissionInProgress, "submission_in_progress"},
	{domain.ErrCheckoutVersionConflict, "version_conflict"},
	{domain.ErrFirstStep, "first_step"},
	{domain.ErrNoNextStep, "no_next_step"},
	{domain.ErrAlreadyAuthenticated, "already_authenticated"},
	{domain.ErrProfileComplete, "profile_complete"},
	{domain.ErrRecipientDerived, "recipient_derived"},
	{domain.ErrAddressReadOnly, "address_read_only"},
	{domain.ErrQuotesNotReady, "quotes_not_ready"},
	{domain.ErrPaymentMethodMismatch, "payment_method_mismatch"},
	{domain.ErrNotSubmitting, "not_submitting"},
	{domain.ErrStaleResponse, "stale_response"},
	{domain.ErrOrderNotPlaced, "order_not_placed"},
}

// unprocessableErrors: корректный JSON с недопустимыми значениями, отвечаем 422.
var unprocessableErrors = []struct {
	err  error
	code string
}{
	{domain.ErrSavedAddressNotFound, "saved_address_not_found"},
	{domain.ErrQuoteNotFound, "quote_not_found"},
	{domain.ErrUnknownPaymentMethod, "unknown_payment_method"},
	{domain.ErrCartEmpty, "cart_empty"},
}

// statusFor сопоставляет ошибку координатора с HTTP-статусом и телом ответа.
func statusFor(err error) (int, errorBody) {
	if verr, ok := domain.AsValidationError(err); ok {
		return http.StatusUnprocessableEntity, errorBody{
			Code:    "validation_failed",
			Message: "Please correct the highlighted fields.",
			Fields:  verr.Fields,
		}
	}
	if errors.Is(err, domain.ErrCheckoutNotFound) {
		return http.StatusNotFound, errorBody{Code: "checkout_not_found", Message: "Checkout not found."}
	}
	if errors.Is(err, domain.ErrNotAuthenticated) {
		return http.StatusUnauthorized, errorBody{Code: "not_authenticated", Message: "Please sign in to continue."}
	}

	var cerr *domain.CollaboratorError
	if errors.As(err, &cerr) {
		status := http.StatusBadGateway
		if cerr.ClientFault() {
			status = http.StatusUnprocessableEntity
		}
		return status, errorBody{Code: "collaborator_error", Message: domain.DisplayMessage(err)}
	}

	for _, c := range conflictErrors {
		if errors.Is(err, c.err) {
			return http.StatusConflict, errorBody{Code: c.code, Message: err.Error()}
		}
	}
	for _, c := range unprocessableErrors {
		if errors.Is(err, c.err) {
			return http.StatusUnprocessableEntity, errorBody{Code: c.code, Message: err.Error()}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, errorBody{Code: "timeout", Message: domain.DefaultDisplayMessage}
	}
	return http.StatusInternalServerError, errorBody{Code: "internal", Message: domain.DefaultDisplayMessage}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, body errorBody) {
	respondJSON(w, status, errorResponse{Error: body})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := statusFor(err)
	entry := h.logger.WithError(err).WithFields(log.Fields{
		"path":   r.URL.Path,
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	respondError(w, status, body)
}
