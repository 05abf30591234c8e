package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/checkout/internal/checkout"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type startRequest struct {
	CartID string `json:"cart_id"`
}

type authResponse struct {
	Token    string       `json:"token"`
	Checkout checkoutView `json:"checkout"`
}

type profileRequest struct {
	TaxID         string `json:"tax_id"`
	Phone         string `json:"phone"`
	SaveToProfile *bool  `json:"save_to_profile"`
}

type flagRequest struct {
	Value *bool `json:"value"`
}

type savedAddressRequest struct {
	AddressID string `json:"address_id"`
}

type postalCodeRequest struct {
	PostalCode string `json:"postal_code"`
}

type quoteRequest struct {
	QuoteID string `json:"quote_id"`
}

type paymentMethodRequest struct {
	Method domain.PaymentMethod `json:"method"`
}

var errEmptyBody = errors.New("request body is empty")

// decode читает JSON-тело. Ошибки разбора отдаются клиенту как 400.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		err = errEmptyBody
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, errorBody{Code: "invalid_request", Message: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func requireFlag(w http.ResponseWriter, f flagRequest) (bool, bool) {
	if f.Value == nil {
		respondError(w, http.StatusBadRequest, errorBody{Code: "invalid_request", Message: "value is required"})
		return false, false
	}
	return *f.Value, true
}

func checkoutID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

func (h *Handler) respondCheckout(w http.ResponseWriter, r *http.Request, status int, c domain.Checkout, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, status, newCheckoutView(c))
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decode(w, r, &req) {
		return
	}
	if req.CartID == "" {
		respondError(w, http.StatusBadRequest, errorBody{Code: "invalid_request", Message: "cart_id is required"})
		return
	}
	c, err := h.coord.Start(r.Context(), checkout.StartInput{CartID: req.CartID})
	h.respondCheckout(w, r, http.StatusCreated, c, err)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	c, err := h.coord.Get(r.Context(), checkoutID(r))
	h.respondCheckout(w, r, http.StatusOK, c, err)
}

func (h *Handler) advance(w http.ResponseWriter, r *http.Request) {
	c, err := h.coord.Advance(r.Context(), checkoutID(r))
	h.respondCheckout(w, r, http.StatusOK, c, err)
}

func (h *Handler) retreat(w http.ResponseWriter, r *http.Request) {
	c, err := h.coord.Retreat(r.Context(), checkoutID(r))
	h.respondCheckout(w, r, http.StatusOK, c, err)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	events, err := h.coord.Timeline(r.Context(), checkoutID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if events == nil {
		events = []domain.TimelineEvent{}
	}
	respondJSON(w, http.StatusOK, timelineView{Events: events})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var creds domain.Credentials
	if !decode(w, r, &creds) {
		return
	}
	res, err := h.coord.Login(r.Context(), checkoutID(r), creds)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, authResponse{Token: res.Token, Checkout: newCheckoutView(res.Checkout)})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var reg domain.Registration
	if !decode(w, r, &reg) {
		return
	}
	res, err := h.coord.Register(r.Context(), checkoutID(r), reg)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, authResponse{Token: res.Token, Checkout: newCheckoutView(res.Checkout)})
}

func (h *Handler) completeProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.coord.CompleteProfile(r.Context(), checkoutID(r), checkout.ProfileCompletion{
		TaxID:         req.TaxID,
		Phone:         req.Phone,
		SaveToProfile: req.SaveToProfile,
	})
	h.respondCheckout(w, r, http.StatusOK, c, err)
}

func (h *Handler) setRecipientSameAsBuyer(w http.ResponseWriter, r *http.Request) {
	var req flagRequest
	if !decode(w, r, &req) {
		return
	}
	value, ok := requireFlag(w, req)
	if !ok {
		return
	}
	c, err := h.coord.SetRecipientSameAsBuyer(r.Context(), checkoutID(r), value)
	h.respondCheckout(w, r, http.StatusOK, c, err)
}

func (h *Handler) setRecipient(w http.ResponseWriter, r *http.Request) {
	var req domain.Recipient
	if !decode(w, r, &req) {
		return
	}
	c, err := h.coord.SetRecipient(r.Context(), checkoutID(r), req)
	h.respondCheckout(w, r, http.StatusOK, c, err)
}

func (h *Handler) selectSavedAddress(w http.ResponseWriter, r *http.Request) {
	var req savedAddressRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.coord.SelectSavedAddress(r.Context(), checkoutID(r), req.AddressID)
	h.respondCheckout(w, r, http.StatusOK, c, err)
}

func (h *Handler) clearSavedAddress(w http.ResponseWriter, r *http.Request) {
	c, err := h.coord.ClearSavedAddress(r.Context(), checkoutID(r))
	h.respondCheckout(w, r, http.StatusOK, c, err)
}

func (h *Handler) setPostalCode(w http.ResponseWriter, r *http.Request) {
	var req postalCodeRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.coord.SetPostalCode(r.Context(), checkoutID(r), req.PostalCode)
	h.respondCheckout(w, r, http.StatusOK, c, err)
}

func (h *Handler) editAddress(w http.ResponseWriter, r *http.Request) {
	var patch domain.AddressPatch
	if !decode(w, r, &patch) {
		return
	}
	c, err := h.coord.EditAddress(r.Context(), checkoutID(r), patch)
	h.respondCheckout(w, r, http.StatusOK, c, err)
}

func (h *Handler) setSaveAddress(w http.ResponseWriter, r *http.Request) {
	var req flagRequest
	if !decode(w, r, &req) {
		return
	}
	value, ok := requireFlag(w, req)
	if !ok {
		return
	}
	c, err := h.coord.SetSaveAddress(r.Context(), checkoutID(r), value)
	h.respondCheckout(w, r, http.StatusOK, c, err)
}

func (h *Handler) selectShippingQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.coord.SelectShippingQuote(r.Context(), checkoutID(r), req.QuoteID)
	h.respondCheckout(w, r, http.StatusOK, c, err)
}

func (h *Handler) refreshCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.coord.RefreshCart(r.Context(), checkoutID(r))
	h.respondCheckout(w, r, http.StatusOK, c, err)
}

func (h *Handler) selectPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req paymentMethodRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.coord.SelectPaymentMethod(r.Context(), checkoutID(r), req.Method)
	h.respondCheckout(w, r, http.StatusOK, c, err)
}

func (h *Handler) updateCard(w http.ResponseWriter, r *http.Request) {
	var patch domain.CardPatch
	if !decode(w, r, &patch) {
		return
	}
	c, err := h.coord.UpdateCard(r.Context(), checkoutID(r), patch)
	h.respondCheckout(w, r, http.StatusOK, c, err)
}

func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	c, err := h.coord.Finalize(r.Context(), checkoutID(r))
	h.respondCheckout(w, r, http.StatusOK, c, err)
}

func (h *Handler) orderStatus(w http.ResponseWriter, r *http.Request) {
	id := checkoutID(r)
	c, err := h.coord.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if c.OrderResult == nil {
		h.fail(w, r, domain.ErrOrderNotPlaced)
		return
	}
	status, err := h.coord.OrderStatus(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orderStatusView{OrderID: c.OrderResult.OrderID, PaymentStatus: status})
}
