// Package httpapi: REST API сессий оформления поверх checkout.Coordinator.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/checkout"
)

const (
	defaultRequestTimeout = 15 * time.Second
	maxRequestBodySize    = 1 << 20
)

// Handler обслуживает HTTP-запросы к сессиям оформления.
type Handler struct {
	coord   *checkout.Coordinator
	logger  *log.Entry
	timeout time.Duration
}

// Option настраивает Handler.
type Option func(*Handler)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithRequestTimeout ограничивает время обработки запроса.
func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// NewHandler создаёт обработчик.
func NewHandler(coord *checkout.Coordinator, opts ...Option) *Handler {
	h := &Handler{
		coord:   coord,
		logger:  log.WithField("component", "http-api"),
		timeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes собирает chi-роутер с middleware.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.timeout))
	r.Use(middleware.RequestSize(maxRequestBodySize))
	r.Use(bearerToken)

	r.Route("/api/v1/checkouts", func(r chi.Router) {
		r.Post("/", h.start)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Post("/advance", h.advance)
			r.Post("/retreat", h.retreat)
			r.Get("/timeline", h.timeline)

			r.Post("/buyer/login", h.login)
			r.Post("/buyer/register", h.register)
			r.Post("/buyer/profile", h.completeProfile)

			r.Put("/delivery/recipient-same-as-buyer", h.setRecipientSameAsBuyer)
			r.Put("/delivery/recipient", h.setRecipient)
			r.Put("/delivery/saved-address", h.selectSavedAddress)
			r.Delete("/delivery/saved-address", h.clearSavedAddress)
			r.Put("/delivery/postal-code", h.setPostalCode)
			r.Patch("/delivery/address", h.editAddress)
			r.Put("/delivery/save-address", h.setSaveAddress)
			r.Put("/delivery/shipping-quote", h.selectShippingQuote)
			r.Post("/cart/refresh", h.refreshCart)

			r.Put("/payment/method", h.selectPaymentMethod)
			r.Patch("/payment/card", h.updateCard)

			r.Post("/finalize", h.finalize)
			r.Get("/order-status", h.orderStatus)
		})
	})

	return r
}
