// Package storeapi реализует порты оформления поверх HTTP API магазина:
// аутентификация, адресная книга, расчёт доставки, заказы и корзина.
package storeapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/client"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// Config задаёт адрес и таймауты API магазина.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// SubmitTimeout ограничивает createOrder; 0 означает общий Timeout.
	SubmitTimeout time.Duration
	Breaker       client.BreakerConfig
}

// Client: клиент API магазина.
type Client struct {
	base          *client.Base
	submitTimeout time.Duration
}

var (
	_ domain.AuthService    = (*Client)(nil)
	_ domain.AddressBook    = (*Client)(nil)
	_ domain.ShippingQuoter = (*Client)(nil)
	_ domain.OrderService   = (*Client)(nil)
	_ domain.CartService    = (*Client)(nil)
)

// New создаёт клиента. logger может быть nil.
func New(cfg Config, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.WithField("component", "storeapi-client")
	}
	return &Client{
		base:          client.NewBase("storeapi", cfg.BaseURL, cfg.Timeout, cfg.Breaker, logger),
		submitTimeout: cfg.SubmitTimeout,
	}
}

// Login выполняет вход по email и паролю.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (domain.AuthSession, error) {
	var resp authResponse
	err := c.base.Do(ctx, client.Request{
		Op:     "login",
		Method: http.MethodPost,
		Path:   "/auth/login",
		Body:   creds,
	}, &resp)
	if err != nil {
		return domain.AuthSession{}, err
	}
	return domain.AuthSession{Token: resp.Token, Buyer: resp.Customer.toDomain()}, nil
}

// Register создаёт покупателя. Магазин сразу выдаёт токен.
func (c *Client) Register(ctx context.Context, reg domain.Registration) (domain.AuthSession, error) {
	var resp authResponse
	err := c.base.Do(ctx, client.Request{
		Op:     "register",
		Method: http.MethodPost,
		Path:   "/auth/register",
		Body: registerRequest{
			FirstName:            reg.FirstName,
			LastName:             reg.LastName,
			Email:                reg.Email,
			Phone:                reg.Phone,
			CPF:                  reg.TaxID,
			BirthDate:            reg.BirthDate,
			Password:             reg.Password,
			PasswordConfirmation: reg.PasswordConfirmation,
			Consents:             reg.Consents,
		},
	}, &resp)
	if err != nil {
		return domain.AuthSession{}, err
	}
	return domain.AuthSession{Token: resp.Token, Buyer: resp.Customer.toDomain()}, nil
}

// GetProfile возвращает профиль владельца токена.
func (c *Client) GetProfile(ctx context.Context) (domain.Buyer, error) {
	var resp customerDTO
	if err := c.base.Do(ctx, client.Request{Op: "getProfile", Method: http.MethodGet, Path: "/me"}, &resp); err != nil {
		return domain.Buyer{}, err
	}
	return resp.toDomain(), nil
}

// UpdateProfile дописывает CPF и телефон.
func (c *Client) UpdateProfile(ctx context.Context, update domain.ProfileUpdate) (domain.Buyer, error) {
	var resp customerDTO
	err := c.base.Do(ctx, client.Request{
		Op:     "updateProfile",
		Method: http.MethodPatch,
		Path:   "/me",
		Body:   profilePatch{CPF: update.TaxID, Phone: update.Phone},
	}, &resp)
	if err != nil {
		return domain.Buyer{}, err
	}
	return resp.toDomain(), nil
}

// ListAddresses возвращает адресную книгу покупателя.
func (c *Client) ListAddresses(ctx context.Context) ([]domain.SavedAddress, error) {
	var resp addressesResponse
	if err := c.base.Do(ctx, client.Request{Op: "listAddresses", Method: http.MethodGet, Path: "/me/addresses"}, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.SavedAddress, 0, len(resp.Addresses))
	for _, a := range resp.Addresses {
		out = append(out, a.toDomain())
	}
	return out, nil
}

// SaveAddress добавляет адрес в адресную книгу.
func (c *Client) SaveAddress(ctx context.Context, address domain.Address) (domain.SavedAddress, error) {
	var resp addressDTO
	err := c.base.Do(ctx, client.Request{
		Op:     "saveAddress",
		Method: http.MethodPost,
		Path:   "/me/addresses",
		Body:   addressFromDomain(address),
	}, &resp)
	if err != nil {
		return domain.SavedAddress{}, err
	}
	return resp.toDomain(), nil
}

// Quote рассчитывает варианты доставки.
func (c *Client) Quote(ctx context.Context, req domain.ShippingQuoteRequest) ([]domain.ShippingQuote, error) {
	var resp quotesResponse
	err := c.base.Do(ctx, client.Request{
		Op:     "quoteShipping",
		Method: http.MethodPost,
		Path:   "/shipping/quotes",
		Body: quoteRequest{
			PostalCode: req.PostalCode,
			Items:      itemsFromDomain(req.Items),
			Subtotal:   fromMinor(req.SubtotalMinor),
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	quotes := make([]domain.ShippingQuote, 0, len(resp.Quotes))
	for _, q := range resp.Quotes {
		quotes = append(quotes, q.toDomain())
	}
	return quotes, nil
}

// CreateOrder создаёт заказ. IdempotencyKey уходит заголовком Idempotency-Key.
func (c *Client) CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	headers := http.Header{}
	if req.IdempotencyKey != "" {
		headers.Set("Idempotency-Key", req.IdempotencyKey)
	}

	var resp orderResponse
	err := c.base.Do(ctx, client.Request{
		Op:      "createOrder",
		Method:  http.MethodPost,
		Path:    "/orders",
		Body:    orderFromDomain(req),
		Headers: headers,
		Timeout: c.submitTimeout,
	}, &resp)
	if err != nil {
		return domain.OrderResult{}, err
	}
	if resp.ID == "" {
		return domain.OrderResult{}, &domain.CollaboratorError{
			Op:  "createOrder",
			Err: fmt.Errorf("response without order id"),
		}
	}
	return resp.toDomain(), nil
}

// GetPaymentStatus читает статус оплаты заказа.
func (c *Client) GetPaymentStatus(ctx context.Context, orderID string) (domain.PaymentStatus, error) {
	var resp paymentStatusResponse
	err := c.base.Do(ctx, client.Request{
		Op:     "getPaymentStatus",
		Method: http.MethodGet,
		Path:   "/orders/" + url.PathEscape(orderID) + "/payment-status",
	}, &resp)
	if err != nil {
		return "", err
	}
	status := normalizeStatus(resp.Status)
	if !status.Valid() {
		return "", &domain.CollaboratorError{
			Op:  "getPaymentStatus",
			Err: fmt.Errorf("unknown payment status %q", resp.Status),
		}
	}
	return status, nil
}

// GetCart загружает корзину.
func (c *Client) GetCart(ctx context.Context, cartID string) (domain.Cart, error) {
	var resp cartResponse
	err := c.base.Do(ctx, client.Request{
		Op:     "getCart",
		Method: http.MethodGet,
		Path:   "/carts/" + url.PathEscape(cartID),
	}, &resp)
	if err != nil {
		return domain.Cart{}, err
	}
	cart := resp.toDomain()
	if cart.ID == "" {
		cart.ID = cartID
	}
	return cart, nil
}

// ClearCart удаляет все позиции корзины.
func (c *Client) ClearCart(ctx context.Context, cartID string) error {
	return c.base.Do(ctx, client.Request{
		Op:     "clearCart",
		Method: http.MethodDelete,
		Path:   "/carts/" + url.PathEscape(cartID) + "/items",
	}, nil)
}
