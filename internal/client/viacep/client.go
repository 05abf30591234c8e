// Package viacep разрешает бразильские индексы через API формата ViaCEP.
package viacep

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/client"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/validation"
)

// DefaultBaseURL: публичный ViaCEP.
const DefaultBaseURL = "https://viacep.com.br/ws"

// NotFoundMessage показывается под полем индекса, если справочник его не знает.
const NotFoundMessage = "Postal code not found"

// Config задаёт адрес справочника.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Breaker client.BreakerConfig
}

// Client: справочник индексов.
type Client struct {
	base *client.Base
}

var _ domain.PostalCodeDirectory = (*Client)(nil)

// New создаёт клиента ViaCEP.
func New(cfg Config, logger *log.Entry) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = log.WithField("component", "viacep-client")
	}
	return &Client{base: client.NewBase("viacep", cfg.BaseURL, cfg.Timeout, cfg.Breaker, logger)}
}

// notFoundFlag принимает "erro": true и "erro": "true".
type notFoundFlag bool

func (f *notFoundFlag) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = notFoundFlag(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = notFoundFlag(s == "true")
	return nil
}

type lookupResponse struct {
	Logradouro string       `json:"logradouro"`
	Bairro     string       `json:"bairro"`
	Localidade string       `json:"localidade"`
	UF         string       `json:"uf"`
	Erro       notFoundFlag `json:"erro"`
}

// Lookup разрешает восьмизначный индекс. Неизвестный индекс: CollaboratorError 404
// поверх domain.ErrPostalCodeNotFound.
func (c *Client) Lookup(ctx context.Context, postalCode string) (domain.PostalCodeResult, error) {
	digits := validation.Digits(postalCode)
	if len(digits) != domain.PostalCodeLength {
		return domain.PostalCodeResult{}, notFound()
	}

	var resp lookupResponse
	err := c.base.Do(ctx, client.Request{
		Op:     "lookupPostalCode",
		Method: http.MethodGet,
		Path:   "/" + digits + "/json/",
	}, &resp)
	if err != nil {
		return domain.PostalCodeResult{}, err
	}
	if resp.Erro {
		return domain.PostalCodeResult{}, notFound()
	}

	return domain.PostalCodeResult{
		Street:   resp.Logradouro,
		District: resp.Bairro,
		City:     resp.Localidade,
		Region:   resp.UF,
	}, nil
}

func notFound() error {
	return &domain.CollaboratorError{
		Op:         "lookupPostalCode",
		StatusCode: http.StatusNotFound,
		Message:    NotFoundMessage,
		Err:        domain.ErrPostalCodeNotFound,
	}
}
