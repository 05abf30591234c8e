// Package client содержит общую HTTP-обвязку клиентов внешних сервисов:
// circuit breaker, bearer-токен из контекста и разбор конвертов ошибок.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxFailures  = 5
	defaultOpenTimeout  = 30 * time.Second
	maxResponseBodySize = 1 << 20
)

// BreakerConfig задаёт параметры circuit breaker.
type BreakerConfig struct {
	// MaxFailures: сколько отказов подряд размыкают цепь.
	MaxFailures uint32
	// OpenTimeout: сколько цепь остаётся разомкнутой до пробного запроса.
	OpenTimeout time.Duration
}

// Response: сырой ответ сервиса.
type Response struct {
	StatusCode int
	Body       []byte
}

// Base выполняет JSON-запросы к одному сервису через общий circuit breaker.
type Base struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[*Response]
	logger  *log.Entry
}

// NewBase создаёт клиента. timeout ограничивает каждый вызов через контекст,
// Request.Timeout переопределяет его для отдельных операций; timeout <= 0 означает 10s.
func NewBase(name, baseURL string, timeout time.Duration, cfg BreakerConfig, logger *log.Entry) *Base {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = log.WithField("component", name+"-client")
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaultOpenTimeout
	}

	b := &Base{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: timeout,
		logger:  logger,
	}
	b.breaker = gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(log.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})
	return b
}

// isSuccessful не считает отказы 4xx: сервис жив, просто отклонил запрос.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var cerr *domain.CollaboratorError
	return errors.As(err, &cerr) && cerr.ClientFault()
}

// Request описывает один вызов.
type Request struct {
	Op      string
	Method  string
	Path    string
	Body    any
	Headers http.Header
	// Timeout заменяет таймаут клиента для этого вызова.
	Timeout time.Duration
}

// Do выполняет запрос и декодирует JSON-ответ в out (если out != nil).
// Ответы >= 400 возвращаются как *domain.CollaboratorError с сообщением из тела.
func (b *Base) Do(ctx context.Context, req Request, out any) error {
	timeout := b.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := b.breaker.Execute(func() (*Response, error) {
		return b.roundTrip(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &domain.CollaboratorError{
				Op:  req.Op,
				Err: fmt.Errorf("%w: %v", domain.ErrCollaboratorUnavailable, err),
			}
		}
		return err
	}

	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &domain.CollaboratorError{
			Op:         req.Op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

func (b *Base) roundTrip(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", req.Op, err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, b.baseURL+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", req.Op, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token, ok := domain.AuthTokenFrom(ctx); ok {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	for k, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	httpResp, err := b.http.Do(httpReq)
	if err != nil {
		b.logger.WithError(err).WithField("op", req.Op).Warn("request failed")
		return nil, &domain.CollaboratorError{
			Op:  req.Op,
			Err: fmt.Errorf("%w: %v", domain.ErrCollaboratorUnavailable, err),
		}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBodySize))
	if err != nil {
		return nil, &domain.CollaboratorError{
			Op:         req.Op,
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("%w: read body: %v", domain.ErrCollaboratorUnavailable, err),
		}
	}

	b.logger.WithFields(log.Fields{
		"op":          req.Op,
		"status":      httpResp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("collaborator call")

	resp := &Response{StatusCode: httpResp.StatusCode, Body: data}
	if httpResp.StatusCode >= http.StatusBadRequest {
		cerr := &domain.CollaboratorError{
			Op:         req.Op,
			StatusCode: httpResp.StatusCode,
			Message:    ExtractMessage(data),
		}
		if httpResp.StatusCode >= http.StatusInternalServerError {
			cerr.Err = domain.ErrCollaboratorUnavailable
		}
		return resp, cerr
	}
	return resp, nil
}

// errorEnvelope покрывает три формата ошибок магазина.
type errorEnvelope struct {
	Error  json.RawMessage `json:"error"`
	Msg    string          `json:"message"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// ExtractMessage достаёт текст для пользователя из
// {"error":{"code","message"}}, {"error":"..."}, {"message":"..."} или {"errors":[{"message":"..."}]}.
// Пустая строка означает, что тело не содержит сообщения.
func ExtractMessage(body []byte) string {
	var env errorEnvelope
	if len(bytes.TrimSpace(body)) == 0 || json.Unmarshal(body, &env) != nil {
		return ""
	}

	if len(env.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(env.Error, &nested) == nil && strings.TrimSpace(nested.Message) != "" {
			return strings.TrimSpace(nested.Message)
		}
		var plain string
		if json.Unmarshal(env.Error, &plain) == nil && strings.TrimSpace(plain) != "" {
			return strings.TrimSpace(plain)
		}
	}
	if msg := strings.TrimSpace(env.Msg); msg != "" {
		return msg
	}
	for _, e := range env.Errors {
		if msg := strings.TrimSpace(e.Message); msg != "" {
			return msg
		}
	}
	return ""
}
