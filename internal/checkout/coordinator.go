package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	"github.com/vladislavdragonenkov/checkout/internal/validation"
)

const (
	dispatchMaxAttempts = 3
	dispatchBaseDelay   = 10 * time.Millisecond
	// defaultSubmitTimeout ограничивает createOrder независимо от отмены входящего запроса.
	defaultSubmitTimeout = 30 * time.Second
)

// Dependencies: внешние зависимости координатора.
type Dependencies struct {
	Checkouts domain.CheckoutRepository
	Outbox    domain.OutboxRepository
	Timeline  domain.TimelineRepository

	Auth        domain.AuthService
	Addresses   domain.AddressBook
	PostalCodes domain.PostalCodeDirectory
	Shipping    domain.ShippingQuoter
	Orders      domain.OrderService
	Carts       domain.CartService
}

// Option настраивает координатор.
type Option func(*Coordinator)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics включает prometheus-метрики.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithValidator задаёт валидатор форм.
func WithValidator(v *validation.Validator) Option {
	return func(c *Coordinator) {
		if v != nil {
			c.validator = v
		}
	}
}

// WithCardSecretTTL задаёт, сколько номер карты и CVV хранятся в памяти между запросами.
func WithCardSecretTTL(d time.Duration) Option {
	return func(c *Coordinator) { c.cards = newCardVault(d) }
}

// WithSubmitTimeout задаёт таймаут вызова createOrder.
func WithSubmitTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.submitTimeout = d
		}
	}
}

// Coordinator связывает редьюсер с хранилищем и внешними сервисами.
// Каждое изменение состояния проходит через dispatch: загрузка, Reduce, сохранение с optimistic locking.
type Coordinator struct {
	checkouts domain.CheckoutRepository
	outbox    domain.OutboxRepository
	timeline  domain.TimelineRepository

	auth        domain.AuthService
	addresses   domain.AddressBook
	postalCodes domain.PostalCodeDirectory
	shipping    domain.ShippingQuoter
	orders      domain.OrderService
	carts       domain.CartService

	reducer       *Reducer
	validator     *validation.Validator
	metrics       *metrics.CheckoutMetrics
	logger        *log.Entry
	now           func() time.Time
	submitTimeout time.Duration
	cards         *cardVault
}

// NewCoordinator создаёт координатор. Метрики по умолчанию выключены.
func NewCoordinator(deps Dependencies, opts ...Option) *Coordinator {
	c := &Coordinator{
		checkouts:     deps.Checkouts,
		outbox:        deps.Outbox,
		timeline:      deps.Timeline,
		auth:          deps.Auth,
		addresses:     deps.Addresses,
		postalCodes:   deps.PostalCodes,
		shipping:      deps.Shipping,
		orders:        deps.Orders,
		carts:         deps.Carts,
		logger:        log.New().WithField("component", "checkout"),
		now:           func() time.Time { return time.Now().UTC() },
		submitTimeout: defaultSubmitTimeout,
		cards:         newCardVault(defaultCardSecretTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.validator == nil {
		c.validator = validation.New()
	}
	c.reducer = NewReducer(c.validator)
	return c
}

// StartInput: параметры новой сессии.
type StartInput struct {
	CartID string
}

// Start открывает сессию: снимает корзину и, если токен есть, загружает профиль и адреса.
func (c *Coordinator) Start(ctx context.Context, in StartInput) (domain.Checkout, error) {
	cart, err := c.fetchCart(ctx, in.CartID)
	if err != nil {
		return domain.Checkout{}, err
	}
	if cart.Empty() {
		return domain.Checkout{}, domain.ErrCartEmpty
	}

	now := c.now()
	session := domain.Checkout{
		ID:   uuid.NewString(),
		Step: domain.StepBuyerIdentity,
		Cart: cart,
		Delivery: domain.Delivery{
			RecipientSameAsBuyer: true,
			SaveAddress:          true,
			Lookup:               domain.PostalCodeLookup{Status: domain.RequestIdle},
			Quotes:               domain.ShippingQuotes{Status: domain.RequestIdle},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, ok := domain.AuthTokenFrom(ctx); ok {
		buyer, err := c.loadProfile(ctx)
		if err != nil {
			c.logger.WithError(err).Warn("profile fetch failed, starting as guest")
		} else {
			session.Buyer = &buyer
			session.SavedAddresses = c.loadSavedAddresses(ctx)
			syncDerivedRecipient(&session)
		}
	}

	if err := c.checkouts.Create(ctx, session); err != nil {
		return domain.Checkout{}, err
	}
	if c.metrics != nil {
		c.metrics.RecordSessionStarted()
	}
	c.appendTimeline(ctx, session.ID, domain.TimelineCheckoutStarted, session.Step, "")
	c.logger.WithFields(log.Fields{
		"checkout_id":   session.ID,
		"authenticated": session.Authenticated(),
		"items":         len(cart.Items),
	}).Info("checkout started")
	return session, nil
}

// Get возвращает текущее состояние сессии.
func (c *Coordinator) Get(ctx context.Context, id string) (domain.Checkout, error) {
	return c.checkouts.Get(ctx, id)
}

// Timeline возвращает журнал событий сессии.
func (c *Coordinator) Timeline(ctx context.Context, id string) ([]domain.TimelineEvent, error) {
	if _, err := c.checkouts.Get(ctx, id); err != nil {
		return nil, err
	}
	if c.timeline == nil {
		return nil, nil
	}
	return c.timeline.List(ctx, id)
}

// Advance переходит на следующий шаг, если текущий заполнен.
// При незаполненных полях состояние не меняется, возвращается *domain.ValidationError.
func (c *Coordinator) Advance(ctx context.Context, id string) (domain.Checkout, error) {
	next, err := c.dispatch(ctx, id, Advance{})
	if err != nil {
		return next, err
	}
	if next.Step == domain.StepDelivery {
		return c.refreshDelivery(ctx, next)
	}
	return next, nil
}

// Retreat возвращает на предыдущий шаг; данные шагов сохраняются.
func (c *Coordinator) Retreat(ctx context.Context, id string) (domain.Checkout, error) {
	next, err := c.dispatch(ctx, id, Retreat{})
	if err != nil {
		return next, err
	}
	if next.Step == domain.StepDelivery {
		return c.refreshDelivery(ctx, next)
	}
	return next, nil
}

// dispatch применяет действие с повторами при конфликте версий (3 попытки, экспоненциальная пауза).
// Номер карты и CVV берутся из памяти процесса и в хранилище не сохраняются.
func (c *Coordinator) dispatch(ctx context.Context, id string, action Action) (domain.Checkout, error) {
	for attempt := 0; attempt < dispatchMaxAttempts; attempt++ {
		cur, err := c.checkouts.Get(ctx, id)
		if err != nil {
			return domain.Checkout{}, err
		}
		now := c.now()
		c.cards.restore(&cur, now)

		next, err := c.reducer.Reduce(cur, action, now)
		if err != nil {
			c.recordRejected(id, action, err)
			return cur, err
		}

		if err := c.checkouts.Save(ctx, next.WithoutCardSecrets()); err != nil {
			if domain.IsVersionConflict(err) && attempt < dispatchMaxAttempts-1 {
				c.logger.WithFields(log.Fields{
					"checkout_id": id,
					"action":      action.Name(),
					"attempt":     attempt + 1,
					"version":     cur.Version,
				}).Warn("version conflict detected, retrying")

				delay := dispatchBaseDelay * time.Duration(1<<uint(attempt))
				select {
				case <-ctx.Done():
					return cur, ctx.Err()
				case <-time.After(delay):
				}
				continue
			}
			c.logger.WithError(err).WithFields(log.Fields{
				"checkout_id": id,
				"action":      action.Name(),
			}).Error("failed to persist checkout")
			return cur, err
		}

		next.Version = cur.Version + 1
		c.cards.keep(next, now)
		c.afterTransition(ctx, cur, next, action)
		return next, nil
	}
	return domain.Checkout{}, domain.ErrCheckoutVersionConflict
}

func (c *Coordinator) recordRejected(id string, action Action, err error) {
	entry := c.logger.WithFields(log.Fields{"checkout_id": id, "action": action.Name()})
	result := metrics.ResultRejected

	switch {
	case errors.Is(err, domain.ErrStaleResponse):
		result = metrics.ResultStale
		entry.Debug("stale response discarded")
		if c.metrics != nil {
			c.metrics.RecordStaleResponse(staleKind(action))
		}
	case isValidation(err):
		result = metrics.ResultInvalid
		entry.WithError(err).Debug("action rejected by validation")
	default:
		entry.WithError(err).Debug("action rejected")
	}
	if c.metrics != nil {
		c.metrics.RecordAction(action.Name(), result)
	}
}

func (c *Coordinator) afterTransition(ctx context.Context, prev, next domain.Checkout, action Action) {
	if c.metrics != nil {
		c.metrics.RecordAction(action.Name(), metrics.ResultOK)
	}
	if prev.Step == next.Step {
		return
	}
	if c.metrics != nil {
		c.metrics.RecordStepTransition(string(prev.Step), string(next.Step))
	}
	eventType := domain.TimelineStepAdvanced
	if next.Step.Index() < prev.Step.Index() {
		eventType = domain.TimelineStepRetreated
	}
	c.appendTimeline(ctx, next.ID, eventType, next.Step, "")
	c.logger.WithFields(log.Fields{
		"checkout_id": next.ID,
		"from":        prev.Step,
		"to":          next.Step,
	}).Info("checkout step changed")
}

func (c *Coordinator) appendTimeline(ctx context.Context, id, eventType string, step domain.Step, reason string) {
	if c.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		CheckoutID: id,
		Type:       eventType,
		Step:       step,
		Reason:     reason,
		Occurred:   c.now(),
	}
	if err := c.timeline.Append(ctx, event); err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"checkout_id": id,
			"event":       eventType,
		}).Warn("append timeline event failed")
	}
}

// observe оборачивает вызов внешнего сервиса метрикой длительности.
func (c *Coordinator) observe(op string, start time.Time, err error) {
	if c.metrics != nil {
		c.metrics.ObserveCollaborator(op, err, time.Since(start))
	}
}

func isValidation(err error) bool {
	_, ok := domain.AsValidationError(err)
	return ok
}

func staleKind(action Action) string {
	switch action.(type) {
	case PostalCodeResolved, PostalCodeFailed:
		return "lookup"
	case QuotesResolved, QuotesFailed:
		return "quotes"
	default:
		return "other"
	}
}
