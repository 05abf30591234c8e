package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrCheckoutNotFound возвращается, если сессия оформления не найдена в репозитории.
	ErrCheckoutNotFound = errors.New("checkout not found")
	// ErrCheckoutExists возвращается при повторном создании сессии с тем же ID.
	ErrCheckoutExists = errors.New("checkout already exists")
	// ErrCheckoutVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrCheckoutVersionConflict = errors.New("checkout version conflict")
	// ErrCheckoutCompleted — заказ уже оформлен, сессия доступна только для чтения.
	ErrCheckoutCompleted = errors.New("checkout already completed")
	// ErrStepMismatch — действие не относится к текущему шагу.
	ErrStepMismatch = errors.New("action is not allowed on the current step")
	// ErrFirstStep — шаг назад с первого шага невозможен.
	ErrFirstStep = errors.New("already on the first step")
	// ErrNoNextStep — дальше подтверждения двигаться некуда, нужна финализация.
	ErrNoNextStep = errors.New("no step after confirmation")
	// ErrSubmissionInProgress — заказ уже отправляется.
	ErrSubmissionInProgress = errors.New("order submission in progress")
	// ErrNotSubmitting — результат отправки пришёл без активной отправки.
	ErrNotSubmitting = errors.New("order submission was not started")
	// ErrStaleResponse — асинхронный ответ устарел и отброшен.
	ErrStaleResponse = errors.New("stale response discarded")

	// ErrNotAuthenticated — операция требует вошедшего покупателя.
	ErrNotAuthenticated = errors.New("buyer is not authenticated")
	// ErrAlreadyAuthenticated — покупатель уже вошёл.
	ErrAlreadyAuthenticated = errors.New("buyer is already authenticated")
	// ErrProfileComplete — профиль уже содержит все обязательные поля.
	ErrProfileComplete = errors.New("buyer profile is already complete")

	// ErrRecipientDerived — получатель выводится из покупателя и не редактируется.
	ErrRecipientDerived = errors.New("recipient is derived from the buyer")
	// ErrAddressReadOnly — выбран сохранённый адрес, поля формы только для чтения.
	ErrAddressReadOnly = errors.New("address fields are read-only while a saved address is selected")
	// ErrSavedAddressNotFound — сохранённый адрес не найден в адресной книге покупателя.
	ErrSavedAddressNotFound = errors.New("saved address not found")
	// ErrQuotesNotReady — варианты доставки ещё не рассчитаны.
	ErrQuotesNotReady = errors.New("shipping quotes are not ready")
	// ErrQuoteNotFound — вариант доставки отсутствует в текущем списке.
	ErrQuoteNotFound = errors.New("shipping quote not found")
	// ErrPostalCodeNotFound — индекс не найден справочником.
	ErrPostalCodeNotFound = errors.New("postal code not found")

	// ErrUnknownPaymentMethod — неизвестный способ оплаты.
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	// ErrPaymentMethodMismatch — данные карты для способа оплаты без карты.
	ErrPaymentMethodMismatch = errors.New("card details require the card payment method")
	// ErrCartEmpty — корзина пуста, оформлять нечего.
	ErrCartEmpty = errors.New("cart is empty")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы корзины и сумм позиций.
	ErrAmountMismatch = errors.New("cart subtotal does not match items sum")
	// ErrOrderNotPlaced — заказ по сессии ещё не создан.
	ErrOrderNotPlaced = errors.New("order has not been placed")

	// ErrCollaboratorUnavailable — внешний сервис недоступен (circuit breaker открыт).
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrCheckoutVersionConflict)
}

// ValidationError собирает сообщения по полям: одно сообщение на поле, все сразу.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError создаёт пустой набор ошибок.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// Add добавляет сообщение для поля. Первое сообщение по полю выигрывает.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; exists {
		return
	}
	e.Fields[field] = message
}

// Merge переносит сообщения другого набора с префиксом.
func (e *ValidationError) Merge(prefix string, other *ValidationError) {
	if other == nil {
		return
	}
	for field, msg := range other.Fields {
		e.Add(prefix+field, msg)
	}
}

// Empty сообщает, что ошибок нет.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// OrNil возвращает nil для пустого набора, чтобы не получить typed-nil error.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// AsValidationError извлекает ValidationError из цепочки.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

// CollaboratorError описывает отказ внешнего сервиса вместе с сообщением для пользователя.
type CollaboratorError struct {
	// Op — имя операции (login, createOrder, ...).
	Op string
	// StatusCode — HTTP-статус ответа, 0 для сетевых ошибок.
	StatusCode int
	// Message — текст, пригодный для показа пользователю.
	Message string
	Err     error
}

func (e *CollaboratorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// ClientFault сообщает, что сервис отклонил запрос (4xx), а не отказал сам.
func (e *CollaboratorError) ClientFault() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// DefaultDisplayMessage показывается, если ошибка не несёт собственного текста.
const DefaultDisplayMessage = "Something went wrong. Please try again."

// DisplayMessage возвращает строку для показа пользователю.
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}
	var cerr *CollaboratorError
	if errors.As(err, &cerr) && strings.TrimSpace(cerr.Message) != "" {
		return cerr.Message
	}
	if errors.Is(err, ErrCollaboratorUnavailable) {
		return "Service temporarily unavailable. Please try again in a moment."
	}
	return DefaultDisplayMessage
}
