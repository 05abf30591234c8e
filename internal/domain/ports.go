package domain

import "context"

// AuthService: сервис аутентификации магазина. Токен берётся из контекста (WithAuthToken).
type AuthService interface {
	// Login проверяет учётные данные и возвращает токен с профилем.
	Login(ctx context.Context, creds Credentials) (AuthSession, error)
	// Register создаёт покупателя и сразу выполняет вход.
	Register(ctx context.Context, reg Registration) (AuthSession, error)
	// GetProfile возвращает профиль текущего покупателя.
	GetProfile(ctx context.Context) (Buyer, error)
	// UpdateProfile дописывает недостающие поля профиля.
	UpdateProfile(ctx context.Context, update ProfileUpdate) (Buyer, error)
}

// AddressBook: сохранённые адреса покупателя.
type AddressBook interface {
	ListAddresses(ctx context.Context) ([]SavedAddress, error)
	SaveAddress(ctx context.Context, address Address) (SavedAddress, error)
}

// PostalCodeDirectory разрешает индекс в части адреса.
type PostalCodeDirectory interface {
	Lookup(ctx context.Context, postalCode string) (PostalCodeResult, error)
}

// ShippingQuoter рассчитывает варианты доставки.
type ShippingQuoter interface {
	Quote(ctx context.Context, req ShippingQuoteRequest) ([]ShippingQuote, error)
}

// OrderService создаёт заказы и отдаёт статус оплаты.
type OrderService interface {
	CreateOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	GetPaymentStatus(ctx context.Context, orderID string) (PaymentStatus, error)
}

// CartService: корзина покупателя.
type CartService interface {
	GetCart(ctx context.Context, cartID string) (Cart, error)
	ClearCart(ctx context.Context, cartID string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

type authTokenKey struct{}

// WithAuthToken кладёт bearer-токен покупателя в контекст запроса.
func WithAuthToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, authTokenKey{}, token)
}

// AuthTokenFrom достаёт bearer-токен из контекста.
func AuthTokenFrom(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(authTokenKey{}).(string)
	return token, ok && token != ""
}
