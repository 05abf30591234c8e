// Package storefront содержит in-memory реализацию сервисов магазина для локального запуска и тестов.
package storefront

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type mockUser struct {
	password string
	buyer    domain.Buyer
	token    string
}

// MockService: конфигурируемая заглушка всех сервисов магазина.
// Ошибки *Err возвращаются вместо нормального ответа, хуки вызываются до ответа и вне блокировки.
type MockService struct {
	LoginErr         error
	RegisterErr      error
	UpdateProfileErr error
	ListAddressesErr error
	SaveAddressErr   error
	LookupErr        error
	QuoteErr         error
	CreateOrderErr   error
	ClearCartErr     error

	// CardStatus: статус оплаты картой, по умолчанию PAID.
	CardStatus domain.PaymentStatus
	// QuoteFunc подменяет расчёт тарифов.
	QuoteFunc func(req domain.ShippingQuoteRequest) []domain.ShippingQuote
	// LookupHook и QuoteHook позволяют тестам задержать ответ.
	LookupHook func(postalCode string)
	QuoteHook  func(postalCode string)

	mu          sync.Mutex
	now         func() time.Time
	users       map[string]*mockUser
	tokens      map[string]string
	addresses   map[string][]domain.SavedAddress
	carts       map[string]domain.Cart
	postalCodes map[string]domain.PostalCodeResult
	statuses    map[string]domain.PaymentStatus
	byKey       map[string]domain.OrderResult
	orders      []domain.OrderRequest
	calls       map[string]int
	seq         int
}

// NewMockService возвращает пустой mock с успешным сценарием по умолчанию.
func NewMockService() *MockService {
	return &MockService{
		CardStatus:  domain.PaymentStatusPaid,
		now:         func() time.Time { return time.Now().UTC() },
		users:       make(map[string]*mockUser),
		tokens:      make(map[string]string),
		addresses:   make(map[string][]domain.SavedAddress),
		carts:       make(map[string]domain.Cart),
		postalCodes: make(map[string]domain.PostalCodeResult),
		statuses:    make(map[string]domain.PaymentStatus),
		byKey:       make(map[string]domain.OrderResult),
		calls:       make(map[string]int),
	}
}

// SetClock подменяет время (сроки мгновенного перевода).
func (m *MockService) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// AddUser регистрирует покупателя и возвращает его токен.
func (m *MockService) AddUser(buyer domain.Buyer, password string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addUserLocked(buyer, password)
}

func (m *MockService) addUserLocked(buyer domain.Buyer, password string) string {
	m.seq++
	if buyer.CustomerID == "" {
		buyer.CustomerID = fmt.Sprintf("cust-%d", m.seq)
	}
	token := "token-" + buyer.CustomerID
	email := strings.ToLower(buyer.Email)
	m.users[email] = &mockUser{password: password, buyer: buyer, token: token}
	m.tokens[token] = email
	return token
}

// AddAddress добавляет адрес в адресную книгу покупателя.
func (m *MockService) AddAddress(customerID string, addr domain.SavedAddress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addresses[customerID] = append(m.addresses[customerID], addr)
}

// PutCart кладёт корзину.
func (m *MockService) PutCart(cart domain.Cart) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[cart.ID] = cart
}

// Cart возвращает текущее содержимое корзины.
func (m *MockService) Cart(id string) (domain.Cart, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[id]
	return cart, ok
}

// AddPostalCode добавляет запись справочника индексов.
func (m *MockService) AddPostalCode(code string, res domain.PostalCodeResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.postalCodes[code] = res
}

// SetPaymentStatus меняет статус оплаты заказа (например, перевод оплачен).
func (m *MockService) SetPaymentStatus(orderID string, status domain.PaymentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[orderID] = status
}

// Calls возвращает количество вызовов операции.
func (m *MockService) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Orders возвращает все принятые запросы createOrder.
func (m *MockService) Orders() []domain.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OrderRequest(nil), m.orders...)
}

// Addresses возвращает адресную книгу покупателя.
func (m *MockService) Addresses(customerID string) []domain.SavedAddress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.SavedAddress(nil), m.addresses[customerID]...)
}

// Profile возвращает профиль по email.
func (m *MockService) Profile(email string) (domain.Buyer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[strings.ToLower(email)]
	if !ok {
		return domain.Buyer{}, false
	}
	return u.buyer, true
}

func (m *MockService) count(op string) {
	m.mu.Lock()
	m.calls[op]++
	m.mu.Unlock()
}

func fail(op string, status int, message string, cause error) error {
	return &domain.CollaboratorError{Op: op, StatusCode: status, Message: message, Err: cause}
}

func (m *MockService) currentUserLocked(ctx context.Context, op string) (*mockUser, error) {
	token, ok := domain.AuthTokenFrom(ctx)
	if !ok {
		return nil, fail(op, http.StatusUnauthorized, "Please sign in again.", domain.ErrNotAuthenticated)
	}
	email, ok := m.tokens[token]
	if !ok {
		return nil, fail(op, http.StatusUnauthorized, "Please sign in again.", domain.ErrNotAuthenticated)
	}
	return m.users[email], nil
}

// Login проверяет email и пароль.
func (m *MockService) Login(_ context.Context, creds domain.Credentials) (domain.AuthSession, error) {
	m.count("login")
	if m.LoginErr != nil {
		return domain.AuthSession{}, m.LoginErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[strings.ToLower(creds.Email)]
	if !ok || u.password != creds.Password {
		return domain.AuthSession{}, fail("login", http.StatusUnauthorized, "Invalid email or password", nil)
	}
	return domain.AuthSession{Token: u.token, Buyer: u.buyer}, nil
}

// Register создаёт покупателя; email должен быть уникальным.
func (m *MockService) Register(_ context.Context, reg domain.Registration) (domain.AuthSession, error) {
	m.count("register")
	if m.RegisterErr != nil {
		return domain.AuthSession{}, m.RegisterErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[strings.ToLower(reg.Email)]; exists {
		return domain.AuthSession{}, fail("register", http.StatusConflict, "An account with this email already exists", nil)
	}
	token := m.addUserLocked(domain.Buyer{
		FirstName: reg.FirstName,
		LastName:  reg.LastName,
		Email:     reg.Email,
		Phone:     reg.Phone,
		TaxID:     reg.TaxID,
		BirthDate: reg.BirthDate,
	}, reg.Password)
	return domain.AuthSession{Token: token, Buyer: m.users[strings.ToLower(reg.Email)].buyer}, nil
}

// GetProfile возвращает профиль владельца токена.
func (m *MockService) GetProfile(ctx context.Context) (domain.Buyer, error) {
	m.count("getProfile")
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.currentUserLocked(ctx, "getProfile")
	if err != nil {
		return domain.Buyer{}, err
	}
	return u.buyer, nil
}

// UpdateProfile дописывает непустые поля.
func (m *MockService) UpdateProfile(ctx context.Context, update domain.ProfileUpdate) (domain.Buyer, error) {
	m.count("updateProfile")
	if m.UpdateProfileErr != nil {
		return domain.Buyer{}, m.UpdateProfileErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.currentUserLocked(ctx, "updateProfile")
	if err != nil {
		return domain.Buyer{}, err
	}
	if update.TaxID != "" {
		u.buyer.TaxID = update.TaxID
	}
	if update.Phone != "" {
		u.buyer.Phone = update.Phone
	}
	return u.buyer, nil
}

// ListAddresses возвращает адресную книгу владельца токена.
func (m *MockService) ListAddresses(ctx context.Context) ([]domain.SavedAddress, error) {
	m.count("listAddresses")
	if m.ListAddressesErr != nil {
		return nil, m.ListAddressesErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.currentUserLocked(ctx, "listAddresses")
	if err != nil {
		return nil, err
	}
	return append([]domain.SavedAddress(nil), m.addresses[u.buyer.CustomerID]...), nil
}

// SaveAddress добавляет адрес в адресную книгу.
func (m *MockService) SaveAddress(ctx context.Context, addr domain.Address) (domain.SavedAddress, error) {
	m.count("saveAddress")
	if m.SaveAddressErr != nil {
		return domain.SavedAddress{}, m.SaveAddressErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.currentUserLocked(ctx, "saveAddress")
	if err != nil {
		return domain.SavedAddress{}, err
	}
	m.seq++
	saved := domain.SavedAddress{ID: fmt.Sprintf("addr-%d", m.seq), Address: addr}
	m.addresses[u.buyer.CustomerID] = append(m.addresses[u.buyer.CustomerID], saved)
	return saved, nil
}

// Lookup разрешает индекс по справочнику.
func (m *MockService) Lookup(_ context.Context, postalCode string) (domain.PostalCodeResult, error) {
	m.count("lookup")
	if m.LookupHook != nil {
		m.LookupHook(postalCode)
	}
	if m.LookupErr != nil {
		return domain.PostalCodeResult{}, m.LookupErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.postalCodes[postalCode]
	if !ok {
		return domain.PostalCodeResult{}, fail("lookupPostalCode", http.StatusNotFound, "Postal code not found", domain.ErrPostalCodeNotFound)
	}
	return res, nil
}

// FreeShippingThresholdMinor: с какой суммы PAC бесплатный.
const FreeShippingThresholdMinor = 29900

// Quote рассчитывает PAC и SEDEX.
func (m *MockService) Quote(_ context.Context, req domain.ShippingQuoteRequest) ([]domain.ShippingQuote, error) {
	m.count("quote")
	if m.QuoteHook != nil {
		m.QuoteHook(req.PostalCode)
	}
	if m.QuoteErr != nil {
		return nil, m.QuoteErr
	}
	if m.QuoteFunc != nil {
		return m.QuoteFunc(req), nil
	}
	pac := domain.ShippingQuote{ID: "pac", Label: "PAC", Description: "Standard delivery", CostMinor: 1990, EtaDaysMin: 5, EtaDaysMax: 8}
	if req.SubtotalMinor >= FreeShippingThresholdMinor {
		pac.CostMinor = 0
		pac.IsFree = true
	}
	sedex := domain.ShippingQuote{ID: "sedex", Label: "SEDEX", Description: "Express delivery", CostMinor: 3490, EtaDaysMin: 1, EtaDaysMax: 3}
	return []domain.ShippingQuote{pac, sedex}, nil
}

// CreateOrder принимает заказ. Повтор с тем же ключом идемпотентности возвращает тот же результат.
func (m *MockService) CreateOrder(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	m.count("createOrder")
	if m.CreateOrderErr != nil {
		return domain.OrderResult{}, m.CreateOrderErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.IdempotencyKey != "" {
		if res, ok := m.byKey[req.IdempotencyKey]; ok {
			return res, nil
		}
	}

	m.seq++
	now := m.now()
	res := domain.OrderResult{
		OrderID:     fmt.Sprintf("ord-%d", m.seq),
		OrderNumber: fmt.Sprintf("#%06d", m.seq),
		PlacedAt:    now,
	}
	switch req.Payment.Method {
	case domain.PaymentMethodInstantTransfer:
		res.PaymentStatus = domain.PaymentStatusPending
		res.InstantTransfer = &domain.InstantTransfer{
			Code:      "00020126580014br.gov.bcb.pix0136" + res.OrderID,
			ExpiresAt: now.Add(domain.InstantTransferWindow),
		}
	default:
		res.PaymentStatus = m.CardStatus
	}

	m.orders = append(m.orders, req)
	m.statuses[res.OrderID] = res.PaymentStatus
	if req.IdempotencyKey != "" {
		m.byKey[req.IdempotencyKey] = res
	}
	return res, nil
}

// GetPaymentStatus возвращает текущий статус оплаты.
func (m *MockService) GetPaymentStatus(_ context.Context, orderID string) (domain.PaymentStatus, error) {
	m.count("getPaymentStatus")
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.statuses[orderID]
	if !ok {
		return "", fail("getPaymentStatus", http.StatusNotFound, "Order not found", nil)
	}
	return status, nil
}

// GetCart возвращает корзину.
func (m *MockService) GetCart(_ context.Context, cartID string) (domain.Cart, error) {
	m.count("getCart")
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[cartID]
	if !ok {
		return domain.Cart{}, fail("getCart", http.StatusNotFound, "Cart not found", nil)
	}
	cart.Items = append([]domain.LineItem(nil), cart.Items...)
	return cart, nil
}

// ClearCart очищает корзину после заказа.
func (m *MockService) ClearCart(_ context.Context, cartID string) error {
	m.count("clearCart")
	if m.ClearCartErr != nil {
		return m.ClearCartErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cart, ok := m.carts[cartID]; ok {
		cart.Items = nil
		cart.SubtotalMinor = 0
		m.carts[cartID] = cart
	}
	return nil
}

var (
	_ domain.AuthService         = (*MockService)(nil)
	_ domain.AddressBook         = (*MockService)(nil)
	_ domain.PostalCodeDirectory = (*MockService)(nil)
	_ domain.ShippingQuoter      = (*MockService)(nil)
	_ domain.OrderService        = (*MockService)(nil)
	_ domain.CartService         = (*MockService)(nil)
)
