package storefront

import "github.com/vladislavdragonenkov/checkout/internal/domain"

// Демо-данные для локального запуска без store API.
const (
	DemoCartID   = "demo-cart"
	DemoEmail    = "ana@example.com"
	DemoPassword = "secret123"
)

// NewDemoService заполняет mock покупателем, корзиной и несколькими индексами.
func NewDemoService() *MockService {
	m := NewMockService()

	m.AddUser(domain.Buyer{
		CustomerID: "cust-demo",
		FirstName:  "Ana",
		LastName:   "Silva",
		Email:      DemoEmail,
		Phone:      "11987654321",
		BirthDate:  "1990-05-20",
	}, DemoPassword)
	m.AddAddress("cust-demo", domain.SavedAddress{
		ID:        "addr-home",
		Label:     "Home",
		IsDefault: true,
		Address: domain.Address{
			PostalCode: "01310100",
			Street:     "Avenida Paulista",
			Number:     "1578",
			District:   "Bela Vista",
			City:       "São Paulo",
			Region:     "SP",
		},
	})

	m.PutCart(domain.Cart{
		ID: DemoCartID,
		Items: []domain.LineItem{
			{ProductID: "tee-basic", Name: "Basic tee", Size: "M", Color: "black", Quantity: 2, UnitPriceMinor: 8990},
			{ProductID: "jeans-slim", Name: "Slim jeans", Size: "40", Color: "blue", Quantity: 1, UnitPriceMinor: 17020},
		},
		SubtotalMinor: 35000,
	})

	m.AddPostalCode("01001000", domain.PostalCodeResult{Street: "Praça da Sé", District: "Sé", City: "São Paulo", Region: "SP"})
	m.AddPostalCode("20040002", domain.PostalCodeResult{Street: "Rua da Assembleia", District: "Centro", City: "Rio de Janeiro", Region: "RJ"})
	m.AddPostalCode("70040010", domain.PostalCodeResult{City: "Brasília", Region: "DF"})
	return m
}
