package domain

import "strings"

// PostalCodeLength: длина бразильского CEP в цифрах.
const PostalCodeLength = 8

// Recipient: кто получает посылку.
type Recipient struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

// Address: адрес доставки. PostalCode хранится только цифрами.
type Address struct {
	PostalCode string `json:"postal_code"`
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	City       string `json:"city"`
	Region     string `json:"region"`
}

// PostalCodeComplete сообщает, что индекс набран полностью.
func (a Address) PostalCodeComplete() bool {
	return len(a.PostalCode) == PostalCodeLength
}

// MissingFields перечисляет незаполненные обязательные поля адреса.
func (a Address) MissingFields() []string {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check("street", a.Street)
	check("number", a.Number)
	check("district", a.District)
	check("city", a.City)
	check("region", a.Region)
	return missing
}

// SavedAddress: адрес из адресной книги покупателя.
type SavedAddress struct {
	ID        string  `json:"id"`
	Label     string  `json:"label,omitempty"`
	IsDefault bool    `json:"is_default,omitempty"`
	Address   Address `json:"address"`
}

// AddressPatch: частичное редактирование полей формы адреса.
type AddressPatch struct {
	Street     *string `json:"street,omitempty"`
	Number     *string `json:"number,omitempty"`
	Complement *string `json:"complement,omitempty"`
	District   *string `json:"district,omitempty"`
	City       *string `json:"city,omitempty"`
	Region     *string `json:"region,omitempty"`
}

// Apply переносит заданные поля патча в адрес.
func (p AddressPatch) Apply(a *Address) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&a.Street, p.Street)
	set(&a.Number, p.Number)
	set(&a.Complement, p.Complement)
	set(&a.District, p.District)
	set(&a.City, p.City)
	set(&a.Region, p.Region)
}

// PostalCodeResult: ответ справочника индексов. Пустые поля считаются отсутствующими.
type PostalCodeResult struct {
	Street   string `json:"street,omitempty"`
	District string `json:"district,omitempty"`
	City     string `json:"city,omitempty"`
	Region   string `json:"region,omitempty"`
}

// Apply перезаписывает только те поля адреса, которые вернул справочник.
func (r PostalCodeResult) Apply(a *Address) {
	if r.Street != "" {
		a.Street = r.Street
	}
	if r.District != "" {
		a.District = r.District
	}
	if r.City != "" {
		a.City = r.City
	}
	if r.Region != "" {
		a.Region = r.Region
	}
}

// ShippingQuote: вариант доставки со стоимостью в минимальных единицах (центавос).
type ShippingQuote struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	CostMinor   int64  `json:"cost_minor"`
	IsFree      bool   `json:"is_free"`
	EtaDaysMin  int    `json:"eta_days_min,omitempty"`
	EtaDaysMax  int    `json:"eta_days_max,omitempty"`
}

// RequestStatus: состояние асинхронного запроса к внешнему сервису.
type RequestStatus string

const (
	RequestIdle    RequestStatus = "idle"
	RequestLoading RequestStatus = "loading"
	RequestReady   RequestStatus = "ready"
	RequestFailed  RequestStatus = "failed"
)

// PostalCodeLookup: состояние запроса к справочнику индексов.
// Seq: номер последнего выданного запроса, ответы с другим номером отбрасываются.
type PostalCodeLookup struct {
	Status RequestStatus `json:"status"`
	Seq    uint64        `json:"seq"`
	Error  string        `json:"error,omitempty"`
}

// ShippingQuotes: состояние расчёта доставки.
type ShippingQuotes struct {
	Status RequestStatus   `json:"status"`
	Seq    uint64          `json:"seq"`
	Items  []ShippingQuote `json:"items,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Find ищет вариант доставки по ID.
func (q ShippingQuotes) Find(id string) (ShippingQuote, bool) {
	for _, item := range q.Items {
		if item.ID == id {
			return item, true
		}
	}
	return ShippingQuote{}, false
}

// Delivery: состояние шага доставки.
type Delivery struct {
	RecipientSameAsBuyer   bool             `json:"recipient_same_as_buyer"`
	Recipient              Recipient        `json:"recipient"`
	Address                Address          `json:"address"`
	SelectedSavedAddressID string           `json:"selected_saved_address_id,omitempty"`
	SaveAddress            bool             `json:"save_address"`
	Lookup                 PostalCodeLookup `json:"lookup"`
	Quotes                 ShippingQuotes   `json:"quotes"`
	SelectedQuoteID        string           `json:"selected_quote_id,omitempty"`
	SelectedQuote          *ShippingQuote   `json:"selected_quote,omitempty"`
}

// UsingSavedAddress сообщает, что адрес взят из адресной книги.
func (d Delivery) UsingSavedAddress() bool {
	return d.SelectedSavedAddressID != ""
}
