package domain

import "time"

// PaymentMethod: способ оплаты заказа.
type PaymentMethod string

const (
	// PaymentMethodInstantTransfer — мгновенный перевод (PIX) по QR-коду.
	PaymentMethodInstantTransfer PaymentMethod = "instant_transfer"
	// PaymentMethodCard — банковская карта.
	PaymentMethodCard PaymentMethod = "card"
)

// Valid проверяет, что способ оплаты известен.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodInstantTransfer || m == PaymentMethodCard
}

// InstantTransferWindow: сколько действует код мгновенного перевода.
const InstantTransferWindow = 15 * time.Minute

// InstantTransferHold: сколько заказ ждёт оплаты переводом до отмены.
const InstantTransferHold = 24 * time.Hour

// CardBrand: платёжная система карты, определяется по префиксу номера.
type CardBrand string

const (
	CardBrandUnknown    CardBrand = ""
	CardBrandVisa       CardBrand = "visa"
	CardBrandMastercard CardBrand = "mastercard"
	CardBrandAmex       CardBrand = "amex"
	CardBrandElo        CardBrand = "elo"
	CardBrandHipercard  CardBrand = "hipercard"
	CardBrandDiners     CardBrand = "diners"
	CardBrandDiscover   CardBrand = "discover"
)

// CardDetails: данные карты в том виде, в каком их ввёл покупатель (после нормализации).
// Number и CVV не сериализуются: в хранилище попадают только Last4 и Brand.
type CardDetails struct {
	Number      string    `json:"-" field:"number" validate:"required,luhn"`
	HolderName  string    `json:"holder_name" validate:"required,trimmed_min=3"`
	Expiry      string    `json:"expiry" validate:"required,card_expiry"`
	CVV         string    `json:"-" field:"cvv" validate:"required,numeric,min=3,max=4"`
	HolderTaxID string    `json:"holder_tax_id" validate:"required,cpf"`
	Brand       CardBrand `json:"brand,omitempty"`
	Last4       string    `json:"last4,omitempty"`
}

// Scrub удаляет номер и CVV, оставляя последние цифры для отображения.
func (c *CardDetails) Scrub() {
	c.Number = ""
	c.CVV = ""
}

// HasSecrets сообщает, введены ли номер или CVV.
func (c *CardDetails) HasSecrets() bool {
	return c != nil && (c.Number != "" || c.CVV != "")
}

// CardPatch: частичное обновление данных карты. Значения приходят в «сыром» виде.
type CardPatch struct {
	Number      *string `json:"number,omitempty"`
	HolderName  *string `json:"holder_name,omitempty"`
	Expiry      *string `json:"expiry,omitempty"`
	CVV         *string `json:"cvv,omitempty"`
	HolderTaxID *string `json:"holder_tax_id,omitempty"`
}

// Payment: состояние шага оплаты. Card заполнен только для способа card.
type Payment struct {
	Method PaymentMethod `json:"method,omitempty"`
	Card   *CardDetails  `json:"card,omitempty"`
}

// PaymentStatus: статус оплаты, который возвращает сервис заказов.
type PaymentStatus string

const (
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusDeclined PaymentStatus = "DECLINED"
)

// Valid проверяет, что статус известен.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPaid, PaymentStatusPending, PaymentStatusDeclined:
		return true
	default:
		return false
	}
}
