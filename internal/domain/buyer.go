package domain

import "strings"

// Buyer: профиль покупателя, загруженный из сервиса аутентификации.
type Buyer struct {
	CustomerID string `json:"customer_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	// TaxID — CPF, только цифры. Может отсутствовать у старых профилей.
	TaxID     string `json:"tax_id,omitempty"`
	BirthDate string `json:"birth_date,omitempty"`
}

// FullName склеивает имя и фамилию через один пробел.
func (b Buyer) FullName() string {
	return b.FirstName + " " + b.LastName
}

// ProfileField: поле профиля, без которого нельзя оформить заказ.
type ProfileField string

const (
	ProfileFieldTaxID ProfileField = "tax_id"
	ProfileFieldPhone ProfileField = "phone"
)

// MissingFields возвращает обязательные для оформления поля, которых нет в профиле.
func (b Buyer) MissingFields() []ProfileField {
	var missing []ProfileField
	if strings.TrimSpace(b.TaxID) == "" {
		missing = append(missing, ProfileFieldTaxID)
	}
	if strings.TrimSpace(b.Phone) == "" {
		missing = append(missing, ProfileFieldPhone)
	}
	return missing
}

// Complete сообщает, что профиля достаточно для оформления.
func (b Buyer) Complete() bool {
	return len(b.MissingFields()) == 0
}

// Consent: ключ согласия в форме регистрации.
type Consent string

const (
	ConsentPrivacyPolicy Consent = "privacy_policy"
	ConsentTermsOfUse    Consent = "terms_of_use"
	ConsentMarketing     Consent = "marketing"
)

// RequiredConsents: согласия, без которых регистрация невозможна.
var RequiredConsents = []Consent{ConsentPrivacyPolicy, ConsentTermsOfUse}

// Consents фиксирует ответы покупателя.
type Consents struct {
	PrivacyPolicy bool `json:"privacy_policy"`
	TermsOfUse    bool `json:"terms_of_use"`
	Marketing     bool `json:"marketing"`
}

// Granted проверяет конкретное согласие.
func (c Consents) Granted(k Consent) bool {
	switch k {
	case ConsentPrivacyPolicy:
		return c.PrivacyPolicy
	case ConsentTermsOfUse:
		return c.TermsOfUse
	case ConsentMarketing:
		return c.Marketing
	default:
		return false
	}
}

// Missing возвращает непринятые обязательные согласия.
func (c Consents) Missing() []Consent {
	var missing []Consent
	for _, k := range RequiredConsents {
		if !c.Granted(k) {
			missing = append(missing, k)
		}
	}
	return missing
}

// Credentials: данные для входа.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Registration: форма регистрации нового покупателя.
type Registration struct {
	FirstName            string   `json:"first_name" validate:"required"`
	LastName             string   `json:"last_name" validate:"required"`
	Email                string   `json:"email" validate:"required,email"`
	Phone                string   `json:"phone" validate:"omitempty,numeric,min=10,max=11"`
	TaxID                string   `json:"tax_id" validate:"omitempty,cpf"`
	BirthDate            string   `json:"birth_date" validate:"required,birthdate,min_age=13"`
	Password             string   `json:"password" validate:"required,min=6"`
	PasswordConfirmation string   `json:"password_confirmation" validate:"required,eqfield=Password"`
	Consents             Consents `json:"consents"`
}

// ProfileUpdate: частичное обновление профиля в сервисе аутентификации.
type ProfileUpdate struct {
	TaxID string `json:"tax_id,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// AuthSession: результат входа или регистрации.
type AuthSession struct {
	Token string
	Buyer Buyer
}
