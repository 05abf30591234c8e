package validation

import (
	"strings"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// Максимальные длины полей в цифрах.
const (
	maxCardDigits  = 16
	maxExpiry      = 4
	maxCVV         = 4
	maxTaxID       = 11
	maxPhoneDigits = 11
)

// Digits оставляет в строке только цифры.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func digitsMax(s string, n int) string {
	d := Digits(s)
	if len(d) > n {
		return d[:n]
	}
	return d
}

// CardNumberInput нормализует ввод номера карты: только цифры, не больше 16.
func CardNumberInput(raw string) string { return digitsMax(raw, maxCardDigits) }

// CVVInput нормализует код безопасности: 3-4 цифры.
func CVVInput(raw string) string { return digitsMax(raw, maxCVV) }

// TaxIDInput нормализует CPF: 11 цифр.
func TaxIDInput(raw string) string { return digitsMax(raw, maxTaxID) }

// PhoneInput нормализует телефон: DDD + номер.
func PhoneInput(raw string) string { return digitsMax(raw, maxPhoneDigits) }

// PostalCodeInput нормализует CEP: 8 цифр.
func PostalCodeInput(raw string) string { return digitsMax(raw, domain.PostalCodeLength) }

// HolderNameInput приводит имя держателя к верхнему регистру и схлопывает пробелы.
func HolderNameInput(raw string) string { return strings.ToUpper(strings.Join(strings.Fields(raw), " ")) }

// ExpiryInput накладывает маску MM/YY, разделитель ставится после второй цифры.
func ExpiryInput(raw string) string {
	d := digitsMax(raw, maxExpiry)
	if len(d) <= 2 {
		return d
	}
	return d[:2] + "/" + d[2:]
}

// GroupCardNumber разбивает номер на группы по 4 цифры для отображения.
func GroupCardNumber(number string) string {
	var b strings.Builder
	for i := 0; i < len(number); i++ {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteByte(number[i])
	}
	return b.String()
}

// MaskCardNumber показывает только последние 4 цифры.
func MaskCardNumber(last4 string) string {
	if last4 == "" {
		return ""
	}
	return "**** **** **** " + last4
}

// Last4 возвращает последние 4 цифры номера.
func Last4(number string) string {
	if len(number) <= 4 {
		return number
	}
	return number[len(number)-4:]
}

// FormatCPF накладывает маску 000.000.000-00 на уже введённые цифры.
func FormatCPF(digits string) string {
	return applyMask(digits, "###.###.###-##")
}

// FormatPostalCode накладывает маску 00000-000.
func FormatPostalCode(digits string) string {
	return applyMask(digits, "#####-###")
}

func applyMask(digits, mask string) string {
	var b strings.Builder
	di := 0
	for i := 0; i < len(mask) && di < len(digits); i++ {
		if mask[i] == '#' {
			b.WriteByte(digits[di])
			di++
			continue
		}
		b.WriteByte(mask[i])
	}
	return b.String()
}

type brandRule struct {
	brand    domain.CardBrand
	prefixes []string
}

// Порядок важен: диапазоны Elo и Hipercard пересекаются с Visa/Mastercard/Discover.
var brandRules = []brandRule{
	{domain.CardBrandElo, []string{
		"401178", "401179", "431274", "438935", "451416", "457393", "457631", "457632",
		"504175", "506699", "5067", "509", "627780", "636297", "636368", "650", "6516", "6550",
	}},
	{domain.CardBrandHipercard, []string{"606282", "3841"}},
	{domain.CardBrandAmex, []string{"34", "37"}},
	{domain.CardBrandDiners, []string{"300", "301", "302", "303", "304", "305", "36", "38"}},
	{domain.CardBrandDiscover, []string{"6011", "644", "645", "646", "647", "648", "649", "65"}},
	{domain.CardBrandMastercard, []string{"51", "52", "53", "54", "55", "22", "23", "24", "25", "26", "270", "271", "2720"}},
	{domain.CardBrandVisa, []string{"4"}},
}

// DetectBrand определяет платёжную систему по префиксу номера.
func DetectBrand(number string) domain.CardBrand {
	for _, rule := range brandRules {
		for _, prefix := range rule.prefixes {
			if strings.HasPrefix(number, prefix) {
				if rule.brand == domain.CardBrandMastercard && strings.HasPrefix(number, "22") && !inMastercard2Series(number) {
					continue
				}
				return rule.brand
			}
		}
	}
	return domain.CardBrandUnknown
}

// inMastercard2Series проверяет диапазон 2221-2720 для номеров на 22.
func inMastercard2Series(number string) bool {
	if len(number) < 4 {
		return false
	}
	return number[:4] >= "2221"
}
