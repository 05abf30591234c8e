package validation

import (
	"strconv"
	"time"
)

// ValidLuhn проверяет контрольную сумму номера карты.
func ValidLuhn(number string) bool {
	if len(number) < 12 || len(number) > 19 || !allDigits(number) {
		return false
	}
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// ValidCPF проверяет 11 цифр CPF и оба контрольных разряда.
func ValidCPF(cpf string) bool {
	if len(cpf) != 11 || !allDigits(cpf) {
		return false
	}
	same := true
	for i := 1; i < len(cpf); i++ {
		if cpf[i] != cpf[0] {
			same = false
			break
		}
	}
	if same {
		return false
	}
	return cpfDigit(cpf[:9], 10) == cpf[9] && cpfDigit(cpf[:10], 11) == cpf[10]
}

func cpfDigit(base string, weight int) byte {
	sum := 0
	for i := 0; i < len(base); i++ {
		sum += int(base[i]-'0') * (weight - i)
	}
	rem := (sum * 10) % 11
	if rem == 10 {
		rem = 0
	}
	return byte('0' + rem)
}

// ValidExpiry проверяет срок MM/YY: карта действует до конца указанного месяца.
func ValidExpiry(expiry string, now time.Time) bool {
	if len(expiry) != 5 || expiry[2] != '/' {
		return false
	}
	month, err := strconv.Atoi(expiry[:2])
	if err != nil || month < 1 || month > 12 {
		return false
	}
	yy, err := strconv.Atoi(expiry[3:])
	if err != nil || !allDigits(expiry[3:]) {
		return false
	}
	year := 2000 + yy
	if year != now.Year() {
		return year > now.Year()
	}
	return month >= int(now.Month())
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
