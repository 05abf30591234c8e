package storeapi

import "github.com/shopspring/decimal"

// Магазин передаёт суммы в реалах с копейками (decimal), внутри сервиса: центавос.

func toMinor(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func fromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
