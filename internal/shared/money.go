package shared

import "math"

// RoundMoney rounds an amount to cents.
func RoundMoney(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// LineTotal prices quantity units at unitPrice, rounded to cents.
func LineTotal(quantity int, unitPrice float64) float64 {
	return RoundMoney(float64(quantity) * unitPrice)
}
