package calculator

import "github.com/shopspring/decimal"

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// Floor truncates v towards negative infinity at the given number of decimals.
func Floor(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).RoundFloor(places).Float64()
	return f
}

// Ceil rounds v towards positive infinity at the given number of decimals.
func Ceil(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).RoundCeil(places).Float64()
	return f
}

// Format renders v with exactly places decimals, as exchanges expect for quantities and prices.
func Format(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}
