package model

// Side is the side of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderResult is a normalized view of an accepted order.
type OrderResult struct {
	OrderID       int64
	ClientOrderID string
	Status        string
	FilledQty     float64
	AvgPrice      float64
}
