package enums

import "time"

// OrderType is the half of the day an order was placed in.
type OrderType string

const (
	OrderTypeAM OrderType = "AM"
	OrderTypePM OrderType = "PM"
)

// String implements fmt.Stringer.
func (o OrderType) String() string {
	return string(o)
}

// OrderTypeAt derives the order type from the wall-clock hour of t.
func OrderTypeAt(t time.Time) OrderType {
	if t.Hour() < 12 {
		return OrderTypeAM
	}
	return OrderTypePM
}
