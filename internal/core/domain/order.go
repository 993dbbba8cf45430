package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// statusRank orders the happy path. Cancelled sits outside of it.
var statusRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusConfirmed:  1,
	OrderStatusProcessing: 2,
	OrderStatusShipped:    3,
	OrderStatusDelivered:  4,
}

func (s OrderStatus) String() string {
	return string(s)
}

func (s OrderStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok || s == OrderStatusCancelled
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// Cancellable reports whether an order in this status may still be cancelled.
// Once goods are shipped the order is out of our hands.
func (s OrderStatus) Cancellable() bool {
	return s != OrderStatusShipped && s != OrderStatusDelivered && s != OrderStatusCancelled
}

// StageDistance returns how many happy-path stages separate from and to.
// It returns false when either status is off the happy path or the move is
// not strictly forward.
func StageDistance(from, to OrderStatus) (int, bool) {
	fromRank, ok := statusRank[from]
	if !ok {
		return 0, false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return 0, false
	}
	if toRank <= fromRank {
		return 0, false
	}
	return toRank - fromRank, true
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusFailed   PaymentStatus = "failed"
)

type Order struct {
	ID              string
	UserID          string
	Items           []OrderItem
	TotalAmount     decimal.Decimal
	Status          OrderStatus
	ShippingAddress string
	Phone           string
	PaymentMethod   string
	PaymentStatus   PaymentStatus
	TrackingNumber  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem is an immutable snapshot of a cart line at purchase time.
// Price is the unit price captured when the order was committed; later
// catalog price changes never touch it.
type OrderItem struct {
	ID        int64
	OrderID   string
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
