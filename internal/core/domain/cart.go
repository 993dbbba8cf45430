package domain

import "time"

type Cart struct {
	ID        int64
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem is one line of a cart. A cart holds at most one line per product;
// adding the same product again merges into the existing line.
type CartItem struct {
	ID        int64
	CartID    int64
	ProductID int64
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}
