package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
}

type Product struct {
	ID            int64
	CategoryID    int64
	Name          string
	Description   string
	SKU           string
	Price         decimal.Decimal
	StockQuantity int
	IsFeatured    bool
	IsActive      bool
	Version       int // optimistic locking
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Sellable reports whether the product can be added to a cart or ordered.
func (p *Product) Sellable() bool {
	return p.IsActive
}
