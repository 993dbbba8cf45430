package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/core/domain"
)

func testProduct(id int64, price string, stock int) domain.Product {
	return domain.Product{
		ID:            id,
		Name:          "widget",
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		IsActive:      true,
	}
}

func testOrder(id string, items ...domain.OrderItem) *domain.Order {
	return &domain.Order{
		ID:        id,
		UserID:    "user-1",
		Status:    domain.OrderStatusPending,
		Items:     items,
		CreatedAt: time.Now(),
	}
}

func TestMemoryCreateOrder_DecrementsStockAndFreezesPrices(t *testing.T) {
	m := NewMemoryAdapter()
	m.PutProduct(testProduct(1, "10.00", 5))
	ctx := context.Background()

	order := testOrder("ord-1", domain.OrderItem{ProductID: 1, Quantity: 3})
	require.NoError(t, m.CreateOrder(ctx, order))

	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("30.00")))
	assert.True(t, order.Items[0].Price.Equal(decimal.RequireFromString("10.00")))

	p, err := m.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, p.StockQuantity)
	assert.Equal(t, 1, p.Version)
}

func TestMemoryCreateOrder_AllOrNothing(t *testing.T) {
	m := NewMemoryAdapter()
	m.PutProduct(testProduct(1, "10.00", 5))
	m.PutProduct(testProduct(2, "20.00", 0))
	ctx := context.Background()

	order := testOrder("ord-1",
		domain.OrderItem{ProductID: 1, Quantity: 1},
		domain.OrderItem{ProductID: 2, Quantity: 1},
	)
	err := m.CreateOrder(ctx, order)
	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(2), stockErr.ProductID)

	// The satisfiable line must not have been decremented.
	p, _ := m.GetProduct(ctx, 1)
	assert.Equal(t, 5, p.StockQuantity)

	_, err = m.GetOrder(ctx, "ord-1")
	var notFoundErr *domain.NotFoundError
	assert.ErrorAs(t, err, &notFoundErr)
}

func TestMemoryCreateOrder_InactiveProductRefused(t *testing.T) {
	m := NewMemoryAdapter()
	p := testProduct(1, "10.00", 5)
	p.IsActive = false
	m.PutProduct(p)

	err := m.CreateOrder(context.Background(), testOrder("ord-1", domain.OrderItem{ProductID: 1, Quantity: 1}))
	var unavailableErr *domain.ProductUnavailableError
	assert.ErrorAs(t, err, &unavailableErr)
}

func TestMemoryUpdateOrderStatus_CompareAndSwap(t *testing.T) {
	m := NewMemoryAdapter()
	m.PutProduct(testProduct(1, "10.00", 5))
	ctx := context.Background()
	require.NoError(t, m.CreateOrder(ctx, testOrder("ord-1", domain.OrderItem{ProductID: 1, Quantity: 1})))

	require.NoError(t, m.UpdateOrderStatus(ctx, "ord-1", domain.OrderStatusPending, domain.OrderStatusConfirmed))

	// Second swap from the stale status loses the race.
	err := m.UpdateOrderStatus(ctx, "ord-1", domain.OrderStatusPending, domain.OrderStatusConfirmed)
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	o, _ := m.GetOrder(ctx, "ord-1")
	assert.Equal(t, domain.OrderStatusConfirmed, o.Status)
}

func TestMemoryCancelOrder_RestoresStockOnce(t *testing.T) {
	m := NewMemoryAdapter()
	m.PutProduct(testProduct(1, "10.00", 5))
	ctx := context.Background()
	require.NoError(t, m.CreateOrder(ctx, testOrder("ord-1", domain.OrderItem{ProductID: 1, Quantity: 3})))

	require.NoError(t, m.CancelOrder(ctx, "ord-1"))
	p, _ := m.GetProduct(ctx, 1)
	assert.Equal(t, 5, p.StockQuantity)

	// Cancelling again is a no-op, not a second restoration.
	require.NoError(t, m.CancelOrder(ctx, "ord-1"))
	p, _ = m.GetProduct(ctx, 1)
	assert.Equal(t, 5, p.StockQuantity)
}

func TestMemoryCancelOrder_ShippedRefused(t *testing.T) {
	m := NewMemoryAdapter()
	m.PutProduct(testProduct(1, "10.00", 5))
	ctx := context.Background()
	require.NoError(t, m.CreateOrder(ctx, testOrder("ord-1", domain.OrderItem{ProductID: 1, Quantity: 2})))
	require.NoError(t, m.MarkShipped(ctx, "ord-1", "TRK123"))

	err := m.CancelOrder(ctx, "ord-1")
	var transitionErr *domain.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, domain.OrderStatusShipped, transitionErr.From)

	p, _ := m.GetProduct(ctx, 1)
	assert.Equal(t, 3, p.StockQuantity)
}

func TestMemoryMarkShipped_TerminalRefused(t *testing.T) {
	m := NewMemoryAdapter()
	m.PutProduct(testProduct(1, "10.00", 5))
	ctx := context.Background()
	require.NoError(t, m.CreateOrder(ctx, testOrder("ord-1", domain.OrderItem{ProductID: 1, Quantity: 1})))
	require.NoError(t, m.CancelOrder(ctx, "ord-1"))

	err := m.MarkShipped(ctx, "ord-1", "TRK123")
	var transitionErr *domain.InvalidTransitionError
	assert.ErrorAs(t, err, &transitionErr)
}

func TestMemoryCart_Lifecycle(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()

	cart, err := m.GetOrCreateCart(ctx, "user-1")
	require.NoError(t, err)
	again, err := m.GetOrCreateCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, cart.ID, again.ID)

	other, err := m.GetOrCreateCart(ctx, "user-2")
	require.NoError(t, err)
	assert.NotEqual(t, cart.ID, other.ID)

	item := &domain.CartItem{CartID: cart.ID, ProductID: 1, Quantity: 2}
	require.NoError(t, m.SaveCartItem(ctx, item))
	require.NotZero(t, item.ID)

	items, err := m.GetCartItems(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, m.ClearCart(ctx, cart.ID))
	items, err = m.GetCartItems(ctx, cart.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMemoryProductFilters(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()

	active := testProduct(1, "10.00", 5)
	active.Name = "Gaming Laptop"
	m.PutProduct(active)

	featured := testProduct(2, "20.00", 5)
	featured.Name = "Wireless Mouse"
	featured.IsFeatured = true
	m.PutProduct(featured)

	hidden := testProduct(3, "30.00", 5)
	hidden.IsActive = false
	m.PutProduct(hidden)

	products, err := m.ListActiveProducts(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, products, 2)

	products, err = m.ListFeaturedProducts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, int64(2), products[0].ID)

	products, err = m.SearchProducts(ctx, "laptop", 0)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, int64(1), products[0].ID)
}
