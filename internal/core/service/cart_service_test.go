package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/adapter/storage"
	"storefront/internal/core/domain"
)

func newCartFixture(t *testing.T) (*CartService, *storage.MemoryAdapter) {
	t.Helper()
	store := storage.NewMemoryAdapter()
	return NewCartService(store, store, zerolog.Nop()), store
}

func seed(store *storage.MemoryAdapter, id int64, price string, stock int, active bool) {
	store.PutProduct(domain.Product{
		ID:            id,
		Name:          "product",
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		IsActive:      active,
	})
}

func TestAddItem_MergesExistingLine(t *testing.T) {
	svc, store := newCartFixture(t)
	seed(store, 1, "10.00", 10, true)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "user-1", 1, 2))
	require.NoError(t, svc.AddItem(ctx, "user-1", 1, 3))

	items, err := svc.Items(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)
}

func TestAddItem_MergedTotalValidatedAgainstStock(t *testing.T) {
	svc, store := newCartFixture(t)
	seed(store, 1, "10.00", 5, true)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "user-1", 1, 3))

	err := svc.AddItem(ctx, "user-1", 1, 3)
	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 6, stockErr.Requested)
	assert.Equal(t, 5, stockErr.Available)
}

func TestAddItem_InactiveProduct(t *testing.T) {
	svc, store := newCartFixture(t)
	seed(store, 1, "10.00", 5, false)

	err := svc.AddItem(context.Background(), "user-1", 1, 1)
	var unavailableErr *domain.ProductUnavailableError
	assert.ErrorAs(t, err, &unavailableErr)
}

func TestAddItem_UnknownProduct(t *testing.T) {
	svc, _ := newCartFixture(t)

	err := svc.AddItem(context.Background(), "user-1", 42, 1)
	var notFoundErr *domain.NotFoundError
	assert.ErrorAs(t, err, &notFoundErr)
}

func TestAddItem_InvalidQuantity(t *testing.T) {
	svc, store := newCartFixture(t)
	seed(store, 1, "10.00", 5, true)

	assert.ErrorIs(t, svc.AddItem(context.Background(), "user-1", 1, 0), domain.ErrInvalidQuantity)
	assert.ErrorIs(t, svc.AddItem(context.Background(), "user-1", 1, -1), domain.ErrInvalidQuantity)
}

func TestUpdateQuantity_DeltaAndRemoval(t *testing.T) {
	svc, store := newCartFixture(t)
	seed(store, 1, "10.00", 10, true)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "user-1", 1, 2))
	items, _ := svc.Items(ctx, "user-1")
	require.Len(t, items, 1)
	itemID := items[0].ID

	require.NoError(t, svc.UpdateQuantity(ctx, "user-1", itemID, 3))
	items, _ = svc.Items(ctx, "user-1")
	assert.Equal(t, 5, items[0].Quantity)

	// Dropping to zero or below removes the line.
	require.NoError(t, svc.UpdateQuantity(ctx, "user-1", itemID, -5))
	items, _ = svc.Items(ctx, "user-1")
	assert.Empty(t, items)
}

func TestUpdateQuantity_StockValidated(t *testing.T) {
	svc, store := newCartFixture(t)
	seed(store, 1, "10.00", 3, true)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "user-1", 1, 2))
	items, _ := svc.Items(ctx, "user-1")

	err := svc.UpdateQuantity(ctx, "user-1", items[0].ID, 2)
	var stockErr *domain.InsufficientStockError
	assert.ErrorAs(t, err, &stockErr)
}

func TestUpdateQuantity_ForeignLineIsNotFound(t *testing.T) {
	svc, store := newCartFixture(t)
	seed(store, 1, "10.00", 10, true)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "user-1", 1, 2))
	items, _ := svc.Items(ctx, "user-1")

	err := svc.UpdateQuantity(ctx, "user-2", items[0].ID, 1)
	var notFoundErr *domain.NotFoundError
	assert.ErrorAs(t, err, &notFoundErr)
}

func TestClear_Idempotent(t *testing.T) {
	svc, store := newCartFixture(t)
	seed(store, 1, "10.00", 10, true)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "user-1", 1, 2))
	require.NoError(t, svc.Clear(ctx, "user-1"))
	require.NoError(t, svc.Clear(ctx, "user-1"))

	count, err := svc.ItemCount(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestTotal_IsLive(t *testing.T) {
	svc, store := newCartFixture(t)
	seed(store, 1, "10.00", 10, true)
	seed(store, 2, "30.00", 10, true)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "user-1", 1, 2))
	require.NoError(t, svc.AddItem(ctx, "user-1", 2, 1))

	total, err := svc.Total(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("50.00")))

	// Unlike order totals, the cart total follows catalog price changes.
	require.NoError(t, store.SetPrice(ctx, 1, decimal.RequireFromString("15.00")))
	total, err = svc.Total(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("60.00")))
}

func TestTotal_SkipsDeactivatedProducts(t *testing.T) {
	svc, store := newCartFixture(t)
	seed(store, 1, "10.00", 10, true)
	seed(store, 2, "30.00", 10, true)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "user-1", 1, 2))
	require.NoError(t, svc.AddItem(ctx, "user-1", 2, 1))

	seed(store, 2, "30.00", 10, false) // deactivate

	total, err := svc.Total(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("20.00")))
}
