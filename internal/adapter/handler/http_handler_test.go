package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/adapter/storage"
	"storefront/internal/core/domain"
	"storefront/internal/core/service"
)

type apiFixture struct {
	store  *storage.MemoryAdapter
	server http.Handler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	store := storage.NewMemoryAdapter()
	logger := zerolog.Nop()

	products := service.NewProductService(store, logger)
	carts := service.NewCartService(store, store, logger)
	orders := service.NewOrderService(store, store, nil, logger, service.OrderServiceConfig{})
	t.Cleanup(orders.Close)

	h := NewHTTPHandler(products, carts, orders, nil, logger)
	return &apiFixture{store: store, server: h.Routes()}
}

func (f *apiFixture) seedProduct(id int64, name, price string, stock int) {
	f.store.PutProduct(domain.Product{
		ID:            id,
		Name:          name,
		SKU:           name,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		IsActive:      true,
	})
}

// do issues a request as the given user and decodes the JSON response into out.
func (f *apiFixture) do(t *testing.T, method, path, userID string, body, out any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	if out != nil && rec.Code < 500 {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
	}
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCartEndpointsRequireIdentity(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/cart", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListAndGetProducts(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(1, "Gaming Laptop", "999.99", 3)
	f.seedProduct(2, "Wireless Mouse", "19.99", 10)

	var list []ProductDTO
	rec := f.do(t, http.MethodGet, "/api/products", "", nil, &list)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, list, 2)

	var one ProductDTO
	rec = f.do(t, http.MethodGet, "/api/products/1", "", nil, &one)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "999.99", one.Price)

	rec = f.do(t, http.MethodGet, "/api/products/404", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/products/abc", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchProducts(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(1, "Gaming Laptop", "999.99", 3)
	f.seedProduct(2, "Wireless Mouse", "19.99", 10)

	var list []ProductDTO
	rec := f.do(t, http.MethodGet, "/api/products?q=mouse", "", nil, &list)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, list, 1)
	assert.Equal(t, int64(2), list[0].ID)
}

func TestCartFlow(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(1, "Gaming Laptop", "10.00", 10)

	rec := f.do(t, http.MethodPost, "/api/cart/items", "user-1",
		AddCartItemRequest{ProductID: 1, Quantity: 2}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var cart CartResponse
	rec = f.do(t, http.MethodGet, "/api/cart", "user-1", nil, &cart)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.ItemCount)
	assert.Equal(t, "20.00", cart.Total)

	// Another user sees an empty cart.
	var other CartResponse
	rec = f.do(t, http.MethodGet, "/api/cart", "user-2", nil, &other)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, other.Items)

	rec = f.do(t, http.MethodDelete, "/api/cart", "user-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/cart", "user-1", nil, &cart)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, cart.Items)
}

func TestAddCartItem_InsufficientStock(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(1, "Gaming Laptop", "10.00", 2)

	rec := f.do(t, http.MethodPost, "/api/cart/items", "user-1",
		AddCartItemRequest{ProductID: 1, Quantity: 5}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPlaceOrderFlow(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(1, "Gaming Laptop", "10.00", 10)
	f.seedProduct(2, "Wireless Mouse", "30.00", 10)

	f.do(t, http.MethodPost, "/api/cart/items", "user-1", AddCartItemRequest{ProductID: 1, Quantity: 2}, nil)
	f.do(t, http.MethodPost, "/api/cart/items", "user-1", AddCartItemRequest{ProductID: 2, Quantity: 1}, nil)

	var order OrderDTO
	rec := f.do(t, http.MethodPost, "/api/orders", "user-1",
		PlaceOrderRequest{ShippingAddress: "1 Test Street", ClearCart: true}, &order)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "50.00", order.TotalAmount)
	assert.Equal(t, "pending", order.Status)
	assert.Len(t, order.Items, 2)

	// clear_cart was set, so the cart is now empty.
	var cart CartResponse
	f.do(t, http.MethodGet, "/api/cart", "user-1", nil, &cart)
	assert.Empty(t, cart.Items)

	var fetched OrderDTO
	rec = f.do(t, http.MethodGet, "/api/orders/"+order.ID, "user-1", nil, &fetched)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, order.ID, fetched.ID)

	var list []OrderDTO
	rec = f.do(t, http.MethodGet, "/api/orders", "user-1", nil, &list)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, list, 1)
}

func TestPlaceOrder_EmptyCartRejected(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/orders", "user-1",
		PlaceOrderRequest{ShippingAddress: "1 Test Street"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceOrder_MissingAddressRejected(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(1, "Gaming Laptop", "10.00", 10)
	f.do(t, http.MethodPost, "/api/cart/items", "user-1", AddCartItemRequest{ProductID: 1, Quantity: 1}, nil)

	rec := f.do(t, http.MethodPost, "/api/orders", "user-1", PlaceOrderRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForeignOrderReadsAsNotFound(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(1, "Gaming Laptop", "10.00", 10)
	f.do(t, http.MethodPost, "/api/cart/items", "user-1", AddCartItemRequest{ProductID: 1, Quantity: 1}, nil)

	var order OrderDTO
	rec := f.do(t, http.MethodPost, "/api/orders", "user-1",
		PlaceOrderRequest{ShippingAddress: "1 Test Street"}, &order)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/orders/"+order.ID, "user-2", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/orders/"+order.ID+"/cancel", "user-2", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrderLifecycleEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(1, "Gaming Laptop", "10.00", 10)
	f.do(t, http.MethodPost, "/api/cart/items", "user-1", AddCartItemRequest{ProductID: 1, Quantity: 1}, nil)

	var order OrderDTO
	rec := f.do(t, http.MethodPost, "/api/orders", "user-1",
		PlaceOrderRequest{ShippingAddress: "1 Test Street"}, &order)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/orders/"+order.ID+"/confirm", "user-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/orders/"+order.ID+"/advance", "user-1",
		AdvanceOrderRequest{Status: "processing"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Jumping two stages back is refused.
	rec = f.do(t, http.MethodPost, "/api/orders/"+order.ID+"/advance", "user-1",
		AdvanceOrderRequest{Status: "pending"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/orders/"+order.ID+"/ship", "user-1",
		ShipOrderRequest{TrackingNumber: "TRK123"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var fetched OrderDTO
	f.do(t, http.MethodGet, "/api/orders/"+order.ID, "user-1", nil, &fetched)
	assert.Equal(t, "shipped", fetched.Status)
	assert.Equal(t, "TRK123", fetched.TrackingNumber)

	// Shipped orders cannot be cancelled.
	rec = f.do(t, http.MethodPost, "/api/orders/"+order.ID+"/cancel", "user-1", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelOrderEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(1, "Gaming Laptop", "10.00", 10)
	f.do(t, http.MethodPost, "/api/cart/items", "user-1", AddCartItemRequest{ProductID: 1, Quantity: 4}, nil)

	var order OrderDTO
	rec := f.do(t, http.MethodPost, "/api/orders", "user-1",
		PlaceOrderRequest{ShippingAddress: "1 Test Street"}, &order)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/orders/"+order.ID+"/cancel", "user-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var product ProductDTO
	f.do(t, http.MethodGet, "/api/products/1", "", nil, &product)
	assert.Equal(t, 10, product.StockQuantity)
}

func TestUpdatePaymentEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(1, "Gaming Laptop", "10.00", 10)
	f.do(t, http.MethodPost, "/api/cart/items", "user-1", AddCartItemRequest{ProductID: 1, Quantity: 1}, nil)

	var order OrderDTO
	rec := f.do(t, http.MethodPost, "/api/orders", "user-1",
		PlaceOrderRequest{ShippingAddress: "1 Test Street"}, &order)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/orders/"+order.ID+"/payment", "user-1",
		UpdatePaymentRequest{Status: "paid"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var fetched OrderDTO
	f.do(t, http.MethodGet, "/api/orders/"+order.ID, "user-1", nil, &fetched)
	assert.Equal(t, "paid", fetched.PaymentStatus)
}
