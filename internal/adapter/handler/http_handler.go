package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"storefront/internal/core/domain"
	"storefront/internal/core/service"
)

const defaultListLimit = 50

// Pinger reports storage health for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HTTPHandler struct {
	products *service.ProductService
	carts    *service.CartService
	orders   *service.OrderService
	pinger   Pinger
	log      zerolog.Logger
}

func NewHTTPHandler(products *service.ProductService, carts *service.CartService, orders *service.OrderService, pinger Pinger, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		products: products,
		carts:    carts,
		orders:   orders,
		pinger:   pinger,
		log:      logger.With().Str("component", "http").Logger(),
	}
}

// Routes wires the full API surface onto a chi router.
func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(UserIdentity)

			r.Get("/cart", h.GetCart)
			r.Post("/cart/items", h.AddCartItem)
			r.Patch("/cart/items/{id}", h.UpdateCartItem)
			r.Delete("/cart/items/{id}", h.RemoveCartItem)
			r.Delete("/cart", h.ClearCart)

			r.Post("/orders", h.PlaceOrder)
			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{id}", h.GetOrder)
			r.Post("/orders/{id}/cancel", h.CancelOrder)
			r.Post("/orders/{id}/confirm", h.ConfirmOrder)
			r.Post("/orders/{id}/advance", h.AdvanceOrder)
			r.Post("/orders/{id}/ship", h.ShipOrder)
			r.Post("/orders/{id}/payment", h.UpdatePayment)
		})
	})

	return r
}

// --- products ---

type ProductDTO struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	SKU           string `json:"sku"`
	Price         string `json:"price"`
	StockQuantity int    `json:"stock_quantity"`
	IsFeatured    bool   `json:"is_featured"`
}

func toProductDTO(p domain.Product) ProductDTO {
	return ProductDTO{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		SKU:           p.SKU,
		Price:         p.Price.StringFixed(2),
		StockQuantity: p.StockQuantity,
		IsFeatured:    p.IsFeatured,
	}
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	var (
		products []domain.Product
		err      error
	)
	switch {
	case r.URL.Query().Get("q") != "":
		products, err = h.products.Search(r.Context(), r.URL.Query().Get("q"), defaultListLimit)
	case r.URL.Query().Get("featured") == "1":
		products, err = h.products.ListFeatured(r.Context(), defaultListLimit)
	default:
		products, err = h.products.ListActive(r.Context(), defaultListLimit)
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	dtos := make([]ProductDTO, 0, len(products))
	for _, p := range products {
		dtos = append(dtos, toProductDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	product, err := h.products.GetProduct(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(*product))
}

// --- cart ---

type CartItemDTO struct {
	ID        int64 `json:"id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type CartResponse struct {
	Items     []CartItemDTO `json:"items"`
	ItemCount int           `json:"item_count"`
	Total     string        `json:"total"`
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	items, err := h.carts.Items(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	total, err := h.carts.Total(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := CartResponse{Items: make([]CartItemDTO, 0, len(items)), Total: total.StringFixed(2)}
	for _, item := range items {
		resp.Items = append(resp.Items, CartItemDTO{ID: item.ID, ProductID: item.ProductID, Quantity: item.Quantity})
		resp.ItemCount += item.Quantity
	}
	writeJSON(w, http.StatusOK, resp)
}

type AddCartItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func (h *HTTPHandler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req AddCartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == 0 || req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "product_id and positive quantity required")
		return
	}
	if err := h.carts.AddItem(r.Context(), userIDFrom(r.Context()), req.ProductID, req.Quantity); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

type UpdateCartItemRequest struct {
	Delta int `json:"delta"`
}

func (h *HTTPHandler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid cart item id")
		return
	}
	var req UpdateCartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Delta == 0 {
		writeError(w, http.StatusBadRequest, "non-zero delta required")
		return
	}
	if err := h.carts.UpdateQuantity(r.Context(), userIDFrom(r.Context()), itemID, req.Delta); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *HTTPHandler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid cart item id")
		return
	}
	if err := h.carts.RemoveItem(r.Context(), userIDFrom(r.Context()), itemID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), userIDFrom(r.Context())); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// --- orders ---

type PlaceOrderRequest struct {
	ShippingAddress string `json:"shipping_address"`
	Phone           string `json:"phone"`

	// ClearCart asks the handler to clear the cart after a successful
	// placement. Placement itself never clears the cart, so a client that
	// aborts can retry without re-adding items.
	ClearCart bool `json:"clear_cart"`
}

type OrderItemDTO struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

type OrderDTO struct {
	ID              string         `json:"id"`
	TotalAmount     string         `json:"total_amount"`
	Status          string         `json:"status"`
	ShippingAddress string         `json:"shipping_address"`
	PaymentStatus   string         `json:"payment_status"`
	TrackingNumber  string         `json:"tracking_number,omitempty"`
	Items           []OrderItemDTO `json:"items"`
	CreatedAt       string         `json:"created_at"`
}

func toOrderDTO(o *domain.Order) OrderDTO {
	dto := OrderDTO{
		ID:              o.ID,
		TotalAmount:     o.TotalAmount.StringFixed(2),
		Status:          o.Status.String(),
		ShippingAddress: o.ShippingAddress,
		PaymentStatus:   string(o.PaymentStatus),
		TrackingNumber:  o.TrackingNumber,
		CreatedAt:       o.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	for _, item := range o.Items {
		dto.Items = append(dto.Items, OrderItemDTO{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price.StringFixed(2),
		})
	}
	return dto
}

func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ShippingAddress == "" {
		writeError(w, http.StatusBadRequest, "shipping_address required")
		return
	}

	userID := userIDFrom(r.Context())
	cart, err := h.carts.GetOrCreateCart(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	order, err := h.orders.PlaceOrder(r.Context(), service.PlaceOrderInput{
		UserID:          userID,
		CartID:          cart.ID,
		ShippingAddress: req.ShippingAddress,
		Phone:           req.Phone,
		RequestID:       requestIDFrom(r.Context()),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if req.ClearCart {
		if err := h.carts.Clear(r.Context(), userID); err != nil {
			// The order stands; a stale cart is recoverable.
			h.log.Warn().Err(err).Str("order_id", order.ID).Msg("post-order cart clear failed")
		}
	}

	writeJSON(w, http.StatusCreated, toOrderDTO(order))
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListUserOrders(r.Context(), userIDFrom(r.Context()), defaultListLimit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dtos := make([]OrderDTO, 0, len(orders))
	for i := range orders {
		dtos = append(dtos, toOrderDTO(&orders[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.fetchOwnedOrder(w, r)
	if err != nil {
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(order))
}

func (h *HTTPHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.fetchOwnedOrder(w, r)
	if err != nil {
		return
	}
	if err := h.orders.CancelOrder(r.Context(), order.ID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *HTTPHandler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.fetchOwnedOrder(w, r)
	if err != nil {
		return
	}
	if err := h.orders.Confirm(r.Context(), order.ID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

type AdvanceOrderRequest struct {
	Status string `json:"status"`
}

func (h *HTTPHandler) AdvanceOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.fetchOwnedOrder(w, r)
	if err != nil {
		return
	}
	var req AdvanceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeError(w, http.StatusBadRequest, "status required")
		return
	}
	next := domain.OrderStatus(req.Status)
	if !next.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	if err := h.orders.Advance(r.Context(), order.ID, next); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

type ShipOrderRequest struct {
	TrackingNumber string `json:"tracking_number"`
}

func (h *HTTPHandler) ShipOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.fetchOwnedOrder(w, r)
	if err != nil {
		return
	}
	var req ShipOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TrackingNumber == "" {
		writeError(w, http.StatusBadRequest, "tracking_number required")
		return
	}
	if err := h.orders.Ship(r.Context(), order.ID, req.TrackingNumber); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "shipped"})
}

type UpdatePaymentRequest struct {
	Status string `json:"status"`
}

func (h *HTTPHandler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	order, err := h.fetchOwnedOrder(w, r)
	if err != nil {
		return
	}
	var req UpdatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeError(w, http.StatusBadRequest, "status required")
		return
	}
	if err := h.orders.UpdatePaymentStatus(r.Context(), order.ID, domain.PaymentStatus(req.Status)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"payment_status": req.Status})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fetchOwnedOrder loads the order in the path and checks it belongs to the
// caller. Foreign orders read as not found. On failure the response has
// already been written and the returned error is only a signal to stop.
func (h *HTTPHandler) fetchOwnedOrder(w http.ResponseWriter, r *http.Request) (*domain.Order, error) {
	orderID := chi.URLParam(r, "id")
	order, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return nil, err
	}
	if order.UserID != userIDFrom(r.Context()) {
		err := &domain.NotFoundError{Entity: "order", ID: orderID}
		h.writeServiceError(w, r, err)
		return nil, err
	}
	return order, nil
}

type errorResponse struct {
	Error     string `json:"error"`
	ProductID int64  `json:"product_id,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available int    `json:"available,omitempty"`
}

func (h *HTTPHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound    *domain.NotFoundError
		stock       *domain.InsufficientStockError
		unavailable *domain.ProductUnavailableError
		transition  *domain.InvalidTransitionError
	)

	switch {
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: notFound.Error()})
	case errors.As(err, &stock):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:     stock.Error(),
			ProductID: stock.ProductID,
			Requested: stock.Requested,
			Available: stock.Available,
		})
	case errors.As(err, &unavailable):
		writeJSON(w, http.StatusConflict, errorResponse{Error: unavailable.Error()})
	case errors.As(err, &transition):
		writeJSON(w, http.StatusConflict, errorResponse{Error: transition.Error()})
	case errors.Is(err, domain.ErrEmptyCart), errors.Is(err, domain.ErrInvalidQuantity):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrDuplicateRequest):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "duplicate request"})
	case errors.Is(err, domain.ErrConcurrencyConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "conflicting update, retry"})
	case errors.Is(err, domain.ErrStorageUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "storage unavailable"})
	default:
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("internal error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
