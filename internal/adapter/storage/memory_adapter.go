package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/core/domain"
)

// MemoryAdapter implements the product, cart and order repositories with
// in-memory maps. It mirrors the MySQL adapter's semantics, conditional
// check-and-decrement included, and backs unit tests and embedded use.
type MemoryAdapter struct {
	mu sync.Mutex

	products   map[int64]*domain.Product
	carts      map[int64]*domain.Cart
	cartByUser map[string]int64
	cartItems  map[int64]*domain.CartItem
	orders     map[string]*domain.Order

	nextCartID      int64
	nextCartItemID  int64
	nextOrderItemID int64
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		products:   make(map[int64]*domain.Product),
		carts:      make(map[int64]*domain.Cart),
		cartByUser: make(map[string]int64),
		cartItems:  make(map[int64]*domain.CartItem),
		orders:     make(map[string]*domain.Order),
	}
}

// PutProduct seeds or replaces a product row.
func (m *MemoryAdapter) PutProduct(p domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.products[p.ID] = &cp
}

// --- ProductRepository ---

func (m *MemoryAdapter) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "product", ID: fmt.Sprint(id)}
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryAdapter) ListActiveProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	return m.filterProducts(limit, func(p *domain.Product) bool { return p.IsActive })
}

func (m *MemoryAdapter) ListFeaturedProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	return m.filterProducts(limit, func(p *domain.Product) bool { return p.IsActive && p.IsFeatured })
}

func (m *MemoryAdapter) SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	q := strings.ToLower(query)
	return m.filterProducts(limit, func(p *domain.Product) bool {
		return p.IsActive && strings.Contains(strings.ToLower(p.Name), q)
	})
}

func (m *MemoryAdapter) filterProducts(limit int, keep func(*domain.Product) bool) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Product
	for _, p := range m.products {
		if keep(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryAdapter) SetPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return &domain.NotFoundError{Entity: "product", ID: fmt.Sprint(id)}
	}
	p.Price = price
	p.Version++
	p.UpdatedAt = time.Now()
	return nil
}

// --- CartRepository ---

func (m *MemoryAdapter) GetOrCreateCart(ctx context.Context, userID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.cartByUser[userID]; ok {
		cp := *m.carts[id]
		return &cp, nil
	}
	m.nextCartID++
	cart := &domain.Cart{
		ID:        m.nextCartID,
		UserID:    userID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.carts[cart.ID] = cart
	m.cartByUser[userID] = cart.ID
	cp := *cart
	return &cp, nil
}

func (m *MemoryAdapter) GetCartItems(ctx context.Context, cartID int64) ([]domain.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []domain.CartItem
	for _, it := range m.cartItems {
		if it.CartID == cartID {
			items = append(items, *it)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (m *MemoryAdapter) GetCartItem(ctx context.Context, itemID int64) (*domain.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.cartItems[itemID]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "cart item", ID: fmt.Sprint(itemID)}
	}
	cp := *it
	return &cp, nil
}

func (m *MemoryAdapter) SaveCartItem(ctx context.Context, item *domain.CartItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == 0 {
		m.nextCartItemID++
		item.ID = m.nextCartItemID
		item.CreatedAt = time.Now()
	}
	item.UpdatedAt = time.Now()
	cp := *item
	m.cartItems[item.ID] = &cp
	return nil
}

func (m *MemoryAdapter) DeleteCartItem(ctx context.Context, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cartItems, itemID)
	return nil
}

func (m *MemoryAdapter) ClearCart(ctx context.Context, cartID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, it := range m.cartItems {
		if it.CartID == cartID {
			delete(m.cartItems, id)
		}
	}
	return nil
}

// --- OrderRepository ---

func (m *MemoryAdapter) CreateOrder(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate every line before touching anything: all-or-nothing.
	for _, item := range order.Items {
		p, ok := m.products[item.ProductID]
		if !ok {
			return &domain.NotFoundError{Entity: "product", ID: fmt.Sprint(item.ProductID)}
		}
		if !p.IsActive {
			return &domain.ProductUnavailableError{ProductID: item.ProductID}
		}
		if p.StockQuantity < item.Quantity {
			return &domain.InsufficientStockError{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: p.StockQuantity,
			}
		}
	}

	total := decimal.Zero
	for i := range order.Items {
		item := &order.Items[i]
		p := m.products[item.ProductID]
		p.StockQuantity -= item.Quantity
		p.Version++
		p.UpdatedAt = time.Now()

		m.nextOrderItemID++
		item.ID = m.nextOrderItemID
		item.OrderID = order.ID
		item.Price = p.Price
		total = total.Add(item.Subtotal())
	}
	order.TotalAmount = total

	cp := cloneOrder(order)
	m.orders[order.ID] = cp
	return nil
}

func (m *MemoryAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "order", ID: id}
	}
	return cloneOrder(o), nil
}

func (m *MemoryAdapter) ListOrdersByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	return m.filterOrders(limit, func(o *domain.Order) bool { return o.UserID == userID })
}

func (m *MemoryAdapter) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	return m.filterOrders(limit, func(o *domain.Order) bool { return o.Status == status })
}

func (m *MemoryAdapter) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	return m.filterOrders(limit, func(*domain.Order) bool { return true })
}

func (m *MemoryAdapter) filterOrders(limit int, keep func(*domain.Order) bool) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryAdapter) UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return &domain.NotFoundError{Entity: "order", ID: id}
	}
	if o.Status != from {
		return domain.ErrConcurrencyConflict
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryAdapter) CancelOrder(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return &domain.NotFoundError{Entity: "order", ID: id}
	}
	if o.Status == domain.OrderStatusCancelled {
		return nil
	}
	if !o.Status.Cancellable() {
		return &domain.InvalidTransitionError{From: o.Status, To: domain.OrderStatusCancelled}
	}
	for _, item := range o.Items {
		if p, ok := m.products[item.ProductID]; ok {
			p.StockQuantity += item.Quantity
			p.Version++
			p.UpdatedAt = time.Now()
		}
	}
	o.Status = domain.OrderStatusCancelled
	o.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryAdapter) MarkShipped(ctx context.Context, id, trackingNumber string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return &domain.NotFoundError{Entity: "order", ID: id}
	}
	if o.Status == domain.OrderStatusDelivered || o.Status == domain.OrderStatusCancelled {
		return &domain.InvalidTransitionError{From: o.Status, To: domain.OrderStatusShipped}
	}
	o.Status = domain.OrderStatusShipped
	o.TrackingNumber = trackingNumber
	o.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryAdapter) UpdatePaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return &domain.NotFoundError{Entity: "order", ID: id}
	}
	o.PaymentStatus = status
	o.UpdatedAt = time.Now()
	return nil
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = make([]domain.OrderItem, len(o.Items))
	copy(cp.Items, o.Items)
	return &cp
}
