package port

import (
	"context"

	"github.com/shopspring/decimal"

	"storefront/internal/core/domain"
)

type ProductRepository interface {
	// GetProduct retrieves a product by ID, NotFoundError when absent.
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)

	ListActiveProducts(ctx context.Context, limit int) ([]domain.Product, error)
	ListFeaturedProducts(ctx context.Context, limit int) ([]domain.Product, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error)

	// SetPrice changes the catalog price. Existing orders keep the price
	// captured at purchase time.
	SetPrice(ctx context.Context, id int64, price decimal.Decimal) error
}

type CartRepository interface {
	// GetOrCreateCart returns the user's cart, creating it on first use.
	GetOrCreateCart(ctx context.Context, userID string) (*domain.Cart, error)

	GetCartItems(ctx context.Context, cartID int64) ([]domain.CartItem, error)

	// GetCartItem retrieves a single line by ID, NotFoundError when absent.
	GetCartItem(ctx context.Context, itemID int64) (*domain.CartItem, error)

	// SaveCartItem inserts the line or, when ID is set, updates it.
	SaveCartItem(ctx context.Context, item *domain.CartItem) error

	DeleteCartItem(ctx context.Context, itemID int64) error

	// ClearCart removes every line. Clearing an empty cart is a no-op.
	ClearCart(ctx context.Context, cartID int64) error
}

type OrderRepository interface {
	// CreateOrder persists the order and decrements stock for every line as
	// one transaction. Unit prices and the order total are captured from the
	// product rows inside that transaction and written back into the order.
	// The whole operation aborts without effect on the first line that is
	// missing, inactive or short on stock.
	CreateOrder(ctx context.Context, order *domain.Order) error

	// GetOrder retrieves an order with its items, NotFoundError when absent.
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	ListOrdersByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error)
	ListOrdersByStatus(ctx context.Context, status domain.OrderStatus, limit int) ([]domain.Order, error)
	ListOrders(ctx context.Context, limit int) ([]domain.Order, error)

	// UpdateOrderStatus moves the order from one status to another,
	// conditional on the current status. ErrConcurrencyConflict signals that
	// the row moved underneath the caller.
	UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus) error

	// CancelOrder restores stock for every order line and marks the order
	// cancelled as one transaction. InvalidTransitionError when the order
	// has already shipped or been delivered.
	CancelOrder(ctx context.Context, id string) error

	// MarkShipped stores the tracking number and forces the status to
	// shipped from any pre-shipment stage.
	MarkShipped(ctx context.Context, id, trackingNumber string) error

	UpdatePaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) error
}
