package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"storefront/internal/core/domain"
	"storefront/internal/port"
)

const (
	defaultMaxRetries   = 3
	defaultMaxStageSkip = 1
	defaultQueueSize    = 1024
)

// LifecyclePolicy bounds how far Advance may jump along the happy path.
// MaxStageSkip is the number of intermediate stages a single call may skip;
// the default of 1 lets pending go straight to processing but not to shipped.
type LifecyclePolicy struct {
	MaxStageSkip int
}

type OrderServiceConfig struct {
	QueueSize  int
	MaxRetries int
	Lifecycle  LifecyclePolicy
}

// OrderService converts carts into orders with all-or-nothing stock
// reservation and drives orders through their status lifecycle. The cache is
// optional; when present it fast-fails sold-out purchases and serves
// idempotency keys, but the database transaction stays authoritative.
type OrderService struct {
	orders     port.OrderRepository
	carts      port.CartRepository
	cache      port.CacheRepository
	maxRetries int
	policy     LifecyclePolicy
	log        zerolog.Logger
	syncQueue  chan int64
}

func NewOrderService(orders port.OrderRepository, carts port.CartRepository, cache port.CacheRepository, logger zerolog.Logger, cfg OrderServiceConfig) *OrderService {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Lifecycle.MaxStageSkip < 0 {
		cfg.Lifecycle.MaxStageSkip = defaultMaxStageSkip
	}
	return &OrderService{
		orders:     orders,
		carts:      carts,
		cache:      cache,
		maxRetries: cfg.MaxRetries,
		policy:     cfg.Lifecycle,
		log:        logger.With().Str("component", "order-service").Logger(),
		syncQueue:  make(chan int64, cfg.QueueSize),
	}
}

type PlaceOrderInput struct {
	UserID          string
	CartID          int64
	ShippingAddress string
	Phone           string

	// RequestID is an optional client-chosen idempotency token. Resubmitting
	// the same token while the first attempt stands returns ErrDuplicateRequest.
	RequestID string
}

// PlaceOrder converts the cart into a pending order, capturing unit prices at
// commit time and decrementing stock for every line in one transaction. The
// cart is left untouched; clearing it is the caller's follow-up once it has
// confirmed the result.
func (s *OrderService) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*domain.Order, error) {
	idemKey, err := s.claimIdempotency(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}

	items, err := s.carts.GetCartItems(ctx, in.CartID)
	if err != nil {
		s.releaseIdempotency(idemKey)
		return nil, fmt.Errorf("load cart items: %w", err)
	}
	if len(items) == 0 {
		s.releaseIdempotency(idemKey)
		return nil, domain.ErrEmptyCart
	}

	order := &domain.Order{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		Status:          domain.OrderStatusPending,
		ShippingAddress: in.ShippingAddress,
		Phone:           in.Phone,
		PaymentMethod:   "credit_card",
		PaymentStatus:   domain.PaymentStatusPending,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	for _, item := range items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	reserved, err := s.reserveCached(ctx, order.Items)
	if err != nil {
		s.releaseIdempotency(idemKey)
		return nil, err
	}

	err = s.withRetry(ctx, func() error {
		return s.orders.CreateOrder(ctx, order)
	})
	if err != nil {
		s.rollbackCached(reserved)
		s.releaseIdempotency(idemKey)
		return nil, err
	}

	for _, item := range order.Items {
		s.enqueueSync(item.ProductID)
	}

	s.log.Info().
		Str("order_id", order.ID).
		Str("user_id", order.UserID).
		Int("lines", len(order.Items)).
		Str("total", order.TotalAmount.String()).
		Msg("order placed")

	return order, nil
}

// CancelOrder restores stock for every line and marks the order cancelled as
// one atomic unit. Orders that have shipped or been delivered are refused.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) error {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	// Already cancelled: stock was restored by the first cancel, so none of
	// the compensation below may run again.
	if order.Status == domain.OrderStatusCancelled {
		return nil
	}

	err = s.withRetry(ctx, func() error {
		return s.orders.CancelOrder(ctx, orderID)
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		ctx := context.WithoutCancel(ctx)
		for _, item := range order.Items {
			if cerr := s.cache.IncrementStock(ctx, item.ProductID, item.Quantity); cerr != nil {
				s.log.Warn().Err(cerr).Int64("product_id", item.ProductID).Msg("cache restore failed")
			}
		}
	}
	for _, item := range order.Items {
		s.enqueueSync(item.ProductID)
	}

	s.log.Info().Str("order_id", orderID).Msg("order cancelled, stock restored")
	return nil
}

// Confirm moves a pending order to confirmed. Any other starting status is an
// invalid transition.
func (s *OrderService) Confirm(ctx context.Context, orderID string) error {
	return s.withRetry(ctx, func() error {
		order, err := s.orders.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusPending {
			return &domain.InvalidTransitionError{From: order.Status, To: domain.OrderStatusConfirmed}
		}
		return s.orders.UpdateOrderStatus(ctx, orderID, order.Status, domain.OrderStatusConfirmed)
	})
}

// Advance moves an order forward along the happy path. Backward moves and
// jumps that skip more stages than the lifecycle policy allows are refused.
func (s *OrderService) Advance(ctx context.Context, orderID string, next domain.OrderStatus) error {
	return s.withRetry(ctx, func() error {
		order, err := s.orders.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		dist, ok := domain.StageDistance(order.Status, next)
		if !ok || dist > 1+s.policy.MaxStageSkip {
			return &domain.InvalidTransitionError{From: order.Status, To: next}
		}
		return s.orders.UpdateOrderStatus(ctx, orderID, order.Status, next)
	})
}

// Ship attaches a tracking number and forces the status straight to shipped,
// even from pending or confirmed. This shortcut is deliberate: the warehouse
// hands orders to the carrier without waiting for the processing stage.
// TODO(lifecycle): product owners to decide whether Ship should require
// processing first; keep the jump until they do.
func (s *OrderService) Ship(ctx context.Context, orderID, trackingNumber string) error {
	if trackingNumber == "" {
		return errors.New("tracking number required")
	}
	err := s.withRetry(ctx, func() error {
		return s.orders.MarkShipped(ctx, orderID, trackingNumber)
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("order_id", orderID).Str("tracking", trackingNumber).Msg("order shipped")
	return nil
}

func (s *OrderService) UpdatePaymentStatus(ctx context.Context, orderID string, status domain.PaymentStatus) error {
	switch status {
	case domain.PaymentStatusPending, domain.PaymentStatusPaid, domain.PaymentStatusRefunded, domain.PaymentStatusFailed:
	default:
		return fmt.Errorf("unknown payment status %q", status)
	}
	return s.orders.UpdatePaymentStatus(ctx, orderID, status)
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.orders.GetOrder(ctx, orderID)
}

func (s *OrderService) ListUserOrders(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	return s.orders.ListOrdersByUser(ctx, userID, limit)
}

func (s *OrderService) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown order status %q", status)
	}
	return s.orders.ListOrdersByStatus(ctx, status, limit)
}

func (s *OrderService) ListAllOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	return s.orders.ListOrders(ctx, limit)
}

// StockSyncQueue exposes product IDs whose cached stock counters need a
// refresh from the database. Workers drain it; see cmd/server.
func (s *OrderService) StockSyncQueue() <-chan int64 {
	return s.syncQueue
}

func (s *OrderService) Close() {
	close(s.syncQueue)
}

// withRetry re-runs fn on optimistic-lock conflicts a bounded number of
// times, then surfaces ErrConcurrencyConflict.
func (s *OrderService) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err = fn()
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return domain.ErrConcurrencyConflict
}

func (s *OrderService) claimIdempotency(ctx context.Context, requestID string) (string, error) {
	if requestID == "" || s.cache == nil {
		return "", nil
	}
	key := "order:req:" + requestID
	ok, err := s.cache.SetIdempotency(ctx, key)
	if err != nil {
		// Cache outage must not block sales; skip the idempotency guard.
		s.log.Warn().Err(err).Msg("idempotency check unavailable")
		return "", nil
	}
	if !ok {
		return "", domain.ErrDuplicateRequest
	}
	return key, nil
}

func (s *OrderService) releaseIdempotency(key string) {
	if key == "" || s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.cache.ReleaseIdempotency(ctx, key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("release idempotency failed")
	}
}

// reserveCached fast-fails purchases that the cache already knows cannot
// succeed. It returns the lines decremented in cache so the caller can roll
// them back if the database refuses the order.
func (s *OrderService) reserveCached(ctx context.Context, items []domain.OrderItem) ([]domain.OrderItem, error) {
	if s.cache == nil {
		return nil, nil
	}
	var reserved []domain.OrderItem
	for _, item := range items {
		ok, err := s.cache.DecrementStock(ctx, item.ProductID, item.Quantity)
		if err != nil {
			// Degrade to database-only validation.
			s.log.Warn().Err(err).Msg("cache reservation unavailable")
			s.rollbackCached(reserved)
			return nil, nil
		}
		if !ok {
			s.rollbackCached(reserved)
			available := 0
			if n, hit, gerr := s.cache.GetStock(ctx, item.ProductID); gerr == nil && hit {
				available = n
			}
			return nil, &domain.InsufficientStockError{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: available,
			}
		}
		reserved = append(reserved, item)
	}
	return reserved, nil
}

func (s *OrderService) rollbackCached(reserved []domain.OrderItem) {
	if s.cache == nil || len(reserved) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, item := range reserved {
		if err := s.cache.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			s.log.Error().Err(err).Int64("product_id", item.ProductID).Msg("cache rollback failed")
		}
	}
}

func (s *OrderService) enqueueSync(productID int64) {
	select {
	case s.syncQueue <- productID:
	default:
		// Cache refresh is best effort; drop when the queue is full.
	}
}
