package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"storefront/internal/core/domain"
	"storefront/internal/port"
)

// CartService manages the per-user staging area before checkout. Stock checks
// here are advisory only; the authoritative check happens again inside the
// order transaction, since stock can change between add-to-cart and checkout.
type CartService struct {
	carts    port.CartRepository
	products port.ProductRepository
	log      zerolog.Logger
}

func NewCartService(carts port.CartRepository, products port.ProductRepository, logger zerolog.Logger) *CartService {
	return &CartService{
		carts:    carts,
		products: products,
		log:      logger.With().Str("component", "cart-service").Logger(),
	}
}

// GetOrCreateCart returns the user's cart, creating it lazily on first use.
func (s *CartService) GetOrCreateCart(ctx context.Context, userID string) (*domain.Cart, error) {
	return s.carts.GetOrCreateCart(ctx, userID)
}

// AddItem puts quantity units of a product into the user's cart. If the cart
// already holds a line for the product the quantities merge, and the combined
// total is validated against current stock.
func (s *CartService) AddItem(ctx context.Context, userID string, productID int64, quantity int) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if !product.Sellable() {
		return &domain.ProductUnavailableError{ProductID: productID}
	}

	cart, err := s.carts.GetOrCreateCart(ctx, userID)
	if err != nil {
		return err
	}

	item, err := s.findLine(ctx, cart.ID, productID)
	if err != nil {
		return err
	}

	newQuantity := quantity
	if item != nil {
		newQuantity += item.Quantity
	}
	if newQuantity > product.StockQuantity {
		return &domain.InsufficientStockError{
			ProductID: productID,
			Requested: newQuantity,
			Available: product.StockQuantity,
		}
	}

	if item == nil {
		item = &domain.CartItem{CartID: cart.ID, ProductID: productID}
	}
	item.Quantity = newQuantity
	if err := s.carts.SaveCartItem(ctx, item); err != nil {
		return fmt.Errorf("save cart item: %w", err)
	}

	s.log.Debug().
		Str("user_id", userID).
		Int64("product_id", productID).
		Int("quantity", newQuantity).
		Msg("cart item saved")
	return nil
}

// UpdateQuantity applies a delta to a cart line. The line is removed outright
// when the resulting quantity drops to zero or below; otherwise the new
// quantity is re-validated against current stock.
func (s *CartService) UpdateQuantity(ctx context.Context, userID string, itemID int64, delta int) error {
	item, err := s.ownedLine(ctx, userID, itemID)
	if err != nil {
		return err
	}

	newQuantity := item.Quantity + delta
	if newQuantity <= 0 {
		return s.carts.DeleteCartItem(ctx, itemID)
	}

	product, err := s.products.GetProduct(ctx, item.ProductID)
	if err != nil {
		return err
	}
	if newQuantity > product.StockQuantity {
		return &domain.InsufficientStockError{
			ProductID: item.ProductID,
			Requested: newQuantity,
			Available: product.StockQuantity,
		}
	}

	item.Quantity = newQuantity
	return s.carts.SaveCartItem(ctx, item)
}

func (s *CartService) RemoveItem(ctx context.Context, userID string, itemID int64) error {
	if _, err := s.ownedLine(ctx, userID, itemID); err != nil {
		return err
	}
	return s.carts.DeleteCartItem(ctx, itemID)
}

// Clear removes every line from the user's cart. Clearing an already empty
// cart succeeds.
func (s *CartService) Clear(ctx context.Context, userID string) error {
	cart, err := s.carts.GetOrCreateCart(ctx, userID)
	if err != nil {
		return err
	}
	return s.carts.ClearCart(ctx, cart.ID)
}

func (s *CartService) Items(ctx context.Context, userID string) ([]domain.CartItem, error) {
	cart, err := s.carts.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.carts.GetCartItems(ctx, cart.ID)
}

// ItemCount is the number of units in the cart across all lines.
func (s *CartService) ItemCount(ctx context.Context, userID string) (int, error) {
	items, err := s.Items(ctx, userID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, item := range items {
		count += item.Quantity
	}
	return count, nil
}

// Total computes the live cart total from current catalog prices, unlike an
// order total which is frozen at purchase time. Lines whose product has been
// deactivated are skipped.
func (s *CartService) Total(ctx context.Context, userID string) (decimal.Decimal, error) {
	items, err := s.Items(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, item := range items {
		product, err := s.products.GetProduct(ctx, item.ProductID)
		if err != nil {
			var nf *domain.NotFoundError
			if errors.As(err, &nf) {
				continue
			}
			return decimal.Zero, err
		}
		if !product.Sellable() {
			continue
		}
		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total, nil
}

// ownedLine loads a cart line and verifies it belongs to the user's cart.
// Lines in other users' carts are reported as not found, never as forbidden.
func (s *CartService) ownedLine(ctx context.Context, userID string, itemID int64) (*domain.CartItem, error) {
	item, err := s.carts.GetCartItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	cart, err := s.carts.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if item.CartID != cart.ID {
		return nil, &domain.NotFoundError{Entity: "cart item", ID: fmt.Sprint(itemID)}
	}
	return item, nil
}

func (s *CartService) findLine(ctx context.Context, cartID, productID int64) (*domain.CartItem, error) {
	items, err := s.carts.GetCartItems(ctx, cartID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].ProductID == productID {
			return &items[i], nil
		}
	}
	return nil, nil
}
