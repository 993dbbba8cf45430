package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"storefront/internal/core/domain"
	"storefront/internal/port"
)

// ProductService is the catalog read surface plus the one admin mutation the
// core needs: price changes, which never touch historical orders.
type ProductService struct {
	products port.ProductRepository
	log      zerolog.Logger
}

func NewProductService(products port.ProductRepository, logger zerolog.Logger) *ProductService {
	return &ProductService{
		products: products,
		log:      logger.With().Str("component", "product-service").Logger(),
	}
}

func (s *ProductService) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.products.GetProduct(ctx, id)
}

func (s *ProductService) ListActive(ctx context.Context, limit int) ([]domain.Product, error) {
	return s.products.ListActiveProducts(ctx, limit)
}

func (s *ProductService) ListFeatured(ctx context.Context, limit int) ([]domain.Product, error) {
	return s.products.ListFeaturedProducts(ctx, limit)
}

func (s *ProductService) Search(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	return s.products.SearchProducts(ctx, query, limit)
}

// SetPrice updates the catalog price. Orders already placed keep the unit
// price captured at purchase time.
func (s *ProductService) SetPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	if price.IsNegative() {
		return errors.New("price must not be negative")
	}
	if err := s.products.SetPrice(ctx, id, price); err != nil {
		return err
	}
	s.log.Info().Int64("product_id", id).Str("price", price.String()).Msg("price updated")
	return nil
}
