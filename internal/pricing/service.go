package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/godown-erp/godown-erp/internal/billing"
)

// RepositoryPort defines data access methods for pricing.
type RepositoryPort interface {
	CreateCrop(ctx context.Context, input CreateCropInput) (*Crop, error)
	ListCrops(ctx context.Context) ([]Crop, error)
	GetTariff(ctx context.Context, cropID int64) (*CropTariff, error)
	UpsertTariff(ctx context.Context, input UpsertTariffInput) (*CropTariff, error)
}

// Service resolves tariffs for the billing core, caching lookups in Redis.
type Service struct {
	repo     RepositoryPort
	cache    *redis.Client
	cacheTTL time.Duration
}

// NewService builds Service. The cache client may be nil; lookups then go
// straight to the repository.
func NewService(repo RepositoryPort, cache *redis.Client, cacheTTL time.Duration) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &Service{repo: repo, cache: cache, cacheTTL: cacheTTL}
}

// CreateCrop registers a crop.
func (s *Service) CreateCrop(ctx context.Context, input CreateCropInput) (*Crop, error) {
	if input.Name == "" {
		return nil, errors.New("pricing: crop name required")
	}
	return s.repo.CreateCrop(ctx, input)
}

// ListCrops returns all crops.
func (s *Service) ListCrops(ctx context.Context) ([]Crop, error) {
	return s.repo.ListCrops(ctx)
}

// GetTariff returns a crop's tariff without touching the cache.
func (s *Service) GetTariff(ctx context.Context, cropID int64) (*CropTariff, error) {
	return s.repo.GetTariff(ctx, cropID)
}

// SetTariff upserts a crop's tariff and invalidates the cached entry.
func (s *Service) SetTariff(ctx context.Context, input UpsertTariffInput) (*CropTariff, error) {
	if input.CropID == 0 {
		return nil, errors.New("pricing: crop ID required")
	}
	if input.Price6M <= 0 || input.Price1Y <= 0 {
		return nil, errors.New("pricing: rates must be positive")
	}
	tariff, err := s.repo.UpsertTariff(ctx, input)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, tariffCacheKey(input.CropID)).Err()
	}
	return tariff, nil
}

// TariffForCrop resolves the billing pricing for a crop. A missing tariff
// surfaces as billing.ErrPricingNotConfigured so callers fail loudly
// instead of under-billing.
func (s *Service) TariffForCrop(ctx context.Context, cropID int64) (billing.CropPricing, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, tariffCacheKey(cropID)).Bytes()
		if err == nil {
			var pricing billing.CropPricing
			if err := json.Unmarshal(raw, &pricing); err == nil {
				return pricing, nil
			}
		}
	}

	tariff, err := s.repo.GetTariff(ctx, cropID)
	if errors.Is(err, ErrTariffNotFound) {
		return billing.CropPricing{}, &billing.PricingError{CropID: cropID}
	}
	if err != nil {
		return billing.CropPricing{}, err
	}

	pricing := billing.CropPricing{Price6M: tariff.Price6M, Price1Y: tariff.Price1Y}
	if s.cache != nil {
		if raw, err := json.Marshal(pricing); err == nil {
			_ = s.cache.Set(ctx, tariffCacheKey(cropID), raw, s.cacheTTL).Err()
		}
	}
	return pricing, nil
}

// ResolverForCrop materialises a pure billing.Tariff snapshot for one crop,
// suitable for deterministic bulk planning.
func (s *Service) ResolverForCrop(ctx context.Context, cropID int64) (billing.Tariff, error) {
	pricing, err := s.TariffForCrop(ctx, cropID)
	if err != nil {
		return nil, err
	}
	return billing.StaticTariff{cropID: pricing}, nil
}

func tariffCacheKey(cropID int64) string {
	return fmt.Sprintf("pricing:tariff:%d", cropID)
}
