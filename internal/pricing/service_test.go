package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/godown-erp/godown-erp/internal/billing"
)

type memoryPricingRepo struct {
	crops      map[int64]*Crop
	tariffs    map[int64]*CropTariff
	nextCropID int64
	getCalls   int
}

func newMemoryPricingRepo() *memoryPricingRepo {
	return &memoryPricingRepo{
		crops:   make(map[int64]*Crop),
		tariffs: make(map[int64]*CropTariff),
	}
}

func (r *memoryPricingRepo) CreateCrop(ctx context.Context, input CreateCropInput) (*Crop, error) {
	r.nextCropID++
	crop := &Crop{ID: r.nextCropID, Name: input.Name, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	r.crops[crop.ID] = crop
	return crop, nil
}

func (r *memoryPricingRepo) ListCrops(ctx context.Context) ([]Crop, error) {
	var out []Crop
	for _, crop := range r.crops {
		out = append(out, *crop)
	}
	return out, nil
}

func (r *memoryPricingRepo) GetTariff(ctx context.Context, cropID int64) (*CropTariff, error) {
	r.getCalls++
	tariff, ok := r.tariffs[cropID]
	if !ok {
		return nil, ErrTariffNotFound
	}
	return tariff, nil
}

func (r *memoryPricingRepo) UpsertTariff(ctx context.Context, input UpsertTariffInput) (*CropTariff, error) {
	tariff := &CropTariff{CropID: input.CropID, Price6M: input.Price6M, Price1Y: input.Price1Y, UpdatedAt: time.Now()}
	r.tariffs[input.CropID] = tariff
	return tariff, nil
}

func newTestCache(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestTariffForCropMissing(t *testing.T) {
	svc := NewService(newMemoryPricingRepo(), nil, 0)
	_, err := svc.TariffForCrop(context.Background(), 1)
	require.ErrorIs(t, err, billing.ErrPricingNotConfigured)
}

func TestTariffForCropCaches(t *testing.T) {
	repo := newMemoryPricingRepo()
	svc := NewService(repo, newTestCache(t), time.Minute)
	ctx := context.Background()

	_, err := svc.SetTariff(ctx, UpsertTariffInput{CropID: 7, Price6M: 36, Price1Y: 55})
	require.NoError(t, err)

	pricing, err := svc.TariffForCrop(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, billing.CropPricing{Price6M: 36, Price1Y: 55}, pricing)
	firstCalls := repo.getCalls

	pricing, err = svc.TariffForCrop(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 55.0, pricing.Price1Y)
	require.Equal(t, firstCalls, repo.getCalls, "second lookup must hit the cache")
}

func TestSetTariffInvalidatesCache(t *testing.T) {
	repo := newMemoryPricingRepo()
	svc := NewService(repo, newTestCache(t), time.Minute)
	ctx := context.Background()

	_, err := svc.SetTariff(ctx, UpsertTariffInput{CropID: 7, Price6M: 36, Price1Y: 55})
	require.NoError(t, err)
	_, err = svc.TariffForCrop(ctx, 7)
	require.NoError(t, err)

	_, err = svc.SetTariff(ctx, UpsertTariffInput{CropID: 7, Price6M: 40, Price1Y: 60})
	require.NoError(t, err)

	pricing, err := svc.TariffForCrop(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 40.0, pricing.Price6M)
}

func TestSetTariffValidation(t *testing.T) {
	svc := NewService(newMemoryPricingRepo(), nil, 0)
	_, err := svc.SetTariff(context.Background(), UpsertTariffInput{CropID: 0, Price6M: 36, Price1Y: 55})
	require.Error(t, err)
	_, err = svc.SetTariff(context.Background(), UpsertTariffInput{CropID: 1, Price6M: 0, Price1Y: 55})
	require.Error(t, err)
}

func TestResolverForCrop(t *testing.T) {
	repo := newMemoryPricingRepo()
	svc := NewService(repo, nil, 0)
	ctx := context.Background()

	_, err := svc.SetTariff(ctx, UpsertTariffInput{CropID: 7, Price6M: 36, Price1Y: 55})
	require.NoError(t, err)

	tariff, err := svc.ResolverForCrop(ctx, 7)
	require.NoError(t, err)
	pricing, err := tariff.ResolveTariff(7)
	require.NoError(t, err)
	require.Equal(t, 36.0, pricing.Price6M)

	_, err = tariff.ResolveTariff(8)
	require.ErrorIs(t, err, billing.ErrPricingNotConfigured)
}
