package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for crops and tariffs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateCrop registers a new crop.
func (r *Repository) CreateCrop(ctx context.Context, input CreateCropInput) (*Crop, error) {
	query := `
		INSERT INTO crops (name, created_at, updated_at)
		VALUES ($1, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	var crop Crop
	err := r.pool.QueryRow(ctx, query, input.Name).Scan(&crop.ID, &crop.CreatedAt, &crop.UpdatedAt)
	if err != nil {
		return nil, err
	}
	crop.Name = input.Name
	return &crop, nil
}

// ListCrops returns all crops ordered by name.
func (r *Repository) ListCrops(ctx context.Context) ([]Crop, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at, updated_at FROM crops ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var crops []Crop
	for rows.Next() {
		var crop Crop
		if err := rows.Scan(&crop.ID, &crop.Name, &crop.CreatedAt, &crop.UpdatedAt); err != nil {
			return nil, err
		}
		crops = append(crops, crop)
	}
	return crops, rows.Err()
}

// GetTariff returns the tariff configured for a crop.
func (r *Repository) GetTariff(ctx context.Context, cropID int64) (*CropTariff, error) {
	query := `SELECT crop_id, price_6m, price_1y, updated_at FROM crop_tariffs WHERE crop_id = $1`

	var tariff CropTariff
	err := r.pool.QueryRow(ctx, query, cropID).Scan(&tariff.CropID, &tariff.Price6M, &tariff.Price1Y, &tariff.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTariffNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tariff, nil
}

// UpsertTariff inserts or replaces a crop's tariff.
func (r *Repository) UpsertTariff(ctx context.Context, input UpsertTariffInput) (*CropTariff, error) {
	query := `
		INSERT INTO crop_tariffs (crop_id, price_6m, price_1y, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (crop_id) DO UPDATE
		SET price_6m = EXCLUDED.price_6m, price_1y = EXCLUDED.price_1y, updated_at = NOW()
		RETURNING updated_at`

	tariff := CropTariff{CropID: input.CropID, Price6M: input.Price6M, Price1Y: input.Price1Y}
	err := r.pool.QueryRow(ctx, query, input.CropID, input.Price6M, input.Price1Y).Scan(&tariff.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &tariff, nil
}
