package pricing

import (
	"errors"
	"time"
)

// Crop is a stored commodity.
type Crop struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CropTariff holds per-bag rent rates for one crop.
type CropTariff struct {
	CropID    int64
	Price6M   float64
	Price1Y   float64
	UpdatedAt time.Time
}

// CreateCropInput for registering a crop.
type CreateCropInput struct {
	Name string
}

// UpsertTariffInput for setting a crop's rates.
type UpsertTariffInput struct {
	CropID  int64
	Price6M float64
	Price1Y float64
}

// ErrTariffNotFound indicates no tariff row exists for a crop.
var ErrTariffNotFound = errors.New("pricing: tariff not found")
