package billing

import "errors"

// Tariff resolves the per-bag rent tiers for a crop. Implementations are
// lookups only; persistence-backed resolvers live outside this package.
type Tariff interface {
	ResolveTariff(cropID int64) (CropPricing, error)
}

// StaticTariff resolves pricing from an in-memory map.
type StaticTariff map[int64]CropPricing

// ResolveTariff returns the configured pricing or a *PricingError.
func (t StaticTariff) ResolveTariff(cropID int64) (CropPricing, error) {
	pricing, ok := t[cropID]
	if !ok {
		return CropPricing{}, &PricingError{CropID: cropID}
	}
	return pricing, nil
}

// FallbackTariff answers with Default whenever the wrapped tariff has no
// pricing for a crop. This is the explicit caller-supplied-default policy;
// without it, missing pricing fails loudly.
type FallbackTariff struct {
	Base    Tariff
	Default CropPricing
}

// ResolveTariff resolves via Base, substituting Default on missing pricing.
func (t FallbackTariff) ResolveTariff(cropID int64) (CropPricing, error) {
	if t.Base == nil {
		return t.Default, nil
	}
	pricing, err := t.Base.ResolveTariff(cropID)
	if err != nil {
		var pe *PricingError
		if errors.As(err, &pe) {
			return t.Default, nil
		}
		return CropPricing{}, err
	}
	return pricing, nil
}
