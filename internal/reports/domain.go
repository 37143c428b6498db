// Package reports aggregates warehouse stock and dues figures for the
// operations dashboard.
package reports

import "time"

// StockPosition summarises stored quantity for one crop.
type StockPosition struct {
	CropID      int64  `json:"crop_id"`
	CropName    string `json:"crop_name"`
	OpenRecords int    `json:"open_records"`
	BagsStored  int    `json:"bags_stored"`
}

// DuesAgingBucket groups outstanding dues by how long the goods have been
// in store. The six and twelve month edges line up with the rent tiers.
type DuesAgingBucket struct {
	UpTo3Months  float64 `json:"up_to_3_months"`
	UpTo6Months  float64 `json:"up_to_6_months"`
	UpTo12Months float64 `json:"up_to_12_months"`
	Over12Months float64 `json:"over_12_months"`
}

// Total sums the bucket.
func (b DuesAgingBucket) Total() float64 {
	return b.UpTo3Months + b.UpTo6Months + b.UpTo12Months + b.Over12Months
}

// DashboardSummary is the operations landing page payload.
type DashboardSummary struct {
	AsOf               time.Time       `json:"as_of"`
	OpenRecords        int             `json:"open_records"`
	BagsStored         int             `json:"bags_stored"`
	OutstandingDues    float64         `json:"outstanding_dues"`
	CollectedThisMonth float64         `json:"collected_this_month"`
	Stock              []StockPosition `json:"stock"`
	DuesAging          DuesAgingBucket `json:"dues_aging"`
}
