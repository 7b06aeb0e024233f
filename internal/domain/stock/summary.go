package stock

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Summary holds the cached catalog figures for one (item, variant). It is a
// read model refreshed after every mutation; the ledger and the physical
// tables stay authoritative. The row also serves as the per-key lock that
// serializes ledger appends.
type Summary struct {
	ItemID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"item_id"`
	VariantID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"variant_id"`
	CurrentStock     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"current_stock"`
	AvailableForSale decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"available_for_sale"`
	LastCost         decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"last_cost"`
	LastPrice        decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"last_price"`
	UpdatedAt        time.Time       `gorm:"not null" json:"updated_at"`
}

// TableName returns the table name for GORM
func (Summary) TableName() string {
	return "stock_summaries"
}

// Key returns the (item, variant) key of the summary
func (s *Summary) Key() Key {
	return Key{ItemID: s.ItemID, VariantID: s.VariantID}
}

// NewSummary returns an empty summary for key
func NewSummary(key Key) *Summary {
	return &Summary{
		ItemID:    key.ItemID,
		VariantID: key.VariantID,
		UpdatedAt: time.Now(),
	}
}

// Recompute refreshes the cached figures from the physical rows of the key.
// Current stock counts everything on hand (batches plus AVAILABLE and
// ON_HOLD units); available-for-sale excludes held units. Last cost and price
// come from the most recently received batch or unit.
func (s *Summary) Recompute(batches []BatchStock, units []UnitStock) {
	current := decimal.Zero
	available := decimal.Zero
	var latest time.Time
	lastCost, lastPrice := s.LastCost, s.LastPrice

	for i := range batches {
		b := &batches[i]
		current = current.Add(b.AvailableQty)
		available = available.Add(b.AvailableQty)
		if b.ReceivedAt.After(latest) {
			latest = b.ReceivedAt
			lastCost, lastPrice = b.UnitCost, b.SellingPrice
		}
	}
	for i := range units {
		u := &units[i]
		if u.Status.OnHand() {
			current = current.Add(decimal.NewFromInt(1))
		}
		if u.Status == UnitAvailable {
			available = available.Add(decimal.NewFromInt(1))
		}
		if u.CreatedAt.After(latest) {
			latest = u.CreatedAt
			lastCost, lastPrice = u.UnitCost, u.SellingPrice
		}
	}

	s.CurrentStock = current
	s.AvailableForSale = available
	s.LastCost = lastCost
	s.LastPrice = lastPrice
	s.UpdatedAt = time.Now()
}
