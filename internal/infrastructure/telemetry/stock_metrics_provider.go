package telemetry

import (
	"context"

	"gorm.io/gorm"
)

// GormStockMetricsProvider implements StockMetricsProvider using GORM.
// It aggregates over the stock_summaries and catalog_items tables.
type GormStockMetricsProvider struct {
	db *gorm.DB
}

// NewGormStockMetricsProvider creates a new GormStockMetricsProvider.
func NewGormStockMetricsProvider(db *gorm.DB) *GormStockMetricsProvider {
	return &GormStockMetricsProvider{db: db}
}

// LowStockCount returns the number of stock keys at or below their item's reorder point.
func (p *GormStockMetricsProvider) LowStockCount(ctx context.Context) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Table("stock_summaries").
		Joins("JOIN catalog_items ON catalog_items.id = stock_summaries.item_id").
		Where("catalog_items.active = ? AND catalog_items.reorder_point > 0", true).
		Where("stock_summaries.current_stock <= catalog_items.reorder_point").
		Count(&count).Error
	return count, err
}

// NegativeStockCount returns the number of stock keys with a negative balance.
func (p *GormStockMetricsProvider) NegativeStockCount(ctx context.Context) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Table("stock_summaries").
		Where("current_stock < 0").
		Count(&count).Error
	return count, err
}

var _ StockMetricsProvider = (*GormStockMetricsProvider)(nil)
