package event

import (
	"context"
	"errors"
	"time"

	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOutboxRepository stores outbox entries in the outbox_events table.
// Claim takes row locks with SKIP LOCKED on PostgreSQL so several engine
// instances can drain one outbox; SQLite serializes writers instead.
type GormOutboxRepository struct {
	db *gorm.DB
}

func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

func (r *GormOutboxRepository) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(entries).Error
}

func (r *GormOutboxRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*shared.OutboxEntry, error) {
	var entries []*shared.OutboxEntry
	err := r.db.WithContext(ctx).
		Where("status = ?", shared.OutboxStatusPending).
		Or("status = ? AND next_retry_at <= ?", shared.OutboxStatusFailed, now).
		Order("created_at").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *GormOutboxRepository) Claim(ctx context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	claimable := []shared.OutboxStatus{shared.OutboxStatusPending, shared.OutboxStatusFailed}

	var claimed []*shared.OutboxEntry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("id IN ? AND status IN ?", ids, claimable).
			Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}

		now := time.Now()
		won := make([]uuid.UUID, len(claimed))
		for i, e := range claimed {
			won[i] = e.ID
			e.Status = shared.OutboxStatusProcessing
			e.UpdatedAt = now
		}
		return tx.Model(&shared.OutboxEntry{}).
			Where("id IN ?", won).
			Updates(map[string]any{"status": shared.OutboxStatusProcessing, "updated_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *GormOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	entry.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(entry).Error
}

func (r *GormOutboxRepository) PurgeSent(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND processed_at < ?", shared.OutboxStatusSent, before).
		Delete(&shared.OutboxEntry{})
	return res.RowsAffected, res.Error
}

func (r *GormOutboxRepository) FindDead(ctx context.Context, page, pageSize int) ([]*shared.OutboxEntry, int64, error) {
	filter := shared.Filter{Page: page, PageSize: pageSize}
	dead := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&shared.OutboxEntry{}).Where("status = ?", shared.OutboxStatusDead)
	}

	var total int64
	if err := dead().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var entries []*shared.OutboxEntry
	if err := dead().Order("updated_at DESC").Offset(filter.Offset()).Limit(filter.Limit()).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *GormOutboxRepository) FindByID(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	var entry shared.OutboxEntry
	err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *GormOutboxRepository) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	var rows []struct {
		Status shared.OutboxStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&shared.OutboxEntry{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[shared.OutboxStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

var _ shared.OutboxRepository = (*GormOutboxRepository)(nil)
