package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/fieldpulse/repboard/internal/cycle"
	"github.com/fieldpulse/repboard/internal/snapshot/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, snap *domain.MetricSnapshot) error {
	return db.WithContext(ctx).Create(snap).Error
}

func (r *repo) Latest(ctx context.Context, db *gorm.DB, repID string, cycleNumber *int) (*domain.MetricSnapshot, error) {
	var snap domain.MetricSnapshot
	stmt := db.WithContext(ctx).
		Model(&domain.MetricSnapshot{}).
		Where("rep_id = ?", repID)
	if cycleNumber != nil {
		stmt = stmt.Where("cycle_number = ?", *cycleNumber)
	}
	err := stmt.
		Order("updated_at DESC, id DESC").
		Take(&snap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}

func (r *repo) ListByRep(ctx context.Context, db *gorm.DB, repID string, limit int, afterID snowflake.ID) ([]*domain.MetricSnapshot, error) {
	var snaps []*domain.MetricSnapshot
	stmt := db.WithContext(ctx).
		Model(&domain.MetricSnapshot{}).
		Where("rep_id = ?", repID)
	if afterID != 0 {
		stmt = stmt.Where("id < ?", afterID)
	}
	err := stmt.
		Order("id DESC").
		Limit(limit).
		Find(&snaps).Error
	if err != nil {
		return nil, err
	}
	return snaps, nil
}

func (r *repo) CountMissingCycle(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.MetricSnapshot{}).
		Where("cycle_number IS NULL").
		Count(&count).Error
	return count, err
}

func (r *repo) CountWithCycle(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.MetricSnapshot{}).
		Where("cycle_number IS NOT NULL").
		Count(&count).Error
	return count, err
}

func (r *repo) Count(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.MetricSnapshot{}).
		Count(&count).Error
	return count, err
}

func (r *repo) ListMissingCycle(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]*domain.MetricSnapshot, error) {
	var snaps []*domain.MetricSnapshot
	err := db.WithContext(ctx).
		Model(&domain.MetricSnapshot{}).
		Where("cycle_number IS NULL AND id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&snaps).Error
	if err != nil {
		return nil, err
	}
	return snaps, nil
}

func (r *repo) UpdateCycleFields(ctx context.Context, db *gorm.DB, id snowflake.ID, info cycle.Info) error {
	// UpdateColumns keeps updated_at untouched: stamping cycle metadata on a
	// historical snapshot must not promote it to "latest" for its
	// representative.
	result := db.WithContext(ctx).
		Model(&domain.MetricSnapshot{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"cycle_number":     info.Number,
			"cycle_start_date": info.Start,
			"cycle_end_date":   info.End,
			"day_in_cycle":     info.Day,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) ListPage(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]*domain.MetricSnapshot, error) {
	var snaps []*domain.MetricSnapshot
	err := db.WithContext(ctx).
		Model(&domain.MetricSnapshot{}).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&snaps).Error
	if err != nil {
		return nil, err
	}
	return snaps, nil
}
