package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/fieldpulse/repboard/internal/cycle"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("snapshot_not_found")

// Repository is the metric record store. Implementations must resolve
// latest-state with a store-side ordered, limited query; the store can hold
// many snapshots per representative.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, snap *MetricSnapshot) error

	// Latest returns the most recently updated snapshot for a
	// representative, optionally bounded to one cycle. A representative
	// with no history yields (nil, nil).
	Latest(ctx context.Context, db *gorm.DB, repID string, cycleNumber *int) (*MetricSnapshot, error)

	ListByRep(ctx context.Context, db *gorm.DB, repID string, limit int, afterID snowflake.ID) ([]*MetricSnapshot, error)

	CountMissingCycle(ctx context.Context, db *gorm.DB) (int64, error)
	CountWithCycle(ctx context.Context, db *gorm.DB) (int64, error)
	Count(ctx context.Context, db *gorm.DB) (int64, error)

	// ListMissingCycle pages through snapshots lacking cycle metadata in
	// ascending ID order, starting strictly after afterID. Keyset paging
	// keeps the scan moving even when individual records fail to migrate.
	ListMissingCycle(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]*MetricSnapshot, error)

	// UpdateCycleFields writes cycle metadata onto an existing snapshot.
	// This is the only mutation of a persisted snapshot the system performs.
	UpdateCycleFields(ctx context.Context, db *gorm.DB, id snowflake.ID, info cycle.Info) error

	// ListPage pages through all snapshots in ascending ID order for the
	// read-only validation scan.
	ListPage(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]*MetricSnapshot, error)
}
