// Package domain contains persistence models for per-representative metric snapshots.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// TeamKind classifies a representative and determines which metrics apply.
type TeamKind string

const (
	TeamKindER TeamKind = "ER"
	TeamKindRM TeamKind = "RM"
)

// Metric names tracked on snapshots. Values are percentage-like ratios.
const (
	MetricActivity      = "activity"
	MetricConversion    = "conversion"
	MetricUnitsPerAsset = "units_per_asset"
	MetricQuality       = "quality"
)

var (
	allowedMetrics = map[TeamKind][]string{
		TeamKindER: {MetricActivity, MetricConversion, MetricQuality},
		TeamKindRM: {MetricActivity, MetricUnitsPerAsset, MetricQuality},
	}
	requiredMetrics = map[TeamKind][]string{
		TeamKindER: {MetricActivity, MetricConversion},
		TeamKindRM: {MetricActivity, MetricUnitsPerAsset},
	}
)

// ParseTeamKind maps a raw row value to a known team kind.
func ParseTeamKind(raw string) (TeamKind, bool) {
	switch TeamKind(raw) {
	case TeamKindER:
		return TeamKindER, true
	case TeamKindRM:
		return TeamKindRM, true
	default:
		return "", false
	}
}

// AllowedMetrics returns the fixed metric set valid for a team kind,
// in a stable order.
func AllowedMetrics(kind TeamKind) []string {
	return allowedMetrics[kind]
}

// RequiredMetrics returns the metrics a row of this team kind must carry.
func RequiredMetrics(kind TeamKind) []string {
	return requiredMetrics[kind]
}

// MetricSnapshot stores one representative's reported state as of one
// report date. Ingestion only ever appends snapshots; the backfill engine
// is the single component allowed to mutate one, and only to add cycle
// metadata.
type MetricSnapshot struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	RepID      string            `gorm:"not null;index:idx_metric_snapshots_rep_updated,priority:1" json:"representative_id"`
	RepName    string            `gorm:"not null" json:"representative_name"`
	TeamKind   TeamKind          `gorm:"type:text;not null" json:"team_kind"`
	ReportDate time.Time         `gorm:"not null" json:"report_date"`
	Metrics    datatypes.JSONMap `gorm:"not null" json:"metrics"`

	CycleNumber    *int       `json:"cycle_number,omitempty"`
	CycleStartDate *time.Time `json:"cycle_start_date,omitempty"`
	CycleEndDate   *time.Time `json:"cycle_end_date,omitempty"`
	DayInCycle     *int       `json:"day_in_cycle,omitempty"`

	CreatedBy string    `gorm:"not null" json:"created_by"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_metric_snapshots_rep_updated,priority:2" json:"updated_at"`
}

// TableName sets the database table name.
func (MetricSnapshot) TableName() string { return "metric_snapshots" }

// MetricValue reads a named metric off the snapshot's sparse metric map.
// JSON round-trips hand numbers back as float64; older rows written by
// other tooling may scan as int64.
func (s *MetricSnapshot) MetricValue(name string) (float64, bool) {
	if s == nil || s.Metrics == nil {
		return 0, false
	}
	raw, ok := s.Metrics[name]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// HasCycleInfo reports whether all cycle metadata fields are set.
func (s *MetricSnapshot) HasCycleInfo() bool {
	return s.CycleNumber != nil && s.CycleStartDate != nil && s.CycleEndDate != nil && s.DayInCycle != nil
}
