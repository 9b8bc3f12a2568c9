package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	ratedomain "github.com/tallyops/meridian/internal/rate/domain"
	"gorm.io/datatypes"
)

// Allocation is the immutable billing decision for one chargeable unit: which
// line it billed against, the bucket split if any, and the price applied.
// UnitID carries the caller's idempotency key; resubmitting the same unit
// returns this row unchanged.
type Allocation struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	UnitID          string            `gorm:"type:varchar(128);not null;uniqueIndex" json:"unit_id"`
	ClientID        snowflake.ID      `gorm:"not null;index" json:"client_id"`
	ServiceID       snowflake.ID      `gorm:"not null;index" json:"service_id"`
	ContractLineID  snowflake.ID      `gorm:"not null;index" json:"contract_line_id"`
	BucketID        *snowflake.ID     `json:"bucket_id"`
	PeriodStart     time.Time         `gorm:"not null" json:"period_start"`
	PeriodEnd       time.Time         `gorm:"not null" json:"period_end"`
	Quantity        int64             `gorm:"not null" json:"quantity"`
	FilledQuantity  int64             `gorm:"not null;default:0" json:"filled_quantity"`
	OverageQuantity int64             `gorm:"not null;default:0" json:"overage_quantity"`
	UnitPriceCents  int64             `gorm:"not null;default:0" json:"unit_price_cents"`
	AmountCents     int64             `gorm:"not null;default:0" json:"amount_cents"`
	RateSource      ratedomain.Source `gorm:"type:text;not null" json:"rate_source"`
	Currency        string            `gorm:"type:varchar(8)" json:"currency"`
	OccurredAt      time.Time         `gorm:"not null;index" json:"occurred_at"`
	Metadata        datatypes.JSONMap `json:"metadata"`
	CreatedAt       time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Allocation) TableName() string { return "allocations" }
