// Package domain contains the bucket ledger: authoritative consumption state
// per bucket per billing period.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// LedgerEntry tracks consumption against one bucket for one period. Capacity
// is fixed at entry creation (total quantity plus any rollover carry);
// Consumed only grows, through Reserve.
type LedgerEntry struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	BucketID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_bucket_period,priority:1" json:"bucket_id"`
	PeriodStart time.Time    `gorm:"not null;uniqueIndex:ux_bucket_period,priority:2" json:"period_start"`
	PeriodEnd   time.Time    `gorm:"not null" json:"period_end"`
	Capacity    int64        `gorm:"not null" json:"capacity"`
	Consumed    int64        `gorm:"not null;default:0" json:"consumed"`
	CarriedOver int64        `gorm:"not null;default:0" json:"carried_over"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "bucket_ledger_entries" }

// Remaining returns the unconsumed capacity, never negative.
func (e LedgerEntry) Remaining() int64 {
	remaining := e.Capacity - e.Consumed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reservation is the split of one reserve call: how much the bucket absorbed
// versus how much spilled into overage.
type Reservation struct {
	Filled  int64 `json:"filled"`
	Overage int64 `json:"overage"`
}
