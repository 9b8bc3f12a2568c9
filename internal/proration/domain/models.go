package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// FixedCharge is the recorded outcome of one fixed-fee run for one line and
// period. The checksum is derived from line, period, and amount, so re-running
// a period lands on the existing row instead of double-billing.
type FixedCharge struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	ContractLineID snowflake.ID `gorm:"not null;index" json:"contract_line_id"`
	ClientID       snowflake.ID `gorm:"not null;index" json:"client_id"`
	PeriodStart    time.Time    `gorm:"not null" json:"period_start"`
	PeriodEnd      time.Time    `gorm:"not null" json:"period_end"`
	ActiveDays     int          `gorm:"not null" json:"active_days"`
	PeriodDays     int          `gorm:"not null" json:"period_days"`
	AmountCents    int64        `gorm:"not null" json:"amount_cents"`
	Prorated       bool         `gorm:"not null;default:false" json:"prorated"`
	Checksum       string       `gorm:"type:varchar(64);not null;uniqueIndex" json:"checksum"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (FixedCharge) TableName() string { return "fixed_charges" }
