// Package domain defines proration: day-based fee adjustment for contract
// lines that start or end mid-period. Amounts are integer minor units with
// round-half-up at the final step only.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/tallyops/meridian/internal/billingperiod"
	contractlinedomain "github.com/tallyops/meridian/internal/contractline/domain"
)

// Result is one prorated amount with the day counts that produced it, kept
// for audit display alongside the charge.
type Result struct {
	AmountCents int64 `json:"amount_cents"`
	ActiveDays  int   `json:"active_days"`
	PeriodDays  int   `json:"period_days"`
	Prorated    bool  `json:"prorated"`
}

type Calculator interface {
	// Prorate computes the fee for one line over one billing period. A line
	// active for any part of a day is charged that whole day; same-day start
	// and end still counts as one day.
	Prorate(line contractlinedomain.ContractLine, period billingperiod.Period) Result

	// RunFixedFees computes and records fixed charges for every fixed-type
	// line of a client overlapping the period. Safe to re-run; existing
	// charges are returned, not duplicated.
	RunFixedFees(ctx context.Context, clientID snowflake.ID, period billingperiod.Period) ([]FixedCharge, error)
}

var (
	ErrInvalidPeriod = errors.New("invalid_period")
	ErrInvalidClient = errors.New("invalid_client")
)
