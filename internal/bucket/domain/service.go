package domain

import (
	"context"
	"errors"

	"github.com/tallyops/meridian/internal/billingperiod"
	contractlinedomain "github.com/tallyops/meridian/internal/contractline/domain"
	"gorm.io/gorm"
)

type Ledger interface {
	// Reserve atomically adds quantity to the period's consumed total and
	// returns the filled/overage split. Conflicting concurrent updates are
	// retried internally; callers never observe a partial reservation.
	// When tx is non-nil the reservation joins the caller's transaction.
	Reserve(ctx context.Context, tx *gorm.DB, overlay contractlinedomain.BucketOverlay, period billingperiod.Period, quantity int64) (Reservation, error)

	// Remaining reports unconsumed capacity for the period without
	// opening a ledger entry. Rollover carry is included.
	Remaining(ctx context.Context, overlay contractlinedomain.BucketOverlay, period billingperiod.Period) (int64, error)
}

var (
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrInvalidPeriod   = errors.New("invalid_period")

	// ErrCapacityRace is returned only after the bounded internal retry
	// loop is exhausted; it indicates pathological contention, not a
	// business failure.
	ErrCapacityRace = errors.New("bucket_capacity_race")
)
