package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tallyops/meridian/internal/billingperiod"
	bucketdomain "github.com/tallyops/meridian/internal/bucket/domain"
	"github.com/tallyops/meridian/internal/config"
	contractlinedomain "github.com/tallyops/meridian/internal/contractline/domain"
	obsmetrics "github.com/tallyops/meridian/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const lockTTL = 5 * time.Second

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Config     config.Config
	Locker     *Locker             `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	maxRetries int
	keys       keyedMutex
	locker     *Locker
	obsMetrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) bucketdomain.Ledger {
	maxRetries := p.Config.ReserveMaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{
		db:  p.DB,
		log: p.Log.Named("bucket.service"),

		genID:      p.GenID,
		maxRetries: maxRetries,
		locker:     p.Locker,
		obsMetrics: p.ObsMetrics,
	}
}

// Reserve serializes around a per-(bucket, period) key. The conditional
// UPDATE on consumed is the correctness boundary; the in-process mutex and
// the optional distributed lock only reduce conflict retries.
func (s *Service) Reserve(
	ctx context.Context,
	tx *gorm.DB,
	overlay contractlinedomain.BucketOverlay,
	period billingperiod.Period,
	quantity int64,
) (bucketdomain.Reservation, error) {
	if quantity <= 0 {
		return bucketdomain.Reservation{}, bucketdomain.ErrInvalidQuantity
	}
	if period.IsZero() || !period.End.After(period.Start) {
		return bucketdomain.Reservation{}, bucketdomain.ErrInvalidPeriod
	}

	conn := s.db
	if tx != nil {
		conn = tx
	}

	key := overlay.ID.String() + "|" + period.Key()
	unlock := s.keys.Lock(key)
	defer unlock()

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, "bucket:"+key, lockTTL)
		if err != nil {
			s.log.Warn("distributed bucket lock unavailable", zap.Error(err))
		} else if ok {
			defer func() {
				_ = s.locker.Release(context.Background(), "bucket:"+key, token)
			}()
		}
	}

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		entry, err := s.openEntry(ctx, conn, overlay, period)
		if err != nil {
			return bucketdomain.Reservation{}, err
		}

		filled := entry.Remaining()
		if filled > quantity {
			filled = quantity
		}
		overage := quantity - filled

		if filled == 0 {
			return bucketdomain.Reservation{Filled: 0, Overage: overage}, nil
		}

		result := conn.WithContext(ctx).Exec(
			`UPDATE bucket_ledger_entries
			 SET consumed = consumed + ?, updated_at = ?
			 WHERE id = ? AND consumed = ?`,
			filled,
			time.Now().UTC(),
			entry.ID,
			entry.Consumed,
		)
		if result.Error != nil {
			return bucketdomain.Reservation{}, result.Error
		}
		if result.RowsAffected == 1 {
			return bucketdomain.Reservation{Filled: filled, Overage: overage}, nil
		}

		// Lost the compare-and-set; another reservation moved consumed.
		if s.obsMetrics != nil {
			s.obsMetrics.RecordBucketConflict(ctx)
		}
		s.log.Debug("bucket reservation conflict, retrying",
			zap.String("bucket_id", overlay.ID.String()),
			zap.String("period", period.Key()),
			zap.Int("attempt", attempt+1),
		)
	}

	return bucketdomain.Reservation{}, bucketdomain.ErrCapacityRace
}

func (s *Service) Remaining(
	ctx context.Context,
	overlay contractlinedomain.BucketOverlay,
	period billingperiod.Period,
) (int64, error) {
	if period.IsZero() || !period.End.After(period.Start) {
		return 0, bucketdomain.ErrInvalidPeriod
	}

	entry, err := s.findEntry(ctx, s.db, overlay.ID, period.Start)
	if err != nil {
		return 0, err
	}
	if entry != nil {
		return entry.Remaining(), nil
	}

	carry, err := s.carryForward(ctx, s.db, overlay, period)
	if err != nil {
		return 0, err
	}
	return overlay.TotalQuantity + carry, nil
}

// openEntry loads the period's ledger entry, creating it on first use.
// Capacity is fixed at creation: total quantity plus rollover carry, with the
// carry capped at one bucket's total so capacity cannot accumulate without
// bound.
func (s *Service) openEntry(
	ctx context.Context,
	conn *gorm.DB,
	overlay contractlinedomain.BucketOverlay,
	period billingperiod.Period,
) (*bucketdomain.LedgerEntry, error) {
	entry, err := s.findEntry(ctx, conn, overlay.ID, period.Start)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		return entry, nil
	}

	carry, err := s.carryForward(ctx, conn, overlay, period)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	fresh := &bucketdomain.LedgerEntry{
		ID:          s.genID.Generate(),
		BucketID:    overlay.ID,
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
		Capacity:    overlay.TotalQuantity + carry,
		Consumed:    0,
		CarriedOver: carry,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// Concurrent openers race to insert; the loser re-reads the winner's row.
	result := conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bucket_id"}, {Name: "period_start"}},
		DoNothing: true,
	}).Create(fresh)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected > 0 {
		return fresh, nil
	}

	entry, err = s.findEntry(ctx, conn, overlay.ID, period.Start)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, bucketdomain.ErrCapacityRace
	}
	return entry, nil
}

func (s *Service) findEntry(ctx context.Context, conn *gorm.DB, bucketID snowflake.ID, periodStart time.Time) (*bucketdomain.LedgerEntry, error) {
	var entry bucketdomain.LedgerEntry
	err := conn.WithContext(ctx).
		Where("bucket_id = ? AND period_start = ?", bucketID, periodStart).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// carryForward returns the rollover carry for a period that has no entry
// yet: unused capacity from the most recent prior period, capped at the
// bucket's total quantity. Zero when rollover is disabled.
func (s *Service) carryForward(
	ctx context.Context,
	conn *gorm.DB,
	overlay contractlinedomain.BucketOverlay,
	period billingperiod.Period,
) (int64, error) {
	if !overlay.AllowRollover {
		return 0, nil
	}

	var prior bucketdomain.LedgerEntry
	err := conn.WithContext(ctx).
		Where("bucket_id = ? AND period_start < ?", overlay.ID, period.Start).
		Order("period_start DESC").
		First(&prior).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}

	carry := prior.Remaining()
	if carry > overlay.TotalQuantity {
		carry = overlay.TotalQuantity
	}
	return carry, nil
}
