package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tallyops/meridian/internal/billingperiod"
	contractlinedomain "github.com/tallyops/meridian/internal/contractline/domain"
	obsmetrics "github.com/tallyops/meridian/internal/observability/metrics"
	prorationdomain "github.com/tallyops/meridian/internal/proration/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	obsMetrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) prorationdomain.Calculator {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("proration.service"),

		genID:      p.GenID,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Prorate(
	line contractlinedomain.ContractLine,
	period billingperiod.Period,
) prorationdomain.Result {
	periodDays := period.Days()
	if periodDays <= 0 {
		return prorationdomain.Result{}
	}

	activeDays := activeDaysIn(line, period)
	if activeDays <= 0 {
		return prorationdomain.Result{PeriodDays: periodDays}
	}

	if !line.EnableProration || activeDays >= periodDays {
		return prorationdomain.Result{
			AmountCents: line.MonthlyRateCents,
			ActiveDays:  periodDays,
			PeriodDays:  periodDays,
			Prorated:    false,
		}
	}

	return prorationdomain.Result{
		AmountCents: roundHalfUp(line.MonthlyRateCents*int64(activeDays), int64(periodDays)),
		ActiveDays:  activeDays,
		PeriodDays:  periodDays,
		Prorated:    true,
	}
}

func (s *Service) RunFixedFees(
	ctx context.Context,
	clientID snowflake.ID,
	period billingperiod.Period,
) ([]prorationdomain.FixedCharge, error) {
	if clientID == 0 {
		return nil, prorationdomain.ErrInvalidClient
	}
	if period.IsZero() || !period.End.After(period.Start) {
		return nil, prorationdomain.ErrInvalidPeriod
	}

	var lines []contractlinedomain.ContractLine
	err := s.db.WithContext(ctx).
		Where("client_id = ? AND billing_type = ?", clientID, contractlinedomain.BillingTypeFixed).
		Where("start_date < ? AND (end_date IS NULL OR end_date >= ?)", period.End, period.Start).
		Order("id ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}

	charges := make([]prorationdomain.FixedCharge, 0, len(lines))
	for _, line := range lines {
		result := s.Prorate(line, period)
		if result.ActiveDays == 0 {
			continue
		}

		charge, err := s.recordCharge(ctx, line, period, result)
		if err != nil {
			return nil, err
		}
		charges = append(charges, *charge)
	}

	return charges, nil
}

// recordCharge inserts the charge keyed by checksum. A re-run of the same
// period produces the same checksum and lands on the existing row.
func (s *Service) recordCharge(
	ctx context.Context,
	line contractlinedomain.ContractLine,
	period billingperiod.Period,
	result prorationdomain.Result,
) (*prorationdomain.FixedCharge, error) {
	checksum := chargeChecksum(line.ID, period, result.AmountCents)

	charge := &prorationdomain.FixedCharge{
		ID:             s.genID.Generate(),
		ContractLineID: line.ID,
		ClientID:       line.ClientID,
		PeriodStart:    period.Start,
		PeriodEnd:      period.End,
		ActiveDays:     result.ActiveDays,
		PeriodDays:     result.PeriodDays,
		AmountCents:    result.AmountCents,
		Prorated:       result.Prorated,
		Checksum:       checksum,
		CreatedAt:      time.Now().UTC(),
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "checksum"}},
		DoNothing: true,
	}).Create(charge)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		if s.obsMetrics != nil {
			s.obsMetrics.RecordFixedCharge(ctx)
		}
		s.log.Info("fixed charge recorded",
			zap.String("contract_line_id", line.ID.String()),
			zap.String("period", period.Key()),
			zap.Int64("amount_cents", result.AmountCents),
			zap.Bool("prorated", result.Prorated),
		)
		return charge, nil
	}

	var existing prorationdomain.FixedCharge
	if err := s.db.WithContext(ctx).Where("checksum = ?", checksum).First(&existing).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

// activeDaysIn counts the calendar days within the period the line is in
// effect. The line's end date is inclusive; a line starting and ending on the
// same day is active for one day.
func activeDaysIn(line contractlinedomain.ContractLine, period billingperiod.Period) int {
	from := dayOf(line.StartDate)
	if from.Before(period.Start) {
		from = period.Start
	}

	to := period.End
	if line.EndDate != nil {
		lineEnd := dayOf(*line.EndDate).AddDate(0, 0, 1)
		if lineEnd.Before(to) {
			to = lineEnd
		}
	}

	if !to.After(from) {
		if overlaps(line, period) {
			return 1
		}
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}

func overlaps(line contractlinedomain.ContractLine, period billingperiod.Period) bool {
	if !dayOf(line.StartDate).Before(period.End) {
		return false
	}
	if line.EndDate != nil && dayOf(*line.EndDate).Before(period.Start) {
		return false
	}
	return true
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// roundHalfUp divides numerator by denominator in integer arithmetic,
// rounding .5 away from zero. Both arguments must be non-negative.
func roundHalfUp(numerator, denominator int64) int64 {
	return (2*numerator + denominator) / (2 * denominator)
}

func chargeChecksum(lineID snowflake.ID, period billingperiod.Period, amountCents int64) string {
	payload := fmt.Sprintf("%s|%s|%d", lineID.String(), period.Key(), amountCents)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
