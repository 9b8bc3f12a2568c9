package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	allocationdomain "github.com/tallyops/meridian/internal/allocation/domain"
	"github.com/tallyops/meridian/internal/billingperiod"
	bucketdomain "github.com/tallyops/meridian/internal/bucket/domain"
	"github.com/tallyops/meridian/internal/clock"
	"github.com/tallyops/meridian/internal/config"
	contractlinedomain "github.com/tallyops/meridian/internal/contractline/domain"
	obsmetrics "github.com/tallyops/meridian/internal/observability/metrics"
	ratedomain "github.com/tallyops/meridian/internal/rate/domain"
	resolverdomain "github.com/tallyops/meridian/internal/resolver/domain"
	"github.com/tallyops/meridian/pkg/db/option"
	"github.com/tallyops/meridian/pkg/db/pagination"
	"github.com/tallyops/meridian/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// errAllocationExists aborts the write transaction when another submission of
// the same unit won the insert; the reservation rolls back with it.
var errAllocationExists = errors.New("allocation_exists")

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Lines      contractlinedomain.Service
	Rates      ratedomain.Resolver
	Ledger     bucketdomain.Ledger
	Resolver   resolverdomain.Resolver
	Policy     *config.PolicyConfigHolder
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	lines      contractlinedomain.Service
	rates      ratedomain.Resolver
	ledger     bucketdomain.Ledger
	resolver   resolverdomain.Resolver
	policy     *config.PolicyConfigHolder
	allocrepo  repository.Repository[allocationdomain.Allocation]
	obsMetrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) allocationdomain.Orchestrator {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("allocation.service"),

		genID:      p.GenID,
		clock:      p.Clock,
		lines:      p.Lines,
		rates:      p.Rates,
		ledger:     p.Ledger,
		resolver:   p.Resolver,
		policy:     p.Policy,
		allocrepo:  repository.ProvideStore[allocationdomain.Allocation](p.DB),
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Allocate(ctx context.Context, req allocationdomain.AllocateRequest) (*allocationdomain.Allocation, error) {
	alloc, err := s.allocate(ctx, req)
	if err != nil {
		if s.obsMetrics != nil {
			s.obsMetrics.RecordAllocationFailure(ctx, allocationdomain.FailureReason(err))
		}
		return nil, err
	}
	return alloc, nil
}

func (s *Service) allocate(ctx context.Context, req allocationdomain.AllocateRequest) (*allocationdomain.Allocation, error) {
	unitID := strings.TrimSpace(req.UnitID)
	if unitID == "" {
		return nil, allocationdomain.ErrInvalidUnit
	}
	if req.Quantity <= 0 {
		return nil, allocationdomain.ErrInvalidQuantity
	}
	clientID, err := parseID(req.ClientID)
	if err != nil {
		return nil, allocationdomain.ErrInvalidClient
	}
	serviceID, err := parseID(req.ServiceID)
	if err != nil {
		return nil, allocationdomain.ErrInvalidService
	}

	var explicitLineID *snowflake.ID
	if strings.TrimSpace(req.ContractLineID) != "" {
		id, err := parseID(req.ContractLineID)
		if err != nil {
			return nil, contractlinedomain.ErrLineNotFound
		}
		explicitLineID = &id
	}

	occurredAt := req.OccurredAt.UTC()
	if occurredAt.IsZero() {
		occurredAt = s.clock.Now().UTC()
	}

	// Fast path for resubmission; the unique index below closes the race.
	if existing, err := s.findByUnitID(ctx, unitID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	snapshots, err := s.lines.EligibleLines(ctx, clientID, serviceID, occurredAt)
	if err != nil {
		return nil, err
	}

	candidates, err := s.buildCandidates(ctx, snapshots, serviceID, occurredAt)
	if err != nil {
		return nil, err
	}

	chosen, err := s.resolver.Resolve(candidates, occurredAt, explicitLineID)
	if err != nil {
		return nil, err
	}

	alloc := &allocationdomain.Allocation{
		ID:             s.genID.Generate(),
		UnitID:         unitID,
		ClientID:       clientID,
		ServiceID:      serviceID,
		ContractLineID: chosen.Snapshot.Line.ID,
		Quantity:       req.Quantity,
		OccurredAt:     occurredAt,
		Metadata:       datatypes.JSONMap(req.Metadata),
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.price(ctx, alloc, chosen, req.Quantity, occurredAt); err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if chosen.Bucket != nil {
			reservation, err := s.ledger.Reserve(ctx, tx, *chosen.Bucket, chosen.BucketPeriod, req.Quantity)
			if err != nil {
				return err
			}
			applyReservation(alloc, *chosen.Bucket, reservation)
		}

		result := tx.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "unit_id"}},
			DoNothing: true,
		}).Create(alloc)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errAllocationExists
		}
		return nil
	})
	if errors.Is(err, errAllocationExists) {
		existing, ferr := s.findByUnitID(ctx, unitID)
		if ferr != nil {
			return nil, ferr
		}
		if existing == nil {
			return nil, allocationdomain.ErrNotFound
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordAllocation(ctx, string(alloc.RateSource))
	}
	s.log.Info("unit allocated",
		zap.String("unit_id", alloc.UnitID),
		zap.String("contract_line_id", alloc.ContractLineID.String()),
		zap.String("rate_source", string(alloc.RateSource)),
		zap.Int64("amount_cents", alloc.AmountCents),
	)
	return alloc, nil
}

func (s *Service) AllocateBatch(ctx context.Context, req allocationdomain.BatchRequest) (allocationdomain.BatchResult, error) {
	if s.policy != nil {
		if max := s.policy.Get().MaxBatchUnits; max > 0 && len(req.Units) > max {
			return allocationdomain.BatchResult{}, allocationdomain.ErrBatchTooLarge
		}
	}

	result := allocationdomain.BatchResult{
		Allocations: make([]allocationdomain.Allocation, 0, len(req.Units)),
	}

	for _, unit := range req.Units {
		alloc, err := s.Allocate(ctx, unit)
		if err != nil {
			reason := allocationdomain.FailureReason(err)
			if reason == "internal_error" {
				s.log.Error("batch unit failed",
					zap.String("unit_id", unit.UnitID),
					zap.Error(err),
				)
			}
			result.Failures = append(result.Failures, allocationdomain.Failure{
				UnitID: unit.UnitID,
				Reason: reason,
			})
			continue
		}
		result.Allocations = append(result.Allocations, *alloc)
	}

	return result, nil
}

func (s *Service) GetByUnitID(ctx context.Context, unitID string) (*allocationdomain.Allocation, error) {
	unitID = strings.TrimSpace(unitID)
	if unitID == "" {
		return nil, allocationdomain.ErrInvalidUnit
	}

	alloc, err := s.findByUnitID(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if alloc == nil {
		return nil, allocationdomain.ErrNotFound
	}
	return alloc, nil
}

func (s *Service) List(ctx context.Context, req allocationdomain.ListRequest) (allocationdomain.ListResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	filter := &allocationdomain.Allocation{}
	if req.ClientID != "" {
		id, err := parseID(req.ClientID)
		if err != nil {
			return allocationdomain.ListResponse{}, allocationdomain.ErrInvalidClient
		}
		filter.ClientID = id
	}
	if req.ServiceID != "" {
		id, err := parseID(req.ServiceID)
		if err != nil {
			return allocationdomain.ListResponse{}, allocationdomain.ErrInvalidService
		}
		filter.ServiceID = id
	}

	items, err := s.allocrepo.Find(ctx, filter,
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(pageSize),
		}),
	)
	if err != nil {
		return allocationdomain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(record *allocationdomain.Allocation) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: record.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	allocations := make([]allocationdomain.Allocation, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		allocations = append(allocations, *item)
	}

	resp := allocationdomain.ListResponse{Allocations: allocations}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// buildCandidates pairs each eligible snapshot with its bucket state at the
// unit's timestamp so ranking sees capacity as of resolution time.
func (s *Service) buildCandidates(
	ctx context.Context,
	snapshots []contractlinedomain.LineSnapshot,
	serviceID snowflake.ID,
	occurredAt time.Time,
) ([]resolverdomain.Candidate, error) {
	candidates := make([]resolverdomain.Candidate, 0, len(snapshots))
	for _, snapshot := range snapshots {
		candidate := resolverdomain.Candidate{Snapshot: snapshot}

		if bucket := snapshot.BucketFor(serviceID); bucket != nil {
			period, err := billingperiod.For(occurredAt, bucket.Granularity)
			if err != nil {
				return nil, err
			}
			remaining, err := s.ledger.Remaining(ctx, *bucket, period)
			if err != nil {
				return nil, err
			}
			candidate.Bucket = bucket
			candidate.BucketPeriod = period
			candidate.BucketRemaining = remaining
		}

		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// price fills the pricing fields before the write transaction. For bucket
// lines the unit price is the overage rate; the actual filled/overage split
// lands when the reservation commits. Lines without a bucket price every
// unit at the resolved quote.
func (s *Service) price(
	ctx context.Context,
	alloc *allocationdomain.Allocation,
	chosen *resolverdomain.Candidate,
	quantity int64,
	occurredAt time.Time,
) error {
	if chosen.Bucket != nil {
		alloc.BucketID = &chosen.Bucket.ID
		alloc.PeriodStart = chosen.BucketPeriod.Start
		alloc.PeriodEnd = chosen.BucketPeriod.End
		alloc.UnitPriceCents = chosen.Bucket.OverageRateCents

		// Currency display only; a bucket-covered unit bills without a
		// catalog price until it spills into overage.
		quote, err := s.rates.Resolve(ctx, chosen.Snapshot, alloc.ServiceID)
		if err == nil {
			alloc.Currency = quote.Currency
		} else if !errors.Is(err, ratedomain.ErrMissingPrice) {
			return err
		}
		return nil
	}

	quote, err := s.rates.Resolve(ctx, chosen.Snapshot, alloc.ServiceID)
	if err != nil {
		return err
	}

	period, err := billingperiod.For(occurredAt, billingperiod.GranularityMonthly)
	if err != nil {
		return err
	}

	alloc.PeriodStart = period.Start
	alloc.PeriodEnd = period.End
	alloc.UnitPriceCents = quote.UnitPriceCents
	alloc.AmountCents = quantity * quote.UnitPriceCents
	alloc.RateSource = quote.Source
	alloc.Currency = quote.Currency
	return nil
}

func applyReservation(
	alloc *allocationdomain.Allocation,
	bucket contractlinedomain.BucketOverlay,
	reservation bucketdomain.Reservation,
) {
	alloc.FilledQuantity = reservation.Filled
	alloc.OverageQuantity = reservation.Overage
	alloc.AmountCents = reservation.Overage * bucket.OverageRateCents
	if reservation.Overage > 0 {
		alloc.RateSource = ratedomain.SourceOverage
	} else {
		alloc.RateSource = ratedomain.SourceBucketIncluded
	}
}

func (s *Service) findByUnitID(ctx context.Context, unitID string) (*allocationdomain.Allocation, error) {
	return s.allocrepo.FindOne(ctx, &allocationdomain.Allocation{UnitID: unitID})
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		if err == nil {
			err = errors.New("zero_id")
		}
		return 0, err
	}
	return id, nil
}
