package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	contractlinedomain "github.com/tallyops/meridian/internal/contractline/domain"
	"github.com/tallyops/meridian/pkg/db"
	"github.com/tallyops/meridian/pkg/db/option"
	"github.com/tallyops/meridian/pkg/db/pagination"
	"github.com/tallyops/meridian/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	linerepo repository.Repository[contractlinedomain.ContractLine]
}

func NewService(p ServiceParam) contractlinedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("contractline.service"),

		genID:    p.GenID,
		linerepo: repository.ProvideStore[contractlinedomain.ContractLine](p.DB),
	}
}

func (s *Service) CreateLine(ctx context.Context, req contractlinedomain.CreateLineRequest) (*contractlinedomain.ContractLine, error) {
	clientID, err := parseID(req.ClientID, contractlinedomain.ErrInvalidClient)
	if err != nil {
		return nil, err
	}

	billingType, err := contractlinedomain.ParseBillingType(req.BillingType)
	if err != nil {
		return nil, err
	}

	if req.StartDate.IsZero() {
		return nil, contractlinedomain.ErrInvalidDateRange
	}
	if req.EndDate != nil && req.EndDate.Before(req.StartDate) {
		return nil, contractlinedomain.ErrInvalidDateRange
	}
	if req.MonthlyRateCents < 0 {
		return nil, contractlinedomain.ErrInvalidRate
	}

	enableProration := true
	if req.EnableProration != nil {
		enableProration = *req.EnableProration
	}

	now := time.Now().UTC()
	line := &contractlinedomain.ContractLine{
		ID:               s.genID.Generate(),
		ClientID:         clientID,
		BillingType:      billingType,
		StartDate:        req.StartDate.UTC(),
		EndDate:          normalizeEndDate(req.EndDate),
		MonthlyRateCents: req.MonthlyRateCents,
		EnableProration:  enableProration,
		AllServices:      req.AllServices,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.linerepo.Create(ctx, line); err != nil {
		return nil, err
	}
	return line, nil
}

func (s *Service) AssignService(ctx context.Context, req contractlinedomain.AssignServiceRequest) (*contractlinedomain.ServiceAssignment, error) {
	lineID, err := parseID(req.ContractLineID, contractlinedomain.ErrLineNotFound)
	if err != nil {
		return nil, err
	}
	serviceID, err := parseID(req.ServiceID, contractlinedomain.ErrInvalidService)
	if err != nil {
		return nil, err
	}
	if req.CustomRateCents != nil && *req.CustomRateCents < 0 {
		return nil, contractlinedomain.ErrInvalidRate
	}

	line, err := s.linerepo.FindOne(ctx, &contractlinedomain.ContractLine{ID: lineID})
	if err != nil {
		return nil, err
	}
	if line == nil {
		return nil, contractlinedomain.ErrLineNotFound
	}

	assignment := &contractlinedomain.ServiceAssignment{
		ID:              s.genID.Generate(),
		ContractLineID:  lineID,
		ServiceID:       serviceID,
		CustomRateCents: req.CustomRateCents,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(assignment).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, contractlinedomain.ErrServiceAssigned
		}
		return nil, err
	}
	return assignment, nil
}

func (s *Service) AttachBucket(ctx context.Context, req contractlinedomain.AttachBucketRequest) (*contractlinedomain.BucketOverlay, error) {
	lineID, err := parseID(req.ContractLineID, contractlinedomain.ErrLineNotFound)
	if err != nil {
		return nil, err
	}
	serviceID := parseOptionalID(req.ServiceID)

	if req.TotalQuantity < 0 {
		return nil, contractlinedomain.ErrInvalidQuantity
	}
	if req.OverageRateCents < 0 {
		return nil, contractlinedomain.ErrInvalidRate
	}

	granularity, err := contractlinedomain.ParseGranularity(req.Granularity)
	if err != nil {
		return nil, err
	}

	line, err := s.linerepo.FindOne(ctx, &contractlinedomain.ContractLine{ID: lineID})
	if err != nil {
		return nil, err
	}
	if line == nil {
		return nil, contractlinedomain.ErrLineNotFound
	}

	// One overlay per line+service pairing.
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&contractlinedomain.BucketOverlay{}).
		Where("contract_line_id = ? AND service_id = ?", lineID, serviceID).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, contractlinedomain.ErrBucketExists
	}

	overlay := &contractlinedomain.BucketOverlay{
		ID:               s.genID.Generate(),
		ContractLineID:   lineID,
		ServiceID:        serviceID,
		TotalQuantity:    req.TotalQuantity,
		OverageRateCents: req.OverageRateCents,
		AllowRollover:    req.AllowRollover,
		Granularity:      granularity,
		CreatedAt:        time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(overlay).Error; err != nil {
		return nil, err
	}
	return overlay, nil
}

func (s *Service) EndLine(ctx context.Context, lineID snowflake.ID, endDate time.Time) error {
	line, err := s.linerepo.FindOne(ctx, &contractlinedomain.ContractLine{ID: lineID})
	if err != nil {
		return err
	}
	if line == nil {
		return contractlinedomain.ErrLineNotFound
	}
	if endDate.Before(line.StartDate) {
		return contractlinedomain.ErrInvalidDateRange
	}

	end := endDate.UTC()
	return s.db.WithContext(ctx).
		Model(&contractlinedomain.ContractLine{}).
		Where("id = ?", lineID).
		Updates(map[string]any{
			"end_date":   end,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (s *Service) List(ctx context.Context, req contractlinedomain.ListLinesRequest) (contractlinedomain.ListLinesResponse, error) {
	filter := &contractlinedomain.ContractLine{}
	if req.ClientID != "" {
		clientID, err := parseID(req.ClientID, contractlinedomain.ErrInvalidClient)
		if err != nil {
			return contractlinedomain.ListLinesResponse{}, err
		}
		filter.ClientID = clientID
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.linerepo.Find(ctx, filter,
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(pageSize),
		}),
	)
	if err != nil {
		return contractlinedomain.ListLinesResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(record *contractlinedomain.ContractLine) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: record.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	lines := make([]contractlinedomain.ContractLine, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		lines = append(lines, *item)
	}

	resp := contractlinedomain.ListLinesResponse{Lines: lines}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// EligibleLines reads lines, assignments, and overlays in one transaction so
// the resolver always sees a consistent snapshot.
func (s *Service) EligibleLines(ctx context.Context, clientID, serviceID snowflake.ID, at time.Time) ([]contractlinedomain.LineSnapshot, error) {
	if clientID == 0 {
		return nil, contractlinedomain.ErrInvalidClient
	}
	if serviceID == 0 {
		return nil, contractlinedomain.ErrInvalidService
	}

	at = at.UTC()
	var snapshots []contractlinedomain.LineSnapshot

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lines []contractlinedomain.ContractLine
		if err := tx.
			Where("client_id = ?", clientID).
			Where("start_date <= ?", at).
			Where("end_date IS NULL OR end_date >= ?", at).
			Order("created_at ASC, id ASC").
			Find(&lines).Error; err != nil {
			return err
		}

		for _, line := range lines {
			snapshot, err := loadSnapshot(tx, line)
			if err != nil {
				return err
			}
			if !snapshot.IncludesService(serviceID) {
				continue
			}
			snapshots = append(snapshots, snapshot)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (s *Service) GetSnapshot(ctx context.Context, lineID snowflake.ID) (*contractlinedomain.LineSnapshot, error) {
	line, err := s.linerepo.FindOne(ctx, &contractlinedomain.ContractLine{ID: lineID})
	if err != nil {
		return nil, err
	}
	if line == nil {
		return nil, contractlinedomain.ErrLineNotFound
	}

	snapshot, err := loadSnapshot(s.db.WithContext(ctx), *line)
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func loadSnapshot(tx *gorm.DB, line contractlinedomain.ContractLine) (contractlinedomain.LineSnapshot, error) {
	snapshot := contractlinedomain.LineSnapshot{Line: line}

	if err := tx.
		Where("contract_line_id = ?", line.ID).
		Order("id ASC").
		Find(&snapshot.Services).Error; err != nil {
		return snapshot, err
	}
	if err := tx.
		Where("contract_line_id = ?", line.ID).
		Order("id ASC").
		Find(&snapshot.Buckets).Error; err != nil {
		return snapshot, err
	}
	return snapshot, nil
}

func normalizeEndDate(end *time.Time) *time.Time {
	if end == nil {
		return nil
	}
	utc := end.UTC()
	return &utc
}

func parseID(value string, invalidErr error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalidErr
	}
	return id, nil
}

func parseOptionalID(value string) snowflake.ID {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0
	}
	return id
}
