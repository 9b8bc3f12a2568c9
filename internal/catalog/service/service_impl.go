package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tallyops/meridian/internal/cache"
	catalogdomain "github.com/tallyops/meridian/internal/catalog/domain"
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
	Cache cache.CatalogCache `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	servicerepo repository.Repository[catalogdomain.ServiceDefinition]
	cache       cache.CatalogCache
}

func NewService(p ServiceParam) catalogdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("catalog.service"),

		genID:       p.GenID,
		servicerepo: repository.ProvideStore[catalogdomain.ServiceDefinition](p.DB),
		cache:       p.Cache,
	}
}

func (s *Service) Create(ctx context.Context, req catalogdomain.CreateServiceRequest) (*catalogdomain.ServiceDefinition, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, catalogdomain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, catalogdomain.ErrInvalidName
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, catalogdomain.ErrInvalidCurrency
	}
	if req.DefaultRateCents != nil && *req.DefaultRateCents < 0 {
		return nil, catalogdomain.ErrInvalidRate
	}

	now := time.Now().UTC()
	definition := &catalogdomain.ServiceDefinition{
		ID:               s.genID.Generate(),
		Code:             code,
		Name:             name,
		DefaultRateCents: req.DefaultRateCents,
		Currency:         currency,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.servicerepo.Create(ctx, definition); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, catalogdomain.ErrCodeExists
		}
		return nil, err
	}

	return definition, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*catalogdomain.ServiceDefinition, error) {
	if s.cache != nil {
		if cached, ok := s.cache.GetService(id.String()); ok {
			return cached, nil
		}
	}

	definition, err := s.servicerepo.FindOne(ctx, &catalogdomain.ServiceDefinition{ID: id})
	if err != nil {
		return nil, err
	}
	if definition == nil {
		return nil, catalogdomain.ErrNotFound
	}

	if s.cache != nil {
		s.cache.SetService(id.String(), definition)
	}
	return definition, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (*catalogdomain.ServiceDefinition, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, catalogdomain.ErrInvalidCode
	}

	definition, err := s.servicerepo.FindOne(ctx, &catalogdomain.ServiceDefinition{Code: code})
	if err != nil {
		return nil, err
	}
	if definition == nil {
		return nil, catalogdomain.ErrNotFound
	}
	return definition, nil
}

func (s *Service) List(ctx context.Context, req catalogdomain.ListServicesRequest) (catalogdomain.ListServicesResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.servicerepo.Find(ctx, &catalogdomain.ServiceDefinition{},
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(pageSize),
		}),
	)
	if err != nil {
		return catalogdomain.ListServicesResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(record *catalogdomain.ServiceDefinition) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: record.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	services := make([]catalogdomain.ServiceDefinition, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		services = append(services, *item)
	}

	resp := catalogdomain.ListServicesResponse{Services: services}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}
