package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/tallyops/meridian/internal/catalog/domain"
	"github.com/tallyops/meridian/internal/config"
	contractlinedomain "github.com/tallyops/meridian/internal/contractline/domain"
	ratedomain "github.com/tallyops/meridian/internal/rate/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log        *zap.Logger
	CatalogSvc catalogdomain.Service
	Policy     *config.PolicyConfigHolder
}

type Service struct {
	log        *zap.Logger
	catalogsvc catalogdomain.Service
	policy     *config.PolicyConfigHolder
}

func NewService(p ServiceParam) ratedomain.Resolver {
	return &Service{
		log:        p.Log.Named("rate.service"),
		catalogsvc: p.CatalogSvc,
		policy:     p.Policy,
	}
}

func (s *Service) Resolve(ctx context.Context, snapshot contractlinedomain.LineSnapshot, serviceID snowflake.ID) (ratedomain.Quote, error) {
	if assignment := snapshot.AssignmentFor(serviceID); assignment != nil && assignment.CustomRateCents != nil {
		return ratedomain.Quote{
			UnitPriceCents: *assignment.CustomRateCents,
			Source:         ratedomain.SourceOverride,
		}, nil
	}

	definition, err := s.catalogsvc.GetByID(ctx, serviceID)
	if err != nil {
		if errors.Is(err, catalogdomain.ErrNotFound) {
			return ratedomain.Quote{}, ratedomain.ErrMissingPrice
		}
		return ratedomain.Quote{}, err
	}
	if definition.DefaultRateCents == nil {
		return ratedomain.Quote{}, ratedomain.ErrMissingPrice
	}

	currency := definition.Currency
	if currency == "" && s.policy != nil {
		currency = s.policy.Get().DefaultCurrency
	}

	return ratedomain.Quote{
		UnitPriceCents: *definition.DefaultRateCents,
		Source:         ratedomain.SourceCatalog,
		Currency:       currency,
	}, nil
}
