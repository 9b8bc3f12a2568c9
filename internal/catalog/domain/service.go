package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/tallyops/meridian/pkg/db/pagination"
)

type CreateServiceRequest struct {
	Code             string `json:"code"`
	Name             string `json:"name"`
	DefaultRateCents *int64 `json:"default_rate_cents"`
	Currency         string `json:"currency"`
}

type ListServicesRequest struct {
	PageToken string `form:"page_token"`
	PageSize  int32  `form:"page_size"`
}

type ListServicesResponse struct {
	pagination.PageInfo
	Services []ServiceDefinition `json:"services"`
}

type Service interface {
	Create(context.Context, CreateServiceRequest) (*ServiceDefinition, error)
	GetByID(context.Context, snowflake.ID) (*ServiceDefinition, error)
	GetByCode(context.Context, string) (*ServiceDefinition, error)
	List(context.Context, ListServicesRequest) (ListServicesResponse, error)
}

var (
	ErrNotFound        = errors.New("service_not_found")
	ErrInvalidCode     = errors.New("invalid_service_code")
	ErrInvalidName     = errors.New("invalid_service_name")
	ErrInvalidRate     = errors.New("invalid_default_rate")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrCodeExists      = errors.New("service_code_exists")
)
