package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tallyops/meridian/internal/billingperiod"
	"github.com/tallyops/meridian/pkg/db/pagination"
)

type CreateLineRequest struct {
	ClientID         string     `json:"client_id"`
	BillingType      string     `json:"billing_type"`
	StartDate        time.Time  `json:"start_date"`
	EndDate          *time.Time `json:"end_date"`
	MonthlyRateCents int64      `json:"monthly_rate_cents"`
	EnableProration  *bool      `json:"enable_proration"`
	AllServices      bool       `json:"all_services"`
}

type AssignServiceRequest struct {
	ContractLineID  string `json:"contract_line_id"`
	ServiceID       string `json:"service_id"`
	CustomRateCents *int64 `json:"custom_rate_cents"`
}

type AttachBucketRequest struct {
	ContractLineID   string `json:"contract_line_id"`
	ServiceID        string `json:"service_id"`
	TotalQuantity    int64  `json:"total_quantity"`
	OverageRateCents int64  `json:"overage_rate_cents"`
	AllowRollover    bool   `json:"allow_rollover"`
	Granularity      string `json:"granularity"`
}

type ListLinesRequest struct {
	ClientID  string `form:"client_id"`
	PageToken string `form:"page_token"`
	PageSize  int32  `form:"page_size"`
}

type ListLinesResponse struct {
	pagination.PageInfo
	Lines []ContractLine `json:"lines"`
}

type Service interface {
	CreateLine(context.Context, CreateLineRequest) (*ContractLine, error)
	AssignService(context.Context, AssignServiceRequest) (*ServiceAssignment, error)
	AttachBucket(context.Context, AttachBucketRequest) (*BucketOverlay, error)
	EndLine(ctx context.Context, lineID snowflake.ID, endDate time.Time) error
	List(context.Context, ListLinesRequest) (ListLinesResponse, error)

	// EligibleLines returns a consistent snapshot of every line covering
	// the client, service, and instant. Filtering beyond eligibility is
	// the resolver's job.
	EligibleLines(ctx context.Context, clientID, serviceID snowflake.ID, at time.Time) ([]LineSnapshot, error)

	// GetSnapshot loads one line with assignments and overlays.
	GetSnapshot(ctx context.Context, lineID snowflake.ID) (*LineSnapshot, error)
}

var (
	ErrLineNotFound       = errors.New("contract_line_not_found")
	ErrInvalidClient      = errors.New("invalid_client")
	ErrInvalidService     = errors.New("invalid_service")
	ErrInvalidBillingType = errors.New("invalid_billing_type")
	ErrInvalidDateRange   = errors.New("invalid_date_range")
	ErrInvalidRate        = errors.New("invalid_rate")
	ErrInvalidQuantity    = errors.New("invalid_quantity")
	ErrServiceAssigned    = errors.New("service_already_assigned")
	ErrBucketExists       = errors.New("bucket_already_attached")
	ErrLineEnded          = errors.New("contract_line_ended")
)

// ParseBillingType validates the wire value.
func ParseBillingType(raw string) (BillingType, error) {
	switch BillingType(raw) {
	case BillingTypeFixed, BillingTypeHourly, BillingTypeUsage:
		return BillingType(raw), nil
	default:
		return "", ErrInvalidBillingType
	}
}

// ParseGranularity validates the wire value, defaulting to monthly.
func ParseGranularity(raw string) (billingperiod.Granularity, error) {
	if raw == "" {
		return billingperiod.GranularityMonthly, nil
	}
	switch billingperiod.Granularity(raw) {
	case billingperiod.GranularityMonthly, billingperiod.GranularityWeekly:
		return billingperiod.Granularity(raw), nil
	default:
		return "", billingperiod.ErrInvalidGranularity
	}
}
