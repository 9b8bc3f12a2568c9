// Package domain defines the allocation orchestrator: the single entry point
// that turns a chargeable unit into exactly one recorded billing decision.
package domain

import (
	"context"
	"errors"
	"time"

	bucketdomain "github.com/tallyops/meridian/internal/bucket/domain"
	contractlinedomain "github.com/tallyops/meridian/internal/contractline/domain"
	ratedomain "github.com/tallyops/meridian/internal/rate/domain"
	resolverdomain "github.com/tallyops/meridian/internal/resolver/domain"
	"github.com/tallyops/meridian/pkg/db/pagination"
)

// AllocateRequest describes one chargeable unit of delivered work.
// ContractLineID, when set, is an explicit operator assignment that bypasses
// ranking but still must pass eligibility.
type AllocateRequest struct {
	UnitID         string         `json:"unit_id"`
	ClientID       string         `json:"client_id"`
	ServiceID      string         `json:"service_id"`
	Quantity       int64          `json:"quantity"`
	OccurredAt     time.Time      `json:"occurred_at"`
	ContractLineID string         `json:"contract_line_id"`
	Metadata       map[string]any `json:"metadata"`
}

type BatchRequest struct {
	Units []AllocateRequest `json:"units"`
}

// Failure is one unit the batch could not allocate. Reason is a stable
// machine-readable code from the error taxonomy.
type Failure struct {
	UnitID string `json:"unit_id"`
	Reason string `json:"reason"`
}

type BatchResult struct {
	Allocations []Allocation `json:"allocations"`
	Failures    []Failure    `json:"failures"`
}

type ListRequest struct {
	ClientID  string `form:"client_id"`
	ServiceID string `form:"service_id"`
	PageToken string `form:"page_token"`
	PageSize  int32  `form:"page_size"`
}

type ListResponse struct {
	pagination.PageInfo
	Allocations []Allocation `json:"allocations"`
}

type Orchestrator interface {
	// Allocate bills one unit. Resubmitting a unit ID returns the original
	// allocation; no partial state survives a failed attempt.
	Allocate(context.Context, AllocateRequest) (*Allocation, error)

	// AllocateBatch processes units in arrival order. One unit's failure
	// never blocks the rest.
	AllocateBatch(context.Context, BatchRequest) (BatchResult, error)

	GetByUnitID(ctx context.Context, unitID string) (*Allocation, error)
	List(context.Context, ListRequest) (ListResponse, error)
}

var (
	ErrInvalidUnit     = errors.New("invalid_unit")
	ErrInvalidClient   = errors.New("invalid_client")
	ErrInvalidService  = errors.New("invalid_service")
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrBatchTooLarge   = errors.New("batch_too_large")
	ErrNotFound        = errors.New("allocation_not_found")
)

// businessErrors are the failures a caller can act on; anything else reports
// as internal without leaking storage details.
var businessErrors = []error{
	ErrInvalidUnit,
	ErrInvalidClient,
	ErrInvalidService,
	ErrInvalidQuantity,
	contractlinedomain.ErrLineNotFound,
	resolverdomain.ErrNoEligibleLine,
	resolverdomain.ErrStaleAssignment,
	ratedomain.ErrMissingPrice,
	bucketdomain.ErrCapacityRace,
}

// FailureReason maps an allocation error to its taxonomy code.
func FailureReason(err error) string {
	for _, known := range businessErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal_error"
}
