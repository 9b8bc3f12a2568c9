// Package domain contains persistence models for contract lines and their
// bucket overlays.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tallyops/meridian/internal/billingperiod"
)

// BillingType classifies how a contract line is charged.
type BillingType string

const (
	BillingTypeFixed  BillingType = "fixed"
	BillingTypeHourly BillingType = "hourly"
	BillingTypeUsage  BillingType = "usage"
)

// ContractLine is a priced, time-bounded component of a client's billing
// arrangement. Lines are never hard-deleted while referenced by allocations;
// deactivation sets EndDate.
type ContractLine struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	ClientID         snowflake.ID `gorm:"not null;index" json:"client_id"`
	BillingType      BillingType  `gorm:"type:text;not null" json:"billing_type"`
	StartDate        time.Time    `gorm:"not null" json:"start_date"`
	EndDate          *time.Time   `json:"end_date"`
	MonthlyRateCents int64        `gorm:"not null;default:0" json:"monthly_rate_cents"`
	EnableProration  bool         `gorm:"not null;default:true" json:"enable_proration"`
	AllServices      bool         `gorm:"not null;default:false" json:"all_services"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ContractLine) TableName() string { return "contract_lines" }

// ServiceAssignment includes a catalog service on a line, optionally with a
// custom rate that overrides the catalog default.
type ServiceAssignment struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	ContractLineID  snowflake.ID `gorm:"not null;index;uniqueIndex:ux_line_service,priority:1" json:"contract_line_id"`
	ServiceID       snowflake.ID `gorm:"not null;uniqueIndex:ux_line_service,priority:2" json:"service_id"`
	CustomRateCents *int64       `json:"custom_rate_cents"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (ServiceAssignment) TableName() string { return "contract_line_services" }

// BucketOverlay grants a pre-paid pool on a line, either for one service or
// for every service the line covers (ServiceID = 0).
type BucketOverlay struct {
	ID               snowflake.ID              `gorm:"primaryKey" json:"id"`
	ContractLineID   snowflake.ID              `gorm:"not null;index" json:"contract_line_id"`
	ServiceID        snowflake.ID              `gorm:"not null;default:0" json:"service_id"`
	TotalQuantity    int64                     `gorm:"not null" json:"total_quantity"`
	OverageRateCents int64                     `gorm:"not null" json:"overage_rate_cents"`
	AllowRollover    bool                      `gorm:"not null;default:false" json:"allow_rollover"`
	Granularity      billingperiod.Granularity `gorm:"type:text;not null;default:'monthly'" json:"granularity"`
	CreatedAt        time.Time                 `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (BucketOverlay) TableName() string { return "bucket_overlays" }

// CoversService reports whether the overlay applies to the given service.
func (b BucketOverlay) CoversService(serviceID snowflake.ID) bool {
	return b.ServiceID == 0 || b.ServiceID == serviceID
}

// LineSnapshot is a consistent read of a line with its assignments and
// overlays, taken in a single transaction so eligibility checks do not race
// with operator edits.
type LineSnapshot struct {
	Line     ContractLine        `json:"line"`
	Services []ServiceAssignment `json:"services"`
	Buckets  []BucketOverlay     `json:"buckets"`
}

// IncludesService reports whether the line covers the service directly or via
// the all-services wildcard.
func (s LineSnapshot) IncludesService(serviceID snowflake.ID) bool {
	if s.Line.AllServices {
		return true
	}
	for _, assignment := range s.Services {
		if assignment.ServiceID == serviceID {
			return true
		}
	}
	return false
}

// AssignmentFor returns the assignment row for a service, if any.
func (s LineSnapshot) AssignmentFor(serviceID snowflake.ID) *ServiceAssignment {
	for i := range s.Services {
		if s.Services[i].ServiceID == serviceID {
			return &s.Services[i]
		}
	}
	return nil
}

// BucketFor returns the overlay covering a service, if any. A line has at
// most one overlay per service; a service-specific overlay wins over the
// whole-line overlay.
func (s LineSnapshot) BucketFor(serviceID snowflake.ID) *BucketOverlay {
	var wildcard *BucketOverlay
	for i := range s.Buckets {
		if s.Buckets[i].ServiceID == serviceID {
			return &s.Buckets[i]
		}
		if s.Buckets[i].ServiceID == 0 {
			wildcard = &s.Buckets[i]
		}
	}
	return wildcard
}

// ActiveAt reports whether the line is in effect at the given instant. The
// end date is inclusive.
func (s LineSnapshot) ActiveAt(at time.Time) bool {
	at = at.UTC()
	if at.Before(s.Line.StartDate) {
		return false
	}
	if s.Line.EndDate != nil && at.After(*s.Line.EndDate) {
		return false
	}
	return true
}
