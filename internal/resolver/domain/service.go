// Package domain defines disambiguation: choosing exactly one contract line
// (and at most one bucket) for a chargeable unit when several lines could
// apply. Resolution is a pure function of the candidate snapshot, so the
// same inputs always produce the same selection and invoices stay
// reproducible from the allocation history.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tallyops/meridian/internal/billingperiod"
	contractlinedomain "github.com/tallyops/meridian/internal/contractline/domain"
)

// Candidate is one eligible line with its bucket state for the service and
// instant under resolution. BucketRemaining includes rollover carry.
type Candidate struct {
	Snapshot        contractlinedomain.LineSnapshot
	Bucket          *contractlinedomain.BucketOverlay
	BucketPeriod    billingperiod.Period
	BucketRemaining int64
}

// BucketActive reports whether the candidate's bucket should outrank
// bucketless lines: it still has capacity, or rollover keeps it in play.
func (c Candidate) BucketActive() bool {
	if c.Bucket == nil {
		return false
	}
	return c.BucketRemaining > 0 || c.Bucket.AllowRollover
}

type Resolver interface {
	// Resolve selects one candidate. An explicit operator-chosen line
	// bypasses every ranking rule, provided it is still eligible.
	Resolve(candidates []Candidate, at time.Time, explicitLineID *snowflake.ID) (*Candidate, error)
}

var (
	// ErrNoEligibleLine means no contract line covers the client, service,
	// and timestamp. Surfaced to an operator queue, never billed against
	// an arbitrary default.
	ErrNoEligibleLine = errors.New("no_eligible_line")

	// ErrStaleAssignment means an explicit line assignment no longer
	// satisfies eligibility. Surfaced for re-resolution, not auto-corrected.
	ErrStaleAssignment = errors.New("stale_assignment")
)
