// Package domain defines effective unit price resolution for a resolved
// contract line. Prices are integer minor-currency units throughout.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	contractlinedomain "github.com/tallyops/meridian/internal/contractline/domain"
)

// Source identifies where a resolved price came from.
type Source string

const (
	SourceOverride       Source = "override"
	SourceCatalog        Source = "catalog"
	SourceBucketIncluded Source = "bucket_included"
	SourceOverage        Source = "overage"
)

// Quote is the effective unit price for a line/service pairing.
type Quote struct {
	UnitPriceCents int64  `json:"unit_price_cents"`
	Source         Source `json:"source"`
	Currency       string `json:"currency"`
}

type Resolver interface {
	// Resolve returns the effective unit price for the service on the
	// line: custom assignment rate first, then the catalog default.
	// Bucket-included and overage pricing are derived by the caller from
	// the ledger outcome, not here.
	Resolve(ctx context.Context, snapshot contractlinedomain.LineSnapshot, serviceID snowflake.ID) (Quote, error)
}

// ErrMissingPrice means neither a custom rate nor a catalog default exists.
// The unit cannot be billed until an operator supplies a rate.
var ErrMissingPrice = errors.New("missing_price")
