package service

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tallyops/meridian/internal/billingperiod"
	contractlinedomain "github.com/tallyops/meridian/internal/contractline/domain"
	resolverdomain "github.com/tallyops/meridian/internal/resolver/domain"
	"github.com/stretchr/testify/assert"
)

func lineCandidate(id int64, createdAt time.Time) resolverdomain.Candidate {
	return resolverdomain.Candidate{
		Snapshot: contractlinedomain.LineSnapshot{
			Line: contractlinedomain.ContractLine{
				ID:        snowflake.ID(id),
				CreatedAt: createdAt,
			},
		},
	}
}

func withBucket(c resolverdomain.Candidate, bucketID int64, periodEnd time.Time, remaining int64, rollover bool) resolverdomain.Candidate {
	c.Bucket = &contractlinedomain.BucketOverlay{
		ID:            snowflake.ID(bucketID),
		AllowRollover: rollover,
	}
	c.BucketPeriod = billingperiod.Period{
		Start: periodEnd.AddDate(0, -1, 0),
		End:   periodEnd,
	}
	c.BucketRemaining = remaining
	return c
}

func TestCompareBucketPriority(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	bare := lineCandidate(1, created)
	bucketed := withBucket(lineCandidate(2, created), 10, periodEnd, 50, false)

	assert.Negative(t, compareBucketPriority(bucketed, bare))
	assert.Positive(t, compareBucketPriority(bare, bucketed))
	assert.Zero(t, compareBucketPriority(bare, bare))
}

func TestCompareBucketPriority_DepletedBucket(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	bare := lineCandidate(1, created)
	depleted := withBucket(lineCandidate(2, created), 10, periodEnd, 0, false)
	depletedRollover := withBucket(lineCandidate(3, created), 11, periodEnd, 0, true)

	// A drained bucket with no rollover ranks like a bucketless line.
	assert.Zero(t, compareBucketPriority(depleted, bare))

	// Rollover keeps a drained bucket in play.
	assert.Negative(t, compareBucketPriority(depletedRollover, bare))
	assert.Negative(t, compareBucketPriority(depletedRollover, depleted))
}

func TestCompareBucketExpiry(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	soon := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	later := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	expiringSoon := withBucket(lineCandidate(1, created), 10, soon, 50, false)
	expiringLater := withBucket(lineCandidate(2, created), 11, later, 50, false)

	assert.Negative(t, compareBucketExpiry(expiringSoon, expiringLater))
	assert.Positive(t, compareBucketExpiry(expiringLater, expiringSoon))
}

func TestCompareBucketExpiry_TieBreaksOnBucketID(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	low := withBucket(lineCandidate(1, created), 10, periodEnd, 50, false)
	high := withBucket(lineCandidate(2, created), 20, periodEnd, 50, false)

	assert.Negative(t, compareBucketExpiry(low, high))
	assert.Positive(t, compareBucketExpiry(high, low))
}

func TestCompareBucketExpiry_IgnoresInactiveBuckets(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	active := withBucket(lineCandidate(1, created), 10, periodEnd, 50, false)
	bare := lineCandidate(2, created)

	assert.Zero(t, compareBucketExpiry(active, bare))
}

func TestCompareLineRecency(t *testing.T) {
	older := lineCandidate(1, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := lineCandidate(2, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))

	assert.Negative(t, compareLineRecency(newer, older))
	assert.Positive(t, compareLineRecency(older, newer))
}

func TestCompareLineID(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	low := lineCandidate(1, created)
	high := lineCandidate(2, created)

	assert.Negative(t, compareLineID(high, low))
	assert.Positive(t, compareLineID(low, high))
	assert.Zero(t, compareLineID(low, low))
}
