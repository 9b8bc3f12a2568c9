package service

import (
	resolverdomain "github.com/tallyops/meridian/internal/resolver/domain"
)

// A comparator returns a negative value when a ranks before b, positive when
// after, zero on a tie. Each selection rule is its own comparator so rules
// can be reordered or extended without touching the selection loop.
type comparator func(a, b resolverdomain.Candidate) int

// selectionOrder is the ranking chain. Later comparators only break ties
// left by earlier ones; the final line-ID comparator makes the order total.
var selectionOrder = []comparator{
	compareBucketPriority,
	compareBucketExpiry,
	compareLineRecency,
	compareLineID,
}

func rank(a, b resolverdomain.Candidate) int {
	for _, cmp := range selectionOrder {
		if c := cmp(a, b); c != 0 {
			return c
		}
	}
	return 0
}

// compareBucketPriority ranks lines with an active bucket ahead of lines
// without one.
func compareBucketPriority(a, b resolverdomain.Candidate) int {
	switch {
	case a.BucketActive() && !b.BucketActive():
		return -1
	case !a.BucketActive() && b.BucketActive():
		return 1
	default:
		return 0
	}
}

// compareBucketExpiry consumes capacity that expires sooner first: between
// two active buckets, the one whose current period ends earlier wins.
// Identical expirations fall through to the lower bucket ID.
func compareBucketExpiry(a, b resolverdomain.Candidate) int {
	if !a.BucketActive() || !b.BucketActive() {
		return 0
	}
	switch {
	case a.BucketPeriod.End.Before(b.BucketPeriod.End):
		return -1
	case b.BucketPeriod.End.Before(a.BucketPeriod.End):
		return 1
	}
	switch {
	case a.Bucket.ID < b.Bucket.ID:
		return -1
	case a.Bucket.ID > b.Bucket.ID:
		return 1
	default:
		return 0
	}
}

// compareLineRecency prefers the most recently created line.
func compareLineRecency(a, b resolverdomain.Candidate) int {
	switch {
	case a.Snapshot.Line.CreatedAt.After(b.Snapshot.Line.CreatedAt):
		return -1
	case b.Snapshot.Line.CreatedAt.After(a.Snapshot.Line.CreatedAt):
		return 1
	default:
		return 0
	}
}

// compareLineID is the terminal tie-break; the higher ID (later snowflake)
// wins so the order is total and deterministic.
func compareLineID(a, b resolverdomain.Candidate) int {
	switch {
	case a.Snapshot.Line.ID > b.Snapshot.Line.ID:
		return -1
	case a.Snapshot.Line.ID < b.Snapshot.Line.ID:
		return 1
	default:
		return 0
	}
}
