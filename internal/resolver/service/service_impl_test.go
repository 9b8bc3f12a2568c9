package service

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	resolverdomain "github.com/tallyops/meridian/internal/resolver/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newResolver() *Service {
	return &Service{log: zap.NewNop()}
}

func TestResolve_EmptyCandidates(t *testing.T) {
	svc := newResolver()

	_, err := svc.Resolve(nil, time.Now(), nil)
	assert.ErrorIs(t, err, resolverdomain.ErrNoEligibleLine)
}

func TestResolve_SingleCandidate(t *testing.T) {
	svc := newResolver()
	only := lineCandidate(1, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	chosen, err := svc.Resolve([]resolverdomain.Candidate{only}, time.Now(), nil)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1), chosen.Snapshot.Line.ID)
}

func TestResolve_BucketOutranksNewerLine(t *testing.T) {
	svc := newResolver()
	periodEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	older := withBucket(lineCandidate(1, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), 10, periodEnd, 50, false)
	newer := lineCandidate(2, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))

	chosen, err := svc.Resolve([]resolverdomain.Candidate{newer, older}, time.Now(), nil)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1), chosen.Snapshot.Line.ID)
}

func TestResolve_EarliestExpiryWinsBetweenBuckets(t *testing.T) {
	svc := newResolver()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	weekly := withBucket(lineCandidate(1, created), 10, time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC), 50, false)
	monthly := withBucket(lineCandidate(2, created), 11, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), 50, false)

	chosen, err := svc.Resolve([]resolverdomain.Candidate{monthly, weekly}, time.Now(), nil)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1), chosen.Snapshot.Line.ID)
}

func TestResolve_NewestLineWinsWithoutBuckets(t *testing.T) {
	svc := newResolver()

	older := lineCandidate(1, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := lineCandidate(2, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))

	chosen, err := svc.Resolve([]resolverdomain.Candidate{older, newer}, time.Now(), nil)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(2), chosen.Snapshot.Line.ID)
}

func TestResolve_Deterministic(t *testing.T) {
	svc := newResolver()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	a := lineCandidate(1, created)
	b := lineCandidate(2, created)

	first, err := svc.Resolve([]resolverdomain.Candidate{a, b}, time.Now(), nil)
	require.NoError(t, err)
	second, err := svc.Resolve([]resolverdomain.Candidate{b, a}, time.Now(), nil)
	require.NoError(t, err)

	// Input order never changes the outcome.
	assert.Equal(t, first.Snapshot.Line.ID, second.Snapshot.Line.ID)
}

func TestResolve_ExplicitAssignment(t *testing.T) {
	svc := newResolver()
	periodEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	bucketed := withBucket(lineCandidate(1, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), 10, periodEnd, 50, false)
	plain := lineCandidate(2, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))

	explicit := snowflake.ID(2)
	chosen, err := svc.Resolve([]resolverdomain.Candidate{bucketed, plain}, time.Now(), &explicit)
	require.NoError(t, err)

	// Explicit assignment beats the bucket ranking.
	assert.Equal(t, snowflake.ID(2), chosen.Snapshot.Line.ID)
}

func TestResolve_StaleExplicitAssignment(t *testing.T) {
	svc := newResolver()
	only := lineCandidate(1, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	gone := snowflake.ID(99)
	_, err := svc.Resolve([]resolverdomain.Candidate{only}, time.Now(), &gone)
	assert.ErrorIs(t, err, resolverdomain.ErrStaleAssignment)
}
