package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	allocationdomain "github.com/tallyops/meridian/internal/allocation/domain"
	bucketdomain "github.com/tallyops/meridian/internal/bucket/domain"
	bucketservice "github.com/tallyops/meridian/internal/bucket/service"
	catalogdomain "github.com/tallyops/meridian/internal/catalog/domain"
	catalogservice "github.com/tallyops/meridian/internal/catalog/service"
	"github.com/tallyops/meridian/internal/clock"
	"github.com/tallyops/meridian/internal/config"
	contractlinedomain "github.com/tallyops/meridian/internal/contractline/domain"
	contractlineservice "github.com/tallyops/meridian/internal/contractline/service"
	ratedomain "github.com/tallyops/meridian/internal/rate/domain"
	rateservice "github.com/tallyops/meridian/internal/rate/service"
	resolverdomain "github.com/tallyops/meridian/internal/resolver/domain"
	resolverservice "github.com/tallyops/meridian/internal/resolver/service"
	"github.com/tallyops/meridian/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type allocTestEnv struct {
	db         *gorm.DB
	node       *snowflake.Node
	svc        *Service
	catalogSvc catalogdomain.Service
	lineSvc    contractlinedomain.Service
}

func setupAllocationTest(t *testing.T) *allocTestEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&catalogdomain.ServiceDefinition{},
		&contractlinedomain.ContractLine{},
		&contractlinedomain.ServiceAssignment{},
		&contractlinedomain.BucketOverlay{},
		&bucketdomain.LedgerEntry{},
		&allocationdomain.Allocation{},
	)
	require.NoError(t, err)

	node, _ := snowflake.NewNode(1)
	log := zap.NewNop()

	catalogSvc := catalogservice.NewService(catalogservice.ServiceParam{
		DB:    db,
		Log:   log,
		GenID: node,
	})
	lineSvc := contractlineservice.NewService(contractlineservice.ServiceParam{
		DB:    db,
		Log:   log,
		GenID: node,
	})
	rateSvc := rateservice.NewService(rateservice.ServiceParam{
		Log:        log,
		CatalogSvc: catalogSvc,
	})
	ledgerSvc := bucketservice.NewService(bucketservice.ServiceParam{
		DB:     db,
		Log:    log,
		GenID:  node,
		Config: config.Config{ReserveMaxRetries: 3},
	})
	resolverSvc := resolverservice.NewService(resolverservice.ServiceParam{Log: log})

	svc := &Service{
		db:        db,
		log:       log,
		genID:     node,
		clock:     clock.NewSystemClock(),
		lines:     lineSvc,
		rates:     rateSvc,
		ledger:    ledgerSvc,
		resolver:  resolverSvc,
		policy:    config.StaticPolicyHolder(config.DefaultPolicyConfig()),
		allocrepo: repository.ProvideStore[allocationdomain.Allocation](db),
	}

	return &allocTestEnv{
		db:         db,
		node:       node,
		svc:        svc,
		catalogSvc: catalogSvc,
		lineSvc:    lineSvc,
	}
}

func (e *allocTestEnv) createService(t *testing.T, rateCents *int64) snowflake.ID {
	t.Helper()
	def, err := e.catalogSvc.Create(context.Background(), catalogdomain.CreateServiceRequest{
		Code:             "svc-" + e.node.Generate().String(),
		Name:             "Review",
		DefaultRateCents: rateCents,
		Currency:         "USD",
	})
	require.NoError(t, err)
	return def.ID
}

func (e *allocTestEnv) createUsageLine(t *testing.T, clientID snowflake.ID) *contractlinedomain.ContractLine {
	t.Helper()
	line, err := e.lineSvc.CreateLine(context.Background(), contractlinedomain.CreateLineRequest{
		ClientID:    clientID.String(),
		BillingType: "usage",
		StartDate:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		AllServices: true,
	})
	require.NoError(t, err)
	return line
}

func (e *allocTestEnv) attachBucket(t *testing.T, line *contractlinedomain.ContractLine, total int64, overageRate int64) *contractlinedomain.BucketOverlay {
	t.Helper()
	overlay, err := e.lineSvc.AttachBucket(context.Background(), contractlinedomain.AttachBucketRequest{
		ContractLineID:   line.ID.String(),
		TotalQuantity:    total,
		OverageRateCents: overageRate,
	})
	require.NoError(t, err)
	return overlay
}

func TestAllocate_CatalogRate(t *testing.T) {
	env := setupAllocationTest(t)
	clientID := env.node.Generate()

	rate := int64(5000)
	serviceID := env.createService(t, &rate)
	line := env.createUsageLine(t, clientID)

	alloc, err := env.svc.Allocate(context.Background(), allocationdomain.AllocateRequest{
		UnitID:     "unit-catalog-1",
		ClientID:   clientID.String(),
		ServiceID:  serviceID.String(),
		Quantity:   3,
		OccurredAt: time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, line.ID, alloc.ContractLineID)
	assert.Equal(t, int64(15000), alloc.AmountCents)
	assert.Equal(t, ratedomain.SourceCatalog, alloc.RateSource)
	assert.Nil(t, alloc.BucketID)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), alloc.PeriodStart)
}

func TestAllocate_IdempotentResubmit(t *testing.T) {
	env := setupAllocationTest(t)
	clientID := env.node.Generate()

	rate := int64(5000)
	serviceID := env.createService(t, &rate)
	env.createUsageLine(t, clientID)

	req := allocationdomain.AllocateRequest{
		UnitID:     "unit-idem-1",
		ClientID:   clientID.String(),
		ServiceID:  serviceID.String(),
		Quantity:   2,
		OccurredAt: time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC),
	}

	first, err := env.svc.Allocate(context.Background(), req)
	require.NoError(t, err)

	second, err := env.svc.Allocate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.AmountCents, second.AmountCents)

	var count int64
	env.db.Model(&allocationdomain.Allocation{}).Where("unit_id = ?", req.UnitID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestAllocate_MissingPriceLeavesNoRow(t *testing.T) {
	env := setupAllocationTest(t)
	clientID := env.node.Generate()

	serviceID := env.createService(t, nil)
	env.createUsageLine(t, clientID)

	_, err := env.svc.Allocate(context.Background(), allocationdomain.AllocateRequest{
		UnitID:     "unit-noprice-1",
		ClientID:   clientID.String(),
		ServiceID:  serviceID.String(),
		Quantity:   1,
		OccurredAt: time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, ratedomain.ErrMissingPrice)

	var count int64
	env.db.Model(&allocationdomain.Allocation{}).Where("unit_id = ?", "unit-noprice-1").Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestAllocate_NoEligibleLine(t *testing.T) {
	env := setupAllocationTest(t)
	clientID := env.node.Generate()

	rate := int64(5000)
	serviceID := env.createService(t, &rate)

	_, err := env.svc.Allocate(context.Background(), allocationdomain.AllocateRequest{
		UnitID:     "unit-orphan-1",
		ClientID:   clientID.String(),
		ServiceID:  serviceID.String(),
		Quantity:   1,
		OccurredAt: time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, resolverdomain.ErrNoEligibleLine)
}

func TestAllocate_BucketIncluded(t *testing.T) {
	env := setupAllocationTest(t)
	clientID := env.node.Generate()

	rate := int64(5000)
	serviceID := env.createService(t, &rate)
	line := env.createUsageLine(t, clientID)
	overlay := env.attachBucket(t, line, 10, 500)

	alloc, err := env.svc.Allocate(context.Background(), allocationdomain.AllocateRequest{
		UnitID:     "unit-bucket-1",
		ClientID:   clientID.String(),
		ServiceID:  serviceID.String(),
		Quantity:   4,
		OccurredAt: time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.NotNil(t, alloc.BucketID)
	assert.Equal(t, overlay.ID, *alloc.BucketID)
	assert.Equal(t, int64(4), alloc.FilledQuantity)
	assert.Equal(t, int64(0), alloc.OverageQuantity)
	assert.Equal(t, int64(0), alloc.AmountCents)
	assert.Equal(t, ratedomain.SourceBucketIncluded, alloc.RateSource)
}

func TestAllocate_BucketSpillsToOverage(t *testing.T) {
	env := setupAllocationTest(t)
	clientID := env.node.Generate()

	rate := int64(5000)
	serviceID := env.createService(t, &rate)
	line := env.createUsageLine(t, clientID)
	env.attachBucket(t, line, 10, 500)

	alloc, err := env.svc.Allocate(context.Background(), allocationdomain.AllocateRequest{
		UnitID:     "unit-overage-1",
		ClientID:   clientID.String(),
		ServiceID:  serviceID.String(),
		Quantity:   15,
		OccurredAt: time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(10), alloc.FilledQuantity)
	assert.Equal(t, int64(5), alloc.OverageQuantity)
	// Overage bills at the bucket's overage rate, not the catalog rate.
	assert.Equal(t, int64(2500), alloc.AmountCents)
	assert.Equal(t, ratedomain.SourceOverage, alloc.RateSource)
}

func TestAllocate_ExplicitAssignmentStillEligible(t *testing.T) {
	env := setupAllocationTest(t)
	clientID := env.node.Generate()

	rate := int64(5000)
	serviceID := env.createService(t, &rate)
	bucketLine := env.createUsageLine(t, clientID)
	env.attachBucket(t, bucketLine, 100, 500)
	plainLine := env.createUsageLine(t, clientID)

	alloc, err := env.svc.Allocate(context.Background(), allocationdomain.AllocateRequest{
		UnitID:         "unit-explicit-1",
		ClientID:       clientID.String(),
		ServiceID:      serviceID.String(),
		Quantity:       1,
		OccurredAt:     time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC),
		ContractLineID: plainLine.ID.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, plainLine.ID, alloc.ContractLineID)
}

func TestAllocate_StaleExplicitAssignment(t *testing.T) {
	env := setupAllocationTest(t)
	clientID := env.node.Generate()

	rate := int64(5000)
	serviceID := env.createService(t, &rate)
	env.createUsageLine(t, clientID)

	_, err := env.svc.Allocate(context.Background(), allocationdomain.AllocateRequest{
		UnitID:         "unit-stale-1",
		ClientID:       clientID.String(),
		ServiceID:      serviceID.String(),
		Quantity:       1,
		OccurredAt:     time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC),
		ContractLineID: env.node.Generate().String(),
	})
	assert.ErrorIs(t, err, resolverdomain.ErrStaleAssignment)
}

func TestAllocateBatch_PartialFailure(t *testing.T) {
	env := setupAllocationTest(t)
	clientID := env.node.Generate()

	rate := int64(5000)
	pricedService := env.createService(t, &rate)
	unpricedService := env.createService(t, nil)
	env.createUsageLine(t, clientID)

	occurred := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	result, err := env.svc.AllocateBatch(context.Background(), allocationdomain.BatchRequest{
		Units: []allocationdomain.AllocateRequest{
			{UnitID: "batch-1", ClientID: clientID.String(), ServiceID: pricedService.String(), Quantity: 1, OccurredAt: occurred},
			{UnitID: "batch-2", ClientID: clientID.String(), ServiceID: unpricedService.String(), Quantity: 1, OccurredAt: occurred},
			{UnitID: "batch-3", ClientID: clientID.String(), ServiceID: pricedService.String(), Quantity: 2, OccurredAt: occurred},
		},
	})
	require.NoError(t, err)

	require.Len(t, result.Allocations, 2)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "batch-2", result.Failures[0].UnitID)
	assert.Equal(t, "missing_price", result.Failures[0].Reason)

	// Arrival order survives into the result.
	assert.Equal(t, "batch-1", result.Allocations[0].UnitID)
	assert.Equal(t, "batch-3", result.Allocations[1].UnitID)
}

func TestGetByUnitID_NotFound(t *testing.T) {
	env := setupAllocationTest(t)

	_, err := env.svc.GetByUnitID(context.Background(), "never-submitted")
	assert.ErrorIs(t, err, allocationdomain.ErrNotFound)
}

func TestAllocateBatch_RejectsOversizedBatch(t *testing.T) {
	env := setupAllocationTest(t)
	env.svc.policy = config.StaticPolicyHolder(config.PolicyConfig{
		MaxBatchUnits:   2,
		DefaultCurrency: "USD",
	})

	units := make([]allocationdomain.AllocateRequest, 3)
	for i := range units {
		units[i] = allocationdomain.AllocateRequest{
			UnitID:    "oversized-" + env.node.Generate().String(),
			ClientID:  env.node.Generate().String(),
			ServiceID: env.node.Generate().String(),
			Quantity:  1,
		}
	}

	_, err := env.svc.AllocateBatch(context.Background(), allocationdomain.BatchRequest{Units: units})
	assert.ErrorIs(t, err, allocationdomain.ErrBatchTooLarge)
}
