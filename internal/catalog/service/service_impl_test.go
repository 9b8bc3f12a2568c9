package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	catalogdomain "github.com/tallyops/meridian/internal/catalog/domain"
	"github.com/tallyops/meridian/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupCatalogTest(t *testing.T) (*Service, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&catalogdomain.ServiceDefinition{}))

	node, _ := snowflake.NewNode(1)
	svc := &Service{
		db:          db,
		log:         zap.NewNop(),
		genID:       node,
		servicerepo: repository.ProvideStore[catalogdomain.ServiceDefinition](db),
	}
	return svc, node
}

func TestCreate_NormalizesAndPersists(t *testing.T) {
	svc, node := setupCatalogTest(t)

	rate := int64(7500)
	code := "code-review-" + node.Generate().String()
	def, err := svc.Create(context.Background(), catalogdomain.CreateServiceRequest{
		Code:             "  " + code + "  ",
		Name:             "Code Review",
		DefaultRateCents: &rate,
		Currency:         "usd",
	})
	require.NoError(t, err)

	assert.Equal(t, code, def.Code)
	assert.Equal(t, "USD", def.Currency)

	found, err := svc.GetByCode(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, def.ID, found.ID)
}

func TestCreate_DuplicateCode(t *testing.T) {
	svc, node := setupCatalogTest(t)

	code := "dup-" + node.Generate().String()
	req := catalogdomain.CreateServiceRequest{
		Code:     code,
		Name:     "Audit",
		Currency: "USD",
	}

	_, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, catalogdomain.ErrCodeExists)
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := setupCatalogTest(t)

	_, err := svc.Create(context.Background(), catalogdomain.CreateServiceRequest{Name: "x", Currency: "USD"})
	assert.ErrorIs(t, err, catalogdomain.ErrInvalidCode)

	negative := int64(-1)
	_, err = svc.Create(context.Background(), catalogdomain.CreateServiceRequest{
		Code:             "neg",
		Name:             "x",
		Currency:         "USD",
		DefaultRateCents: &negative,
	})
	assert.ErrorIs(t, err, catalogdomain.ErrInvalidRate)
}

func TestGetByID_NotFound(t *testing.T) {
	svc, node := setupCatalogTest(t)

	_, err := svc.GetByID(context.Background(), node.Generate())
	assert.ErrorIs(t, err, catalogdomain.ErrNotFound)
}
