package cache

import (
	"time"

	catalogdomain "github.com/tallyops/meridian/internal/catalog/domain"
)

const defaultServiceTTL = 10 * time.Minute

// CatalogCache stores service catalog lookups for the allocation hot path.
type CatalogCache interface {
	GetService(serviceID string) (*catalogdomain.ServiceDefinition, bool)
	SetService(serviceID string, definition *catalogdomain.ServiceDefinition)
	InvalidateService(serviceID string)
}

type catalogCache struct {
	services Cache[string, *catalogdomain.ServiceDefinition]
	ttl      time.Duration
}

// NewCatalogCache returns an in-memory cache for catalog rate lookups.
func NewCatalogCache() CatalogCache {
	return &catalogCache{
		services: NewTTLCache[string, *catalogdomain.ServiceDefinition](),
		ttl:      defaultServiceTTL,
	}
}

func (c *catalogCache) GetService(serviceID string) (*catalogdomain.ServiceDefinition, bool) {
	return c.services.Get(serviceID)
}

func (c *catalogCache) SetService(serviceID string, definition *catalogdomain.ServiceDefinition) {
	if definition == nil {
		return
	}
	c.services.Set(serviceID, definition, c.ttl)
}

func (c *catalogCache) InvalidateService(serviceID string) {
	c.services.Delete(serviceID)
}
