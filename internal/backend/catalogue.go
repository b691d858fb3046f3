package backend

import (
	"context"
	"net/http"

	"github.com/patrickmn/go-cache"

	"github.com/fieldscan/fieldscan/internal/equipment"
)

const pathEquipmentCodes = "/api/equipment-codes"

// EquipmentCodes returns the backend's equipment catalogue, cached in memory
// for the catalogue TTL
func (c *Client) EquipmentCodes(ctx context.Context) ([]equipment.Definition, error) {
	if cached, ok := c.catalogue.Get(catalogueKey); ok {
		if defs, ok := cached.([]equipment.Definition); ok {
			return defs, nil
		}
	}

	resp, err := c.call(ctx, http.MethodGet, pathEquipmentCodes, nil)
	if err != nil {
		return nil, err
	}
	defs, err := decode[[]equipment.Definition](resp, pathEquipmentCodes)
	if err != nil {
		return nil, err
	}

	c.catalogue.Set(catalogueKey, defs, cache.DefaultExpiration)
	return defs, nil
}

// InvalidateCatalogue drops the in-memory catalogue
func (c *Client) InvalidateCatalogue() {
	c.catalogue.Delete(catalogueKey)
}
