package dojo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

// Origin says which branch of a resolve-or-create produced an entity.
type Origin string

const (
	OriginFound    Origin = "found"
	OriginCreated  Origin = "created"
	OriginReused   Origin = "reused"
	OriginFallback Origin = "fallback"
)

// Entity is a resolved remote resource.
type Entity struct {
	Kind   EntityKind
	ID     int
	Name   string
	Origin Origin
}

// Search then create is two separate calls with no lock around them. Two runs
// racing on the same name can both miss the search and both create; nothing
// here tries to prevent or repair that. Creates also go through the retried
// session, so a create that landed but answered 5xx is sent again and can
// leave a duplicate the same way.

// ResolveProductType returns the id of the named product type, creating it on
// a miss. When creation is refused it falls back to the first product type the
// service lists. The result is remembered for the rest of the run.
func (c *Client) ResolveProductType(ctx context.Context, name string) (Entity, error) {
	if id, ok := c.productTypes[name]; ok {
		return Entity{Kind: KindProductType, ID: id, Name: name, Origin: OriginFound}, nil
	}

	logger := c.logger.With(zap.String("product_type", name))
	found, err := list[ProductType](ctx, c, pathProductTypes, url.Values{"name": {name}})
	if err != nil {
		logger.Warn("Product type search failed", zap.Error(err))
	} else if len(found) > 0 {
		c.productTypes[name] = found[0].ID
		return Entity{Kind: KindProductType, ID: found[0].ID, Name: found[0].Name, Origin: OriginFound}, nil
	}

	created, createErr := create[ProductType](ctx, c, pathProductTypes, productTypeRequest{Name: name})
	if createErr == nil {
		c.productTypes[name] = created.ID
		return Entity{Kind: KindProductType, ID: created.ID, Name: name, Origin: OriginCreated}, nil
	}
	logger.Warn("Product type create failed, falling back to an existing type", zap.Error(createErr))

	all, listErr := list[ProductType](ctx, c, pathProductTypes, nil)
	if listErr != nil {
		return Entity{}, &ResolutionError{Kind: KindProductType, Name: name, Err: errors.Join(createErr, listErr)}
	}
	if len(all) == 0 {
		return Entity{}, &ResolutionError{Kind: KindProductType, Name: name, Err: fmt.Errorf("no product types available: %w", createErr)}
	}
	logger.Warn("Using existing product type", zap.String("fallback", all[0].Name), zap.Int("id", all[0].ID))
	c.productTypes[name] = all[0].ID
	return Entity{Kind: KindProductType, ID: all[0].ID, Name: all[0].Name, Origin: OriginFallback}, nil
}

// ResolveProduct returns the id of the named product. On a miss it resolves
// the default product type and creates the product under it. A failed search
// does not stop the create attempt.
func (c *Client) ResolveProduct(ctx context.Context, name string) (Entity, error) {
	logger := c.logger.With(zap.String("product", name))

	found, searchErr := list[Product](ctx, c, pathProducts, url.Values{"name": {name}})
	if searchErr != nil {
		logger.Warn("Product search failed, attempting create", zap.Error(searchErr))
	} else if len(found) > 0 {
		return Entity{Kind: KindProduct, ID: found[0].ID, Name: name, Origin: OriginFound}, nil
	}

	pt, err := c.ResolveProductType(ctx, DefaultProductType)
	if err != nil {
		return Entity{}, &ResolutionError{Kind: KindProduct, Name: name, Err: errors.Join(searchErr, err)}
	}

	created, err := create[Product](ctx, c, pathProducts, productRequest{
		Name:        name,
		Description: DefaultProductDescription,
		ProdType:    pt.ID,
	})
	if err != nil {
		return Entity{}, &ResolutionError{Kind: KindProduct, Name: name, Err: errors.Join(searchErr, err)}
	}
	logger.Info("Created product", zap.Int("id", created.ID))
	return Entity{Kind: KindProduct, ID: created.ID, Name: name, Origin: OriginCreated}, nil
}

// ResolveEngagement returns an engagement under productID. With reuseToday it
// first looks for one whose start date is today's local date. Otherwise, or
// on a miss, it creates one running from today to today.
func (c *Client) ResolveEngagement(ctx context.Context, productID int, name string, reuseToday bool) (Entity, error) {
	today := c.today()
	logger := c.logger.With(zap.Int("product_id", productID), zap.String("engagement", name))

	if reuseToday {
		found, err := list[Engagement](ctx, c, pathEngagements, url.Values{
			"product":      {strconv.Itoa(productID)},
			"target_start": {today},
		})
		if err != nil {
			logger.Warn("Engagement search failed, attempting create", zap.Error(err))
		} else if len(found) > 0 {
			return Entity{Kind: KindEngagement, ID: found[0].ID, Name: found[0].Name, Origin: OriginReused}, nil
		}
	}

	created, err := create[Engagement](ctx, c, pathEngagements, engagementRequest{
		Name:           name,
		Product:        productID,
		TargetStart:    today,
		TargetEnd:      today,
		Status:         EngagementStatusInProgress,
		EngagementType: EngagementTypeCICD,
	})
	if err != nil {
		return Entity{}, &ResolutionError{Kind: KindEngagement, Name: name, Err: err}
	}
	logger.Info("Created engagement", zap.Int("id", created.ID))
	return Entity{Kind: KindEngagement, ID: created.ID, Name: name, Origin: OriginCreated}, nil
}
