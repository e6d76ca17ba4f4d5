package orchestrator

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/dojoctl/internal/discovery"
	"github.com/xkilldash9x/dojoctl/internal/dojo"
)

// Mode names an entity topology.
type Mode string

const (
	ModeShared       Mode = "shared-product"
	ModePerComponent Mode = "per-component-product"
)

// Target is where one component's artifacts are imported.
type Target struct {
	Product    dojo.Entity
	Engagement dojo.Entity
	Tags       []string
}

// EntityStrategy decides which product and engagement each component uploads
// into. Prepare runs once before any upload; an error from it aborts the run.
// An error from Target only fails that component.
type EntityStrategy interface {
	Mode() Mode
	Prepare(ctx context.Context, r Resolver, rep Reporter, plan Plan) error
	Target(ctx context.Context, r Resolver, rep Reporter, plan Plan, c discovery.Component) (Target, error)
	ProductName(plan Plan, c discovery.Component) string
}

// StrategyFor picks the strategy matching plan.SeparateProducts.
func StrategyFor(plan Plan) EntityStrategy {
	if plan.SeparateProducts {
		return &PerComponentProduct{}
	}
	return &SharedProduct{}
}

// SharedProduct resolves one product and one engagement for the whole run.
type SharedProduct struct {
	target Target
}

func (s *SharedProduct) Mode() Mode { return ModeShared }

func (s *SharedProduct) ProductName(plan Plan, _ discovery.Component) string { return plan.Product }

func (s *SharedProduct) Prepare(ctx context.Context, r Resolver, rep Reporter, plan Plan) error {
	t, err := resolveTarget(ctx, r, rep, plan.Product, plan)
	if err != nil {
		return err
	}
	s.target = t
	return nil
}

func (s *SharedProduct) Target(_ context.Context, _ Resolver, _ Reporter, plan Plan, c discovery.Component) (Target, error) {
	t := s.target
	if plan.ComponentTags {
		t.Tags = []string{c.Name}
	}
	return t, nil
}

// PerComponentProduct resolves "<prefix> - <Component Name>" for every
// component.
type PerComponentProduct struct{}

func (p *PerComponentProduct) Mode() Mode { return ModePerComponent }

func (p *PerComponentProduct) ProductName(plan Plan, c discovery.Component) string {
	return fmt.Sprintf("%s - %s", plan.Product, discovery.HumanizeComponent(c.Name))
}

func (p *PerComponentProduct) Prepare(context.Context, Resolver, Reporter, Plan) error { return nil }

func (p *PerComponentProduct) Target(ctx context.Context, r Resolver, rep Reporter, plan Plan, c discovery.Component) (Target, error) {
	return resolveTarget(ctx, r, rep, p.ProductName(plan, c), plan)
}

func resolveTarget(ctx context.Context, r Resolver, rep Reporter, product string, plan Plan) (Target, error) {
	prod, err := r.ResolveProduct(ctx, product)
	if err != nil {
		return Target{}, err
	}
	rep.Resolved(prod)

	eng, err := r.ResolveEngagement(ctx, prod.ID, plan.Engagement, plan.ReuseEngagement)
	if err != nil {
		return Target{Product: prod}, err
	}
	rep.Resolved(eng)
	return Target{Product: prod, Engagement: eng}, nil
}
