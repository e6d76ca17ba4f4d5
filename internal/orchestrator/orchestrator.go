// File: internal/orchestrator/orchestrator.go
// Description: Drives discovery, entity resolution and per-artifact upload
// for one run, and folds the outcomes into a Summary.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dojoctl/internal/discovery"
	"github.com/xkilldash9x/dojoctl/internal/dojo"
)

// ErrNoScanFiles is returned when discovery recognized nothing.
var ErrNoScanFiles = errors.New("no scan files found")

// Plan is the user's request for one run.
type Plan struct {
	ScanDir    string `json:"scan_dir" yaml:"scan_dir"`
	Product    string `json:"product" yaml:"product"`
	Engagement string `json:"engagement" yaml:"engagement"`
	// SeparateProducts switches to one product per component, using Product
	// as the name prefix.
	SeparateProducts bool `json:"separate_products" yaml:"separate_products"`
	// ComponentTags tags every upload with its component. Shared mode only.
	ComponentTags   bool `json:"component_tags" yaml:"component_tags"`
	ReuseEngagement bool `json:"reuse_engagement" yaml:"reuse_engagement"`
}

// Resolver is the slice of the findings service the run needs. *dojo.Client
// satisfies it.
type Resolver interface {
	ResolveProduct(ctx context.Context, name string) (dojo.Entity, error)
	ResolveEngagement(ctx context.Context, productID int, name string, reuseToday bool) (dojo.Entity, error)
	Upload(ctx context.Context, engagementID int, scanType, path string, tags []string) dojo.UploadResult
	DashboardURL() string
}

// Reporter receives a status line for every step of the run.
type Reporter interface {
	Start(plan Plan)
	Discovered(inv discovery.Inventory)
	Section(title string)
	Resolved(entity dojo.Entity)
	ResolutionFailed(component string, pending int, err error)
	Uploaded(file discovery.ScanFile, result dojo.UploadResult)
	Finish(summary *Summary)
}

// Orchestrator runs uploads one at a time, component by component.
type Orchestrator struct {
	resolver Resolver
	reporter Reporter
	logger   *zap.Logger
	discover func(root string) (discovery.Inventory, error)
	now      func() time.Time
}

// New creates an Orchestrator. A nil logger is replaced by a no-op one.
func New(resolver Resolver, reporter Reporter, logger *zap.Logger) (*Orchestrator, error) {
	if resolver == nil || reporter == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		resolver: resolver,
		reporter: reporter,
		logger:   logger,
		discover: discovery.Discover,
		now:      time.Now,
	}, nil
}

// Run executes plan. The returned Summary is always non-nil. A non-nil error
// means the run stopped early: discovery failed or found nothing, or the
// shared product and engagement could not be resolved. Per-artifact and
// per-component failures are counted in the Summary instead.
func (o *Orchestrator) Run(ctx context.Context, plan Plan) (*Summary, error) {
	strategy := StrategyFor(plan)
	summary := &Summary{
		RunID:        uuid.NewString(),
		Mode:         strategy.Mode(),
		Product:      plan.Product,
		Engagement:   plan.Engagement,
		StartedAt:    o.now(),
		DashboardURL: o.resolver.DashboardURL(),
	}
	logger := o.logger.With(zap.String("run_id", summary.RunID), zap.String("mode", string(summary.Mode)))
	logger.Info("Starting upload run", zap.String("scan_dir", plan.ScanDir))
	o.reporter.Start(plan)

	err := o.run(ctx, plan, strategy, summary, logger)
	if err != nil {
		summary.Error = err.Error()
		logger.Error("Upload run aborted", zap.Error(err))
	}
	summary.FinishedAt = o.now()
	logger.Info("Upload run finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("products_touched", summary.ProductsTouched),
	)
	o.reporter.Finish(summary)
	return summary, err
}

func (o *Orchestrator) run(ctx context.Context, plan Plan, strategy EntityStrategy, summary *Summary, logger *zap.Logger) error {
	inv, err := o.discover(plan.ScanDir)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}
	o.reporter.Discovered(inv)
	if inv.Empty() {
		return ErrNoScanFiles
	}
	logger.Info("Discovered scan files", zap.Int("components", len(inv.Components)), zap.Int("files", inv.FileCount()))

	if err := strategy.Prepare(ctx, o.resolver, o.reporter, plan); err != nil {
		return err
	}

	for _, c := range inv.Components {
		product := strategy.ProductName(plan, c)
		if strategy.Mode() == ModePerComponent {
			o.reporter.Section("Product: " + product)
		} else {
			o.reporter.Section("Component: " + c.Name)
		}
		cs := summary.addComponent(c, product)

		target, err := strategy.Target(ctx, o.resolver, o.reporter, plan, c)
		if target.Product.ID != 0 {
			summary.touchProduct(target.Product.ID)
			cs.ProductID = target.Product.ID
		}
		if err != nil {
			logger.Warn("Component skipped after resolution failure",
				zap.String("component", c.Name), zap.Int("pending", len(c.Files)), zap.Error(err))
			summary.failComponent(cs, c, err)
			o.reporter.ResolutionFailed(c.Name, len(c.Files), err)
			continue
		}
		cs.EngagementID = target.Engagement.ID

		for _, f := range c.Files {
			res := o.resolver.Upload(ctx, target.Engagement.ID, f.ScanType, f.Path, target.Tags)
			summary.record(cs, res)
			o.reporter.Uploaded(f, res)
			logger.Debug("Upload finished",
				zap.String("component", c.Name),
				zap.String("path", f.Path),
				zap.Stringer("outcome", res.Outcome),
				zap.Int("status", res.StatusCode),
			)
		}
	}
	return nil
}
