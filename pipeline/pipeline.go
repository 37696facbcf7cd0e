// Package pipeline sequences one tracker run and writes its exports.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/kaspi-offer-tracker/models"
	"github.com/aluiziolira/kaspi-offer-tracker/parser"
	"github.com/aluiziolira/kaspi-offer-tracker/scraper"
	"github.com/aluiziolira/kaspi-offer-tracker/store"
	"github.com/google/uuid"
)

// Run states.
const (
	StateFetchMain    = "fetch_main"
	StateFetchReviews = "fetch_reviews"
	StateFetchOffers  = "fetch_offers"
	StateReconcile    = "reconcile"
	StateExport       = "export"
	StateDone         = "done"
	StateAborted      = "aborted"
)

// ErrAborted wraps the main page failure that ended a run.
var ErrAborted = errors.New("pipeline: run aborted")

// Source fetches the three upstream resources of a product.
type Source interface {
	FetchProduct(ctx context.Context, productURL string) (*models.ProductRecord, error)
	FetchReviews(ctx context.Context, productID int64, productURL string) (*models.ReviewAggregate, error)
	FetchOffers(ctx context.Context, productID int64, productURL string) (*models.OfferSet, error)
}

// Reconciler persists a product and, when offers is non-nil, its offers.
type Reconciler interface {
	Reconcile(ctx context.Context, product *models.ProductRecord, offers []models.OfferRecord) (*store.Result, error)
}

// Publisher receives the result of every run.
type Publisher interface {
	Publish(ctx context.Context, result *models.RunResult) error
}

// Pipeline runs FetchMain, FetchReviews, FetchOffers, Reconcile and Export
// in order. Only a FetchMain failure aborts; later failures drop the
// dependent fields and the run continues.
type Pipeline struct {
	source     Source
	reconciler Reconciler
	exporter   Exporter
	publisher  Publisher
	logger     *slog.Logger
	metrics    *scraper.Metrics
	now        func() time.Time
}

// NewPipeline wires a pipeline. reconciler may be nil to skip persistence.
func NewPipeline(source Source, reconciler Reconciler, exporter Exporter, logger *slog.Logger, metrics *scraper.Metrics) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		source:     source,
		reconciler: reconciler,
		exporter:   exporter,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
	}
}

// WithPublisher sets the run publisher.
func (p *Pipeline) WithPublisher(pub Publisher) *Pipeline {
	p.publisher = pub
	return p
}

// RunOnce performs a single run for productURL.
func (p *Pipeline) RunOnce(ctx context.Context, productURL string) (*models.RunResult, error) {
	result := &models.RunResult{
		RunID:      uuid.NewString(),
		ProductURL: productURL,
		State:      StateFetchMain,
		StartTime:  p.now(),
	}
	logger := p.logger.With(slog.String("run_id", result.RunID))

	product, err := p.source.FetchProduct(ctx, productURL)
	if err != nil {
		logger.Error("failed",
			slog.String("action", "fetch_product"),
			slog.String("url", productURL),
			slog.Any("error", err),
		)
		result.State = StateAborted
		p.finish(ctx, result, "aborted")
		return result, fmt.Errorf("%w: %w", ErrAborted, err)
	}
	result.Product = product

	result.State = StateFetchReviews
	reviews, err := p.source.FetchReviews(ctx, product.ID, productURL)
	if err != nil {
		logger.Warn("reviews skipped", slog.String("url", productURL), slog.Any("error", err))
		result.Skipped = append(result.Skipped, "reviews")
	} else {
		product.ApplyReviews(reviews)
	}

	result.State = StateFetchOffers
	set, err := p.source.FetchOffers(ctx, product.ID, productURL)
	switch {
	case errors.Is(err, scraper.ErrEmptyOfferSet):
		logger.Info("no offers", slog.String("url", productURL))
		result.Skipped = append(result.Skipped, "offers")
	case err != nil:
		logger.Warn("offers skipped", slog.String("url", productURL), slog.Any("error", err))
		result.Skipped = append(result.Skipped, "offers")
	default:
		product.ApplyOffers(set)
		result.Offers = set.Offers
	}

	var persistErr error
	if p.reconciler != nil {
		result.State = StateReconcile
		if err := parser.ValidateProduct(product); err != nil {
			logger.Error("failed",
				slog.String("action", "reconcile"),
				slog.Int64("product_id", product.ID),
				slog.Any("error", err),
			)
			persistErr = fmt.Errorf("validate: %w", err)
		} else if _, err := p.reconciler.Reconcile(ctx, product, result.Offers); err != nil {
			logger.Error("failed",
				slog.String("action", "reconcile"),
				slog.Int64("product_id", product.ID),
				slog.Any("error", err),
			)
			persistErr = fmt.Errorf("reconcile: %w", err)
		}
	}

	exportErr := p.export(result)
	if exportErr != nil {
		logger.Error("failed",
			slog.String("action", "export"),
			slog.Any("error", exportErr),
		)
		if persistErr == nil {
			result.State = StateExport
		}
	}

	if err := errors.Join(persistErr, exportErr); err != nil {
		p.finish(ctx, result, "failed")
		return result, err
	}

	result.State = StateDone
	p.finish(ctx, result, "done")
	logger.Info("success",
		slog.String("action", "fetch_product"),
		slog.String("url", productURL),
		slog.Int64("product_id", product.ID),
		slog.Int("offers", len(result.Offers)),
	)
	return result, nil
}

// export writes the product artifact, and the offers artifact only when the
// offer set was collected.
func (p *Pipeline) export(result *models.RunResult) error {
	if p.exporter == nil {
		return nil
	}
	if err := p.exporter.WriteProduct(result.Product); err != nil {
		return fmt.Errorf("export product: %w", err)
	}
	if result.Offers != nil {
		if err := p.exporter.WriteOffers(result.Offers); err != nil {
			return fmt.Errorf("export offers: %w", err)
		}
	}
	return p.exporter.Validate()
}

func (p *Pipeline) finish(ctx context.Context, result *models.RunResult, outcome string) {
	result.EndTime = p.now()
	p.metrics.IncRun(outcome)

	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, result); err != nil {
		p.logger.Warn("publish failed",
			slog.String("run_id", result.RunID),
			slog.Any("error", err),
		)
	}
}
