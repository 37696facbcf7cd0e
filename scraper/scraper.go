package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aluiziolira/kaspi-offer-tracker/config"
	"github.com/aluiziolira/kaspi-offer-tracker/models"
	"github.com/aluiziolira/kaspi-offer-tracker/parser"
)

// Action names used in logs and metrics.
const (
	ActionFetchMainPage    = "fetch_main_page"
	ActionParseMainPage    = "parse_main_page"
	ActionFetchReviewsPage = "fetch_reviews_page"
	ActionParseReviewsPage = "parse_reviews_page"
	ActionFetchOffersPage  = "fetch_offers_page"
	ActionParseOffersPage  = "parse_offers_page"
)

// Scraper fetches and decodes the product page, reviews and offers.
type Scraper struct {
	cfg       *config.Config
	fetcher   *Fetcher
	extractor *parser.Extractor
	offers    *OfferPaginator
	logger    *slog.Logger
	Metrics   *Metrics
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config, logger *slog.Logger, metrics *Metrics) (*Scraper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}

	fetcher := NewFetcher(cfg, logger, metrics)
	paginator, err := NewOfferPaginator(cfg, fetcher, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("offer paginator: %w", err)
	}

	return &Scraper{
		cfg:       cfg,
		fetcher:   fetcher,
		extractor: parser.NewExtractor(cfg.ItemMarker, cfg.CategoryKey),
		offers:    paginator,
		logger:    logger,
		Metrics:   metrics,
	}, nil
}

// WithTransport swaps the HTTP transport of every request.
func (s *Scraper) WithTransport(rt http.RoundTripper) {
	s.fetcher.WithTransport(rt)
}

// FetchProduct downloads the product page and extracts the embedded item.
func (s *Scraper) FetchProduct(ctx context.Context, productURL string) (*models.ProductRecord, error) {
	resp, err := s.fetcher.FetchOK(ctx, Request{
		Action: ActionFetchMainPage,
		Method: http.MethodGet,
		URL:    productURL,
	})
	if err != nil {
		return nil, err
	}

	product, err := s.extractor.Extract(resp.URL, resp.Body)
	if err != nil {
		s.logger.Error("failed",
			slog.String("action", ActionParseMainPage),
			slog.String("url", resp.URL),
			slog.Any("error", err),
		)
		s.Metrics.IncError(ActionParseMainPage, err)
		return nil, err
	}
	parser.NormalizeProduct(product)

	s.logger.Debug("success",
		slog.String("action", ActionParseMainPage),
		slog.String("url", resp.URL),
	)
	return product, nil
}

// FetchReviews downloads the review aggregate for productID.
func (s *Scraper) FetchReviews(ctx context.Context, productID int64, productURL string) (*models.ReviewAggregate, error) {
	resp, err := s.fetcher.FetchOK(ctx, Request{
		Action:  ActionFetchReviewsPage,
		Method:  http.MethodGet,
		URL:     fmt.Sprintf(s.cfg.ReviewsURLTemplate, productID),
		Headers: refererHeader(productURL),
	})
	if err != nil {
		return nil, err
	}

	agg, err := parser.ParseReviews(resp.URL, resp.Body)
	if err != nil {
		s.logger.Error("failed",
			slog.String("action", ActionParseReviewsPage),
			slog.String("url", resp.URL),
			slog.Any("error", err),
		)
		s.Metrics.IncError(ActionParseReviewsPage, err)
		return nil, err
	}

	s.logger.Debug("success",
		slog.String("action", ActionParseReviewsPage),
		slog.String("url", resp.URL),
	)
	return agg, nil
}

// FetchOffers paginates the offer API for productID.
func (s *Scraper) FetchOffers(ctx context.Context, productID int64, productURL string) (*models.OfferSet, error) {
	return s.offers.FetchAll(ctx, productID, productURL)
}

func refererHeader(productURL string) http.Header {
	hdr := http.Header{}
	hdr.Set("Referer", productURL)
	return hdr
}
