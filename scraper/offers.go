package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aluiziolira/kaspi-offer-tracker/config"
	"github.com/aluiziolira/kaspi-offer-tracker/models"
	"github.com/aluiziolira/kaspi-offer-tracker/parser"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

type offerRequest struct {
	Page   int    `json:"page"`
	Limit  int    `json:"limit"`
	CityID string `json:"cityId"`
}

// OfferPaginator drives the paged offer API until every page is collected.
//
// Page 0 must succeed in full. On later pages a transport failure discards
// the whole set, while a malformed body only drops that page.
type OfferPaginator struct {
	cfg     *config.Config
	fetcher *Fetcher
	logger  *slog.Logger
	metrics *Metrics
}

// NewOfferPaginator validates the paging settings and returns a paginator.
func NewOfferPaginator(cfg *config.Config, fetcher *Fetcher, logger *slog.Logger, metrics *Metrics) (*OfferPaginator, error) {
	if cfg.OfferPageSize <= 0 {
		return nil, fmt.Errorf("offer page size must be positive")
	}
	if cfg.MaxOfferPages <= 0 {
		return nil, fmt.Errorf("max offer pages must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OfferPaginator{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// PageCount returns ceil(offersCount / pageSize).
func PageCount(offersCount, pageSize int) int {
	if offersCount <= 0 || pageSize <= 0 {
		return 0
	}
	pages := offersCount / pageSize
	if offersCount%pageSize != 0 {
		pages++
	}
	return pages
}

// FetchAll collects every offer page for productID and reduces the result.
func (p *OfferPaginator) FetchAll(ctx context.Context, productID int64, productURL string) (*models.OfferSet, error) {
	endpoint := fmt.Sprintf(p.cfg.OffersURLTemplate, productID)

	first, err := p.fetchPage(ctx, endpoint, productURL, 0)
	if err != nil {
		return nil, err
	}

	pageCount := PageCount(first.OffersCount, p.cfg.OfferPageSize)
	if pageCount > p.cfg.MaxOfferPages {
		err := parser.ParseError{
			Action: ActionParseOffersPage,
			URL:    endpoint,
			Reason: fmt.Sprintf("offersCount %d needs %d pages, limit is %d", first.OffersCount, pageCount, p.cfg.MaxOfferPages),
		}
		p.logger.Error("failed",
			slog.String("action", ActionParseOffersPage),
			slog.String("url", endpoint),
			slog.Int("page", 0),
			slog.Any("error", err),
		)
		p.metrics.IncError(ActionParseOffersPage, err)
		return nil, err
	}
	pages := make([]*models.RawOfferPage, max(pageCount, 1))
	pages[0] = first

	if pageCount > 1 {
		if err := p.fetchRemaining(ctx, endpoint, productURL, pages); err != nil {
			return nil, err
		}
	}

	return p.reduce(productID, first.OffersCount, pageCount, pages)
}

func (p *OfferPaginator) fetchRemaining(ctx context.Context, endpoint, productURL string, pages []*models.RawOfferPage) error {
	if p.cfg.OfferParallelism <= 1 {
		for n := 1; n < len(pages); n++ {
			page, err := p.fetchLaterPage(ctx, endpoint, productURL, n)
			if err != nil {
				return err
			}
			pages[n] = page
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.OfferParallelism)
	for n := 1; n < len(pages); n++ {
		n := n
		g.Go(func() error {
			page, err := p.fetchLaterPage(gctx, endpoint, productURL, n)
			if err != nil {
				return err
			}
			pages[n] = page
			return nil
		})
	}
	return g.Wait()
}

// fetchLaterPage returns a nil page without error when the body was
// malformed, so pagination continues.
func (p *OfferPaginator) fetchLaterPage(ctx context.Context, endpoint, productURL string, n int) (*models.RawOfferPage, error) {
	page, err := p.fetchPage(ctx, endpoint, productURL, n)
	if err != nil {
		if parser.IsParseError(err) {
			p.metrics.IncSkippedPage()
			return nil, nil
		}
		return nil, err
	}
	return page, nil
}

func (p *OfferPaginator) fetchPage(ctx context.Context, endpoint, productURL string, n int) (*models.RawOfferPage, error) {
	body, err := json.Marshal(offerRequest{
		Page:   n,
		Limit:  p.cfg.OfferPageSize,
		CityID: p.cfg.CityID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode offer request: %w", err)
	}

	resp, err := p.fetcher.FetchOK(ctx, Request{
		Action:  ActionFetchOffersPage,
		Method:  http.MethodPost,
		URL:     endpoint,
		Headers: refererHeader(productURL),
		Body:    body,
	})
	if err != nil {
		return nil, err
	}

	page, err := parser.ParseOfferPage(resp.URL, n, resp.Body, n == 0)
	if err != nil {
		p.logger.Error("failed",
			slog.String("action", ActionParseOffersPage),
			slog.String("url", resp.URL),
			slog.Int("page", n),
			slog.Any("error", err),
		)
		p.metrics.IncError(ActionParseOffersPage, err)
		return nil, err
	}

	p.logger.Debug("success",
		slog.String("action", ActionParseOffersPage),
		slog.String("url", resp.URL),
		slog.Int("page", n),
	)
	return page, nil
}

func (p *OfferPaginator) reduce(productID int64, offersCount, pageCount int, pages []*models.RawOfferPage) (*models.OfferSet, error) {
	entries := 0
	for _, page := range pages {
		if page != nil {
			entries += len(page.Offers)
		}
	}
	// the cache must hold every seller of the run, otherwise an evicted id
	// would pass as new
	seen, err := lru.New[string, struct{}](max(p.cfg.DedupeMaxSize, entries))
	if err != nil {
		return nil, fmt.Errorf("seller cache: %w", err)
	}

	set := &models.OfferSet{
		OffersCount: offersCount,
		PageCount:   pageCount,
	}
	for _, page := range pages {
		if page == nil {
			continue
		}
		for _, entry := range page.Offers {
			if seen.Contains(entry.MerchantID) {
				p.metrics.IncDuplicateSeller()
				continue
			}
			seen.Add(entry.MerchantID, struct{}{})

			offer := models.OfferRecord{
				ProductID:  productID,
				SellerID:   entry.MerchantID,
				SellerName: entry.MerchantName,
				Price:      entry.Price,
			}
			parser.NormalizeOffer(&offer)
			set.Offers = append(set.Offers, offer)
		}
	}

	if len(set.Offers) == 0 {
		return nil, fmt.Errorf("product %d: %w", productID, ErrEmptyOfferSet)
	}

	set.MinPrice, set.MaxPrice = set.Offers[0].Price, set.Offers[0].Price
	for _, offer := range set.Offers[1:] {
		set.MinPrice = min(set.MinPrice, offer.Price)
		set.MaxPrice = max(set.MaxPrice, offer.Price)
	}

	p.metrics.AddOffers(len(set.Offers))
	return set, nil
}
