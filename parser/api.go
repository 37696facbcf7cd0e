package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/kaspi-offer-tracker/models"
	"github.com/tidwall/gjson"
)

const (
	actionParseReviews = "parse_reviews_page"
	actionParseOffers  = "parse_offers_page"

	commentGroupID = "COMMENT"
)

// ParseReviews decodes {summary:{global}, groupSummary:[{id,total}]}. The
// review count is taken from the COMMENT group and left nil when absent.
func ParseReviews(url string, body []byte) (*models.ReviewAggregate, error) {
	if !gjson.ValidBytes(body) {
		return nil, newParseError(actionParseReviews, url, "body is not valid JSON", nil)
	}

	global := gjson.GetBytes(body, "summary.global")
	if !global.Exists() || global.Type != gjson.Number {
		return nil, newParseError(actionParseReviews, url, "missing summary.global", nil)
	}
	groups := gjson.GetBytes(body, "groupSummary")
	if !groups.IsArray() {
		return nil, newParseError(actionParseReviews, url, "missing groupSummary", nil)
	}

	agg := &models.ReviewAggregate{Rating: global.Float()}
	groups.ForEach(func(_, group gjson.Result) bool {
		if group.Get("id").String() == commentGroupID {
			if total := group.Get("total"); total.Exists() {
				n := int(total.Int())
				agg.ReviewCount = &n
			}
		}
		return true
	})
	return agg, nil
}

// ParseOfferPage decodes one page of the offer API. offersCount is only
// required when requireCount is set (the first page drives pagination).
func ParseOfferPage(url string, page int, body []byte, requireCount bool) (*models.RawOfferPage, error) {
	if !gjson.ValidBytes(body) {
		return nil, newParseError(actionParseOffers, url, "body is not valid JSON", nil)
	}

	out := &models.RawOfferPage{Page: page}

	count := gjson.GetBytes(body, "offersCount")
	switch {
	case count.Exists() && count.Type == gjson.Number:
		out.OffersCount = int(count.Int())
	case requireCount:
		return nil, newParseError(actionParseOffers, url, "missing offersCount", nil)
	}
	if out.OffersCount < 0 {
		return nil, newParseError(actionParseOffers, url, "negative offersCount", nil)
	}

	offers := gjson.GetBytes(body, "offers")
	if !offers.IsArray() {
		return nil, newParseError(actionParseOffers, url, "missing offers", nil)
	}

	var entryErr error
	offers.ForEach(func(key, value gjson.Result) bool {
		entry, err := parseOfferEntry(value)
		if err != nil {
			entryErr = fmt.Errorf("offers[%d]: %w", key.Int(), err)
			return false
		}
		out.Offers = append(out.Offers, entry)
		return true
	})
	if entryErr != nil {
		return nil, newParseError(actionParseOffers, url, "malformed offer", entryErr)
	}
	return out, nil
}

func parseOfferEntry(value gjson.Result) (models.RawOfferEntry, error) {
	id := value.Get("merchantId")
	if !id.Exists() || strings.TrimSpace(id.String()) == "" {
		return models.RawOfferEntry{}, fmt.Errorf("missing merchantId")
	}
	name := value.Get("merchantName")
	if !name.Exists() {
		return models.RawOfferEntry{}, fmt.Errorf("missing merchantName")
	}
	price := value.Get("price")
	if !price.Exists() || price.Type != gjson.Number {
		return models.RawOfferEntry{}, fmt.Errorf("missing price")
	}
	if price.Int() < 0 {
		return models.RawOfferEntry{}, fmt.Errorf("negative price")
	}
	return models.RawOfferEntry{
		MerchantID:   strings.TrimSpace(id.String()),
		MerchantName: name.String(),
		Price:        price.Int(),
	}, nil
}
