package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/kaspi-offer-tracker/models"
)

// ValidateProduct ensures the extracted record carries what persistence needs.
func ValidateProduct(p *models.ProductRecord) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if p.ID <= 0 {
		return fmt.Errorf("product id must be positive, got %d", p.ID)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("product %d missing name", p.ID)
	}
	if p.MinPrice != nil && p.MaxPrice != nil && *p.MinPrice > *p.MaxPrice {
		return fmt.Errorf("product %d min price %d exceeds max price %d", p.ID, *p.MinPrice, *p.MaxPrice)
	}
	return nil
}

// NormalizeText collapses whitespace runs and trims the ends.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// NormalizeProduct tidies free-text fields in place.
func NormalizeProduct(p *models.ProductRecord) {
	if p == nil {
		return
	}
	p.Name = NormalizeText(p.Name)
	p.Category = strings.TrimSpace(p.Category)
}

// NormalizeOffer tidies the seller name in place.
func NormalizeOffer(o *models.OfferRecord) {
	o.SellerName = NormalizeText(o.SellerName)
}
