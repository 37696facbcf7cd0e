package parser

import (
	"errors"
	"testing"

	"github.com/aluiziolira/kaspi-offer-tracker/models"
)

func int64Ptr(v int64) *int64 { return &v }

func TestValidateProduct(t *testing.T) {
	tests := []struct {
		name    string
		product *models.ProductRecord
		wantErr bool
	}{
		{
			name:    "valid product",
			product: &models.ProductRecord{ID: 100, Name: "Apple iPhone 15 128Gb"},
			wantErr: false,
		},
		{
			name:    "nil product",
			product: nil,
			wantErr: true,
		},
		{
			name:    "missing id",
			product: &models.ProductRecord{Name: "Apple iPhone 15 128Gb"},
			wantErr: true,
		},
		{
			name:    "missing name",
			product: &models.ProductRecord{ID: 100, Name: "  "},
			wantErr: true,
		},
		{
			name:    "inverted price range",
			product: &models.ProductRecord{ID: 100, Name: "Phone", MinPrice: int64Ptr(500), MaxPrice: int64Ptr(400)},
			wantErr: true,
		},
		{
			name:    "equal price range",
			product: &models.ProductRecord{ID: 100, Name: "Phone", MinPrice: int64Ptr(500), MaxPrice: int64Ptr(500)},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProduct(tt.product)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProduct() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "already clean", input: "Sulpak", expected: "Sulpak"},
		{name: "surrounding space", input: "  Technodom \n", expected: "Technodom"},
		{name: "inner runs", input: "Mechta   Almaty\tCenter", expected: "Mechta Almaty Center"},
		{name: "cyrillic", input: " Смартфон  Apple ", expected: "Смартфон Apple"},
		{name: "empty", input: "   ", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.input); got != tt.expected {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeProduct(t *testing.T) {
	p := &models.ProductRecord{ID: 1, Name: " Apple  iPhone ", Category: " Smartphones "}
	NormalizeProduct(p)
	if p.Name != "Apple iPhone" || p.Category != "Smartphones" {
		t.Fatalf("normalized = %q / %q", p.Name, p.Category)
	}
}

func TestParseErrorMessage(t *testing.T) {
	cause := errors.New("unexpected end")
	err := newParseError("parse_main_page", "https://kaspi.kz/p/1", "item document not found", cause)
	want := "parse: parse_main_page https://kaspi.kz/p/1: item document not found: unexpected end"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause not unwrapped")
	}

	bare := newParseError("parse_offers_page", "u", "missing offers", nil)
	if bare.Error() != "parse: parse_offers_page u: missing offers" {
		t.Fatalf("Error() = %q", bare.Error())
	}
}
