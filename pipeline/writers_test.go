package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aluiziolira/kaspi-offer-tracker/models"
)

func sampleOffers() []models.OfferRecord {
	return []models.OfferRecord{
		{ProductID: 42, SellerID: "30001", SellerName: "Sulpak & Co", Price: 359990},
		{ProductID: 42, SellerID: "30002", SellerName: "Мечта", Price: 329990},
	}
}

func TestJSONWriterProduct(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewJSONWriter(dir)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}

	rating := 4.8
	product := &models.ProductRecord{
		ID:             42,
		Name:           "Смартфон <Phone>",
		Category:       "Smartphones",
		Specifications: models.Specifications{"Общие": {"Цвет": "черный"}},
		Images:         []json.RawMessage{json.RawMessage(`"a.jpg"`)},
		Rating:         &rating,
	}
	if err := writer.WriteProduct(product); err != nil {
		t.Fatalf("write product: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ProductFile))
	if err != nil {
		t.Fatalf("read product: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "Смартфон <Phone>") {
		t.Fatalf("non-ASCII or HTML characters were escaped:\n%s", text)
	}
	if !strings.Contains(text, "\n    \"id\": 42") {
		t.Fatalf("expected four-space indentation:\n%s", text)
	}
	if strings.Contains(text, "min_price") {
		t.Fatalf("absent price range must be omitted:\n%s", text)
	}

	var decoded models.ProductRecord
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Specifications["Общие"]["Цвет"] != "черный" {
		t.Fatalf("specs = %v", decoded.Specifications)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestJSONWriterOffersReplacesFile(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewJSONWriter(dir)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}

	if err := writer.WriteOffers(sampleOffers()); err != nil {
		t.Fatalf("write offers: %v", err)
	}
	if err := writer.WriteOffers(sampleOffers()[:1]); err != nil {
		t.Fatalf("rewrite offers: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, OffersFile))
	if err != nil {
		t.Fatalf("read offers: %v", err)
	}
	var offers []map[string]any
	if err := json.Unmarshal(data, &offers); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("offers = %d, want 1", len(offers))
	}
	if offers[0]["merchant_id"] != "30001" || offers[0]["merchant_name"] != "Sulpak & Co" {
		t.Fatalf("offer = %v", offers[0])
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestCSVWriterOffers(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewCSVWriter(dir)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.WriteOffers(sampleOffers()); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, OffersCSVFile))
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records=%d, want 3", len(records))
	}
	if records[0][0] != "product_id" || records[0][1] != "merchant_id" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[2][2] != "Мечта" || records[2][3] != "329990" {
		t.Fatalf("unexpected row: %v", records[2])
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestNewExporter(t *testing.T) {
	tests := []struct {
		format    string
		wantFiles []string
		wantErr   bool
	}{
		{format: "json", wantFiles: []string{OffersFile, ProductFile}},
		{format: "dual", wantFiles: []string{OffersCSVFile, OffersFile, ProductFile}},
		{format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "export")
			exporter, err := NewExporter(tt.format, dir)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("new exporter: %v", err)
			}

			if err := exporter.WriteProduct(&models.ProductRecord{ID: 1, Name: "x"}); err != nil {
				t.Fatalf("write product: %v", err)
			}
			if err := exporter.WriteOffers(sampleOffers()); err != nil {
				t.Fatalf("write offers: %v", err)
			}
			if err := exporter.Validate(); err != nil {
				t.Fatalf("validate: %v", err)
			}

			entries, err := os.ReadDir(dir)
			if err != nil {
				t.Fatalf("read dir: %v", err)
			}
			var names []string
			for _, e := range entries {
				names = append(names, e.Name())
			}
			if strings.Join(names, ",") != strings.Join(tt.wantFiles, ",") {
				t.Fatalf("files = %v, want %v", names, tt.wantFiles)
			}
		})
	}
}
