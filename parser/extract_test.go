package parser

import (
	"errors"
	"strings"
	"testing"
)

const itemMarker = "BACKEND.components.item = "

const itemJSON = `{"card":{"id":"113137790","title":"Apple iPhone 15 128Gb черный","categoryId":"Smartphones","promo":"{not a brace}\nline"},` +
	`"specifications":[` +
	`{"name":"Основные","features":[{"name":"Цвет","featureValues":[{"value":"черный"}]},{"name":"SIM","featureValues":[{"value":"nano-SIM"},{"value":"eSIM"}]}]},` +
	`{"name":"Память","features":[{"name":"Объем","featureValues":[{"value":128}]},{"name":"Слот","featureValues":[]}]}` +
	`],"galleryImages":[{"small":"https://resources.kaspi.kz/img/s1.jpg","large":"https://resources.kaspi.kz/img/l1.jpg"},"p2.jpg"]}`

func productPage(item string) string {
	return `<!DOCTYPE html><html><head><title>Apple iPhone 15</title></head><body>
<div id="app"></div>
<script>
  window.digitalData = {"product": {"category": "Smartphones", "id": "113137790"}};
</script>
<script>
  BACKEND.components.item = ` + item + `;
  BACKEND.components.other = {};
</script>
</body></html>`
}

func TestExtractWellFormedPage(t *testing.T) {
	e := NewExtractor(itemMarker, "category")
	product, err := e.Extract("https://kaspi.kz/shop/p/x-113137790/", []byte(productPage(itemJSON)))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if product.ID != 113137790 {
		t.Fatalf("id = %d, want 113137790", product.ID)
	}
	if product.Name != "Apple iPhone 15 128Gb черный" {
		t.Fatalf("name = %q", product.Name)
	}
	if product.Category != "Smartphones" {
		t.Fatalf("category = %q", product.Category)
	}
	if product.CategoryID != "Smartphones" {
		t.Fatalf("category id = %q", product.CategoryID)
	}

	if got := product.Specifications["Основные"]["SIM"]; got != "nano-SIM, eSIM" {
		t.Fatalf("SIM = %q, want %q", got, "nano-SIM, eSIM")
	}
	if got := product.Specifications["Память"]["Объем"]; got != "128" {
		t.Fatalf("numeric value = %q, want 128", got)
	}
	if got, ok := product.Specifications["Память"]["Слот"]; !ok || got != "" {
		t.Fatalf("empty feature = %q (present=%v), want empty string", got, ok)
	}

	if len(product.Images) != 2 {
		t.Fatalf("images = %d, want 2", len(product.Images))
	}
	if !strings.Contains(string(product.Images[0]), "l1.jpg") || string(product.Images[1]) != `"p2.jpg"` {
		t.Fatalf("images not preserved in order: %s / %s", product.Images[0], product.Images[1])
	}
}

func TestExtractNumericID(t *testing.T) {
	item := `{"card":{"id":42,"title":"Kettle"},"specifications":[],"galleryImages":[]}`
	product, err := NewExtractor(itemMarker, "category").Extract("u", []byte(productPage(item)))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if product.ID != 42 || product.Name != "Kettle" {
		t.Fatalf("product = %+v", product)
	}
	if len(product.Specifications) != 0 || len(product.Images) != 0 {
		t.Fatalf("expected empty specs and images")
	}
}

func TestExtractFailures(t *testing.T) {
	tests := []struct {
		name   string
		html   string
		reason string
	}{
		{
			name:   "bot challenge page",
			html:   `<html><body><script>challenge()</script></body></html>`,
			reason: "item document not found",
		},
		{
			name:   "missing title",
			html:   productPage(`{"card":{"id":"1"},"specifications":[],"galleryImages":[]}`),
			reason: "missing card.title",
		},
		{
			name:   "missing id",
			html:   productPage(`{"card":{"title":"x"},"specifications":[],"galleryImages":[]}`),
			reason: "missing card.id",
		},
		{
			name:   "non numeric id",
			html:   productPage(`{"card":{"id":"abc","title":"x"},"specifications":[],"galleryImages":[]}`),
			reason: "card.id is not numeric",
		},
		{
			name:   "missing specifications",
			html:   productPage(`{"card":{"id":"1","title":"x"},"galleryImages":[]}`),
			reason: "missing specifications",
		},
		{
			name:   "missing images",
			html:   productPage(`{"card":{"id":"1","title":"x"},"specifications":[]}`),
			reason: "missing galleryImages",
		},
		{
			name:   "truncated document",
			html:   `<script>BACKEND.components.item = {"card":{"id":"1"</script>`,
			reason: "item document not found",
		},
		{
			name:   "category absent",
			html:   `<script>BACKEND.components.item = {"card":{"id":"1","title":"x"},"specifications":[],"galleryImages":[]};</script>`,
			reason: "category not found",
		},
	}

	e := NewExtractor(itemMarker, "category")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Extract("https://kaspi.kz/shop/p/x/", []byte(tt.html))
			var pe ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if pe.Reason != tt.reason {
				t.Fatalf("reason = %q, want %q", pe.Reason, tt.reason)
			}
			if pe.URL != "https://kaspi.kz/shop/p/x/" {
				t.Fatalf("url = %q", pe.URL)
			}
		})
	}
}

func TestLocateDocumentOutsideScript(t *testing.T) {
	text := "var x = 1;\nBACKEND.components.item = {\"a\":{\"b\":\"}\"}}\nnext line"
	doc, err := NewExtractor(itemMarker, "category").LocateDocument([]byte(text))
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if doc != `{"a":{"b":"}"}}` {
		t.Fatalf("doc = %q", doc)
	}
}

func TestScanObject(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "simple", input: `{"a":1} trailing`, want: `{"a":1}`},
		{name: "leading space", input: "  \n{\"a\":[1,{\"b\":2}]};", want: `{"a":[1,{"b":2}]}`},
		{name: "escaped quote", input: `{"a":"say \"}\""}x`, want: `{"a":"say \"}\""}`},
		{name: "escaped newline", input: `{"a":"l1\nl2"}` + "\nrest", want: `{"a":"l1\nl2"}`},
		{name: "not an object", input: `[1,2]`, wantErr: true},
		{name: "unbalanced", input: `{"a":{"b":1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := scanObject(tt.input, 0)
			if (err != nil) != tt.wantErr {
				t.Fatalf("scanObject error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("scanObject = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCategoryUnescapes(t *testing.T) {
	e := NewExtractor(itemMarker, "category")
	got, err := e.Category([]byte(`{"category": "Phones & Gadgets \"new\""}`))
	if err != nil {
		t.Fatalf("category: %v", err)
	}
	if got != `Phones & Gadgets "new"` {
		t.Fatalf("category = %q", got)
	}
}
