package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aluiziolira/kaspi-offer-tracker/models"
)

const (
	ProductFile   = "product.json"
	OffersFile    = "offers.json"
	OffersCSVFile = "offers.csv"
)

// Exporter writes the per-run artifacts. Each call replaces the previous
// artifact atomically.
type Exporter interface {
	WriteProduct(product *models.ProductRecord) error
	WriteOffers(offers []models.OfferRecord) error
	Validate() error
}

// JSONWriter writes product.json and offers.json, indented with four
// spaces and without escaping non-ASCII or HTML characters.
type JSONWriter struct {
	dir     string
	written map[string]struct{}
}

// NewJSONWriter creates dir when missing and returns a writer into it.
func NewJSONWriter(dir string) (*JSONWriter, error) {
	if err := ensureDir(filepath.Join(dir, ProductFile)); err != nil {
		return nil, err
	}
	return &JSONWriter{dir: dir, written: make(map[string]struct{})}, nil
}

// WriteProduct replaces product.json.
func (jw *JSONWriter) WriteProduct(product *models.ProductRecord) error {
	return jw.write(ProductFile, product)
}

// WriteOffers replaces offers.json.
func (jw *JSONWriter) WriteOffers(offers []models.OfferRecord) error {
	if offers == nil {
		offers = []models.OfferRecord{}
	}
	return jw.write(OffersFile, offers)
}

func (jw *JSONWriter) write(name string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	path := filepath.Join(jw.dir, name)
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return err
	}
	jw.written[path] = struct{}{}
	return nil
}

// Validate ensures every file written so far has content.
func (jw *JSONWriter) Validate() error {
	return validateFiles(jw.written)
}

// CSVWriter writes offers.csv with a header row.
type CSVWriter struct {
	dir     string
	written map[string]struct{}
}

// NewCSVWriter creates dir when missing and returns a writer into it.
func NewCSVWriter(dir string) (*CSVWriter, error) {
	if err := ensureDir(filepath.Join(dir, OffersCSVFile)); err != nil {
		return nil, err
	}
	return &CSVWriter{dir: dir, written: make(map[string]struct{})}, nil
}

// WriteProduct is a no-op; the product only has a JSON form.
func (cw *CSVWriter) WriteProduct(*models.ProductRecord) error {
	return nil
}

// WriteOffers replaces offers.csv.
func (cw *CSVWriter) WriteOffers(offers []models.OfferRecord) error {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{"product_id", "merchant_id", "merchant_name", "price"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, offer := range offers {
		record := []string{
			strconv.FormatInt(offer.ProductID, 10),
			offer.SellerID,
			offer.SellerName,
			strconv.FormatInt(offer.Price, 10),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}

	path := filepath.Join(cw.dir, OffersCSVFile)
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return err
	}
	cw.written[path] = struct{}{}
	return nil
}

// Validate ensures the CSV file has content.
func (cw *CSVWriter) Validate() error {
	return validateFiles(cw.written)
}

// NewExporter returns the exporter for format ("json" or "dual").
func NewExporter(format, dir string) (Exporter, error) {
	jsonWriter, err := NewJSONWriter(dir)
	if err != nil {
		return nil, err
	}
	switch format {
	case "", "json":
		return jsonWriter, nil
	case "dual":
		csvWriter, err := NewCSVWriter(dir)
		if err != nil {
			return nil, err
		}
		return NewDualWriter(jsonWriter, csvWriter), nil
	}
	return nil, fmt.Errorf("unknown export format %q", format)
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func validateFiles(paths map[string]struct{}) error {
	for path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if info.Size() <= 0 {
			return fmt.Errorf("%s is empty", path)
		}
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
