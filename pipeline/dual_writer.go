package pipeline

import (
	"errors"
	"fmt"

	"github.com/aluiziolira/kaspi-offer-tracker/models"
)

// DualWriter exports offers as both JSON and CSV.
type DualWriter struct {
	jsonWriter *JSONWriter
	csvWriter  *CSVWriter
}

// NewDualWriter combines a JSON and a CSV writer.
func NewDualWriter(jsonWriter *JSONWriter, csvWriter *CSVWriter) *DualWriter {
	return &DualWriter{
		jsonWriter: jsonWriter,
		csvWriter:  csvWriter,
	}
}

// WriteProduct writes product.json.
func (dw *DualWriter) WriteProduct(product *models.ProductRecord) error {
	return dw.jsonWriter.WriteProduct(product)
}

// WriteOffers writes offers to both formats
func (dw *DualWriter) WriteOffers(offers []models.OfferRecord) error {
	if err := dw.jsonWriter.WriteOffers(offers); err != nil {
		return fmt.Errorf("JSON write failed: %w", err)
	}
	if err := dw.csvWriter.WriteOffers(offers); err != nil {
		return fmt.Errorf("CSV write failed: %w", err)
	}
	return nil
}

// Validate validates both output files
func (dw *DualWriter) Validate() error {
	var errs []error
	if err := dw.jsonWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("JSON validation failed: %w", err))
	}
	if err := dw.csvWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("CSV validation failed: %w", err))
	}
	return errors.Join(errs...)
}
