package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"customer-map/models"
)

var csvHeader = []string{
	"id", "name", "lng", "lat", "product", "brand", "discount_price",
	"distributor", "region", "district", "address", "record_date", "volume",
}

// CSVWriter writes canonical customer records to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteRecords appends the given records to the file.
func (c *CSVWriter) WriteRecords(records []*models.CustomerRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, rec := range records {
		if err := c.writer.Write(recordRow(rec)); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}

// CSVExporter streams the record set as CSV, for the export endpoint.
type CSVExporter struct{}

// Export writes header plus one row per record to w.
func (CSVExporter) Export(w io.Writer, records []*models.CustomerRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write(recordRow(rec)); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func recordRow(rec *models.CustomerRecord) []string {
	return []string{
		rec.ID,
		rec.Name,
		strconv.FormatFloat(rec.Longitude, 'f', -1, 64),
		strconv.FormatFloat(rec.Latitude, 'f', -1, 64),
		rec.ProductName,
		rec.Brand,
		rec.DiscountPrice,
		rec.Distributor,
		rec.Region,
		rec.District,
		rec.Address,
		rec.RecordDate,
		strconv.FormatFloat(rec.Volume, 'f', -1, 64),
	}
}
