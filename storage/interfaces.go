package storage

import (
	"io"

	"customer-map/models"
)

// RecordWriter is the interface any export backend must satisfy.
type RecordWriter interface {
	WriteRecords(records []*models.CustomerRecord) error
	Close() error
}

// StreamExporter renders the record set to a writer in one shot, used by
// the HTTP export endpoint.
type StreamExporter interface {
	Export(w io.Writer, records []*models.CustomerRecord) error
}
