package storage

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"customer-map/models"
)

const exportSheet = "Customers"

// ExcelExporter streams the record set as an .xlsx workbook.
type ExcelExporter struct{}

// Export writes the workbook to w using the stream writer, which keeps
// memory flat even if the upstream table grows.
func (ExcelExporter) Export(w io.Writer, records []*models.CustomerRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return fmt.Errorf("excel: new sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return fmt.Errorf("excel: stream writer: %w", err)
	}

	header := make([]interface{}, len(csvHeader))
	for i, h := range csvHeader {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("excel: write header: %w", err)
	}

	for i, rec := range records {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{
			rec.ID, rec.Name, rec.Longitude, rec.Latitude,
			rec.ProductName, rec.Brand, rec.DiscountPrice, rec.Distributor,
			rec.Region, rec.District, rec.Address, rec.RecordDate, rec.Volume,
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("excel: write row %d: %w", i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("excel: flush: %w", err)
	}

	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	if err := f.Write(w); err != nil {
		return fmt.Errorf("excel: write workbook: %w", err)
	}
	return nil
}
