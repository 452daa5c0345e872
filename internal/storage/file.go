package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/IshaanNene/museumfetch/internal/types"
)

// Export formats.
const (
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
)

// csvHeaders is the column order of CSV exports.
var csvHeaders = []string{
	"name",
	"visitor_count",
	"city",
	"country",
	"population",
	"museum_page_title",
	"city_page_title",
	"attributes",
}

// ExportRecord is the resolved view of a museum written by Export.
type ExportRecord struct {
	Name            string            `json:"name"`
	VisitorCount    *int64            `json:"visitor_count"`
	City            string            `json:"city"`
	Country         string            `json:"country"`
	Population      *int64            `json:"population"`
	MuseumPageTitle string            `json:"museum_page_title"`
	CityPageTitle   string            `json:"city_page_title"`
	Attributes      map[string]string `json:"attributes,omitempty"`
}

// NewExportRecord resolves m through its effective accessors.
func NewExportRecord(m *types.MuseumRecord) ExportRecord {
	return ExportRecord{
		Name:            m.Name,
		VisitorCount:    m.VisitorCount,
		City:            m.EffectiveCity(),
		Country:         m.EffectiveCountry(),
		Population:      m.EffectivePopulation(),
		MuseumPageTitle: m.MuseumReference(),
		CityPageTitle:   m.CityReference(),
		Attributes:      m.Attributes,
	}
}

// Export writes records to w in format.
func Export(w io.Writer, records []*types.MuseumRecord, format string) error {
	switch format {
	case FormatJSON:
		output := make([]ExportRecord, len(records))
		for i, m := range records {
			output[i] = NewExportRecord(m)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(output); err != nil {
			return fmt.Errorf("encode JSON: %w", err)
		}
		return nil

	case FormatJSONL:
		enc := json.NewEncoder(w)
		for _, m := range records {
			if err := enc.Encode(NewExportRecord(m)); err != nil {
				return fmt.Errorf("encode JSONL: %w", err)
			}
		}
		return nil

	case FormatCSV:
		writer := csv.NewWriter(w)
		if err := writer.Write(csvHeaders); err != nil {
			return fmt.Errorf("write CSV header: %w", err)
		}
		for _, m := range records {
			flat := m.ToFlatMap()
			row := make([]string, len(csvHeaders))
			for i, h := range csvHeaders {
				row[i] = flat[h]
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("write CSV row: %w", err)
			}
		}
		writer.Flush()
		return writer.Error()

	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

// ExportFile writes records to outputPath, creating parent directories.
func ExportFile(outputPath string, records []*types.MuseumRecord, format string) (err error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	return Export(f, records, format)
}
