package parser

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const infoboxSelector = "table.infobox"

// MuseumExtractor reads the infobox of a museum page as open key/value pairs.
type MuseumExtractor struct {
	logger *slog.Logger
}

// NewMuseumExtractor creates a new museum page extractor.
func NewMuseumExtractor(logger *slog.Logger) *MuseumExtractor {
	return &MuseumExtractor{
		logger: logger.With("component", "museum_extractor"),
	}
}

// Extract returns the infobox rows keyed by AttributeKey of their header.
// Rows without both a header and a data cell are skipped. A page without
// an infobox yields an empty map.
func (e *MuseumExtractor) Extract(page, html string) (map[string]string, error) {
	doc, err := newDocument(page, html)
	if err != nil {
		return nil, err
	}

	attrs := make(map[string]string)

	infobox := doc.Find(infoboxSelector).First()
	if infobox.Length() == 0 {
		e.logger.Warn("no infobox found", "page", page)
		return attrs, nil
	}

	infobox.Find("tr").Each(func(_ int, row *goquery.Selection) {
		header := row.Find("th").First()
		value := row.Find("td").First()
		if header.Length() == 0 || value.Length() == 0 {
			return
		}
		key := AttributeKey(header.Text())
		if key == "" {
			return
		}
		attrs[key] = cleanText(value.Text())
	})

	return attrs, nil
}

// AttributeKey normalizes infobox header text: lowercased, with spaces
// replaced by underscores ("Visitors (2023)" -> "visitors_(2023)").
func AttributeKey(header string) string {
	return strings.ReplaceAll(strings.ToLower(cleanText(header)), " ", "_")
}
