package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/museumfetch/internal/types"
)

// footnoteSelector matches the citation markers Wikipedia appends to values.
const footnoteSelector = "sup.reference"

// newDocument parses page markup and strips footnote markers.
func newDocument(page, html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &types.ExtractionError{Page: page, Err: err}
	}
	doc.Find(footnoteSelector).Remove()
	return doc, nil
}

// cleanText collapses runs of whitespace and trims the result.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// orSentinel maps empty text to types.NotAvailable.
func orSentinel(s string) string {
	if s == "" {
		return types.NotAvailable
	}
	return s
}
