package parser

import (
	"log/slog"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/museumfetch/internal/types"
)

// XPath expressions for the city infobox. Class tests use the usual
// whitespace-padded contains() so multi-class attributes match.
const (
	xpathInfobox    = `//table[contains(concat(' ', normalize-space(@class), ' '), ' infobox ')]`
	xpathFootnotes  = `//sup[contains(concat(' ', normalize-space(@class), ' '), ' reference ')]`
	xpathCityName   = `//div[contains(concat(' ', normalize-space(@class), ' '), ' fn ') and contains(concat(' ', normalize-space(@class), ' '), ' org ')]`
	xpathCountryTH  = `.//th[contains(., 'Country')]`
	xpathSiblingTD  = `following-sibling::td[1]`
	xpathPopulation = `.//tr[th[1][contains(., 'Population')]]`
	xpathRowTD      = `.//td`
	xpathNextTD     = `following::td`
)

// CityExtractor reads the name, country and population of a city page.
type CityExtractor struct {
	logger *slog.Logger
}

// NewCityExtractor creates a new city page extractor.
func NewCityExtractor(logger *slog.Logger) *CityExtractor {
	return &CityExtractor{
		logger: logger.With("component", "city_extractor"),
	}
}

// Extract returns the city details of page. Unlike the other extractors a
// missing infobox is an error, so the caller leaves the city unresolved.
func (e *CityExtractor) Extract(page, markup string) (*types.CityRecord, error) {
	doc, err := htmlquery.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, &types.ExtractionError{Page: page, Err: err}
	}
	for _, sup := range htmlquery.Find(doc, xpathFootnotes) {
		if sup.Parent != nil {
			sup.Parent.RemoveChild(sup)
		}
	}

	infobox := htmlquery.FindOne(doc, xpathInfobox)
	if infobox == nil {
		return nil, &types.ExtractionError{Page: page, Element: infoboxSelector, Err: types.ErrNoInfobox}
	}

	name := cityName(doc)
	country := infoboxCountry(infobox)
	population := parseOptional(infoboxPopulation(infobox))
	if population == nil || *population == 0 {
		e.logger.Debug("population missing or zero", "page", page, "city", name)
	}

	return types.NewCityRecord(name, country, population), nil
}

func cityName(doc *html.Node) string {
	n := htmlquery.FindOne(doc, xpathCityName)
	if n == nil {
		return types.NotAvailable
	}
	return orSentinel(cleanText(htmlquery.InnerText(n)))
}

// infoboxCountry is the cell next to the first header mentioning Country.
func infoboxCountry(infobox *html.Node) string {
	th := htmlquery.FindOne(infobox, xpathCountryTH)
	if th == nil {
		return types.NotAvailable
	}
	td := htmlquery.FindOne(th, xpathSiblingTD)
	if td == nil {
		return types.NotAvailable
	}
	return orSentinel(cleanText(htmlquery.InnerText(td)))
}

// infoboxPopulation finds the first row headed "Population" and returns the
// text of the next data cell in document order. Infoboxes usually put the
// figure on the row after the heading ("• City", "• Metro").
func infoboxPopulation(infobox *html.Node) string {
	row := htmlquery.FindOne(infobox, xpathPopulation)
	if row == nil {
		return ""
	}
	td := htmlquery.FindOne(row, xpathRowTD)
	if td == nil {
		td = htmlquery.FindOne(row, xpathNextTD)
	}
	if td == nil {
		return ""
	}
	return cleanText(htmlquery.InnerText(td))
}
