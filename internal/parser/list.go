package parser

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/museumfetch/internal/types"
)

// Column headers of the museum list table, matched by substring.
const (
	ColumnName     = "Name"
	ColumnCity     = "City"
	ColumnCountry  = "Country"
	ColumnVisitors = "Visitors"
)

const (
	listTableSelector = "table.wikitable.sortable"
	listRowCells      = 4
)

// ListExtractor turns the museum list page into raw museum records.
type ListExtractor struct {
	logger *slog.Logger
}

// NewListExtractor creates a new list page extractor.
func NewListExtractor(logger *slog.Logger) *ListExtractor {
	return &ListExtractor{
		logger: logger.With("component", "list_extractor"),
	}
}

type listColumns struct {
	name, city, country, visitors int
}

// Extract returns one record per distinct museum name. When a name repeats,
// the last row wins. A page without the sortable table yields an empty map.
func (e *ListExtractor) Extract(page, html string) (map[string]*types.MuseumRecord, error) {
	doc, err := newDocument(page, html)
	if err != nil {
		return nil, err
	}

	museums := make(map[string]*types.MuseumRecord)

	table := doc.Find(listTableSelector).First()
	if table.Length() == 0 {
		e.logger.Warn("no museum table found", "page", page)
		return museums, nil
	}

	rows := table.Find("tr")
	cols, err := resolveColumns(page, rows.First())
	if err != nil {
		return nil, err
	}

	rows.Slice(1, goquery.ToEnd).Each(func(i int, row *goquery.Selection) {
		record, err := e.extractRow(row, cols)
		if err != nil {
			e.logger.Debug("skipping row", "row", i+1, "reason", err)
			return
		}
		museums[record.Name] = record
	})

	e.logger.Debug("museum list extracted", "page", page, "museums", len(museums))
	return museums, nil
}

// resolveColumns locates each required column in the header row.
func resolveColumns(page string, header *goquery.Selection) (listColumns, error) {
	cells := header.Children().Filter("th, td")
	index := func(name string) (int, error) {
		found := -1
		cells.EachWithBreak(func(i int, cell *goquery.Selection) bool {
			if strings.Contains(cleanText(cell.Text()), name) {
				found = i
				return false
			}
			return true
		})
		if found < 0 {
			return -1, &types.ExtractionError{Page: page, Element: "column " + name, Err: types.ErrNoColumn}
		}
		return found, nil
	}

	var cols listColumns
	var err error
	if cols.name, err = index(ColumnName); err != nil {
		return cols, err
	}
	if cols.city, err = index(ColumnCity); err != nil {
		return cols, err
	}
	if cols.country, err = index(ColumnCountry); err != nil {
		return cols, err
	}
	if cols.visitors, err = index(ColumnVisitors); err != nil {
		return cols, err
	}
	return cols, nil
}

// extractRow reads one data row. Malformed markup is reported as an error
// rather than aborting the whole table.
func (e *ListExtractor) extractRow(row *goquery.Selection, cols listColumns) (record *types.MuseumRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			record, err = nil, fmt.Errorf("malformed row: %v", r)
		}
	}()

	cells := row.ChildrenFiltered("td")
	if cells.Length() != listRowCells {
		return nil, fmt.Errorf("unexpected cell count %d", cells.Length())
	}

	name, museumTitle := linkedCell(cells.Eq(cols.name))
	if name == types.NotAvailable {
		return nil, fmt.Errorf("missing museum name")
	}
	city, cityTitle := linkedCell(cells.Eq(cols.city))
	if city == types.NotAvailable {
		return nil, fmt.Errorf("missing city for %q", name)
	}
	country, _ := linkedCell(cells.Eq(cols.country))
	visitors := cleanText(cells.Eq(cols.visitors).Text())

	count := parseOptional(visitors)
	if count == nil {
		e.logger.Debug("visitor count not parsed", "museum", name, "text", visitors)
	}

	return &types.MuseumRecord{
		Name:            name,
		VisitorCount:    count,
		CityName:        city,
		CountryName:     country,
		MuseumPageTitle: museumTitle,
		CityPageTitle:   cityTitle,
	}, nil
}

// linkedCell returns a cell's text and the page title of its first link.
func linkedCell(cell *goquery.Selection) (text, title string) {
	text = orSentinel(cleanText(cell.Text()))
	title = types.NotAvailable
	if href, ok := cell.Find("a[href]").First().Attr("href"); ok {
		title = orSentinel(PageTitleFromHref(href))
	}
	return text, title
}

// PageTitleFromHref returns the last path segment of a wiki link, decoded.
//
//	"./Louvre"           -> "Louvre"
//	"/wiki/Paris"        -> "Paris"
//	"./Mus%C3%A9e_Rodin" -> "Musée_Rodin"
func PageTitleFromHref(href string) string {
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	title := href[strings.LastIndex(href, "/")+1:]
	if decoded, err := url.PathUnescape(title); err == nil {
		title = decoded
	}
	return title
}
