package types

import (
	"sort"
	"strconv"
	"strings"
)

// NotAvailable is the placeholder used throughout extraction to mean
// "field absent". It is distinct from the empty string.
const NotAvailable = "NA"

// IsAvailable reports whether s carries a real value.
func IsAvailable(s string) bool {
	return s != "" && s != NotAvailable
}

// CityRecord holds the details read from a city's own page.
type CityRecord struct {
	Name        string `json:"name"`
	CountryName string `json:"country"`

	// Population is nil when unknown. A parsed zero is stored as nil.
	Population *int64 `json:"population,omitempty"`
}

// NewCityRecord builds a CityRecord, normalizing a zero population to unknown.
func NewCityRecord(name, country string, population *int64) *CityRecord {
	if population != nil && *population == 0 {
		population = nil
	}
	return &CityRecord{Name: name, CountryName: country, Population: population}
}

// MuseumRecord is one row of the museum list, enriched in place by the
// detail phases of a collection run.
type MuseumRecord struct {
	// Name is unique within a run and never NotAvailable.
	Name string `json:"name"`

	// VisitorCount is nil when the list text could not be parsed.
	VisitorCount *int64 `json:"visitor_count,omitempty"`

	// CityName and CountryName are the list-page literals.
	CityName    string `json:"city"`
	CountryName string `json:"country"`

	// MuseumPageTitle and CityPageTitle are link targets, NotAvailable
	// when the list cell had no link.
	MuseumPageTitle string `json:"museum_page_title"`
	CityPageTitle   string `json:"city_page_title"`

	// CityDetails stays nil until the city phase succeeds for this record.
	CityDetails *CityRecord `json:"city_details,omitempty"`

	// Attributes stays nil until the museum phase succeeds for this record.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// EffectiveCountry prefers the city page's country over the list value.
func (m *MuseumRecord) EffectiveCountry() string {
	if m.CityDetails != nil && IsAvailable(m.CityDetails.CountryName) {
		return m.CityDetails.CountryName
	}
	return m.CountryName
}

// EffectiveCity prefers the city page's name over the list value.
func (m *MuseumRecord) EffectiveCity() string {
	if m.CityDetails != nil && IsAvailable(m.CityDetails.Name) {
		return m.CityDetails.Name
	}
	return m.CityName
}

// EffectivePopulation is the city page population, or nil without city details.
func (m *MuseumRecord) EffectivePopulation() *int64 {
	if m.CityDetails != nil {
		return m.CityDetails.Population
	}
	return nil
}

// MuseumReference is the reference slug stored with the museum.
func (m *MuseumRecord) MuseumReference() string {
	return m.MuseumPageTitle
}

// CityReference is the reference slug stored with the city.
func (m *MuseumRecord) CityReference() string {
	return m.CityPageTitle
}

// AttributeKeys returns the attribute keys in sorted order.
func (m *MuseumRecord) AttributeKeys() []string {
	keys := make([]string, 0, len(m.Attributes))
	for k := range m.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ToFlatMap returns the resolved view of the record, suitable for CSV export.
func (m *MuseumRecord) ToFlatMap() map[string]string {
	flat := map[string]string{
		"name":              m.Name,
		"visitor_count":     formatOptional(m.VisitorCount),
		"city":              m.EffectiveCity(),
		"country":           m.EffectiveCountry(),
		"population":        formatOptional(m.EffectivePopulation()),
		"museum_page_title": m.MuseumReference(),
		"city_page_title":   m.CityReference(),
	}
	pairs := make([]string, 0, len(m.Attributes))
	for _, k := range m.AttributeKeys() {
		pairs = append(pairs, k+"="+m.Attributes[k])
	}
	flat["attributes"] = strings.Join(pairs, "; ")
	return flat
}

func formatOptional(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }
