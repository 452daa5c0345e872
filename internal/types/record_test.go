package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveCountryPrefersCityDetails(t *testing.T) {
	m := &MuseumRecord{
		Name:        "Louvre",
		CountryName: "Unknown",
		CityDetails: NewCityRecord("Paris", "France", nil),
	}
	assert.Equal(t, "France", m.EffectiveCountry())
}

func TestEffectiveCountryFallsBackOnSentinel(t *testing.T) {
	m := &MuseumRecord{
		Name:        "Louvre",
		CountryName: "France",
		CityDetails: NewCityRecord("Paris", NotAvailable, nil),
	}
	assert.Equal(t, "France", m.EffectiveCountry())

	m.CityDetails = nil
	assert.Equal(t, "France", m.EffectiveCountry())
}

func TestEffectiveCity(t *testing.T) {
	m := &MuseumRecord{Name: "MET", CityName: "New York"}
	assert.Equal(t, "New York", m.EffectiveCity())

	m.CityDetails = NewCityRecord(NotAvailable, "United States", nil)
	assert.Equal(t, "New York", m.EffectiveCity())

	m.CityDetails = NewCityRecord("New York City", "United States", nil)
	assert.Equal(t, "New York City", m.EffectiveCity())
}

func TestEffectivePopulation(t *testing.T) {
	m := &MuseumRecord{Name: "Louvre"}
	assert.Nil(t, m.EffectivePopulation())

	m.CityDetails = NewCityRecord("Paris", "France", Int64(2102650))
	require.NotNil(t, m.EffectivePopulation())
	assert.Equal(t, int64(2102650), *m.EffectivePopulation())
}

func TestNewCityRecordNormalizesZeroPopulation(t *testing.T) {
	c := NewCityRecord("Nowhere", NotAvailable, Int64(0))
	assert.Nil(t, c.Population)
}

func TestReferencesUsePageTitles(t *testing.T) {
	m := &MuseumRecord{
		Name:            "Louvre",
		MuseumPageTitle: "Louvre",
		CityPageTitle:   "Paris",
		CityDetails:     NewCityRecord("City of Paris", "France", nil),
	}
	assert.Equal(t, "Louvre", m.MuseumReference())
	assert.Equal(t, "Paris", m.CityReference())
}

func TestToFlatMap(t *testing.T) {
	m := &MuseumRecord{
		Name:            "Louvre",
		VisitorCount:    Int64(9600000),
		CityName:        "Paris",
		CountryName:     "France",
		MuseumPageTitle: "Louvre",
		CityPageTitle:   "Paris",
		Attributes:      map[string]string{"type": "Art museum", "established": "1793"},
	}
	flat := m.ToFlatMap()
	assert.Equal(t, "9600000", flat["visitor_count"])
	assert.Equal(t, "", flat["population"])
	assert.Equal(t, "established=1793; type=Art museum", flat["attributes"])
}

func TestErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("museum task: %w", &FetchError{URL: "https://x/page/html/Louvre", StatusCode: 401, Err: ErrTokenRejected})
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.IsAuthFailure())
	assert.ErrorIs(t, err, ErrTokenRejected)

	ee := &ExtractionError{Page: "list", Element: "table", Err: ErrNoColumn}
	assert.ErrorIs(t, ee, ErrNoColumn)
	assert.Contains(t, ee.Error(), `element="table"`)
}
