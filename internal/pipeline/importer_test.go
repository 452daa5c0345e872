package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/museumfetch/internal/observability"
	"github.com/IshaanNene/museumfetch/internal/storage"
	"github.com/IshaanNene/museumfetch/internal/types"
)

const pageTitle = "List_of_most_visited_museums"

type fakeCollector struct {
	records []*types.MuseumRecord
	err     error
	before  func()
}

func (f *fakeCollector) Collect(ctx context.Context, _ string) ([]*types.MuseumRecord, error) {
	if f.before != nil {
		f.before()
	}
	return f.records, f.err
}

func newStore(t *testing.T) *storage.SQLStore {
	t.Helper()
	store, err := storage.NewSQLStore(filepath.Join(t.TempDir(), "museums.db"), testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func collectedRecords() []*types.MuseumRecord {
	return []*types.MuseumRecord{
		{
			Name:            "Louvre",
			VisitorCount:    types.Int64(9600000),
			CityName:        "Paris",
			CountryName:     "France",
			MuseumPageTitle: "Louvre",
			CityPageTitle:   "Paris",
			CityDetails:     types.NewCityRecord("Paris", "France", types.Int64(2102650)),
			Attributes:      map[string]string{"established": "1793", "director": "Laurence des Cars"},
		},
		{
			Name:            "Musée d'Orsay",
			CityName:        "Paris",
			CountryName:     "France",
			MuseumPageTitle: "Musée_d'Orsay",
			CityPageTitle:   types.NotAvailable,
		},
		{
			Name:            "MET",
			VisitorCount:    types.Int64(7000000),
			CityName:        "New York",
			CountryName:     "USA",
			MuseumPageTitle: "Metropolitan_Museum_of_Art",
			CityPageTitle:   "New_York_City",
		},
	}
}

func TestImporterSuccess(t *testing.T) {
	store := newStore(t)
	metrics := observability.NewMetrics(testLogger)
	imp := NewImporter(store, &fakeCollector{records: collectedRecords()}, metrics, testLogger)

	report, err := imp.Run(context.Background(), pageTitle)
	require.NoError(t, err)
	assert.Equal(t, storage.ImportSuccess, report.Status)

	want := Counters{
		InsertedCountries:  2,
		InsertedCities:     2,
		UpdatedCities:      1, // Paris again for Orsay
		InsertedMuseums:    3,
		InsertedAttributes: 2,
	}
	assert.Equal(t, want, report.Counters)
	assert.Equal(t, int64(9), metrics.EntitiesInserted.Load())
	assert.Equal(t, int64(1), metrics.EntitiesUpdated.Load())

	log, err := store.GetImport(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.ImportSuccess, log.Status)
	assert.NotNil(t, log.CompletedAt)
	assert.Equal(t, pageTitle, log.Result["page_name"])
	assert.Equal(t, float64(3), log.Result["inserted_museums"])
	assert.Equal(t, float64(2), log.Result["inserted_attributes"])
	assert.NotContains(t, log.Result, "error_message")

	var paris storage.City
	require.NoError(t, store.DB().Where("name = ?", "Paris").Take(&paris).Error)
	// The later Orsay row has no city details, so its upsert clears the population.
	assert.Nil(t, paris.Population)
}

func TestImporterRerunUpdates(t *testing.T) {
	store := newStore(t)
	records := collectedRecords()[:1]

	imp := NewImporter(store, &fakeCollector{records: records}, nil, testLogger)
	_, err := imp.Run(context.Background(), pageTitle)
	require.NoError(t, err)

	imp = NewImporter(store, &fakeCollector{records: records}, nil, testLogger)
	report, err := imp.Run(context.Background(), pageTitle)
	require.NoError(t, err)

	want := Counters{
		UpdatedCities:     1,
		UpdatedMuseums:    1,
		UpdatedAttributes: 2,
	}
	assert.Equal(t, want, report.Counters)

	var paris storage.City
	require.NoError(t, store.DB().Where("name = ?", "Paris").Take(&paris).Error)
	require.NotNil(t, paris.Population)
	assert.Equal(t, int64(2102650), *paris.Population)
}

func TestImporterCollectFailure(t *testing.T) {
	store := newStore(t)
	cause := &types.FetchError{URL: pageTitle, StatusCode: 503, Err: errors.New("unavailable")}
	imp := NewImporter(store, &fakeCollector{err: cause}, nil, testLogger)

	report, err := imp.Run(context.Background(), pageTitle)
	require.Error(t, err)
	assert.ErrorAs(t, err, new(*types.FetchError))
	assert.Equal(t, storage.ImportFailed, report.Status)

	log, err := store.GetImport(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.ImportFailed, log.Status)
	assert.Equal(t, cause.Error(), log.Result["error_message"])
	assert.NotContains(t, log.Result, "inserted_museums")
}

func TestImporterInterrupted(t *testing.T) {
	store := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	imp := NewImporter(store, &fakeCollector{records: collectedRecords(), before: cancel}, nil, testLogger)

	report, err := imp.Run(ctx, pageTitle)
	assert.ErrorIs(t, err, context.Canceled)

	log, err := store.GetImport(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.ImportFailed, log.Status)
	assert.Equal(t, InterruptedMessage, log.Result["error_message"])

	var count int64
	require.NoError(t, store.DB().Model(&storage.Museum{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestImporterEmptyNameRollsBack(t *testing.T) {
	store := newStore(t)
	records := collectedRecords()
	records = append(records, &types.MuseumRecord{Name: "Nameless City", CityName: "", CountryName: "Nowhere"})

	imp := NewImporter(store, &fakeCollector{records: records}, nil, testLogger)
	report, err := imp.Run(context.Background(), pageTitle)
	require.ErrorIs(t, err, types.ErrEmptyName)
	assert.Equal(t, storage.ImportFailed, report.Status)

	var count int64
	require.NoError(t, store.DB().Model(&storage.Country{}).Count(&count).Error)
	assert.Zero(t, count, "transaction must roll back")
}

func TestImporterStoresAttributeTextVerbatim(t *testing.T) {
	store := newStore(t)
	records := collectedRecords()[:1]
	records[0].Attributes = map[string]string{
		"collection": "AT&amp;T collection",
		"size":       "size < 5 > 3",
		"type":       "Art & history <museum>",
	}

	imp := NewImporter(store, &fakeCollector{records: records}, nil, testLogger)
	_, err := imp.Run(context.Background(), pageTitle)
	require.NoError(t, err)

	var attrs []storage.MuseumAttribute
	require.NoError(t, store.DB().Order("attribute_key").Find(&attrs).Error)
	got := make(map[string]string, len(attrs))
	for _, a := range attrs {
		got[a.AttributeKey] = a.AttributeValue
	}
	assert.Equal(t, records[0].Attributes, got)
}
