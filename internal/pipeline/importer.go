package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/museumfetch/internal/observability"
	"github.com/IshaanNene/museumfetch/internal/storage"
	"github.com/IshaanNene/museumfetch/internal/types"
)

// InterruptedMessage is recorded as the failure reason of a cancelled run.
const InterruptedMessage = "Application interrupted by user"

// Collector produces the records of one collection run.
type Collector interface {
	Collect(ctx context.Context, pageTitle string) ([]*types.MuseumRecord, error)
}

// Counters tallies persisted entities per kind.
type Counters struct {
	InsertedCountries  int
	UpdatedCountries   int
	InsertedCities     int
	UpdatedCities      int
	InsertedMuseums    int
	UpdatedMuseums     int
	InsertedAttributes int
	UpdatedAttributes  int
}

func tally(out storage.Outcome, inserted, updated *int) {
	switch out {
	case storage.OutcomeInserted:
		*inserted++
	case storage.OutcomeUpdated:
		*updated++
	}
}

// Inserted returns the total number of inserted entities.
func (c Counters) Inserted() int {
	return c.InsertedCountries + c.InsertedCities + c.InsertedMuseums + c.InsertedAttributes
}

// Updated returns the total number of updated entities.
func (c Counters) Updated() int {
	return c.UpdatedCountries + c.UpdatedCities + c.UpdatedMuseums + c.UpdatedAttributes
}

func (c Counters) addTo(result map[string]any) {
	result["inserted_countries"] = c.InsertedCountries
	result["updated_countries"] = c.UpdatedCountries
	result["inserted_cities"] = c.InsertedCities
	result["updated_cities"] = c.UpdatedCities
	result["inserted_museums"] = c.InsertedMuseums
	result["updated_museums"] = c.UpdatedMuseums
	result["inserted_attributes"] = c.InsertedAttributes
	result["updated_attributes"] = c.UpdatedAttributes
}

// Report is the outcome of an import run.
type Report struct {
	RunID    string
	Status   storage.ImportStatus
	Records  []*types.MuseumRecord
	Counters Counters
}

// Importer runs collection and persistence under an import log.
type Importer struct {
	store     storage.Store
	collector Collector
	pipeline  *Pipeline
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewImporter creates an Importer using the Default pipeline.
func NewImporter(store storage.Store, collector Collector, metrics *observability.Metrics, logger *slog.Logger) *Importer {
	if metrics == nil {
		metrics = observability.NewMetrics(logger)
	}
	return &Importer{
		store:     store,
		collector: collector,
		pipeline:  Default(logger),
		metrics:   metrics,
		logger:    logger.With("component", "importer"),
	}
}

// Run performs one import of pageTitle.
//
// The import log is opened before collection and always closed: with the
// counters on success, or with the failure reason otherwise. A cancelled ctx
// is recorded as InterruptedMessage and nothing is persisted.
func (i *Importer) Run(ctx context.Context, pageTitle string) (*Report, error) {
	// The import log outlives an interrupt so the failure can be recorded.
	logCtx := context.WithoutCancel(ctx)

	importLog, err := i.store.StartImport(logCtx, pageTitle)
	if err != nil {
		return nil, fmt.Errorf("start import log: %w", err)
	}
	report := &Report{RunID: importLog.RunID, Status: storage.ImportInProgress}

	records, err := i.collector.Collect(ctx, pageTitle)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		return report, i.fail(logCtx, importLog, report, err)
	}
	report.Records = records

	counters, err := i.persist(ctx, records)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		return report, i.fail(logCtx, importLog, report, err)
	}
	report.Counters = counters

	i.metrics.EntitiesInserted.Add(int64(counters.Inserted()))
	i.metrics.EntitiesUpdated.Add(int64(counters.Updated()))
	i.logger.Info("countries persisted", "inserted", counters.InsertedCountries, "updated", counters.UpdatedCountries)
	i.logger.Info("cities persisted", "inserted", counters.InsertedCities, "updated", counters.UpdatedCities)
	i.logger.Info("museums persisted", "inserted", counters.InsertedMuseums, "updated", counters.UpdatedMuseums)
	i.logger.Info("museum attributes persisted", "inserted", counters.InsertedAttributes, "updated", counters.UpdatedAttributes)

	importLog.Status = storage.ImportSuccess
	counters.addTo(importLog.Result)
	if err := i.store.FinishImport(logCtx, importLog); err != nil {
		return report, fmt.Errorf("finish import log: %w", err)
	}
	report.Status = storage.ImportSuccess
	return report, nil
}

func (i *Importer) fail(ctx context.Context, importLog *storage.ImportLog, report *Report, cause error) error {
	message := cause.Error()
	if errors.Is(cause, context.Canceled) {
		message = InterruptedMessage
		i.logger.Warn("import interrupted", "run_id", importLog.RunID)
	} else {
		i.logger.Error("import failed", "run_id", importLog.RunID, "error", cause)
	}

	importLog.Status = storage.ImportFailed
	importLog.Result["error_message"] = message
	report.Status = storage.ImportFailed

	if err := i.store.FinishImport(ctx, importLog); err != nil {
		return errors.Join(cause, fmt.Errorf("finish import log: %w", err))
	}
	return cause
}

// persist writes every record inside one transaction.
func (i *Importer) persist(ctx context.Context, records []*types.MuseumRecord) (Counters, error) {
	var counters Counters

	err := i.store.InTx(ctx, func(repo storage.Repository) error {
		counters = Counters{}
		for _, rec := range records {
			processed, err := i.pipeline.Process(rec)
			if err != nil {
				return err
			}
			if processed == nil {
				continue
			}
			if err := persistRecord(ctx, repo, processed, &counters); err != nil {
				return err
			}
		}
		return nil
	})
	return counters, err
}

func persistRecord(ctx context.Context, repo storage.Repository, rec *types.MuseumRecord, c *Counters) error {
	country := rec.EffectiveCountry()
	out, err := repo.UpsertCountry(ctx, country)
	if err != nil {
		return err
	}
	tally(out, &c.InsertedCountries, &c.UpdatedCountries)

	city := rec.EffectiveCity()
	out, err = repo.UpsertCity(ctx, storage.CityRow{
		Name:         city,
		Population:   rec.EffectivePopulation(),
		ReferenceURL: rec.CityReference(),
		CountryName:  country,
	})
	if err != nil {
		return err
	}
	tally(out, &c.InsertedCities, &c.UpdatedCities)

	out, err = repo.UpsertMuseum(ctx, storage.MuseumRow{
		Name:         rec.Name,
		Visitors:     rec.VisitorCount,
		ReferenceURL: rec.MuseumReference(),
		CityName:     city,
	})
	if err != nil {
		return err
	}
	tally(out, &c.InsertedMuseums, &c.UpdatedMuseums)

	for _, key := range rec.AttributeKeys() {
		out, err = repo.UpsertMuseumAttribute(ctx, rec.Name, key, rec.Attributes[key])
		if err != nil {
			return err
		}
		tally(out, &c.InsertedAttributes, &c.UpdatedAttributes)
	}
	return nil
}
