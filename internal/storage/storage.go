package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/museumfetch/internal/config"
	"github.com/IshaanNene/museumfetch/internal/types"
)

// ErrMissingParent is returned when an entity references a country, city or
// museum that has not been stored yet.
var ErrMissingParent = errors.New("referenced entity not stored")

// Outcome reports what an upsert did.
type Outcome int

const (
	OutcomeUnchanged Outcome = iota
	OutcomeInserted
	OutcomeUpdated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// CityRow is a city as persisted.
type CityRow struct {
	Name         string
	Population   *int64
	ReferenceURL string
	CountryName  string
}

// MuseumRow is a museum as persisted.
type MuseumRow struct {
	Name         string
	Visitors     *int64
	ReferenceURL string
	CityName     string
}

// Repository upserts entities by natural key.
//
// Countries are never modified once stored. An existing city gets its
// population and reference replaced, an existing museum its visitor count,
// an existing attribute its value; each of those reports OutcomeUpdated.
type Repository interface {
	UpsertCountry(ctx context.Context, name string) (Outcome, error)
	UpsertCity(ctx context.Context, row CityRow) (Outcome, error)
	UpsertMuseum(ctx context.Context, row MuseumRow) (Outcome, error)
	UpsertMuseumAttribute(ctx context.Context, museumName, key, value string) (Outcome, error)
}

// ImportStatus is the state of an import run.
type ImportStatus string

const (
	ImportInProgress ImportStatus = "in_progress"
	ImportSuccess    ImportStatus = "success"
	ImportFailed     ImportStatus = "failed"
)

// ImportLog records one import run.
type ImportLog struct {
	RunID       string         `json:"run_id"`
	TriggeredAt time.Time      `json:"triggered_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Status      ImportStatus   `json:"status"`
	Result      map[string]any `json:"result,omitempty"`
}

// Store is a persistence backend.
type Store interface {
	Repository

	// StartImport opens an in-progress import log for pageName.
	StartImport(ctx context.Context, pageName string) (*ImportLog, error)

	// FinishImport writes the final status, result and completion time.
	FinishImport(ctx context.Context, log *ImportLog) error

	// GetImport loads the import log of runID.
	GetImport(ctx context.Context, runID string) (*ImportLog, error)

	// InTx runs fn against a repository whose writes commit together.
	InTx(ctx context.Context, fn func(Repository) error) error

	// Name returns the storage backend identifier.
	Name() string

	// Close releases resources.
	Close() error
}

// Open creates the backend selected by cfg.Type.
func Open(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLStore(cfg.Path, logger)
	case "mongodb":
		return NewMongoStore(cfg.MongoURI, cfg.MongoDatabase, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// nullable maps types.NotAvailable and "" to nil.
func nullable(s string) *string {
	if !types.IsAvailable(s) {
		return nil
	}
	return &s
}
