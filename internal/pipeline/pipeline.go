package pipeline

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/IshaanNene/museumfetch/internal/types"
)

// Middleware processes a record before it is persisted.
// Return nil to drop the record.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a record. Return nil to drop it.
	Process(rec *types.MuseumRecord) (*types.MuseumRecord, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// Default returns the chain applied before persistence: trim, then reject
// records with empty names. Attribute values are already plain text and are
// stored as extracted.
func Default(logger *slog.Logger) *Pipeline {
	p := New(logger)
	p.Use(&TrimMiddleware{})
	p.Use(&RequiredNamesMiddleware{})
	return p
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the record through all middleware in order.
func (p *Pipeline) Process(rec *types.MuseumRecord) (*types.MuseumRecord, error) {
	current := rec

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, fmt.Errorf("pipeline stage %s: museum %q: %w", mw.Name(), rec.Name, err)
		}
		if result == nil {
			p.logger.Debug("record dropped", "stage", mw.Name(), "museum", rec.Name)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

// --- Built-in Middleware ---

// TrimMiddleware trims whitespace from names and attribute values.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(rec *types.MuseumRecord) (*types.MuseumRecord, error) {
	rec.Name = strings.TrimSpace(rec.Name)
	rec.CityName = strings.TrimSpace(rec.CityName)
	rec.CountryName = strings.TrimSpace(rec.CountryName)
	for k, v := range rec.Attributes {
		rec.Attributes[k] = strings.TrimSpace(v)
	}
	return rec, nil
}

// RequiredNamesMiddleware rejects a record whose museum name, effective city
// or effective country is empty. The whole import fails on such a record.
type RequiredNamesMiddleware struct{}

func (m *RequiredNamesMiddleware) Name() string { return "required_names" }

func (m *RequiredNamesMiddleware) Process(rec *types.MuseumRecord) (*types.MuseumRecord, error) {
	switch {
	case rec.Name == "":
		return nil, fmt.Errorf("museum: %w", types.ErrEmptyName)
	case rec.EffectiveCity() == "":
		return nil, fmt.Errorf("city: %w", types.ErrEmptyName)
	case rec.EffectiveCountry() == "":
		return nil, fmt.Errorf("country: %w", types.ErrEmptyName)
	}
	return rec, nil
}
