package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/museumfetch/internal/types"
)

const mongoBackend = "mongodb"

// Collection names. Documents are keyed by natural key in _id.
const (
	collCountries        = "countries"
	collCities           = "cities"
	collMuseums          = "museums"
	collMuseumAttributes = "museum_attributes"
	collImportLogs       = "import_logs"
)

// MongoStore persists entities in MongoDB.
//
// InTx runs the function directly: upserts are idempotent per document and
// standalone servers do not support multi-document transactions.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// NewMongoStore connects to uri and verifies the connection.
func NewMongoStore(uri, database string, logger *slog.Logger) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, mongoError("database", "connect", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, mongoError("database", "ping", err)
	}

	return &MongoStore{
		client: client,
		db:     client.Database(database),
		logger: logger.With("component", "mongo_store"),
	}, nil
}

func (s *MongoStore) Name() string { return mongoBackend }

// InTx implements Store.
func (s *MongoStore) InTx(_ context.Context, fn func(Repository) error) error {
	return fn(s)
}

func (s *MongoStore) UpsertCountry(ctx context.Context, name string) (Outcome, error) {
	res, err := s.upsert(ctx, collCountries, name, countryUpdate(name, time.Now().UTC()))
	if err != nil {
		return OutcomeUnchanged, mongoError("country "+name, "upsert", err)
	}
	if res.UpsertedCount > 0 {
		return OutcomeInserted, nil
	}
	return OutcomeUnchanged, nil
}

func (s *MongoStore) UpsertCity(ctx context.Context, row CityRow) (Outcome, error) {
	if err := s.requireParent(ctx, collCountries, row.CountryName); err != nil {
		return OutcomeUnchanged, mongoError("city "+row.Name, "upsert", fmt.Errorf("country %q: %w", row.CountryName, err))
	}

	res, err := s.upsert(ctx, collCities, row.Name, cityUpdate(row, time.Now().UTC()))
	if err != nil {
		return OutcomeUnchanged, mongoError("city "+row.Name, "upsert", err)
	}
	return outcomeOf(res), nil
}

func (s *MongoStore) UpsertMuseum(ctx context.Context, row MuseumRow) (Outcome, error) {
	if err := s.requireParent(ctx, collCities, row.CityName); err != nil {
		return OutcomeUnchanged, mongoError("museum "+row.Name, "upsert", fmt.Errorf("city %q: %w", row.CityName, err))
	}

	res, err := s.upsert(ctx, collMuseums, row.Name, museumUpdate(row, time.Now().UTC()))
	if err != nil {
		return OutcomeUnchanged, mongoError("museum "+row.Name, "upsert", err)
	}
	return outcomeOf(res), nil
}

func (s *MongoStore) UpsertMuseumAttribute(ctx context.Context, museumName, key, value string) (Outcome, error) {
	entity := "museum_attribute " + museumName + "/" + key
	if err := s.requireParent(ctx, collMuseums, museumName); err != nil {
		return OutcomeUnchanged, mongoError(entity, "upsert", fmt.Errorf("museum %q: %w", museumName, err))
	}

	res, err := s.upsert(ctx, collMuseumAttributes, attributeID(museumName, key),
		attributeUpdate(museumName, key, value, time.Now().UTC()))
	if err != nil {
		return OutcomeUnchanged, mongoError(entity, "upsert", err)
	}
	return outcomeOf(res), nil
}

// StartImport implements Store.
func (s *MongoStore) StartImport(ctx context.Context, pageName string) (*ImportLog, error) {
	log := &ImportLog{
		RunID:       uuid.NewString(),
		TriggeredAt: time.Now().UTC(),
		Status:      ImportInProgress,
		Result:      map[string]any{"page_name": pageName},
	}

	_, err := s.db.Collection(collImportLogs).InsertOne(ctx, bson.M{
		"_id":          log.RunID,
		"triggered_at": log.TriggeredAt,
		"status":       string(log.Status),
		"result":       log.Result,
	})
	if err != nil {
		return nil, mongoError("import_log", "start", err)
	}

	s.logger.Info("import started", "run_id", log.RunID, "page", pageName)
	return log, nil
}

// FinishImport implements Store.
func (s *MongoStore) FinishImport(ctx context.Context, log *ImportLog) error {
	if log.CompletedAt == nil {
		now := time.Now().UTC()
		log.CompletedAt = &now
	}

	res, err := s.db.Collection(collImportLogs).UpdateOne(ctx,
		bson.M{"_id": log.RunID},
		bson.M{"$set": bson.M{
			"status":       string(log.Status),
			"completed_at": *log.CompletedAt,
			"result":       log.Result,
		}},
	)
	if err != nil {
		return mongoError("import_log "+log.RunID, "finish", err)
	}
	if res.MatchedCount == 0 {
		return mongoError("import_log "+log.RunID, "finish", mongo.ErrNoDocuments)
	}

	s.logger.Info("import finished", "run_id", log.RunID, "status", log.Status)
	return nil
}

// GetImport implements Store.
func (s *MongoStore) GetImport(ctx context.Context, runID string) (*ImportLog, error) {
	var doc struct {
		RunID       string         `bson:"_id"`
		TriggeredAt time.Time      `bson:"triggered_at"`
		CompletedAt *time.Time     `bson:"completed_at"`
		Status      string         `bson:"status"`
		Result      map[string]any `bson:"result"`
	}
	if err := s.db.Collection(collImportLogs).FindOne(ctx, bson.M{"_id": runID}).Decode(&doc); err != nil {
		return nil, mongoError("import_log "+runID, "get", err)
	}
	return &ImportLog{
		RunID:       doc.RunID,
		TriggeredAt: doc.TriggeredAt,
		CompletedAt: doc.CompletedAt,
		Status:      ImportStatus(doc.Status),
		Result:      doc.Result,
	}, nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// countryUpdate only writes on insert; an existing country is left as is.
func countryUpdate(name string, now time.Time) bson.M {
	return bson.M{
		"$setOnInsert": bson.M{"name": name, "created_at": now},
	}
}

// cityUpdate refreshes population and reference on every run.
func cityUpdate(row CityRow, now time.Time) bson.M {
	return bson.M{
		"$set": bson.M{
			"population":    row.Population,
			"reference_url": nullable(row.ReferenceURL),
			"updated_at":    now,
		},
		"$setOnInsert": bson.M{
			"name":       row.Name,
			"country":    row.CountryName,
			"created_at": now,
		},
	}
}

// museumUpdate refreshes only the visitor count; reference and city are
// fixed at insert.
func museumUpdate(row MuseumRow, now time.Time) bson.M {
	return bson.M{
		"$set": bson.M{
			"number_of_visitors": row.Visitors,
			"updated_at":         now,
		},
		"$setOnInsert": bson.M{
			"name":          row.Name,
			"reference_url": nullable(row.ReferenceURL),
			"city":          row.CityName,
			"created_at":    now,
		},
	}
}

// attributeID is the compound key of an attribute document. Field order
// matters for _id equality, hence bson.D.
func attributeID(museumName, key string) bson.D {
	return bson.D{{Key: "museum", Value: museumName}, {Key: "key", Value: key}}
}

func attributeUpdate(museumName, key, value string, now time.Time) bson.M {
	return bson.M{
		"$set": bson.M{
			"attribute_value": value,
			"updated_at":      now,
		},
		"$setOnInsert": bson.M{
			"museum":        museumName,
			"attribute_key": key,
			"created_at":    now,
		},
	}
}

func (s *MongoStore) upsert(ctx context.Context, coll string, id any, update bson.M) (*mongo.UpdateResult, error) {
	return s.db.Collection(coll).UpdateOne(ctx, bson.M{"_id": id}, update, options.Update().SetUpsert(true))
}

func (s *MongoStore) requireParent(ctx context.Context, coll, id string) error {
	err := s.db.Collection(coll).FindOne(ctx, bson.M{"_id": id}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrMissingParent
	}
	return err
}

func outcomeOf(res *mongo.UpdateResult) Outcome {
	if res.UpsertedCount > 0 {
		return OutcomeInserted
	}
	return OutcomeUpdated
}

func mongoError(entity, op string, err error) error {
	return &types.StorageError{Backend: mongoBackend, Entity: entity, Op: op, Err: err}
}
