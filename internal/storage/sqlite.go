package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/IshaanNene/museumfetch/internal/types"
)

const sqliteBackend = "sqlite"

// SQLStore persists entities in SQLite through GORM.
type SQLStore struct {
	sqlRepository
	logger *slog.Logger
}

// NewSQLStore opens (creating if needed) the database at path and migrates
// the schema.
func NewSQLStore(path string, logger *slog.Logger) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// WAL mode enables concurrent reads and writes
	// busy_timeout prevents immediate "database is locked" errors
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)

	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, sqlError("database", "open", err)
	}

	if err := database.AutoMigrate(&Country{}, &City{}, &Museum{}, &MuseumAttribute{}, &ImportLogRecord{}); err != nil {
		return nil, sqlError("database", "migrate", err)
	}

	logger = logger.With("component", "sqlite_store")
	logger.Debug("database ready", "path", path)

	return &SQLStore{
		sqlRepository: sqlRepository{db: database, logger: logger},
		logger:        logger,
	}, nil
}

func (s *SQLStore) Name() string { return sqliteBackend }

// DB returns the underlying GORM database instance.
func (s *SQLStore) DB() *gorm.DB {
	return s.db
}

// InTx implements Store with a GORM transaction; fn's error rolls back.
func (s *SQLStore) InTx(ctx context.Context, fn func(Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&sqlRepository{db: tx, logger: s.logger})
	})
}

// StartImport implements Store.
func (s *SQLStore) StartImport(ctx context.Context, pageName string) (*ImportLog, error) {
	log := &ImportLog{
		RunID:       uuid.NewString(),
		TriggeredAt: time.Now().UTC(),
		Status:      ImportInProgress,
		Result:      map[string]any{"page_name": pageName},
	}

	result, err := json.Marshal(log.Result)
	if err != nil {
		return nil, sqlError("import_log", "start", err)
	}
	rec := ImportLogRecord{
		RunID:       log.RunID,
		TriggeredAt: log.TriggeredAt,
		Status:      string(log.Status),
		Result:      string(result),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, sqlError("import_log", "start", err)
	}

	s.logger.Info("import started", "run_id", log.RunID, "page", pageName)
	return log, nil
}

// FinishImport implements Store.
func (s *SQLStore) FinishImport(ctx context.Context, log *ImportLog) error {
	if log.CompletedAt == nil {
		now := time.Now().UTC()
		log.CompletedAt = &now
	}
	result, err := json.Marshal(log.Result)
	if err != nil {
		return sqlError("import_log", "finish", err)
	}

	tx := s.db.WithContext(ctx).Model(&ImportLogRecord{}).
		Where("run_id = ?", log.RunID).
		Updates(map[string]any{
			"status":       string(log.Status),
			"completed_at": log.CompletedAt,
			"result":       string(result),
		})
	if tx.Error != nil {
		return sqlError("import_log", "finish", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return sqlError("import_log "+log.RunID, "finish", gorm.ErrRecordNotFound)
	}

	s.logger.Info("import finished", "run_id", log.RunID, "status", log.Status)
	return nil
}

// GetImport implements Store.
func (s *SQLStore) GetImport(ctx context.Context, runID string) (*ImportLog, error) {
	var rec ImportLogRecord
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Take(&rec).Error; err != nil {
		return nil, sqlError("import_log "+runID, "get", err)
	}

	log := &ImportLog{
		RunID:       rec.RunID,
		TriggeredAt: rec.TriggeredAt,
		CompletedAt: rec.CompletedAt,
		Status:      ImportStatus(rec.Status),
	}
	if rec.Result != "" {
		if err := json.Unmarshal([]byte(rec.Result), &log.Result); err != nil {
			return nil, sqlError("import_log "+runID, "decode", err)
		}
	}
	return log, nil
}

// Close releases the database connection.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// sqlRepository implements Repository on a connection or a transaction.
type sqlRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func (r *sqlRepository) UpsertCountry(ctx context.Context, name string) (Outcome, error) {
	db := r.db.WithContext(ctx)

	var country Country
	err := db.Where("name = ?", name).Take(&country).Error
	switch {
	case err == nil:
		return OutcomeUnchanged, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return OutcomeUnchanged, sqlError("country "+name, "lookup", err)
	}

	if err := db.Create(&Country{Name: name}).Error; err != nil {
		return OutcomeUnchanged, sqlError("country "+name, "insert", err)
	}
	r.logger.Debug("country created", "name", name)
	return OutcomeInserted, nil
}

func (r *sqlRepository) UpsertCity(ctx context.Context, row CityRow) (Outcome, error) {
	db := r.db.WithContext(ctx)

	var country Country
	if err := db.Where("name = ?", row.CountryName).Take(&country).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = fmt.Errorf("country %q: %w", row.CountryName, ErrMissingParent)
		}
		return OutcomeUnchanged, sqlError("city "+row.Name, "upsert", err)
	}

	var city City
	err := db.Where("name = ?", row.Name).Take(&city).Error
	switch {
	case err == nil:
		err = db.Model(&city).Updates(map[string]any{
			"population":    row.Population,
			"reference_url": nullable(row.ReferenceURL),
		}).Error
		if err != nil {
			return OutcomeUnchanged, sqlError("city "+row.Name, "update", err)
		}
		r.logger.Debug("city updated", "name", row.Name)
		return OutcomeUpdated, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return OutcomeUnchanged, sqlError("city "+row.Name, "lookup", err)
	}

	city = City{
		Name:         row.Name,
		Population:   row.Population,
		ReferenceURL: nullable(row.ReferenceURL),
		CountryID:    country.ID,
	}
	if err := db.Create(&city).Error; err != nil {
		return OutcomeUnchanged, sqlError("city "+row.Name, "insert", err)
	}
	r.logger.Debug("city created", "name", row.Name)
	return OutcomeInserted, nil
}

func (r *sqlRepository) UpsertMuseum(ctx context.Context, row MuseumRow) (Outcome, error) {
	db := r.db.WithContext(ctx)

	var city City
	if err := db.Where("name = ?", row.CityName).Take(&city).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = fmt.Errorf("city %q: %w", row.CityName, ErrMissingParent)
		}
		return OutcomeUnchanged, sqlError("museum "+row.Name, "upsert", err)
	}

	var museum Museum
	err := db.Where("name = ?", row.Name).Take(&museum).Error
	switch {
	case err == nil:
		err = db.Model(&museum).Update("number_of_visitors", row.Visitors).Error
		if err != nil {
			return OutcomeUnchanged, sqlError("museum "+row.Name, "update", err)
		}
		r.logger.Debug("museum updated", "name", row.Name)
		return OutcomeUpdated, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return OutcomeUnchanged, sqlError("museum "+row.Name, "lookup", err)
	}

	museum = Museum{
		Name:             row.Name,
		ReferenceURL:     nullable(row.ReferenceURL),
		NumberOfVisitors: row.Visitors,
		CityID:           city.ID,
	}
	if err := db.Create(&museum).Error; err != nil {
		return OutcomeUnchanged, sqlError("museum "+row.Name, "insert", err)
	}
	r.logger.Debug("museum created", "name", row.Name)
	return OutcomeInserted, nil
}

func (r *sqlRepository) UpsertMuseumAttribute(ctx context.Context, museumName, key, value string) (Outcome, error) {
	db := r.db.WithContext(ctx)
	entity := "museum_attribute " + museumName + "/" + key

	var museum Museum
	if err := db.Where("name = ?", museumName).Take(&museum).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = fmt.Errorf("museum %q: %w", museumName, ErrMissingParent)
		}
		return OutcomeUnchanged, sqlError(entity, "upsert", err)
	}

	var attr MuseumAttribute
	err := db.Where("museum_id = ? AND attribute_key = ?", museum.ID, key).Take(&attr).Error
	switch {
	case err == nil:
		if err := db.Model(&attr).Update("attribute_value", value).Error; err != nil {
			return OutcomeUnchanged, sqlError(entity, "update", err)
		}
		return OutcomeUpdated, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return OutcomeUnchanged, sqlError(entity, "lookup", err)
	}

	attr = MuseumAttribute{MuseumID: museum.ID, AttributeKey: key, AttributeValue: value}
	if err := db.Create(&attr).Error; err != nil {
		return OutcomeUnchanged, sqlError(entity, "insert", err)
	}
	return OutcomeInserted, nil
}

func sqlError(entity, op string, err error) error {
	return &types.StorageError{Backend: sqliteBackend, Entity: entity, Op: op, Err: err}
}
