// Package store is the durable, append-only buffer of samples waiting for upload.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"drive_collector/config"
	"drive_collector/database"
	"drive_collector/models"

	"gorm.io/gorm"
)

// ErrStorage matches every failure of the local medium
var ErrStorage = errors.New("storage failure")

// StorageError describes which store operation failed
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStorage) hold for every StorageError
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func fail(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// Store persists SampleRecords in the sensor_data table.
// All operations are serialized so a drain never observes half of an insert.
type Store struct {
	mu sync.Mutex
	db *gorm.DB
}

// Open prepares the sample table on db. With auto_migrate enabled the schema is
// created on first access; existing rows are never touched.
func Open(db *gorm.DB, cfg *config.Config) (*Store, error) {
	if cfg.Migration.AutoMigrate {
		if err := database.NewMigrationRunner(db, cfg).RunMigrations(); err != nil {
			return nil, fail("open", err)
		}
	} else if !database.SchemaReady(db) {
		return nil, fail("open", errors.New("sensor_data table missing; run the migrate command"))
	}
	return &Store{db: db}, nil
}

// Insert assigns the next id to rec and persists it
func (s *Store) Insert(ctx context.Context, rec *models.SampleRecord) error {
	if err := rec.Validate(); err != nil {
		return fail("insert", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = 0
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fail("insert", err)
	}
	return nil
}

// InsertBatch persists records in one transaction; either all are stored or none
func (s *Store) InsertBatch(ctx context.Context, records []models.SampleRecord) error {
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return fail("insert", fmt.Errorf("record %d: %w", i, err))
		}
		records[i].ID = 0
	}
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	const batchSize = 500
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(records, batchSize).Error
	}); err != nil {
		return fail("insert", err)
	}
	return nil
}

// FetchAll returns every stored record in insertion order. A row with NULL
// columns is returned with those columns listed in Missing.
func (s *Store) FetchAll(ctx context.Context) ([]models.SampleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []sampleRow
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fail("fetch", err)
	}
	records := make([]models.SampleRecord, len(rows))
	for i, row := range rows {
		records[i] = row.record()
	}
	return records, nil
}

// Count returns the number of buffered records
func (s *Store) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	if err := s.db.WithContext(ctx).Model(&models.SampleRecord{}).Count(&n).Error; err != nil {
		return 0, fail("count", err)
	}
	return n, nil
}

// Clear deletes every row. On error the caller must not assume the store is empty.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&models.SampleRecord{}).Error
	if err != nil {
		return fail("clear", err)
	}
	return nil
}

// ClearThrough deletes the rows with id <= maxID, i.e. exactly a previously fetched
// snapshot, leaving rows appended after the fetch for the next drain.
func (s *Store) ClearThrough(ctx context.Context, maxID uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).Where("id <= ?", maxID).Delete(&models.SampleRecord{})
	if res.Error != nil {
		return 0, fail("clear", res.Error)
	}
	return res.RowsAffected, nil
}
