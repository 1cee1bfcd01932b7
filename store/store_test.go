package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"drive_collector/config"
	"drive_collector/database"
	"drive_collector/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "SensorData.sqlite")
	return cfg
}

func openStore(t *testing.T, cfg *config.Config) (*Store, *gorm.DB) {
	t.Helper()
	db, err := database.Connect(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	s, err := Open(db, cfg)
	require.NoError(t, err)
	return s, db
}

func sample(ts float64, label models.Label) models.SampleRecord {
	return models.SampleRecord{
		Timestamp:    ts,
		Acceleration: models.Vector3{X: 0.1, Y: 0.2, Z: 0.3},
		Rotation:     models.Vector3{X: -0.1, Y: -0.2, Z: -0.3},
		Pitch:        0.01,
		Roll:         0.02,
		Gravity:      models.Vector3{X: 0, Y: 0.1, Z: -0.99},
		Label:        label,
	}
}

func TestInsert_AssignsContiguousIDs(t *testing.T) {
	s, _ := openStore(t, testConfig(t))
	ctx := context.Background()

	const n = 25
	for i := 0; i < n; i++ {
		rec := sample(1700000000+float64(i)*0.02, models.LabelNormal)
		require.NoError(t, s.Insert(ctx, &rec))
		assert.Equal(t, uint64(i+1), rec.ID)
	}

	records, err := s.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, n)
	for i, r := range records {
		assert.Equal(t, uint64(i+1), r.ID)
	}
}

func TestInsert_RoundTripsAllFields(t *testing.T) {
	s, _ := openStore(t, testConfig(t))
	ctx := context.Background()

	rec := sample(1700000123.456, models.LabelHardTurning)
	require.NoError(t, s.Insert(ctx, &rec))

	records, err := s.FetchAll(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff([]models.SampleRecord{rec}, records); diff != "" {
		t.Errorf("stored records mismatch (-want +got):\n%s", diff)
	}
}

func TestInsert_RejectsNonFinite(t *testing.T) {
	s, _ := openStore(t, testConfig(t))
	ctx := context.Background()

	rec := sample(1700000000, models.LabelNormal)
	rec.Rotation.X = math.NaN()
	err := s.Insert(ctx, &rec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorage))

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "insert", se.Op)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpen_KeepsExistingData(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	s1, db1 := openStore(t, cfg)
	rec := sample(1700000000, models.LabelHardBraking)
	require.NoError(t, s1.Insert(ctx, &rec))
	require.NoError(t, database.Close(db1))

	s2, _ := openStore(t, cfg)
	records, err := s2.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.LabelHardBraking, records[0].Label)
}

func TestOpen_WithoutAutoMigrateNeedsSchema(t *testing.T) {
	cfg := testConfig(t)
	cfg.Migration.AutoMigrate = false

	db, err := database.Connect(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	_, err = Open(db, cfg)
	assert.True(t, errors.Is(err, ErrStorage))
}

func TestClear(t *testing.T) {
	s, _ := openStore(t, testConfig(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := sample(1700000000+float64(i), models.LabelNormal)
		require.NoError(t, s.Insert(ctx, &rec))
	}
	require.NoError(t, s.Clear(ctx))

	records, err := s.FetchAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestClear_IDsKeepIncreasing(t *testing.T) {
	s, _ := openStore(t, testConfig(t))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		rec := sample(1700000000+float64(i), models.LabelNormal)
		require.NoError(t, s.Insert(ctx, &rec))
	}
	require.NoError(t, s.Clear(ctx))

	rec := sample(1700000005, models.LabelNormal)
	require.NoError(t, s.Insert(ctx, &rec))
	assert.Equal(t, uint64(3), rec.ID, "ids are not reused after the table empties")
}

// legacySchema is sensor_data as created before the vector columns were NOT NULL
const legacySchema = `CREATE TABLE sensor_data (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp REAL NOT NULL,
	acc_x REAL, acc_y REAL, acc_z REAL,
	gyro_x REAL, gyro_y REAL, gyro_z REAL,
	pitch REAL NOT NULL, roll REAL NOT NULL,
	gravity_x REAL, gravity_y REAL, gravity_z REAL,
	label TEXT NOT NULL
)`

func TestFetchAll_ReportsNullColumnsAsMissing(t *testing.T) {
	cfg := testConfig(t)
	cfg.Migration.AutoMigrate = false
	db, err := database.Connect(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	require.NoError(t, db.Exec(legacySchema).Error)

	s, err := Open(db, cfg)
	require.NoError(t, err)
	require.NoError(t, db.Exec(`INSERT INTO sensor_data
		(timestamp, acc_x, acc_y, acc_z, pitch, roll, gravity_x, gravity_y, gravity_z, label)
		VALUES (1700000000, 0.1, 0.2, 0.3, 0.01, 0.02, 0, 0, -1, 'normal')`).Error)

	records, err := s.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, []string{"gyro_x", "gyro_y", "gyro_z"}, r.Missing)
	assert.True(t, math.IsNaN(r.Rotation.X), "NULL must not read back as zero")
	assert.Equal(t, 0.1, r.Acceleration.X)
	assert.ErrorContains(t, r.Validate(), "missing gyro_x")
}

func TestClearThrough_KeepsLaterRows(t *testing.T) {
	s, _ := openStore(t, testConfig(t))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		rec := sample(1700000000+float64(i), models.LabelNormal)
		require.NoError(t, s.Insert(ctx, &rec))
	}
	snapshot, err := s.FetchAll(ctx)
	require.NoError(t, err)

	late := sample(1700000010, models.LabelHardAcceleration)
	require.NoError(t, s.Insert(ctx, &late))

	deleted, err := s.ClearThrough(ctx, snapshot[len(snapshot)-1].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)

	remaining, err := s.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, late.ID, remaining[0].ID)
}

func TestInsertBatch_AllOrNothing(t *testing.T) {
	s, _ := openStore(t, testConfig(t))
	ctx := context.Background()

	bad := []models.SampleRecord{sample(1700000000, models.LabelNormal), sample(0, models.LabelNormal)}
	assert.True(t, errors.Is(s.InsertBatch(ctx, bad), ErrStorage))

	good := []models.SampleRecord{sample(1700000000, models.LabelNormal), sample(1700000001, models.LabelHardTurning)}
	require.NoError(t, s.InsertBatch(ctx, good))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestOperations_FailAfterClose(t *testing.T) {
	s, db := openStore(t, testConfig(t))
	ctx := context.Background()
	require.NoError(t, database.Close(db))

	rec := sample(1700000000, models.LabelNormal)
	assert.True(t, errors.Is(s.Insert(ctx, &rec), ErrStorage))
	_, err := s.FetchAll(ctx)
	assert.True(t, errors.Is(err, ErrStorage))
	assert.True(t, errors.Is(s.Clear(ctx), ErrStorage))
}

func TestFetchAll_ConcurrentWithInserts(t *testing.T) {
	s, _ := openStore(t, testConfig(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			rec := sample(1700000000+float64(i), models.LabelNormal)
			assert.NoError(t, s.Insert(ctx, &rec))
		}
	}()

	for i := 0; i < 10; i++ {
		records, err := s.FetchAll(ctx)
		require.NoError(t, err)
		for j, r := range records {
			assert.Equal(t, uint64(j+1), r.ID)
			assert.Equal(t, 0.1, r.Acceleration.X)
		}
	}
	wg.Wait()
}
