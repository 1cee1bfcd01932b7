package scanner

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"drive_collector/logger"
	"drive_collector/models"
)

// Fetcher reads the whole backlog
type Fetcher interface {
	FetchAll(ctx context.Context) ([]models.SampleRecord, error)
}

// Export writes every stored record to path as CSV with a Columns header.
// The store itself is not modified.
func Export(ctx context.Context, src Fetcher, path string) (int, error) {
	records, err := src.FetchAll(ctx)
	if err != nil {
		return 0, err
	}

	if err := WriteCSV(path, records); err != nil {
		return 0, err
	}

	logger.Printf("Exported %d records to %s", len(records), path)
	return len(records), nil
}

// WriteCSV writes records to path with a Columns header, creating parent directories
func WriteCSV(path string, records []models.SampleRecord) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(Columns); err != nil {
		return err
	}
	for _, r := range records {
		if err := w.Write(formatRow(r)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return file.Sync()
}

func formatRow(r models.SampleRecord) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return []string{
		f(r.Timestamp),
		f(r.Acceleration.X), f(r.Acceleration.Y), f(r.Acceleration.Z),
		f(r.Rotation.X), f(r.Rotation.Y), f(r.Rotation.Z),
		f(r.Pitch), f(r.Roll),
		f(r.Gravity.X), f(r.Gravity.Y), f(r.Gravity.Z),
		string(r.Label),
	}
}
