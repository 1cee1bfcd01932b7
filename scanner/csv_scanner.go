package scanner

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"drive_collector/logger"
	"drive_collector/models"
)

// Columns is the CSV layout, identical to the upload field names
var Columns = []string{
	"timestamp",
	"acc_x", "acc_y", "acc_z",
	"gyro_x", "gyro_y", "gyro_z",
	"pitch", "roll",
	"gravity_x", "gravity_y", "gravity_z",
	"label",
}

// Inserter persists a file's worth of records at once
type Inserter interface {
	InsertBatch(ctx context.Context, records []models.SampleRecord) error
}

// CSVScanner imports CSV backlogs into the store
type CSVScanner struct {
	store       Inserter
	workerCount int
}

// FileJob represents a CSV file to be processed
type FileJob struct {
	FilePath string
	FileName string
}

// ProcessResult contains the result of processing a CSV file
type ProcessResult struct {
	FilePath    string
	RecordCount int
	ErrorCount  int
	Duration    time.Duration
	Error       error
}

// NewCSVScanner creates a new CSV scanner
func NewCSVScanner(st Inserter) *CSVScanner {
	workerCount := runtime.NumCPU()
	if workerCount > 4 {
		workerCount = 4 // the store serializes writes anyway
	}
	return &CSVScanner{store: st, workerCount: workerCount}
}

// SetWorkerCount sets the number of parallel workers
func (cs *CSVScanner) SetWorkerCount(count int) {
	if count > 0 {
		cs.workerCount = count
	}
}

// ImportDirectory parses every CSV file in directoryPath and queues its valid
// rows for the next upload. Each file is inserted in one transaction, in file
// order; results are returned sorted by file name.
func (cs *CSVScanner) ImportDirectory(ctx context.Context, directoryPath string) ([]ProcessResult, error) {
	logger.Printf("Scanning directory: %s", directoryPath)

	info, err := os.Stat(directoryPath)
	if err != nil {
		return nil, fmt.Errorf("directory does not exist: %s", directoryPath)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", directoryPath)
	}

	csvFiles, err := findCSVFiles(directoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to find CSV files: %w", err)
	}
	if len(csvFiles) == 0 {
		logger.Println("No CSV files found in the directory")
		return nil, nil
	}

	logger.Printf("Found %d CSV file(s), processing with %d workers", len(csvFiles), cs.workerCount)

	results := cs.processFilesParallel(ctx, csvFiles)
	sort.Slice(results, func(i, j int) bool { return results[i].FilePath < results[j].FilePath })
	displaySummary(results)

	return results, ctx.Err()
}

// findCSVFiles lists the CSV files in a directory (non-recursive)
func findCSVFiles(directoryPath string) ([]FileJob, error) {
	entries, err := os.ReadDir(directoryPath)
	if err != nil {
		return nil, err
	}

	var csvFiles []FileJob
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(entry.Name())) == ".csv" {
			csvFiles = append(csvFiles, FileJob{
				FilePath: filepath.Join(directoryPath, entry.Name()),
				FileName: entry.Name(),
			})
		}
	}
	return csvFiles, nil
}

func (cs *CSVScanner) processFilesParallel(ctx context.Context, files []FileJob) []ProcessResult {
	jobs := make(chan FileJob, len(files))
	results := make(chan ProcessResult, len(files))

	var wg sync.WaitGroup
	for i := 0; i < cs.workerCount; i++ {
		wg.Add(1)
		go cs.worker(ctx, jobs, results, &wg)
	}

	for _, file := range files {
		jobs <- file
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	all := make([]ProcessResult, 0, len(files))
	for result := range results {
		all = append(all, result)
		logger.LogProgress(len(all), len(files), filepath.Base(result.FilePath))
	}
	return all
}

func (cs *CSVScanner) worker(ctx context.Context, jobs <-chan FileJob, results chan<- ProcessResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for job := range jobs {
		if err := ctx.Err(); err != nil {
			results <- ProcessResult{FilePath: job.FilePath, Error: err}
			continue
		}
		results <- cs.processCSVFile(ctx, job)
	}
}

func (cs *CSVScanner) processCSVFile(ctx context.Context, job FileJob) (result ProcessResult) {
	start := time.Now()
	result.FilePath = job.FilePath
	defer func() { result.Duration = time.Since(start) }()

	logger.Debugf("Processing file: %s", job.FileName)

	records, err := readCSV(job.FilePath)
	if err != nil {
		result.Error = err
		return result
	}

	samples, errorCount, err := parseCSVRecords(records, job.FileName)
	result.ErrorCount = errorCount
	if err != nil {
		result.Error = err
		return result
	}

	if len(samples) > 0 {
		if err := cs.store.InsertBatch(ctx, samples); err != nil {
			result.Error = fmt.Errorf("failed to insert data: %w", err)
			return result
		}
	}
	result.RecordCount = len(samples)

	logger.Printf("Completed %s: %d records queued, %d rows skipped", job.FileName, result.RecordCount, result.ErrorCount)
	return result
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("empty CSV file")
	}
	return records, nil
}

// parseCSVRecords maps rows onto records. With a header row the columns may
// appear in any order; without one they must follow Columns.
func parseCSVRecords(records [][]string, fileName string) ([]models.SampleRecord, int, error) {
	index := make(map[string]int, len(Columns))
	startRow := 0
	if isHeaderRow(records[0]) {
		for i, name := range records[0] {
			index[strings.ToLower(strings.TrimSpace(name))] = i
		}
		var missing []string
		for _, c := range Columns {
			if _, ok := index[c]; !ok {
				missing = append(missing, c)
			}
		}
		if len(missing) > 0 {
			return nil, 0, fmt.Errorf("header missing columns: %s", strings.Join(missing, ", "))
		}
		startRow = 1
	} else {
		for i, c := range Columns {
			index[c] = i
		}
	}

	var samples []models.SampleRecord
	errorCount := 0
	for i := startRow; i < len(records); i++ {
		row := records[i]
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}

		rec, err := parseRow(row, index)
		if err == nil {
			err = rec.Validate()
		}
		if err != nil {
			errorCount++
			logger.Warnf("Row %d in %s skipped: %v", i+1, fileName, err)
			continue
		}
		samples = append(samples, rec)
	}
	return samples, errorCount, nil
}

func parseRow(row []string, index map[string]int) (models.SampleRecord, error) {
	var rec models.SampleRecord
	field := func(name string) (string, error) {
		i := index[name]
		if i >= len(row) {
			return "", fmt.Errorf("missing column %s", name)
		}
		return strings.TrimSpace(row[i]), nil
	}

	ts, err := field("timestamp")
	if err != nil {
		return rec, err
	}
	if rec.Timestamp, err = parseTimestamp(ts); err != nil {
		return rec, err
	}

	targets := map[string]*float64{
		"acc_x": &rec.Acceleration.X, "acc_y": &rec.Acceleration.Y, "acc_z": &rec.Acceleration.Z,
		"gyro_x": &rec.Rotation.X, "gyro_y": &rec.Rotation.Y, "gyro_z": &rec.Rotation.Z,
		"pitch": &rec.Pitch, "roll": &rec.Roll,
		"gravity_x": &rec.Gravity.X, "gravity_y": &rec.Gravity.Y, "gravity_z": &rec.Gravity.Z,
	}
	for name, dst := range targets {
		s, err := field(name)
		if err != nil {
			return rec, err
		}
		if *dst, err = strconv.ParseFloat(s, 64); err != nil {
			return rec, fmt.Errorf("invalid %s: %q", name, s)
		}
	}

	l, err := field("label")
	if err != nil {
		return rec, err
	}
	if rec.Label, err = models.ParseLabel(strings.ToLower(l)); err != nil {
		return rec, err
	}
	return rec, nil
}

// parseTimestamp accepts epoch seconds or the timestamp layouts older exports used
func parseTimestamp(s string) (float64, error) {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return models.UnixSeconds(t), nil
		}
	}
	return 0, fmt.Errorf("invalid timestamp format: %q", s)
}

// isHeaderRow checks if the first row is likely a header
func isHeaderRow(row []string) bool {
	if len(row) == 0 {
		return false
	}
	first := strings.TrimSpace(row[0])
	if strings.Contains(strings.ToLower(first), "time") {
		return true
	}
	_, err := parseTimestamp(first)
	return err != nil
}

func displaySummary(results []ProcessResult) {
	logger.LogDivider()
	logger.Println("IMPORT SUMMARY")

	totalRecords, totalErrors, failed := 0, 0, 0
	var totalDuration time.Duration
	for _, result := range results {
		name := filepath.Base(result.FilePath)
		if result.Error != nil {
			failed++
			logger.Printf("%s: FAILED - %v", name, result.Error)
		} else {
			logger.Printf("%s: %d records, %d skipped rows (%v)", name, result.RecordCount, result.ErrorCount, result.Duration)
		}
		totalRecords += result.RecordCount
		totalErrors += result.ErrorCount
		totalDuration += result.Duration
	}

	logger.Printf("Files: %d (failed %d)", len(results), failed)
	logger.Printf("Records queued: %d", totalRecords)
	logger.Printf("Rows skipped: %d", totalErrors)
	logger.Printf("Processing time: %v", totalDuration)
	logger.LogDivider()
}
