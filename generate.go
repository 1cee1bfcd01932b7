package main

import (
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"drive_collector/models"
	"drive_collector/scanner"

	"github.com/spf13/cobra"
)

// generator produces one synthetic drive
type generator struct {
	filename string
	generate func(start time.Time, n int, rng *rand.Rand) []models.SampleRecord
}

var generators = []generator{
	{"city_drive.csv", generateCityDrive},
	{"highway_drive.csv", generateHighwayDrive},
	{"cornering_drive.csv", generateCorneringDrive},
}

func newGenerateCommand() *cobra.Command {
	var seconds int
	cmd := &cobra.Command{
		Use:         "gen:csv <output_directory>",
		Short:       "Generate synthetic labelled drives as CSV backlogs",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{skipSetup: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if seconds <= 0 {
				return fmt.Errorf("--seconds must be positive")
			}
			results := generateDrives(args[0], seconds*50, time.Now().UTC())
			for _, r := range results {
				if r.err != nil {
					return fmt.Errorf("failed to write %s: %w", r.filename, r.err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Generated %s with %d records\n", r.filename, r.count)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&seconds, "seconds", "s", 60, "length of each drive at 50 Hz")
	return cmd
}

type generateResult struct {
	filename string
	count    int
	err      error
}

func generateDrives(outputDir string, n int, start time.Time) []generateResult {
	results := make([]generateResult, len(generators))

	var wg sync.WaitGroup
	for i, gen := range generators {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewSource(start.UnixNano() + int64(i)))
			records := gen.generate(start, n, rng)
			results[i] = generateResult{
				filename: gen.filename,
				count:    len(records),
				err:      scanner.WriteCSV(filepath.Join(outputDir, gen.filename), records),
			}
		}()
	}
	wg.Wait()
	return results
}

const sampleStep = 20 * time.Millisecond

// baseSample is level, steady driving with sensor noise
func baseSample(t time.Time, rng *rand.Rand) models.SampleRecord {
	noise := func(scale float64) float64 { return (rng.Float64()*2 - 1) * scale }
	pitch := 0.02 + noise(0.005)
	roll := noise(0.01)
	return models.SampleRecord{
		Timestamp:    models.UnixSeconds(t),
		Acceleration: models.Vector3{X: noise(0.02), Y: noise(0.02), Z: noise(0.02)},
		Rotation:     models.Vector3{X: noise(0.01), Y: noise(0.01), Z: noise(0.01)},
		Pitch:        pitch,
		Roll:         roll,
		Gravity:      models.Vector3{X: -math.Sin(roll), Y: math.Sin(pitch), Z: -math.Cos(pitch) * math.Cos(roll)},
		Label:        models.LabelNormal,
	}
}

// event shapes a burst of n samples with a half-sine envelope
func event(i, n int) float64 {
	return math.Sin(math.Pi * float64(i) / float64(n))
}

// generateCityDrive alternates stops and starts: hard braking every 10 s
func generateCityDrive(start time.Time, n int, rng *rand.Rand) []models.SampleRecord {
	const period, burst = 500, 60
	records := make([]models.SampleRecord, n)
	for i := range records {
		r := baseSample(start.Add(time.Duration(i)*sampleStep), rng)
		if k := i % period; k >= period-burst {
			e := event(k-(period-burst), burst)
			r.Acceleration.Y -= 0.6 * e
			r.Pitch += 0.05 * e
			r.Label = models.LabelHardBraking
		}
		records[i] = r
	}
	return records
}

// generateHighwayDrive is mostly steady with a hard merge every 20 s
func generateHighwayDrive(start time.Time, n int, rng *rand.Rand) []models.SampleRecord {
	const period, burst = 1000, 150
	records := make([]models.SampleRecord, n)
	for i := range records {
		r := baseSample(start.Add(time.Duration(i)*sampleStep), rng)
		if k := i % period; k < burst {
			e := event(k, burst)
			r.Acceleration.Y += 0.4 * e
			r.Pitch -= 0.03 * e
			r.Label = models.LabelHardAcceleration
		}
		records[i] = r
	}
	return records
}

// generateCorneringDrive takes a sharp turn every 6 s, alternating direction
func generateCorneringDrive(start time.Time, n int, rng *rand.Rand) []models.SampleRecord {
	const period, burst = 300, 100
	records := make([]models.SampleRecord, n)
	for i := range records {
		r := baseSample(start.Add(time.Duration(i)*sampleStep), rng)
		if k := i % period; k >= period-burst {
			dir := 1.0
			if (i/period)%2 == 1 {
				dir = -1
			}
			e := event(k-(period-burst), burst)
			r.Acceleration.X += dir * 0.5 * e
			r.Rotation.Z += dir * 0.8 * e
			r.Roll += dir * 0.04 * e
			r.Label = models.LabelHardTurning
		}
		records[i] = r
	}
	return records
}
