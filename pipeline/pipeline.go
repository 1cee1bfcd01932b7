// Package pipeline wires a sensor source, the sampler and the upload coordinator
// behind the start/stop/label controls an operator uses while driving.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"drive_collector/logger"
	"drive_collector/models"
	"drive_collector/sampler"
	"drive_collector/sensors"
	"drive_collector/uploader"
)

var (
	// ErrRunning is returned by Start during an active drive
	ErrRunning = errors.New("drive already running")
	// ErrNotRunning is returned by Stop when no drive is active
	ErrNotRunning = errors.New("drive not running")
)

// Drainer runs one upload cycle off the caller's goroutine
type Drainer interface {
	DrainAsync(ctx context.Context) <-chan uploader.Result
}

// Pipeline owns one drive at a time
type Pipeline struct {
	feed    *sensors.Feed
	source  sensors.Source
	sampler *sampler.Sampler
	drainer Drainer

	mu      sync.Mutex
	running bool
	started time.Time
}

// New assembles a pipeline writing to rec and uploading through d
func New(source sensors.Source, rec sampler.Recorder, d Drainer, interval time.Duration, opts ...sampler.Option) *Pipeline {
	feed := sensors.NewFeed()
	return &Pipeline{
		feed:    feed,
		source:  source,
		sampler: sampler.New(feed, rec, interval, opts...),
		drainer: d,
	}
}

// Start begins a drive: sensors first, then the sampling tick
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrRunning
	}

	p.feed.Reset()
	if err := p.source.Start(ctx, p.feed); err != nil {
		return fmt.Errorf("start sensors: %w", err)
	}
	if err := p.sampler.Start(); err != nil {
		p.source.Stop()
		return fmt.Errorf("start sampler: %w", err)
	}

	p.running = true
	p.started = time.Now()
	logger.Printf("drive started (label=%s)", p.sampler.Label())
	return nil
}

// Stop ends the drive and waits for its upload cycle. The cycle's outcome
// is returned as is; samples that were not acknowledged stay in the store.
func (p *Pipeline) Stop(ctx context.Context) (uploader.Session, error) {
	results, err := p.StopAsync(ctx)
	if err != nil {
		return uploader.Session{}, err
	}
	res := <-results
	return res.Session, res.Err
}

// StopAsync halts sampling and sensors immediately and starts exactly one
// upload cycle in the background. The channel delivers its single result.
func (p *Pipeline) StopAsync(ctx context.Context) (<-chan uploader.Result, error) {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil, ErrNotRunning
	}
	p.sampler.Stop()
	p.source.Stop()
	updates := p.feed.Updates()
	p.feed.Reset()
	p.running = false
	elapsed := time.Since(p.started)
	p.mu.Unlock()

	st := p.sampler.Stats()
	logger.Printf("drive stopped after %v (sensor updates=%d, inserted=%d, skipped=%d, failed=%d)",
		elapsed.Round(time.Millisecond), updates, st.Inserted, st.Skipped, st.Failed)

	return p.drainer.DrainAsync(ctx), nil
}

// SetLabel tags samples captured from now on
func (p *Pipeline) SetLabel(l models.Label) {
	p.sampler.SetLabel(l)
	logger.Debugf("label set to %s", l)
}

// Label returns the current label
func (p *Pipeline) Label() models.Label {
	return p.sampler.Label()
}

// Running reports whether a drive is active
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stats returns the sampler counters accumulated across drives
func (p *Pipeline) Stats() sampler.Stats {
	return p.sampler.Stats()
}
