// Package sampler turns the latest sensor readings into one stored record per tick.
package sampler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"drive_collector/logger"
	"drive_collector/models"
	"drive_collector/sensors"
)

// DefaultInterval is the 50 Hz sampling tick
const DefaultInterval = 20 * time.Millisecond

// ErrAlreadyRunning is returned by Start while a session is active
var ErrAlreadyRunning = errors.New("sampler already running")

// Snapshotter exposes the latest sensor readings
type Snapshotter interface {
	Snapshot() (sensors.Reading, bool)
}

// Recorder persists one record
type Recorder interface {
	Insert(ctx context.Context, rec *models.SampleRecord) error
}

// Stats counts tick outcomes since the sampler was created
type Stats struct {
	Ticks    uint64
	Inserted uint64
	Skipped  uint64
	Failed   uint64
}

// CurrentLabel is the driving-event tag applied to newly captured records
type CurrentLabel struct {
	v atomic.Value
}

// Set replaces the current label
func (c *CurrentLabel) Set(l models.Label) { c.v.Store(l) }

// Get returns the most recently set label, normal if never set
func (c *CurrentLabel) Get() models.Label {
	if l, ok := c.v.Load().(models.Label); ok {
		return l
	}
	return models.LabelNormal
}

// Option configures a Sampler
type Option func(*Sampler)

// WithClock replaces the real clock, used by tests
func WithClock(c Clock) Option {
	return func(s *Sampler) { s.clock = c }
}

// WithFailureHandler receives every failed insert; it runs on the tick goroutine
func WithFailureHandler(fn func(error)) Option {
	return func(s *Sampler) { s.onFailure = fn }
}

// Sampler drives a fixed-rate tick. Each tick reads the feed and the current
// label and appends at most one record to the store.
type Sampler struct {
	feed      Snapshotter
	store     Recorder
	interval  time.Duration
	clock     Clock
	onFailure func(error)
	label     CurrentLabel

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool

	ticks    atomic.Uint64
	inserted atomic.Uint64
	skipped  atomic.Uint64
	failed   atomic.Uint64
}

// New creates a stopped sampler
func New(feed Snapshotter, store Recorder, interval time.Duration, opts ...Option) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Sampler{
		feed:     feed,
		store:    store,
		interval: interval,
		clock:    RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetLabel changes the label for records captured from now on
func (s *Sampler) SetLabel(l models.Label) {
	s.label.Set(l)
}

// Label returns the current label
func (s *Sampler) Label() models.Label {
	return s.label.Get()
}

// Running reports whether the tick schedule is active
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start begins the tick schedule. A second Start without Stop is rejected so
// there is never more than one ticker.
func (s *Sampler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true

	ticker := s.clock.NewTicker(s.interval)
	go s.loop(ticker, s.stop, s.done)

	logger.Printf("sampler started (interval=%v, label=%s)", s.interval, s.Label())
	return nil
}

// Stop halts the tick schedule and waits for an in-flight tick to finish.
// It never touches the store and is safe to call when stopped.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stop)
	done := s.done
	s.running = false
	s.mu.Unlock()

	<-done
	st := s.Stats()
	logger.Printf("sampler stopped (ticks=%d, inserted=%d, skipped=%d, failed=%d)",
		st.Ticks, st.Inserted, st.Skipped, st.Failed)
}

func (s *Sampler) loop(ticker Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			// stop wins over a tick that raced it
			select {
			case <-stop:
				return
			default:
			}
			s.tick()
		}
	}
}

// tick captures one record. A feed that has not delivered every stream yet is
// skipped rather than written with zero placeholders.
func (s *Sampler) tick() {
	s.ticks.Add(1)

	reading, ok := s.feed.Snapshot()
	if !ok {
		s.skipped.Add(1)
		return
	}
	label := s.label.Get()

	rec := models.SampleRecord{
		Timestamp:    models.UnixSeconds(s.clock.Now()),
		Acceleration: reading.Acceleration,
		Rotation:     reading.Rotation,
		Pitch:        reading.Pitch,
		Roll:         reading.Roll,
		Gravity:      reading.Gravity,
		Label:        label,
	}

	if err := s.store.Insert(context.Background(), &rec); err != nil {
		s.failed.Add(1)
		logger.Errorf("sampler: insert failed: %v", err)
		if s.onFailure != nil {
			s.onFailure(err)
		}
		return
	}
	s.inserted.Add(1)
}

// Stats returns the tick counters
func (s *Sampler) Stats() Stats {
	return Stats{
		Ticks:    s.ticks.Load(),
		Inserted: s.inserted.Load(),
		Skipped:  s.skipped.Load(),
		Failed:   s.failed.Load(),
	}
}
