package sampler

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"drive_collector/logger"
	"drive_collector/models"
	"drive_collector/sensors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard, logger.ERROR)
	os.Exit(m.Run())
}

type manualTicker struct {
	c       chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *manualTicker) C() <-chan time.Time { return t.c }
func (t *manualTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}
func (t *manualTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type manualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *manualClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTicker{c: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *manualClock) tickerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

type memStore struct {
	mu      sync.Mutex
	records []models.SampleRecord
	err     error
}

func (m *memStore) Insert(_ context.Context, rec *models.SampleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	rec.ID = uint64(len(m.records) + 1)
	m.records = append(m.records, *rec)
	return nil
}

func (m *memStore) all() []models.SampleRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.SampleRecord(nil), m.records...)
}

func readyFeed() *sensors.Feed {
	f := sensors.NewFeed()
	f.UpdateAccelerometer(models.Vector3{X: 0.1, Y: 0.2, Z: 0.3})
	f.UpdateGyroscope(models.Vector3{X: 1, Y: 2, Z: 3})
	f.UpdateDeviceMotion(0.5, -0.5, models.Vector3{Z: -1})
	return f
}

func TestTick_SkipsUntilEveryStreamReported(t *testing.T) {
	feed := sensors.NewFeed()
	st := &memStore{}
	s := New(feed, st, 0, WithClock(newManualClock()))

	s.tick()
	feed.UpdateAccelerometer(models.Vector3{})
	feed.UpdateGyroscope(models.Vector3{})
	s.tick()

	assert.Empty(t, st.all())
	assert.Equal(t, Stats{Ticks: 2, Skipped: 2}, s.Stats())

	feed.UpdateDeviceMotion(0, 0, models.Vector3{})
	s.tick()
	assert.Len(t, st.all(), 1)
}

func TestTick_FusesReadingLabelAndTime(t *testing.T) {
	clock := newManualClock()
	st := &memStore{}
	s := New(readyFeed(), st, 0, WithClock(clock))

	s.SetLabel(models.LabelHardBraking)
	s.tick()

	recs := st.all()
	require.Len(t, recs, 1)
	got := recs[0]
	assert.Equal(t, models.Vector3{X: 0.1, Y: 0.2, Z: 0.3}, got.Acceleration)
	assert.Equal(t, models.Vector3{X: 1, Y: 2, Z: 3}, got.Rotation)
	assert.Equal(t, 0.5, got.Pitch)
	assert.Equal(t, -0.5, got.Roll)
	assert.Equal(t, models.Vector3{Z: -1}, got.Gravity)
	assert.Equal(t, models.LabelHardBraking, got.Label)
	assert.Equal(t, models.UnixSeconds(clock.Now()), got.Timestamp)
}

func TestTick_LabelChangeDoesNotRewriteHistory(t *testing.T) {
	st := &memStore{}
	s := New(readyFeed(), st, 0, WithClock(newManualClock()))

	s.SetLabel(models.LabelNormal)
	s.tick()
	s.SetLabel(models.LabelHardTurning)
	s.tick()
	s.SetLabel(models.LabelNormal)

	recs := st.all()
	require.Len(t, recs, 2)
	assert.Equal(t, models.LabelNormal, recs[0].Label)
	assert.Equal(t, models.LabelHardTurning, recs[1].Label)
}

func TestTick_InsertFailureKeepsSampling(t *testing.T) {
	st := &memStore{err: errors.New("disk full")}
	var reported []error
	s := New(readyFeed(), st, 0, WithClock(newManualClock()), WithFailureHandler(func(err error) {
		reported = append(reported, err)
	}))

	s.tick()
	st.mu.Lock()
	st.err = nil
	st.mu.Unlock()
	s.tick()

	assert.Len(t, reported, 1)
	assert.Equal(t, Stats{Ticks: 2, Inserted: 1, Failed: 1}, s.Stats())
	assert.Len(t, st.all(), 1)
}

func TestStart_RejectsSecondTicker(t *testing.T) {
	clock := newManualClock()
	s := New(readyFeed(), &memStore{}, 0, WithClock(clock))

	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrAlreadyRunning)
	assert.Equal(t, 1, clock.tickerCount())
	assert.True(t, s.Running())

	s.Stop()
	s.Stop()
	assert.False(t, s.Running())

	// restart after stop gets a fresh ticker
	require.NoError(t, s.Start())
	assert.Equal(t, 2, clock.tickerCount())
	s.Stop()
}

func TestStartStop_OneRecordPerTick(t *testing.T) {
	clock := newManualClock()
	st := &memStore{}
	s := New(readyFeed(), st, 0, WithClock(clock))

	require.NoError(t, s.Start())
	tk := clock.tickers[0]
	for i := 0; i < 5; i++ {
		clock.Advance(DefaultInterval)
		tk.c <- clock.Now()
	}
	assert.Eventually(t, func() bool { return s.Stats().Ticks == 5 }, time.Second, time.Millisecond)
	s.Stop()

	assert.True(t, tk.isStopped())
	recs := st.all()
	require.Len(t, recs, 5)
	for i := 1; i < len(recs); i++ {
		assert.Greater(t, recs[i].Timestamp, recs[i-1].Timestamp)
		assert.Equal(t, recs[i-1].ID+1, recs[i].ID)
	}

	// nothing listens after Stop
	select {
	case tk.c <- clock.Now():
		t.Fatal("tick delivered after Stop")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRealClock_ApproximateRate(t *testing.T) {
	st := &memStore{}
	s := New(readyFeed(), st, 10*time.Millisecond)

	require.NoError(t, s.Start())
	time.Sleep(120 * time.Millisecond)
	s.Stop()

	n := len(st.all())
	assert.GreaterOrEqual(t, n, 3)
	assert.LessOrEqual(t, n, 13)
}

func TestCurrentLabel_DefaultsToNormal(t *testing.T) {
	var l CurrentLabel
	assert.Equal(t, models.LabelNormal, l.Get())
	l.Set(models.LabelHardAcceleration)
	assert.Equal(t, models.LabelHardAcceleration, l.Get())
}
