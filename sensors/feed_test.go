package sensors

import (
	"context"
	"sync"
	"testing"
	"time"

	"drive_collector/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ready(f *Feed) bool {
	_, ok := f.Snapshot()
	return ok
}

func TestFeed_NotReadyUntilEveryStream(t *testing.T) {
	f := NewFeed()
	_, ok := f.Snapshot()
	assert.False(t, ok)

	f.UpdateAccelerometer(models.Vector3{X: 1})
	f.UpdateGyroscope(models.Vector3{Y: 2})
	assert.False(t, ready(f))

	f.UpdateDeviceMotion(0.1, 0.2, models.Vector3{Z: -1})
	r, ok := f.Snapshot()
	require.True(t, ok)
	assert.Equal(t, models.Vector3{X: 1}, r.Acceleration)
	assert.Equal(t, models.Vector3{Y: 2}, r.Rotation)
	assert.Equal(t, 0.1, r.Pitch)
	assert.Equal(t, 0.2, r.Roll)
	assert.Equal(t, models.Vector3{Z: -1}, r.Gravity)
	assert.Equal(t, uint64(3), f.Updates())
}

func TestFeed_Reset(t *testing.T) {
	f := NewFeed()
	f.UpdateAccelerometer(models.Vector3{})
	f.UpdateGyroscope(models.Vector3{})
	f.UpdateDeviceMotion(0, 0, models.Vector3{})
	require.True(t, ready(f))

	f.Reset()
	assert.False(t, ready(f))
	assert.Zero(t, f.Updates())
}

// A writer always stores vectors whose components are equal; a torn read
// would mix components from two different updates.
func TestFeed_SnapshotNeverTorn(t *testing.T) {
	f := NewFeed()
	f.UpdateGyroscope(models.Vector3{})
	f.UpdateDeviceMotion(0, 0, models.Vector3{})

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			v := float64(i)
			f.UpdateAccelerometer(models.Vector3{X: v, Y: v, Z: v})
		}
	}()

	for i := 0; i < 2000; i++ {
		r, ok := f.Snapshot()
		if !ok {
			continue
		}
		a := r.Acceleration
		if a.X != a.Y || a.Y != a.Z {
			t.Fatalf("torn read: %+v", a)
		}
	}
	close(stop)
	wg.Wait()
}

func TestSimulator_FillsFeed(t *testing.T) {
	sim := NewSimulator(200)
	f := NewFeed()

	require.NoError(t, sim.Start(context.Background(), f))
	assert.ErrorIs(t, sim.Start(context.Background(), f), ErrSourceRunning)

	assert.Eventually(t, func() bool { return ready(f) }, 2*time.Second, 5*time.Millisecond)
	sim.Stop()
	sim.Stop()

	n := f.Updates()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, f.Updates(), "no updates after Stop")

	r, ok := f.Snapshot()
	require.True(t, ok)
	assert.True(t, r.Acceleration.Finite())
	assert.True(t, r.Gravity.Finite())
}
