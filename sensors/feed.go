// Package sensors holds the latest motion readings published by a sensor source.
//
// A source pushes three independent streams, each at its own cadence:
//
//   - accelerometer: linear acceleration, gravity excluded
//   - gyroscope: angular rate
//   - device motion: attitude (pitch, roll) and the gravity vector
//
// Readers never wait for fresh data; Snapshot returns whatever is latest.
package sensors

import (
	"context"
	"sync"
	"time"

	"drive_collector/models"
)

// Reading is a consistent view of all latest values at one instant
type Reading struct {
	Acceleration models.Vector3
	Rotation     models.Vector3
	Pitch        float64
	Roll         float64
	Gravity      models.Vector3

	// Updated is the time of the most recent update on any stream
	Updated time.Time
}

// Source publishes readings into a Feed until stopped
type Source interface {
	Start(ctx context.Context, feed *Feed) error
	Stop()
}

// Feed is the latest-value cache shared between a source and the sampler
type Feed struct {
	mu sync.Mutex

	reading Reading
	haveAcc bool
	haveGyr bool
	haveDev bool
	updates uint64
}

// NewFeed returns an empty feed; Snapshot reports not-ready until every stream has delivered
func NewFeed() *Feed {
	return &Feed{}
}

// UpdateAccelerometer stores the latest linear acceleration
func (f *Feed) UpdateAccelerometer(acc models.Vector3) {
	f.mu.Lock()
	f.reading.Acceleration = acc
	f.reading.Updated = time.Now()
	f.haveAcc = true
	f.updates++
	f.mu.Unlock()
}

// UpdateGyroscope stores the latest angular rate
func (f *Feed) UpdateGyroscope(rot models.Vector3) {
	f.mu.Lock()
	f.reading.Rotation = rot
	f.reading.Updated = time.Now()
	f.haveGyr = true
	f.updates++
	f.mu.Unlock()
}

// UpdateDeviceMotion stores attitude and gravity from one device-motion event
func (f *Feed) UpdateDeviceMotion(pitch, roll float64, gravity models.Vector3) {
	f.mu.Lock()
	f.reading.Pitch = pitch
	f.reading.Roll = roll
	f.reading.Gravity = gravity
	f.reading.Updated = time.Now()
	f.haveDev = true
	f.updates++
	f.mu.Unlock()
}

// Snapshot copies every field under one lock. ok is false until each stream has
// delivered at least one reading, so callers never see placeholder zeros.
func (f *Feed) Snapshot() (r Reading, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reading, f.haveAcc && f.haveGyr && f.haveDev
}

// Updates returns the number of stream updates received since the last reset
func (f *Feed) Updates() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates
}

// Reset forgets all readings; a new session waits for fresh data again
func (f *Feed) Reset() {
	f.mu.Lock()
	f.reading = Reading{}
	f.haveAcc, f.haveGyr, f.haveDev = false, false, false
	f.updates = 0
	f.mu.Unlock()
}
