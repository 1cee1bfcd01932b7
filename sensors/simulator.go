package sensors

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"drive_collector/logger"
	"drive_collector/models"
)

// ErrSourceRunning is returned when Start is called on a running source
var ErrSourceRunning = errors.New("sensor source already running")

// Simulator is a Source producing synthetic driving motion, used when no
// hardware is attached. Each stream runs on its own goroutine and ticker,
// so streams are not aligned with each other or with the sampler.
type Simulator struct {
	rate time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSimulator creates a simulator emitting each stream at rateHz
func NewSimulator(rateHz int) *Simulator {
	if rateHz <= 0 {
		rateHz = 50
	}
	return &Simulator{rate: time.Second / time.Duration(rateHz)}
}

// Start launches the three stream goroutines
func (s *Simulator) Start(ctx context.Context, feed *Feed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrSourceRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	// Stagger the streams so their updates interleave
	s.run(ctx, 0, func(step float64, rng *rand.Rand) {
		feed.UpdateAccelerometer(models.Vector3{
			X: 0.02*math.Sin(step) + rng.Float64()*0.005,
			Y: 0.15*math.Sin(step/7) + rng.Float64()*0.01,
			Z: 0.01*math.Cos(step) + rng.Float64()*0.005,
		})
	})
	s.run(ctx, s.rate/3, func(step float64, rng *rand.Rand) {
		feed.UpdateGyroscope(models.Vector3{
			X: 0.001*math.Sin(step*2) + rng.Float64()*0.0005,
			Y: 0.001*math.Cos(step*2) + rng.Float64()*0.0005,
			Z: 0.05*math.Sin(step/11) + rng.Float64()*0.0002,
		})
	})
	s.run(ctx, 2*s.rate/3, func(step float64, rng *rand.Rand) {
		pitch := 0.03 * math.Sin(step/5)
		roll := 0.02 * math.Cos(step/9)
		feed.UpdateDeviceMotion(pitch, roll, models.Vector3{
			X: -math.Sin(roll),
			Y: math.Sin(pitch),
			Z: -math.Cos(pitch) * math.Cos(roll),
		})
	})

	logger.Printf("sensor simulator started (interval=%v)", s.rate)
	return nil
}

func (s *Simulator) run(ctx context.Context, offset time.Duration, emit func(step float64, rng *rand.Rand)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(offset)))

		if offset > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(offset):
			}
		}

		ticker := time.NewTicker(s.rate)
		defer ticker.Stop()

		var step float64
		emit(step, rng)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				step += 0.02
				emit(step, rng)
			}
		}
	}()
}

// Stop halts all streams and waits for their goroutines
func (s *Simulator) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	logger.Printf("sensor simulator stopped")
}
