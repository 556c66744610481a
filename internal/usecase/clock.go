package usecase

import (
	"context"
	"time"
)

// Clock is the engine's source of time. Sleep returns ctx.Err() when the wait is
// cut short, so every suspension point is cancelable.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now().UTC() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Timings holds every fixed delay the engine inserts.
type Timings struct {
	AvatarToPrimary time.Duration
	BeforePoster    time.Duration
	InterStep       time.Duration
	BaseStepDelay   time.Duration
	AfterRateLimit  time.Duration
	AssetStepFloor  time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		AvatarToPrimary: 6 * time.Second,
		BeforePoster:    4 * time.Second,
		InterStep:       1500 * time.Millisecond,
		BaseStepDelay:   2 * time.Second,
		AfterRateLimit:  15 * time.Second,
		AssetStepFloor:  5 * time.Second,
	}
}
