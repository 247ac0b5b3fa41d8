package realtime

import "time"

// Clock is the time source for timestamps and timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Stopper
}

// Stopper cancels a pending timer.
type Stopper interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) Stopper {
	return time.AfterFunc(d, fn)
}

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// timer is a loop-owned timer. Its callback runs on the loop, and never after stop,
// even if the underlying timer had already fired and queued it.
type timer struct {
	underlying Stopper
	stopped    bool
}

func (t *timer) stop() {
	if t == nil || t.stopped {
		return
	}
	t.stopped = true
	t.underlying.Stop()
}

// after must be called on the loop.
func (s *Service) after(d time.Duration, fn func()) *timer {
	t := &timer{}
	t.underlying = s.clock.AfterFunc(d, func() {
		s.disp.post(func() {
			if t.stopped {
				return
			}
			t.stopped = true
			fn()
		})
	})
	return t
}
