package dispatcher

import (
	"sync"
	"time"
)

// slidingWindow throttles sends to limit messages per window. Telegram
// allows roughly 30 messages per second per bot; the window keeps the
// dispatcher just under that. Safe for concurrent use; the event
// handler and the outlook ticker share one window.
type slidingWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time
	sleep  func(time.Duration)

	mu     sync.Mutex
	stamps []time.Time
}

func newSlidingWindow(limit int, window time.Duration) *slidingWindow {
	return &slidingWindow{
		limit:  limit,
		window: window,
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// Wait evicts stamps older than the window and, when the window is
// full, sleeps until the oldest stamp leaves it. The lock is released
// during the sleep so concurrent senders queue on the window, not on
// each other.
func (w *slidingWindow) Wait() {
	w.mu.Lock()
	now := w.now()
	w.evictLocked(now)

	if len(w.stamps) >= w.limit {
		wait := w.window - now.Sub(w.stamps[0])
		w.mu.Unlock()
		if wait > 0 {
			w.sleep(wait)
		}
		w.mu.Lock()
		w.evictLocked(w.now())
	}
	w.mu.Unlock()
}

// Record marks one sent message.
func (w *slidingWindow) Record() {
	w.mu.Lock()
	w.stamps = append(w.stamps, w.now())
	w.mu.Unlock()
}

func (w *slidingWindow) evictLocked(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.stamps) && w.stamps[i].Before(cutoff) {
		i++
	}
	w.stamps = w.stamps[i:]
}
