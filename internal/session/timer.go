package session

import (
	"sync"
	"time"
)

// Timer is a handle to a repeating callback.
type Timer interface {
	Stop()
}

// Scheduler starts repeating callbacks. Stop must not wait for an in-flight
// callback, since sessions stop their timer while holding their own lock.
type Scheduler interface {
	Every(d time.Duration, fn func()) Timer
}

// TickerScheduler runs callbacks on a time.Ticker goroutine.
type TickerScheduler struct{}

func (TickerScheduler) Every(d time.Duration, fn func()) Timer {
	t := &tickerTimer{ticker: time.NewTicker(d), done: make(chan struct{})}
	go func() {
		for {
			select {
			case <-t.done:
				return
			case <-t.ticker.C:
				fn()
			}
		}
	}()
	return t
}

type tickerTimer struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *tickerTimer) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}
