package wialon

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// UnitSource is what a watcher polls; satisfied by *UnitRepository.
type UnitSource interface {
	Units(ctx context.Context) ([]Unit, error)
}

// FleetWatcher drives a repeating fetch-classify-publish cycle. At most one
// timer is active per watcher: a new Watch cancels the previous run.
type FleetWatcher struct {
	src UnitSource

	mu   sync.Mutex
	stop func()
}

// NewFleetWatcher creates a watcher over the given unit source.
func NewFleetWatcher(src UnitSource) *FleetWatcher {
	return &FleetWatcher{src: src}
}

// Watch performs one cycle immediately, then repeats every interval until
// the returned stop function is called. A failed cycle is logged and its
// onUpdate skipped; the timer keeps running so the consumer's previous
// snapshot stays the last known good state. Stop is idempotent; it cancels
// the timer but not an in-flight fetch, whose result is then discarded.
func (w *FleetWatcher) Watch(interval time.Duration, onUpdate func([]FleetItem)) (func(), error) {
	if interval <= 0 {
		return nil, fmt.Errorf("wialon: watch interval must be positive, got %v", interval)
	}
	if onUpdate == nil {
		return nil, fmt.Errorf("wialon: watch callback must not be nil")
	}

	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	w.mu.Lock()
	if w.stop != nil {
		w.stop()
	}
	w.stop = stop
	w.mu.Unlock()

	go func() {
		w.tick(done, onUpdate)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				w.tick(done, onUpdate)
			}
		}
	}()

	return stop, nil
}

// tick runs one fetch-classify-publish cycle. Ticks execute in the watch
// goroutine, so they never overlap.
func (w *FleetWatcher) tick(done <-chan struct{}, onUpdate func([]FleetItem)) {
	units, err := w.src.Units(context.Background())
	if err != nil {
		log.Printf("wialon: fleet poll failed, keeping previous snapshot: %v", err)
		return
	}

	items := ClassifyAll(units, time.Now())

	// The fetch may outlive a stop call; drop the result in that case.
	select {
	case <-done:
		return
	default:
	}
	onUpdate(items)
}
