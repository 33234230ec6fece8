package netsched

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// rateWindow counts dispatches inside a sliding time span. The batch
// scheduler consults it before every flush to enforce the per-minute limit.
type rateWindow struct {
	mu    sync.Mutex
	clk   clock.Clock
	span  time.Duration
	times []time.Time
}

func newRateWindow(clk clock.Clock, span time.Duration) *rateWindow {
	return &rateWindow{clk: clk, span: span}
}

// Record counts one dispatch against the window.
func (w *rateWindow) Record() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune()
	w.times = append(w.times, w.clk.Now())
}

// Count returns the number of dispatches still inside the window.
func (w *rateWindow) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune()
	return len(w.times)
}

func (w *rateWindow) prune() {
	cutoff := w.clk.Now().Add(-w.span)
	i := 0
	for i < len(w.times) && !w.times[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.times = append(w.times[:0], w.times[i:]...)
	}
}

// adjustedRateLimit scales the base per-minute request limit down on poorer
// links, mirroring the batch-size scaling.
func adjustedRateLimit(base int, state ConnectivityState) int {
	if !state.Connected {
		return 0
	}
	var limit int
	switch state.Type {
	case ConnectionWifi:
		limit = base
	case Connection4G, ConnectionCellular:
		limit = base * 3 / 4
	case Connection3G:
		limit = base / 2
	case Connection2G:
		limit = base / 4
	default:
		limit = base / 2
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// optimalBatchSize computes how many pending entries one flush may dispatch
// for the given connection: full maximum on wifi, 75% on 4g/cellular, 50% on
// 3g, a single request on 2g and 50% when the link type is unknown.
func optimalBatchSize(max int, state ConnectivityState) int {
	if max < 1 {
		max = 1
	}
	var size int
	switch state.Type {
	case ConnectionWifi:
		size = max
	case Connection4G, ConnectionCellular:
		size = max * 3 / 4
	case Connection3G:
		size = max / 2
	case Connection2G:
		return 1
	default:
		size = max / 2
	}
	if size < 1 {
		size = 1
	}
	return size
}
