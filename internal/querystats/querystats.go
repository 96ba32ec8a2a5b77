// Package querystats keeps per-report latency distributions for the /stats
// endpoint.
package querystats

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/judyrop/storefront-analytics/internal/analytics"
)

// Latencies are recorded in microseconds up to one minute.
const (
	minValue    = 1
	maxValue    = int64(time.Minute / time.Microsecond)
	sigFigures  = 3
	usPerMillis = 1000.0
)

type Summary struct {
	Kind   string  `json:"kind"`
	Count  int64   `json:"count"`
	Errors int64   `json:"errors"`
	MeanMs float64 `json:"mean_ms"`
	P50Ms  float64 `json:"p50_ms"`
	P95Ms  float64 `json:"p95_ms"`
	P99Ms  float64 `json:"p99_ms"`
	MaxMs  float64 `json:"max_ms"`
}

type entry struct {
	hist   *hdrhistogram.Histogram
	errors int64
}

// Recorder is an analytics.Observer. Unrecognized queries are not recorded.
type Recorder struct {
	mu    sync.Mutex
	kinds map[analytics.Kind]*entry
}

func NewRecorder() *Recorder {
	return &Recorder{kinds: make(map[analytics.Kind]*entry)}
}

func (r *Recorder) ObserveQuery(_ context.Context, ev analytics.QueryEvent) {
	if ev.Outcome == analytics.OutcomeUnrecognized {
		return
	}
	us := ev.Duration.Microseconds()
	if us < minValue {
		us = minValue
	}
	if us > maxValue {
		us = maxValue
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.kinds[ev.Kind]
	if !ok {
		e = &entry{hist: hdrhistogram.New(minValue, maxValue, sigFigures)}
		r.kinds[ev.Kind] = e
	}
	if ev.Outcome == analytics.OutcomeError {
		e.errors++
	}
	_ = e.hist.RecordValue(us)
}

// Snapshot returns one summary per kind seen so far, sorted by kind.
func (r *Recorder) Snapshot() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Summary, 0, len(r.kinds))
	for kind, e := range r.kinds {
		h := e.hist
		out = append(out, Summary{
			Kind:   string(kind),
			Count:  h.TotalCount(),
			Errors: e.errors,
			MeanMs: h.Mean() / usPerMillis,
			P50Ms:  float64(h.ValueAtQuantile(50)) / usPerMillis,
			P95Ms:  float64(h.ValueAtQuantile(95)) / usPerMillis,
			P99Ms:  float64(h.ValueAtQuantile(99)) / usPerMillis,
			MaxMs:  float64(h.Max()) / usPerMillis,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = make(map[analytics.Kind]*entry)
}
