// Package metrics keeps marketbot's turn, fallback and provider metrics and
// serves them in the Prometheus text format.
package metrics

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
)

// Default backs the package level helpers and the /metrics route.
var Default = NewRegistry()

type kind string

const (
	kindCounter   kind = "counter"
	kindGauge     kind = "gauge"
	kindHistogram kind = "histogram"
)

// family is every series sharing one metric name, keyed by label set.
type family struct {
	help   string
	kind   kind
	series map[string]any
}

// Registry holds metric families by name.
type Registry struct {
	mu       sync.Mutex
	families map[string]*family
}

func NewRegistry() *Registry {
	return &Registry{families: map[string]*family{}}
}

// series returns the series for name and labels, creating it with mk on
// first use. Reusing a name with another kind panics.
func (r *Registry) series(name, help, labels string, k kind, mk func() any) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.families[name]
	if !ok {
		f = &family{help: help, kind: k, series: map[string]any{}}
		r.families[name] = f
	}
	if f.kind != k {
		panic(fmt.Sprintf("metrics: %s registered as %s, requested as %s", name, f.kind, k))
	}
	s, ok := f.series[labels]
	if !ok {
		s = mk()
		f.series[labels] = s
	}
	return s
}

type Counter struct{ n atomic.Int64 }

func (c *Counter) Inc()         { c.n.Add(1) }
func (c *Counter) Value() int64 { return c.n.Load() }

type Gauge struct{ n atomic.Int64 }

func (g *Gauge) Inc()         { g.n.Add(1) }
func (g *Gauge) Dec()         { g.n.Add(-1) }
func (g *Gauge) Value() int64 { return g.n.Load() }

// Histogram counts observations into cumulative upper bounds. A +Inf
// bound is always present.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	counts []int64
	sum    float64
	total  int64
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.total++
	h.sum += v
	for i, b := range h.bounds {
		if v <= b {
			h.counts[i]++
		}
	}
}

// Counter returns the counter for name and labels. labels is the rendered
// label list without braces, e.g. `pipeline="text"`.
func (r *Registry) Counter(name, help, labels string) *Counter {
	return r.series(name, help, labels, kindCounter, func() any { return &Counter{} }).(*Counter)
}

func (r *Registry) Gauge(name, help, labels string) *Gauge {
	return r.series(name, help, labels, kindGauge, func() any { return &Gauge{} }).(*Gauge)
}

func (r *Registry) Histogram(name, help, labels string, bounds []float64) *Histogram {
	return r.series(name, help, labels, kindHistogram, func() any {
		b := slices.Clone(bounds)
		slices.Sort(b)
		if len(b) == 0 || !math.IsInf(b[len(b)-1], 1) {
			b = append(b, math.Inf(1))
		}
		return &Histogram{bounds: b, counts: make([]int64, len(b))}
	}).(*Histogram)
}

// WriteTo renders every family, sorted by name and then by label set.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	r.mu.Lock()
	names := make([]string, 0, len(r.families))
	for name := range r.families {
		names = append(names, name)
	}
	slices.Sort(names)
	type snapshot struct {
		name string
		f    family
	}
	snaps := make([]snapshot, 0, len(names))
	for _, name := range names {
		f := r.families[name]
		cp := *f
		cp.series = make(map[string]any, len(f.series))
		for k, v := range f.series {
			cp.series[k] = v
		}
		snaps = append(snaps, snapshot{name, cp})
	}
	r.mu.Unlock()

	cw := &countingWriter{w: w}
	bw := bufio.NewWriter(cw)
	for _, s := range snaps {
		fmt.Fprintf(bw, "# HELP %s %s\n# TYPE %s %s\n", s.name, s.f.help, s.name, s.f.kind)
		labelSets := make([]string, 0, len(s.f.series))
		for l := range s.f.series {
			labelSets = append(labelSets, l)
		}
		slices.Sort(labelSets)
		for _, labels := range labelSets {
			switch m := s.f.series[labels].(type) {
			case *Counter:
				fmt.Fprintf(bw, "%s%s %d\n", s.name, braced(labels), m.Value())
			case *Gauge:
				fmt.Fprintf(bw, "%s%s %d\n", s.name, braced(labels), m.Value())
			case *Histogram:
				writeHistogram(bw, s.name, labels, m)
			}
		}
	}
	err := bw.Flush()
	return cw.n, err
}

func writeHistogram(w io.Writer, name, labels string, h *Histogram) {
	h.mu.Lock()
	defer h.mu.Unlock()
	prefix := ""
	if labels != "" {
		prefix = labels + ","
	}
	for i, b := range h.bounds {
		le := "+Inf"
		if !math.IsInf(b, 1) {
			le = strconv.FormatFloat(b, 'g', -1, 64)
		}
		fmt.Fprintf(w, "%s_bucket{%sle=%q} %d\n", name, prefix, le, h.counts[i])
	}
	fmt.Fprintf(w, "%s_sum%s %g\n", name, braced(labels), h.sum)
	fmt.Fprintf(w, "%s_count%s %d\n", name, braced(labels), h.total)
}

func braced(labels string) string {
	if labels == "" {
		return ""
	}
	return "{" + labels + "}"
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WriteTo(w)
	}
}

var (
	ActiveChannels = Default.Gauge("marketbot_active_channels", "Channels currently accepting messages", "")
	FailedTurns    = Default.Counter("marketbot_failed_turns_total", "Turns answered with the generic apology", "")

	ProviderLatency = Default.Histogram("marketbot_provider_latency_seconds", "Remote AI provider call latency in seconds", "",
		[]float64{0.25, 0.5, 1, 2, 5, 10, 30, 60})
)

// MessageProcessed counts one inbound turn by message type and intent.
func MessageProcessed(messageType, intent string) {
	Default.Counter("marketbot_messages_total", "Inbound messages processed",
		fmt.Sprintf("type=%q,intent=%q", messageType, intent)).Inc()
}

// StageOutcome counts one attempt of a fallback-chain stage.
// pipeline is "text", "speech" or "vision".
func StageOutcome(pipeline, stage, outcome string) {
	Default.Counter("marketbot_stage_attempts_total", "Fallback chain stage attempts by outcome",
		fmt.Sprintf("pipeline=%q,stage=%q,outcome=%q", pipeline, stage, outcome)).Inc()
}

// Fallback counts replies served by the local responder or demo content.
func Fallback(pipeline string) {
	Default.Counter("marketbot_fallbacks_total", "Replies served without a remote provider",
		fmt.Sprintf("pipeline=%q", pipeline)).Inc()
}
