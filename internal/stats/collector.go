// Package stats aggregates per-request events from the load drivers
// into Locust-compatible CSV artifacts, a Prometheus registry, and a
// live snapshot for the status server.
package stats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/opensaves/savesbench/internal/client"
)

// VerificationMethod labels synthetic failure events in stats output,
// distinguishing them from HTTP-level failures.
const VerificationMethod = "VERIFICATION"

// entry accumulates stats for one templated request name.
type entry struct {
	method    string
	count     int64
	failures  int64
	sumMS     float64
	minMS     float64
	maxMS     float64
	latencies []float64 // milliseconds, arrival order
}

// HistoryRow is one per-second snapshot of the running test.
type HistoryRow struct {
	Timestamp     int64
	UserCount     int
	TotalRPS      float64
	AvgResponseMS float64
	MedResponseMS float64
	TotalFailures int64
}

// Option configures a Collector.
type Option func(*Collector)

// WithMetrics mirrors every event into a Prometheus registry.
func WithMetrics(m *Metrics) Option {
	return func(c *Collector) { c.metrics = m }
}

// WithRequestLog appends every request event to a snappy-framed log.
func WithRequestLog(l *RequestLog) Option {
	return func(c *Collector) { c.reqLog = l }
}

// Collector aggregates request and verification events. It is safe for
// concurrent use by all simulated-user goroutines.
type Collector struct {
	logger  *zap.Logger
	metrics *Metrics
	reqLog  *RequestLog

	activeUsers atomic.Int64

	mu          sync.Mutex
	entries     map[string]*entry
	history     []HistoryRow
	start       time.Time
	end         time.Time
	windowCount int64     // requests since last snapshot
	windowMS    []float64 // latencies since last snapshot
}

// NewCollector creates a collector; the run clock starts now.
func NewCollector(logger *zap.Logger, opts ...Option) *Collector {
	c := &Collector{
		logger:  logger,
		entries: make(map[string]*entry),
		start:   time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request records one completed HTTP call. Satisfies client.Observer.
func (c *Collector) Request(s client.RequestStat) {
	ms := float64(s.Duration.Microseconds()) / 1000

	c.mu.Lock()
	e := c.entry(s.Name, s.Method)
	e.count++
	e.sumMS += ms
	if e.count == 1 || ms < e.minMS {
		e.minMS = ms
	}
	if ms > e.maxMS {
		e.maxMS = ms
	}
	e.latencies = append(e.latencies, ms)
	if s.Err != nil {
		e.failures++
	}
	c.windowCount++
	c.windowMS = append(c.windowMS, ms)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ObserveRequest(s)
	}
	if c.reqLog != nil {
		if err := c.reqLog.Record(s); err != nil {
			c.logger.Warn("request log write failed", zap.Error(err))
		}
	}
}

// Verification records one synthetic failure event. Satisfies the
// drivers' Reporter contract.
func (c *Collector) Verification(check, message string) {
	c.logger.Warn("verification failure",
		zap.String("check", check),
		zap.String("message", message))

	c.mu.Lock()
	e := c.entry(check, VerificationMethod)
	e.count++
	e.failures++
	e.latencies = append(e.latencies, 0)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ObserveVerification(check)
	}
}

// entry must be called with c.mu held.
func (c *Collector) entry(name, method string) *entry {
	e, ok := c.entries[name]
	if !ok {
		e = &entry{method: method}
		c.entries[name] = e
	}
	return e
}

// SetActiveUsers updates the live user gauge.
func (c *Collector) SetActiveUsers(n int) {
	c.activeUsers.Store(int64(n))
	if c.metrics != nil {
		c.metrics.SetActiveUsers(n)
	}
}

// ActiveUsers returns the current user count.
func (c *Collector) ActiveUsers() int {
	return int(c.activeUsers.Load())
}

// TakeSnapshot appends one history row covering the window since the
// previous snapshot. The runner calls this once per second.
func (c *Collector) TakeSnapshot(now time.Time, interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	row := HistoryRow{
		Timestamp: now.Unix(),
		UserCount: int(c.activeUsers.Load()),
	}
	if secs := interval.Seconds(); secs > 0 {
		row.TotalRPS = float64(c.windowCount) / secs
	}
	if len(c.windowMS) > 0 {
		row.AvgResponseMS = mean(c.windowMS)
		row.MedResponseMS = percentile(c.windowMS, 50)
	} else if n := len(c.history); n > 0 {
		// Idle window: carry the previous response times forward.
		row.AvgResponseMS = c.history[n-1].AvgResponseMS
		row.MedResponseMS = c.history[n-1].MedResponseMS
	}
	for _, e := range c.entries {
		row.TotalFailures += e.failures
	}

	c.history = append(c.history, row)
	c.windowCount = 0
	c.windowMS = c.windowMS[:0]
}

// Stop freezes the run clock so RPS figures stop decaying after the
// test ends.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.end.IsZero() {
		c.end = time.Now()
	}
}

func (c *Collector) elapsed() time.Duration {
	if !c.end.IsZero() {
		return c.end.Sub(c.start)
	}
	return time.Since(c.start)
}

// Row is one aggregated stats line, in the shape of the stats CSV.
type Row struct {
	Name         string
	RequestCount int64
	FailureCount int64
	AvgMS        float64
	MedianMS     float64
	P95MS        float64
	P99MS        float64
	MaxMS        float64
	RPS          float64
}

// Rows returns per-name rows sorted by name, plus the Aggregated row
// last.
func (c *Collector) Rows() []Row {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := c.elapsed().Seconds()

	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var all []float64
	agg := Row{Name: "Aggregated"}

	rows := make([]Row, 0, len(names)+1)
	for _, name := range names {
		e := c.entries[name]
		row := Row{
			Name:         name,
			RequestCount: e.count,
			FailureCount: e.failures,
			MedianMS:     percentile(e.latencies, 50),
			P95MS:        percentile(e.latencies, 95),
			P99MS:        percentile(e.latencies, 99),
			MaxMS:        e.maxMS,
		}
		if e.count > 0 {
			row.AvgMS = e.sumMS / float64(e.count)
		}
		if elapsed > 0 {
			row.RPS = float64(e.count) / elapsed
		}
		rows = append(rows, row)

		agg.RequestCount += e.count
		agg.FailureCount += e.failures
		all = append(all, e.latencies...)
		if e.maxMS > agg.MaxMS {
			agg.MaxMS = e.maxMS
		}
	}

	if agg.RequestCount > 0 {
		agg.AvgMS = mean(all)
		agg.MedianMS = percentile(all, 50)
		agg.P95MS = percentile(all, 95)
		agg.P99MS = percentile(all, 99)
	}
	if elapsed > 0 {
		agg.RPS = float64(agg.RequestCount) / elapsed
	}
	return append(rows, agg)
}

// History returns a copy of the snapshot rows taken so far.
func (c *Collector) History() []HistoryRow {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]HistoryRow, len(c.history))
	copy(out, c.history)
	return out
}

// Latencies returns every recorded response time in milliseconds,
// grouped by name order. Feeds the distribution CSV.
func (c *Collector) Latencies() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []float64
	for _, name := range names {
		out = append(out, c.entries[name].latencies...)
	}
	return out
}

// Snapshot is the live view served by the status endpoint.
type Snapshot struct {
	ElapsedSeconds float64       `json:"elapsed_seconds"`
	ActiveUsers    int           `json:"active_users"`
	TotalRequests  int64         `json:"total_requests"`
	TotalFailures  int64         `json:"total_failures"`
	CurrentRPS     float64       `json:"current_rps"`
	TopEndpoints   []EndpointTop `json:"top_endpoints"`
}

// EndpointTop summarizes one endpoint for the live view.
type EndpointTop struct {
	Name     string  `json:"name"`
	Requests int64   `json:"requests"`
	Failures int64   `json:"failures"`
	AvgMS    float64 `json:"avg_response_ms"`
}

// Live builds the current snapshot, listing up to five busiest
// endpoints.
func (c *Collector) Live() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		ElapsedSeconds: c.elapsed().Seconds(),
		ActiveUsers:    int(c.activeUsers.Load()),
	}

	tops := make([]EndpointTop, 0, len(c.entries))
	for name, e := range c.entries {
		snap.TotalRequests += e.count
		snap.TotalFailures += e.failures
		top := EndpointTop{Name: name, Requests: e.count, Failures: e.failures}
		if e.count > 0 {
			top.AvgMS = e.sumMS / float64(e.count)
		}
		tops = append(tops, top)
	}
	if snap.ElapsedSeconds > 0 {
		snap.CurrentRPS = float64(snap.TotalRequests) / snap.ElapsedSeconds
	}

	sort.Slice(tops, func(i, j int) bool {
		if tops[i].Requests != tops[j].Requests {
			return tops[i].Requests > tops[j].Requests
		}
		return tops[i].Name < tops[j].Name
	})
	if len(tops) > 5 {
		tops = tops[:5]
	}
	snap.TopEndpoints = tops
	return snap
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// percentile returns the p-th percentile of values without modifying
// the input slice.
func percentile(values []float64, p int) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
