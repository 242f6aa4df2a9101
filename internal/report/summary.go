package report

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"
)

// EndpointSummary is one endpoint's aggregate metrics in summary.json.
type EndpointSummary struct {
	Name        string  `json:"name"`
	Requests    int64   `json:"requests"`
	Failures    int64   `json:"failures"`
	FailureRate float64 `json:"failure_rate"`
	Avg         float64 `json:"avg_response_time"`
	Median      float64 `json:"median_response_time"`
	P95         float64 `json:"p95_response_time"`
	P99         float64 `json:"p99_response_time"`
	Max         float64 `json:"max_response_time"`
	RPS         float64 `json:"rps"`
}

// HistoryBlock carries the time-series columns for trend inspection.
type HistoryBlock struct {
	Timestamps []string  `json:"timestamps"`
	Users      []int     `json:"users"`
	RPS        []float64 `json:"rps"`
	Failures   []int64   `json:"failures"`
}

// Summary is the summary.json document.
type Summary struct {
	Timestamp          string            `json:"timestamp"`
	TotalRequests      int64             `json:"total_requests"`
	TotalFailures      int64             `json:"total_failures"`
	FailureRate        float64           `json:"failure_rate"`
	AvgResponseTime    float64           `json:"avg_response_time"`
	MedianResponseTime float64           `json:"median_response_time"`
	P95ResponseTime    float64           `json:"p95_response_time"`
	P99ResponseTime    float64           `json:"p99_response_time"`
	MaxResponseTime    float64           `json:"max_response_time"`
	TotalRPS           float64           `json:"total_rps"`
	Endpoints          []EndpointSummary `json:"endpoints"`
	History            *HistoryBlock     `json:"history,omitempty"`
}

// BuildSummary aggregates parsed stats rows into the summary document.
// Overall figures come from the Aggregated row when present; otherwise
// counts and RPS are summed over endpoint rows, latency figures are
// unweighted means across endpoints (max of maxes for the maximum).
// The endpoints list always excludes the Aggregated row. history may
// be nil.
func BuildSummary(rows []StatsRow, history []HistoryPoint, now time.Time) *Summary {
	s := &Summary{
		Timestamp: now.UTC().Format(time.RFC3339),
		Endpoints: []EndpointSummary{},
	}

	var agg *StatsRow
	var avgs, medians, p95s, p99s []float64
	for i := range rows {
		row := rows[i]
		if row.Name == "Aggregated" {
			agg = &rows[i]
			continue
		}
		ep := EndpointSummary{
			Name:     row.Name,
			Requests: row.RequestCount,
			Failures: row.FailureCount,
			Avg:      round2(row.AvgMS),
			Median:   round2(row.MedianMS),
			P95:      round2(row.P95MS),
			P99:      round2(row.P99MS),
			Max:      round2(row.MaxMS),
			RPS:      round2(row.RPS),
		}
		if row.RequestCount > 0 {
			ep.FailureRate = round2(float64(row.FailureCount) / float64(row.RequestCount) * 100)
		}
		s.Endpoints = append(s.Endpoints, ep)

		s.TotalRequests += row.RequestCount
		s.TotalFailures += row.FailureCount
		s.TotalRPS += row.RPS
		if row.MaxMS > s.MaxResponseTime {
			s.MaxResponseTime = row.MaxMS
		}
		avgs = append(avgs, row.AvgMS)
		medians = append(medians, row.MedianMS)
		p95s = append(p95s, row.P95MS)
		p99s = append(p99s, row.P99MS)
	}

	s.AvgResponseTime = mean(avgs)
	s.MedianResponseTime = mean(medians)
	s.P95ResponseTime = mean(p95s)
	s.P99ResponseTime = mean(p99s)

	if agg != nil {
		s.TotalRequests = agg.RequestCount
		s.TotalFailures = agg.FailureCount
		s.TotalRPS = agg.RPS
		s.AvgResponseTime = agg.AvgMS
		s.MedianResponseTime = agg.MedianMS
		s.P95ResponseTime = agg.P95MS
		s.P99ResponseTime = agg.P99MS
		s.MaxResponseTime = agg.MaxMS
	}

	if s.TotalRequests > 0 {
		s.FailureRate = round2(float64(s.TotalFailures) / float64(s.TotalRequests) * 100)
	}
	s.AvgResponseTime = round2(s.AvgResponseTime)
	s.MedianResponseTime = round2(s.MedianResponseTime)
	s.P95ResponseTime = round2(s.P95ResponseTime)
	s.P99ResponseTime = round2(s.P99ResponseTime)
	s.MaxResponseTime = round2(s.MaxResponseTime)
	s.TotalRPS = round2(s.TotalRPS)

	if len(history) > 0 {
		h := &HistoryBlock{}
		for _, pt := range history {
			h.Timestamps = append(h.Timestamps, pt.Timestamp)
			h.Users = append(h.Users, pt.UserCount)
			h.RPS = append(h.RPS, round2(pt.TotalRPS))
			h.Failures = append(h.Failures, pt.TotalFailures)
		}
		s.History = h
	}
	return s
}

// WriteSummary writes the document as indented JSON. Field order is
// fixed by the struct, so identical inputs produce identical bytes
// apart from the timestamp.
func (s *Summary) WriteSummary(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
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
