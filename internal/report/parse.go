// Package report turns run CSVs into a summary JSON and PNG charts.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// StatsRow is one parsed line of the stats CSV.
type StatsRow struct {
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

// HistoryPoint is one parsed line of the stats-history CSV.
type HistoryPoint struct {
	Timestamp     string
	UserCount     int
	TotalRPS      float64
	AvgMS         float64
	MedianMS      float64
	TotalFailures int64
}

// columns finds each required header in the CSV header row. Extra
// columns are ignored so richer exports still parse.
func columns(header []string, required []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	for _, name := range required {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	return idx, nil
}

func readRows(path string) ([]string, [][]string, error) {
	f, err := os.Open(path) // #nosec G304 - operator-supplied path
	if err != nil {
		return nil, nil, err
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("empty csv")
	}
	return rows[0], rows[1:], nil
}

// ReadStats parses a Locust-format stats CSV.
func ReadStats(path string) ([]StatsRow, error) {
	header, body, err := readRows(path)
	if err != nil {
		return nil, fmt.Errorf("read stats csv %s: %w", path, err)
	}
	idx, err := columns(header, []string{
		"Name", "Request Count", "Failure Count", "Average Response Time",
		"Median Response Time", "95%", "99%", "Max Response Time", "Requests/s",
	})
	if err != nil {
		return nil, fmt.Errorf("stats csv %s: %w", path, err)
	}

	rows := make([]StatsRow, 0, len(body))
	for i, rec := range body {
		p := fieldParser{record: rec, line: i + 2}
		row := StatsRow{
			Name:         rec[idx["Name"]],
			RequestCount: p.int64At(idx["Request Count"]),
			FailureCount: p.int64At(idx["Failure Count"]),
			AvgMS:        p.floatAt(idx["Average Response Time"]),
			MedianMS:     p.floatAt(idx["Median Response Time"]),
			P95MS:        p.floatAt(idx["95%"]),
			P99MS:        p.floatAt(idx["99%"]),
			MaxMS:        p.floatAt(idx["Max Response Time"]),
			RPS:          p.floatAt(idx["Requests/s"]),
		}
		if p.err != nil {
			return nil, fmt.Errorf("stats csv %s: %w", path, p.err)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("stats csv %s: no data rows", path)
	}
	return rows, nil
}

// ReadHistory parses a Locust-format stats-history CSV.
func ReadHistory(path string) ([]HistoryPoint, error) {
	header, body, err := readRows(path)
	if err != nil {
		return nil, fmt.Errorf("read history csv %s: %w", path, err)
	}
	idx, err := columns(header, []string{
		"Timestamp", "User Count", "Total RPS",
		"Average Response Time", "Median Response Time", "Total Failures",
	})
	if err != nil {
		return nil, fmt.Errorf("history csv %s: %w", path, err)
	}

	points := make([]HistoryPoint, 0, len(body))
	for i, rec := range body {
		p := fieldParser{record: rec, line: i + 2}
		pt := HistoryPoint{
			Timestamp:     rec[idx["Timestamp"]],
			UserCount:     int(p.int64At(idx["User Count"])),
			TotalRPS:      p.floatAt(idx["Total RPS"]),
			AvgMS:         p.floatAt(idx["Average Response Time"]),
			MedianMS:      p.floatAt(idx["Median Response Time"]),
			TotalFailures: p.int64At(idx["Total Failures"]),
		}
		if p.err != nil {
			return nil, fmt.Errorf("history csv %s: %w", path, p.err)
		}
		points = append(points, pt)
	}
	return points, nil
}

// ReadDistribution parses the single-column response-time CSV.
func ReadDistribution(path string) ([]float64, error) {
	header, body, err := readRows(path)
	if err != nil {
		return nil, fmt.Errorf("read distribution csv %s: %w", path, err)
	}
	idx, err := columns(header, []string{"Response Time"})
	if err != nil {
		return nil, fmt.Errorf("distribution csv %s: %w", path, err)
	}

	values := make([]float64, 0, len(body))
	for i, rec := range body {
		p := fieldParser{record: rec, line: i + 2}
		v := p.floatAt(idx["Response Time"])
		if p.err != nil {
			return nil, fmt.Errorf("distribution csv %s: %w", path, p.err)
		}
		values = append(values, v)
	}
	return values, nil
}

// fieldParser accumulates the first parse error across a record.
type fieldParser struct {
	record []string
	line   int
	err    error
}

func (p *fieldParser) floatAt(i int) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(p.record[i], 64)
	if err != nil {
		p.err = fmt.Errorf("line %d: %w", p.line, err)
		return 0
	}
	return v
}

func (p *fieldParser) int64At(i int) int64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseInt(p.record[i], 10, 64)
	if err != nil {
		p.err = fmt.Errorf("line %d: %w", p.line, err)
		return 0
	}
	return v
}
