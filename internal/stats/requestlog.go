package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang/snappy"

	"github.com/opensaves/savesbench/internal/client"
)

// RequestLog appends one JSON line per request event to a
// snappy-framed file, for offline debugging of individual calls.
type RequestLog struct {
	mu sync.Mutex
	f  *os.File
	w  *snappy.Writer
}

type requestLogLine struct {
	Method        string    `json:"method"`
	Name          string    `json:"name"`
	Start         time.Time `json:"start"`
	DurationMS    float64   `json:"duration_ms"`
	StatusCode    int       `json:"status_code,omitempty"`
	ContentLength int64     `json:"content_length,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// OpenRequestLog creates (or truncates) the log file at path.
func OpenRequestLog(path string) (*RequestLog, error) {
	f, err := os.Create(path) // #nosec G304 - operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("create request log: %w", err)
	}
	return &RequestLog{
		f: f,
		w: snappy.NewBufferedWriter(f),
	}, nil
}

// Record appends one event.
func (l *RequestLog) Record(s client.RequestStat) error {
	line := requestLogLine{
		Method:        s.Method,
		Name:          s.Name,
		Start:         s.Start,
		DurationMS:    float64(s.Duration.Microseconds()) / 1000,
		StatusCode:    s.StatusCode,
		ContentLength: s.ContentLength,
	}
	if s.Err != nil {
		line.Error = s.Err.Error()
	}

	data, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("encode log line: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(data); err != nil {
		return fmt.Errorf("write log line: %w", err)
	}
	return nil
}

// Close flushes the snappy frames and closes the file.
func (l *RequestLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Close(); err != nil {
		_ = l.f.Close()
		return fmt.Errorf("close request log: %w", err)
	}
	return l.f.Close()
}
