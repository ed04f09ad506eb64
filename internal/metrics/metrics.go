package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Metrics aggregates bus and API counters.
type Metrics struct {
	// Bus metrics
	TotalOperations int64 `json:"total_operations"`
	Timeouts        int64 `json:"timeouts"`
	ChecksumErrors  int64 `json:"checksum_errors"`
	ParseErrors     int64 `json:"parse_errors"`
	StatusErrors    int64 `json:"status_errors"`

	// System metrics
	Uptime         int64  `json:"uptime_seconds"`
	MemoryUsed     uint64 `json:"memory_used_bytes"`
	GoroutineCount int    `json:"goroutine_count"`

	// API metrics
	TotalRequests   int64   `json:"total_requests"`
	TotalErrors     int64   `json:"total_errors"`
	AvgResponseTime float64 `json:"avg_response_time_ms"`

	mu        sync.RWMutex
	startTime time.Time
}

// NewMetrics creates a Metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// RecordOperation counts one bus operation.
func (m *Metrics) RecordOperation() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalOperations++
}

// RecordTimeout counts one receive timeout.
func (m *Metrics) RecordTimeout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Timeouts++
}

// RecordChecksumError counts one CRC mismatch.
func (m *Metrics) RecordChecksumError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChecksumErrors++
}

// RecordParseError counts one malformed status frame.
func (m *Metrics) RecordParseError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ParseErrors++
}

// RecordStatusError counts one servo-reported error.
func (m *Metrics) RecordStatusError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StatusErrors++
}

// IncrementRequests counts one API request.
func (m *Metrics) IncrementRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalRequests++
}

// IncrementErrors counts one failed API request.
func (m *Metrics) IncrementErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalErrors++
}

// RecordResponseTime folds one request duration into the moving average.
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms := float64(duration.Milliseconds())
	if m.AvgResponseTime == 0 {
		m.AvgResponseTime = ms
	} else {
		m.AvgResponseTime = (m.AvgResponseTime * 0.9) + (ms * 0.1)
	}
}

// Snapshot returns a copy with the system gauges refreshed.
func (m *Metrics) Snapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return Metrics{
		TotalOperations: m.TotalOperations,
		Timeouts:        m.Timeouts,
		ChecksumErrors:  m.ChecksumErrors,
		ParseErrors:     m.ParseErrors,
		StatusErrors:    m.StatusErrors,
		Uptime:          int64(time.Since(m.startTime).Seconds()),
		MemoryUsed:      memStats.Alloc,
		GoroutineCount:  runtime.NumGoroutine(),
		TotalRequests:   m.TotalRequests,
		TotalErrors:     m.TotalErrors,
		AvgResponseTime: m.AvgResponseTime,
	}
}

// Handler serves the snapshot as JSON.
func (m *Metrics) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(m.Snapshot())
	}
}

// Middleware counts requests, errors and response times.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		m.IncrementRequests()
		m.RecordResponseTime(time.Since(start))
		if err != nil || c.Response().StatusCode() >= 400 {
			m.IncrementErrors()
		}
		return err
	}
}
