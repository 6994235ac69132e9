// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Failures  int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Payload metrics (only for uploads)
	TotalBytes  int64
	MaxBytes    int64
	TotalChunks int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64
	Failures    int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64

	// Payload stats (nil if not applicable)
	TotalBytes  *int64
	MaxBytes    *int64
	TotalChunks *int64
}

// Snapshot represents the client statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64
	Upload        *OperationSnapshot
	Chat          *OperationSnapshot
	Quiz          *OperationSnapshot
	Flashcards    *OperationSnapshot
	List          *OperationSnapshot
	Select        *OperationSnapshot
	AutoName      *OperationSnapshot
}

// Operation names for the collector.
const (
	OpUpload     = "upload"
	OpChat       = "chat"
	OpQuiz       = "quiz"
	OpFlashcards = "flashcards"
	OpList       = "list"
	OpSelect     = "select"
	OpAutoName   = "autoname"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe and safe to call on a nil *Collector.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

// record updates timing under the write lock. Caller must hold write lock.
func (m *OperationMetrics) record(duration time.Duration, failed bool) {
	m.Count++
	m.TotalTime += duration
	if failed {
		m.Failures++
	}

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordTiming records a successful operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.Record(op, duration, nil)
}

// Record records an operation; a non-nil err counts as a failure.
func (c *Collector) Record(op string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.getOrCreate(op).record(duration, err != nil)
}

// RecordUpload records a completed upload with its payload size and the
// number of chunks the backend produced.
func (c *Collector) RecordUpload(duration time.Duration, bytes int64, chunks int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(OpUpload)
	m.record(duration, false)
	m.TotalBytes += bytes
	m.TotalChunks += int64(chunks)
	if bytes > m.MaxBytes {
		m.MaxBytes = bytes
	}
}

// Track starts timing op; call the returned function with the outcome.
func (c *Collector) Track(op string) func(err error) {
	start := time.Now()
	return func(err error) {
		c.Record(op, time.Since(start), err)
	}
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics, includePayload bool) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.Count,
		Failures:    m.Failures,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}

	if includePayload && m.TotalBytes > 0 {
		totalBytes := m.TotalBytes
		maxBytes := m.MaxBytes
		chunks := m.TotalChunks

		snap.TotalBytes = &totalBytes
		snap.MaxBytes = &maxBytes
		snap.TotalChunks = &chunks
	}

	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Upload:        snapshotOp(c.ops[OpUpload], true),
		Chat:          snapshotOp(c.ops[OpChat], false),
		Quiz:          snapshotOp(c.ops[OpQuiz], false),
		Flashcards:    snapshotOp(c.ops[OpFlashcards], false),
		List:          snapshotOp(c.ops[OpList], false),
		Select:        snapshotOp(c.ops[OpSelect], false),
		AutoName:      snapshotOp(c.ops[OpAutoName], false),
	}
}
