// Copyright 2024 The PrivatePay Authors
// This file is part of the PrivatePay library.

// Package metrics keeps in-process counters for the payee scanning flow.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics is a point-in-time snapshot of the scan metrics
type Metrics struct {
	// Announcement metrics
	AnnouncementsScanned int64
	AnnouncementsInvalid int64

	// View hint metrics
	HintMatches        int64
	HintFalsePositives int64

	// Payment metrics
	PaymentsConfirmed int64
	PaymentsStored    int64

	// Scanner metrics
	ScannersRegistered int64
	LastScannedCursor  int64
	ScanTime           time.Duration
}

// Counter is an atomic counter
type Counter struct {
	value int64
}

// NewCounter creates a new counter
func NewCounter() *Counter {
	return &Counter{}
}

// Inc increments the counter
func (c *Counter) Inc() {
	atomic.AddInt64(&c.value, 1)
}

// Add adds a value to the counter
func (c *Counter) Add(n int64) {
	atomic.AddInt64(&c.value, n)
}

// Get returns the current value
func (c *Counter) Get() int64 {
	return atomic.LoadInt64(&c.value)
}

// Reset resets the counter
func (c *Counter) Reset() {
	atomic.StoreInt64(&c.value, 0)
}

// Gauge is an atomic gauge
type Gauge struct {
	value int64
}

// NewGauge creates a new gauge
func NewGauge() *Gauge {
	return &Gauge{}
}

// Set sets the gauge value
func (g *Gauge) Set(v int64) {
	atomic.StoreInt64(&g.value, v)
}

// Add moves the gauge by n, which may be negative
func (g *Gauge) Add(n int64) {
	atomic.AddInt64(&g.value, n)
}

// Get returns the current value
func (g *Gauge) Get() int64 {
	return atomic.LoadInt64(&g.value)
}

// Histogram tracks value distributions
type Histogram struct {
	mu     sync.RWMutex
	values []int64
	sum    int64
	count  int64
	min    int64
	max    int64
}

// NewHistogram creates a new histogram
func NewHistogram() *Histogram {
	return &Histogram{
		values: make([]int64, 0, 1000),
		min:    int64(^uint64(0) >> 1),
		max:    0,
	}
}

// Record records a value
func (h *Histogram) Record(v int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.values = append(h.values, v)
	h.sum += v
	h.count++

	if v < h.min {
		h.min = v
	}
	if v > h.max {
		h.max = v
	}

	// Keep only last 1000 values to limit memory
	if len(h.values) > 1000 {
		h.values = h.values[len(h.values)-1000:]
	}
}

// Mean returns the mean value
func (h *Histogram) Mean() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 {
		return 0
	}
	return float64(h.sum) / float64(h.count)
}

// Min returns the minimum value
func (h *Histogram) Min() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.min
}

// Max returns the maximum value
func (h *Histogram) Max() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.max
}

// Count returns the number of recorded values
func (h *Histogram) Count() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// MetricsRegistry holds all metrics
type MetricsRegistry struct {
	mu sync.RWMutex

	AnnouncementsScanned *Counter
	AnnouncementsInvalid *Counter
	HintMatches          *Counter
	HintFalsePositives   *Counter
	PaymentsConfirmed    *Counter
	PaymentsStored       *Counter
	ScannersRegistered   *Gauge
	LastScannedCursor    *Gauge
	ScanTime             *Histogram
}

// NewMetricsRegistry creates a new metrics registry
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		AnnouncementsScanned: NewCounter(),
		AnnouncementsInvalid: NewCounter(),
		HintMatches:          NewCounter(),
		HintFalsePositives:   NewCounter(),
		PaymentsConfirmed:    NewCounter(),
		PaymentsStored:       NewCounter(),
		ScannersRegistered:   NewGauge(),
		LastScannedCursor:    NewGauge(),
		ScanTime:             NewHistogram(),
	}
}

// GetMetrics returns a snapshot of current metrics
func (mr *MetricsRegistry) GetMetrics() *Metrics {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	return &Metrics{
		AnnouncementsScanned: mr.AnnouncementsScanned.Get(),
		AnnouncementsInvalid: mr.AnnouncementsInvalid.Get(),
		HintMatches:          mr.HintMatches.Get(),
		HintFalsePositives:   mr.HintFalsePositives.Get(),
		PaymentsConfirmed:    mr.PaymentsConfirmed.Get(),
		PaymentsStored:       mr.PaymentsStored.Get(),
		ScannersRegistered:   mr.ScannersRegistered.Get(),
		LastScannedCursor:    mr.LastScannedCursor.Get(),
		ScanTime:             time.Duration(mr.ScanTime.Mean()) * time.Microsecond,
	}
}

// Reset resets all counters
func (mr *MetricsRegistry) Reset() {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	mr.AnnouncementsScanned.Reset()
	mr.AnnouncementsInvalid.Reset()
	mr.HintMatches.Reset()
	mr.HintFalsePositives.Reset()
	mr.PaymentsConfirmed.Reset()
	mr.PaymentsStored.Reset()
}

// Global metrics registry
var globalRegistry = NewMetricsRegistry()

// GetGlobalRegistry returns the global metrics registry
func GetGlobalRegistry() *MetricsRegistry {
	return globalRegistry
}

// RecordScanTime records how long one batch scan took
func (mr *MetricsRegistry) RecordScanTime(duration time.Duration) {
	mr.ScanTime.Record(duration.Microseconds())
}
