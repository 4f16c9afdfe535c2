package metrics

import (
	"sync/atomic"
	"time"
)

type Collector struct {
	totalRequests   uint64
	errorRequests   uint64
	rateLimited     uint64
	totalDurationMs uint64

	importsTotal  uint64
	importsFailed uint64
	rowsAccepted  uint64
	rowsRejected  uint64
}

func New() *Collector {
	return &Collector{}
}

func (c *Collector) Record(status int, duration time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	if status == 429 {
		atomic.AddUint64(&c.rateLimited, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

// RecordImport counts one finished bulk import and its row outcome.
func (c *Collector) RecordImport(failed bool, accepted, rejected int) {
	atomic.AddUint64(&c.importsTotal, 1)
	if failed {
		atomic.AddUint64(&c.importsFailed, 1)
	}
	if accepted > 0 {
		atomic.AddUint64(&c.rowsAccepted, uint64(accepted))
	}
	if rejected > 0 {
		atomic.AddUint64(&c.rowsRejected, uint64(rejected))
	}
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}
	return map[string]any{
		"requestsTotal":      total,
		"errorsTotal":        atomic.LoadUint64(&c.errorRequests),
		"rateLimitedTotal":   atomic.LoadUint64(&c.rateLimited),
		"avgDurationMs":      avg,
		"totalDurationMs":    totalMs,
		"importsTotal":       atomic.LoadUint64(&c.importsTotal),
		"importsFailedTotal": atomic.LoadUint64(&c.importsFailed),
		"importRowsAccepted": atomic.LoadUint64(&c.rowsAccepted),
		"importRowsRejected": atomic.LoadUint64(&c.rowsRejected),
	}
}
