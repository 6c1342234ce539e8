package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	runStartedTotal   atomic.Uint64
	runCompletedTotal atomic.Uint64
	runFailedTotal    atomic.Uint64
	runCancelledTotal atomic.Uint64

	agentAttemptTotal atomic.Uint64
	agentFailedTotal  atomic.Uint64

	jobReceivedTotal             atomic.Uint64
	jobCompletedTotal            atomic.Uint64
	jobFailedTotal               atomic.Uint64
	jobDeletedUnrecoverableTotal atomic.Uint64

	runDuration   = newHistogram([]float64{500, 1000, 2000, 5000, 10000, 30000, 60000, 120000, 300000})
	agentDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000})
)

// IncRunStarted increments the started counter.
func IncRunStarted() {
	runStartedTotal.Add(1)
}

// IncRunCompleted increments the completed counter.
func IncRunCompleted() {
	runCompletedTotal.Add(1)
}

// IncRunFailed increments the failed counter.
func IncRunFailed() {
	runFailedTotal.Add(1)
}

// IncRunCancelled increments the cancelled counter.
func IncRunCancelled() {
	runCancelledTotal.Add(1)
}

// IncAgentAttempt increments the per-attempt counter.
func IncAgentAttempt() {
	agentAttemptTotal.Add(1)
}

// IncAgentFailed increments the terminal agent failure counter.
func IncAgentFailed() {
	agentFailedTotal.Add(1)
}

// IncJobReceived increments the queue-job received counter.
func IncJobReceived() {
	jobReceivedTotal.Add(1)
}

// IncJobCompleted increments the queue-job completed counter.
func IncJobCompleted() {
	jobCompletedTotal.Add(1)
}

// IncJobFailed increments the queue-job failed counter.
func IncJobFailed() {
	jobFailedTotal.Add(1)
}

// IncJobDeletedUnrecoverable counts malformed messages dropped from the queue.
func IncJobDeletedUnrecoverable() {
	jobDeletedUnrecoverableTotal.Add(1)
}

// ObserveRunDurationMs records a full pipeline run duration in milliseconds.
func ObserveRunDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	runDuration.Observe(value)
}

// ObserveAgentDurationMs records a single agent execution duration in milliseconds.
func ObserveAgentDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	agentDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "analysis_run_started_total", "Total analysis runs started", runStartedTotal.Load())
	writeCounter(&buf, "analysis_run_completed_total", "Total analysis runs completed", runCompletedTotal.Load())
	writeCounter(&buf, "analysis_run_failed_total", "Total analysis runs failed", runFailedTotal.Load())
	writeCounter(&buf, "analysis_run_cancelled_total", "Total analysis runs cancelled", runCancelledTotal.Load())
	writeCounter(&buf, "agent_attempt_total", "Total agent execution attempts", agentAttemptTotal.Load())
	writeCounter(&buf, "agent_failed_total", "Total agents that exhausted retries", agentFailedTotal.Load())
	writeCounter(&buf, "queue_job_received_total", "Total queue jobs received", jobReceivedTotal.Load())
	writeCounter(&buf, "queue_job_completed_total", "Total queue jobs completed", jobCompletedTotal.Load())
	writeCounter(&buf, "queue_job_failed_total", "Total queue jobs failed", jobFailedTotal.Load())
	writeCounter(&buf, "queue_job_deleted_unrecoverable_total", "Total malformed queue jobs dropped", jobDeletedUnrecoverableTotal.Load())
	writeHistogram(&buf, "analysis_run_duration_ms", "Analysis run duration in milliseconds", runDuration.Snapshot())
	writeHistogram(&buf, "agent_duration_ms", "Agent execution duration in milliseconds", agentDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// NowMillis returns current time in milliseconds, useful for callers without time utilities.
func NowMillis() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}
