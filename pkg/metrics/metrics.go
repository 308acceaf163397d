// Package metrics collects alert pipeline counters and reports them to Redis
// so they can be read without access to the process.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// MetricsKeyPrefix is the Redis key prefix for service metrics.
	MetricsKeyPrefix = "metrics:"
	// MetricsTTL is how long metrics stay in Redis if not refreshed.
	MetricsTTL = 2 * time.Minute
	// DefaultReportInterval is the default interval for writing metrics to Redis.
	DefaultReportInterval = 30 * time.Second
)

// ServiceMetrics is the reported snapshot.
type ServiceMetrics struct {
	ServiceName string    `json:"service_name"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`
	Status      string    `json:"status"` // "healthy" or "unhealthy"

	// Counters (monotonically increasing since start)
	CyclesRun          uint64 `json:"cycles_run"`
	ProjectsProcessed  uint64 `json:"projects_processed"`
	ProjectsFailed     uint64 `json:"projects_failed"`
	RulesEvaluated     uint64 `json:"rules_evaluated"`
	RuleErrors         uint64 `json:"rule_errors"`
	AlertsTriggered    uint64 `json:"alerts_triggered"`
	AlertsSuppressed   uint64 `json:"alerts_suppressed"`
	AlertsPublished    uint64 `json:"alerts_published"`
	AlertsDeadLettered uint64 `json:"alerts_dead_lettered"`
	CooldownFailOpen   uint64 `json:"cooldown_fail_open"`

	// Cycle durations (nanoseconds)
	AvgCycleDurationNs  float64 `json:"avg_cycle_duration_ns"`
	LastCycleDurationNs int64   `json:"last_cycle_duration_ns"`
}

// Collector collects and reports metrics for the alert manager.
type Collector struct {
	serviceName    string
	redis          *redis.Client
	startedAt      time.Time
	reportInterval time.Duration

	cyclesRun          atomic.Uint64
	projectsProcessed  atomic.Uint64
	projectsFailed     atomic.Uint64
	rulesEvaluated     atomic.Uint64
	ruleErrors         atomic.Uint64
	alertsTriggered    atomic.Uint64
	alertsSuppressed   atomic.Uint64
	alertsPublished    atomic.Uint64
	alertsDeadLettered atomic.Uint64
	cooldownFailOpen   atomic.Uint64

	totalCycleNs atomic.Uint64
	lastCycleNs  atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewCollector creates a new metrics collector. redisClient may be nil, in which case
// counters are kept in memory only.
func NewCollector(serviceName string, redisClient *redis.Client) *Collector {
	return &Collector{
		serviceName:    serviceName,
		redis:          redisClient,
		startedAt:      time.Now().UTC(),
		reportInterval: DefaultReportInterval,
		stopCh:         make(chan struct{}),
	}
}

// SetReportInterval sets the interval for writing metrics to Redis.
func (c *Collector) SetReportInterval(interval time.Duration) {
	c.reportInterval = interval
}

// Start begins the periodic metrics reporting to Redis.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.Flush(context.Background()) // Final write
				return
			case <-c.stopCh:
				c.Flush(context.Background()) // Final write
				return
			case <-ticker.C:
				c.Flush(ctx)
			}
		}
	}()
}

// Stop stops the metrics reporting.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// RecordCycle counts a completed cycle and its duration.
func (c *Collector) RecordCycle(d time.Duration) {
	c.cyclesRun.Add(1)
	c.totalCycleNs.Add(uint64(d.Nanoseconds()))
	c.lastCycleNs.Store(d.Nanoseconds())
}

// RecordProjectProcessed counts a project processed without failure.
func (c *Collector) RecordProjectProcessed() { c.projectsProcessed.Add(1) }

// RecordProjectFailed counts a project that could not be processed.
func (c *Collector) RecordProjectFailed() { c.projectsFailed.Add(1) }

// RecordRuleEvaluated counts a rule evaluation attempt.
func (c *Collector) RecordRuleEvaluated() { c.rulesEvaluated.Add(1) }

// RecordRuleError counts a rule that failed to load or evaluate.
func (c *Collector) RecordRuleError() { c.ruleErrors.Add(1) }

// RecordTriggered counts a triggered rule.
func (c *Collector) RecordTriggered() { c.alertsTriggered.Add(1) }

// RecordSuppressed counts alerts dropped by cooldown.
func (c *Collector) RecordSuppressed(count int) { c.alertsSuppressed.Add(uint64(count)) }

// RecordCooldownFailOpen counts cooldown store outages.
func (c *Collector) RecordCooldownFailOpen() { c.cooldownFailOpen.Add(1) }

// RecordPublished counts delivered alerts.
func (c *Collector) RecordPublished(count int) { c.alertsPublished.Add(uint64(count)) }

// RecordDeadLettered counts alerts that could not be delivered.
func (c *Collector) RecordDeadLettered(count int) { c.alertsDeadLettered.Add(uint64(count)) }

// GetSnapshot returns current metrics without writing to Redis.
func (c *Collector) GetSnapshot() *ServiceMetrics {
	cycles := c.cyclesRun.Load()
	var avg float64
	if cycles > 0 {
		avg = float64(c.totalCycleNs.Load()) / float64(cycles)
	}

	return &ServiceMetrics{
		ServiceName:         c.serviceName,
		StartedAt:           c.startedAt,
		LastUpdated:         time.Now().UTC(),
		Status:              "healthy",
		CyclesRun:           cycles,
		ProjectsProcessed:   c.projectsProcessed.Load(),
		ProjectsFailed:      c.projectsFailed.Load(),
		RulesEvaluated:      c.rulesEvaluated.Load(),
		RuleErrors:          c.ruleErrors.Load(),
		AlertsTriggered:     c.alertsTriggered.Load(),
		AlertsSuppressed:    c.alertsSuppressed.Load(),
		AlertsPublished:     c.alertsPublished.Load(),
		AlertsDeadLettered:  c.alertsDeadLettered.Load(),
		CooldownFailOpen:    c.cooldownFailOpen.Load(),
		AvgCycleDurationNs:  avg,
		LastCycleDurationNs: c.lastCycleNs.Load(),
	}
}

// Flush writes current metrics to Redis.
func (c *Collector) Flush(ctx context.Context) {
	if c.redis == nil {
		return
	}

	data, err := json.Marshal(c.GetSnapshot())
	if err != nil {
		slog.Error("Failed to marshal metrics", "service", c.serviceName, "error", err)
		return
	}

	key := MetricsKeyPrefix + c.serviceName
	if err := c.redis.Set(ctx, key, data, MetricsTTL).Err(); err != nil {
		slog.Error("Failed to write metrics to Redis", "service", c.serviceName, "error", err)
		return
	}

	slog.Debug("Metrics written to Redis", "service", c.serviceName, "key", key)
}

// Reader reads service metrics from Redis.
type Reader struct {
	redis *redis.Client
}

// NewReader creates a new metrics reader.
func NewReader(redisClient *redis.Client) *Reader {
	return &Reader{redis: redisClient}
}

// GetServiceMetrics retrieves metrics for a specific service.
func (r *Reader) GetServiceMetrics(ctx context.Context, serviceName string) (*ServiceMetrics, error) {
	key := MetricsKeyPrefix + serviceName
	data, err := r.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("no metrics found for service: %s", serviceName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}

	var metrics ServiceMetrics
	if err := json.Unmarshal(data, &metrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}

	// Check if metrics are stale (older than TTL)
	if time.Since(metrics.LastUpdated) > MetricsTTL {
		metrics.Status = "unhealthy"
	}

	return &metrics, nil
}
