package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestCollector_Snapshot(t *testing.T) {
	c := NewCollector("alert-manager", nil)

	c.RecordCycle(2 * time.Second)
	c.RecordCycle(4 * time.Second)
	c.RecordProjectProcessed()
	c.RecordProjectFailed()
	c.RecordRuleEvaluated()
	c.RecordRuleEvaluated()
	c.RecordRuleError()
	c.RecordTriggered()
	c.RecordSuppressed(2)
	c.RecordCooldownFailOpen()
	c.RecordPublished(3)
	c.RecordDeadLettered(1)

	s := c.GetSnapshot()
	if s.CyclesRun != 2 || s.AvgCycleDurationNs != float64(3*time.Second) || s.LastCycleDurationNs != int64(4*time.Second) {
		t.Errorf("cycle metrics = %d, %v, %d", s.CyclesRun, s.AvgCycleDurationNs, s.LastCycleDurationNs)
	}
	if s.ProjectsProcessed != 1 || s.ProjectsFailed != 1 || s.RulesEvaluated != 2 || s.RuleErrors != 1 {
		t.Errorf("project/rule metrics = %+v", s)
	}
	if s.AlertsTriggered != 1 || s.AlertsSuppressed != 2 || s.AlertsPublished != 3 || s.AlertsDeadLettered != 1 || s.CooldownFailOpen != 1 {
		t.Errorf("alert metrics = %+v", s)
	}

	// Without Redis, Flush is a no-op.
	c.Flush(context.Background())
}

func TestCollector_FlushAndRead(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewCollector("alert-manager", client)
	c.RecordPublished(5)
	c.Flush(context.Background())

	if ttl := mr.TTL(MetricsKeyPrefix + "alert-manager"); ttl != MetricsTTL {
		t.Errorf("TTL = %s, want %s", ttl, MetricsTTL)
	}

	got, err := NewReader(client).GetServiceMetrics(context.Background(), "alert-manager")
	if err != nil {
		t.Fatalf("GetServiceMetrics() error = %v", err)
	}
	if got.AlertsPublished != 5 || got.Status != "healthy" {
		t.Errorf("GetServiceMetrics() = %+v", got)
	}

	if _, err := NewReader(client).GetServiceMetrics(context.Background(), "unknown"); err == nil {
		t.Error("GetServiceMetrics(unknown) error = nil, want error")
	}
}

func TestCollector_StartStop(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewCollector("alert-manager", client)
	c.SetReportInterval(time.Hour)
	c.Start(context.Background())
	c.RecordCycle(time.Second)
	c.Stop()
	c.Stop()

	if !mr.Exists(MetricsKeyPrefix + "alert-manager") {
		t.Error("Stop() did not write final metrics")
	}
}
