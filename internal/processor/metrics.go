package processor

import "time"

// MetricsRecorder defines the metrics operations needed by the processor.
type MetricsRecorder interface {
	RecordCycle(d time.Duration)
	RecordProjectProcessed()
	RecordProjectFailed()
	RecordRuleEvaluated()
	RecordRuleError()
	RecordTriggered()
	RecordPublished(count int)
	RecordDeadLettered(count int)
}

// NoOpMetrics is a null-object implementation of MetricsRecorder.
type NoOpMetrics struct{}

var _ MetricsRecorder = (*NoOpMetrics)(nil)

func (n *NoOpMetrics) RecordCycle(_ time.Duration) {}
func (n *NoOpMetrics) RecordProjectProcessed()     {}
func (n *NoOpMetrics) RecordProjectFailed()        {}
func (n *NoOpMetrics) RecordRuleEvaluated()        {}
func (n *NoOpMetrics) RecordRuleError()            {}
func (n *NoOpMetrics) RecordTriggered()            {}
func (n *NoOpMetrics) RecordPublished(_ int)       {}
func (n *NoOpMetrics) RecordDeadLettered(_ int)    {}
