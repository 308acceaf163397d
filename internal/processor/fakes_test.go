package processor

import (
	"context"
	"sync"
	"time"

	"github.com/harish-x/log-boy/internal/database"
	"github.com/harish-x/log-boy/internal/evaluator"
	"github.com/harish-x/log-boy/internal/events"
	"github.com/harish-x/log-boy/internal/publisher"
	"github.com/harish-x/log-boy/internal/rules"
)

// FakeRuleSource serves projects, rules and methods from maps. Maps must not be
// modified while a cycle runs.
type FakeRuleSource struct {
	Projects    []string
	ProjectsErr error
	Rules       map[string][]*database.RuleRecord
	RulesErr    map[string]error
	Methods     map[string][]database.MethodRecord
	MethodsErr  error

	mu           sync.Mutex
	MethodLookup []string
}

func (s *FakeRuleSource) ListActiveProjects(_ context.Context) ([]string, error) {
	return s.Projects, s.ProjectsErr
}

func (s *FakeRuleSource) ListRules(_ context.Context, project string) ([]*database.RuleRecord, error) {
	if err := s.RulesErr[project]; err != nil {
		return nil, err
	}
	return s.Rules[project], nil
}

func (s *FakeRuleSource) ListNotificationMethods(_ context.Context, ruleID string) ([]database.MethodRecord, error) {
	s.mu.Lock()
	s.MethodLookup = append(s.MethodLookup, ruleID)
	s.mu.Unlock()
	if s.MethodsErr != nil {
		return nil, s.MethodsErr
	}
	return s.Methods[ruleID], nil
}

// FakeEvaluator returns canned results by rule id. Rules without an entry do not trigger.
type FakeEvaluator struct {
	Results map[string]evaluator.Result
	Errs    map[string]error
	PanicOn map[string]bool

	mu        sync.Mutex
	Evaluated []string
}

func (e *FakeEvaluator) Evaluate(_ context.Context, rule *rules.AlertRule) (evaluator.Result, error) {
	e.mu.Lock()
	e.Evaluated = append(e.Evaluated, rule.ID)
	e.mu.Unlock()

	if e.PanicOn[rule.ID] {
		panic("evaluator exploded")
	}
	if err := e.Errs[rule.ID]; err != nil {
		return evaluator.NotTriggered, err
	}
	return e.Results[rule.ID], nil
}

// FakeCooldown admits everything and records what it was given.
type FakeCooldown struct {
	mu    sync.Mutex
	Calls [][]*events.Observation
}

func (c *FakeCooldown) Filter(_ context.Context, observations []*events.Observation) []*events.Observation {
	c.mu.Lock()
	c.Calls = append(c.Calls, observations)
	c.mu.Unlock()
	return observations
}

// FakePublisher reports every observation as published.
type FakePublisher struct {
	mu        sync.Mutex
	Published []*events.Observation
}

func (p *FakePublisher) Publish(_ context.Context, observations []*events.Observation) publisher.Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	var report publisher.Report
	for _, o := range observations {
		p.Published = append(p.Published, o)
		report.Published = append(report.Published, events.NewDeliveryEvent(o, o.Timestamp))
	}
	return report
}

// FakeMetrics counts recorded metrics.
type FakeMetrics struct {
	mu                sync.Mutex
	Cycles            int
	ProjectsProcessed int
	ProjectsFailed    int
	RulesEvaluated    int
	RuleErrors        int
	Triggered         int
	Published         int
	DeadLettered      int
}

func (m *FakeMetrics) RecordCycle(_ time.Duration) { m.add(&m.Cycles, 1) }
func (m *FakeMetrics) RecordProjectProcessed()     { m.add(&m.ProjectsProcessed, 1) }
func (m *FakeMetrics) RecordProjectFailed()        { m.add(&m.ProjectsFailed, 1) }
func (m *FakeMetrics) RecordRuleEvaluated()        { m.add(&m.RulesEvaluated, 1) }
func (m *FakeMetrics) RecordRuleError()            { m.add(&m.RuleErrors, 1) }
func (m *FakeMetrics) RecordTriggered()            { m.add(&m.Triggered, 1) }
func (m *FakeMetrics) RecordPublished(n int)       { m.add(&m.Published, n) }
func (m *FakeMetrics) RecordDeadLettered(n int)    { m.add(&m.DeadLettered, n) }

func (m *FakeMetrics) add(field *int, n int) {
	m.mu.Lock()
	*field += n
	m.mu.Unlock()
}

// FakeBackend serves metric averages and ranked terms to a real evaluator.
type FakeBackend struct {
	Averages map[string]float64
	Terms    []evaluator.TermCount
}

func (b *FakeBackend) AverageOver(_ context.Context, _, metric, _ string) (*float64, error) {
	v, ok := b.Averages[metric]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (b *FakeBackend) CountsOver(_ context.Context, _, _, _, _ string) (evaluator.Counts, error) {
	return evaluator.Counts{}, nil
}

func (b *FakeBackend) TopTermsOver(_ context.Context, _ string, _ evaluator.TermsQuery, _ string) ([]evaluator.TermCount, error) {
	return b.Terms, nil
}
