package processor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/harish-x/log-boy/internal/events"
	"github.com/harish-x/log-boy/internal/grouping"
)

// DefaultWorkers is the number of projects processed concurrently when unset.
const DefaultWorkers = 4

// Options tunes a Processor.
type Options struct {
	// Workers bounds how many projects are processed at once.
	Workers int
	// QueryTimeout bounds each rule-source call.
	QueryTimeout time.Duration
}

// ProjectReport is the outcome of processing one project in a cycle.
type ProjectReport struct {
	Project      string
	Rules        int
	RuleErrors   int
	Triggered    int
	Grouped      int
	Admitted     int
	Published    int
	DeadLettered int
	Err          error
}

// CycleReport is the outcome of one cycle.
type CycleReport struct {
	CycleID  string
	Projects []ProjectReport
	Duration time.Duration
	// Err is set when the project list itself could not be loaded.
	Err error
}

// Failed returns the projects that could not be processed.
func (r CycleReport) Failed() []string {
	var failed []string
	for _, p := range r.Projects {
		if p.Err != nil {
			failed = append(failed, p.Project)
		}
	}
	return failed
}

// Processor runs evaluation cycles. It keeps no state between cycles.
type Processor struct {
	source    RuleSource
	evaluator RuleEvaluator
	cooldown  CooldownFilter
	publisher AlertPublisher
	metrics   MetricsRecorder
	opts      Options
	now       func() time.Time
}

// NewProcessor creates a processor with no-op metrics.
func NewProcessor(source RuleSource, ev RuleEvaluator, cooldown CooldownFilter, pub AlertPublisher, opts Options) *Processor {
	return NewProcessorWithMetrics(source, ev, cooldown, pub, opts, nil)
}

// NewProcessorWithMetrics creates a processor with the provided metrics recorder.
// If m is nil, a no-op implementation is used.
func NewProcessorWithMetrics(source RuleSource, ev RuleEvaluator, cooldown CooldownFilter, pub AlertPublisher, opts Options, m MetricsRecorder) *Processor {
	if m == nil {
		m = &NoOpMetrics{}
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Processor{
		source:    source,
		evaluator: ev,
		cooldown:  cooldown,
		publisher: pub,
		metrics:   m,
		opts:      opts,
		now:       time.Now,
	}
}

// WithClock overrides the time source used to stamp observations.
func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// RunCycle evaluates every active project once. A failing project is logged and
// reported but never stops the others.
func (p *Processor) RunCycle(ctx context.Context) CycleReport {
	start := time.Now()
	report := CycleReport{CycleID: uuid.NewString()}
	log := slog.With("cycle_id", report.CycleID)
	log.Info("Alert cycle started")

	defer func() {
		report.Duration = time.Since(start)
		p.metrics.RecordCycle(report.Duration)
	}()

	lctx, cancel := p.withQueryTimeout(ctx)
	projects, err := p.source.ListActiveProjects(lctx)
	cancel()
	if err != nil {
		log.Error("Failed to load active projects", "error", err)
		report.Err = err
		return report
	}
	if len(projects) == 0 {
		log.Info("No active projects")
		return report
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.opts.Workers)

	for _, project := range projects {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			pr := p.runProject(ctx, log.With("project", project), project)
			if pr.Err != nil {
				p.metrics.RecordProjectFailed()
			} else {
				p.metrics.RecordProjectProcessed()
			}
			mu.Lock()
			report.Projects = append(report.Projects, pr)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var published, deadLettered int
	for _, pr := range report.Projects {
		published += pr.Published
		deadLettered += pr.DeadLettered
	}
	log.Info("Alert cycle finished",
		"projects", len(projects),
		"failed_projects", len(report.Failed()),
		"published", published,
		"dead_lettered", deadLettered,
		"duration", time.Since(start),
	)
	return report
}

// runProject processes one project, converting a panic into a project error.
func (p *Processor) runProject(ctx context.Context, log *slog.Logger, project string) (pr ProjectReport) {
	pr.Project = project
	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic while processing project",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			pr.Err = fmt.Errorf("panic processing project %s: %v", project, r)
		}
	}()

	if err := p.processProject(ctx, log, &pr); err != nil {
		log.Error("Failed to process project", "error", err)
		pr.Err = err
	}
	return pr
}

func (p *Processor) processProject(ctx context.Context, log *slog.Logger, pr *ProjectReport) error {
	lctx, cancel := p.withQueryTimeout(ctx)
	records, err := p.source.ListRules(lctx, pr.Project)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	pr.Rules = len(records)
	if len(records) == 0 {
		log.Debug("No rules configured")
		return nil
	}

	var triggered []*events.Observation
	for _, rec := range records {
		p.metrics.RecordRuleEvaluated()

		rule, err := toAlertRule(pr.Project, rec)
		if err != nil {
			log.Warn("Skipping invalid rule", "rule_id", rec.ID, "error", err)
			p.metrics.RecordRuleError()
			pr.RuleErrors++
			continue
		}

		result, err := p.evaluator.Evaluate(ctx, rule)
		if err != nil {
			log.Warn("Rule evaluation failed", "rule_id", rule.ID, "rule_type", rule.Category(), "error", err)
			p.metrics.RecordRuleError()
			pr.RuleErrors++
			continue
		}
		if !result.Triggered {
			continue
		}

		mctx, cancel := p.withQueryTimeout(ctx)
		methods, err := p.source.ListNotificationMethods(mctx, rule.ID)
		cancel()
		if err != nil {
			log.Warn("Failed to load notification methods", "rule_id", rule.ID, "error", err)
			p.metrics.RecordRuleError()
			pr.RuleErrors++
			continue
		}
		rule.Methods = toMethods(methods)
		if len(rule.Methods) == 0 {
			log.Warn("No alert methods found for triggered rule", "rule_id", rule.ID)
			continue
		}

		p.metrics.RecordTriggered()
		log.Info("Rule triggered",
			"rule_id", rule.ID,
			"rule_type", rule.Category(),
			"current_value", result.Detail.CurrentValue,
			"operator", rule.Operator,
			"threshold", rule.Threshold,
		)
		triggered = append(triggered, events.NewObservation(rule, result.Detail, p.now()))
	}
	pr.Triggered = len(triggered)
	if len(triggered) == 0 {
		return nil
	}

	grouped := grouping.SelectHighestPriority(triggered)
	pr.Grouped = len(grouped)

	admitted := p.cooldown.Filter(ctx, grouped)
	pr.Admitted = len(admitted)
	if len(admitted) == 0 {
		log.Debug("All triggered alerts are in cooldown", "grouped", len(grouped))
		return nil
	}

	delivery := p.publisher.Publish(ctx, admitted)
	pr.Published = len(delivery.Published)
	pr.DeadLettered = len(delivery.DeadLettered)
	p.metrics.RecordPublished(pr.Published)
	p.metrics.RecordDeadLettered(pr.DeadLettered)

	log.Info("Project processed",
		"rules", pr.Rules,
		"triggered", pr.Triggered,
		"grouped", pr.Grouped,
		"admitted", pr.Admitted,
		"published", pr.Published,
		"dead_lettered", pr.DeadLettered,
	)
	return nil
}

func (p *Processor) withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.opts.QueryTimeout)
}
