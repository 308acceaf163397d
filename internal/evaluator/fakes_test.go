package evaluator

import (
	"context"
)

// FakeBackend is a test fake for Backend that records the queries it receives.
type FakeBackend struct {
	Average   *float64
	Counts    Counts
	Terms     []TermCount
	Err       error
	AverageFn func(ctx context.Context) (*float64, error)

	AverageCalls []string // metric names
	CountCalls   []string // field=value
	TermQueries  []TermsQuery
	Since        []string
}

func (f *FakeBackend) AverageOver(ctx context.Context, project, metric, since string) (*float64, error) {
	f.AverageCalls = append(f.AverageCalls, metric)
	f.Since = append(f.Since, since)
	if f.AverageFn != nil {
		return f.AverageFn(ctx)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Average, nil
}

func (f *FakeBackend) CountsOver(ctx context.Context, project, field, value, since string) (Counts, error) {
	f.CountCalls = append(f.CountCalls, field+"="+value)
	f.Since = append(f.Since, since)
	if f.Err != nil {
		return Counts{}, f.Err
	}
	return f.Counts, nil
}

func (f *FakeBackend) TopTermsOver(ctx context.Context, project string, query TermsQuery, since string) ([]TermCount, error) {
	f.TermQueries = append(f.TermQueries, query)
	f.Since = append(f.Since, since)
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Terms, nil
}
