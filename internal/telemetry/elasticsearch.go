// Package telemetry runs the aggregation queries behind alert rules against Elasticsearch.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/harish-x/log-boy/internal/evaluator"
	"github.com/harish-x/log-boy/internal/rules"
)

// ErrUnknownMetric is returned for metrics that have no mapped document field.
var ErrUnknownMetric = errors.New("unknown metric")

// metricField locates a metric's value and timestamp inside metric documents.
type metricField struct {
	value     string
	timestamp string
}

var metricFields = map[string]metricField{
	"cpu_usage":    {value: "cpuUsage.average", timestamp: "cpuUsage.timestamp"},
	"memory_usage": {value: "memoryUsage.memoryUsagePercentage", timestamp: "memoryUsage.timestamp"},
}

// Painless filters for HTTP status classes on responseStatus.keyword.
var statusClassScripts = map[string]string{
	"4xx": `if (doc['responseStatus.keyword'].size() == 0) return false;
try {
  def code = Integer.parseInt(doc['responseStatus.keyword'].value);
  return code >= 400 && code < 500;
} catch (Exception e) {
  return false;
}`,
	"5xx": `if (doc['responseStatus.keyword'].size() == 0) return false;
try {
  def code = Integer.parseInt(doc['responseStatus.keyword'].value);
  return code >= 500;
} catch (Exception e) {
  return false;
}`,
}

var termFields = map[string]string{
	evaluator.TermFieldIPAddress: "ipAddress.keyword",
	evaluator.TermFieldMessage:   "message.keyword",
}

const (
	aggAverage = "avg_value"
	aggFilter  = "logs_filter_count"
	aggTerms   = "term_counts"
)

// Backend implements evaluator.Backend on top of an Elasticsearch client.
type Backend struct {
	client *elasticsearch.Client
}

var _ evaluator.Backend = (*Backend)(nil)

// NewBackend wraps an existing client.
func NewBackend(client *elasticsearch.Client) *Backend {
	return &Backend{client: client}
}

// Connect creates an Elasticsearch client for the given addresses and verifies it with a ping.
func Connect(ctx context.Context, addresses []string, username, password string) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		Username:  username,
		Password:  password,
		Transport: &http.Transport{
			MaxIdleConnsPerHost:   10,
			ResponseHeaderTimeout: 5 * time.Second,
			DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	res, err := client.Ping(client.Ping.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to ping elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("failed to ping elasticsearch: %s", res.Status())
	}

	slog.Info("Successfully connected to Elasticsearch", "addresses", addresses)
	return client, nil
}

// MetricIndex is the index pattern holding a project's metric documents.
func MetricIndex(project string) string {
	return fmt.Sprintf("m-%s-*", project)
}

// LogIndex is the index holding a project's log documents.
func LogIndex(project string) string {
	return fmt.Sprintf("logs-%s", project)
}

// AverageOver returns the average of metric over the window, or nil if no documents matched.
func (b *Backend) AverageOver(ctx context.Context, project, metric, since string) (*float64, error) {
	field, ok := metricFields[metric]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}

	query := map[string]any{
		"size":  0,
		"query": windowFilter(project, field.timestamp, since),
		"aggs": map[string]any{
			aggAverage: map[string]any{
				"avg": map[string]any{"field": field.value},
			},
		},
	}

	resp, err := b.search(ctx, MetricIndex(project), query)
	if err != nil {
		return nil, err
	}
	return resp.Aggregations[aggAverage].Value, nil
}

// CountsOver counts log entries matching field/value within the window, along with the window total.
func (b *Backend) CountsOver(ctx context.Context, project, field, value, since string) (evaluator.Counts, error) {
	var filter map[string]any
	switch field {
	case rules.LogFieldLevel:
		filter = map[string]any{"term": map[string]any{"level": value}}
	case rules.LogFieldStatusCode:
		script, ok := statusClassScripts[value]
		if !ok {
			return evaluator.Counts{}, fmt.Errorf("unsupported status class %q", value)
		}
		filter = map[string]any{
			"script": map[string]any{
				"script": map[string]any{"lang": "painless", "source": script},
			},
		}
	default:
		return evaluator.Counts{}, fmt.Errorf("unsupported log field %q", field)
	}

	query := map[string]any{
		"size":  0,
		"query": windowFilter(project, "timestamp", since),
		"aggs": map[string]any{
			aggFilter: map[string]any{"filter": filter},
		},
	}

	resp, err := b.search(ctx, LogIndex(project), query)
	if err != nil {
		return evaluator.Counts{}, err
	}
	return evaluator.Counts{
		Matching: resp.Aggregations[aggFilter].DocCount,
		Total:    resp.Hits.Total.Value,
	}, nil
}

// TopTermsOver returns the highest-count terms of a field, most frequent first.
func (b *Backend) TopTermsOver(ctx context.Context, project string, q evaluator.TermsQuery, since string) ([]evaluator.TermCount, error) {
	field, ok := termFields[q.Field]
	if !ok {
		return nil, fmt.Errorf("unsupported term field %q", q.Field)
	}

	var extra []any
	if len(q.Phrases) > 0 {
		should := make([]any, 0, len(q.Phrases))
		for _, p := range q.Phrases {
			should = append(should, map[string]any{"match_phrase": map[string]any{"message": p}})
		}
		extra = append(extra, map[string]any{
			"bool": map[string]any{"should": should, "minimum_should_match": 1},
		})
	}

	query := map[string]any{
		"size":  0,
		"query": windowFilter(project, "timestamp", since, extra...),
		"aggs": map[string]any{
			aggTerms: map[string]any{
				"terms": map[string]any{
					"field": field,
					"size":  q.Limit,
					"order": map[string]any{"_count": "desc"},
				},
			},
		},
	}

	resp, err := b.search(ctx, LogIndex(project), query)
	if err != nil {
		return nil, err
	}

	buckets := resp.Aggregations[aggTerms].Buckets
	terms := make([]evaluator.TermCount, 0, len(buckets))
	for _, bucket := range buckets {
		terms = append(terms, evaluator.TermCount{Key: bucket.Key, Count: bucket.DocCount})
	}
	return terms, nil
}

// windowFilter restricts documents to one project and the [since, now] range on tsField,
// plus any extra filter clauses.
func windowFilter(project, tsField, since string, extra ...any) map[string]any {
	filters := []any{
		map[string]any{"term": map[string]any{"serviceName": project}},
		map[string]any{"range": map[string]any{
			tsField: map[string]any{"gte": since, "lte": "now"},
		}},
	}
	return map[string]any{
		"bool": map[string]any{"filter": append(filters, extra...)},
	}
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
	} `json:"hits"`
	Aggregations map[string]aggregation `json:"aggregations"`
}

type aggregation struct {
	Value    *float64 `json:"value"`
	DocCount int64    `json:"doc_count"`
	Buckets  []struct {
		Key      string `json:"key"`
		DocCount int64  `json:"doc_count"`
	} `json:"buckets"`
}

func (b *Backend) search(ctx context.Context, index string, query map[string]any) (*searchResponse, error) {
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to encode search query: %w", err)
	}

	search := b.client.Search
	res, err := search(
		search.WithContext(ctx),
		search.WithIndex(index),
		search.WithBody(&body),
		search.WithTrackTotalHits(true),
		search.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search %s returned error: %s", index, res.String())
	}

	var resp searchResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode search response from %s: %w", index, err)
	}
	return &resp, nil
}
