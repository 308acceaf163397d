// Package database provides read access to projects, alert rules and their notification methods.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// RuleRecord is an alerts row as stored. Text columns are empty when NULL.
type RuleRecord struct {
	ID            string
	ProjectName   string
	RuleType      string
	MetricName    string
	LogField      string
	LogFieldValue string
	Operator      string
	// Threshold is the column's text form; it is parsed when the rule is built.
	Threshold  string
	TimeWindow string
	// Missing lists required columns that were NULL. Such a row cannot be evaluated.
	Missing []string
}

// nullable tracks which required columns of a row were NULL.
type nullable struct {
	missing []string
}

func (n *nullable) require(column string, v sql.NullString) string {
	if !v.Valid {
		n.missing = append(n.missing, column)
	}
	return v.String
}

// MethodRecord is an alert_methods row.
type MethodRecord struct {
	Method string
	Value  string
}

// DB wraps a database connection and provides rule lookups.
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection using the provided DSN.
func NewDB(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Successfully connected to PostgreSQL database")

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		slog.Info("Closing database connection")
		return db.conn.Close()
	}
	return nil
}

// ListActiveProjects returns the names of projects that are active and have monitoring enabled.
func (db *DB) ListActiveProjects(ctx context.Context) ([]string, error) {
	query := `
		SELECT name
		FROM projects
		WHERE active = TRUE AND active_monitoring = TRUE
		ORDER BY name ASC
	`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active projects: %w", err)
	}
	defer rows.Close()

	var projects []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, name)
	}
	return projects, rows.Err()
}

// ListRules returns a project's alert rules ordered by threshold, highest first.
func (db *DB) ListRules(ctx context.Context, project string) ([]*RuleRecord, error) {
	query := `
		SELECT id, project_name, rule_type, metric_name, log_field, log_field_value, operator, threshold, time_window
		FROM alerts
		WHERE project_name = $1
		ORDER BY threshold DESC
	`
	rows, err := db.conn.QueryContext(ctx, query, project)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules for project %s: %w", project, err)
	}
	defer rows.Close()

	var records []*RuleRecord
	for rows.Next() {
		var id, projectName, ruleType, metricName, logField, logFieldValue, operator, threshold, timeWindow sql.NullString
		if err := rows.Scan(
			&id,
			&projectName,
			&ruleType,
			&metricName,
			&logField,
			&logFieldValue,
			&operator,
			&threshold,
			&timeWindow,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}

		var n nullable
		rec := &RuleRecord{
			ID:            n.require("id", id),
			ProjectName:   projectName.String,
			RuleType:      n.require("rule_type", ruleType),
			MetricName:    metricName.String,
			LogField:      logField.String,
			LogFieldValue: logFieldValue.String,
			Operator:      operator.String,
			Threshold:     n.require("threshold", threshold),
			TimeWindow:    n.require("time_window", timeWindow),
		}
		rec.Missing = n.missing
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListNotificationMethods returns the notification methods configured for a rule.
func (db *DB) ListNotificationMethods(ctx context.Context, ruleID string) ([]MethodRecord, error) {
	query := `
		SELECT method, value
		FROM alert_methods
		WHERE alert_id = $1
	`
	rows, err := db.conn.QueryContext(ctx, query, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification methods for rule %s: %w", ruleID, err)
	}
	defer rows.Close()

	var methods []MethodRecord
	for rows.Next() {
		var m MethodRecord
		var value sql.NullString
		if err := rows.Scan(&m.Method, &value); err != nil {
			return nil, fmt.Errorf("failed to scan notification method: %w", err)
		}
		m.Value = value.String
		methods = append(methods, m)
	}
	return methods, rows.Err()
}
