package processor

import (
	"fmt"
	"strings"

	"github.com/harish-x/log-boy/internal/database"
	"github.com/harish-x/log-boy/internal/rules"
)

// toAlertRule validates a stored rule row and converts it into an AlertRule.
func toAlertRule(project string, rec *database.RuleRecord) (*rules.AlertRule, error) {
	if len(rec.Missing) > 0 {
		return nil, fmt.Errorf("%w: rule %s has NULL %s", rules.ErrInvalidRule, rec.ID, strings.Join(rec.Missing, ", "))
	}
	threshold := rules.ParseOperand(rec.Threshold)
	if threshold == nil {
		return nil, fmt.Errorf("%w: rule %s has non-numeric threshold %q", rules.ErrInvalidRule, rec.ID, rec.Threshold)
	}
	category, err := rules.ParseCategory(rec.RuleType)
	if err != nil {
		return nil, err
	}
	cond, err := rules.NewCondition(category, rec.MetricName, rec.LogField, rec.LogFieldValue)
	if err != nil {
		return nil, err
	}
	op, err := rules.ParseOperator(rec.Operator)
	if err != nil {
		return nil, err
	}

	rule := &rules.AlertRule{
		ID:         rec.ID,
		Project:    rec.ProjectName,
		Condition:  cond,
		Operator:   op,
		Threshold:  *threshold,
		TimeWindow: rec.TimeWindow,
	}
	if rule.Project == "" {
		rule.Project = project
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return rule, nil
}

func toMethods(records []database.MethodRecord) []rules.NotificationMethod {
	methods := make([]rules.NotificationMethod, len(records))
	for i, r := range records {
		methods[i] = rules.NotificationMethod{Method: r.Method, Value: r.Value}
	}
	return rules.NormalizeMethods(methods)
}
