package rules

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Operator is a threshold comparison operator.
type Operator string

const (
	OpGreater        Operator = ">"
	OpLess           Operator = "<"
	OpGreaterOrEqual Operator = ">="
	OpLessOrEqual    Operator = "<="
	OpEqual          Operator = "=="
	OpNotEqual       Operator = "!="
)

// ParseOperator validates an operator symbol.
func ParseOperator(s string) (Operator, error) {
	switch op := Operator(strings.TrimSpace(s)); op {
	case OpGreater, OpLess, OpGreaterOrEqual, OpLessOrEqual, OpEqual, OpNotEqual:
		return op, nil
	default:
		return "", fmt.Errorf("%w: unknown operator %q", ErrInvalidRule, s)
	}
}

// ParseOperand parses a numeric operand. Anything that is not a finite number is absent (nil).
func ParseOperand(s string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Float returns a pointer to v, for building operands.
func Float(v float64) *float64 {
	return &v
}

// Compare applies op to the observed value a and the threshold b.
// A nil operand means "no data":
//   - ordering operators are false when either side is absent
//   - == is true only when both are absent
//   - != is true unless both are absent
//
// Unknown operators never match.
func Compare(op Operator, a, b *float64) bool {
	switch op {
	case OpEqual:
		if a == nil || b == nil {
			return a == nil && b == nil
		}
		return *a == *b
	case OpNotEqual:
		if a == nil || b == nil {
			return !(a == nil && b == nil)
		}
		return *a != *b
	}

	if a == nil || b == nil {
		return false
	}

	switch op {
	case OpGreater:
		return *a > *b
	case OpLess:
		return *a < *b
	case OpGreaterOrEqual:
		return *a >= *b
	case OpLessOrEqual:
		return *a <= *b
	default:
		return false
	}
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
