package transform

import (
	"fmt"
	"math"
	"strconv"
)

// Operator names one comparison a filter condition can apply to a column.
type Operator string

const (
	OpEq  Operator = "=="
	OpNe  Operator = "!="
	OpLt  Operator = "<"
	OpLte Operator = "<="
	OpGt  Operator = ">"
	OpGte Operator = ">="

	OpIsNull    Operator = "is_null"
	OpIsNotNull Operator = "is_not_null"
	OpIsTrue    Operator = "is_true"
	OpIsFalse   Operator = "is_false"

	OpEquals       Operator = "equals"
	OpDoesNotEqual Operator = "does_not_equal"
	OpContains     Operator = "contains"
	OpRegex        Operator = "regex"
	OpStartsWith   Operator = "starts_with"
	OpEndsWith     Operator = "ends_with"
	OpIn           Operator = "in"
)

// Condition is one column predicate. Conditions within a FilterRows transform
// are AND-combined.
type Condition struct {
	Column   string   `json:"column_id"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

// Validate checks the operator is known and that operators requiring an
// operand have one.
func (c Condition) Validate() error {
	if c.Column == "" {
		return fmt.Errorf("condition: column_id required")
	}
	switch c.Operator {
	case OpIsNull, OpIsNotNull, OpIsTrue, OpIsFalse:
		return nil
	case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte,
		OpEquals, OpDoesNotEqual, OpContains, OpRegex,
		OpStartsWith, OpEndsWith, OpIn:
		if c.Value == nil {
			return fmt.Errorf("condition: operator %q requires a value", c.Operator)
		}
		return nil
	default:
		return fmt.Errorf("condition: unknown operator %q", c.Operator)
	}
}

// NumericValue resolves the condition's operand as a float64 for comparison
// against a numeric column. Sentinel tokens ("NaN", "Infinity", "-Infinity")
// coerce to their float values only when the column itself is float-typed;
// without that coercion a frontend-sent sentinel string silently matches
// nothing.
func (c Condition) NumericValue(floatColumn bool) (float64, bool) {
	switch v := c.Value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		if !floatColumn {
			return 0, false
		}
		switch v {
		case "NaN":
			return math.NaN(), true
		case "Infinity", "inf":
			return math.Inf(1), true
		case "-Infinity", "-inf":
			return math.Inf(-1), true
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// StringValue resolves the condition's operand as a string.
func (c Condition) StringValue() (string, bool) {
	s, ok := c.Value.(string)
	return s, ok
}

// ListValue resolves the condition's operand as a list for set-membership
// operators.
func (c Condition) ListValue() ([]any, bool) {
	vs, ok := c.Value.([]any)
	return vs, ok
}
