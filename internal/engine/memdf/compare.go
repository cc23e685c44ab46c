package memdf

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"notebookcore/pkg/table"
	"notebookcore/pkg/transform"
)

// compareCells orders two non-null cells. Mixed numeric widths compare
// numerically; everything else falls back to string order so sorts stay
// total.
func compareCells(a, b any) int {
	if fa, okA := asFloat(a); okA {
		if fb, okB := asFloat(b); okB {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	if ta, okA := a.(time.Time); okA {
		if tb, okB := b.(time.Time); okB {
			switch {
			case ta.Before(tb):
				return -1
			case ta.After(tb):
				return 1
			default:
				return 0
			}
		}
	}
	if ba, okA := a.(bool); okA {
		if bb, okB := b.(bool); okB {
			switch {
			case ba == bb:
				return 0
			case !ba:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(stringify(a), stringify(b))
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

// stringify renders a cell for search, group keys and CSV output.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if math.IsNaN(x) {
			return "NaN"
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// aggregate folds one cell vector with the named aggregation. Nulls are
// skipped for every function except count, which counts non-null cells.
func aggregate(cells []any, agg transform.Aggregation) (any, error) {
	switch agg {
	case transform.AggCount:
		n := int64(0)
		for _, v := range cells {
			if !isNull(v) {
				n++
			}
		}
		return n, nil
	case transform.AggSum, transform.AggMean:
		sum := 0.0
		n := 0
		for _, v := range cells {
			if isNull(v) {
				continue
			}
			f, ok := asFloat(v)
			if !ok {
				return nil, fmt.Errorf("memdf: %s over non-numeric cell %v", agg, v)
			}
			sum += f
			n++
		}
		if agg == transform.AggSum {
			return sum, nil
		}
		if n == 0 {
			return nil, nil
		}
		return sum / float64(n), nil
	case transform.AggMedian:
		vals := make([]float64, 0, len(cells))
		for _, v := range cells {
			if isNull(v) {
				continue
			}
			f, ok := asFloat(v)
			if !ok {
				return nil, fmt.Errorf("memdf: median over non-numeric cell %v", v)
			}
			vals = append(vals, f)
		}
		if len(vals) == 0 {
			return nil, nil
		}
		sort.Float64s(vals)
		mid := len(vals) / 2
		if len(vals)%2 == 1 {
			return vals[mid], nil
		}
		return (vals[mid-1] + vals[mid]) / 2, nil
	case transform.AggMin, transform.AggMax:
		var best any
		for _, v := range cells {
			if isNull(v) {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			c := compareCells(v, best)
			if (agg == transform.AggMin && c < 0) || (agg == transform.AggMax && c > 0) {
				best = v
			}
		}
		return best, nil
	default:
		return nil, fmt.Errorf("memdf: unknown aggregation %q", agg)
	}
}

// matchCondition evaluates one filter condition against a cell of the given
// column type.
func matchCondition(cell any, typ table.FieldType, cond transform.Condition) (bool, error) {
	switch cond.Operator {
	case transform.OpIsNull:
		return isNull(cell), nil
	case transform.OpIsNotNull:
		return !isNull(cell), nil
	case transform.OpIsTrue:
		b, ok := cell.(bool)
		return ok && b, nil
	case transform.OpIsFalse:
		b, ok := cell.(bool)
		return ok && !b, nil
	}

	if isNull(cell) {
		// A NaN cell counts as missing for null checks, but it still
		// compares against a coerced NaN sentinel operand.
		if f, ok := cell.(float64); ok && math.IsNaN(f) {
			if want, ok := cond.NumericValue(typ == table.FieldNumber); ok && math.IsNaN(want) {
				return compareFloats(f, want, cond.Operator), nil
			}
		}
		// Other comparisons against missing cells never match.
		if cond.Operator == transform.OpDoesNotEqual || cond.Operator == transform.OpNe {
			return true, nil
		}
		return false, nil
	}

	switch cond.Operator {
	case transform.OpEq, transform.OpNe, transform.OpLt, transform.OpLte, transform.OpGt, transform.OpGte:
		if f, ok := asFloat(cell); ok {
			want, ok := cond.NumericValue(typ == table.FieldNumber)
			if !ok {
				return false, nil
			}
			return compareFloats(f, want, cond.Operator), nil
		}
		// Non-numeric columns compare by string order.
		want, ok := cond.StringValue()
		if !ok {
			return false, nil
		}
		c := strings.Compare(stringify(cell), want)
		return compareOrdering(c, cond.Operator), nil
	case transform.OpEquals:
		s, ok := cond.StringValue()
		return ok && stringify(cell) == s, nil
	case transform.OpDoesNotEqual:
		s, ok := cond.StringValue()
		return ok && stringify(cell) != s, nil
	case transform.OpContains:
		s, ok := cond.StringValue()
		return ok && strings.Contains(stringify(cell), s), nil
	case transform.OpStartsWith:
		s, ok := cond.StringValue()
		return ok && strings.HasPrefix(stringify(cell), s), nil
	case transform.OpEndsWith:
		s, ok := cond.StringValue()
		return ok && strings.HasSuffix(stringify(cell), s), nil
	case transform.OpRegex:
		s, ok := cond.StringValue()
		if !ok {
			return false, nil
		}
		re, err := compileCondRegexp(s)
		if err != nil {
			return false, err
		}
		return re.MatchString(stringify(cell)), nil
	case transform.OpIn:
		vs, ok := cond.ListValue()
		if !ok {
			return false, nil
		}
		for _, want := range vs {
			if cellEquals(cell, want, typ) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("memdf: unknown operator %q", cond.Operator)
	}
}

func compareFloats(got, want float64, op transform.Operator) bool {
	if math.IsNaN(want) {
		// NaN compares equal only under explicit equality against the
		// coerced sentinel.
		if op == transform.OpEq {
			return math.IsNaN(got)
		}
		if op == transform.OpNe {
			return !math.IsNaN(got)
		}
		return false
	}
	switch op {
	case transform.OpEq:
		return got == want
	case transform.OpNe:
		return got != want
	case transform.OpLt:
		return got < want
	case transform.OpLte:
		return got <= want
	case transform.OpGt:
		return got > want
	case transform.OpGte:
		return got >= want
	default:
		return false
	}
}

func compareOrdering(c int, op transform.Operator) bool {
	switch op {
	case transform.OpEq:
		return c == 0
	case transform.OpNe:
		return c != 0
	case transform.OpLt:
		return c < 0
	case transform.OpLte:
		return c <= 0
	case transform.OpGt:
		return c > 0
	case transform.OpGte:
		return c >= 0
	default:
		return false
	}
}

func compileCondRegexp(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("memdf: invalid regex condition %q: %w", pattern, err)
	}
	return re, nil
}

func cellEquals(cell, want any, typ table.FieldType) bool {
	if f, ok := asFloat(cell); ok {
		cond := transform.Condition{Value: want}
		if w, ok := cond.NumericValue(typ == table.FieldNumber); ok {
			return f == w || (math.IsNaN(f) && math.IsNaN(w))
		}
		return false
	}
	return stringify(cell) == stringify(normalize(want))
}
