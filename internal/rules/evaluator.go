package rules

import (
	"strings"

	"go.uber.org/zap"

	"github.com/unclebandit/campaign-engine/internal/model"
)

// Evaluator walks a filter tree against one recipient's attributes.
// It is pure and reentrant: no state is kept between calls, so one
// Evaluator can serve every dispatch worker at once.
type Evaluator struct {
	log *zap.SugaredLogger
}

func NewEvaluator(log *zap.SugaredLogger) *Evaluator {
	return &Evaluator{log: log}
}

// EvaluateGroup evaluates a group node. An empty and-group is vacuously
// true, an empty or-group is false. Both kinds short-circuit.
func (e *Evaluator) EvaluateGroup(g *model.FilterGroup, attrs map[string]any) bool {
	if g.Operator == model.GroupOr {
		for i := range g.Children {
			if e.evaluateNode(&g.Children[i], attrs) {
				return true
			}
		}
		return false
	}
	// and (also the default for an unknown operator)
	for i := range g.Children {
		if !e.evaluateNode(&g.Children[i], attrs) {
			return false
		}
	}
	return true
}

func (e *Evaluator) evaluateNode(n *model.FilterNode, attrs map[string]any) bool {
	switch {
	case n.Group != nil:
		return e.EvaluateGroup(n.Group, attrs)
	case n.Rule != nil:
		return e.EvaluateRule(n.Rule, attrs)
	}
	return false
}

// EvaluateRule evaluates a leaf rule. A missing field satisfies the
// negative operators (absence satisfies "not") and fails the rest.
// Malformed rules evaluate false and are logged, never fatal.
func (e *Evaluator) EvaluateRule(r *model.FilterRule, attrs map[string]any) bool {
	attr, ok := attrs[r.Field]
	if !ok {
		switch r.Operator {
		case model.OpNotEquals, model.OpNotContains, model.OpNotIn:
			return true
		}
		return false
	}

	switch r.Operator {
	case model.OpEquals:
		return valueEquals(attr, r.Value)
	case model.OpNotEquals:
		return !valueEquals(attr, r.Value)
	case model.OpContains:
		return contains(attr, r.Value)
	case model.OpNotContains:
		return !contains(attr, r.Value)
	case model.OpGreaterThan:
		a, b, ok := bothNumeric(attr, r.Value)
		return ok && a > b
	case model.OpLessThan:
		a, b, ok := bothNumeric(attr, r.Value)
		return ok && a < b
	case model.OpIn, model.OpNotIn:
		seq, ok := asSequence(r.Value)
		if !ok {
			e.malformed(r, "in/not_in value is not a sequence")
			return false
		}
		found := false
		for _, v := range seq {
			if valueEquals(attr, v) {
				found = true
				break
			}
		}
		if r.Operator == model.OpIn {
			return found
		}
		return !found
	case model.OpBetween:
		pair, ok := asSequence(r.Value)
		if !ok || len(pair) != 2 {
			e.malformed(r, "between value is not a [lo, hi] pair")
			return false
		}
		a, lo, ok1 := bothNumeric(attr, pair[0])
		_, hi, ok2 := bothNumeric(attr, pair[1])
		if !ok1 || !ok2 {
			e.malformed(r, "between bounds are not numeric")
			return false
		}
		return a >= lo && a <= hi
	}
	e.malformed(r, "unknown operator")
	return false
}

func (e *Evaluator) malformed(r *model.FilterRule, why string) {
	if e.log != nil {
		e.log.Warnw("⚠️ malformed filter rule", "field", r.Field, "operator", r.Operator, "why", why)
	}
}

// valueEquals is type-aware: values that both coerce to numbers compare
// numerically (a JSON 42 equals an attribute int64(42)), everything else
// compares as strings.
func valueEquals(a, b any) bool {
	if fa, ok := asNumber(a); ok {
		if fb, ok := asNumber(b); ok {
			return fa == fb
		}
		return false
	}
	if _, ok := asNumber(b); ok {
		return false
	}
	return asString(a) == asString(b)
}

func contains(attr, value any) bool {
	switch v := attr.(type) {
	case string:
		return strings.Contains(v, asString(value))
	case []any:
		for _, item := range v {
			if valueEquals(item, value) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range v {
			if item == asString(value) {
				return true
			}
		}
		return false
	}
	return false
}

func bothNumeric(a, b any) (float64, float64, bool) {
	fa, ok1 := asNumber(a)
	fb, ok2 := asNumber(b)
	return fa, fb, ok1 && ok2
}

func asSequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	}
	return nil, false
}
