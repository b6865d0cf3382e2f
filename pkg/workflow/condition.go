package workflow

import "strings"

// EvaluateConditions evaluates a step's guard against the execution
// context. An empty list is vacuously true. Composition is strictly left
// to right with no precedence: the connector stored on condition i joins
// the accumulator with condition i+1.
func EvaluateConditions(conds []Condition, exec *Execution) bool {
	if len(conds) == 0 {
		return true
	}
	acc := evaluateCondition(conds[0], exec)
	for i := 1; i < len(conds); i++ {
		next := evaluateCondition(conds[i], exec)
		switch conds[i-1].Connector {
		case ConnectorOr:
			acc = acc || next
		default:
			acc = acc && next
		}
	}
	return acc
}

// evaluateCondition evaluates one (field, operator, value) triple. An
// undefined field is false for every positive operator and true only for
// notExists and notEquals.
func evaluateCondition(cond Condition, exec *Execution) bool {
	left, defined := exec.resolveField(cond.Field)
	if !defined {
		return cond.Op == OpNotExists || cond.Op == OpNotEquals
	}

	switch cond.Op {
	case OpEquals:
		return equalValues(left, cond.Value)

	case OpNotEquals:
		return !equalValues(left, cond.Value)

	case OpContains:
		return strings.Contains(toString(left), toString(cond.Value))

	case OpNotContains:
		return !strings.Contains(toString(left), toString(cond.Value))

	case OpGreaterThan:
		lf, lok := toFloat(left)
		rf, rok := toFloat(cond.Value)
		return lok && rok && lf > rf

	case OpLessThan:
		lf, lok := toFloat(left)
		rf, rok := toFloat(cond.Value)
		return lok && rok && lf < rf

	case OpExists:
		return left != nil

	case OpNotExists:
		return left == nil

	case OpIn:
		return containsValue(cond.Value, left)

	case OpNotIn:
		return !containsValue(cond.Value, left)

	default:
		// Unknown operators are rejected at validation; an unvalidated
		// ad-hoc condition never passes.
		return false
	}
}
