// Package rules decides whether a question is shown given the answers
// collected so far.
package rules

import (
	"strings"
)

type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorContains    Operator = "contains"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
)

type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// Rule compares the answer stored under DependsOn with Value.
type Rule struct {
	DependsOn string   `json:"dependsOn"`
	Operator  Operator `json:"operator"`
	Value     any      `json:"value"`
}

// RuleSet combines rules with Logic. An empty set always matches.
type RuleSet struct {
	Logic Logic  `json:"logic,omitempty"`
	Rules []Rule `json:"rules,omitempty"`
}

func (s RuleSet) Empty() bool {
	return len(s.Rules) == 0
}

// Evaluate reports whether a question guarded by set is visible. It never
// fails: unknown operators evaluate to false and unknown logic behaves as and.
func Evaluate(set *RuleSet, answers map[string]any) bool {
	if set == nil || len(set.Rules) == 0 {
		return true
	}
	if set.Logic == LogicOr {
		for _, rule := range set.Rules {
			if EvaluateRule(rule, answers) {
				return true
			}
		}
		return false
	}
	for _, rule := range set.Rules {
		if !EvaluateRule(rule, answers) {
			return false
		}
	}
	return true
}

// EvaluateRule evaluates a single rule. A missing or null answer only
// satisfies not_equals.
func EvaluateRule(rule Rule, answers map[string]any) bool {
	answer, ok := answers[rule.DependsOn]
	if !ok || answer == nil {
		return rule.Operator == OperatorNotEquals
	}

	switch rule.Operator {
	case OperatorEquals:
		return CanonicalString(answer) == CanonicalString(rule.Value)
	case OperatorNotEquals:
		return CanonicalString(answer) != CanonicalString(rule.Value)
	case OperatorContains:
		needle := CanonicalString(rule.Value)
		if items, isList := answer.([]any); isList {
			for _, item := range items {
				if strings.Contains(CanonicalString(item), needle) {
					return true
				}
			}
			return false
		}
		if items, isList := answer.([]string); isList {
			for _, item := range items {
				if strings.Contains(item, needle) {
					return true
				}
			}
			return false
		}
		return strings.Contains(CanonicalString(answer), needle)
	case OperatorGreaterThan:
		return CanonicalNumber(answer) > CanonicalNumber(rule.Value)
	case OperatorLessThan:
		return CanonicalNumber(answer) < CanonicalNumber(rule.Value)
	default:
		return false
	}
}

// Visible returns the keys of questions that are visible for answers, in
// the order they were given.
func Visible(guards map[string]*RuleSet, order []string, answers map[string]any) []string {
	out := make([]string, 0, len(order))
	for _, key := range order {
		if Evaluate(guards[key], answers) {
			out = append(out, key)
		}
	}
	return out
}
