// CLAUDE:SUMMARY Rule expression model — nested logic trees and the legacy flat any/all grammar.
// Package rules implements the boolean rule language evaluated against events.
//
// Two grammars are accepted:
//
//   - nested:      {"logic":{"operator":"AND","conditions":[...]}} — groups
//     recurse, conditions may themselves be groups
//   - legacy flat: {"any":[...],"all":[...]} — result is any AND all, where
//     an empty list defaults to true
//
// Evaluation is forward-compatible by policy: an unknown condition type logs
// a warning and evaluates to false; a condition missing a required field
// evaluates to false at the point of use. Neither ever aborts evaluation of
// sibling conditions, other rules, or other events.
package rules

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Logical operators for condition groups.
const (
	OpAnd = "AND"
	OpOr  = "OR"
	OpNot = "NOT"
	OpXor = "XOR"
)

// Expression is a parsed rule expression in either grammar.
type Expression struct {
	Logic *Group      `json:"logic,omitempty"`
	Any   []Condition `json:"any,omitempty"`
	All   []Condition `json:"all,omitempty"`
}

// Group is a logical operator applied to child conditions.
type Group struct {
	Operator   string      `json:"operator"`
	Conditions []Condition `json:"conditions"`
}

// Condition is one node of a rule tree: either a leaf predicate (Type set)
// or a nested group (Logic set).
type Condition struct {
	Logic *Group `json:"logic,omitempty"`

	Type string `json:"type,omitempty"`

	// Text predicates.
	Keyword string `json:"keyword,omitempty"`
	Pattern string `json:"pattern,omitempty"`
	Prefix  string `json:"prefix,omitempty"`
	Suffix  string `json:"suffix,omitempty"`

	// Entity predicates.
	Entity   string   `json:"entity,omitempty"`
	Entities []string `json:"entities,omitempty"`
	EntityA  string   `json:"entityA,omitempty"`
	EntityB  string   `json:"entityB,omitempty"`

	// Source predicates.
	Sources []string `json:"sources,omitempty"`

	// Numeric predicates: {"operator":">","value":0.5}. Value is raw so the
	// same field carries numbers (numeric predicates) and strings
	// (event_type); typed accessors below report absence.
	Operator string          `json:"operator,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`

	// Time predicates.
	StartHour *int   `json:"start_hour,omitempty"`
	EndHour   *int   `json:"end_hour,omitempty"`
	Days      []int  `json:"days,omitempty"` // 1..7, Monday=1
	StartTs   *int64 `json:"start_ts,omitempty"`
	EndTs     *int64 `json:"end_ts,omitempty"`

	// Event type predicate.
	Types []string `json:"types,omitempty"`
}

// numberValue decodes Value as a float64. ok is false when the field is
// absent or not a number.
func (c *Condition) numberValue() (float64, bool) {
	if len(c.Value) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(c.Value, &f); err != nil {
		return 0, false
	}
	return f, true
}

// stringValue decodes Value as a string. ok is false when the field is
// absent or not a string.
func (c *Condition) stringValue() (string, bool) {
	if len(c.Value) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(c.Value, &s); err != nil {
		return "", false
	}
	return s, true
}

// Parse decodes a rule expression from its stored JSON form.
func Parse(ruleJSON string) (*Expression, error) {
	if strings.TrimSpace(ruleJSON) == "" {
		return &Expression{}, nil
	}
	var expr Expression
	if err := json.Unmarshal([]byte(ruleJSON), &expr); err != nil {
		return nil, fmt.Errorf("parse rule expression: %w", err)
	}
	return &expr, nil
}
