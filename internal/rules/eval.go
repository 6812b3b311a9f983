// CLAUDE:SUMMARY Pure recursive rule evaluation — all predicate kinds, fail-closed on unknown/missing/invalid.
package rules

import (
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// EventView is the slice of an event a rule can see.
type EventView struct {
	EventType  string
	Sentiment  float64
	Volume     float64
	Novelty    float64
	Severity   float64
	Confidence float64
	StartTs    int64 // milliseconds
	EndTs      int64
}

// Engine evaluates expressions. The clock is injectable so time-of-day and
// day-of-week predicates are testable.
type Engine struct {
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Matches evaluates an expression against one event. haystack, entitySet and
// sourceSet must already be lowercased by the caller.
func (e *Engine) Matches(expr *Expression, haystack string, entitySet, sourceSet map[string]bool, ev EventView) bool {
	if expr == nil {
		return false
	}
	if expr.Logic != nil {
		return e.evalGroup(expr.Logic, haystack, entitySet, sourceSet, ev)
	}

	// Legacy flat grammar: any AND all, empty lists default to true.
	anyOK := len(expr.Any) == 0
	for _, c := range expr.Any {
		if e.evalCondition(&c, haystack, entitySet, sourceSet, ev) {
			anyOK = true
			break
		}
	}
	allOK := true
	for _, c := range expr.All {
		if !e.evalCondition(&c, haystack, entitySet, sourceSet, ev) {
			allOK = false
			break
		}
	}
	return anyOK && allOK
}

func (e *Engine) evalGroup(g *Group, haystack string, entitySet, sourceSet map[string]bool, ev EventView) bool {
	switch strings.ToUpper(g.Operator) {
	case OpAnd:
		for _, c := range g.Conditions {
			if !e.evalCondition(&c, haystack, entitySet, sourceSet, ev) {
				return false
			}
		}
		return true
	case OpOr:
		for _, c := range g.Conditions {
			if e.evalCondition(&c, haystack, entitySet, sourceSet, ev) {
				return true
			}
		}
		return false
	case OpNot:
		// NOT negates its single condition; any other arity is malformed
		// and fails closed.
		if len(g.Conditions) != 1 {
			e.logger.Warn("rule NOT group requires exactly one condition", "got", len(g.Conditions))
			return false
		}
		return !e.evalCondition(&g.Conditions[0], haystack, entitySet, sourceSet, ev)
	case OpXor:
		trueCount := 0
		for _, c := range g.Conditions {
			if e.evalCondition(&c, haystack, entitySet, sourceSet, ev) {
				trueCount++
			}
		}
		return trueCount == 1
	default:
		e.logger.Warn("unknown rule operator", "operator", g.Operator)
		return false
	}
}

func (e *Engine) evalCondition(c *Condition, haystack string, entitySet, sourceSet map[string]bool, ev EventView) bool {
	// Nested group node.
	if c.Logic != nil {
		return e.evalGroup(c.Logic, haystack, entitySet, sourceSet, ev)
	}

	switch c.Type {
	case "contains_keyword":
		if c.Keyword == "" {
			return false
		}
		return strings.Contains(haystack, strings.ToLower(c.Keyword))

	case "contains_regex":
		if c.Pattern == "" {
			return false
		}
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			// Malformed pattern fails closed for this condition only.
			e.logger.Warn("invalid rule regex", "pattern", c.Pattern, "error", err)
			return false
		}
		return re.MatchString(haystack)

	case "starts_with":
		if c.Prefix == "" {
			return false
		}
		return strings.HasPrefix(haystack, strings.ToLower(c.Prefix))

	case "ends_with":
		if c.Suffix == "" {
			return false
		}
		return strings.HasSuffix(haystack, strings.ToLower(c.Suffix))

	case "mentions_entity":
		if c.Entity == "" {
			return false
		}
		return entitySet[strings.ToLower(c.Entity)]

	case "mentions_any_entity":
		for _, ent := range c.Entities {
			if entitySet[strings.ToLower(ent)] {
				return true
			}
		}
		return false

	case "mentions_all_entities":
		if len(c.Entities) == 0 {
			return false
		}
		for _, ent := range c.Entities {
			if !entitySet[strings.ToLower(ent)] {
				return false
			}
		}
		return true

	case "co_mention":
		if c.EntityA == "" || c.EntityB == "" {
			return false
		}
		return entitySet[strings.ToLower(c.EntityA)] && entitySet[strings.ToLower(c.EntityB)]

	case "source_in":
		for _, src := range c.Sources {
			if sourceSet[strings.ToLower(src)] {
				return true
			}
		}
		return false

	case "source_not_in":
		for _, src := range c.Sources {
			if sourceSet[strings.ToLower(src)] {
				return false
			}
		}
		return true

	case "sentiment":
		return e.compareNumber(c, ev.Sentiment)
	case "volume":
		return e.compareNumber(c, ev.Volume)
	case "novelty":
		return e.compareNumber(c, ev.Novelty)
	case "severity":
		return e.compareNumber(c, ev.Severity)
	case "confidence":
		return e.compareNumber(c, ev.Confidence)

	// Legacy numeric aliases kept for stored rules predating the
	// operator/value form.
	case "sentiment_below":
		v, ok := c.numberValue()
		return ok && ev.Sentiment < v
	case "sentiment_above":
		v, ok := c.numberValue()
		return ok && ev.Sentiment > v
	case "volume_spike":
		v, ok := c.numberValue()
		return ok && ev.Volume > v
	case "novelty_above":
		v, ok := c.numberValue()
		return ok && ev.Novelty > v

	case "time_of_day":
		if c.StartHour == nil || c.EndHour == nil {
			return false
		}
		hour := e.now().UTC().Hour()
		start, end := *c.StartHour, *c.EndHour
		if start > end {
			// Window wraps across midnight, e.g. 22..6.
			return hour >= start || hour < end
		}
		return hour >= start && hour < end

	case "day_of_week":
		if len(c.Days) == 0 {
			return false
		}
		// time.Weekday has Sunday=0; rules use Monday=1..Sunday=7.
		wd := int(e.now().UTC().Weekday())
		if wd == 0 {
			wd = 7
		}
		for _, d := range c.Days {
			if d == wd {
				return true
			}
		}
		return false

	case "date_range":
		if c.StartTs == nil && c.EndTs == nil {
			return false
		}
		if c.StartTs != nil && ev.EndTs < *c.StartTs {
			return false
		}
		if c.EndTs != nil && ev.EndTs > *c.EndTs {
			return false
		}
		return true

	case "event_type":
		v, ok := c.stringValue()
		if !ok {
			return false
		}
		return strings.EqualFold(ev.EventType, v)

	case "event_type_in":
		for _, t := range c.Types {
			if strings.EqualFold(ev.EventType, t) {
				return true
			}
		}
		return false

	default:
		// Forward compatibility: rules written for a newer engine must not
		// break evaluation here.
		e.logger.Warn("unknown rule condition type", "type", c.Type)
		return false
	}
}

func (e *Engine) compareNumber(c *Condition, field float64) bool {
	v, ok := c.numberValue()
	if !ok || c.Operator == "" {
		return false
	}
	switch c.Operator {
	case ">":
		return field > v
	case ">=":
		return field >= v
	case "<":
		return field < v
	case "<=":
		return field <= v
	case "==":
		return field == v
	case "!=":
		return field != v
	default:
		e.logger.Warn("unknown rule comparison operator", "operator", c.Operator)
		return false
	}
}
