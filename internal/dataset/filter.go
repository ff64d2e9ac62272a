package dataset

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
)

/*
This is a parser for a simple record filter language with the following grammar:

Query       := Expr
Expr        := OrExpr ( "OR" OrExpr )*
OrExpr      := AndExpr ( "AND" AndExpr )*
AndExpr     := Condition | "NOT" Condition
Condition   := Comparison | "(" Expr ")"
Comparison  := Field Op Value
Field       := "text1" | "text2" | "condition" | "label"
Op          := "CONTAINS" | "<" | ">" | "="
Value       := <string> | <number>

String fields support CONTAINS and =, label supports <, >, and =.
*/

var filterParser = participle.MustBuild[filterQuery](
	participle.Unquote("String"),
	participle.Union[filterValue](stringValue{}, numberValue{}),
)

// Filter decides whether a normalized record is kept.
type Filter interface {
	Matches(r Record) bool
}

// ParseFilter compiles a filter expression. An empty expression matches
// everything.
func ParseFilter(query string) (Filter, error) {
	if strings.TrimSpace(query) == "" {
		return matchAll{}, nil
	}

	q, err := filterParser.ParseString("", query)
	if err != nil {
		return nil, fmt.Errorf("error parsing filter '%s': %w", query, err)
	}

	filter, err := q.toFilter()
	if err != nil {
		return nil, fmt.Errorf("error converting filter '%s': %w", query, err)
	}

	return filter, nil
}

// FilterRecords returns the records matching the filter, in order.
func FilterRecords(records []Record, filter Filter) []Record {
	if filter == nil {
		return records
	}
	var kept []Record
	for _, r := range records {
		if filter.Matches(r) {
			kept = append(kept, r)
		}
	}
	return kept
}

type matchAll struct{}

func (matchAll) Matches(Record) bool { return true }

type andFilter struct {
	filters []Filter
}

func (f *andFilter) Matches(r Record) bool {
	for _, sub := range f.filters {
		if !sub.Matches(r) {
			return false
		}
	}
	return true
}

type orFilter struct {
	filters []Filter
}

func (f *orFilter) Matches(r Record) bool {
	for _, sub := range f.filters {
		if sub.Matches(r) {
			return true
		}
	}
	return false
}

type notFilter struct {
	filter Filter
}

func (f *notFilter) Matches(r Record) bool {
	return !f.filter.Matches(r)
}

type substringFilter struct {
	field  string
	substr string
}

func (f *substringFilter) Matches(r Record) bool {
	value, ok := fieldValue(r, f.field)
	return ok && strings.Contains(value, f.substr)
}

type stringEqFilter struct {
	field string
	value string
}

func (f *stringEqFilter) Matches(r Record) bool {
	value, ok := fieldValue(r, f.field)
	return ok && value == f.value
}

type labelCmpFilter struct {
	op    string
	value float64
}

func (f *labelCmpFilter) Matches(r Record) bool {
	switch f.op {
	case "<":
		return r.Label < f.value
	case ">":
		return r.Label > f.value
	default:
		return r.Label == f.value
	}
}

func fieldValue(r Record, field string) (string, bool) {
	switch field {
	case "text1":
		return r.Text1, true
	case "text2":
		return r.Text2, true
	case "condition":
		return r.Condition, true
	default:
		return "", false
	}
}

func isStringField(field string) bool {
	_, ok := fieldValue(Record{}, field)
	return ok
}

type filterQuery struct {
	Expr *filterExpr `@@`
}

func (q *filterQuery) toFilter() (Filter, error) {
	return q.Expr.toFilter()
}

type filterExpr struct {
	Ors []*orExpr `@@ ( "OR" @@ )*`
}

func (e *filterExpr) toFilter() (Filter, error) {
	if len(e.Ors) == 0 {
		return nil, fmt.Errorf("empty OR expression")
	}

	if len(e.Ors) == 1 {
		return e.Ors[0].toFilter()
	}

	var filters []Filter
	for _, sub := range e.Ors {
		f, err := sub.toFilter()
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}

	return &orFilter{filters: filters}, nil
}

type orExpr struct {
	Ands []*condition `@@ ( "AND" @@ )*`
}

func (e *orExpr) toFilter() (Filter, error) {
	if len(e.Ands) == 0 {
		return nil, fmt.Errorf("empty AND expression")
	}

	if len(e.Ands) == 1 {
		return e.Ands[0].toFilter()
	}

	var filters []Filter
	for _, sub := range e.Ands {
		f, err := sub.toFilter()
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}

	return &andFilter{filters: filters}, nil
}

type condition struct {
	Not     bool        `@"NOT"?`
	Cmp     *comparison ` @@`
	SubExpr *filterExpr `| "(" @@ ")"`
}

func (c *condition) toFilter() (Filter, error) {
	var filter Filter
	var err error
	if c.Cmp != nil {
		filter, err = c.Cmp.toFilter()
	} else if c.SubExpr != nil {
		filter, err = c.SubExpr.toFilter()
	}

	if err != nil {
		return nil, err
	}

	if c.Not {
		filter = &notFilter{filter: filter}
	}

	return filter, nil
}

type comparison struct {
	Field string      `@Ident`
	Op    string      `@("CONTAINS" | "<" | ">" | "=")`
	Value filterValue `@@`
}

func (c *comparison) toFilter() (Filter, error) {
	if c.Field == "label" {
		n, ok := c.Value.(numberValue)
		if !ok {
			return nil, fmt.Errorf("label comparison requires a numeric value")
		}
		switch c.Op {
		case "<", ">", "=":
			return &labelCmpFilter{op: c.Op, value: n.Value}, nil
		default:
			return nil, fmt.Errorf("invalid operator %s used with label", c.Op)
		}
	}

	if !isStringField(c.Field) {
		return nil, fmt.Errorf("unknown filter field %q", c.Field)
	}

	s, ok := c.Value.(stringValue)
	if !ok {
		return nil, fmt.Errorf("comparison on %s requires a string value", c.Field)
	}

	switch c.Op {
	case "CONTAINS":
		return &substringFilter{field: c.Field, substr: s.Value}, nil
	case "=":
		return &stringEqFilter{field: c.Field, value: s.Value}, nil
	default:
		return nil, fmt.Errorf("invalid operator %s used with string field %s", c.Op, c.Field)
	}
}

type filterValue interface{ value() }

type stringValue struct {
	Value string `@String`
}

func (stringValue) value() {}

type numberValue struct {
	Value float64 `@(Float | Int)`
}

func (numberValue) value() {}
