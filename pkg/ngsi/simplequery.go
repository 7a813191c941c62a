package ngsi

import (
	"fmt"
	"strconv"
	"strings"
)

// QueryOperator is a comparison operator of the NGSIv2 Simple Query
// Language.
type QueryOperator string

// Simple Query Language operators.
const (
	OpEqual        QueryOperator = "=="
	OpUnequal      QueryOperator = "!="
	OpGreater      QueryOperator = ">"
	OpLess         QueryOperator = "<"
	OpGreaterEqual QueryOperator = ">="
	OpLessEqual    QueryOperator = "<="
	OpMatchPattern QueryOperator = "~="
)

// parseOperators lists the operators in scan order; two-character
// operators come first so ">=" is never read as ">".
var parseOperators = []QueryOperator{
	OpEqual,
	OpUnequal,
	OpGreaterEqual,
	OpLessEqual,
	OpMatchPattern,
	OpGreater,
	OpLess,
}

// Statement is a single attribute comparison of the Simple Query
// Language, rendered as left, operator, and right concatenated.
type Statement struct {
	Left     string        `json:"left"     yaml:"left"`
	Operator QueryOperator `json:"operator" yaml:"operator"`
	Right    string        `json:"right"    yaml:"right"`
}

// NewStatement builds a statement. The operator must be a known Simple
// Query operator, and the ordering operators (>, <, >=, <=) require a
// numeric right side; numeric strings qualify.
func NewStatement(left string, op QueryOperator, right any) (Statement, error) {
	if left == "" {
		return Statement{}, &ValidationError{Field: "q", Reason: "statement left side must not be empty"}
	}

	rendered, err := renderOperand(right)
	if err != nil {
		return Statement{}, err
	}

	switch op {
	case OpEqual, OpUnequal, OpMatchPattern:
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		_, numErr := strconv.ParseFloat(rendered, 64)
		if numErr != nil {
			return Statement{}, &ValidationError{
				Field:  "q",
				Reason: fmt.Sprintf("operator %q requires a numeric right side, got %q", op, rendered),
			}
		}
	default:
		return Statement{}, &ValidationError{Field: "q", Reason: fmt.Sprintf("unknown operator %q", op)}
	}

	return Statement{Left: left, Operator: op, Right: rendered}, nil
}

// String renders the statement in its wire form.
func (s Statement) String() string {
	return s.Left + string(s.Operator) + s.Right
}

func renderOperand(right any) (string, error) {
	switch v := right.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", &ValidationError{Field: "q", Reason: fmt.Sprintf("unsupported right side type %T", right)}
	}
}

// SimpleQuery is an ordered conjunction of statements, rendered joined
// with ';'. Duplicate statements collapse onto their first occurrence,
// so a query always renders deterministically.
type SimpleQuery struct {
	statements []Statement
}

// NewSimpleQuery builds a query from the given statements.
func NewSimpleQuery(statements ...Statement) *SimpleQuery {
	q := &SimpleQuery{}
	for _, s := range statements {
		q.Add(s)
	}

	return q
}

// Add appends a statement, ignoring exact duplicates.
func (q *SimpleQuery) Add(s Statement) {
	for _, existing := range q.statements {
		if existing == s {
			return
		}
	}

	q.statements = append(q.statements, s)
}

// Statements returns a copy of the statements in render order.
func (q *SimpleQuery) Statements() []Statement {
	out := make([]Statement, len(q.statements))
	copy(out, q.statements)

	return out
}

// String renders the query in its wire form.
func (q *SimpleQuery) String() string {
	parts := make([]string, len(q.statements))
	for i, s := range q.statements {
		parts[i] = s.String()
	}

	return strings.Join(parts, ";")
}

// ParseSimpleQuery parses a wire-form query string back into its
// statements, validating each one.
func ParseSimpleQuery(raw string) (*SimpleQuery, error) {
	q := &SimpleQuery{}

	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		stmt, err := parseStatement(part)
		if err != nil {
			return nil, err
		}

		q.Add(stmt)
	}

	return q, nil
}

// parseStatement locates the earliest operator occurrence, preferring
// the longer operator when two match at the same position.
func parseStatement(part string) (Statement, error) {
	bestIdx := -1

	var bestOp QueryOperator

	for _, op := range parseOperators {
		idx := strings.Index(part, string(op))
		if idx < 0 {
			continue
		}

		if bestIdx == -1 || idx < bestIdx || (idx == bestIdx && len(op) > len(bestOp)) {
			bestIdx = idx
			bestOp = op
		}
	}

	if bestIdx < 0 {
		return Statement{}, &ValidationError{Field: "q", Reason: fmt.Sprintf("no operator found in %q", part)}
	}

	left := part[:bestIdx]
	right := part[bestIdx+len(bestOp):]

	return NewStatement(left, bestOp, right)
}
