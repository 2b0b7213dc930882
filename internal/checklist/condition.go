package checklist

import (
	"fmt"
	"slices"
	"strings"
)

type condKind int

const (
	condAnswered condKind = iota // empty condition: any answer
	condEqual
	condNotEqual
	condGreater
	condGreaterEq
	condLess
	condLessEq
	condMember
)

// Condition is a parsed display condition evaluated against a parent answer.
//
// Supported forms: "" (parent answered), "X" or "=X" (exact match), "!=X",
// ">N", ">=N", "<N", "<=N" (numeric), and "A;B;C" (one of).
type Condition struct {
	kind condKind
	text string
	num  float64
	set  []string
}

// ParseCondition parses a display condition.
func ParseCondition(s string) (Condition, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Condition{kind: condAnswered}, nil
	}

	for _, op := range []struct {
		prefix string
		kind   condKind
	}{
		{">=", condGreaterEq},
		{"<=", condLessEq},
		{"!=", condNotEqual},
		{">", condGreater},
		{"<", condLess},
		{"=", condEqual},
	} {
		if !strings.HasPrefix(s, op.prefix) {
			continue
		}
		operand := strings.TrimSpace(strings.TrimPrefix(s, op.prefix))
		if operand == "" {
			return Condition{}, fmt.Errorf("condition %q: missing operand", s)
		}
		c := Condition{kind: op.kind, text: operand}
		if op.kind != condEqual && op.kind != condNotEqual {
			n, err := ParseNumber(operand)
			if err != nil {
				return Condition{}, fmt.Errorf("condition %q: %q is not a number", s, operand)
			}
			c.num = n
		}
		return c, nil
	}

	if strings.Contains(s, ";") {
		set := ParseList(s)
		if len(set) == 0 {
			return Condition{}, fmt.Errorf("condition %q: empty set", s)
		}
		return Condition{kind: condMember, set: set}, nil
	}
	return Condition{kind: condEqual, text: s}, nil
}

// Match reports whether an answer value satisfies the condition. An empty
// value never matches.
func (c Condition) Match(value string) bool {
	v := strings.TrimSpace(value)
	if v == "" {
		return false
	}
	switch c.kind {
	case condAnswered:
		return true
	case condEqual:
		return v == c.text
	case condNotEqual:
		return v != c.text
	case condMember:
		return slices.Contains(c.set, v)
	}

	n, err := ParseNumber(v)
	if err != nil {
		return false
	}
	switch c.kind {
	case condGreater:
		return n > c.num
	case condGreaterEq:
		return n >= c.num
	case condLess:
		return n < c.num
	case condLessEq:
		return n <= c.num
	}
	return false
}
