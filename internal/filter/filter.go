// Package filter compiles user expressions into a predicate tree over
// named Call/Message attributes (spec §4.6): equality, substring, regex,
// and numeric-comparison leaves combined with and/or/not. Evaluation is
// pure and idempotent, independent of the capture-side BPF filter
// (internal/capture/bpf.go), which runs before the dissector chain ever
// sees a packet.
package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Attrs is the read-only view a Predicate evaluates against — one
// Message's worth of named values. Callers (storage, the presentation
// layer) adapt their own Call/Message shape into this map once per
// evaluation; keeping Predicate decoupled from storage.Call avoids an
// import cycle between filter and storage.
type Attrs map[string]string

// NumericAttrs additionally exposes integer-valued attributes (msgcnt,
// duration) for NumericCompare leaves, which compare magnitude rather
// than string order.
type NumericAttrs map[string]int64

// Predicate is one node of the compiled filter tree.
type Predicate interface {
	Match(attrs Attrs, nums NumericAttrs) bool
	String() string
}

// Equals matches when attrs[Key] case-sensitively equals Value.
type Equals struct{ Key, Value string }

func (e Equals) Match(attrs Attrs, _ NumericAttrs) bool { return attrs[e.Key] == e.Value }
func (e Equals) String() string                         { return fmt.Sprintf("%s=%s", e.Key, e.Value) }

// Contains matches a case-insensitive substring.
type Contains struct{ Key, Substr string }

func (c Contains) Match(attrs Attrs, _ NumericAttrs) bool {
	return strings.Contains(strings.ToLower(attrs[c.Key]), strings.ToLower(c.Substr))
}
func (c Contains) String() string { return fmt.Sprintf("%s~%s", c.Key, c.Substr) }

// Regexp matches attrs[Key] against a compiled regular expression.
type Regexp struct {
	Key string
	Re  *regexp.Regexp
}

func (r Regexp) Match(attrs Attrs, _ NumericAttrs) bool { return r.Re.MatchString(attrs[r.Key]) }
func (r Regexp) String() string                         { return fmt.Sprintf("%s~=/%s/", r.Key, r.Re.String()) }

// CompareOp is a NumericCompare operator.
type CompareOp int

const (
	OpEqual CompareOp = iota
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
)

// NumericCompare matches nums[Key] against Value using Op.
type NumericCompare struct {
	Key   string
	Op    CompareOp
	Value int64
}

func (n NumericCompare) Match(_ Attrs, nums NumericAttrs) bool {
	v := nums[n.Key]
	switch n.Op {
	case OpEqual:
		return v == n.Value
	case OpNotEqual:
		return v != n.Value
	case OpLess:
		return v < n.Value
	case OpLessEqual:
		return v <= n.Value
	case OpGreater:
		return v > n.Value
	case OpGreaterEqual:
		return v >= n.Value
	default:
		return false
	}
}

func (n NumericCompare) String() string {
	ops := map[CompareOp]string{OpEqual: "==", OpNotEqual: "!=", OpLess: "<", OpLessEqual: "<=", OpGreater: ">", OpGreaterEqual: ">="}
	return fmt.Sprintf("%s%s%d", n.Key, ops[n.Op], n.Value)
}

// And/Or/Not are boolean combinators over child Predicates.
type And []Predicate
type Or []Predicate
type Not struct{ Predicate Predicate }

func (a And) Match(attrs Attrs, nums NumericAttrs) bool {
	for _, p := range a {
		if !p.Match(attrs, nums) {
			return false
		}
	}
	return true
}
func (a And) String() string { return joinPredicates(a, " and ") }

func (o Or) Match(attrs Attrs, nums NumericAttrs) bool {
	for _, p := range o {
		if p.Match(attrs, nums) {
			return true
		}
	}
	return false
}
func (o Or) String() string { return joinPredicates(o, " or ") }

func (n Not) Match(attrs Attrs, nums NumericAttrs) bool { return !n.Predicate.Match(attrs, nums) }
func (n Not) String() string                            { return "not " + n.Predicate.String() }

func joinPredicates(preds []Predicate, sep string) string {
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// ParseNumericValue turns a string operand into an int64 for
// NumericCompare. display.go's mini-language parses its numbers with
// strconv directly and does not call it.
func ParseNumericValue(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}
