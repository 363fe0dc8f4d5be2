// Display-filter mini-language (spec §6): case-insensitive substring by
// default; a leading `~` on a term's value switches it to regex; a
// leading `-` negates the term. Terms are separated by whitespace and
// ANDed together; a term may be column-qualified (`from:alice`) or bare
// (matches the "any" pseudo-column spanning Call-ID/from/to/src/dst).
//
// Columns named by spec §6: Call-ID, from, to, src, dst, method, state,
// duration (duration is numeric — see NumericCompare handling below for
// the `duration>30` form).
package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var displayColumns = map[string]bool{
	"callid": true, "from": true, "to": true, "src": true,
	"dst": true, "method": true, "state": true, "duration": true, "any": true,
}

// numericCompareOps maps a comparison token to its CompareOp, ordered so
// two-character operators are tried before their one-character prefix.
var numericCompareOps = []struct {
	token string
	op    CompareOp
}{
	{">=", OpGreaterEqual}, {"<=", OpLessEqual}, {"!=", OpNotEqual},
	{">", OpGreater}, {"<", OpLess}, {"=", OpEqual},
}

// ParseDisplayFilter compiles a display-filter expression into a
// Predicate tree (spec §4.6's "Evaluation is pure and idempotent").
func ParseDisplayFilter(expr string) (Predicate, error) {
	fields := strings.Fields(expr)
	if len(fields) == 0 {
		return And{}, nil
	}

	var terms And
	for _, field := range fields {
		pred, err := parseTerm(field)
		if err != nil {
			return nil, err
		}
		terms = append(terms, pred)
	}
	return terms, nil
}

func parseTerm(field string) (Predicate, error) {
	negate := false
	if strings.HasPrefix(field, "-") {
		negate = true
		field = field[1:]
	}

	column := "any"
	value := field
	if idx := strings.IndexByte(field, ':'); idx != -1 {
		col := strings.ToLower(field[:idx])
		if displayColumns[col] {
			column = col
			value = field[idx+1:]
		}
	}

	var pred Predicate
	switch {
	case column == "duration":
		numPred, err := parseNumericTerm(column, value)
		if err != nil {
			return nil, err
		}
		pred = numPred
	case strings.HasPrefix(value, "~"):
		re, err := regexp.Compile("(?i)" + value[1:])
		if err != nil {
			return nil, fmt.Errorf("filter: bad regex %q: %w", value, err)
		}
		pred = Regexp{Key: column, Re: re}
	default:
		pred = Contains{Key: column, Substr: value}
	}

	if negate {
		return Not{Predicate: pred}, nil
	}
	return pred, nil
}

func parseNumericTerm(column, value string) (Predicate, error) {
	for _, candidate := range numericCompareOps {
		if rest, ok := strings.CutPrefix(value, candidate.token); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("filter: bad numeric value %q: %w", value, err)
			}
			return NumericCompare{Key: column, Op: candidate.op, Value: n}, nil
		}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("filter: bad numeric value %q: %w", value, err)
	}
	return NumericCompare{Key: column, Op: OpEqual, Value: n}, nil
}
