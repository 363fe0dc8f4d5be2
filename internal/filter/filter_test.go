package filter

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEqualsMatch(t *testing.T) {
	p := Equals{Key: "method", Value: "INVITE"}
	require.True(t, p.Match(Attrs{"method": "INVITE"}, nil))
	require.False(t, p.Match(Attrs{"method": "BYE"}, nil))
}

func TestContainsCaseInsensitive(t *testing.T) {
	p := Contains{Key: "from", Substr: "ALICE"}
	require.True(t, p.Match(Attrs{"from": "sip:alice@example.com"}, nil))
	require.False(t, p.Match(Attrs{"from": "sip:bob@example.com"}, nil))
}

func TestRegexpMatch(t *testing.T) {
	p := Regexp{Key: "to", Re: regexp.MustCompile(`^sip:\d+@`)}
	require.True(t, p.Match(Attrs{"to": "sip:1001@example.com"}, nil))
	require.False(t, p.Match(Attrs{"to": "sip:alice@example.com"}, nil))
}

func TestNumericCompareOperators(t *testing.T) {
	nums := NumericAttrs{"duration": 30}
	cases := []struct {
		op   CompareOp
		val  int64
		want bool
	}{
		{OpEqual, 30, true},
		{OpEqual, 31, false},
		{OpNotEqual, 31, true},
		{OpLess, 31, true},
		{OpLessEqual, 30, true},
		{OpGreater, 29, true},
		{OpGreaterEqual, 30, true},
	}
	for _, c := range cases {
		p := NumericCompare{Key: "duration", Op: c.op, Value: c.val}
		require.Equal(t, c.want, p.Match(nil, nums))
	}
}

func TestAndOrNot(t *testing.T) {
	attrs := Attrs{"method": "INVITE", "state": "calling"}
	and := And{Equals{Key: "method", Value: "INVITE"}, Equals{Key: "state", Value: "calling"}}
	require.True(t, and.Match(attrs, nil))

	and2 := And{Equals{Key: "method", Value: "INVITE"}, Equals{Key: "state", Value: "completed"}}
	require.False(t, and2.Match(attrs, nil))

	or := Or{Equals{Key: "state", Value: "completed"}, Equals{Key: "state", Value: "calling"}}
	require.True(t, or.Match(attrs, nil))

	not := Not{Predicate: Equals{Key: "state", Value: "completed"}}
	require.True(t, not.Match(attrs, nil))
}

func TestParseDisplayFilterEmpty(t *testing.T) {
	pred, err := ParseDisplayFilter("  ")
	require.NoError(t, err)
	require.True(t, pred.Match(Attrs{"any": "whatever"}, nil))
}

func TestParseDisplayFilterColumnSubstring(t *testing.T) {
	pred, err := ParseDisplayFilter("from:alice")
	require.NoError(t, err)
	require.True(t, pred.Match(Attrs{"from": "sip:alice@example.com"}, nil))
	require.False(t, pred.Match(Attrs{"from": "sip:bob@example.com"}, nil))
}

func TestParseDisplayFilterNegation(t *testing.T) {
	pred, err := ParseDisplayFilter("-method:BYE")
	require.NoError(t, err)
	require.True(t, pred.Match(Attrs{"method": "INVITE"}, nil))
	require.False(t, pred.Match(Attrs{"method": "BYE"}, nil))
}

func TestParseDisplayFilterRegex(t *testing.T) {
	pred, err := ParseDisplayFilter(`to:~^sip:\d+@`)
	require.NoError(t, err)
	require.True(t, pred.Match(Attrs{"to": "sip:1001@example.com"}, nil))
	require.False(t, pred.Match(Attrs{"to": "sip:alice@example.com"}, nil))
}

func TestParseDisplayFilterNumericDuration(t *testing.T) {
	pred, err := ParseDisplayFilter("duration>30")
	require.NoError(t, err)
	require.True(t, pred.Match(nil, NumericAttrs{"duration": 31}))
	require.False(t, pred.Match(nil, NumericAttrs{"duration": 10}))
}

func TestParseDisplayFilterMultipleTermsAnded(t *testing.T) {
	pred, err := ParseDisplayFilter("method:INVITE from:alice")
	require.NoError(t, err)
	require.True(t, pred.Match(Attrs{"method": "INVITE", "from": "alice"}, nil))
	require.False(t, pred.Match(Attrs{"method": "INVITE", "from": "bob"}, nil))
}

func TestParseDisplayFilterBadRegex(t *testing.T) {
	_, err := ParseDisplayFilter("to:~(unclosed")
	require.Error(t, err)
}

func TestParseNumericValue(t *testing.T) {
	n, err := ParseNumericValue(" 42 ")
	require.NoError(t, err)
	require.Equal(t, int64(42), n)

	_, err = ParseNumericValue("not-a-number")
	require.Error(t, err)
}
