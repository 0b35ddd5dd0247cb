package dataset

import (
	"strconv"
	"strings"
	"time"
)

// Kind identifies the scalar type held by a Value.
type Kind uint8

const (
	// KindMissing marks an absent cell. It doubles as the unresolved
	// marker for mapping target columns.
	KindMissing Kind = iota
	KindString
	KindNumber
	KindTime
)

// Value is a single dataset cell. The zero Value is missing.
type Value struct {
	kind Kind
	str  string
	num  float64
	ts   time.Time
}

// NA returns the missing value.
func NA() Value { return Value{} }

// Str returns a string Value. An empty string is still a string, not NA;
// callers that want empty-means-missing should use StrOrNA.
func Str(s string) Value { return Value{kind: KindString, str: s} }

// StrOrNA returns NA for empty strings and a string Value otherwise.
func StrOrNA(s string) Value {
	if s == "" {
		return NA()
	}
	return Str(s)
}

// Num returns a numeric Value.
func Num(f float64) Value { return Value{kind: KindNumber, num: f} }

// Date returns a time Value.
func Date(t time.Time) Value { return Value{kind: KindTime, ts: t} }

// Kind reports the scalar type of v.
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether v is the missing marker.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// String renders v for output. Missing renders as the empty string,
// numbers with minimal digits, times as ISO dates (with a time part only
// when non-midnight).
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindTime:
		if v.ts.Hour() == 0 && v.ts.Minute() == 0 && v.ts.Second() == 0 {
			return v.ts.Format("2006-01-02")
		}
		return v.ts.Format(time.RFC3339)
	default:
		return ""
	}
}

// Float returns the numeric interpretation of v. Strings are parsed
// best-effort; missing and unparseable values report ok=false.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Time returns the time held by v, if any.
func (v Value) Time() (time.Time, bool) {
	if v.kind != KindTime {
		return time.Time{}, false
	}
	return v.ts, true
}

// Equal reports whether two values hold the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindTime:
		return v.ts.Equal(o.ts)
	default:
		return true
	}
}
