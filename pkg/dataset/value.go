// Package dataset provides the in-memory tabular data model consumed
// by the evaluator and validation rules: a dynamically-typed Value,
// dense Columns, and an ordered, schema-carrying Dataset.
package dataset

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the type of a Value.
type Kind int

// Value kinds. Missing is the zero value so that an unset Value is
// missing rather than an accidental empty string or zero.
const (
	KindMissing Kind = iota
	KindNumber
	KindString
	KindBool
	KindDate
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	default:
		return "missing"
	}
}

// Value is a dynamically-typed cell value. Exactly one of the payload
// fields is meaningful, selected by Kind.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
	B    bool
	Date time.Time
}

// Missing is the missing value.
var Missing = Value{}

// Number returns a number value.
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// String returns a string value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Bool returns a Boolean value.
func Bool(b bool) Value { return Value{Kind: KindBool, B: b} }

// Date returns a date value.
func Date(t time.Time) Value { return Value{Kind: KindDate, Date: t} }

// IsMissing reports whether the value is missing.
func (v Value) IsMissing() bool { return v.Kind == KindMissing }

// dateLayouts are the date formats the engine accepts from loaders and
// string comparisons: ISO-8601 and the locale convention MM/DD/YYYY.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// ParseDate parses s as a date using the accepted layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// AsNumber returns the value as a number. Strings are parsed; the
// second return value is false when no numeric reading exists.
func (v Value) AsNumber() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, !math.IsNaN(v.Num) && !math.IsInf(v.Num, 0)
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case KindBool:
		if v.B {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// AsDate returns the value as a date. Strings are parsed with the
// accepted layouts.
func (v Value) AsDate() (time.Time, bool) {
	switch v.Kind {
	case KindDate:
		return v.Date, true
	case KindString:
		return ParseDate(v.Str)
	default:
		return time.Time{}, false
	}
}

// AsString renders the value as text. Missing renders as the empty
// string; numbers use the shortest representation that round-trips.
func (v Value) AsString() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindString:
		return v.Str
	case KindBool:
		if v.B {
			return "TRUE"
		}
		return "FALSE"
	case KindDate:
		return v.Date.Format("2006-01-02")
	default:
		return ""
	}
}
