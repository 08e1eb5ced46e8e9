// Package normalize maps source-native records onto the canonical record types.
//
// Normalization never fails on a single malformed field: the field is dropped
// and the rest of the record is kept.
package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FieldKind is the coercion applied to a source field.
type FieldKind int

const (
	KindString FieldKind = iota
	KindInt
	KindFloat
	KindBool
	KindDate
	KindDateTime
)

// FieldSpec maps one source field onto a canonical key. When several source
// fields share a key, the lowest Rank holding a usable value wins and ties go
// to the lexically smaller field name.
type FieldSpec struct {
	Key  string
	Kind FieldKind
	Rank int
}

// FieldMap is keyed by the source field name.
type FieldMap map[string]FieldSpec

// Canonical holds coerced values: string, int, float64, bool or time.Time.
type Canonical map[string]any

// Normalize keeps only recognized, non-empty fields, coercing each by its kind.
func Normalize(raw map[string]any, fields FieldMap) Canonical {
	out := make(Canonical, len(fields))
	from := make(map[string]string, len(fields))
	for name, value := range raw {
		spec, ok := fields[name]
		if !ok {
			continue
		}
		v, ok := coerce(value, spec.Kind)
		if !ok {
			continue
		}
		if prev, set := from[spec.Key]; set && !fields.precedes(name, prev) {
			continue
		}
		out[spec.Key] = v
		from[spec.Key] = name
	}
	return out
}

func (m FieldMap) precedes(a, b string) bool {
	ra, rb := m[a].Rank, m[b].Rank
	if ra != rb {
		return ra < rb
	}
	return a < b
}

func coerce(v any, kind FieldKind) (any, bool) {
	if isEmpty(v) {
		return nil, false
	}
	switch kind {
	case KindInt:
		return ParseInt(v)
	case KindFloat:
		return ParseFloat(v)
	case KindBool:
		return ParseBool(v)
	case KindDate:
		t, ok := ParseDate(v)
		if !ok {
			return nil, false
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	case KindDateTime:
		return ParseDate(v)
	default:
		s := strings.TrimSpace(toString(v))
		return s, s != ""
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// =============================================================================
// Coercions
// =============================================================================

// ParseInt accepts integers, integral floats and numeric strings ("39", "39.0").
func ParseInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case float32:
		return roundInt(float64(t))
	case float64:
		return roundInt(t)
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return roundInt(f)
		}
	}
	return 0, false
}

func roundInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	r := math.Round(f)
	// float64(math.MaxInt) rounds up to 2^63, so the upper bound is exclusive
	if r < math.MinInt || r >= math.MaxInt {
		return 0, false
	}
	return int(r), true
}

// ParseFloat accepts numbers and numeric strings.
func ParseFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// ParseBool accepts booleans, 0/1 and the usual yes/no strings.
func ParseBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case float64:
		return t != 0, true
	case int:
		return t != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1", "t":
			return true, true
		case "false", "no", "n", "0", "f":
			return false, true
		}
	}
	return false, false
}

var nativeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// M/D/YYYY with optional H:M[:S]
var usDatePattern = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})(?:[ T,]+(\d{1,2}):(\d{1,2})(?::(\d{1,2}))?)?$`)

// ParseDate tries the native layouts first, then the M/D/YYYY H:M:S fallback.
// Unparseable values return ok=false.
func ParseDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), !t.IsZero()
	case string:
		return parseDateString(strings.TrimSpace(t))
	}
	return time.Time{}, false
}

func parseDateString(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range nativeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	m := usDatePattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	var hour, minute, sec int
	if m[4] != "" {
		hour, _ = strconv.Atoi(m[4])
		minute, _ = strconv.Atoi(m[5])
	}
	if m[6] != "" {
		sec, _ = strconv.Atoi(m[6])
	}
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || sec > 59 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.UTC)
	// time.Date normalizes 2/31 into March
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// =============================================================================
// Canonical accessors
// =============================================================================

func (c Canonical) String(key string) string {
	s, _ := c[key].(string)
	return s
}

func (c Canonical) Int(key string) *int {
	if n, ok := c[key].(int); ok {
		return &n
	}
	return nil
}

func (c Canonical) Float(key string) *float64 {
	if f, ok := c[key].(float64); ok {
		return &f
	}
	return nil
}

func (c Canonical) Bool(key string) (bool, bool) {
	b, ok := c[key].(bool)
	return b, ok
}

func (c Canonical) Time(key string) *time.Time {
	if t, ok := c[key].(time.Time); ok {
		return &t
	}
	return nil
}
