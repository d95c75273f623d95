package table

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Float converts numeric cells, including numeric strings, to float64.
// Empty cells and non-numeric values report false.
func Float(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// Time converts time cells and timestamps in the usual API layouts.
func Time(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		x = strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// IsEmpty reports whether v is a missing value.
func IsEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case float64:
		return math.IsNaN(x)
	}
	return false
}

// String formats a cell for text output. Missing values and NaN are empty;
// slices and maps are JSON encoded.
func String(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case *float64:
		if x == nil {
			return ""
		}
		return String(*x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// jsonValue maps NaN to null so the cell can be JSON encoded.
func jsonValue(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	case time.Time:
		return x.Format(time.RFC3339)
	}
	return v
}

// compare orders cells: numbers numerically, times chronologically, the
// rest as strings. Missing values sort last.
func compare(a, b any) int {
	ae, be := IsEmpty(a), IsEmpty(b)
	switch {
	case ae && be:
		return 0
	case ae:
		return 1
	case be:
		return -1
	}

	if af, ok := Float(a); ok {
		if bf, ok := Float(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	if at, ok := Time(a); ok {
		if bt, ok := Time(b); ok {
			return at.Compare(bt)
		}
	}
	return strings.Compare(String(a), String(b))
}
