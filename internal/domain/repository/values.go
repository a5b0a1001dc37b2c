package repository

import (
	"strings"
	"time"
)

// CompareValues orders two loosely typed field values. Values of different
// kinds order by kind: nil, bool, number, time, string.
func CompareValues(a, b interface{}) int {
	ka, kb := kindRank(a), kindRank(b)
	if ka != kb {
		return sign(ka - kb)
	}
	switch av := a.(type) {
	case nil:
		return 0
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		}
		return 1
	case time.Time:
		bv := b.(time.Time)
		switch {
		case av.Before(bv):
			return -1
		case av.After(bv):
			return 1
		}
		return 0
	case string:
		return strings.Compare(av, b.(string))
	}
	af, _ := toFloat(a)
	bf, _ := toFloat(b)
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	}
	return 0
}

func kindRank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case time.Time:
		return 3
	case string:
		return 4
	}
	if _, ok := toFloat(v); ok {
		return 2
	}
	return 5
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// Matches evaluates all filters against the document's stored fields.
func Matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		if !matchFilter(doc.Data[f.Field], f) {
			return false
		}
	}
	return true
}

func matchFilter(v interface{}, f Filter) bool {
	switch f.Op {
	case OpEqual:
		return v != nil && CompareValues(v, f.Value) == 0
	case OpNotEqual:
		return v != nil && CompareValues(v, f.Value) != 0
	case OpLess:
		return v != nil && kindRank(v) == kindRank(f.Value) && CompareValues(v, f.Value) < 0
	case OpLessEqual:
		return v != nil && kindRank(v) == kindRank(f.Value) && CompareValues(v, f.Value) <= 0
	case OpGreater:
		return v != nil && kindRank(v) == kindRank(f.Value) && CompareValues(v, f.Value) > 0
	case OpGreaterEqual:
		return v != nil && kindRank(v) == kindRank(f.Value) && CompareValues(v, f.Value) >= 0
	case OpArrayContains:
		for _, item := range asSlice(v) {
			if CompareValues(item, f.Value) == 0 {
				return true
			}
		}
		return false
	case OpIn:
		for _, item := range asSlice(f.Value) {
			if v != nil && CompareValues(v, item) == 0 {
				return true
			}
		}
		return false
	}
	return false
}

func asSlice(v interface{}) []interface{} {
	switch s := v.(type) {
	case []interface{}:
		return s
	case []string:
		out := make([]interface{}, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out
	}
	return nil
}
