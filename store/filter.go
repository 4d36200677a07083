package store

// Small composable Filter/Less builders, used by claim/ and reaper/ so
// callers never hand-roll map[string]interface{} comparisons inline.

// FieldEquals matches documents whose field exactly equals value.
func FieldEquals(field string, value interface{}) Filter {
	return func(body map[string]interface{}) bool {
		return body[field] == value
	}
}

// FieldIn matches documents whose field is one of values.
func FieldIn(field string, values ...interface{}) Filter {
	return func(body map[string]interface{}) bool {
		v, ok := body[field]
		if !ok {
			return false
		}
		for _, want := range values {
			if v == want {
				return true
			}
		}
		return false
	}
}

// FieldEmpty matches documents where field is absent, nil, or an empty
// string - the spec's recurring "locked_by absent OR null OR \"\"" shape.
func FieldEmpty(field string) Filter {
	return func(body map[string]interface{}) bool {
		v, ok := body[field]
		if !ok || v == nil {
			return true
		}
		s, isStr := v.(string)
		return isStr && s == ""
	}
}

// FieldEqualsOrEmpty matches documents where field equals value, or is
// absent/nil/empty-string - the spec's recurring "{status: X, absent, or
// ""}" filter shape for a newly created account record.
func FieldEqualsOrEmpty(field, value string) Filter {
	empty := FieldEmpty(field)
	return func(body map[string]interface{}) bool {
		return body[field] == value || empty(body)
	}
}

// And combines filters with logical AND.
func And(filters ...Filter) Filter {
	return func(body map[string]interface{}) bool {
		for _, f := range filters {
			if !f(body) {
				return false
			}
		}
		return true
	}
}

// ByField builds a Less that orders ascending or descending by a numeric or
// string field, used to compose the spec's multi-key sorts
// (priority desc, last_used_at asc) via CombineLess.
func ByField(field string, descending bool) Less {
	return func(a, b map[string]interface{}) bool {
		cmp := compare(a[field], b[field])
		if descending && a[field] != nil && b[field] != nil {
			cmp = -cmp
		}
		return cmp < 0
	}
}

// CombineLess chains Less functions as tie-breakers: the first that
// distinguishes a and b decides; ties fall through to the next.
func CombineLess(less ...Less) Less {
	return func(a, b map[string]interface{}) bool {
		for _, l := range less {
			if l(a, b) {
				return true
			}
			if l(b, a) {
				return false
			}
		}
		return false
	}
}

func compare(a, b interface{}) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	}
	// Missing/incomparable fields sort last regardless of direction.
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return 1
	}
	if b == nil {
		return -1
	}
	return 0
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
