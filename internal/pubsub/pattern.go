package pubsub

import "strings"

// Match reports whether detail satisfies pattern. Each pattern field names a
// dotted path into detail and a matcher spec: a literal value, or one of the
// comparison-operator objects {"prefix": "x"} / {"anything-but": [...]}
// (mirroring the event-bus content-filtering conventions the spec's matching
// engine targets). Every field in pattern must match; fields in detail not
// named by pattern are ignored.
func Match(pattern map[string]interface{}, detail map[string]interface{}) bool {
	for path, spec := range pattern {
		val, ok := lookupDotted(detail, path)
		if !matchField(spec, val, ok) {
			return false
		}
	}
	return true
}

func lookupDotted(detail map[string]interface{}, path string) (interface{}, bool) {
	segs := strings.Split(path, ".")
	var cur interface{} = detail
	for _, seg := range segs {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func matchField(spec interface{}, val interface{}, present bool) bool {
	switch s := spec.(type) {
	case []interface{}:
		// a bare list means "value is one of these literals"
		for _, candidate := range s {
			if matchField(candidate, val, present) {
				return true
			}
		}
		return false
	case map[string]interface{}:
		if prefix, ok := s["prefix"].(string); ok {
			str, ok := val.(string)
			return present && ok && strings.HasPrefix(str, prefix)
		}
		if anythingBut, ok := s["anything-but"]; ok {
			if !present {
				return true
			}
			list, ok := anythingBut.([]interface{})
			if !ok {
				list = []interface{}{anythingBut}
			}
			for _, excluded := range list {
				if equalScalar(excluded, val) {
					return false
				}
			}
			return true
		}
		if exists, ok := s["exists"].(bool); ok {
			return present == exists
		}
		if numeric, ok := s["numeric"].([]interface{}); ok {
			return matchNumeric(numeric, val, present)
		}
		return false
	default:
		return present && equalScalar(spec, val)
	}
}

func equalScalar(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	return a == b
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	}
	return 0, false
}

// matchNumeric evaluates a flattened ["<",5] / [">=",1,"<",10] style numeric
// range spec against val.
func matchNumeric(ops []interface{}, val interface{}, present bool) bool {
	if !present {
		return false
	}
	v, ok := toFloat(val)
	if !ok {
		return false
	}
	for i := 0; i+1 < len(ops); i += 2 {
		op, _ := ops[i].(string)
		bound, ok := toFloat(ops[i+1])
		if !ok {
			return false
		}
		switch op {
		case "=":
			if v != bound {
				return false
			}
		case "<":
			if !(v < bound) {
				return false
			}
		case "<=":
			if !(v <= bound) {
				return false
			}
		case ">":
			if !(v > bound) {
				return false
			}
		case ">=":
			if !(v >= bound) {
				return false
			}
		}
	}
	return true
}
