package expr

import (
	"fmt"
	"strings"

	"github.com/local-web-services/ldk/internal/codec"
	"github.com/local-web-services/ldk/internal/ldkerr"
)

// Placeholders bundles the #name / :value substitution maps supplied
// alongside a request.
type Placeholders struct {
	Names  map[string]string      // "#n" -> "actualAttributeName"
	Values map[string]codec.Value // ":v" -> attribute value
}

func (ph Placeholders) resolveName(name string) string {
	if strings.HasPrefix(name, "#") {
		if ph.Names != nil {
			if v, ok := ph.Names[name]; ok {
				return v
			}
		}
		return strings.TrimPrefix(name, "#")
	}
	return name
}

func (ph Placeholders) resolveValue(ph2 string) (interface{}, bool) {
	if ph.Values == nil {
		return nil, false
	}
	v, ok := ph.Values[ph2]
	if !ok {
		return nil, false
	}
	return v.ToNative(), true
}

func resolvePath(path Path, ph Placeholders) []interface{} {
	out := make([]interface{}, 0, len(path))
	for _, node := range path {
		if node.Index != nil {
			out = append(out, *node.Index)
			continue
		}
		out = append(out, ph.resolveName(node.Name))
	}
	return out
}

// lookup walks item following the resolved path segments, returning the
// value and whether every segment was present.
func lookup(item map[string]interface{}, segs []interface{}) (interface{}, bool) {
	var cur interface{} = item
	for _, seg := range segs {
		switch key := seg.(type) {
		case string:
			m, ok := cur.(map[string]interface{})
			if !ok {
				return nil, false
			}
			cur, ok = m[key]
			if !ok {
				return nil, false
			}
		case int:
			l, ok := cur.([]interface{})
			if !ok || key < 0 || key >= len(l) {
				return nil, false
			}
			cur = l[key]
		}
	}
	return cur, true
}

func (op Operand) resolve(item map[string]interface{}, ph Placeholders) (interface{}, bool, error) {
	switch {
	case op.IsValue:
		v, ok := ph.resolveValue(op.ValuePh)
		return v, ok, nil
	case op.IsPath:
		v, ok := lookup(item, resolvePath(op.Path, ph))
		return v, ok, nil
	case op.IsFunc:
		return evalFuncValue(*op.Func, item, ph)
	}
	return nil, false, fmt.Errorf("invalid operand")
}

func evalFuncValue(fn FuncNode, item map[string]interface{}, ph Placeholders) (interface{}, bool, error) {
	switch fn.Name {
	case "size":
		if len(fn.Args) != 1 {
			return nil, false, fmt.Errorf("size() takes one argument")
		}
		v, ok, err := fn.Args[0].resolve(item, ph)
		if err != nil || !ok {
			return nil, false, err
		}
		return float64(sizeOf(v)), true, nil
	}
	return nil, false, fmt.Errorf("unsupported function %s in value position", fn.Name)
}

func sizeOf(v interface{}) int {
	switch t := v.(type) {
	case string:
		return len(t)
	case []byte:
		return len(t)
	case []interface{}:
		return len(t)
	case map[string]interface{}:
		return len(t)
	default:
		return 0
	}
}

// Evaluate runs a condition/filter AST against item, resolving placeholders.
func Evaluate(node Node, item map[string]interface{}, ph Placeholders) (bool, error) {
	switch n := node.(type) {
	case AndNode:
		l, err := Evaluate(n.Left, item, ph)
		if err != nil || !l {
			return false, err
		}
		return Evaluate(n.Right, item, ph)
	case OrNode:
		l, err := Evaluate(n.Left, item, ph)
		if err != nil {
			return false, err
		}
		if l {
			return true, nil
		}
		return Evaluate(n.Right, item, ph)
	case NotNode:
		v, err := Evaluate(n.Inner, item, ph)
		return !v, err
	case CompareNode:
		return evalCompare(n, item, ph)
	case BetweenNode:
		return evalBetween(n, item, ph)
	case InNode:
		return evalIn(n, item, ph)
	case FuncNode:
		return evalBoolFunc(n, item, ph)
	}
	return false, fmt.Errorf("unknown node type %T", node)
}

func evalCompare(n CompareNode, item map[string]interface{}, ph Placeholders) (bool, error) {
	l, lok, err := n.Left.resolve(item, ph)
	if err != nil {
		return false, err
	}
	r, rok, err := n.Right.resolve(item, ph)
	if err != nil {
		return false, err
	}
	if !lok || !rok {
		return false, nil
	}
	cmp, ok := compare(l, r)
	if !ok {
		return false, nil
	}
	switch n.Op {
	case "=":
		return cmp == 0, nil
	case "<>":
		return cmp != 0, nil
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	}
	return false, fmt.Errorf("unknown operator %q", n.Op)
}

// compare returns (-1,0,1, true) when a and b are comparable (same kind:
// both numeric-ish, both strings, or both bytes), else (_, false).
func compare(a, b interface{}) (int, bool) {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	ab, aok := a.([]byte)
	bb, bok := b.([]byte)
	if aok && bok {
		return strings.Compare(string(ab), string(bb)), true
	}
	abool, aok := a.(bool)
	bbool, bok := b.(bool)
	if aok && bok {
		if abool == bbool {
			return 0, true
		}
		return -1, true
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case codec.Number:
		return t.Float64(), true
	case float64:
		return t, true
	case int:
		return float64(t), true
	}
	return 0, false
}

func evalBetween(n BetweenNode, item map[string]interface{}, ph Placeholders) (bool, error) {
	s, sok, err := n.Subject.resolve(item, ph)
	if err != nil {
		return false, err
	}
	lo, lok, err := n.Low.resolve(item, ph)
	if err != nil {
		return false, err
	}
	hi, hok, err := n.Hi.resolve(item, ph)
	if err != nil {
		return false, err
	}
	if !sok || !lok || !hok {
		return false, nil
	}
	c1, ok1 := compare(s, lo)
	c2, ok2 := compare(s, hi)
	if !ok1 || !ok2 {
		return false, nil
	}
	return c1 >= 0 && c2 <= 0, nil
}

func evalIn(n InNode, item map[string]interface{}, ph Placeholders) (bool, error) {
	s, sok, err := n.Subject.resolve(item, ph)
	if err != nil || !sok {
		return false, err
	}
	for _, cand := range n.Set {
		c, cok, err := cand.resolve(item, ph)
		if err != nil {
			return false, err
		}
		if !cok {
			continue
		}
		if cmp, ok := compare(s, c); ok && cmp == 0 {
			return true, nil
		}
	}
	return false, nil
}

func evalBoolFunc(n FuncNode, item map[string]interface{}, ph Placeholders) (bool, error) {
	switch n.Name {
	case "attribute_exists":
		if len(n.Args) != 1 || !n.Args[0].IsPath {
			return false, fmt.Errorf("attribute_exists expects a path argument")
		}
		_, ok := lookup(item, resolvePath(n.Args[0].Path, ph))
		return ok, nil
	case "attribute_not_exists":
		if len(n.Args) != 1 || !n.Args[0].IsPath {
			return false, fmt.Errorf("attribute_not_exists expects a path argument")
		}
		_, ok := lookup(item, resolvePath(n.Args[0].Path, ph))
		return !ok, nil
	case "begins_with":
		if len(n.Args) != 2 {
			return false, fmt.Errorf("begins_with expects 2 arguments")
		}
		l, lok, err := n.Args[0].resolve(item, ph)
		if err != nil || !lok {
			return false, err
		}
		r, rok, err := n.Args[1].resolve(item, ph)
		if err != nil || !rok {
			return false, err
		}
		ls, lok2 := l.(string)
		rs, rok2 := r.(string)
		if !lok2 || !rok2 {
			return false, nil
		}
		return strings.HasPrefix(ls, rs), nil
	case "contains":
		if len(n.Args) != 2 {
			return false, fmt.Errorf("contains expects 2 arguments")
		}
		l, lok, err := n.Args[0].resolve(item, ph)
		if err != nil || !lok {
			return false, err
		}
		r, rok, err := n.Args[1].resolve(item, ph)
		if err != nil || !rok {
			return false, err
		}
		return containsValue(l, r), nil
	case "attribute_type":
		if len(n.Args) != 2 || !n.Args[0].IsPath {
			return false, fmt.Errorf("attribute_type expects (path, :typeValue)")
		}
		v, ok := lookup(item, resolvePath(n.Args[0].Path, ph))
		if !ok {
			return false, nil
		}
		wantAny, wok, err := n.Args[1].resolve(item, ph)
		if err != nil || !wok {
			return false, err
		}
		want, _ := wantAny.(string)
		return nativeTypeTag(v) == want, nil
	}
	return false, fmt.Errorf("unknown boolean function %s", n.Name)
}

func containsValue(container, needle interface{}) bool {
	switch c := container.(type) {
	case string:
		s, ok := needle.(string)
		return ok && strings.Contains(c, s)
	case []interface{}:
		for _, item := range c {
			if cmp, ok := compare(item, needle); ok && cmp == 0 {
				return true
			}
		}
	}
	return false
}

func nativeTypeTag(v interface{}) string {
	switch v.(type) {
	case string:
		return "S"
	case codec.Number, float64, int:
		return "N"
	case []byte:
		return "B"
	case bool:
		return "BOOL"
	case nil:
		return "NULL"
	case []interface{}:
		return "L"
	case map[string]interface{}:
		return "M"
	}
	return ""
}

// ErrConditionFailed is the ConditionalCheckFailedException error the KV
// engine returns when a write's condition expression evaluates false.
var ErrConditionFailed = ldkerr.Conflict("ConditionalCheckFailedException", "the conditional request failed")
