package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/local-web-services/ldk/internal/codec"
)

// SplitKeyCondition splits a Query key-condition expression's parsed AST
// into the partition-key equality value (as its raw placeholder value) and
// an optional sort-key predicate evaluated against the stored key-string
// representation. Key condition expressions are a restricted subset of the
// general condition grammar: a mandatory "pk = :v" clause, optionally
// followed by "AND <sortKeyClause>" where sortKeyClause is one of
// sk = :v, sk < :v, sk <= :v, sk > :v, sk >= :v, sk BETWEEN :lo AND :hi, or
// begins_with(sk, :v).
func SplitKeyCondition(node Node, ph Placeholders) (codec.Value, func(string) bool, error) {
	and, isAnd := node.(AndNode)
	if !isAnd {
		cmp, ok := node.(CompareNode)
		if !ok || cmp.Op != "=" {
			return codec.Value{}, nil, fmt.Errorf("key condition must start with a partition key equality")
		}
		pk, err := pkValue(cmp, ph)
		return pk, nil, err
	}

	cmp, ok := and.Left.(CompareNode)
	if !ok || cmp.Op != "=" {
		return codec.Value{}, nil, fmt.Errorf("key condition must start with a partition key equality")
	}
	pk, err := pkValue(cmp, ph)
	if err != nil {
		return codec.Value{}, nil, err
	}
	pred, err := sortKeyPredicate(and.Right, ph)
	if err != nil {
		return codec.Value{}, nil, err
	}
	return pk, pred, nil
}

func pkValue(cmp CompareNode, ph Placeholders) (codec.Value, error) {
	operand := cmp.Right
	if !operand.IsValue {
		operand = cmp.Left
	}
	if !operand.IsValue {
		return codec.Value{}, fmt.Errorf("partition key clause must compare against a value placeholder")
	}
	v, ok := ph.Values[operand.ValuePh]
	if !ok {
		return codec.Value{}, fmt.Errorf("unresolved value placeholder %s", operand.ValuePh)
	}
	return v, nil
}

func sortKeyPredicate(node Node, ph Placeholders) (func(string) bool, error) {
	switch n := node.(type) {
	case CompareNode:
		want, err := keyStringOf(n.Right, ph)
		if err != nil {
			return nil, err
		}
		op := n.Op
		return func(s string) bool {
			c := compareKeyStrings(s, want)
			switch op {
			case "=":
				return c == 0
			case "<":
				return c < 0
			case "<=":
				return c <= 0
			case ">":
				return c > 0
			case ">=":
				return c >= 0
			}
			return false
		}, nil
	case BetweenNode:
		lo, err := keyStringOf(n.Low, ph)
		if err != nil {
			return nil, err
		}
		hi, err := keyStringOf(n.Hi, ph)
		if err != nil {
			return nil, err
		}
		return func(s string) bool {
			return compareKeyStrings(s, lo) >= 0 && compareKeyStrings(s, hi) <= 0
		}, nil
	case FuncNode:
		if n.Name != "begins_with" || len(n.Args) != 2 {
			return nil, fmt.Errorf("unsupported sort key condition function %s", n.Name)
		}
		prefix, err := keyStringOf(n.Args[1], ph)
		if err != nil {
			return nil, err
		}
		return func(s string) bool { return strings.HasPrefix(s, prefix) }, nil
	}
	return nil, fmt.Errorf("unsupported sort key condition")
}

func keyStringOf(op Operand, ph Placeholders) (string, error) {
	if !op.IsValue {
		return "", fmt.Errorf("sort key condition operand must be a value placeholder")
	}
	v, ok := ph.Values[op.ValuePh]
	if !ok {
		return "", fmt.Errorf("unresolved value placeholder %s", op.ValuePh)
	}
	switch v.Tag {
	case "S":
		return v.S, nil
	case "N":
		return v.N, nil
	default:
		return "", fmt.Errorf("sort key condition value must be type S or N")
	}
}

// compareKeyStrings compares two stored key-string representations
// numerically when both parse as numbers, falling back to lexicographic
// comparison for strings (matching codec.KeyString's own encoding, which
// stores S/N attribute values as their literal text).
func compareKeyStrings(a, b string) int {
	af, aerr := strconv.ParseFloat(a, 64)
	bf, berr := strconv.ParseFloat(b, 64)
	if aerr == nil && berr == nil {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}
