package expr

import "fmt"

// ApplyUpdate applies an ordered list of update actions to item, returning
// the mutated item. item is modified in place and also returned for
// convenience. Actions are applied in parse order: SET/REMOVE/ADD/DELETE
// clauses within one UpdateAction run in the order written; the engine is
// expected to pass actions in the order the update expression names its
// clauses (SET before REMOVE before ADD before DELETE is the conventional
// DynamoDB clause order but not enforced here).
func ApplyUpdate(actions []UpdateAction, item map[string]interface{}, ph Placeholders) (map[string]interface{}, error) {
	for _, action := range actions {
		switch action.Kind {
		case "SET":
			for _, c := range action.Set {
				val, err := evalSetExpr(c.Expr, item, ph)
				if err != nil {
					return nil, err
				}
				if err := assign(item, resolvePath(c.Target, ph), val); err != nil {
					return nil, err
				}
			}
		case "REMOVE":
			for _, p := range action.Rem {
				remove(item, resolvePath(p, ph))
			}
		case "ADD":
			for _, c := range action.Add {
				val, ok := ph.resolveValue(c.ValuePh)
				if !ok {
					return nil, fmt.Errorf("unresolved value placeholder %s", c.ValuePh)
				}
				if err := applyAdd(item, resolvePath(c.Target, ph), val); err != nil {
					return nil, err
				}
			}
		case "DELETE":
			for _, c := range action.Del {
				val, ok := ph.resolveValue(c.ValuePh)
				if !ok {
					return nil, fmt.Errorf("unresolved value placeholder %s", c.ValuePh)
				}
				if err := applyDelete(item, resolvePath(c.Target, ph), val); err != nil {
					return nil, err
				}
			}
		}
	}
	return item, nil
}

func evalSetExpr(se SetExpr, item map[string]interface{}, ph Placeholders) (interface{}, error) {
	left, err := evalSetOperand(se.Left, item, ph)
	if err != nil {
		return nil, err
	}
	if se.Op == "" {
		return left, nil
	}
	right, err := evalSetOperand(*se.Right, item, ph)
	if err != nil {
		return nil, err
	}
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if !lok || !rok {
		return nil, fmt.Errorf("arithmetic SET clause requires numeric operands")
	}
	if se.Op == "+" {
		return lf + rf, nil
	}
	return lf - rf, nil
}

func evalSetOperand(op SetOperand, item map[string]interface{}, ph Placeholders) (interface{}, error) {
	switch {
	case op.IsValue:
		v, ok := ph.resolveValue(op.ValuePh)
		if !ok {
			return nil, fmt.Errorf("unresolved value placeholder %s", op.ValuePh)
		}
		return v, nil
	case op.IsPath:
		v, _ := lookup(item, resolvePath(op.Path, ph))
		return v, nil
	case op.IfNotExist != nil:
		v, ok := lookup(item, resolvePath(op.IfNotExist.Target, ph))
		if ok {
			return v, nil
		}
		return evalSetOperand(op.IfNotExist.Value, item, ph)
	case op.ListAppend != nil:
		a, err := evalSetOperand(op.ListAppend.A, item, ph)
		if err != nil {
			return nil, err
		}
		b, err := evalSetOperand(op.ListAppend.B, item, ph)
		if err != nil {
			return nil, err
		}
		al, _ := a.([]interface{})
		bl, _ := b.([]interface{})
		return append(append([]interface{}{}, al...), bl...), nil
	}
	return nil, fmt.Errorf("invalid SET operand")
}

// assign sets item at the resolved path, creating intermediate maps as
// needed (list auto-extension is not supported — lists are only appended
// to via list_append).
func assign(item map[string]interface{}, segs []interface{}, val interface{}) error {
	if len(segs) == 0 {
		return fmt.Errorf("empty path")
	}
	cur := map[string]interface{}(item)
	for i := 0; i < len(segs)-1; i++ {
		switch key := segs[i].(type) {
		case string:
			next, ok := cur[key].(map[string]interface{})
			if !ok {
				next = map[string]interface{}{}
				cur[key] = next
			}
			cur = next
		case int:
			return fmt.Errorf("cannot create intermediate list element at index %d", key)
		}
	}
	last := segs[len(segs)-1]
	switch key := last.(type) {
	case string:
		cur[key] = val
	case int:
		return fmt.Errorf("cannot SET a bare list index as the final path segment")
	}
	return nil
}

func remove(item map[string]interface{}, segs []interface{}) {
	if len(segs) == 0 {
		return
	}
	cur := interface{}(map[string]interface{}(item))
	var parent interface{}
	var parentKey interface{}
	for i := 0; i < len(segs)-1; i++ {
		parent, parentKey = cur, segs[i]
		switch key := segs[i].(type) {
		case string:
			m, ok := cur.(map[string]interface{})
			if !ok {
				return
			}
			cur, ok = m[key]
			if !ok {
				return
			}
		case int:
			l, ok := cur.([]interface{})
			if !ok || key < 0 || key >= len(l) {
				return
			}
			cur = l[key]
		}
	}
	last := segs[len(segs)-1]
	switch key := last.(type) {
	case string:
		if m, ok := cur.(map[string]interface{}); ok {
			delete(m, key)
		}
	case int:
		if l, ok := cur.([]interface{}); ok && key >= 0 && key < len(l) {
			// the shortened list is stored back into its parent container
			shortened := append(append([]interface{}{}, l[:key]...), l[key+1:]...)
			switch pk := parentKey.(type) {
			case string:
				parent.(map[string]interface{})[pk] = shortened
			case int:
				parent.([]interface{})[pk] = shortened
			}
		}
	}
}

func applyAdd(item map[string]interface{}, segs []interface{}, delta interface{}) error {
	existing, ok := lookup(item, segs)
	if !ok {
		return assign(item, segs, normalizeAddSeed(delta))
	}
	if ef, eok := asFloat(existing); eok {
		if df, dok := asFloat(delta); dok {
			return assign(item, segs, ef+df)
		}
	}
	if existingSet, ok := existing.([]interface{}); ok {
		deltaSet, ok := delta.([]interface{})
		if !ok {
			return fmt.Errorf("ADD on a set requires a set-typed value")
		}
		return assign(item, segs, unionSet(existingSet, deltaSet))
	}
	return fmt.Errorf("ADD is only valid on number or set attributes")
}

func normalizeAddSeed(delta interface{}) interface{} { return delta }

func unionSet(a, b []interface{}) []interface{} {
	out := append([]interface{}{}, a...)
	for _, bv := range b {
		found := false
		for _, av := range out {
			if cmp, ok := compare(av, bv); ok && cmp == 0 {
				found = true
				break
			}
		}
		if !found {
			out = append(out, bv)
		}
	}
	return out
}

func applyDelete(item map[string]interface{}, segs []interface{}, toRemove interface{}) error {
	existing, ok := lookup(item, segs)
	if !ok {
		return nil
	}
	existingSet, ok := existing.([]interface{})
	if !ok {
		return fmt.Errorf("DELETE is only valid on set attributes")
	}
	removeSet, ok := toRemove.([]interface{})
	if !ok {
		return fmt.Errorf("DELETE requires a set-typed value")
	}
	out := existingSet[:0:0]
	for _, v := range existingSet {
		skip := false
		for _, r := range removeSet {
			if cmp, ok := compare(v, r); ok && cmp == 0 {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, v)
		}
	}
	return assign(item, segs, out)
}
