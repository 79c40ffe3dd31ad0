package expr

import (
	"fmt"
	"reflect"
)

// Record is a loaded value whose members can be read by name.
type Record interface {
	Get(name string) (any, bool)
}

// Eval evaluates e with root bound to the parameter. Members of a collection
// are read from every element. Members of a nil value evaluate to nil.
func Eval(e Expr, root Record) (any, error) {
	switch node := e.(type) {
	case Param, *Param:
		return root, nil
	case Member:
		return evalMember(node, root)
	case *Member:
		return evalMember(*node, root)
	case Constant:
		return node.Value, nil
	case Conditional:
		test, err := Eval(node.Test, root)
		if err != nil {
			return nil, err
		}
		ok, isBool := test.(bool)
		if !isBool && test != nil {
			return nil, fmt.Errorf("condition %s is %T, not bool", String(node.Test), test)
		}
		if ok {
			return Eval(node.Then, root)
		}
		return Eval(node.Else, root)
	case Object:
		out := make(map[string]any, len(node.Fields))
		for _, f := range node.Fields {
			v, err := Eval(f.Value, root)
			if err != nil {
				return nil, err
			}
			out[f.Name] = v
		}
		return out, nil
	case Binary:
		return evalBinary(node, root)
	default:
		return nil, fmt.Errorf("unsupported expression %T", e)
	}
}

func evalMember(node Member, root Record) (any, error) {
	target, err := Eval(node.Target, root)
	if err != nil {
		return nil, err
	}
	return readMember(target, node.Name)
}

func readMember(target any, name string) (any, error) {
	if target == nil {
		return nil, nil
	}
	if rec, ok := target.(Record); ok {
		if isNilPointer(rec) {
			return nil, nil
		}
		v, _ := rec.Get(name)
		return v, nil
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() == reflect.Slice {
		out := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			v, err := readMember(rv.Index(i).Interface(), name)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot read member %s of %T", name, target)
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

func evalBinary(node Binary, root Record) (any, error) {
	left, err := Eval(node.Left, root)
	if err != nil {
		return nil, err
	}
	switch node.Op {
	case OpAnd, OpOr:
		l, ok := left.(bool)
		if !ok {
			return nil, fmt.Errorf("operand %s is %T, not bool", String(node.Left), left)
		}
		if node.Op == OpAnd && !l {
			return false, nil
		}
		if node.Op == OpOr && l {
			return true, nil
		}
		right, err := Eval(node.Right, root)
		if err != nil {
			return nil, err
		}
		r, ok := right.(bool)
		if !ok {
			return nil, fmt.Errorf("operand %s is %T, not bool", String(node.Right), right)
		}
		return r, nil
	case OpEqual, OpNotEqual:
		right, err := Eval(node.Right, root)
		if err != nil {
			return nil, err
		}
		eq := Equal(left, right)
		if node.Op == OpNotEqual {
			return !eq, nil
		}
		return eq, nil
	default:
		return nil, fmt.Errorf("unsupported operator %q", node.Op)
	}
}

// Equal compares scalar values, treating numbers of different Go types and
// byte slices versus strings as comparable.
func Equal(a, b any) bool {
	a, b = normalize(a), normalize(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.TypeOf(a).Comparable() && reflect.TypeOf(b).Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

func normalize(v any) any {
	switch n := v.(type) {
	case []byte:
		return string(n)
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case float32:
		return float64(n)
	case float64:
		if n == float64(int64(n)) {
			return int64(n)
		}
		return n
	}
	return v
}
