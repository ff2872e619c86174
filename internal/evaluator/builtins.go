package evaluator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// registerBuiltins installs the native function library into the global
// scope. print/println close over the evaluator's Output writer.
func (ev *Evaluator) registerBuiltins() {
	for _, builtin := range builtins() {
		ev.env.Define(builtin.Name, builtin)
	}

	ev.env.Define("print", &NativeChant{Name: "print", Arity: -1,
		Fn: func(args []Value) (Value, *RuntimeError) {
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = a.Inspect()
			}
			fmt.Fprint(ev.Output, strings.Join(parts, " "))
			return NOTHING, nil
		}})
	ev.env.Define("println", &NativeChant{Name: "println", Arity: -1,
		Fn: func(args []Value) (Value, *RuntimeError) {
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = a.Inspect()
			}
			fmt.Fprintln(ev.Output, strings.Join(parts, " "))
			return NOTHING, nil
		}})
}

func builtins() []*NativeChant {
	return []*NativeChant{
		// String functions
		native("length", 1, func(args []Value) (Value, *RuntimeError) {
			switch v := args[0].(type) {
			case *Text:
				return &Number{Value: float64(len([]rune(v.Value)))}, nil
			case *List:
				return &Number{Value: float64(len(v.Elements))}, nil
			case *Map:
				return &Number{Value: float64(len(v.Pairs))}, nil
			}
			return nil, NewError(ErrTypeError, "length expects Text, List or Map, got %s", args[0].TypeName())
		}),
		native("slice", 3, func(args []Value) (Value, *RuntimeError) {
			s, err := wantText("slice", args[0])
			if err != nil {
				return nil, err
			}
			start, err := wantNumber("slice", args[1])
			if err != nil {
				return nil, err
			}
			end, err := wantNumber("slice", args[2])
			if err != nil {
				return nil, err
			}
			runes := []rune(s)
			from, to := clampIndex(int(start), len(runes)), clampIndex(int(end), len(runes))
			if from > to {
				from = to
			}
			return &Text{Value: string(runes[from:to])}, nil
		}),
		native("concat", 2, func(args []Value) (Value, *RuntimeError) {
			a, err := wantText("concat", args[0])
			if err != nil {
				return nil, err
			}
			b, err := wantText("concat", args[1])
			if err != nil {
				return nil, err
			}
			return &Text{Value: a + b}, nil
		}),
		textFn("upper", strings.ToUpper),
		textFn("lower", strings.ToLower),
		textFn("trim", strings.TrimSpace),
		native("split", 2, func(args []Value) (Value, *RuntimeError) {
			s, err := wantText("split", args[0])
			if err != nil {
				return nil, err
			}
			sep, err := wantText("split", args[1])
			if err != nil {
				return nil, err
			}
			parts := strings.Split(s, sep)
			elements := make([]Value, len(parts))
			for i, p := range parts {
				elements[i] = &Text{Value: p}
			}
			return &List{Elements: elements}, nil
		}),
		native("join", 2, func(args []Value) (Value, *RuntimeError) {
			list, ok := args[0].(*List)
			if !ok {
				return nil, NewError(ErrTypeError, "join expects List, got %s", args[0].TypeName())
			}
			sep, err := wantText("join", args[1])
			if err != nil {
				return nil, err
			}
			parts := make([]string, len(list.Elements))
			for i, el := range list.Elements {
				parts[i] = el.Inspect()
			}
			return &Text{Value: strings.Join(parts, sep)}, nil
		}),
		native("contains", 2, func(args []Value) (Value, *RuntimeError) {
			s, err := wantText("contains", args[0])
			if err != nil {
				return nil, err
			}
			sub, err := wantText("contains", args[1])
			if err != nil {
				return nil, err
			}
			return BoolValue(strings.Contains(s, sub)), nil
		}),
		native("replace", 3, func(args []Value) (Value, *RuntimeError) {
			s, err := wantText("replace", args[0])
			if err != nil {
				return nil, err
			}
			old, err := wantText("replace", args[1])
			if err != nil {
				return nil, err
			}
			new, err := wantText("replace", args[2])
			if err != nil {
				return nil, err
			}
			return &Text{Value: strings.ReplaceAll(s, old, new)}, nil
		}),
		native("repeat", 2, func(args []Value) (Value, *RuntimeError) {
			s, err := wantText("repeat", args[0])
			if err != nil {
				return nil, err
			}
			n, err := wantNumber("repeat", args[1])
			if err != nil {
				return nil, err
			}
			if n < 0 {
				n = 0
			}
			return &Text{Value: strings.Repeat(s, int(n))}, nil
		}),
		textFn("reverse", func(s string) string {
			runes := []rune(s)
			for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
				runes[i], runes[j] = runes[j], runes[i]
			}
			return string(runes)
		}),

		// Math functions
		mathFn("abs", math.Abs),
		mathFn("sqrt", math.Sqrt),
		mathFn("floor", math.Floor),
		mathFn("ceil", math.Ceil),
		mathFn("round", math.Round),
		native("pow", 2, func(args []Value) (Value, *RuntimeError) {
			x, err := wantNumber("pow", args[0])
			if err != nil {
				return nil, err
			}
			y, err := wantNumber("pow", args[1])
			if err != nil {
				return nil, err
			}
			return &Number{Value: math.Pow(x, y)}, nil
		}),
		native("min", 2, func(args []Value) (Value, *RuntimeError) {
			x, err := wantNumber("min", args[0])
			if err != nil {
				return nil, err
			}
			y, err := wantNumber("min", args[1])
			if err != nil {
				return nil, err
			}
			return &Number{Value: math.Min(x, y)}, nil
		}),
		native("max", 2, func(args []Value) (Value, *RuntimeError) {
			x, err := wantNumber("max", args[0])
			if err != nil {
				return nil, err
			}
			y, err := wantNumber("max", args[1])
			if err != nil {
				return nil, err
			}
			return &Number{Value: math.Max(x, y)}, nil
		}),
		mathFn("sign", func(x float64) float64 {
			if x > 0 {
				return 1
			}
			if x < 0 {
				return -1
			}
			return 0
		}),
		native("clamp", 3, func(args []Value) (Value, *RuntimeError) {
			x, err := wantNumber("clamp", args[0])
			if err != nil {
				return nil, err
			}
			lo, err := wantNumber("clamp", args[1])
			if err != nil {
				return nil, err
			}
			hi, err := wantNumber("clamp", args[2])
			if err != nil {
				return nil, err
			}
			return &Number{Value: math.Min(math.Max(x, lo), hi)}, nil
		}),

		// List functions
		native("list_length", 1, func(args []Value) (Value, *RuntimeError) {
			list, err := wantList("list_length", args[0])
			if err != nil {
				return nil, err
			}
			return &Number{Value: float64(len(list.Elements))}, nil
		}),
		native("list_push", 2, func(args []Value) (Value, *RuntimeError) {
			list, err := wantList("list_push", args[0])
			if err != nil {
				return nil, err
			}
			return &List{Elements: append(append([]Value{}, list.Elements...), args[1])}, nil
		}),
		native("list_pop", 1, func(args []Value) (Value, *RuntimeError) {
			list, err := wantList("list_pop", args[0])
			if err != nil {
				return nil, err
			}
			if len(list.Elements) == 0 {
				return nil, NewError(ErrIndexOutOfBounds, "Cannot pop empty list")
			}
			return &List{Elements: append([]Value{}, list.Elements[:len(list.Elements)-1]...)}, nil
		}),
		native("list_reverse", 1, func(args []Value) (Value, *RuntimeError) {
			list, err := wantList("list_reverse", args[0])
			if err != nil {
				return nil, err
			}
			out := make([]Value, len(list.Elements))
			for i, el := range list.Elements {
				out[len(out)-1-i] = el
			}
			return &List{Elements: out}, nil
		}),
		native("list_concat", 2, func(args []Value) (Value, *RuntimeError) {
			a, err := wantList("list_concat", args[0])
			if err != nil {
				return nil, err
			}
			b, err := wantList("list_concat", args[1])
			if err != nil {
				return nil, err
			}
			out := append(append([]Value{}, a.Elements...), b.Elements...)
			return &List{Elements: out}, nil
		}),
		native("list_slice", 3, func(args []Value) (Value, *RuntimeError) {
			list, err := wantList("list_slice", args[0])
			if err != nil {
				return nil, err
			}
			start, err := wantNumber("list_slice", args[1])
			if err != nil {
				return nil, err
			}
			end, err := wantNumber("list_slice", args[2])
			if err != nil {
				return nil, err
			}
			from, to := clampIndex(int(start), len(list.Elements)), clampIndex(int(end), len(list.Elements))
			if from > to {
				from = to
			}
			return &List{Elements: append([]Value{}, list.Elements[from:to]...)}, nil
		}),
		native("list_contains", 2, func(args []Value) (Value, *RuntimeError) {
			list, err := wantList("list_contains", args[0])
			if err != nil {
				return nil, err
			}
			for _, el := range list.Elements {
				if Equals(el, args[1]) {
					return TRUE, nil
				}
			}
			return FALSE, nil
		}),
		native("list_sum", 1, func(args []Value) (Value, *RuntimeError) {
			list, err := wantList("list_sum", args[0])
			if err != nil {
				return nil, err
			}
			sum := 0.0
			for _, el := range list.Elements {
				n, ok := el.(*Number)
				if !ok {
					return nil, NewError(ErrTypeError, "list_sum expects Numbers, got %s", el.TypeName())
				}
				sum += n.Value
			}
			return &Number{Value: sum}, nil
		}),

		// Map functions
		native("keys", 1, func(args []Value) (Value, *RuntimeError) {
			m, err := wantMap("keys", args[0])
			if err != nil {
				return nil, err
			}
			keys := m.SortedKeys()
			elements := make([]Value, len(keys))
			for i, k := range keys {
				elements[i] = &Text{Value: k}
			}
			return &List{Elements: elements}, nil
		}),
		native("values", 1, func(args []Value) (Value, *RuntimeError) {
			m, err := wantMap("values", args[0])
			if err != nil {
				return nil, err
			}
			keys := m.SortedKeys()
			elements := make([]Value, len(keys))
			for i, k := range keys {
				elements[i] = m.Pairs[k]
			}
			return &List{Elements: elements}, nil
		}),
		native("has", 2, func(args []Value) (Value, *RuntimeError) {
			m, err := wantMap("has", args[0])
			if err != nil {
				return nil, err
			}
			key, err2 := wantText("has", args[1])
			if err2 != nil {
				return nil, err2
			}
			_, exists := m.Pairs[key]
			return BoolValue(exists), nil
		}),
		native("size", 1, func(args []Value) (Value, *RuntimeError) {
			m, err := wantMap("size", args[0])
			if err != nil {
				return nil, err
			}
			return &Number{Value: float64(len(m.Pairs))}, nil
		}),

		// Conversion functions
		native("to_text", 1, func(args []Value) (Value, *RuntimeError) {
			return &Text{Value: args[0].Inspect()}, nil
		}),
		native("to_number", 1, func(args []Value) (Value, *RuntimeError) {
			switch v := args[0].(type) {
			case *Number:
				return v, nil
			case *Text:
				n, err := strconv.ParseFloat(strings.TrimSpace(v.Value), 64)
				if err != nil {
					return nil, NewError(ErrTypeError, "Cannot convert %q to Number", v.Value)
				}
				return &Number{Value: n}, nil
			case *Truth:
				if v.Value {
					return &Number{Value: 1}, nil
				}
				return &Number{Value: 0}, nil
			}
			return nil, NewError(ErrTypeError, "Cannot convert %s to Number", args[0].TypeName())
		}),
		native("to_truth", 1, func(args []Value) (Value, *RuntimeError) {
			return BoolValue(IsTruthy(args[0])), nil
		}),
		native("type_of", 1, func(args []Value) (Value, *RuntimeError) {
			return &Text{Value: args[0].TypeName()}, nil
		}),

		// Outcome / Maybe helpers
		native("is_triumph", 1, func(args []Value) (Value, *RuntimeError) {
			o, ok := args[0].(*Outcome)
			return BoolValue(ok && o.Success), nil
		}),
		native("is_mishap", 1, func(args []Value) (Value, *RuntimeError) {
			o, ok := args[0].(*Outcome)
			return BoolValue(ok && !o.Success), nil
		}),
		native("is_present", 1, func(args []Value) (Value, *RuntimeError) {
			m, ok := args[0].(*Maybe)
			return BoolValue(ok && m.Present), nil
		}),
		native("is_absent", 1, func(args []Value) (Value, *RuntimeError) {
			m, ok := args[0].(*Maybe)
			return BoolValue(ok && !m.Present), nil
		}),
		native("expect_present", 1, func(args []Value) (Value, *RuntimeError) {
			m, ok := args[0].(*Maybe)
			if !ok {
				return nil, NewError(ErrTypeError, "expect_present expects Maybe, got %s", args[0].TypeName())
			}
			if !m.Present {
				return nil, NewError(ErrCustom, "Expected Present, found Absent")
			}
			return m.Value, nil
		}),
		native("unwrap_or", 2, func(args []Value) (Value, *RuntimeError) {
			switch v := args[0].(type) {
			case *Maybe:
				if v.Present {
					return v.Value, nil
				}
				return args[1], nil
			case *Outcome:
				if v.Success {
					return v.Value, nil
				}
				return args[1], nil
			}
			return nil, NewError(ErrTypeError, "unwrap_or expects Outcome or Maybe, got %s", args[0].TypeName())
		}),
	}
}

func native(name string, arity int, fn NativeFn) *NativeChant {
	return &NativeChant{Name: name, Arity: arity, Fn: fn}
}

func textFn(name string, fn func(string) string) *NativeChant {
	return native(name, 1, func(args []Value) (Value, *RuntimeError) {
		s, err := wantText(name, args[0])
		if err != nil {
			return nil, err
		}
		return &Text{Value: fn(s)}, nil
	})
}

func mathFn(name string, fn func(float64) float64) *NativeChant {
	return native(name, 1, func(args []Value) (Value, *RuntimeError) {
		n, err := wantNumber(name, args[0])
		if err != nil {
			return nil, err
		}
		return &Number{Value: fn(n)}, nil
	})
}

func wantText(name string, v Value) (string, *RuntimeError) {
	if t, ok := v.(*Text); ok {
		return t.Value, nil
	}
	return "", NewError(ErrTypeError, "%s expects Text, got %s", name, v.TypeName())
}

func wantNumber(name string, v Value) (float64, *RuntimeError) {
	if n, ok := v.(*Number); ok {
		return n.Value, nil
	}
	return 0, NewError(ErrTypeError, "%s expects Number, got %s", name, v.TypeName())
}

func wantList(name string, v Value) (*List, *RuntimeError) {
	if l, ok := v.(*List); ok {
		return l, nil
	}
	return nil, NewError(ErrTypeError, "%s expects List, got %s", name, v.TypeName())
}

func wantMap(name string, v Value) (*Map, *RuntimeError) {
	if m, ok := v.(*Map); ok {
		return m, nil
	}
	return nil, NewError(ErrTypeError, "%s expects Map, got %s", name, v.TypeName())
}

func clampIndex(i, length int) int {
	if i < 0 {
		return 0
	}
	if i > length {
		return length
	}
	return i
}
