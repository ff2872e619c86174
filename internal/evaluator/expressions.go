package evaluator

import (
	"math"

	"github.com/glimmerweave/gw/internal/ast"
)

func (ev *Evaluator) evalExpr(expr ast.Expression) (Value, *RuntimeError) {
	switch e := expr.(type) {
	case *ast.NumberLiteral:
		return &Number{Value: e.Value}, nil
	case *ast.TextLiteral:
		return &Text{Value: e.Value}, nil
	case *ast.TruthLiteral:
		return BoolValue(e.Value), nil
	case *ast.NothingLiteral:
		return NOTHING, nil

	case *ast.Identifier:
		return ev.env.Get(e.Name)

	case *ast.TriumphExpr:
		inner, err := ev.evalExpr(e.Value)
		if err != nil {
			return nil, err
		}
		return &Outcome{Success: true, Value: inner}, nil
	case *ast.MishapExpr:
		inner, err := ev.evalExpr(e.Value)
		if err != nil {
			return nil, err
		}
		return &Outcome{Success: false, Value: inner}, nil
	case *ast.PresentExpr:
		inner, err := ev.evalExpr(e.Value)
		if err != nil {
			return nil, err
		}
		return &Maybe{Present: true, Value: inner}, nil
	case *ast.AbsentExpr:
		return &Maybe{Present: false}, nil

	case *ast.ListLiteral:
		elements := make([]Value, len(e.Elements))
		for i, el := range e.Elements {
			v, err := ev.evalExpr(el)
			if err != nil {
				return nil, err
			}
			elements[i] = v
		}
		return &List{Elements: elements}, nil

	case *ast.MapLiteral:
		m := NewMap()
		for _, entry := range e.Entries {
			v, err := ev.evalExpr(entry.Value)
			if err != nil {
				return nil, err
			}
			m.Pairs[entry.Key] = v
		}
		return m, nil

	case *ast.StructLiteral:
		return ev.evalStructLiteral(e)

	case *ast.BinaryExpr:
		left, err := ev.evalExpr(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := ev.evalExpr(e.Right)
		if err != nil {
			return nil, err
		}
		return evalBinaryOp(left, e.Op, right)

	case *ast.UnaryExpr:
		operand, err := ev.evalExpr(e.Operand)
		if err != nil {
			return nil, err
		}
		return evalUnaryOp(e.Op, operand)

	case *ast.BorrowExpr:
		// Values are shared in the interpreter; the borrow disciplines are
		// enforced statically by the borrow checker.
		return ev.evalExpr(e.Value)

	case *ast.CallExpr:
		return ev.evalCall(e)

	case *ast.FieldAccess:
		obj, err := ev.evalExpr(e.Object)
		if err != nil {
			return nil, err
		}
		return fieldOf(obj, e.Field)

	case *ast.ModuleAccess:
		moduleValue, err := ev.env.Get(e.Module)
		if err != nil {
			return nil, err
		}
		module, ok := moduleValue.(*Module)
		if !ok {
			return nil, NewError(ErrTypeError, "'%s' is not a module", e.Module)
		}
		member, exists := module.Exports[e.Member]
		if !exists {
			return nil, NewError(ErrFieldNotFound, "Field '%s' not found on %s", e.Member, module.Name)
		}
		return member, nil

	case *ast.IndexAccess:
		return ev.evalIndex(e)

	case *ast.RangeExpr:
		start, err := ev.evalExpr(e.Start)
		if err != nil {
			return nil, err
		}
		end, err := ev.evalExpr(e.End)
		if err != nil {
			return nil, err
		}
		startNum, ok1 := start.(*Number)
		endNum, ok2 := end.(*Number)
		if !ok1 || !ok2 {
			return nil, NewError(ErrTypeError, "Range bounds must be Numbers")
		}
		return &Range{Start: startNum.Value, End: endNum.Value}, nil

	case *ast.PipelineExpr:
		return ev.evalPipeline(e)

	case *ast.TryExpr:
		return ev.evalTry(e)
	}
	return nil, NewError(ErrTypeError, "Cannot evaluate expression")
}

func (ev *Evaluator) evalStructLiteral(e *ast.StructLiteral) (Value, *RuntimeError) {
	defValue, err := ev.env.Get(e.StructName)
	if err != nil {
		return nil, err
	}
	def, ok := defValue.(*StructDef)
	if !ok {
		return nil, NewError(ErrTypeError, "Expected form definition, got %s", defValue.TypeName())
	}

	fields := make(map[string]Value, len(e.Fields))
	for _, f := range e.Fields {
		v, err := ev.evalExpr(f.Value)
		if err != nil {
			return nil, err
		}
		fields[f.Name] = v
	}

	// Construction requires exactly the declared fields.
	for _, declared := range def.Fields {
		if _, present := fields[declared.Name]; !present {
			return nil, NewError(ErrCustom, "Missing field '%s' in form '%s'", declared.Name, e.StructName)
		}
	}
	if len(fields) != len(def.Fields) {
		for name := range fields {
			known := false
			for _, declared := range def.Fields {
				if declared.Name == name {
					known = true
					break
				}
			}
			if !known {
				return nil, NewError(ErrCustom, "Unknown field '%s' in form '%s'", name, e.StructName)
			}
		}
	}

	return &StructInstance{StructName: e.StructName, Fields: fields}, nil
}

// evalCall evaluates the callee and arguments left-to-right, then applies.
// Method calls (callee is a field access) first try data fields holding a
// callable, then the aspect dispatch table for the receiver's type.
func (ev *Evaluator) evalCall(e *ast.CallExpr) (Value, *RuntimeError) {
	if access, isAccess := e.Callee.(*ast.FieldAccess); isAccess {
		obj, err := ev.evalExpr(access.Object)
		if err != nil {
			return nil, err
		}

		if fieldValue, fieldErr := fieldOf(obj, access.Field); fieldErr == nil {
			if isCallable(fieldValue) {
				args, err := ev.evalArgs(e.Args)
				if err != nil {
					return nil, err
				}
				return ev.callValue(fieldValue, args, "")
			}
		}

		// Trait dispatch by (target type, trait, method).
		if method := ev.lookupMethod(obj.TypeName(), access.Field); method != nil {
			args, err := ev.evalArgs(e.Args)
			if err != nil {
				return nil, err
			}
			return ev.callValue(method, append([]Value{obj}, args...), "")
		}
		return nil, NewError(ErrFieldNotFound, "Field '%s' not found on %s", access.Field, obj.TypeName())
	}

	fn, err := ev.evalExpr(e.Callee)
	if err != nil {
		return nil, err
	}
	args, err := ev.evalArgs(e.Args)
	if err != nil {
		return nil, err
	}

	tcoName := ""
	if ident, isIdent := e.Callee.(*ast.Identifier); isIdent {
		tcoName = ident.Name
	}
	return ev.callValue(fn, args, tcoName)
}

func (ev *Evaluator) evalArgs(exprs []ast.Expression) ([]Value, *RuntimeError) {
	args := make([]Value, len(exprs))
	for i, expr := range exprs {
		v, err := ev.evalExpr(expr)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func (ev *Evaluator) lookupMethod(typeName, methodName string) *Chant {
	for _, methods := range ev.aspects[typeName] {
		if m, ok := methods[methodName]; ok {
			return m
		}
	}
	return nil
}

// callValue applies a callable. For user chants it runs the TCO trampoline:
// a TailCall signal naming this function rebinds the parameters and loops
// instead of growing the host stack.
func (ev *Evaluator) callValue(fn Value, args []Value, tcoName string) (Value, *RuntimeError) {
	switch callee := fn.(type) {
	case *Chant:
		if err := checkArity(callee.Params, len(args)); err != nil {
			return nil, err
		}

		funcName := tcoName
		if funcName == "" {
			funcName = callee.Name
		}

		currentArgs := args
		for {
			ev.env.PushScope()
			bindParams(ev.env, callee.Params, currentArgs)
			if funcName != "" {
				ev.env.Define(currentFunctionKey, &Text{Value: funcName})
			}

			result, err := ev.Eval(callee.Body)
			ev.env.PopScope()

			if err == nil {
				return result, nil
			}
			if err.Kind == ctrlReturn {
				return err.Value, nil
			}
			if err.Kind == ctrlTailCall {
				if err.TailFunction == funcName {
					currentArgs = err.TailArgs
					continue
				}
				// Someone else's trampoline; keep unwinding.
				return nil, err
			}
			return nil, err
		}

	case *NativeChant:
		if callee.Arity >= 0 && len(args) != callee.Arity {
			return nil, NewError(ErrArityMismatch, "Expected %d arguments, got %d", callee.Arity, len(args))
		}
		return callee.Fn(args)
	}
	return nil, NewError(ErrNotCallable, "%s is not callable", fn.TypeName())
}

func checkArity(params []ast.Parameter, argCount int) *RuntimeError {
	if len(params) > 0 && params[len(params)-1].IsVariadic {
		required := len(params) - 1
		if argCount < required {
			return NewError(ErrArityMismatch, "Expected at least %d arguments, got %d", required, argCount)
		}
		return nil
	}
	if argCount != len(params) {
		return NewError(ErrArityMismatch, "Expected %d arguments, got %d", len(params), argCount)
	}
	return nil
}

func bindParams(env *Environment, params []ast.Parameter, args []Value) {
	for i, param := range params {
		if param.IsVariadic {
			rest := append([]Value{}, args[i:]...)
			env.Define(param.Name, &List{Elements: rest})
			return
		}
		env.Define(param.Name, args[i])
	}
}

func isCallable(v Value) bool {
	switch v.(type) {
	case *Chant, *NativeChant:
		return true
	}
	return false
}

func fieldOf(obj Value, field string) (Value, *RuntimeError) {
	switch container := obj.(type) {
	case *Map:
		if v, ok := container.Pairs[field]; ok {
			return v, nil
		}
		return nil, NewError(ErrFieldNotFound, "Field '%s' not found on Map", field)
	case *StructInstance:
		if v, ok := container.Fields[field]; ok {
			return v, nil
		}
		return nil, NewError(ErrFieldNotFound, "Field '%s' not found on %s", field, container.StructName)
	case *Module:
		if v, ok := container.Exports[field]; ok {
			return v, nil
		}
		return nil, NewError(ErrFieldNotFound, "Field '%s' not found on %s", field, container.Name)
	}
	return nil, NewError(ErrTypeError, "Expected Map or form instance, got %s", obj.TypeName())
}

func (ev *Evaluator) evalIndex(e *ast.IndexAccess) (Value, *RuntimeError) {
	obj, err := ev.evalExpr(e.Object)
	if err != nil {
		return nil, err
	}
	index, err := ev.evalExpr(e.Index)
	if err != nil {
		return nil, err
	}

	switch container := obj.(type) {
	case *List:
		idx, ok := index.(*Number)
		if !ok {
			return nil, NewError(ErrTypeError, "Expected Number index, got %s", index.TypeName())
		}
		i := int(idx.Value)
		if i < 0 || i >= len(container.Elements) {
			return nil, NewError(ErrIndexOutOfBounds, "Index %d out of bounds (length %d)", i, len(container.Elements))
		}
		return container.Elements[i], nil
	case *Map:
		key, ok := index.(*Text)
		if !ok {
			return nil, NewError(ErrTypeError, "Expected Text key, got %s", index.TypeName())
		}
		if v, exists := container.Pairs[key.Value]; exists {
			return v, nil
		}
		return nil, NewError(ErrFieldNotFound, "Field '%s' not found on Map", key.Value)
	case *Text:
		idx, ok := index.(*Number)
		if !ok {
			return nil, NewError(ErrTypeError, "Expected Number index, got %s", index.TypeName())
		}
		runes := []rune(container.Value)
		i := int(idx.Value)
		if i < 0 || i >= len(runes) {
			return nil, NewError(ErrIndexOutOfBounds, "Index %d out of bounds (length %d)", i, len(runes))
		}
		return &Text{Value: string(runes[i])}, nil
	}
	return nil, NewError(ErrTypeError, "Cannot index into %s", obj.TypeName())
}

// evalPipeline threads the running value as the last argument of each stage.
func (ev *Evaluator) evalPipeline(e *ast.PipelineExpr) (Value, *RuntimeError) {
	value, err := ev.evalExpr(e.Stages[0])
	if err != nil {
		return nil, err
	}

	for _, stage := range e.Stages[1:] {
		if call, isCall := stage.(*ast.CallExpr); isCall {
			fn, err := ev.evalExpr(call.Callee)
			if err != nil {
				return nil, err
			}
			args, err := ev.evalArgs(call.Args)
			if err != nil {
				return nil, err
			}
			value, err = ev.callValue(fn, append(args, value), "")
			if err != nil {
				return nil, err
			}
			continue
		}
		fn, err := ev.evalExpr(stage)
		if err != nil {
			return nil, err
		}
		value, err = ev.callValue(fn, []Value{value}, "")
		if err != nil {
			return nil, err
		}
	}
	return value, nil
}

// evalTry unwraps Triumph/Present and propagates the failure value as an
// early return from the enclosing chant.
func (ev *Evaluator) evalTry(e *ast.TryExpr) (Value, *RuntimeError) {
	value, err := ev.evalExpr(e.Expr)
	if err != nil {
		return nil, err
	}
	switch v := value.(type) {
	case *Outcome:
		if v.Success {
			return v.Value, nil
		}
		return nil, newReturn(v)
	case *Maybe:
		if v.Present {
			return v.Value, nil
		}
		return nil, newReturn(v)
	}
	return nil, NewError(ErrTypeError, "Expected Outcome or Maybe, got %s", value.TypeName())
}

func evalBinaryOp(left Value, op ast.BinaryOperator, right Value) (Value, *RuntimeError) {
	switch op {
	case ast.OpAdd:
		if l, ok := left.(*Number); ok {
			if r, ok := right.(*Number); ok {
				return &Number{Value: l.Value + r.Value}, nil
			}
		}
		if l, ok := left.(*Text); ok {
			if r, ok := right.(*Text); ok {
				return &Text{Value: l.Value + r.Value}, nil
			}
		}
		return nil, NewError(ErrTypeError, "Cannot add %s and %s", left.TypeName(), right.TypeName())

	case ast.OpSub, ast.OpMul, ast.OpDiv, ast.OpMod:
		l, lok := left.(*Number)
		r, rok := right.(*Number)
		if !lok || !rok {
			return nil, NewError(ErrTypeError, "Expected Numbers, got %s and %s", left.TypeName(), right.TypeName())
		}
		switch op {
		case ast.OpSub:
			return &Number{Value: l.Value - r.Value}, nil
		case ast.OpMul:
			return &Number{Value: l.Value * r.Value}, nil
		case ast.OpDiv:
			if r.Value == 0 {
				return nil, NewError(ErrDivisionByZero, "Division by zero")
			}
			return &Number{Value: l.Value / r.Value}, nil
		case ast.OpMod:
			if r.Value == 0 {
				return nil, NewError(ErrDivisionByZero, "Division by zero")
			}
			return &Number{Value: math.Mod(l.Value, r.Value)}, nil
		}

	case ast.OpEqual:
		return BoolValue(Equals(left, right)), nil
	case ast.OpNotEqual:
		return BoolValue(!Equals(left, right)), nil

	case ast.OpGreater, ast.OpLess, ast.OpGreaterEq, ast.OpLessEq:
		l, lok := left.(*Number)
		r, rok := right.(*Number)
		if !lok || !rok {
			return nil, NewError(ErrTypeError, "Cannot order %s and %s", left.TypeName(), right.TypeName())
		}
		switch op {
		case ast.OpGreater:
			return BoolValue(l.Value > r.Value), nil
		case ast.OpLess:
			return BoolValue(l.Value < r.Value), nil
		case ast.OpGreaterEq:
			return BoolValue(l.Value >= r.Value), nil
		case ast.OpLessEq:
			return BoolValue(l.Value <= r.Value), nil
		}

	case ast.OpAnd:
		return BoolValue(IsTruthy(left) && IsTruthy(right)), nil
	case ast.OpOr:
		return BoolValue(IsTruthy(left) || IsTruthy(right)), nil
	}
	return nil, NewError(ErrTypeError, "Unknown operator")
}

func evalUnaryOp(op ast.UnaryOperator, operand Value) (Value, *RuntimeError) {
	switch op {
	case ast.OpNot:
		return BoolValue(!IsTruthy(operand)), nil
	case ast.OpNegate:
		n, ok := operand.(*Number)
		if !ok {
			return nil, NewError(ErrTypeError, "Expected Number, got %s", operand.TypeName())
		}
		return &Number{Value: -n.Value}, nil
	}
	return nil, NewError(ErrTypeError, "Unknown operator")
}
