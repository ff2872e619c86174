package evaluator

import (
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/glimmerweave/gw/internal/ast"
	"github.com/glimmerweave/gw/internal/modules"
)

// currentFunctionKey is the scope entry the trampoline uses to recognize
// self-tail-calls. It is an internal convention of this interpreter, not
// shared state.
const currentFunctionKey = "__current_function__"

// Evaluator executes programs with reference semantics. It owns its
// environment for its lifetime; parallel evaluations use separate instances.
type Evaluator struct {
	env *Environment

	// Output receives print/println output; defaults to stdout.
	Output io.Writer

	// Resolver loads summoned modules; nil disables imports.
	Resolver *modules.Resolver

	// CurrentFile anchors relative imports.
	CurrentFile string

	// aspects is the dynamic-dispatch table: target type -> trait ->
	// method -> implementation, built by embody statements.
	aspects map[string]map[string]map[string]*Chant

	// traits records aspect definitions by name.
	traits map[string]*ast.AspectDef

	moduleCache map[string]*Module
}

func New() *Evaluator {
	ev := &Evaluator{
		env:         NewEnvironment(),
		Output:      os.Stdout,
		aspects:     make(map[string]map[string]map[string]*Chant),
		traits:      make(map[string]*ast.AspectDef),
		moduleCache: make(map[string]*Module),
	}
	ev.registerBuiltins()
	return ev
}

// Eval runs a statement list and returns the last value.
func (ev *Evaluator) Eval(stmts []ast.Statement) (Value, *RuntimeError) {
	result := Value(NOTHING)
	for _, stmt := range stmts {
		v, err := ev.evalStmt(stmt)
		if err != nil {
			return nil, err
		}
		result = v
	}
	return result, nil
}

// EvalProgram is the top-level entry. A top-level yield ends the program
// with its value; any other control-flow signal escaping the program
// surfaces as a real error.
func (ev *Evaluator) EvalProgram(prog *ast.Program) (Value, *RuntimeError) {
	ev.CurrentFile = prog.File
	result, err := ev.Eval(prog.Statements)
	if err != nil && err.Kind == ctrlReturn {
		return err.Value, nil
	}
	if err != nil && err.IsControl() {
		return nil, NewError(ErrUnexpectedYield, "Control flow escaped the program")
	}
	return result, err
}

func (ev *Evaluator) evalStmt(stmt ast.Statement) (Value, *RuntimeError) {
	switch s := stmt.(type) {
	case *ast.BindStmt:
		value, err := ev.evalExpr(s.Value)
		if err != nil {
			return nil, err
		}
		ev.env.Define(s.Name, value)
		return value, nil

	case *ast.WeaveStmt:
		value, err := ev.evalExpr(s.Value)
		if err != nil {
			return nil, err
		}
		ev.env.DefineMut(s.Name, value)
		return value, nil

	case *ast.SetStmt:
		return ev.evalSet(s)

	case *ast.IfStmt:
		cond, err := ev.evalExpr(s.Condition)
		if err != nil {
			return nil, err
		}
		if IsTruthy(cond) {
			return ev.Eval(s.ThenBranch)
		}
		if s.ElseBranch != nil {
			return ev.Eval(s.ElseBranch)
		}
		return NOTHING, nil

	case *ast.ForStmt:
		return ev.evalFor(s)

	case *ast.WhileStmt:
		for {
			cond, err := ev.evalExpr(s.Condition)
			if err != nil {
				return nil, err
			}
			if !IsTruthy(cond) {
				return NOTHING, nil
			}
			if _, err := ev.Eval(s.Body); err != nil {
				if err.Kind == ctrlBreak {
					return NOTHING, nil
				}
				if err.Kind == ctrlContinue {
					continue
				}
				return nil, err
			}
		}

	case *ast.ChantDef:
		chant := &Chant{Name: s.Name, Params: s.Params, Body: s.Body}
		ev.env.Define(s.Name, chant)
		return chant, nil

	case *ast.FormDef:
		def := &StructDef{Name: s.Name, Fields: s.Fields}
		ev.env.Define(s.Name, def)
		return def, nil

	case *ast.VariantDef:
		return ev.evalVariantDef(s)

	case *ast.AspectDef:
		ev.traits[s.Name] = s
		return NOTHING, nil

	case *ast.EmbodyStmt:
		return ev.evalEmbody(s)

	case *ast.YieldStmt:
		return ev.evalYield(s)

	case *ast.MatchStmt:
		return ev.evalMatch(s)

	case *ast.AttemptStmt:
		return ev.evalAttempt(s)

	case *ast.RequestStmt:
		resource := describeCapability(s.Capability)
		return &Capability{
			Resource:    resource,
			Permissions: []string{"access", s.Justification},
			Token:       uuid.NewString(),
		}, nil

	case *ast.ModuleDecl:
		return ev.evalModuleDecl(s)

	case *ast.ImportStmt:
		return ev.evalImport(s)

	case *ast.ExportStmt:
		// Exports are collected by the enclosing grove or the module loader.
		return NOTHING, nil

	case *ast.BreakStmt:
		return nil, newBreak()
	case *ast.ContinueStmt:
		return nil, newContinue()

	case *ast.ExprStatement:
		return ev.evalExpr(s.Expr)
	}
	return NOTHING, nil
}

func (ev *Evaluator) evalSet(s *ast.SetStmt) (Value, *RuntimeError) {
	value, err := ev.evalExpr(s.Value)
	if err != nil {
		return nil, err
	}

	switch target := s.Target.(type) {
	case *ast.Identifier:
		if err := ev.env.Set(target.Name, value); err != nil {
			return nil, err
		}
		return NOTHING, nil

	case *ast.IndexAccess:
		obj, err := ev.evalExpr(target.Object)
		if err != nil {
			return nil, err
		}
		index, err := ev.evalExpr(target.Index)
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
			container.Elements[i] = value
			return NOTHING, nil
		case *Map:
			key, ok := index.(*Text)
			if !ok {
				return nil, NewError(ErrTypeError, "Expected Text key, got %s", index.TypeName())
			}
			container.Pairs[key.Value] = value
			return NOTHING, nil
		}
		return nil, NewError(ErrTypeError, "Cannot index into %s", obj.TypeName())

	case *ast.FieldAccess:
		obj, err := ev.evalExpr(target.Object)
		if err != nil {
			return nil, err
		}
		switch container := obj.(type) {
		case *Map:
			container.Pairs[target.Field] = value
			return NOTHING, nil
		case *StructInstance:
			if _, exists := container.Fields[target.Field]; !exists {
				return nil, NewError(ErrFieldNotFound, "Field '%s' not found on %s", target.Field, container.StructName)
			}
			container.Fields[target.Field] = value
			return NOTHING, nil
		}
		return nil, NewError(ErrTypeError, "Cannot set field on %s", obj.TypeName())
	}
	return nil, NewError(ErrTypeError, "Invalid assignment target")
}

func (ev *Evaluator) evalFor(s *ast.ForStmt) (Value, *RuntimeError) {
	iterable, err := ev.evalExpr(s.Iterable)
	if err != nil {
		return nil, err
	}

	var items []Value
	switch it := iterable.(type) {
	case *List:
		items = it.Elements
	case *Range:
		for n := it.Start; n < it.End; n++ {
			items = append(items, &Number{Value: n})
		}
	case *Map:
		for _, k := range it.SortedKeys() {
			items = append(items, &Text{Value: k})
		}
	case *Text:
		for _, r := range it.Value {
			items = append(items, &Text{Value: string(r)})
		}
	default:
		return nil, NewError(ErrNotIterable, "%s is not iterable", iterable.TypeName())
	}

	for _, item := range items {
		ev.env.PushScope()
		ev.env.Define(s.Variable, item)
		_, err := ev.Eval(s.Body)
		ev.env.PopScope()
		if err != nil {
			if err.Kind == ctrlBreak {
				return NOTHING, nil
			}
			if err.Kind == ctrlContinue {
				continue
			}
			return nil, err
		}
	}
	return NOTHING, nil
}

func (ev *Evaluator) evalVariantDef(s *ast.VariantDef) (Value, *RuntimeError) {
	def := &VariantDefValue{Name: s.Name, TypeParams: s.TypeParams, Cases: s.Cases}
	ev.env.Define(s.Name, def)

	// Each case becomes a constructor: unit cases bind the value directly,
	// data cases bind a native constructor.
	for _, vc := range s.Cases {
		if len(vc.Fields) == 0 {
			ev.env.Define(vc.Name, &VariantValue{EnumName: s.Name, CaseName: vc.Name})
			continue
		}
		enumName, caseName, arity := s.Name, vc.Name, len(vc.Fields)
		ev.env.Define(vc.Name, &NativeChant{
			Name:  vc.Name,
			Arity: arity,
			Fn: func(args []Value) (Value, *RuntimeError) {
				return &VariantValue{EnumName: enumName, CaseName: caseName, Fields: args}, nil
			},
		})
	}
	return def, nil
}

func (ev *Evaluator) evalEmbody(s *ast.EmbodyStmt) (Value, *RuntimeError) {
	targetName := s.TargetType.String()
	if ev.aspects[targetName] == nil {
		ev.aspects[targetName] = make(map[string]map[string]*Chant)
	}
	if ev.aspects[targetName][s.AspectName] == nil {
		ev.aspects[targetName][s.AspectName] = make(map[string]*Chant)
	}
	for _, def := range s.Methods {
		ev.aspects[targetName][s.AspectName][def.Name] = &Chant{
			Name:   def.Name,
			Params: def.Params,
			Body:   def.Body,
		}
	}
	return NOTHING, nil
}

func (ev *Evaluator) evalYield(s *ast.YieldStmt) (Value, *RuntimeError) {
	// yield f(args) where f is the current function is a tail call; the
	// trampoline in callChant rebinds and loops instead of recursing.
	if call, isCall := s.Value.(*ast.CallExpr); isCall {
		if ident, isIdent := call.Callee.(*ast.Identifier); isIdent {
			if current, err := ev.env.Get(currentFunctionKey); err == nil {
				if name, isText := current.(*Text); isText && name.Value == ident.Name {
					args := make([]Value, len(call.Args))
					for i, argExpr := range call.Args {
						arg, err := ev.evalExpr(argExpr)
						if err != nil {
							return nil, err
						}
						args[i] = arg
					}
					return nil, newTailCall(ident.Name, args)
				}
			}
		}
	}

	value, err := ev.evalExpr(s.Value)
	if err != nil {
		return nil, err
	}
	return nil, newReturn(value)
}

func (ev *Evaluator) evalMatch(s *ast.MatchStmt) (Value, *RuntimeError) {
	value, err := ev.evalExpr(s.Value)
	if err != nil {
		return nil, err
	}

	for _, arm := range s.Arms {
		bindings, matched, err := ev.patternMatches(arm.Pattern, value)
		if err != nil {
			return nil, err
		}
		if !matched {
			continue
		}
		ev.env.PushScope()
		for _, b := range bindings {
			ev.env.Define(b.name, b.value)
		}
		result, err := ev.Eval(arm.Body)
		ev.env.PopScope()
		return result, err
	}
	return nil, NewError(ErrMatchFailed, "No pattern matched value %s", value.Inspect())
}

type patternBinding struct {
	name  string
	value Value
}

// patternMatches reports whether pat matches value and the bindings the arm
// body should see. A nil binding list with matched=true is a match without
// bindings.
func (ev *Evaluator) patternMatches(pat ast.Pattern, value Value) ([]patternBinding, bool, *RuntimeError) {
	switch p := pat.(type) {
	case *ast.WildcardPattern:
		return nil, true, nil

	case *ast.IdentPattern:
		return []patternBinding{{name: p.Name, value: value}}, true, nil

	case *ast.LiteralPattern:
		expected, err := ev.evalExpr(p.Value)
		if err != nil {
			return nil, false, err
		}
		return nil, Equals(expected, value), nil

	case *ast.EnumPattern:
		switch p.Variant {
		case "Triumph", "Mishap":
			outcome, ok := value.(*Outcome)
			if !ok || outcome.Success != (p.Variant == "Triumph") {
				return nil, false, nil
			}
			if p.Inner == nil {
				return nil, true, nil
			}
			return ev.patternMatches(p.Inner, outcome.Value)
		case "Present":
			maybe, ok := value.(*Maybe)
			if !ok || !maybe.Present {
				return nil, false, nil
			}
			if p.Inner == nil {
				return nil, true, nil
			}
			return ev.patternMatches(p.Inner, maybe.Value)
		case "Absent":
			maybe, ok := value.(*Maybe)
			return nil, ok && !maybe.Present, nil
		}

		variant, ok := value.(*VariantValue)
		if !ok || variant.CaseName != p.Variant {
			return nil, false, nil
		}
		if p.Inner == nil {
			return nil, len(variant.Fields) == 0, nil
		}
		if tuple, isTuple := p.Inner.(*ast.TuplePattern); isTuple {
			if len(tuple.Elements) != len(variant.Fields) {
				return nil, false, nil
			}
			var bindings []patternBinding
			for i, sub := range tuple.Elements {
				subBindings, matched, err := ev.patternMatches(sub, variant.Fields[i])
				if err != nil || !matched {
					return nil, false, err
				}
				bindings = append(bindings, subBindings...)
			}
			return bindings, true, nil
		}
		if len(variant.Fields) != 1 {
			return nil, false, nil
		}
		return ev.patternMatches(p.Inner, variant.Fields[0])

	case *ast.TuplePattern:
		variant, ok := value.(*VariantValue)
		if !ok || len(p.Elements) != len(variant.Fields) {
			return nil, false, nil
		}
		var bindings []patternBinding
		for i, sub := range p.Elements {
			subBindings, matched, err := ev.patternMatches(sub, variant.Fields[i])
			if err != nil || !matched {
				return nil, false, err
			}
			bindings = append(bindings, subBindings...)
		}
		return bindings, true, nil
	}
	return nil, false, nil
}

func (ev *Evaluator) evalAttempt(s *ast.AttemptStmt) (Value, *RuntimeError) {
	result, err := ev.Eval(s.Body)
	if err == nil {
		return result, nil
	}
	// Return and TailCall are control flow, not errors; they pass through.
	if err.IsControl() {
		return nil, err
	}

	for _, handler := range s.Handlers {
		if handler.ErrorType != "_" && handler.ErrorType != err.ErrorType() {
			continue
		}
		return ev.Eval(handler.Body)
	}
	return nil, err
}

func (ev *Evaluator) evalModuleDecl(s *ast.ModuleDecl) (Value, *RuntimeError) {
	ev.env.PushScope()
	_, err := ev.Eval(s.Body)
	if err != nil {
		ev.env.PopScope()
		return nil, err
	}

	exports := make(map[string]Value, len(s.Exports))
	for _, name := range s.Exports {
		value, getErr := ev.env.Get(name)
		if getErr != nil {
			ev.env.PopScope()
			return nil, NewError(ErrUndefinedVariable, "Module %s offers undefined '%s'", s.Name, name)
		}
		exports[name] = value
	}
	ev.env.PopScope()

	module := &Module{Name: s.Name, Exports: exports}
	ev.env.Define(s.Name, module)
	return module, nil
}

func (ev *Evaluator) evalImport(s *ast.ImportStmt) (Value, *RuntimeError) {
	// gather a, b from Module: pull items out of an already-summoned module.
	if s.Path == "" {
		moduleValue, err := ev.env.Get(s.ModuleName)
		if err != nil {
			return nil, err
		}
		module, ok := moduleValue.(*Module)
		if !ok {
			return nil, NewError(ErrTypeError, "'%s' is not a module", s.ModuleName)
		}
		for _, item := range s.Items {
			value, exists := module.Exports[item]
			if !exists {
				return nil, NewError(ErrUndefinedVariable, "Module %s does not offer '%s'", module.Name, item)
			}
			ev.env.Define(item, value)
		}
		return NOTHING, nil
	}

	if ev.Resolver == nil {
		return nil, NewError(ErrUnsupported, "Module imports require a resolver")
	}
	info, loadErr := ev.Resolver.Load(s.Path, ev.CurrentFile)
	if loadErr != nil {
		return nil, NewError(ErrCustom, "%s", loadErr.Error())
	}

	module, err := ev.evalModuleInfo(info)
	if err != nil {
		return nil, err
	}

	name := s.Alias
	if name == "" {
		name = s.ModuleName
	}
	if name == "" {
		name = module.Name
	}
	ev.env.Define(name, module)
	return module, nil
}

// evalModuleInfo evaluates a loaded module once, in its own environment.
func (ev *Evaluator) evalModuleInfo(info *modules.ModuleInfo) (*Module, *RuntimeError) {
	if cached, ok := ev.moduleCache[info.Path]; ok {
		return cached, nil
	}

	sub := New()
	sub.Output = ev.Output
	sub.Resolver = ev.Resolver
	sub.CurrentFile = info.Path
	if _, err := sub.Eval(info.Ast.Statements); err != nil {
		return nil, err
	}

	// A grove declaration inside the file produced the module value; a bare
	// file exports its offered top-level bindings.
	for _, stmt := range info.Ast.Statements {
		decl, isDecl := stmt.(*ast.ModuleDecl)
		if !isDecl {
			continue
		}
		if value, err := sub.env.Get(decl.Name); err == nil {
			if module, ok := value.(*Module); ok {
				ev.moduleCache[info.Path] = module
				return module, nil
			}
		}
	}

	exports := make(map[string]Value, len(info.Exports))
	for _, name := range info.Exports {
		value, err := sub.env.Get(name)
		if err != nil {
			return nil, NewError(ErrUndefinedVariable, "Module %s offers undefined '%s'", info.Name, name)
		}
		exports[name] = value
	}
	module := &Module{Name: info.Name, Exports: exports}
	ev.moduleCache[info.Path] = module
	return module, nil
}

func describeCapability(expr ast.Expression) string {
	switch e := expr.(type) {
	case *ast.Identifier:
		return e.Name
	case *ast.FieldAccess:
		return describeCapability(e.Object) + "." + e.Field
	case *ast.ModuleAccess:
		return e.Module + "." + e.Member
	case *ast.TextLiteral:
		return e.Value
	}
	return "<expression>"
}
