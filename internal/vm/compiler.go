package vm

import (
	"fmt"

	"github.com/glimmerweave/gw/internal/ast"
	"github.com/glimmerweave/gw/internal/evaluator"
)

// Compile error kinds.
const (
	ErrUnsupportedFeature = "UnsupportedFeature"
	ErrUndefinedVariable  = "UndefinedVariable"
	ErrTooManyRegisters   = "TooManyRegisters"
)

// CompileError is a bytecode-compilation failure.
type CompileError struct {
	Kind    string
	Message string
}

func (e *CompileError) Error() string { return e.Kind + ": " + e.Message }

func compileErrorf(kind, format string, args ...interface{}) *CompileError {
	return &CompileError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// varLocation says where a name lives at runtime.
type varLocation struct {
	kind       locKind
	localIndex byte
	global     string
	entry      int // function entry offset
}

type locKind int

const (
	locLocal locKind = iota
	locGlobal
	locFunction
)

type scope struct {
	variables map[string]varLocation
	depth     int
}

// Compiler lowers a monomorphized AST to a single bytecode chunk.
//
// Register allocation is strict stack discipline: alloc bumps a counter,
// free decrements it. Frees must happen in reverse allocation order.
type Compiler struct {
	chunk        *Chunk
	nextRegister int
	maxRegister  int
	scopes       []*scope
	localCount   byte

	// TCO bookkeeping for the function currently being compiled.
	currentFunction string
	functionEntry   int

	functionTable map[string]int
}

func NewCompiler(name string) *Compiler {
	return &Compiler{
		chunk:         NewChunk(name),
		scopes:        []*scope{{variables: make(map[string]varLocation)}},
		functionEntry: -1,
		functionTable: make(map[string]int),
	}
}

// Compile lowers a program to bytecode. The final statement's value lands in
// r0, which HALT returns.
func Compile(prog *ast.Program) (*Chunk, *CompileError) {
	c := NewCompiler("main")
	return c.compile(prog.Statements)
}

func (c *Compiler) compile(stmts []ast.Statement) (*Chunk, *CompileError) {
	lastResult := -1
	for _, stmt := range stmts {
		reg, err := c.compileStmt(stmt)
		if err != nil {
			return nil, err
		}
		lastResult = reg
	}

	if lastResult > 0 {
		c.emit(Instruction{Op: OP_MOVE, Dest: 0, A: byte(lastResult)}, 0)
	}
	c.emit(Instruction{Op: OP_HALT}, 0)
	return c.chunk, nil
}

// compileStmt returns the register holding the statement's result, or -1
// when the statement produces none.
func (c *Compiler) compileStmt(stmt ast.Statement) (int, *CompileError) {
	switch s := stmt.(type) {
	case *ast.BindStmt:
		return c.compileBinding(s.Name, s.Value, s.SrcPos)
	case *ast.WeaveStmt:
		return c.compileBinding(s.Name, s.Value, s.SrcPos)

	case *ast.SetStmt:
		return c.compileSet(s)

	case *ast.IfStmt:
		condReg, err := c.compileExpr(s.Condition)
		if err != nil {
			return -1, err
		}
		c.emit(Instruction{Op: OP_JUMP_IF_FALSE, A: byte(condReg)}, line(s.SrcPos))
		jumpToElse := c.chunk.Offset() - 1
		c.freeRegister(condReg)

		for _, stmt := range s.ThenBranch {
			if _, err := c.compileStmt(stmt); err != nil {
				return -1, err
			}
		}

		c.emit(Instruction{Op: OP_JUMP}, line(s.SrcPos))
		jumpOverElse := c.chunk.Offset() - 1

		c.chunk.PatchJump(jumpToElse, c.chunk.Offset())
		for _, stmt := range s.ElseBranch {
			if _, err := c.compileStmt(stmt); err != nil {
				return -1, err
			}
		}
		c.chunk.PatchJump(jumpOverElse, c.chunk.Offset())
		return -1, nil

	case *ast.WhileStmt:
		loopStart := c.chunk.Offset()
		condReg, err := c.compileExpr(s.Condition)
		if err != nil {
			return -1, err
		}
		c.emit(Instruction{Op: OP_JUMP_IF_FALSE, A: byte(condReg)}, line(s.SrcPos))
		jumpToEnd := c.chunk.Offset() - 1
		c.freeRegister(condReg)

		for _, stmt := range s.Body {
			if _, err := c.compileStmt(stmt); err != nil {
				return -1, err
			}
		}

		c.emit(Instruction{Op: OP_JUMP, Offset: int16(loopStart - c.chunk.Offset() - 1)}, line(s.SrcPos))
		c.chunk.PatchJump(jumpToEnd, c.chunk.Offset())
		return -1, nil

	case *ast.MatchStmt:
		return c.compileMatch(s)

	case *ast.ChantDef:
		return c.compileChantDef(s)

	case *ast.FormDef:
		// The struct definition becomes a constant stored under the form's
		// name so CREATE_STRUCT can resolve it at runtime.
		defID := c.chunk.AddConstant(&evaluator.StructDef{Name: s.Name, Fields: s.Fields})
		destReg, err := c.allocRegister()
		if err != nil {
			return -1, err
		}
		c.emit(Instruction{Op: OP_LOAD_CONST, Dest: byte(destReg), Const: defID}, line(s.SrcPos))
		nameID := c.chunk.AddConstant(&evaluator.Text{Value: s.Name})
		c.emit(Instruction{Op: OP_DEFINE_GLOBAL, Const: nameID, A: byte(destReg)}, line(s.SrcPos))
		c.freeRegister(destReg)
		return -1, nil

	case *ast.YieldStmt:
		return c.compileYield(s)

	case *ast.AttemptStmt:
		return c.compileAttempt(s)

	case *ast.RequestStmt:
		// A capability token is an opaque constant at the bytecode level.
		capConst := &evaluator.Capability{
			Resource:    capabilityName(s.Capability),
			Permissions: []string{"access", s.Justification},
		}
		destReg, err := c.allocRegister()
		if err != nil {
			return -1, err
		}
		constID := c.chunk.AddConstant(capConst)
		c.emit(Instruction{Op: OP_LOAD_CONST, Dest: byte(destReg), Const: constID}, line(s.SrcPos))
		return destReg, nil

	case *ast.ModuleDecl:
		return -1, compileErrorf(ErrUnsupportedFeature,
			"Module declarations are not supported in the bytecode compiler (module: %s); use the interpreter", s.Name)
	case *ast.ImportStmt:
		return -1, compileErrorf(ErrUnsupportedFeature,
			"Module imports are not supported in the bytecode compiler (path: %s); use the interpreter", s.Path)
	case *ast.ExportStmt:
		return -1, compileErrorf(ErrUnsupportedFeature,
			"Module exports are not supported in the bytecode compiler; use the interpreter")

	case *ast.ForStmt:
		return -1, compileErrorf(ErrUnsupportedFeature,
			"for-each loops are not supported in the bytecode compiler; use whilst or the interpreter")
	case *ast.AspectDef, *ast.EmbodyStmt, *ast.VariantDef:
		return -1, compileErrorf(ErrUnsupportedFeature,
			"Aspect and variant definitions are not supported in the bytecode compiler; use the interpreter")
	case *ast.BreakStmt, *ast.ContinueStmt:
		return -1, compileErrorf(ErrUnsupportedFeature,
			"break/continue are not supported in the bytecode compiler")

	case *ast.ExprStatement:
		return c.compileExpr(s.Expr)
	}
	return -1, compileErrorf(ErrUnsupportedFeature, "Statement not supported in bytecode compiler")
}

func (c *Compiler) compileBinding(name string, value ast.Expression, span ast.SourceSpan) (int, *CompileError) {
	valueReg, err := c.compileExpr(value)
	if err != nil {
		return -1, err
	}

	if len(c.scopes) == 1 {
		nameID := c.chunk.AddConstant(&evaluator.Text{Value: name})
		c.emit(Instruction{Op: OP_DEFINE_GLOBAL, Const: nameID, A: byte(valueReg)}, line(span))
		c.currentScope().variables[name] = varLocation{kind: locGlobal, global: name}
	} else {
		localIndex := c.localCount
		c.localCount++
		c.chunk.LocalCount = c.localCount
		c.emit(Instruction{Op: OP_STORE_LOCAL, A: byte(valueReg), B: localIndex}, line(span))
		c.currentScope().variables[name] = varLocation{kind: locLocal, localIndex: localIndex}
	}
	c.freeRegister(valueReg)
	return -1, nil
}

func (c *Compiler) compileSet(s *ast.SetStmt) (int, *CompileError) {
	switch target := s.Target.(type) {
	case *ast.Identifier:
		valueReg, err := c.compileExpr(s.Value)
		if err != nil {
			return -1, err
		}
		loc, cerr := c.resolveVariable(target.Name)
		if cerr != nil {
			return -1, cerr
		}
		switch loc.kind {
		case locLocal:
			c.emit(Instruction{Op: OP_STORE_LOCAL, A: byte(valueReg), B: loc.localIndex}, line(s.SrcPos))
		case locGlobal:
			nameID := c.chunk.AddConstant(&evaluator.Text{Value: target.Name})
			c.emit(Instruction{Op: OP_STORE_GLOBAL, Const: nameID, A: byte(valueReg)}, line(s.SrcPos))
		case locFunction:
			return -1, compileErrorf(ErrUnsupportedFeature, "Cannot assign to chant '%s'", target.Name)
		}
		c.freeRegister(valueReg)
		return -1, nil

	case *ast.IndexAccess:
		objReg, err := c.compileExpr(target.Object)
		if err != nil {
			return -1, err
		}
		indexReg, err := c.compileExpr(target.Index)
		if err != nil {
			return -1, err
		}
		valueReg, err := c.compileExpr(s.Value)
		if err != nil {
			return -1, err
		}
		c.emit(Instruction{Op: OP_SET_INDEX, Dest: byte(objReg), A: byte(indexReg), B: byte(valueReg)}, line(s.SrcPos))
		c.freeRegister(valueReg)
		c.freeRegister(indexReg)
		c.freeRegister(objReg)
		return -1, nil

	case *ast.FieldAccess:
		objReg, err := c.compileExpr(target.Object)
		if err != nil {
			return -1, err
		}
		valueReg, err := c.compileExpr(s.Value)
		if err != nil {
			return -1, err
		}
		fieldID := c.chunk.AddConstant(&evaluator.Text{Value: target.Field})
		c.emit(Instruction{Op: OP_SET_FIELD, Dest: byte(objReg), Const: fieldID, B: byte(valueReg)}, line(s.SrcPos))
		c.freeRegister(valueReg)
		c.freeRegister(objReg)
		return -1, nil
	}
	return -1, compileErrorf(ErrUnsupportedFeature, "Invalid assignment target")
}

// compileMatch evaluates the scrutinee once into a stable register, then
// lowers each arm to a pattern test with a jump to the next arm on failure.
// Arm bindings become freshly-allocated locals.
func (c *Compiler) compileMatch(s *ast.MatchStmt) (int, *CompileError) {
	matchReg, err := c.compileExpr(s.Value)
	if err != nil {
		return -1, err
	}

	var jumpsToEnd []int
	for _, arm := range s.Arms {
		c.scopes = append(c.scopes, &scope{variables: make(map[string]varLocation), depth: len(c.scopes)})
		scopeLocalStart := c.localCount

		jumpToNext, err := c.compilePatternTest(arm.Pattern, matchReg, s.SrcPos)
		if err != nil {
			return -1, err
		}

		for _, stmt := range arm.Body {
			if _, err := c.compileStmt(stmt); err != nil {
				return -1, err
			}
		}

		jumpsToEnd = append(jumpsToEnd, c.chunk.Offset())
		c.emit(Instruction{Op: OP_JUMP}, line(s.SrcPos))

		if jumpToNext >= 0 {
			c.chunk.PatchJump(jumpToNext, c.chunk.Offset())
		}

		c.scopes = c.scopes[:len(c.scopes)-1]
		c.localCount = scopeLocalStart
	}

	end := c.chunk.Offset()
	for _, jump := range jumpsToEnd {
		c.chunk.PatchJump(jump, end)
	}
	c.freeRegister(matchReg)
	return -1, nil
}

// compilePatternTest emits the test for one pattern. It returns the index of
// the jump-to-next-arm instruction, or -1 for irrefutable patterns.
func (c *Compiler) compilePatternTest(pat ast.Pattern, matchReg int, span ast.SourceSpan) (int, *CompileError) {
	switch p := pat.(type) {
	case *ast.LiteralPattern:
		litReg, err := c.compileExpr(p.Value)
		if err != nil {
			return -1, err
		}
		cmpReg, err := c.allocRegister()
		if err != nil {
			return -1, err
		}
		c.emit(Instruction{Op: OP_EQ, Dest: byte(cmpReg), A: byte(matchReg), B: byte(litReg)}, line(span))
		c.emit(Instruction{Op: OP_JUMP_IF_FALSE, A: byte(cmpReg)}, line(span))
		jumpToNext := c.chunk.Offset() - 1
		c.freeRegister(cmpReg)
		c.freeRegister(litReg)
		return jumpToNext, nil

	case *ast.IdentPattern:
		localIndex := c.localCount
		c.localCount++
		c.chunk.LocalCount = c.localCount
		c.emit(Instruction{Op: OP_STORE_LOCAL, A: byte(matchReg), B: localIndex}, line(span))
		c.currentScope().variables[p.Name] = varLocation{kind: locLocal, localIndex: localIndex}
		return -1, nil

	case *ast.WildcardPattern:
		return -1, nil

	case *ast.EnumPattern:
		checkReg, err := c.allocRegister()
		if err != nil {
			return -1, err
		}
		var op Opcode
		switch p.Variant {
		case "Triumph":
			op = OP_IS_TRIUMPH
		case "Mishap":
			op = OP_IS_MISHAP
		case "Present":
			op = OP_IS_PRESENT
		case "Absent":
			op = OP_IS_ABSENT
		default:
			return -1, compileErrorf(ErrUnsupportedFeature, "Unknown enum variant: %s", p.Variant)
		}
		c.emit(Instruction{Op: op, Dest: byte(checkReg), A: byte(matchReg)}, line(span))
		c.emit(Instruction{Op: OP_JUMP_IF_FALSE, A: byte(checkReg)}, line(span))
		jumpToNext := c.chunk.Offset() - 1
		c.freeRegister(checkReg)

		if p.Inner != nil && p.Variant != "Absent" {
			innerReg, err := c.allocRegister()
			if err != nil {
				return -1, err
			}
			c.emit(Instruction{Op: OP_EXTRACT_INNER, Dest: byte(innerReg), A: byte(matchReg)}, line(span))

			switch inner := p.Inner.(type) {
			case *ast.IdentPattern:
				localIndex := c.localCount
				c.localCount++
				c.chunk.LocalCount = c.localCount
				c.emit(Instruction{Op: OP_STORE_LOCAL, A: byte(innerReg), B: localIndex}, line(span))
				c.currentScope().variables[inner.Name] = varLocation{kind: locLocal, localIndex: localIndex}
			case *ast.WildcardPattern:
			default:
				return -1, compileErrorf(ErrUnsupportedFeature,
					"Nested enum patterns are not supported in the bytecode compiler")
			}
			c.freeRegister(innerReg)
		}
		return jumpToNext, nil
	}
	return -1, compileErrorf(ErrUnsupportedFeature, "Pattern not supported in bytecode compiler")
}

// compileChantDef lowers a function body inline, recording its entry offset
// for direct calls and self-tail-call elimination.
func (c *Compiler) compileChantDef(s *ast.ChantDef) (int, *CompileError) {
	oldFunction, oldEntry := c.currentFunction, c.functionEntry

	entry := c.chunk.Offset()
	c.currentFunction = s.Name
	c.functionEntry = entry
	c.functionTable[s.Name] = entry

	c.scopes = append(c.scopes, &scope{variables: make(map[string]varLocation), depth: len(c.scopes)})

	for _, param := range s.Params {
		localIndex := c.localCount
		c.localCount++
		c.chunk.LocalCount = c.localCount
		c.currentScope().variables[param.Name] = varLocation{kind: locLocal, localIndex: localIndex}
	}
	c.chunk.ParamCount = byte(len(s.Params))

	lastReg := -1
	for _, stmt := range s.Body {
		reg, err := c.compileStmt(stmt)
		if err != nil {
			return -1, err
		}
		lastReg = reg
	}

	// A body without a trailing yield returns nothing.
	if lastReg < 0 {
		reg, err := c.allocRegister()
		if err != nil {
			return -1, err
		}
		c.emit(Instruction{Op: OP_LOAD_NOTHING, Dest: byte(reg)}, line(s.SrcPos))
		c.emit(Instruction{Op: OP_RETURN, A: byte(reg)}, line(s.SrcPos))
		c.freeRegister(reg)
	} else {
		c.emit(Instruction{Op: OP_RETURN, A: byte(lastReg)}, line(s.SrcPos))
	}

	c.scopes = c.scopes[:len(c.scopes)-1]
	c.currentFunction, c.functionEntry = oldFunction, oldEntry
	return -1, nil
}

// compileYield handles tail-call elimination: `yield f(args)` inside f
// stores the new arguments into the parameter slots and jumps back to the
// entry instead of calling.
func (c *Compiler) compileYield(s *ast.YieldStmt) (int, *CompileError) {
	if call, isCall := s.Value.(*ast.CallExpr); isCall {
		if ident, isIdent := call.Callee.(*ast.Identifier); isIdent &&
			ident.Name == c.currentFunction && c.functionEntry >= 0 {

			argRegs := make([]int, len(call.Args))
			for i, arg := range call.Args {
				reg, err := c.compileExpr(arg)
				if err != nil {
					return -1, err
				}
				argRegs[i] = reg
			}
			for i := len(argRegs) - 1; i >= 0; i-- {
				c.emit(Instruction{Op: OP_STORE_LOCAL, A: byte(argRegs[i]), B: byte(i)}, line(s.SrcPos))
				c.freeRegister(argRegs[i])
			}
			c.emit(Instruction{Op: OP_JUMP, Offset: int16(c.functionEntry - c.chunk.Offset() - 1)}, line(s.SrcPos))
			return -1, nil
		}
	}

	reg, err := c.compileExpr(s.Value)
	if err != nil {
		return -1, err
	}
	c.emit(Instruction{Op: OP_RETURN, A: byte(reg)}, line(s.SrcPos))
	c.freeRegister(reg)
	return -1, nil
}

// compileAttempt lowers try/handlers. The VM places the error kind in r254
// and the error value in r255 before jumping to the handler block; each
// handler compares r254 against its declared kind and falls through to the
// next on mismatch. An unmatched error is re-thrown.
func (c *Compiler) compileAttempt(s *ast.AttemptStmt) (int, *CompileError) {
	c.emit(Instruction{Op: OP_SETUP_TRY}, line(s.SrcPos))
	setupTryIndex := c.chunk.Offset() - 1

	for _, stmt := range s.Body {
		if _, err := c.compileStmt(stmt); err != nil {
			return -1, err
		}
	}

	c.emit(Instruction{Op: OP_POP_TRY}, line(s.SrcPos))
	c.emit(Instruction{Op: OP_JUMP}, line(s.SrcPos))
	jumpOverHandlers := c.chunk.Offset() - 1

	c.chunk.PatchJump(setupTryIndex, c.chunk.Offset())

	for i, handler := range s.Handlers {
		const errorTypeReg = 254

		matchesReg, err := c.allocRegister()
		if err != nil {
			return -1, err
		}
		if handler.ErrorType == "_" {
			c.emit(Instruction{Op: OP_LOAD_TRUTH, Dest: byte(matchesReg), Flag: true}, line(s.SrcPos))
		} else {
			expectedReg, err := c.allocRegister()
			if err != nil {
				return -1, err
			}
			typeID := c.chunk.AddConstant(&evaluator.Text{Value: handler.ErrorType})
			c.emit(Instruction{Op: OP_LOAD_CONST, Dest: byte(expectedReg), Const: typeID}, line(s.SrcPos))
			c.emit(Instruction{Op: OP_EQ, Dest: byte(matchesReg), A: errorTypeReg, B: byte(expectedReg)}, line(s.SrcPos))
			c.freeRegister(expectedReg)
		}

		c.emit(Instruction{Op: OP_JUMP_IF_FALSE, A: byte(matchesReg)}, line(s.SrcPos))
		jumpToNextHandler := c.chunk.Offset() - 1
		c.freeRegister(matchesReg)

		for _, stmt := range handler.Body {
			if _, err := c.compileStmt(stmt); err != nil {
				return -1, err
			}
		}

		c.emit(Instruction{Op: OP_POP_TRY}, line(s.SrcPos))
		c.emit(Instruction{Op: OP_JUMP}, line(s.SrcPos))
		jumpToEnd := c.chunk.Offset() - 1

		c.chunk.PatchJump(jumpToNextHandler, c.chunk.Offset())

		if i == len(s.Handlers)-1 {
			// No handler matched; propagate the error value in r255.
			c.emit(Instruction{Op: OP_THROW, A: 255}, line(s.SrcPos))
		}
		c.chunk.PatchJump(jumpToEnd, c.chunk.Offset())
	}

	c.chunk.PatchJump(jumpOverHandlers, c.chunk.Offset())
	return -1, nil
}

func (c *Compiler) compileExpr(expr ast.Expression) (int, *CompileError) {
	switch e := expr.(type) {
	case *ast.NumberLiteral:
		return c.loadConstant(&evaluator.Number{Value: e.Value}, line(e.SrcPos))
	case *ast.TextLiteral:
		return c.loadConstant(&evaluator.Text{Value: e.Value}, line(e.SrcPos))
	case *ast.TruthLiteral:
		reg, err := c.allocRegister()
		if err != nil {
			return -1, err
		}
		c.emit(Instruction{Op: OP_LOAD_TRUTH, Dest: byte(reg), Flag: e.Value}, line(e.SrcPos))
		return reg, nil
	case *ast.NothingLiteral:
		reg, err := c.allocRegister()
		if err != nil {
			return -1, err
		}
		c.emit(Instruction{Op: OP_LOAD_NOTHING, Dest: byte(reg)}, line(e.SrcPos))
		return reg, nil

	case *ast.Identifier:
		reg, err := c.allocRegister()
		if err != nil {
			return -1, err
		}
		loc, cerr := c.resolveVariable(e.Name)
		if cerr != nil {
			return -1, cerr
		}
		switch loc.kind {
		case locLocal:
			c.emit(Instruction{Op: OP_LOAD_LOCAL, Dest: byte(reg), B: loc.localIndex}, line(e.SrcPos))
		case locGlobal:
			nameID := c.chunk.AddConstant(&evaluator.Text{Value: e.Name})
			c.emit(Instruction{Op: OP_LOAD_GLOBAL, Dest: byte(reg), Const: nameID}, line(e.SrcPos))
		case locFunction:
			// Function values are not first-class in the bytecode path; the
			// entry offset stands in for direct calls.
			funcID := c.chunk.AddConstant(&evaluator.Number{Value: float64(loc.entry)})
			c.emit(Instruction{Op: OP_LOAD_CONST, Dest: byte(reg), Const: funcID}, line(e.SrcPos))
		}
		return reg, nil

	case *ast.BinaryExpr:
		return c.compileBinaryOp(e)
	case *ast.UnaryExpr:
		destReg, err := c.allocRegister()
		if err != nil {
			return -1, err
		}
		operandReg, err := c.compileExpr(e.Operand)
		if err != nil {
			return -1, err
		}
		op := OP_NOT
		if e.Op == ast.OpNegate {
			op = OP_NEG_NUM
		}
		c.emit(Instruction{Op: op, Dest: byte(destReg), A: byte(operandReg)}, line(e.SrcPos))
		c.freeRegister(operandReg)
		return destReg, nil

	case *ast.ListLiteral:
		// The destination is allocated first so every result stays below
		// the allocator watermark while operand registers are freed.
		destReg, err := c.allocRegister()
		if err != nil {
			return -1, err
		}
		startReg := c.nextRegister
		regs := make([]int, 0, len(e.Elements))
		for _, el := range e.Elements {
			reg, err := c.compileExpr(el)
			if err != nil {
				return -1, err
			}
			regs = append(regs, reg)
		}
		c.emit(Instruction{Op: OP_CREATE_LIST, Dest: byte(destReg), A: byte(startReg), Count: byte(len(regs))}, line(e.SrcPos))
		for i := len(regs) - 1; i >= 0; i-- {
			c.freeRegister(regs[i])
		}
		return destReg, nil

	case *ast.MapLiteral:
		destReg, err := c.allocRegister()
		if err != nil {
			return -1, err
		}
		c.emit(Instruction{Op: OP_CREATE_MAP, Dest: byte(destReg)}, line(e.SrcPos))
		for _, entry := range e.Entries {
			valueReg, err := c.compileExpr(entry.Value)
			if err != nil {
				return -1, err
			}
			fieldID := c.chunk.AddConstant(&evaluator.Text{Value: entry.Key})
			c.emit(Instruction{Op: OP_SET_FIELD, Dest: byte(destReg), Const: fieldID, B: byte(valueReg)}, line(e.SrcPos))
			c.freeRegister(valueReg)
		}
		return destReg, nil

	case *ast.IndexAccess:
		destReg, err := c.allocRegister()
		if err != nil {
			return -1, err
		}
		objReg, err := c.compileExpr(e.Object)
		if err != nil {
			return -1, err
		}
		indexReg, err := c.compileExpr(e.Index)
		if err != nil {
			return -1, err
		}
		c.emit(Instruction{Op: OP_GET_INDEX, Dest: byte(destReg), A: byte(objReg), B: byte(indexReg)}, line(e.SrcPos))
		c.freeRegister(indexReg)
		c.freeRegister(objReg)
		return destReg, nil

	case *ast.FieldAccess:
		destReg, err := c.allocRegister()
		if err != nil {
			return -1, err
		}
		objReg, err := c.compileExpr(e.Object)
		if err != nil {
			return -1, err
		}
		fieldID := c.chunk.AddConstant(&evaluator.Text{Value: e.Field})
		c.emit(Instruction{Op: OP_GET_FIELD, Dest: byte(destReg), A: byte(objReg), Const: fieldID}, line(e.SrcPos))
		c.freeRegister(objReg)
		return destReg, nil

	case *ast.CallExpr:
		destReg, err := c.allocRegister()
		if err != nil {
			return -1, err
		}
		funcReg, err := c.compileExpr(e.Callee)
		if err != nil {
			return -1, err
		}
		argStart := c.nextRegister
		argRegs := make([]int, 0, len(e.Args))
		for _, arg := range e.Args {
			reg, err := c.compileExpr(arg)
			if err != nil {
				return -1, err
			}
			argRegs = append(argRegs, reg)
		}
		c.emit(Instruction{Op: OP_CALL, Dest: byte(destReg), A: byte(funcReg), B: byte(argStart), Count: byte(len(argRegs))}, line(e.SrcPos))
		for i := len(argRegs) - 1; i >= 0; i-- {
			c.freeRegister(argRegs[i])
		}
		c.freeRegister(funcReg)
		return destReg, nil

	case *ast.TriumphExpr:
		return c.compileWrap(OP_CREATE_TRIUMPH, e.Value, e.SrcPos)
	case *ast.MishapExpr:
		return c.compileWrap(OP_CREATE_MISHAP, e.Value, e.SrcPos)
	case *ast.PresentExpr:
		return c.compileWrap(OP_CREATE_PRESENT, e.Value, e.SrcPos)
	case *ast.AbsentExpr:
		destReg, err := c.allocRegister()
		if err != nil {
			return -1, err
		}
		c.emit(Instruction{Op: OP_CREATE_ABSENT, Dest: byte(destReg)}, line(e.SrcPos))
		return destReg, nil

	case *ast.StructLiteral:
		// The struct name constant resolves to the definition in globals at
		// runtime.
		structDefID := c.chunk.AddConstant(&evaluator.Text{Value: e.StructName})
		destReg, err := c.allocRegister()
		if err != nil {
			return -1, err
		}
		fieldStart := c.nextRegister
		fieldRegs := make([]int, 0, len(e.Fields))
		for _, f := range e.Fields {
			reg, err := c.compileExpr(f.Value)
			if err != nil {
				return -1, err
			}
			fieldRegs = append(fieldRegs, reg)
		}
		c.emit(Instruction{
			Op:    OP_CREATE_STRUCT,
			Dest:  byte(destReg),
			Const: structDefID,
			A:     byte(fieldStart),
			Count: byte(len(fieldRegs)),
		}, line(e.SrcPos))
		for i := len(fieldRegs) - 1; i >= 0; i-- {
			c.freeRegister(fieldRegs[i])
		}
		return destReg, nil

	case *ast.ModuleAccess:
		// Qualified access compiles to a global lookup of "Module.member",
		// mirroring how the interpreter defines imported symbols.
		qualified := e.Module + "." + e.Member
		reg, err := c.allocRegister()
		if err != nil {
			return -1, err
		}
		nameID := c.chunk.AddConstant(&evaluator.Text{Value: qualified})
		c.emit(Instruction{Op: OP_LOAD_GLOBAL, Dest: byte(reg), Const: nameID}, line(e.SrcPos))
		return reg, nil
	}

	return -1, compileErrorf(ErrUnsupportedFeature, "Expression not supported in bytecode compiler")
}

func (c *Compiler) compileWrap(op Opcode, inner ast.Expression, span ast.SourceSpan) (int, *CompileError) {
	destReg, err := c.allocRegister()
	if err != nil {
		return -1, err
	}
	valueReg, err := c.compileExpr(inner)
	if err != nil {
		return -1, err
	}
	c.emit(Instruction{Op: op, Dest: byte(destReg), A: byte(valueReg)}, line(span))
	c.freeRegister(valueReg)
	return destReg, nil
}

func (c *Compiler) compileBinaryOp(e *ast.BinaryExpr) (int, *CompileError) {
	destReg, err := c.allocRegister()
	if err != nil {
		return -1, err
	}
	leftReg, err := c.compileExpr(e.Left)
	if err != nil {
		return -1, err
	}
	rightReg, err := c.compileExpr(e.Right)
	if err != nil {
		return -1, err
	}

	var op Opcode
	switch e.Op {
	case ast.OpAdd:
		op = OP_ADD_NUM
	case ast.OpSub:
		op = OP_SUB_NUM
	case ast.OpMul:
		op = OP_MUL_NUM
	case ast.OpDiv:
		op = OP_DIV_NUM
	case ast.OpMod:
		op = OP_MOD_NUM
	case ast.OpEqual:
		op = OP_EQ
	case ast.OpNotEqual:
		op = OP_NE
	case ast.OpGreater:
		op = OP_GT
	case ast.OpLess:
		op = OP_LT
	case ast.OpGreaterEq:
		op = OP_GE
	case ast.OpLessEq:
		op = OP_LE
	case ast.OpAnd:
		op = OP_AND
	case ast.OpOr:
		op = OP_OR
	}
	c.emit(Instruction{Op: op, Dest: byte(destReg), A: byte(leftReg), B: byte(rightReg)}, line(e.SrcPos))
	c.freeRegister(rightReg)
	c.freeRegister(leftReg)
	return destReg, nil
}

func (c *Compiler) loadConstant(v evaluator.Value, line int) (int, *CompileError) {
	reg, err := c.allocRegister()
	if err != nil {
		return -1, err
	}
	constID := c.chunk.AddConstant(v)
	c.emit(Instruction{Op: OP_LOAD_CONST, Dest: byte(reg), Const: constID}, line)
	return reg, nil
}

// allocRegister returns the next free register. Registers r254/r255 are
// reserved for the exception machinery.
func (c *Compiler) allocRegister() (int, *CompileError) {
	if c.nextRegister >= 254 {
		return -1, compileErrorf(ErrTooManyRegisters, "Expression too complex: out of registers")
	}
	reg := c.nextRegister
	c.nextRegister++
	if reg > c.maxRegister {
		c.maxRegister = reg
	}
	return reg, nil
}

// freeRegister pops the most recent allocation. Callers free in reverse
// allocation order.
func (c *Compiler) freeRegister(reg int) {
	if c.nextRegister > 0 {
		c.nextRegister--
	}
}

func (c *Compiler) emit(ins Instruction, line int) {
	c.chunk.Emit(ins, line)
}

func (c *Compiler) currentScope() *scope {
	return c.scopes[len(c.scopes)-1]
}

func (c *Compiler) resolveVariable(name string) (varLocation, *CompileError) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if loc, ok := c.scopes[i].variables[name]; ok {
			return loc, nil
		}
	}
	if entry, ok := c.functionTable[name]; ok {
		return varLocation{kind: locFunction, entry: entry}, nil
	}
	return varLocation{}, compileErrorf(ErrUndefinedVariable, "Variable '%s' is not defined", name)
}

func capabilityName(expr ast.Expression) string {
	switch e := expr.(type) {
	case *ast.Identifier:
		return e.Name
	case *ast.FieldAccess:
		return capabilityName(e.Object) + "." + e.Field
	case *ast.ModuleAccess:
		return e.Module + "." + e.Member
	}
	return "<expression>"
}

func line(span ast.SourceSpan) int {
	return span.StartLine
}
