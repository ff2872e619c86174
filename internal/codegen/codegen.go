package codegen

import (
	"fmt"
	"strings"

	"github.com/glimmerweave/gw/internal/ast"
)

// Error is a codegen failure; constructs outside the native subset name the
// limitation and point at the other backends.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

func errorf(format string, args ...interface{}) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

type varSlot struct {
	name   string
	offset int // offset from rbp
}

type structDef struct {
	name   string
	fields []ast.StructField
}

type stringLiteral struct {
	label string
	data  string
}

// CodeGen holds the state of one compilation: the instruction stream, the
// label counter for unique control-flow labels, the stack layout of the
// current function, and the collected string literals and struct layouts.
type CodeGen struct {
	instructions []Instruction
	labelCounter int
	stackOffset  int
	variables    []varSlot

	currentFunction    string
	functionEntryLabel string

	structDefs     []structDef
	stringLiterals []stringLiteral
}

func New() *CodeGen {
	return &CodeGen{}
}

// CompileToAsm is the package entry: AST in, assembly text out.
func CompileToAsm(prog *ast.Program) (string, *Error) {
	cg := New()
	if err := cg.Compile(prog.Statements); err != nil {
		return "", err
	}
	return cg.ToAssembly(), nil
}

// Compile wraps the program in a main function with the standard prologue
// and epilogue.
func (cg *CodeGen) Compile(stmts []ast.Statement) *Error {
	cg.emit(label("main"))
	cg.emit(push(RBP))
	cg.emit(mov(RSP, RBP))

	for _, stmt := range stmts {
		if err := cg.genStatement(stmt); err != nil {
			return err
		}
	}

	cg.emit(mov(RBP, RSP))
	cg.emit(pop(RBP))
	cg.emit(ret())
	return nil
}

func (cg *CodeGen) genLabel(prefix string) string {
	l := fmt.Sprintf(".L%s_%d", prefix, cg.labelCounter)
	cg.labelCounter++
	return l
}

func (cg *CodeGen) emit(ins Instruction) {
	cg.instructions = append(cg.instructions, ins)
}

func (cg *CodeGen) emitAll(code []Instruction) {
	cg.instructions = append(cg.instructions, code...)
}

// allocVar reserves an 8-byte stack slot for a local.
func (cg *CodeGen) allocVar(name string) int {
	cg.stackOffset -= 8
	cg.variables = append(cg.variables, varSlot{name: name, offset: cg.stackOffset})
	return cg.stackOffset
}

// getVar finds the most recent slot for name.
func (cg *CodeGen) getVar(name string) (int, bool) {
	for i := len(cg.variables) - 1; i >= 0; i-- {
		if cg.variables[i].name == name {
			return cg.variables[i].offset, true
		}
	}
	return 0, false
}

func (cg *CodeGen) genStatement(stmt ast.Statement) *Error {
	switch s := stmt.(type) {
	case *ast.BindStmt:
		if err := cg.genExpr(s.Value); err != nil {
			return err
		}
		offset := cg.allocVar(s.Name)
		cg.emit(mov(RAX, fmt.Sprintf("%d(%s)", offset, RBP)))
		return nil

	case *ast.WeaveStmt:
		if err := cg.genExpr(s.Value); err != nil {
			return err
		}
		offset := cg.allocVar(s.Name)
		cg.emit(mov(RAX, fmt.Sprintf("%d(%s)", offset, RBP)))
		return nil

	case *ast.SetStmt:
		ident, isIdent := s.Target.(*ast.Identifier)
		if !isIdent {
			return errorf("Index and field assignment are not supported in native codegen (requires heap runtime); use the interpreter or bytecode VM instead")
		}
		if err := cg.genExpr(s.Value); err != nil {
			return err
		}
		offset, ok := cg.getVar(ident.Name)
		if !ok {
			return errorf("Undefined variable: %s", ident.Name)
		}
		cg.emit(mov(RAX, fmt.Sprintf("%d(%s)", offset, RBP)))
		return nil

	case *ast.IfStmt:
		elseLabel := fmt.Sprintf(".L_else_%d", cg.labelCounter)
		endLabel := fmt.Sprintf(".L_if_end_%d", cg.labelCounter)
		cg.labelCounter++

		if err := cg.genExpr(s.Condition); err != nil {
			return err
		}
		cg.emit(cmp("$0", RAX))
		if s.ElseBranch != nil {
			cg.emit(je(elseLabel))
		} else {
			cg.emit(je(endLabel))
		}

		for _, stmt := range s.ThenBranch {
			if err := cg.genStatement(stmt); err != nil {
				return err
			}
		}
		if s.ElseBranch != nil {
			cg.emit(jmp(endLabel))
			cg.emit(label(elseLabel))
			for _, stmt := range s.ElseBranch {
				if err := cg.genStatement(stmt); err != nil {
					return err
				}
			}
		}
		cg.emit(label(endLabel))
		return nil

	case *ast.WhileStmt:
		startLabel := fmt.Sprintf(".L_while_start_%d", cg.labelCounter)
		endLabel := fmt.Sprintf(".L_while_end_%d", cg.labelCounter)
		cg.labelCounter++

		cg.emit(label(startLabel))
		if err := cg.genExpr(s.Condition); err != nil {
			return err
		}
		cg.emit(cmp("$0", RAX))
		cg.emit(je(endLabel))
		for _, stmt := range s.Body {
			if err := cg.genStatement(stmt); err != nil {
				return err
			}
		}
		cg.emit(jmp(startLabel))
		cg.emit(label(endLabel))
		return nil

	case *ast.MatchStmt:
		return cg.genMatch(s)

	case *ast.ChantDef:
		return cg.genChantDef(s)

	case *ast.FormDef:
		cg.emit(comment("Struct definition: " + s.Name))
		cg.structDefs = append(cg.structDefs, structDef{name: s.Name, fields: s.Fields})
		return nil

	case *ast.YieldStmt:
		return cg.genYield(s)

	case *ast.AttemptStmt:
		return cg.genAttempt(s)

	case *ast.ModuleDecl:
		return errorf("Module declarations are not supported in native codegen (multi-file compilation required). Module: %s. Use the interpreter or bytecode VM instead.", s.Name)
	case *ast.ImportStmt:
		return errorf("Module imports are not supported in native codegen (runtime module resolution required). Attempted to import %q. Use the interpreter or bytecode VM instead.", s.Path)
	case *ast.ExportStmt:
		return errorf("Module exports are not supported in native codegen (symbol export infrastructure required). Use the interpreter or bytecode VM instead.")
	case *ast.RequestStmt:
		return errorf("Capability requests are not supported in native codegen (requires runtime object creation). Use the interpreter or bytecode VM instead.")
	case *ast.AspectDef, *ast.EmbodyStmt, *ast.VariantDef:
		return errorf("Aspect and variant definitions are not supported in native codegen. Use the interpreter or bytecode VM instead.")
	case *ast.ForStmt:
		return errorf("for-each loops are not supported in native codegen; use whilst or the interpreter.")
	case *ast.BreakStmt, *ast.ContinueStmt:
		return errorf("break/continue are not supported in native codegen.")

	case *ast.ExprStatement:
		return cg.genExpr(s.Expr)
	}
	return errorf("Statement not supported in native codegen")
}

// genMatch evaluates the scrutinee once into a stack slot, then tests each
// arm in turn. Variant patterns compare the tag at offset +8 of the value
// block (tag 1 for Triumph/Present, 0 for Mishap/Absent).
func (cg *CodeGen) genMatch(s *ast.MatchStmt) *Error {
	matchID := cg.labelCounter
	cg.labelCounter++
	endLabel := fmt.Sprintf(".L_match_end_%d", matchID)

	if err := cg.genExpr(s.Value); err != nil {
		return err
	}
	matchOffset := cg.allocVar(fmt.Sprintf("__match_tmp_%d", matchID))
	cg.emit(mov(RAX, fmt.Sprintf("%d(%s)", matchOffset, RBP)))

	for armIdx, arm := range s.Arms {
		nextArmLabel := fmt.Sprintf(".L_match_arm_%d_%d", matchID, armIdx+1)
		lastArm := armIdx == len(s.Arms)-1

		switch pat := arm.Pattern.(type) {
		case *ast.LiteralPattern:
			if err := cg.genExpr(pat.Value); err != nil {
				return err
			}
			cg.emit(mov(RAX, RBX))
			cg.emit(mov(fmt.Sprintf("%d(%s)", matchOffset, RBP), RAX))
			cg.emit(cmp(RBX, RAX))
			if !lastArm {
				cg.emit(jne(nextArmLabel))
			}

		case *ast.IdentPattern:
			cg.emit(mov(fmt.Sprintf("%d(%s)", matchOffset, RBP), RAX))
			varOffset := cg.allocVar(pat.Name)
			cg.emit(mov(RAX, fmt.Sprintf("%d(%s)", varOffset, RBP)))

		case *ast.WildcardPattern:
			// Always matches.

		case *ast.EnumPattern:
			cg.emit(comment("Match " + pat.Variant + " variant"))
			cg.emit(mov(fmt.Sprintf("%d(%s)", matchOffset, RBP), RAX))
			cg.emit(mov("8("+RAX+")", RBX))

			var expectedTag int
			switch pat.Variant {
			case "Triumph", "Present":
				expectedTag = 1
			case "Mishap", "Absent":
				expectedTag = 0
			default:
				return errorf("Unknown enum variant: %s", pat.Variant)
			}
			cg.emit(cmp(fmt.Sprintf("$%d", expectedTag), RBX))
			if !lastArm {
				cg.emit(jne(nextArmLabel))
			}

			if pat.Inner != nil {
				switch inner := pat.Inner.(type) {
				case *ast.IdentPattern:
					cg.emit(mov(fmt.Sprintf("%d(%s)", matchOffset, RBP), RAX))
					cg.emit(mov("0("+RAX+")", RBX))
					varOffset := cg.allocVar(inner.Name)
					cg.emit(mov(RBX, fmt.Sprintf("%d(%s)", varOffset, RBP)))
				case *ast.WildcardPattern:
				default:
					return errorf("Nested enum patterns are not supported in native codegen")
				}
			}

		default:
			return errorf("Pattern not supported in native codegen")
		}

		for _, stmt := range arm.Body {
			if err := cg.genStatement(stmt); err != nil {
				return err
			}
		}
		cg.emit(jmp(endLabel))
		if !lastArm {
			cg.emit(label(nextArmLabel))
		}
	}

	cg.emit(label(endLabel))
	return nil
}

// genChantDef emits the function under its .L_func_<name> label: standard
// prologue, parameters copied from the argument registers into stack slots,
// body, and a default nothing-return epilogue.
func (cg *CodeGen) genChantDef(s *ast.ChantDef) *Error {
	oldFunction := cg.currentFunction
	oldLabel := cg.functionEntryLabel
	oldVars := cg.variables
	oldStack := cg.stackOffset

	funcLabel := ".L_func_" + s.Name
	cg.currentFunction = s.Name
	cg.functionEntryLabel = funcLabel
	cg.variables = nil
	cg.stackOffset = 0

	cg.emit(label(funcLabel))
	cg.emit(push(RBP))
	cg.emit(mov(RSP, RBP))

	for i, param := range s.Params {
		if i < len(argRegisters) {
			offset := cg.allocVar(param.Name)
			cg.emit(mov(argRegisters[i], fmt.Sprintf("%d(%s)", offset, RBP)))
		}
	}

	for _, stmt := range s.Body {
		if err := cg.genStatement(stmt); err != nil {
			return err
		}
	}

	// Fall-through return: nothing in rax, then the spelled-out leave.
	cg.emit(mov("$0", RAX))
	cg.emit(mov(RBP, RSP))
	cg.emit(pop(RBP))
	cg.emit(ret())

	cg.currentFunction = oldFunction
	cg.functionEntryLabel = oldLabel
	cg.variables = oldVars
	cg.stackOffset = oldStack
	return nil
}

// genYield handles the sibling-jump tail call: `yield f(args)` inside f
// reloads the argument registers, unwinds the frame, and jumps to the
// function's entry label instead of calling.
func (cg *CodeGen) genYield(s *ast.YieldStmt) *Error {
	if callExpr, isCall := s.Value.(*ast.CallExpr); isCall {
		if ident, isIdent := callExpr.Callee.(*ast.Identifier); isIdent &&
			ident.Name == cg.currentFunction && cg.functionEntryLabel != "" {

			for i, arg := range callExpr.Args {
				if i < len(argRegisters) {
					if err := cg.genExpr(arg); err != nil {
						return err
					}
					cg.emit(mov(RAX, argRegisters[i]))
				}
			}
			cg.emit(mov(RBP, RSP))
			cg.emit(pop(RBP))
			cg.emit(jmp(cg.functionEntryLabel))
			return nil
		}
	}

	if err := cg.genExpr(s.Value); err != nil {
		return err
	}
	cg.emit(mov(RBP, RSP))
	cg.emit(pop(RBP))
	cg.emit(ret())
	return nil
}

func (cg *CodeGen) genAttempt(s *ast.AttemptStmt) *Error {
	attemptID := cg.labelCounter
	cg.labelCounter++
	handlerLabel := fmt.Sprintf(".L_attempt_handler_%d", attemptID)
	endLabel := fmt.Sprintf(".L_attempt_end_%d", attemptID)

	cg.emit(comment(fmt.Sprintf("Attempt block %d", attemptID)))
	for _, stmt := range s.Body {
		if err := cg.genStatement(stmt); err != nil {
			return err
		}
	}
	cg.emit(jmp(endLabel))

	cg.emit(label(handlerLabel))
	cg.emit(comment("Exception handlers"))

	for i, handler := range s.Handlers {
		nextHandlerLabel := fmt.Sprintf(".L_attempt_handler_%d_%d", attemptID, i+1)

		if handler.ErrorType == "_" {
			cg.emit(comment("Wildcard handler"))
		} else {
			cg.emit(comment("Handler for " + handler.ErrorType))
		}
		for _, stmt := range handler.Body {
			if err := cg.genStatement(stmt); err != nil {
				return err
			}
		}
		cg.emit(jmp(endLabel))

		if handler.ErrorType != "_" && i < len(s.Handlers)-1 {
			cg.emit(label(nextHandlerLabel))
		}
	}

	cg.emit(label(endLabel))
	cg.emit(comment("End of attempt block"))
	return nil
}

// ToAssembly renders the collected output: the .data section with string
// literals first, then .text with the global and external declarations.
func (cg *CodeGen) ToAssembly() string {
	var b strings.Builder

	if len(cg.stringLiterals) > 0 {
		b.WriteString(".data\n")
		for _, lit := range cg.stringLiterals {
			b.WriteString(lit.label + ":\n")
			b.WriteString("    .ascii \"" + escapeAscii(lit.data) + "\"\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(".text\n")
	b.WriteString(".globl main\n\n")
	b.WriteString(externalDeclarations())

	for _, ins := range cg.instructions {
		b.WriteString(ins.ToAsm())
		b.WriteByte('\n')
	}
	return b.String()
}

func escapeAscii(s string) string {
	var b strings.Builder
	for _, c := range []byte(s) {
		switch c {
		case '"':
			b.WriteString("\\\"")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\t':
			b.WriteString("\\t")
		case '\r':
			b.WriteString("\\r")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
