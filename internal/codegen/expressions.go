package codegen

import (
	"fmt"

	"github.com/glimmerweave/gw/internal/ast"
)

// genExpr lowers an expression, leaving its result in rax. Binary operators
// follow the accumulator discipline: left into rax, push, right into rax,
// move to rbx, pop left back into rax.
func (cg *CodeGen) genExpr(expr ast.Expression) *Error {
	switch e := expr.(type) {
	case *ast.NumberLiteral:
		cg.emit(mov(fmt.Sprintf("$%d", int64(e.Value)), RAX))
		return nil

	case *ast.TruthLiteral:
		if e.Value {
			cg.emit(mov("$1", RAX))
		} else {
			cg.emit(mov("$0", RAX))
		}
		return nil

	case *ast.NothingLiteral:
		cg.emit(mov("$0", RAX))
		return nil

	case *ast.Identifier:
		offset, ok := cg.getVar(e.Name)
		if !ok {
			return errorf("Undefined variable: %s", e.Name)
		}
		cg.emit(mov(fmt.Sprintf("%d(%s)", offset, RBP), RAX))
		return nil

	case *ast.BinaryExpr:
		return cg.genBinaryOp(e)

	case *ast.UnaryExpr:
		if err := cg.genExpr(e.Operand); err != nil {
			return err
		}
		switch e.Op {
		case ast.OpNegate:
			cg.emit(neg(RAX))
		case ast.OpNot:
			cg.emit(cmp("$0", RAX))
			cg.emit(mov("$0", RAX))
			cg.emit(sete("%al"))
		}
		return nil

	case *ast.CallExpr:
		for i, arg := range e.Args {
			if i < len(argRegisters) {
				if err := cg.genExpr(arg); err != nil {
					return err
				}
				cg.emit(mov(RAX, argRegisters[i]))
			}
		}
		ident, isIdent := e.Callee.(*ast.Identifier)
		if !isIdent {
			return errorf("Indirect calls are not supported in native codegen; use the interpreter or bytecode VM instead")
		}
		cg.emit(call(".L_func_" + ident.Name))
		return nil

	case *ast.TriumphExpr:
		return cg.genTaggedUnion("Triumph", 1, e.Value)
	case *ast.MishapExpr:
		return cg.genTaggedUnion("Mishap", 0, e.Value)
	case *ast.PresentExpr:
		return cg.genTaggedUnion("Present", 1, e.Value)
	case *ast.AbsentExpr:
		return cg.genTaggedUnion("Absent", 0, nil)

	case *ast.StructLiteral:
		return cg.genStructLiteral(e)

	case *ast.FieldAccess:
		return cg.genFieldAccess(e)

	case *ast.TextLiteral:
		return cg.genTextLiteral(e)

	case *ast.ModuleAccess:
		return errorf("Module-qualified access is not supported in native codegen (requires runtime symbol resolution). Attempted %s.%s. Use the interpreter or bytecode VM instead.", e.Module, e.Member)
	}
	return errorf("Expression not supported in native codegen; use the interpreter or bytecode VM instead")
}

func (cg *CodeGen) genBinaryOp(e *ast.BinaryExpr) *Error {
	if err := cg.genExpr(e.Left); err != nil {
		return err
	}
	cg.emit(push(RAX))
	if err := cg.genExpr(e.Right); err != nil {
		return err
	}
	cg.emit(mov(RAX, RBX))
	cg.emit(pop(RAX))

	switch e.Op {
	case ast.OpAdd:
		cg.emit(add(RBX, RAX))
	case ast.OpSub:
		cg.emit(sub(RBX, RAX))
	case ast.OpMul:
		cg.emit(imul(RBX, RAX))
	case ast.OpDiv:
		cg.emit(xor(RDX, RDX))
		cg.emit(idiv(RBX))
	case ast.OpMod:
		cg.emit(xor(RDX, RDX))
		cg.emit(idiv(RBX))
		cg.emit(mov(RDX, RAX))

	case ast.OpEqual:
		cg.emitCompare(sete("%al"))
	case ast.OpNotEqual:
		cg.emitCompare(setne("%al"))
	case ast.OpGreater:
		cg.emitCompare(setg("%al"))
	case ast.OpLess:
		cg.emitCompare(setl("%al"))
	case ast.OpGreaterEq:
		cg.emitCompare(setge("%al"))
	case ast.OpLessEq:
		cg.emitCompare(setle("%al"))

	case ast.OpAnd:
		falseLabel := fmt.Sprintf(".L_and_false_%d", cg.labelCounter)
		endLabel := fmt.Sprintf(".L_and_end_%d", cg.labelCounter)
		cg.labelCounter++
		cg.emit(cmp("$0", RAX))
		cg.emit(je(falseLabel))
		cg.emit(cmp("$0", RBX))
		cg.emit(je(falseLabel))
		cg.emit(mov("$1", RAX))
		cg.emit(jmp(endLabel))
		cg.emit(label(falseLabel))
		cg.emit(mov("$0", RAX))
		cg.emit(label(endLabel))

	case ast.OpOr:
		trueLabel := fmt.Sprintf(".L_or_true_%d", cg.labelCounter)
		endLabel := fmt.Sprintf(".L_or_end_%d", cg.labelCounter)
		cg.labelCounter++
		cg.emit(cmp("$0", RAX))
		cg.emit(jne(trueLabel))
		cg.emit(cmp("$0", RBX))
		cg.emit(jne(trueLabel))
		cg.emit(mov("$0", RAX))
		cg.emit(jmp(endLabel))
		cg.emit(label(trueLabel))
		cg.emit(mov("$1", RAX))
		cg.emit(label(endLabel))
	}
	return nil
}

// emitCompare materializes a comparison result as 0/1 in rax.
func (cg *CodeGen) emitCompare(setInstruction Instruction) {
	cg.emit(cmp(RBX, RAX))
	cg.emit(mov("$0", RAX))
	cg.emit(setInstruction)
}

// genTaggedUnion builds the 16-byte stack block [value@+0, tag@+8] and
// leaves its address in rax.
func (cg *CodeGen) genTaggedUnion(variant string, tag int, inner ast.Expression) *Error {
	cg.emit(comment("Create " + variant + " variant"))

	if inner != nil {
		if err := cg.genExpr(inner); err != nil {
			return err
		}
	} else {
		cg.emit(mov("$0", RAX))
	}

	cg.stackOffset -= 16
	cg.emit(mov(fmt.Sprintf("$%d", tag), fmt.Sprintf("%d(%s)", cg.stackOffset+8, RBP)))
	cg.emit(mov(RAX, fmt.Sprintf("%d(%s)", cg.stackOffset, RBP)))

	cg.emit(mov(RBP, RAX))
	cg.emit(add(fmt.Sprintf("$%d", cg.stackOffset), RAX))
	return nil
}

// genStructLiteral heap-allocates the struct via gl_malloc and stores each
// field at its 8-byte stride in declaration order.
func (cg *CodeGen) genStructLiteral(e *ast.StructLiteral) *Error {
	cg.emit(comment("Struct literal: " + e.StructName))

	var fields []ast.StructField
	found := false
	for _, def := range cg.structDefs {
		if def.name == e.StructName {
			fields = def.fields
			found = true
			break
		}
	}
	if !found {
		return errorf("Undefined struct: %s", e.StructName)
	}

	cg.emitAll(genStructAlloc(len(fields)))
	cg.emit(mov(RAX, RBX))

	for _, fieldValue := range e.Fields {
		fieldIndex := -1
		for i, declared := range fields {
			if declared.Name == fieldValue.Name {
				fieldIndex = i
				break
			}
		}
		if fieldIndex < 0 {
			return errorf("Field %s not found in struct %s", fieldValue.Name, e.StructName)
		}
		if err := cg.genExpr(fieldValue.Value); err != nil {
			return err
		}
		cg.emitAll(genStructFieldStore(fieldIndex))
	}

	cg.emit(mov(RBX, RAX))
	return nil
}

// genFieldAccess loads a struct field. Without full type tracking the field
// index comes from the first struct definition declaring that field name.
func (cg *CodeGen) genFieldAccess(e *ast.FieldAccess) *Error {
	cg.emit(comment("Field access: ." + e.Field))

	if err := cg.genExpr(e.Object); err != nil {
		return err
	}

	fieldIndex := -1
	for _, def := range cg.structDefs {
		for i, declared := range def.fields {
			if declared.Name == e.Field {
				fieldIndex = i
				cg.emit(comment(fmt.Sprintf("Assuming struct type: %s (field index: %d)", def.name, i)))
				break
			}
		}
		if fieldIndex >= 0 {
			break
		}
	}
	if fieldIndex < 0 {
		return errorf("Field '%s' not found in any struct definition", e.Field)
	}

	cg.emitAll(genStructFieldLoad(fieldIndex))
	return nil
}

// genTextLiteral places the bytes in .data and emits the heap-copy sequence:
// length into r10, data address into r11, then the gl_malloc-backed copy.
func (cg *CodeGen) genTextLiteral(e *ast.TextLiteral) *Error {
	cg.emit(comment(fmt.Sprintf("String literal: %q", e.Value)))

	stringLabel := fmt.Sprintf(".L_string_data_%d", cg.labelCounter)
	cg.labelCounter++
	cg.stringLiterals = append(cg.stringLiterals, stringLiteral{label: stringLabel, data: e.Value})

	cg.emit(mov(fmt.Sprintf("$%d", len(e.Value)), R10))
	cg.emit(lea(stringLabel+"(%rip)", R11))

	loopLabel := fmt.Sprintf(".L_string_copy_loop_%d", cg.labelCounter)
	doneLabel := fmt.Sprintf(".L_string_copy_done_%d", cg.labelCounter)
	cg.labelCounter++
	cg.emitAll(genStringAlloc(loopLabel, doneLabel))
	return nil
}
