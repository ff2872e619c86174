package vm

import (
	"fmt"
	"strings"
)

// Disassemble renders a chunk as a readable listing: header, instructions
// with operands, and the constant pool. The output is stable, so snapshot
// tests can pin it.
func Disassemble(chunk *Chunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", chunk.Name)

	for i, ins := range chunk.Instructions {
		fmt.Fprintf(&b, "%04d  %-14s", i, OpcodeNames[ins.Op])
		switch ins.Op {
		case OP_LOAD_CONST:
			fmt.Fprintf(&b, " r%d, const[%d]", ins.Dest, ins.Const)
		case OP_MOVE:
			fmt.Fprintf(&b, " r%d, r%d", ins.Dest, ins.A)
		case OP_LOAD_NOTHING, OP_CREATE_MAP, OP_CREATE_ABSENT:
			fmt.Fprintf(&b, " r%d", ins.Dest)
		case OP_LOAD_TRUTH:
			fmt.Fprintf(&b, " r%d, %t", ins.Dest, ins.Flag)
		case OP_ADD_NUM, OP_SUB_NUM, OP_MUL_NUM, OP_DIV_NUM, OP_MOD_NUM,
			OP_CONCAT_TEXT, OP_EQ, OP_NE, OP_LT, OP_LE, OP_GT, OP_GE,
			OP_AND, OP_OR:
			fmt.Fprintf(&b, " r%d, r%d, r%d", ins.Dest, ins.A, ins.B)
		case OP_NEG_NUM, OP_NOT, OP_CREATE_TRIUMPH, OP_CREATE_MISHAP,
			OP_CREATE_PRESENT, OP_IS_TRIUMPH, OP_IS_MISHAP, OP_IS_PRESENT,
			OP_IS_ABSENT, OP_EXTRACT_INNER:
			fmt.Fprintf(&b, " r%d, r%d", ins.Dest, ins.A)
		case OP_JUMP:
			fmt.Fprintf(&b, " %+d -> %04d", ins.Offset, i+1+int(ins.Offset))
		case OP_JUMP_IF_TRUE, OP_JUMP_IF_FALSE:
			fmt.Fprintf(&b, " r%d, %+d -> %04d", ins.A, ins.Offset, i+1+int(ins.Offset))
		case OP_DEFINE_GLOBAL, OP_STORE_GLOBAL:
			fmt.Fprintf(&b, " const[%d], r%d", ins.Const, ins.A)
		case OP_LOAD_GLOBAL:
			fmt.Fprintf(&b, " r%d, const[%d]", ins.Dest, ins.Const)
		case OP_LOAD_LOCAL:
			fmt.Fprintf(&b, " r%d, local[%d]", ins.Dest, ins.B)
		case OP_STORE_LOCAL:
			fmt.Fprintf(&b, " local[%d], r%d", ins.B, ins.A)
		case OP_CREATE_LIST:
			fmt.Fprintf(&b, " r%d, r%d..r%d", ins.Dest, ins.A, int(ins.A)+int(ins.Count)-1)
		case OP_GET_INDEX:
			fmt.Fprintf(&b, " r%d, r%d[r%d]", ins.Dest, ins.A, ins.B)
		case OP_SET_INDEX:
			fmt.Fprintf(&b, " r%d[r%d], r%d", ins.Dest, ins.A, ins.B)
		case OP_GET_FIELD:
			fmt.Fprintf(&b, " r%d, r%d.const[%d]", ins.Dest, ins.A, ins.Const)
		case OP_SET_FIELD:
			fmt.Fprintf(&b, " r%d.const[%d], r%d", ins.Dest, ins.Const, ins.B)
		case OP_CALL:
			fmt.Fprintf(&b, " r%d, r%d(r%d..%d)", ins.Dest, ins.A, ins.B, ins.Count)
		case OP_RETURN, OP_THROW, OP_PRINT:
			fmt.Fprintf(&b, " r%d", ins.A)
		case OP_CREATE_STRUCT:
			fmt.Fprintf(&b, " r%d, const[%d], r%d x%d", ins.Dest, ins.Const, ins.A, ins.Count)
		case OP_SETUP_TRY:
			fmt.Fprintf(&b, " handler=%04d", ins.Const)
		}
		b.WriteByte('\n')
	}

	if len(chunk.Constants) > 0 {
		b.WriteString("-- constants --\n")
		for i, constant := range chunk.Constants {
			fmt.Fprintf(&b, "[%d] %s %s\n", i, constant.TypeName(), constant.Inspect())
		}
	}
	return b.String()
}
