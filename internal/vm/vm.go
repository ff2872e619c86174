package vm

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/glimmerweave/gw/internal/evaluator"
)

// VM error kinds; these mirror the interpreter's so harmonize handlers see
// the same names on both backends.
const (
	ErrTypeError         = "TypeError"
	ErrDivisionByZero    = "DivisionByZero"
	ErrIndexOutOfBounds  = "IndexOutOfBounds"
	ErrFieldNotFound     = "FieldNotFound"
	ErrInvalidRegister   = "InvalidRegister"
)

// VMError is a top-level execution failure.
type VMError struct {
	Kind    string
	Message string
}

func (e *VMError) Error() string { return e.Kind + ": " + e.Message }

func vmErrorf(kind, format string, args ...interface{}) *VMError {
	return &VMError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// exceptionHandler records where to resume after a throw.
type exceptionHandler struct {
	handlerOffset int
}

// Registers r254 and r255 receive the error kind and error value before a
// handler runs.
const (
	errorKindRegister  = 254
	errorValueRegister = 255
)

// VM is the Quicksilver register machine: 256 registers, a name-keyed
// global map, an exception-handler stack, and one chunk in flight. Instances own
// their state; run independent VMs for parallel execution.
type VM struct {
	registers [256]evaluator.Value
	globals   map[string]evaluator.Value

	exceptionHandlers []exceptionHandler

	ip    int
	chunk *Chunk

	// Output receives PRINT output; defaults to stdout.
	Output io.Writer
}

func New() *VM {
	vm := &VM{
		globals: make(map[string]evaluator.Value),
		Output:  os.Stdout,
	}
	for i := range vm.registers {
		vm.registers[i] = evaluator.NOTHING
	}
	return vm
}

// Execute runs a chunk to HALT and returns the value left in r0.
func (vm *VM) Execute(chunk *Chunk) (evaluator.Value, *VMError) {
	vm.chunk = chunk
	vm.ip = 0

	for {
		if vm.ip < 0 || vm.ip >= len(chunk.Instructions) {
			return nil, vmErrorf(ErrTypeError, "Instruction pointer out of range: %d", vm.ip)
		}
		ins := chunk.Instructions[vm.ip]
		vm.ip++

		switch ins.Op {
		case OP_HALT:
			return vm.registers[0], nil

		case OP_LOAD_CONST:
			constant, err := vm.constant(ins.Const)
			if err != nil {
				return nil, err
			}
			vm.registers[ins.Dest] = constant

		case OP_MOVE:
			vm.registers[ins.Dest] = vm.registers[ins.A]

		case OP_LOAD_NOTHING:
			vm.registers[ins.Dest] = evaluator.NOTHING

		case OP_LOAD_TRUTH:
			vm.registers[ins.Dest] = evaluator.BoolValue(ins.Flag)

		case OP_ADD_NUM:
			l, r, err := vm.numbers(ins.A, ins.B)
			if err != nil {
				return nil, err
			}
			vm.registers[ins.Dest] = &evaluator.Number{Value: l + r}

		case OP_SUB_NUM:
			l, r, err := vm.numbers(ins.A, ins.B)
			if err != nil {
				return nil, err
			}
			vm.registers[ins.Dest] = &evaluator.Number{Value: l - r}

		case OP_MUL_NUM:
			l, r, err := vm.numbers(ins.A, ins.B)
			if err != nil {
				return nil, err
			}
			vm.registers[ins.Dest] = &evaluator.Number{Value: l * r}

		case OP_DIV_NUM:
			l, r, err := vm.numbers(ins.A, ins.B)
			if err != nil {
				return nil, err
			}
			if r == 0 {
				if handled := vm.handleError("DivisionByZero", "Division by zero"); handled {
					vm.registers[ins.Dest] = &evaluator.Number{Value: 0}
					continue
				}
				return nil, vmErrorf(ErrDivisionByZero, "Division by zero")
			}
			vm.registers[ins.Dest] = &evaluator.Number{Value: l / r}

		case OP_MOD_NUM:
			l, r, err := vm.numbers(ins.A, ins.B)
			if err != nil {
				return nil, err
			}
			if r == 0 {
				if handled := vm.handleError("DivisionByZero", "Division by zero"); handled {
					vm.registers[ins.Dest] = &evaluator.Number{Value: 0}
					continue
				}
				return nil, vmErrorf(ErrDivisionByZero, "Division by zero")
			}
			vm.registers[ins.Dest] = &evaluator.Number{Value: math.Mod(l, r)}

		case OP_NEG_NUM:
			n, err := vm.number(ins.A)
			if err != nil {
				return nil, err
			}
			vm.registers[ins.Dest] = &evaluator.Number{Value: -n}

		case OP_CONCAT_TEXT:
			l, err := vm.text(ins.A)
			if err != nil {
				return nil, err
			}
			r, err := vm.text(ins.B)
			if err != nil {
				return nil, err
			}
			vm.registers[ins.Dest] = &evaluator.Text{Value: l + r}

		case OP_EQ:
			vm.registers[ins.Dest] = evaluator.BoolValue(
				evaluator.Equals(vm.registers[ins.A], vm.registers[ins.B]))
		case OP_NE:
			vm.registers[ins.Dest] = evaluator.BoolValue(
				!evaluator.Equals(vm.registers[ins.A], vm.registers[ins.B]))

		case OP_LT, OP_LE, OP_GT, OP_GE:
			l, r, err := vm.numbers(ins.A, ins.B)
			if err != nil {
				return nil, err
			}
			var result bool
			switch ins.Op {
			case OP_LT:
				result = l < r
			case OP_LE:
				result = l <= r
			case OP_GT:
				result = l > r
			case OP_GE:
				result = l >= r
			}
			vm.registers[ins.Dest] = evaluator.BoolValue(result)

		case OP_NOT:
			vm.registers[ins.Dest] = evaluator.BoolValue(!evaluator.IsTruthy(vm.registers[ins.A]))
		case OP_AND:
			vm.registers[ins.Dest] = evaluator.BoolValue(
				evaluator.IsTruthy(vm.registers[ins.A]) && evaluator.IsTruthy(vm.registers[ins.B]))
		case OP_OR:
			vm.registers[ins.Dest] = evaluator.BoolValue(
				evaluator.IsTruthy(vm.registers[ins.A]) || evaluator.IsTruthy(vm.registers[ins.B]))

		case OP_JUMP:
			vm.ip += int(ins.Offset)
		case OP_JUMP_IF_TRUE:
			if evaluator.IsTruthy(vm.registers[ins.A]) {
				vm.ip += int(ins.Offset)
			}
		case OP_JUMP_IF_FALSE:
			if !evaluator.IsTruthy(vm.registers[ins.A]) {
				vm.ip += int(ins.Offset)
			}

		case OP_DEFINE_GLOBAL:
			name, err := vm.stringConstant(ins.Const)
			if err != nil {
				return nil, err
			}
			vm.globals[name] = vm.registers[ins.A]

		case OP_LOAD_GLOBAL:
			name, err := vm.stringConstant(ins.Const)
			if err != nil {
				return nil, err
			}
			value, ok := vm.globals[name]
			if !ok {
				return nil, vmErrorf(ErrUndefinedVariable, "Variable '%s' is not defined", name)
			}
			vm.registers[ins.Dest] = value

		case OP_STORE_GLOBAL:
			name, err := vm.stringConstant(ins.Const)
			if err != nil {
				return nil, err
			}
			if _, ok := vm.globals[name]; !ok {
				return nil, vmErrorf(ErrUndefinedVariable, "Variable '%s' is not defined", name)
			}
			vm.globals[name] = vm.registers[ins.A]

		case OP_LOAD_LOCAL, OP_STORE_LOCAL:
			// Locals need call frames, which the compiler's current scoping
			// story does not produce yet; globals dominate.
			return nil, vmErrorf(ErrTypeError, "Local variables are not yet implemented in the VM")

		case OP_CREATE_LIST:
			elements := make([]evaluator.Value, ins.Count)
			for i := byte(0); i < ins.Count; i++ {
				elements[i] = vm.registers[ins.A+i]
			}
			vm.registers[ins.Dest] = &evaluator.List{Elements: elements}

		case OP_CREATE_MAP:
			vm.registers[ins.Dest] = evaluator.NewMap()

		case OP_GET_INDEX:
			list, isList := vm.registers[ins.A].(*evaluator.List)
			index, isNum := vm.registers[ins.B].(*evaluator.Number)
			if !isList || !isNum {
				return nil, vmErrorf(ErrTypeError, "Invalid index access")
			}
			i := int(index.Value)
			if i < 0 || i >= len(list.Elements) {
				return nil, vmErrorf(ErrIndexOutOfBounds, "Index %d out of bounds (length %d)", i, len(list.Elements))
			}
			vm.registers[ins.Dest] = list.Elements[i]

		case OP_SET_INDEX:
			list, isList := vm.registers[ins.Dest].(*evaluator.List)
			index, isNum := vm.registers[ins.A].(*evaluator.Number)
			if !isList || !isNum {
				return nil, vmErrorf(ErrTypeError, "Invalid index assignment")
			}
			i := int(index.Value)
			if i < 0 || i >= len(list.Elements) {
				return nil, vmErrorf(ErrIndexOutOfBounds, "Index %d out of bounds (length %d)", i, len(list.Elements))
			}
			list.Elements[i] = vm.registers[ins.B]

		case OP_GET_FIELD:
			fieldName, err := vm.stringConstant(ins.Const)
			if err != nil {
				return nil, err
			}
			switch container := vm.registers[ins.A].(type) {
			case *evaluator.Map:
				value, ok := container.Pairs[fieldName]
				if !ok {
					return nil, vmErrorf(ErrFieldNotFound, "Field '%s' not found on Map", fieldName)
				}
				vm.registers[ins.Dest] = value
			case *evaluator.StructInstance:
				value, ok := container.Fields[fieldName]
				if !ok {
					return nil, vmErrorf(ErrFieldNotFound, "Field '%s' not found on %s", fieldName, container.StructName)
				}
				vm.registers[ins.Dest] = value
			default:
				return nil, vmErrorf(ErrTypeError, "GetField on %s", vm.registers[ins.A].TypeName())
			}

		case OP_SET_FIELD:
			fieldName, err := vm.stringConstant(ins.Const)
			if err != nil {
				return nil, err
			}
			container, ok := vm.registers[ins.Dest].(*evaluator.Map)
			if !ok {
				return nil, vmErrorf(ErrTypeError, "SetField on %s", vm.registers[ins.Dest].TypeName())
			}
			container.Pairs[fieldName] = vm.registers[ins.B]

		case OP_CREATE_TRIUMPH:
			vm.registers[ins.Dest] = &evaluator.Outcome{Success: true, Value: vm.registers[ins.A]}
		case OP_CREATE_MISHAP:
			vm.registers[ins.Dest] = &evaluator.Outcome{Success: false, Value: vm.registers[ins.A]}
		case OP_CREATE_PRESENT:
			vm.registers[ins.Dest] = &evaluator.Maybe{Present: true, Value: vm.registers[ins.A]}
		case OP_CREATE_ABSENT:
			vm.registers[ins.Dest] = &evaluator.Maybe{Present: false}

		case OP_IS_TRIUMPH:
			o, ok := vm.registers[ins.A].(*evaluator.Outcome)
			vm.registers[ins.Dest] = evaluator.BoolValue(ok && o.Success)
		case OP_IS_MISHAP:
			o, ok := vm.registers[ins.A].(*evaluator.Outcome)
			vm.registers[ins.Dest] = evaluator.BoolValue(ok && !o.Success)
		case OP_IS_PRESENT:
			m, ok := vm.registers[ins.A].(*evaluator.Maybe)
			vm.registers[ins.Dest] = evaluator.BoolValue(ok && m.Present)
		case OP_IS_ABSENT:
			m, ok := vm.registers[ins.A].(*evaluator.Maybe)
			vm.registers[ins.Dest] = evaluator.BoolValue(ok && !m.Present)

		case OP_EXTRACT_INNER:
			switch v := vm.registers[ins.A].(type) {
			case *evaluator.Outcome:
				vm.registers[ins.Dest] = v.Value
			case *evaluator.Maybe:
				if v.Value == nil {
					return nil, vmErrorf(ErrTypeError, "ExtractInner on Absent")
				}
				vm.registers[ins.Dest] = v.Value
			default:
				return nil, vmErrorf(ErrTypeError, "ExtractInner on %s", vm.registers[ins.A].TypeName())
			}

		case OP_CREATE_STRUCT:
			structName, err := vm.stringConstant(ins.Const)
			if err != nil {
				return nil, err
			}
			defValue, ok := vm.globals[structName]
			if !ok {
				return nil, vmErrorf(ErrUndefinedVariable, "Variable '%s' is not defined", structName)
			}
			def, ok := defValue.(*evaluator.StructDef)
			if !ok {
				return nil, vmErrorf(ErrTypeError, "Expected form definition for '%s'", structName)
			}
			fields := make(map[string]evaluator.Value, len(def.Fields))
			for i, field := range def.Fields {
				if i < int(ins.Count) {
					fields[field.Name] = vm.registers[ins.A+byte(i)]
				}
			}
			vm.registers[ins.Dest] = &evaluator.StructInstance{StructName: def.Name, Fields: fields}

		case OP_SETUP_TRY:
			vm.exceptionHandlers = append(vm.exceptionHandlers, exceptionHandler{
				handlerOffset: int(ins.Const),
			})

		case OP_POP_TRY:
			if len(vm.exceptionHandlers) > 0 {
				vm.exceptionHandlers = vm.exceptionHandlers[:len(vm.exceptionHandlers)-1]
			}

		case OP_THROW:
			thrown := vm.registers[ins.A]
			if len(vm.exceptionHandlers) == 0 {
				return nil, vmErrorf(ErrTypeError, "Uncaught: %s", thrown.Inspect())
			}
			handler := vm.exceptionHandlers[len(vm.exceptionHandlers)-1]
			vm.exceptionHandlers = vm.exceptionHandlers[:len(vm.exceptionHandlers)-1]
			vm.registers[errorKindRegister] = &evaluator.Text{Value: "RuntimeError"}
			vm.registers[errorValueRegister] = thrown
			vm.ip = handler.handlerOffset

		case OP_RETURN:
			// Without call frames a return ends execution with its value.
			return vm.registers[ins.A], nil

		case OP_CALL, OP_CREATE_CLOSURE:
			return nil, vmErrorf(ErrTypeError, "Function calls are not yet implemented in the VM")

		case OP_PRINT:
			fmt.Fprintln(vm.Output, vm.registers[ins.A].Inspect())

		default:
			return nil, vmErrorf(ErrTypeError, "Unimplemented instruction: %s", OpcodeNames[ins.Op])
		}
	}
}

// handleError unwinds to the most recent try handler, loading the error
// kind into r254 and the message into r255. It reports false when no
// handler is installed.
func (vm *VM) handleError(kind, message string) bool {
	if len(vm.exceptionHandlers) == 0 {
		return false
	}
	handler := vm.exceptionHandlers[len(vm.exceptionHandlers)-1]
	vm.exceptionHandlers = vm.exceptionHandlers[:len(vm.exceptionHandlers)-1]
	vm.registers[errorKindRegister] = &evaluator.Text{Value: kind}
	vm.registers[errorValueRegister] = &evaluator.Text{Value: message}
	vm.ip = handler.handlerOffset
	return true
}

func (vm *VM) constant(id uint16) (evaluator.Value, *VMError) {
	if int(id) >= len(vm.chunk.Constants) {
		return nil, vmErrorf(ErrTypeError, "Constant index %d out of range", id)
	}
	return vm.chunk.Constants[id], nil
}

func (vm *VM) stringConstant(id uint16) (string, *VMError) {
	constant, err := vm.constant(id)
	if err != nil {
		return "", err
	}
	text, ok := constant.(*evaluator.Text)
	if !ok {
		return "", vmErrorf(ErrTypeError, "Expected Text constant at index %d", id)
	}
	return text.Value, nil
}

func (vm *VM) number(reg byte) (float64, *VMError) {
	n, ok := vm.registers[reg].(*evaluator.Number)
	if !ok {
		return 0, vmErrorf(ErrTypeError, "Expected Number in r%d, got %s", reg, vm.registers[reg].TypeName())
	}
	return n.Value, nil
}

func (vm *VM) numbers(a, b byte) (float64, float64, *VMError) {
	l, err := vm.number(a)
	if err != nil {
		return 0, 0, err
	}
	r, err := vm.number(b)
	if err != nil {
		return 0, 0, err
	}
	return l, r, nil
}

func (vm *VM) text(reg byte) (string, *VMError) {
	t, ok := vm.registers[reg].(*evaluator.Text)
	if !ok {
		return "", vmErrorf(ErrTypeError, "Expected Text in r%d, got %s", reg, vm.registers[reg].TypeName())
	}
	return t.Value, nil
}
