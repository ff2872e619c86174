package codegen

import "fmt"

// Heap allocation for generated code goes through two external symbols,
// both System V AMD64: gl_malloc(rdi=size) -> rax (NULL on failure) and
// gl_free(rdi=ptr). The allocator itself lives outside the toolchain.

// externalDeclarations announces the allocator symbols at the top of .text.
func externalDeclarations() string {
	return "    # External runtime functions (free-list allocator)\n" +
		".globl gl_malloc\n" +
		".globl gl_free\n\n"
}

// genStructAlloc emits a gl_malloc call for a struct with fieldCount
// 8-byte fields; the pointer lands in rax.
func genStructAlloc(fieldCount int) []Instruction {
	size := fieldCount * 8
	return []Instruction{
		comment(fmt.Sprintf("Allocate struct with %d fields (%d bytes)", fieldCount, size)),
		mov(fmt.Sprintf("$%d", size), RDI),
		call("gl_malloc"),
		cmp("$0", RAX),
	}
}

// genStructFieldLoad reads field fieldIndex of the struct pointed to by rax
// into rax. Fields sit at 8-byte strides in declaration order.
func genStructFieldLoad(fieldIndex int) []Instruction {
	return []Instruction{
		mov(fmt.Sprintf("%d(%s)", fieldIndex*8, RAX), RAX),
	}
}

// genStructFieldStore writes rax into field fieldIndex of the struct
// pointed to by rbx.
func genStructFieldStore(fieldIndex int) []Instruction {
	return []Instruction{
		mov(RAX, fmt.Sprintf("%d(%s)", fieldIndex*8, RBX)),
	}
}

// genStringAlloc copies a string into a fresh heap block with an 8-byte
// length prefix. Inputs: r10 = length, r11 = source pointer. Output: rax =
// heap pointer. The byte-copy loop needs unique labels per call site.
func genStringAlloc(loopLabel, doneLabel string) []Instruction {
	code := []Instruction{
		comment("Allocate string on heap"),
		mov(R10, RDI),
		add("$8", RDI),
		push(R10),
		push(R11),
		call("gl_malloc"),
		pop(R11),
		pop(R10),
		// Length prefix at offset 0.
		mov(R10, "0("+RAX+")"),
		comment("Copy string data byte-by-byte"),
		xor(RCX, RCX),
		mov("$8", RDX),
		label(loopLabel),
		cmp(R10, RCX),
		jge(doneLabel),
		movb("("+R11+",%rcx,1)", "%r8b"),
		movb("%r8b", "("+RAX+",%rdx,1)"),
		inc(RCX),
		inc(RDX),
		jmp(loopLabel),
		label(doneLabel),
	}
	return code
}
