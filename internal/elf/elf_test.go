package elf_test

import (
	"bytes"
	"testing"

	"github.com/glimmerweave/gw/internal/elf"
)

func buildSample() []byte {
	builder := elf.NewBuilder()
	builder.AddText([]byte{0x55, 0x48, 0x89, 0xE5, 0xC3}) // push rbp; mov rbp,rsp; ret
	builder.AddData([]byte("hello"))
	builder.AddFunction("main", 0, 5)
	return builder.Build()
}

func TestHeaderFields(t *testing.T) {
	data := buildSample()

	if !bytes.Equal(data[:4], []byte{0x7F, 'E', 'L', 'F'}) {
		t.Fatalf("bad magic: % x", data[:4])
	}
	if data[4] != elf.ClassElf64 {
		t.Fatalf("class should be ELF64, got %d", data[4])
	}
	if data[5] != elf.DataLittleEndian {
		t.Fatalf("data should be little-endian, got %d", data[5])
	}

	obj, err := elf.ReadObject(data)
	if err != nil {
		t.Fatalf("parse back failed: %v", err)
	}
	if obj.Header.Type != elf.TypeRelocatable {
		t.Fatalf("type should be relocatable, got %d", obj.Header.Type)
	}
	if obj.Header.Machine != elf.MachineX86_64 {
		t.Fatalf("machine should be x86-64, got %d", obj.Header.Machine)
	}
	if obj.Header.EhSize != elf.HeaderSize || obj.Header.ShEntSize != elf.SectionHeaderSize {
		t.Fatalf("entity sizes wrong: %d/%d", obj.Header.EhSize, obj.Header.ShEntSize)
	}
	if obj.Header.PhNum != 0 || obj.Header.Entry != 0 {
		t.Fatal("relocatable objects carry no program headers or entry point")
	}
	if obj.Header.ShNum != 7 || obj.Header.ShStrNdx != 6 {
		t.Fatalf("section bookkeeping wrong: num=%d strndx=%d", obj.Header.ShNum, obj.Header.ShStrNdx)
	}
}

func TestSevenSections(t *testing.T) {
	obj, err := elf.ReadObject(buildSample())
	if err != nil {
		t.Fatalf("parse back failed: %v", err)
	}
	if len(obj.Sections) != 7 {
		t.Fatalf("expected 7 sections, got %d", len(obj.Sections))
	}

	// null, .text, .data, .bss, .symtab, .strtab, .shstrtab — in order.
	wantTypes := []uint32{
		elf.SectionNull, elf.SectionProgBits, elf.SectionProgBits,
		elf.SectionNoBits, elf.SectionSymTab, elf.SectionStrTab, elf.SectionStrTab,
	}
	for i, want := range wantTypes {
		if obj.Sections[i].Type != want {
			t.Fatalf("section %d type: got %d, want %d", i, obj.Sections[i].Type, want)
		}
	}

	text := obj.Sections[1]
	if text.Flags != elf.FlagAlloc|elf.FlagExecInstr || text.AddrAlign != 16 {
		t.Fatalf(".text flags/alignment wrong: %+v", text)
	}
	if text.Size != 5 || text.Offset != elf.HeaderSize {
		t.Fatalf(".text layout wrong: %+v", text)
	}

	data := obj.Sections[2]
	if data.Flags != elf.FlagAlloc|elf.FlagWrite || data.Size != 5 {
		t.Fatalf(".data section wrong: %+v", data)
	}
	if data.Offset != text.Offset+text.Size {
		t.Fatalf(".data must follow .text: %+v", data)
	}

	symtab := obj.Sections[4]
	if symtab.Link != 5 || symtab.Info != 1 || symtab.EntSize != elf.SymbolSize {
		t.Fatalf(".symtab header wrong: %+v", symtab)
	}
}

func TestSymbols(t *testing.T) {
	obj, err := elf.ReadObject(buildSample())
	if err != nil {
		t.Fatalf("parse back failed: %v", err)
	}
	if len(obj.Symbols) != 2 {
		t.Fatalf("expected null + main, got %d symbols", len(obj.Symbols))
	}

	null := obj.Symbols[0]
	if null.Info != 0 || null.Name != 0 || null.Value != 0 {
		t.Fatalf("symbol 0 must be the null symbol: %+v", null)
	}

	main := obj.Symbols[1]
	if main.Info != (elf.BindGlobal<<4)|elf.TypeFunc {
		t.Fatalf("main must be a global function: info=%#x", main.Info)
	}
	if main.Shndx != 1 {
		t.Fatalf("main must live in .text: shndx=%d", main.Shndx)
	}
	if main.Value != 0 || main.Size != 5 {
		t.Fatalf("main offset/size wrong: %+v", main)
	}
}

func TestStringTablesStartWithNul(t *testing.T) {
	st := elf.NewStringTable()
	offset := st.Add("main")
	if offset != 1 {
		t.Fatalf("first string should start at 1, got %d", offset)
	}
	data := st.ToBytes()
	if data[0] != 0 || string(data[1:5]) != "main" || data[5] != 0 {
		t.Fatalf("string table layout wrong: % x", data)
	}
}

func TestDeterministicBytes(t *testing.T) {
	if !bytes.Equal(buildSample(), buildSample()) {
		t.Fatal("two builds must be byte-identical")
	}
}

func TestCreateObject(t *testing.T) {
	code := []byte{0xC3}
	data := elf.CreateObject(code, "start")
	obj, err := elf.ReadObject(data)
	if err != nil {
		t.Fatalf("parse back failed: %v", err)
	}
	if len(obj.Symbols) != 2 || obj.Symbols[1].Size != 1 {
		t.Fatalf("wrapped object symbols wrong: %+v", obj.Symbols)
	}
}
