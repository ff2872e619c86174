// Package elf writes ELF64 relocatable object files: header, .text, .data,
// .bss, .symtab, .strtab, and .shstrtab, all little-endian with a fixed,
// byte-reproducible layout.
package elf

import "encoding/binary"

// ELF constants used by the writer.
const (
	ClassElf64       = 2
	DataLittleEndian = 1
	VersionCurrent   = 1
	OSABISysV        = 0

	TypeRelocatable = 1
	MachineX86_64   = 62

	HeaderSize        = 64
	SectionHeaderSize = 64
	SymbolSize        = 24
)

// Section types.
const (
	SectionNull     = 0
	SectionProgBits = 1
	SectionSymTab   = 2
	SectionStrTab   = 3
	SectionNoBits   = 8
)

// Section flags.
const (
	FlagWrite     = 0x1
	FlagAlloc     = 0x2
	FlagExecInstr = 0x4
)

// Symbol binding and type.
const (
	BindGlobal = 1
	TypeFunc   = 2
)

// Header is the ELF64 file header.
type Header struct {
	Type      uint16
	Machine   uint16
	Entry     uint64
	PhOff     uint64
	ShOff     uint64
	Flags     uint32
	EhSize    uint16
	PhEntSize uint16
	PhNum     uint16
	ShEntSize uint16
	ShNum     uint16
	ShStrNdx  uint16
}

// NewRelocatableHeader fills the fixed fields for an x86-64 object file.
func NewRelocatableHeader() Header {
	return Header{
		Type:      TypeRelocatable,
		Machine:   MachineX86_64,
		EhSize:    HeaderSize,
		ShEntSize: SectionHeaderSize,
	}
}

// ToBytes serializes the 64-byte header.
func (h Header) ToBytes() []byte {
	out := make([]byte, HeaderSize)
	out[0] = 0x7F
	out[1] = 'E'
	out[2] = 'L'
	out[3] = 'F'
	out[4] = ClassElf64
	out[5] = DataLittleEndian
	out[6] = VersionCurrent
	out[7] = OSABISysV
	// Padding bytes 8..15 stay zero.
	le := binary.LittleEndian
	le.PutUint16(out[16:], h.Type)
	le.PutUint16(out[18:], h.Machine)
	le.PutUint32(out[20:], VersionCurrent)
	le.PutUint64(out[24:], h.Entry)
	le.PutUint64(out[32:], h.PhOff)
	le.PutUint64(out[40:], h.ShOff)
	le.PutUint32(out[48:], h.Flags)
	le.PutUint16(out[52:], h.EhSize)
	le.PutUint16(out[54:], h.PhEntSize)
	le.PutUint16(out[56:], h.PhNum)
	le.PutUint16(out[58:], h.ShEntSize)
	le.PutUint16(out[60:], h.ShNum)
	le.PutUint16(out[62:], h.ShStrNdx)
	return out
}

// SectionHeader is one ELF64 section header entry.
type SectionHeader struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	AddrAlign uint64
	EntSize   uint64
}

func (s SectionHeader) ToBytes() []byte {
	out := make([]byte, SectionHeaderSize)
	le := binary.LittleEndian
	le.PutUint32(out[0:], s.Name)
	le.PutUint32(out[4:], s.Type)
	le.PutUint64(out[8:], s.Flags)
	le.PutUint64(out[16:], s.Addr)
	le.PutUint64(out[24:], s.Offset)
	le.PutUint64(out[32:], s.Size)
	le.PutUint32(out[40:], s.Link)
	le.PutUint32(out[44:], s.Info)
	le.PutUint64(out[48:], s.AddrAlign)
	le.PutUint64(out[56:], s.EntSize)
	return out
}

// Symbol is one ELF64 symbol-table entry.
type Symbol struct {
	Name  uint32
	Info  byte
	Other byte
	Shndx uint16
	Value uint64
	Size  uint64
}

// FunctionSymbol builds a global function symbol in section shndx.
func FunctionSymbol(nameIdx uint32, shndx uint16, value, size uint64) Symbol {
	return Symbol{
		Name:  nameIdx,
		Info:  (BindGlobal << 4) | TypeFunc,
		Shndx: shndx,
		Value: value,
		Size:  size,
	}
}

func (s Symbol) ToBytes() []byte {
	out := make([]byte, SymbolSize)
	le := binary.LittleEndian
	le.PutUint32(out[0:], s.Name)
	out[4] = s.Info
	out[5] = s.Other
	le.PutUint16(out[6:], s.Shndx)
	le.PutUint64(out[8:], s.Value)
	le.PutUint64(out[16:], s.Size)
	return out
}

// StringTable accumulates NUL-terminated strings; the table always begins
// with a single NUL byte and Add returns the offset of the string's first
// character.
type StringTable struct {
	data []byte
}

func NewStringTable() *StringTable {
	return &StringTable{data: []byte{0}}
}

func (st *StringTable) Add(s string) uint32 {
	offset := uint32(len(st.data))
	st.data = append(st.data, []byte(s)...)
	st.data = append(st.data, 0)
	return offset
}

func (st *StringTable) ToBytes() []byte { return st.data }

func (st *StringTable) Len() int { return len(st.data) }
