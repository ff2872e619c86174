package elf

import (
	"encoding/binary"
	"fmt"
)

// Object is a parsed-back view of an object file, enough to verify the
// writer round-trips: header fields, section headers, and symbols.
type Object struct {
	Header   Header
	Sections []SectionHeader
	Symbols  []Symbol
}

// ReadObject parses bytes produced by Builder.Build.
func ReadObject(data []byte) (*Object, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("elf: truncated header (%d bytes)", len(data))
	}
	if data[0] != 0x7F || data[1] != 'E' || data[2] != 'L' || data[3] != 'F' {
		return nil, fmt.Errorf("elf: bad magic")
	}
	if data[4] != ClassElf64 || data[5] != DataLittleEndian {
		return nil, fmt.Errorf("elf: not a little-endian ELF64 file")
	}

	le := binary.LittleEndian
	obj := &Object{}
	obj.Header = Header{
		Type:      le.Uint16(data[16:]),
		Machine:   le.Uint16(data[18:]),
		Entry:     le.Uint64(data[24:]),
		PhOff:     le.Uint64(data[32:]),
		ShOff:     le.Uint64(data[40:]),
		Flags:     le.Uint32(data[48:]),
		EhSize:    le.Uint16(data[52:]),
		PhEntSize: le.Uint16(data[54:]),
		PhNum:     le.Uint16(data[56:]),
		ShEntSize: le.Uint16(data[58:]),
		ShNum:     le.Uint16(data[60:]),
		ShStrNdx:  le.Uint16(data[62:]),
	}

	shOff := int(obj.Header.ShOff)
	for i := 0; i < int(obj.Header.ShNum); i++ {
		base := shOff + i*SectionHeaderSize
		if base+SectionHeaderSize > len(data) {
			return nil, fmt.Errorf("elf: truncated section header %d", i)
		}
		sh := data[base : base+SectionHeaderSize]
		obj.Sections = append(obj.Sections, SectionHeader{
			Name:      le.Uint32(sh[0:]),
			Type:      le.Uint32(sh[4:]),
			Flags:     le.Uint64(sh[8:]),
			Addr:      le.Uint64(sh[16:]),
			Offset:    le.Uint64(sh[24:]),
			Size:      le.Uint64(sh[32:]),
			Link:      le.Uint32(sh[40:]),
			Info:      le.Uint32(sh[44:]),
			AddrAlign: le.Uint64(sh[48:]),
			EntSize:   le.Uint64(sh[56:]),
		})
	}

	// Symbols live in the SYMTAB section.
	for _, section := range obj.Sections {
		if section.Type != SectionSymTab {
			continue
		}
		count := int(section.Size) / SymbolSize
		for i := 0; i < count; i++ {
			base := int(section.Offset) + i*SymbolSize
			if base+SymbolSize > len(data) {
				return nil, fmt.Errorf("elf: truncated symbol %d", i)
			}
			sym := data[base : base+SymbolSize]
			obj.Symbols = append(obj.Symbols, Symbol{
				Name:  le.Uint32(sym[0:]),
				Info:  sym[4],
				Other: sym[5],
				Shndx: le.Uint16(sym[6:]),
				Value: le.Uint64(sym[8:]),
				Size:  le.Uint64(sym[16:]),
			})
		}
	}
	return obj, nil
}
