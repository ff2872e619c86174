package elf

// Builder assembles a seven-section relocatable object: null, .text, .data,
// .bss, .symtab, .strtab, .shstrtab. Content is written in a fixed order —
// header, .text, .data, symtab, strtab, shstrtab, section headers — so the
// same input always produces the same bytes.
type Builder struct {
	textSection []byte
	dataSection []byte
	symbols     []Symbol
	stringTable *StringTable
	shStringTab *StringTable
}

func NewBuilder() *Builder {
	return &Builder{
		symbols:     []Symbol{{}}, // index 0 is always the null symbol
		stringTable: NewStringTable(),
		shStringTab: NewStringTable(),
	}
}

// AddText appends machine code to .text.
func (b *Builder) AddText(code []byte) {
	b.textSection = append(b.textSection, code...)
}

// AddData appends initialized data to .data.
func (b *Builder) AddData(data []byte) {
	b.dataSection = append(b.dataSection, data...)
}

// AddFunction declares a global function symbol at offset within .text.
func (b *Builder) AddFunction(name string, offset, size uint64) {
	nameIdx := b.stringTable.Add(name)
	b.symbols = append(b.symbols, FunctionSymbol(nameIdx, 1, offset, size))
}

// Build produces the final object file bytes.
func (b *Builder) Build() []byte {
	var out []byte

	header := NewRelocatableHeader()

	b.shStringTab.Add("")
	textName := b.shStringTab.Add(".text")
	dataName := b.shStringTab.Add(".data")
	bssName := b.shStringTab.Add(".bss")
	symtabName := b.shStringTab.Add(".symtab")
	strtabName := b.shStringTab.Add(".strtab")
	shstrtabName := b.shStringTab.Add(".shstrtab")

	textOffset := uint64(HeaderSize)
	dataOffset := textOffset + uint64(len(b.textSection))
	symtabOffset := dataOffset + uint64(len(b.dataSection))

	var symtabBytes []byte
	for _, sym := range b.symbols {
		symtabBytes = append(symtabBytes, sym.ToBytes()...)
	}

	strtabOffset := symtabOffset + uint64(len(symtabBytes))
	strtabBytes := b.stringTable.ToBytes()

	shstrtabOffset := strtabOffset + uint64(len(strtabBytes))
	shstrtabBytes := b.shStringTab.ToBytes()

	header.ShOff = shstrtabOffset + uint64(len(shstrtabBytes))
	header.ShNum = 7
	header.ShStrNdx = 6

	out = append(out, header.ToBytes()...)
	out = append(out, b.textSection...)
	out = append(out, b.dataSection...)
	out = append(out, symtabBytes...)
	out = append(out, strtabBytes...)
	out = append(out, shstrtabBytes...)

	// 0: null section
	out = append(out, SectionHeader{}.ToBytes()...)
	// 1: .text
	out = append(out, SectionHeader{
		Name:      textName,
		Type:      SectionProgBits,
		Flags:     FlagAlloc | FlagExecInstr,
		Offset:    textOffset,
		Size:      uint64(len(b.textSection)),
		AddrAlign: 16,
	}.ToBytes()...)
	// 2: .data
	out = append(out, SectionHeader{
		Name:      dataName,
		Type:      SectionProgBits,
		Flags:     FlagAlloc | FlagWrite,
		Offset:    dataOffset,
		Size:      uint64(len(b.dataSection)),
		AddrAlign: 8,
	}.ToBytes()...)
	// 3: .bss occupies no file space
	out = append(out, SectionHeader{
		Name:      bssName,
		Type:      SectionNoBits,
		Flags:     FlagAlloc | FlagWrite,
		AddrAlign: 8,
	}.ToBytes()...)
	// 4: .symtab, linked to .strtab, one local (null) symbol
	out = append(out, SectionHeader{
		Name:      symtabName,
		Type:      SectionSymTab,
		Offset:    symtabOffset,
		Size:      uint64(len(symtabBytes)),
		Link:      5,
		Info:      1,
		AddrAlign: 8,
		EntSize:   SymbolSize,
	}.ToBytes()...)
	// 5: .strtab
	out = append(out, SectionHeader{
		Name:      strtabName,
		Type:      SectionStrTab,
		Offset:    strtabOffset,
		Size:      uint64(len(strtabBytes)),
		AddrAlign: 1,
	}.ToBytes()...)
	// 6: .shstrtab
	out = append(out, SectionHeader{
		Name:      shstrtabName,
		Type:      SectionStrTab,
		Offset:    shstrtabOffset,
		Size:      uint64(len(shstrtabBytes)),
		AddrAlign: 1,
	}.ToBytes()...)

	return out
}

// CreateObject wraps code into an object file exposing one function symbol.
func CreateObject(code []byte, functionName string) []byte {
	builder := NewBuilder()
	builder.AddText(code)
	builder.AddFunction(functionName, 0, uint64(len(code)))
	return builder.Build()
}
