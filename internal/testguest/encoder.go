// Package testguest assembles the wasm guests the host is tested against.
//
// It holds a small binary encoder (enough of the module format for
// hand-assembled test guests) and fixture modules following the guest calling
// convention: exports take (i32 ptr, i32 len) and return an i64 packed pair.
package testguest

// ValType is a wasm value type.
type ValType byte

const (
	I32 ValType = 0x7F
	I64 ValType = 0x7E
)

const (
	sectionType   byte = 1
	sectionImport byte = 2
	sectionFunc   byte = 3
	sectionMemory byte = 5
	sectionGlobal byte = 6
	sectionExport byte = 7
	sectionCode   byte = 10
	sectionData   byte = 11

	kindFunc   byte = 0x00
	kindMemory byte = 0x02
	kindGlobal byte = 0x03

	funcTypeMarker byte = 0x60
)

var magic = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

// Buffer accumulates encoded bytes.
type Buffer struct {
	Bytes []byte
}

func (b *Buffer) AppendByte(v byte) {
	b.Bytes = append(b.Bytes, v)
}

func (b *Buffer) WriteBytes(v []byte) {
	b.Bytes = append(b.Bytes, v...)
}

// WriteU32 writes unsigned LEB128 encoding.
func (b *Buffer) WriteU32(v uint32) {
	for {
		byt := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			byt |= 0x80
		}
		b.AppendByte(byt)
		if v == 0 {
			break
		}
	}
}

// WriteI32 writes signed LEB128 encoding.
func (b *Buffer) WriteI32(v int32) {
	b.WriteI64(int64(v))
}

// WriteI64 writes signed LEB128 encoding.
func (b *Buffer) WriteI64(v int64) {
	for {
		byt := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && byt&0x40 == 0) || (v == -1 && byt&0x40 != 0) {
			b.AppendByte(byt)
			break
		}
		b.AppendByte(byt | 0x80)
	}
}

func (b *Buffer) WriteString(s string) {
	b.WriteU32(uint32(len(s))) //nolint:gosec // G115: names are short
	b.WriteBytes([]byte(s))
}

func (b *Buffer) writeLimits(minPages uint32, maxPages *uint32) {
	if maxPages != nil {
		b.AppendByte(0x01)
		b.WriteU32(minPages)
		b.WriteU32(*maxPages)
		return
	}
	b.AppendByte(0x00)
	b.WriteU32(minPages)
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (f FuncType) equal(o FuncType) bool {
	if len(f.Params) != len(o.Params) || len(f.Results) != len(o.Results) {
		return false
	}
	for i := range f.Params {
		if f.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range f.Results {
		if f.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

type importFunc struct {
	module, name string
	typeIdx      uint32
}

type function struct {
	body    []byte
	locals  []ValType
	typeIdx uint32
}

type export struct {
	name string
	kind byte
	idx  uint32
}

type global struct {
	typ     ValType
	value   int64
	mutable bool
}

type segment struct {
	data   []byte
	offset uint32
}

// Module builds a wasm binary. Imports must be declared before functions so
// function indices stay stable.
type Module struct {
	memMax  *uint32
	types   []FuncType
	imports []importFunc
	funcs   []function
	globals []global
	exports []export
	data    []segment
	memMin  uint32
	hasMem  bool
}

// NewModule creates an empty module.
func NewModule() *Module {
	return &Module{}
}

func (m *Module) typeIndex(ft FuncType) uint32 {
	for i, t := range m.types {
		if t.equal(ft) {
			return uint32(i) //nolint:gosec // G115: few types
		}
	}
	m.types = append(m.types, ft)
	return uint32(len(m.types) - 1) //nolint:gosec // G115: few types
}

// Import declares an imported function and returns its index.
func (m *Module) Import(module, name string, ft FuncType) uint32 {
	if len(m.funcs) > 0 {
		panic("testguest: imports must precede functions")
	}
	m.imports = append(m.imports, importFunc{module: module, name: name, typeIdx: m.typeIndex(ft)})
	return uint32(len(m.imports) - 1) //nolint:gosec // G115: few imports
}

// Func defines a function and returns its index. The trailing end opcode is
// added here.
func (m *Module) Func(ft FuncType, locals []ValType, code *Code) uint32 {
	body := append(append([]byte{}, code.Bytes...), opEnd)
	m.funcs = append(m.funcs, function{typeIdx: m.typeIndex(ft), locals: locals, body: body})
	return uint32(len(m.imports) + len(m.funcs) - 1) //nolint:gosec // G115: few functions
}

// ExportFunc exports function idx under name.
func (m *Module) ExportFunc(name string, idx uint32) {
	m.exports = append(m.exports, export{name: name, kind: kindFunc, idx: idx})
}

// Memory defines memory 0 and exports it as "memory". maxPages of 0 leaves the
// maximum open.
func (m *Module) Memory(minPages, maxPages uint32) {
	m.hasMem = true
	m.memMin = minPages
	if maxPages > 0 {
		m.memMax = &maxPages
	}
	m.exports = append(m.exports, export{name: "memory", kind: kindMemory, idx: 0})
}

// ExportGlobalI32 defines an immutable i32 global and exports it.
func (m *Module) ExportGlobalI32(name string, v int32) {
	m.globals = append(m.globals, global{typ: I32, value: int64(v)})
	m.exports = append(m.exports, export{name: name, kind: kindGlobal, idx: uint32(len(m.globals) - 1)}) //nolint:gosec // G115: few globals
}

// Data places b at offset in memory 0.
func (m *Module) Data(offset uint32, b []byte) {
	m.data = append(m.data, segment{offset: offset, data: b})
}

func writeSection(buf *Buffer, id byte, content *Buffer) {
	buf.AppendByte(id)
	buf.WriteU32(uint32(len(content.Bytes))) //nolint:gosec // G115: test modules are small
	buf.WriteBytes(content.Bytes)
}

// Encode renders the module binary.
func (m *Module) Encode() []byte {
	buf := &Buffer{}
	buf.WriteBytes(magic)

	if len(m.types) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.types))) //nolint:gosec // G115
		for _, ft := range m.types {
			sec.AppendByte(funcTypeMarker)
			sec.WriteU32(uint32(len(ft.Params))) //nolint:gosec // G115
			for _, p := range ft.Params {
				sec.AppendByte(byte(p))
			}
			sec.WriteU32(uint32(len(ft.Results))) //nolint:gosec // G115
			for _, r := range ft.Results {
				sec.AppendByte(byte(r))
			}
		}
		writeSection(buf, sectionType, sec)
	}

	if len(m.imports) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.imports))) //nolint:gosec // G115
		for _, imp := range m.imports {
			sec.WriteString(imp.module)
			sec.WriteString(imp.name)
			sec.AppendByte(kindFunc)
			sec.WriteU32(imp.typeIdx)
		}
		writeSection(buf, sectionImport, sec)
	}

	if len(m.funcs) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.funcs))) //nolint:gosec // G115
		for _, f := range m.funcs {
			sec.WriteU32(f.typeIdx)
		}
		writeSection(buf, sectionFunc, sec)
	}

	if m.hasMem {
		sec := &Buffer{}
		sec.WriteU32(1)
		sec.writeLimits(m.memMin, m.memMax)
		writeSection(buf, sectionMemory, sec)
	}

	if len(m.globals) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.globals))) //nolint:gosec // G115
		for _, g := range m.globals {
			sec.AppendByte(byte(g.typ))
			if g.mutable {
				sec.AppendByte(0x01)
			} else {
				sec.AppendByte(0x00)
			}
			if g.typ == I64 {
				sec.AppendByte(opI64Const)
			} else {
				sec.AppendByte(opI32Const)
			}
			sec.WriteI64(g.value)
			sec.AppendByte(opEnd)
		}
		writeSection(buf, sectionGlobal, sec)
	}

	if len(m.exports) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.exports))) //nolint:gosec // G115
		for _, e := range m.exports {
			sec.WriteString(e.name)
			sec.AppendByte(e.kind)
			sec.WriteU32(e.idx)
		}
		writeSection(buf, sectionExport, sec)
	}

	if len(m.funcs) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.funcs))) //nolint:gosec // G115
		for _, f := range m.funcs {
			body := &Buffer{}
			writeLocals(body, f.locals)
			body.WriteBytes(f.body)
			sec.WriteU32(uint32(len(body.Bytes))) //nolint:gosec // G115
			sec.WriteBytes(body.Bytes)
		}
		writeSection(buf, sectionCode, sec)
	}

	if len(m.data) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.data))) //nolint:gosec // G115
		for _, d := range m.data {
			sec.AppendByte(0x00) // active, memory 0
			sec.AppendByte(opI32Const)
			sec.WriteI32(int32(d.offset)) //nolint:gosec // G115: offsets are small
			sec.AppendByte(opEnd)
			sec.WriteU32(uint32(len(d.data))) //nolint:gosec // G115
			sec.WriteBytes(d.data)
		}
		writeSection(buf, sectionData, sec)
	}

	return buf.Bytes
}

// writeLocals groups consecutive locals of the same type.
func writeLocals(buf *Buffer, locals []ValType) {
	type group struct {
		typ ValType
		n   uint32
	}
	var groups []group
	for _, l := range locals {
		if len(groups) > 0 && groups[len(groups)-1].typ == l {
			groups[len(groups)-1].n++
			continue
		}
		groups = append(groups, group{typ: l, n: 1})
	}
	buf.WriteU32(uint32(len(groups))) //nolint:gosec // G115
	for _, g := range groups {
		buf.WriteU32(g.n)
		buf.AppendByte(byte(g.typ))
	}
}
