package wasmgen

// ValType is a core value type.
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
	sectionExport byte = 7
	sectionCode   byte = 10
	sectionData   byte = 11

	funcTypeMarker byte = 0x60

	KindFunc   byte = 0x00
	KindMemory byte = 0x02
)

var header = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (ft FuncType) equal(o FuncType) bool {
	if len(ft.Params) != len(o.Params) || len(ft.Results) != len(o.Results) {
		return false
	}
	for i := range ft.Params {
		if ft.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range ft.Results {
		if ft.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// Import is an imported function.
type Import struct {
	Module  string
	Name    string
	TypeIdx uint32
}

// Func is a defined function. Body holds the instructions including the
// trailing end opcode; defined functions have no locals beyond parameters.
type Func struct {
	Body    []byte
	TypeIdx uint32
}

// Export names a function or memory.
type Export struct {
	Name  string
	Kind  byte
	Index uint32
}

// Data is an active segment in memory 0.
type Data struct {
	Bytes  []byte
	Offset uint32
}

// Module is a minimal core module: functions, one memory, exports and data.
type Module struct {
	Types       []FuncType
	Imports     []Import
	Funcs       []Func
	Exports     []Export
	Data        []Data
	MemoryPages uint32
	HasMemory   bool
}

// AddType returns the index of ft, appending it if new.
func (m *Module) AddType(ft FuncType) uint32 {
	for i, t := range m.Types {
		if t.equal(ft) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}

// ImportFunc adds a function import and returns its function index.
// Imports must be added before any defined function.
func (m *Module) ImportFunc(module, name string, ft FuncType) uint32 {
	m.Imports = append(m.Imports, Import{Module: module, Name: name, TypeIdx: m.AddType(ft)})
	return uint32(len(m.Imports) - 1)
}

// AddFunc defines a function and returns its function index.
func (m *Module) AddFunc(ft FuncType, body []byte) uint32 {
	m.Funcs = append(m.Funcs, Func{TypeIdx: m.AddType(ft), Body: body})
	return uint32(len(m.Imports) + len(m.Funcs) - 1)
}

// ExportFunc exports the function at idx.
func (m *Module) ExportFunc(name string, idx uint32) {
	m.Exports = append(m.Exports, Export{Name: name, Kind: KindFunc, Index: idx})
}

// DeclareMemory declares memory 0 with pages initial pages.
func (m *Module) DeclareMemory(pages uint32) {
	m.HasMemory = true
	m.MemoryPages = pages
}

// ExportMemory declares memory 0 and exports it.
func (m *Module) ExportMemory(name string, pages uint32) {
	m.DeclareMemory(pages)
	m.Exports = append(m.Exports, Export{Name: name, Kind: KindMemory})
}

// Encode returns the binary module.
func (m *Module) Encode() []byte {
	buf := &Buffer{}
	buf.WriteBytes(header)

	if len(m.Types) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.Types)))
		for _, ft := range m.Types {
			sec.AppendByte(funcTypeMarker)
			sec.WriteU32(uint32(len(ft.Params)))
			for _, p := range ft.Params {
				sec.AppendByte(byte(p))
			}
			sec.WriteU32(uint32(len(ft.Results)))
			for _, r := range ft.Results {
				sec.AppendByte(byte(r))
			}
		}
		writeSection(buf, sectionType, sec)
	}

	if len(m.Imports) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			sec.WriteName(imp.Module)
			sec.WriteName(imp.Name)
			sec.AppendByte(KindFunc)
			sec.WriteU32(imp.TypeIdx)
		}
		writeSection(buf, sectionImport, sec)
	}

	if len(m.Funcs) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.Funcs)))
		for _, f := range m.Funcs {
			sec.WriteU32(f.TypeIdx)
		}
		writeSection(buf, sectionFunc, sec)
	}

	if m.HasMemory {
		sec := &Buffer{}
		sec.WriteU32(1)
		sec.WriteLimits(m.MemoryPages, 0)
		writeSection(buf, sectionMemory, sec)
	}

	if len(m.Exports) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.Exports)))
		for _, e := range m.Exports {
			sec.WriteName(e.Name)
			sec.AppendByte(e.Kind)
			sec.WriteU32(e.Index)
		}
		writeSection(buf, sectionExport, sec)
	}

	if len(m.Funcs) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.Funcs)))
		for _, f := range m.Funcs {
			body := &Buffer{}
			body.WriteU32(0) // no local declarations
			body.WriteBytes(f.Body)
			sec.WriteU32(uint32(len(body.Bytes)))
			sec.WriteBytes(body.Bytes)
		}
		writeSection(buf, sectionCode, sec)
	}

	if len(m.Data) > 0 {
		sec := &Buffer{}
		sec.WriteU32(uint32(len(m.Data)))
		for _, d := range m.Data {
			sec.AppendByte(0x00) // active, memory 0
			sec.AppendByte(OpI32Const)
			sec.WriteI32(int32(d.Offset))
			sec.AppendByte(OpEnd)
			sec.WriteU32(uint32(len(d.Bytes)))
			sec.WriteBytes(d.Bytes)
		}
		writeSection(buf, sectionData, sec)
	}

	return buf.Bytes
}
