package wasm

// Module is a decoded WebAssembly core module.
//
// Only the parts a rewriter touches are decoded into structured form:
// imports, exports, function signatures and code bodies. Every other
// section is kept as raw bytes and written back unchanged by Encode.
type Module struct {
	// Name is the module name from the "name" custom section, if present.
	Name string

	// References lists the module's external references: the distinct
	// import namespaces in first-appearance order. Rewriters may remove
	// or append entries; Encode does not serialize the list itself since
	// a core module materializes references only through import scopes.
	References []string

	Types   []FuncType // flat type index space; GC struct/array entries have Func == false
	Imports []Import
	Funcs   []uint32 // type index of each defined function
	Exports []Export
	Code    []FuncBody

	sections []rawSection
}

// ValType represents a WebAssembly value type.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExtern:
		return "externref"
	case ValRefNull:
		return "ref null"
	case ValRef:
		return "ref"
	default:
		return "unknown"
	}
}

// FuncType is a function signature. Func is false for GC struct and
// array entries, which still occupy a slot in the type index space.
type FuncType struct {
	Params  []ValType
	Results []ValType
	// Raw holds the encoded entry, used to compare signatures that carry
	// reference types with heap type immediates.
	Raw  []byte
	Func bool
}

// Equal reports whether two signatures are encoded identically.
func (f FuncType) Equal(o FuncType) bool {
	return f.Func && o.Func && string(f.Raw) == string(o.Raw)
}

// Import is an imported function, table, memory, global, or tag.
// The owning scope of the imported entity is Module.
type Import struct {
	Module string
	Name   string
	// Desc is the encoded descriptor following the kind byte.
	Desc []byte
	// TypeIdx is the signature of a function import.
	TypeIdx uint32
	Kind    byte
	// Mutable reports a mutable global import.
	Mutable bool
	// GlobalType is the value type of a global import.
	GlobalType ValType
}

// QualifiedName returns the scope-independent name of the imported entity.
func (i Import) QualifiedName() string {
	return i.Name
}

// Export describes an exported item.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// FuncBody holds one function's encoded locals and instruction bytes.
type FuncBody struct {
	// Locals is the encoded local declaration vector, count prefix included.
	Locals []byte
	// Code holds the instruction bytes, including the final end opcode.
	Code []byte
}

type rawSection struct {
	data    []byte // full section payload
	content []byte // custom section payload after the name
	name    string // custom section name
	id      byte
}

// NumImportedFuncs returns the number of imported functions.
func (m *Module) NumImportedFuncs() int {
	return m.countImports(KindFunc)
}

// NumImportedGlobals returns the number of imported globals.
func (m *Module) NumImportedGlobals() int {
	return m.countImports(KindGlobal)
}

func (m *Module) countImports(kind byte) int {
	count := 0
	for _, imp := range m.Imports {
		if imp.Kind == kind {
			count++
		}
	}
	return count
}

// FuncImport returns the import backing a function index, if the function
// is imported.
func (m *Module) FuncImport(funcIdx uint32) (*Import, bool) {
	return m.nthImport(KindFunc, funcIdx)
}

// GlobalImport returns the import backing a global index, if the global
// is imported.
func (m *Module) GlobalImport(globalIdx uint32) (*Import, bool) {
	return m.nthImport(KindGlobal, globalIdx)
}

func (m *Module) nthImport(kind byte, idx uint32) (*Import, bool) {
	for i := range m.Imports {
		if m.Imports[i].Kind != kind {
			continue
		}
		if idx == 0 {
			return &m.Imports[i], true
		}
		idx--
	}
	return nil, false
}

// FindFuncImport returns the function index of the import (module, name).
func (m *Module) FindFuncImport(module, name string) (uint32, bool) {
	var idx uint32
	for _, imp := range m.Imports {
		if imp.Kind != KindFunc {
			continue
		}
		if imp.Module == module && imp.Name == name {
			return idx, true
		}
		idx++
	}
	return 0, false
}

// FuncType returns the signature of a function index, imported or defined.
func (m *Module) FuncType(funcIdx uint32) (FuncType, bool) {
	var typeIdx uint32
	if imp, ok := m.FuncImport(funcIdx); ok {
		typeIdx = imp.TypeIdx
	} else {
		local := int(funcIdx) - m.NumImportedFuncs()
		if local < 0 || local >= len(m.Funcs) {
			return FuncType{}, false
		}
		typeIdx = m.Funcs[local]
	}
	if int(typeIdx) >= len(m.Types) || !m.Types[typeIdx].Func {
		return FuncType{}, false
	}
	return m.Types[typeIdx], true
}

// HasReference reports whether name is among the module's references.
func (m *Module) HasReference(name string) bool {
	for _, ref := range m.References {
		if ref == name {
			return true
		}
	}
	return false
}

// CustomSection returns the payload of the first custom section with name.
func (m *Module) CustomSection(name string) ([]byte, bool) {
	for _, s := range m.sections {
		if s.id == SectionCustom && s.name == name {
			return s.content, true
		}
	}
	return nil, false
}

func collectReferences(imports []Import) []string {
	var refs []string
	seen := make(map[string]struct{}, len(imports))
	for _, imp := range imports {
		if _, ok := seen[imp.Module]; ok {
			continue
		}
		seen[imp.Module] = struct{}{}
		refs = append(refs, imp.Module)
	}
	return refs
}
