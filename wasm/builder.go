package wasm

import (
	"github.com/wippyai/wasm-rebind/wasm/internal/binary"
)

// Builder assembles small core modules, mostly for fixtures and for
// target type tables generated from export lists.
//
// Function and global indices returned by the Add methods assume every
// import was declared before the first definition of the same kind.
type Builder struct {
	name    string
	types   [][]byte
	imports []Import
	funcs   []builtFunc
	globals []builtGlobal
	exports []Export
	memory  *uint32
}

type builtFunc struct {
	locals  []ValType
	body    []Instruction
	typeIdx uint32
}

type builtGlobal struct {
	init    Instruction
	valType ValType
	mutable bool
}

// NewBuilder creates a builder. A non-empty name is written to the
// "name" custom section.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// AddType adds a function signature, reusing an identical one.
func (b *Builder) AddType(params, results []ValType) uint32 {
	w := binary.NewWriter()
	w.Byte(FuncTypeByte)
	writeValTypes(w, params)
	writeValTypes(w, results)
	return b.addRawType(w.Bytes())
}

// AddStructType adds a GC struct type with mutable fields.
func (b *Builder) AddStructType(fields ...ValType) uint32 {
	w := binary.NewWriter()
	w.Byte(StructTypeByte)
	w.WriteU32(uint32(len(fields)))
	for _, f := range fields {
		w.Byte(byte(f))
		w.Byte(0x01)
	}
	return b.addRawType(w.Bytes())
}

func (b *Builder) addRawType(raw []byte) uint32 {
	for i, t := range b.types {
		if string(t) == string(raw) {
			return uint32(i)
		}
	}
	b.types = append(b.types, raw)
	return uint32(len(b.types) - 1)
}

// ImportFunc declares a function import and returns its function index.
func (b *Builder) ImportFunc(module, name string, params, results []ValType) uint32 {
	typeIdx := b.AddType(params, results)
	w := binary.NewWriter()
	w.WriteU32(typeIdx)
	b.imports = append(b.imports, Import{
		Module:  module,
		Name:    name,
		Kind:    KindFunc,
		TypeIdx: typeIdx,
		Desc:    w.Bytes(),
	})
	return uint32(b.countImports(KindFunc) - 1)
}

// ImportGlobal declares a global import and returns its global index.
func (b *Builder) ImportGlobal(module, name string, t ValType, mutable bool) uint32 {
	var mut byte
	if mutable {
		mut = 0x01
	}
	b.imports = append(b.imports, Import{
		Module:     module,
		Name:       name,
		Kind:       KindGlobal,
		GlobalType: t,
		Mutable:    mutable,
		Desc:       []byte{byte(t), mut},
	})
	return uint32(b.countImports(KindGlobal) - 1)
}

// ImportMemory declares a memory import with the given minimum pages.
func (b *Builder) ImportMemory(module, name string, minPages uint32) {
	w := binary.NewWriter()
	w.Byte(0x00)
	w.WriteU32(minPages)
	b.imports = append(b.imports, Import{
		Module: module,
		Name:   name,
		Kind:   KindMemory,
		Desc:   w.Bytes(),
	})
}

// SetMemory defines a memory with the given minimum pages.
func (b *Builder) SetMemory(minPages uint32) {
	b.memory = &minPages
}

func (b *Builder) countImports(kind byte) int {
	n := 0
	for _, imp := range b.imports {
		if imp.Kind == kind {
			n++
		}
	}
	return n
}

// AddFunc defines a function and returns its function index. The final
// end instruction is appended automatically.
func (b *Builder) AddFunc(params, results, locals []ValType, body ...Instruction) uint32 {
	b.funcs = append(b.funcs, builtFunc{
		typeIdx: b.AddType(params, results),
		locals:  locals,
		body:    body,
	})
	return uint32(b.countImports(KindFunc) + len(b.funcs) - 1)
}

// AddGlobal defines a global initialized by a constant instruction and
// returns its global index.
func (b *Builder) AddGlobal(t ValType, mutable bool, init Instruction) uint32 {
	b.globals = append(b.globals, builtGlobal{valType: t, mutable: mutable, init: init})
	return uint32(b.countImports(KindGlobal) + len(b.globals) - 1)
}

// Export exports an entity.
func (b *Builder) Export(name string, kind byte, idx uint32) {
	b.exports = append(b.exports, Export{Name: name, Kind: kind, Idx: idx})
}

// ExportFunc exports a function.
func (b *Builder) ExportFunc(name string, funcIdx uint32) {
	b.Export(name, KindFunc, funcIdx)
}

// Bytes encodes the module.
func (b *Builder) Bytes() []byte {
	w := binary.NewWriter()
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	if len(b.types) > 0 {
		s := binary.NewWriter()
		s.WriteU32(uint32(len(b.types)))
		for _, t := range b.types {
			s.WriteBytes(t)
		}
		w.Section(SectionType, s.Bytes())
	}

	if len(b.imports) > 0 {
		w.Section(SectionImport, encodeImports(b.imports))
	}

	if len(b.funcs) > 0 {
		s := binary.NewWriter()
		s.WriteU32(uint32(len(b.funcs)))
		for _, f := range b.funcs {
			s.WriteU32(f.typeIdx)
		}
		w.Section(SectionFunction, s.Bytes())
	}

	if b.memory != nil {
		s := binary.NewWriter()
		s.WriteU32(1)
		s.Byte(0x00)
		s.WriteU32(*b.memory)
		w.Section(SectionMemory, s.Bytes())
	}

	if len(b.globals) > 0 {
		s := binary.NewWriter()
		s.WriteU32(uint32(len(b.globals)))
		for _, g := range b.globals {
			s.Byte(byte(g.valType))
			if g.mutable {
				s.Byte(0x01)
			} else {
				s.Byte(0x00)
			}
			s.WriteBytes(EncodeInstructions([]Instruction{g.init, Op(OpEnd)}))
		}
		w.Section(SectionGlobal, s.Bytes())
	}

	if len(b.exports) > 0 {
		w.Section(SectionExport, encodeExports(b.exports))
	}

	if len(b.funcs) > 0 {
		bodies := make([]FuncBody, len(b.funcs))
		for i, f := range b.funcs {
			bodies[i] = FuncBody{
				Locals: encodeLocals(f.locals),
				Code:   EncodeInstructions(append(append([]Instruction(nil), f.body...), Op(OpEnd))),
			}
		}
		w.Section(SectionCode, encodeCode(bodies))
	}

	if b.name != "" {
		sub := binary.NewWriter()
		sub.WriteName(b.name)
		s := binary.NewWriter()
		s.WriteName("name")
		s.Byte(NameSubsectionModule)
		s.WriteU32(uint32(sub.Len()))
		s.WriteBytes(sub.Bytes())
		w.Section(SectionCustom, s.Bytes())
	}

	return w.Bytes()
}

func writeValTypes(w *binary.Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

// encodeLocals groups consecutive locals of the same type.
func encodeLocals(locals []ValType) []byte {
	type group struct {
		t ValType
		n uint32
	}
	var groups []group
	for _, t := range locals {
		if len(groups) > 0 && groups[len(groups)-1].t == t {
			groups[len(groups)-1].n++
			continue
		}
		groups = append(groups, group{t: t, n: 1})
	}
	w := binary.NewWriter()
	w.WriteU32(uint32(len(groups)))
	for _, g := range groups {
		w.WriteU32(g.n)
		w.Byte(byte(g.t))
	}
	return w.Bytes()
}
