package wasm

import (
	"github.com/wippyai/wasm-rebind/wasm/internal/binary"
)

// Encode serializes the module. Import, export and code sections are
// regenerated from the structured fields; every other section is written
// back byte-for-byte in its original position.
func (m *Module) Encode() []byte {
	w := binary.NewWriter()
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	for _, s := range m.sections {
		switch s.id {
		case SectionImport:
			w.Section(SectionImport, encodeImports(m.Imports))
		case SectionExport:
			w.Section(SectionExport, encodeExports(m.Exports))
		case SectionCode:
			w.Section(SectionCode, encodeCode(m.Code))
		default:
			w.Section(s.id, s.data)
		}
	}

	return w.Bytes()
}

func encodeImports(imports []Import) []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(imports)))
	for _, imp := range imports {
		w.WriteName(imp.Module)
		w.WriteName(imp.Name)
		w.Byte(imp.Kind)
		w.WriteBytes(imp.Desc)
	}
	return w.Bytes()
}

func encodeExports(exports []Export) []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(exports)))
	for _, exp := range exports {
		w.WriteName(exp.Name)
		w.Byte(exp.Kind)
		w.WriteU32(exp.Idx)
	}
	return w.Bytes()
}

func encodeCode(bodies []FuncBody) []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(bodies)))
	for _, body := range bodies {
		w.WriteU32(uint32(len(body.Locals) + len(body.Code)))
		w.WriteBytes(body.Locals)
		w.WriteBytes(body.Code)
	}
	return w.Bytes()
}
