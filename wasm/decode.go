package wasm

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/wippyai/wasm-rebind/wasm/internal/binary"
)

var (
	// ErrInvalidMagic is returned when the binary does not start with "\0asm".
	ErrInvalidMagic = errors.New("wasm: invalid magic number")
	// ErrInvalidVersion is returned for binaries that are not core modules (version 1).
	ErrInvalidVersion = errors.New("wasm: unsupported binary version")
)

// ParseModule decodes a WebAssembly core module.
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}

	m := &Module{}
	var lastSectionOrder int

	for {
		sectionID, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, r.WrapError("section header", err)
		}

		if sectionID != SectionCustom {
			order := sectionOrder(sectionID)
			if order <= lastSectionOrder {
				return nil, fmt.Errorf("section %d appears out of order", sectionID)
			}
			lastSectionOrder = order
		}

		size, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section size", err)
		}
		payload, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, r.WrapError("section data", err)
		}

		raw := rawSection{id: sectionID, data: payload}
		sr := binary.NewReader(payload)

		switch sectionID {
		case SectionCustom:
			name, err := sr.ReadName()
			if err != nil {
				return nil, fmt.Errorf("custom section: %w", err)
			}
			raw.name = name
			raw.content = sr.ReadRemaining()
			if name == "name" {
				m.Name = parseModuleName(raw.content)
			}
		case SectionType:
			if m.Types, err = parseTypeSection(sr); err != nil {
				return nil, fmt.Errorf("type section: %w", err)
			}
		case SectionImport:
			if m.Imports, err = parseImportSection(sr); err != nil {
				return nil, fmt.Errorf("import section: %w", err)
			}
		case SectionFunction:
			if m.Funcs, err = parseIndexVector(sr); err != nil {
				return nil, fmt.Errorf("function section: %w", err)
			}
		case SectionExport:
			if m.Exports, err = parseExportSection(sr); err != nil {
				return nil, fmt.Errorf("export section: %w", err)
			}
		case SectionCode:
			if m.Code, err = parseCodeSection(sr); err != nil {
				return nil, fmt.Errorf("code section: %w", err)
			}
		case SectionTable, SectionMemory, SectionGlobal, SectionStart,
			SectionElement, SectionData, SectionDataCount, SectionTag:
			// kept raw
		default:
			return nil, fmt.Errorf("unknown section ID: 0x%02x", sectionID)
		}

		m.sections = append(m.sections, raw)
	}

	m.References = collectReferences(m.Imports)
	return m, nil
}

// sectionOrder returns the canonical ordering for a section ID.
func sectionOrder(id byte) int {
	switch id {
	case SectionType:
		return 1
	case SectionImport:
		return 2
	case SectionFunction:
		return 3
	case SectionTable:
		return 4
	case SectionMemory:
		return 5
	case SectionTag:
		return 6
	case SectionGlobal:
		return 7
	case SectionExport:
		return 8
	case SectionStart:
		return 9
	case SectionElement:
		return 10
	case SectionDataCount:
		return 11
	case SectionCode:
		return 12
	case SectionData:
		return 13
	default:
		return 100
	}
}

// parseModuleName extracts the module-name subsection. Malformed name
// sections are ignored, matching how engines treat them.
func parseModuleName(payload []byte) string {
	r := binary.NewReader(payload)
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return ""
		}
		size, err := r.ReadU32()
		if err != nil {
			return ""
		}
		body, err := r.ReadBytes(int(size))
		if err != nil {
			return ""
		}
		if id == NameSubsectionModule {
			name, err := binary.NewReader(body).ReadName()
			if err != nil {
				return ""
			}
			return name
		}
	}
	return ""
}

func parseTypeSection(r *binary.Reader) ([]FuncType, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	types := make([]FuncType, 0, count)
	for i := uint32(0); i < count; i++ {
		start := r.Position()
		form, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if form != RecTypeByte {
			t, err := readSubType(r, form, start)
			if err != nil {
				return nil, err
			}
			types = append(types, t)
			continue
		}
		n, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		for j := uint32(0); j < n; j++ {
			start := r.Position()
			form, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			t, err := readSubType(r, form, start)
			if err != nil {
				return nil, err
			}
			types = append(types, t)
		}
	}
	return types, nil
}

func readSubType(r *binary.Reader, form byte, start int) (FuncType, error) {
	if form == SubTypeByte || form == SubFinalTypeByte {
		parents, err := r.ReadU32()
		if err != nil {
			return FuncType{}, err
		}
		for i := uint32(0); i < parents; i++ {
			if _, err := r.ReadU32(); err != nil {
				return FuncType{}, err
			}
		}
		start = r.Position()
		if form, err = r.ReadByte(); err != nil {
			return FuncType{}, err
		}
	}
	return readCompType(r, form, start)
}

func readCompType(r *binary.Reader, form byte, start int) (FuncType, error) {
	switch form {
	case FuncTypeByte:
		params, err := readValTypes(r)
		if err != nil {
			return FuncType{}, err
		}
		results, err := readValTypes(r)
		if err != nil {
			return FuncType{}, err
		}
		return FuncType{
			Params:  params,
			Results: results,
			Raw:     slices.Clone(r.Span(start, r.Position())),
			Func:    true,
		}, nil
	case StructTypeByte:
		n, err := r.ReadU32()
		if err != nil {
			return FuncType{}, err
		}
		for i := uint32(0); i < n; i++ {
			if err := skipFieldType(r); err != nil {
				return FuncType{}, err
			}
		}
	case ArrayTypeByte:
		if err := skipFieldType(r); err != nil {
			return FuncType{}, err
		}
	default:
		return FuncType{}, fmt.Errorf("unknown type form: 0x%02x", form)
	}
	return FuncType{Raw: slices.Clone(r.Span(start, r.Position()))}, nil
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	types := make([]ValType, n)
	for i := range types {
		if types[i], err = readValType(r); err != nil {
			return nil, err
		}
	}
	return types, nil
}

// readValType reads a value type, consuming the heap type of (ref ht) forms.
func readValType(r *binary.Reader) (ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	if ValType(b) == ValRefNull || ValType(b) == ValRef {
		if _, err := r.ReadS64(); err != nil {
			return 0, err
		}
	}
	return ValType(b), nil
}

func skipFieldType(r *binary.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		return err
	}
	if ValType(b) == ValRefNull || ValType(b) == ValRef {
		if _, err := r.ReadS64(); err != nil {
			return err
		}
	}
	_, err = r.ReadByte() // mutability
	return err
}

func skipLimits(r *binary.Reader) error {
	flags, err := r.ReadByte()
	if err != nil {
		return err
	}
	if _, err := r.ReadU64(); err != nil {
		return err
	}
	if flags&0x01 != 0 {
		if _, err := r.ReadU64(); err != nil {
			return err
		}
	}
	if flags&0x08 != 0 { // custom page size
		if _, err := r.ReadU32(); err != nil {
			return err
		}
	}
	return nil
}

func parseImportSection(r *binary.Reader) ([]Import, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	imports := make([]Import, count)
	for i := range imports {
		module, err := r.ReadName()
		if err != nil {
			return nil, err
		}
		name, err := r.ReadName()
		if err != nil {
			return nil, err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return nil, err
		}

		imp := Import{Module: module, Name: name, Kind: kind}
		start := r.Position()

		switch kind {
		case KindFunc:
			imp.TypeIdx, err = r.ReadU32()
		case KindTable:
			if _, err = readValType(r); err == nil {
				err = skipLimits(r)
			}
		case KindMemory:
			err = skipLimits(r)
		case KindGlobal:
			if imp.GlobalType, err = readValType(r); err == nil {
				var mut byte
				mut, err = r.ReadByte()
				imp.Mutable = mut == 0x01
			}
		case KindTag:
			if _, err = r.ReadByte(); err == nil {
				imp.TypeIdx, err = r.ReadU32()
			}
		default:
			return nil, fmt.Errorf("unknown import kind: %d", kind)
		}
		if err != nil {
			return nil, r.WrapError("import "+module+"."+name, err)
		}

		imp.Desc = slices.Clone(r.Span(start, r.Position()))
		imports[i] = imp
	}
	return imports, nil
}

func parseIndexVector(r *binary.Reader) ([]uint32, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	idxs := make([]uint32, count)
	for i := range idxs {
		if idxs[i], err = r.ReadU32(); err != nil {
			return nil, err
		}
	}
	return idxs, nil
}

func parseExportSection(r *binary.Reader) ([]Export, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	exports := make([]Export, count)
	for i := range exports {
		name, err := r.ReadName()
		if err != nil {
			return nil, err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		idx, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		exports[i] = Export{Name: name, Kind: kind, Idx: idx}
	}
	return exports, nil
}

func parseCodeSection(r *binary.Reader) ([]FuncBody, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	bodies := make([]FuncBody, count)
	for i := range bodies {
		size, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		body, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, err
		}

		br := binary.NewReader(body)
		groups, err := br.ReadU32()
		if err != nil {
			return nil, err
		}
		for j := uint32(0); j < groups; j++ {
			if _, err := br.ReadU32(); err != nil {
				return nil, err
			}
			if _, err := readValType(br); err != nil {
				return nil, err
			}
		}

		split := br.Position()
		bodies[i] = FuncBody{
			Locals: slices.Clone(body[:split]),
			Code:   slices.Clone(body[split:]),
		}
	}
	return bodies, nil
}
