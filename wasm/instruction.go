package wasm

import (
	"fmt"
	"slices"

	"github.com/wippyai/wasm-rebind/wasm/internal/binary"
)

// Instruction is one decoded instruction of a function body.
//
// Immediates are kept in their encoded form so that instructions a
// rewriter does not touch re-encode byte-for-byte. Accessors decode the
// immediates rewriters inspect.
type Instruction struct {
	// Imm holds the encoded immediates following the opcode, and the
	// sub-opcode for prefixed instructions.
	Imm []byte
	// Sub is the sub-opcode of 0xFB..0xFE prefixed instructions.
	Sub    uint32
	Opcode byte
}

// Prefixed reports whether the instruction carries a sub-opcode.
func (i Instruction) Prefixed() bool {
	return i.Opcode >= OpPrefixGC && i.Opcode <= OpPrefixAtomic
}

// IsGC reports whether the instruction is the GC instruction sub.
func (i Instruction) IsGC(sub uint32) bool {
	return i.Opcode == OpPrefixGC && i.Sub == sub
}

// GlobalIndex returns the global index of global.get and global.set.
func (i Instruction) GlobalIndex() (uint32, bool) {
	if i.Opcode != OpGlobalGet && i.Opcode != OpGlobalSet {
		return 0, false
	}
	return firstU32(i.Imm)
}

// CallTarget returns the function index of call and return_call.
func (i Instruction) CallTarget() (uint32, bool) {
	if i.Opcode != OpCall && i.Opcode != OpReturnCall {
		return 0, false
	}
	return firstU32(i.Imm)
}

// StructField returns the type and field index of struct.get, struct.get_s,
// struct.get_u and struct.set.
func (i Instruction) StructField() (typeIdx, fieldIdx uint32, ok bool) {
	if i.Opcode != OpPrefixGC {
		return 0, 0, false
	}
	switch i.Sub {
	case GCStructGet, GCStructGetS, GCStructGetU, GCStructSet:
	default:
		return 0, 0, false
	}
	r := binary.NewReader(i.Imm)
	t, err := r.ReadU32()
	if err != nil {
		return 0, 0, false
	}
	f, err := r.ReadU32()
	if err != nil {
		return 0, 0, false
	}
	return t, f, true
}

func firstU32(imm []byte) (uint32, bool) {
	v, err := binary.NewReader(imm).ReadU32()
	return v, err == nil
}

// Op builds an instruction without immediates.
func Op(op byte) Instruction {
	return Instruction{Opcode: op}
}

// Indexed builds an instruction whose single immediate is an index.
func Indexed(op byte, idx uint32) Instruction {
	w := binary.NewWriter()
	w.WriteU32(idx)
	return Instruction{Opcode: op, Imm: w.Bytes()}
}

// Call builds call funcIdx.
func Call(funcIdx uint32) Instruction { return Indexed(OpCall, funcIdx) }

// GlobalGet builds global.get idx.
func GlobalGet(idx uint32) Instruction { return Indexed(OpGlobalGet, idx) }

// GlobalSet builds global.set idx.
func GlobalSet(idx uint32) Instruction { return Indexed(OpGlobalSet, idx) }

// LocalGet builds local.get idx.
func LocalGet(idx uint32) Instruction { return Indexed(OpLocalGet, idx) }

// I32Const builds i32.const v.
func I32Const(v int32) Instruction {
	w := binary.NewWriter()
	w.WriteS32(v)
	return Instruction{Opcode: OpI32Const, Imm: w.Bytes()}
}

// I64Const builds i64.const v.
func I64Const(v int64) Instruction {
	w := binary.NewWriter()
	w.WriteS64(v)
	return Instruction{Opcode: OpI64Const, Imm: w.Bytes()}
}

// F32Const builds f32.const v.
func F32Const(v float32) Instruction {
	w := binary.NewWriter()
	w.WriteF32(v)
	return Instruction{Opcode: OpF32Const, Imm: w.Bytes()}
}

// F64Const builds f64.const v.
func F64Const(v float64) Instruction {
	w := binary.NewWriter()
	w.WriteF64(v)
	return Instruction{Opcode: OpF64Const, Imm: w.Bytes()}
}

// StructGet builds struct.get typeIdx fieldIdx.
func StructGet(typeIdx, fieldIdx uint32) Instruction {
	return structOp(GCStructGet, typeIdx, fieldIdx)
}

// StructSet builds struct.set typeIdx fieldIdx.
func StructSet(typeIdx, fieldIdx uint32) Instruction {
	return structOp(GCStructSet, typeIdx, fieldIdx)
}

func structOp(sub, typeIdx, fieldIdx uint32) Instruction {
	w := binary.NewWriter()
	w.WriteU32(typeIdx)
	w.WriteU32(fieldIdx)
	return Instruction{Opcode: OpPrefixGC, Sub: sub, Imm: w.Bytes()}
}

// ConstFor builds a constant instruction of type t holding v, converting
// v as needed. It reports false for types without a const instruction.
func ConstFor(t ValType, v float64) (Instruction, bool) {
	switch t {
	case ValI32:
		return I32Const(int32(v)), true
	case ValI64:
		return I64Const(int64(v)), true
	case ValF32:
		return F32Const(float32(v)), true
	case ValF64:
		return F64Const(v), true
	default:
		return Instruction{}, false
	}
}

var mnemonics = map[byte]string{
	OpUnreachable:  "unreachable",
	OpNop:          "nop",
	OpEnd:          "end",
	OpReturn:       "return",
	OpCall:         "call",
	OpReturnCall:   "return_call",
	OpDrop:         "drop",
	OpLocalGet:     "local.get",
	OpLocalSet:     "local.set",
	OpLocalTee:     "local.tee",
	OpGlobalGet:    "global.get",
	OpGlobalSet:    "global.set",
	OpI32Const:     "i32.const",
	OpI64Const:     "i64.const",
	OpF32Const:     "f32.const",
	OpF64Const:     "f64.const",
	OpRefIsNull:    "ref.is_null",
	OpRefEq:        "ref.eq",
	OpRefAsNonNull: "ref.as_non_null",
}

var gcMnemonics = map[uint32]string{
	GCStructGet:  "struct.get",
	GCStructGetS: "struct.get_s",
	GCStructGetU: "struct.get_u",
	GCStructSet:  "struct.set",
}

// String renders the instruction in a WAT-like form for diagnostics.
func (i Instruction) String() string {
	if t, f, ok := i.StructField(); ok {
		return fmt.Sprintf("%s %d %d", gcMnemonics[i.Sub], t, f)
	}
	if i.Prefixed() {
		return fmt.Sprintf("0x%02x:%d", i.Opcode, i.Sub)
	}
	name, ok := mnemonics[i.Opcode]
	if !ok {
		return fmt.Sprintf("0x%02x", i.Opcode)
	}
	switch i.Opcode {
	case OpCall, OpReturnCall, OpLocalGet, OpLocalSet, OpLocalTee, OpGlobalGet, OpGlobalSet:
		if idx, ok := firstU32(i.Imm); ok {
			return fmt.Sprintf("%s %d", name, idx)
		}
	case OpI32Const, OpI64Const:
		if v, err := binary.NewReader(i.Imm).ReadS64(); err == nil {
			return fmt.Sprintf("%s %d", name, v)
		}
	}
	return name
}

// DecodeInstructions decodes a function body's instruction bytes.
func DecodeInstructions(code []byte) ([]Instruction, error) {
	r := binary.NewReader(code)
	instrs := make([]Instruction, 0, len(code)/2)

	for r.Len() > 0 {
		at := r.Position()
		op, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		instr := Instruction{Opcode: op}
		if instr.Prefixed() {
			if instr.Sub, err = r.ReadU32(); err != nil {
				return nil, r.WrapError("sub-opcode", err)
			}
		}
		start := r.Position()
		if err := skipImmediates(r, op, instr.Sub); err != nil {
			return nil, fmt.Errorf("instruction 0x%02x at offset %d: %w", op, at, err)
		}
		if end := r.Position(); end > start {
			instr.Imm = slices.Clone(r.Span(start, end))
		}
		instrs = append(instrs, instr)
	}

	return instrs, nil
}

// EncodeInstructions encodes an instruction sequence.
func EncodeInstructions(instrs []Instruction) []byte {
	w := binary.NewWriter()
	for _, instr := range instrs {
		w.Byte(instr.Opcode)
		if instr.Prefixed() {
			w.WriteU32(instr.Sub)
		}
		w.WriteBytes(instr.Imm)
	}
	return w.Bytes()
}

func skipImmediates(r *binary.Reader, op byte, sub uint32) error {
	switch {
	case op >= OpNumericFirst && op <= OpNumericLast:
		return nil
	case op >= OpI32Load && op <= OpI64Store32:
		return skipMemArg(r)
	}

	switch op {
	case OpUnreachable, OpNop, OpElse, OpEnd, OpReturn, OpDrop, OpSelect,
		OpCatchAll, OpThrowRef, OpRefIsNull, OpRefAsNonNull, OpRefEq:
		return nil

	case OpBlock, OpLoop, OpIf, OpTry:
		_, err := r.ReadS64()
		return err

	case OpCatch, OpThrow, OpRethrow, OpDelegate, OpBr, OpBrIf,
		OpCall, OpReturnCall, OpCallRef, OpReturnCallRef,
		OpLocalGet, OpLocalSet, OpLocalTee, OpGlobalGet, OpGlobalSet,
		OpTableGet, OpTableSet, OpMemorySize, OpMemoryGrow,
		OpRefFunc, OpBrOnNull, OpBrOnNonNull:
		return skipU32s(r, 1)

	case OpCallIndirect, OpReturnCallIndirect:
		return skipU32s(r, 2)

	case OpBrTable:
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		return skipU32s(r, int(n)+1)

	case OpTryTable:
		if _, err := r.ReadS64(); err != nil {
			return err
		}
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			kind, err := r.ReadByte()
			if err != nil {
				return err
			}
			if kind == CatchKindCatch || kind == CatchKindCatchRef {
				if err := skipU32s(r, 1); err != nil {
					return err
				}
			}
			if err := skipU32s(r, 1); err != nil {
				return err
			}
		}
		return nil

	case OpSelectType:
		_, err := readValTypes(r)
		return err

	case OpI32Const, OpI64Const, OpRefNull:
		_, err := r.ReadS64()
		return err

	case OpF32Const:
		return r.Skip(4)

	case OpF64Const:
		return r.Skip(8)

	case OpPrefixMisc:
		return skipMiscImmediates(r, sub)

	case OpPrefixSIMD:
		return skipSIMDImmediates(r, sub)

	case OpPrefixAtomic:
		if sub == AtomicFence {
			return r.Skip(1)
		}
		return skipMemArg(r)

	case OpPrefixGC:
		return skipGCImmediates(r, sub)
	}

	return fmt.Errorf("unknown opcode: 0x%02x", op)
}

func skipU32s(r *binary.Reader, n int) error {
	for i := 0; i < n; i++ {
		if _, err := r.ReadU32(); err != nil {
			return err
		}
	}
	return nil
}

// skipMemArg skips a memarg. Bit 6 of the alignment marks an explicit
// memory index (multi-memory).
func skipMemArg(r *binary.Reader) error {
	align, err := r.ReadU32()
	if err != nil {
		return err
	}
	if align&memArgMultiMemBit != 0 {
		if _, err := r.ReadU32(); err != nil {
			return err
		}
	}
	_, err = r.ReadU64()
	return err
}

func skipMiscImmediates(r *binary.Reader, sub uint32) error {
	switch sub {
	case MiscMemoryInit, MiscMemoryCopy, MiscTableInit, MiscTableCopy:
		return skipU32s(r, 2)
	case MiscDataDrop, MiscMemoryFill, MiscElemDrop,
		MiscTableGrow, MiscTableSize, MiscTableFill, MiscMemoryDiscard:
		return skipU32s(r, 1)
	}
	if sub <= MiscI64TruncSatF64U {
		return nil
	}
	return fmt.Errorf("unknown 0xFC sub-opcode: 0x%02x", sub)
}

func skipSIMDImmediates(r *binary.Reader, sub uint32) error {
	switch {
	case sub <= SimdV128Load64Splat || sub == SimdV128Store:
		return skipMemArg(r)
	case sub == SimdV128Const || sub == SimdI8x16Shuffle:
		return r.Skip(16)
	case sub >= SimdI8x16ExtractLaneS && sub <= SimdF64x2ReplaceLane:
		return r.Skip(1)
	case sub >= SimdV128Load8Lane && sub <= SimdV128Store64Lane:
		if err := skipMemArg(r); err != nil {
			return err
		}
		return r.Skip(1)
	case sub == SimdV128Load32Zero || sub == SimdV128Load64Zero:
		return skipMemArg(r)
	}
	return nil
}

func skipGCImmediates(r *binary.Reader, sub uint32) error {
	switch sub {
	case GCStructNew, GCStructNewDefault,
		GCArrayNew, GCArrayNewDefault, GCArrayGet, GCArrayGetS, GCArrayGetU,
		GCArraySet, GCArrayFill:
		return skipU32s(r, 1)

	case GCStructGet, GCStructGetS, GCStructGetU, GCStructSet,
		GCArrayNewFixed, GCArrayNewData, GCArrayInitData,
		GCArrayNewElem, GCArrayInitElem, GCArrayCopy:
		return skipU32s(r, 2)

	case GCRefTest, GCRefTestNull, GCRefCast, GCRefCastNull:
		_, err := r.ReadS64()
		return err

	case GCBrOnCast, GCBrOnCastFail:
		if _, err := r.ReadByte(); err != nil {
			return err
		}
		if err := skipU32s(r, 1); err != nil {
			return err
		}
		if _, err := r.ReadS64(); err != nil {
			return err
		}
		_, err := r.ReadS64()
		return err

	case GCArrayLen, GCAnyConvertExtern, GCExternConvertAny,
		GCRefI31, GCI31GetS, GCI31GetU:
		return nil
	}
	return fmt.Errorf("unknown 0xFB sub-opcode: 0x%02x", sub)
}
