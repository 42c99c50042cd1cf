package pipeline

import (
	"github.com/wippyai/wasm-rebind/platform"
	"github.com/wippyai/wasm-rebind/wasm"
)

// Site is the instruction a rule is asked about.
type Site struct {
	Module *wasm.Module
	Instr  wasm.Instruction
	// Pos is the instruction's position in the body snapshot.
	Pos int
	// Func is the function index of the body.
	Func uint32
	// PlatformChanged reports whether the module's stale references were
	// swapped before the scan.
	PlatformChanged bool
}

// Finder flags instructions that cannot run on the target platform.
type Finder interface {
	Description() string
	Matches(site Site) bool
}

// Rewriter patches instructions through an Editor.
type Rewriter interface {
	Description() string
	Matches(site Site) bool
	Apply(site Site, ed *Editor, pm *platform.Map)
}

// FieldAccessKind is one of the four field-access instructions.
type FieldAccessKind int

const (
	StaticLoad    FieldAccessKind = iota // global.get
	StaticStore                          // global.set
	InstanceLoad                         // struct.get, struct.get_s, struct.get_u
	InstanceStore                        // struct.set
)

func (k FieldAccessKind) String() string {
	switch k {
	case StaticLoad:
		return "global.get"
	case StaticStore:
		return "global.set"
	case InstanceLoad:
		return "struct.get"
	case InstanceStore:
		return "struct.set"
	default:
		return "unknown"
	}
}

// Static reports whether the access targets a global.
func (k FieldAccessKind) Static() bool {
	return k == StaticLoad || k == StaticStore
}

// Store reports whether the access writes.
func (k FieldAccessKind) Store() bool {
	return k == StaticStore || k == InstanceStore
}

// FieldAccess is a decoded field-access instruction. Index is the global
// index for static accesses and the field index for instance accesses;
// TypeIndex is the struct type of instance accesses.
type FieldAccess struct {
	Kind      FieldAccessKind
	Index     uint32
	TypeIndex uint32
}

// FieldAccessOf returns the field access performed by instr, if any.
func FieldAccessOf(instr wasm.Instruction) (FieldAccess, bool) {
	switch instr.Opcode {
	case wasm.OpGlobalGet, wasm.OpGlobalSet:
		idx, ok := instr.GlobalIndex()
		if !ok {
			return FieldAccess{}, false
		}
		kind := StaticLoad
		if instr.Opcode == wasm.OpGlobalSet {
			kind = StaticStore
		}
		return FieldAccess{Kind: kind, Index: idx}, true
	case wasm.OpPrefixGC:
		typeIdx, fieldIdx, ok := instr.StructField()
		if !ok {
			return FieldAccess{}, false
		}
		kind := InstanceLoad
		if instr.IsGC(wasm.GCStructSet) {
			kind = InstanceStore
		}
		return FieldAccess{Kind: kind, Index: fieldIdx, TypeIndex: typeIdx}, true
	}
	return FieldAccess{}, false
}

// FieldPredicate decides field-access matches. MatchesField is only
// called for the four field-access instructions.
type FieldPredicate interface {
	Description() string
	MatchesField(site Site, access FieldAccess) bool
}

// FieldRewriteRule is a FieldPredicate that also patches the access.
type FieldRewriteRule interface {
	FieldPredicate
	Apply(site Site, ed *Editor, pm *platform.Map)
}

// FieldFinder is a Finder over field-access instructions.
type FieldFinder struct {
	Predicate FieldPredicate
}

// NewFieldFinder wraps p as a Finder.
func NewFieldFinder(p FieldPredicate) *FieldFinder {
	return &FieldFinder{Predicate: p}
}

func (f *FieldFinder) Description() string {
	return f.Predicate.Description()
}

func (f *FieldFinder) Matches(site Site) bool {
	access, ok := FieldAccessOf(site.Instr)
	if !ok {
		return false
	}
	return f.Predicate.MatchesField(site, access)
}

// FieldRewriter is a Rewriter over field-access instructions.
type FieldRewriter struct {
	Rule FieldRewriteRule
}

// NewFieldRewriter wraps r as a Rewriter.
func NewFieldRewriter(r FieldRewriteRule) *FieldRewriter {
	return &FieldRewriter{Rule: r}
}

func (f *FieldRewriter) Description() string {
	return f.Rule.Description()
}

func (f *FieldRewriter) Matches(site Site) bool {
	access, ok := FieldAccessOf(site.Instr)
	if !ok {
		return false
	}
	return f.Rule.MatchesField(site, access)
}

func (f *FieldRewriter) Apply(site Site, ed *Editor, pm *platform.Map) {
	f.Rule.Apply(site, ed, pm)
}
