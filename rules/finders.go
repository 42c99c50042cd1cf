package rules

import (
	"fmt"

	"github.com/wippyai/wasm-rebind/pipeline"
	"github.com/wippyai/wasm-rebind/platform"
	"github.com/wippyai/wasm-rebind/wasm"
)

// StaleImportCall flags calls to functions still imported from a removed
// platform reference. It only fires once the platform changed, so it
// catches the imports the target platform does not export.
type StaleImportCall struct {
	PM *platform.Map
}

func (r StaleImportCall) Description() string {
	return fmt.Sprintf("call to function imported from removed platform %v", r.PM.RemoveList())
}

func (r StaleImportCall) Matches(site pipeline.Site) bool {
	if !site.PlatformChanged {
		return false
	}
	idx, ok := site.Instr.CallTarget()
	if !ok {
		return false
	}
	imp, ok := site.Module.FuncImport(idx)
	return ok && r.PM.Removes(imp.Module)
}

// StaleGlobalAccess flags reads and writes of globals still imported from
// a removed platform reference.
type StaleGlobalAccess struct {
	PM *platform.Map
}

func (r StaleGlobalAccess) Description() string {
	return fmt.Sprintf("access to global imported from removed platform %v", r.PM.RemoveList())
}

func (r StaleGlobalAccess) MatchesField(site pipeline.Site, access pipeline.FieldAccess) bool {
	if !site.PlatformChanged || !access.Kind.Static() {
		return false
	}
	imp, ok := site.Module.GlobalImport(access.Index)
	return ok && r.PM.Removes(imp.Module)
}

// StructField identifies a field of a GC struct type.
type StructField struct {
	Type  uint32 `yaml:"type"`
	Field uint32 `yaml:"field"`
}

// StructFieldAccess flags struct.get and struct.set on listed fields.
type StructFieldAccess struct {
	Reason string
	Fields map[StructField]struct{}
}

// NewStructFieldAccess creates a StructFieldAccess for fields.
func NewStructFieldAccess(reason string, fields ...StructField) *StructFieldAccess {
	set := make(map[StructField]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return &StructFieldAccess{Reason: reason, Fields: set}
}

func (r *StructFieldAccess) Description() string {
	if r.Reason == "" {
		return "access to unsupported struct field"
	}
	return "access to unsupported struct field: " + r.Reason
}

func (r *StructFieldAccess) MatchesField(_ pipeline.Site, access pipeline.FieldAccess) bool {
	if access.Kind.Static() {
		return false
	}
	_, ok := r.Fields[StructField{Type: access.TypeIndex, Field: access.Index}]
	return ok
}

// callImport returns the import a call instruction targets.
func callImport(m *wasm.Module, instr wasm.Instruction) (*wasm.Import, bool) {
	idx, ok := instr.CallTarget()
	if !ok {
		return nil, false
	}
	return m.FuncImport(idx)
}
