package rules

import (
	"fmt"

	"github.com/wippyai/wasm-rebind/pipeline"
	"github.com/wippyai/wasm-rebind/platform"
	"github.com/wippyai/wasm-rebind/wasm"
)

// ImportRef names an import by field name, optionally restricted to a
// namespace. An empty Module matches any namespace, which keeps rules
// valid after imports were repointed.
type ImportRef struct {
	Module string `yaml:"module,omitempty"`
	Name   string `yaml:"name"`
}

func (r ImportRef) String() string {
	if r.Module == "" {
		return r.Name
	}
	return r.Module + "." + r.Name
}

func (r ImportRef) matches(imp *wasm.Import) bool {
	return imp.Name == r.Name && (r.Module == "" || imp.Module == r.Module)
}

func (r ImportRef) find(m *wasm.Module, kind byte) (uint32, *wasm.Import, bool) {
	var idx uint32
	for i := range m.Imports {
		imp := &m.Imports[i]
		if imp.Kind != kind {
			continue
		}
		if r.matches(imp) {
			return idx, imp, true
		}
		idx++
	}
	return 0, nil, false
}

// RedirectCall retargets calls of one imported function to another import
// of the same module with an identical signature.
type RedirectCall struct {
	From ImportRef
	To   ImportRef
}

func (r RedirectCall) Description() string {
	return fmt.Sprintf("redirect calls of %s to %s", r.From, r.To)
}

func (r RedirectCall) Matches(site pipeline.Site) bool {
	imp, ok := callImport(site.Module, site.Instr)
	if !ok || !r.From.matches(imp) {
		return false
	}
	_, ok = r.target(site.Module, imp)
	return ok
}

func (r RedirectCall) target(m *wasm.Module, from *wasm.Import) (uint32, bool) {
	idx, _, ok := r.To.find(m, wasm.KindFunc)
	if !ok {
		return 0, false
	}
	fromIdx, _ := m.FindFuncImport(from.Module, from.Name)
	want, ok := m.FuncType(fromIdx)
	if !ok {
		return 0, false
	}
	got, ok := m.FuncType(idx)
	if !ok || !want.Equal(got) {
		return 0, false
	}
	return idx, true
}

func (r RedirectCall) Apply(site pipeline.Site, ed *pipeline.Editor, _ *platform.Map) {
	imp, ok := callImport(site.Module, site.Instr)
	if !ok {
		return
	}
	idx, ok := r.target(site.Module, imp)
	if !ok {
		return
	}
	ed.Replace(site.Pos, wasm.Indexed(site.Instr.Opcode, idx))
}

// GlobalConstant replaces reads of an imported global with a constant and
// drops the value of writes to it.
type GlobalConstant struct {
	Global ImportRef
	Value  float64
}

func (r GlobalConstant) Description() string {
	return fmt.Sprintf("replace global %s with constant %v", r.Global, r.Value)
}

func (r GlobalConstant) MatchesField(site pipeline.Site, access pipeline.FieldAccess) bool {
	if !access.Kind.Static() {
		return false
	}
	imp, ok := site.Module.GlobalImport(access.Index)
	if !ok || !r.Global.matches(imp) {
		return false
	}
	if access.Kind == pipeline.StaticStore {
		return true
	}
	_, ok = wasm.ConstFor(imp.GlobalType, r.Value)
	return ok
}

func (r GlobalConstant) Apply(site pipeline.Site, ed *pipeline.Editor, _ *platform.Map) {
	access, ok := pipeline.FieldAccessOf(site.Instr)
	if !ok {
		return
	}
	if access.Kind == pipeline.StaticStore {
		ed.Replace(site.Pos, wasm.Op(wasm.OpDrop))
		return
	}
	imp, ok := site.Module.GlobalImport(access.Index)
	if !ok {
		return
	}
	if c, ok := wasm.ConstFor(imp.GlobalType, r.Value); ok {
		ed.Replace(site.Pos, c)
	}
}

// TrapCall replaces calls of an imported function with a trap. The call's
// arguments are dropped first so the stack stays balanced for validation.
type TrapCall struct {
	Func ImportRef
}

func (r TrapCall) Description() string {
	return fmt.Sprintf("trap on calls of %s", r.Func)
}

func (r TrapCall) Matches(site pipeline.Site) bool {
	imp, ok := callImport(site.Module, site.Instr)
	return ok && r.Func.matches(imp)
}

func (r TrapCall) Apply(site pipeline.Site, ed *pipeline.Editor, _ *platform.Map) {
	idx, _ := site.Instr.CallTarget()
	sig, ok := site.Module.FuncType(idx)
	if ok {
		for range sig.Params {
			ed.InsertBefore(site.Pos, wasm.Op(wasm.OpDrop))
		}
	}
	ed.Replace(site.Pos, wasm.Op(wasm.OpUnreachable))
}
