package rules_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-rebind/errors"
	"github.com/wippyai/wasm-rebind/pipeline"
	"github.com/wippyai/wasm-rebind/platform"
	"github.com/wippyai/wasm-rebind/rules"
	"github.com/wippyai/wasm-rebind/wasm"
)

var i32 = []wasm.ValType{wasm.ValI32}

func parse(t *testing.T, b *wasm.Builder) *wasm.Module {
	t.Helper()
	m, err := wasm.ParseModule(b.Bytes())
	require.NoError(t, err)
	return m
}

func body(t *testing.T, m *wasm.Module, i int) []string {
	t.Helper()
	instrs, err := wasm.DecodeInstructions(m.Code[i].Code)
	require.NoError(t, err)
	out := make([]string, len(instrs))
	for j, in := range instrs {
		out[j] = in.String()
	}
	return out
}

func run(t *testing.T, s rules.Set, m *wasm.Module, platformChanged, tolerate bool) (bool, error) {
	t.Helper()
	p := pipeline.New(platform.New(), s.Finders, s.Rewriters, pipeline.Options{})
	require.Len(t, p.Finders(), len(s.Finders))
	require.Len(t, p.Rewriters(), len(s.Rewriters))
	return p.Run("app", m, platformChanged, tolerate)
}

func TestStaleImportCall(t *testing.T) {
	pm := platform.New().Remove("wasi_unstable")

	b := wasm.NewBuilder("app")
	stale := b.ImportFunc("wasi_unstable", "legacy", nil, nil)
	fresh := b.ImportFunc("wasi_snapshot_preview1", "fd_write", nil, nil)
	b.AddFunc(nil, nil, nil, wasm.Call(fresh), wasm.Call(stale))
	m := parse(t, b)

	_, err := run(t, rules.Default(pm), m, true, false)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrIncompatibleInstruction))
	assert.Contains(t, err.Error(), "wasi_unstable")

	_, err = run(t, rules.Default(pm), m, false, false)
	assert.NoError(t, err, "finder only fires after a platform change")
}

func TestStaleGlobalAccess(t *testing.T) {
	pm := platform.New().Remove("wasi_unstable")

	b := wasm.NewBuilder("app")
	keep := b.ImportGlobal("env", "ok", wasm.ValI32, false)
	stale := b.ImportGlobal("wasi_unstable", "errno", wasm.ValI32, true)
	b.AddFunc(nil, nil, nil, wasm.GlobalGet(keep), wasm.GlobalSet(stale))
	m := parse(t, b)

	f := pipeline.NewFieldFinder(rules.StaleGlobalAccess{PM: pm})
	assert.False(t, f.Matches(pipeline.Site{Module: m, Instr: wasm.GlobalGet(keep), PlatformChanged: true}))
	assert.True(t, f.Matches(pipeline.Site{Module: m, Instr: wasm.GlobalSet(stale), PlatformChanged: true}))
	assert.False(t, f.Matches(pipeline.Site{Module: m, Instr: wasm.Call(0), PlatformChanged: true}))
}

func TestStructFieldAccess(t *testing.T) {
	r := rules.NewStructFieldAccess("layout changed", rules.StructField{Type: 2, Field: 1})
	f := pipeline.NewFieldFinder(r)

	assert.True(t, f.Matches(pipeline.Site{Instr: wasm.StructGet(2, 1)}))
	assert.True(t, f.Matches(pipeline.Site{Instr: wasm.StructSet(2, 1)}))
	assert.False(t, f.Matches(pipeline.Site{Instr: wasm.StructGet(2, 0)}))
	assert.False(t, f.Matches(pipeline.Site{Instr: wasm.GlobalGet(1)}))
	assert.Equal(t, "access to unsupported struct field: layout changed", f.Description())
}

func TestRedirectCall(t *testing.T) {
	b := wasm.NewBuilder("app")
	seek := b.ImportFunc("wasi_snapshot_preview1", "fd_seek", i32, i32)
	b.ImportFunc("env", "fd_seek_compat", i32, i32)
	b.ImportFunc("env", "wrong_sig", nil, nil)
	b.AddFunc(nil, nil, nil, wasm.I32Const(0), wasm.Call(seek), wasm.Op(wasm.OpDrop))
	m := parse(t, b)

	s := rules.Set{Rewriters: []pipeline.Rewriter{
		rules.RedirectCall{From: rules.ImportRef{Name: "fd_seek"}, To: rules.ImportRef{Name: "wrong_sig"}},
		rules.RedirectCall{From: rules.ImportRef{Name: "fd_seek"}, To: rules.ImportRef{Module: "env", Name: "fd_seek_compat"}},
	}}
	changed, err := run(t, s, m, false, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"i32.const 0", "call 1", "drop", "end"}, body(t, m, 0))
}

func TestGlobalConstant(t *testing.T) {
	b := wasm.NewBuilder("app")
	g := b.ImportGlobal("env", "__errno", wasm.ValI64, true)
	b.AddFunc(nil, nil, nil, wasm.GlobalGet(g), wasm.GlobalSet(g))
	m := parse(t, b)

	s := rules.Set{Rewriters: []pipeline.Rewriter{
		pipeline.NewFieldRewriter(rules.GlobalConstant{Global: rules.ImportRef{Name: "__errno"}, Value: 5}),
	}}
	changed, err := run(t, s, m, false, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"i64.const 5", "drop", "end"}, body(t, m, 0))
}

func TestTrapCall(t *testing.T) {
	b := wasm.NewBuilder("app")
	acc := b.ImportFunc("wasi_unstable", "sock_accept", []wasm.ValType{wasm.ValI32, wasm.ValI32}, i32)
	b.AddFunc(nil, nil, nil, wasm.I32Const(1), wasm.I32Const(2), wasm.Call(acc), wasm.Op(wasm.OpDrop))
	m := parse(t, b)

	s := rules.Set{Rewriters: []pipeline.Rewriter{rules.TrapCall{Func: rules.ImportRef{Name: "sock_accept"}}}}
	_, err := run(t, s, m, false, false)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"i32.const 1", "i32.const 2", "drop", "drop", "unreachable", "drop", "end",
	}, body(t, m, 0))
}

func TestParseRuleFile(t *testing.T) {
	data := []byte(`
redirects:
  - {from: {name: fd_seek}, to: {module: env, name: fd_seek_compat}}
constants:
  - {global: {name: __errno}, value: 0}
traps:
  - {name: sock_accept}
blocked_fields:
  reason: layout
  fields: [{type: 1, field: 0}]
`)
	s, err := rules.Parse(data)
	require.NoError(t, err)
	require.Len(t, s.Finders, 1)
	require.Len(t, s.Rewriters, 3)
	assert.Equal(t, "redirect calls of fd_seek to env.fd_seek_compat", s.Rewriters[0].Description())
	assert.Equal(t, "replace global __errno with constant 0", s.Rewriters[1].Description())
	assert.Equal(t, "trap on calls of sock_accept", s.Rewriters[2].Description())
}

func TestParseRuleFileInvalid(t *testing.T) {
	_, err := rules.Parse([]byte("traps: [{module: env}]"))
	require.Error(t, err)

	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, errors.KindInvalidInput, e.Kind)
	assert.Equal(t, []string{"traps", "0"}, e.Path)
	assert.Equal(t, "trap needs a name", e.Detail)
	assert.Equal(t, "[config] invalid_input at traps/0: trap needs a name", e.Error())

	_, err = rules.Parse([]byte("traps: {"))
	assert.Error(t, err)
}

func TestDefaultAppend(t *testing.T) {
	pm := platform.New()
	s := rules.Default(pm).Append(rules.Set{Rewriters: []pipeline.Rewriter{rules.TrapCall{}}})
	assert.Len(t, s.Finders, 2)
	assert.Len(t, s.Rewriters, 1)
}
