package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-rebind/pipeline"
	"github.com/wippyai/wasm-rebind/wasm"
)

func render(instrs []wasm.Instruction) []string {
	out := make([]string, len(instrs))
	for i, in := range instrs {
		out[i] = in.String()
	}
	return out
}

func TestEditorUntouched(t *testing.T) {
	snap := []wasm.Instruction{wasm.I32Const(1), wasm.Op(wasm.OpDrop)}
	ed := pipeline.NewEditor(snap)

	assert.False(t, ed.Dirty())
	assert.Equal(t, snap, ed.Result())
	assert.Equal(t, 2, ed.Len())
	assert.Equal(t, "drop", ed.At(1).String())
}

func TestEditorMaterializationOrder(t *testing.T) {
	snap := []wasm.Instruction{wasm.I32Const(1), wasm.Call(0), wasm.Op(wasm.OpEnd)}
	ed := pipeline.NewEditor(snap)

	ed.InsertAfter(1, wasm.I32Const(9))
	ed.InsertBefore(1, wasm.Op(wasm.OpDrop))
	ed.Replace(1, wasm.Op(wasm.OpUnreachable))
	ed.InsertBefore(1, wasm.Op(wasm.OpNop))

	require.True(t, ed.Dirty())
	assert.Equal(t, []string{
		"i32.const 1",
		"drop", "nop",
		"unreachable",
		"i32.const 9",
		"end",
	}, render(ed.Result()))
}

func TestEditorPositionsReferToSnapshot(t *testing.T) {
	snap := []wasm.Instruction{wasm.Call(0), wasm.Call(1), wasm.Call(2)}
	ed := pipeline.NewEditor(snap)

	ed.InsertBefore(0, wasm.I32Const(0), wasm.I32Const(0))
	ed.Remove(1)
	ed.Replace(2, wasm.Call(7))

	assert.Equal(t, []string{"i32.const 0", "i32.const 0", "call 0", "call 7"}, render(ed.Result()))
	assert.Equal(t, "call 1", ed.At(1).String(), "snapshot is immutable")
}

func TestEditorCopiesSnapshot(t *testing.T) {
	snap := []wasm.Instruction{wasm.Call(0)}
	ed := pipeline.NewEditor(snap)
	snap[0] = wasm.Op(wasm.OpNop)

	assert.Equal(t, "call 0", ed.At(0).String())
}

func TestEditorLaterReplaceWins(t *testing.T) {
	ed := pipeline.NewEditor([]wasm.Instruction{wasm.Call(0)})
	ed.Remove(0)
	ed.Replace(0, wasm.Op(wasm.OpNop))

	assert.Equal(t, []string{"nop"}, render(ed.Result()))
}

func TestEditorOutOfRangePanics(t *testing.T) {
	ed := pipeline.NewEditor([]wasm.Instruction{wasm.Call(0)})
	assert.Panics(t, func() { ed.Replace(1) })
	assert.Panics(t, func() { ed.InsertBefore(-1, wasm.Op(wasm.OpNop)) })
}
