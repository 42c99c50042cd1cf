package pipeline

import (
	"github.com/wippyai/wasm-rebind/wasm"
)

// Editor records edits against an immutable instruction snapshot.
// Positions always refer to the snapshot, so edits made while iterating
// never shift the positions of instructions not yet visited.
//
// Positions outside the snapshot panic.
type Editor struct {
	snapshot []wasm.Instruction
	before   map[int][]wasm.Instruction
	after    map[int][]wasm.Instruction
	replaced map[int][]wasm.Instruction
}

// NewEditor creates an editor over a copy of snapshot.
func NewEditor(snapshot []wasm.Instruction) *Editor {
	return &Editor{
		snapshot: append([]wasm.Instruction(nil), snapshot...),
		before:   make(map[int][]wasm.Instruction),
		after:    make(map[int][]wasm.Instruction),
		replaced: make(map[int][]wasm.Instruction),
	}
}

// Len returns the snapshot length.
func (e *Editor) Len() int {
	return len(e.snapshot)
}

// At returns the snapshot instruction at pos.
func (e *Editor) At(pos int) wasm.Instruction {
	return e.snapshot[pos]
}

func (e *Editor) check(pos int) {
	if pos < 0 || pos >= len(e.snapshot) {
		panic("pipeline: editor position out of range")
	}
}

// Replace replaces the instruction at pos. A later Replace or Remove at
// the same position wins.
func (e *Editor) Replace(pos int, instrs ...wasm.Instruction) {
	e.check(pos)
	e.replaced[pos] = append([]wasm.Instruction{}, instrs...)
}

// Remove deletes the instruction at pos.
func (e *Editor) Remove(pos int) {
	e.Replace(pos)
}

// InsertBefore inserts instructions ahead of pos, after any inserted earlier.
func (e *Editor) InsertBefore(pos int, instrs ...wasm.Instruction) {
	e.check(pos)
	e.before[pos] = append(e.before[pos], instrs...)
}

// InsertAfter inserts instructions behind pos, after any inserted earlier.
func (e *Editor) InsertAfter(pos int, instrs ...wasm.Instruction) {
	e.check(pos)
	e.after[pos] = append(e.after[pos], instrs...)
}

// Dirty reports whether any edit was recorded.
func (e *Editor) Dirty() bool {
	return len(e.before) > 0 || len(e.after) > 0 || len(e.replaced) > 0
}

// Result materializes the edited sequence. For each position it emits the
// inserted-before instructions, the replacement or original instruction,
// then the inserted-after instructions.
func (e *Editor) Result() []wasm.Instruction {
	if !e.Dirty() {
		return append([]wasm.Instruction(nil), e.snapshot...)
	}
	out := make([]wasm.Instruction, 0, len(e.snapshot)+len(e.before)+len(e.after))
	for pos, instr := range e.snapshot {
		out = append(out, e.before[pos]...)
		if repl, ok := e.replaced[pos]; ok {
			out = append(out, repl...)
		} else {
			out = append(out, instr)
		}
		out = append(out, e.after[pos]...)
	}
	return out
}
