// Package wasm decodes and re-encodes WebAssembly core modules for
// rewriting.
//
// Decoding is section-preserving: imports, exports, signatures and code
// bodies are decoded into structured fields, and every other section is
// kept as raw bytes. Encode regenerates the structured sections and
// writes the rest back unchanged, so a module whose imports and bodies
// were not touched encodes to its original bytes.
//
// # Parsing
//
//	data, _ := os.ReadFile("module.wasm")
//	m, err := wasm.ParseModule(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// The module name comes from the "name" custom section. References lists
// the distinct import namespaces in first-appearance order.
//
// # Instructions
//
// Function bodies are decoded on demand. Immediates stay in encoded form
// so untouched instructions round-trip exactly:
//
//	instrs, err := wasm.DecodeInstructions(m.Code[0].Code)
//	for _, in := range instrs {
//	    if idx, ok := in.CallTarget(); ok {
//	        ...
//	    }
//	}
//	m.Code[0].Code = wasm.EncodeInstructions(instrs)
//
// # Building
//
// Builder assembles small modules from signatures, imports, globals and
// instruction lists:
//
//	b := wasm.NewBuilder("app")
//	exit := b.ImportFunc("wasi_unstable", "proc_exit", []wasm.ValType{wasm.ValI32}, nil)
//	run := b.AddFunc(nil, nil, nil, wasm.I32Const(0), wasm.Call(exit))
//	b.ExportFunc("_start", run)
//	bin := b.Bytes()
package wasm
