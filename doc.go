// Package rebind retargets WebAssembly core modules built against a stale
// host platform onto a current one and loads them into a wazero runtime.
//
// A module built for wasi_unstable imports its host functions from that
// namespace. Rebinding drops the stale namespace, adds the target one and
// repoints every import whose name the target exports. Instructions that
// still reach the stale platform are reported, or rewritten by user rules,
// before the module is committed.
//
// # Architecture Overview
//
//	rebind/
//	├── wasm/      Core module codec, instruction stream, fixture builder
//	├── platform/  Platform maps, type tables, YAML map files
//	├── resolve/   Dependency discovery in the entry module's directory
//	├── rewrite/   Reference swap and import repointing
//	├── pipeline/  Finder/rewriter scan over function bodies
//	├── rules/     Built-in and YAML-configured finders and rewriters
//	├── loader/    Leaf-first commit into a Registry (wazero)
//	├── errors/    Structured error types
//	└── cmd/rebind Command-line loader
//
// # Quick Start
//
//	rt := wazero.NewRuntime(ctx)
//	defer rt.Close(ctx)
//
//	reg := loader.NewWazeroRegistry(rt)
//	if err := reg.WithWASI(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	table, _ := reg.ExportTable(wasi_snapshot_preview1.ModuleName)
//
//	l := loader.New(reg, platform.WASIPreview1(table), loader.DefaultOptions())
//	mod, err := l.Load(ctx, "app.wasm", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := mod.ExportedFunction("run").Call(ctx, 21)
//
// # Load Order
//
// Dependencies are the import namespaces that match a .wasm file next to
// the entry module. They are committed depth-first, leaves before the
// modules that import them. A failure stops the load; modules committed
// before it stay registered.
//
// # Thread Safety
//
// WazeroRegistry is safe for concurrent use. Loader is not; use one per
// goroutine or synchronize Load calls.
package rebind
