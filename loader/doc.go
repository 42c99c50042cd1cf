// Package loader commits rewritten modules into a registry.
//
// Load resolves the entry module's local dependency closure, swaps stale
// platform references, scans every body with the rule pipeline and
// commits each module leaves first. Unchanged modules are committed from
// their original bytes.
//
//	rt := wazero.NewRuntime(ctx)
//	reg := loader.NewWazeroRegistry(rt)
//	if err := reg.WithWASI(ctx); err != nil { ... }
//	table, _ := reg.ExportTable(wasi_snapshot_preview1.ModuleName)
//
//	l := loader.New(reg, platform.WASIPreview1(table), loader.DefaultOptions())
//	mod, err := l.Load(ctx, "app.wasm", false)
//
// ResolveFallback maps qualified names such as "lib@1.2.0" back to a
// registered module.
package loader
