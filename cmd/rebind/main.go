// Command rebind loads a WebAssembly module and its local dependencies
// into a wazero runtime, retargeting wasi_unstable imports to
// wasi_snapshot_preview1 on the way.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-rebind/loader"
	"github.com/wippyai/wasm-rebind/pipeline"
	"github.com/wippyai/wasm-rebind/platform"
	"github.com/wippyai/wasm-rebind/resolve"
	"github.com/wippyai/wasm-rebind/rules"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(args, stderr)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	resolve.SetLogger(logger)
	pipeline.SetLogger(logger)
	loader.SetLogger(logger)

	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	reg := loader.NewWazeroRegistry(rt).
		WithModuleConfig(wazero.NewModuleConfig().WithStartFunctions().WithStdout(stdout).WithStderr(stderr))
	if err := reg.WithWASI(ctx); err != nil {
		return fmt.Errorf("instantiate WASI: %w", err)
	}

	pm, err := platformMap(cfg, reg)
	if err != nil {
		return err
	}

	if cfg.printPlatform {
		data, err := platform.Marshal(pm)
		if err != nil {
			return err
		}
		_, err = stdout.Write(data)
		return err
	}

	set := rules.Default(pm)
	if cfg.rulesFile != "" {
		extra, err := rules.LoadFile(cfg.rulesFile)
		if err != nil {
			return err
		}
		set = set.Append(extra)
	}

	opts := loader.DefaultOptions()
	opts.Logger = logger
	opts.Rules = &set
	l := loader.New(reg, pm, opts)

	mod, loadErr := l.Load(ctx, cfg.entry, cfg.assumeCompatible)
	writeReport(stdout, cfg.entry, l.Report(), loadErr)
	if cfg.dump {
		spew.Fdump(stdout, l.Report())
	}
	if loadErr != nil {
		return loadErr
	}

	logger.Info("loaded", zap.String("module", mod.Name()), zap.Strings("registry", reg.Names()))

	if cfg.call != "" {
		return callExport(ctx, stdout, mod, cfg.call, cfg.callArgs)
	}
	return nil
}

// platformMap returns the map from -platform, or the built-in WASI
// retargeting whose type table is read from the live host module.
func platformMap(cfg *config, reg *loader.WazeroRegistry) (*platform.Map, error) {
	if cfg.platformFile != "" {
		return platform.LoadFile(cfg.platformFile)
	}
	table, ok := reg.ExportTable(wasi_snapshot_preview1.ModuleName)
	if !ok {
		return nil, fmt.Errorf("%s not registered", wasi_snapshot_preview1.ModuleName)
	}
	return platform.WASIPreview1(table), nil
}

func callExport(ctx context.Context, w io.Writer, mod api.Module, name string, args []uint64) error {
	fn := mod.ExportedFunction(name)
	if fn == nil {
		return fmt.Errorf("function %q not exported by %s", name, mod.Name())
	}
	if want := len(fn.Definition().ParamTypes()); want != len(args) {
		return fmt.Errorf("function %q takes %d arguments, got %d", name, want, len(args))
	}
	res, err := fn.Call(ctx, args...)
	if err != nil {
		return fmt.Errorf("call %s: %w", name, err)
	}
	fmt.Fprintf(w, "%s%v = %v\n", name, args, res)
	return nil
}
