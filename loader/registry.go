package loader

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-rebind/platform"
	"github.com/wippyai/wasm-rebind/wasm"
)

// Registry is the namespace modules are committed into.
type Registry interface {
	// Has reports whether a module named name is registered.
	Has(name string) bool
	// Names returns registered names in registration order.
	Names() []string
	// Commit registers a module binary under name.
	Commit(ctx context.Context, name string, bin []byte) (api.Module, error)
	// Module returns the handle of a registered module, or nil.
	Module(name string) api.Module
}

// StubFunc is a function import that no registered module provides.
type StubFunc struct {
	Name    string
	Params  []wasm.ValType
	Results []wasm.ValType
}

// Stubber is implemented by registries that can register a module whose
// functions trap when called, so that a module with imports nobody
// provides still links.
type Stubber interface {
	Stub(ctx context.Context, name string, funcs []StubFunc) error
}

// ErrStubCalled is the panic value of a stubbed function.
var ErrStubCalled = stderrors.New("stubbed import called")

// WazeroRegistry is a Registry backed by a wazero runtime.
// Thread-safe.
type WazeroRegistry struct {
	runtime wazero.Runtime
	config  wazero.ModuleConfig
	modules map[string]api.Module
	names   []string
	mu      sync.RWMutex
}

// NewWazeroRegistry creates a registry over rt. Committed modules are
// instantiated without running start functions so that loading a
// command module does not execute it.
func NewWazeroRegistry(rt wazero.Runtime) *WazeroRegistry {
	return &WazeroRegistry{
		runtime: rt,
		config:  wazero.NewModuleConfig().WithStartFunctions(),
		modules: make(map[string]api.Module),
	}
}

// WithModuleConfig sets the configuration committed modules are
// instantiated with. The module name is always overridden.
func (r *WazeroRegistry) WithModuleConfig(cfg wazero.ModuleConfig) *WazeroRegistry {
	r.config = cfg
	return r
}

// Runtime returns the wazero runtime.
func (r *WazeroRegistry) Runtime() wazero.Runtime {
	return r.runtime
}

// WithWASI instantiates the wasi_snapshot_preview1 host module and
// registers it.
func (r *WazeroRegistry) WithWASI(ctx context.Context) error {
	if r.Has(wasi_snapshot_preview1.ModuleName) {
		return nil
	}
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r.runtime); err != nil {
		return fmt.Errorf("instantiate %s: %w", wasi_snapshot_preview1.ModuleName, err)
	}
	mod := r.runtime.Module(wasi_snapshot_preview1.ModuleName)

	r.mu.Lock()
	r.track(wasi_snapshot_preview1.ModuleName, mod)
	r.mu.Unlock()

	Logger().Debug("registered host module", zap.String("module", wasi_snapshot_preview1.ModuleName))
	return nil
}

func (r *WazeroRegistry) track(name string, mod api.Module) {
	if _, ok := r.modules[name]; !ok {
		r.names = append(r.names, name)
	}
	r.modules[name] = mod
}

func (r *WazeroRegistry) Has(name string) bool {
	return r.Module(name) != nil
}

func (r *WazeroRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

func (r *WazeroRegistry) Module(name string) api.Module {
	r.mu.RLock()
	mod, ok := r.modules[name]
	r.mu.RUnlock()
	if ok {
		return mod
	}
	if mod := r.runtime.Module(name); mod != nil {
		return mod
	}
	return nil
}

func (r *WazeroRegistry) Commit(ctx context.Context, name string, bin []byte) (api.Module, error) {
	compiled, err := r.runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	mod, err := r.runtime.InstantiateModule(ctx, compiled, r.config.WithName(name))
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, fmt.Errorf("instantiate %s: %w", name, err)
	}

	r.mu.Lock()
	r.track(name, mod)
	r.mu.Unlock()
	return mod, nil
}

// Stub registers a host module name exporting funcs. Each function
// panics with ErrStubCalled, which wazero returns from the guest call.
// Stubbing a registered name is a no-op.
func (r *WazeroRegistry) Stub(ctx context.Context, name string, funcs []StubFunc) error {
	if r.Has(name) {
		return nil
	}

	b := r.runtime.NewHostModuleBuilder(name)
	for _, f := range funcs {
		params, err := valueTypes(f.Params)
		if err != nil {
			return fmt.Errorf("stub %s.%s: %w", name, f.Name, err)
		}
		results, err := valueTypes(f.Results)
		if err != nil {
			return fmt.Errorf("stub %s.%s: %w", name, f.Name, err)
		}
		qualified := name + "." + f.Name
		b.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(context.Context, api.Module, []uint64) {
				panic(fmt.Errorf("%s: %w", qualified, ErrStubCalled))
			}), params, results).
			WithName(f.Name).
			Export(f.Name)
	}

	mod, err := b.Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("instantiate stub %s: %w", name, err)
	}

	r.mu.Lock()
	r.track(name, mod)
	r.mu.Unlock()

	Logger().Debug("registered stub module", zap.String("module", name), zap.Int("funcs", len(funcs)))
	return nil
}

// valueTypes converts signature types to host function types. Reference
// types with heap type immediates and v128 cannot cross the host boundary.
func valueTypes(types []wasm.ValType) ([]api.ValueType, error) {
	out := make([]api.ValueType, len(types))
	for i, t := range types {
		switch t {
		case wasm.ValI32, wasm.ValI64, wasm.ValF32, wasm.ValF64, wasm.ValExtern:
			out[i] = api.ValueType(t)
		default:
			return nil, fmt.Errorf("value type %s cannot be stubbed", t)
		}
	}
	return out, nil
}

// ExportTable returns the type table of a registered module, built from
// its exported functions and memories in name order.
func (r *WazeroRegistry) ExportTable(name string) (platform.TypeTable, bool) {
	mod := r.Module(name)
	if mod == nil {
		return nil, false
	}
	var table platform.TypeTable
	for fn := range mod.ExportedFunctionDefinitions() {
		table = append(table, platform.Entity{Name: fn, Kind: wasm.KindFunc})
	}
	for mem := range mod.ExportedMemoryDefinitions() {
		table = append(table, platform.Entity{Name: mem, Kind: wasm.KindMemory})
	}
	sort.Slice(table, func(i, j int) bool { return table[i].Name < table[j].Name })
	return table, true
}
