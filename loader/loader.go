package loader

import (
	"context"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-rebind/errors"
	"github.com/wippyai/wasm-rebind/pipeline"
	"github.com/wippyai/wasm-rebind/platform"
	"github.com/wippyai/wasm-rebind/resolve"
	"github.com/wippyai/wasm-rebind/rewrite"
	"github.com/wippyai/wasm-rebind/rules"
	"github.com/wippyai/wasm-rebind/wasm"
)

// Options configures a Loader.
type Options struct {
	Logger *zap.Logger
	// Rules overrides the rule lists. Nil selects rules.Default.
	Rules *rules.Set
	// CacheSize bounds the resolver's per-call module cache.
	CacheSize int
}

// DefaultOptions returns default loader configuration.
func DefaultOptions() Options {
	return Options{CacheSize: resolve.DefaultOptions().CacheSize}
}

// ModuleReport is the outcome of loading one module.
type ModuleReport struct {
	Name      string
	Path      string
	Removed   []string
	Added     []string
	Repointed []rewrite.Repoint
	Warnings  []string
	// Stubbed lists imports bound to trapping stubs in tolerant mode.
	Stubbed   []string
	Rewrites  int
	Size      int
	Changed   bool
	Committed bool
}

// Loader rewrites an entry module and its local dependencies for the
// target platform and commits them into a Registry, leaves first.
//
// A Loader is not safe for concurrent Load calls.
type Loader struct {
	registry Registry
	pm       *platform.Map
	index    *platform.TypeIndex
	resolver *resolve.Resolver
	rewriter *rewrite.Rewriter
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
	report   []ModuleReport
}

// New creates a Loader. The TypeIndex is built once here.
func New(reg Registry, pm *platform.Map, opts Options) *Loader {
	logger := opts.Logger
	if logger == nil {
		logger = Logger()
	}
	set := rules.Default(pm)
	if opts.Rules != nil {
		set = *opts.Rules
	}
	index := platform.NewTypeIndex(pm)

	l := &Loader{
		registry: reg,
		pm:       pm,
		index:    index,
		resolver: resolve.New(resolve.Options{Logger: logger, CacheSize: opts.CacheSize}),
		rewriter: rewrite.New(pm, index, logger),
		pipeline: pipeline.New(pm, set.Finders, set.Rewriters, pipeline.Options{Logger: logger}),
		logger:   logger,
	}
	logger.Debug("built loader",
		zap.Int("indexed_names", index.Len()),
		zap.Int("finders", len(l.pipeline.Finders())),
		zap.Int("rewriters", len(l.pipeline.Rewriters())))
	return l
}

// Registry returns the registry modules are committed into.
func (l *Loader) Registry() Registry {
	return l.registry
}

// TypeIndex returns the index built from the platform map.
func (l *Loader) TypeIndex() *platform.TypeIndex {
	return l.index
}

// Report returns the per-module outcome of the last Load, in commit order.
func (l *Loader) Report() []ModuleReport {
	return append([]ModuleReport(nil), l.report...)
}

// Load rewrites and commits the module at entryPath and every local
// dependency not yet registered, then returns the entry's handle.
//
// Modules are committed leaves first. If a module fails, the modules
// committed before it stay registered. When the entry is already
// registered nothing is decoded and the registered handle is returned.
//
// With assumeCompatible, function imports still scoped to a removed
// namespace are bound to trapping stubs when the registry is a Stubber,
// so the module links and only traps if such an import is called.
func (l *Loader) Load(ctx context.Context, entryPath string, assumeCompatible bool) (api.Module, error) {
	l.report = nil

	items, err := l.resolver.Resolve(entryPath, l.registry.Has)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return l.registered(entryPath)
	}

	var last api.Module
	for i := range items {
		item := &items[i]
		mod, err := l.loadOne(ctx, item, assumeCompatible)
		if err != nil {
			return nil, err
		}
		last = mod
	}
	return last, nil
}

func (l *Loader) loadOne(ctx context.Context, item *resolve.ParsedModule, assumeCompatible bool) (api.Module, error) {
	res := l.rewriter.Rewrite(item.Module)

	rep := ModuleReport{
		Name:      item.Name,
		Path:      item.Path,
		Removed:   res.Removed,
		Added:     res.Added,
		Repointed: res.Repointed,
	}

	out, err := l.pipeline.Scan(item.Name, item.Module, res.PlatformChanged(), assumeCompatible)
	rep.Warnings = out.Warnings
	rep.Rewrites = out.Rewrites
	if err != nil {
		l.report = append(l.report, rep)
		return nil, err
	}

	stubbed := false
	if assumeCompatible {
		if s, ok := l.registry.(Stubber); ok {
			names, err := l.stub(ctx, s, item)
			if err != nil {
				l.report = append(l.report, rep)
				return nil, errors.Load(item.Name, err)
			}
			rep.Stubbed = names
			stubbed = len(names) > 0
		}
	}

	bin := item.Bytes
	if out.Changed || stubbed || res.PlatformChanged() {
		bin = item.Module.Encode()
		rep.Changed = true
	}
	rep.Size = len(bin)

	mod, err := l.registry.Commit(ctx, item.Name, bin)
	if err != nil {
		l.report = append(l.report, rep)
		return nil, errors.Load(item.Name, err)
	}
	rep.Committed = true
	l.report = append(l.report, rep)

	l.logger.Debug("committed module",
		zap.String("module", item.Name),
		zap.Bool("changed", rep.Changed),
		zap.Int("size", rep.Size))
	return mod, nil
}

// StubName is the registry name of the stub module standing in for a
// removed namespace in one module.
func StubName(namespace, module string) string {
	return namespace + "#" + module
}

// stub moves the function imports still scoped to removed namespaces onto
// per-module stub modules and registers those with s. It returns the
// stubbed import names.
func (l *Loader) stub(ctx context.Context, s Stubber, item *resolve.ParsedModule) ([]string, error) {
	m := item.Module
	groups := make(map[string][]StubFunc)
	exported := make(map[string]struct{})
	var order, names []string

	var funcIdx uint32
	for i := range m.Imports {
		imp := &m.Imports[i]
		if imp.Kind != wasm.KindFunc {
			continue
		}
		idx := funcIdx
		funcIdx++
		if !l.pm.Removes(imp.Module) {
			continue
		}
		sig, ok := m.FuncType(idx)
		if !ok {
			return nil, fmt.Errorf("import %s.%s: unknown signature", imp.Module, imp.Name)
		}

		ns := StubName(imp.Module, item.Name)
		if _, ok := groups[ns]; !ok {
			order = append(order, ns)
		}
		if _, dup := exported[ns+"."+imp.Name]; !dup {
			exported[ns+"."+imp.Name] = struct{}{}
			groups[ns] = append(groups[ns], StubFunc{Name: imp.Name, Params: sig.Params, Results: sig.Results})
			names = append(names, imp.Name)
		}
		imp.Module = ns
	}

	for _, ns := range order {
		if err := s.Stub(ctx, ns, groups[ns]); err != nil {
			return nil, err
		}
		l.logger.Warn("bound stale imports to trapping stubs",
			zap.String("module", item.Name),
			zap.String("stub", ns),
			zap.Int("funcs", len(groups[ns])))
	}
	return names, nil
}

func (l *Loader) registered(entryPath string) (api.Module, error) {
	if mod := l.registry.Module(resolve.SimpleName(entryPath)); mod != nil {
		return mod, nil
	}
	name, err := resolve.ModuleName(entryPath)
	if err != nil {
		return nil, err
	}
	if mod := l.registry.Module(name); mod != nil {
		return mod, nil
	}
	return nil, errors.NotFound(errors.PhaseLoad, "module", name)
}

// ResolveFallback finds a registered module by a possibly qualified name.
// Version suffixes ("@1.2"), comma-separated qualifiers and a ".wasm"
// extension are stripped, and the first registered module with the same
// simple name, in registration order, is returned.
func (l *Loader) ResolveFallback(name string) api.Module {
	want := StripQualifiers(name)
	if want == "" {
		return nil
	}
	for _, n := range l.registry.Names() {
		if StripQualifiers(n) == want {
			return l.registry.Module(n)
		}
	}
	return nil
}

// StripQualifiers reduces a qualified module name to its simple name.
func StripQualifiers(name string) string {
	if i := strings.IndexByte(name, ','); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimSpace(name)
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSuffix(name, resolve.Extension)
}
