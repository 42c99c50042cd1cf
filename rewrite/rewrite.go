package rewrite

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-rebind/platform"
	"github.com/wippyai/wasm-rebind/wasm"
)

// ReservedPrefix marks built-in names of the dynamic-linking ABI, such as
// __stack_pointer and __memory_base. They are never repointed.
const ReservedPrefix = "__"

// Repoint records one import moved to a target namespace.
type Repoint struct {
	Name     string
	From     string
	To       string
	Identity string
}

// Result describes what Rewrite changed.
type Result struct {
	Removed   []string
	Added     []string
	Repointed []Repoint
}

// PlatformChanged reports whether any stale reference was removed.
func (r Result) PlatformChanged() bool {
	return len(r.Removed) > 0
}

// Rewriter swaps stale platform references for target ones and moves
// imports to the namespace of the target that provides them.
type Rewriter struct {
	pm     *platform.Map
	index  *platform.TypeIndex
	logger *zap.Logger
}

// New creates a Rewriter. index must be built from pm.
func New(pm *platform.Map, index *platform.TypeIndex, logger *zap.Logger) *Rewriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rewriter{pm: pm, index: index, logger: logger}
}

// Rewrite mutates m in place and reports whether its platform changed.
//
// Every external reference named in the map's RemoveNames is removed.
// If any was, the map's target references are appended in identity
// order, skipping ones already present, and imports are repointed: in
// qualified-name order, each import whose name the TypeIndex knows is
// moved to that target's namespace. Null and reserved names are skipped.
func (r *Rewriter) Rewrite(m *wasm.Module) Result {
	var res Result

	kept := m.References[:0:0]
	for _, ref := range m.References {
		if r.pm.Removes(ref) {
			res.Removed = append(res.Removed, ref)
			continue
		}
		kept = append(kept, ref)
	}
	if !res.PlatformChanged() {
		return res
	}

	m.References = kept
	for _, identity := range r.pm.ReferenceIdentities() {
		ns := r.pm.NamespaceFor(identity)
		if m.HasReference(ns) {
			continue
		}
		m.References = append(m.References, ns)
		res.Added = append(res.Added, ns)
	}

	res.Repointed = r.repoint(m)

	r.logger.Info("swapped platform references",
		zap.String("module", m.Name),
		zap.Strings("removed", res.Removed),
		zap.Strings("added", res.Added),
		zap.Int("repointed", len(res.Repointed)))
	return res
}

func (r *Rewriter) repoint(m *wasm.Module) []Repoint {
	order := make([]int, len(m.Imports))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return m.Imports[order[a]].QualifiedName() < m.Imports[order[b]].QualifiedName()
	})

	var out []Repoint
	for _, i := range order {
		imp := &m.Imports[i]
		name := imp.QualifiedName()
		if name == "" || strings.HasPrefix(name, ReservedPrefix) {
			continue
		}
		identity, ok := r.index.Lookup(name)
		if !ok {
			continue
		}
		ns := r.pm.NamespaceFor(identity)
		if imp.Module == ns {
			continue
		}
		out = append(out, Repoint{Name: name, From: imp.Module, To: ns, Identity: identity})
		r.logger.Debug("repointed import",
			zap.String("module", m.Name),
			zap.String("import", name),
			zap.String("from", imp.Module),
			zap.String("to", ns))
		imp.Module = ns
	}
	return out
}
