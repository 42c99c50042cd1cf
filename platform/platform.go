package platform

import (
	"sort"
	"strings"

	"github.com/wippyai/wasm-rebind/wasm"
)

// Reference is a target platform reference appended to modules whose
// stale references were removed. Name is the import namespace modules
// bind to.
type Reference struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version,omitempty"`
}

// String renders the reference as name@version.
func (r Reference) String() string {
	if r.Version == "" {
		return r.Name
	}
	return r.Name + "@" + r.Version
}

// Entity is a named export of a target module.
type Entity struct {
	Name string
	Kind byte
}

// TypeTable lists the entities a target module exports.
type TypeTable []Entity

// TableFromModule builds the type table of a decoded target module.
func TableFromModule(m *wasm.Module) TypeTable {
	table := make(TypeTable, 0, len(m.Exports))
	for _, exp := range m.Exports {
		table = append(table, Entity{Name: exp.Name, Kind: exp.Kind})
	}
	return table
}

// Map describes the stale platform and the target platform.
//
// RemoveNames are external references to strip. TargetReferences are
// appended, keyed by identity, when anything was stripped. Targets names
// the target identities whose exports feed the TypeIndex, and
// TargetModules holds their type tables.
//
// A Map must not be modified after it is handed to a Loader.
type Map struct {
	RemoveNames      map[string]struct{}
	TargetReferences map[string]Reference
	Targets          map[string]struct{}
	TargetModules    map[string]TypeTable
}

// New creates an empty platform map.
func New() *Map {
	return &Map{
		RemoveNames:      make(map[string]struct{}),
		TargetReferences: make(map[string]Reference),
		Targets:          make(map[string]struct{}),
		TargetModules:    make(map[string]TypeTable),
	}
}

// Remove marks external reference names as stale.
func (pm *Map) Remove(names ...string) *Map {
	for _, name := range names {
		pm.RemoveNames[name] = struct{}{}
	}
	return pm
}

// AddReference registers a target reference under identity.
func (pm *Map) AddReference(identity string, ref Reference) *Map {
	pm.TargetReferences[identity] = ref
	return pm
}

// AddTarget registers a target module whose exports are indexed.
func (pm *Map) AddTarget(identity string, table TypeTable) *Map {
	pm.Targets[identity] = struct{}{}
	pm.TargetModules[identity] = table
	return pm
}

// Removes reports whether name is a stale reference.
func (pm *Map) Removes(name string) bool {
	_, ok := pm.RemoveNames[name]
	return ok
}

// ReferenceIdentities returns the target reference identities in sorted order.
func (pm *Map) ReferenceIdentities() []string {
	return sortedKeys(pm.TargetReferences)
}

// TargetIdentities returns the target identities in sorted order.
func (pm *Map) TargetIdentities() []string {
	return sortedKeys(pm.Targets)
}

// RemoveList returns the stale reference names in sorted order.
func (pm *Map) RemoveList() []string {
	return sortedKeys(pm.RemoveNames)
}

// NamespaceFor returns the import namespace for a target identity. An
// identity without a registered reference maps to itself.
func (pm *Map) NamespaceFor(identity string) string {
	if ref, ok := pm.TargetReferences[identity]; ok && ref.Name != "" {
		return ref.Name
	}
	return identity
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CompilerGeneratedMarker marks names synthesized by toolchains, which
// are never indexed.
const CompilerGeneratedMarker = "$"

// TypeIndex maps qualified names to the target identity that exports them.
// It is immutable after construction and safe for concurrent use.
type TypeIndex struct {
	byName map[string]string
}

// NewTypeIndex scans every export of every target module. When several
// targets export the same name, the identity that sorts first wins.
func NewTypeIndex(pm *Map) *TypeIndex {
	idx := &TypeIndex{byName: make(map[string]string)}
	if pm == nil {
		return idx
	}
	for _, identity := range pm.TargetIdentities() {
		for _, ent := range pm.TargetModules[identity] {
			if strings.Contains(ent.Name, CompilerGeneratedMarker) {
				continue
			}
			if _, exists := idx.byName[ent.Name]; exists {
				continue
			}
			idx.byName[ent.Name] = identity
		}
	}
	return idx
}

// Lookup returns the identity of the target that exports name.
func (t *TypeIndex) Lookup(name string) (string, bool) {
	identity, ok := t.byName[name]
	return identity, ok
}

// Len returns the number of indexed names.
func (t *TypeIndex) Len() int {
	return len(t.byName)
}
