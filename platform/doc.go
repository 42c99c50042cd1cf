// Package platform describes the stale and target platforms a module is
// rewritten between, and indexes the target platform's exported names.
//
// A Map is usually loaded from YAML:
//
//	pm, err := platform.LoadFile("platform.yaml")
//	idx := platform.NewTypeIndex(pm)
//	if identity, ok := idx.Lookup("fd_write"); ok {
//	    ns := pm.NamespaceFor(identity)
//	}
//
// Names containing the compiler-generated marker "$" are never indexed.
package platform
