// Package resolve walks an entry module's imports to find the local
// modules it depends on.
//
// Dependencies are files next to the entry named after an import
// namespace. The walk is depth-first and emits modules leaves first, so
// committing them in order never commits a module before its imports.
// Names already present in the registry stop the walk.
package resolve
