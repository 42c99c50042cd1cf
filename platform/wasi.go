package platform

// WASI namespaces.
const (
	WASIUnstable        = "wasi_unstable"
	WASISnapshotPreview = "wasi_snapshot_preview1"
)

// WASIPreview1 returns the map that moves modules built against
// wasi_unstable onto wasi_snapshot_preview1. table is the export list
// of the host's preview1 implementation.
func WASIPreview1(table TypeTable) *Map {
	return New().
		Remove(WASIUnstable).
		AddReference(WASISnapshotPreview, Reference{Name: WASISnapshotPreview}).
		AddTarget(WASISnapshotPreview, table)
}
