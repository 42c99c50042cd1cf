package platform_test

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-rebind/errors"
	"github.com/wippyai/wasm-rebind/platform"
	"github.com/wippyai/wasm-rebind/wasm"
)

func funcs(names ...string) platform.TypeTable {
	table := make(platform.TypeTable, len(names))
	for i, n := range names {
		table[i] = platform.Entity{Name: n, Kind: wasm.KindFunc}
	}
	return table
}

func TestTypeIndexLookup(t *testing.T) {
	pm := platform.New().
		AddTarget("wasi", funcs("fd_write", "proc_exit", "legalstub$fd_seek"))

	idx := platform.NewTypeIndex(pm)

	identity, ok := idx.Lookup("fd_write")
	require.True(t, ok)
	assert.Equal(t, "wasi", identity)

	_, ok = idx.Lookup("legalstub$fd_seek")
	assert.False(t, ok, "compiler-generated names are not indexed")

	_, ok = idx.Lookup("missing")
	assert.False(t, ok)
	assert.Equal(t, 2, idx.Len())
}

func TestTypeIndexCollisionIsDeterministic(t *testing.T) {
	for i := 0; i < 20; i++ {
		pm := platform.New().
			AddTarget("zeta", funcs("shared", "z_only")).
			AddTarget("alpha", funcs("shared")).
			AddTarget("mid", funcs("shared"))

		identity, ok := platform.NewTypeIndex(pm).Lookup("shared")
		require.True(t, ok)
		require.Equal(t, "alpha", identity)
	}
}

func TestTypeIndexOnlyScansTargets(t *testing.T) {
	pm := platform.New()
	pm.TargetModules["ghost"] = funcs("hidden")

	_, ok := platform.NewTypeIndex(pm).Lookup("hidden")
	assert.False(t, ok)
	assert.Equal(t, 0, platform.NewTypeIndex(nil).Len())
}

func TestMapHelpers(t *testing.T) {
	pm := platform.New().
		Remove("wasi_unstable", "old").
		AddReference("b", platform.Reference{Name: "ns_b", Version: "2"}).
		AddReference("a", platform.Reference{Name: "ns_a"})

	assert.True(t, pm.Removes("old"))
	assert.False(t, pm.Removes("env"))
	assert.Equal(t, []string{"old", "wasi_unstable"}, pm.RemoveList())
	assert.Equal(t, []string{"a", "b"}, pm.ReferenceIdentities())
	assert.Equal(t, "ns_b", pm.NamespaceFor("b"))
	assert.Equal(t, "unknown", pm.NamespaceFor("unknown"))
	assert.Equal(t, "ns_b@2", pm.TargetReferences["b"].String())
	assert.Equal(t, "ns_a", pm.TargetReferences["a"].String())
}

func TestWASIPreview1(t *testing.T) {
	pm := platform.WASIPreview1(funcs("fd_write"))

	assert.True(t, pm.Removes(platform.WASIUnstable))
	assert.Equal(t, platform.WASISnapshotPreview, pm.NamespaceFor(platform.WASISnapshotPreview))

	identity, ok := platform.NewTypeIndex(pm).Lookup("fd_write")
	require.True(t, ok)
	assert.Equal(t, platform.WASISnapshotPreview, identity)
}

func TestParse(t *testing.T) {
	data := []byte(`
remove: [wasi_unstable]
references:
  wasi: {name: wasi_snapshot_preview1, version: "0.1"}
  env: {}
targets:
  wasi:
    exports:
      - fd_write
      - {name: memory, kind: memory}
`)
	pm, err := platform.Parse(data)
	require.NoError(t, err)

	assert.True(t, pm.Removes("wasi_unstable"))
	assert.Equal(t, platform.Reference{Name: "wasi_snapshot_preview1", Version: "0.1"}, pm.TargetReferences["wasi"])
	assert.Equal(t, "env", pm.TargetReferences["env"].Name, "reference name defaults to identity")
	assert.Equal(t, platform.TypeTable{
		{Name: "fd_write", Kind: wasm.KindFunc},
		{Name: "memory", Kind: wasm.KindMemory},
	}, pm.TargetModules["wasi"])
}

func TestParseUnknownKind(t *testing.T) {
	_, err := platform.Parse([]byte("targets:\n  t:\n    exports: [{name: x, kind: thing}]\n"))
	require.Error(t, err)

	var perr *errors.Error
	require.True(t, stderrors.As(err, &perr))
	assert.Equal(t, errors.PhaseConfig, perr.Phase)
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := platform.Parse([]byte("remove: [unterminated"))
	require.Error(t, err)
}

func TestLoadFileWithTargetModule(t *testing.T) {
	dir := t.TempDir()

	b := wasm.NewBuilder("libc")
	f := b.AddFunc(nil, nil, nil)
	b.ExportFunc("malloc", f)
	b.ExportFunc("free", f)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "libc.wasm"), b.Bytes(), 0o644))

	yml := "targets:\n  libc:\n    module: libc.wasm\n    exports: [calloc]\n"
	path := filepath.Join(dir, "platform.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	pm, err := platform.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, funcs("malloc", "free", "calloc"), pm.TargetModules["libc"])
}

func TestLoadFileMissing(t *testing.T) {
	_, err := platform.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, os.ErrNotExist))
}

func TestMarshalRoundTrip(t *testing.T) {
	pm := platform.New().
		Remove("wasi_unstable").
		AddReference("wasi", platform.Reference{Name: "wasi_snapshot_preview1"}).
		AddTarget("wasi", platform.TypeTable{
			{Name: "fd_write", Kind: wasm.KindFunc},
			{Name: "memory", Kind: wasm.KindMemory},
		}).
		AddTarget("env", funcs("log"))

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, platform.WriteFile(pm, path))

	back, err := platform.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, pm.RemoveList(), back.RemoveList())
	assert.Equal(t, pm.TargetReferences, back.TargetReferences)
	assert.Equal(t, pm.TargetIdentities(), back.TargetIdentities())
	assert.Equal(t, pm.TargetModules, back.TargetModules)
}
