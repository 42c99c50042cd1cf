package resolve_test

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/wasm-rebind/errors"
	"github.com/wippyai/wasm-rebind/resolve"
	"github.com/wippyai/wasm-rebind/wasm"
)

// writeModule writes <dir>/<file>.wasm importing one function from each
// namespace in imports.
func writeModule(t *testing.T, dir, file, declared string, imports ...string) string {
	t.Helper()
	b := wasm.NewBuilder(declared)
	for _, ns := range imports {
		b.ImportFunc(ns, "f", nil, nil)
	}
	f := b.AddFunc(nil, nil, nil)
	b.ExportFunc("f", f)
	path := filepath.Join(dir, file+resolve.Extension)
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))
	return path
}

func names(mods []resolve.ParsedModule) []string {
	out := make([]string, len(mods))
	for i, m := range mods {
		out[i] = m.Name
	}
	return out
}

func TestResolveLeafFirst(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "c", "")
	writeModule(t, dir, "b", "", "c")
	entry := writeModule(t, dir, "a", "", "b", "env")

	mods, err := resolve.New(resolve.DefaultOptions()).Resolve(entry, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, names(mods))

	data, err := os.ReadFile(entry)
	require.NoError(t, err)
	assert.Equal(t, data, mods[2].Bytes)
	assert.Equal(t, entry, mods[2].Path)
}

func TestResolveDiamond(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "d", "")
	writeModule(t, dir, "b", "", "d")
	writeModule(t, dir, "c", "", "d")
	entry := writeModule(t, dir, "a", "", "b", "c")

	mods, err := resolve.New(resolve.DefaultOptions()).Resolve(entry, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "b", "c", "a"}, names(mods))
}

func TestResolveSkipsKnown(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "c", "")
	writeModule(t, dir, "b", "", "c")
	entry := writeModule(t, dir, "a", "", "b")

	known := func(name string) bool { return name == "b" }
	mods, err := resolve.New(resolve.DefaultOptions()).Resolve(entry, known)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names(mods), "known modules stop the walk")
}

func TestResolveEntryAlreadyKnown(t *testing.T) {
	dir := t.TempDir()
	entry := writeModule(t, dir, "a", "")

	mods, err := resolve.New(resolve.DefaultOptions()).Resolve(entry, func(string) bool { return true })
	require.NoError(t, err)
	assert.Empty(t, mods)
}

func TestResolveMissingEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.wasm")

	mods, err := resolve.New(resolve.DefaultOptions()).Resolve(path, nil)
	require.Error(t, err)
	assert.Nil(t, mods)
	assert.True(t, stderrors.Is(err, errors.ErrMissingEntryModule))

	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, path, e.Value)
}

func TestResolveDecodeErrorPropagates(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "broken.wasm")
	require.NoError(t, os.WriteFile(bad, []byte("not wasm"), 0o644))
	entry := writeModule(t, dir, "a", "", "broken")

	_, err := resolve.New(resolve.DefaultOptions()).Resolve(entry, nil)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, wasm.ErrInvalidMagic))
	assert.Contains(t, err.Error(), bad)
}

func TestResolveCycle(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "b", "", "a")
	entry := writeModule(t, dir, "a", "", "b")

	mods, err := resolve.New(resolve.DefaultOptions()).Resolve(entry, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, names(mods))
}

func TestResolveDeclaredName(t *testing.T) {
	dir := t.TempDir()
	entry := writeModule(t, dir, "app-1.2", "app")

	mods, err := resolve.New(resolve.DefaultOptions()).Resolve(entry, nil)
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, "app", mods[0].Name)

	name, err := resolve.ModuleName(entry)
	require.NoError(t, err)
	assert.Equal(t, "app", name)

	mods, err = resolve.New(resolve.DefaultOptions()).Resolve(entry, func(n string) bool { return n == "app" })
	require.NoError(t, err)
	assert.Empty(t, mods)
}

func TestResolveIgnoresDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "env.wasm"), 0o755))
	entry := writeModule(t, dir, "a", "", "env")

	mods, err := resolve.New(resolve.Options{CacheSize: 1}).Resolve(entry, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names(mods))
}

func TestResolveStaysInEntryDirectory(t *testing.T) {
	root := t.TempDir()
	appDir := filepath.Join(root, "app")
	require.NoError(t, os.Mkdir(appDir, 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(appDir, "sub"), 0o755))

	writeModule(t, root, "outside", "")
	writeModule(t, filepath.Join(appDir, "sub"), "x", "")
	entry := writeModule(t, appDir, "a", "", "../outside", "sub/x", "..", ".", filepath.Join(root, "outside"))

	mods, err := resolve.New(resolve.DefaultOptions()).Resolve(entry, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names(mods))
}

func TestIsLocalName(t *testing.T) {
	for _, ref := range []string{"lib", "wasi_unstable", "lib-1.2", "a.b"} {
		assert.True(t, resolve.IsLocalName(ref), ref)
	}
	for _, ref := range []string{"", ".", "..", "../lib", "sub/lib", `sub\lib`, "/abs/lib"} {
		assert.False(t, resolve.IsLocalName(ref), ref)
	}
}

func TestResolveByDeclaredName(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "libfile", "mathlib")
	writeModule(t, dir, "b", "")
	entry := writeModule(t, dir, "a", "", "mathlib", "b")

	core, logs := observer.New(zapcore.DebugLevel)
	r := resolve.New(resolve.Options{Logger: zap.New(core), CacheSize: 16})

	mods, err := r.Resolve(entry, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"mathlib", "b", "a"}, names(mods))
	assert.Equal(t, filepath.Join(dir, "libfile.wasm"), mods[0].Path)

	assert.Equal(t, 3, logs.FilterMessage("decoded module").Len(), "each file is decoded once")
	assert.Positive(t, logs.FilterMessage("module cache hit").Len())
}

func TestResolveDeclaredNameAlreadyKnown(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "libfile", "mathlib")
	entry := writeModule(t, dir, "a", "", "mathlib")

	mods, err := resolve.New(resolve.DefaultOptions()).Resolve(entry, func(n string) bool { return n == "mathlib" })
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names(mods))
}

func TestResolveSkipsUndecodableSiblings(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.wasm"), []byte("junk"), 0o644))
	entry := writeModule(t, dir, "a", "", "env")

	mods, err := resolve.New(resolve.DefaultOptions()).Resolve(entry, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names(mods))
}

func TestCacheFileNameKey(t *testing.T) {
	c, err := resolve.NewCache(4)
	require.NoError(t, err)

	c.Add(&resolve.ParsedModule{Name: "mathlib", Path: "/x/libfile.wasm"})
	byName, ok := c.Get("mathlib")
	require.True(t, ok)
	byFile, ok := c.Get("libfile")
	require.True(t, ok)
	assert.Same(t, byName, byFile)
	assert.Equal(t, 2, c.Len())
}

func TestCache(t *testing.T) {
	c, err := resolve.NewCache(1)
	require.NoError(t, err)

	c.Add(&resolve.ParsedModule{Name: "a"})
	c.Add(&resolve.ParsedModule{Name: "b"})
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("a")
	assert.False(t, ok, "least recently used entry is evicted")
	pm, ok := c.Get("b")
	require.True(t, ok)
	assert.Equal(t, "b", pm.Name)

	_, err = resolve.NewCache(0)
	assert.Error(t, err)
}

func TestSimpleName(t *testing.T) {
	assert.Equal(t, "lib", resolve.SimpleName("/x/y/lib.wasm"))
	assert.Equal(t, "lib.bin", resolve.SimpleName("lib.bin"))
}
