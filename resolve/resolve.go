package resolve

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-rebind/errors"
	"github.com/wippyai/wasm-rebind/wasm"
)

// Extension is the file extension of module binaries.
const Extension = ".wasm"

// ParsedModule is a decoded module together with the file it came from.
// Bytes are the exact file contents.
type ParsedModule struct {
	Module *wasm.Module
	Path   string
	Name   string
	Bytes  []byte
}

// Options configures a Resolver.
type Options struct {
	Logger *zap.Logger
	// CacheSize bounds the per-call decoded-module cache.
	CacheSize int
}

// DefaultOptions returns default resolver configuration.
func DefaultOptions() Options {
	return Options{CacheSize: 256}
}

// Resolver discovers an entry module's local dependency closure.
// A Resolver holds no state between calls.
type Resolver struct {
	logger    *zap.Logger
	cacheSize int
}

// New creates a Resolver.
func New(opts Options) *Resolver {
	r := &Resolver{logger: opts.Logger, cacheSize: opts.CacheSize}
	if r.logger == nil {
		r.logger = Logger()
	}
	if r.cacheSize <= 0 {
		r.cacheSize = DefaultOptions().CacheSize
	}
	return r
}

// SimpleName derives a module name from a file path.
func SimpleName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), Extension)
}

type walk struct {
	known   func(string) bool
	visited map[string]struct{}
	indexed map[string]struct{}
	cache   *Cache
	out     []ParsedModule
}

func (w *walk) seen(name string) bool {
	if _, ok := w.visited[name]; ok {
		return true
	}
	return w.known != nil && w.known(name)
}

// Resolve returns the entry module and its transitive local dependencies
// in dependency order, leaves first. Names for which known reports true,
// typically modules already in the registry, are neither decoded nor
// returned. Each name appears at most once.
//
// A reference is local when a sibling file <dir>/<reference>.wasm exists
// or a sibling module declares the reference as its name. References
// that are not plain file names never resolve. Other references are left
// to the registry.
func (r *Resolver) Resolve(entryPath string, known func(name string) bool) ([]ParsedModule, error) {
	if _, err := os.Stat(entryPath); err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.MissingEntryModule(entryPath)
		}
		return nil, fmt.Errorf("stat entry module %s: %w", entryPath, err)
	}

	cache, err := NewCache(r.cacheSize)
	if err != nil {
		return nil, err
	}
	w := &walk{
		known:   known,
		visited: make(map[string]struct{}),
		indexed: make(map[string]struct{}),
		cache:   cache,
	}

	name := SimpleName(entryPath)
	if w.seen(name) {
		r.logger.Debug("entry module already loaded", zap.String("module", name))
		return nil, nil
	}
	entry, err := r.load(w.cache, entryPath)
	if err != nil {
		return nil, err
	}
	if w.seen(entry.Name) {
		r.logger.Debug("entry module already loaded under declared name",
			zap.String("module", entry.Name),
			zap.String("path", entryPath))
		return nil, nil
	}
	if err := r.visit(w, entry); err != nil {
		return nil, err
	}
	return w.out, nil
}

func (r *Resolver) visit(w *walk, pm *ParsedModule) error {
	w.visited[pm.Name] = struct{}{}
	w.visited[SimpleName(pm.Path)] = struct{}{}

	dir := filepath.Dir(pm.Path)
	for _, ref := range pm.Module.References {
		if !IsLocalName(ref) || w.seen(ref) {
			continue
		}
		dep, err := r.lookup(w, dir, ref)
		if err != nil {
			return err
		}
		if dep == nil || w.seen(dep.Name) || w.seen(SimpleName(dep.Path)) {
			continue
		}
		if err := r.visit(w, dep); err != nil {
			return err
		}
	}

	w.out = append(w.out, *pm)
	return nil
}

// IsLocalName reports whether a reference can name a sibling file: it
// must be a single path element other than "." and "..".
func IsLocalName(ref string) bool {
	if ref == "" || ref == "." || ref == ".." {
		return false
	}
	if strings.ContainsAny(ref, `/\`) || strings.ContainsRune(ref, filepath.Separator) {
		return false
	}
	return filepath.Base(ref) == ref && !filepath.IsAbs(ref) && filepath.VolumeName(ref) == ""
}

// lookup finds the sibling module for ref: the file <dir>/<ref>.wasm,
// else a sibling whose name section declares ref.
func (r *Resolver) lookup(w *walk, dir, ref string) (*ParsedModule, error) {
	path := filepath.Join(dir, ref+Extension)
	if isFile(path) {
		return r.load(w.cache, path)
	}

	r.index(w, dir)
	if pm, ok := w.cache.Get(ref); ok && filepath.Dir(pm.Path) == dir {
		r.logger.Debug("resolved reference by declared name",
			zap.String("reference", ref),
			zap.String("path", pm.Path))
		return pm, nil
	}
	return nil, nil
}

// index decodes every module in dir once per call, so that declared
// names can be looked up in the cache. Files that fail to decode are
// skipped here; they only fail the walk when referenced by file name.
func (r *Resolver) index(w *walk, dir string) {
	if _, ok := w.indexed[dir]; ok {
		return
	}
	w.indexed[dir] = struct{}{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		r.logger.Debug("cannot index directory", zap.String("dir", dir), zap.Error(err))
		return
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || filepath.Ext(e.Name()) != Extension {
			continue
		}
		if _, err := r.load(w.cache, filepath.Join(dir, e.Name())); err != nil {
			r.logger.Debug("skipping undecodable sibling", zap.String("file", e.Name()), zap.Error(err))
		}
	}
}

func (r *Resolver) load(cache *Cache, path string) (*ParsedModule, error) {
	name := SimpleName(path)
	if pm, ok := cache.Get(name); ok && pm.Path == path {
		r.logger.Debug("module cache hit", zap.String("module", pm.Name), zap.String("path", path))
		return pm, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read module %s: %w", path, err)
	}
	m, err := wasm.ParseModule(data)
	if err != nil {
		return nil, fmt.Errorf("decode module %s: %w", path, err)
	}

	pm := &ParsedModule{
		Module: m,
		Path:   path,
		Name:   m.Name,
		Bytes:  data,
	}
	if pm.Name == "" {
		pm.Name = name
	}
	cache.Add(pm)

	r.logger.Debug("decoded module",
		zap.String("module", pm.Name),
		zap.String("path", path),
		zap.Int("references", len(m.References)))
	return pm, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
