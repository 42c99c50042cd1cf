package platform

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-rebind/errors"
	"github.com/wippyai/wasm-rebind/wasm"
)

// File is the YAML form of a platform map.
//
//	version: "1"
//	remove: [wasi_unstable]
//	references:
//	  wasi: {name: wasi_snapshot_preview1}
//	targets:
//	  wasi:
//	    exports: [fd_write, proc_exit, {name: memory, kind: memory}]
//	  libc:
//	    module: ./libc.wasm
type File struct {
	Version    string                `yaml:"version"`
	Remove     []string              `yaml:"remove,omitempty"`
	References map[string]Reference  `yaml:"references,omitempty"`
	Targets    map[string]TargetFile `yaml:"targets,omitempty"`
}

// TargetFile describes one target's type table, inline or read from the
// export section of a wasm file. Module paths are relative to the file.
type TargetFile struct {
	Module  string       `yaml:"module,omitempty"`
	Exports []EntityFile `yaml:"exports,omitempty"`
}

// EntityFile is an export entry. A bare scalar is a function name.
type EntityFile struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind,omitempty"`
}

// UnmarshalYAML accepts either a name or a {name, kind} mapping.
func (e *EntityFile) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		e.Kind = ""
		return node.Decode(&e.Name)
	case yaml.MappingNode:
		type plain EntityFile
		return node.Decode((*plain)(e))
	default:
		return fmt.Errorf("line %d: expected export name or mapping", node.Line)
	}
}

// MarshalYAML writes function entries as bare names.
func (e EntityFile) MarshalYAML() (any, error) {
	if e.Kind == "" || e.Kind == "func" {
		return e.Name, nil
	}
	type plain EntityFile
	return plain(e), nil
}

var kindNames = map[string]byte{
	"":       wasm.KindFunc,
	"func":   wasm.KindFunc,
	"table":  wasm.KindTable,
	"memory": wasm.KindMemory,
	"global": wasm.KindGlobal,
	"tag":    wasm.KindTag,
}

// KindName returns the YAML name of an export kind.
func KindName(kind byte) string {
	switch kind {
	case wasm.KindFunc:
		return "func"
	case wasm.KindTable:
		return "table"
	case wasm.KindMemory:
		return "memory"
	case wasm.KindGlobal:
		return "global"
	case wasm.KindTag:
		return "tag"
	default:
		return fmt.Sprintf("kind(%d)", kind)
	}
}

// LoadFile loads a platform map from a YAML file.
func LoadFile(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Config(fmt.Sprintf("read platform map %s", path), err)
	}
	return parse(data, filepath.Dir(path))
}

// Parse parses a YAML platform map. Module paths resolve against the
// working directory.
func Parse(data []byte) (*Map, error) {
	return parse(data, "")
}

func parse(data []byte, baseDir string) (*Map, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Config("parse platform map YAML", err)
	}
	applyDefaults(&f)
	return f.Build(baseDir)
}

func applyDefaults(f *File) {
	if f.Version == "" {
		f.Version = "1"
	}
	for identity, ref := range f.References {
		if ref.Name == "" {
			ref.Name = identity
			f.References[identity] = ref
		}
	}
}

// Build converts the file form into a Map, reading target modules.
func (f *File) Build(baseDir string) (*Map, error) {
	pm := New()
	pm.Remove(f.Remove...)
	for identity, ref := range f.References {
		pm.AddReference(identity, ref)
	}

	for _, identity := range sortedKeys(f.Targets) {
		tf := f.Targets[identity]
		var table TypeTable

		if tf.Module != "" {
			path := tf.Module
			if baseDir != "" && !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, path)
			}
			fromModule, err := loadTable(path)
			if err != nil {
				return nil, err
			}
			table = append(table, fromModule...)
		}

		for _, ent := range tf.Exports {
			kind, ok := kindNames[ent.Kind]
			if !ok {
				return nil, errors.New(errors.PhaseConfig, errors.KindInvalidData).
					Path("targets", identity).
					Detail("unknown export kind %q for %s", ent.Kind, ent.Name).
					Build()
			}
			table = append(table, Entity{Name: ent.Name, Kind: kind})
		}

		pm.AddTarget(identity, table)
	}

	return pm, nil
}

func loadTable(path string) (TypeTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Config(fmt.Sprintf("read target module %s", path), err)
	}
	m, err := wasm.ParseModule(data)
	if err != nil {
		return nil, errors.Config(fmt.Sprintf("decode target module %s", path), err)
	}
	return TableFromModule(m), nil
}

// ToFile converts a Map into its YAML form with inline export lists.
func ToFile(pm *Map) *File {
	f := &File{
		Version:    "1",
		Remove:     pm.RemoveList(),
		References: make(map[string]Reference, len(pm.TargetReferences)),
		Targets:    make(map[string]TargetFile, len(pm.Targets)),
	}
	for identity, ref := range pm.TargetReferences {
		f.References[identity] = ref
	}
	for _, identity := range pm.TargetIdentities() {
		var tf TargetFile
		for _, ent := range pm.TargetModules[identity] {
			tf.Exports = append(tf.Exports, EntityFile{Name: ent.Name, Kind: KindName(ent.Kind)})
		}
		f.Targets[identity] = tf
	}
	return f
}

// Marshal serializes a Map to YAML.
func Marshal(pm *Map) ([]byte, error) {
	return yaml.Marshal(ToFile(pm))
}

// WriteFile writes a Map to path as YAML.
func WriteFile(pm *Map, path string) error {
	data, err := Marshal(pm)
	if err != nil {
		return errors.Config("marshal platform map", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Config(fmt.Sprintf("write platform map %s", path), err)
	}
	return nil
}
