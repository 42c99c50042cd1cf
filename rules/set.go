package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-rebind/errors"
	"github.com/wippyai/wasm-rebind/pipeline"
	"github.com/wippyai/wasm-rebind/platform"
)

// Set is an ordered pair of rule lists for a Pipeline.
type Set struct {
	Finders   []pipeline.Finder
	Rewriters []pipeline.Rewriter
}

// Default returns the stale-platform finders for pm.
func Default(pm *platform.Map) Set {
	return Set{
		Finders: []pipeline.Finder{
			StaleImportCall{PM: pm},
			pipeline.NewFieldFinder(StaleGlobalAccess{PM: pm}),
		},
	}
}

// Append adds the rules of other after the rules of s.
func (s Set) Append(other Set) Set {
	return Set{
		Finders:   append(append([]pipeline.Finder(nil), s.Finders...), other.Finders...),
		Rewriters: append(append([]pipeline.Rewriter(nil), s.Rewriters...), other.Rewriters...),
	}
}

// File is the YAML form of user rules. Rewriters are listed in the order
// redirects, constants, traps.
//
//	redirects:
//	  - {from: {name: fd_seek}, to: {name: fd_seek64}}
//	constants:
//	  - {global: {module: env, name: __errno}, value: 0}
//	traps:
//	  - {name: sock_accept}
//	blocked_fields:
//	  reason: host struct layout changed
//	  fields: [{type: 3, field: 1}]
type File struct {
	BlockedFields *BlockedFieldsFile `yaml:"blocked_fields,omitempty"`
	Redirects     []RedirectFile     `yaml:"redirects,omitempty"`
	Constants     []ConstantFile     `yaml:"constants,omitempty"`
	Traps         []ImportRef        `yaml:"traps,omitempty"`
}

type RedirectFile struct {
	From ImportRef `yaml:"from"`
	To   ImportRef `yaml:"to"`
}

type ConstantFile struct {
	Global ImportRef `yaml:"global"`
	Value  float64   `yaml:"value"`
}

type BlockedFieldsFile struct {
	Reason string        `yaml:"reason,omitempty"`
	Fields []StructField `yaml:"fields"`
}

// LoadFile loads a rule file.
func LoadFile(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Set{}, errors.Config(fmt.Sprintf("read rules %s", path), err)
	}
	return Parse(data)
}

// Parse parses a YAML rule file.
func Parse(data []byte) (Set, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Set{}, errors.Config("parse rules YAML", err)
	}
	return f.Build()
}

// Build validates the file and converts it into rule lists.
func (f *File) Build() (Set, error) {
	var s Set

	if f.BlockedFields != nil && len(f.BlockedFields.Fields) > 0 {
		s.Finders = append(s.Finders, pipeline.NewFieldFinder(
			NewStructFieldAccess(f.BlockedFields.Reason, f.BlockedFields.Fields...)))
	}

	for i, r := range f.Redirects {
		if r.From.Name == "" || r.To.Name == "" {
			return Set{}, invalidRule("redirects", i, "from and to need a name")
		}
		s.Rewriters = append(s.Rewriters, RedirectCall{From: r.From, To: r.To})
	}
	for i, c := range f.Constants {
		if c.Global.Name == "" {
			return Set{}, invalidRule("constants", i, "global needs a name")
		}
		s.Rewriters = append(s.Rewriters, pipeline.NewFieldRewriter(GlobalConstant{Global: c.Global, Value: c.Value}))
	}
	for i, t := range f.Traps {
		if t.Name == "" {
			return Set{}, invalidRule("traps", i, "trap needs a name")
		}
		s.Rewriters = append(s.Rewriters, TrapCall{Func: t})
	}

	return s, nil
}

func invalidRule(list string, i int, detail string) error {
	return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
		Path(list, fmt.Sprint(i)).
		Detail("%s", detail).
		Build()
}
