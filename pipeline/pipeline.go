package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-rebind/errors"
	"github.com/wippyai/wasm-rebind/platform"
	"github.com/wippyai/wasm-rebind/wasm"
)

// Options configures a Pipeline.
type Options struct {
	Logger *zap.Logger
}

// Outcome summarizes one scan of a module.
type Outcome struct {
	// Warnings are the distinct tolerated-incompatibility messages.
	Warnings []string
	// Rewrites counts rewriter matches.
	Rewrites int
	// Changed reports whether any rewriter matched.
	Changed bool
}

// Pipeline runs finders and rewriters over every function body of a
// module. Both lists are ordered and evaluated independently per
// instruction; within a list the first matching rule wins.
type Pipeline struct {
	pm        *platform.Map
	logger    *zap.Logger
	finders   []Finder
	rewriters []Rewriter
}

// New creates a Pipeline.
func New(pm *platform.Map, finders []Finder, rewriters []Rewriter, opts Options) *Pipeline {
	p := &Pipeline{
		pm:        pm,
		finders:   finders,
		rewriters: rewriters,
		logger:    opts.Logger,
	}
	if p.logger == nil {
		p.logger = Logger()
	}
	return p
}

// Finders returns the finder list.
func (p *Pipeline) Finders() []Finder {
	return p.finders
}

// Rewriters returns the rewriter list.
func (p *Pipeline) Rewriters() []Rewriter {
	return p.rewriters
}

// Run scans m and reports whether any rewriter changed it.
func (p *Pipeline) Run(name string, m *wasm.Module, platformChanged, assumeCompatible bool) (bool, error) {
	out, err := p.Scan(name, m, platformChanged, assumeCompatible)
	return out.Changed, err
}

// Scan scans every function body of m in place.
//
// A finder match fails the scan with an IncompatibleInstruction error,
// unless assumeCompatible is set, in which case a warning is logged once
// per distinct message. A rewriter match applies the rewriter to an
// Editor over the body snapshot; edited bodies are re-encoded after the
// body has been fully visited.
func (p *Pipeline) Scan(name string, m *wasm.Module, platformChanged, assumeCompatible bool) (Outcome, error) {
	var out Outcome
	warned := make(map[string]struct{})
	base := uint32(m.NumImportedFuncs())

	for i := range m.Code {
		body := &m.Code[i]
		funcIdx := base + uint32(i)

		snapshot, err := wasm.DecodeInstructions(body.Code)
		if err != nil {
			return out, errors.New(errors.PhaseScan, errors.KindInvalidData).
				Module(name).
				Detail("decode function %d", funcIdx).
				Cause(err).
				Build()
		}

		ed := NewEditor(snapshot)
		for pos, instr := range snapshot {
			site := Site{
				Module:          m,
				Instr:           instr,
				Pos:             pos,
				Func:            funcIdx,
				PlatformChanged: platformChanged,
			}

			if f := p.firstFinder(site); f != nil {
				desc := f.Description()
				if !assumeCompatible {
					return out, errors.IncompatibleInstruction(desc, name)
				}
				msg := fmt.Sprintf("%s in module %s", desc, name)
				if _, dup := warned[msg]; !dup {
					warned[msg] = struct{}{}
					out.Warnings = append(out.Warnings, msg)
					p.logger.Warn("tolerating incompatible instruction",
						zap.String("module", name),
						zap.String("rule", desc),
						zap.Uint32("func", funcIdx),
						zap.Stringer("instr", instr))
				}
			}

			if r := p.firstRewriter(site); r != nil {
				r.Apply(site, ed, p.pm)
				out.Changed = true
				out.Rewrites++
				p.logger.Debug("applied rewriter",
					zap.String("module", name),
					zap.String("rule", r.Description()),
					zap.Uint32("func", funcIdx),
					zap.Int("pos", pos))
			}
		}

		if ed.Dirty() {
			body.Code = wasm.EncodeInstructions(ed.Result())
		}
	}

	return out, nil
}

func (p *Pipeline) firstFinder(site Site) Finder {
	for _, f := range p.finders {
		if f.Matches(site) {
			return f
		}
	}
	return nil
}

func (p *Pipeline) firstRewriter(site Site) Rewriter {
	for _, r := range p.rewriters {
		if r.Matches(site) {
			return r
		}
	}
	return nil
}
