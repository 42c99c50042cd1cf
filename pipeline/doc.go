// Package pipeline scans function bodies with ordered rule lists.
//
// Finders flag instructions that cannot run on the target platform.
// Rewriters patch instructions through an Editor, which records edits
// against an immutable snapshot of the body so that positions stay valid
// while the scan is in progress.
//
// The field-access family wraps a FieldPredicate behind a shared guard
// that only admits global.get, global.set, struct.get (and its packed
// variants) and struct.set:
//
//	finder := pipeline.NewFieldFinder(myPredicate)
//	p := pipeline.New(pm, []pipeline.Finder{finder}, nil, pipeline.Options{})
//	changed, err := p.Run("app", m, true, false)
package pipeline
