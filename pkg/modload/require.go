package modload

import (
	"fmt"
	"path/filepath"
)

// RequireOptions are the options accepted by require.
type RequireOptions struct {
	// SearchPaths replaces the resolver's default search paths for bare
	// specifiers.
	SearchPaths []string
}

func searchPaths(opts *RequireOptions) []string {
	if opts == nil {
		return nil
	}
	return opts.SearchPaths
}

// ExportsBinding is the namespace binding that, when a declarative module
// exports it, becomes the CommonJS exports of that module.
const ExportsBinding = "module.exports"

// Require loads the module named by specifier on behalf of the module fromID
// (empty for the working directory) and returns its exports.
//
// A module that is being evaluated further up the call stack is not
// evaluated again; its exports are returned as they currently are.
func (l *Loader) Require(specifier, fromID string, opts *RequireOptions) (Value, error) {
	if l.closed {
		return nil, ErrClosed
	}
	res, err := l.resolver.Resolve(specifier, fromID, searchPaths(opts))
	if err != nil {
		return nil, err
	}
	return l.requireResolved(res, specifier, fromID)
}

// RequireResolve resolves specifier like Require does, without loading it.
func (l *Loader) RequireResolve(specifier, fromID string, opts *RequireOptions) (string, error) {
	res, err := l.resolver.Resolve(specifier, fromID, searchPaths(opts))
	if err != nil {
		return "", err
	}
	return res.ID, nil
}

func (l *Loader) requireResolved(res Resolution, specifier, fromID string) (Value, error) {
	if res.IsBuiltin {
		return l.requireBuiltin(res.ID, specifier)
	}
	id := res.ID

	if rec, ok := l.cjs.get(id); ok {
		rec.addRequiredBy(fromID)
		if !rec.Evaluated {
			logger.Printf("cyclic require of %s from %s", id, fromID)
		}
		return rec.Exports, nil
	}

	if l.native != nil && l.native.Handles(id) {
		exports, err := l.native.Load(id)
		if err != nil {
			return nil, wrapEvaluation(id, err)
		}
		rec := l.newRecord(id)
		rec.Exports = exports
		rec.Evaluated = true
		rec.addRequiredBy(fromID)
		l.cjs.set(id, rec)
		return exports, nil
	}

	rec := l.newRecord(id)
	rec.addRequiredBy(fromID)
	// Registering before the body runs is what lets a cyclic require observe
	// the partial exports instead of recursing.
	l.cjs.set(id, rec)
	rec.EvaluationInProgress = true

	compiled, err := l.compiler.CompileCJS(id)
	if err != nil {
		return nil, l.evict(rec, wrapEvaluation(id, err))
	}

	switch c := compiled.(type) {
	case ESMRedirect:
		if err := l.requireESM(rec); err != nil {
			return nil, l.evict(rec, err)
		}
	case CJS:
		if err := c.Unit.Run(l.bindings(rec)); err != nil {
			return nil, l.evict(rec, wrapEvaluation(id, err))
		}
	default:
		return nil, l.evict(rec, &EvaluationError{
			ID: id, Cause: fmt.Errorf("unexpected compile result %T", compiled)})
	}

	rec.Evaluated = true
	rec.EvaluationInProgress = false
	return rec.Exports, nil
}

func (l *Loader) requireBuiltin(id, specifier string) (Value, error) {
	// Compatibility shim: a builtin requested under a non-canonical alias can
	// be overridden by a require-cache entry stored under that alias.
	if specifier != id {
		if rec, ok := l.cjs.get(specifier); ok {
			return rec.Exports, nil
		}
	}
	if l.builtins != nil {
		if v, ok := l.builtins.Lookup(id); ok {
			return v, nil
		}
	}
	return nil, &ModuleNotFoundError{Specifier: specifier}
}

// requireESM forces the declarative module of rec and makes its namespace
// the exports of rec. The namespace object becomes the exports as soon as the
// graph is linked, so that a cyclic require from one of its dependencies sees
// the object that is being filled.
func (l *Loader) requireESM(rec *ModuleRecord) error {
	if l.closed {
		return ErrClosed
	}
	bridge := func(e *ModuleEntry) {
		if v := exportsOfNamespace(e.Namespace()); v != nil {
			rec.Exports = v
		}
	}
	g := &graphRun{l: l, root: rec.ID, forced: true, linked: bridge}
	ns, err := g.run()
	if err != nil {
		return err
	}
	if v := exportsOfNamespace(ns); v != nil {
		rec.Exports = v
	}
	if e, ok := l.esm.get(rec.ID); ok {
		e.bridged = true
	}
	return nil
}

func exportsOfNamespace(ns Namespace) Value {
	if ns == nil {
		return nil
	}
	if v, ok := ns.Get(ExportsBinding); ok {
		return v
	}
	return ns.Object()
}

func (l *Loader) newRecord(id string) *ModuleRecord {
	return &ModuleRecord{
		ID:       id,
		Exports:  l.realm.NewObject(),
		Filename: id,
		Dirname:  filepath.Dir(id),
	}
}

func (l *Loader) bindings(rec *ModuleRecord) *Bindings {
	return &Bindings{
		Exports: rec.Exports,
		Require: func(specifier string, opts *RequireOptions) (Value, error) {
			return l.Require(specifier, rec.ID, opts)
		},
		Resolve: func(specifier string, opts *RequireOptions) (string, error) {
			return l.RequireResolve(specifier, rec.ID, opts)
		},
		Module:   rec,
		Filename: rec.Filename,
		Dirname:  rec.Dirname,
	}
}

// evict removes rec from the CommonJS registry so that the next require of
// the same id starts afresh, and returns err.
func (l *Loader) evict(rec *ModuleRecord, err error) error {
	rec.EvaluationInProgress = false
	if cur, ok := l.cjs.get(rec.ID); ok && cur == rec {
		l.cjs.delete(rec.ID)
	}
	logger.Printf("evicted %s: %v", rec.ID, err)
	return err
}
