package modload

import (
	"context"
	"errors"

	"src.jsrt.sh/pkg/future"
)

// ForceEvaluate drives the declarative module graph rooted at the canonical
// id to full evaluation without suspending, and returns the namespace of the
// root.
//
// Work that is still in flight fails the call with
// *AsyncModuleUnsupportedError. Whatever progress was made stays registered,
// and the in-flight work keeps going; a later Import can complete the graph.
func (l *Loader) ForceEvaluate(id string) (Namespace, error) {
	if l.closed {
		return nil, ErrClosed
	}
	g := &graphRun{l: l, root: id, forced: true}
	return g.run()
}

// Import loads the declarative module named by specifier, waiting for
// in-flight fetch and evaluation work as needed. It completes graphs that a
// failed ForceEvaluate left behind.
func (l *Loader) Import(ctx context.Context, specifier, fromID string) (Namespace, error) {
	if l.closed {
		return nil, ErrClosed
	}
	res, err := l.resolver.Resolve(specifier, fromID, nil)
	if err != nil {
		return nil, err
	}
	if res.IsBuiltin {
		v, err := l.requireBuiltin(res.ID, specifier)
		if err != nil {
			return nil, err
		}
		return l.realm.NamespaceOf(v), nil
	}
	g := &graphRun{l: l, root: res.ID, ctx: ctx}
	return g.run()
}

// graphRun is one attempt at loading a module graph.
type graphRun struct {
	l      *Loader
	root   string
	forced bool
	ctx    context.Context
	// linked, if set, is called with the root once the graph is linked and
	// before anything is evaluated.
	linked func(root *ModuleEntry)
}

func drain[T any](g *graphRun, key string, f *future.Future[T]) (T, error) {
	if !g.forced {
		return f.Await(g.ctx)
	}
	v, err := f.ForceDrain()
	if errors.Is(err, future.ErrUnsettled) {
		return v, &AsyncModuleUnsupportedError{ID: g.root, Pending: key}
	}
	return v, err
}

// stillPending reports whether err means that work was left in flight rather
// than failed.
func stillPending(err error) bool {
	var async *AsyncModuleUnsupportedError
	return errors.As(err, &async) || errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (g *graphRun) run() (Namespace, error) {
	root, ok := g.l.esm.get(g.root)
	if !ok {
		root = &ModuleEntry{Key: g.root}
		g.l.esm.set(g.root, root)
	}
	if err := g.discover(root); err != nil {
		return nil, err
	}
	if g.linked != nil {
		g.linked(root)
	}
	if err := g.evaluate(root); err != nil {
		return nil, err
	}
	return root.Namespace(), nil
}

// discover walks the graph breadth-first from root until every reachable
// entry is Linked.
func (g *graphRun) discover(root *ModuleEntry) error {
	worklist := []string{root.Key}
	for len(worklist) > 0 {
		key := worklist[0]
		worklist = worklist[1:]
		e, ok := g.l.esm.get(key)
		if !ok {
			e = &ModuleEntry{Key: key}
			g.l.esm.set(key, e)
		}
		if e.state >= Linked {
			continue
		}
		newKeys, err := g.link(e)
		if err != nil {
			return err
		}
		worklist = append(worklist, newKeys...)
	}
	return nil
}

// link advances e to Linked and returns the keys of dependencies that were
// not registered before.
func (g *graphRun) link(e *ModuleEntry) ([]string, error) {
	if e.state == Unlinked {
		e.pending = g.l.compiler.Fetch(e.Key)
		e.advance(Fetching)
	}
	if e.state == Fetching {
		src, err := drain(g, e.Key, e.pending)
		if err != nil {
			if stillPending(err) {
				return nil, err
			}
			return nil, g.l.evictEntry(e, wrapEvaluation(e.Key, err))
		}
		e.source = src
		e.pending = nil
		e.advance(Fetched)
	}

	if e.source.CommonJS {
		e.unit = &requireUnit{l: g.l, res: Resolution{ID: e.Key}}
		e.source = Source{}
		e.advance(Linked)
		return nil, nil
	}

	parsed, err := g.l.compiler.ParseESM(e.source, e.Key)
	if err != nil {
		return nil, g.l.evictEntry(e, wrapEvaluation(e.Key, err))
	}

	// The entry is left untouched until every dependency resolves.
	resolved := make([]Resolution, len(parsed.DependencySpecifiers))
	for i, spec := range parsed.DependencySpecifiers {
		res, err := g.l.resolveDependency(spec, e.Key)
		if err != nil {
			return nil, g.l.evictEntry(e, err)
		}
		resolved[i] = res
	}
	e.source = Source{}

	deps := make([]string, len(resolved))
	var newKeys []string
	for i, res := range resolved {
		spec := parsed.DependencySpecifiers[i]
		deps[i] = res.ID
		if g.l.esm.has(res.ID) {
			continue
		}
		dep := &ModuleEntry{Key: res.ID}
		if res.IsBuiltin {
			dep.unit = &requireUnit{l: g.l, res: res, specifier: spec}
			dep.builtin = true
			dep.state = Linked
		}
		g.l.esm.set(res.ID, dep)
		if !res.IsBuiltin {
			newKeys = append(newKeys, res.ID)
		}
	}

	e.unit = parsed.Unit
	e.specs = append([]string(nil), parsed.DependencySpecifiers...)
	e.deps = deps
	e.advance(Linking)
	e.advance(Linked)
	logger.Printf("linked %s: %v", e.Key, deps)
	return newKeys, nil
}

// resolveDependency resolves the specifier of a static import. A specifier
// that already is a canonical id skips the resolver.
func (l *Loader) resolveDependency(spec, from string) (Resolution, error) {
	if l.esm.has(spec) || l.cjs.has(spec) {
		return Resolution{ID: spec}, nil
	}
	if cc, ok := l.resolver.(CanonicalChecker); ok && cc.IsCanonical(spec) {
		return Resolution{ID: spec}, nil
	}
	return l.resolver.Resolve(spec, from, nil)
}

// evaluate runs e after its dependencies, in the order of its fixed
// dependency list. An entry that is already being evaluated further up the
// stack is a cycle and is left alone.
func (g *graphRun) evaluate(e *ModuleEntry) error {
	if e.state == Evaluated {
		return nil
	}
	if e.onStack {
		return nil
	}
	if e.evaluation == nil {
		e.advance(Evaluating)
		e.onStack = true
		err := g.evaluateDeps(e)
		e.onStack = false
		if err != nil {
			return err
		}
		e.evaluation = e.unit.Execute(g.imports(e))
	}

	_, err := drain(g, e.Key, e.evaluation)
	if err != nil {
		if stillPending(err) {
			// Keep the in-flight evaluation; it may still finish.
			logger.Printf("left %s pending: %v", e.Key, err)
			return err
		}
		return g.l.evictEntry(e, wrapEvaluation(e.Key, err))
	}
	e.advance(Evaluated)
	return nil
}

func (g *graphRun) evaluateDeps(e *ModuleEntry) error {
	for _, key := range e.deps {
		dep, ok := g.l.esm.get(key)
		if !ok {
			// Deleted from the cache since it was linked; load it again.
			dep = &ModuleEntry{Key: key}
			g.l.esm.set(key, dep)
			if err := g.discover(dep); err != nil {
				return err
			}
		}
		if err := g.evaluate(dep); err != nil {
			return err
		}
	}
	return nil
}

func (g *graphRun) imports(e *ModuleEntry) *Imports {
	im := &Imports{Specifiers: e.specs, Namespaces: make([]Namespace, len(e.deps))}
	for i, key := range e.deps {
		if dep, ok := g.l.esm.get(key); ok {
			im.Namespaces[i] = dep.Namespace()
		}
	}
	return im
}

func (l *Loader) evictEntry(e *ModuleEntry, err error) error {
	if cur, ok := l.esm.get(e.Key); ok && cur == e {
		l.esm.delete(e.Key)
		delete(l.cache.synthetic, e.Key)
	}
	logger.Printf("evicted module entry %s: %v", e.Key, err)
	return err
}

// requireUnit presents a CommonJS or builtin module to declarative importers.
type requireUnit struct {
	l         *Loader
	res       Resolution
	specifier string
	ns        Namespace
}

func (u *requireUnit) Namespace() Namespace { return (*lazyNamespace)(u) }

func (u *requireUnit) Execute(*Imports) *future.Future[struct{}] {
	spec := u.specifier
	if spec == "" {
		spec = u.res.ID
	}
	exports, err := u.l.requireResolved(u.res, spec, "")
	if err != nil {
		return future.Rejected[struct{}](err)
	}
	u.ns = u.l.realm.NamespaceOf(exports)
	return future.Resolved(struct{}{})
}

// lazyNamespace is the namespace of a requireUnit; it is empty until the
// unit has executed.
type lazyNamespace requireUnit

func (n *lazyNamespace) Get(name string) (Value, bool) {
	if n.ns == nil {
		return nil, false
	}
	return n.ns.Get(name)
}

func (n *lazyNamespace) Keys() []string {
	if n.ns == nil {
		return nil
	}
	return n.ns.Keys()
}

func (n *lazyNamespace) Object() Value {
	if n.ns == nil {
		return nil
	}
	return n.ns.Object()
}
