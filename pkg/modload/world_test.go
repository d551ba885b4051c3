package modload

import (
	"errors"
	"path"
	"strings"

	"src.jsrt.sh/pkg/future"
)

// world is an in-memory module universe. It plays the resolver, compiler,
// builtin table and native loader of a Loader under test.
type world struct {
	cjs      map[string]CJSFunc
	esm      map[string]*esmModule
	native   map[string]Value
	builtins map[string]Value
	// Non-canonical names of builtins.
	aliases map[string]string
	// Fetch futures handed out instead of settled ones.
	fetches map[string]*future.Future[Source]

	runs     map[string]int
	log      []string
	parsed   []string
	resolves []string
	closed   int
}

// esmModule describes a declarative module.
type esmModule struct {
	deps []string
	body func(im *Imports, ns *Object) error
	// If non-nil, Execute returns this instead of a settled future.
	await    *future.Future[struct{}]
	parseErr error
}

func newWorld() *world {
	return &world{
		cjs:      map[string]CJSFunc{},
		esm:      map[string]*esmModule{},
		native:   map[string]Value{},
		builtins: map[string]Value{},
		aliases:  map[string]string{},
		fetches:  map[string]*future.Future[Source]{},
		runs:     map[string]int{},
	}
}

func (w *world) loader() *Loader {
	return New(Config{Resolver: w, Compiler: w, Builtins: w, Native: w})
}

func (w *world) exists(id string) bool {
	_, inCJS := w.cjs[id]
	_, inESM := w.esm[id]
	_, inNative := w.native[id]
	return inCJS || inESM || inNative
}

func (w *world) Resolve(spec, importer string, searchPaths []string) (Resolution, error) {
	w.resolves = append(w.resolves, spec)
	if _, ok := w.builtins[spec]; ok {
		return Resolution{ID: spec, IsBuiltin: true}, nil
	}
	if canon, ok := w.aliases[spec]; ok {
		return Resolution{ID: canon, IsBuiltin: true}, nil
	}
	var id string
	switch {
	case strings.HasPrefix(spec, "/"):
		id = spec
	case strings.HasPrefix(spec, "./"), strings.HasPrefix(spec, "../"):
		dir := "/"
		if importer != "" {
			dir = path.Dir(importer)
		}
		id = path.Join(dir, spec)
	default:
		for _, p := range searchPaths {
			if cand := path.Join(p, spec); w.exists(cand) {
				return Resolution{ID: cand}, nil
			}
		}
		id = path.Join("/node_modules", spec)
	}
	if !w.exists(id) {
		return Resolution{}, &ModuleNotFoundError{Specifier: spec, From: importer}
	}
	return Resolution{ID: id}, nil
}

func (w *world) CompileCJS(id string) (Compiled, error) {
	if body, ok := w.cjs[id]; ok {
		return CJS{Unit: CJSFunc(func(b *Bindings) error {
			w.runs[id]++
			w.log = append(w.log, id)
			return body(b)
		})}, nil
	}
	if _, ok := w.esm[id]; ok {
		return ESMRedirect{}, nil
	}
	return nil, errors.New("no such module: " + id)
}

func (w *world) Fetch(id string) *future.Future[Source] {
	if f, ok := w.fetches[id]; ok {
		return f
	}
	if _, ok := w.cjs[id]; ok {
		return future.Resolved(Source{CommonJS: true})
	}
	if _, ok := w.esm[id]; ok {
		return future.Resolved(Source{Code: []byte(id)})
	}
	return future.Rejected[Source](errors.New("no such module: " + id))
}

func (w *world) ParseESM(src Source, id string) (*ParsedModule, error) {
	w.parsed = append(w.parsed, id)
	if len(src.Code) == 0 {
		return nil, errors.New("empty source: " + id)
	}
	m := w.esm[id]
	if m.parseErr != nil {
		return nil, m.parseErr
	}
	return &ParsedModule{
		DependencySpecifiers: m.deps,
		Unit:                 &esmUnit{w: w, id: id, m: m, ns: NewObject()},
	}, nil
}

func (w *world) Lookup(id string) (Value, bool) {
	v, ok := w.builtins[id]
	return v, ok
}

func (w *world) Handles(id string) bool {
	_, ok := w.native[id]
	return ok
}

func (w *world) Load(id string) (Value, error) {
	w.log = append(w.log, id)
	return w.native[id], nil
}

func (w *world) Close() error {
	w.closed++
	return nil
}

type esmUnit struct {
	w  *world
	id string
	m  *esmModule
	ns *Object
}

func (u *esmUnit) Namespace() Namespace { return u.ns }

func (u *esmUnit) Execute(im *Imports) *future.Future[struct{}] {
	u.w.runs[u.id]++
	u.w.log = append(u.w.log, u.id)
	if u.m.body != nil {
		if err := u.m.body(im, u.ns); err != nil {
			return future.Rejected[struct{}](err)
		}
	}
	if u.m.await != nil {
		return u.m.await
	}
	return future.Resolved(struct{}{})
}

// setter returns a CommonJS body that sets key to v on its exports.
func setter(key string, v Value) CJSFunc {
	return func(b *Bindings) error {
		b.Exports.(*Object).Set(key, v)
		return nil
	}
}

func get(v Value, key string) Value {
	o, ok := v.(*Object)
	if !ok {
		return nil
	}
	x, _ := o.Get(key)
	return x
}
