// Package modload implements the module-loading core of the runtime: the
// CommonJS and ES module registries, require(), the synchronous forcing of ES
// module graphs and the merged require cache.
//
// All state is owned by a Loader. A Loader is not safe for concurrent use;
// module bodies may however call back into it re-entrantly, which is how
// circular requires are observed.
package modload

import (
	"errors"
	"io"
	"reflect"

	"github.com/hashicorp/go-multierror"
	"src.jsrt.sh/pkg/logutil"
)

var logger = logutil.GetLogger("[modload] ")

// Config lists the collaborators of a Loader. Resolver and Compiler are
// required.
type Config struct {
	Resolver PathResolver
	Compiler Compiler
	Builtins BuiltinTable
	Native   NativeExtensionLoader
	// Realm defaults to ObjectRealm.
	Realm Realm
}

// Loader is the loader context. It owns both registries.
type Loader struct {
	resolver PathResolver
	compiler Compiler
	builtins BuiltinTable
	native   NativeExtensionLoader
	realm    Realm

	cjs   *registry[*ModuleRecord]
	esm   *registry[*ModuleEntry]
	cache *CacheView

	mainID string
	closed bool
}

// New creates a Loader.
func New(cfg Config) *Loader {
	if cfg.Resolver == nil || cfg.Compiler == nil {
		panic("modload: Resolver and Compiler are required")
	}
	realm := cfg.Realm
	if realm == nil {
		realm = ObjectRealm{}
	}
	l := &Loader{
		resolver: cfg.Resolver,
		compiler: cfg.Compiler,
		builtins: cfg.Builtins,
		native:   cfg.Native,
		realm:    realm,
		cjs:      newRegistry[*ModuleRecord](),
		esm:      newRegistry[*ModuleEntry](),
	}
	l.cache = &CacheView{l: l, synthetic: make(map[string]*ModuleRecord)}
	return l
}

// RequireCache returns the merged view of both registries.
func (l *Loader) RequireCache() *CacheView { return l.cache }

// Main returns the record of the entry-point module, or nil if no main module
// has been run or it has been deleted from the cache.
func (l *Loader) Main() *ModuleRecord {
	if l.mainID == "" {
		return nil
	}
	rec, _ := l.cjs.get(l.mainID)
	return rec
}

// RunMain resolves specifier relative to the working directory, makes it the
// main module and requires it.
func (l *Loader) RunMain(specifier string, opts *RequireOptions) (Value, error) {
	if l.closed {
		return nil, ErrClosed
	}
	res, err := l.resolver.Resolve(specifier, "", searchPaths(opts))
	if err != nil {
		return nil, err
	}
	if !res.IsBuiltin {
		l.mainID = res.ID
	}
	logger.Printf("running main module %s", res.ID)
	return l.requireResolved(res, specifier, "")
}

// Entry returns the ESM registry entry for key.
func (l *Loader) Entry(key string) (*ModuleEntry, bool) {
	return l.esm.get(key)
}

// Close tears the loader down: both registries are cleared and collaborators
// that implement io.Closer are closed.
func (l *Loader) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	l.cjs.clear()
	l.esm.clear()
	l.cache.synthetic = make(map[string]*ModuleRecord)
	l.mainID = ""

	// One host often plays several roles; close each value once.
	var result error
	var done []io.Closer
	for _, c := range []any{l.compiler, l.native, l.builtins, l.resolver} {
		closer, ok := c.(io.Closer)
		if !ok || containsCloser(done, closer) {
			continue
		}
		done = append(done, closer)
		if err := closer.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// ErrClosed is returned by operations on a closed Loader.
var ErrClosed = errors.New("loader is closed")

func containsCloser(cs []io.Closer, c io.Closer) bool {
	if !reflect.TypeOf(c).Comparable() {
		return false
	}
	for _, x := range cs {
		if reflect.TypeOf(x) == reflect.TypeOf(c) && x == c {
			return true
		}
	}
	return false
}
