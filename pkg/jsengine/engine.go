// Package jsengine hosts module bodies in a goja runtime. An Engine supplies
// the Compiler, Realm, BuiltinTable and NativeExtensionLoader of a
// modload.Loader, and owns that Loader.
//
// CommonJS bodies run inside the usual function wrapper. Declarative modules
// are lowered to CommonJS form by esbuild before they run; the lowering output
// can be kept in a compilecache.Cache between runs.
package jsengine

import (
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/dop251/goja"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"src.jsrt.sh/pkg/compilecache"
	"src.jsrt.sh/pkg/future"
	"src.jsrt.sh/pkg/logutil"
	"src.jsrt.sh/pkg/modload"
	"src.jsrt.sh/pkg/resolve"
)

var logger = logutil.GetLogger("[jsengine] ")

// Config is the configuration of an Engine.
type Config struct {
	// Fs holds module files. It defaults to the OS filesystem.
	Fs afero.Fs
	// Cwd is the absolute, slash-separated directory that the main module and
	// evaluated code are resolved against. It defaults to the working
	// directory of the process.
	Cwd string
	// SearchPaths are consulted for bare specifiers after node_modules
	// directories.
	SearchPaths []string
	// Cache, if not nil, keeps lowered declarative modules. The Engine takes
	// ownership of it.
	Cache *compilecache.Cache
	// Stdout and Stderr receive the output of the console builtin. They
	// default to os.Stdout and os.Stderr.
	Stdout, Stderr io.Writer
	// NativeExtensions enables loading .node files as Go plugins.
	NativeExtensions bool
}

// Engine is a goja runtime together with the module loader that runs in it.
// Like the Loader, it is not safe for concurrent use.
type Engine struct {
	vm       *goja.Runtime
	fs       afero.Fs
	cwd      string
	resolver *resolve.Resolver
	loader   *modload.Loader
	cache    *compilecache.Cache

	stdout, stderr io.Writer
	native         bool

	builtins map[string]goja.Value
	// JS module objects by record, so that require.main === module holds.
	modules map[*modload.ModuleRecord]*goja.Object
	// Evaluations that can never finish in this runtime, rejected on Close.
	stalled []*future.Future[struct{}]
	// JS helpers compiled once per runtime.
	copyProps goja.Callable
	// The require.cache object, created on first use.
	cacheObj *goja.Object

	closed bool
}

// New creates an Engine.
func New(cfg Config) *Engine {
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	// Code passed to Eval lives in a memory layer over fs.
	fs = afero.NewCopyOnWriteFs(afero.NewReadOnlyFs(fs), afero.NewMemMapFs())
	cwd := cfg.Cwd
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			wd = "/"
		}
		cwd = filepath.ToSlash(wd)
	}
	stdout, stderr := cfg.Stdout, cfg.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	e := &Engine{
		vm:       goja.New(),
		fs:       fs,
		cwd:      cwd,
		cache:    cfg.Cache,
		stdout:   stdout,
		stderr:   stderr,
		native:   cfg.NativeExtensions,
		builtins: make(map[string]goja.Value),
		modules:  make(map[*modload.ModuleRecord]*goja.Object),
	}
	e.resolver = resolve.New(fs, resolve.Config{
		Cwd: cwd, SearchPaths: cfg.SearchPaths, Builtins: BuiltinNames})
	e.loader = modload.New(modload.Config{
		Resolver: e.resolver,
		Compiler: e,
		Builtins: e,
		Native:   e,
		Realm:    e,
	})
	e.copyProps = e.mustCompileFunc("copyProps", copyPropsJS)
	if console, ok := e.Lookup("console"); ok {
		e.vm.Set("console", console)
	}
	return e
}

// Loader returns the module loader of the Engine.
func (e *Engine) Loader() *modload.Loader { return e.loader }

// Runtime returns the goja runtime that module bodies run in.
func (e *Engine) Runtime() *goja.Runtime { return e.vm }

// RunMain runs the module at p, which is relative to the configured working
// directory unless absolute, as the main module.
func (e *Engine) RunMain(p string) (goja.Value, error) {
	spec := filepath.ToSlash(p)
	if !path.IsAbs(spec) {
		spec = path.Join(e.cwd, spec)
	}
	v, err := e.loader.RunMain(spec, nil)
	if err != nil {
		return nil, err
	}
	return e.vm.ToValue(v), nil
}

// EvalName is the base name of the module that Eval runs code as.
const EvalName = "[eval].js"

// Eval runs code as the main CommonJS module, as if it were a file named
// EvalName in the working directory, and returns its exports.
func (e *Engine) Eval(code string) (goja.Value, error) {
	name := path.Join(e.cwd, EvalName)
	if err := afero.WriteFile(e.fs, name, []byte(code), 0644); err != nil {
		return nil, err
	}
	// Evaluating again replaces the previous code.
	e.loader.RequireCache().Delete(name)
	return e.RunMain(name)
}

// JSON returns v encoded by JSON.stringify. Values that JSON cannot represent
// encode as null.
func (e *Engine) JSON(v goja.Value) (string, error) {
	stringify, ok := goja.AssertFunction(e.vm.Get("JSON").ToObject(e.vm).Get("stringify"))
	if !ok {
		return "", errors.New("JSON.stringify is not a function")
	}
	s, err := stringify(goja.Undefined(), v)
	if err != nil {
		return "", goError(err)
	}
	if s == nil || goja.IsUndefined(s) {
		return "null", nil
	}
	return s.String(), nil
}

// Interrupt stops the code that is running, which then fails with a
// *goja.InterruptedError. It is safe to call from another goroutine.
func (e *Engine) Interrupt(reason string) { e.vm.Interrupt(reason) }

// Close tears the Engine down. Its Loader is closed, evaluations that are
// still stalled are rejected and the compile cache is closed. Close is
// idempotent.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	var result error
	if err := e.loader.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	for _, f := range e.stalled {
		f.Reject(ErrClosed)
	}
	e.stalled = nil
	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// ErrClosed rejects work that was still pending when the Engine was closed.
var ErrClosed = errors.New("engine is closed")

func (e *Engine) mustCompileFunc(name, src string) goja.Callable {
	v, err := e.vm.RunScript(name, src)
	if err != nil {
		panic(err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		panic(name + " is not a function")
	}
	return fn
}

// copyPropsJS copies all own properties with their descriptors, so that the
// getters of live bindings stay live.
const copyPropsJS = `(function (target, source) {
	Object.defineProperties(target, Object.getOwnPropertyDescriptors(source));
})`
