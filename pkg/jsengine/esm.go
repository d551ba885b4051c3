package jsengine

import (
	"errors"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"src.jsrt.sh/pkg/compilecache"
	"src.jsrt.sh/pkg/future"
	"src.jsrt.sh/pkg/modload"
	"src.jsrt.sh/pkg/resolve"
)

// lowering identifies the esbuild options below in compile cache keys.
const lowering = "esbuild/cjs/es2017/1"

var transformOptions = api.TransformOptions{
	Loader: api.LoaderJS,
	Format: api.FormatCommonJS,
	Target: api.ES2017,
}

// Lowered import and re-export statements all take this form.
var requireCall = regexp.MustCompile(`\brequire\("((?:[^"\\]|\\.)*)"\)`)

// Static import and re-export statements as esbuild prints them in ESM
// format, one per line at the top level.
var importFrom = regexp.MustCompile(
	`(?m)^(?:import|export)\b[^;]*?\bfrom\s*"((?:[^"\\]|\\.)*)"|^import\s*"((?:[^"\\]|\\.)*)"`)

// Fetch reads the source of id. Sources are read synchronously, so the
// returned future is always settled.
func (e *Engine) Fetch(id string) *future.Future[modload.Source] {
	if e.resolver.FormatOf(id) != resolve.ESModule {
		return future.Resolved(modload.Source{CommonJS: true})
	}
	code, err := afero.ReadFile(e.fs, id)
	if err != nil {
		return future.Rejected[modload.Source](err)
	}
	return future.Resolved(modload.Source{Code: code})
}

// ParseESM lowers a declarative module and compiles the result.
func (e *Engine) ParseESM(src modload.Source, id string) (*modload.ParsedModule, error) {
	code, err := e.lower(id, src.Code)
	var tla *topLevelAwaitError
	if errors.As(err, &tla) {
		// The module can never finish here, but its dependencies can.
		logger.Printf("%s uses top-level await", id)
		deps, err := staticImports(id, src.Code)
		if err != nil {
			return nil, err
		}
		return &modload.ParsedModule{
			DependencySpecifiers: deps,
			Unit:                 &esmUnit{e: e, id: id, ns: e.vm.NewObject(), stalls: true},
		}, nil
	} else if err != nil {
		return nil, err
	}
	prog, err := goja.Compile(id, wrapperHead+code+wrapperTail, true)
	if err != nil {
		return nil, err
	}
	return &modload.ParsedModule{
		DependencySpecifiers: dependencies(code),
		Unit:                 &esmUnit{e: e, id: id, prog: prog, ns: e.vm.NewObject()},
	}, nil
}

// topLevelAwaitError is returned by lower for modules that can only be
// evaluated by suspending.
type topLevelAwaitError struct{ id string }

func (e *topLevelAwaitError) Error() string {
	return e.id + ": top-level await is not supported"
}

func (e *Engine) lower(id string, code []byte) (string, error) {
	var key string
	if e.cache != nil {
		key = compilecache.Key(id, code, lowering)
		if lowered, err := e.cache.Get(key); err == nil {
			return string(lowered), nil
		} else if err != compilecache.ErrNotFound {
			logger.Printf("compile cache: %v", err)
		}
	}

	opts := transformOptions
	opts.Sourcefile = id
	result := api.Transform(string(code), opts)
	if len(result.Errors) > 0 {
		var err error
		for _, msg := range result.Errors {
			if strings.HasPrefix(msg.Text, "Top-level await") {
				return "", &topLevelAwaitError{id}
			}
			err = multierror.Append(err, syntaxError(id, msg))
		}
		return "", err
	}

	if e.cache != nil {
		if err := e.cache.Put(key, result.Code); err != nil {
			logger.Printf("compile cache: %v", err)
		}
	}
	return string(result.Code), nil
}

func syntaxError(id string, msg api.Message) error {
	if loc := msg.Location; loc != nil {
		return &SyntaxError{File: id, Line: loc.Line, Column: loc.Column, Text: msg.Text}
	}
	return &SyntaxError{File: id, Text: msg.Text}
}

// SyntaxError is a problem found while lowering a declarative module.
type SyntaxError struct {
	File   string
	Line   int
	Column int
	Text   string
}

func (e *SyntaxError) Error() string {
	if e.Line == 0 {
		return e.File + ": " + e.Text
	}
	return e.File + ":" + strconv.Itoa(e.Line) + ":" + strconv.Itoa(e.Column) + ": " + e.Text
}

// dependencies returns the specifiers required by lowered code, in order of
// first appearance.
func dependencies(code string) []string {
	return matchSpecifiers(requireCall, code)
}

// staticImports returns the specifiers of the static imports of a module
// that cannot be lowered. esbuild reprints the module in ESM format first so
// that every import is on a line of its own with a double-quoted specifier.
func staticImports(id string, code []byte) ([]string, error) {
	result := api.Transform(string(code), api.TransformOptions{
		Loader:     api.LoaderJS,
		Format:     api.FormatESModule,
		Target:     api.ESNext,
		Sourcefile: id,
	})
	if len(result.Errors) > 0 {
		var err error
		for _, msg := range result.Errors {
			err = multierror.Append(err, syntaxError(id, msg))
		}
		return nil, err
	}
	return matchSpecifiers(importFrom, string(result.Code)), nil
}

func matchSpecifiers(re *regexp.Regexp, code string) []string {
	var deps []string
	seen := make(map[string]bool)
	for _, m := range re.FindAllStringSubmatch(code, -1) {
		quoted := m[1]
		if quoted == "" && len(m) > 2 {
			quoted = m[2]
		}
		spec, err := strconv.Unquote(`"` + quoted + `"`)
		if err != nil || spec == "" || seen[spec] {
			continue
		}
		seen[spec] = true
		deps = append(deps, spec)
	}
	return deps
}

// esmUnit is a lowered declarative module. Its namespace object exists before
// the body runs, so that modules in a cycle can hold on to it; the body copies
// its exports onto it.
type esmUnit struct {
	e    *Engine
	id   string
	prog *goja.Program
	ns   *goja.Object
	// Set for modules using top-level await.
	stalls bool
}

func (u *esmUnit) Namespace() modload.Namespace { return namespace{u.ns} }

func (u *esmUnit) Execute(im *modload.Imports) *future.Future[struct{}] {
	if u.stalls {
		f := future.New[struct{}]()
		u.e.stalled = append(u.e.stalled, f)
		return f
	}
	if err := u.run(im); err != nil {
		return future.Rejected[struct{}](err)
	}
	return future.Resolved(struct{}{})
}

func (u *esmUnit) run(im *modload.Imports) error {
	vm := u.e.vm
	v, err := vm.RunProgram(u.prog)
	if err != nil {
		return goError(err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return errors.New("module wrapper is not a function")
	}

	module := vm.NewObject()
	module.DefineAccessorProperty("exports",
		vm.ToValue(func(goja.FunctionCall) goja.Value { return u.ns }),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			if src, ok := call.Argument(0).(*goja.Object); ok && src != u.ns {
				if _, err := u.e.copyProps(goja.Undefined(), u.ns, src); err != nil {
					panic(err)
				}
			}
			return goja.Undefined()
		}),
		goja.FLAG_FALSE, goja.FLAG_TRUE)
	require := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		spec := call.Argument(0).String()
		dep, ok := im.Lookup(spec)
		if !ok {
			panic(vm.NewGoError(&modload.ModuleNotFoundError{Specifier: spec, From: u.id}))
		}
		return vm.ToValue(dep.Object())
	})

	_, err = fn(u.ns, u.ns, require, module, vm.ToValue(u.id), vm.ToValue(path.Dir(u.id)))
	return goError(err)
}
