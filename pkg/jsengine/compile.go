package jsengine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/spf13/afero"
	"src.jsrt.sh/pkg/modload"
	"src.jsrt.sh/pkg/resolve"
)

const (
	wrapperHead = "(function (exports, require, module, __filename, __dirname) { "
	wrapperTail = "\n})"
)

// CompileCJS compiles the module id. Declarative modules are redirected to the
// module graph.
func (e *Engine) CompileCJS(id string) (modload.Compiled, error) {
	format := e.resolver.FormatOf(id)
	switch format {
	case resolve.ESModule:
		return modload.ESMRedirect{}, nil
	case resolve.Native:
		// Enabled native extensions never get here.
		return nil, ErrNativeDisabled
	}
	code, err := afero.ReadFile(e.fs, id)
	if err != nil {
		return nil, err
	}
	if format == resolve.JSON {
		return modload.CJS{Unit: jsonUnit{e, code}}, nil
	}
	prog, err := e.compileWrapped(id, code)
	if err != nil {
		return nil, err
	}
	return modload.CJS{Unit: &cjsUnit{e, prog}}, nil
}

// ErrNativeDisabled is the error for requiring a native extension from an
// Engine that does not load them.
var ErrNativeDisabled = errors.New("loading native extensions is disabled")

func (e *Engine) compileWrapped(id string, code []byte) (*goja.Program, error) {
	src := string(code)
	if strings.HasPrefix(src, "#!") {
		// Keep line numbers.
		src = "//" + src[2:]
	}
	return goja.Compile(id, wrapperHead+src+wrapperTail, false)
}

type cjsUnit struct {
	e    *Engine
	prog *goja.Program
}

func (u *cjsUnit) Run(b *modload.Bindings) error {
	vm := u.e.vm
	v, err := vm.RunProgram(u.prog)
	if err != nil {
		return goError(err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return errors.New("module wrapper is not a function")
	}
	module := u.e.moduleObject(b.Module)
	_, err = fn(vm.ToValue(b.Exports), vm.ToValue(b.Exports), u.e.requireFunc(b),
		module, vm.ToValue(b.Filename), vm.ToValue(b.Dirname))
	return goError(err)
}

type jsonUnit struct {
	e    *Engine
	code []byte
}

func (u jsonUnit) Run(b *modload.Bindings) error {
	v, err := u.e.parseJSON(string(u.code))
	if err != nil {
		return fmt.Errorf("%s: %w", b.Filename, err)
	}
	b.Module.Exports = v
	return nil
}

func (e *Engine) parseJSON(s string) (goja.Value, error) {
	parse, ok := goja.AssertFunction(e.vm.Get("JSON").ToObject(e.vm).Get("parse"))
	if !ok {
		return nil, errors.New("JSON.parse is not a function")
	}
	v, err := parse(goja.Undefined(), e.vm.ToValue(s))
	return v, goError(err)
}

// moduleObject returns the JS module object of rec. Its exports property
// reads and writes rec.Exports.
func (e *Engine) moduleObject(rec *modload.ModuleRecord) *goja.Object {
	if module, ok := e.modules[rec]; ok {
		return module
	}
	vm := e.vm
	module := vm.NewObject()
	e.modules[rec] = module
	module.Set("id", rec.ID)
	module.Set("filename", rec.Filename)
	module.Set("path", rec.Dirname)
	module.DefineAccessorProperty("exports",
		vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(rec.Exports) }),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			rec.Exports = call.Argument(0)
			return goja.Undefined()
		}),
		goja.FLAG_TRUE, goja.FLAG_TRUE)
	module.DefineAccessorProperty("loaded",
		vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(rec.Evaluated) }),
		nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	module.DefineAccessorProperty("requiredBy",
		vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(rec.RequiredBy) }),
		nil, goja.FLAG_TRUE, goja.FLAG_FALSE)
	return module
}

// requireFunc returns the require function handed to a CommonJS body.
func (e *Engine) requireFunc(b *modload.Bindings) goja.Value {
	vm := e.vm
	require := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		v, err := b.Require(call.Argument(0).String(), e.requireOptions(call.Argument(1)))
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(v)
	}).(*goja.Object)
	require.Set("resolve", func(call goja.FunctionCall) goja.Value {
		id, err := b.Resolve(call.Argument(0).String(), e.requireOptions(call.Argument(1)))
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(id)
	})
	require.Set("cache", e.requireCacheObject())
	require.DefineAccessorProperty("main",
		vm.ToValue(func(goja.FunctionCall) goja.Value {
			if main := e.loader.Main(); main != nil {
				return e.moduleObject(main)
			}
			return goja.Undefined()
		}),
		nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	return require
}

// requireOptions reads the {paths: [...]} argument of require and
// require.resolve.
func (e *Engine) requireOptions(v goja.Value) *modload.RequireOptions {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	paths := v.ToObject(e.vm).Get("paths")
	if paths == nil || goja.IsUndefined(paths) {
		return nil
	}
	var opts modload.RequireOptions
	if err := e.vm.ExportTo(paths, &opts.SearchPaths); err != nil {
		panic(e.vm.NewTypeError("paths must be an array of strings"))
	}
	return &opts
}

// goError returns the Go error carried by a JS exception that was raised from
// Go, so that loader errors keep their type across JS frames.
func goError(err error) error {
	var ex *goja.Exception
	if !errors.As(err, &ex) {
		return err
	}
	obj, ok := ex.Value().(*goja.Object)
	if !ok {
		return err
	}
	if v := obj.Get("value"); v != nil {
		if inner, ok := v.Export().(error); ok {
			return inner
		}
	}
	return err
}
