package jsengine

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/dop251/goja"
	"src.jsrt.sh/pkg/modload"
	"src.jsrt.sh/pkg/resolve"
)

// BuiltinNames are the names of the builtin modules of an Engine.
var BuiltinNames = []string{"console", "module", "path"}

var builtinMakers = map[string]func(*Engine) goja.Value{
	"console": (*Engine).consoleModule,
	"module":  (*Engine).moduleModule,
	"path":    (*Engine).pathModule,
}

// Lookup returns the builtin module id, creating it on first use.
func (e *Engine) Lookup(id string) (modload.Value, bool) {
	if v, ok := e.builtins[id]; ok {
		return v, true
	}
	mk, ok := builtinMakers[id]
	if !ok {
		return nil, false
	}
	v := mk(e)
	e.builtins[id] = v
	return v, true
}

func (e *Engine) pathModule() goja.Value {
	m := e.vm.NewObject()
	m.Set("sep", "/")
	m.Set("delimiter", ":")
	m.Set("join", func(parts ...string) string {
		if p := path.Join(parts...); p != "" {
			return p
		}
		return "."
	})
	m.Set("resolve", func(parts ...string) string {
		p := e.cwd
		for _, part := range parts {
			if path.IsAbs(part) {
				p = part
			} else if part != "" {
				p = path.Join(p, part)
			}
		}
		return path.Clean(p)
	})
	m.Set("normalize", func(p string) string {
		if p == "" {
			return "."
		}
		clean := path.Clean(p)
		if strings.HasSuffix(p, "/") && clean != "/" {
			clean += "/"
		}
		return clean
	})
	m.Set("isAbsolute", path.IsAbs)
	m.Set("dirname", func(p string) string {
		if p == "" {
			return "."
		}
		return path.Dir(strings.TrimSuffix(p, "/"))
	})
	m.Set("basename", func(p, ext string) string {
		base := path.Base(p)
		if base == "/" || base == "." && p == "" {
			return ""
		}
		if ext != "" && ext != base {
			base = strings.TrimSuffix(base, ext)
		}
		return base
	})
	m.Set("extname", func(p string) string {
		base := path.Base(p)
		if strings.LastIndexByte(base, '.') <= 0 {
			return ""
		}
		return path.Ext(base)
	})
	m.Set("relative", func(from, to string) string {
		return relative(e.cwd, from, to)
	})
	m.Set("posix", m)
	return m
}

// relative returns the path from from to to, both resolved against cwd.
func relative(cwd, from, to string) string {
	abs := func(p string) string {
		if path.IsAbs(p) {
			return path.Clean(p)
		}
		return path.Join(cwd, p)
	}
	fromParts := split(abs(from))
	toParts := split(abs(to))
	i := 0
	for i < len(fromParts) && i < len(toParts) && fromParts[i] == toParts[i] {
		i++
	}
	var rel []string
	for range fromParts[i:] {
		rel = append(rel, "..")
	}
	rel = append(rel, toParts[i:]...)
	return strings.Join(rel, "/")
}

func split(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func (e *Engine) consoleModule() goja.Value {
	m := e.vm.NewObject()
	printer := func(w io.Writer) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			args := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				args[i] = e.inspect(arg)
			}
			fmt.Fprintln(w, strings.Join(args, " "))
			return goja.Undefined()
		}
	}
	m.Set("log", printer(e.stdout))
	m.Set("info", printer(e.stdout))
	m.Set("debug", printer(e.stdout))
	m.Set("warn", printer(e.stderr))
	m.Set("error", printer(e.stderr))
	return m
}

// inspect formats v for the console. Strings are written as they are, other
// objects as JSON when they can be.
func (e *Engine) inspect(v goja.Value) string {
	if _, ok := v.Export().(string); ok {
		return v.String()
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	if _, isFunc := goja.AssertFunction(obj); isFunc {
		return "[Function]"
	}
	if _, isErr := obj.Export().(error); isErr || obj.ClassName() == "Error" {
		if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
			return stack.String()
		}
		return obj.String()
	}
	b, err := obj.MarshalJSON()
	if err != nil {
		return obj.String()
	}
	return string(b)
}

func (e *Engine) moduleModule() goja.Value {
	m := e.vm.NewObject()
	m.Set("builtinModules", append([]string(nil), BuiltinNames...))
	m.Set("createRequire", func(call goja.FunctionCall) goja.Value {
		filename := strings.TrimPrefix(call.Argument(0).String(), "file://")
		if !path.IsAbs(filename) {
			panic(e.vm.NewTypeError("createRequire needs an absolute path, got %q", filename))
		}
		return e.requireFunc(&modload.Bindings{
			Require: func(spec string, opts *modload.RequireOptions) (modload.Value, error) {
				return e.loader.Require(spec, filename, opts)
			},
			Resolve: func(spec string, opts *modload.RequireOptions) (string, error) {
				return e.loader.RequireResolve(spec, filename, opts)
			},
			Filename: filename,
			Dirname:  path.Dir(filename),
		})
	})
	m.Set("isBuiltin", func(spec string) bool {
		return e.resolver.IsBuiltin(strings.TrimPrefix(spec, resolve.BuiltinPrefix))
	})
	return m
}
