package jsengine

import (
	"github.com/dop251/goja"
	"src.jsrt.sh/pkg/modload"
)

// esModuleMarker is the property that lowered declarative modules and the
// namespaces made by NamespaceOf carry, so that lowered import code uses them
// as namespaces instead of wrapping them again.
const esModuleMarker = "__esModule"

// NewObject returns a new empty JS object.
func (e *Engine) NewObject() modload.Value { return e.vm.NewObject() }

// NamespaceOf presents CommonJS exports to declarative importers: the own
// enumerable properties of the exports become named bindings, and the exports
// themselves the default binding.
func (e *Engine) NamespaceOf(exports modload.Value) modload.Namespace {
	v := e.vm.ToValue(exports)
	ns := e.vm.NewObject()
	if obj, ok := v.(*goja.Object); ok {
		for _, key := range obj.Keys() {
			ns.Set(key, obj.Get(key))
		}
	}
	ns.Set("default", v)
	ns.DefineDataProperty(esModuleMarker, e.vm.ToValue(true),
		goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
	return namespace{ns}
}

// namespace is a modload.Namespace backed by a JS object.
type namespace struct{ obj *goja.Object }

func (n namespace) Get(name string) (modload.Value, bool) {
	v := n.obj.Get(name)
	if v == nil {
		return nil, false
	}
	return v, true
}

func (n namespace) Keys() []string { return n.obj.Keys() }

func (n namespace) Object() modload.Value { return n.obj }
