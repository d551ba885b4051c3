package jsengine

import (
	"fmt"
	"path"
	"path/filepath"
	"plugin"

	"github.com/dop251/goja"
	"src.jsrt.sh/pkg/modload"
)

// NativeInit is the name of the symbol a native extension exports. Its type
// must be func(*goja.Runtime) (goja.Value, error).
const NativeInit = "InitModule"

// Handles reports whether id is a native extension and loading them is
// enabled.
func (e *Engine) Handles(id string) bool {
	return e.native && path.Ext(id) == ".node"
}

// Load opens the native extension id, which must be a Go plugin, and returns
// the value its init function produces as the module's exports.
func (e *Engine) Load(id string) (modload.Value, error) {
	p, err := plugin.Open(filepath.FromSlash(id))
	if err != nil {
		return nil, err
	}
	sym, err := p.Lookup(NativeInit)
	if err != nil {
		return nil, err
	}
	initModule, ok := sym.(func(*goja.Runtime) (goja.Value, error))
	if !ok {
		return nil, fmt.Errorf("%s: %s has type %T", id, NativeInit, sym)
	}
	logger.Printf("loading native extension %s", id)
	return initModule(e.vm)
}
