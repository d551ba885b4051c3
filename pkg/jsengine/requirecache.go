package jsengine

import (
	"github.com/dop251/goja"
	"src.jsrt.sh/pkg/modload"
)

// requireCacheObject returns require.cache: a JS object whose properties are
// the entries of the loader's require cache.
func (e *Engine) requireCacheObject() *goja.Object {
	if e.cacheObj == nil {
		e.cacheObj = e.vm.NewDynamicObject(&cacheObject{e, e.loader.RequireCache()})
	}
	return e.cacheObj
}

// cacheObject adapts a modload.Cache to goja.DynamicObject. Entries read as
// module objects; writing an object stores a record with its exports property
// as exports.
type cacheObject struct {
	e     *Engine
	cache modload.Cache
}

func (c *cacheObject) Get(key string) goja.Value {
	rec, ok := c.cache.Get(key)
	if !ok {
		return nil
	}
	return c.e.moduleObject(rec)
}

func (c *cacheObject) Set(key string, val goja.Value) bool {
	obj, ok := val.(*goja.Object)
	if !ok {
		return false
	}
	rec := &modload.ModuleRecord{ID: key, Evaluated: true, Filename: key}
	if exports := obj.Get("exports"); exports != nil {
		rec.Exports = exports
	} else {
		rec.Exports = c.e.vm.NewObject()
	}
	c.cache.Set(key, rec)
	return true
}

func (c *cacheObject) Has(key string) bool { return c.cache.Has(key) }

func (c *cacheObject) Delete(key string) bool {
	c.cache.Delete(key)
	// Deleting a missing property succeeds in JS.
	return true
}

func (c *cacheObject) Keys() []string { return c.cache.Keys() }
