package modload

import "path/filepath"

// Cache is the read-write interface of the require cache.
type Cache interface {
	Get(id string) (*ModuleRecord, bool)
	Set(id string, rec *ModuleRecord)
	Has(id string) bool
	Delete(id string) bool
	Keys() []string
}

// CacheView is the require cache. It merges the CommonJS registry with the
// evaluated part of the ESM registry.
//
// Writes only ever go to the CommonJS registry; deletes go to both.
type CacheView struct {
	l *Loader
	// Records standing in for evaluated ESM entries, created on first Get.
	synthetic map[string]*ModuleRecord
}

var _ Cache = (*CacheView)(nil)

// Get returns the record for id.
func (c *CacheView) Get(id string) (*ModuleRecord, bool) {
	if rec, ok := c.l.cjs.get(id); ok {
		return rec, true
	}
	e, ok := c.l.esm.get(id)
	if !ok || e.state != Evaluated {
		return nil, false
	}
	if rec, ok := c.synthetic[id]; ok {
		return rec, true
	}
	rec := &ModuleRecord{
		ID:        id,
		Exports:   exportsOfNamespace(e.Namespace()),
		IsBuiltin: e.builtin,
		Evaluated: true,
	}
	if !e.builtin {
		rec.Filename = id
		rec.Dirname = filepath.Dir(id)
	}
	c.synthetic[id] = rec
	return rec, true
}

// Set stores rec under id in the CommonJS registry. A record without an ID
// takes id.
func (c *CacheView) Set(id string, rec *ModuleRecord) {
	if rec.ID == "" {
		rec.ID = id
	}
	c.l.cjs.set(id, rec)
}

// Has reports whether Get would find id.
func (c *CacheView) Has(id string) bool {
	if c.l.cjs.has(id) {
		return true
	}
	e, ok := c.l.esm.get(id)
	return ok && e.state == Evaluated
}

// Delete removes id from both registries and reports whether anything was
// removed. The next load of id starts afresh.
func (c *CacheView) Delete(id string) bool {
	e, _ := c.l.esm.get(id)
	inCJS := c.l.cjs.delete(id)
	inESM := c.l.esm.delete(id)
	delete(c.synthetic, id)
	if inCJS || inESM {
		logger.Printf("deleted %s from the require cache (bridged: %v)", id, e != nil && e.bridged)
	}
	return inCJS || inESM
}

// Keys returns the CommonJS keys followed by the keys of evaluated ESM
// entries that are not also CommonJS keys, each in insertion order.
func (c *CacheView) Keys() []string {
	keys := c.l.cjs.keys()
	for _, key := range c.l.esm.keys() {
		if c.l.cjs.has(key) {
			continue
		}
		if e, _ := c.l.esm.get(key); e.state == Evaluated {
			keys = append(keys, key)
		}
	}
	return keys
}

// Len returns the number of keys.
func (c *CacheView) Len() int { return len(c.Keys()) }
