package modload

// Value is an opaque host value, such as a module's exports.
type Value = any

// Namespace is the read-only collection of a declarative module's exported
// bindings.
type Namespace interface {
	// Get returns the current value of a binding.
	Get(name string) (Value, bool)
	// Keys returns the binding names.
	Keys() []string
	// Object returns the host value that exposes the whole namespace.
	Object() Value
}

// Realm creates host values on behalf of the loader.
type Realm interface {
	// NewObject returns a fresh empty record, used as the initial exports of
	// every CommonJS module.
	NewObject() Value
	// NamespaceOf presents CommonJS exports as a namespace so that declarative
	// modules can import them.
	NamespaceOf(exports Value) Namespace
}

// Object is a record with string keys kept in insertion order. It has no
// prototype: Keys reports own keys only. It is the value model used when a
// Loader is created without a Realm.
type Object struct {
	keys []string
	vals map[string]Value
}

// NewObject returns an empty Object.
func NewObject() *Object {
	return &Object{vals: make(map[string]Value)}
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.vals[key]
	return v, ok
}

// Set stores v under key. A new key is appended to the key order.
func (o *Object) Set(key string, v Value) {
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

// Delete removes key and reports whether it was present.
func (o *Object) Delete(key string) bool {
	if _, ok := o.vals[key]; !ok {
		return false
	}
	delete(o.vals, key)
	o.keys = removeString(o.keys, key)
	return true
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.vals[key]
	return ok
}

// Keys returns a copy of the keys in insertion order.
func (o *Object) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Len returns the number of keys.
func (o *Object) Len() int { return len(o.keys) }

// Object returns o itself, so that an *Object can serve as a Namespace.
func (o *Object) Object() Value { return o }

// ObjectRealm is the Realm backed by *Object values.
type ObjectRealm struct{}

// NewObject returns a new *Object.
func (ObjectRealm) NewObject() Value { return NewObject() }

// NamespaceOf copies the own keys of an *Object export and adds a "default"
// binding holding the exports value itself.
func (ObjectRealm) NamespaceOf(exports Value) Namespace {
	ns := NewObject()
	if o, ok := exports.(*Object); ok {
		for _, k := range o.keys {
			ns.Set(k, o.vals[k])
		}
	}
	if !ns.Has("default") {
		ns.Set("default", exports)
	}
	return ns
}

func removeString(s []string, x string) []string {
	for i, v := range s {
		if v == x {
			return append(s[:i:i], s[i+1:]...)
		}
	}
	return s
}
