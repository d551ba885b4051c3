package modload

import "src.jsrt.sh/pkg/future"

// Resolution is the result of resolving a specifier.
type Resolution struct {
	// ID is the canonical id of the module.
	ID string
	// IsBuiltin is set when ID names an entry of the BuiltinTable.
	IsBuiltin bool
}

// PathResolver maps a specifier, as written by an importer, to a canonical
// id. It fails with *ModuleNotFoundError.
type PathResolver interface {
	Resolve(specifier, importer string, searchPaths []string) (Resolution, error)
}

// CanonicalChecker is optionally implemented by a PathResolver that can tell
// cheaply whether a specifier already is a canonical id.
type CanonicalChecker interface {
	IsCanonical(specifier string) bool
}

// Compiler turns module ids into executable units.
type Compiler interface {
	// CompileCJS returns either CJS{Unit} or ESMRedirect{} for id.
	CompileCJS(id string) (Compiled, error)
	// Fetch starts loading the source of a declarative module.
	Fetch(id string) *future.Future[Source]
	// ParseESM parses a declarative module.
	ParseESM(src Source, id string) (*ParsedModule, error)
}

// Compiled is the tagged result of Compiler.CompileCJS: either CJS or
// ESMRedirect.
type Compiled interface{ compiled() }

// CJS carries the executable unit of a CommonJS module.
type CJS struct{ Unit CJSUnit }

// ESMRedirect signals that the id is a declarative module and must be loaded
// by forcing its module graph.
type ESMRedirect struct{}

func (CJS) compiled()         {}
func (ESMRedirect) compiled() {}

// Source is the fetched text of a module.
type Source struct {
	Code []byte
	// CommonJS is set when the fetched module turns out to be a CommonJS
	// module imported from a declarative one.
	CommonJS bool
}

// ParsedModule is the result of Compiler.ParseESM.
type ParsedModule struct {
	DependencySpecifiers []string
	Unit                 ESMUnit
}

// Bindings are the free variables a CommonJS body is run with.
type Bindings struct {
	Exports  Value
	Require  func(specifier string, opts *RequireOptions) (Value, error)
	Resolve  func(specifier string, opts *RequireOptions) (string, error)
	Module   *ModuleRecord
	Filename string
	Dirname  string
}

// CJSUnit is an executable CommonJS body.
type CJSUnit interface {
	Run(b *Bindings) error
}

// CJSFunc adapts a function to CJSUnit.
type CJSFunc func(b *Bindings) error

// Run calls f(b).
func (f CJSFunc) Run(b *Bindings) error { return f(b) }

// Imports gives a declarative module body the namespaces of its
// dependencies. Namespaces[i] belongs to Specifiers[i].
type Imports struct {
	Specifiers []string
	Namespaces []Namespace
}

// Lookup returns the namespace imported under specifier.
func (im *Imports) Lookup(specifier string) (Namespace, bool) {
	for i, s := range im.Specifiers {
		if s == specifier {
			return im.Namespaces[i], true
		}
	}
	return nil, false
}

// ESMUnit is an executable declarative module body.
type ESMUnit interface {
	// Namespace returns the module's namespace. It may be called before
	// Execute when the module takes part in a cycle.
	Namespace() Namespace
	// Execute runs the body. A body that has to suspend, such as one with a
	// pending top-level await, returns a future that is not yet settled.
	Execute(im *Imports) *future.Future[struct{}]
}

// NativeExtensionLoader loads pre-evaluated binary extensions.
type NativeExtensionLoader interface {
	Handles(id string) bool
	Load(id string) (Value, error)
}

// BuiltinTable provides builtin modules. It keeps its own cache.
type BuiltinTable interface {
	Lookup(id string) (Value, bool)
}
