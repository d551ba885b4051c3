package modload

import "src.jsrt.sh/pkg/future"

// ModuleRecord is the CommonJS view of a module.
type ModuleRecord struct {
	ID string
	// Exports is the module's exports. Callers may hold on to it before the
	// body has finished running.
	Exports   Value
	IsBuiltin bool
	Evaluated bool
	// EvaluationInProgress is set while the body runs; a require that finds
	// it set is a cyclic re-entry.
	EvaluationInProgress bool
	// RequiredBy lists the ids of importers in first-require order. It is for
	// diagnostics only.
	RequiredBy []string

	Filename string
	Dirname  string
}

func (r *ModuleRecord) addRequiredBy(from string) {
	if from == "" {
		return
	}
	for _, id := range r.RequiredBy {
		if id == from {
			return
		}
	}
	r.RequiredBy = append(r.RequiredBy, from)
}

// State is the lifecycle state of a ModuleEntry. States only advance.
type State int

// Possible values of State, in lifecycle order.
const (
	Unlinked State = iota
	Fetching
	Fetched
	Linking
	Linked
	Evaluating
	Evaluated
)

var stateNames = [...]string{
	"Unlinked", "Fetching", "Fetched", "Linking", "Linked", "Evaluating", "Evaluated",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "State(?)"
	}
	return stateNames[s]
}

// ModuleEntry is a declarative module in the ESM registry.
type ModuleEntry struct {
	Key   string
	state State

	// Set on leaving Fetched and never changed afterwards.
	deps  []string
	specs []string

	pending *future.Future[Source]
	source  Source
	unit    ESMUnit

	namespace  Namespace
	hasNS      bool
	builtin    bool
	bridged    bool
	onStack    bool
	evaluation *future.Future[struct{}]
}

// State returns the lifecycle state.
func (e *ModuleEntry) State() State { return e.state }

// Dependencies returns the canonical ids of the dependencies in link order.
func (e *ModuleEntry) Dependencies() []string {
	return append([]string(nil), e.deps...)
}

// Namespace returns the namespace of the module, computing it on first use.
// It is only meaningful once the entry is linked.
func (e *ModuleEntry) Namespace() Namespace {
	if !e.hasNS && e.unit != nil {
		e.namespace = e.unit.Namespace()
		e.hasNS = true
	}
	return e.namespace
}

// Bridged reports whether the namespace has been handed to require() as
// CommonJS exports. It is informational; loading never depends on it.
func (e *ModuleEntry) Bridged() bool { return e.bridged }

func (e *ModuleEntry) advance(s State) {
	if s > e.state {
		e.state = s
	}
}

// registry is a map that remembers insertion order.
type registry[V any] struct {
	index map[string]V
	order []string
}

func newRegistry[V any]() *registry[V] {
	return &registry[V]{index: make(map[string]V)}
}

func (r *registry[V]) get(key string) (V, bool) {
	v, ok := r.index[key]
	return v, ok
}

func (r *registry[V]) has(key string) bool {
	_, ok := r.index[key]
	return ok
}

func (r *registry[V]) set(key string, v V) {
	if _, ok := r.index[key]; !ok {
		r.order = append(r.order, key)
	}
	r.index[key] = v
}

func (r *registry[V]) delete(key string) bool {
	if _, ok := r.index[key]; !ok {
		return false
	}
	delete(r.index, key)
	r.order = removeString(r.order, key)
	return true
}

func (r *registry[V]) keys() []string {
	return append([]string(nil), r.order...)
}

func (r *registry[V]) clear() {
	r.index = make(map[string]V)
	r.order = nil
}
