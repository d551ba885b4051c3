package modload

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRequire_ReturnsSameExports(t *testing.T) {
	w := newWorld()
	w.cjs["/b.js"] = setter("v", 2)
	l := w.loader()

	first, err := l.Require("./b.js", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := l.Require("/b.js", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("got different exports on repeated require")
	}
	if w.runs["/b.js"] != 1 {
		t.Errorf("body ran %d times, want 1", w.runs["/b.js"])
	}
}

func TestRequire_NestedRequire(t *testing.T) {
	w := newWorld()
	w.cjs["/a.js"] = func(b *Bindings) error {
		dep, err := b.Require("./b.js", nil)
		if err != nil {
			return err
		}
		b.Exports.(*Object).Set("v", 1+get(dep, "v").(int))
		return nil
	}
	w.cjs["/b.js"] = setter("v", 2)

	for _, bFirst := range []bool{false, true} {
		l := w.loader()
		var bBefore Value
		if bFirst {
			bBefore, _ = l.Require("./b.js", "", nil)
		}
		a, err := l.Require("./a.js", "", nil)
		if err != nil {
			t.Fatal(err)
		}
		if v := get(a, "v"); v != 3 {
			t.Errorf("a.v = %v, want 3", v)
		}
		b1, _ := l.Require("./b.js", "", nil)
		b2, _ := l.Require("./b.js", "", nil)
		if b1 != b2 || (bFirst && b1 != bBefore) {
			t.Errorf("b exports changed between requires")
		}
	}
}

func TestRequire_Cycle(t *testing.T) {
	w := newWorld()
	var seen Value
	var seenEarly, seenLate Value
	w.cjs["/a.js"] = func(b *Bindings) error {
		b.Exports.(*Object).Set("early", true)
		if _, err := b.Require("./b.js", nil); err != nil {
			return err
		}
		b.Exports.(*Object).Set("late", true)
		return nil
	}
	w.cjs["/b.js"] = func(b *Bindings) error {
		a, err := b.Require("./a.js", nil)
		if err != nil {
			return err
		}
		seen = a
		seenEarly, seenLate = get(a, "early"), get(a, "late")
		return nil
	}
	l := w.loader()

	a, err := l.Require("./a.js", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if seen != a {
		t.Errorf("b saw a different exports object for a")
	}
	if seenEarly != true || seenLate != nil {
		t.Errorf("b saw early=%v late=%v, want true <nil>", seenEarly, seenLate)
	}
	if get(a, "late") != true {
		t.Errorf("a did not finish")
	}
	if diff := cmp.Diff(map[string]int{"/a.js": 1, "/b.js": 1}, w.runs); diff != "" {
		t.Errorf("runs (-want +got):\n%s", diff)
	}
}

func TestRequire_CycleSeesInProgress(t *testing.T) {
	w := newWorld()
	var inProgress, evaluated bool
	l := w.loader()
	w.cjs["/a.js"] = func(b *Bindings) error {
		_, err := b.Require("./b.js", nil)
		return err
	}
	w.cjs["/b.js"] = func(b *Bindings) error {
		rec, _ := l.RequireCache().Get("/a.js")
		inProgress, evaluated = rec.EvaluationInProgress, rec.Evaluated
		_, err := b.Require("./a.js", nil)
		return err
	}
	if _, err := l.Require("./a.js", "", nil); err != nil {
		t.Fatal(err)
	}
	if !inProgress || evaluated {
		t.Errorf("mid-cycle record: inProgress=%v evaluated=%v", inProgress, evaluated)
	}
	rec, _ := l.RequireCache().Get("/a.js")
	if rec.EvaluationInProgress || !rec.Evaluated {
		t.Errorf("final record: inProgress=%v evaluated=%v",
			rec.EvaluationInProgress, rec.Evaluated)
	}
}

func TestRequire_EvictsOnError(t *testing.T) {
	w := newWorld()
	errBoom := errors.New("boom")
	fail := true
	w.cjs["/x.js"] = func(b *Bindings) error {
		if fail {
			return errBoom
		}
		return nil
	}
	l := w.loader()

	_, err := l.Require("./x.js", "", nil)
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) || evalErr.ID != "/x.js" {
		t.Fatalf("got err %v, want EvaluationError for /x.js", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("cause not preserved: %v", err)
	}
	if l.RequireCache().Has("/x.js") {
		t.Errorf("failed module still cached")
	}

	fail = false
	if _, err := l.Require("./x.js", "", nil); err != nil {
		t.Fatal(err)
	}
	if w.runs["/x.js"] != 2 {
		t.Errorf("body ran %d times, want 2", w.runs["/x.js"])
	}
}

func TestRequire_ErrorPassesThroughNestedRequire(t *testing.T) {
	w := newWorld()
	w.cjs["/a.js"] = func(b *Bindings) error {
		_, err := b.Require("./missing.js", nil)
		return err
	}
	l := w.loader()

	_, err := l.Require("./a.js", "", nil)
	var notFound *ModuleNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("got err %v, want ModuleNotFoundError", err)
	}
	if notFound.Specifier != "./missing.js" || notFound.From != "/a.js" {
		t.Errorf("got %+v", notFound)
	}
	if l.RequireCache().Has("/a.js") {
		t.Errorf("failed importer still cached")
	}
}

func TestRequire_NotFound(t *testing.T) {
	l := newWorld().loader()
	_, err := l.Require("./nope.js", "", nil)
	var notFound *ModuleNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("got err %v, want ModuleNotFoundError", err)
	}
}

func TestRequire_Builtin(t *testing.T) {
	w := newWorld()
	pathMod := NewObject()
	w.builtins["path"] = pathMod
	w.aliases["node:path"] = "path"
	l := w.loader()

	for _, spec := range []string{"path", "node:path"} {
		v, err := l.Require(spec, "", nil)
		if err != nil {
			t.Fatal(err)
		}
		if v != pathMod {
			t.Errorf("require(%q) did not return the builtin", spec)
		}
	}
	if l.RequireCache().Has("path") {
		t.Errorf("builtin got a cache record")
	}
}

func TestRequire_BuiltinAliasOverride(t *testing.T) {
	w := newWorld()
	pathMod := NewObject()
	w.builtins["path"] = pathMod
	w.aliases["node:path"] = "path"
	l := w.loader()

	override := NewObject()
	l.RequireCache().Set("node:path", &ModuleRecord{Exports: override})
	l.RequireCache().Set("path", &ModuleRecord{Exports: NewObject()})

	if v, _ := l.Require("node:path", "", nil); v != override {
		t.Errorf("alias did not consult the require cache")
	}
	if v, _ := l.Require("path", "", nil); v != pathMod {
		t.Errorf("canonical name consulted the require cache")
	}
}

func TestRequire_Native(t *testing.T) {
	w := newWorld()
	ext := NewObject()
	w.native["/addon.node"] = ext
	l := w.loader()

	v, err := l.Require("./addon.node", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if v != ext {
		t.Errorf("got %v, want the loaded extension", v)
	}
	rec, ok := l.RequireCache().Get("/addon.node")
	if !ok || !rec.Evaluated || rec.EvaluationInProgress {
		t.Errorf("got record %+v", rec)
	}
	l.Require("./addon.node", "", nil)
	if diff := cmp.Diff([]string{"/addon.node"}, w.log); diff != "" {
		t.Errorf("loads (-want +got):\n%s", diff)
	}
}

func TestRequire_ReplacedExports(t *testing.T) {
	w := newWorld()
	w.cjs["/f.js"] = func(b *Bindings) error {
		b.Module.Exports = "replaced"
		return nil
	}
	l := w.loader()
	v, err := l.Require("./f.js", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if v != "replaced" {
		t.Errorf("got %v, want replaced", v)
	}
}

func TestRequire_Bindings(t *testing.T) {
	w := newWorld()
	var got *Bindings
	w.cjs["/lib/f.js"] = func(b *Bindings) error {
		got = b
		return nil
	}
	w.cjs["/lib/g.js"] = setter("g", true)
	l := w.loader()
	if _, err := l.Require("./lib/f.js", "", nil); err != nil {
		t.Fatal(err)
	}
	if got.Filename != "/lib/f.js" || got.Dirname != "/lib" {
		t.Errorf("got filename %q dirname %q", got.Filename, got.Dirname)
	}
	if id, err := got.Resolve("./g.js", nil); id != "/lib/g.js" || err != nil {
		t.Errorf("resolve got (%q, %v)", id, err)
	}
	if l.RequireCache().Has("/lib/g.js") {
		t.Errorf("resolve loaded the module")
	}
}

func TestRequire_SearchPaths(t *testing.T) {
	w := newWorld()
	w.cjs["/vendor/dep"] = setter("vendored", true)
	l := w.loader()
	v, err := l.Require("dep", "", &RequireOptions{SearchPaths: []string{"/vendor"}})
	if err != nil {
		t.Fatal(err)
	}
	if get(v, "vendored") != true {
		t.Errorf("search path not used")
	}
}

func TestRequiredBy(t *testing.T) {
	w := newWorld()
	requireB := func(b *Bindings) error {
		_, err := b.Require("./b.js", nil)
		return err
	}
	w.cjs["/a.js"] = requireB
	w.cjs["/c.js"] = func(b *Bindings) error {
		if err := requireB(b); err != nil {
			return err
		}
		return requireB(b)
	}
	w.cjs["/b.js"] = setter("b", true)
	l := w.loader()
	l.Require("./a.js", "", nil)
	l.Require("./c.js", "", nil)

	rec, _ := l.RequireCache().Get("/b.js")
	if diff := cmp.Diff([]string{"/a.js", "/c.js"}, rec.RequiredBy); diff != "" {
		t.Errorf("RequiredBy (-want +got):\n%s", diff)
	}
}

func TestRunMain(t *testing.T) {
	w := newWorld()
	w.cjs["/main.js"] = setter("main", true)
	l := w.loader()
	if l.Main() != nil {
		t.Errorf("main set before running")
	}
	if _, err := l.RunMain("./main.js", nil); err != nil {
		t.Fatal(err)
	}
	if m := l.Main(); m == nil || m.ID != "/main.js" || !m.Evaluated {
		t.Errorf("got main %+v", m)
	}
	l.RequireCache().Delete("/main.js")
	if l.Main() != nil {
		t.Errorf("main survived deletion from the cache")
	}
}

func TestClose(t *testing.T) {
	w := newWorld()
	w.cjs["/a.js"] = setter("a", 1)
	l := w.loader()
	l.Require("./a.js", "", nil)

	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if w.closed != 1 {
		t.Errorf("collaborator closed %d times, want 1", w.closed)
	}
	if keys := l.RequireCache().Keys(); len(keys) != 0 {
		t.Errorf("cache not cleared: %v", keys)
	}
	if _, err := l.Require("./a.js", "", nil); err != ErrClosed {
		t.Errorf("got err %v, want ErrClosed", err)
	}
	if err := l.Close(); err != nil || w.closed != 1 {
		t.Errorf("second Close: err %v, closed %d", err, w.closed)
	}
}
