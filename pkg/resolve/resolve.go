// Package resolve maps module specifiers to canonical ids, which are absolute
// slash-separated paths of files in an afero.Fs, or names of builtin modules.
package resolve

import (
	"encoding/json"
	"path"
	"strings"

	"github.com/spf13/afero"
	"src.jsrt.sh/pkg/logutil"
	"src.jsrt.sh/pkg/modload"
)

var logger = logutil.GetLogger("[resolve] ")

// BuiltinPrefix is the scheme that may precede the name of a builtin module.
const BuiltinPrefix = "node:"

// Extensions are tried, in order, when a specifier does not name an existing
// file.
var Extensions = []string{".js", ".mjs", ".cjs", ".json", ".node"}

// Format is the kind of a module file.
type Format int

// Possible values of Format.
const (
	CommonJS Format = iota
	ESModule
	JSON
	Native
)

func (f Format) String() string {
	switch f {
	case CommonJS:
		return "commonjs"
	case ESModule:
		return "module"
	case JSON:
		return "json"
	case Native:
		return "native"
	default:
		return "unknown"
	}
}

// Resolver implements modload.PathResolver.
type Resolver struct {
	fs          afero.Fs
	cwd         string
	searchPaths []string
	builtins    map[string]bool

	// Parsed package.json files by directory; nil for a directory without
	// one.
	packages map[string]*packageJSON
}

var _ modload.PathResolver = (*Resolver)(nil)
var _ modload.CanonicalChecker = (*Resolver)(nil)

// Config is the configuration of a Resolver.
type Config struct {
	// Cwd is the directory that specifiers from outside any module are
	// relative to. It must be absolute.
	Cwd string
	// SearchPaths are consulted for bare specifiers after node_modules
	// directories, unless the caller passes its own.
	SearchPaths []string
	// Builtins are the names of the builtin modules.
	Builtins []string
}

// New creates a Resolver on fs.
func New(fs afero.Fs, cfg Config) *Resolver {
	r := &Resolver{
		fs:       fs,
		cwd:      clean(cfg.Cwd),
		builtins: make(map[string]bool),
		packages: make(map[string]*packageJSON),
	}
	for _, p := range cfg.SearchPaths {
		r.searchPaths = append(r.searchPaths, r.abs(p, r.cwd))
	}
	for _, name := range cfg.Builtins {
		r.builtins[name] = true
	}
	return r
}

type packageJSON struct {
	Main string `json:"main"`
	Type string `json:"type"`
}

// Resolve resolves specifier as written in the module importer; an empty
// importer stands for the working directory. A non-nil searchPaths replaces
// the configured search paths.
func (r *Resolver) Resolve(specifier, importer string, searchPaths []string) (modload.Resolution, error) {
	if name, ok := r.builtinName(specifier); ok {
		return modload.Resolution{ID: name, IsBuiltin: true}, nil
	}
	dir := r.cwd
	if importer != "" && !r.builtins[importer] {
		dir = path.Dir(importer)
	}

	var id string
	var ok bool
	if isPathSpecifier(specifier) {
		id, ok = r.loadPath(r.abs(specifier, dir))
	} else {
		id, ok = r.loadBare(specifier, dir, searchPaths)
	}
	if !ok {
		logger.Printf("cannot resolve %q from %q", specifier, importer)
		return modload.Resolution{}, &modload.ModuleNotFoundError{Specifier: specifier, From: importer}
	}
	return modload.Resolution{ID: id}, nil
}

// IsCanonical reports whether specifier already is the canonical id of a
// module file: a clean absolute path of an existing file. Builtin names are
// not, since they have to be resolved to be recognized as builtins.
func (r *Resolver) IsCanonical(specifier string) bool {
	return path.IsAbs(specifier) && path.Clean(specifier) == specifier && r.isFile(specifier)
}

// IsBuiltin reports whether id is the canonical name of a builtin module.
func (r *Resolver) IsBuiltin(id string) bool { return r.builtins[id] }

// FormatOf returns the format of the module file id. A .js file is an ES
// module when the nearest package.json says "type": "module".
func (r *Resolver) FormatOf(id string) Format {
	switch path.Ext(id) {
	case ".mjs":
		return ESModule
	case ".cjs":
		return CommonJS
	case ".json":
		return JSON
	case ".node":
		return Native
	}
	for dir := path.Dir(id); ; dir = path.Dir(dir) {
		if pkg := r.packageAt(dir); pkg != nil {
			if pkg.Type == "module" {
				return ESModule
			}
			return CommonJS
		}
		if dir == "/" {
			return CommonJS
		}
	}
}

func (r *Resolver) builtinName(specifier string) (string, bool) {
	name := strings.TrimPrefix(specifier, BuiltinPrefix)
	if r.builtins[name] {
		return name, true
	}
	return "", false
}

func isPathSpecifier(s string) bool {
	return s == "." || s == ".." || strings.HasPrefix(s, "/") ||
		strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../")
}

func (r *Resolver) loadPath(p string) (string, bool) {
	if id, ok := r.loadAsFile(p); ok {
		return id, true
	}
	return r.loadAsDirectory(p)
}

func (r *Resolver) loadAsFile(p string) (string, bool) {
	if r.isFile(p) {
		return p, true
	}
	for _, ext := range Extensions {
		if r.isFile(p + ext) {
			return p + ext, true
		}
	}
	return "", false
}

func (r *Resolver) loadAsDirectory(p string) (string, bool) {
	if pkg := r.packageAt(p); pkg != nil && pkg.Main != "" {
		main := path.Join(p, pkg.Main)
		if id, ok := r.loadAsFile(main); ok {
			return id, true
		}
		if id, ok := r.loadIndex(main); ok {
			return id, true
		}
	}
	return r.loadIndex(p)
}

func (r *Resolver) loadIndex(p string) (string, bool) {
	for _, ext := range Extensions {
		if index := path.Join(p, "index"+ext); r.isFile(index) {
			return index, true
		}
	}
	return "", false
}

func (r *Resolver) loadBare(specifier, dir string, searchPaths []string) (string, bool) {
	var roots []string
	if searchPaths == nil {
		roots = nodeModulesPaths(dir)
		roots = append(roots, r.searchPaths...)
	} else {
		for _, p := range searchPaths {
			p = r.abs(p, dir)
			roots = append(roots, p)
			roots = append(roots, nodeModulesPaths(p)...)
		}
	}
	for _, root := range roots {
		if id, ok := r.loadPath(path.Join(root, specifier)); ok {
			return id, true
		}
	}
	return "", false
}

// nodeModulesPaths returns the node_modules directories that bare specifiers
// are looked up in from dir, innermost first.
func nodeModulesPaths(dir string) []string {
	var paths []string
	for {
		if path.Base(dir) != "node_modules" {
			paths = append(paths, path.Join(dir, "node_modules"))
		}
		parent := path.Dir(dir)
		if parent == dir {
			return paths
		}
		dir = parent
	}
}

func (r *Resolver) packageAt(dir string) *packageJSON {
	if pkg, ok := r.packages[dir]; ok {
		return pkg
	}
	var pkg *packageJSON
	data, err := afero.ReadFile(r.fs, path.Join(dir, "package.json"))
	if err == nil {
		pkg = &packageJSON{}
		if err := json.Unmarshal(data, pkg); err != nil {
			logger.Printf("ignoring malformed %s/package.json: %v", dir, err)
		}
	}
	r.packages[dir] = pkg
	return pkg
}

func (r *Resolver) isFile(p string) bool {
	info, err := r.fs.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

func (r *Resolver) abs(p, dir string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(dir, p)
}

func clean(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean(p)
}
