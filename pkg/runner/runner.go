// Package runner is the subprogram that runs JavaScript: a script file, code
// passed with -e, or code read from stdin.
package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dop251/goja"
	"github.com/hashicorp/go-multierror"
	"src.jsrt.sh/pkg/compilecache"
	"src.jsrt.sh/pkg/config"
	"src.jsrt.sh/pkg/jsengine"
	"src.jsrt.sh/pkg/logutil"
	"src.jsrt.sh/pkg/prog"
	"src.jsrt.sh/pkg/sys"
)

var logger = logutil.GetLogger("[runner] ")

// Program is the runner subprogram. It is always suitable, so it should come
// last in a composite.
type Program struct {
	configFile string
	cacheFile  string
	paths      prog.StringList
	code       string
	native     bool
	json       *bool

	logFlag func() string
}

func (p *Program) RegisterFlags(fs *prog.FlagSet) {
	fs.StringVar(&p.configFile, "config", "",
		"path to the configuration file; defaults to $"+ConfigEnv+" or jsrt/jsrt.yaml in the user config directory")
	fs.StringVar(&p.cacheFile, "cache", "", "path to the compile cache database")
	fs.Var(&p.paths, "path", "a directory to search for bare specifiers; can be repeated")
	fs.StringVar(&p.code, "e", "", "evaluate the argument as the main module")
	fs.BoolVar(&p.native, "native", false, "allow loading .node native extensions")
	p.json = fs.JSON()
	p.logFlag = func() string {
		if f := fs.Lookup("log"); f != nil {
			return f.Value.String()
		}
		return ""
	}
}

func (p *Program) Run(fds [3]*os.File, args []string) error {
	if len(args) > 1 || (len(args) == 1 && p.code != "") {
		return prog.BadUsage("too many arguments")
	}

	cfg, err := p.config()
	if err != nil {
		fmt.Fprintln(fds[2], "cannot load config:", err)
		return prog.Exit(2)
	}
	if cfg.Log != "" && p.logFlag() == "" {
		if err := logutil.SetOutputFile(cfg.Log); err != nil {
			fmt.Fprintln(fds[2], "Warning:", err)
		}
	}

	var cache *compilecache.Cache
	if cfg.CacheFile != "" {
		cache, err = compilecache.Open(cfg.CacheFile)
		if err != nil {
			fmt.Fprintln(fds[2], "Warning: cannot open compile cache:", err)
			fmt.Fprintln(fds[2], "Continuing without compile cache.")
			cache = nil
		}
	}

	e := jsengine.New(jsengine.Config{
		SearchPaths:      cfg.SearchPaths,
		Cache:            cache,
		Stdout:           fds[1],
		Stderr:           fds[2],
		NativeExtensions: cfg.NativeExtensions,
	})
	defer func() {
		if err := e.Close(); err != nil {
			logger.Println("close engine:", err)
		}
	}()
	defer handleInterrupts(e)()

	var v goja.Value
	switch {
	case p.code != "":
		v, err = e.Eval(p.code)
	case len(args) == 1:
		v, err = e.RunMain(args[0])
	case sys.IsATTY(fds[0].Fd()):
		return prog.BadUsage("no script given")
	default:
		code, readErr := io.ReadAll(fds[0])
		if readErr != nil {
			fmt.Fprintln(fds[2], "cannot read stdin:", readErr)
			return prog.Exit(2)
		}
		v, err = e.Eval(string(code))
	}

	if err != nil {
		if *p.json {
			fmt.Fprintf(fds[1], "%s\n", errorsToJSON(err))
		} else {
			fmt.Fprintln(fds[2], err)
		}
		return prog.Exit(1)
	}
	if *p.json {
		s, err := e.JSON(v)
		if err != nil {
			fmt.Fprintln(fds[2], "cannot convert exports to JSON:", err)
			return prog.Exit(1)
		}
		fmt.Fprintln(fds[1], s)
	}
	return nil
}

// config returns the configuration file, if any, overridden by flags.
func (p *Program) config() (*config.Config, error) {
	cfg := &config.Config{}
	path, explicit := ConfigPath(p.configFile)
	if path != "" {
		loaded, err := config.Load(path)
		if err == nil {
			cfg = loaded
		} else if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	// Paths from flags are relative to the working directory.
	paths := make([]string, len(p.paths))
	for i, path := range p.paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		paths[i] = abs
	}
	flags := &config.Config{SearchPaths: paths, CacheFile: p.cacheFile, NativeExtensions: p.native}
	if err := flags.Validate(); err != nil {
		return nil, err
	}
	return cfg.Merge(flags), nil
}

// handleInterrupts interrupts the running code on SIGINT until the returned
// function is called.
func handleInterrupts(e *jsengine.Engine) func() {
	sigCh, stop := sys.NotifyInterrupt()
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			logger.Println("interrupted")
			e.Interrupt("interrupted")
		case <-done:
		}
	}()
	return func() {
		stop()
		close(done)
	}
}

// An auxiliary struct for converting errors to JSON.
type errorInJSON struct {
	FileName string `json:"fileName,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Message  string `json:"message"`
}

// errorsToJSON converts err into a JSON array, with one element for each
// syntax error it carries.
func errorsToJSON(err error) []byte {
	var converted []errorInJSON
	for _, e := range unpackErrors(err) {
		var syntax *jsengine.SyntaxError
		if errors.As(e, &syntax) {
			converted = append(converted,
				errorInJSON{syntax.File, syntax.Line, syntax.Column, syntax.Text})
		} else {
			converted = append(converted, errorInJSON{Message: e.Error()})
		}
	}
	jsonError, errMarshal := json.Marshal(converted)
	if errMarshal != nil {
		return []byte(`[{"message":"Unable to convert the errors to JSON"}]`)
	}
	return jsonError
}

func unpackErrors(err error) []error {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		return merr.Errors
	}
	return []error{err}
}
