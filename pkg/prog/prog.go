// Package prog provides the entry point to jsrt. The binary is composed of
// subprograms, each registering its own flags; the first one that is suitable
// for the parsed command line runs.
package prog

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/pprof"

	"src.jsrt.sh/pkg/logutil"
)

// Program represents a subprogram.
type Program interface {
	// RegisterFlags registers the flags the subprogram understands.
	RegisterFlags(fs *FlagSet)
	// Run runs the subprogram. It may return ErrNotSuitable, or the error
	// returned by NextProgram, to pass the turn to the next subprogram.
	Run(fds [3]*os.File, args []string) error
}

type commonFlags struct {
	log        string
	cpuProfile string
	help       bool
}

func registerCommonFlags(fs *FlagSet, f *commonFlags) {
	fs.StringVar(&f.log, "log", "", "a file to write debug log to")
	fs.StringVar(&f.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	fs.BoolVar(&f.help, "help", false, "show usage help and quit")
}

func usage(out io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(out, "Usage: jsrt [flags] [script]")
	fmt.Fprintln(out, "Supported flags:")
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// Run parses command-line flags and runs the first applicable subprogram. It
// returns the exit status of the program.
func Run(fds [3]*os.File, args []string, p Program) int {
	var f commonFlags
	fs := newFlagSet()
	registerCommonFlags(fs, &f)
	p.RegisterFlags(fs)

	err := fs.Parse(args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			// Parse returns ErrHelp when -h was requested but not defined;
			// report it like any other undefined flag.
			fmt.Fprintln(fds[2], "flag provided but not defined: -h")
		} else {
			fmt.Fprintln(fds[2], err)
		}
		usage(fds[2], fs.FlagSet)
		return 2
	}

	if f.log != "" {
		if err := logutil.SetOutputFile(f.log); err != nil {
			fmt.Fprintln(fds[2], err)
		}
	}
	if f.cpuProfile != "" {
		out, err := os.Create(f.cpuProfile)
		if err != nil {
			fmt.Fprintln(fds[2], "Warning: cannot create CPU profile:", err)
			fmt.Fprintln(fds[2], "Continuing without CPU profiling.")
		} else {
			pprof.StartCPUProfile(out)
			defer out.Close()
			defer pprof.StopCPUProfile()
		}
	}

	if f.help {
		usage(fds[1], fs.FlagSet)
		return 0
	}

	err = p.Run(fds, fs.Args())
	if np, ok := err.(nextProgramError); ok {
		// Only reached when p is not a composite, or no subprogram of it was
		// suitable.
		np.cleanup(fds)
		err = ErrNotSuitable
	}
	if err == nil {
		return 0
	}
	if msg := err.Error(); msg != "" {
		fmt.Fprintln(fds[2], msg)
	}
	switch err := err.(type) {
	case badUsageError:
		usage(fds[2], fs.FlagSet)
	case exitError:
		return err.exit
	}
	return 2
}

// Composite returns a Program that tries each of the given programs,
// terminating at the first one that doesn't return ErrNotSuitable or the
// error of NextProgram. Cleanup functions passed to NextProgram run after the
// suitable program has finished, latest first.
func Composite(programs ...Program) Program {
	return compositeProgram(programs)
}

type compositeProgram []Program

func (cp compositeProgram) RegisterFlags(fs *FlagSet) {
	for _, p := range cp {
		p.RegisterFlags(fs)
	}
}

func (cp compositeProgram) Run(fds [3]*os.File, args []string) error {
	var cleanups []func([3]*os.File)
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i](fds)
		}
	}()
	for _, p := range cp {
		err := p.Run(fds, args)
		if np, ok := err.(nextProgramError); ok {
			cleanups = append(cleanups, np.cleanups...)
			continue
		}
		if err != ErrNotSuitable {
			return err
		}
	}
	// If we have reached here, all subprograms have passed their turn.
	return ErrNotSuitable
}

// ErrNotSuitable is a special error that may be returned by Program.Run, to
// signify that this Program should not be run. It is useful when a Program is
// used in Composite.
var ErrNotSuitable = errors.New("internal error: no suitable subprogram")

// NextProgram returns a special error that may be returned by Program.Run
// from a Program that has done its part, such as setting up shared state, and
// wants the next Program in a Composite to run. The cleanup functions are
// called once the Composite is done.
func NextProgram(cleanups ...func([3]*os.File)) error {
	return nextProgramError{cleanups}
}

type nextProgramError struct{ cleanups []func([3]*os.File) }

func (e nextProgramError) Error() string { return "internal error: no suitable subprogram" }

func (e nextProgramError) cleanup(fds [3]*os.File) {
	for i := len(e.cleanups) - 1; i >= 0; i-- {
		e.cleanups[i](fds)
	}
}

// BadUsage returns a special error that may be returned by Program.Run. It
// causes the main function to print out a message, the usage information and
// exit with 2.
func BadUsage(msg string) error { return badUsageError{msg} }

type badUsageError struct{ msg string }

func (e badUsageError) Error() string { return e.msg }

// Exit returns a special error that may be returned by Program.Run. It causes
// the main function to exit with the given code without printing any error
// messages. Exit(0) returns nil.
func Exit(exit int) error {
	if exit == 0 {
		return nil
	}
	return exitError{exit}
}

type exitError struct{ exit int }

func (e exitError) Error() string { return "" }
