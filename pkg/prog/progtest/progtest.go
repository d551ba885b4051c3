// Package progtest contains utilities for testing prog.Program instances.
package progtest

import (
	"io"
	"os"
	"strings"
	"testing"

	"src.jsrt.sh/pkg/prog"
	"src.jsrt.sh/pkg/testutil"
)

// Case is a test case that can be used in Test.
type Case struct {
	args  []string
	stdin string
	want  result
}

type result struct {
	exitStatus int
	stdout     output
	stderr     output
}

type output struct {
	content  string
	partial  bool
	asserted bool
}

func (o output) String() string {
	if o.partial {
		return "text containing " + o.content
	}
	return o.content
}

// ThatJsrt returns a new Case with the specified CLI arguments.
//
// The new Case expects the program run to exit with 0, and write nothing to
// stdout or stderr.
//
// When combined with subsequent method calls, a test case reads like English.
// For example, a test for the fact that "jsrt -bad-flag" exits with 2 reads
// like:
//
//	ThatJsrt("-bad-flag").ExitsWith(2)
func ThatJsrt(args ...string) Case {
	return Case{args: append([]string{"jsrt"}, args...)}
}

// WithStdin returns an altered Case that provides the given input to stdin of
// the program.
func (c Case) WithStdin(s string) Case {
	c.stdin = s
	return c
}

// DoesNothing returns c itself. It is useful to mark tests that otherwise don't
// have any expectations, for example:
//
//	ThatJsrt("-cpuprofile", "/tmp/cpuprof").DoesNothing()
func (c Case) DoesNothing() Case { return c }

// ExitsWith returns an altered Case that requires the program run to return
// with the given exit status.
func (c Case) ExitsWith(code int) Case {
	c.want.exitStatus = code
	return c
}

// WritesStdout returns an altered Case that requires the program run to write
// exactly the given text to stdout.
func (c Case) WritesStdout(s string) Case {
	c.want.stdout = output{content: s, asserted: true}
	return c
}

// WritesStdoutContaining returns an altered Case that requires the program run
// to write output to stdout that contains the given text as a substring.
func (c Case) WritesStdoutContaining(s string) Case {
	c.want.stdout = output{content: s, partial: true, asserted: true}
	return c
}

// WritesStderr returns an altered Case that requires the program run to write
// exactly the given text to stderr.
func (c Case) WritesStderr(s string) Case {
	c.want.stderr = output{content: s, asserted: true}
	return c
}

// WritesStderrContaining returns an altered Case that requires the program run
// to write output to stderr that contains the given text as a substring.
func (c Case) WritesStderrContaining(s string) Case {
	c.want.stderr = output{content: s, partial: true, asserted: true}
	return c
}

// Test runs test cases against a given program.
func Test(t *testing.T, p prog.Program, cases ...Case) {
	t.Helper()
	for _, c := range cases {
		t.Run(strings.Join(c.args, " "), func(t *testing.T) {
			t.Helper()
			r := run(p, c.args, c.stdin)
			if r.exitStatus != c.want.exitStatus {
				t.Errorf("got exit status %v, want %v", r.exitStatus, c.want.exitStatus)
			}
			if !matchOutput(r.stdout.content, c.want.stdout) {
				t.Errorf("got stdout %q, want %v", r.stdout.content, c.want.stdout)
			}
			if !matchOutput(r.stderr.content, c.want.stderr) {
				t.Errorf("got stderr %q, want %v", r.stderr.content, c.want.stderr)
			}
		})
	}
}

// Run runs a Program with the given arguments and stdin. It returns the exit
// status and the output written to stdout and stderr.
func Run(p prog.Program, stdin string, args ...string) (exit int, stdout, stderr string) {
	r := run(p, append([]string{"jsrt"}, args...), stdin)
	return r.exitStatus, r.stdout.content, r.stderr.content
}

func run(p prog.Program, args []string, stdin string) result {
	r0, w0 := testutil.MustPipe()
	go func() {
		w0.WriteString(stdin)
		w0.Close()
	}()
	r1, w1 := testutil.MustPipe()
	r2, w2 := testutil.MustPipe()
	// Drain the pipes while the program runs, so that it can't block on a
	// full pipe buffer.
	stdout := readAllAsync(r1)
	stderr := readAllAsync(r2)

	exit := prog.Run([3]*os.File{r0, w1, w2}, args, p)
	w1.Close()
	w2.Close()
	r0.Close()
	return result{exit, output{content: <-stdout}, output{content: <-stderr}}
}

func readAllAsync(r io.ReadCloser) <-chan string {
	ch := make(chan string, 1)
	go func() { ch <- string(testutil.MustReadAllAndClose(r)) }()
	return ch
}

func matchOutput(got string, want output) bool {
	if !want.asserted {
		return got == ""
	}
	if want.partial {
		return strings.Contains(got, want.content)
	}
	return got == want.content
}
