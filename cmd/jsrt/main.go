// Jsrt runs JavaScript programs made of CommonJS and ES modules. Modules are
// loaded synchronously: require() works on both kinds, as long as no module
// in the graph needs to suspend.
package main

import (
	"os"

	"src.jsrt.sh/pkg/buildinfo"
	"src.jsrt.sh/pkg/prog"
	"src.jsrt.sh/pkg/runner"
)

func main() {
	os.Exit(prog.Run(
		[3]*os.File{os.Stdin, os.Stdout, os.Stderr}, os.Args,
		prog.Composite(&buildinfo.Program{}, &runner.Program{})))
}
