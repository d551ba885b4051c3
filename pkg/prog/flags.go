package prog

import (
	"flag"
	"io"
	"strings"
)

// FlagSet wraps a flag.FlagSet. Flags that more than one subprogram may want
// are registered through its methods, so that they are only defined once.
type FlagSet struct {
	*flag.FlagSet
	json *bool
}

func newFlagSet() *FlagSet {
	fs := flag.NewFlagSet("jsrt", flag.ContinueOnError)
	// Error and usage will be printed explicitly.
	fs.SetOutput(io.Discard)
	return &FlagSet{FlagSet: fs}
}

// JSON returns a pointer to the value of the -json flag.
func (fs *FlagSet) JSON() *bool {
	if fs.json == nil {
		var json bool
		fs.BoolVar(&json, "json", false,
			"show the output from -buildinfo, -version or the main module in JSON")
		fs.json = &json
	}
	return fs.json
}

// StringList is a flag.Value that collects every occurrence of a repeatable
// flag.
type StringList []string

func (l *StringList) String() string { return strings.Join(*l, ",") }

func (l *StringList) Set(s string) error {
	*l = append(*l, s)
	return nil
}
