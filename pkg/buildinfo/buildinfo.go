// Package buildinfo contains build information.
//
// Build information should be set during compilation by passing
// -ldflags "-X src.jsrt.sh/pkg/buildinfo.Var=value" to "go build".
package buildinfo

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"src.jsrt.sh/pkg/prog"
)

// VersionBase is the version of jsrt without any suffix. On development
// builds, it identifies the next release.
const VersionBase = "0.4.0"

// Released is set to "true" when building a release. Otherwise the version
// carries a development suffix.
var Released = "false"

// VCSOverride overrides the revision information found in the binary, in the
// form of "<14-digit UTC timestamp>-<12-digit revision>".
var VCSOverride string

// Type describes a build of jsrt.
type Type struct {
	Version   string `json:"version"`
	GoVersion string `json:"goversion"`
}

// Value describes the running binary.
var Value = Type{
	Version:   version(VersionBase, Released, VCSOverride, debug.ReadBuildInfo),
	GoVersion: runtime.Version(),
}

func version(base, released, vcsOverride string, readBuildInfo func() (*debug.BuildInfo, bool)) string {
	if released == "true" {
		return base
	}
	return devVersion(base, vcsOverride, readBuildInfo)
}

// devVersion follows the pseudo-version format of Go modules.
func devVersion(next, vcsOverride string, readBuildInfo func() (*debug.BuildInfo, bool)) string {
	if vcsOverride != "" {
		return next + "-dev.0." + vcsOverride
	}
	fallback := next + "-dev.unknown"
	bi, ok := readBuildInfo()
	if !ok {
		return fallback
	}
	if v := bi.Main.Version; v != "" && v != "(devel)" {
		// Installed with "go install src.jsrt.sh/cmd/jsrt@revision".
		return v[1:]
	}
	var revision, timestamp string
	modified := false
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			t, err := time.Parse(time.RFC3339, s.Value)
			if err != nil {
				return fallback
			}
			timestamp = t.UTC().Format("20060102150405")
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	if len(revision) < 12 || timestamp == "" {
		return fallback
	}
	v := fmt.Sprintf("%s-dev.0.%s-%s", next, timestamp, revision[:12])
	if modified {
		v += "-dirty"
	}
	return v
}

// Program is the buildinfo subprogram. It handles -version and -buildinfo.
type Program struct {
	version, buildinfo bool
	json               *bool
}

func (p *Program) RegisterFlags(fs *prog.FlagSet) {
	fs.BoolVar(&p.version, "version", false, "show version and quit")
	fs.BoolVar(&p.buildinfo, "buildinfo", false, "show build info and quit")
	p.json = fs.JSON()
}

func (p *Program) Run(fds [3]*os.File, _ []string) error {
	switch {
	case p.buildinfo:
		if *p.json {
			fmt.Fprintln(fds[1], mustToJSON(Value))
		} else {
			fmt.Fprintln(fds[1], "Version:", Value.Version)
			fmt.Fprintln(fds[1], "Go version:", Value.GoVersion)
		}
	case p.version:
		if *p.json {
			fmt.Fprintln(fds[1], mustToJSON(Value.Version))
		} else {
			fmt.Fprintln(fds[1], Value.Version)
		}
	default:
		return prog.ErrNotSuitable
	}
	return nil
}

func mustToJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
