package runner

import (
	"os"
	"path/filepath"
)

// ConfigEnv is the environment variable that names the configuration file.
const ConfigEnv = "JSRT_CONFIG"

// ConfigPath returns the path of the configuration file: flag if it is not
// empty, then $JSRT_CONFIG, then jsrt/jsrt.yaml in the user config directory.
// The returned bool is true when the path was asked for explicitly, in which
// case the file must exist. The path is empty when there is none to try.
func ConfigPath(flag string) (string, bool) {
	if flag != "" {
		return flag, true
	}
	if env := os.Getenv(ConfigEnv); env != "" {
		return env, true
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		// No config directory; run without a configuration file.
		return "", false
	}
	return filepath.Join(dir, "jsrt", "jsrt.yaml"), false
}
