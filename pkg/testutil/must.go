package testutil

import (
	"io"
	"os"
)

// MustPipe calls os.Pipe and panics if an error is returned.
func MustPipe() (*os.File, *os.File) {
	r, w, err := os.Pipe()
	if err != nil {
		panic(err)
	}
	return r, w
}

// MustReadAllAndClose reads all of r, closes it and panics on error.
func MustReadAllAndClose(r io.ReadCloser) []byte {
	bs, err := io.ReadAll(r)
	if err != nil {
		panic(err)
	}
	r.Close()
	return bs
}

// MustMkdirAll calls os.MkdirAll and panics if an error is returned.
func MustMkdirAll(names ...string) {
	for _, name := range names {
		if err := os.MkdirAll(name, 0700); err != nil {
			panic(err)
		}
	}
}

// MustWriteFile calls os.WriteFile and panics if an error occurs.
func MustWriteFile(filename string, data []byte, perm os.FileMode) {
	if err := os.WriteFile(filename, data, perm); err != nil {
		panic(err)
	}
}

// MustChdir calls os.Chdir and panics if it fails.
func MustChdir(dir string) {
	if err := os.Chdir(dir); err != nil {
		panic(err)
	}
}
