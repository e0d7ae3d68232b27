// Package pathsearch resolves spec-source, include, and specification files
// against the search paths the Asp tools take from the environment.
package pathsearch

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables honored by the tools.
const (
	SpecIncludeVar = "ASP_SPEC_INCLUDE" // search path for .asps includes and module files
	IncludeVar     = "ASP_INCLUDE"      // search path for script includes
	SpecFileVar    = "ASP_SPEC_FILE"    // default application specification
)

// Split breaks a search-path string into its directories. Both colons and
// semicolons separate entries; empty entries are dropped.
func Split(path string) []string {
	parts := strings.FieldsFunc(path, func(r rune) bool {
		return r == ':' || r == ';'
	})
	directories := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			directories = append(directories, part)
		}
	}
	return directories
}

// Resolver returns an opener that tries each directory in order. The
// resolved path of the opened file is returned alongside the stream for
// diagnostics. An empty directory entry means the current directory.
func Resolver(directories ...string) func(fileName string) (io.ReadCloser, string, error) {
	return func(fileName string) (io.ReadCloser, string, error) {
		// An absolute or directory-qualified name bypasses the search path.
		if filepath.IsAbs(fileName) || strings.ContainsRune(fileName, os.PathSeparator) {
			f, err := os.Open(fileName)
			return f, fileName, err
		}

		var firstErr error
		for _, directory := range directories {
			resolved := fileName
			if directory != "" {
				resolved = filepath.Join(directory, fileName)
			}
			f, err := os.Open(resolved)
			if err == nil {
				return f, resolved, nil
			}
			if firstErr == nil {
				firstErr = err
			}
		}
		if firstErr == nil {
			firstErr = os.ErrNotExist
		}
		return nil, fileName, firstErr
	}
}
