// Package search recursively discovers array directories under a
// workspace root, the plain-filesystem counterpart of the teacher's
// TileDB-VFS-backed GSF trawl.
package search

import (
	"fmt"
	"os"
	"path/filepath"
)

const schemaFileName = "array_schema"

// trawl recursively walks dir, collecting every directory that directly
// contains an array_schema file. It mirrors the teacher's recursive
// list-then-filter walk (search.go's trawl: list a directory, filter
// its files against a pattern, recurse into its subdirectories) adapted
// from a VFS directory listing and a *.gsf basename pattern to a plain
// os.ReadDir walk and an array_schema presence check.
func trawl(dir string, items []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("search: listing %s: %w", dir, err)
	}

	hasSchema := false
	var subdirs []string
	for _, e := range entries {
		if e.IsDir() {
			subdirs = append(subdirs, filepath.Join(dir, e.Name()))
			continue
		}
		if e.Name() == schemaFileName {
			hasSchema = true
		}
	}
	if hasSchema {
		items = append(items, dir)
	}

	for _, sub := range subdirs {
		items, err = trawl(sub, items)
		if err != nil {
			return nil, err
		}
	}
	return items, nil
}

// FindArrays recursively searches workspaceRoot for array directories -
// any directory directly containing an array_schema bookkeeping file -
// returning their paths in the order the walk visits them.
func FindArrays(workspaceRoot string) ([]string, error) {
	info, err := os.Stat(workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("search: %s is not a directory", workspaceRoot)
	}
	return trawl(workspaceRoot, nil)
}

// FindArraysMatching is FindArrays filtered to array names matching
// pattern (a filepath.Match glob against the array's base directory
// name), the nearest equivalent of the teacher's pattern-filtered trawl.
func FindArraysMatching(workspaceRoot, pattern string) ([]string, error) {
	all, err := FindArrays(workspaceRoot)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, dir := range all {
		matched, err := filepath.Match(pattern, filepath.Base(dir))
		if err != nil {
			return nil, fmt.Errorf("search: bad pattern %q: %w", pattern, err)
		}
		if matched {
			out = append(out, dir)
		}
	}
	return out, nil
}
