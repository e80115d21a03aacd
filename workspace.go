package tdcore

import (
	"path/filepath"
	"strings"
)

// canonicalizeGroup resolves `~`, `./` and `../` segments in a group path
// against the workspace root, per §4.5 "Workspace layout": "Paths
// containing ~, ./, ../ are canonicalized against the workspace root; an
// empty group means root." `~` is treated the same as `.` (the workspace
// root), not the OS home directory - groups live inside the workspace,
// never outside it.
func canonicalizeGroup(group string) (string, error) {
	if group == "" {
		return "", nil
	}
	g := strings.ReplaceAll(group, "~", ".")
	clean := filepath.Clean(g)
	if clean == "." {
		return "", nil
	}
	if strings.HasPrefix(clean, "..") {
		return "", newErr(ErrInvalidArgument, "group path escapes workspace root", nil)
	}
	return clean, nil
}

// ArrayPath returns the on-disk directory for an array living at
// workspace/group/array_name (§4.5 "An array lives in
// workspace/group/array_name/").
func ArrayPath(workspaceRoot, group, arrayName string) (string, error) {
	if arrayName == "" {
		return "", newErr(ErrInvalidArgument, "array_name must not be empty", nil)
	}
	g, err := canonicalizeGroup(group)
	if err != nil {
		return "", err
	}
	return filepath.Join(workspaceRoot, g, arrayName), nil
}

// schemaPath, fragmentTreePath and fragmentDir are the fixed filenames
// of §4.5's array directory layout.
func schemaPath(arrayDir string) string {
	return filepath.Join(arrayDir, "array_schema")
}

func fragmentTreePath(arrayDir string) string {
	return filepath.Join(arrayDir, "fragment_tree.bkp")
}

func fragmentDir(arrayDir, fragmentName string) string {
	return filepath.Join(arrayDir, fragmentName)
}
