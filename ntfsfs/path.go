package ntfsfs

import (
	"strings"

	"github.com/t9t/ntfsfs/ntfserr"
)

// splitPathComponents splits a relative path into its components, requiring a single, consistent separator: '/' and
// '\' may not both appear in the same path. An empty or root-only path yields no components.
func splitPathComponents(path string) ([]string, error) {
	const op = "ntfsfs.splitPathComponents"
	hasSlash := strings.Contains(path, "/")
	hasBackslash := strings.Contains(path, `\`)
	if hasSlash && hasBackslash {
		return nil, ntfserr.New(op, ntfserr.UnsupportedPath)
	}

	sep := "/"
	if hasBackslash {
		sep = `\`
	}

	var components []string
	for _, part := range strings.Split(path, sep) {
		if part != "" {
			components = append(components, part)
		}
	}
	return components, nil
}

// PathEntry resolves a path relative to this directory, walking one child lookup per component. Fails with an
// *ntfserr.Error of Kind UnsupportedPath if relative mixes '/' and '\' separators, DirectoryNotFound if a
// non-final component does not resolve to a directory, or ChildNotFound if any component has no matching child.
func (d *Directory) PathEntry(relative string) (Node, error) {
	const op = "ntfsfs.Directory.PathEntry"
	components, err := splitPathComponents(relative)
	if err != nil {
		return nil, err
	}

	var current Node = d
	for i, name := range components {
		dir, ok := current.(*Directory)
		if !ok {
			return nil, ntfserr.New(op, ntfserr.DirectoryNotFound)
		}
		child, err := dir.Child(name)
		if err != nil {
			return nil, err
		}
		if i == len(components)-1 {
			return child, nil
		}
		current = child
	}
	return current, nil
}
