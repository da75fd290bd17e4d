// Package pathutil provides path manipulation for slash-separated archive paths.
package pathutil

import "strings"

// Normalize converts a user-provided path to fs.ValidPath form.
//
// It strips leading and trailing slashes, collapses repeated slashes, and
// maps "" and "/" to ".". Elements such as "." and ".." are kept so that
// fs.ValidPath rejects them later.
func Normalize(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return "."
	}
	parts := strings.Split(p, "/")
	result := parts[:0]
	for _, part := range parts {
		if part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		return "."
	}
	return strings.Join(result, "/")
}

// DirPrefix converts a directory to the prefix shared by its descendants.
// "", ".", and "/" return "", which matches everything.
func DirPrefix(dir string) string {
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" || dir == "." {
		return ""
	}
	return dir + "/"
}

// Child returns the name of the direct child of dir that contains p, and
// whether that child is a directory. dir is "." or a directory path; p
// must lie below it.
func Child(p, dir string) (name string, isDir bool) {
	rel := strings.TrimPrefix(p, DirPrefix(dir))
	name, _, isDir = strings.Cut(rel, "/")
	return name, isDir
}
