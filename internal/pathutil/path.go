// Package pathutil converts between backslash-separated archive paths and
// the slash-separated paths of io/fs.
package pathutil

import "strings"

// ToSlash converts an archive path to io/fs form. Leading separators and
// empty elements are dropped.
func ToSlash(name string) string {
	parts := strings.FieldsFunc(name, isSeparator)
	if len(parts) == 0 {
		return "."
	}
	return strings.Join(parts, "/")
}

// FromSlash converts an io/fs path to archive form.
func FromSlash(name string) string {
	if name == "." {
		return ""
	}
	return strings.ReplaceAll(name, "/", `\`)
}

// Base returns the last element of a slash-separated path.
// If path is empty or ".", it returns ".".
func Base(path string) string {
	if path == "" || path == "." {
		return "."
	}
	path = strings.TrimSuffix(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// DirPrefix converts a directory to the prefix its children share.
// For "." it returns the empty prefix.
func DirPrefix(name string) string {
	if name == "." {
		return ""
	}
	return name + "/"
}

// Child returns the first element of path below prefix and whether more
// elements follow it. Matching ignores ASCII case. ok is false when path is
// not below prefix.
func Child(path, prefix string) (name string, isSubDir, ok bool) {
	if len(path) <= len(prefix) || !strings.EqualFold(path[:len(prefix)], prefix) {
		return "", false, false
	}
	rel := path[len(prefix):]
	if i := strings.IndexByte(rel, '/'); i >= 0 {
		return rel[:i], true, true
	}
	return rel, false, true
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}
