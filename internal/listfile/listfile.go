// Package listfile parses archive manifests: plain text lists of stored
// file names.
package listfile

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// Name is the internal manifest's name inside the archive.
const Name = "(listfile)"

// Parse splits a manifest into names. Entries are separated by newlines,
// carriage returns or semicolons; surrounding whitespace is trimmed and
// empty entries are skipped. Duplicates are dropped, comparing names without
// regard to ASCII case or path separator style. The first spelling wins.
func Parse(data []byte) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, field := range bytes.FieldsFunc(data, isSeparator) {
		name := strings.TrimSpace(string(field))
		if name == "" {
			continue
		}
		key := Key(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}
	return names
}

// Read parses a manifest from r.
func Read(r io.Reader) ([]string, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(bufio.NewReader(r)); err != nil {
		return nil, err
	}
	return Parse(buf.Bytes()), nil
}

// Merge combines name lists in order, dropping duplicates the same way Parse does.
func Merge(lists ...[]string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, name := range list {
			key := Key(name)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

// Key returns the comparison key for a name: ASCII upper case with
// backslash separators, matching how the hash function normalizes paths.
func Key(name string) string {
	b := []byte(name)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z':
			b[i] = c - 'a' + 'A'
		case c == '/':
			b[i] = '\\'
		}
	}
	return string(b)
}

func isSeparator(r rune) bool {
	return r == '\n' || r == '\r' || r == ';'
}
