package mpq

import (
	"fmt"
	"iter"
	"os"
	"slices"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/meigma/mpq/internal/listfile"
	"github.com/meigma/mpq/internal/pathutil"
)

// loadManifest resolves the list of known names.
//
// An external manifest wins outright and its files must be readable. The
// internal (listfile) is best-effort: when it is missing or unreadable the
// manifest is empty.
func (a *Archive) loadManifest() error {
	if a.external {
		lists := [][]string{a.listfileEntries}
		for _, p := range a.listfilePaths {
			data, err := os.ReadFile(p) //nolint:gosec // user-provided path is intentional
			if err != nil {
				return fmt.Errorf("read listfile: %w", err)
			}
			lists = append(lists, listfile.Parse(data))
		}
		a.manifest = listfile.Merge(lists...)
		a.log().Debug("manifest loaded", "source", "external", "entries", len(a.manifest))
		return nil
	}

	r, err := a.resolve(ListfileName)
	if err != nil {
		a.log().Debug("manifest absent", "name", ListfileName)
		return nil
	}
	data, err := a.extract(r)
	if err != nil {
		a.log().Warn("listfile unreadable", "error", err)
		return nil
	}
	a.manifest = listfile.Parse(data)
	a.log().Debug("manifest loaded", "source", ListfileName, "entries", len(a.manifest))
	return nil
}

// FileList returns an iterator over the manifest's names in archive form.
//
// The names come from the external manifest when one was supplied, otherwise
// from the archive's (listfile). Names are not checked against the hash
// table. The iterator is empty when no manifest exists or after Close.
func (a *Archive) FileList() iter.Seq[string] {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return func(func(string) bool) {}
	}
	return slices.Values(a.manifest)
}

// Match returns the manifest names matching pattern that exist in the
// archive.
//
// The pattern uses doublestar syntax with slash separators, for example
// "Units/**/*.mdx". Matching is case-sensitive against the manifest's
// spelling. Results are in manifest order and use archive separators.
func (a *Archive) Match(pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("match %q: %w", pattern, doublestar.ErrBadPattern)
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}
	var out []string
	for _, name := range a.manifest {
		if !doublestar.MatchUnvalidated(pattern, pathutil.ToSlash(name)) {
			continue
		}
		if _, ok := a.lookup(name); ok {
			out = append(out, name)
		}
	}
	return out, nil
}
