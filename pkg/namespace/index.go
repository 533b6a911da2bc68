package namespace

import (
	"sort"
	"strings"
)

// MatchMode selects how Index.Search compares names.
type MatchMode int

const (
	// MatchExact matches names equal to the query, ignoring case
	MatchExact MatchMode = iota

	// MatchSubstring matches names containing the query, ignoring case
	MatchSubstring
)

// ParseMatchMode maps a configuration value to a MatchMode.
func ParseMatchMode(s string) (MatchMode, bool) {
	switch strings.ToLower(s) {
	case "", "exact":
		return MatchExact, true
	case "substring", "contains":
		return MatchSubstring, true
	}
	return MatchExact, false
}

// Index maps case-folded names to the ids of the nodes carrying them.
//
// The index is maintained incrementally by the Tree on every insert, rename
// and removal, so a search never walks the tree. It is not safe for
// concurrent use; the owning Tree's caller serializes access.
type Index struct {
	byName map[string]map[string]struct{}
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{byName: make(map[string]map[string]struct{})}
}

// Add registers id under name.
func (ix *Index) Add(name, id string) {
	key := foldName(name)
	set, ok := ix.byName[key]
	if !ok {
		set = make(map[string]struct{})
		ix.byName[key] = set
	}
	set[id] = struct{}{}
}

// Remove drops id from name. Unknown pairs are ignored.
func (ix *Index) Remove(name, id string) {
	key := foldName(name)
	set, ok := ix.byName[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(ix.byName, key)
	}
}

// Rename moves id from oldName to newName.
func (ix *Index) Rename(oldName, newName, id string) {
	ix.Remove(oldName, id)
	ix.Add(newName, id)
}

// Search returns the ids whose names match query, sorted for stable output.
//
// An empty query matches nothing.
func (ix *Index) Search(query string, mode MatchMode) []string {
	if query == "" {
		return nil
	}
	key := foldName(query)

	var ids []string
	switch mode {
	case MatchSubstring:
		for name, set := range ix.byName {
			if strings.Contains(name, key) {
				for id := range set {
					ids = append(ids, id)
				}
			}
		}
	default:
		for id := range ix.byName[key] {
			ids = append(ids, id)
		}
	}

	sort.Strings(ids)
	return ids
}

// Len returns the number of indexed ids.
func (ix *Index) Len() int {
	n := 0
	for _, set := range ix.byName {
		n += len(set)
	}
	return n
}
