// Package diff computes structured differences between two fact values.
package diff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tradelab/draudit/pkg/jsonutil"
)

// ChangeType represents the type of change at one path.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeRemoved  ChangeType = "removed"
	ChangeModified ChangeType = "modified"
)

// Change is a single differing path. Old and New hold canonical JSON; Old is
// empty for additions and New is empty for removals.
type Change struct {
	Path string     `json:"path"`
	Type ChangeType `json:"type"`
	Old  string     `json:"old,omitempty"`
	New  string     `json:"new,omitempty"`
}

// Result is the difference between recorded and recomputed facts.
type Result struct {
	Added         []*Change `json:"added"`
	Removed       []*Change `json:"removed"`
	Modified      []*Change `json:"modified"`
	TotalAdded    int       `json:"total_added"`
	TotalRemoved  int       `json:"total_removed"`
	TotalModified int       `json:"total_modified"`
}

// Diff compares recorded (old) with recomputed (new). Objects are compared
// member by member and arrays index by index; any other difference is
// reported at the deepest path where the kinds or scalars diverge.
func Diff(recorded, recomputed jsonutil.Value) *Result {
	r := &Result{}
	r.walk("", recorded, recomputed)

	sortChanges(r.Added)
	sortChanges(r.Removed)
	sortChanges(r.Modified)

	r.TotalAdded = len(r.Added)
	r.TotalRemoved = len(r.Removed)
	r.TotalModified = len(r.Modified)
	return r
}

func (r *Result) walk(path string, old, cur jsonutil.Value) {
	if old.Equal(cur) {
		return
	}
	switch {
	case old.Kind() == jsonutil.KindObject && cur.Kind() == jsonutil.KindObject:
		for _, k := range old.Keys() {
			ov, _ := old.Get(k)
			nv, ok := cur.Get(k)
			if !ok {
				r.Removed = append(r.Removed, &Change{Path: join(path, k), Type: ChangeRemoved, Old: ov.String()})
				continue
			}
			r.walk(join(path, k), ov, nv)
		}
		for _, k := range cur.Keys() {
			if _, ok := old.Get(k); !ok {
				nv, _ := cur.Get(k)
				r.Added = append(r.Added, &Change{Path: join(path, k), Type: ChangeAdded, New: nv.String()})
			}
		}
	case old.Kind() == jsonutil.KindArray && cur.Kind() == jsonutil.KindArray:
		n := max(old.Len(), cur.Len())
		for i := 0; i < n; i++ {
			p := fmt.Sprintf("%s[%d]", path, i)
			ov, inOld := old.Index(i)
			nv, inNew := cur.Index(i)
			switch {
			case !inNew:
				r.Removed = append(r.Removed, &Change{Path: p, Type: ChangeRemoved, Old: ov.String()})
			case !inOld:
				r.Added = append(r.Added, &Change{Path: p, Type: ChangeAdded, New: nv.String()})
			default:
				r.walk(p, ov, nv)
			}
		}
	default:
		r.Modified = append(r.Modified, &Change{Path: path, Type: ChangeModified, Old: old.String(), New: cur.String()})
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// sortChanges sorts changes by path.
func sortChanges(changes []*Change) {
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Path < changes[j].Path
	})
}

// Empty reports whether the two values were equal.
func (r *Result) Empty() bool {
	return r.TotalAdded == 0 && r.TotalRemoved == 0 && r.TotalModified == 0
}

// Paths returns every differing path in sorted order.
func (r *Result) Paths() []string {
	var paths []string
	for _, group := range [][]*Change{r.Added, r.Removed, r.Modified} {
		for _, c := range group {
			paths = append(paths, displayPath(c.Path))
		}
	}
	sort.Strings(paths)
	return paths
}

// Lines renders one compact line per change, ordered by path.
func (r *Result) Lines() []string {
	var all []*Change
	all = append(all, r.Added...)
	all = append(all, r.Removed...)
	all = append(all, r.Modified...)
	sortChanges(all)

	lines := make([]string, 0, len(all))
	for _, c := range all {
		switch c.Type {
		case ChangeAdded:
			lines = append(lines, fmt.Sprintf("+ %s: %s", displayPath(c.Path), c.New))
		case ChangeRemoved:
			lines = append(lines, fmt.Sprintf("- %s: %s", displayPath(c.Path), c.Old))
		default:
			lines = append(lines, fmt.Sprintf("~ %s: %s -> %s", displayPath(c.Path), c.Old, c.New))
		}
	}
	return lines
}

// FormatHuman returns a human-readable representation of the diff.
func (r *Result) FormatHuman() string {
	var sb strings.Builder

	if r.TotalAdded > 0 {
		sb.WriteString(fmt.Sprintf("Added (%d):\n", r.TotalAdded))
		for _, c := range r.Added {
			sb.WriteString(fmt.Sprintf("  + %s = %s\n", displayPath(c.Path), c.New))
		}
		sb.WriteString("\n")
	}

	if r.TotalRemoved > 0 {
		sb.WriteString(fmt.Sprintf("Removed (%d):\n", r.TotalRemoved))
		for _, c := range r.Removed {
			sb.WriteString(fmt.Sprintf("  - %s = %s\n", displayPath(c.Path), c.Old))
		}
		sb.WriteString("\n")
	}

	if r.TotalModified > 0 {
		sb.WriteString(fmt.Sprintf("Modified (%d):\n", r.TotalModified))
		for _, c := range r.Modified {
			sb.WriteString(fmt.Sprintf("  ~ %s: %s -> %s\n", displayPath(c.Path), c.Old, c.New))
		}
		sb.WriteString("\n")
	}

	if r.Empty() {
		sb.WriteString("No changes.\n")
	}

	return sb.String()
}

func displayPath(p string) string {
	if p == "" {
		return "(root)"
	}
	return p
}
