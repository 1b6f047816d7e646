package hierarchy

import (
	"fmt"
	"sort"
)

// Tree is a mapped hierarchy in insertion order. Every row's parent path
// is already present when it is added.
type Tree struct {
	project *Project
	rows    []Row
	paths   map[string]Type
}

func NewTree() *Tree {
	return &Tree{paths: make(map[string]Type)}
}

// Add appends row. The project must come first.
func (t *Tree) Add(row Row) error {
	b := row.Common()
	if p, ok := row.(*Project); ok {
		if t.project != nil {
			return fmt.Errorf("add project %q: %w", b.ID, ErrProjectExists)
		}
		t.project = p
		t.rows = append(t.rows, row)
		t.paths[PathOf(row)] = TypeProject
		return nil
	}

	if t.project == nil {
		return fmt.Errorf("add %s %q: %w", row.Type(), b.ID, ErrProjectNotMapped)
	}
	if _, ok := t.paths[b.Parent]; !ok {
		return fmt.Errorf("add %s %q under %q: %w", row.Type(), b.ID, b.Parent, ErrParentNotMapped)
	}
	path := PathOf(row)
	if _, ok := t.paths[path]; ok {
		return fmt.Errorf("add %s %q under %q: %w", row.Type(), b.ID, b.Parent, ErrDuplicateID)
	}
	t.paths[path] = row.Type()
	t.rows = append(t.rows, row)
	return nil
}

func (t *Tree) Project() *Project { return t.project }

func (t *Tree) Rows() []Row { return t.rows }

func (t *Tree) Len() int { return len(t.rows) }

// Has reports whether a row with the given path exists.
func (t *Tree) Has(path string) bool {
	_, ok := t.paths[path]
	return ok
}

// Count returns the number of rows of type typ.
func (t *Tree) Count(typ Type) int {
	n := 0
	for _, r := range t.rows {
		if r.Type() == typ {
			n++
		}
	}
	return n
}

// BuildTree orders rows by depth so parents precede children and adds them.
// The first rejected row aborts the build.
func BuildTree(rows []Row) (*Tree, error) {
	ordered := append([]Row(nil), rows...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return depthOf(ordered[i]) < depthOf(ordered[j])
	})

	tree := NewTree()
	for _, row := range ordered {
		if err := tree.Add(row); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

func depthOf(row Row) int {
	if row.Type() == TypeProject {
		return 0
	}
	return Depth(row.Common().Parent)
}
