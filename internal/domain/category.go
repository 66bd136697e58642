package domain

// Category is a single record from the feed's category section.
// ParentID of zero marks a root category.
type Category struct {
	ID       int    `json:"id"`
	ParentID int    `json:"parent_id"`
	Name     string `json:"name"`
}

// CategoryTree maps a category id to its resolved root-to-leaf name path.
//
// It is built by a single forward pass over the category section: a node's
// path is its parent's already-resolved path plus its own name. A node whose
// parent has not been seen yet (out-of-order or dangling reference) becomes a
// root with a single-element path. Cyclic declarations are not detected; a
// cycle freezes at whatever prefix was resolved when it was first
// encountered.
type CategoryTree struct {
	paths map[int][]string
}

func NewCategoryTree() *CategoryTree {
	return &CategoryTree{
		paths: make(map[int][]string),
	}
}

// Add resolves and stores the path for a category record.
func (t *CategoryTree) Add(category Category) {
	if category.ParentID == 0 {
		t.paths[category.ID] = []string{category.Name}
		return
	}

	parentPath := t.paths[category.ParentID]
	path := make([]string, 0, len(parentPath)+1)
	path = append(path, parentPath...)
	path = append(path, category.Name)
	t.paths[category.ID] = path
}

// Path returns the root-to-leaf name path for a category id, or nil when the
// id is unknown.
func (t *CategoryTree) Path(categoryID int) []string {
	return t.paths[categoryID]
}

// Len returns the number of resolved categories.
func (t *CategoryTree) Len() int {
	return len(t.paths)
}
