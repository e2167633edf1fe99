package content

import "strings"

// The sort key of a comment is its ancestor-id chain joined with "-",
// terminated by its own id. Root comments use their bare id. Because ids
// sort in creation order, an ascending sort over sort keys within one
// thread is exactly a pre-order traversal: parents precede descendants
// (their key is a strict prefix) and siblings appear in creation order.

// ChildSortKey derives the sort key for a comment with the given id created
// under parent.
func ChildSortKey(parent *Comment, id string) string {
	if parent == nil {
		return id
	}
	return parent.SortKey + "-" + id
}

// InSubtree reports whether key belongs to the subtree rooted at rootKey,
// inclusive of the root itself.
func InSubtree(key, rootKey string) bool {
	return key == rootKey || strings.HasPrefix(key, rootKey+"-")
}

// SubtreePrefix is the prefix shared by every strict descendant of the
// comment with the given sort key. Exposed for prefix-matching stores.
func SubtreePrefix(rootKey string) string {
	return rootKey + "-"
}
