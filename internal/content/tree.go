package content

// ResponseNode is a comment with its reconstructed replies.
type ResponseNode struct {
	Comment  *Comment
	Children []*ResponseNode
}

// BuildResponseTree rebuilds the nested reply structure from comments that
// are already sorted ascending by sort key (pre-order). The input may be a
// strict subset of the thread, e.g. one page of top-level responses plus
// their descendants. A comment whose parent is absent from the input is an
// orphan: it is dropped, and its own descendants cascade out with it.
//
// The walk keeps an open-ancestry stack of the path from the current root
// to the last placed node, so reconstruction is O(n) with no lookups.
func BuildResponseTree(comments []*Comment) []*ResponseNode {
	roots := []*ResponseNode{}
	var stack []*ResponseNode

	for _, c := range comments {
		node := &ResponseNode{Comment: c}

		if c.ParentID == nil {
			roots = append(roots, node)
			stack = append(stack[:0], node)
			continue
		}

		for len(stack) > 0 && stack[len(stack)-1].Comment.ID != *c.ParentID {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			// Orphan: its parent was cut by pagination. Not pushed, so any
			// descendants that follow will fail to match and drop too.
			continue
		}

		parent := stack[len(stack)-1]
		parent.Children = append(parent.Children, node)
		stack = append(stack, node)
	}
	return roots
}

// FlattenTree returns the depth-first, parent-before-children order of the
// given forest.
func FlattenTree(nodes []*ResponseNode) []*Comment {
	var out []*Comment
	var walk func(n *ResponseNode)
	walk = func(n *ResponseNode) {
		out = append(out, n.Comment)
		for _, ch := range n.Children {
			walk(ch)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return out
}
