package http

// node is one segment of a method's responder tree.
type node struct {
	handler  Handler
	children map[string]*node
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

func (n *node) insert(parts []string, handler Handler) {
	cur := n
	for _, part := range parts {
		child, found := cur.children[part]
		if !found {
			child = newNode()
			cur.children[part] = child
		}
		cur = child
	}
	cur.handler = handler
}

// find walks one segment at a time; nil when a step has no child or the
// final node carries no handler.
func (n *node) find(parts []string) Handler {
	cur := n
	for _, part := range parts {
		child, found := cur.children[part]
		if !found {
			return nil
		}
		cur = child
	}
	return cur.handler
}
