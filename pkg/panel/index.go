package panel

import apperrors "github.com/odvcencio/panel/pkg/errors"

// Index resolves identities to rendered nodes across the whole forest.
type Index struct {
	nodes map[string]*Node
	order []*Node
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{nodes: make(map[string]*Node)}
}

// Insert adds n under its identity. A second node with the same identity is
// rejected with DUPLICATE_IDENTITY and the index is left as it was.
func (ix *Index) Insert(n *Node) error {
	if _, exists := ix.nodes[n.ID]; exists {
		return apperrors.Newf(apperrors.ErrCodeDuplicateIdentity, "identity %q is already in use", n.ID).
			WithContext("id", n.ID).
			WithContext("kind", string(n.Kind))
	}
	ix.nodes[n.ID] = n
	ix.order = append(ix.order, n)
	return nil
}

// Get returns the node for id, if any.
func (ix *Index) Get(id string) (*Node, bool) {
	n, ok := ix.nodes[id]
	return n, ok
}

// Resolve returns the node for id or an UNRESOLVED_IDENTITY error.
func (ix *Index) Resolve(id string) (*Node, error) {
	n, ok := ix.nodes[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrCodeUnresolvedIdentity, "no component with identity %q", id).
			WithContext("id", id)
	}
	return n, nil
}

// Len returns the number of indexed nodes.
func (ix *Index) Len() int {
	return len(ix.order)
}

// Nodes returns every indexed node in insertion (pre-order) order.
func (ix *Index) Nodes() []*Node {
	out := make([]*Node, len(ix.order))
	copy(out, ix.order)
	return out
}

// ByRole returns the indexed nodes of one role in insertion order.
func (ix *Index) ByRole(role Role) []*Node {
	var out []*Node
	for _, n := range ix.order {
		if n.Role == role {
			out = append(out, n)
		}
	}
	return out
}
