package panel

import (
	apperrors "github.com/odvcencio/panel/pkg/errors"
	"github.com/odvcencio/panel/pkg/layout"
)

// Builder expands description forests into rendered nodes, registering every
// node in the index and every page root as a view.
type Builder struct {
	factory Factory
	index   *Index
	views   *ViewRegistry
}

// NewBuilder creates a builder writing into index and views.
func NewBuilder(index *Index, views *ViewRegistry) *Builder {
	return &Builder{index: index, views: views}
}

// Expand builds d and its subtree under the node identified by parentID.
// An empty parentID makes d the root of a new view. Nodes are created in
// pre-order: a parent is built and attached before any of its children.
func (b *Builder) Expand(d layout.Description, parentID string) error {
	var parent *Node
	if parentID != "" {
		p, err := b.index.Resolve(parentID)
		if err != nil {
			return err
		}
		parent = p
	}
	return b.expand(d, parent)
}

func (b *Builder) expand(d layout.Description, parent *Node) error {
	n, err := b.factory.Build(d)
	if err != nil {
		return err
	}
	if err := b.insert(n); err != nil {
		return err
	}

	if parent == nil {
		b.views.add(n)
		n.reveal = n
	} else {
		parent.appendChild(n)
		n.reveal = revealUnit(parent)
	}
	if n.Kind == layout.KindCard || n.Kind == layout.KindCardText {
		n.reveal = n
	}

	if !d.Nested {
		return nil
	}
	for _, child := range d.Children {
		if err := b.expand(child, n); err != nil {
			return err
		}
	}
	return nil
}

// insert indexes n and its card control together: either both go in or
// neither does.
func (b *Builder) insert(n *Node) error {
	if c := n.control; c != nil {
		if _, taken := b.index.Get(c.ID); taken || c.ID == n.ID {
			return apperrors.Newf(apperrors.ErrCodeDuplicateIdentity, "identity %q is already in use", c.ID).
				WithContext("id", c.ID).
				WithContext("card", n.ID)
		}
	}
	if err := b.index.Insert(n); err != nil {
		return err
	}
	if n.control != nil {
		return b.index.Insert(n.control)
	}
	return nil
}

// revealUnit finds the structural unit a node placed under parent belongs
// to: the nearest enclosing card, else the view root.
func revealUnit(parent *Node) *Node {
	cur := parent
	for {
		if cur.Kind == layout.KindCard || cur.Kind == layout.KindCardText {
			return cur
		}
		if cur.parent == nil {
			return cur
		}
		cur = cur.parent
	}
}
