package panel

import (
	apperrors "github.com/odvcencio/panel/pkg/errors"
	"github.com/odvcencio/panel/pkg/layout"
)

// Panel is one independent panel instance: its rendered forest together with
// the index, views and gate that inbound commands and user interactions share.
type Panel struct {
	Index *Index
	Views *ViewRegistry
	Gate  *Gate

	roots []*Node
}

// Build expands a page forest into a new panel. Every view starts hidden and
// the gate starts disabled.
func Build(roots []layout.Description) (*Panel, error) {
	p := &Panel{
		Index: NewIndex(),
		Views: NewViewRegistry(),
		Gate:  &Gate{},
	}
	b := NewBuilder(p.Index, p.Views)
	for _, root := range roots {
		if err := b.Expand(root, ""); err != nil {
			return nil, err
		}
	}
	for _, v := range p.Views.Views() {
		p.roots = append(p.roots, v.Root)
		_ = p.Views.Hide(v.ID)
	}
	return p, nil
}

// ShowInitial shows the configured startup view. An empty id shows nothing.
func (p *Panel) ShowInitial(view string) error {
	if view == "" {
		return nil
	}
	if !p.Views.Has(view) {
		return apperrors.Newf(apperrors.ErrCodeLayoutInvalid, "initial view %q is not a page root", view).
			WithContext("view", view)
	}
	return p.Views.Show(view)
}

// Roots returns the view roots in description order.
func (p *Panel) Roots() []*Node {
	return p.roots
}

// Lookup resolves an identity or returns UNRESOLVED_IDENTITY.
func (p *Panel) Lookup(id string) (*Node, error) {
	return p.Index.Resolve(id)
}

// Show makes n visible, going through the view registry for view roots.
func (p *Panel) Show(n *Node) {
	if n == nil {
		return
	}
	if n.root {
		_ = p.Views.Show(n.ID)
		return
	}
	n.visible = true
}

// Hide makes n invisible, going through the view registry for view roots.
func (p *Panel) Hide(n *Node) {
	if n == nil {
		return
	}
	if n.root {
		_ = p.Views.Hide(n.ID)
		return
	}
	n.visible = false
}

// Walk visits every rendered node in pre-order, card controls right after
// their card. Returning false from fn stops the walk.
func (p *Panel) Walk(fn func(n *Node) bool) {
	var visit func(n *Node) bool
	visit = func(n *Node) bool {
		if !fn(n) {
			return false
		}
		if n.control != nil && !fn(n.control) {
			return false
		}
		for _, child := range n.children {
			if !visit(child) {
				return false
			}
		}
		return true
	}
	for _, root := range p.roots {
		if !visit(root) {
			return
		}
	}
}
