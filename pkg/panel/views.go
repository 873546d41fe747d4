package panel

import apperrors "github.com/odvcencio/panel/pkg/errors"

// View is a top-level rendered subtree shown or hidden as a unit.
type View struct {
	ID   string
	Root *Node
}

// Visible reports whether the view's root is shown.
func (v *View) Visible() bool {
	return v.Root.visible
}

// ViewRegistry holds the panel's views. It is the only writer of a view
// root's visibility.
type ViewRegistry struct {
	views map[string]*View
	order []*View
}

// NewViewRegistry creates an empty registry.
func NewViewRegistry() *ViewRegistry {
	return &ViewRegistry{views: make(map[string]*View)}
}

func (r *ViewRegistry) add(root *Node) {
	root.root = true
	v := &View{ID: root.ID, Root: root}
	r.views[root.ID] = v
	r.order = append(r.order, v)
}

// Show makes the view visible. Other views are left as they are.
func (r *ViewRegistry) Show(id string) error {
	v, err := r.lookup(id)
	if err != nil {
		return err
	}
	v.Root.visible = true
	return nil
}

// Hide makes the view invisible.
func (r *ViewRegistry) Hide(id string) error {
	v, err := r.lookup(id)
	if err != nil {
		return err
	}
	v.Root.visible = false
	return nil
}

// IsVisible reports whether id names a visible view.
func (r *ViewRegistry) IsVisible(id string) bool {
	v, ok := r.views[id]
	return ok && v.Root.visible
}

// Has reports whether id names a view.
func (r *ViewRegistry) Has(id string) bool {
	_, ok := r.views[id]
	return ok
}

// Views returns every view in description order.
func (r *ViewRegistry) Views() []*View {
	out := make([]*View, len(r.order))
	copy(out, r.order)
	return out
}

// VisibleIDs returns the identities of the visible views in description order.
func (r *ViewRegistry) VisibleIDs() []string {
	var out []string
	for _, v := range r.order {
		if v.Root.visible {
			out = append(out, v.ID)
		}
	}
	return out
}

func (r *ViewRegistry) lookup(id string) (*View, error) {
	v, ok := r.views[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrCodeUnresolvedIdentity, "no view with identity %q", id).
			WithContext("id", id)
	}
	return v, nil
}
