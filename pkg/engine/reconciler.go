package engine

import (
	"github.com/odvcencio/panel/pkg/panel"
)

// Reconciler applies controller commands to a panel. Dispatch uses each
// node's role, fixed when the node was built.
type Reconciler struct {
	panel *panel.Panel
}

// NewReconciler returns a reconciler bound to p.
func NewReconciler(p *panel.Panel) *Reconciler {
	return &Reconciler{panel: p}
}

// ApplyDisplay pushes controller state that expects no user reply. The
// target ends up inert and the gate disabled. An unresolved identity changes
// nothing, the gate included.
func (r *Reconciler) ApplyDisplay(cmd Command) error {
	n, err := r.panel.Lookup(cmd.ComponentID)
	if err != nil {
		return err
	}

	hidSelf := r.apply(n, cmd.SetContent, false)

	r.panel.Gate.Disable()
	if !hidSelf {
		r.panel.Show(n)
	}
	n.Unbind()
	return nil
}

// ApplyRequest pushes a prompt that expects a user reply. The target is
// rebound and the gate enabled.
func (r *Reconciler) ApplyRequest(cmd Command) error {
	n, err := r.panel.Lookup(cmd.ComponentID)
	if err != nil {
		return err
	}

	hidSelf := r.apply(n, cmd.SetContent, true)

	n.Bind()
	r.panel.Gate.Enable()
	if !hidSelf {
		r.panel.Show(n)
	}
	return nil
}

// apply runs the role-specific content and visibility rule. It reports
// whether the rule hid n itself, in which case the trailing show is skipped.
// Hiding every container and then showing the target is how a controller
// switches views.
func (r *Reconciler) apply(n *panel.Node, content string, request bool) bool {
	p := r.panel

	if content != "" {
		switch n.Role {
		case panel.RoleImage:
			p.Show(n)
			n.SetContent(content)
			n.SetValue(content)
		case panel.RoleText:
			p.Show(n.Reveal())
			p.Show(n)
			n.SetContent(content)
		default:
			n.SetContent(content)
		}
		return false
	}

	switch n.Role {
	case panel.RoleContainer:
		for _, c := range p.Index.ByRole(panel.RoleContainer) {
			p.Hide(c)
		}
		return false
	case panel.RoleImage:
		if request {
			p.Hide(n.Reveal())
			return n.Reveal() == n
		}
		p.Hide(n)
		return true
	case panel.RoleText:
		p.Hide(n.Reveal())
		return n.Reveal() == n
	}
	return false
}
