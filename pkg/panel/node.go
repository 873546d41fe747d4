// Package panel materializes layout descriptions into a live tree of
// rendered nodes and owns the state shared by the panel's two handlers:
// the identity index, the view registry, and the interaction gate.
//
// Nothing in this package is safe for concurrent use. A Panel is meant to be
// owned by a single event loop (see pkg/engine).
package panel

import "github.com/odvcencio/panel/pkg/layout"

// Role classifies a node for inbound command dispatch. It is fixed at build
// time from the node's kind and never re-derived from the identity string.
type Role int

const (
	// RoleGeneric nodes have their body replaced by inbound content.
	RoleGeneric Role = iota
	// RoleImage nodes take inbound content as their source and value.
	RoleImage
	// RoleText nodes reveal their revealable unit when content arrives.
	RoleText
	// RoleContainer nodes drive view switching on empty content.
	RoleContainer
)

func (r Role) String() string {
	switch r {
	case RoleImage:
		return "image"
	case RoleText:
		return "text"
	case RoleContainer:
		return "container"
	default:
		return "generic"
	}
}

// MediaOptions are the playback flags of a video node.
type MediaOptions struct {
	Autoplay bool `json:"autoplay"`
	Loop     bool `json:"loop"`
	Muted    bool `json:"muted"`
}

// Node is the rendered counterpart of one description. Each node is owned by
// its parent; the only other references are the identity index and the
// reveal pointer set at build time.
type Node struct {
	ID    string
	Kind  layout.Kind
	Role  Role
	Class string

	// MaxLength limits the value of an input_number node. Zero means no limit.
	MaxLength int
	Media     MediaOptions

	// OptionChoice marks nodes that render as a selectable choice and follow
	// the interaction gate's disabled styling.
	OptionChoice bool

	content string
	value   string
	visible bool
	bound   bool
	root    bool

	parent   *Node
	reveal   *Node
	control  *Node
	children []*Node
}

// Content returns the node's body: text, or the source of media nodes.
func (n *Node) Content() string { return n.content }

// SetContent replaces the node's body.
func (n *Node) SetContent(content string) { n.content = content }

// Value returns the interaction value reported when the node is activated.
func (n *Node) Value() string { return n.value }

// SetValue stores the interaction value, truncated to MaxLength if set.
func (n *Node) SetValue(value string) {
	if n.MaxLength > 0 {
		if r := []rune(value); len(r) > n.MaxLength {
			value = string(r[:n.MaxLength])
		}
	}
	n.value = value
}

// Visible reports whether the node itself is shown. A visible node under a
// hidden ancestor is still not on screen; see OnScreen.
func (n *Node) Visible() bool { return n.visible }

// OnScreen reports whether the node and all of its ancestors are visible.
func (n *Node) OnScreen() bool {
	for cur := n; cur != nil; cur = cur.parent {
		if !cur.visible {
			return false
		}
	}
	return true
}

// Bound reports whether activation handling is attached to the node.
func (n *Node) Bound() bool { return n.bound }

// Bind attaches activation handling.
func (n *Node) Bind() { n.bound = true }

// Unbind detaches activation handling, leaving the node interaction-inert.
// A plain image carries its handling on itself rather than on nested
// content, so it stays bound.
func (n *Node) Unbind() {
	if n.Kind == layout.KindImg {
		return
	}
	n.bound = false
}

// IsRoot reports whether the node is the root of a view.
func (n *Node) IsRoot() bool { return n.root }

// Parent returns the owning node, or nil for view roots.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the description-derived children in description order.
func (n *Node) Children() []*Node { return n.children }

// Control returns the nested control synthesized for card kinds.
func (n *Node) Control() *Node { return n.control }

// Reveal returns the structural unit shown or hidden together with this
// node: the enclosing card for nodes inside a card, otherwise the view root.
func (n *Node) Reveal() *Node { return n.reveal }

// Activatable reports whether the kind is one a user can activate. Whether
// an activation is accepted right now also depends on Bound.
func (n *Node) Activatable() bool {
	switch n.Kind {
	case layout.KindButton, layout.KindImg, layout.KindClickImg, layout.KindCard, layout.KindCardText:
		return true
	}
	return false
}

func (n *Node) appendChild(child *Node) {
	child.parent = n
	n.children = append(n.children, child)
}

func (n *Node) setControl(control *Node) {
	control.parent = n
	n.control = control
}
