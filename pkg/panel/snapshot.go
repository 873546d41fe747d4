package panel

// NodeState is a serializable copy of one rendered node.
type NodeState struct {
	ID           string        `json:"id"`
	Kind         string        `json:"kind"`
	Class        string        `json:"class"`
	Content      string        `json:"content,omitempty"`
	Value        string        `json:"value,omitempty"`
	Visible      bool          `json:"visible"`
	Bound        bool          `json:"bound"`
	OptionChoice bool          `json:"optionChoice,omitempty"`
	Disabled     bool          `json:"disabled,omitempty"`
	MaxLength    int           `json:"maxLength,omitempty"`
	Media        *MediaOptions `json:"media,omitempty"`
	Control      *NodeState    `json:"control,omitempty"`
	Children     []NodeState   `json:"children,omitempty"`
}

// ViewState reports one view's visibility.
type ViewState struct {
	ID      string `json:"id"`
	Visible bool   `json:"visible"`
}

// Snapshot is a point-in-time copy of the whole panel.
type Snapshot struct {
	InteractionEnabled bool        `json:"interactionEnabled"`
	Views              []ViewState `json:"views"`
	Roots              []NodeState `json:"roots"`
}

// Snapshot copies the panel's state. Option choices carry the gate's
// disabled marker.
func (p *Panel) Snapshot() Snapshot {
	disabled := p.Gate.IsDisabled()
	snap := Snapshot{
		InteractionEnabled: !disabled,
		Views:              make([]ViewState, 0, len(p.roots)),
		Roots:              make([]NodeState, 0, len(p.roots)),
	}
	for _, v := range p.Views.Views() {
		snap.Views = append(snap.Views, ViewState{ID: v.ID, Visible: v.Visible()})
	}
	for _, root := range p.roots {
		snap.Roots = append(snap.Roots, stateOf(root, disabled))
	}
	return snap
}

func stateOf(n *Node, disabled bool) NodeState {
	st := NodeState{
		ID:           n.ID,
		Kind:         string(n.Kind),
		Class:        n.Class,
		Content:      n.content,
		Value:        n.value,
		Visible:      n.visible,
		Bound:        n.bound,
		OptionChoice: n.OptionChoice,
		Disabled:     n.OptionChoice && disabled,
		MaxLength:    n.MaxLength,
	}
	if n.Media != (MediaOptions{}) {
		media := n.Media
		st.Media = &media
	}
	if n.control != nil {
		control := stateOf(n.control, disabled)
		st.Control = &control
	}
	if len(n.children) > 0 {
		st.Children = make([]NodeState, 0, len(n.children))
		for _, child := range n.children {
			st.Children = append(st.Children, stateOf(child, disabled))
		}
	}
	return st
}
