package engine

import (
	apperrors "github.com/odvcencio/panel/pkg/errors"
	"github.com/odvcencio/panel/pkg/layout"
	"github.com/odvcencio/panel/pkg/panel"
)

// EmitFunc delivers an outbound event.
type EmitFunc func(OutboundEvent) error

// Controller turns user interactions into outbound events.
type Controller struct {
	panel        *panel.Panel
	startControl string
	emit         EmitFunc
}

// NewController returns a controller bound to p. startControl names the
// control whose activation never copies the bound input's value.
func NewController(p *panel.Panel, startControl string, emit EmitFunc) *Controller {
	return &Controller{panel: p, startControl: startControl, emit: emit}
}

// BindValue copies the bound input's current value onto the activated
// button. It reports whether a copy happened. The copy is skipped for the
// start control, for non-button nodes and when no input is bound.
func (c *Controller) BindValue(activated, input *panel.Node) bool {
	if activated == nil || input == nil {
		return false
	}
	if activated.Kind != layout.KindButton || activated.ID == c.startControl {
		return false
	}
	activated.SetValue(input.Value())
	return true
}

// OnActivate reports the activation of componentID. The event is published
// whatever the gate says; the gate is disabled afterwards so later
// interactions are marked as blocked. Nodes a user cannot activate, and
// nodes left inert by a display command, publish nothing. boundInput may be
// empty.
func (c *Controller) OnActivate(componentID, boundInput string) (OutboundEvent, error) {
	n, err := c.panel.Lookup(componentID)
	if err != nil {
		return OutboundEvent{}, err
	}
	if !n.Activatable() {
		return OutboundEvent{}, apperrors.Newf(apperrors.ErrCodeInvalidInput, "%s %q cannot be activated", n.Kind, n.ID).
			WithContext("component_id", n.ID)
	}
	if !n.Bound() {
		return OutboundEvent{}, apperrors.Newf(apperrors.ErrCodeInertComponent, "%q has no activation handling attached", n.ID).
			WithContext("component_id", n.ID).
			WithRemediation("Wait for a request command that re-enables this component.")
	}

	if boundInput != "" {
		if input, ok := c.panel.Index.Get(boundInput); ok {
			c.BindValue(n, input)
		}
	}

	event := OutboundEvent{ComponentID: n.ID, SetView: n.Value()}

	var emitErr error
	if c.emit != nil {
		emitErr = c.emit(event)
	}
	c.panel.Gate.Disable()

	if emitErr != nil {
		return event, apperrors.Wrap(emitErr, apperrors.ErrCodeTransport, "publish outbound event").
			WithContext("component_id", n.ID).
			WithRetryable(true)
	}
	return event, nil
}

// OnInput stores text typed into an input node.
func (c *Controller) OnInput(componentID, value string) error {
	n, err := c.panel.Lookup(componentID)
	if err != nil {
		return err
	}
	switch n.Kind {
	case layout.KindInputText, layout.KindInputNumber:
	default:
		return apperrors.Newf(apperrors.ErrCodeInvalidInput, "%s %q does not accept text entry", n.Kind, n.ID).
			WithContext("component_id", n.ID)
	}
	n.SetValue(value)
	return nil
}
