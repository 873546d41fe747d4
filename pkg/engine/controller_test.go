package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/odvcencio/panel/pkg/errors"
)

type recorder struct {
	events        []OutboundEvent
	gateAtPublish []bool
}

func TestBindValue(t *testing.T) {
	p := buildPanel(t, quizForest())
	c := NewController(p, "start_button", nil)
	input := node(t, p, "input_1")
	input.SetValue("42")

	ok := node(t, p, "ok_button")
	assert.True(t, c.BindValue(ok, input))
	assert.Equal(t, "42", ok.Value())

	start := node(t, p, "start_button")
	assert.False(t, c.BindValue(start, input))
	assert.Empty(t, start.Value())

	img := node(t, p, "img_1")
	assert.False(t, c.BindValue(img, input))
	assert.False(t, c.BindValue(ok, nil))
}

func TestOnActivateCopiesBoundInput(t *testing.T) {
	p := buildPanel(t, quizForest())
	rec := &recorder{}
	c := NewController(p, "start_button", func(ev OutboundEvent) error {
		rec.events = append(rec.events, ev)
		return nil
	})
	require.NoError(t, c.OnInput("input_1", "42"))

	ev, err := c.OnActivate("ok_button", "input_1")
	require.NoError(t, err)
	assert.Equal(t, OutboundEvent{ComponentID: "ok_button", SetView: "42"}, ev)
	assert.Equal(t, []OutboundEvent{ev}, rec.events)
	assert.Equal(t, "42", node(t, p, "ok_button").Value())
}

func TestOnActivateCopiesEmptyInput(t *testing.T) {
	p := buildPanel(t, quizForest())
	c := NewController(p, "start_button", nil)
	node(t, p, "ok_button").SetValue("stale")

	ev, err := c.OnActivate("ok_button", "input_1")
	require.NoError(t, err)
	assert.Equal(t, "", ev.SetView)
}

func TestOnActivateStartControlKeepsValue(t *testing.T) {
	p := buildPanel(t, quizForest())
	c := NewController(p, "start_button", nil)
	require.NoError(t, c.OnInput("input_1", "7"))

	ev, err := c.OnActivate("start_button", "input_1")
	require.NoError(t, err)
	assert.Equal(t, OutboundEvent{ComponentID: "start_button", SetView: ""}, ev)
}

func TestOnActivateFiresThenLocks(t *testing.T) {
	p := buildPanel(t, quizForest())
	rec := &recorder{}
	c := NewController(p, "", func(ev OutboundEvent) error {
		rec.events = append(rec.events, ev)
		rec.gateAtPublish = append(rec.gateAtPublish, p.Gate.IsDisabled())
		return nil
	})

	require.NoError(t, NewReconciler(p).ApplyRequest(Command{ComponentID: "card1_a", SetContent: "http://x/q.png"}))
	require.False(t, p.Gate.IsDisabled())

	_, err := c.OnActivate("card1_a", "")
	require.NoError(t, err)
	assert.True(t, p.Gate.IsDisabled())

	// A disabled gate does not stop publication.
	_, err = c.OnActivate("card1_a", "")
	require.NoError(t, err)

	require.Len(t, rec.events, 2)
	assert.Equal(t, []bool{false, true}, rec.gateAtPublish)
	assert.Equal(t, "http://x/q.png", rec.events[0].SetView)
}

func TestOnActivateRefusesInertNode(t *testing.T) {
	p := buildPanel(t, quizForest())
	rec := &recorder{}
	c := NewController(p, "", func(ev OutboundEvent) error {
		rec.events = append(rec.events, ev)
		return nil
	})
	r := NewReconciler(p)

	require.NoError(t, r.ApplyDisplay(Command{ComponentID: "card1_a", SetContent: "a.png"}))
	_, err := c.OnActivate("card1_a", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInertComponent))
	assert.Empty(t, rec.events)

	require.NoError(t, r.ApplyRequest(Command{ComponentID: "card1_a", SetContent: "b.png"}))
	ev, err := c.OnActivate("card1_a", "")
	require.NoError(t, err)
	assert.Equal(t, []OutboundEvent{{ComponentID: "card1_a", SetView: "b.png"}}, rec.events)
	assert.Equal(t, rec.events[0], ev)
}

func TestOnActivateRefusesStructuralNodes(t *testing.T) {
	p := buildPanel(t, quizForest())
	called := false
	c := NewController(p, "", func(OutboundEvent) error {
		called = true
		return nil
	})
	p.Gate.Enable()

	for _, id := range []string{"container_main", "row_1", "title_1", "input_1"} {
		_, err := c.OnActivate(id, "")
		require.Error(t, err, id)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput), id)
	}
	assert.False(t, called)
	assert.False(t, p.Gate.IsDisabled(), "refused activations leave the gate alone")
}

func TestOnActivateUnresolved(t *testing.T) {
	p := buildPanel(t, quizForest())
	called := false
	c := NewController(p, "", func(OutboundEvent) error {
		called = true
		return nil
	})
	p.Gate.Enable()

	_, err := c.OnActivate("ghost", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnresolvedIdentity))
	assert.False(t, called)
	assert.False(t, p.Gate.IsDisabled())
}

func TestOnActivateTransportFailure(t *testing.T) {
	p := buildPanel(t, quizForest())
	c := NewController(p, "", func(OutboundEvent) error {
		return errors.New("connection reset")
	})
	p.Gate.Enable()

	ev, err := c.OnActivate("img_1", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeTransport))
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, "img_1", ev.ComponentID)
	assert.True(t, p.Gate.IsDisabled())
}

func TestOnInput(t *testing.T) {
	p := buildPanel(t, quizForest())
	c := NewController(p, "", nil)

	require.NoError(t, c.OnInput("input_1", "12345"))
	assert.Equal(t, "123", node(t, p, "input_1").Value(), "input_number is capped by its max length")

	err := c.OnInput("ok_button", "x")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))

	err = c.OnInput("ghost", "x")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnresolvedIdentity))
}
