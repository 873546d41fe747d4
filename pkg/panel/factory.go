package panel

import (
	"strconv"
	"strings"

	apperrors "github.com/odvcencio/panel/pkg/errors"
	"github.com/odvcencio/panel/pkg/layout"
)

// Legacy prefixes for card controls whose identity is not given explicitly.
const (
	cardControlPrefix     = "text_"
	cardTextControlPrefix = "QA_text_"

	// legacyControlIndex is the position of the character in the card
	// identity that numbers its control ("card1..." yields "text_1").
	legacyControlIndex = 4
)

// Factory produces one rendered node per description. It holds no state.
type Factory struct{}

// Build constructs the node for d without attaching it anywhere. Card kinds
// also get their nested control. Unknown kinds fail with
// UNKNOWN_COMPONENT_KIND.
func (Factory) Build(d layout.Description) (*Node, error) {
	style := d.StyleTag()
	n := &Node{
		ID:      d.ID,
		Kind:    d.Kind,
		Class:   string(d.Kind) + " " + style,
		visible: true,
	}

	// Literal text only when the description does not nest further nodes.
	literal := ""
	if !d.Nested {
		literal = d.Content
	}

	switch d.Kind {
	case layout.KindContainer:
		n.Role = RoleContainer
	case layout.KindRow, layout.KindCol:
		n.Role = RoleGeneric
	case layout.KindCard, layout.KindCardText:
		control, err := buildCardControl(d)
		if err != nil {
			return nil, err
		}
		n.Class = "card box-shadow " + style
		n.visible = false
		n.bound = true
		if d.Kind == layout.KindCard {
			n.Role = RoleImage
			n.content = literal
			n.OptionChoice = true
		}
		n.setControl(control)
		control.reveal = n
	case layout.KindClickImg:
		n.Role = RoleImage
		n.content = literal
		n.bound = true
	case layout.KindImg:
		n.Role = RoleImage
		n.content = literal
		n.bound = true
	case layout.KindVideo:
		n.content = literal
		n.Media = MediaOptions{Autoplay: true, Loop: true, Muted: true}
	case layout.KindText, layout.KindTitle:
		n.Role = RoleText
		n.content = literal
	case layout.KindButton:
		n.content = literal
		n.bound = true
	case layout.KindInputText:
	case layout.KindInputNumber:
		if limit, err := strconv.Atoi(strings.TrimSpace(literal)); err == nil && limit > 0 {
			n.MaxLength = limit
		}
	default:
		return nil, apperrors.Newf(apperrors.ErrCodeUnknownKind, "unknown component kind %q", d.Kind).
			WithContext("id", d.ID)
	}
	return n, nil
}

func buildCardControl(d layout.Description) (*Node, error) {
	id := d.Control
	if id == "" {
		prefix := cardControlPrefix
		if d.Kind == layout.KindCardText {
			prefix = cardTextControlPrefix
		}
		runes := []rune(d.ID)
		if len(runes) <= legacyControlIndex {
			return nil, apperrors.Newf(apperrors.ErrCodeLayoutInvalid,
				"%s %q needs an explicit control id or an identity of at least %d characters",
				d.Kind, d.ID, legacyControlIndex+1).WithContext("id", d.ID)
		}
		id = prefix + string(runes[legacyControlIndex])
	}
	return &Node{
		ID:      id,
		Kind:    layout.KindButton,
		Role:    RoleText,
		Class:   "card-text button_try",
		visible: true,
		bound:   true,
	}, nil
}
