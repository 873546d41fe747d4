package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odvcencio/panel/pkg/layout"
	"github.com/odvcencio/panel/pkg/panel"
)

func leaf(id string, kind layout.Kind, content string) layout.Description {
	return layout.Description{ID: id, Kind: kind, Content: content}
}

func nest(id string, kind layout.Kind, children ...layout.Description) layout.Description {
	return layout.Description{ID: id, Kind: kind, Nested: true, Children: children}
}

// quizForest has two views: a prompt view with an image, a numeric input and
// a submit button, and a quiz view with two cards and a nested text block.
func quizForest() []layout.Description {
	return []layout.Description{
		nest("container_main", layout.KindContainer,
			nest("row_1", layout.KindRow,
				nest("col_1", layout.KindCol,
					leaf("title_1", layout.KindTitle, "Hello"),
					leaf("img_1", layout.KindImg, ""),
				),
				nest("col_2", layout.KindCol,
					leaf("input_1", layout.KindInputNumber, "3"),
					leaf("ok_button", layout.KindButton, "OK"),
					leaf("start_button", layout.KindButton, "Start"),
				),
			),
		),
		nest("container_quiz", layout.KindContainer,
			leaf("card1_a", layout.KindCard, "http://x/a.png"),
			leaf("card2_b", layout.KindCardText, ""),
			nest("text_body", layout.KindText,
				leaf("video_1", layout.KindVideo, "http://x/v.mp4"),
			),
		),
	}
}

func buildPanel(t *testing.T, roots []layout.Description) *panel.Panel {
	t.Helper()
	p, err := panel.Build(roots)
	require.NoError(t, err)
	return p
}

func node(t *testing.T, p *panel.Panel, id string) *panel.Node {
	t.Helper()
	n, err := p.Lookup(id)
	require.NoError(t, err)
	return n
}

func findState(states []panel.NodeState, id string) (panel.NodeState, bool) {
	for _, st := range states {
		if st.ID == id {
			return st, true
		}
		if st.Control != nil && st.Control.ID == id {
			return *st.Control, true
		}
		if found, ok := findState(st.Children, id); ok {
			return found, true
		}
	}
	return panel.NodeState{}, false
}
