package layout

import "strings"

// Kind names one of the fixed component kinds a layout may use.
type Kind string

const (
	KindContainer   Kind = "container"
	KindCard        Kind = "card"
	KindCardText    Kind = "card_text"
	KindClickImg    Kind = "click_img"
	KindImg         Kind = "img"
	KindVideo       Kind = "video"
	KindText        Kind = "text"
	KindTitle       Kind = "title"
	KindInputText   Kind = "input_text"
	KindInputNumber Kind = "input_number"
	KindButton      Kind = "button"
	KindRow         Kind = "row"
	KindCol         Kind = "col"
)

var knownKinds = map[Kind]struct{}{
	KindContainer:   {},
	KindCard:        {},
	KindCardText:    {},
	KindClickImg:    {},
	KindImg:         {},
	KindVideo:       {},
	KindText:        {},
	KindTitle:       {},
	KindInputText:   {},
	KindInputNumber: {},
	KindButton:      {},
	KindRow:         {},
	KindCol:         {},
}

// Valid reports whether k is one of the enumerated kinds.
func (k Kind) Valid() bool {
	_, ok := knownKinds[k]
	return ok
}

// ParseKind normalizes raw and reports whether it names a known kind.
func ParseKind(raw string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	return k, k.Valid()
}

func (k Kind) String() string {
	return string(k)
}
