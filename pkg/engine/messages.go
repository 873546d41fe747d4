package engine

import (
	"encoding/json"
	"strings"

	apperrors "github.com/odvcencio/panel/pkg/errors"
)

// Command is an inbound display or request message. Which of the two it is
// depends on the subject it arrived on, not on its payload.
type Command struct {
	ComponentID string `json:"component_id"`
	SetContent  string `json:"set_content"`
}

// OutboundEvent reports one user interaction to the controller.
type OutboundEvent struct {
	ComponentID string `json:"component_id"`
	SetView     string `json:"set_view"`
}

// Message kinds used in logs, metrics and telemetry.
const (
	KindDisplay  = "display"
	KindRequest  = "request"
	KindActivate = "activate"
	KindInput    = "input"
	KindReload   = "reload"
	KindSnapshot = "snapshot"
)

// DecodeCommand parses an inbound payload. Controllers send single-quoted
// records, so every single quote is turned into a double quote first.
func DecodeCommand(payload []byte) (Command, error) {
	normalized := strings.ReplaceAll(string(payload), "'", `"`)

	var cmd Command
	if err := json.Unmarshal([]byte(normalized), &cmd); err != nil {
		return Command{}, apperrors.Wrap(err, apperrors.ErrCodeMalformedMessage, "decode inbound message").
			WithContext("payload", truncate(normalized, 256))
	}
	if cmd.ComponentID == "" {
		return Command{}, apperrors.New(apperrors.ErrCodeMalformedMessage, "inbound message has no component_id").
			WithContext("payload", truncate(normalized, 256))
	}
	return cmd, nil
}

// Encode serializes the event for the response subject.
func (e OutboundEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
