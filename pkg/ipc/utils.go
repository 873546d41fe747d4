package ipc

import (
	"encoding/json"
	stdliberrors "errors"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/odvcencio/panel/pkg/errors"
)

// respondJSON sends a JSON response with appropriate headers.
func respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

// respondError sends a structured JSON error response.
func respondError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	response := struct {
		Error       string   `json:"error"`
		Status      int      `json:"status"`
		Code        string   `json:"code,omitempty"`
		Message     string   `json:"message"`
		Details     string   `json:"details,omitempty"`
		Remediation []string `json:"remediation,omitempty"`
		Retryable   bool     `json:"retryable,omitempty"`
		Timestamp   string   `json:"timestamp"`
	}{
		Status:    status,
		Message:   http.StatusText(status),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	var panelErr *apperrors.Error
	if stdliberrors.As(err, &panelErr) {
		response.Code = string(panelErr.Code)
		if panelErr.UserMessage != "" {
			response.Message = panelErr.UserMessage
		} else if panelErr.Message != "" {
			response.Message = panelErr.Message
		}
		if len(panelErr.Remediation) > 0 {
			response.Remediation = append([]string{}, panelErr.Remediation...)
		}
		response.Retryable = panelErr.Retryable
		response.Details = panelErr.Error()
	} else if err != nil {
		response.Message = err.Error()
	}

	if response.Details == "" && err != nil {
		response.Details = fmt.Sprintf("%v", err)
	}

	if len(response.Remediation) == 0 {
		response.Remediation = defaultRemediation(response.Code, status)
	}

	response.Error = response.Message
	_ = json.NewEncoder(w).Encode(response)
}

// statusForError maps engine error codes onto HTTP statuses.
func statusForError(err error) int {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeMalformedMessage, apperrors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case apperrors.ErrCodeUnresolvedIdentity:
		return http.StatusNotFound
	case apperrors.ErrCodeInertComponent:
		return http.StatusConflict
	case apperrors.ErrCodeEngineClosed:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// defaultRemediation provides helpful remediation steps for common errors.
func defaultRemediation(code string, status int) []string {
	switch apperrors.ErrorCode(code) {
	case apperrors.ErrCodeMalformedMessage:
		return []string{
			`Send a record shaped like {'component_id': '<id>', 'set_content': '<content>'}.`,
		}
	case apperrors.ErrCodeUnresolvedIdentity:
		return []string{
			"Check the component id against the loaded layout (GET /api/panel).",
		}
	case apperrors.ErrCodeTransport:
		return []string{
			"The event was not delivered; check the bus connection and retry.",
		}
	}

	switch status {
	case http.StatusForbidden:
		return []string{"Add this origin to server.allowed_origins."}
	case http.StatusTooManyRequests:
		return []string{"Wait a moment for the activation limiter to refill."}
	case http.StatusServiceUnavailable:
		return []string{"The panel is shutting down or reloading; retry shortly."}
	default:
		return nil
	}
}
