package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"sentilytics/internal/alerts"
)

// HTMX response helpers

// setHTMXTriggerWithData sets a client-side event with JSON data
func setHTMXTriggerWithData(w http.ResponseWriter, event string, data interface{}) error {
	payload := map[string]interface{}{
		event: data,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}
	w.Header().Set("HX-Trigger", string(jsonData))
	return nil
}

// setHTMXRefresh triggers a full page refresh
func setHTMXRefresh(w http.ResponseWriter) {
	w.Header().Set("HX-Refresh", "true")
}

type toast struct {
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
	Level   string `json:"level"` // success, info or error
}

// showToasts triggers a showToast event carrying every alert in order.
func showToasts(w http.ResponseWriter, raised []alerts.Alert) error {
	toasts := make([]toast, len(raised))
	for i, a := range raised {
		toasts[i] = toast{ID: a.ID, Message: a.Message, Level: string(a.Kind)}
	}
	return setHTMXTriggerWithData(w, "showToast", toasts)
}

// showToast triggers a single toast that is not backed by a session alert,
// such as a failed sign-in.
func showToast(w http.ResponseWriter, message string, kind alerts.Kind) error {
	return setHTMXTriggerWithData(w, "showToast", []toast{{Message: message, Level: string(kind)}})
}
