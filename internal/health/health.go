package health

import (
	"net/http"

	"github.com/segmentio/encoding/json"
)

// Status is reported by health endpoint.
type Status struct {
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	ClientID  string `json:"client_id,omitempty"`
	Entities  int    `json:"entities"`
	Pending   int    `json:"pending_publishes"`
}

// Config of health check handler.
type Config struct {
	// RequireConnected answers 503 while client is not connected.
	RequireConnected bool
}

// Handler handles health endpoint.
type Handler struct {
	status func() Status
	config Config
}

// NewHandler creates new Handler, status is called on every request.
func NewHandler(status func() Status, c Config) *Handler {
	return &Handler{
		status: status,
		config: c,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	st := h.status()
	data, err := json.Marshal(st)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if h.config.RequireConnected && !st.Connected {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_, _ = w.Write(data)
}
