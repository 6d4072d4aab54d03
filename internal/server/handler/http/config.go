package http

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// clientConfig is the public web configuration of the identity gateway.
// Secrets such as the Google client secret are never included.
type clientConfig struct {
	APIKey            string `json:"apiKey"`
	AuthDomain        string `json:"authDomain"`
	ProjectID         string `json:"projectId"`
	StorageBucket     string `json:"storageBucket"`
	MessagingSenderID string `json:"messagingSenderId"`
	AppID             string `json:"appId"`
}

// ClientConfig handles GET /api/client-config.
func (h *Handler) ClientConfig(w http.ResponseWriter, r *http.Request) {
	id := h.Identity
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(clientConfig{
		APIKey:            id.APIKey,
		AuthDomain:        id.AuthDomain,
		ProjectID:         id.ProjectID,
		StorageBucket:     id.StorageBucket,
		MessagingSenderID: id.MessagingSenderID,
		AppID:             id.AppID,
	})
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if h.HealthCheck != nil {
		if err := h.HealthCheck(r.Context()); err != nil {
			h.log().Warn("health check failed", zap.Error(err))
			status, code = "unavailable", http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
