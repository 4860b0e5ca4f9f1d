package webrtc

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"voicelink-backend/internal/config"
	"voicelink-backend/pkg/response"
)

// Handler serves ICE server configuration to clients
type Handler struct {
	cfg config.WebRTCConfig
}

// NewHandler creates a new WebRTC config handler
func NewHandler(cfg config.WebRTCConfig) *Handler {
	return &Handler{cfg: cfg}
}

type iceServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// GetConfig returns the ICE configuration in the shape RTCPeerConnection
// accepts. The server only passes configuration through; it never touches
// media.
// GET /v1/webrtc/config
func (h *Handler) GetConfig(c *gin.Context) {
	servers := []iceServer{
		{URLs: []string{h.cfg.STUNServer}},
	}
	if h.cfg.TURNServer != "" {
		servers = append(servers, iceServer{
			URLs:       []string{h.cfg.TURNServer},
			Username:   h.cfg.TURNUsername,
			Credential: h.cfg.TURNPassword,
		})
	}

	response.Success(c, http.StatusOK, gin.H{
		"iceServers":           servers,
		"iceCandidatePoolSize": 10,
	})
}
