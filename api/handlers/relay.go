package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsamuel1/agi-diy/internal/message"
	"github.com/jsamuel1/agi-diy/internal/model"
	"github.com/jsamuel1/agi-diy/internal/registry"
	"github.com/jsamuel1/agi-diy/internal/schema"
)

// CapabilitySource assembles the relay's capability announcement.
type CapabilitySource interface {
	Capabilities(ctx context.Context) model.Capabilities
}

// RelayHandler exposes the relay's peer directory and metadata over HTTP.
type RelayHandler struct {
	registry     *registry.Registry
	capabilities CapabilitySource
}

// NewRelayHandler creates a new RelayHandler.
func NewRelayHandler(reg *registry.Registry, capabilities CapabilitySource) *RelayHandler {
	return &RelayHandler{
		registry:     reg,
		capabilities: capabilities,
	}
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Status string   `json:"status"`
	Peers  []string `json:"peers"`
	Count  int      `json:"count"`
}

// PeerResponse represents a peer in API responses.
type PeerResponse struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata"`
	LastSeen float64        `json:"lastSeen"`
}

// Status handles GET /api/status.
func (h *RelayHandler) Status(c *gin.Context) {
	ids := h.registry.IDs()
	c.JSON(http.StatusOK, StatusResponse{Status: "ok", Peers: ids, Count: len(ids)})
}

// Peers handles GET /api/peers - lists connected peers in join order.
func (h *RelayHandler) Peers(c *gin.Context) {
	snapshot := h.registry.Snapshot()
	peers := make([]PeerResponse, 0, len(snapshot))
	for _, p := range snapshot {
		peers = append(peers, PeerResponse{
			ID:       p.ID,
			Metadata: p.Metadata,
			LastSeen: message.UnixSeconds(p.LastSeen),
		})
	}
	c.JSON(http.StatusOK, peers)
}

// Schemas handles GET /api/schemas.
func (h *RelayHandler) Schemas(c *gin.Context) {
	c.JSON(http.StatusOK, schema.Export())
}

// Capabilities handles GET /api/capabilities.
func (h *RelayHandler) Capabilities(c *gin.Context) {
	c.JSON(http.StatusOK, h.capabilities.Capabilities(c.Request.Context()))
}

// RegisterRoutes registers the relay handler routes on a Gin router group.
func (h *RelayHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/status", h.Status)
	rg.GET("/peers", h.Peers)
	rg.GET("/schemas", h.Schemas)
	rg.GET("/capabilities", h.Capabilities)
}
