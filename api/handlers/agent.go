package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jsamuel1/agi-diy/internal/model"
)

// defaultOutputLines is how many output lines GET /agents/:id/output
// returns without a lines parameter.
const defaultOutputLines = 200

// AgentService is the supervisor surface used by the HTTP API.
type AgentService interface {
	Launch(ctx context.Context, req model.LaunchRequest) (*model.AgentInfo, error)
	SendCommand(agentID string, command json.RawMessage) error
	List() []model.AgentInfo
	Output(agentID string, lines int) ([]byte, error)
}

// RunLister reads agent run history.
type RunLister interface {
	List(ctx context.Context, agentID string, limit int) ([]*model.AgentRun, error)
	GetByID(ctx context.Context, id string) (*model.AgentRun, error)
}

// AgentHandler handles HTTP requests for supervised agents.
type AgentHandler struct {
	agents AgentService
	runs   RunLister
}

// NewAgentHandler creates a new AgentHandler. runs may be nil when run
// history is disabled.
func NewAgentHandler(agents AgentService, runs RunLister) *AgentHandler {
	return &AgentHandler{
		agents: agents,
		runs:   runs,
	}
}

// LaunchAgentRequest represents the request body for launching an agent.
type LaunchAgentRequest struct {
	AgentID string            `json:"agentId" binding:"required"`
	Config  model.AgentConfig `json:"config"`
}

// CommandResponse represents the result of a command write.
type CommandResponse struct {
	AgentID string `json:"agentId"`
	Status  string `json:"status"`
}

// List handles GET /api/agents - lists tracked agents.
func (h *AgentHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.agents.List())
}

// Launch handles POST /api/agents - launches a supervised agent.
func (h *AgentHandler) Launch(c *gin.Context) {
	var req LaunchAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	info, err := h.agents.Launch(c.Request.Context(), model.LaunchRequest{AgentID: req.AgentID, Config: req.Config})
	if err != nil {
		sendModelError(c, err)
		return
	}

	c.JSON(http.StatusCreated, info)
}

// Command handles POST /api/agents/:id/command - writes the JSON body to
// the agent's stdin.
func (h *AgentHandler) Command(c *gin.Context) {
	agentID := c.Param("id")

	body, err := c.GetRawData()
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Failed to read request body: "+err.Error())
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Command must be valid JSON")
		return
	}

	if err := h.agents.SendCommand(agentID, body); err != nil {
		sendModelError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, CommandResponse{AgentID: agentID, Status: "sent"})
}

// Output handles GET /api/agents/:id/output - returns the tail of the
// agent's combined stdout and stderr.
func (h *AgentHandler) Output(c *gin.Context) {
	agentID := c.Param("id")

	lines := defaultOutputLines
	if raw := c.Query("lines"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "lines must be an integer")
			return
		}
		lines = n
	}

	out, err := h.agents.Output(agentID, lines)
	if err != nil {
		sendModelError(c, err)
		return
	}

	c.Data(http.StatusOK, "text/plain; charset=utf-8", out)
}

// Runs handles GET /api/runs - lists run history, newest first.
func (h *AgentHandler) Runs(c *gin.Context) {
	if h.runs == nil {
		sendError(c, http.StatusNotFound, "HISTORY_DISABLED", "Run history is not enabled")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := h.runs.List(c.Request.Context(), c.Query("agent"), limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list runs: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, runs)
}

// GetRun handles GET /api/runs/:id.
func (h *AgentHandler) GetRun(c *gin.Context) {
	if h.runs == nil {
		sendError(c, http.StatusNotFound, "HISTORY_DISABLED", "Run history is not enabled")
		return
	}

	run, err := h.runs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendModelError(c, err)
		return
	}

	c.JSON(http.StatusOK, run)
}

// RegisterRoutes registers the agent handler routes on a Gin router group.
func (h *AgentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	agents := rg.Group("/agents")
	{
		agents.GET("", h.List)
		agents.POST("", h.Launch)
		agents.POST("/:id/command", h.Command)
		agents.GET("/:id/output", h.Output)
	}

	runs := rg.Group("/runs")
	{
		runs.GET("", h.Runs)
		runs.GET("/:id", h.GetRun)
	}
}
