package message

import (
	"encoding/json"
	"time"

	"github.com/jsamuel1/agi-diy/internal/model"
	"github.com/jsamuel1/agi-diy/internal/schema"
)

// Outbound is a frame originated by the relay itself.
type Outbound struct {
	Type      Kind     `json:"type"`
	From      string   `json:"from,omitempty"`
	AgentID   string   `json:"agentId,omitempty"`
	PeerID    string   `json:"peerId,omitempty"`
	Data      any      `json:"data,omitempty"`
	Timestamp *float64 `json:"timestamp,omitempty"`
}

// Encode marshals the frame.
func (o Outbound) Encode() ([]byte, error) {
	return json.Marshal(o)
}

// UnixSeconds converts t to the fractional seconds used on the wire.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// NewPresence builds a presence frame for id carrying meta.
func NewPresence(id string, meta map[string]any, at time.Time) Outbound {
	if meta == nil {
		meta = map[string]any{}
	}
	ts := UnixSeconds(at)
	return Outbound{Type: KindPresence, From: id, Data: meta, Timestamp: &ts}
}

// Offline builds the departure announcement for id.
func Offline(id string, at time.Time) Outbound {
	return NewPresence(id, map[string]any{"status": "offline"}, at)
}

// VirtualOnline builds the presence announced for a supervised agent.
func VirtualOnline(agentID, profile string, at time.Time) Outbound {
	return NewPresence(model.VirtualPeerID(agentID), map[string]any{
		"status": "online",
		"type":   model.AgentKind,
		"agent":  profile,
	}, at)
}

// SchemasResponse answers get_schemas.
func SchemasResponse(doc schema.Document) Outbound {
	return Outbound{Type: KindSchemasResponse, Data: doc}
}

// CapabilitiesResponse answers capabilities.
func CapabilitiesResponse(c model.Capabilities) Outbound {
	return Outbound{Type: KindCapabilitiesResponse, Data: c}
}

// AgentLaunched acknowledges a successful launch.
func AgentLaunched(agentID string) Outbound {
	return Outbound{Type: KindAgentLaunched, AgentID: agentID, PeerID: model.VirtualPeerID(agentID)}
}

// AgentResponse reports the outcome of an agent command. A nil err yields
// {"status":"sent"}.
func AgentResponse(agentID string, err error) Outbound {
	data := map[string]any{"status": "sent"}
	if err != nil {
		data = map[string]any{"error": err.Error()}
	}
	return Outbound{Type: KindAgentResponse, AgentID: agentID, Data: data}
}

// ErrorReply is the structured error sent to the requesting connection.
func ErrorReply(agentID string, err error) Outbound {
	data := map[string]any{
		"message": err.Error(),
		"code":    model.ErrorCode(err),
	}
	if agentID != "" {
		data["agentId"] = agentID
	}
	return Outbound{Type: KindError, Data: data}
}
