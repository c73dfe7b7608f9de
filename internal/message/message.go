// Package message decodes relay wire frames into typed messages and builds
// the frames the relay sends back.
//
// Every frame is a JSON object with a "type" field. Kinds the relay routes on
// decode into their own variant; any other kind decodes into Passthrough,
// which keeps the raw field mapping so the frame can still be relayed.
package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jsamuel1/agi-diy/internal/model"
	"github.com/jsamuel1/agi-diy/internal/schema"
)

// Kind selects how a frame is interpreted.
type Kind string

const (
	// Routed by the relay
	KindPresence     Kind = "presence"
	KindHeartbeat    Kind = "heartbeat"
	KindDirect       Kind = "direct"
	KindLaunchAgent  Kind = "launch_agent"
	KindAgentCommand Kind = "agent_command"
	KindGetSchemas   Kind = "get_schemas"
	KindCapabilities Kind = "capabilities"

	// Fanned out to every other peer
	KindBroadcast Kind = "broadcast"
	KindStream    Kind = "stream"
	KindAck       Kind = "ack"
	KindTurnEnd   Kind = "turn_end"
	KindError     Kind = "error"

	// Replies sent only to the requester
	KindSchemasResponse      Kind = "schemas_response"
	KindCapabilitiesResponse Kind = "capabilities_response"
	KindAgentLaunched        Kind = "agent_launched"
	KindAgentResponse        Kind = "agent_response"
)

var aliases = map[string]Kind{
	"launch-agent":  KindLaunchAgent,
	"agent-command": KindAgentCommand,
}

var (
	// ErrNotObject is returned when a frame is not a JSON object.
	ErrNotObject = errors.New("frame is not a JSON object")

	// ErrMissingType is returned when a frame has no "type".
	ErrMissingType = errors.New("frame has no type")

	// ErrMissingFrom is returned when a presence frame has no "from".
	ErrMissingFrom = errors.New("presence has no from")
)

// Message is one decoded inbound frame.
type Message interface {
	Kind() Kind
	// Raw returns the frame exactly as received.
	Raw() []byte
	// Fields returns the frame's top-level fields, undecoded.
	Fields() map[string]json.RawMessage
}

type frame struct {
	kind   Kind
	raw    []byte
	fields map[string]json.RawMessage
}

func (f frame) Kind() Kind                         { return f.kind }
func (f frame) Raw() []byte                        { return f.raw }
func (f frame) Fields() map[string]json.RawMessage { return f.fields }

// Presence announces a peer and its metadata.
type Presence struct {
	frame
	From      string
	Data      map[string]any
	Timestamp *float64
}

// Heartbeat refreshes the liveness of the sending connection's peer.
type Heartbeat struct {
	frame
	From string
}

// Direct is delivered to a single peer.
type Direct struct {
	frame
	From string
	To   string
}

// LaunchAgent asks the supervisor to start an agent process.
type LaunchAgent struct {
	frame
	AgentID string
	Config  model.AgentConfig
}

// AgentCommand asks the supervisor to write a command to an agent's stdin.
type AgentCommand struct {
	frame
	AgentID string
	Command json.RawMessage
}

// GetSchemas requests the schema document.
type GetSchemas struct {
	frame
}

// CapabilitiesRequest requests the relay's capability announcement.
type CapabilitiesRequest struct {
	frame
}

// Event is a fanned-out frame of a kind the relay knows about: the core
// relay kinds and the kinds declared in the schema table.
type Event struct {
	frame
	From string
	Data map[string]any
}

// Passthrough is a fanned-out frame of a kind the relay does not know.
type Passthrough struct {
	frame
}

// Decode parses a single wire frame.
func Decode(raw []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if fields == nil {
		return nil, ErrNotObject
	}

	var kind string
	if t, ok := fields["type"]; ok {
		if err := json.Unmarshal(t, &kind); err != nil {
			return nil, fmt.Errorf("decode type: %w", err)
		}
	}
	if kind == "" {
		return nil, ErrMissingType
	}

	f := frame{kind: normalize(kind), raw: raw, fields: fields}

	switch f.kind {
	case KindPresence:
		m := &Presence{frame: f, From: stringField(fields, "from"), Data: objectField(fields, "data")}
		if m.From == "" {
			return nil, ErrMissingFrom
		}
		if ts, ok := fields["timestamp"]; ok {
			var v float64
			if err := json.Unmarshal(ts, &v); err == nil {
				m.Timestamp = &v
			}
		}
		return m, nil

	case KindHeartbeat:
		return &Heartbeat{frame: f, From: stringField(fields, "from")}, nil

	case KindDirect:
		return &Direct{frame: f, From: stringField(fields, "from"), To: stringField(fields, "to")}, nil

	case KindLaunchAgent:
		m := &LaunchAgent{frame: f, AgentID: stringField(fields, "agentId")}
		if c, ok := fields["config"]; ok && !isNull(c) {
			if err := json.Unmarshal(c, &m.Config); err != nil {
				return nil, fmt.Errorf("decode launch config: %w", err)
			}
		}
		return m, nil

	case KindAgentCommand:
		m := &AgentCommand{frame: f, AgentID: stringField(fields, "agentId"), Command: fields["command"]}
		if len(m.Command) == 0 || isNull(m.Command) {
			m.Command = json.RawMessage(`{}`)
		}
		return m, nil

	case KindGetSchemas:
		return &GetSchemas{frame: f}, nil

	case KindCapabilities:
		return &CapabilitiesRequest{frame: f}, nil
	}

	if IsRelayKind(f.kind) || schema.Known(string(f.kind)) {
		return &Event{frame: f, From: stringField(fields, "from"), Data: objectField(fields, "data")}, nil
	}
	return &Passthrough{frame: f}, nil
}

// IsRelayKind reports whether kind is one of the core fan-out kinds of the
// relay protocol, as opposed to an application event kind.
func IsRelayKind(kind Kind) bool {
	switch kind {
	case KindBroadcast, KindStream, KindAck, KindTurnEnd, KindError:
		return true
	}
	return false
}

// ValidationPayload returns the mapping checked against the kind's schema.
// The presence schema describes the envelope, so presence is validated on
// every field but "type"; other kinds are validated on their "data" object.
func ValidationPayload(m Message) map[string]any {
	if m.Kind() == KindPresence {
		payload := make(map[string]any, len(m.Fields()))
		for k, v := range m.Fields() {
			if k == "type" {
				continue
			}
			var decoded any
			if err := json.Unmarshal(v, &decoded); err == nil {
				payload[k] = decoded
			}
		}
		return payload
	}
	if data := objectField(m.Fields(), "data"); data != nil {
		return data
	}
	return map[string]any{}
}

func normalize(kind string) Kind {
	if k, ok := aliases[kind]; ok {
		return k
	}
	return Kind(kind)
}

func stringField(fields map[string]json.RawMessage, name string) string {
	raw, ok := fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func objectField(fields map[string]json.RawMessage, name string) map[string]any {
	raw, ok := fields[name]
	if !ok {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
