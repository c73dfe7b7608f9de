package message

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuel1/agi-diy/internal/model"
	"github.com/jsamuel1/agi-diy/internal/schema"
)

func TestDecodeVariants(t *testing.T) {
	tests := []struct {
		raw  string
		kind Kind
		want any
	}{
		{`{"type":"presence","from":"A","data":{"status":"online"}}`, KindPresence, &Presence{}},
		{`{"type":"heartbeat","from":"A"}`, KindHeartbeat, &Heartbeat{}},
		{`{"type":"direct","from":"A","to":"B","data":{}}`, KindDirect, &Direct{}},
		{`{"type":"launch_agent","agentId":"x"}`, KindLaunchAgent, &LaunchAgent{}},
		{`{"type":"launch-agent","agentId":"x"}`, KindLaunchAgent, &LaunchAgent{}},
		{`{"type":"agent_command","agentId":"x","command":{"q":1}}`, KindAgentCommand, &AgentCommand{}},
		{`{"type":"agent-command","agentId":"x"}`, KindAgentCommand, &AgentCommand{}},
		{`{"type":"get_schemas"}`, KindGetSchemas, &GetSchemas{}},
		{`{"type":"capabilities"}`, KindCapabilities, &CapabilitiesRequest{}},
		{`{"type":"stream","from":"A","data":{"chunk":"hi"}}`, KindStream, &Event{}},
		{`{"type":"agent-started","from":"A","data":{}}`, Kind("agent-started"), &Event{}},
		{`{"type":"hologram","from":"A","extra":[1,2]}`, Kind("hologram"), &Passthrough{}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			m, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, m.Kind())
			assert.IsType(t, tt.want, m)
			assert.Equal(t, tt.raw, string(m.Raw()))
		})
	}
}

func TestDecodeFields(t *testing.T) {
	m, err := Decode([]byte(`{"type":"presence","from":"A","data":{"status":"online","role":"coder"},"timestamp":12.5}`))
	require.NoError(t, err)
	p := m.(*Presence)
	assert.Equal(t, "A", p.From)
	assert.Equal(t, map[string]any{"status": "online", "role": "coder"}, p.Data)
	require.NotNil(t, p.Timestamp)
	assert.Equal(t, 12.5, *p.Timestamp)

	m, err = Decode([]byte(`{"type":"launch_agent","agentId":"x","config":{"workingPath":"/tmp","agent":"reviewer","autoStart":true}}`))
	require.NoError(t, err)
	l := m.(*LaunchAgent)
	assert.Equal(t, "x", l.AgentID)
	assert.Equal(t, model.AgentConfig{WorkingPath: "/tmp", Agent: "reviewer", AutoStart: true}, l.Config)

	m, err = Decode([]byte(`{"type":"agent_command","agentId":"x"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(m.(*AgentCommand).Command))

	m, err = Decode([]byte(`{"type":"hologram","extra":[1,2]}`))
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2]`, string(m.Fields()["extra"]))
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"not object", `[1,2,3]`, nil},
		{"null", `null`, ErrNotObject},
		{"garbage", `{"type":`, nil},
		{"no type", `{"from":"A"}`, ErrMissingType},
		{"empty type", `{"type":""}`, ErrMissingType},
		{"presence without from", `{"type":"presence","data":{}}`, ErrMissingFrom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode([]byte(tt.raw))
			assert.Nil(t, m)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestValidationPayload(t *testing.T) {
	m, err := Decode([]byte(`{"type":"presence","from":"A","data":{"status":"online"},"timestamp":1}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"from":      "A",
		"data":      map[string]any{"status": "online"},
		"timestamp": float64(1),
	}, ValidationPayload(m))

	m, err = Decode([]byte(`{"type":"agent-stopped","from":"A","data":{"id":"a1","reason":"done"}}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "a1", "reason": "done"}, ValidationPayload(m))

	m, err = Decode([]byte(`{"type":"broadcast","from":"A","data":"text"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, ValidationPayload(m))
}

func TestOutboundFrames(t *testing.T) {
	at := time.Unix(1700000000, 500000000)

	tests := []struct {
		name string
		out  Outbound
		want string
	}{
		{
			name: "offline",
			out:  Offline("A", at),
			want: `{"type":"presence","from":"A","data":{"status":"offline"},"timestamp":1700000000.5}`,
		},
		{
			name: "presence with nil metadata",
			out:  NewPresence("A", nil, at),
			want: `{"type":"presence","from":"A","data":{},"timestamp":1700000000.5}`,
		},
		{
			name: "virtual online",
			out:  VirtualOnline("x", "reviewer", at),
			want: `{"type":"presence","from":"kiro-x","data":{"status":"online","type":"kiro-cli","agent":"reviewer"},"timestamp":1700000000.5}`,
		},
		{
			name: "agent launched",
			out:  AgentLaunched("x"),
			want: `{"type":"agent_launched","agentId":"x","peerId":"kiro-x"}`,
		},
		{
			name: "agent response sent",
			out:  AgentResponse("x", nil),
			want: `{"type":"agent_response","agentId":"x","data":{"status":"sent"}}`,
		},
		{
			name: "agent response error",
			out:  AgentResponse("x", model.ErrAgentNotFound),
			want: `{"type":"agent_response","agentId":"x","data":{"error":"agent not found"}}`,
		},
		{
			name: "error reply",
			out:  ErrorReply("x", fmt.Errorf("agent x: %w", model.ErrAgentExists)),
			want: `{"type":"error","data":{"message":"agent x: agent already exists","code":"AGENT_EXISTS","agentId":"x"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := tt.out.Encode()
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))
		})
	}
}

func TestSchemasResponseCarriesDocument(t *testing.T) {
	raw, err := SchemasResponse(schema.Export()).Encode()
	require.NoError(t, err)

	var decoded struct {
		Type Kind `json:"type"`
		Data struct {
			Definitions map[string]json.RawMessage `json:"definitions"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, KindSchemasResponse, decoded.Type)
	assert.Contains(t, decoded.Data.Definitions, "presence")
}
