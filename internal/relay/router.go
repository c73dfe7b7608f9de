package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jsamuel1/agi-diy/internal/message"
	"github.com/jsamuel1/agi-diy/internal/model"
	"github.com/jsamuel1/agi-diy/internal/registry"
	"github.com/jsamuel1/agi-diy/internal/schema"
)

// Supervisor is the agent process manager the router delegates control
// requests to.
type Supervisor interface {
	Launch(ctx context.Context, req model.LaunchRequest) (*model.AgentInfo, error)
	SendCommand(agentID string, command json.RawMessage) error
	DiscoverExternal(ctx context.Context) []model.DiscoveredAgent
	ActiveIDs() []string
	Cards() []model.AgentCard
}

// Router interprets inbound frames and dispatches them.
type Router struct {
	registry    *registry.Registry
	broadcaster *Broadcaster
	supervisor  Supervisor
	logger      *slog.Logger
	validate    bool
	now         func() time.Time
}

// Option configures a Router.
type Option func(*Router)

// WithClock sets the time source used for liveness timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithValidation enables logging of schema violations in relayed traffic.
func WithValidation(enabled bool) Option {
	return func(r *Router) { r.validate = enabled }
}

// NewRouter creates a router.
func NewRouter(reg *registry.Registry, b *Broadcaster, sup Supervisor, logger *slog.Logger, opts ...Option) *Router {
	r := &Router{
		registry:    reg,
		broadcaster: b,
		supervisor:  sup,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle routes one inbound frame received on conn. peerID is the id
// currently bound to conn, empty before its first presence. Handle returns
// the id the connection is bound to afterwards.
func (r *Router) Handle(ctx context.Context, conn registry.Conn, raw []byte, peerID string) string {
	msg, err := message.Decode(raw)
	if err != nil {
		r.logger.Warn("ignoring malformed frame",
			"conn_id", conn.ID(),
			"peer_id", peerID,
			"error", err,
		)
		return peerID
	}

	switch m := msg.(type) {
	case *message.Presence:
		r.check(m, peerID)
		return r.presence(conn, m, peerID)

	case *message.Heartbeat:
		if peerID != "" {
			r.registry.Touch(peerID, r.now())
		}

	case *message.Direct:
		r.direct(m, peerID)

	case *message.LaunchAgent:
		r.launch(ctx, conn, m)

	case *message.AgentCommand:
		err := r.supervisor.SendCommand(m.AgentID, m.Command)
		if err != nil {
			r.logger.Info("agent command failed", "agent_id", m.AgentID, "error", err)
		}
		r.reply(conn, message.AgentResponse(m.AgentID, err))

	case *message.GetSchemas:
		r.reply(conn, message.SchemasResponse(schema.Export()))

	case *message.CapabilitiesRequest:
		r.reply(conn, message.CapabilitiesResponse(r.Capabilities(ctx)))

	default:
		r.check(msg, peerID)
		r.broadcaster.Broadcast(msg.Raw(), peerID)
	}

	return peerID
}

// Disconnect deregisters the peer bound to conn and announces its departure.
// It does nothing when the id has since been claimed by another connection.
func (r *Router) Disconnect(conn registry.Conn, peerID string) {
	if peerID == "" {
		return
	}
	if !r.registry.RemoveIf(peerID, conn) {
		return
	}
	r.logger.Info("peer disconnected", "peer_id", peerID, "conn_id", conn.ID())
	r.broadcaster.Announce(message.Offline(peerID, r.now()), peerID)
}

// Capabilities assembles the current capability announcement. Active agents
// are the supervised ids followed by the externally discovered ones.
func (r *Router) Capabilities(ctx context.Context) model.Capabilities {
	discovered := r.supervisor.DiscoverExternal(ctx)
	if discovered == nil {
		discovered = []model.DiscoveredAgent{}
	}
	active := append([]string{}, r.supervisor.ActiveIDs()...)
	for _, d := range discovered {
		active = append(active, d.ID)
	}
	return model.Capabilities{
		AgentCards:       r.supervisor.Cards(),
		ActiveAgents:     active,
		DiscoveredAgents: discovered,
	}
}

func (r *Router) presence(conn registry.Conn, m *message.Presence, peerID string) string {
	id := m.From
	now := r.now()

	if peerID != "" && peerID != id && r.registry.RemoveIf(peerID, conn) {
		r.logger.Info("peer renamed", "old_id", peerID, "new_id", id)
		r.broadcaster.Announce(message.Offline(peerID, now), peerID)
	}

	if previous := r.registry.Upsert(id, conn, m.Data, now); previous != nil {
		r.logger.Info("presence superseded existing connection",
			"peer_id", id,
			"old_conn_id", previous.ID(),
			"conn_id", conn.ID(),
		)
		_ = previous.Close()
	}

	if peerID != id {
		r.logger.Info("peer online", "peer_id", id, "conn_id", conn.ID())
	}

	for _, p := range r.registry.Snapshot() {
		if p.ID == id {
			continue
		}
		frame, err := message.NewPresence(p.ID, p.Metadata, p.LastSeen).Encode()
		if err != nil {
			r.logger.Error("failed to encode backfill", "peer_id", p.ID, "error", err)
			continue
		}
		if err := conn.Send(frame); err != nil {
			r.logger.Warn("backfill failed", "peer_id", id, "error", err)
			break
		}
	}

	r.broadcaster.Broadcast(m.Raw(), id)
	return id
}

func (r *Router) direct(m *message.Direct, peerID string) {
	if m.To == "" {
		r.logger.Debug("dropping direct message without target", "from", peerID)
		return
	}
	target, ok := r.registry.Lookup(m.To)
	if !ok {
		r.logger.Debug("dropping direct message to unknown peer", "from", peerID, "to", m.To)
		return
	}
	if err := target.Send(m.Raw()); err != nil {
		r.logger.Warn("direct delivery failed", "to", m.To, "error", err)
		if r.registry.RemoveIf(m.To, target) {
			_ = target.Close()
		}
	}
}

func (r *Router) launch(ctx context.Context, conn registry.Conn, m *message.LaunchAgent) {
	info, err := r.supervisor.Launch(ctx, model.LaunchRequest{AgentID: m.AgentID, Config: m.Config})
	if err != nil {
		r.logger.Warn("agent launch failed", "agent_id", m.AgentID, "error", err)
		r.reply(conn, message.ErrorReply(m.AgentID, err))
		return
	}
	r.logger.Info("agent launched", "agent_id", info.ID, "pid", info.PID)
	r.reply(conn, message.AgentLaunched(info.ID))
}

func (r *Router) reply(conn registry.Conn, out message.Outbound) {
	frame, err := out.Encode()
	if err != nil {
		r.logger.Error("failed to encode reply", "type", out.Type, "error", err)
		return
	}
	if err := conn.Send(frame); err != nil {
		r.logger.Warn("reply not delivered", "type", out.Type, "conn_id", conn.ID(), "error", err)
	}
}

// check runs advisory schema validation. Violations are logged and never
// block routing.
func (r *Router) check(m message.Message, peerID string) {
	if !r.validate {
		return
	}
	kind := string(m.Kind())
	if ok, errs := schema.Validate(kind, message.ValidationPayload(m)); !ok {
		r.logger.Warn("event failed schema validation",
			"type", kind,
			"peer_id", peerID,
			"errors", errs,
		)
	}
}
