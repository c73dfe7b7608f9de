// Package schema declares the event schemas carried over the relay and
// validates payloads against them.
//
// Validation is advisory: the relay logs failures but routes the traffic
// anyway, so clients can introduce new event kinds before the table here
// learns about them.
package schema

import "sort"

// FieldType is a generic JSON value category.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
)

// Constraint restricts the value of one field. Either Types lists acceptable
// categories, or Enum lists acceptable literal values.
type Constraint struct {
	Types []FieldType
	Enum  []string
}

// Of builds a constraint that accepts any of the given value categories.
func Of(types ...FieldType) Constraint {
	return Constraint{Types: types}
}

// OneOf builds an enumeration constraint.
func OneOf(values ...string) Constraint {
	return Constraint{Enum: values}
}

// Schema declares the shape of one event kind's payload.
type Schema struct {
	Description string
	Required    []string
	Optional    []string
	Fields      map[string]Constraint
}

func (s Schema) declares(field string) bool {
	for _, f := range s.Required {
		if f == field {
			return true
		}
	}
	for _, f := range s.Optional {
		if f == field {
			return true
		}
	}
	return false
}

var (
	agentStatuses = []string{"idle", "processing", "waiting", "error", "stopped"}
	taskStatuses  = []string{"pending", "in-progress", "blocked", "complete", "failed"}
	connTypes     = []string{"relay", "mcp", "websocket", "peer"}
)

var schemas = map[string]Schema{
	"agent-discovered": {
		Description: "A new agent has been discovered on the network",
		Required:    []string{"id", "source"},
		Optional:    []string{"name", "capabilities", "model", "metadata"},
		Fields: map[string]Constraint{
			"id":           Of(TypeString),
			"source":       OneOf("relay", "mesh", "erc8004", "local"),
			"name":         Of(TypeString),
			"capabilities": Of(TypeObject),
			"model":        Of(TypeString),
			"metadata":     Of(TypeObject),
		},
	},
	"agent-started": {
		Description: "An agent has been spawned and is now running",
		Required:    []string{"id", "agentType", "timestamp"},
		Optional:    []string{"taskId"},
		Fields: map[string]Constraint{
			"id":        Of(TypeString),
			"agentType": Of(TypeString),
			"taskId":    Of(TypeString),
			"timestamp": Of(TypeNumber),
		},
	},
	"agent-status-changed": {
		Description: "An agent's operational status has changed",
		Required:    []string{"id", "status"},
		Optional:    []string{"previousStatus", "reason"},
		Fields: map[string]Constraint{
			"id":             Of(TypeString),
			"status":         OneOf(agentStatuses...),
			"previousStatus": OneOf(agentStatuses...),
			"reason":         Of(TypeString),
		},
	},
	"agent-stopped": {
		Description: "An agent has terminated execution",
		Required:    []string{"id", "reason", "timestamp"},
		Optional:    []string{"result"},
		Fields: map[string]Constraint{
			"id":        Of(TypeString),
			"reason":    OneOf("completed", "error", "terminated", "timeout"),
			"result":    Of(TypeObject),
			"timestamp": Of(TypeNumber),
		},
	},
	"capabilities-discovered": {
		Description: "New capabilities have been discovered from a source",
		Required:    []string{"source", "sourceType"},
		Optional:    []string{"agentCards", "tools", "resources", "metadata"},
		Fields: map[string]Constraint{
			"source":     Of(TypeString),
			"sourceType": OneOf("relay", "mcp", "plugin", "local"),
			"agentCards": Of(TypeArray),
			"tools":      Of(TypeArray),
			"resources":  Of(TypeArray),
			"metadata":   Of(TypeObject),
		},
	},
	"task-created": {
		Description: "A new task has been created",
		Required:    []string{"id", "title", "createdBy", "timestamp"},
		Optional:    []string{"description", "parentId", "assignedTo"},
		Fields: map[string]Constraint{
			"id":          Of(TypeString),
			"title":       Of(TypeString),
			"description": Of(TypeString),
			"parentId":    Of(TypeString),
			"assignedTo":  Of(TypeString),
			"createdBy":   Of(TypeString),
			"timestamp":   Of(TypeNumber),
		},
	},
	"task-status-changed": {
		Description: "A task has transitioned to a new status",
		Required:    []string{"id", "status", "changedBy"},
		Optional:    []string{"previousStatus", "reason"},
		Fields: map[string]Constraint{
			"id":             Of(TypeString),
			"status":         OneOf(taskStatuses...),
			"previousStatus": OneOf(taskStatuses...),
			"reason":         Of(TypeString),
			"changedBy":      Of(TypeString),
		},
	},
	"message-sent": {
		Description: "A message has been sent between agents or users",
		Required:    []string{"from", "to", "content", "timestamp"},
		Optional:    []string{"conversationId"},
		Fields: map[string]Constraint{
			"from":           Of(TypeString),
			"to":             Of(TypeString),
			"content":        Of(TypeString),
			"conversationId": Of(TypeString),
			"timestamp":      Of(TypeNumber),
		},
	},
	"connection-established": {
		Description: "A network connection has been successfully established",
		Required:    []string{"id", "type"},
		Optional:    []string{"url", "metadata"},
		Fields: map[string]Constraint{
			"id":       Of(TypeString),
			"type":     OneOf(connTypes...),
			"url":      Of(TypeString),
			"metadata": Of(TypeObject),
		},
	},
	"connection-lost": {
		Description: "A network connection has been lost or closed",
		Required:    []string{"id", "type"},
		Optional:    []string{"reason"},
		Fields: map[string]Constraint{
			"id":     Of(TypeString),
			"type":   OneOf(connTypes...),
			"reason": Of(TypeString),
		},
	},
	"relay-connected": {
		Description: "WebSocket connection to relay server established",
		Required:    []string{"relayId"},
		Optional:    []string{"url"},
		Fields: map[string]Constraint{
			"relayId": Of(TypeString),
			"url":     Of(TypeString),
		},
	},
	"relay-disconnected": {
		Description: "WebSocket connection to relay server lost",
		Required:    []string{"relayId"},
		Optional:    []string{},
		Fields: map[string]Constraint{
			"relayId": Of(TypeString),
		},
	},
	"relay-log": {
		Description: "Internal relay server log message for debugging",
		Required:    []string{"time", "level", "relayId", "message"},
		Optional:    []string{"data"},
		Fields: map[string]Constraint{
			"time":    Of(TypeNumber),
			"level":   OneOf("info", "warn", "error"),
			"relayId": Of(TypeString),
			"message": Of(TypeString),
			"data":    Of(TypeString, TypeObject),
		},
	},
	"relay-capabilities": {
		Description: "Relay server announcing available agents and tools",
		Required:    []string{"relayId"},
		Optional:    []string{"agentCards", "activeAgents", "tools"},
		Fields: map[string]Constraint{
			"relayId":      Of(TypeString),
			"agentCards":   Of(TypeArray),
			"activeAgents": Of(TypeArray),
			"tools":        Of(TypeArray),
		},
	},
	"presence": {
		Description: "Peer heartbeat announcing availability and status",
		Required:    []string{"from"},
		Optional:    []string{"data", "timestamp"},
		Fields: map[string]Constraint{
			"from":      Of(TypeString),
			"data":      Of(TypeObject),
			"timestamp": Of(TypeNumber),
		},
	},
	"relay-config-updated": {
		Description: "Relay server configuration has been updated",
		Required:    []string{},
		Optional:    []string{"config"},
		Fields: map[string]Constraint{
			"config": Of(TypeObject),
		},
	},
}

// Lookup returns the schema declared for kind.
func Lookup(kind string) (Schema, bool) {
	s, ok := schemas[kind]
	return s, ok
}

// Known reports whether kind has a declared schema.
func Known(kind string) bool {
	_, ok := schemas[kind]
	return ok
}

// Kinds returns every declared event kind in lexical order.
func Kinds() []string {
	kinds := make([]string, 0, len(schemas))
	for k := range schemas {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
