package model

// AgentCard describes one agent integration the relay can launch or reach.
type AgentCard struct {
	Name               string             `json:"name"`
	Description        string             `json:"description"`
	URL                string             `json:"url"`
	Provider           CardProvider       `json:"provider"`
	Version            string             `json:"version"`
	Capabilities       CardCapabilities   `json:"capabilities"`
	Authentication     CardAuthentication `json:"authentication"`
	DefaultInputModes  []string           `json:"defaultInputModes"`
	DefaultOutputModes []string           `json:"defaultOutputModes"`
	Skills             []CardSkill        `json:"skills"`
}

// CardProvider identifies who ships an agent integration.
type CardProvider struct {
	Organization string `json:"organization"`
	URL          string `json:"url"`
}

// CardCapabilities are the protocol capability flags of an agent integration.
type CardCapabilities struct {
	Streaming              bool `json:"streaming"`
	PushNotifications      bool `json:"pushNotifications"`
	StateTransitionHistory bool `json:"stateTransitionHistory"`
}

// CardAuthentication lists the auth schemes an integration accepts.
type CardAuthentication struct {
	Schemes     []string `json:"schemes"`
	Credentials *string  `json:"credentials"`
}

// CardSkill is a named skill advertised by an agent integration.
type CardSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Examples    []string `json:"examples"`
}

// Capabilities is the payload of a capabilities_response.
type Capabilities struct {
	AgentCards       []AgentCard       `json:"agentCards"`
	ActiveAgents     []string          `json:"activeAgents"`
	DiscoveredAgents []DiscoveredAgent `json:"discoveredAgents"`
}
