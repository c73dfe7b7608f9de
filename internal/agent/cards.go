package agent

import "github.com/jsamuel1/agi-diy/internal/model"

// Cards returns the capability descriptors of the agent integrations the
// relay knows how to reach.
func (s *Supervisor) Cards() []model.AgentCard {
	return DefaultCards()
}

// DefaultCards returns a fresh copy of the built-in capability descriptors.
func DefaultCards() []model.AgentCard {
	return []model.AgentCard{
		{
			Name:        "kiro-cli",
			Description: "AWS Kiro CLI - Agentic AI development with spec-driven workflows, custom agents, and MCP integration",
			URL:         "https://kiro.dev/cli/",
			Provider:    model.CardProvider{Organization: "AWS", URL: "https://kiro.dev"},
			Version:     "1.0.0",
			Capabilities: model.CardCapabilities{
				Streaming:              true,
				PushNotifications:      false,
				StateTransitionHistory: false,
			},
			Authentication:     model.CardAuthentication{Schemes: []string{"None"}},
			DefaultInputModes:  []string{"text/plain", "application/json", "image/png", "image/jpeg"},
			DefaultOutputModes: []string{"text/plain", "application/json", "text/markdown"},
			Skills: []model.CardSkill{
				{
					ID:          "spec-driven-development",
					Name:        "Spec-Driven Development",
					Description: "Convert natural language to structured requirements (EARS notation), architectural designs, and implementation plans",
					Tags:        []string{"specs", "requirements", "architecture", "planning"},
					Examples:    []string{"Create spec for user authentication", "Design API architecture", "Generate implementation plan"},
				},
				{
					ID:          "file-operations",
					Name:        "File Operations",
					Description: "Read, write, search files and directories with intelligent context management",
					Tags:        []string{"filesystem", "io", "search", "code-intelligence"},
					Examples:    []string{"Read package.json", "Search for TODO comments", "Find all references to function"},
				},
				{
					ID:          "code-execution",
					Name:        "Code Execution",
					Description: "Execute bash commands, run tests, manage git workflows",
					Tags:        []string{"bash", "shell", "execution", "git", "testing"},
					Examples:    []string{"Run npm install", "Execute test suite", "Create git commit"},
				},
				{
					ID:          "aws-operations",
					Name:        "AWS Operations",
					Description: "Interact with AWS services via CLI and SDKs",
					Tags:        []string{"aws", "cloud", "infrastructure", "deployment"},
					Examples:    []string{"List S3 buckets", "Deploy CloudFormation stack", "Query DynamoDB"},
				},
				{
					ID:          "custom-agents",
					Name:        "Custom Agents",
					Description: "Create task-specific agents with pre-defined permissions, context, and prompts",
					Tags:        []string{"agents", "automation", "workflows"},
					Examples:    []string{"Create testing agent", "Build deployment agent", "Configure code review agent"},
				},
				{
					ID:          "mcp-integration",
					Name:        "MCP Integration",
					Description: "Connect to external tools and services via Model Context Protocol",
					Tags:        []string{"mcp", "integration", "tools", "apis"},
					Examples:    []string{"Connect to database", "Integrate with Slack", "Access documentation"},
				},
				{
					ID:          "agent-hooks",
					Name:        "Agent Hooks",
					Description: "Automate workflows with event-triggered agents (file save, pre-commit, etc.)",
					Tags:        []string{"hooks", "automation", "events"},
					Examples:    []string{"Auto-generate docs on save", "Run tests pre-commit", "Format code on save"},
				},
				{
					ID:          "steering",
					Name:        "Agent Steering",
					Description: "Configure agent behavior with project-specific rules, conventions, and best practices",
					Tags:        []string{"steering", "configuration", "standards"},
					Examples:    []string{"Set coding standards", "Define project conventions", "Configure workflows"},
				},
			},
		},
		{
			Name:        "claude-code",
			Description: "Anthropic Claude Code - Agentic coding assistant with autonomous workflows, subagents, and checkpoints",
			URL:         "https://code.claude.com",
			Provider:    model.CardProvider{Organization: "Anthropic", URL: "https://anthropic.com"},
			Version:     "2.0.0",
			Capabilities: model.CardCapabilities{
				Streaming:              true,
				PushNotifications:      false,
				StateTransitionHistory: true,
			},
			Authentication:     model.CardAuthentication{Schemes: []string{"Bearer"}},
			DefaultInputModes:  []string{"text/plain", "application/json", "image/png", "image/jpeg"},
			DefaultOutputModes: []string{"text/plain", "application/json", "text/markdown"},
			Skills: []model.CardSkill{
				{
					ID:          "agentic-loop",
					Name:        "Agentic Loop",
					Description: "Autonomous gather-act-verify loop with adaptive planning and course correction",
					Tags:        []string{"autonomous", "planning", "reasoning"},
					Examples:    []string{"Fix failing tests", "Refactor authentication", "Debug production issue"},
				},
				{
					ID:          "file-operations",
					Name:        "File Operations",
					Description: "Read, edit, create, rename files with multi-file coordination",
					Tags:        []string{"filesystem", "editing", "refactor"},
					Examples:    []string{"Refactor across multiple files", "Reorganize project structure", "Update imports"},
				},
				{
					ID:          "code-search",
					Name:        "Code Search",
					Description: "Find files by pattern, search content with regex, explore codebases",
					Tags:        []string{"search", "navigation", "discovery"},
					Examples:    []string{"Find all API endpoints", "Search for security issues", "Locate configuration"},
				},
				{
					ID:          "execution",
					Name:        "Execution",
					Description: "Run shell commands, start servers, run tests, use git",
					Tags:        []string{"bash", "shell", "git", "testing"},
					Examples:    []string{"Run test suite", "Start dev server", "Create PR"},
				},
				{
					ID:          "web-research",
					Name:        "Web Research",
					Description: "Search the web, fetch documentation, look up error messages",
					Tags:        []string{"web", "research", "documentation"},
					Examples:    []string{"Look up API docs", "Research error message", "Find best practices"},
				},
				{
					ID:          "code-intelligence",
					Name:        "Code Intelligence",
					Description: "Type checking, jump to definitions, find references with LSP integration",
					Tags:        []string{"lsp", "types", "navigation"},
					Examples:    []string{"Check type errors", "Find all usages", "Go to definition"},
				},
				{
					ID:          "subagents",
					Name:        "Subagents",
					Description: "Spawn specialized sub-agents for parallel tasks with isolated context",
					Tags:        []string{"subagents", "parallel", "delegation"},
					Examples:    []string{"Delegate testing to subagent", "Parallel feature development", "Background research"},
				},
				{
					ID:          "checkpoints",
					Name:        "Checkpoints",
					Description: "Snapshot and rewind file changes with undo/redo capabilities",
					Tags:        []string{"safety", "undo", "versioning"},
					Examples:    []string{"Rewind failed refactor", "Try different approach", "Undo changes"},
				},
				{
					ID:          "skills",
					Name:        "Skills",
					Description: "Reusable workflows loaded on-demand to manage context",
					Tags:        []string{"skills", "workflows", "reusable"},
					Examples:    []string{"Load testing workflow", "Apply code review checklist", "Run deployment steps"},
				},
				{
					ID:          "mcp-integration",
					Name:        "MCP Integration",
					Description: "Connect to external services via Model Context Protocol",
					Tags:        []string{"mcp", "integration", "tools"},
					Examples:    []string{"Connect to database", "Access APIs", "Integrate services"},
				},
			},
		},
	}
}
