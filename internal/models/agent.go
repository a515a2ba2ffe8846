package models

import (
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Agent is an AI persona that can author chat messages.
type Agent struct {
	ID          surrealmodels.RecordID `json:"id"`
	Name        string                 `json:"name"`
	Personality string                 `json:"personality"` // Free-text personality directive
	Voice       *string                `json:"voice,omitempty"`
}

// AgentInput is the input structure for creating or replacing agents.
type AgentInput struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Personality string  `json:"personality" yaml:"personality"`
	Voice       *string `json:"voice,omitempty" yaml:"voice,omitempty"`
}

// AgentIDString returns the string id of the agent, or "" for an unset id.
func (a Agent) AgentIDString() string {
	id, err := RecordIDString(a.ID)
	if err != nil {
		return ""
	}
	return id
}

// DefaultAgents returns the built-in personas.
func DefaultAgents() []AgentInput {
	return []AgentInput{
		{
			ID:          "ada",
			Name:        "Ada",
			Personality: "A precise, curious engineer. Explains how things work, asks one sharp follow-up question, keeps replies under three sentences.",
			Voice:       ptr("alloy"),
		},
		{
			ID:          "juno",
			Name:        "Juno",
			Personality: "A warm, playful host who keeps the conversation moving. Reacts to jokes, welcomes newcomers, summarizes when the room gets noisy.",
			Voice:       ptr("nova"),
		},
		{
			ID:          "orson",
			Name:        "Orson",
			Personality: "A dry-witted analyst who likes numbers, plans and schedules. Offers to chart or organize whatever the room is discussing.",
		},
	}
}
