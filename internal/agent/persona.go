package agent

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persona is the agent's system prompt, optionally overridden by a YAML file.
type Persona struct {
	Name         string `yaml:"name"`
	SystemPrompt string `yaml:"system_prompt"`
}

const defaultSystemPrompt = `You are a personal assistant robot designed to aid the elderly population with everyday tasks. You need to provide 3 things:
(1) a boolean value for whether movement is necessary to follow the user's command
(2) appropriate, helpful verbal output
(3) Motion information - provide detailed step-by-step navigation/guidance instructions when movement is required (e.g., "Move forward 3 steps, turn left at the door, walk 5 steps to the cabinet"). If no movement is needed, put "N/A".

Organize these three outputs as a list separated by %,%
Format: <boolean> %,% <verbal output> %,% <motion plan>
Example: True %,% Let me guide you to the cabinet %,% Move forward 3 steps, turn left at the door, walk 5 steps to the cabinet

Do not put the boolean in quotations. List should be THREE elements long.`

// DefaultPersona returns the built-in assistant persona.
func DefaultPersona() Persona {
	return Persona{Name: "assistant", SystemPrompt: defaultSystemPrompt}
}

// LoadPersona reads a persona file. A missing file yields the default
// persona; a malformed file is an error.
func LoadPersona(path string) (Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPersona(), nil
		}
		return Persona{}, fmt.Errorf("read persona %s: %w", path, err)
	}

	var persona Persona
	if err := yaml.Unmarshal(data, &persona); err != nil {
		return Persona{}, fmt.Errorf("parse persona %s: %w", path, err)
	}
	if strings.TrimSpace(persona.SystemPrompt) == "" {
		persona.SystemPrompt = defaultSystemPrompt
	}
	if strings.TrimSpace(persona.Name) == "" {
		persona.Name = "assistant"
	}
	return persona, nil
}
