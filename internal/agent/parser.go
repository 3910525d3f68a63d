// Package agent talks to the command agent and decodes its three-field
// replies.
package agent

import "strings"

// Delimiter separates the three fields of an agent reply.
const Delimiter = "%,%"

// NoMotion is the conventional motion plan when no movement is needed.
const NoMotion = "N/A"

// Result is the decoded three-field agent reply.
type Result struct {
	MovementRequired bool
	VerbalOutput     string
	MotionPlan       string
}

// Parse decodes a raw agent reply. It is total: malformed input degrades to a
// usable triple instead of failing. Missing fields are padded with "N/A",
// extra fields beyond the third are discarded, and an unrecognized boolean
// token means no movement.
func Parse(raw string) Result {
	parts := strings.Split(raw, Delimiter)
	for i, part := range parts {
		parts[i] = trimQuotes(strings.TrimSpace(part))
	}
	for len(parts) < 3 {
		parts = append(parts, NoMotion)
	}
	parts = parts[:3]
	if parts[2] == "" {
		parts[2] = NoMotion
	}

	movement := false
	switch strings.ToLower(parts[0]) {
	case "true", "yes", "1":
		movement = true
	}

	return Result{
		MovementRequired: movement,
		VerbalOutput:     parts[1],
		MotionPlan:       parts[2],
	}
}

// trimQuotes strips a single layer of surrounding quote characters.
func trimQuotes(s string) string {
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimSuffix(s, `"`)
	s = strings.TrimPrefix(s, "'")
	s = strings.TrimSuffix(s, "'")
	return s
}
