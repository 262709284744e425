package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chronolens/chronolens/internal/history"
	"github.com/chronolens/chronolens/internal/memory"
)

// defaultSystemPrompt frames every analysis conversation
const defaultSystemPrompt = `You analyze browsing history to understand the person behind it. You receive one browsing session at a time: visited URLs with titles, visit times, and visit counts. From each session you extract who the user is, what they are currently working on, and which repetitive workflows could be automated. Ground every statement in the visits you were given; never invent activity. Respond only with JSON in the exact shape requested.`

// analysisSchema is the structured-output shape for one chunk's reply.
// It mirrors memory.ChunkUpdate so the repaired response unmarshals
// straight into the merge input.
var analysisSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"summary": {"type": "string"},
		"coreIdentities": {"type": "array", "items": {"type": "string"}},
		"personalPreferences": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"category": {"type": "string"},
					"preference": {"type": "string"}
				},
				"required": ["category", "preference"]
			}
		},
		"currentTasks": {"type": "array", "items": {"type": "string"}},
		"currentInterests": {"type": "array", "items": {"type": "string"}},
		"patterns": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"pattern": {"type": "string"},
					"description": {"type": "string"},
					"frequency": {"type": "integer"},
					"urls": {"type": "array", "items": {"type": "string"}},
					"timePattern": {"type": "string"},
					"suggestion": {"type": "string"},
					"automationPotential": {"type": "string", "enum": ["high", "medium", "low"]}
				},
				"required": ["pattern", "description", "frequency", "automationPotential"]
			}
		}
	},
	"required": ["summary"]
}`)

// responseShape is the inline shape reminder for backends without
// structured output
const responseShape = `{"summary": "one paragraph", "coreIdentities": ["..."], "personalPreferences": [{"category": "...", "preference": "..."}], "currentTasks": ["..."], "currentInterests": ["..."], "patterns": [{"pattern": "short name", "description": "...", "frequency": 1, "urls": ["..."], "timePattern": "...", "suggestion": "...", "automationPotential": "high|medium|low"}]}`

// renderAnalysisPrompt renders one slice of a session chunk for the model.
// memCtx carries the profile accumulated so far; empty on the first chunk
// of a fresh installation. guidance is optional caller-supplied focus.
func renderAnalysisPrompt(items []history.Item, memCtx, sessionLabel, guidance string) string {
	var sb strings.Builder

	sb.WriteString("Analyze this browsing session")
	if sessionLabel != "" {
		fmt.Fprintf(&sb, " (%s)", sessionLabel)
	}
	sb.WriteString(".\n")

	if guidance != "" {
		sb.WriteString(guidance)
		sb.WriteString("\n")
	}

	if memCtx != "" {
		sb.WriteString("\nWhat is already known about this user. Refine and extend it; do not contradict it without evidence in the visits below:\n")
		sb.WriteString(memCtx)
		sb.WriteString("\n")
	}

	sb.WriteString("\nVisits:\n")
	for _, it := range items {
		if it.HasTimestamp() {
			fmt.Fprintf(&sb, "- [%s] ", it.LastVisit.Format("Mon 15:04"))
		} else {
			sb.WriteString("- ")
		}
		if it.Title != "" {
			fmt.Fprintf(&sb, "%s | ", it.Title)
		}
		sb.WriteString(it.URL)
		if it.VisitCount > 1 {
			fmt.Fprintf(&sb, " (%d visits)", it.VisitCount)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\nRespond ONLY with JSON in this shape:\n")
	sb.WriteString(responseShape)
	return sb.String()
}

// memoryContext renders the accumulated profile compactly for inclusion in
// the next prompt. Pattern evidence URLs are omitted; they add tokens
// without helping the model refine anything.
func memoryContext(mem *memory.ProfileMemory) string {
	if mem == nil {
		return ""
	}

	type patternBrief struct {
		Pattern   string `json:"pattern"`
		Frequency int    `json:"frequency"`
	}
	ctx := struct {
		Summary             string                        `json:"summary,omitempty"`
		CoreIdentities      []string                      `json:"coreIdentities,omitempty"`
		PersonalPreferences []memory.PersonalPreference   `json:"personalPreferences,omitempty"`
		CurrentTasks        []string                      `json:"currentTasks,omitempty"`
		CurrentInterests    []string                      `json:"currentInterests,omitempty"`
		KnownPatterns       []patternBrief                `json:"knownPatterns,omitempty"`
	}{
		Summary:             mem.Summary,
		CoreIdentities:      mem.StableTraits.CoreIdentities,
		PersonalPreferences: mem.StableTraits.PersonalPreferences,
		CurrentTasks:        mem.DynamicContext.CurrentTasks,
		CurrentInterests:    mem.DynamicContext.CurrentInterests,
	}
	for _, p := range mem.Patterns {
		ctx.KnownPatterns = append(ctx.KnownPatterns, patternBrief{Pattern: p.Pattern, Frequency: p.Frequency})
	}

	if ctx.Summary == "" && len(ctx.CoreIdentities) == 0 && len(ctx.PersonalPreferences) == 0 &&
		len(ctx.CurrentTasks) == 0 && len(ctx.CurrentInterests) == 0 && len(ctx.KnownPatterns) == 0 {
		return ""
	}

	data, err := json.Marshal(ctx)
	if err != nil {
		return ""
	}
	return string(data)
}
