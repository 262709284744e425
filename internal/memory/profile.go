// Package memory holds the durable, evolving user profile: stable traits,
// dynamic context, and detected workflow patterns, plus the merge policy
// that evolves them coherently across incremental analysis runs.
package memory

import "time"

// SchemaVersion is the persisted profile schema version. A stored record
// with any other version is discarded and analysis starts from an empty
// profile; there is no cross-version migration.
const SchemaVersion = 1

// PersonalPreference is a categorized preference observation
type PersonalPreference struct {
	Category   string `json:"category"`
	Preference string `json:"preference"`
}

// StableTraits change slowly and require corroborating evidence to change.
// They are strengthened and refined during merge, never overwritten by
// unrelated values.
type StableTraits struct {
	CoreIdentities      []string             `json:"coreIdentities"`
	PersonalPreferences []PersonalPreference `json:"personalPreferences"`
}

// DynamicContext reflects the most recent evidence and is replaced freely
// with each new chunk's output.
type DynamicContext struct {
	CurrentTasks     []string `json:"currentTasks"`
	CurrentInterests []string `json:"currentInterests"`
}

// Automation potential levels for workflow patterns
const (
	AutomationHigh   = "high"
	AutomationMedium = "medium"
	AutomationLow    = "low"
)

// WorkflowPattern is a detected repetitive browsing behavior
type WorkflowPattern struct {
	Pattern             string   `json:"pattern"`
	Description         string   `json:"description"`
	Frequency           int      `json:"frequency"`
	URLs                []string `json:"urls,omitempty"`
	TimePattern         string   `json:"timePattern,omitempty"`
	Suggestion          string   `json:"suggestion,omitempty"`
	AutomationPotential string   `json:"automationPotential"`
}

// ProfileMemory is the versioned, persisted representation of accumulated
// knowledge about the user. Exactly one instance exists per installation;
// only the analysis orchestrator writes it, whole-object, after each
// successfully merged chunk.
type ProfileMemory struct {
	StableTraits         StableTraits      `json:"stableTraits"`
	DynamicContext       DynamicContext    `json:"dynamicContext"`
	Summary              string            `json:"summary"`
	Patterns             []WorkflowPattern `json:"patterns"`
	LastAnalyzedAt       time.Time         `json:"lastAnalyzedDate"`
	LastHistoryTimestamp time.Time         `json:"lastHistoryTimestamp"`
	Version              int               `json:"version"`
}

// NewProfileMemory returns an empty profile at the current schema version
func NewProfileMemory() *ProfileMemory {
	return &ProfileMemory{
		StableTraits: StableTraits{
			CoreIdentities:      []string{},
			PersonalPreferences: []PersonalPreference{},
		},
		DynamicContext: DynamicContext{
			CurrentTasks:     []string{},
			CurrentInterests: []string{},
		},
		Patterns: []WorkflowPattern{},
		Version:  SchemaVersion,
	}
}

// Caps bounds every array-valued profile field regardless of what the
// provider returns, keeping persisted state from growing without bound.
type Caps struct {
	Identities     int // Core identities (default: 5)
	Preferences    int // Personal preferences (default: 10)
	Tasks          int // Current tasks (default: 10)
	Interests      int // Current interests (default: 10)
	Patterns       int // Workflow patterns (default: 15)
	URLsPerPattern int // Evidence URLs per pattern (default: 8)
}

// DefaultCaps returns the documented per-field caps
func DefaultCaps() Caps {
	return Caps{
		Identities:     5,
		Preferences:    10,
		Tasks:          10,
		Interests:      10,
		Patterns:       15,
		URLsPerPattern: 8,
	}
}
