// Package analysis orchestrates the full pipeline: statistics, session
// chunking, per-chunk provider analysis with token-budget subdivision, and
// incremental profile merging. One run is active at a time.
package analysis

import (
	"time"

	"github.com/chronolens/chronolens/internal/history"
	"github.com/chronolens/chronolens/internal/memory"
)

// Run triggers
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// Phase names the pipeline stage a run is in
type Phase string

const (
	PhaseCalculating Phase = "calculating"
	PhaseChunking    Phase = "chunking"
	PhaseAnalyzing   Phase = "analyzing"
	// PhaseRetrying is emitted before each backoff sleep so consumers can
	// tell a rate-limit wait from a hung provider call.
	PhaseRetrying  Phase = "retrying"
	PhaseComplete  Phase = "complete"
	PhaseError     Phase = "error"
	PhaseCancelled Phase = "cancelled"
)

// Progress is a point-in-time snapshot emitted as a run advances
type Progress struct {
	RunID       string `json:"runId"`
	Phase       Phase  `json:"phase"`
	ChunkIndex  int    `json:"chunkIndex,omitempty"`
	TotalChunks int    `json:"totalChunks,omitempty"`
	Description string `json:"description,omitempty"`
	Message     string `json:"message,omitempty"`
}

// ProgressFunc receives progress snapshots. Calls are synchronous and
// best-effort; a nil func disables reporting.
type ProgressFunc func(Progress)

// ChunkInfo records the outcome of analyzing one session chunk
type ChunkInfo struct {
	Index        int       `json:"index"`
	Start        time.Time `json:"start,omitempty"`
	End          time.Time `json:"end,omitempty"`
	Description  string    `json:"description,omitempty"`
	ItemCount    int       `json:"itemCount"`
	IsFallback   bool      `json:"isFallback,omitempty"`
	Subdivisions int       `json:"subdivisions"`
	Status       string    `json:"status"` // "ok" or "failed"
	Error        string    `json:"error,omitempty"`
}

// Diagnostics carries run internals for inspection and debugging
type Diagnostics struct {
	Chunks              []ChunkInfo `json:"chunks"`
	ChunkingRawResponse string      `json:"chunkingRawResponse,omitempty"`
	ChunkingError       string      `json:"chunkingError,omitempty"`
}

// Result is the outcome of an analysis run. Statistics are always present;
// the profile reflects whatever merged successfully before the run ended.
type Result struct {
	RunID       string                   `json:"runId"`
	Trigger     string                   `json:"trigger"`
	StartedAt   time.Time                `json:"startedAt"`
	FinishedAt  time.Time                `json:"finishedAt"`
	TotalURLs   int                      `json:"totalUrls"`
	DateStart   time.Time                `json:"dateStart,omitempty"`
	DateEnd     time.Time                `json:"dateEnd,omitempty"`
	TopDomains  []history.DomainCount    `json:"topDomains"`
	Patterns    []memory.WorkflowPattern `json:"patterns"`
	Profile     *memory.ProfileMemory    `json:"profile,omitempty"`
	Diagnostics Diagnostics              `json:"diagnostics"`
}
