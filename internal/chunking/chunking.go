// Package chunking groups browsing history into coherent time-bounded
// sessions. Detection is AI-assisted over an indexed timestamp list, with a
// deterministic half-day fallback when the provider is unavailable or its
// response cannot be used. Every item with a timestamp lands in exactly one
// chunk regardless of how well the AI-assisted detection performed.
package chunking

import (
	"time"

	"github.com/chronolens/chronolens/internal/history"
	"github.com/chronolens/chronolens/internal/retry"
)

// TimeRange is a detected session boundary with a short label
type TimeRange struct {
	Start time.Time
	End   time.Time
	Label string
}

// Chunk is a contiguous, time-bounded group of history items believed to
// represent one browsing session. Chunks are non-overlapping and emitted in
// ascending start-time order.
type Chunk struct {
	Start       time.Time
	End         time.Time
	Items       []history.Item
	Index       int
	TotalChunks int
	IsFallback  bool
	Description string
}

// Options holds the session-detection policy constants
type Options struct {
	BatchCeiling int           // Max timestamps per detection prompt (default: 80)
	MergeGap     time.Duration // Ranges within this gap merge across batches (default: 60s)
	SessionGap   time.Duration // Gap hint given to the model (default: 30m)
	Location     *time.Location
	Retry        retry.Options
}

// DefaultOptions returns the standard detection policy
func DefaultOptions() Options {
	return Options{
		BatchCeiling: 80,
		MergeGap:     60 * time.Second,
		SessionGap:   30 * time.Minute,
		Location:     time.Local,
		Retry:        retry.DefaultOptions(),
	}
}

// Result carries the detected chunks plus diagnostics. Err records why the
// fallback was used (if it was); it never aborts a run.
type Result struct {
	Chunks      []Chunk
	RawResponse string
	Err         error
}
