package chunking

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chronolens/chronolens/internal/ai"
	"github.com/chronolens/chronolens/internal/history"
	"github.com/chronolens/chronolens/internal/jsonrepair"
	"github.com/chronolens/chronolens/internal/logging"
	"github.com/chronolens/chronolens/internal/retry"
)

// Detector performs AI-assisted session detection
type Detector struct {
	provider ai.Provider
	opts     Options
}

// NewDetector creates a session detector. Provider may be nil, in which
// case detection goes straight to the deterministic fallback.
func NewDetector(provider ai.Provider, opts Options) *Detector {
	if opts.BatchCeiling <= 0 {
		opts.BatchCeiling = 80
	}
	if opts.MergeGap <= 0 {
		opts.MergeGap = 60 * time.Second
	}
	if opts.SessionGap <= 0 {
		opts.SessionGap = 30 * time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Detector{provider: provider, opts: opts}
}

// sessionResponse is the structured reply the model is asked for. Index
// pairs keep the response small: the model never echoes millisecond values.
type sessionResponse struct {
	Sessions []sessionRange `json:"sessions"`
}

type sessionRange struct {
	StartIndex int    `json:"startIndex"`
	EndIndex   int    `json:"endIndex"`
	Label      string `json:"label"`
}

// sessionSchema describes the expected reply for structured-output backends
var sessionSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"sessions": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"startIndex": {"type": "integer"},
					"endIndex": {"type": "integer"},
					"label": {"type": "string"}
				},
				"required": ["startIndex", "endIndex", "label"]
			}
		}
	},
	"required": ["sessions"]
}`)

// Detect groups items into session chunks. An empty input yields zero
// chunks, not an error. Chunking failures never propagate: every failure
// mode resolves to the deterministic half-day fallback.
func (d *Detector) Detect(ctx context.Context, items []history.Item) Result {
	timestamped := make([]history.Item, 0, len(items))
	for _, it := range items {
		if it.HasTimestamp() {
			timestamped = append(timestamped, it)
		}
	}
	if len(timestamped) == 0 {
		return Result{Chunks: []Chunk{}}
	}
	timestamped = history.SortByVisitTime(timestamped)

	if d.provider == nil {
		return d.fallbackResult(timestamped, ai.NewError(ai.KindUnavailable, "no provider configured for session detection"))
	}
	if status := d.provider.Status(ctx); status != ai.StatusAvailable {
		return d.fallbackResult(timestamped, ai.NewError(ai.KindUnavailable, "provider %s is %s", d.provider.ID(), status))
	}

	ranges, raw, err := d.detectRanges(ctx, timestamped)
	if err != nil {
		logging.Warnf("[Chunking] Detection failed, using half-day fallback: %v", err)
		res := d.fallbackResult(timestamped, err)
		res.RawResponse = raw
		return res
	}
	if len(ranges) == 0 {
		res := d.fallbackResult(timestamped, ai.NewError(ai.KindParse, "no valid session ranges in response"))
		res.RawResponse = raw
		return res
	}

	chunks, uncovered := mapItemsToRanges(timestamped, ranges)

	// Items outside every accepted range are not silently dropped: bucket
	// them with the fallback and append as auxiliary chunks.
	if len(uncovered) > 0 {
		logging.Infof("[Chunking] %d items outside detected sessions, adding fallback chunks", len(uncovered))
		chunks = append(chunks, HalfDayChunks(uncovered, d.opts.Location)...)
	}

	return Result{Chunks: finalize(chunks), RawResponse: raw}
}

// fallbackResult buckets everything with the deterministic heuristic
func (d *Detector) fallbackResult(items []history.Item, cause error) Result {
	return Result{
		Chunks: finalize(HalfDayChunks(items, d.opts.Location)),
		Err:    cause,
	}
}

// detectRanges runs detection over the sorted item list, batching when the
// timestamp count exceeds the ceiling. The same helper serves both paths;
// a single-batch input is just a batch count of one.
func (d *Detector) detectRanges(ctx context.Context, sorted []history.Item) ([]TimeRange, string, error) {
	var (
		allRanges []TimeRange
		lastRaw   string
		lastErr   error
		succeeded int
	)

	for offset := 0; offset < len(sorted); offset += d.opts.BatchCeiling {
		end := offset + d.opts.BatchCeiling
		if end > len(sorted) {
			end = len(sorted)
		}
		batch := sorted[offset:end]

		ranges, raw, err := d.detectBatch(ctx, batch)
		lastRaw = raw
		if err != nil {
			if ai.IsCancelled(err) {
				return nil, lastRaw, err
			}
			logging.Warnf("[Chunking] Batch %d-%d failed: %v", offset, end, err)
			lastErr = err
			continue
		}
		succeeded++
		allRanges = append(allRanges, ranges...)
	}

	if succeeded == 0 {
		return nil, lastRaw, lastErr
	}
	return mergeRanges(allRanges, d.opts.MergeGap), lastRaw, nil
}

// detectBatch renders one indexed prompt and parses the session reply
func (d *Detector) detectBatch(ctx context.Context, batch []history.Item) ([]TimeRange, string, error) {
	prompt := d.renderPrompt(batch)

	raw, err := retry.Do(ctx, d.opts.Retry, func(ctx context.Context) (string, error) {
		return d.provider.Prompt(ctx, prompt, &ai.PromptOptions{ResponseSchema: sessionSchema})
	})
	if err != nil {
		return nil, raw, err
	}

	var resp sessionResponse
	if err := jsonrepair.Parse(raw, &resp); err != nil {
		return nil, raw, err
	}

	// Validate every returned pair; discard invalid ones
	count := len(batch)
	ranges := make([]TimeRange, 0, len(resp.Sessions))
	for _, s := range resp.Sessions {
		if s.StartIndex < 0 || s.StartIndex > s.EndIndex || s.EndIndex >= count {
			logging.Warnf("[Chunking] Discarding invalid session pair [%d, %d] of %d", s.StartIndex, s.EndIndex, count)
			continue
		}
		ranges = append(ranges, TimeRange{
			Start: batch[s.StartIndex].LastVisit,
			End:   batch[s.EndIndex].LastVisit,
			Label: s.Label,
		})
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start.Before(ranges[j].Start) })
	return ranges, raw, nil
}

// renderPrompt lists each timestamp's ordinal position and human-readable
// time and asks for session boundaries as index pairs.
func (d *Detector) renderPrompt(batch []history.Item) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `Group these browsing timestamps into natural sessions. A gap of more than %d minutes usually means a new session started.

Timestamps (index. local time):
`, int(d.opts.SessionGap.Minutes()))

	for i, it := range batch {
		fmt.Fprintf(&sb, "%d. %s\n", i, it.LastVisit.In(d.opts.Location).Format("Mon Jan 2 2006 15:04:05"))
	}

	sb.WriteString(`
Respond ONLY with JSON in this shape, using the index numbers above:
{"sessions": [{"startIndex": 0, "endIndex": 4, "label": "short session description"}]}`)
	return sb.String()
}

// mergeRanges sorts ranges by start and merges any that overlap or sit
// within gap of each other, concatenating their labels. Needed both for
// cross-batch boundaries and for overlapping pairs within one response.
func mergeRanges(ranges []TimeRange, gap time.Duration) []TimeRange {
	if len(ranges) <= 1 {
		return ranges
	}

	sorted := make([]TimeRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	merged := []TimeRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !r.Start.After(last.End.Add(gap)) {
			if r.End.After(last.End) {
				last.End = r.End
			}
			if r.Label != "" && r.Label != last.Label {
				if last.Label != "" {
					last.Label += "; "
				}
				last.Label += r.Label
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// mapItemsToRanges assigns each sorted item to the first range covering its
// timestamp. Returns the per-range chunks (empty ranges dropped) and the
// items no range covers.
func mapItemsToRanges(sorted []history.Item, ranges []TimeRange) ([]Chunk, []history.Item) {
	chunkItems := make([][]history.Item, len(ranges))
	var uncovered []history.Item

	for _, it := range sorted {
		placed := false
		for ri, r := range ranges {
			if !it.LastVisit.Before(r.Start) && !it.LastVisit.After(r.End) {
				chunkItems[ri] = append(chunkItems[ri], it)
				placed = true
				break
			}
		}
		if !placed {
			uncovered = append(uncovered, it)
		}
	}

	var chunks []Chunk
	for ri, items := range chunkItems {
		if len(items) == 0 {
			continue
		}
		chunks = append(chunks, Chunk{
			Start:       ranges[ri].Start,
			End:         ranges[ri].End,
			Items:       items,
			Description: ranges[ri].Label,
		})
	}
	return chunks, uncovered
}

// finalize renumbers Index/TotalChunks across the combined chunk list
func finalize(chunks []Chunk) []Chunk {
	for i := range chunks {
		chunks[i].Index = i
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks
}
