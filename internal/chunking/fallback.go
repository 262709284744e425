package chunking

import (
	"fmt"
	"sort"
	"time"

	"github.com/chronolens/chronolens/internal/history"
)

// halfDay is the deterministic fallback bucket width
const halfDay = 12 * time.Hour

// HalfDayChunks buckets items into deterministic half-day sessions:
// 00:00–11:59:59.999 and 12:00–23:59:59.999 of each local day. One chunk is
// emitted per non-empty bucket, in chronological order, marked IsFallback.
// Items without a timestamp are skipped. Indices are not assigned here;
// callers renumber across the combined chunk list.
func HalfDayChunks(items []history.Item, loc *time.Location) []Chunk {
	if loc == nil {
		loc = time.Local
	}

	buckets := make(map[time.Time][]history.Item)
	for _, it := range items {
		if !it.HasTimestamp() {
			continue
		}
		start := halfDayStart(it.LastVisit, loc)
		buckets[start] = append(buckets[start], it)
	}

	starts := make([]time.Time, 0, len(buckets))
	for s := range buckets {
		starts = append(starts, s)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	chunks := make([]Chunk, 0, len(starts))
	for _, start := range starts {
		bucketItems := history.SortByVisitTime(buckets[start])
		chunks = append(chunks, Chunk{
			Start:       start,
			End:         start.Add(halfDay - time.Millisecond),
			Items:       bucketItems,
			IsFallback:  true,
			Description: bucketDescription(start),
		})
	}
	return chunks
}

// halfDayStart returns the start of the half-day bucket containing t
func halfDayStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()
	hour := 0
	if local.Hour() >= 12 {
		hour = 12
	}
	return time.Date(y, m, d, hour, 0, 0, 0, loc)
}

// bucketDescription labels a fallback bucket for progress display
func bucketDescription(start time.Time) string {
	period := "Morning"
	if start.Hour() >= 12 {
		period = "Afternoon"
	}
	return fmt.Sprintf("%s of %s", period, start.Format("Jan 2, 2006"))
}
