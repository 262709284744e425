package memory

import (
	"sort"
	"strings"

	"github.com/chronolens/chronolens/internal/logging"
)

// ChunkUpdate is the per-chunk analysis output the merge consumes. Field
// tags match the JSON shape the model is asked for, so a repaired response
// unmarshals straight into it.
type ChunkUpdate struct {
	Summary             string               `json:"summary"`
	CoreIdentities      []string             `json:"coreIdentities"`
	PersonalPreferences []PersonalPreference `json:"personalPreferences"`
	CurrentTasks        []string             `json:"currentTasks"`
	CurrentInterests    []string             `json:"currentInterests"`
	Patterns            []WorkflowPattern    `json:"patterns"`
}

// Merge folds one chunk's analysis into the profile in place. Stable traits
// are strengthened and refined, dynamic context and summary are replaced
// when the update carries them, and patterns are consolidated by name with
// frequencies summed. Every array is clipped to its cap afterward. Merging
// the same update twice leaves the dynamic context unchanged the second
// time; only pattern frequencies accumulate.
func Merge(mem *ProfileMemory, upd *ChunkUpdate, caps Caps) {
	if upd == nil {
		return
	}

	mem.StableTraits.CoreIdentities = refineList(mem.StableTraits.CoreIdentities, upd.CoreIdentities, caps.Identities)
	mem.StableTraits.PersonalPreferences = refinePreferences(mem.StableTraits.PersonalPreferences, upd.PersonalPreferences, caps.Preferences)

	if len(upd.CurrentTasks) > 0 {
		mem.DynamicContext.CurrentTasks = clipStrings(upd.CurrentTasks, caps.Tasks)
	}
	if len(upd.CurrentInterests) > 0 {
		mem.DynamicContext.CurrentInterests = clipStrings(upd.CurrentInterests, caps.Interests)
	}
	if strings.TrimSpace(upd.Summary) != "" {
		mem.Summary = strings.TrimSpace(upd.Summary)
	}

	mem.Patterns = consolidatePatterns(mem.Patterns, upd.Patterns, caps)
}

// refineList merges new observations into an existing stable list. A new
// value that matches an existing one (case-insensitive containment either
// way) refines it in place, keeping the more specific phrasing. Unrelated
// values append while room remains; existing entries are never evicted.
func refineList(existing, incoming []string, limit int) []string {
	out := make([]string, len(existing))
	copy(out, existing)

	for _, raw := range incoming {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		matched := false
		for i, have := range out {
			if related(have, val) {
				if len(val) > len(have) {
					out[i] = val
				}
				matched = true
				break
			}
		}
		if !matched && len(out) < limit {
			out = append(out, val)
		}
	}
	return out
}

// refinePreferences keys on normalized category: a new preference for a
// known category refines it, a new category appends while room remains.
func refinePreferences(existing, incoming []PersonalPreference, limit int) []PersonalPreference {
	out := make([]PersonalPreference, len(existing))
	copy(out, existing)

	for _, p := range incoming {
		cat := strings.TrimSpace(p.Category)
		pref := strings.TrimSpace(p.Preference)
		if cat == "" || pref == "" {
			continue
		}
		matched := false
		for i, have := range out {
			if normalize(have.Category) == normalize(cat) {
				if len(pref) > len(have.Preference) {
					out[i].Preference = pref
				}
				matched = true
				break
			}
		}
		if !matched && len(out) < limit {
			out = append(out, PersonalPreference{Category: cat, Preference: pref})
		}
	}
	return out
}

// consolidatePatterns merges incoming patterns into the existing set by
// normalized name. A match sums frequencies, unions evidence URLs, and
// keeps the richer description and higher automation potential. The result
// is sorted by frequency (descending) and clipped to the pattern cap, so
// low-frequency patterns age out as stronger ones accumulate evidence.
func consolidatePatterns(existing, incoming []WorkflowPattern, caps Caps) []WorkflowPattern {
	// Backstop against a runaway response: never consider more incoming
	// patterns than the cap itself.
	if len(incoming) > caps.Patterns {
		logging.Warnf("[Memory] Clipping %d incoming patterns to %d", len(incoming), caps.Patterns)
		incoming = incoming[:caps.Patterns]
	}

	out := make([]WorkflowPattern, len(existing))
	copy(out, existing)

	for _, in := range incoming {
		name := strings.TrimSpace(in.Pattern)
		if name == "" {
			continue
		}
		if in.Frequency < 1 {
			in.Frequency = 1
		}

		matched := false
		for i := range out {
			if !related(out[i].Pattern, name) {
				continue
			}
			out[i].Frequency += in.Frequency
			if len(in.Description) > len(out[i].Description) {
				out[i].Description = in.Description
			}
			if len(name) > len(out[i].Pattern) {
				out[i].Pattern = name
			}
			out[i].URLs = unionURLs(out[i].URLs, in.URLs, caps.URLsPerPattern)
			if automationRank(in.AutomationPotential) > automationRank(out[i].AutomationPotential) {
				out[i].AutomationPotential = in.AutomationPotential
			}
			if out[i].TimePattern == "" {
				out[i].TimePattern = in.TimePattern
			}
			if out[i].Suggestion == "" {
				out[i].Suggestion = in.Suggestion
			}
			matched = true
			break
		}
		if !matched {
			in.Pattern = name
			in.URLs = unionURLs(nil, in.URLs, caps.URLsPerPattern)
			out = append(out, in)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Frequency > out[j].Frequency })
	if len(out) > caps.Patterns {
		out = out[:caps.Patterns]
	}
	return out
}

// related reports whether two observations describe the same thing:
// normalized equality or containment either way.
func related(a, b string) bool {
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb || strings.Contains(na, nb) || strings.Contains(nb, na)
}

// normalize lowercases and collapses whitespace for comparison
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func automationRank(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case AutomationHigh:
		return 3
	case AutomationMedium:
		return 2
	case AutomationLow:
		return 1
	}
	return 0
}

// unionURLs appends new URLs not already present, up to cap
func unionURLs(have, add []string, limit int) []string {
	out := make([]string, 0, len(have))
	seen := make(map[string]bool)
	for _, u := range have {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	for _, u := range add {
		if len(out) >= limit {
			break
		}
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// clipStrings trims, drops empties, and clips to limit
func clipStrings(in []string, limit int) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) >= limit {
			break
		}
	}
	return out
}
