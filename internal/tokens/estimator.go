// Package tokens approximates model token costs for rendered prompts.
package tokens

import "math"

// CharsPerToken is the character-to-token approximation used when a provider
// cannot measure input natively. Mixed prose and URLs average out near 3.5.
const CharsPerToken = 3.5

// Estimate approximates the token count of text as ceil(len/3.5).
// Deterministic for a given input; prefer provider-native measurement
// when the active provider supports it.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / CharsPerToken))
}
