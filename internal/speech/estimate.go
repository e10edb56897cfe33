package speech

import "lectern/internal/chunker"

// Reference narration rate of 12.5 characters per second, kept as the exact
// fraction 25/2 so the estimate is computed without float rounding.
const (
	rateNumerator   = 25
	rateDenominator = 2
)

// EstimateDurationMs returns ceil(runes / 12.5 * 1000).
func EstimateDurationMs(text string) int64 {
	runes := int64(chunker.Len(text))
	numerator := runes * 1000 * rateDenominator
	return (numerator + rateNumerator - 1) / rateNumerator
}
