package drift

// ConfidenceLevel buckets a confidence score into a threshold category.
type ConfidenceLevel string

const (
	// LevelHigh indicates high confidence (>= 0.85).
	LevelHigh ConfidenceLevel = "high"
	// LevelMedium indicates medium confidence (0.70 - 0.84).
	LevelMedium ConfidenceLevel = "medium"
	// LevelLow indicates low confidence (0.50 - 0.69).
	LevelLow ConfidenceLevel = "low"
	// LevelUncertain indicates uncertain confidence (< 0.50).
	LevelUncertain ConfidenceLevel = "uncertain"
)

// LevelFor returns the confidence level for a given score.
func LevelFor(score float64) ConfidenceLevel {
	switch {
	case score >= 0.85:
		return LevelHigh
	case score >= 0.70:
		return LevelMedium
	case score >= 0.50:
		return LevelLow
	default:
		return LevelUncertain
	}
}
