package match

import "math"

// Combat and pacing constants.
const (
	MaxHealth      = 100
	BaseDamage     = 20
	MaxSpeedBonus  = 30
	TimeoutPenalty = 8
)

// DefaultTimeLimit is the per-round answer window in seconds when a match
// does not override it.
const DefaultTimeLimit = 30

// CalculateDamage returns the damage for a correct answer submitted after
// elapsed seconds of a timeLimit-second round. Faster answers earn a larger
// bonus on top of the base; at or past the limit only the base applies.
func CalculateDamage(timeLimit int, elapsed float64) int {
	if timeLimit <= 0 {
		timeLimit = DefaultTimeLimit
	}
	remaining := (float64(timeLimit) - elapsed) / float64(timeLimit)
	if remaining < 0 {
		remaining = 0
	}
	return BaseDamage + int(math.Round(MaxSpeedBonus*remaining))
}
