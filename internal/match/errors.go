package match

import (
	"errors"
	"time"
)

// Admission and seating errors. Handlers map these to HTTP statuses or
// websocket error frames; the engine never mutates state when returning one.
var (
	ErrMatchNotFound    = errors.New("match not found")
	ErrMatchFull        = errors.New("match already has two players")
	ErrNameTaken        = errors.New("player name already taken in this match")
	ErrBadPasscode      = errors.New("invalid passcode")
	ErrPlayerNotInMatch = errors.New("player is not part of this match")
	ErrNoActiveRound    = errors.New("no active round")
	ErrStaleQuestion    = errors.New("question is no longer current")
	ErrAlreadySubmitted = errors.New("player already submitted a correct answer this round")
	ErrInCooldown       = errors.New("player is in cooldown")
)

// CooldownError carries the remaining cooldown so callers can report it.
// errors.Is(err, ErrInCooldown) matches it.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return ErrInCooldown.Error()
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrInCooldown
}
