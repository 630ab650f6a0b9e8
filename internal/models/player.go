package models

import (
	"context"
	"time"

	"github.com/coder/websocket"
)

// Player is one seated combatant. All fields are mutated only while the
// owning match's lock is held.
type Player struct {
	Name      string          `json:"name"`
	HP        int             `json:"hp"`
	Connected bool            `json:"connected"`
	Conn      *websocket.Conn `json:"-"`

	// Out feeds the per-connection writer goroutine. Enqueues are
	// non-blocking; a full buffer drops the frame for that client.
	Out          chan []byte        `json:"-"`
	CancelWrites context.CancelFunc `json:"-"`

	// SubmittedRound marks a credited correct submission for the current
	// round. Reset when a round starts.
	SubmittedRound bool `json:"-"`

	// CooldownUntil is the deadline after an incorrect submission. Zero
	// when no cooldown is active.
	CooldownUntil time.Time `json:"-"`

	JoinedAt time.Time `json:"-"`
}

// PlayerSnapshot is the public per-player view used in match status and
// broadcast payloads.
type PlayerSnapshot struct {
	HP        int  `json:"hp"`
	Connected bool `json:"connected"`
}
