// internal/match/match.go
package match

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/clashcourse/clashcourse/internal/cache"
	"github.com/clashcourse/clashcourse/internal/models"
	"github.com/clashcourse/clashcourse/internal/question"

	"github.com/coder/websocket"
)

// Status is the match lifecycle state.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Pacing constants.
const (
	// CooldownDuration locks a player out of submitting after an incorrect
	// answer.
	CooldownDuration = 2 * time.Second

	// ReadyGrace is the delay between match_ready and round 1.
	ReadyGrace = 2 * time.Second

	// RoundPause separates a resolved round from the next one.
	RoundPause = 3 * time.Second
)

// Config carries everything a new match needs. Fragments are the course's
// content pool, copied in at creation so round starts never touch storage.
type Config struct {
	CourseID     string
	TimeLimit    int
	Types        []models.QuestionType
	Difficulty   models.Difficulty
	PasscodeHash string
	Fragments    []models.Fragment
	Questions    question.Service
	Clock        clockwork.Clock
}

// Match holds the entire state for one head-to-head battle in memory.
type Match struct {
	ID       string
	CourseID string

	TimeLimit    int // seconds per round
	Types        []models.QuestionType
	Difficulty   models.Difficulty
	PasscodeHash string

	Players []*models.Player
	Status  Status
	Winner  string

	Round        *Round
	RoundCounter int

	CreatedAt time.Time
	StartedAt time.Time

	Mu sync.Mutex

	// BroadcastFn is used to send events to all connected players. If nil,
	// no broadcast is done.
	BroadcastFn func(ev Event)

	// BroadcastToPlayerFn sends an event to a single named player.
	BroadcastToPlayerFn func(player string, ev Event)

	clock     clockwork.Clock
	questions question.Service
	fragments []models.Fragment

	// countdownCancel stops the live countdown goroutine. Nil when no round
	// timer is running.
	countdownCancel chan struct{}

	// generating is set while a question generation call is in flight, so a
	// second round start cannot overlap it.
	generating bool
}

// New builds a waiting match with no players seated. Zero-value tunables get
// the defaults.
func New(cfg Config) *Match {
	m := &Match{
		ID:           uuid.NewString()[:8],
		CourseID:     cfg.CourseID,
		TimeLimit:    cfg.TimeLimit,
		Types:        cfg.Types,
		Difficulty:   cfg.Difficulty,
		PasscodeHash: cfg.PasscodeHash,
		Status:       StatusWaiting,
		clock:        cfg.Clock,
		questions:    cfg.Questions,
		fragments:    cfg.Fragments,
	}
	if m.TimeLimit <= 0 {
		m.TimeLimit = DefaultTimeLimit
	}
	if len(m.Types) == 0 {
		m.Types = []models.QuestionType{models.QuestionShort, models.QuestionCalc}
	}
	if m.Difficulty == "" {
		m.Difficulty = models.DifficultyMedium
	}
	if m.clock == nil {
		m.clock = clockwork.NewRealClock()
	}
	m.CreatedAt = m.clock.Now()
	return m
}

// AddPlayer seats a named player. The first seat comes from match creation,
// the second from a join; there is no third.
func (m *Match) AddPlayer(name string) (*models.Player, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if len(m.Players) >= 2 {
		return nil, ErrMatchFull
	}
	for _, p := range m.Players {
		if p.Name == name {
			return nil, ErrNameTaken
		}
	}
	p := &models.Player{
		Name:     name,
		HP:       MaxHealth,
		JoinedAt: m.clock.Now(),
	}
	m.Players = append(m.Players, p)
	log.Printf("Match %s: player %s seated (%d/2).", m.ID, name, len(m.Players))
	return p, nil
}

// HandleConnect attaches a live websocket to a seated player, greets them,
// and either activates the match (second seat, both connected) or replays
// the current state to a reconnecting player.
func (m *Match) HandleConnect(name string, conn *websocket.Conn, out chan []byte, cancelWrites context.CancelFunc) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	p := m.getPlayer(name)
	if p == nil {
		return ErrPlayerNotInMatch
	}

	if p.CancelWrites != nil {
		// A previous socket is still attached. Stop its writer before
		// replacing it; its read loop will notice and exit on its own.
		p.CancelWrites()
	}
	p.Conn = conn
	p.Out = out
	p.CancelWrites = cancelWrites
	p.Connected = true

	log.Printf("Match %s: player %s connected.", m.ID, name)

	m.fireEventToPlayer(name, Event{Type: EventConnected, Data: ConnectedData{
		Player:  name,
		MatchID: m.ID,
		Players: m.playerNames(),
	}})

	switch {
	case m.Status == StatusActive:
		m.sendStateSnapshot(name)
	case m.Status == StatusWaiting && len(m.Players) == 2 && m.connectedCount() == 2:
		m.activate()
	}
	return nil
}

// HandleDisconnect clears a player's connection. Health and round state are
// untouched; a disconnected player can still lose rounds by timeout and
// reconnect later.
func (m *Match) HandleDisconnect(name string, conn *websocket.Conn) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	p := m.getPlayer(name)
	if p == nil {
		log.Printf("Match %s: disconnect for unknown player %s.", m.ID, name)
		return
	}
	if p.Conn != conn {
		// The read loop of an already-replaced socket is exiting. The live
		// connection stays attached.
		return
	}
	p.Connected = false
	p.Conn = nil
	p.Out = nil
	if p.CancelWrites != nil {
		p.CancelWrites()
		p.CancelWrites = nil
	}
	log.Printf("Match %s: player %s disconnected.", m.ID, name)
}

// activate flips a waiting match to active, announces it, and schedules
// round 1 after the ready grace. The status check makes the transition
// single-shot even when both connect events race.
// Assumes lock is held.
func (m *Match) activate() {
	if m.Status != StatusWaiting {
		return
	}
	m.Status = StatusActive
	m.StartedAt = m.clock.Now()
	log.Printf("Match %s: both players connected, match is live.", m.ID)

	m.fireEvent(Event{Type: EventMatchReady, Data: MatchReadyData{Players: m.healthSnapshot()}})

	m.clock.AfterFunc(ReadyGrace, func() {
		// StartRound validates status and round state itself, so a fire
		// after the match ended is a no-op.
		m.StartRound()
	})
}

// sendStateSnapshot replays the current match state to one player after a
// reconnect: both healths, and the public round fields with the remaining
// time if a round is live. The correct answer and solution are never sent.
// Assumes lock is held.
func (m *Match) sendStateSnapshot(name string) {
	m.fireEventToPlayer(name, Event{Type: EventMatchReady, Data: MatchReadyData{Players: m.healthSnapshot()}})

	r := m.Round
	if r == nil {
		return
	}
	q := r.Question
	m.fireEventToPlayer(name, Event{Type: EventRoundStart, Data: RoundStartData{
		QuestionID:   q.ID,
		QuestionText: q.Text,
		QuestionType: q.Type,
		Options:      q.Options,
		TimeLimit:    r.TimeLimit,
		SecondsLeft:  r.secondsLeft(m.clock.Now()),
		RoundNumber:  r.Number,
		Citation:     citationRefs(q.Sources),
	}})
}

// endMatch finishes the match, decides the winner, and announces the result.
// Safe to reach from both the submission and timeout paths; only the first
// call does anything.
// Assumes lock is held.
func (m *Match) endMatch() {
	if m.Status == StatusFinished {
		return
	}
	m.Status = StatusFinished
	m.cancelCountdown()
	m.Round = nil
	m.Winner = m.decideWinner()

	final := make(map[string]int, len(m.Players))
	for _, p := range m.Players {
		final[p.Name] = p.HP
	}
	m.fireEvent(Event{Type: EventMatchEnd, Data: MatchEndData{
		Winner:  m.Winner,
		FinalHP: final,
	}})
	m.publishMatchRecord()
	log.Printf("Match %s: finished after %d rounds. Winner: %q.", m.ID, m.RoundCounter, m.Winner)
}

// decideWinner names the player with strictly higher health, preferring a
// sole survivor. Equal healths (including a double zero) are a draw, which
// is reported as an empty name.
// Assumes lock is held.
func (m *Match) decideWinner() string {
	var best *models.Player
	tie := false
	for _, p := range m.Players {
		switch {
		case best == nil || p.HP > best.HP:
			best = p
			tie = false
		case p.HP == best.HP:
			tie = true
		}
	}
	if best == nil || tie {
		return ""
	}
	return best.Name
}

// fireEvent broadcasts an event to all connected players.
// Assumes lock is held.
func (m *Match) fireEvent(ev Event) {
	if m.BroadcastFn != nil {
		m.BroadcastFn(ev)
	} else {
		log.Printf("Warning: BroadcastFn is nil for match %s, cannot broadcast event type %s.", m.ID, ev.Type)
	}
}

// fireEventToPlayer sends an event only to the named player, if connected.
// Assumes lock is held.
func (m *Match) fireEventToPlayer(name string, ev Event) {
	if m.BroadcastToPlayerFn == nil {
		log.Printf("Warning: BroadcastToPlayerFn is nil for match %s, cannot send event type %s to player %s.", m.ID, ev.Type, name)
		return
	}
	p := m.getPlayer(name)
	if p == nil || !p.Connected {
		return
	}
	m.BroadcastToPlayerFn(name, ev)
}

// getPlayer returns the seated player with the given name, or nil.
// Assumes lock is held.
func (m *Match) getPlayer(name string) *models.Player {
	for _, p := range m.Players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// opponentOf returns the other seated player, or nil before the second seat
// is taken.
// Assumes lock is held.
func (m *Match) opponentOf(name string) *models.Player {
	for _, p := range m.Players {
		if p.Name != name {
			return p
		}
	}
	return nil
}

// playerNames lists seated player names in join order.
// Assumes lock is held.
func (m *Match) playerNames() []string {
	names := make([]string, 0, len(m.Players))
	for _, p := range m.Players {
		names = append(names, p.Name)
	}
	return names
}

// connectedCount returns the number of players with a live connection.
// Assumes lock is held.
func (m *Match) connectedCount() int {
	count := 0
	for _, p := range m.Players {
		if p.Connected {
			count++
		}
	}
	return count
}

// healthSnapshot builds the {name: {hp}} map used by ready/result payloads.
// Assumes lock is held.
func (m *Match) healthSnapshot() map[string]PlayerHealth {
	snap := make(map[string]PlayerHealth, len(m.Players))
	for _, p := range m.Players {
		snap[p.Name] = PlayerHealth{HP: p.HP}
	}
	return snap
}

// Snapshot is the public view served by the match status endpoint.
type Snapshot struct {
	MatchID   string                           `json:"match_id"`
	Status    Status                           `json:"status"`
	Players   map[string]models.PlayerSnapshot `json:"players"`
	TimeLimit int                              `json:"time_limit"`
	Winner    string                           `json:"winner"`
}

// Snapshot returns the public status view of the match.
func (m *Match) Snapshot() Snapshot {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	players := make(map[string]models.PlayerSnapshot, len(m.Players))
	for _, p := range m.Players {
		players[p.Name] = models.PlayerSnapshot{HP: p.HP, Connected: p.Connected}
	}
	return Snapshot{
		MatchID:   m.ID,
		Status:    m.Status,
		Players:   players,
		TimeLimit: m.TimeLimit,
		Winner:    m.Winner,
	}
}

// citationRefs strips fragment text, leaving the reference metadata that is
// safe to show before a round resolves.
func citationRefs(sources []models.Fragment) []models.Fragment {
	refs := make([]models.Fragment, len(sources))
	for i, f := range sources {
		f.Text = ""
		refs[i] = f
	}
	return refs
}

// publishRoundRecord queues one resolved round for the historian.
// Assumes lock is held.
func (m *Match) publishRoundRecord(r *Round, outcome, winner string, damage int, elapsed time.Duration) {
	rec := models.RoundRecord{
		Kind:         models.HistoryKindRound,
		MatchID:      m.ID,
		RoundNumber:  r.Number,
		QuestionID:   r.Question.ID,
		QuestionType: string(r.Question.Type),
		Outcome:      outcome,
		Winner:       winner,
		Damage:       damage,
		ElapsedMs:    elapsed.Milliseconds(),
		OccurredAt:   m.clock.Now().UnixMilli(),
	}
	go func(rec models.RoundRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if cache.Rdb == nil {
			// Redis is optional; without it history is simply not kept.
			return
		}
		if err := cache.PublishHistoryRecord(ctx, rec); err != nil {
			log.Printf("Error publishing round record for match %s: %v", rec.MatchID, err)
		}
	}(rec)
}

// publishMatchRecord queues the final match result for the historian.
// Assumes lock is held.
func (m *Match) publishMatchRecord() {
	if len(m.Players) < 2 {
		return
	}
	rec := models.MatchRecord{
		Kind:         models.HistoryKindMatch,
		MatchID:      m.ID,
		CourseID:     m.CourseID,
		PlayerA:      m.Players[0].Name,
		PlayerB:      m.Players[1].Name,
		Winner:       m.Winner,
		FinalHPA:     m.Players[0].HP,
		FinalHPB:     m.Players[1].HP,
		RoundsPlayed: m.RoundCounter,
		StartedAt:    m.StartedAt.UnixMilli(),
		FinishedAt:   m.clock.Now().UnixMilli(),
	}
	go func(rec models.MatchRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if cache.Rdb == nil {
			return
		}
		if err := cache.PublishHistoryRecord(ctx, rec); err != nil {
			log.Printf("Error publishing match record for match %s: %v", rec.MatchID, err)
		}
	}(rec)
}
