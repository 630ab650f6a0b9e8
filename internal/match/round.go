// internal/match/round.go
package match

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/clashcourse/clashcourse/internal/content"
	"github.com/clashcourse/clashcourse/internal/models"
	"github.com/clashcourse/clashcourse/internal/question"
)

// Fragment caps bound the prompt size of question service calls.
const (
	GenerationFragmentCap   = 10
	VerificationFragmentCap = 5
)

// Round is one live question. It exists for exactly the lifetime of the
// round and is replaced by nil on resolution.
type Round struct {
	Number    int
	Question  *models.Question
	StartedAt time.Time
	TimeLimit int // seconds

	// SkipVotes holds the names of players who voted to skip this round.
	SkipVotes map[string]bool

	// Submissions records per-player outcomes for audit. Admission checks
	// never consult it.
	Submissions map[string]string
}

// secondsLeft returns the whole seconds remaining before the round deadline,
// never negative.
func (r *Round) secondsLeft(now time.Time) int {
	deadline := r.StartedAt.Add(time.Duration(r.TimeLimit) * time.Second)
	left := int(deadline.Sub(now).Seconds())
	if left < 0 {
		left = 0
	}
	return left
}

// SubmitResult is what the submitting player gets back on the request path.
type SubmitResult struct {
	Correct     bool              `json:"correct"`
	DamageDealt int               `json:"damage_dealt"`
	YourHP      int               `json:"your_hp"`
	OpponentHP  int               `json:"opponent_hp"`
	Explanation string            `json:"explanation"`
	Citation    []models.Fragment `json:"citation"`
}

// StartRound generates a question and opens the next round. The generation
// call runs outside the lock; state is validated again afterwards. On
// generation failure both players see an error event and the match stalls
// visibly with no round and no timer.
func (m *Match) StartRound() {
	m.Mu.Lock()
	if m.Status != StatusActive || m.Round != nil || m.generating {
		m.Mu.Unlock()
		return
	}
	m.generating = true
	pool := content.SampleFragments(m.fragments, GenerationFragmentCap)
	types := m.Types
	difficulty := m.Difficulty
	m.Mu.Unlock()

	q, err := m.questions.GenerateQuestion(context.Background(), pool, types, difficulty)

	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.generating = false

	if m.Status != StatusActive || m.Round != nil {
		log.Printf("Match %s: discarding generated question, match state moved on (status=%s).", m.ID, m.Status)
		return
	}
	if err != nil {
		log.Printf("Match %s: question generation failed: %v", m.ID, err)
		m.fireEvent(Event{Type: EventError, Data: ErrorData{Message: "Failed to generate question"}})
		return
	}

	q.TimeLimit = m.TimeLimit
	m.RoundCounter++
	for _, p := range m.Players {
		p.SubmittedRound = false
	}
	m.Round = &Round{
		Number:      m.RoundCounter,
		Question:    q,
		StartedAt:   m.clock.Now(),
		TimeLimit:   m.TimeLimit,
		SkipVotes:   make(map[string]bool),
		Submissions: make(map[string]string),
	}
	m.startCountdown()

	log.Printf("Match %s: round %d started, question %s (%s).", m.ID, m.Round.Number, q.ID, q.Type)
	m.fireEvent(Event{Type: EventRoundStart, Data: RoundStartData{
		QuestionID:   q.ID,
		QuestionText: q.Text,
		QuestionType: q.Type,
		Options:      q.Options,
		TimeLimit:    m.Round.TimeLimit,
		SecondsLeft:  m.Round.TimeLimit,
		RoundNumber:  m.Round.Number,
		Citation:     citationRefs(q.Sources),
	}})
}

// SubmitAnswer runs one submission through admission, grading, and
// resolution. Admission rejections are typed errors and leave no trace.
// Grading happens outside the lock; the resolution step re-validates that
// the same round is still open and the player is still eligible, so the
// first admitted correct answer wins and later ones fail as stale.
func (m *Match) SubmitAnswer(ctx context.Context, playerName, questionID, answer string) (*SubmitResult, error) {
	m.Mu.Lock()

	p := m.getPlayer(playerName)
	if p == nil {
		m.Mu.Unlock()
		return nil, ErrPlayerNotInMatch
	}
	r := m.Round
	if r == nil {
		m.Mu.Unlock()
		return nil, ErrNoActiveRound
	}
	if r.Question.ID != questionID {
		m.Mu.Unlock()
		return nil, ErrStaleQuestion
	}
	if p.SubmittedRound {
		m.Mu.Unlock()
		return nil, ErrAlreadySubmitted
	}
	now := m.clock.Now()
	if !p.CooldownUntil.IsZero() && now.Before(p.CooldownUntil) {
		remaining := p.CooldownUntil.Sub(now)
		m.Mu.Unlock()
		return nil, &CooldownError{Remaining: remaining}
	}

	// Snapshot grading inputs. Elapsed time is measured at admission so a
	// slow grading call does not eat into the speed bonus.
	q := r.Question
	elapsed := now.Sub(r.StartedAt)
	roundNumber := r.Number
	var pool []models.Fragment
	if !question.GradedLocally(q) {
		pool = content.SampleFragments(m.fragments, VerificationFragmentCap)
	}
	m.Mu.Unlock()

	var verdict *models.Verdict
	if question.GradedLocally(q) {
		verdict = question.GradeMCQ(q, answer)
	} else {
		v, err := m.questions.GradeAnswer(ctx, pool, q, answer)
		if err != nil {
			return nil, fmt.Errorf("grade answer: %w", err)
		}
		verdict = v
	}

	m.Mu.Lock()
	defer m.Mu.Unlock()

	// Re-validate: the round may have resolved while we were grading.
	r = m.Round
	if r == nil {
		return nil, ErrNoActiveRound
	}
	if r.Number != roundNumber || r.Question.ID != questionID {
		return nil, ErrStaleQuestion
	}
	if p.SubmittedRound {
		return nil, ErrAlreadySubmitted
	}

	opp := m.opponentOf(playerName)

	if !verdict.Correct {
		p.CooldownUntil = m.clock.Now().Add(CooldownDuration)
		r.Submissions[playerName] = "incorrect"
		log.Printf("Match %s: round %d incorrect answer from %s.", m.ID, r.Number, playerName)
		m.fireEventToPlayer(playerName, Event{Type: EventAnswerFeedback, Data: AnswerFeedbackData{
			Correct:         false,
			Explanation:     verdict.Explanation,
			CooldownSeconds: CooldownDuration.Seconds(),
		}})
		result := &SubmitResult{
			Correct:     false,
			DamageDealt: 0,
			YourHP:      p.HP,
			Explanation: verdict.Explanation,
			Citation:    verdict.Citations,
		}
		if opp != nil {
			result.OpponentHP = opp.HP
		}
		return result, nil
	}

	p.SubmittedRound = true
	damage := CalculateDamage(r.TimeLimit, elapsed.Seconds())
	if opp != nil {
		opp.HP -= damage
		if opp.HP < 0 {
			opp.HP = 0
		}
	}
	r.Submissions[playerName] = "correct"
	m.cancelCountdown()

	log.Printf("Match %s: round %d won by %s, %d damage in %.2fs.", m.ID, r.Number, playerName, damage, elapsed.Seconds())

	resultData := RoundResultData{
		WinnerPlayer:  playerName,
		Damage:        damage,
		TimeTaken:     math.Round(elapsed.Seconds()*100) / 100,
		Solution:      q.Solution,
		CorrectAnswer: q.CorrectAnswer,
		Citation:      q.Sources,
	}
	if opp != nil {
		resultData.LoserPlayer = opp.Name
	}
	resultData.Players = m.healthSnapshot()
	m.fireEvent(Event{Type: EventRoundResult, Data: resultData})
	m.publishRoundRecord(r, models.RoundOutcomeAnswered, playerName, damage, elapsed)
	m.Round = nil

	result := &SubmitResult{
		Correct:     true,
		DamageDealt: damage,
		YourHP:      p.HP,
		Explanation: verdict.Explanation,
		Citation:    verdict.Citations,
	}
	if opp != nil {
		result.OpponentHP = opp.HP
	}

	if m.anyPlayerDown() {
		m.endMatch()
	} else {
		m.scheduleNextRound()
	}
	return result, nil
}

// VoteSkip registers one skip vote. Duplicate votes are ignored. Once every
// seated player has voted the round resolves as skipped.
func (m *Match) VoteSkip(playerName string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	p := m.getPlayer(playerName)
	if p == nil {
		return ErrPlayerNotInMatch
	}
	r := m.Round
	if r == nil {
		return ErrNoActiveRound
	}
	if r.SkipVotes[playerName] {
		return nil
	}
	r.SkipVotes[playerName] = true

	voters := make([]string, 0, len(r.SkipVotes))
	for _, pl := range m.Players {
		if r.SkipVotes[pl.Name] {
			voters = append(voters, pl.Name)
		}
	}
	needed := len(m.Players)
	log.Printf("Match %s: round %d skip vote from %s (%d/%d).", m.ID, r.Number, playerName, len(r.SkipVotes), needed)
	m.fireEvent(Event{Type: EventSkipUpdate, Data: SkipUpdateData{
		Votes:  len(r.SkipVotes),
		Needed: needed,
		Voters: voters,
	}})

	if len(r.SkipVotes) >= needed {
		m.resolveSkip()
	}
	return nil
}

// resolveSkip closes a unanimously skipped round with no damage, reveals the
// solution, and always moves on to the next round. Health cannot change
// here, so there is no match-end check.
// Assumes lock is held.
func (m *Match) resolveSkip() {
	r := m.Round
	if r == nil {
		return
	}
	m.cancelCountdown()
	for _, pl := range m.Players {
		if _, ok := r.Submissions[pl.Name]; !ok {
			r.Submissions[pl.Name] = "skipped"
		}
	}
	q := r.Question
	log.Printf("Match %s: round %d skipped by unanimous vote.", m.ID, r.Number)
	m.fireEvent(Event{Type: EventRoundResult, Data: RoundResultData{
		Skipped:       true,
		Damage:        0,
		Solution:      q.Solution,
		CorrectAnswer: q.CorrectAnswer,
		Citation:      q.Sources,
		Players:       m.healthSnapshot(),
	}})
	m.publishRoundRecord(r, models.RoundOutcomeSkipped, "", 0, m.clock.Now().Sub(r.StartedAt))
	m.Round = nil
	m.scheduleNextRound()
}

// resolveTimeout applies the penalty to every player who did not submit a
// correct answer, closes the round, and either ends the match or schedules
// the next round.
// Assumes lock is held.
func (m *Match) resolveTimeout() {
	r := m.Round
	if r == nil {
		return
	}
	m.cancelCountdown()
	for _, pl := range m.Players {
		if pl.SubmittedRound {
			continue
		}
		pl.HP -= TimeoutPenalty
		if pl.HP < 0 {
			pl.HP = 0
		}
		if _, ok := r.Submissions[pl.Name]; !ok {
			r.Submissions[pl.Name] = "timeout"
		}
	}
	q := r.Question
	log.Printf("Match %s: round %d timed out.", m.ID, r.Number)
	m.fireEvent(Event{Type: EventRoundResult, Data: RoundResultData{
		Timeout:       true,
		Damage:        TimeoutPenalty,
		Solution:      q.Solution,
		CorrectAnswer: q.CorrectAnswer,
		Citation:      q.Sources,
		Players:       m.healthSnapshot(),
	}})
	m.publishRoundRecord(r, models.RoundOutcomeTimeout, "", TimeoutPenalty, time.Duration(r.TimeLimit)*time.Second)
	m.Round = nil

	if m.anyPlayerDown() {
		m.endMatch()
	} else {
		m.scheduleNextRound()
	}
}

// startCountdown replaces any live countdown with one for the current round.
// Assumes lock is held.
func (m *Match) startCountdown() {
	m.cancelCountdown()
	cancel := make(chan struct{})
	m.countdownCancel = cancel
	go m.runCountdown(m.Round.Number, m.Round.Question.ID, cancel)
}

// cancelCountdown stops the live countdown goroutine, if any.
// Assumes lock is held.
func (m *Match) cancelCountdown() {
	if m.countdownCancel != nil {
		close(m.countdownCancel)
		m.countdownCancel = nil
	}
}

// runCountdown ticks once per second, broadcasting the remaining time, and
// resolves the timeout when it hits zero. Each tick re-checks under the lock
// that the round it was started for is still the current one; a stale tick
// exits silently.
func (m *Match) runCountdown(roundNumber int, questionID string, cancel <-chan struct{}) {
	ticker := m.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-cancel:
			return
		case now := <-ticker.Chan():
			m.Mu.Lock()
			r := m.Round
			if m.Status != StatusActive || r == nil || r.Number != roundNumber || r.Question.ID != questionID {
				m.Mu.Unlock()
				return
			}
			left := r.secondsLeft(now)
			m.fireEvent(Event{Type: EventRoundUpdate, Data: RoundUpdateData{SecondsLeft: left}})
			if left <= 0 {
				m.resolveTimeout()
				m.Mu.Unlock()
				return
			}
			m.Mu.Unlock()
		}
	}
}

// scheduleNextRound queues the next round start after the inter-round pause.
// StartRound revalidates state when the callback fires, so a match that
// ended during the pause is left alone.
// Assumes lock is held.
func (m *Match) scheduleNextRound() {
	m.clock.AfterFunc(RoundPause, func() {
		m.StartRound()
	})
}

// anyPlayerDown reports whether any seated player has zero health.
// Assumes lock is held.
func (m *Match) anyPlayerDown() bool {
	for _, p := range m.Players {
		if p.HP <= 0 {
			return true
		}
	}
	return false
}
